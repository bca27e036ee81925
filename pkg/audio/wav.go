package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Codec identifies the WAV format tag of a payload.
type Codec uint16

const (
	// CodecPCM is uncompressed linear PCM (WAVE format tag 1).
	CodecPCM Codec = 1

	// CodecMulaw is G.711 µ-law (WAVE format tag 7).
	CodecMulaw Codec = 7
)

// ErrNotWAV reports that a byte slice does not begin with a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE stream")

const wavHeaderLen = 44

// Info describes the audio carried by a WAV header.
type Info struct {
	Codec      Codec
	SampleRate int
	BitDepth   int
	Channels   int

	// DataLen is the byte length declared by the data chunk.
	DataLen int

	// TelephonyReady is true when the payload can be sent to the call leg
	// as-is: 8 kHz mono 8-bit µ-law.
	TelephonyReady bool
}

// EncodeWAV wraps a raw audio payload in a minimal 44-byte RIFF/WAVE
// header. Only the fmt and data chunks are written; no extension chunks.
func EncodeWAV(payload []byte, sampleRate, bitDepth, channels int, codec Codec) []byte {
	blockAlign := channels * bitDepth / 8
	byteRate := sampleRate * blockAlign

	out := make([]byte, wavHeaderLen+len(payload))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(payload)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], uint16(codec))
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(bitDepth))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(payload)))
	copy(out[wavHeaderLen:], payload)
	return out
}

// ParseWAVInfo reads the fmt chunk of a WAV header without touching the
// payload. Streams produced by EncodeWAV parse back to identical fields.
func ParseWAVInfo(b []byte) (Info, error) {
	if len(b) < wavHeaderLen {
		return Info{}, fmt.Errorf("audio: header truncated at %d bytes: %w", len(b), ErrNotWAV)
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return Info{}, ErrNotWAV
	}
	if string(b[12:16]) != "fmt " {
		return Info{}, fmt.Errorf("audio: unexpected chunk %q: %w", b[12:16], ErrNotWAV)
	}

	info := Info{
		Codec:      Codec(binary.LittleEndian.Uint16(b[20:22])),
		Channels:   int(binary.LittleEndian.Uint16(b[22:24])),
		SampleRate: int(binary.LittleEndian.Uint32(b[24:28])),
		BitDepth:   int(binary.LittleEndian.Uint16(b[34:36])),
		DataLen:    int(binary.LittleEndian.Uint32(b[40:44])),
	}
	info.TelephonyReady = info.Codec == CodecMulaw &&
		info.SampleRate == TelephonyRate &&
		info.BitDepth == 8 &&
		info.Channels == 1
	return info, nil
}

// StripWAVHeader returns the payload bytes following a 44-byte WAV header,
// or the input unchanged when it is not a WAV stream.
func StripWAVHeader(b []byte) []byte {
	if _, err := ParseWAVInfo(b); err != nil {
		return b
	}
	return b[wavHeaderLen:]
}
