package audio

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeWAVHeaderFields(t *testing.T) {
	payload := []byte{0xFF, 0xFE, 0xFD}
	wav := EncodeWAV(payload, TelephonyRate, 8, 1, CodecMulaw)

	if len(wav) != 44+len(payload) {
		t.Fatalf("length = %d, want %d", len(wav), 44+len(payload))
	}
	info, err := ParseWAVInfo(wav)
	if err != nil {
		t.Fatalf("ParseWAVInfo: %v", err)
	}
	if info.Codec != CodecMulaw || info.SampleRate != 8000 || info.BitDepth != 8 || info.Channels != 1 {
		t.Errorf("info = %+v", info)
	}
	if info.DataLen != len(payload) {
		t.Errorf("DataLen = %d, want %d", info.DataLen, len(payload))
	}
	if !info.TelephonyReady {
		t.Error("8 kHz mono µ-law should be telephony ready")
	}
	if !bytes.Equal(wav[44:], payload) {
		t.Errorf("payload altered: %v", wav[44:])
	}
}

func TestParseWAVInfoRejectsNonWAV(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"short", []byte("RIFF")},
		{"wrong magic", bytes.Repeat([]byte{0xAB}, 64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseWAVInfo(tt.in); !errors.Is(err, ErrNotWAV) {
				t.Errorf("err = %v, want ErrNotWAV", err)
			}
		})
	}
}

func TestParseWAVInfoTelephonyReady(t *testing.T) {
	tests := []struct {
		name  string
		wav   []byte
		ready bool
	}{
		{"mulaw 8k mono", EncodeWAV(nil, 8000, 8, 1, CodecMulaw), true},
		{"pcm 8k mono", EncodeWAV(nil, 8000, 16, 1, CodecPCM), false},
		{"mulaw 16k", EncodeWAV(nil, 16000, 8, 1, CodecMulaw), false},
		{"mulaw stereo", EncodeWAV(nil, 8000, 8, 2, CodecMulaw), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ParseWAVInfo(tt.wav)
			if err != nil {
				t.Fatalf("ParseWAVInfo: %v", err)
			}
			if info.TelephonyReady != tt.ready {
				t.Errorf("TelephonyReady = %v, want %v", info.TelephonyReady, tt.ready)
			}
		})
	}
}

func TestStripWAVHeader(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	wav := EncodeWAV(payload, 8000, 8, 1, CodecMulaw)
	if got := StripWAVHeader(wav); !bytes.Equal(got, payload) {
		t.Errorf("StripWAVHeader = %v, want %v", got, payload)
	}

	raw := []byte{9, 9, 9}
	if got := StripWAVHeader(raw); !bytes.Equal(got, raw) {
		t.Errorf("non-WAV input should pass through, got %v", got)
	}
}
