package audio

// ContentType values reported alongside converted payloads.
const (
	ContentTypeWAV = "audio/wav"
	ContentTypePCM = "audio/pcm"
)

// BackendToTelephony converts a backend reply (16 kHz 16-bit linear PCM)
// into a WAV-wrapped 8 kHz µ-law payload for the call leg. The returned
// content type matches the returned bytes.
//
// On any conversion failure the original payload is returned untouched
// with ok=false so the caller can forward it and log, rather than dropping
// the prompt mid-call.
func BackendToTelephony(pcm16 []byte) (out []byte, contentType string, ok bool) {
	if len(pcm16) == 0 || len(pcm16)%2 != 0 {
		return pcm16, ContentTypePCM, false
	}
	narrow := Decimate(pcm16, BackendRate/TelephonyRate, 2)
	ulaw := EncodeMulaw(narrow)
	if len(ulaw) == 0 {
		return pcm16, ContentTypePCM, false
	}
	return EncodeWAV(ulaw, TelephonyRate, 8, 1, CodecMulaw), ContentTypeWAV, true
}

// TelephonyToBackend converts a µ-law utterance from the call leg into the
// 16 kHz 16-bit little-endian PCM the vendor backends consume.
func TelephonyToBackend(ulaw []byte) []byte {
	pcm := DecodeMulaw(ulaw)
	return Upsample(pcm, BackendRate/TelephonyRate, 2)
}
