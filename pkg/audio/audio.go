// Package audio provides the codec transforms between the telephony leg
// (8 kHz, 8-bit µ-law, mono) and the vendor-backend leg (16 kHz, 16-bit
// linear PCM, mono) of the gateway, plus a minimal WAV container
// encoder/parser.
//
// All functions are stateless and deterministic: the same input always
// produces the same output, inputs are never mutated, and zero-length
// input yields zero-length output. Nothing in this package panics on
// malformed data. The pipeline helpers report failures to the caller and
// hand the original bytes back so a live call is never dropped over a
// codec hiccup.
package audio

// Encoding tags the byte layout of an audio payload.
type Encoding string

const (
	// EncodingMulaw is 8-bit G.711 µ-law, the telephony-leg format.
	EncodingMulaw Encoding = "ulaw"

	// EncodingPCM16 is 16-bit little-endian linear PCM, the backend-leg format.
	EncodingPCM16 Encoding = "pcm16"
)

const (
	// TelephonyRate is the sample rate of the inbound call leg in Hz.
	TelephonyRate = 8000

	// BackendRate is the sample rate vendor backends expect in Hz.
	BackendRate = 16000

	// FrameSamples is the number of samples in one 20 ms telephony frame.
	// Silence classification operates on frames of this size to bound
	// detection latency.
	FrameSamples = 160
)
