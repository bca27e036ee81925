package audio

import (
	"bytes"
	"testing"
)

func TestLinearToMulawKnownValues(t *testing.T) {
	tests := []struct {
		name   string
		sample int16
		want   byte
	}{
		{"zero is complemented silence", 0, 0xFF},
		{"max positive clips", 32767, 0x80},
		{"max negative clips", -32768, 0x00},
		{"small positive", 100, 0xF2},
		{"small negative", -100, 0x72},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LinearToMulaw(tt.sample); got != tt.want {
				t.Errorf("LinearToMulaw(%d) = %#x, want %#x", tt.sample, got, tt.want)
			}
		})
	}
}

func TestMulawRoundTripWithinQuantizationStep(t *testing.T) {
	// Error after encode+decode must stay within one quantization step of
	// the segment the sample falls in, i.e. 2^(exponent+3).
	for s := -32768; s <= 32767; s += 7 {
		sample := int16(s)
		b := LinearToMulaw(sample)
		got := MulawToLinear(b)

		u := ^b
		exponent := (u >> 4) & 0x07
		step := int32(1) << (exponent + 3)

		diff := int32(sample) - int32(got)
		if diff < 0 {
			diff = -diff
		}
		if diff > step {
			t.Fatalf("round trip %d -> %#x -> %d: error %d exceeds step %d", sample, b, got, diff, step)
		}
	}
}

func TestMulawDecodeEncodeStable(t *testing.T) {
	// Decoding a µ-law byte and re-encoding the result must reproduce the
	// byte for every code word. 0x7F is negative zero and collapses onto
	// the positive zero code 0xFF.
	for i := 0; i < 256; i++ {
		b := byte(i)
		want := b
		if b == 0x7F {
			want = 0xFF
		}
		if got := LinearToMulaw(MulawToLinear(b)); got != want {
			t.Errorf("re-encode of %#x produced %#x, want %#x", b, got, want)
		}
	}
}

func TestEncodeDecodeMulawBuffers(t *testing.T) {
	pcm := []byte{0x00, 0x00, 0x64, 0x00, 0x9C, 0xFF} // 0, 100, -100
	ulaw := EncodeMulaw(pcm)
	if want := []byte{0xFF, 0xF2, 0x72}; !bytes.Equal(ulaw, want) {
		t.Fatalf("EncodeMulaw = %#v, want %#v", ulaw, want)
	}
	if got := DecodeMulaw(ulaw); len(got) != 6 {
		t.Fatalf("DecodeMulaw length = %d, want 6", len(got))
	}

	if got := EncodeMulaw([]byte{0x01}); len(got) != 0 {
		t.Errorf("odd trailing byte should be ignored, got %d samples", len(got))
	}
	if got := EncodeMulaw(nil); len(got) != 0 {
		t.Errorf("EncodeMulaw(nil) = %v, want empty", got)
	}
}
