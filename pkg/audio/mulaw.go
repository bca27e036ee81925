package audio

// ITU-T G.711 µ-law companding. The tables in the standard reduce to the
// bias/clip arithmetic below; output bytes are bit-compatible with other
// G.711 implementations, including the complemented encoding of digital
// silence (0 encodes to 0xFF).

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// LinearToMulaw compands a 16-bit linear PCM sample to one µ-law byte.
func LinearToMulaw(sample int16) byte {
	s := int32(sample)
	sign := int32(0)
	if s < 0 {
		sign = 0x80
		s = -s
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	exponent := int32(7)
	for mask := int32(0x4000); exponent > 0 && s&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := (s >> (exponent + 3)) & 0x0F
	return byte(^(sign | exponent<<4 | mantissa))
}

// MulawToLinear expands one µ-law byte to a 16-bit linear PCM sample.
func MulawToLinear(b byte) int16 {
	u := ^b
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F
	sample := ((int32(mantissa)<<3 + mulawBias) << exponent) - mulawBias
	if sign != 0 {
		sample = -sample
	}
	return int16(sample)
}

// EncodeMulaw compands a buffer of 16-bit little-endian PCM samples. A
// trailing odd byte is ignored.
func EncodeMulaw(pcm []byte) []byte {
	out := make([]byte, len(pcm)/2)
	for i := range out {
		sample := int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
		out[i] = LinearToMulaw(sample)
	}
	return out
}

// DecodeMulaw expands a µ-law buffer to 16-bit little-endian PCM.
func DecodeMulaw(ulaw []byte) []byte {
	out := make([]byte, len(ulaw)*2)
	for i, b := range ulaw {
		sample := MulawToLinear(b)
		out[2*i] = byte(sample)
		out[2*i+1] = byte(uint16(sample) >> 8)
	}
	return out
}
