package audio

// Decimate downsamples raw audio by keeping every factor-th sample.
// N input samples at ratio k yield ceil(N/k) output samples. bytesPerSample
// must be 1 or 2 (8-bit codec bytes or 16-bit little-endian PCM); any other
// width, or a factor below 2, returns an unmodified copy of the input.
//
// No anti-aliasing filter is applied. At telephony bandwidth the backends
// produce little energy above 4 kHz, so plain decimation from 16 kHz is
// acceptable and keeps the hot path allocation-free beyond the output
// buffer.
func Decimate(data []byte, factor, bytesPerSample int) []byte {
	if factor < 2 || (bytesPerSample != 1 && bytesPerSample != 2) {
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}
	n := len(data) / bytesPerSample
	if n == 0 {
		return []byte{}
	}
	kept := (n + factor - 1) / factor
	out := make([]byte, 0, kept*bytesPerSample)
	for i := 0; i < n; i += factor {
		off := i * bytesPerSample
		out = append(out, data[off:off+bytesPerSample]...)
	}
	return out
}

// Upsample repeats every sample factor times. Used to stretch 8 kHz
// telephony PCM to the 16 kHz the vendor backends expect; sample
// duplication is audibly transparent for speech at these rates.
func Upsample(data []byte, factor, bytesPerSample int) []byte {
	if factor < 2 || (bytesPerSample != 1 && bytesPerSample != 2) {
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}
	n := len(data) / bytesPerSample
	out := make([]byte, 0, n*factor*bytesPerSample)
	for i := 0; i < n; i++ {
		off := i * bytesPerSample
		sample := data[off : off+bytesPerSample]
		for r := 0; r < factor; r++ {
			out = append(out, sample...)
		}
	}
	return out
}
