package audio

// Mix sums two tracks sample by sample. The result is as long as the longer input.
func Mix(a, b []int16) []int16 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]int16, n)
	copy(out, a)
	MixInto(out, b, 0)
	return out
}

// MixInto adds src into dst starting at offset, clamping each sum.
// Samples past the end of dst are dropped.
func MixInto(dst, src []int16, offset int) {
	if offset < 0 {
		src = src[min(-offset, len(src)):]
		offset = 0
	}
	for i := 0; i < len(src) && offset+i < len(dst); i++ {
		dst[offset+i] = ClampPCM(int32(dst[offset+i]) + int32(src[i]))
	}
}

func ClampPCM(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// Resample converts mono PCM between sample rates with linear interpolation.
func Resample(samples []int16, from, to int) []int16 {
	if from == to || len(samples) == 0 || from <= 0 || to <= 0 {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]int16, n)
	step := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		v := float64(samples[idx])*(1-frac) + float64(samples[idx+1])*frac
		out[i] = ClampPCM(int32(v))
	}
	return out
}
