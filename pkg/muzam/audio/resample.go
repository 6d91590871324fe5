package audio

// Resample converts samples from one rate to another by linear
// interpolation.
func Resample(samples []float64, from, to int) []float64 {
	if from <= 0 || to <= 0 || from == to || len(samples) == 0 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float64, n)
	ratio := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}
