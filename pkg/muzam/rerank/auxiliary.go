package rerank

import (
	"sort"

	"github.com/himanishpuri/muzam/pkg/models"
	"github.com/himanishpuri/muzam/pkg/muzam/features"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// AuxFeatureCount is the length of the vector built by ExtractAuxiliary.
	AuxFeatureCount = 9

	auxFrameSize  = 2048
	auxHopSize    = 512
	auxMinSamples = 1024
)

// ExtractAuxiliary summarizes buf as waveform mean, std, max, min and
// median followed by the mean and std of the per-frame spectral centroid
// and zero-crossing rate. Very short buffers give a zero vector.
func ExtractAuxiliary(buf models.AudioBuffer) models.FeatureVector {
	out := make(models.FeatureVector, AuxFeatureCount)
	x := buf.Samples
	if len(x) <= auxMinSamples {
		return out
	}

	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)

	out[0], out[1] = stat.PopMeanStdDev(x, nil)
	out[2] = floats.Max(x)
	out[3] = floats.Min(x)
	out[4] = stat.Quantile(0.5, stat.Empirical, sorted, nil)

	frame := min(auxFrameSize, len(x))
	if c := features.SpectralCentroids(x, buf.SampleRate, frame, auxHopSize); len(c) > 0 {
		out[5], out[6] = stat.PopMeanStdDev(c, nil)
	}
	if z := features.ZeroCrossingRates(x, frame, auxHopSize); len(z) > 0 {
		out[7], out[8] = stat.PopMeanStdDev(z, nil)
	}
	return out
}
