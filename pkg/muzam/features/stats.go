package features

import (
	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"
)

// SpectralCentroids returns the spectral centroid of every frameSize window
// of samples, advancing by hop.
func SpectralCentroids(samples []float64, sampleRate, frameSize, hop int) []float64 {
	count := FrameCount(len(samples), frameSize, hop)
	if count == 0 || sampleRate <= 0 {
		return nil
	}
	window := Hamming(frameSize)
	freqs := make([]float64, frameSize/2+1)
	for k := range freqs {
		freqs[k] = binFrequency(k, sampleRate, frameSize)
	}

	out := make([]float64, count)
	frame := make([]float64, frameSize)
	for i := 0; i < count; i++ {
		start := i * hop
		for j := range frame {
			frame[j] = samples[start+j] * window[j]
		}
		mag := MagnitudeSpectrum(fft.FFTReal(frame))
		if total := floats.Sum(mag); total > 0 {
			out[i] = floats.Dot(mag, freqs) / total
		}
	}
	return out
}

// ZeroCrossingRates returns the fraction of adjacent sample pairs that
// change sign in every frameSize window.
func ZeroCrossingRates(samples []float64, frameSize, hop int) []float64 {
	count := FrameCount(len(samples), frameSize, hop)
	if count == 0 || frameSize < 2 {
		return nil
	}
	out := make([]float64, count)
	for i := 0; i < count; i++ {
		frame := samples[i*hop : i*hop+frameSize]
		crossings := 0
		for j := 1; j < len(frame); j++ {
			if (frame[j-1] >= 0) != (frame[j] >= 0) {
				crossings++
			}
		}
		out[i] = float64(crossings) / float64(frameSize-1)
	}
	return out
}
