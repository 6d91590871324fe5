package features

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// Hamming returns a symmetric Hamming window of length n.
func Hamming(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := 0; i < n; i++ {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// MagnitudeSpectrum keeps the non-negative frequency half of a real FFT,
// Nyquist bin included.
func MagnitudeSpectrum(spectrum []complex128) []float64 {
	half := len(spectrum)/2 + 1
	if half > len(spectrum) {
		half = len(spectrum)
	}
	mag := make([]float64, half)
	for i := 0; i < half; i++ {
		mag[i] = cmplx.Abs(spectrum[i])
	}
	return mag
}

// FrameCount is the number of whole windows that fit in n samples.
func FrameCount(n, windowSize, hopSize int) int {
	if n < windowSize || windowSize <= 0 || hopSize <= 0 {
		return 0
	}
	return (n-windowSize)/hopSize + 1
}

// STFT returns one magnitude spectrum per frame. Frames are not padded, so
// the last partial window is dropped.
func STFT(samples []float64, windowSize, hopSize int, window []float64) ([][]float64, error) {
	if len(window) != windowSize {
		return nil, errors.New("window length must equal windowSize")
	}
	if len(samples) < windowSize {
		return nil, errors.New("input shorter than window size")
	}

	count := FrameCount(len(samples), windowSize, hopSize)
	spectrogram := make([][]float64, 0, count)
	frame := make([]float64, windowSize)
	for i := 0; i < count; i++ {
		start := i * hopSize
		for j := 0; j < windowSize; j++ {
			frame[j] = samples[start+j] * window[j]
		}
		spectrogram = append(spectrogram, MagnitudeSpectrum(fft.FFTReal(frame)))
	}
	return spectrogram, nil
}

// binFrequency maps an FFT bin index to Hz.
func binFrequency(bin, sampleRate, nfft int) float64 {
	return float64(bin) * float64(sampleRate) / float64(nfft)
}
