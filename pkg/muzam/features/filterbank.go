package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// ChromaBins is the number of pitch classes, C first.
	ChromaBins = 12
	// NumCepstra is the number of cepstral coefficients kept per frame.
	NumCepstra = 13

	melFloor = 1e-10
)

func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// chromaFilterbank spreads every bin above minFreq over its two nearest
// pitch classes with triangular weights one semitone wide.
func chromaFilterbank(sampleRate, nfft int, minFreq float64) [][]float64 {
	bins := nfft/2 + 1
	bank := make([][]float64, ChromaBins)
	for c := range bank {
		bank[c] = make([]float64, bins)
	}
	nyquist := float64(sampleRate) / 2
	for k := 1; k < bins; k++ {
		f := binFrequency(k, sampleRate, nfft)
		if f < minFreq || f > nyquist {
			continue
		}
		midi := 12*math.Log2(f/440.0) + 69
		pc := math.Mod(midi, ChromaBins)
		if pc < 0 {
			pc += ChromaBins
		}
		for c := 0; c < ChromaBins; c++ {
			d := math.Abs(pc - float64(c))
			if d > ChromaBins/2 {
				d = ChromaBins - d
			}
			if d < 1 {
				bank[c][k] = 1 - d
			}
		}
	}
	return bank
}

// melFilterbank builds numMels triangular filters spaced evenly on the
// mel scale between minFreq and maxFreq.
func melFilterbank(sampleRate, nfft, numMels int, minFreq, maxFreq float64) [][]float64 {
	bins := nfft/2 + 1
	if maxFreq <= 0 || maxFreq > float64(sampleRate)/2 {
		maxFreq = float64(sampleRate) / 2
	}
	lo, hi := hzToMel(minFreq), hzToMel(maxFreq)
	edges := make([]float64, numMels+2)
	for i := range edges {
		edges[i] = melToHz(lo + (hi-lo)*float64(i)/float64(numMels+1))
	}

	bank := make([][]float64, numMels)
	for m := 0; m < numMels; m++ {
		bank[m] = make([]float64, bins)
		lower, center, upper := edges[m], edges[m+1], edges[m+2]
		for k := 0; k < bins; k++ {
			f := binFrequency(k, sampleRate, nfft)
			switch {
			case f > lower && f < center:
				bank[m][k] = (f - lower) / (center - lower)
			case f >= center && f < upper:
				bank[m][k] = (upper - f) / (upper - center)
			}
		}
	}
	return bank
}

// dctBasis returns the orthonormal DCT-II rows used to turn log mel
// energies into cepstra.
func dctBasis(numCoeffs, numMels int) [][]float64 {
	basis := make([][]float64, numCoeffs)
	for i := 0; i < numCoeffs; i++ {
		basis[i] = make([]float64, numMels)
		scale := math.Sqrt(2.0 / float64(numMels))
		if i == 0 {
			scale = math.Sqrt(1.0 / float64(numMels))
		}
		for m := 0; m < numMels; m++ {
			basis[i][m] = scale * math.Cos(math.Pi*float64(i)*(float64(m)+0.5)/float64(numMels))
		}
	}
	return basis
}

// applyBank multiplies every filter row with spectrum.
func applyBank(bank [][]float64, spectrum []float64, dst []float64) {
	for i, row := range bank {
		dst[i] = floats.Dot(row, spectrum)
	}
}

// deltas computes first-order regression deltas over time, clamping frame
// indices at the edges.
func deltas(coeffs [][NumCepstra]float64, width int) [][NumCepstra]float64 {
	out := make([][NumCepstra]float64, len(coeffs))
	if len(coeffs) == 0 || width <= 0 {
		return out
	}
	denom := 0.0
	for n := 1; n <= width; n++ {
		denom += float64(n * n)
	}
	denom *= 2
	last := len(coeffs) - 1
	for t := range coeffs {
		for n := 1; n <= width; n++ {
			next, prev := t+n, t-n
			if next > last {
				next = last
			}
			if prev < 0 {
				prev = 0
			}
			for c := 0; c < NumCepstra; c++ {
				out[t][c] += float64(n) * (coeffs[next][c] - coeffs[prev][c])
			}
		}
		for c := 0; c < NumCepstra; c++ {
			out[t][c] /= denom
		}
	}
	return out
}
