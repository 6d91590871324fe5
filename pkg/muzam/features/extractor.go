// Package features turns a mono sample buffer into frame-aligned chroma,
// spectral-shape and cepstral feature vectors.
package features

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/himanishpuri/muzam/pkg/models"
	"gonum.org/v1/gonum/floats"
)

// ErrInsufficientAudio is returned when a buffer cannot fill one analysis window.
var ErrInsufficientAudio = errors.New("insufficient audio")

// Config holds the analysis parameters. Every field is a tunable with a
// recommended default in DefaultConfig.
type Config struct {
	WindowSize     int     // samples per frame
	HopSize        int     // samples between frame starts
	NumMels        int     // mel filters feeding the cepstrum
	MinMelFreq     float64 // Hz
	MaxMelFreq     float64 // Hz, 0 means Nyquist
	MinChromaFreq  float64 // Hz
	RolloffPercent float64 // fraction of magnitude mass below the rolloff
	DeltaWidth     int     // regression half-width for deltas
}

func DefaultConfig() Config {
	return Config{
		WindowSize:     4096,
		HopSize:        512,
		NumMels:        40,
		MinMelFreq:     0,
		MaxMelFreq:     0,
		MinChromaFreq:  27.5,
		RolloffPercent: 0.85,
		DeltaWidth:     2,
	}
}

// Validate checks the config for values the extractor cannot work with.
func (c Config) Validate() error {
	switch {
	case c.WindowSize < 2:
		return fmt.Errorf("window size must be at least 2, got %d", c.WindowSize)
	case c.HopSize <= 0:
		return fmt.Errorf("hop size must be positive, got %d", c.HopSize)
	case c.HopSize > c.WindowSize:
		return fmt.Errorf("hop size %d exceeds window size %d", c.HopSize, c.WindowSize)
	case c.NumMels < NumCepstra:
		return fmt.Errorf("need at least %d mel filters, got %d", NumCepstra, c.NumMels)
	case c.RolloffPercent <= 0 || c.RolloffPercent > 1:
		return fmt.Errorf("rolloff percent must be in (0, 1], got %g", c.RolloffPercent)
	case c.DeltaWidth < 1:
		return fmt.Errorf("delta width must be positive, got %d", c.DeltaWidth)
	}
	return nil
}

// Frame is the feature set of one analysis window.
type Frame struct {
	Index  int
	Chroma [ChromaBins]float64
	// Shape is centroid, rolloff and bandwidth in Hz.
	Shape [3]float64
	MFCC  [NumCepstra]float64
	Delta [NumCepstra]float64
}

type filterbanks struct {
	chroma [][]float64
	mel    [][]float64
	dct    [][]float64
	freqs  []float64
}

// Extractor is safe for concurrent use. Filterbanks are built lazily per
// sample rate and shared.
type Extractor struct {
	cfg    Config
	window []float64
	banks  sync.Map // int -> *filterbanks
}

func NewExtractor(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid feature config: %w", err)
	}
	return &Extractor{cfg: cfg, window: Hamming(cfg.WindowSize)}, nil
}

func (e *Extractor) Config() Config {
	return e.cfg
}

func (e *Extractor) filterbanks(sampleRate int) *filterbanks {
	if fb, ok := e.banks.Load(sampleRate); ok {
		return fb.(*filterbanks)
	}
	n := e.cfg.WindowSize
	fb := &filterbanks{
		chroma: chromaFilterbank(sampleRate, n, e.cfg.MinChromaFreq),
		mel:    melFilterbank(sampleRate, n, e.cfg.NumMels, e.cfg.MinMelFreq, e.cfg.MaxMelFreq),
		dct:    dctBasis(NumCepstra, e.cfg.NumMels),
		freqs:  make([]float64, n/2+1),
	}
	for k := range fb.freqs {
		fb.freqs[k] = binFrequency(k, sampleRate, n)
	}
	actual, _ := e.banks.LoadOrStore(sampleRate, fb)
	return actual.(*filterbanks)
}

// Extract computes one Frame per analysis window of buf.
func (e *Extractor) Extract(buf models.AudioBuffer) ([]Frame, error) {
	if buf.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrInsufficientAudio, buf.SampleRate)
	}
	if len(buf.Samples) < e.cfg.WindowSize {
		return nil, fmt.Errorf("%w: %d samples, need at least %d", ErrInsufficientAudio, len(buf.Samples), e.cfg.WindowSize)
	}

	spectra, err := STFT(Normalize(buf.Samples), e.cfg.WindowSize, e.cfg.HopSize, e.window)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientAudio, err)
	}
	fb := e.filterbanks(buf.SampleRate)

	frames := make([]Frame, len(spectra))
	cepstra := make([][NumCepstra]float64, len(spectra))
	power := make([]float64, e.cfg.WindowSize/2+1)
	mel := make([]float64, e.cfg.NumMels)

	for i, mag := range spectra {
		for k, m := range mag {
			power[k] = m * m
		}

		f := &frames[i]
		f.Index = i
		e.chroma(fb, power, &f.Chroma)
		f.Shape = spectralShape(mag, fb.freqs, e.cfg.RolloffPercent)

		applyBank(fb.mel, power, mel)
		for m := range mel {
			mel[m] = math.Log(mel[m] + melFloor)
		}
		for c := 0; c < NumCepstra; c++ {
			f.MFCC[c] = floats.Dot(fb.dct[c], mel)
		}
		cepstra[i] = f.MFCC
	}

	for i, d := range deltas(cepstra, e.cfg.DeltaWidth) {
		frames[i].Delta = d
	}
	return frames, nil
}

func (e *Extractor) chroma(fb *filterbanks, power []float64, dst *[ChromaBins]float64) {
	applyBank(fb.chroma, power, dst[:])
	peak := floats.Max(dst[:])
	if peak <= 0 {
		return
	}
	floats.Scale(1/peak, dst[:])
}

// Normalize returns a copy of samples with the mean removed and the peak
// scaled to 1. Silent input stays all zero.
func Normalize(samples []float64) []float64 {
	out := make([]float64, len(samples))
	if len(samples) == 0 {
		return out
	}
	mean := floats.Sum(samples) / float64(len(samples))
	peak := 0.0
	for i, s := range samples {
		out[i] = s - mean
		if a := math.Abs(out[i]); a > peak {
			peak = a
		}
	}
	if peak > 0 {
		floats.Scale(1/peak, out)
	}
	return out
}

// spectralShape returns centroid, rolloff and bandwidth of one magnitude
// spectrum. A silent frame yields zeros.
func spectralShape(mag, freqs []float64, rolloffPercent float64) [3]float64 {
	total := floats.Sum(mag)
	if total <= 0 {
		return [3]float64{}
	}
	centroid := floats.Dot(mag, freqs) / total

	rolloff := freqs[len(freqs)-1]
	threshold := rolloffPercent * total
	cum := 0.0
	for k, m := range mag {
		cum += m
		if cum >= threshold {
			rolloff = freqs[k]
			break
		}
	}

	spread := 0.0
	for k, m := range mag {
		d := freqs[k] - centroid
		spread += m * d * d
	}
	return [3]float64{centroid, rolloff, math.Sqrt(spread / total)}
}
