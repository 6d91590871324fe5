package models

import "time"

// AudioBuffer holds normalized mono samples in [-1, 1] at a fixed sample rate.
type AudioBuffer struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the buffer length in seconds.
func (b AudioBuffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Scheme identifies which feature family produced a hash token.
type Scheme uint8

const (
	SchemeChroma Scheme = iota
	SchemeSpectral
	SchemeCepstral
)

// Schemes lists every scheme in fingerprint concatenation order.
var Schemes = []Scheme{SchemeChroma, SchemeSpectral, SchemeCepstral}

func (s Scheme) String() string {
	switch s {
	case SchemeChroma:
		return "chroma"
	case SchemeSpectral:
		return "spectral"
	case SchemeCepstral:
		return "cepstral"
	default:
		return "unknown"
	}
}

// HashToken is one fixed-width digest tagged with the start time of the
// frame pair it was derived from.
type HashToken struct {
	Value      string  // hex digest
	TimeOffset float64 // seconds
	Scheme     Scheme
}

// AlgorithmHybrid names fingerprints built from all three schemes.
const AlgorithmHybrid = "hybrid"

// Fingerprint is the catalog-ready artifact for one clip. It is not
// modified after it has been built.
type Fingerprint struct {
	Tokens     []HashToken
	Duration   float64 // seconds
	SampleRate int
	Quality    float64 // [0, 1]
	Algorithm  string
}

// Empty reports whether the fingerprint carries no tokens.
func (f Fingerprint) Empty() bool {
	return len(f.Tokens) == 0
}

// Values returns the distinct token values in first-seen order.
func (f Fingerprint) Values() []string {
	seen := make(map[string]struct{}, len(f.Tokens))
	values := make([]string, 0, len(f.Tokens))
	for _, tok := range f.Tokens {
		if _, ok := seen[tok.Value]; ok {
			continue
		}
		seen[tok.Value] = struct{}{}
		values = append(values, tok.Value)
	}
	return values
}

// RecognitionResult is one ranked candidate for a query.
type RecognitionResult struct {
	TrackID       string
	MatchCount    int // postings hit, repeats included
	UniqueMatches int // distinct hash values hit
	Confidence    float64
	QueryTime     time.Duration
}

// FeatureVector carries auxiliary low-level statistics of a query clip.
type FeatureVector []float64
