// Package fingerprint derives hash-token fingerprints from feature frames.
package fingerprint

import (
	"fmt"
	"math"

	"github.com/himanishpuri/muzam/pkg/models"
	"github.com/himanishpuri/muzam/pkg/muzam/features"
)

// QualityWeights parameterize the advisory quality score.
type QualityWeights struct {
	Uniqueness     float64
	Coverage       float64
	CoverageTarget int // token count at which coverage saturates
}

type Config struct {
	Features   features.Config
	Digest     Digest
	DigestBits int
	Epsilon    float64 // added to the std before z-scoring
	Quality    QualityWeights
}

func DefaultConfig() Config {
	return Config{
		Features:   features.DefaultConfig(),
		Digest:     DigestXXHash,
		DigestBits: 128,
		Epsilon:    1e-8,
		Quality: QualityWeights{
			Uniqueness:     0.7,
			Coverage:       0.3,
			CoverageTarget: 100,
		},
	}
}

// Generator runs extraction and all three tokenization schemes.
type Generator struct {
	cfg       Config
	extractor *features.Extractor
	tokenizer *Tokenizer
}

func NewGenerator(cfg Config) (*Generator, error) {
	ex, err := features.NewExtractor(cfg.Features)
	if err != nil {
		return nil, err
	}
	tok, err := NewTokenizer(cfg.Digest, cfg.DigestBits, cfg.Features.HopSize, cfg.Epsilon)
	if err != nil {
		return nil, fmt.Errorf("invalid tokenizer config: %w", err)
	}
	if cfg.Quality.CoverageTarget <= 0 {
		return nil, fmt.Errorf("coverage target must be positive, got %d", cfg.Quality.CoverageTarget)
	}
	return &Generator{cfg: cfg, extractor: ex, tokenizer: tok}, nil
}

func (g *Generator) Extractor() *features.Extractor {
	return g.extractor
}

// Generate fingerprints buf. It fails only when buf is shorter than one
// analysis window.
func (g *Generator) Generate(buf models.AudioBuffer) (models.Fingerprint, error) {
	frames, err := g.extractor.Extract(buf)
	if err != nil {
		return models.Fingerprint{}, err
	}

	var tokens []models.HashToken
	for _, scheme := range models.Schemes {
		tokens = append(tokens, g.tokenizer.Tokenize(frames, scheme, buf.SampleRate)...)
	}

	return models.Fingerprint{
		Tokens:     tokens,
		Duration:   buf.Duration(),
		SampleRate: buf.SampleRate,
		Quality:    Quality(tokens, g.cfg.Quality),
		Algorithm:  models.AlgorithmHybrid,
	}, nil
}

// Quality rewards token diversity and penalizes short fingerprints.
func Quality(tokens []models.HashToken, w QualityWeights) float64 {
	if len(tokens) == 0 {
		return 0
	}
	unique := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		unique[tok.Value] = struct{}{}
	}
	total := float64(len(tokens))
	target := float64(w.CoverageTarget)
	if target <= 0 {
		target = 1
	}
	q := w.Uniqueness*float64(len(unique))/total + w.Coverage*math.Min(1, total/target)
	return math.Max(0, math.Min(1, q))
}
