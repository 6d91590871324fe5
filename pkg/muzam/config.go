package muzam

import (
	"errors"
	"fmt"
	"time"

	"github.com/himanishpuri/muzam/pkg/muzam/fingerprint"
	"github.com/himanishpuri/muzam/pkg/muzam/matcher"
	"github.com/himanishpuri/muzam/pkg/muzam/rerank"
)

// Config collects every tunable of a Recognizer. Component configs are
// embedded as-is so a caller can reach any field through an Option.
type Config struct {
	Fingerprint fingerprint.Config
	Matcher     matcher.Config

	// SampleRate is the rate audio is decoded to before fingerprinting.
	SampleRate int
	// DBPath opens a storage.Store as index, catalog and history when no
	// Index is supplied. Empty means an in-memory index.
	DBPath string

	Index    Index
	Catalog  Catalog
	Reranker rerank.Reranker
	History  HistoryRecorder
	Logger   Logger

	// Workers bounds the fingerprinting goroutines used by Ingest.
	Workers int

	StreamWindow        time.Duration
	StreamStep          time.Duration
	StreamMinConfidence float64
}

type Option func(*Config)

func WithWindowSize(n int) Option {
	return func(c *Config) {
		c.Fingerprint.Features.WindowSize = n
	}
}

func WithHopSize(n int) Option {
	return func(c *Config) {
		c.Fingerprint.Features.HopSize = n
	}
}

func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

// WithDigest selects the token digest and how many bits of it are kept.
func WithDigest(d fingerprint.Digest, bits int) Option {
	return func(c *Config) {
		c.Fingerprint.Digest = d
		c.Fingerprint.DigestBits = bits
	}
}

func WithQualityWeights(w fingerprint.QualityWeights) Option {
	return func(c *Config) {
		c.Fingerprint.Quality = w
	}
}

func WithMinMatchFraction(f float64) Option {
	return func(c *Config) {
		c.Matcher.MinMatchFraction = f
	}
}

func WithConfidenceWeights(overlap, uniqueness float64) Option {
	return func(c *Config) {
		c.Matcher.OverlapWeight = overlap
		c.Matcher.UniquenessWeight = uniqueness
	}
}

func WithMaxResults(n int) Option {
	return func(c *Config) {
		c.Matcher.MaxResults = n
	}
}

// WithIndex supplies the posting index. The Recognizer does not close an
// index it was given.
func WithIndex(idx Index) Option {
	return func(c *Config) {
		c.Index = idx
	}
}

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithCatalog(cat Catalog) Option {
	return func(c *Config) {
		c.Catalog = cat
	}
}

func WithReranker(r rerank.Reranker) Option {
	return func(c *Config) {
		c.Reranker = r
	}
}

func WithHistory(h HistoryRecorder) Option {
	return func(c *Config) {
		c.History = h
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

// WithStreamWindow sets how much audio IdentifyStream analyses at once and
// how far the window advances between attempts.
func WithStreamWindow(window, step time.Duration) Option {
	return func(c *Config) {
		c.StreamWindow = window
		c.StreamStep = step
	}
}

func WithStreamMinConfidence(f float64) Option {
	return func(c *Config) {
		c.StreamMinConfidence = f
	}
}

func defaultConfig() *Config {
	return &Config{
		Fingerprint:         fingerprint.DefaultConfig(),
		Matcher:             matcher.DefaultConfig(),
		SampleRate:          22050,
		Workers:             4,
		StreamWindow:        10 * time.Second,
		StreamStep:          5 * time.Second,
		StreamMinConfidence: 0.7,
	}
}

// Validate reports the first setting a Recognizer cannot run with.
func (c *Config) Validate() error {
	if err := c.Fingerprint.Features.Validate(); err != nil {
		return err
	}
	if err := c.Matcher.Validate(); err != nil {
		return err
	}
	q := c.Fingerprint.Quality
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	case q.Uniqueness < 0 || q.Coverage < 0:
		return fmt.Errorf("quality weights must be non-negative, got %g/%g", q.Uniqueness, q.Coverage)
	case c.Workers <= 0:
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	case c.StreamWindow <= 0 || c.StreamStep <= 0:
		return errors.New("stream window and step must be positive")
	case c.StreamStep > c.StreamWindow:
		return fmt.Errorf("stream step %s exceeds window %s", c.StreamStep, c.StreamWindow)
	case c.StreamMinConfidence < 0 || c.StreamMinConfidence > 1:
		return fmt.Errorf("stream min confidence must be in [0, 1], got %g", c.StreamMinConfidence)
	}
	return nil
}
