// Package matcher scores and ranks catalog tracks against a query
// fingerprint.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/himanishpuri/muzam/pkg/models"
)

// ErrSearchFailed wraps every failure of the underlying index.
var ErrSearchFailed = errors.New("search failed")

// Index is the lookup half of a Fingerprint Index.
type Index interface {
	Lookup(ctx context.Context, values []string) ([]models.TrackHits, error)
}

type Config struct {
	// MinMatchFraction is the share of query tokens a track must hit to be
	// reported at all. The floor is never below one posting.
	MinMatchFraction float64
	// OverlapWeight and UniquenessWeight combine raw overlap and the
	// distinct-hash share of that overlap into the confidence.
	OverlapWeight    float64
	UniquenessWeight float64
	MaxResults       int
}

func DefaultConfig() Config {
	return Config{
		MinMatchFraction: 0.1,
		OverlapWeight:    0.7,
		UniquenessWeight: 0.3,
		MaxResults:       10,
	}
}

func (c Config) Validate() error {
	switch {
	case c.MinMatchFraction < 0 || c.MinMatchFraction > 1:
		return fmt.Errorf("min match fraction must be in [0, 1], got %g", c.MinMatchFraction)
	case c.OverlapWeight < 0 || c.UniquenessWeight < 0:
		return fmt.Errorf("confidence weights must be non-negative, got %g/%g", c.OverlapWeight, c.UniquenessWeight)
	case c.OverlapWeight+c.UniquenessWeight == 0:
		return errors.New("confidence weights must not both be zero")
	case c.MaxResults <= 0:
		return fmt.Errorf("max results must be positive, got %d", c.MaxResults)
	}
	return nil
}

type Matcher struct {
	cfg   Config
	index Index
}

func New(index Index, cfg Config) (*Matcher, error) {
	if index == nil {
		return nil, errors.New("matcher needs an index")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matcher config: %w", err)
	}
	return &Matcher{cfg: cfg, index: index}, nil
}

// MinMatches is the smallest match count a track needs for a query of
// total tokens.
func (m *Matcher) MinMatches(total int) int {
	floor := int(math.Floor(float64(total)*m.cfg.MinMatchFraction + 1e-9))
	if floor < 1 {
		return 1
	}
	return floor
}

// Confidence scores one track's hits against a query of total tokens.
func (m *Matcher) Confidence(matchCount, uniqueMatches, total int) float64 {
	if total <= 0 {
		return 0
	}
	overlap := float64(matchCount) / float64(total)
	uniqueness := float64(uniqueMatches) / float64(max(matchCount, 1))
	return math.Min(1, m.cfg.OverlapWeight*overlap+m.cfg.UniquenessWeight*uniqueness)
}

// Search ranks catalog tracks for fp, best first. maxResults <= 0 uses the
// configured default. An empty fingerprint yields no results and no error.
func (m *Matcher) Search(ctx context.Context, fp models.Fingerprint, maxResults int) ([]models.RecognitionResult, error) {
	start := time.Now()
	values := fp.Values()
	if len(values) == 0 {
		return []models.RecognitionResult{}, nil
	}
	if maxResults <= 0 {
		maxResults = m.cfg.MaxResults
	}

	hits, err := m.index.Lookup(ctx, values)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}

	total := len(fp.Tokens)
	floor := m.MinMatches(total)
	results := make([]models.RecognitionResult, 0, len(hits))
	for _, h := range hits {
		if h.MatchCount < floor {
			continue
		}
		results = append(results, models.RecognitionResult{
			TrackID:       h.TrackID,
			MatchCount:    h.MatchCount,
			UniqueMatches: h.UniqueMatches,
			Confidence:    m.Confidence(h.MatchCount, h.UniqueMatches, total),
		})
	}

	// Ties on both counts keep the index's catalog order.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].MatchCount != results[j].MatchCount {
			return results[i].MatchCount > results[j].MatchCount
		}
		return results[i].UniqueMatches > results[j].UniqueMatches
	})
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	elapsed := time.Since(start)
	for i := range results {
		results[i].QueryTime = elapsed
	}
	return results, nil
}
