package matcher

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/himanishpuri/muzam/internal/indextest"
	"github.com/himanishpuri/muzam/pkg/models"
	"github.com/himanishpuri/muzam/pkg/muzam/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIndex struct {
	hits  []models.TrackHits
	err   error
	calls int
}

func (s *stubIndex) Lookup(ctx context.Context, values []string) ([]models.TrackHits, error) {
	s.calls++
	return s.hits, s.err
}

func tokens(n int) models.Fingerprint {
	values := make([]string, n)
	for i := range values {
		values[i] = fmt.Sprintf("%032x", i)
	}
	return indextest.Fingerprint(values...)
}

func newTestMatcher(t *testing.T, idx Index) *Matcher {
	t.Helper()
	m, err := New(idx, DefaultConfig())
	require.NoError(t, err)
	return m
}

func TestSearchEmptyFingerprint(t *testing.T) {
	idx := &stubIndex{}
	m := newTestMatcher(t, idx)

	results, err := m.Search(context.Background(), models.Fingerprint{}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NotNil(t, results)
	assert.Zero(t, idx.calls, "index must not be queried for an empty fingerprint")
}

func TestSearchMatchFloor(t *testing.T) {
	idx := &stubIndex{hits: []models.TrackHits{
		{TrackID: "below", MatchCount: 2, UniqueMatches: 2},
		{TrackID: "at", MatchCount: 3, UniqueMatches: 3},
	}}
	m := newTestMatcher(t, idx)

	results, err := m.Search(context.Background(), tokens(30), 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "at", results[0].TrackID)
}

func TestMinMatches(t *testing.T) {
	m := newTestMatcher(t, &stubIndex{})
	tests := []struct {
		total, expected int
	}{
		{0, 1},
		{5, 1},
		{19, 1},
		{20, 2},
		{30, 3},
		{70, 7},
		{621, 62},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, m.MinMatches(tt.total), "total %d", tt.total)
	}
}

func TestConfidence(t *testing.T) {
	m := newTestMatcher(t, &stubIndex{})
	tests := []struct {
		name                 string
		match, unique, total int
		expected             float64
	}{
		{"full unique overlap", 100, 100, 100, 1},
		{"half overlap", 50, 50, 100, 0.35 + 0.3},
		{"repeated collisions", 50, 5, 100, 0.35 + 0.03},
		{"capped", 300, 300, 100, 1},
		{"no query", 1, 1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, m.Confidence(tt.match, tt.unique, tt.total), 1e-12)
		})
	}
}

func TestSearchOrdering(t *testing.T) {
	idx := &stubIndex{hits: []models.TrackHits{
		{TrackID: "tie-first", MatchCount: 10, UniqueMatches: 4},
		{TrackID: "fewer", MatchCount: 8, UniqueMatches: 8},
		{TrackID: "more-unique", MatchCount: 10, UniqueMatches: 9},
		{TrackID: "tie-second", MatchCount: 10, UniqueMatches: 4},
		{TrackID: "most", MatchCount: 12, UniqueMatches: 1},
	}}
	m := newTestMatcher(t, idx)

	results, err := m.Search(context.Background(), tokens(20), 10)
	require.NoError(t, err)

	var order []string
	for _, r := range results {
		order = append(order, r.TrackID)
		assert.GreaterOrEqual(t, r.Confidence, 0.0)
		assert.LessOrEqual(t, r.Confidence, 1.0)
	}
	assert.Equal(t, []string{"most", "more-unique", "tie-first", "tie-second", "fewer"}, order)
}

func TestSearchTruncates(t *testing.T) {
	var hits []models.TrackHits
	for i := 0; i < 25; i++ {
		hits = append(hits, models.TrackHits{TrackID: fmt.Sprintf("t%02d", i), MatchCount: 5, UniqueMatches: 5})
	}
	m := newTestMatcher(t, &stubIndex{hits: hits})

	results, err := m.Search(context.Background(), tokens(10), 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	results, err = m.Search(context.Background(), tokens(10), 0)
	require.NoError(t, err)
	assert.Len(t, results, DefaultConfig().MaxResults)
}

func TestSearchFailed(t *testing.T) {
	cause := errors.New("disk on fire")
	m := newTestMatcher(t, &stubIndex{err: cause})

	results, err := m.Search(context.Background(), tokens(10), 5)
	assert.Nil(t, results)
	assert.ErrorIs(t, err, ErrSearchFailed)
	assert.ErrorIs(t, err, cause)
}

func TestSearchDeadlineIsSearchFailed(t *testing.T) {
	m := newTestMatcher(t, index.NewMemory())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Search(ctx, tokens(10), 5)
	assert.ErrorIs(t, err, ErrSearchFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchSelfMatch(t *testing.T) {
	ctx := context.Background()
	idx := index.NewMemory()
	query := tokens(200)
	require.NoError(t, idx.Insert(ctx, "other", tokens(40)))
	require.NoError(t, idx.Insert(ctx, "self", query))

	m := newTestMatcher(t, idx)
	results, err := m.Search(ctx, query, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	assert.Equal(t, "self", top.TrackID)
	assert.Equal(t, len(query.Tokens), top.MatchCount)
	assert.GreaterOrEqual(t, top.Confidence, 0.9)
	assert.Positive(t, int64(top.QueryTime))
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.MinMatchFraction = 1.5
	_, err = New(&stubIndex{}, cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.OverlapWeight, cfg.UniquenessWeight = 0, 0
	_, err = New(&stubIndex{}, cfg)
	assert.Error(t, err)
}
