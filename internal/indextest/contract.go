// Package indextest holds the behaviour every Fingerprint Index backend
// must share.
package indextest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/himanishpuri/muzam/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Index is the backend surface under test.
type Index interface {
	Insert(ctx context.Context, trackID string, fp models.Fingerprint) error
	Lookup(ctx context.Context, values []string) ([]models.TrackHits, error)
	Remove(ctx context.Context, trackID string) (int, error)
	Stats(ctx context.Context) (models.IndexStats, error)
	Close() error
}

// Fingerprint builds a fingerprint whose tokens carry the given values.
func Fingerprint(values ...string) models.Fingerprint {
	fp := models.Fingerprint{Algorithm: models.AlgorithmHybrid, SampleRate: 22050}
	for i, v := range values {
		fp.Tokens = append(fp.Tokens, models.HashToken{
			Value:      v,
			TimeOffset: float64(i) * 512 / 22050,
			Scheme:     models.Schemes[i%len(models.Schemes)],
		})
	}
	return fp
}

// Run exercises open against the shared contract. open must return a fresh,
// empty index for every call.
func Run(t *testing.T, open func(t *testing.T) Index) {
	t.Run("EmptyQuery", func(t *testing.T) { testEmptyQuery(t, open(t)) })
	t.Run("AppendOnlyCounts", func(t *testing.T) { testAppendOnlyCounts(t, open(t)) })
	t.Run("RemoveAndStats", func(t *testing.T) { testRemoveAndStats(t, open(t)) })
	t.Run("RejectsBadInput", func(t *testing.T) { testRejectsBadInput(t, open(t)) })
	t.Run("AtomicInsertUnderLookups", func(t *testing.T) { testAtomicInsert(t, open(t)) })
	t.Run("LongTrack", func(t *testing.T) {
		if testing.Short() {
			t.Skip("long track insert skipped in short mode")
		}
		testLongTrack(t, open(t))
	})
}

// LongTrackTokens is roughly 26 minutes of audio at 22050 Hz, hop 512.
const LongTrackTokens = 200_000

func testLongTrack(t *testing.T, idx Index) {
	ctx := context.Background()
	values := make([]string, LongTrackTokens)
	for i := range values {
		values[i] = fmt.Sprintf("%032x", i)
	}
	require.NoError(t, idx.Insert(ctx, "long", Fingerprint(values...)))
	require.NoError(t, idx.Insert(ctx, "short", Fingerprint(values[:10]...)))

	hits, err := idx.Lookup(ctx, values)
	require.NoError(t, err)
	require.Equal(t, []models.TrackHits{
		{TrackID: "long", MatchCount: LongTrackTokens, UniqueMatches: LongTrackTokens},
		{TrackID: "short", MatchCount: 10, UniqueMatches: 10},
	}, hits)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.IndexStats{Tracks: 2, Postings: LongTrackTokens + 10, DistinctHashes: LongTrackTokens}, stats)
}

func testEmptyQuery(t *testing.T, idx Index) {
	ctx := context.Background()
	require.NoError(t, idx.Insert(ctx, "a", Fingerprint("x")))

	hits, err := idx.Lookup(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Lookup(ctx, []string{"missing"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func testAppendOnlyCounts(t *testing.T, idx Index) {
	ctx := context.Background()
	require.NoError(t, idx.Insert(ctx, "track-a", Fingerprint("x", "x", "y")))
	require.NoError(t, idx.Insert(ctx, "track-b", Fingerprint("y", "z")))

	hits, err := idx.Lookup(ctx, []string{"x", "y"})
	require.NoError(t, err)
	require.Equal(t, []models.TrackHits{
		{TrackID: "track-a", MatchCount: 3, UniqueMatches: 2},
		{TrackID: "track-b", MatchCount: 1, UniqueMatches: 1},
	}, hits)

	// duplicate query values count once
	again, err := idx.Lookup(ctx, []string{"x", "y", "x"})
	require.NoError(t, err)
	assert.Equal(t, hits, again)

	// re-inserting appends postings and keeps catalog order
	require.NoError(t, idx.Insert(ctx, "track-a", Fingerprint("x", "x", "y")))
	hits, err = idx.Lookup(ctx, []string{"x", "y", "z"})
	require.NoError(t, err)
	require.Equal(t, []models.TrackHits{
		{TrackID: "track-a", MatchCount: 6, UniqueMatches: 2},
		{TrackID: "track-b", MatchCount: 2, UniqueMatches: 2},
	}, hits)
}

func testRemoveAndStats(t *testing.T, idx Index) {
	ctx := context.Background()
	require.NoError(t, idx.Insert(ctx, "track-a", Fingerprint("x", "x", "y")))
	require.NoError(t, idx.Insert(ctx, "track-b", Fingerprint("y", "z")))
	require.NoError(t, idx.Insert(ctx, "track-empty", Fingerprint()))

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.IndexStats{Tracks: 2, Postings: 5, DistinctHashes: 3}, stats)

	removed, err := idx.Remove(ctx, "track-a")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	hits, err := idx.Lookup(ctx, []string{"x", "y"})
	require.NoError(t, err)
	require.Equal(t, []models.TrackHits{{TrackID: "track-b", MatchCount: 1, UniqueMatches: 1}}, hits)

	stats, err = idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.IndexStats{Tracks: 1, Postings: 2, DistinctHashes: 2}, stats)
}

func testRejectsBadInput(t *testing.T, idx Index) {
	ctx := context.Background()
	assert.Error(t, idx.Insert(ctx, "", Fingerprint("x")))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := idx.Lookup(cancelled, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func testAtomicInsert(t *testing.T, idx Index) {
	ctx := context.Background()
	const tracks = 1000
	for i := 0; i < tracks; i++ {
		values := make([]string, 4)
		for j := range values {
			values[j] = fmt.Sprintf("%032x", i*4+j)
		}
		require.NoError(t, idx.Insert(ctx, fmt.Sprintf("track-%04d", i), Fingerprint(values...)))
	}

	known := make([]string, 300)
	for i := range known {
		known[i] = fmt.Sprintf("known-%026x", i)
	}
	query := append([]string{fmt.Sprintf("%032x", 0)}, known...)

	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := 0; i < 20; i++ {
				hits, err := idx.Lookup(ctx, query)
				if err != nil {
					errs <- err
					return
				}
				for _, h := range hits {
					if h.TrackID == "known" && (h.MatchCount != len(known) || h.UniqueMatches != len(known)) {
						errs <- fmt.Errorf("partial insert visible: %+v", h)
						return
					}
				}
			}
		}()
	}

	close(start)
	require.NoError(t, idx.Insert(ctx, "known", Fingerprint(known...)))
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	hits, err := idx.Lookup(ctx, known)
	require.NoError(t, err)
	require.Equal(t, []models.TrackHits{{TrackID: "known", MatchCount: len(known), UniqueMatches: len(known)}}, hits)
}
