package muzam

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/himanishpuri/muzam/internal/synth"
	"github.com/himanishpuri/muzam/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngest(t *testing.T) {
	ctx := context.Background()
	r := newTestRecognizer(t, WithWorkers(3))

	var jobs []IngestJob
	for i := 0; i < 5; i++ {
		jobs = append(jobs, IngestJob{
			TrackID: fmt.Sprintf("track-%d", i),
			Buffer:  synth.Melody(int64(i+1), 3, 22050),
		})
	}
	jobs = append(jobs,
		IngestJob{TrackID: "short", Buffer: models.AudioBuffer{Samples: make([]float64, 10), SampleRate: 22050}},
		IngestJob{TrackID: "unreadable", Load: func(context.Context) (models.AudioBuffer, error) {
			return models.AudioBuffer{}, errors.New("corrupt file")
		}},
		IngestJob{TrackID: "lazy", Load: func(context.Context) (models.AudioBuffer, error) {
			return synth.Melody(42, 3, 22050), nil
		}},
	)

	var seen []string
	results, err := r.Ingest(ctx, jobs, func(res IngestResult) {
		seen = append(seen, res.TrackID)
	})
	require.NoError(t, err)
	require.Len(t, results, len(jobs))
	assert.Len(t, seen, len(jobs))

	for i, res := range results {
		assert.Equal(t, jobs[i].TrackID, res.TrackID, "results must keep job order")
	}
	assert.ErrorIs(t, results[5].Err, ErrInsufficientAudio)
	assert.EqualError(t, results[6].Err, "corrupt file")
	for _, i := range []int{0, 1, 2, 3, 4, 7} {
		assert.NoError(t, results[i].Err)
		assert.False(t, results[i].Fingerprint.Empty())
	}

	stats, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Tracks)

	// each successful job is inserted exactly once
	top, err := r.Search(ctx, results[7].Fingerprint, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "lazy", top[0].TrackID)
	assert.Equal(t, len(results[7].Fingerprint.Tokens), top[0].MatchCount)
}

func TestIngestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newTestRecognizer(t)

	jobs := []IngestJob{
		{TrackID: "a", Buffer: synth.Melody(1, 2, 22050)},
		{TrackID: "b", Buffer: synth.Melody(2, 2, 22050)},
	}
	results, err := r.Ingest(ctx, jobs, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.ErrorIs(t, res.Err, context.Canceled)
	}

	stats, err := r.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Tracks)
}

func TestIngestEmpty(t *testing.T) {
	r := newTestRecognizer(t)
	results, err := r.Ingest(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
