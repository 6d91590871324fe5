package muzam

import (
	"context"
	"testing"
	"time"

	"github.com/himanishpuri/muzam/internal/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifyStream(t *testing.T) {
	// 40 hops per second keeps every window on the indexed frame grid
	const sampleRate = 20480
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	r := newTestRecognizer(t,
		WithSampleRate(sampleRate),
		WithStreamWindow(4*time.Second, 2*time.Second),
		WithStreamMinConfidence(0.5),
	)
	song := synth.Melody(5, 8, sampleRate)
	_, err := r.AddTrack(ctx, "song", song)
	require.NoError(t, err)

	chunks := make(chan []float64)
	go func() {
		defer close(chunks)
		for i := 0; i < len(song.Samples); i += sampleRate / 2 {
			end := min(i+sampleRate/2, len(song.Samples))
			select {
			case chunks <- song.Samples[i:end]:
			case <-ctx.Done():
				return
			}
		}
	}()

	var matches []StreamMatch
	for m := range r.IdentifyStream(ctx, chunks, sampleRate) {
		matches = append(matches, m)
	}

	require.NotEmpty(t, matches)
	for _, m := range matches {
		assert.Equal(t, "song", m.Result.TrackID)
		assert.GreaterOrEqual(t, m.Result.Confidence, 0.5)
		assert.Contains(t, []time.Duration{4 * time.Second, 6 * time.Second, 8 * time.Second}, m.At)
	}
	assert.Equal(t, 4*time.Second, matches[0].At)
}

func TestIdentifyStreamStopsOnCancel(t *testing.T) {
	r := newTestRecognizer(t)
	ctx, cancel := context.WithCancel(context.Background())
	chunks := make(chan []float64)

	out := r.IdentifyStream(ctx, chunks, 22050)
	cancel()

	select {
	case _, ok := <-out:
		assert.False(t, ok, "expected the match channel to close")
	case <-time.After(5 * time.Second):
		t.Fatal("IdentifyStream did not stop after cancel")
	}
}
