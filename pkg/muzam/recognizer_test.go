package muzam

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/himanishpuri/muzam/internal/synth"
	"github.com/himanishpuri/muzam/pkg/models"
	"github.com/himanishpuri/muzam/pkg/muzam/fingerprint"
	"github.com/himanishpuri/muzam/pkg/muzam/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
func (nopLogger) Debugf(string, ...any) {}

func newTestRecognizer(t *testing.T, opts ...Option) *Recognizer {
	t.Helper()
	opts = append([]Option{WithLogger(nopLogger{})}, opts...)
	r, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"hop above window", WithHopSize(8192)},
		{"zero window", WithWindowSize(0)},
		{"bad fraction", WithMinMatchFraction(1.5)},
		{"negative weight", WithConfidenceWeights(-1, 0.3)},
		{"bad digest width", WithDigest(fingerprint.DigestMD5, 200)},
		{"zero sample rate", WithSampleRate(0)},
		{"no workers", WithWorkers(0)},
		{"step above window", WithStreamWindow(time.Second, 2*time.Second)},
		{"bad stream confidence", WithStreamMinConfidence(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(WithLogger(nopLogger{}), tt.opt)
			assert.Error(t, err)
		})
	}
}

func TestSelfMatch(t *testing.T) {
	ctx := context.Background()
	r := newTestRecognizer(t)

	song := synth.Melody(1, 5, 22050)
	fp, err := r.AddTrack(ctx, "song", song)
	require.NoError(t, err)
	_, err = r.AddTrack(ctx, "other", synth.Melody(2, 5, 22050))
	require.NoError(t, err)

	results, err := r.Identify(ctx, song)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	assert.Equal(t, "song", top.TrackID)
	assert.Equal(t, len(fp.Tokens), top.MatchCount)
	assert.GreaterOrEqual(t, top.Confidence, 0.7)
	want := 0.7 + 0.3*float64(top.UniqueMatches)/float64(top.MatchCount)
	assert.InDelta(t, min(1, want), top.Confidence, 1e-9)
}

func TestNoisyQueryStillMatches(t *testing.T) {
	ctx := context.Background()
	r := newTestRecognizer(t)

	clean := synth.Melody(7, 5, 22050)
	_, err := r.AddTrack(ctx, "clean", clean)
	require.NoError(t, err)
	_, err = r.AddTrack(ctx, "other", synth.Melody(8, 5, 22050))
	require.NoError(t, err)

	// a short burst far below the signal level
	noisy := synth.Perturb(clean, 40000, 100, 0.005, 99)
	top, err := r.BestMatch(ctx, noisy)
	require.NoError(t, err)
	require.NotNil(t, top)
	assert.Equal(t, "clean", top.TrackID)
	assert.GreaterOrEqual(t, top.Confidence, 0.5)
}

func TestSineSelfMatch(t *testing.T) {
	ctx := context.Background()
	r := newTestRecognizer(t)

	sine := synth.Sine(440, 0.5, 5, 22050)
	fp, err := r.AddTrack(ctx, "sine", sine)
	require.NoError(t, err)
	assert.Less(t, fp.Quality, 0.4)

	top, err := r.BestMatch(ctx, sine)
	require.NoError(t, err)
	require.NotNil(t, top)
	assert.Equal(t, "sine", top.TrackID)
	assert.Equal(t, len(fp.Tokens), top.MatchCount)
	assert.GreaterOrEqual(t, top.Confidence, 0.7)
}

func TestIdentifyErrors(t *testing.T) {
	ctx := context.Background()
	r := newTestRecognizer(t)

	_, err := r.Identify(ctx, models.AudioBuffer{Samples: make([]float64, 100), SampleRate: 22050})
	assert.ErrorIs(t, err, ErrInsufficientAudio)

	// one frame gives no frame pairs, so no tokens
	_, err = r.Identify(ctx, models.AudioBuffer{Samples: synth.Sine(440, 0.5, 1, 22050).Samples[:4096], SampleRate: 22050})
	assert.ErrorIs(t, err, ErrEmptyFingerprint)

	results, err := r.Search(ctx, models.Fingerprint{}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

type failingIndex struct {
	*index.Memory
}

func (failingIndex) Lookup(context.Context, []string) ([]models.TrackHits, error) {
	return nil, errors.New("disk on fire")
}

func TestIdentifySearchFailed(t *testing.T) {
	r := newTestRecognizer(t, WithIndex(failingIndex{index.NewMemory()}))
	_, err := r.Identify(context.Background(), synth.Melody(1, 2, 22050))
	assert.ErrorIs(t, err, ErrSearchFailed)
}

type brokenReranker struct{}

func (brokenReranker) Rerank(context.Context, []models.RecognitionResult, models.FeatureVector) ([]models.RecognitionResult, error) {
	return nil, errors.New("model not loaded")
}

type reverseReranker struct{}

func (reverseReranker) Rerank(_ context.Context, c []models.RecognitionResult, _ models.FeatureVector) ([]models.RecognitionResult, error) {
	out := make([]models.RecognitionResult, len(c))
	for i := range c {
		out[len(c)-1-i] = c[i]
	}
	return out, nil
}

func TestIdentifyRerankFallback(t *testing.T) {
	ctx := context.Background()
	song := synth.Melody(1, 5, 22050)

	plain := newTestRecognizer(t)
	broken := newTestRecognizer(t, WithReranker(brokenReranker{}))
	for _, r := range []*Recognizer{plain, broken} {
		_, err := r.AddTrack(ctx, "song", song)
		require.NoError(t, err)
		_, err = r.AddTrack(ctx, "near", synth.Perturb(song, 0, len(song.Samples), 0.05, 3))
		require.NoError(t, err)
	}

	want, err := plain.Identify(ctx, song)
	require.NoError(t, err)
	got, err := broken.Identify(ctx, song)
	require.NoError(t, err)

	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].TrackID, got[i].TrackID)
		assert.Equal(t, want[i].Confidence, got[i].Confidence)
	}
}

func TestBestMatchUsesConfidence(t *testing.T) {
	ctx := context.Background()
	song := synth.Melody(1, 5, 22050)
	r := newTestRecognizer(t, WithReranker(reverseReranker{}))
	_, err := r.AddTrack(ctx, "song", song)
	require.NoError(t, err)
	_, err = r.AddTrack(ctx, "near", synth.Perturb(song, 0, len(song.Samples), 0.05, 3))
	require.NoError(t, err)

	results, err := r.Identify(ctx, song)
	require.NoError(t, err)

	top, err := r.BestMatch(ctx, song)
	require.NoError(t, err)
	require.NotNil(t, top)
	for _, res := range results {
		assert.LessOrEqual(t, res.Confidence, top.Confidence)
	}
}

type recorder struct {
	mu    sync.Mutex
	calls []*models.RecognitionResult
}

func (h *recorder) RecordRecognition(_ context.Context, best *models.RecognitionResult, _ time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, best)
	return nil
}

func TestIdentifyRecordsHistory(t *testing.T) {
	ctx := context.Background()
	h := &recorder{}
	r := newTestRecognizer(t, WithHistory(h))

	song := synth.Melody(1, 5, 22050)
	_, err := r.AddTrack(ctx, "song", song)
	require.NoError(t, err)

	_, err = r.Identify(ctx, song)
	require.NoError(t, err)
	_, err = r.Identify(ctx, synth.Sine(3000, 0.5, 3, 22050))
	require.NoError(t, err)

	require.Len(t, h.calls, 2)
	require.NotNil(t, h.calls[0])
	assert.Equal(t, "song", h.calls[0].TrackID)
}

func TestCompare(t *testing.T) {
	r := newTestRecognizer(t)
	song := synth.Melody(1, 5, 22050)

	same, err := r.Compare(song, song)
	require.NoError(t, err)
	assert.Equal(t, 1.0, same)

	diff, err := r.Compare(song, synth.Melody(2, 5, 22050))
	require.NoError(t, err)
	assert.Less(t, diff, same)

	_, err = r.Compare(song, models.AudioBuffer{SampleRate: 22050})
	assert.ErrorIs(t, err, ErrInsufficientAudio)
}

func TestRemoveTrackAndStats(t *testing.T) {
	ctx := context.Background()
	r := newTestRecognizer(t)

	fp, err := r.AddTrack(ctx, "song", synth.Melody(1, 3, 22050))
	require.NoError(t, err)

	stats, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Tracks)
	assert.Equal(t, len(fp.Tokens), stats.Postings)

	n, err := r.RemoveTrack(ctx, "song")
	require.NoError(t, err)
	assert.Equal(t, len(fp.Tokens), n)

	stats, err = r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.IndexStats{}, stats)
}
