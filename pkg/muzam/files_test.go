//go:build !js && !wasm

package muzam

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/himanishpuri/muzam/internal/synth"
	"github.com/himanishpuri/muzam/pkg/models"
	"github.com/himanishpuri/muzam/pkg/muzam/audio"
	"github.com/himanishpuri/muzam/pkg/muzam/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWAV(t *testing.T, path string, buf models.AudioBuffer) string {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, audio.EncodeWAV(f, buf))
	return path
}

func newStoreRecognizer(t *testing.T) *Recognizer {
	t.Helper()
	return newTestRecognizer(t, WithDBPath(filepath.Join(t.TempDir(), "muzam.sqlite3")))
}

func TestAddFileAndIdentify(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r := newStoreRecognizer(t)

	path := writeWAV(t, filepath.Join(dir, "First Song.wav"), synth.Melody(1, 4, 22050))
	id, err := r.AddFile(ctx, path, models.Track{Artist: "Tester"})
	require.NoError(t, err)

	track, err := r.Catalog().GetTrack(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "First Song", track.Title)
	assert.Equal(t, "Tester", track.Artist)
	assert.InDelta(t, 4000, track.DurationMs, 50)

	again, err := r.AddFile(ctx, path, models.Track{Artist: "Tester"})
	assert.ErrorIs(t, err, ErrTrackExists)
	assert.Equal(t, id, again)

	results, err := r.IdentifyFile(ctx, path)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, id, results[0].TrackID)

	stats, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Tracks)

	// the store doubles as history recorder
	store, ok := r.Index().(*storage.Store)
	require.True(t, ok)
	hist, err := store.RecognitionStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, hist.Successful)
}

func TestAddFileRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r := newStoreRecognizer(t)

	// decodes fine but is shorter than one analysis window
	path := writeWAV(t, filepath.Join(dir, "blip.wav"), synth.Sine(440, 0.5, 0.05, 22050))
	_, err := r.AddFile(ctx, path, models.Track{})
	assert.ErrorIs(t, err, ErrInsufficientAudio)

	store := r.Index().(*storage.Store)
	tracks, err := store.ListTracks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tracks)
}

func TestIngestFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r := newStoreRecognizer(t)

	paths := []string{
		writeWAV(t, filepath.Join(dir, "a.wav"), synth.Melody(1, 3, 22050)),
		writeWAV(t, filepath.Join(dir, "b.wav"), synth.Melody(2, 3, 22050)),
		filepath.Join(dir, "missing.wav"),
		writeWAV(t, filepath.Join(dir, "c.wav"), synth.Melody(3, 3, 22050)),
	}

	calls := 0
	results, err := r.IngestFiles(ctx, paths, func(IngestResult) { calls++ })
	require.NoError(t, err)
	require.Len(t, results, len(paths))
	assert.Equal(t, len(paths), calls)

	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Error(t, results[2].Err)
	assert.NoError(t, results[3].Err)

	store := r.Index().(*storage.Store)
	tracks, err := store.ListTracks(ctx)
	require.NoError(t, err)
	assert.Len(t, tracks, 3, "the failed file must not stay in the catalog")

	stats, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Tracks)
}

func TestAddFileWithoutCatalog(t *testing.T) {
	ctx := context.Background()
	r := newTestRecognizer(t)
	path := writeWAV(t, filepath.Join(t.TempDir(), "plain.wav"), synth.Melody(4, 3, 22050))

	id, err := r.AddFile(ctx, path, models.Track{})
	require.NoError(t, err)
	assert.Equal(t, "plain", id)
}

func TestBadgerDBPath(t *testing.T) {
	ctx := context.Background()
	r := newTestRecognizer(t, WithDBPath(BadgerScheme+filepath.Join(t.TempDir(), "postings")))
	assert.Nil(t, r.Catalog())

	path := writeWAV(t, filepath.Join(t.TempDir(), "kv.wav"), synth.Melody(6, 3, 22050))
	id, err := r.AddFile(ctx, path, models.Track{})
	require.NoError(t, err)
	assert.Equal(t, "kv", id)

	results, err := r.IdentifyFile(ctx, path)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "kv", results[0].TrackID)
}

func TestMemorySnapshotDBPath(t *testing.T) {
	ctx := context.Background()
	snapshot := filepath.Join(t.TempDir(), "index.gob.gz")
	path := writeWAV(t, filepath.Join(t.TempDir(), "saved.wav"), synth.Melody(9, 3, 22050))

	r, err := New(WithLogger(nopLogger{}), WithDBPath(MemoryScheme+snapshot))
	require.NoError(t, err)
	_, err = r.AddFile(ctx, path, models.Track{})
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.FileExists(t, snapshot)

	reopened := newTestRecognizer(t, WithDBPath(MemoryScheme+snapshot))
	results, err := reopened.IdentifyFile(ctx, path)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	if results[0].TrackID != "saved" {
		t.Errorf("Expected saved, got %s", results[0].TrackID)
	}
}

func TestIdentifyFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r := newStoreRecognizer(t)

	first := writeWAV(t, filepath.Join(dir, "first.wav"), synth.Melody(21, 3, 22050))
	second := writeWAV(t, filepath.Join(dir, "second.wav"), synth.Melody(22, 3, 22050))
	firstID, err := r.AddFile(ctx, first, models.Track{})
	require.NoError(t, err)
	secondID, err := r.AddFile(ctx, second, models.Track{})
	require.NoError(t, err)

	paths := []string{
		second,
		filepath.Join(dir, "missing.wav"),
		first,
		writeWAV(t, filepath.Join(dir, "blip.wav"), synth.Sine(440, 0.5, 0.05, 22050)),
	}
	calls := 0
	results, err := r.IdentifyFiles(ctx, paths, func(IdentifyResult) { calls++ })
	require.NoError(t, err)
	require.Len(t, results, len(paths))
	assert.Equal(t, len(paths), calls)

	for i, res := range results {
		assert.Equal(t, paths[i], res.Path)
	}
	require.NoError(t, results[0].Err)
	require.NotNil(t, results[0].Best)
	assert.Equal(t, secondID, results[0].Best.TrackID)
	assert.Error(t, results[1].Err)
	assert.Nil(t, results[1].Best)
	require.NoError(t, results[2].Err)
	require.NotNil(t, results[2].Best)
	assert.Equal(t, firstID, results[2].Best.TrackID)
	assert.ErrorIs(t, results[3].Err, ErrInsufficientAudio)

	// only files that reached the matcher are recorded
	hist, err := r.Index().(*storage.Store).RecognitionStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, hist.Total)
}

func TestIdentifyFilesCancelled(t *testing.T) {
	r := newTestRecognizer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	paths := []string{"a.wav", "b.wav"}
	results, err := r.IdentifyFiles(ctx, paths, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 2)
	for i, res := range results {
		assert.Equal(t, paths[i], res.Path)
		assert.ErrorIs(t, res.Err, context.Canceled)
	}
}
