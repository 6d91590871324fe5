//go:build !js && !wasm

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/himanishpuri/muzam/internal/indextest"
	"github.com/himanishpuri/muzam/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore opens a fresh SQLite store in a temporary directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test_muzam.sqlite3")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenCreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "muzam.sqlite3")
	store, err := Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("Database file was not created at %s", dbPath)
	}
}

func TestOpenFromEnv(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "env.sqlite3")
	t.Setenv("MUZAM_DB", dbPath)

	store, err := OpenFromEnv()
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestSQLiteContract(t *testing.T) {
	indextest.Run(t, func(t *testing.T) indextest.Index {
		return setupTestStore(t)
	})
}

func TestPostgresContract(t *testing.T) {
	dsn := os.Getenv("MUZAM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MUZAM_TEST_POSTGRES_DSN not set")
	}
	indextest.Run(t, func(t *testing.T) indextest.Index {
		store, err := Open(dsn)
		require.NoError(t, err)
		require.NoError(t, store.DB.Exec("DELETE FROM postings").Error)
		require.NoError(t, store.DB.Exec("DELETE FROM indexed_tracks").Error)
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestLookupAcrossChunks(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	values := make([]string, lookupChunkSize*2+7)
	for i := range values {
		values[i] = fmt.Sprintf("%032x", i)
	}
	require.NoError(t, store.Insert(ctx, "big", indextest.Fingerprint(values...)))

	hits, err := store.Lookup(ctx, values)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, len(values), hits[0].MatchCount)
	assert.Equal(t, len(values), hits[0].UniqueMatches)
}

func TestRegisterTrack(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	tests := []struct {
		name    string
		meta    models.Track
		wantErr bool
	}{
		{"valid", models.Track{Title: "Sandstorm", Artist: "Darude", DurationMs: 180000}, false},
		{"no artist", models.Track{Title: "Untitled"}, false},
		{"no title", models.Track{Artist: "Nobody"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, created, err := store.RegisterTrack(ctx, tt.meta)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, id, 36)
			assert.True(t, created)

			again, created, err := store.RegisterTrack(ctx, tt.meta)
			require.NoError(t, err)
			assert.False(t, created)
			assert.Equal(t, id, again, "registering the same title/artist must be idempotent")
		})
	}
}

func TestGetListSearchTracks(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	id, _, err := store.RegisterTrack(ctx, models.Track{Title: "Blue Monday", Artist: "New Order", Year: 1983})
	require.NoError(t, err)
	_, _, err = store.RegisterTrack(ctx, models.Track{Title: "Bizarre Love Triangle", Artist: "New Order"})
	require.NoError(t, err)
	_, _, err = store.RegisterTrack(ctx, models.Track{Title: "Heroes", Artist: "David Bowie"})
	require.NoError(t, err)

	track, err := store.GetTrack(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Blue Monday", track.Title)
	assert.Equal(t, 1983, track.Year)

	_, err = store.GetTrack(ctx, "missing")
	assert.True(t, errors.Is(err, ErrTrackNotFound))

	all, err := store.ListTracks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	found, err := store.SearchTracks(ctx, "new order", 10)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = store.SearchTracks(ctx, "hero", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "David Bowie", found[0].Artist)
}

func TestDeleteTrack(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	id, _, err := store.RegisterTrack(ctx, models.Track{Title: "Gone", Artist: "Soon"})
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, id, indextest.Fingerprint("x", "y")))

	require.NoError(t, store.DeleteTrack(ctx, id))

	hits, err := store.Lookup(ctx, []string{"x", "y"})
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = store.GetTrack(ctx, id)
	assert.ErrorIs(t, err, ErrTrackNotFound)

	assert.ErrorIs(t, store.DeleteTrack(ctx, id), ErrTrackNotFound)
}

func TestRecognitionHistory(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	stats, err := store.RecognitionStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RecognitionStats{}, stats)

	require.NoError(t, store.RecordRecognition(ctx, &models.RecognitionResult{TrackID: "a", Confidence: 0.9, MatchCount: 10}, 12*time.Millisecond))
	require.NoError(t, store.RecordRecognition(ctx, &models.RecognitionResult{TrackID: "b", Confidence: 0.5, MatchCount: 4}, 8*time.Millisecond))
	require.NoError(t, store.RecordRecognition(ctx, nil, 3*time.Millisecond))

	stats, err = store.RecognitionStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Successful)
	assert.InDelta(t, 2.0/3.0, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 0.7, stats.AverageConfidence, 1e-9)
}

func TestNilStore(t *testing.T) {
	var s *Store
	_, err := s.Lookup(context.Background(), []string{"x"})
	assert.EqualError(t, err, errDBClientNil)
	assert.NoError(t, s.Close())
}
