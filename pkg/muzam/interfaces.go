package muzam

import (
	"context"
	"time"

	"github.com/himanishpuri/muzam/pkg/models"
)

// Index stores postings and answers lookups. Insert must be atomic with
// respect to concurrent Lookup calls.
type Index interface {
	Insert(ctx context.Context, trackID string, fp models.Fingerprint) error
	Lookup(ctx context.Context, values []string) ([]models.TrackHits, error)
	Remove(ctx context.Context, trackID string) (int, error)
	Stats(ctx context.Context) (models.IndexStats, error)
	Close() error
}

// Catalog resolves track IDs to display metadata.
type Catalog interface {
	RegisterTrack(ctx context.Context, meta models.Track) (id string, created bool, err error)
	GetTrack(ctx context.Context, id string) (*models.Track, error)
	DeleteTrack(ctx context.Context, id string) error
}

// HistoryRecorder persists identification outcomes. best is nil for a
// miss.
type HistoryRecorder interface {
	RecordRecognition(ctx context.Context, best *models.RecognitionResult, elapsed time.Duration) error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
