//go:build !js && !wasm

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/himanishpuri/muzam/pkg/models"
)

// RecordRecognition stores the outcome of one identification. best is nil
// when nothing matched.
func (s *Store) RecordRecognition(ctx context.Context, best *models.RecognitionResult, elapsed time.Duration) error {
	if err := s.ready(); err != nil {
		return err
	}
	rec := Recognition{QueryTimeMs: elapsed.Milliseconds()}
	if best != nil {
		rec.TrackID = best.TrackID
		rec.Matched = true
		rec.Confidence = best.Confidence
		rec.MatchCount = best.MatchCount
		rec.UniqueMatches = best.UniqueMatches
	}
	if err := s.DB.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("recording recognition: %w", err)
	}
	return nil
}

func (s *Store) RecognitionStats(ctx context.Context) (models.RecognitionStats, error) {
	var stats models.RecognitionStats
	if err := s.ready(); err != nil {
		return stats, err
	}
	var row struct {
		Total      int64
		Successful int64
		AvgConf    float64
	}
	err := s.DB.WithContext(ctx).Model(&Recognition{}).
		Select("COUNT(*) AS total, " +
			"COALESCE(SUM(CASE WHEN matched THEN 1 ELSE 0 END), 0) AS successful, " +
			"COALESCE(AVG(CASE WHEN matched THEN confidence END), 0) AS avg_conf").
		Scan(&row).Error
	if err != nil {
		return stats, fmt.Errorf("querying recognition stats: %w", err)
	}
	stats.Total = int(row.Total)
	stats.Successful = int(row.Successful)
	stats.AverageConfidence = row.AvgConf
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	}
	return stats, nil
}
