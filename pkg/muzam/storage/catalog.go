//go:build !js && !wasm

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/himanishpuri/muzam/pkg/models"
	"gorm.io/gorm"
)

func (t Track) toModel() models.Track {
	return models.Track{
		ID:         t.ID,
		Title:      t.Title,
		Artist:     t.Artist,
		Album:      t.Album,
		Year:       t.Year,
		DurationMs: t.DurationMs,
		CreatedAt:  t.CreatedAt,
	}
}

// RegisterTrack returns the ID of the track with the same title and
// artist, creating it when it does not exist yet. created reports whether
// a new row was written.
func (s *Store) RegisterTrack(ctx context.Context, meta models.Track) (id string, created bool, err error) {
	if err := s.ready(); err != nil {
		return "", false, err
	}
	if strings.TrimSpace(meta.Title) == "" {
		return "", false, errors.New("track title is required")
	}

	var track Track
	err = s.DB.WithContext(ctx).Where("title = ? AND artist = ?", meta.Title, meta.Artist).First(&track).Error
	if err == nil {
		return track.ID, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, fmt.Errorf("querying existing track: %w", err)
	}

	id = meta.ID
	if id == "" {
		id = uuid.NewString()
	}
	track = Track{
		ID:         id,
		Title:      meta.Title,
		Artist:     meta.Artist,
		Album:      meta.Album,
		Year:       meta.Year,
		DurationMs: meta.DurationMs,
	}
	if err := s.DB.WithContext(ctx).Create(&track).Error; err != nil {
		// lost a race on the unique index
		if fetchErr := s.DB.WithContext(ctx).Where("title = ? AND artist = ?", meta.Title, meta.Artist).First(&track).Error; fetchErr == nil {
			return track.ID, false, nil
		}
		return "", false, fmt.Errorf("creating track: %w", err)
	}
	return track.ID, true, nil
}

func (s *Store) GetTrack(ctx context.Context, id string) (*models.Track, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var track Track
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&track).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying track: %w", err)
	}
	m := track.toModel()
	return &m, nil
}

// ListTracks returns every track, oldest first.
func (s *Store) ListTracks(ctx context.Context) ([]models.Track, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var rows []Track
	if err := s.DB.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing tracks: %w", err)
	}
	out := make([]models.Track, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// SearchTracks matches query case-insensitively against title and artist.
func (s *Store) SearchTracks(ctx context.Context, query string, limit int) ([]models.Track, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.ToLower(query) + "%"
	var rows []Track
	err := s.DB.WithContext(ctx).
		Where("LOWER(title) LIKE ? OR LOWER(artist) LIKE ?", pattern, pattern).
		Order("title").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("searching tracks: %w", err)
	}
	out := make([]models.Track, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// DeleteTrack removes a track's metadata and postings together.
func (s *Store) DeleteTrack(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := removePostings(tx, id); err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Track{})
		if res.Error != nil {
			return fmt.Errorf("deleting track: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrTrackNotFound, id)
		}
		return nil
	})
}
