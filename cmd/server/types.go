//go:build !js && !wasm

package main

import (
	"fmt"
	"time"

	"github.com/himanishpuri/muzam/pkg/models"
)

// Token limits for client-side fingerprints
const (
	// MaxTokensHardLimit is roughly two minutes of audio at the default hop
	MaxTokensHardLimit = 30000

	// TokenWarningThreshold triggers logging for large token batches
	TokenWarningThreshold = 10000
)

// TokenDTO is one hash token computed by a client
type TokenDTO struct {
	Value  string  `json:"value"`
	Offset float64 `json:"offset"`
	Scheme string  `json:"scheme"`
}

// MatchTokensRequest is the request body for POST /api/match/tokens
type MatchTokensRequest struct {
	Tokens     []TokenDTO `json:"tokens"`
	Duration   float64    `json:"duration"`
	SampleRate int        `json:"sample_rate"`
	Limit      int        `json:"limit,omitempty"`
}

// Fingerprint validates the request and converts it to a fingerprint. No
// tokens is a valid, empty query.
func (r *MatchTokensRequest) Fingerprint() (models.Fingerprint, error) {
	if len(r.Tokens) > MaxTokensHardLimit {
		return models.Fingerprint{}, fmt.Errorf("too many tokens: %d (maximum: %d)", len(r.Tokens), MaxTokensHardLimit)
	}

	schemes := make(map[string]models.Scheme, len(models.Schemes))
	for _, s := range models.Schemes {
		schemes[s.String()] = s
	}

	tokens := make([]models.HashToken, len(r.Tokens))
	for i, t := range r.Tokens {
		if !isValidToken(t.Value) {
			return models.Fingerprint{}, fmt.Errorf("invalid token value at %d: %q", i, t.Value)
		}
		scheme, ok := schemes[t.Scheme]
		if !ok {
			return models.Fingerprint{}, fmt.Errorf("unknown scheme at %d: %q", i, t.Scheme)
		}
		tokens[i] = models.HashToken{Value: t.Value, TimeOffset: t.Offset, Scheme: scheme}
	}
	return models.Fingerprint{
		Tokens:     tokens,
		Duration:   r.Duration,
		SampleRate: r.SampleRate,
		Algorithm:  models.AlgorithmHybrid,
	}, nil
}

// isValidToken accepts lowercase hex digests between 64 and 256 bits
func isValidToken(v string) bool {
	if len(v) < 16 || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// MatchResponse is the response for both match endpoints
type MatchResponse struct {
	Matches []MatchResultDTO `json:"matches"`
	Count   int              `json:"count"`
}

// MatchResultDTO represents a single match result
type MatchResultDTO struct {
	TrackID       string  `json:"track_id"`
	Title         string  `json:"title,omitempty"`
	Artist        string  `json:"artist,omitempty"`
	MatchCount    int     `json:"match_count"`
	UniqueMatches int     `json:"unique_matches"`
	Confidence    float64 `json:"confidence"`
	QueryTimeMs   float64 `json:"query_time_ms"`
}

// AddTrackResponse is the response for successful track addition
type AddTrackResponse struct {
	Message string   `json:"message"`
	Track   TrackDTO `json:"track"`
}

// TrackDTO represents a track in API responses
type TrackDTO struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist"`
	Album      string    `json:"album,omitempty"`
	Year       int       `json:"year,omitempty"`
	DurationMs int       `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

func newTrackDTO(t models.Track) TrackDTO {
	return TrackDTO{
		ID:         t.ID,
		Title:      t.Title,
		Artist:     t.Artist,
		Album:      t.Album,
		Year:       t.Year,
		DurationMs: t.DurationMs,
		CreatedAt:  t.CreatedAt,
	}
}

// ListTracksResponse is the response for GET /api/tracks
type ListTracksResponse struct {
	Tracks []TrackDTO `json:"tracks"`
	Count  int        `json:"count"`
}

// DeleteTrackResponse is the response for DELETE /api/tracks/{id}
type DeleteTrackResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// StatsResponse reports index size and recognition history
type StatsResponse struct {
	Status         string  `json:"status"`
	DatabasePath   string  `json:"database_path"`
	SampleRate     int     `json:"sample_rate"`
	Tracks         int     `json:"tracks"`
	Postings       int     `json:"postings"`
	DistinctHashes int     `json:"distinct_hashes"`
	Recognitions   int     `json:"recognitions"`
	SuccessRate    float64 `json:"success_rate"`
	AvgConfidence  float64 `json:"avg_confidence"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
