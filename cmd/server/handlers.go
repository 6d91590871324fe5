//go:build !js && !wasm

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/muzam/pkg/logger"
	"github.com/himanishpuri/muzam/pkg/models"
	"github.com/himanishpuri/muzam/pkg/muzam"
	"github.com/himanishpuri/muzam/pkg/muzam/storage"
	"github.com/himanishpuri/muzam/pkg/utils"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	recognizer *muzam.Recognizer
	store      *storage.Store
	config     *ServerConfig
	log        muzam.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	DBPath         string
	TempDir        string
	SampleRate     int
	AllowedOrigins []string
	LogRequests    bool
}

// NewServer creates a new server around a database-backed recognizer
func NewServer(recognizer *muzam.Recognizer, config *ServerConfig) (*Server, error) {
	store, ok := recognizer.Index().(*storage.Store)
	if !ok {
		return nil, errors.New("server needs a database-backed recognizer")
	}
	if err := utils.MakeDir(config.TempDir); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	return &Server{
		recognizer: recognizer,
		store:      store,
		config:     config,
		log:        logger.GetLogger().With("server"),
	}, nil
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// statusFor maps recognizer errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, muzam.ErrTrackNotFound):
		return http.StatusNotFound
	case errors.Is(err, muzam.ErrTrackExists):
		return http.StatusConflict
	case errors.Is(err, muzam.ErrInsufficientAudio), errors.Is(err, muzam.ErrEmptyFingerprint):
		return http.StatusUnprocessableEntity
	case errors.Is(err, muzam.ErrSearchFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "muzam API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":      "GET /health",
			"stats":       "GET /api/stats",
			"tracks":      "GET /api/tracks",
			"addTrack":    "POST /api/tracks",
			"getTrack":    "GET /api/tracks/{id}",
			"deleteTrack": "DELETE /api/tracks/{id}",
			"matchFile":   "POST /api/match",
			"matchTokens": "POST /api/match/tokens",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.recognizer.Stats(r.Context())
	if err != nil {
		s.log.Errorf("Failed to read index stats: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve stats")
		return
	}
	hist, err := s.store.RecognitionStats(r.Context())
	if err != nil {
		s.log.Errorf("Failed to read recognition stats: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve stats")
		return
	}

	s.respondJSON(w, http.StatusOK, StatsResponse{
		Status:         "healthy",
		DatabasePath:   s.config.DBPath,
		SampleRate:     s.config.SampleRate,
		Tracks:         stats.Tracks,
		Postings:       stats.Postings,
		DistinctHashes: stats.DistinctHashes,
		Recognitions:   hist.Total,
		SuccessRate:    hist.SuccessRate,
		AvgConfidence:  hist.AverageConfidence,
	})
}

// handleListTracks handles GET /api/tracks
func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	var (
		tracks []models.Track
		err    error
	)
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		tracks, err = s.store.SearchTracks(r.Context(), q, limit)
	} else {
		tracks, err = s.store.ListTracks(r.Context())
	}
	if err != nil {
		s.log.Errorf("Failed to list tracks: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve tracks")
		return
	}

	dtos := make([]TrackDTO, len(tracks))
	for i, t := range tracks {
		dtos[i] = newTrackDTO(t)
	}
	s.respondJSON(w, http.StatusOK, ListTracksResponse{Tracks: dtos, Count: len(dtos)})
}

// handleGetTrack handles GET /api/tracks/{id}
func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request, id string) {
	track, err := s.store.GetTrack(r.Context(), id)
	if err != nil {
		s.respondError(w, statusFor(err), fmt.Sprintf("Track %s not found", id))
		return
	}
	s.respondJSON(w, http.StatusOK, newTrackDTO(*track))
}

// handleDeleteTrack handles DELETE /api/tracks/{id}
func (s *Server) handleDeleteTrack(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.store.DeleteTrack(r.Context(), id); err != nil {
		if statusFor(err) == http.StatusNotFound {
			s.respondError(w, http.StatusNotFound, fmt.Sprintf("Track %s not found", id))
			return
		}
		s.log.Errorf("Failed to delete track %s: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to delete track")
		return
	}

	s.log.Infof("Deleted track %s", id)
	s.respondJSON(w, http.StatusOK, DeleteTrackResponse{Message: "Track deleted successfully", ID: id})
}

// saveUpload copies the "audio" form file to the temp dir, keeping its
// extension so the decoder can pick a format.
func (s *Server) saveUpload(r *http.Request, maxBytes int64, prefix string) (string, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return "", fmt.Errorf("failed to parse form data: %w", err)
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		return "", errors.New("audio file is required")
	}
	defer file.Close()
	return s.writeTemp(file, header, prefix)
}

func (s *Server) writeTemp(file multipart.File, header *multipart.FileHeader, prefix string) (string, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	out, err := os.CreateTemp(s.config.TempDir, prefix+"_*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("failed to save uploaded file: %w", err)
	}
	return out.Name(), nil
}

// handleAddTrack handles POST /api/tracks (multipart file upload)
func (s *Server) handleAddTrack(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	path, err := s.saveUpload(r, 100<<20, "upload")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(path)

	year, _ := strconv.Atoi(r.FormValue("year"))
	meta := models.Track{
		Title:  r.FormValue("title"),
		Artist: r.FormValue("artist"),
		Album:  r.FormValue("album"),
		Year:   year,
	}
	if meta.Title == "" {
		if _, header, err := r.FormFile("audio"); err == nil {
			meta.Title = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
		}
	}

	id, err := s.recognizer.AddFile(ctx, path, meta)
	if err != nil {
		s.log.Warnf("Failed to add track: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to add track: %v", err))
		return
	}

	track, err := s.store.GetTrack(ctx, id)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.log.Infof("Added track %s: %s by %s", id, track.Title, track.Artist)
	s.respondJSON(w, http.StatusCreated, AddTrackResponse{
		Message: "Track added successfully",
		Track:   newTrackDTO(*track),
	})
}

// handleMatchFile handles POST /api/match (multipart file upload)
func (s *Server) handleMatchFile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	path, err := s.saveUpload(r, 50<<20, "query")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(path)

	results, err := s.recognizer.IdentifyFile(ctx, path)
	if errors.Is(err, muzam.ErrEmptyFingerprint) {
		s.respondJSON(w, http.StatusOK, MatchResponse{Matches: []MatchResultDTO{}})
		return
	}
	if err != nil {
		s.log.Errorf("Failed to match upload: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to match audio: %v", err))
		return
	}

	s.respondMatches(ctx, w, results)
}

// handleMatchTokens handles POST /api/match/tokens (tokens computed by WASM clients)
func (s *Server) handleMatchTokens(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req MatchTokensRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 16<<20)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	fp, err := req.Fingerprint()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fp.Empty() {
		s.respondJSON(w, http.StatusOK, MatchResponse{Matches: []MatchResultDTO{}})
		return
	}
	if len(fp.Tokens) >= TokenWarningThreshold {
		s.log.Warnf("Large token batch received: %d tokens", len(fp.Tokens))
	}

	start := time.Now()
	results, err := s.recognizer.Search(ctx, fp, req.Limit)
	if err != nil {
		s.log.Errorf("Failed to match tokens: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to match tokens: %v", err))
		return
	}

	var best *models.RecognitionResult
	if len(results) > 0 {
		best = &results[0]
	}
	if err := s.store.RecordRecognition(ctx, best, time.Since(start)); err != nil {
		s.log.Warnf("Failed to record recognition: %v", err)
	}

	s.respondMatches(ctx, w, results)
}

func (s *Server) respondMatches(ctx context.Context, w http.ResponseWriter, results []models.RecognitionResult) {
	dtos := make([]MatchResultDTO, len(results))
	for i, res := range results {
		dtos[i] = MatchResultDTO{
			TrackID:       res.TrackID,
			MatchCount:    res.MatchCount,
			UniqueMatches: res.UniqueMatches,
			Confidence:    res.Confidence,
			QueryTimeMs:   float64(res.QueryTime.Microseconds()) / 1000,
		}
		if track, err := s.store.GetTrack(ctx, res.TrackID); err == nil {
			dtos[i].Title = track.Title
			dtos[i].Artist = track.Artist
		}
	}
	s.log.Infof("Match complete: found %d matches", len(dtos))
	s.respondJSON(w, http.StatusOK, MatchResponse{Matches: dtos, Count: len(dtos)})
}

// handleTracks routes requests to /api/tracks
func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListTracks(w, r)
	case http.MethodPost:
		s.handleAddTrack(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleTrack routes requests to /api/tracks/{id}
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/tracks/")
	if id == "" || strings.Contains(id, "/") {
		s.respondError(w, http.StatusBadRequest, "Track ID required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetTrack(w, r, id)
	case http.MethodDelete:
		s.handleDeleteTrack(w, r, id)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleMatch routes requests to /api/match
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleMatchFile(w, r)
}

// handleMatchTokensRoute routes requests to /api/match/tokens
func (s *Server) handleMatchTokensRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleMatchTokens(w, r)
}
