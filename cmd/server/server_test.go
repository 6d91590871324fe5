//go:build !js && !wasm

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/himanishpuri/muzam/internal/synth"
	"github.com/himanishpuri/muzam/pkg/models"
	"github.com/himanishpuri/muzam/pkg/muzam"
	"github.com/himanishpuri/muzam/pkg/muzam/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 22050

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "server.sqlite3")

	recognizer, err := muzam.New(muzam.WithDBPath(dbPath), muzam.WithSampleRate(testRate))
	require.NoError(t, err)
	t.Cleanup(func() { recognizer.Close() })

	server, err := NewServer(recognizer, &ServerConfig{
		DBPath:         dbPath,
		TempDir:        filepath.Join(dir, "uploads"),
		SampleRate:     testRate,
		AllowedOrigins: []string{"*"},
	})
	require.NoError(t, err)
	return server, server.setupRoutes()
}

func wavBytes(t *testing.T, buf models.AudioBuffer) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, audio.EncodeWAV(f, buf))
	require.NoError(t, f.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func uploadRequest(t *testing.T, url, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("audio", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, r io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(r).Decode(&v))
	return v
}

func TestHealthAndRoot(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddListMatchDelete(t *testing.T) {
	_, h := newTestServer(t)
	song := wavBytes(t, synth.Melody(11, 4, testRate))

	rec := do(h, uploadRequest(t, "/api/tracks", "song.wav", song, map[string]string{
		"title":  "Server Song",
		"artist": "Tester",
		"year":   "2024",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decode[AddTrackResponse](t, rec.Body)
	assert.Equal(t, "Server Song", added.Track.Title)
	assert.Equal(t, 2024, added.Track.Year)
	id := added.Track.ID
	require.NotEmpty(t, id)

	rec = do(h, uploadRequest(t, "/api/tracks", "song.wav", song, map[string]string{
		"title":  "Server Song",
		"artist": "Tester",
	}))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/tracks?q=server", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListTracksResponse](t, rec.Body)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, id, list.Tracks[0].ID)

	rec = do(h, uploadRequest(t, "/api/match", "query.wav", song, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	matches := decode[MatchResponse](t, rec.Body)
	require.NotEmpty(t, matches.Matches)
	assert.Equal(t, id, matches.Matches[0].TrackID)
	assert.Equal(t, "Server Song", matches.Matches[0].Title)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[StatsResponse](t, rec.Body)
	assert.Equal(t, 1, stats.Tracks)
	assert.Equal(t, 1, stats.Recognitions)

	rec = do(h, httptest.NewRequest(http.MethodDelete, "/api/tracks/"+id, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/tracks/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMatchTokens(t *testing.T) {
	server, h := newTestServer(t)
	song := wavBytes(t, synth.Melody(5, 4, testRate))

	rec := do(h, uploadRequest(t, "/api/tracks", "tokens.wav", song, nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[AddTrackResponse](t, rec.Body).Track.ID

	fp, err := server.recognizer.Fingerprint(synth.Melody(5, 4, testRate))
	require.NoError(t, err)
	req := MatchTokensRequest{Duration: fp.Duration, SampleRate: fp.SampleRate}
	for _, tok := range fp.Tokens {
		req.Tokens = append(req.Tokens, TokenDTO{Value: tok.Value, Offset: tok.TimeOffset, Scheme: tok.Scheme.String()})
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	rec = do(h, httptest.NewRequest(http.MethodPost, "/api/match/tokens", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	matches := decode[MatchResponse](t, rec.Body)
	require.NotEmpty(t, matches.Matches)
	assert.Equal(t, id, matches.Matches[0].TrackID)
	assert.Equal(t, "tokens", matches.Matches[0].Title)
}

func TestMatchTokensRejectsBadInput(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"bad hex", `{"tokens":[{"value":"zz","offset":0,"scheme":"chroma"}]}`},
		{"bad scheme", `{"tokens":[{"value":"00112233445566778899aabbccddeeff","offset":0,"scheme":"mfcc"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, httptest.NewRequest(http.MethodPost, "/api/match/tokens", bytes.NewBufferString(tt.body)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestMatchTokensEmptyQuery(t *testing.T) {
	_, h := newTestServer(t)

	for _, body := range []string{`{"tokens":[]}`, `{}`} {
		rec := do(h, httptest.NewRequest(http.MethodPost, "/api/match/tokens", bytes.NewBufferString(body)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		matches := decode[MatchResponse](t, rec.Body)
		assert.NotNil(t, matches.Matches)
		assert.Empty(t, matches.Matches)
		assert.Equal(t, 0, matches.Count)
	}

	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[StatsResponse](t, rec.Body).Recognitions)
}

func TestMethodNotAllowed(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/match", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	rec = do(h, httptest.NewRequest(http.MethodPut, "/api/tracks", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSRestrictedOrigins(t *testing.T) {
	handler := corsMiddleware([]string{"https://app.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := do(handler, req)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = do(handler, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	rec = do(handler, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
