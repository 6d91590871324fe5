//go:build !js && !wasm

package muzam

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/himanishpuri/muzam/pkg/models"
	"github.com/himanishpuri/muzam/pkg/muzam/audio"
	"golang.org/x/sync/errgroup"
)

// TrackInfo reads display metadata for an audio file. Fields set in
// override win over embedded tags.
func TrackInfo(ctx context.Context, path string, override models.Track) models.Track {
	meta := audio.ReadMetadata(ctx, path)
	track := models.Track{
		Title:      meta.Title,
		Artist:     meta.Artist,
		Album:      meta.Album,
		Year:       meta.Year,
		DurationMs: int(meta.DurationSec * 1000),
	}
	if override.Title != "" {
		track.Title = override.Title
	}
	if override.Artist != "" {
		track.Artist = override.Artist
	}
	if override.Album != "" {
		track.Album = override.Album
	}
	if override.Year != 0 {
		track.Year = override.Year
	}
	return track
}

// AddFile decodes path, registers it with the catalog and indexes it. It
// returns the track ID. Without a catalog the file name becomes the ID.
func (r *Recognizer) AddFile(ctx context.Context, path string, meta models.Track) (string, error) {
	r.log.Infof("Processing %s", filepath.Base(path))

	buf, err := audio.Load(ctx, path, r.cfg.SampleRate)
	if err != nil {
		return "", err
	}
	id, err := r.register(ctx, path, meta, buf)
	if err != nil {
		return id, err
	}

	fp, err := r.AddTrack(ctx, id, buf)
	if err != nil {
		r.forget(ctx, id)
		return "", err
	}
	r.log.Infof("Added %s with %d tokens", id, len(fp.Tokens))
	return id, nil
}

// IdentifyFile decodes path and identifies it.
func (r *Recognizer) IdentifyFile(ctx context.Context, path string) ([]models.RecognitionResult, error) {
	buf, err := audio.Load(ctx, path, r.cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	return r.Identify(ctx, buf)
}

// IdentifyResult is the outcome of identifying one file. Best is nil when
// nothing matched.
type IdentifyResult struct {
	Path string
	Best *models.RecognitionResult
	Err  error
}

// IdentifyFiles decodes and identifies paths on Config.Workers goroutines.
// Results come back in path order with per-file errors; the returned error
// is only set when ctx ends the run. progress, if not nil, is called once
// per finished file, never concurrently.
func (r *Recognizer) IdentifyFiles(ctx context.Context, paths []string, progress func(IdentifyResult)) ([]IdentifyResult, error) {
	results := make([]IdentifyResult, len(paths))
	finished := make([]bool, len(paths))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for i, path := range paths {
		if ctx.Err() != nil {
			break
		}
		i, path := i, path
		g.Go(func() error {
			res := IdentifyResult{Path: path}
			buf, err := audio.Load(ctx, path, r.cfg.SampleRate)
			if err == nil {
				res.Best, err = r.BestMatch(ctx, buf)
			}
			if err != nil {
				res.Err = fmt.Errorf("%s: %w", filepath.Base(path), err)
			}

			mu.Lock()
			defer mu.Unlock()
			results[i] = res
			finished[i] = true
			if progress != nil {
				progress(res)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		for i, ok := range finished {
			if !ok {
				results[i] = IdentifyResult{Path: paths[i], Err: err}
			}
		}
		return results, fmt.Errorf("identify interrupted: %w", err)
	}
	return results, nil
}

// IngestFiles registers every path with the catalog and indexes them in
// parallel through Ingest. Files the catalog already holds fail with
// ErrTrackExists.
func (r *Recognizer) IngestFiles(ctx context.Context, paths []string, progress func(IngestResult)) ([]IngestResult, error) {
	results := make([]IngestResult, len(paths))
	var (
		jobs  []IngestJob
		slots []int
	)
	for i, path := range paths {
		path := path
		id, err := r.register(ctx, path, models.Track{}, models.AudioBuffer{})
		if err != nil {
			results[i] = IngestResult{TrackID: id, Err: fmt.Errorf("%s: %w", filepath.Base(path), err)}
			if progress != nil {
				progress(results[i])
			}
			continue
		}
		jobs = append(jobs, IngestJob{
			TrackID: id,
			Load: func(ctx context.Context) (models.AudioBuffer, error) {
				return audio.Load(ctx, path, r.cfg.SampleRate)
			},
		})
		slots = append(slots, i)
	}

	ingested, err := r.Ingest(ctx, jobs, progress)
	for j, res := range ingested {
		if res.Err != nil {
			r.forget(ctx, res.TrackID)
			res.Err = fmt.Errorf("%s: %w", filepath.Base(paths[slots[j]]), res.Err)
		}
		results[slots[j]] = res
	}
	return results, err
}

func (r *Recognizer) register(ctx context.Context, path string, override models.Track, buf models.AudioBuffer) (string, error) {
	if r.catalog == nil {
		return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), nil
	}
	track := TrackInfo(ctx, path, override)
	if track.DurationMs == 0 && buf.SampleRate > 0 {
		track.DurationMs = int(buf.Duration() * 1000)
	}
	id, created, err := r.catalog.RegisterTrack(ctx, track)
	if err != nil {
		return "", fmt.Errorf("failed to register track: %w", err)
	}
	if !created {
		return id, fmt.Errorf("%w: %q by %q", ErrTrackExists, track.Title, track.Artist)
	}
	return id, nil
}

// forget rolls back a catalog registration whose indexing failed.
func (r *Recognizer) forget(ctx context.Context, id string) {
	if r.catalog == nil || id == "" {
		return
	}
	if err := r.catalog.DeleteTrack(context.WithoutCancel(ctx), id); err != nil {
		r.log.Warnf("Failed to roll back track %s: %v", id, err)
	}
}
