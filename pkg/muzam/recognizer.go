// Package muzam identifies short audio clips against a catalog of
// fingerprinted tracks.
package muzam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/himanishpuri/muzam/pkg/logger"
	"github.com/himanishpuri/muzam/pkg/models"
	"github.com/himanishpuri/muzam/pkg/muzam/fingerprint"
	"github.com/himanishpuri/muzam/pkg/muzam/index"
	"github.com/himanishpuri/muzam/pkg/muzam/matcher"
	"github.com/himanishpuri/muzam/pkg/muzam/rerank"
)

// Recognizer wires the generator, an index, the matcher and an optional
// reranker together. It is safe for concurrent use.
type Recognizer struct {
	cfg       Config
	gen       *fingerprint.Generator
	matcher   *matcher.Matcher
	index     Index
	catalog   Catalog
	reranker  rerank.Reranker
	history   HistoryRecorder
	log       Logger
	ownsIndex bool
}

func New(opts ...Option) (*Recognizer, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger().With("muzam")
	}

	gen, err := fingerprint.NewGenerator(cfg.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	r := &Recognizer{
		gen:      gen,
		catalog:  cfg.Catalog,
		reranker: cfg.Reranker,
		history:  cfg.History,
		log:      cfg.Logger,
	}

	switch {
	case cfg.Index != nil:
		r.index = cfg.Index
	case cfg.DBPath != "":
		if err := r.openStore(cfg.DBPath); err != nil {
			return nil, err
		}
		r.ownsIndex = true
	default:
		r.index = index.NewMemory()
		r.ownsIndex = true
	}

	m, err := matcher.New(r.index, cfg.Matcher)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("failed to create matcher: %w", err)
	}
	r.matcher = m
	r.cfg = *cfg
	return r, nil
}

func (r *Recognizer) Config() Config {
	return r.cfg
}

// Catalog returns the metadata collaborator, nil when none is configured.
func (r *Recognizer) Catalog() Catalog {
	return r.catalog
}

func (r *Recognizer) Index() Index {
	return r.index
}

// Fingerprint derives a fingerprint from buf without touching the index.
func (r *Recognizer) Fingerprint(buf models.AudioBuffer) (models.Fingerprint, error) {
	return r.gen.Generate(buf)
}

// AddTrack fingerprints buf and indexes it under trackID.
func (r *Recognizer) AddTrack(ctx context.Context, trackID string, buf models.AudioBuffer) (models.Fingerprint, error) {
	fp, err := r.fingerprint(buf)
	if err != nil {
		return fp, err
	}
	if err := r.Insert(ctx, trackID, fp); err != nil {
		return fp, err
	}
	r.log.Debugf("Indexed %s: %d tokens, quality %.2f", trackID, len(fp.Tokens), fp.Quality)
	return fp, nil
}

// Insert indexes a precomputed fingerprint.
func (r *Recognizer) Insert(ctx context.Context, trackID string, fp models.Fingerprint) error {
	if fp.Empty() {
		return ErrEmptyFingerprint
	}
	if err := r.index.Insert(ctx, trackID, fp); err != nil {
		return fmt.Errorf("failed to index %s: %w", trackID, err)
	}
	return nil
}

// Search ranks catalog tracks for fp. An empty fingerprint yields an empty
// result and no error.
func (r *Recognizer) Search(ctx context.Context, fp models.Fingerprint, maxResults int) ([]models.RecognitionResult, error) {
	return r.matcher.Search(ctx, fp, maxResults)
}

// Identify fingerprints buf, searches the index and reranks the candidates.
// A failing reranker is logged and its input ranking returned. The outcome
// is reported to the history recorder when one is configured.
func (r *Recognizer) Identify(ctx context.Context, buf models.AudioBuffer) ([]models.RecognitionResult, error) {
	start := time.Now()
	fp, err := r.fingerprint(buf)
	if err != nil {
		return nil, err
	}

	results, err := r.matcher.Search(ctx, fp, 0)
	if err != nil {
		return nil, err
	}

	if r.reranker != nil && len(results) > 0 {
		aux := rerank.ExtractAuxiliary(buf)
		reranked, rerr := rerank.Apply(ctx, r.reranker, results, aux)
		if rerr != nil {
			r.log.Warnf("Reranking failed, keeping matcher order: %v", rerr)
		}
		results = reranked
	}

	r.record(ctx, best(results), time.Since(start))
	return results, nil
}

// BestMatch returns the highest-confidence candidate for buf, or nil when
// nothing passes the match floor.
func (r *Recognizer) BestMatch(ctx context.Context, buf models.AudioBuffer) (*models.RecognitionResult, error) {
	results, err := r.Identify(ctx, buf)
	if err != nil {
		return nil, err
	}
	return best(results), nil
}

// Compare returns the Jaccard similarity of the fingerprints of a and b.
func (r *Recognizer) Compare(a, b models.AudioBuffer) (float64, error) {
	fa, err := r.gen.Generate(a)
	if err != nil {
		return 0, fmt.Errorf("first buffer: %w", err)
	}
	fb, err := r.gen.Generate(b)
	if err != nil {
		return 0, fmt.Errorf("second buffer: %w", err)
	}
	return fingerprint.Similarity(fa, fb), nil
}

// RemoveTrack drops trackID's postings and returns how many were removed.
func (r *Recognizer) RemoveTrack(ctx context.Context, trackID string) (int, error) {
	n, err := r.index.Remove(ctx, trackID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove %s: %w", trackID, err)
	}
	return n, nil
}

func (r *Recognizer) Stats(ctx context.Context) (models.IndexStats, error) {
	return r.index.Stats(ctx)
}

// Close releases the index when the Recognizer opened it.
func (r *Recognizer) Close() error {
	if !r.ownsIndex || r.index == nil {
		return nil
	}
	return r.index.Close()
}

func (r *Recognizer) fingerprint(buf models.AudioBuffer) (models.Fingerprint, error) {
	fp, err := r.gen.Generate(buf)
	if err != nil {
		return fp, err
	}
	if fp.Empty() {
		return fp, ErrEmptyFingerprint
	}
	return fp, nil
}

func (r *Recognizer) record(ctx context.Context, top *models.RecognitionResult, elapsed time.Duration) {
	if r.history == nil {
		return
	}
	if err := r.history.RecordRecognition(ctx, top, elapsed); err != nil && !errors.Is(err, context.Canceled) {
		r.log.Warnf("Failed to record recognition: %v", err)
	}
}

func best(results []models.RecognitionResult) *models.RecognitionResult {
	if len(results) == 0 {
		return nil
	}
	top := results[0]
	for _, res := range results[1:] {
		if res.Confidence > top.Confidence {
			top = res
		}
	}
	return &top
}
