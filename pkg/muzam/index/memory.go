// Package index provides Fingerprint Index implementations: an in-memory
// inverted index and a badger-backed key-value index.
package index

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/himanishpuri/muzam/pkg/models"
)

// ErrEmptyTrackID is returned when inserting without a track identifier.
var ErrEmptyTrackID = errors.New("track id must not be empty")

// Memory is an inverted index from hash value to postings. Inserts are
// serialized and become visible to lookups all at once. Memory's methods
// are safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	postings map[string][]models.Posting
	order    map[string]int // track id -> catalog ordinal
	next     int
	count    int
}

func NewMemory() *Memory {
	return &Memory{
		postings: make(map[string][]models.Posting),
		order:    make(map[string]int),
	}
}

// Insert appends one posting per token of fp. Re-inserting a track adds
// postings, it never replaces them.
func (m *Memory) Insert(ctx context.Context, trackID string, fp models.Fingerprint) error {
	if trackID == "" {
		return ErrEmptyTrackID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if fp.Empty() {
		return nil
	}

	batch := make(map[string][]models.Posting)
	for _, tok := range fp.Tokens {
		batch[tok.Value] = append(batch[tok.Value], models.Posting{
			TrackID:    trackID,
			TimeOffset: tok.TimeOffset,
			Scheme:     tok.Scheme,
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for v, ps := range batch {
		m.postings[v] = append(m.postings[v], ps...)
	}
	if _, ok := m.order[trackID]; !ok {
		m.order[trackID] = m.next
		m.next++
	}
	m.count += len(fp.Tokens)
	return nil
}

// Lookup counts, per track, the postings and distinct values matched by
// values. Results are in catalog order.
func (m *Memory) Lookup(ctx context.Context, values []string) ([]models.TrackHits, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	acc := newHitAccumulator()
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		acc.startValue()
		for _, p := range m.postings[v] {
			acc.add(p.TrackID)
		}
	}
	return acc.result(func(id string) int { return m.order[id] }), nil
}

// Remove deletes every posting of trackID and returns how many were dropped.
func (m *Memory) Remove(ctx context.Context, trackID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for v, ps := range m.postings {
		kept := ps[:0]
		for _, p := range ps {
			if p.TrackID == trackID {
				removed++
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) == 0 {
			delete(m.postings, v)
		} else {
			m.postings[v] = kept
		}
	}
	delete(m.order, trackID)
	m.count -= removed
	return removed, nil
}

func (m *Memory) Stats(ctx context.Context) (models.IndexStats, error) {
	if err := ctx.Err(); err != nil {
		return models.IndexStats{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.IndexStats{
		Tracks:         len(m.order),
		Postings:       m.count,
		DistinctHashes: len(m.postings),
	}, nil
}

func (m *Memory) Close() error {
	return nil
}

// hitAccumulator tallies postings per track while values are walked one
// at a time.
type hitAccumulator struct {
	hits    map[string]*models.TrackHits
	touched map[string]struct{}
}

func newHitAccumulator() *hitAccumulator {
	return &hitAccumulator{
		hits:    make(map[string]*models.TrackHits),
		touched: make(map[string]struct{}),
	}
}

func (a *hitAccumulator) startValue() {
	clear(a.touched)
}

func (a *hitAccumulator) add(trackID string) {
	h, ok := a.hits[trackID]
	if !ok {
		h = &models.TrackHits{TrackID: trackID}
		a.hits[trackID] = h
	}
	h.MatchCount++
	if _, ok := a.touched[trackID]; !ok {
		a.touched[trackID] = struct{}{}
		h.UniqueMatches++
	}
}

func (a *hitAccumulator) result(ordinal func(string) int) []models.TrackHits {
	out := make([]models.TrackHits, 0, len(a.hits))
	for _, h := range a.hits {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		oi, oj := ordinal(out[i].TrackID), ordinal(out[j].TrackID)
		if oi != oj {
			return oi < oj
		}
		return out[i].TrackID < out[j].TrackID
	})
	return out
}
