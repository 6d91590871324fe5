// Package rerank adjusts ranked candidates with signals beyond raw hash
// overlap.
package rerank

import (
	"context"
	"errors"
	"fmt"

	"github.com/himanishpuri/muzam/pkg/models"
)

// ErrRerankFailure marks a reranker that errored or returned an invalid
// ranking.
var ErrRerankFailure = errors.New("rerank failure")

type Reranker interface {
	Rerank(ctx context.Context, candidates []models.RecognitionResult, aux models.FeatureVector) ([]models.RecognitionResult, error)
}

// Identity returns candidates unchanged.
type Identity struct{}

func (Identity) Rerank(_ context.Context, candidates []models.RecognitionResult, _ models.FeatureVector) ([]models.RecognitionResult, error) {
	return candidates, nil
}

// Validate checks that after holds exactly the tracks of before, each once,
// with confidences in [0, 1].
func Validate(before, after []models.RecognitionResult) error {
	if len(before) != len(after) {
		return fmt.Errorf("%w: %d candidates in, %d out", ErrRerankFailure, len(before), len(after))
	}
	want := make(map[string]struct{}, len(before))
	for _, r := range before {
		want[r.TrackID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(after))
	for _, r := range after {
		if _, ok := want[r.TrackID]; !ok {
			return fmt.Errorf("%w: unknown track %q", ErrRerankFailure, r.TrackID)
		}
		if _, dup := seen[r.TrackID]; dup {
			return fmt.Errorf("%w: duplicate track %q", ErrRerankFailure, r.TrackID)
		}
		seen[r.TrackID] = struct{}{}
		if !(r.Confidence >= 0 && r.Confidence <= 1) {
			return fmt.Errorf("%w: confidence %v out of range for %q", ErrRerankFailure, r.Confidence, r.TrackID)
		}
	}
	return nil
}

// Apply runs r over candidates. On any failure it returns the original
// ranking together with an error wrapping ErrRerankFailure, so callers can
// log and carry on.
func Apply(ctx context.Context, r Reranker, candidates []models.RecognitionResult, aux models.FeatureVector) ([]models.RecognitionResult, error) {
	if r == nil || len(candidates) == 0 {
		return candidates, nil
	}
	in := make([]models.RecognitionResult, len(candidates))
	copy(in, candidates)

	out, err := safeRerank(ctx, r, in, aux)
	if err != nil {
		return candidates, err
	}
	if err := Validate(candidates, out); err != nil {
		return candidates, err
	}
	return out, nil
}

func safeRerank(ctx context.Context, r Reranker, in []models.RecognitionResult, aux models.FeatureVector) (out []models.RecognitionResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("%w: reranker panicked: %v", ErrRerankFailure, p)
		}
	}()
	out, err = r.Rerank(ctx, in, aux)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRerankFailure, err)
	}
	return out, nil
}
