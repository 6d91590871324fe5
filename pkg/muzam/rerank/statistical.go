package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/himanishpuri/muzam/pkg/models"
	"gonum.org/v1/gonum/floats"
)

// ModelFeatureCount is the row width a Model is trained on: the auxiliary
// vector followed by confidence, match count and query time in seconds.
const ModelFeatureCount = AuxFeatureCount + 3

// Model is a logistic match classifier produced by an offline trainer.
type Model struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	Scaler  *Scaler   `json:"scaler,omitempty"`
	// Boost scales the predicted probability before it is capped at 1.
	Boost float64 `json:"boost"`
}

func (m *Model) Validate() error {
	if len(m.Weights) != ModelFeatureCount {
		return fmt.Errorf("model has %d weights, expected %d", len(m.Weights), ModelFeatureCount)
	}
	if m.Scaler != nil && (len(m.Scaler.Mean) != ModelFeatureCount || len(m.Scaler.Stddev) != ModelFeatureCount) {
		return errors.New("model scaler width does not match weights")
	}
	if m.Boost <= 0 {
		return fmt.Errorf("model boost must be positive, got %g", m.Boost)
	}
	return nil
}

// LoadModel reads a JSON model file. A missing boost defaults to 1.2.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	m := &Model{Boost: 1.2}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Statistical rescales confidences with a Model and re-sorts candidates
// by the new confidence.
type Statistical struct {
	model *Model
}

func NewStatistical(m *Model) (*Statistical, error) {
	if m == nil {
		return nil, errors.New("statistical reranker needs a model")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &Statistical{model: m}, nil
}

// Probability is the model's match probability for one candidate.
func (s *Statistical) Probability(r models.RecognitionResult, aux models.FeatureVector) (float64, error) {
	if len(aux) != AuxFeatureCount {
		return 0, fmt.Errorf("expected %d auxiliary features, got %d", AuxFeatureCount, len(aux))
	}
	row := make([]float64, 0, ModelFeatureCount)
	row = append(row, aux...)
	row = append(row, r.Confidence, float64(r.MatchCount), r.QueryTime.Seconds())
	if s.model.Scaler != nil {
		var err error
		if row, err = s.model.Scaler.Transform(row); err != nil {
			return 0, err
		}
	}
	z := floats.Dot(s.model.Weights, row) + s.model.Bias
	return 1 / (1 + math.Exp(-z)), nil
}

func (s *Statistical) Rerank(ctx context.Context, candidates []models.RecognitionResult, aux models.FeatureVector) ([]models.RecognitionResult, error) {
	out := make([]models.RecognitionResult, len(candidates))
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := s.Probability(c, aux)
		if err != nil {
			return nil, err
		}
		c.Confidence = math.Min(1, p*s.model.Boost)
		out[i] = c
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out, nil
}
