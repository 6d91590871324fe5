package rerank

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes every feature dimension to zero mean and unit
// variance.
type Scaler struct {
	Mean   []float64 `json:"mean"`
	Stddev []float64 `json:"stddev"`
}

// FitScaler computes scaling parameters column by column over rows.
func FitScaler(rows [][]float64) (*Scaler, error) {
	if len(rows) == 0 {
		return nil, errors.New("no rows provided")
	}
	width := len(rows[0])
	if width == 0 {
		return nil, errors.New("rows have no features")
	}

	s := &Scaler{Mean: make([]float64, width), Stddev: make([]float64, width)}
	column := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i, row := range rows {
			if len(row) != width {
				return nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), width)
			}
			column[i] = row[j]
		}
		s.Mean[j], s.Stddev[j] = stat.PopMeanStdDev(column, nil)
		// constant features
		if s.Stddev[j] < 1e-10 {
			s.Stddev[j] = 1
		}
	}
	return s, nil
}

// Transform returns the standardized copy of features.
func (s *Scaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(s.Mean) || len(s.Mean) != len(s.Stddev) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.Mean), len(features))
	}
	scaled := make([]float64, len(features))
	for i, v := range features {
		scaled[i] = (v - s.Mean[i]) / s.Stddev[i]
	}
	return scaled, nil
}
