package forest

import (
	"fmt"
	"math"
	"time"
)

// Model is a trained isolation forest. It is built once by Build or
// Detector.Fit and must not be modified afterwards; retraining produces a new
// Model.
type Model struct {
	Version         int64     `json:"version"`
	Trees           []Tree    `json:"trees"`
	Features        []string  `json:"features"`
	SubsampleSize   int       `json:"subsample_size"`
	MaxDepth        int       `json:"max_depth"`
	Normalizer      float64   `json:"normalizer"` // c(SubsampleSize)
	Contamination   float64   `json:"contamination"`
	Threshold       float64   `json:"threshold"`
	Seed            int64     `json:"seed"`
	TrainingSamples int       `json:"training_samples"`
	TrainedAt       time.Time `json:"trained_at"`
}

// Score returns 2^(-avgPathLength(x)/c(ψ)), always in [0,1]. Values close to
// 1 are easy to isolate and therefore anomalous.
func (m *Model) Score(x []float64) (float64, error) {
	if len(x) != len(m.Features) {
		return 0, fmt.Errorf("%w: got %d values, model expects %d", ErrFeatureMismatch, len(x), len(m.Features))
	}
	var total float64
	for _, t := range m.Trees {
		total += t.PathLength(x)
	}
	avg := total / float64(len(m.Trees))
	s := math.Exp2(-avg / m.Normalizer)
	if s > 1 {
		s = 1
	}
	return s, nil
}

// IsAnomalous reports whether score reaches the contamination-calibrated
// threshold.
func (m *Model) IsAnomalous(score float64) bool {
	return score >= m.Threshold
}

// Validate checks that a model, typically one decoded from storage, is
// structurally sound enough to serve.
func (m *Model) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil model", ErrInvalidModel)
	}
	if len(m.Trees) == 0 {
		return fmt.Errorf("%w: no trees", ErrInvalidModel)
	}
	if len(m.Features) == 0 {
		return fmt.Errorf("%w: no features", ErrInvalidModel)
	}
	if m.Normalizer <= 0 || math.IsNaN(m.Normalizer) {
		return fmt.Errorf("%w: normalizer %v", ErrInvalidModel, m.Normalizer)
	}
	for i, t := range m.Trees {
		if err := t.validate(len(m.Features)); err != nil {
			return fmt.Errorf("%w: tree %d: %v", ErrInvalidModel, i, err)
		}
	}
	return nil
}
