// Package importance scores interactions for retention. The score decides
// which records are queued for long-term consolidation and which the
// eviction passes may discard.
package importance

import (
	"fmt"
	"math"

	"github.com/avensora/strata/internal/models"
)

// Weights controls the contribution of each interaction signal to the final
// score. Base is awarded unconditionally; the remaining weights scale their
// signal's clamped value.
type Weights struct {
	Base         float64 `json:"base" mapstructure:"base"`
	Intensity    float64 `json:"intensity" mapstructure:"intensity"`
	Confidence   float64 `json:"confidence" mapstructure:"confidence"`
	Satisfaction float64 `json:"satisfaction" mapstructure:"satisfaction"`
	Speed        float64 `json:"speed" mapstructure:"speed"`
}

// DefaultWeights returns the production scoring weights. An interaction
// carrying full emotional intensity scores 0.75, clearing the default
// long-term threshold on that signal alone.
func DefaultWeights() Weights {
	return Weights{
		Base:         0.30,
		Intensity:    0.45,
		Confidence:   0.15,
		Satisfaction: 0.15,
		Speed:        0.05,
	}
}

// Validate checks that every weight is usable. Weights must be
// non-negative; the final score is clamped to [0,1] regardless of their sum.
func (w Weights) Validate() error {
	fields := map[string]float64{
		"base":         w.Base,
		"intensity":    w.Intensity,
		"confidence":   w.Confidence,
		"satisfaction": w.Satisfaction,
		"speed":        w.Speed,
	}
	for name, v := range fields {
		if v < 0 {
			return fmt.Errorf("importance weight %s must be >= 0, got %v", name, v)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("importance weight %s must be finite", name)
		}
	}
	return nil
}

// Scorer computes retention importance for interactions. Scoring is
// deterministic and monotone non-decreasing in intensity, confidence, and
// satisfaction.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the given weights.
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// Score returns the interaction's importance in [0,1]. Each input signal is
// clamped to [0,1] before weighting; the speed bonus decays exponentially
// with processing latency so fast responses score slightly higher.
func (s *Scorer) Score(in models.Interaction) float64 {
	score := s.weights.Base

	if in.Emotion != nil {
		score += s.weights.Intensity * clamp01(in.Emotion.Intensity)
	}
	if in.Decision != nil {
		score += s.weights.Confidence * clamp01(in.Decision.Confidence)
	}
	if in.Feedback != nil {
		score += s.weights.Satisfaction * clamp01(in.Feedback.Satisfaction)
	}
	if in.ProcessingTimeMs > 0 {
		score += s.weights.Speed * math.Exp(-float64(in.ProcessingTimeMs)/2000.0)
	}

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
