package importance_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avensora/strata/internal/importance"
	"github.com/avensora/strata/internal/models"
)

func TestScorer_BaseOnly(t *testing.T) {
	s := importance.NewScorer(importance.DefaultWeights())

	score := s.Score(models.Interaction{Input: "plain interaction"})
	assert.InDelta(t, 0.30, score, 0.001, "bare interaction earns only the base weight")
}

func TestScorer_FullIntensityClearsLongTermThreshold(t *testing.T) {
	s := importance.NewScorer(importance.DefaultWeights())

	score := s.Score(models.Interaction{
		Input:   "the user is furious about the outage",
		Emotion: &models.Emotion{Primary: "angry", Intensity: 1.0},
	})
	assert.InDelta(t, 0.75, score, 0.001)
	assert.GreaterOrEqual(t, score, 0.7, "full intensity alone should qualify for consolidation")
}

func TestScorer_InputsClampedBeforeWeighting(t *testing.T) {
	s := importance.NewScorer(importance.DefaultWeights())

	// Out-of-range signals behave like their clamped counterparts.
	wild := s.Score(models.Interaction{
		Emotion:  &models.Emotion{Intensity: 5.0},
		Decision: &models.Decision{Confidence: 2.0},
		Feedback: &models.Feedback{Satisfaction: 3.0},
	})
	sane := s.Score(models.Interaction{
		Emotion:  &models.Emotion{Intensity: 1.0},
		Decision: &models.Decision{Confidence: 1.0},
		Feedback: &models.Feedback{Satisfaction: 1.0},
	})
	assert.InDelta(t, sane, wild, 0.0001)
	assert.InDelta(t, 1.0, wild, 0.001, "0.30+0.45+0.15+0.15 clamps to 1.0")
}

func TestScorer_ScoreWithinBounds(t *testing.T) {
	s := importance.NewScorer(importance.DefaultWeights())

	cases := []models.Interaction{
		{},
		{Emotion: &models.Emotion{Intensity: -4}},
		{Emotion: &models.Emotion{Intensity: 100}, Decision: &models.Decision{Confidence: 100}},
		{Feedback: &models.Feedback{Satisfaction: -1}, ProcessingTimeMs: 1},
		{ProcessingTimeMs: math.MaxInt32},
	}
	for _, in := range cases {
		score := s.Score(in)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestScorer_MonotoneInIntensity(t *testing.T) {
	s := importance.NewScorer(importance.DefaultWeights())

	prev := -1.0
	for _, intensity := range []float64{0.0, 0.2, 0.4, 0.6, 0.8, 1.0} {
		score := s.Score(models.Interaction{Emotion: &models.Emotion{Intensity: intensity}})
		assert.GreaterOrEqual(t, score, prev, "score must not decrease as intensity rises")
		prev = score
	}
}

func TestScorer_SpeedBonusDecaysWithLatency(t *testing.T) {
	s := importance.NewScorer(importance.DefaultWeights())

	fast := s.Score(models.Interaction{ProcessingTimeMs: 100})
	slow := s.Score(models.Interaction{ProcessingTimeMs: 10000})
	assert.Greater(t, fast, slow)

	// The bonus never exceeds the speed weight itself.
	assert.LessOrEqual(t, fast, 0.30+0.05+0.001)
}

func TestWeights_Validate(t *testing.T) {
	require.NoError(t, importance.DefaultWeights().Validate())

	w := importance.DefaultWeights()
	w.Intensity = -0.1
	assert.Error(t, w.Validate())

	w = importance.DefaultWeights()
	w.Speed = math.NaN()
	assert.Error(t, w.Validate())

	w = importance.DefaultWeights()
	w.Base = math.Inf(1)
	assert.Error(t, w.Validate())

	// Zero weights are allowed; they just mute the signal.
	assert.NoError(t, importance.Weights{}.Validate())
}
