package models_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avensora/strata/internal/models"
)

func TestSummarize_CarriesTags(t *testing.T) {
	in := models.Interaction{
		Input:     "should we roll back the release",
		SessionID: "sess-9",
		Emotion:   &models.Emotion{Primary: "anxious", Intensity: 0.8},
		Decision:  &models.Decision{Type: "rollback", Confidence: 0.9},
	}

	s := models.Summarize(in)
	require.NotNil(t, s)
	assert.Equal(t, "sess-9", s.SessionID)
	assert.Equal(t, "anxious", s.DominantEmotion)
	assert.Equal(t, "rollback", s.DecisionType)
}

func TestSummarize_MinimalInteraction(t *testing.T) {
	s := models.Summarize(models.Interaction{})
	require.NotNil(t, s)
	assert.Empty(t, s.DominantEmotion)
	assert.Empty(t, s.DecisionType)
	assert.Zero(t, s.Complexity)
}

func TestSummarize_ComplexityBlendsSignals(t *testing.T) {
	short := models.Summarize(models.Interaction{Input: "hi"})
	long := models.Summarize(models.Interaction{Input: strings.Repeat("word ", 200)})
	assert.Greater(t, long.Complexity, short.Complexity)

	// All three signals saturated: long input, heavy reasoning, slow response.
	full := models.Summarize(models.Interaction{
		Input:            strings.Repeat("word ", 200),
		Logic:            &models.Logic{Conclusions: []string{"a", "b", "c", "d", "e"}},
		ProcessingTimeMs: 10000,
	})
	assert.InDelta(t, 1.0, full.Complexity, 0.001)
}

func TestSummarize_ComplexityWithinBounds(t *testing.T) {
	cases := []models.Interaction{
		{},
		{Input: "one"},
		{Input: strings.Repeat("word ", 5000), ProcessingTimeMs: 1 << 30},
		{Logic: &models.Logic{Conclusions: make([]string, 100)}},
	}
	for _, in := range cases {
		c := models.Summarize(in).Complexity
		assert.GreaterOrEqual(t, c, 0.0)
		assert.LessOrEqual(t, c, 1.0)
	}
}
