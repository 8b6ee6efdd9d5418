package models

import (
	"math"
	"strings"
)

// Summarize derives the filtering digest for an interaction. It is computed
// once at ingestion and never recomputed.
func Summarize(in Interaction) *ContextSummary {
	s := &ContextSummary{
		SessionID:  in.SessionID,
		Complexity: complexity(in),
	}
	if in.Emotion != nil {
		s.DominantEmotion = in.Emotion.Primary
	}
	if in.Decision != nil {
		s.DecisionType = in.Decision.Type
	}
	return s
}

// complexity estimates how demanding the interaction was on a 0-1 scale,
// blending input length, reasoning volume, and processing latency.
func complexity(in Interaction) float64 {
	words := float64(len(strings.Fields(in.Input)))
	score := 0.4 * math.Min(1.0, words/120.0)

	if in.Logic != nil {
		score += 0.3 * math.Min(1.0, float64(len(in.Logic.Conclusions))/5.0)
	}
	if in.ProcessingTimeMs > 0 {
		score += 0.3 * math.Min(1.0, float64(in.ProcessingTimeMs)/5000.0)
	}
	return score
}
