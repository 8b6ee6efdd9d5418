// Package tokenizer estimates token counts and formats retrieved memory
// entries within a caller-supplied token budget for prompt injection.
package tokenizer

import (
	"strings"
)

// separatorTokens is the estimated cost of the entry separator.
const separatorTokens = 2

// EstimateTokens provides a rough token count estimate.
// Uses the heuristic of ~4 characters per token for English text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	// Count words and characters for a blended estimate
	words := len(strings.Fields(text))
	chars := len(text)

	// Heuristic: average of word-based and char-based estimates
	wordEstimate := int(float64(words) * 1.3) // ~1.3 tokens per word
	charEstimate := chars / 4                 // ~4 chars per token

	return (wordEstimate + charEstimate) / 2
}

// TruncateToBudget truncates text to approximately fit within a token
// budget, cutting at a word boundary where one is near.
func TruncateToBudget(text string, budget int) string {
	if budget <= 0 {
		return ""
	}

	if EstimateTokens(text) <= budget {
		return text
	}

	// Approximate: 4 chars per token
	maxChars := budget * 4
	if maxChars >= len(text) {
		return text
	}

	truncated := text[:maxChars]
	lastSpace := strings.LastIndex(truncated, " ")
	if lastSpace > maxChars/2 {
		truncated = truncated[:lastSpace]
	}

	return truncated + "..."
}

// FormatWithBudget joins entries with separators until the budget is
// spent, returning the formatted block and how many entries it holds.
// A first entry too large for the whole budget is truncated into it
// rather than producing an empty block.
func FormatWithBudget(entries []string, budget int) (string, int) {
	if budget <= 0 || len(entries) == 0 {
		return "", 0
	}

	var builder strings.Builder
	count := 0
	usedTokens := 0

	for _, entry := range entries {
		cost := EstimateTokens(entry) + separatorTokens
		if usedTokens+cost > budget {
			if count == 0 {
				truncated := TruncateToBudget(entry, budget-separatorTokens)
				if truncated != "" {
					builder.WriteString(truncated)
					count = 1
				}
			}
			break
		}
		if count > 0 {
			builder.WriteString("\n---\n")
		}
		builder.WriteString(entry)
		usedTokens += cost
		count++
	}

	return builder.String(), count
}
