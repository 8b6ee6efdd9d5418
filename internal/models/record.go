package models

import (
	"time"
)

// Tier identifies one of the five record collections, each with its own
// retention and capacity policy.
type Tier string

const (
	TierShortTerm Tier = "short_term"
	TierLongTerm  Tier = "long_term"
	TierEpisodic  Tier = "episodic"
	TierSemantic  Tier = "semantic"
	TierWorking   Tier = "working"
)

// ValidTiers is the set of all valid tiers.
var ValidTiers = []Tier{
	TierShortTerm,
	TierLongTerm,
	TierEpisodic,
	TierSemantic,
	TierWorking,
}

// IsValid returns true if the tier is recognized.
func (t Tier) IsValid() bool {
	for _, v := range ValidTiers {
		if t == v {
			return true
		}
	}
	return false
}

// Emotion is the affect summary an upstream engine attached to an interaction.
type Emotion struct {
	Primary   string  `json:"primary"`
	Intensity float64 `json:"intensity"`
}

// Decision summarizes the decision taken for an interaction.
type Decision struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Logic summarizes the reasoning outcome for an interaction.
type Logic struct {
	Conclusions []string `json:"conclusions"`
}

// Feedback carries the user's reaction to a response.
type Feedback struct {
	Satisfaction float64 `json:"satisfaction"`
}

// Interaction is the ingestion-boundary input assembled by the upstream
// scoring engines. Feedback and ProcessingTimeMs feed importance scoring
// only and are not stored in the record payload.
type Interaction struct {
	Input            string    `json:"input"`
	Response         string    `json:"response,omitempty"`
	Emotion          *Emotion  `json:"emotion,omitempty"`
	Decision         *Decision `json:"decision,omitempty"`
	Logic            *Logic    `json:"logic,omitempty"`
	Feedback         *Feedback `json:"feedback,omitempty"`
	ProcessingTimeMs int       `json:"processing_time_ms,omitempty"`
	SessionID        string    `json:"session_id,omitempty"`
	Source           string    `json:"source,omitempty"`
}

// Payload is the stored content of a record. Immutable once stored.
type Payload struct {
	Input    string    `json:"input"`
	Response string    `json:"response,omitempty"`
	Emotion  *Emotion  `json:"emotion,omitempty"`
	Decision *Decision `json:"decision,omitempty"`
	Logic    *Logic    `json:"logic,omitempty"`
}

// ContextSummary is a small filtering digest derived once at ingestion.
type ContextSummary struct {
	SessionID       string  `json:"session_id,omitempty"`
	DominantEmotion string  `json:"dominant_emotion,omitempty"`
	DecisionType    string  `json:"decision_type,omitempty"`
	Complexity      float64 `json:"complexity"`
}

// Record is the core memory entity shared by all tiers. ID, Payload,
// Timestamp, Importance, and Embedding never change after creation; a nil
// Embedding marks a record that is excluded from similarity search.
type Record struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id,omitempty"`
	Source     string          `json:"source,omitempty"`
	Payload    Payload         `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
	Importance float64         `json:"importance"`
	Embedding  []float32       `json:"embedding,omitempty"`
	Context    *ContextSummary `json:"context,omitempty"`
}

// LongTermRecord wraps a Record with consolidation bookkeeping. AccessCount
// and LastAccessed are updated on each retrieval hit.
type LongTermRecord struct {
	Record
	ConsolidatedAt time.Time `json:"consolidated_at"`
	AccessCount    int64     `json:"access_count"`
	LastAccessed   time.Time `json:"last_accessed,omitzero"`
}

// WorkingRecord wraps a Record with its working-set relevance, recomputed
// at insert and decayed at every cleanup pass.
type WorkingRecord struct {
	Record
	Relevance float64 `json:"relevance"`
}

// RecordView is the read-only projection of a record returned at the
// retrieval and recent-interactions boundaries.
type RecordView struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id,omitempty"`
	Source     string          `json:"source,omitempty"`
	Payload    Payload         `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
	Importance float64         `json:"importance"`
	Tier       Tier            `json:"tier"`
	Similarity float64         `json:"similarity,omitempty"`
	Context    *ContextSummary `json:"context,omitempty"`
}

// View projects the record into its boundary form for the given tier.
func (r Record) View(tier Tier) RecordView {
	return RecordView{
		ID:         r.ID,
		SessionID:  r.SessionID,
		Source:     r.Source,
		Payload:    r.Payload,
		Timestamp:  r.Timestamp,
		Importance: r.Importance,
		Tier:       tier,
		Context:    r.Context,
	}
}

// RetrievalResult is the ranked answer to a similarity query. TimedOut marks
// results assembled from a partial tier scan after the caller's deadline
// expired.
type RetrievalResult struct {
	Memories    []RecordView `json:"memories"`
	TotalFound  int          `json:"total_found"`
	QueryTimeMs int64        `json:"query_time_ms"`
	TimedOut    bool         `json:"timed_out,omitempty"`
}

// Counts is the number of records resident in each tier.
type Counts struct {
	ShortTerm int `json:"short_term"`
	LongTerm  int `json:"long_term"`
	Episodic  int `json:"episodic"`
	Semantic  int `json:"semantic"`
	Working   int `json:"working"`
}

// Status reports tier occupancy and consolidation progress.
type Status struct {
	Counts
	ConsolidationQueueDepth int       `json:"consolidation_queue_depth"`
	LastConsolidation       time.Time `json:"last_consolidation,omitzero"`
}
