// Package retrieval embeds a query, scans the memory tiers for similar
// records, and ranks the merged candidates.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/avensora/strata/internal/embedder"
	"github.com/avensora/strata/internal/metrics"
	"github.com/avensora/strata/internal/models"
	"github.com/avensora/strata/internal/store"
)

// epsilon is the band within which two scores are treated as equal,
// letting the next ranking factor decide the order.
const epsilon = 0.1

// DefaultTiers are searched when a query names none.
var DefaultTiers = []models.Tier{
	models.TierShortTerm,
	models.TierLongTerm,
	models.TierSemantic,
}

// Defaults fills a query's unset limit and threshold.
type Defaults struct {
	MaxResults          int
	SimilarityThreshold float64
}

// Options narrows one retrieval. Zero MaxResults and MinSimilarity fall
// back to the engine's defaults; empty Tiers searches DefaultTiers; zero
// From/To leave that time bound open (both bounds inclusive).
type Options struct {
	MaxResults     int
	MinSimilarity  float64
	Tiers          []models.Tier
	From, To       time.Time
	IncludeContext bool
}

// Engine runs similarity search across the tier store.
type Engine struct {
	store     *store.TierStore
	embedder  embedder.Embedder
	collector metrics.Collector
	logger    *slog.Logger
	defaults  Defaults
}

// NewEngine creates a retrieval engine with the given defaults.
func NewEngine(st *store.TierStore, emb embedder.Embedder, collector metrics.Collector, logger *slog.Logger, defaults Defaults) *Engine {
	if defaults.MaxResults <= 0 {
		defaults.MaxResults = 10
	}
	return &Engine{
		store:     st,
		embedder:  emb,
		collector: collector,
		logger:    logger,
		defaults:  defaults,
	}
}

// Retrieve embeds the query text, scans the requested tiers, and returns
// the ranked matches. Context expiry mid-scan returns the tiers finished
// so far with TimedOut set rather than an error; only an embedding
// failure is fatal.
func (e *Engine) Retrieve(ctx context.Context, query string, opts Options) (*models.RetrievalResult, error) {
	start := time.Now()

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = e.defaults.MaxResults
	}
	minSim := opts.MinSimilarity
	if minSim == 0 {
		minSim = e.defaults.SimilarityThreshold
	}
	tiers := opts.Tiers
	if len(tiers) == 0 {
		tiers = DefaultTiers
	}

	embedStart := time.Now()
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.collector.RecordError(ctx, "retrieve", "embed")
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	e.collector.RecordStage(ctx, "retrieve", "embed", time.Since(embedStart).Milliseconds())

	tq := store.TierQuery{
		Vector:        vec,
		MinSimilarity: minSim,
		From:          opts.From,
		To:            opts.To,
	}

	scanStart := time.Now()
	timedOut := false
	best := make(map[string]store.Candidate)
	for _, tier := range tiers {
		if ctx.Err() != nil {
			timedOut = true
			break
		}
		cands, err := e.store.SearchTier(tier, tq)
		if err != nil {
			return nil, err
		}
		for _, c := range cands {
			if prev, ok := best[c.Record.ID]; ok && prev.Similarity >= c.Similarity {
				continue
			}
			best[c.Record.ID] = c
		}
	}
	e.collector.RecordStage(ctx, "retrieve", "scan", time.Since(scanStart).Milliseconds())

	merged := make([]store.Candidate, 0, len(best))
	for _, c := range best {
		merged = append(merged, c)
	}
	rank(merged)

	totalFound := len(merged)
	if len(merged) > maxResults {
		merged = merged[:maxResults]
	}

	views := make([]models.RecordView, 0, len(merged))
	var touched []string
	for _, c := range merged {
		view := c.Record.View(c.Tier)
		view.Similarity = c.Similarity
		if !opts.IncludeContext {
			view.Context = nil
		}
		views = append(views, view)
		if c.Tier == models.TierLongTerm {
			touched = append(touched, c.Record.ID)
		}
	}
	e.store.TouchLongTerm(touched)

	status := "success"
	if timedOut {
		status = "timeout"
	}
	elapsed := time.Since(start).Milliseconds()
	e.collector.RecordOperation(ctx, "retrieve", status, elapsed)

	return &models.RetrievalResult{
		Memories:    views,
		TotalFound:  totalFound,
		QueryTimeMs: elapsed,
		TimedOut:    timedOut,
	}, nil
}

// rank orders candidates by similarity, then importance, then recency.
// Scores within epsilon of each other tie and fall through to the next
// factor.
func rank(cands []store.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if math.Abs(a.Similarity-b.Similarity) > epsilon {
			return a.Similarity > b.Similarity
		}
		if math.Abs(a.Record.Importance-b.Record.Importance) > epsilon {
			return a.Record.Importance > b.Record.Importance
		}
		return a.Record.Timestamp.After(b.Record.Timestamp)
	})
}
