// Package engine assembles the memory subsystem and exposes its boundary
// operations: ingest, retrieve, recent, facts, status, snapshot, close.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avensora/strata/internal/config"
	"github.com/avensora/strata/internal/embedder"
	"github.com/avensora/strata/internal/importance"
	"github.com/avensora/strata/internal/lifecycle"
	"github.com/avensora/strata/internal/metrics"
	"github.com/avensora/strata/internal/models"
	"github.com/avensora/strata/internal/persist"
	"github.com/avensora/strata/internal/retrieval"
	"github.com/avensora/strata/internal/store"
)

// ErrEmptyPayload is returned when an ingest or fact carries no content.
var ErrEmptyPayload = errors.New("interaction input is empty")

// Engine owns the tier store and every component around it. All boundary
// methods are safe for concurrent use.
type Engine struct {
	cfg       *config.Config
	store     *store.TierStore
	scorer    *importance.Scorer
	embedder  embedder.Embedder
	retrieval *retrieval.Engine
	manager   *lifecycle.Manager
	gateway   *persist.Gateway
	scheduler *lifecycle.Scheduler
	collector metrics.Collector
	logger    *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Option overrides a component during construction.
type Option func(*Engine)

// WithEmbedder replaces the config-selected embedding provider.
func WithEmbedder(emb embedder.Embedder) Option {
	return func(e *Engine) { e.embedder = emb }
}

// New builds the engine from configuration and loads the persisted
// snapshot. Background schedules do not run until Start.
func New(cfg *config.Config, collector metrics.Collector, logger *slog.Logger, opts ...Option) (*Engine, error) {
	st := store.New(store.Config{
		LongTermThreshold:  cfg.Store.LongTermThreshold,
		ShortTermRetention: time.Duration(cfg.Store.ShortTermRetentionHours) * time.Hour,
		SweepAgeFloor:      time.Duration(cfg.Store.SweepAgeHours) * time.Hour,
		MaxEpisodes:        cfg.Store.MaxEpisodes,
		MaxWorkingItems:    cfg.Store.MaxWorkingItems,
		QueueSize:          cfg.Store.QueueSize,
	}, logger)

	e := &Engine{
		cfg:       cfg,
		store:     st,
		scorer:    importance.NewScorer(cfg.Importance),
		manager:   lifecycle.NewManager(st, collector, logger),
		gateway:   persist.NewGateway(cfg.Store.DataDir, cfg.Store.AgentID, logger),
		scheduler: lifecycle.NewScheduler(logger),
		collector: collector,
		logger:    logger,
	}

	emb, err := buildEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}
	e.embedder = emb

	for _, opt := range opts {
		opt(e)
	}

	e.retrieval = retrieval.NewEngine(st, e.embedder, collector, logger, retrieval.Defaults{
		MaxResults:          cfg.Retrieval.MaxResults,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
	})

	if err := e.gateway.LoadSnapshot(st); err != nil {
		logger.Warn("snapshot loaded with partial data", "error", err)
	}
	counts := st.Counts()
	logger.Info("memory engine ready",
		"agent_id", cfg.Store.AgentID,
		"short_term", counts.ShortTerm,
		"long_term", counts.LongTerm,
		"episodic", counts.Episodic,
		"semantic", counts.Semantic)

	return e, nil
}

// buildEmbedder constructs the configured provider, wrapped in the
// ristretto cache unless caching is disabled.
func buildEmbedder(cfg *config.Config, logger *slog.Logger) (embedder.Embedder, error) {
	var emb embedder.Embedder
	switch cfg.Embedding.Provider {
	case "ollama":
		emb = embedder.NewOllamaEmbedder(cfg.Embedding.Ollama.BaseURL, cfg.Embedding.Ollama.Model, cfg.Embedding.Dimension, logger)
	default:
		emb = embedder.NewHashEmbedder(cfg.Embedding.Dimension)
	}

	if cfg.Embedding.CacheEntries > 0 {
		cached, err := embedder.NewCachingEmbedder(emb, cfg.Embedding.CacheEntries)
		if err != nil {
			return nil, fmt.Errorf("building embedding cache: %w", err)
		}
		return cached, nil
	}
	return emb, nil
}

// Start launches the consolidation, eviction, and autosave schedules.
func (e *Engine) Start() {
	e.scheduler.Start(
		lifecycle.Task{
			Name:     "consolidation",
			Interval: e.cfg.Store.ConsolidationInterval,
			Run:      func(ctx context.Context) { e.manager.RunConsolidation(ctx) },
		},
		lifecycle.Task{
			Name:     "eviction",
			Interval: e.cfg.Store.EvictionInterval,
			Run:      func(ctx context.Context) { e.manager.RunEviction(ctx) },
		},
		lifecycle.Task{
			Name:     "autosave",
			Interval: e.cfg.Store.AutosaveInterval,
			Run: func(ctx context.Context) {
				if err := e.SaveSnapshot(); err != nil {
					e.logger.Error("autosave failed", "error", err)
				}
			},
		},
	)
	e.logger.Info("background schedules started",
		"consolidation", e.cfg.Store.ConsolidationInterval,
		"eviction", e.cfg.Store.EvictionInterval,
		"autosave", e.cfg.Store.AutosaveInterval)
}

// Ingest annotates one interaction and writes it into the tiers. A non-nil
// warning means the record was stored without an embedding because the
// provider failed; the record stays retrievable by recency, not by
// similarity. The returned error is fatal: nothing was stored.
func (e *Engine) Ingest(ctx context.Context, in models.Interaction) (id string, warning error, err error) {
	start := time.Now()

	if strings.TrimSpace(in.Input) == "" {
		e.collector.RecordError(ctx, "ingest", "empty_input")
		return "", nil, ErrEmptyPayload
	}
	if in.SessionID == "" {
		in.SessionID = uuid.NewString()
	}

	embedStart := time.Now()
	vec, embErr := e.embedder.Embed(ctx, in.Input)
	if embErr != nil {
		e.collector.RecordError(ctx, "ingest", "embed")
		e.logger.Warn("embedding failed, storing record without vector", "error", embErr)
		vec = nil
		warning = fmt.Errorf("embedding interaction: %w", embErr)
	}
	e.collector.RecordStage(ctx, "ingest", "embed", time.Since(embedStart).Milliseconds())

	rec := &models.Record{
		SessionID: in.SessionID,
		Source:    in.Source,
		Payload: models.Payload{
			Input:    in.Input,
			Response: in.Response,
			Emotion:  in.Emotion,
			Decision: in.Decision,
			Logic:    in.Logic,
		},
		Importance: e.scorer.Score(in),
		Embedding:  vec,
		Context:    models.Summarize(in),
	}

	id, err = e.store.Ingest(rec)
	if err != nil {
		e.collector.RecordError(ctx, "ingest", "store")
		return "", nil, fmt.Errorf("ingesting interaction: %w", err)
	}

	e.collector.RecordOperation(ctx, "ingest", "success", time.Since(start).Milliseconds())
	return id, warning, nil
}

// Retrieve runs a similarity search over the memory tiers.
func (e *Engine) Retrieve(ctx context.Context, query string, opts retrieval.Options) (*models.RetrievalResult, error) {
	return e.retrieval.Retrieve(ctx, query, opts)
}

// GetRecent returns views of the last n episodic records, most recent
// first.
func (e *Engine) GetRecent(n int) []models.RecordView {
	recs := e.store.GetRecent(n)
	views := make([]models.RecordView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, rec.View(models.TierEpisodic))
	}
	return views
}

// Get returns a view of one record from one tier.
func (e *Engine) Get(id string, tier models.Tier) (*models.RecordView, error) {
	if !tier.IsValid() {
		return nil, fmt.Errorf("%w: %s", store.ErrUnknownTier, tier)
	}
	rec, err := e.store.Get(id, tier)
	if err != nil {
		return nil, err
	}
	view := rec.View(tier)
	return &view, nil
}

// StoreFact writes a standalone fact into the semantic tier. Confidence
// is clamped to [0,1] and doubles as the fact's importance.
func (e *Engine) StoreFact(ctx context.Context, content string, confidence float64, source string) (string, error) {
	start := time.Now()

	if strings.TrimSpace(content) == "" {
		e.collector.RecordError(ctx, "fact", "empty_input")
		return "", ErrEmptyPayload
	}

	vec, embErr := e.embedder.Embed(ctx, content)
	if embErr != nil {
		e.collector.RecordError(ctx, "fact", "embed")
		e.logger.Warn("embedding failed, storing fact without vector", "error", embErr)
		vec = nil
	}

	rec := &models.Record{
		Source:     source,
		Payload:    models.Payload{Input: content},
		Importance: clamp01(confidence),
		Embedding:  vec,
	}

	id, err := e.store.PutFact(rec)
	if err != nil {
		e.collector.RecordError(ctx, "fact", "store")
		return "", fmt.Errorf("storing fact: %w", err)
	}

	e.collector.RecordOperation(ctx, "fact", "success", time.Since(start).Milliseconds())
	return id, nil
}

// Status reports tier occupancy, queue depth, and the last consolidation
// time.
func (e *Engine) Status() models.Status {
	st := e.store.Counts()
	st.LastConsolidation = e.manager.LastConsolidation()
	return st
}

// RunConsolidation triggers one consolidation pass outside the schedule.
func (e *Engine) RunConsolidation(ctx context.Context) *lifecycle.ConsolidationReport {
	return e.manager.RunConsolidation(ctx)
}

// RunEviction triggers one eviction pass outside the schedule.
func (e *Engine) RunEviction(ctx context.Context) *lifecycle.EvictionReport {
	return e.manager.RunEviction(ctx)
}

// SaveSnapshot persists the durable tiers to disk.
func (e *Engine) SaveSnapshot() error {
	start := time.Now()
	if err := e.gateway.SaveSnapshot(e.store); err != nil {
		e.collector.RecordError(context.Background(), "save", "write")
		return err
	}
	e.collector.RecordOperation(context.Background(), "save", "success", time.Since(start).Milliseconds())
	return nil
}

// Close stops the schedules, rejects further writes, and saves a final
// snapshot. A save failure is returned but shutdown still completes.
// Safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.scheduler.Stop()
		e.store.Close()
		if err := e.SaveSnapshot(); err != nil {
			e.logger.Error("final snapshot save failed", "error", err)
			e.closeErr = fmt.Errorf("final snapshot save: %w", err)
		}
		e.logger.Info("memory engine closed")
	})
	return e.closeErr
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
