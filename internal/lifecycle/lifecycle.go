// Package lifecycle runs the background maintenance passes of the memory
// engine: consolidation into long-term memory and eviction across the
// bounded tiers.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/avensora/strata/internal/metrics"
	"github.com/avensora/strata/internal/models"
	"github.com/avensora/strata/internal/store"
)

// ConsolidationReport summarizes one consolidation pass.
type ConsolidationReport struct {
	Promoted        int `json:"promoted"`
	AlreadyResident int `json:"already_resident"`
	Missing         int `json:"missing"`
	Skipped         int `json:"skipped"`
	Swept           int `json:"swept"`
}

// EvictionReport summarizes one eviction pass across the bounded tiers.
type EvictionReport struct {
	Evicted   int `json:"evicted"`
	Truncated int `json:"truncated"`
	Trimmed   int `json:"trimmed"`
}

// Manager executes memory lifecycle passes against the tier store.
type Manager struct {
	store     *store.TierStore
	collector metrics.Collector
	logger    *slog.Logger

	mu               sync.Mutex
	lastConsolidated time.Time
}

// NewManager creates a lifecycle manager.
func NewManager(st *store.TierStore, collector metrics.Collector, logger *slog.Logger) *Manager {
	return &Manager{
		store:     st,
		collector: collector,
		logger:    logger,
	}
}

// RunConsolidation promotes queued records into long-term memory, then
// sweeps the short-term tier for aged high-importance records whose queue
// entry was dropped. Both paths go through the same promotion, so a
// record appearing in both is promoted once.
func (m *Manager) RunConsolidation(ctx context.Context) *ConsolidationReport {
	start := time.Now()
	report := &ConsolidationReport{}

	seen := make(map[string]struct{})
	for _, id := range m.store.DrainConsolidationQueue() {
		if ctx.Err() != nil {
			return report
		}
		seen[id] = struct{}{}
		m.consider(id, report)
	}

	for _, id := range m.store.SweepShortTerm(time.Now().UTC()) {
		if ctx.Err() != nil {
			return report
		}
		if _, ok := seen[id]; ok {
			continue
		}
		report.Swept++
		m.consider(id, report)
	}

	m.mu.Lock()
	m.lastConsolidated = time.Now().UTC()
	m.mu.Unlock()

	m.collector.RecordOperation(ctx, "consolidate", "success", time.Since(start).Milliseconds())
	m.updateTierGauges(ctx)

	if report.Promoted > 0 || report.Missing > 0 || report.Skipped > 0 {
		m.logger.Info("consolidation pass complete",
			"promoted", report.Promoted,
			"already_resident", report.AlreadyResident,
			"missing", report.Missing,
			"skipped", report.Skipped,
			"swept", report.Swept)
	}
	return report
}

// consider re-verifies a candidate's importance against the threshold,
// then promotes it and classifies the result.
func (m *Manager) consider(id string, report *ConsolidationReport) {
	if rec, err := m.store.Get(id, models.TierShortTerm); err == nil &&
		rec.Importance < m.store.Config().LongTermThreshold {
		report.Skipped++
		m.logger.Debug("consolidation candidate below threshold", "id", id, "importance", rec.Importance)
		return
	}

	promoted, err := m.store.PromoteToLongTerm(id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		report.Missing++
		m.logger.Debug("consolidation candidate no longer resident", "id", id)
	case err != nil:
		m.logger.Error("promoting record", "id", id, "error", err)
	case promoted:
		report.Promoted++
	default:
		report.AlreadyResident++
	}
}

// RunEviction evicts expired short-term records, truncates the episodic
// log to its cap, and trims the working set to capacity with decayed
// relevance. Short-term records at or above the long-term threshold
// survive regardless of age; consolidation moves them instead.
func (m *Manager) RunEviction(ctx context.Context) *EvictionReport {
	start := time.Now()
	now := time.Now().UTC()
	report := &EvictionReport{}

	report.Evicted = m.store.EvictShortTerm(m.store.ExpiredShortTerm(now))
	report.Truncated = m.store.TruncateEpisodic()
	report.Trimmed = m.store.TrimWorking(now)

	m.collector.RecordOperation(ctx, "evict", "success", time.Since(start).Milliseconds())
	m.updateTierGauges(ctx)

	if report.Evicted > 0 || report.Truncated > 0 || report.Trimmed > 0 {
		m.logger.Info("eviction pass complete",
			"evicted", report.Evicted,
			"truncated", report.Truncated,
			"trimmed", report.Trimmed)
	}
	return report
}

// LastConsolidation reports when the most recent consolidation pass
// finished. Zero until the first pass.
func (m *Manager) LastConsolidation() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastConsolidated
}

func (m *Manager) updateTierGauges(ctx context.Context) {
	counts := m.store.Counts()
	m.collector.SetTierCount(ctx, string(models.TierShortTerm), int64(counts.ShortTerm))
	m.collector.SetTierCount(ctx, string(models.TierLongTerm), int64(counts.LongTerm))
	m.collector.SetTierCount(ctx, string(models.TierEpisodic), int64(counts.Episodic))
	m.collector.SetTierCount(ctx, string(models.TierSemantic), int64(counts.Semantic))
	m.collector.SetTierCount(ctx, string(models.TierWorking), int64(counts.Working))
}
