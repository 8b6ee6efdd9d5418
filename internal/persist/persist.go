// Package persist reads and writes the durable tier snapshots as JSON
// artifacts on local disk, one file per tier, namespaced by agent id.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/avensora/strata/internal/models"
	"github.com/avensora/strata/internal/store"
)

// episodicKeep caps how much of the episodic log is written to disk.
const episodicKeep = 1000

// Gateway persists tier snapshots under a data directory. Artifacts are
// named <agent_id>_<tier>.json so multiple agents can share a directory.
type Gateway struct {
	dir     string
	agentID string
	logger  *slog.Logger
}

// NewGateway creates a persistence gateway rooted at dir.
func NewGateway(dir, agentID string, logger *slog.Logger) *Gateway {
	return &Gateway{
		dir:     dir,
		agentID: agentID,
		logger:  logger,
	}
}

// SaveSnapshot copies the durable tiers out of the store and writes all
// four artifacts. No tier lock is held during file I/O.
func (g *Gateway) SaveSnapshot(st *store.TierStore) error {
	return g.writeSnapshot(st.Snapshot())
}

// LoadSnapshot reads whatever artifacts exist and restores them into the
// store. A missing artifact is a fresh start for that tier; an unreadable
// or corrupt one leaves the tier empty and is reported in the joined
// error, so one bad file never blocks the rest of the snapshot.
func (g *Gateway) LoadSnapshot(st *store.TierStore) error {
	snap, err := g.readSnapshot()
	st.Restore(snap)
	return err
}

// writeSnapshot writes all four durable tiers. Each artifact is written
// to a temporary file and renamed into place, so a crash mid-save leaves
// the previous artifact intact. Failures are collected per artifact; the
// remaining tiers are still written.
func (g *Gateway) writeSnapshot(snap *store.Snapshot) error {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	shortTerm := sortRecords(snap.ShortTerm)
	longTerm := sortLongTermRecords(snap.LongTerm)
	semantic := sortRecords(snap.Semantic)

	episodic := snap.Episodic
	if len(episodic) > episodicKeep {
		episodic = episodic[len(episodic)-episodicKeep:]
	}

	return errors.Join(
		g.writeArtifact(models.TierShortTerm, shortTerm),
		g.writeArtifact(models.TierLongTerm, longTerm),
		g.writeArtifact(models.TierEpisodic, episodic),
		g.writeArtifact(models.TierSemantic, semantic),
	)
}

func (g *Gateway) readSnapshot() (*store.Snapshot, error) {
	snap := &store.Snapshot{}
	var errs []error

	shortTerm, err := loadArtifact[[]models.Record](g, models.TierShortTerm)
	if err != nil {
		errs = append(errs, err)
	}
	snap.ShortTerm = shortTerm

	longTerm, err := loadArtifact[[]models.LongTermRecord](g, models.TierLongTerm)
	if err != nil {
		errs = append(errs, err)
	}
	snap.LongTerm = longTerm

	episodic, err := loadArtifact[[]models.Record](g, models.TierEpisodic)
	if err != nil {
		errs = append(errs, err)
	}
	snap.Episodic = episodic

	semantic, err := loadArtifact[[]models.Record](g, models.TierSemantic)
	if err != nil {
		errs = append(errs, err)
	}
	snap.Semantic = semantic

	return snap, errors.Join(errs...)
}

// ArtifactPath returns where one tier's artifact lives on disk.
func (g *Gateway) ArtifactPath(tier models.Tier) string {
	return filepath.Join(g.dir, fmt.Sprintf("%s_%s.json", g.agentID, tier))
}

func (g *Gateway) writeArtifact(tier models.Tier, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s artifact: %w", tier, err)
	}

	path := g.ArtifactPath(tier)
	tmp, err := os.CreateTemp(g.dir, fmt.Sprintf(".%s_%s-*.json", g.agentID, tier))
	if err != nil {
		return fmt.Errorf("creating temp file for %s artifact: %w", tier, err)
	}

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s artifact: %w", tier, errors.Join(writeErr, closeErr))
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing %s artifact: %w", tier, err)
	}
	return nil
}

func loadArtifact[T any](g *Gateway, tier models.Tier) (T, error) {
	var out T
	path := g.ArtifactPath(tier)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		g.logger.Debug("no artifact on disk, starting tier empty", "tier", tier, "path", path)
		return out, nil
	}
	if err != nil {
		g.logger.Warn("unreadable artifact, starting tier empty", "tier", tier, "path", path, "error", err)
		return out, fmt.Errorf("reading %s artifact: %w", tier, err)
	}

	if err := json.Unmarshal(data, &out); err != nil {
		g.logger.Warn("corrupt artifact, starting tier empty", "tier", tier, "path", path, "error", err)
		var zero T
		return zero, fmt.Errorf("decoding %s artifact: %w", tier, err)
	}
	return out, nil
}

// sortRecords orders records by timestamp then id so artifacts are stable
// across saves of the same state.
func sortRecords(recs []models.Record) []models.Record {
	out := append([]models.Record(nil), recs...)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortLongTermRecords(recs []models.LongTermRecord) []models.LongTermRecord {
	out := append([]models.LongTermRecord(nil), recs...)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
