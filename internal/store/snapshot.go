package store

import (
	"github.com/avensora/strata/internal/models"
)

// Snapshot is a point-in-time copy of the durable tiers. The working set
// is deliberately absent: it is a session cache and rebuilds from scratch.
type Snapshot struct {
	ShortTerm []models.Record         `json:"short_term"`
	LongTerm  []models.LongTermRecord `json:"long_term"`
	Episodic  []models.Record         `json:"episodic"`
	Semantic  []models.Record         `json:"semantic"`
}

// Snapshot copies the four durable tiers. Each tier is copied under its
// own read lock, so the snapshot is consistent per tier but not across
// tiers; a record mid-consolidation may appear in both ShortTerm and
// LongTerm, which Restore resolves in LongTerm's favor.
func (s *TierStore) Snapshot() *Snapshot {
	snap := &Snapshot{}

	s.shortMu.RLock()
	snap.ShortTerm = make([]models.Record, 0, len(s.shortTerm))
	for _, rec := range s.shortTerm {
		snap.ShortTerm = append(snap.ShortTerm, *rec)
	}
	s.shortMu.RUnlock()

	s.longMu.RLock()
	snap.LongTerm = make([]models.LongTermRecord, 0, len(s.longTerm))
	for _, lt := range s.longTerm {
		snap.LongTerm = append(snap.LongTerm, *lt)
	}
	s.longMu.RUnlock()

	s.epiMu.RLock()
	snap.Episodic = make([]models.Record, 0, len(s.episodic))
	for _, rec := range s.episodic {
		snap.Episodic = append(snap.Episodic, *rec)
	}
	s.epiMu.RUnlock()

	s.semMu.RLock()
	snap.Semantic = make([]models.Record, 0, len(s.semantic))
	for _, rec := range s.semantic {
		snap.Semantic = append(snap.Semantic, *rec)
	}
	s.semMu.RUnlock()

	return snap
}

// Restore replaces the durable tiers with the snapshot's contents. Ids
// present in both ShortTerm and LongTerm keep only the long-term copy.
// Intended for startup, before the store is shared across goroutines.
func (s *TierStore) Restore(snap *Snapshot) {
	if snap == nil {
		return
	}

	promoted := make(map[string]struct{}, len(snap.LongTerm))

	s.longMu.Lock()
	s.longTerm = make(map[string]*models.LongTermRecord, len(snap.LongTerm))
	for i := range snap.LongTerm {
		lt := snap.LongTerm[i]
		s.longTerm[lt.ID] = &lt
		promoted[lt.ID] = struct{}{}
	}
	s.longMu.Unlock()

	s.shortMu.Lock()
	s.shortTerm = make(map[string]*models.Record, len(snap.ShortTerm))
	for i := range snap.ShortTerm {
		rec := snap.ShortTerm[i]
		if _, ok := promoted[rec.ID]; ok {
			continue
		}
		s.shortTerm[rec.ID] = &rec
	}
	s.shortMu.Unlock()

	s.epiMu.Lock()
	s.episodic = make([]*models.Record, 0, len(snap.Episodic))
	for i := range snap.Episodic {
		rec := snap.Episodic[i]
		s.episodic = append(s.episodic, &rec)
	}
	s.epiMu.Unlock()

	s.semMu.Lock()
	s.semantic = make(map[string]*models.Record, len(snap.Semantic))
	for i := range snap.Semantic {
		rec := snap.Semantic[i]
		s.semantic[rec.ID] = &rec
	}
	s.semMu.Unlock()
}
