// Package store implements the tiered memory store: five record
// collections with independent retention policies, guarded by per-tier
// read/write locks. All mutation of tier contents happens here.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/avensora/strata/internal/embedder"
	"github.com/avensora/strata/internal/models"
)

var (
	// ErrClosed is returned by writes after the store has shut down.
	ErrClosed = errors.New("store is closed")

	// ErrNotFound is returned when the requested record is not resident in
	// the requested tier.
	ErrNotFound = errors.New("record not found")

	// ErrUnknownTier is returned for tier names outside models.ValidTiers.
	ErrUnknownTier = errors.New("unknown tier")
)

// Working-set admission and relevance constants. These are behavioral
// constants, not configuration.
const (
	workingImportanceFloor = 0.6
	workingComplexityFloor = 0.7
	workingFreshWindow     = 10 * time.Minute
	relevanceHalfLife      = time.Hour
	relevanceRecencyWeight = 0.2
)

// Config bounds the tiers and sets the promotion policy.
type Config struct {
	// LongTermThreshold is the minimum importance for consolidation into
	// LongTerm. Records below it are eligible for short-term eviction.
	LongTermThreshold float64

	// ShortTermRetention is how long an unimportant record may stay in
	// ShortTerm before eviction.
	ShortTermRetention time.Duration

	// SweepAgeFloor is the minimum age before the consolidation sweep
	// considers a short-term record whose queue entry was lost.
	SweepAgeFloor time.Duration

	// MaxEpisodes caps the episodic log; the head is truncated beyond it.
	MaxEpisodes int

	// MaxWorkingItems caps the working set; lowest relevance drops first.
	MaxWorkingItems int

	// QueueSize is the consolidation queue capacity. A full queue drops
	// the enqueue and leaves promotion to the short-term sweep.
	QueueSize int
}

// ApplyDefaults fills unset fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.LongTermThreshold <= 0 {
		c.LongTermThreshold = 0.7
	}
	if c.ShortTermRetention <= 0 {
		c.ShortTermRetention = 24 * time.Hour
	}
	if c.SweepAgeFloor <= 0 {
		c.SweepAgeFloor = 2 * time.Hour
	}
	if c.MaxEpisodes <= 0 {
		c.MaxEpisodes = 1000
	}
	if c.MaxWorkingItems <= 0 {
		c.MaxWorkingItems = 100
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
}

// TierStore owns the five record collections and all their locking.
// Multi-tier operations acquire locks in the fixed order ShortTerm,
// LongTerm, Episodic, Semantic, Working to rule out lock-order inversion.
type TierStore struct {
	cfg    Config
	logger *slog.Logger

	shortMu   sync.RWMutex
	shortTerm map[string]*models.Record

	longMu   sync.RWMutex
	longTerm map[string]*models.LongTermRecord

	epiMu    sync.RWMutex
	episodic []*models.Record

	semMu    sync.RWMutex
	semantic map[string]*models.Record

	workMu  sync.RWMutex
	working map[string]*models.WorkingRecord

	queue  chan string
	closed atomic.Bool
}

// New creates an empty tier store.
func New(cfg Config, logger *slog.Logger) *TierStore {
	cfg.ApplyDefaults()
	return &TierStore{
		cfg:       cfg,
		logger:    logger,
		shortTerm: make(map[string]*models.Record),
		longTerm:  make(map[string]*models.LongTermRecord),
		semantic:  make(map[string]*models.Record),
		working:   make(map[string]*models.WorkingRecord),
		queue:     make(chan string, cfg.QueueSize),
	}
}

// Config returns the store's effective configuration.
func (s *TierStore) Config() Config {
	return s.cfg
}

// Close marks the store shut down. Subsequent writes fail with ErrClosed;
// reads keep working so a final snapshot can still be taken.
func (s *TierStore) Close() {
	s.closed.Store(true)
}

// Ingest writes a fully annotated record into ShortTerm and Episodic,
// admits it to the working set, and queues it for consolidation when its
// importance clears the long-term threshold. Assigns the record id when
// unset. The store takes ownership of rec; callers must not mutate it
// afterwards.
func (s *TierStore) Ingest(rec *models.Record) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now
	}

	s.shortMu.Lock()
	s.shortTerm[rec.ID] = rec
	s.shortMu.Unlock()

	s.epiMu.Lock()
	s.episodic = append(s.episodic, rec)
	s.epiMu.Unlock()

	if admitToWorking(rec, now) {
		wr := &models.WorkingRecord{Record: *rec, Relevance: workingRelevance(rec, now)}
		s.workMu.Lock()
		s.working[rec.ID] = wr
		s.workMu.Unlock()
	}

	if rec.Importance >= s.cfg.LongTermThreshold {
		s.EnqueueConsolidation(rec.ID)
	}

	return rec.ID, nil
}

// EnqueueConsolidation queues an id for promotion into long-term memory.
// Returns false when the queue is full; the short-term sweep picks the
// record up instead.
func (s *TierStore) EnqueueConsolidation(id string) bool {
	select {
	case s.queue <- id:
		return true
	default:
		s.logger.Warn("consolidation queue full, record left for the short-term sweep", "id", id)
		return false
	}
}

// PutFact stores a standalone fact in the Semantic tier. Assigns the record
// id when unset.
func (s *TierStore) PutFact(rec *models.Record) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	s.semMu.Lock()
	s.semantic[rec.ID] = rec
	s.semMu.Unlock()

	return rec.ID, nil
}

// Get returns a copy of the identified record from the given tier. Tier
// metadata (consolidation bookkeeping, working relevance) is not included;
// use GetLongTerm or GetWorking for the annotated forms.
func (s *TierStore) Get(id string, tier models.Tier) (*models.Record, error) {
	switch tier {
	case models.TierShortTerm:
		s.shortMu.RLock()
		defer s.shortMu.RUnlock()
		if rec, ok := s.shortTerm[id]; ok {
			return cloneRecord(rec), nil
		}
	case models.TierLongTerm:
		s.longMu.RLock()
		defer s.longMu.RUnlock()
		if lt, ok := s.longTerm[id]; ok {
			return cloneRecord(&lt.Record), nil
		}
	case models.TierEpisodic:
		s.epiMu.RLock()
		defer s.epiMu.RUnlock()
		for _, rec := range s.episodic {
			if rec.ID == id {
				return cloneRecord(rec), nil
			}
		}
	case models.TierSemantic:
		s.semMu.RLock()
		defer s.semMu.RUnlock()
		if rec, ok := s.semantic[id]; ok {
			return cloneRecord(rec), nil
		}
	case models.TierWorking:
		s.workMu.RLock()
		defer s.workMu.RUnlock()
		if wr, ok := s.working[id]; ok {
			return cloneRecord(&wr.Record), nil
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, id, tier)
}

// GetLongTerm returns a copy of a long-term record with its consolidation
// bookkeeping.
func (s *TierStore) GetLongTerm(id string) (*models.LongTermRecord, error) {
	s.longMu.RLock()
	defer s.longMu.RUnlock()
	lt, ok := s.longTerm[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, id, models.TierLongTerm)
	}
	out := *lt
	out.Record = *cloneRecord(&lt.Record)
	return &out, nil
}

// GetWorking returns a copy of a working record with its relevance.
func (s *TierStore) GetWorking(id string) (*models.WorkingRecord, error) {
	s.workMu.RLock()
	defer s.workMu.RUnlock()
	wr, ok := s.working[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, id, models.TierWorking)
	}
	out := *wr
	out.Record = *cloneRecord(&wr.Record)
	return &out, nil
}

// GetRecent returns copies of the last n episodic records, most recent
// first.
func (s *TierStore) GetRecent(n int) []models.Record {
	if n <= 0 {
		return nil
	}
	s.epiMu.RLock()
	defer s.epiMu.RUnlock()
	if n > len(s.episodic) {
		n = len(s.episodic)
	}
	out := make([]models.Record, 0, n)
	for i := len(s.episodic) - 1; i >= len(s.episodic)-n; i-- {
		out = append(out, *s.episodic[i])
	}
	return out
}

// PromoteToLongTerm moves the identified short-term record into LongTerm
// with fresh consolidation metadata. Promoting an id already resident in
// LongTerm only clears any lingering short-term copy and reports false.
func (s *TierStore) PromoteToLongTerm(id string) (bool, error) {
	s.shortMu.Lock()
	defer s.shortMu.Unlock()
	s.longMu.Lock()
	defer s.longMu.Unlock()

	if _, exists := s.longTerm[id]; exists {
		delete(s.shortTerm, id)
		return false, nil
	}
	rec, ok := s.shortTerm[id]
	if !ok {
		return false, fmt.Errorf("%w: %s in %s", ErrNotFound, id, models.TierShortTerm)
	}

	s.longTerm[id] = &models.LongTermRecord{
		Record:         *rec,
		ConsolidatedAt: time.Now().UTC(),
	}
	delete(s.shortTerm, id)
	return true, nil
}

// TouchLongTerm records a retrieval hit on each identified long-term
// record, incrementing its access count and stamping the access time.
func (s *TierStore) TouchLongTerm(ids []string) {
	if len(ids) == 0 {
		return
	}
	now := time.Now().UTC()
	s.longMu.Lock()
	defer s.longMu.Unlock()
	for _, id := range ids {
		if lt, ok := s.longTerm[id]; ok {
			lt.AccessCount++
			lt.LastAccessed = now
		}
	}
}

// ExpiredShortTerm lists the short-term records old enough and unimportant
// enough to evict at the given instant.
func (s *TierStore) ExpiredShortTerm(now time.Time) []string {
	s.shortMu.RLock()
	defer s.shortMu.RUnlock()
	var ids []string
	for id, rec := range s.shortTerm {
		if now.Sub(rec.Timestamp) > s.cfg.ShortTermRetention && rec.Importance < s.cfg.LongTermThreshold {
			ids = append(ids, id)
		}
	}
	return ids
}

// SweepShortTerm lists aged short-term records whose importance clears the
// long-term threshold: promotion candidates the queue may have missed.
func (s *TierStore) SweepShortTerm(now time.Time) []string {
	s.shortMu.RLock()
	defer s.shortMu.RUnlock()
	var ids []string
	for id, rec := range s.shortTerm {
		if now.Sub(rec.Timestamp) > s.cfg.SweepAgeFloor && rec.Importance >= s.cfg.LongTermThreshold {
			ids = append(ids, id)
		}
	}
	return ids
}

// EvictShortTerm deletes the identified short-term records. Records whose
// importance clears the long-term threshold are never deleted here, no
// matter what the caller passed; they stay resident until consolidation
// moves them.
func (s *TierStore) EvictShortTerm(ids []string) int {
	s.shortMu.Lock()
	defer s.shortMu.Unlock()
	evicted := 0
	for _, id := range ids {
		rec, ok := s.shortTerm[id]
		if !ok {
			continue
		}
		if rec.Importance >= s.cfg.LongTermThreshold {
			continue
		}
		delete(s.shortTerm, id)
		evicted++
	}
	return evicted
}

// TruncateEpisodic trims the episodic log from the head until it fits
// MaxEpisodes. Returns the number of records dropped.
func (s *TierStore) TruncateEpisodic() int {
	s.epiMu.Lock()
	defer s.epiMu.Unlock()
	excess := len(s.episodic) - s.cfg.MaxEpisodes
	if excess <= 0 {
		return 0
	}
	trimmed := make([]*models.Record, s.cfg.MaxEpisodes)
	copy(trimmed, s.episodic[excess:])
	s.episodic = trimmed
	return excess
}

// TrimWorking re-scores every working record with decayed relevance and,
// when the set exceeds its capacity, keeps exactly the top MaxWorkingItems.
// Returns the number of records dropped.
func (s *TierStore) TrimWorking(now time.Time) int {
	s.workMu.Lock()
	defer s.workMu.Unlock()

	for _, wr := range s.working {
		wr.Relevance = workingRelevance(&wr.Record, now)
	}

	excess := len(s.working) - s.cfg.MaxWorkingItems
	if excess <= 0 {
		return 0
	}

	all := make([]*models.WorkingRecord, 0, len(s.working))
	for _, wr := range s.working {
		all = append(all, wr)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Relevance != all[j].Relevance {
			return all[i].Relevance > all[j].Relevance
		}
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	for _, wr := range all[s.cfg.MaxWorkingItems:] {
		delete(s.working, wr.ID)
	}
	return excess
}

// TierQuery is one tier's slice of a similarity search. Zero From/To leave
// that bound open; both bounds are inclusive.
type TierQuery struct {
	Vector        []float32
	MinSimilarity float64
	From, To      time.Time
}

// Candidate pairs a matched record with its similarity and home tier.
type Candidate struct {
	Record     models.Record
	Tier       models.Tier
	Similarity float64
}

// SearchTier scores every embedded record in one tier against the query
// vector under the tier's read lock. Records without an embedding are
// skipped rather than scored at zero.
func (s *TierStore) SearchTier(tier models.Tier, q TierQuery) ([]Candidate, error) {
	var out []Candidate
	collect := func(rec *models.Record) {
		if sim, ok := match(rec, q); ok {
			out = append(out, Candidate{Record: *rec, Tier: tier, Similarity: sim})
		}
	}

	switch tier {
	case models.TierShortTerm:
		s.shortMu.RLock()
		defer s.shortMu.RUnlock()
		for _, rec := range s.shortTerm {
			collect(rec)
		}
	case models.TierLongTerm:
		s.longMu.RLock()
		defer s.longMu.RUnlock()
		for _, lt := range s.longTerm {
			collect(&lt.Record)
		}
	case models.TierEpisodic:
		s.epiMu.RLock()
		defer s.epiMu.RUnlock()
		for _, rec := range s.episodic {
			collect(rec)
		}
	case models.TierSemantic:
		s.semMu.RLock()
		defer s.semMu.RUnlock()
		for _, rec := range s.semantic {
			collect(rec)
		}
	case models.TierWorking:
		s.workMu.RLock()
		defer s.workMu.RUnlock()
		for _, wr := range s.working {
			collect(&wr.Record)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}
	return out, nil
}

// DrainConsolidationQueue empties the pending-promotion queue and returns
// the drained ids in arrival order.
func (s *TierStore) DrainConsolidationQueue() []string {
	var ids []string
	for {
		select {
		case id := <-s.queue:
			ids = append(ids, id)
		default:
			return ids
		}
	}
}

// QueueDepth reports how many ids are waiting for consolidation.
func (s *TierStore) QueueDepth() int {
	return len(s.queue)
}

// Counts reports the resident record count of every tier and the depth of
// the consolidation queue.
func (s *TierStore) Counts() models.Status {
	var st models.Status

	s.shortMu.RLock()
	st.ShortTerm = len(s.shortTerm)
	s.shortMu.RUnlock()

	s.longMu.RLock()
	st.LongTerm = len(s.longTerm)
	s.longMu.RUnlock()

	s.epiMu.RLock()
	st.Episodic = len(s.episodic)
	s.epiMu.RUnlock()

	s.semMu.RLock()
	st.Semantic = len(s.semantic)
	s.semMu.RUnlock()

	s.workMu.RLock()
	st.Working = len(s.working)
	s.workMu.RUnlock()

	st.ConsolidationQueueDepth = len(s.queue)
	return st
}

// --- helpers ---

// match applies the embedding, time-range, and similarity filters of q.
func match(rec *models.Record, q TierQuery) (float64, bool) {
	if len(rec.Embedding) == 0 {
		return 0, false
	}
	if !q.From.IsZero() && rec.Timestamp.Before(q.From) {
		return 0, false
	}
	if !q.To.IsZero() && rec.Timestamp.After(q.To) {
		return 0, false
	}
	sim := embedder.CosineSimilarity(q.Vector, rec.Embedding)
	if sim < q.MinSimilarity {
		return 0, false
	}
	return sim, true
}

// admitToWorking reports whether a record qualifies for the working set:
// high importance, complex context, or freshly ingested (the age clause is
// always true straight from ingestion).
func admitToWorking(rec *models.Record, now time.Time) bool {
	if rec.Importance > workingImportanceFloor {
		return true
	}
	if rec.Context != nil && rec.Context.Complexity > workingComplexityFloor {
		return true
	}
	return now.Sub(rec.Timestamp) < workingFreshWindow
}

// workingRelevance scores a record for retention in the working set: its
// fixed importance plus a recency bonus that halves every hour.
func workingRelevance(rec *models.Record, now time.Time) float64 {
	hoursAgo := now.Sub(rec.Timestamp).Hours()
	if hoursAgo < 0 {
		hoursAgo = 0
	}
	bonus := relevanceRecencyWeight * math.Exp(-0.693*hoursAgo/relevanceHalfLife.Hours())
	return clamp01(rec.Importance + bonus)
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

// cloneRecord deep-copies a record so callers cannot mutate stored data.
func cloneRecord(rec *models.Record) *models.Record {
	out := *rec
	if rec.Payload.Emotion != nil {
		e := *rec.Payload.Emotion
		out.Payload.Emotion = &e
	}
	if rec.Payload.Decision != nil {
		d := *rec.Payload.Decision
		out.Payload.Decision = &d
	}
	if rec.Payload.Logic != nil {
		l := models.Logic{Conclusions: append([]string(nil), rec.Payload.Logic.Conclusions...)}
		out.Payload.Logic = &l
	}
	if rec.Context != nil {
		c := *rec.Context
		out.Context = &c
	}
	if rec.Embedding != nil {
		out.Embedding = append([]float32(nil), rec.Embedding...)
	}
	return &out
}
