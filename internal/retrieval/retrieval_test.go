package retrieval_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avensora/strata/internal/metrics"
	"github.com/avensora/strata/internal/models"
	"github.com/avensora/strata/internal/retrieval"
	"github.com/avensora/strata/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fixedEmbedder returns the same vector for every input, so tests control
// similarity entirely through the stored records' embeddings.
type fixedEmbedder struct {
	vec []float32
	err error
}

func (f fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f fixedEmbedder) Dimension() int { return len(f.vec) }

// Unit vectors with a known cosine against the query axis [1 0 0 0].
var (
	queryVec   = []float32{1, 0, 0, 0}
	simOne     = []float32{1, 0, 0, 0}
	simNearOne = []float32{0.95, 0.31225, 0, 0}
	simMid     = []float32{0.6, 0.8, 0, 0}
	simZero    = []float32{0, 1, 0, 0}
)

func newTestEngine(st *store.TierStore, defaults retrieval.Defaults) *retrieval.Engine {
	return retrieval.NewEngine(st, fixedEmbedder{vec: queryVec}, metrics.NewNoopCollector(), testLogger(), defaults)
}

func ingest(t *testing.T, st *store.TierStore, importance float64, vec []float32) string {
	t.Helper()
	id, err := st.Ingest(&models.Record{
		SessionID:  "sess-1",
		Source:     "test",
		Payload:    models.Payload{Input: "remember the deploy window"},
		Importance: importance,
		Embedding:  vec,
	})
	require.NoError(t, err)
	return id
}

func resultIDs(res *models.RetrievalResult) []string {
	ids := make([]string, 0, len(res.Memories))
	for _, m := range res.Memories {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestEngine_RanksBySimilarity(t *testing.T) {
	st := store.New(store.Config{}, testLogger())
	exactID := ingest(t, st, 0.5, simOne)
	midID := ingest(t, st, 0.5, simMid)
	ingest(t, st, 0.5, simZero)

	e := newTestEngine(st, retrieval.Defaults{})
	res, err := e.Retrieve(context.Background(), "deploy window", retrieval.Options{MinSimilarity: 0.3})
	require.NoError(t, err)

	assert.Equal(t, []string{exactID, midID}, resultIDs(res))
	assert.Equal(t, 2, res.TotalFound)
	assert.InDelta(t, 1.0, res.Memories[0].Similarity, 1e-3)
	assert.InDelta(t, 0.6, res.Memories[1].Similarity, 1e-3)
	assert.False(t, res.TimedOut)
}

func TestEngine_ImportanceBreaksNearTies(t *testing.T) {
	st := store.New(store.Config{}, testLogger())
	plainID := ingest(t, st, 0.3, simOne)
	weightyID := ingest(t, st, 0.9, simNearOne)

	e := newTestEngine(st, retrieval.Defaults{})
	res, err := e.Retrieve(context.Background(), "deploy window", retrieval.Options{MinSimilarity: 0.3})
	require.NoError(t, err)

	// Similarities 1.0 and 0.95 land in the same band, so the clearly
	// higher importance decides.
	assert.Equal(t, []string{weightyID, plainID}, resultIDs(res))
}

func TestEngine_RecencyBreaksFullTies(t *testing.T) {
	st := store.New(store.Config{}, testLogger())

	older := &models.Record{
		Payload:    models.Payload{Input: "first"},
		Importance: 0.5,
		Embedding:  simOne,
		Timestamp:  time.Now().UTC().Add(-time.Hour),
	}
	olderID, err := st.Ingest(older)
	require.NoError(t, err)
	newerID := ingest(t, st, 0.5, simOne)

	e := newTestEngine(st, retrieval.Defaults{})
	res, err := e.Retrieve(context.Background(), "deploy window", retrieval.Options{MinSimilarity: 0.3})
	require.NoError(t, err)

	assert.Equal(t, []string{newerID, olderID}, resultIDs(res))
}

func TestEngine_MaxResultsKeepsTotalFound(t *testing.T) {
	st := store.New(store.Config{}, testLogger())
	for i := 0; i < 5; i++ {
		ingest(t, st, 0.5, simOne)
	}

	e := newTestEngine(st, retrieval.Defaults{})
	res, err := e.Retrieve(context.Background(), "deploy window", retrieval.Options{MaxResults: 2, MinSimilarity: 0.3})
	require.NoError(t, err)

	assert.Len(t, res.Memories, 2)
	assert.Equal(t, 5, res.TotalFound)
}

func TestEngine_DefaultTiersSkipEpisodicAndWorking(t *testing.T) {
	st := store.New(store.Config{}, testLogger())
	id := ingest(t, st, 0.2, simOne)
	require.Equal(t, 1, st.EvictShortTerm([]string{id}))

	e := newTestEngine(st, retrieval.Defaults{})

	res, err := e.Retrieve(context.Background(), "deploy window", retrieval.Options{MinSimilarity: 0.3})
	require.NoError(t, err)
	assert.Empty(t, res.Memories, "the record now lives only in tiers outside the default set")

	res, err = e.Retrieve(context.Background(), "deploy window", retrieval.Options{
		MinSimilarity: 0.3,
		Tiers:         []models.Tier{models.TierEpisodic},
	})
	require.NoError(t, err)
	require.Len(t, res.Memories, 1)
	assert.Equal(t, models.TierEpisodic, res.Memories[0].Tier)

	res, err = e.Retrieve(context.Background(), "deploy window", retrieval.Options{
		MinSimilarity: 0.3,
		Tiers:         []models.Tier{models.TierWorking},
	})
	require.NoError(t, err)
	assert.Len(t, res.Memories, 1)
}

func TestEngine_DedupesAcrossTiers(t *testing.T) {
	st := store.New(store.Config{}, testLogger())
	id := ingest(t, st, 0.5, simOne)

	e := newTestEngine(st, retrieval.Defaults{})
	res, err := e.Retrieve(context.Background(), "deploy window", retrieval.Options{
		MinSimilarity: 0.3,
		Tiers:         []models.Tier{models.TierShortTerm, models.TierEpisodic},
	})
	require.NoError(t, err)

	require.Len(t, res.Memories, 1, "the same record in two tiers is one match")
	assert.Equal(t, 1, res.TotalFound)
	assert.Equal(t, id, res.Memories[0].ID)
}

func TestEngine_MinSimilarityFilters(t *testing.T) {
	st := store.New(store.Config{}, testLogger())
	exactID := ingest(t, st, 0.5, simOne)
	ingest(t, st, 0.5, simMid)

	e := newTestEngine(st, retrieval.Defaults{})
	res, err := e.Retrieve(context.Background(), "deploy window", retrieval.Options{MinSimilarity: 0.8})
	require.NoError(t, err)
	assert.Equal(t, []string{exactID}, resultIDs(res))

	// An unset option falls back to the engine's configured threshold.
	strict := newTestEngine(st, retrieval.Defaults{SimilarityThreshold: 0.8})
	res, err = strict.Retrieve(context.Background(), "deploy window", retrieval.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{exactID}, resultIDs(res))
}

func TestEngine_TimeWindow(t *testing.T) {
	st := store.New(store.Config{}, testLogger())
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	mk := func(ts time.Time) string {
		rec := &models.Record{
			Payload:    models.Payload{Input: "remember the deploy window"},
			Importance: 0.5,
			Embedding:  simOne,
			Timestamp:  ts,
		}
		id, err := st.Ingest(rec)
		require.NoError(t, err)
		return id
	}
	mk(t0.Add(-2 * time.Hour))
	midID := mk(t0.Add(-1 * time.Hour))
	mk(t0)

	e := newTestEngine(st, retrieval.Defaults{})
	res, err := e.Retrieve(context.Background(), "deploy window", retrieval.Options{
		MinSimilarity: 0.3,
		From:          t0.Add(-90 * time.Minute),
		To:            t0.Add(-30 * time.Minute),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{midID}, resultIDs(res))
}

func TestEngine_EmbedderFailureIsFatal(t *testing.T) {
	st := store.New(store.Config{}, testLogger())
	ingest(t, st, 0.5, simOne)

	e := retrieval.NewEngine(st, fixedEmbedder{err: errors.New("model offline")},
		metrics.NewNoopCollector(), testLogger(), retrieval.Defaults{})

	res, err := e.Retrieve(context.Background(), "deploy window", retrieval.Options{})
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorContains(t, err, "embedding query")
}

func TestEngine_ContextOnlyWhenRequested(t *testing.T) {
	st := store.New(store.Config{}, testLogger())
	rec := &models.Record{
		Payload:    models.Payload{Input: "remember the deploy window"},
		Importance: 0.5,
		Embedding:  simOne,
		Context:    &models.ContextSummary{Complexity: 0.4, SessionID: "sess-1"},
	}
	_, err := st.Ingest(rec)
	require.NoError(t, err)

	e := newTestEngine(st, retrieval.Defaults{})

	res, err := e.Retrieve(context.Background(), "deploy window", retrieval.Options{MinSimilarity: 0.3})
	require.NoError(t, err)
	require.Len(t, res.Memories, 1)
	assert.Nil(t, res.Memories[0].Context)

	res, err = e.Retrieve(context.Background(), "deploy window", retrieval.Options{
		MinSimilarity:  0.3,
		IncludeContext: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Memories, 1)
	require.NotNil(t, res.Memories[0].Context)
	assert.InDelta(t, 0.4, res.Memories[0].Context.Complexity, 0.001)
}

func TestEngine_CancelledContextReturnsPartialResult(t *testing.T) {
	st := store.New(store.Config{}, testLogger())
	ingest(t, st, 0.5, simOne)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestEngine(st, retrieval.Defaults{})
	res, err := e.Retrieve(ctx, "deploy window", retrieval.Options{MinSimilarity: 0.3})
	require.NoError(t, err, "expiry mid-scan is a partial result, not a failure")
	assert.True(t, res.TimedOut)
	assert.Empty(t, res.Memories)
	assert.Zero(t, res.TotalFound)
}

func TestEngine_TouchesOnlyReturnedLongTermHits(t *testing.T) {
	st := store.New(store.Config{}, testLogger())
	hitID := ingest(t, st, 0.9, simOne)
	spareID := ingest(t, st, 0.9, simMid)
	_, err := st.PromoteToLongTerm(hitID)
	require.NoError(t, err)
	_, err = st.PromoteToLongTerm(spareID)
	require.NoError(t, err)

	e := newTestEngine(st, retrieval.Defaults{})
	res, err := e.Retrieve(context.Background(), "deploy window", retrieval.Options{
		MaxResults:    1,
		MinSimilarity: 0.3,
	})
	require.NoError(t, err)
	require.Equal(t, []string{hitID}, resultIDs(res))

	hit, err := st.GetLongTerm(hitID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hit.AccessCount)

	spare, err := st.GetLongTerm(spareID)
	require.NoError(t, err)
	assert.Zero(t, spare.AccessCount, "matches cut by the limit are not access hits")
}

func TestEngine_UnknownTierPropagates(t *testing.T) {
	st := store.New(store.Config{}, testLogger())

	e := newTestEngine(st, retrieval.Defaults{})
	_, err := e.Retrieve(context.Background(), "deploy window", retrieval.Options{
		Tiers: []models.Tier{models.Tier("mid_term")},
	})
	assert.ErrorIs(t, err, store.ErrUnknownTier)
}
