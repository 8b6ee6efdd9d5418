package lifecycle_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avensora/strata/internal/lifecycle"
)

func TestScheduler_RunsTaskPeriodically(t *testing.T) {
	s := lifecycle.NewScheduler(testLogger())
	defer s.Stop()

	var runs atomic.Int64
	s.Start(lifecycle.Task{
		Name:     "count",
		Interval: 5 * time.Millisecond,
		Run:      func(ctx context.Context) { runs.Add(1) },
	})

	require.Eventually(t, func() bool { return runs.Load() >= 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestScheduler_StopWaitsForInflightPass(t *testing.T) {
	s := lifecycle.NewScheduler(testLogger())

	var once sync.Once
	started := make(chan struct{})
	var finished atomic.Bool
	s.Start(lifecycle.Task{
		Name:     "slow",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) {
			once.Do(func() { close(started) })
			time.Sleep(30 * time.Millisecond)
			finished.Store(true)
		},
	})

	<-started
	s.Stop()
	assert.True(t, finished.Load(), "Stop returns only after the running pass finishes")
}

func TestScheduler_SkipsNonPositiveInterval(t *testing.T) {
	s := lifecycle.NewScheduler(testLogger())

	var runs atomic.Int64
	s.Start(lifecycle.Task{
		Name: "disabled",
		Run:  func(ctx context.Context) { runs.Add(1) },
	})

	time.Sleep(20 * time.Millisecond)
	s.Stop()
	assert.Zero(t, runs.Load())
}

func TestScheduler_RecoversFromPanickingTask(t *testing.T) {
	s := lifecycle.NewScheduler(testLogger())
	defer s.Stop()

	var runs atomic.Int64
	s.Start(lifecycle.Task{
		Name:     "flaky",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) {
			runs.Add(1)
			panic("pass blew up")
		},
	})

	// A second run proves the first panic did not kill the goroutine.
	require.Eventually(t, func() bool { return runs.Load() >= 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s := lifecycle.NewScheduler(testLogger())
	assert.NotPanics(t, func() { s.Stop() })
	assert.NotPanics(t, func() { s.Stop() })
}
