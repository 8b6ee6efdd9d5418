package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is one periodic maintenance pass.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Scheduler drives lifecycle tasks on independent tickers. Each task runs
// on its own goroutine; a pass that outlasts its interval delays the next
// tick instead of overlapping it.
type Scheduler struct {
	logger *slog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Start launches one goroutine per task. Tasks with a non-positive
// interval are skipped with a warning.
func (s *Scheduler) Start(tasks ...Task) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, t := range tasks {
		if t.Interval <= 0 {
			s.logger.Warn("skipping background task with non-positive interval", "task", t.Name)
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, t)
	}
}

// Stop cancels all tasks and waits for in-flight passes to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, t)
			// Drop a tick that accumulated while the pass ran so a slow
			// pass is not immediately followed by another.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

// runOnce executes a single pass, containing panics so one bad pass does
// not kill the task's goroutine.
func (s *Scheduler) runOnce(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("background task panicked", "task", t.Name, "panic", r)
		}
	}()
	t.Run(ctx)
}
