package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Run is one accepted import request.
type Run struct {
	ID      string
	Request ImportRequest
}

// Executor carries a run through to a terminal state.
type Executor interface {
	Execute(ctx context.Context, run Run) error
}

// Worker executes accepted runs on its own goroutine, one at a time,
// detached from the request that launched them.
type Worker struct {
	executor Executor
	queue    chan Run

	mu      sync.Mutex
	stopped bool
}

func NewWorker(executor Executor) *Worker {
	return &Worker{
		executor: executor,
		queue:    make(chan Run, 1),
	}
}

// Submit hands a run to the worker. Non-blocking; reports false when a run
// is already queued or the worker has stopped.
func (w *Worker) Submit(run Run) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	select {
	case w.queue <- run:
		return true
	default:
		return false
	}
}

// Run blocks until ctx is cancelled and any in-flight run has returned.
// After that Submit refuses new runs, and a run still queued is executed
// with the cancelled ctx so it ends in a terminal state instead of
// staying "running".
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.stop(ctx)
			return
		case run := <-w.queue:
			w.execute(ctx, run)
		}
	}
}

func (w *Worker) stop(ctx context.Context) {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	for {
		select {
		case run := <-w.queue:
			w.execute(ctx, run)
		default:
			return
		}
	}
}

func (w *Worker) execute(ctx context.Context, run Run) {
	start := time.Now()
	slog.Info("worker: running import", "job", run.ID, "ticker", run.Request.Ticker, "period", run.Request.Period)

	err := w.executor.Execute(ctx, run)
	elapsed := time.Since(start).Round(time.Millisecond)
	switch {
	case err == nil:
		slog.Info("worker: import completed", "job", run.ID, "ticker", run.Request.Ticker, "elapsed", elapsed)
	case errors.Is(err, ErrNoData):
		slog.Info("worker: import found no data", "job", run.ID, "ticker", run.Request.Ticker, "elapsed", elapsed)
	default:
		slog.Error("worker: import failed", "job", run.ID, "ticker", run.Request.Ticker, "elapsed", elapsed, "error", err)
	}
}
