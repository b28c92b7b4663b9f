package extract

import (
	"context"
	"log/slog"
	"sync"
)

// Worker defaults.
const (
	DefaultWorkers   = 1
	DefaultQueueSize = 64
)

// Runner processes a single extraction job. Implemented by *Pipeline;
// tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, job Job)
}

// WorkerConfig configures the background worker pool.
type WorkerConfig struct {
	Runner  Runner
	Logger  *slog.Logger
	Workers int // number of goroutines (zero-value uses DefaultWorkers)
	Queue   int // job channel capacity (zero-value uses DefaultQueueSize)

	// Ctx is the app lifecycle context passed to Runner.Run; it outlives
	// individual requests so extraction can finish after the HTTP response.
	Ctx context.Context //nolint:containedctx // App lifecycle context, not a request context
}

// Worker drains a bounded job queue with a fixed pool of goroutines.
//
// Submit never blocks the chat path: when the queue is full the job is
// dropped. Close stops intake and waits for queued jobs to finish.
type Worker struct {
	jobs   chan Job
	runner Runner
	logger *slog.Logger
	ctx    context.Context //nolint:containedctx // App lifecycle context, not a request context

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewWorker creates the pool and starts its goroutines.
func NewWorker(cfg WorkerConfig) *Worker {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	queue := cfg.Queue
	if queue <= 0 {
		queue = DefaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx := cfg.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	w := &Worker{
		jobs:   make(chan Job, queue),
		runner: cfg.Runner,
		logger: logger,
		ctx:    ctx,
	}

	w.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go w.loop()
	}

	return w
}

// Submit queues a job without blocking. Returns false when the queue is
// full or the worker is closed; the caller decides whether to log the drop.
func (w *Worker) Submit(job Job) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	select {
	case w.jobs <- job:
		return true
	default:
		return false
	}
}

// Close stops accepting jobs and blocks until queued jobs have been
// processed. Safe to call more than once.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()

	w.wg.Wait()
}

// loop drains the queue until it is closed. A panicking job must not take
// the worker down with it.
func (w *Worker) loop() {
	defer w.wg.Done()
	for job := range w.jobs {
		w.runOne(job)
	}
}

func (w *Worker) runOne(job Job) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("extraction job panicked",
				"session_id", job.SessionID, "panic", r)
		}
	}()
	w.runner.Run(w.ctx, job)
}
