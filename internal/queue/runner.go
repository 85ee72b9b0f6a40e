package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/glueful/glueful/internal/telemetry"
)

// Handler processes one reserved job. A nil return deletes the job; an error
// releases it with backoff until attempts reach maxAttempts, then archives it
// to the failed store.
type Handler func(ctx context.Context, job *Job) error

// RunnerOptions tunes a worker loop.
type RunnerOptions struct {
	// Queue to consume; empty means DefaultQueue.
	Queue string
	// Concurrency is the number of worker goroutines. Zero means 1.
	Concurrency int
	// PollInterval is the sleep between empty pops. Zero means 1s.
	PollInterval time.Duration
	// Backoff computes retry delays. Zero value falls back to DefaultBackoff.
	Backoff Backoff
}

// Runner pops jobs from a driver and dispatches them to registered handlers.
// Job state transitions happen only through the driver, so any number of
// runner processes can share a queue.
type Runner struct {
	driver  Driver
	opts    RunnerOptions
	metrics *telemetry.QueueMetrics

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRunner creates a worker for the given driver.
func NewRunner(driver Driver, opts RunnerOptions, metrics *telemetry.QueueMetrics) *Runner {
	if opts.Queue == "" {
		opts.Queue = DefaultQueue
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff()
	}
	return &Runner{
		driver:   driver,
		opts:     opts,
		metrics:  metrics,
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler name to its function. Later registrations under
// the same name replace earlier ones.
func (r *Runner) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *Runner) handler(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Run consumes jobs until the context is cancelled. It returns after all
// worker goroutines have drained.
func (r *Runner) Run(ctx context.Context) error {
	log.Printf("queue runner: starting %d worker(s) on queue %q", r.opts.Concurrency, r.opts.Queue)

	var wg sync.WaitGroup
	for i := 0; i < r.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.workLoop(ctx)
		}()
	}
	wg.Wait()

	log.Printf("queue runner: stopped queue %q", r.opts.Queue)
	return ctx.Err()
}

func (r *Runner) workLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := r.driver.Pop(ctx, r.opts.Queue)
		if err != nil {
			log.Printf("queue runner: pop failed on %q: %v", r.opts.Queue, err)
			r.sleep(ctx, r.opts.PollInterval)
			continue
		}
		if job == nil {
			r.sleep(ctx, r.opts.PollInterval)
			continue
		}

		r.ProcessOne(ctx, job)
	}
}

// ProcessOne runs a single reserved job through its handler and settles its
// outcome with the driver: delete on success, backoff release on retryable
// failure, fail-archive once attempts reach maxAttempts.
func (r *Runner) ProcessOne(ctx context.Context, job *Job) {
	start := time.Now()
	err := r.invoke(ctx, job)
	r.metrics.RecordDuration(ctx, job.Queue, time.Since(start))

	if err == nil {
		if delErr := r.driver.Delete(ctx, job); delErr != nil {
			log.Printf("queue runner: delete %s failed: %v", job.UUID, delErr)
		}
		return
	}

	if job.Attempts >= job.MaxAttempts {
		log.Printf("queue runner: job %s (%s) exhausted %d attempts: %v", job.UUID, job.Handler, job.Attempts, err)
		if failErr := r.driver.Fail(ctx, job, err); failErr != nil {
			log.Printf("queue runner: fail %s failed: %v", job.UUID, failErr)
		}
		return
	}

	delay := r.opts.Backoff.Delay(job.Attempts)
	log.Printf("queue runner: job %s (%s) attempt %d/%d failed, retrying in %s: %v",
		job.UUID, job.Handler, job.Attempts, job.MaxAttempts, delay, err)
	if relErr := r.driver.Release(ctx, job, delay); relErr != nil {
		log.Printf("queue runner: release %s failed: %v", job.UUID, relErr)
	}
}

// invoke runs the handler under the job's timeout. The timeout is
// cooperative: the handler goroutine keeps running after expiry, but its
// result is discarded and the job is treated as failed.
func (r *Runner) invoke(ctx context.Context, job *Job) error {
	h, ok := r.handler(job.Handler)
	if !ok {
		return fmt.Errorf("no handler registered for %q", job.Handler)
	}

	timeout := time.Duration(job.Timeout) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeout * time.Second
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- h(jobCtx, job)
	}()

	select {
	case err := <-done:
		return err
	case <-jobCtx.Done():
		return fmt.Errorf("job %s timed out after %s: %w", job.UUID, timeout, jobCtx.Err())
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
