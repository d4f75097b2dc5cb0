package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/FACorreiaa/go-trip-planner/app/observability/metrics"
)

var (
	ErrQueueFull  = errors.New("worker queue is full")
	ErrPoolClosed = errors.New("worker pool is closed")
)

// Job is a unit of background work. Run receives the pool's context, which is
// cancelled only when Shutdown gives up waiting.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// JobError is delivered on the error channel when a job fails or panics.
type JobError struct {
	Job string
	Err error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s: %v", e.Job, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// Pool runs submitted jobs on a fixed number of goroutines fed by a bounded queue.
type Pool struct {
	logger *slog.Logger
	jobs   chan Job
	errs   chan *JobError

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool(workers, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		logger: logger.With(slog.String("component", "worker_pool")),
		jobs:   make(chan Job, queueSize),
		errs:   make(chan *JobError, queueSize+workers),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	return p
}

// Submit enqueues job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		metrics.Get().WorkerJobsTotal.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("outcome", "rejected")))
		return ErrQueueFull
	}
}

// Errors exposes failed jobs. The channel is buffered; when nobody drains it
// further failures are only logged.
func (p *Pool) Errors() <-chan *JobError {
	return p.errs
}

// Shutdown stops accepting jobs and waits for queued ones to finish. If ctx
// expires first the running jobs are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		close(p.errs)
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		close(p.errs)
		return ctx.Err()
	}
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(id, job)
	}
}

func (p *Pool) run(id int, job Job) {
	start := time.Now()
	l := p.logger.With(slog.Int("worker", id), slog.String("job", job.Name))

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return job.Run(p.ctx)
	}()

	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
		l.Error("Background job failed", slog.Any("error", err), slog.Duration("elapsed", time.Since(start)))
		select {
		case p.errs <- &JobError{Job: job.Name, Err: err}:
		default:
			l.Warn("Error channel full, dropping job error")
		}
	} else {
		l.Debug("Background job finished", slog.Duration("elapsed", time.Since(start)))
	}
	metrics.Get().WorkerJobsTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}
