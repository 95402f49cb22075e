// Package pool provides a bounded worker pool for CPU-bound work such as
// embedding model inference. Jobs queue when all workers are busy; submission
// fails once the queue is full or the submit timeout elapses, so saturation
// surfaces as an error instead of unbounded goroutine growth.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrPoolClosed is returned when submitting to a closed pool.
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrSubmitTimeout is returned when a job cannot be enqueued before the
	// submit timeout elapses.
	ErrSubmitTimeout = errors.New("worker pool submit timed out")
)

type Job struct {
	ID      string
	Execute func(ctx context.Context) error

	done chan error
}

type Config struct {
	Name         string
	NumWorkers   int
	MaxQueueSize int
}

func DefaultConfig() Config {
	return Config{
		Name:         "worker-pool",
		NumWorkers:   4,
		MaxQueueSize: 64,
	}
}

type Pool struct {
	name string

	jobs   chan *Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closed atomic.Bool

	jobsSubmitted atomic.Int64
	jobsCompleted atomic.Int64
	jobsFailed    atomic.Int64
	jobsRejected  atomic.Int64
}

type Stats struct {
	Name      string
	Submitted int64
	Completed int64
	Failed    int64
	Rejected  int64
}

func New(cfg Config) *Pool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:   cfg.Name,
		jobs:   make(chan *Job, cfg.MaxQueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < cfg.NumWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			err := job.Execute(p.ctx)
			if err != nil {
				p.jobsFailed.Add(1)
			} else {
				p.jobsCompleted.Add(1)
			}
			job.done <- err
		}
	}
}

// Submit enqueues a job and waits for its completion. The submit timeout
// bounds only the enqueue wait; once a worker picks the job up, the job's own
// context handling governs execution time. ctx cancellation aborts the wait
// in both phases.
func (p *Pool) Submit(ctx context.Context, job *Job, submitTimeout time.Duration) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	job.done = make(chan error, 1)
	p.jobsSubmitted.Add(1)

	timer := time.NewTimer(submitTimeout)
	defer timer.Stop()

	select {
	case p.jobs <- job:
	case <-timer.C:
		p.jobsRejected.Add(1)
		return ErrSubmitTimeout
	case <-ctx.Done():
		p.jobsRejected.Add(1)
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	}

	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

func (p *Pool) Stats() Stats {
	return Stats{
		Name:      p.name,
		Submitted: p.jobsSubmitted.Load(),
		Completed: p.jobsCompleted.Load(),
		Failed:    p.jobsFailed.Load(),
		Rejected:  p.jobsRejected.Load(),
	}
}

func (p *Pool) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.cancel()
	p.wg.Wait()
	return nil
}
