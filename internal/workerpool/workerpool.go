// Package workerpool executes IngestJobs with bounded parallelism: a
// buffered admission queue, a fixed concurrency ceiling, and cooperative
// cancellation that lets in-flight jobs finish.
package workerpool

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/zakupai/etl-core/internal/config"
	"github.com/zakupai/etl-core/internal/models"
)

// Hook receives per-job status transitions. The default is a no-op; tests
// substitute a recording sink. Must be safe for concurrent use: it is the
// only component allowed to mutate shared state across worker goroutines.
type Hook interface {
	OnJobStatus(job models.IngestJob)
}

type noopHook struct{}

func (noopHook) OnJobStatus(models.IngestJob) {}

// Runner executes one job's full Fetcher -> Unpacker -> Extractor -> Indexer
// pipeline and returns the job updated with its terminal status.
type Runner func(ctx context.Context, job models.IngestJob) models.IngestJob

// Pool bounds concurrent execution of IngestJobs to cfg.MaxWorkers, buffering
// up to cfg.QueueCapacity admitted jobs ahead of them.
type Pool struct {
	cfg     config.WorkerPoolConfig
	run     Runner
	hook    Hook
	queue   chan models.IngestJob
	sem     *semaphore.Weighted
	group   *errgroup.Group
	gctx    context.Context
	once    sync.Once
	stopCh  chan struct{}
	metrics *Metrics
}

// New builds a Pool. hook may be nil, in which case job status transitions
// are discarded. reg registers queue-depth and worker-utilization gauges;
// nil skips registration.
func New(cfg config.WorkerPoolConfig, run Runner, hook Hook, reg prometheus.Registerer) *Pool {
	if hook == nil {
		hook = noopHook{}
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	return &Pool{
		cfg:     cfg,
		run:     run,
		hook:    hook,
		queue:   make(chan models.IngestJob, cfg.QueueCapacity),
		sem:     semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		stopCh:  make(chan struct{}),
		metrics: NewMetrics(reg),
	}
}

// Start launches the dispatcher loop, which admits queued jobs into at most
// MaxWorkers concurrent pipeline runs. Call Drain to wait for completion.
func (p *Pool) Start(ctx context.Context) {
	group, gctx := errgroup.WithContext(ctx)
	p.group = group
	p.gctx = gctx

	group.Go(func() error {
		p.dispatch(ctx)
		return nil
	})
}

// Enqueue admits job into the queue. It is non-blocking until the queue
// fills to QueueCapacity, then blocks the caller until a slot frees up or
// ctx is cancelled.
func (p *Pool) Enqueue(ctx context.Context, job models.IngestJob) error {
	select {
	case p.queue <- job:
		p.metrics.setQueueDepth(len(p.queue))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals the pool to stop dequeueing new jobs. In-flight jobs run to
// completion; Drain still must be called to wait for them.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.stopCh) })
}

// Drain closes the admission queue and waits for the dispatcher and every
// in-flight job to finish.
func (p *Pool) Drain() {
	close(p.queue)
	_ = p.group.Wait()
}

func (p *Pool) dispatch(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-p.stopCh:
			p.drainRemaining(&wg)
			return
		case job, ok := <-p.queue:
			if !ok {
				return
			}
			p.metrics.setQueueDepth(len(p.queue))
			if err := p.sem.Acquire(ctx, 1); err != nil {
				// Context canceled while waiting for a slot: the job never
				// ran, report it as such so the Coordinator counts it.
				job.Status = models.JobFailed
				job.ErrorKind = "cancelled"
				p.hook.OnJobStatus(job)
				p.metrics.recordJob(string(job.Status), job.ErrorKind)
				continue
			}
			p.metrics.workerAcquired()
			wg.Add(1)
			go func(job models.IngestJob) {
				defer wg.Done()
				defer p.sem.Release(1)
				defer p.metrics.workerReleased()
				p.runOne(ctx, job)
			}(job)
		}
	}
}

// drainRemaining flushes any jobs already sitting in the queue when Stop was
// called, marking them cancelled rather than running them: the pool stops
// dequeueing new work but lets in-flight jobs finish.
func (p *Pool) drainRemaining(wg *sync.WaitGroup) {
	for {
		select {
		case job, ok := <-p.queue:
			if !ok {
				return
			}
			job.Status = models.JobFailed
			job.ErrorKind = "cancelled"
			p.hook.OnJobStatus(job)
			p.metrics.recordJob(string(job.Status), job.ErrorKind)
		default:
			return
		}
	}
}

func (p *Pool) runOne(ctx context.Context, job models.IngestJob) {
	job.Status = models.JobFetching
	p.hook.OnJobStatus(job)

	finished := p.run(ctx, job)
	p.hook.OnJobStatus(finished)
	p.metrics.recordJob(string(finished.Status), finished.ErrorKind)
}
