package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bnema/hlsd/internal/domain"
	"github.com/bnema/hlsd/internal/infrastructure/logger"
	"github.com/bnema/hlsd/internal/infrastructure/metrics"
	"golang.org/x/sync/errgroup"
)

const defaultQueueSize = 256

type SubmitResult string

const (
	SubmitAccepted      SubmitResult = "accepted"
	SubmitAlreadyActive SubmitResult = "already_active"
	SubmitAlreadyQueued SubmitResult = "already_queued"
	SubmitQueueFull     SubmitResult = "queue_full"
	SubmitStopped       SubmitResult = "stopped"
	SubmitInvalid       SubmitResult = "invalid"
)

// Runner runs one job to completion.
type Runner interface {
	Run(ctx context.Context, job domain.EncodeJob) Result
}

type PipelineConfig struct {
	Workers   int
	QueueSize int
}

// Pipeline is a FIFO queue drained by a fixed pool of workers. An id is
// either absent or present exactly once across the queue and the running
// jobs.
type Pipeline struct {
	runner  Runner
	cache   *ProgressCache
	pub     *statusPublisher
	logger  *slog.Logger
	workers int

	queue chan domain.EncodeJob
	slots chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu       sync.Mutex
	inflight map[string]struct{}
	started  bool
	stopped  bool
}

func NewPipeline(
	runner Runner,
	cache *ProgressCache,
	writer *MetadataWriter,
	events EventPublisher,
	log *slog.Logger,
	cfg PipelineConfig,
) *Pipeline {
	workers := max(cfg.Workers, 1)
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		runner:   runner,
		cache:    cache,
		pub:      &statusPublisher{cache: cache, writer: writer, events: events},
		logger:   log,
		workers:  workers,
		queue:    make(chan domain.EncodeJob, size),
		slots:    make(chan struct{}, size),
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[string]struct{}),
	}
}

// Submit enqueues job unless the item is already queued or encoding. It
// never waits for a worker; a full queue rejects the job.
func (p *Pipeline) Submit(ctx context.Context, job domain.EncodeJob) SubmitResult {
	res := p.submit(ctx, job)
	metrics.SubmissionsTotal.WithLabelValues(string(res)).Inc()

	log := p.logger.With("media_id", logger.SanitizeForLog(job.MediaID), "result", res)
	switch res {
	case SubmitAccepted:
		log.Info("encode queued")
	case SubmitQueueFull, SubmitStopped, SubmitInvalid:
		log.Warn("encode rejected")
	default:
		log.Debug("encode already pending")
	}
	return res
}

func (p *Pipeline) submit(ctx context.Context, job domain.EncodeJob) SubmitResult {
	if err := domain.ValidateID(job.MediaID); err != nil {
		return SubmitInvalid
	}
	if p.cache.IsActive(job.MediaID) {
		return SubmitAlreadyActive
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return SubmitStopped
	}
	if _, ok := p.inflight[job.MediaID]; ok {
		p.mu.Unlock()
		return SubmitAlreadyQueued
	}
	select {
	case p.slots <- struct{}{}:
	default:
		p.mu.Unlock()
		return SubmitQueueFull
	}
	p.inflight[job.MediaID] = struct{}{}
	p.startLocked()
	p.mu.Unlock()

	// The queued state is recorded before a worker can see the job, so it
	// never overwrites the worker's first update.
	p.pub.reset(ctx, job.MediaID, domain.ProgressRecord{
		Status: domain.HLSStatusProcessing,
		Step:   domain.StepQueued,
	})

	metrics.QueueDepth.Inc()
	p.queue <- job
	return SubmitAccepted
}

func (p *Pipeline) startLocked() {
	if p.started {
		return
	}
	p.started = true

	g, ctx := errgroup.WithContext(p.ctx)
	p.group = g
	for i := range p.workers {
		worker := i + 1
		g.Go(func() error {
			p.work(ctx, worker)
			return nil
		})
	}
	p.logger.Info("encode workers started", "workers", p.workers)
}

func (p *Pipeline) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue:
			<-p.slots
			metrics.QueueDepth.Dec()
			if ctx.Err() != nil {
				// Stopping: leave the persisted queued state for the next
				// reconciliation.
				p.release(job.MediaID)
				continue
			}
			p.runJob(ctx, worker, job)
		}
	}
}

func (p *Pipeline) runJob(ctx context.Context, worker int, job domain.EncodeJob) {
	defer p.release(job.MediaID)
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("encode aborted: %v", r)
			p.logger.Error("worker recovered from panic",
				"worker", worker,
				"media_id", logger.SanitizeForLog(job.MediaID),
				"error", msg,
			)
			p.pub.status(ctx, job.MediaID, domain.HLSUpdate{
				Status: domain.Ptr(domain.HLSStatusFailed),
				Step:   domain.Ptr(domain.StepError),
				Error:  domain.Ptr(msg),
			})
		}
	}()

	p.logger.Debug("encode picked up", "worker", worker, "media_id", logger.SanitizeForLog(job.MediaID))
	p.runner.Run(ctx, job)
}

func (p *Pipeline) release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, id)
}

// Pending reports how many items are queued or encoding.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}

// WaitIdle blocks until nothing is queued or encoding.
func (p *Pipeline) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for p.Pending() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Stop rejects further submissions, kills running encoders and waits for
// the workers to exit. Jobs still queued are dropped; their persisted state
// lets the next reconciliation pick them up.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	group := p.group
	p.mu.Unlock()

	p.cancel()
	if group == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()
	select {
	case err := <-done:
		p.dropQueued()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dropQueued empties the queue after the workers have exited.
func (p *Pipeline) dropQueued() {
	for {
		select {
		case job := <-p.queue:
			<-p.slots
			metrics.QueueDepth.Dec()
			p.release(job.MediaID)
		default:
			return
		}
	}
}
