package service

import (
	"context"
	"sync"
	"time"

	"acquiring-gateway/config"
	"acquiring-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

// QueueService implements ports.PaymentQueue: a bounded FIFO drained by a
// fixed worker pool. Failed jobs are re-enqueued with exponential backoff
// up to the retry budget. FIFO holds across workers but not per payment;
// per-payment ordering comes from the payment lock.
type QueueService struct {
	cfg  config.QueueConfig
	jobs chan queuedJob
	log  zerolog.Logger

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

type queuedJob struct {
	job     ports.Job
	attempt int
}

// NewQueueService creates the queue. Call Start to launch the workers.
func NewQueueService(cfg config.QueueConfig, log zerolog.Logger) *QueueService {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 50
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 5 * time.Minute
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &QueueService{
		cfg:     cfg,
		jobs:    make(chan queuedJob, cfg.Capacity),
		log:     log,
		rootCtx: ctx,
		cancel:  cancel,
	}
}

// Start launches the worker pool.
func (s *QueueService) Start() {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.log.Info().
		Int("workers", s.cfg.Workers).
		Int("capacity", s.cfg.Capacity).
		Msg("payment queue started")
}

// Stop cancels in-flight jobs and waits for the workers to exit.
func (s *QueueService) Stop() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}

// Enqueue admits a job or rejects with ErrQueueFull when at capacity.
func (s *QueueService) Enqueue(job ports.Job) error {
	return s.push(queuedJob{job: job})
}

func (s *QueueService) push(qj queuedJob) error {
	select {
	case <-s.rootCtx.Done():
		return s.rootCtx.Err()
	default:
	}
	select {
	case s.jobs <- qj:
		return nil
	default:
		return ports.ErrQueueFull
	}
}

func (s *QueueService) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.rootCtx.Done():
			return
		case qj := <-s.jobs:
			s.execute(id, qj)
		}
	}
}

func (s *QueueService) execute(workerID int, qj queuedJob) {
	ctx, cancel := context.WithTimeout(s.rootCtx, s.cfg.ProcessingTimeout)
	defer cancel()

	err := qj.job.Run(ctx)
	if err == nil {
		return
	}

	// A cancelled job must not retry: it already left the payment in a
	// consistent state (or untouched, for non-idempotent jobs).
	if s.rootCtx.Err() != nil || (ctx.Err() != nil && !qj.job.Idempotent) {
		s.log.Warn().
			Str("job_id", qj.job.ID).
			Str("kind", qj.job.Kind).
			Err(err).
			Msg("job cancelled, not retrying")
		return
	}

	if qj.attempt >= s.cfg.Retries {
		s.log.Error().
			Str("job_id", qj.job.ID).
			Str("kind", qj.job.Kind).
			Int("attempts", qj.attempt+1).
			Err(err).
			Msg("job failed, retry budget exhausted")
		return
	}

	delay := s.cfg.BackoffBase << uint(qj.attempt)
	next := queuedJob{job: qj.job, attempt: qj.attempt + 1}
	s.log.Warn().
		Str("job_id", qj.job.ID).
		Str("kind", qj.job.Kind).
		Int("worker", workerID).
		Int("attempt", qj.attempt+1).
		Dur("backoff", delay).
		Err(err).
		Msg("job failed, scheduling retry")

	time.AfterFunc(delay, func() {
		if err := s.push(next); err != nil {
			s.log.Error().
				Str("job_id", next.job.ID).
				Err(err).
				Msg("retry re-enqueue rejected")
		}
	})
}
