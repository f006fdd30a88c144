package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/clinicai/server/domain/entities"
	"github.com/clinicai/server/domain/repositories"
)

// Failure codes stored on the visit. Raw error text stays in logs only.
const (
	FailureCodeRetriesExhausted = "TRANSCRIPTION_RETRIES_EXHAUSTED"
	FailureCodePermanent        = "TRANSCRIPTION_PERMANENT_FAILURE"
)

// Options tunes the worker loop. Zero values take the defaults below.
type Options struct {
	PollInterval time.Duration
	// Concurrency bounds how many jobs run at once.
	Concurrency int64
	// MaxRetryAttempts counts re-enqueues, not total tries.
	MaxRetryAttempts int
	// StaleThreshold is how long a processing state may sit before another
	// worker treats its owner as crashed.
	StaleThreshold time.Duration
	// VisibilityInterval is how often a running job extends its queue lease;
	// VisibilitySeconds is the length of each extension.
	VisibilityInterval time.Duration
	VisibilitySeconds  int
	HeartbeatInterval  time.Duration
	JobTimeout         time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval == 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.Concurrency == 0 {
		o.Concurrency = 2
	}
	if o.MaxRetryAttempts == 0 {
		o.MaxRetryAttempts = 3
	}
	if o.StaleThreshold == 0 {
		o.StaleThreshold = 20 * time.Minute
	}
	if o.VisibilityInterval == 0 {
		o.VisibilityInterval = 5 * time.Minute
	}
	if o.VisibilitySeconds == 0 {
		o.VisibilitySeconds = 600
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = 60 * time.Second
	}
	if o.JobTimeout == 0 {
		o.JobTimeout = 30 * time.Minute
	}
	return o
}

// Worker consumes transcription jobs and drives the post-visit pipeline.
// Jobs are at-least-once: the idempotency guard plus the repository claim
// keep duplicate deliveries from doing duplicate work.
type Worker struct {
	queue    repositories.JobQueue
	visits   repositories.VisitRepository
	pipeline *Pipeline
	logger   *zap.Logger
	opts     Options
	sem      *semaphore.Weighted
	now      func() time.Time
}

// NewWorker creates a worker.
func NewWorker(queue repositories.JobQueue, visits repositories.VisitRepository, pipeline *Pipeline, opts Options, logger *zap.Logger) *Worker {
	opts = opts.withDefaults()
	return &Worker{
		queue:    queue,
		visits:   visits,
		pipeline: pipeline,
		logger:   logger,
		opts:     opts,
		sem:      semaphore.NewWeighted(opts.Concurrency),
		now:      time.Now,
	}
}

// Run polls the queue until ctx is cancelled, then waits for in-flight jobs.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("transcription worker started",
		zap.Int64("concurrency", w.opts.Concurrency),
		zap.Duration("poll_interval", w.opts.PollInterval))

	var wg sync.WaitGroup
	for {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			break
		}

		msg, err := w.queue.Dequeue(ctx)
		if err != nil {
			w.sem.Release(1)
			w.logger.Error("dequeue failed", zap.Error(err))
			if !sleepCtx(ctx, w.opts.PollInterval) {
				break
			}
			continue
		}
		if msg == nil {
			w.sem.Release(1)
			if !sleepCtx(ctx, w.opts.PollInterval) {
				break
			}
			continue
		}

		wg.Add(1)
		go func(msg *repositories.QueuedMessage) {
			defer wg.Done()
			defer w.sem.Release(1)
			w.ProcessMessage(ctx, msg)
		}(msg)
	}

	wg.Wait()
	w.logger.Info("transcription worker stopped")
	return ctx.Err()
}

// ProcessMessage handles one dequeued job end to end: idempotency guard,
// ownership claim, lease keep-alive, pipeline, and the retry or delete
// decision. Exported so tests can drive single deliveries.
func (w *Worker) ProcessMessage(ctx context.Context, msg *repositories.QueuedMessage) {
	job := msg.Job
	logger := w.logger.With(
		zap.String("visit_id", job.VisitID),
		zap.String("message_id", msg.MessageID),
		zap.String("request_id", job.RequestID),
		zap.Int("retry_count", job.RetryCount))

	ctx, cancel := context.WithTimeout(ctx, w.opts.JobTimeout)
	defer cancel()

	visit, err := w.visits.FindByID(ctx, job.VisitID)
	if err != nil {
		var notFound *entities.VisitNotFoundError
		if errors.As(err, &notFound) {
			logger.Warn("visit gone, dropping job")
			w.deleteMessage(ctx, msg.MessageID, msg.PopReceipt, logger)
			return
		}
		logger.Error("failed to load visit, leaving job for retry", zap.Error(err))
		return
	}

	resume, proceed := w.guard(ctx, visit, msg, logger)
	if !proceed {
		return
	}

	if !resume {
		claimed, err := w.visits.TryClaimTranscription(ctx, job.VisitID)
		if err != nil {
			logger.Error("claim failed, leaving job for retry", zap.Error(err))
			return
		}
		if !claimed {
			logger.Info("visit claimed by another worker, extending lease")
			w.extendOnce(ctx, msg, logger)
			return
		}
		visit.StartTranscription(w.now().UTC())
	}

	// Keep the queue lease and a liveness signal going while the job runs.
	receipts := &receiptTracker{messageID: msg.MessageID, popReceipt: msg.PopReceipt}
	jobCtx, stopKeepAlive := context.WithCancel(ctx)
	var keepAlive sync.WaitGroup
	keepAlive.Add(2)
	go w.extendLoop(jobCtx, &keepAlive, receipts, logger)
	go w.heartbeatLoop(jobCtx, &keepAlive, job.VisitID, logger)

	pipelineErr := w.pipeline.Run(ctx, visit)

	stopKeepAlive()
	keepAlive.Wait()

	messageID, popReceipt := receipts.current()

	if pipelineErr == nil {
		w.deleteMessage(ctx, messageID, popReceipt, logger)
		logger.Info("job completed")
		return
	}

	logger.Error("job failed", zap.Error(pipelineErr))

	if isPermanentError(pipelineErr) {
		w.failVisit(ctx, visit, FailureCodePermanent, logger)
		w.deleteMessage(ctx, messageID, popReceipt, logger)
		return
	}

	if job.RetryCount >= w.opts.MaxRetryAttempts {
		logger.Error("retries exhausted, marking visit failed")
		w.failVisit(ctx, visit, FailureCodeRetriesExhausted, logger)
		w.deleteMessage(ctx, messageID, popReceipt, logger)
		return
	}

	// Requeue before deleting the original so the job can never be lost
	// between the two operations.
	retry := job
	retry.RetryCount++
	delay := backoffSeconds(job.RetryCount)
	if _, err := w.queue.Enqueue(ctx, retry, delay); err != nil {
		logger.Error("requeue failed, original message will reappear after its lease", zap.Error(err))
		return
	}
	logger.Info("job requeued", zap.Int("delay_seconds", delay), zap.Int("next_retry_count", retry.RetryCount))
	w.deleteMessage(ctx, messageID, popReceipt, logger)
}

// guard applies the idempotency rules. Returns (resume, proceed): proceed
// false means the message was fully handled here; resume true means the
// pipeline should continue without a fresh claim because this worker's
// transcription stage is already done.
func (w *Worker) guard(ctx context.Context, visit *entities.Visit, msg *repositories.QueuedMessage, logger *zap.Logger) (bool, bool) {
	if visit.Transcription == nil {
		logger.Warn("no transcription queued for visit, dropping job")
		w.deleteMessage(ctx, msg.MessageID, msg.PopReceipt, logger)
		return false, false
	}

	switch visit.Transcription.Status {
	case entities.TranscriptionStatusFailed:
		logger.Info("visit already failed, dropping duplicate job")
		w.deleteMessage(ctx, msg.MessageID, msg.PopReceipt, logger)
		return false, false

	case entities.TranscriptionStatusCompleted:
		if visit.Status == entities.VisitStatusCompleted {
			logger.Info("visit already completed, dropping duplicate job")
			w.deleteMessage(ctx, msg.MessageID, msg.PopReceipt, logger)
			return false, false
		}
		// Transcript exists but the later stages did not finish: resume.
		logger.Info("resuming pipeline after completed transcription")
		return true, true

	case entities.TranscriptionStatusProcessing:
		if !visit.Transcription.StaleSince(w.opts.StaleThreshold, w.now().UTC()) {
			logger.Info("visit processing elsewhere, extending lease")
			w.extendOnce(ctx, msg, logger)
			return false, false
		}
		logger.Warn("stale processing state, reclaiming",
			zap.Timep("started_at", visit.Transcription.StartedAt))
		visit.ResetStaleTranscription()
		if err := w.visits.Save(ctx, visit); err != nil {
			logger.Error("failed to reset stale visit, leaving job for retry", zap.Error(err))
			return false, false
		}
		return false, true

	default: // pending
		return false, true
	}
}

func (w *Worker) extendLoop(ctx context.Context, wg *sync.WaitGroup, receipts *receiptTracker, logger *zap.Logger) {
	defer wg.Done()
	ticker := time.NewTicker(w.opts.VisibilityInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			messageID, popReceipt := receipts.current()
			newReceipt, err := w.queue.ExtendVisibility(ctx, messageID, popReceipt, w.opts.VisibilitySeconds)
			if err != nil {
				logger.Warn("failed to extend visibility", zap.Error(err))
				continue
			}
			receipts.update(newReceipt)
		}
	}
}

func (w *Worker) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, visitID string, logger *zap.Logger) {
	defer wg.Done()
	started := w.now()
	ticker := time.NewTicker(w.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("job heartbeat",
				zap.String("visit_id", visitID),
				zap.Duration("elapsed", w.now().Sub(started)))
		}
	}
}

func (w *Worker) extendOnce(ctx context.Context, msg *repositories.QueuedMessage, logger *zap.Logger) {
	if _, err := w.queue.ExtendVisibility(ctx, msg.MessageID, msg.PopReceipt, w.opts.VisibilitySeconds); err != nil {
		logger.Warn("failed to extend visibility", zap.Error(err))
	}
}

func (w *Worker) deleteMessage(ctx context.Context, messageID, popReceipt string, logger *zap.Logger) {
	if err := w.queue.Delete(ctx, messageID, popReceipt); err != nil {
		logger.Warn("failed to delete message", zap.Error(err))
	}
}

func (w *Worker) failVisit(ctx context.Context, visit *entities.Visit, code string, logger *zap.Logger) {
	visit.FailTranscription(code)
	if err := w.visits.Save(ctx, visit); err != nil {
		logger.Error("failed to persist failure state", zap.Error(err))
	}
}

// isPermanentError reports failures no retry can repair.
func isPermanentError(err error) bool {
	if errors.Is(err, ErrNoAudioRef) {
		return true
	}
	var notFound *entities.VisitNotFoundError
	return errors.As(err, &notFound)
}

// backoffSeconds doubles per retry and caps at five minutes.
func backoffSeconds(retryCount int) int {
	seconds := 60
	for i := 0; i < retryCount; i++ {
		seconds *= 2
		if seconds >= 300 {
			return 300
		}
	}
	if seconds > 300 {
		return 300
	}
	return seconds
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// receiptTracker holds the live pop receipt, which rotates on every
// visibility extension.
type receiptTracker struct {
	mu         sync.Mutex
	messageID  string
	popReceipt string
}

func (r *receiptTracker) current() (string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messageID, r.popReceipt
}

func (r *receiptTracker) update(popReceipt string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.popReceipt = popReceipt
}
