package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/leadqual-platform/internal/observability/metrics"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

// InboundProcessor runs the pipeline for one inbound message.
type InboundProcessor interface {
	HandleInbound(ctx context.Context, msg InboundMessage) (*InboundResult, error)
}

// Worker consumes inbound jobs from the queue and invokes the processor.
type Worker struct {
	processor InboundProcessor
	queue     queueClient
	jobs      JobUpdater
	logger    *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWait      time.Duration
	receiveBatchSize int
	jobTimeout       time.Duration
	metrics          *metrics.PipelineMetrics
}

const (
	defaultWorkerCount   = 2
	defaultWorkerWait    = 2 * time.Second
	defaultBatchSize     = 5
	deleteTimeoutSeconds = 5
	defaultJobTimeout    = 60 * time.Second
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWait sets how long one receive call may wait for a job. The
// queue clamps it to what its backend supports.
func WithReceiveWait(d time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if d >= 0 {
			cfg.receiveWait = d
		}
	}
}

// WithReceiveBatchSize sets how many jobs one receive call may return.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size > 0 {
			cfg.receiveBatchSize = size
		}
	}
}

// WithJobTimeout bounds a single pipeline run.
func WithJobTimeout(d time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if d > 0 {
			cfg.jobTimeout = d
		}
	}
}

func WithWorkerMetrics(m *metrics.PipelineMetrics) WorkerOption {
	return func(cfg *workerConfig) { cfg.metrics = m }
}

func NewWorker(processor InboundProcessor, queue queueClient, jobs JobUpdater, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("conversation: processor cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if jobs == nil {
		panic("conversation: job store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWait:      defaultWorkerWait,
		receiveBatchSize: defaultBatchSize,
		jobTimeout:       defaultJobTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		processor: processor,
		queue:     queue,
		jobs:      jobs,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("conversation worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWait)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive conversation jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

// handleMessage runs one job. The message is deleted whatever the outcome;
// failures are recorded on the job, never redelivered.
func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	payload, err := decodePayload(msg.Body)
	if err != nil {
		jobID := payload.ID
		if jobID == "" {
			jobID = msg.JobID
		}
		w.logger.Error("dropping conversation job", "error", err, "job_id", jobID, "msg_id", msg.ID)
		w.cfg.metrics.ObserveJob("invalid")
		w.deleteMessage(context.Background(), msg)
		return
	}

	logger := w.logger.With("job_id", payload.ID, "msg_id", msg.ID)
	if msg.Deliveries > 1 {
		logger.Warn("conversation job redelivered", "deliveries", msg.Deliveries)
	}
	var queued time.Duration
	if !payload.EnqueuedAt.IsZero() {
		queued = time.Since(payload.EnqueuedAt)
	}
	logger.Info("worker processing job", "channel", payload.Inbound.Channel, "queued_ms", queued.Milliseconds())

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.jobTimeout)
	result, err := w.processor.HandleInbound(jobCtx, payload.Inbound)
	cancel()

	if err != nil {
		w.cfg.metrics.ObserveJob(string(JobStatusFailed))
		logger.Warn("conversation job failed", "error", err)
		if payload.TrackStatus {
			if markErr := w.jobs.MarkFailed(context.Background(), payload.ID, result, err); markErr != nil {
				logger.Error("failed to mark job failed", "error", markErr)
			}
		}
	} else {
		w.cfg.metrics.ObserveJob(string(JobStatusCompleted))
		if payload.TrackStatus {
			if markErr := w.jobs.MarkCompleted(context.Background(), payload.ID, result); markErr != nil {
				logger.Error("failed to mark job completed", "error", markErr)
			}
		}
	}

	w.deleteMessage(context.Background(), msg)
}

func (w *Worker) deleteMessage(ctx context.Context, msg queueMessage) {
	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, msg); err != nil {
		w.logger.Error("failed to delete conversation job", "error", err, "msg_id", msg.ID)
	}
}
