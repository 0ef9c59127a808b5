package conversation

import (
	"context"
	"fmt"

	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

// Publisher enqueues inbound messages for asynchronous processing.
type Publisher struct {
	queue  queueClient
	jobs   JobRecorder
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher. jobs may be nil, in which
// case job status is not tracked.
func NewPublisher(queue queueClient, jobs JobRecorder, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, jobs: jobs, logger: logger}
}

// EnqueueInbound publishes msg and returns the job ID.
func (p *Publisher) EnqueueInbound(ctx context.Context, msg InboundMessage) (string, error) {
	payload, job, err := encodePayload(queuePayload{
		Kind:        jobTypeInbound,
		Inbound:     msg,
		TrackStatus: p.jobs != nil,
	})
	if err != nil {
		return "", err
	}

	if p.jobs != nil {
		if err := p.jobs.PutPending(ctx, &JobRecord{
			JobID:       payload.ID,
			RequestType: payload.Kind,
			Channel:     string(msg.Channel),
		}); err != nil {
			return "", fmt.Errorf("conversation: failed to record job: %w", err)
		}
	}

	if err := p.queue.Send(ctx, job); err != nil {
		return "", fmt.Errorf("conversation: failed to enqueue job: %w", err)
	}

	p.logger.Debug("conversation job enqueued", "job_id", payload.ID, "channel", msg.Channel)
	return payload.ID, nil
}
