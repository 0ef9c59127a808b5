package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type queueClient interface {
	Send(ctx context.Context, job queueJob) error
	Receive(ctx context.Context, limit int, wait time.Duration) ([]queueMessage, error)
	Delete(ctx context.Context, msg queueMessage) error
}

// queueJob is an encoded payload ready to publish.
type queueJob struct {
	ID      string
	Channel string
	Body    string
}

// queueMessage is a delivered job. Deliveries counts receives, including
// this one, when the backend reports it.
type queueMessage struct {
	ID            string
	JobID         string
	Body          string
	ReceiptHandle string
	Deliveries    int
}

type jobType string

const jobTypeInbound jobType = "inbound_message"

type queuePayload struct {
	ID          string         `json:"id"`
	Kind        jobType        `json:"kind"`
	Inbound     InboundMessage `json:"inbound"`
	TrackStatus bool           `json:"track_status"`
	EnqueuedAt  time.Time      `json:"enqueued_at"`
}

func encodePayload(payload queuePayload) (queuePayload, queueJob, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	if payload.EnqueuedAt.IsZero() {
		payload.EnqueuedAt = time.Now().UTC()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, queueJob{}, fmt.Errorf("conversation: failed to encode payload: %w", err)
	}
	return payload, queueJob{
		ID:      payload.ID,
		Channel: string(payload.Inbound.Channel),
		Body:    string(body),
	}, nil
}

// decodePayload parses a queue body and rejects jobs the worker cannot run.
func decodePayload(body string) (queuePayload, error) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return queuePayload{}, fmt.Errorf("conversation: decode payload: %w", err)
	}
	if payload.Kind != jobTypeInbound {
		return payload, fmt.Errorf("conversation: unknown job kind %q", payload.Kind)
	}
	if strings.TrimSpace(payload.Inbound.Phone) == "" {
		return payload, errors.New("conversation: inbound job has no phone")
	}
	return payload, nil
}
