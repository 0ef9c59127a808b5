package messaging

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/leadqual-platform/internal/conversation"
	"github.com/wolfman30/leadqual-platform/internal/observability/metrics"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

var twilioTracer = otel.Tracer("leadqual.internal.messaging.twilio")

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// InboundPublisher hands an inbound message to the asynchronous pipeline.
type InboundPublisher interface {
	EnqueueInbound(ctx context.Context, msg conversation.InboundMessage) (string, error)
}

// Handler handles messaging webhook requests.
type Handler struct {
	authToken string
	publicURL string
	publisher InboundPublisher
	dedup     DedupStore
	metrics   *metrics.MessagingMetrics
	logger    *logging.Logger
}

// HandlerOption customizes the webhook handler.
type HandlerOption func(*Handler)

// WithDedupStore drops provider redeliveries seen before.
func WithDedupStore(store DedupStore) HandlerOption {
	return func(h *Handler) { h.dedup = store }
}

// WithPublicURL fixes the URL used for signature checks instead of deriving
// it from the request.
func WithPublicURL(u string) HandlerOption {
	return func(h *Handler) { h.publicURL = strings.TrimRight(u, "/") }
}

func WithMetrics(m *metrics.MessagingMetrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler creates a new messaging handler. An empty authToken disables
// signature validation.
func NewHandler(authToken string, publisher InboundPublisher, logger *logging.Logger, opts ...HandlerOption) *Handler {
	if publisher == nil {
		panic("messaging: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{authToken: authToken, publisher: publisher, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// TwilioWebhook handles POST /webhooks/twilio. Once the signature checks out
// the provider always gets 200 with empty TwiML; the reply is produced
// asynchronously.
func (h *Handler) TwilioWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := twilioTracer.Start(r.Context(), "messaging.twilio.webhook")
	defer span.End()

	if h.authToken != "" {
		webhookURL := buildAbsoluteURL(r)
		if h.publicURL != "" {
			webhookURL = h.publicURL + r.URL.RequestURI()
		}
		if !ValidateTwilioSignature(r, h.authToken, webhookURL) {
			h.logger.Warn("invalid twilio signature")
			h.metrics.ObserveInbound("unknown", "unauthorized")
			span.RecordError(errors.New("invalid twilio signature"))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	channel, outcome := h.accept(ctx, r)
	span.SetAttributes(
		attribute.String("leadqual.channel", channel),
		attribute.String("leadqual.webhook_outcome", outcome),
	)
	h.metrics.ObserveInbound(channel, outcome)
	h.metrics.ObserveWebhookLatency(channel, time.Since(start).Seconds())

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}

// accept parses, deduplicates and enqueues the message. It returns the
// channel and an outcome label; failures are logged here and never surface
// to the provider.
func (h *Handler) accept(ctx context.Context, r *http.Request) (string, string) {
	webhook, err := ParseTwilioWebhook(r)
	if err != nil {
		h.logger.Error("failed to parse twilio webhook", "error", err)
		return "unknown", "invalid"
	}
	channel := string(webhook.Channel)
	if webhook.MessageSid == "" || webhook.From == "" || strings.TrimSpace(webhook.Body) == "" {
		h.logger.Warn("twilio webhook missing required fields", "message_sid", webhook.MessageSid)
		return channel, "invalid"
	}

	if h.dedup != nil {
		first, err := h.dedup.MarkSeen(ctx, webhook.MessageSid)
		if err != nil {
			h.logger.Warn("dedup check failed, processing anyway", "error", err, "message_sid", webhook.MessageSid)
		} else if !first {
			h.logger.Info("duplicate twilio delivery dropped", "message_sid", webhook.MessageSid)
			return channel, "duplicate"
		}
	}

	publishCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	jobID, err := h.publisher.EnqueueInbound(publishCtx, conversation.InboundMessage{
		Phone:             webhook.From,
		Text:              webhook.Body,
		Channel:           webhook.Channel,
		ProviderMessageID: webhook.MessageSid,
	})
	if err != nil {
		h.logger.Error("failed to enqueue inbound message", "error", err, "message_sid", webhook.MessageSid)
		return channel, "enqueue_failed"
	}
	h.logger.Info("twilio webhook accepted", "message_sid", webhook.MessageSid, "job_id", jobID, "channel", channel)
	return channel, "accepted"
}
