package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/leadqual-platform/internal/apperr"
	"github.com/wolfman30/leadqual-platform/internal/conversation"
	"github.com/wolfman30/leadqual-platform/internal/leads"
	"github.com/wolfman30/leadqual-platform/internal/observability/metrics"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

var twilioSendTracer = otel.Tracer("leadqual.internal.messaging.twilio_send")

const defaultTwilioBaseURL = "https://api.twilio.com"

var (
	// ErrUnsupportedChannel is returned for channels the gateway cannot deliver on.
	ErrUnsupportedChannel = apperr.Validation("unsupported messaging channel", map[string]string{"channel": "must be sms or whatsapp"})
	// ErrSendFailed classifies provider delivery failures.
	ErrSendFailed = apperr.Upstream("message delivery failed", nil)
)

// TwilioConfig configures the outbound gateway.
type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	FromNumber   string
	WhatsAppFrom string
	BaseURL      string
	MaxAttempts  int
}

// TwilioGateway posts messages using Twilio's REST API.
type TwilioGateway struct {
	cfg        TwilioConfig
	httpClient *http.Client
	metrics    *metrics.MessagingMetrics
	logger     *logging.Logger
	backoff    func(attempt int) time.Duration
}

// NewTwilioGateway builds a gateway with sane defaults.
func NewTwilioGateway(cfg TwilioConfig, m *metrics.MessagingMetrics, logger *logging.Logger) *TwilioGateway {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwilioBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WhatsAppFrom == "" {
		cfg.WhatsAppFrom = cfg.FromNumber
	}
	return &TwilioGateway{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		metrics:    m,
		logger:     logger,
		backoff: func(int) time.Duration {
			return time.Duration(200+rand.Intn(300)) * time.Millisecond
		},
	}
}

var _ conversation.Sender = (*TwilioGateway)(nil)

// Send dispatches text to destination, retrying transient failures.
func (g *TwilioGateway) Send(ctx context.Context, destination, text string, channel leads.Channel) error {
	to, from, err := g.addresses(destination, channel)
	if err != nil {
		g.metrics.ObserveOutbound(string(channel), "unsupported")
		return err
	}
	if g.cfg.AccountSID == "" || g.cfg.AuthToken == "" {
		return errors.New("messaging: twilio credentials missing")
	}
	if strings.TrimSpace(text) == "" {
		return apperr.Validation("message body required", map[string]string{"text": "required"})
	}

	ctx, span := twilioSendTracer.Start(ctx, "messaging.twilio.send")
	defer span.End()
	span.SetAttributes(attribute.String("leadqual.channel", string(channel)))

	payload := url.Values{}
	payload.Set("To", to)
	payload.Set("From", from)
	payload.Set("Body", text)
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", g.cfg.BaseURL, g.cfg.AccountSID)

	var lastErr error
attempts:
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		sid, retry, err := g.post(ctx, endpoint, payload)
		if err == nil {
			g.metrics.ObserveOutbound(string(channel), "sent")
			g.logger.Info("twilio message sent", "channel", channel, "sid", sid)
			return nil
		}
		lastErr = err
		if !retry || attempt == g.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			break attempts
		case <-time.After(g.backoff(attempt)):
		}
	}

	span.RecordError(lastErr)
	g.metrics.ObserveOutbound(string(channel), "failed")
	classified := apperr.Upstream("message delivery failed", lastErr)
	classified.Err = fmt.Errorf("%w: %w", ErrSendFailed, lastErr)
	return classified
}

func (g *TwilioGateway) addresses(destination string, channel leads.Channel) (to, from string, err error) {
	phone := leads.NormalizePhone(destination)
	if phone == "" {
		return "", "", apperr.Validation("destination phone required", map[string]string{"destination": "invalid phone number"})
	}
	switch channel {
	case leads.ChannelSMS:
		return phone, g.cfg.FromNumber, nil
	case leads.ChannelWhatsApp:
		return whatsappPrefix + phone, whatsappPrefix + strings.TrimPrefix(g.cfg.WhatsAppFrom, whatsappPrefix), nil
	default:
		return "", "", ErrUnsupportedChannel
	}
}

// post performs one attempt and reports whether a failure is worth retrying.
func (g *TwilioGateway) post(ctx context.Context, endpoint string, payload url.Values) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return "", false, err
	}
	req.SetBasicAuth(g.cfg.AccountSID, g.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", ctx.Err() == nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var parsed struct {
			SID string `json:"sid"`
		}
		_ = json.Unmarshal(body, &parsed)
		return parsed.SID, false, nil
	}
	err = fmt.Errorf("twilio send failed: %s", formatTwilioError(resp.StatusCode, body))
	// Don't retry non-rate-limit 4xx errors.
	retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
	return "", retry, err
}

type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func formatTwilioError(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, trimmed)
}

// StubSender logs outbound messages instead of delivering them. Used when no
// Twilio account is configured outside production.
type StubSender struct {
	logger *logging.Logger
}

// NewStubSender creates a logging-only sender.
func NewStubSender(logger *logging.Logger) *StubSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubSender{logger: logger}
}

// Send logs the message. Unsupported channels still fail.
func (s *StubSender) Send(_ context.Context, destination, text string, channel leads.Channel) error {
	if channel != leads.ChannelSMS && channel != leads.ChannelWhatsApp {
		return fmt.Errorf("messaging: stub send on %s: %w", channel, ErrUnsupportedChannel)
	}
	s.logger.Info("stub sender: would send message", "to", destination, "channel", channel, "length", len(text))
	return nil
}

var _ conversation.Sender = (*StubSender)(nil)
