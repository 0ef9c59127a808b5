package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

// SendGridConfig configures the SendGrid transport. Host overrides the API
// endpoint, mainly for tests.
type SendGridConfig struct {
	APIKey string
	From   From
	Host   string
}

// SendGridSender delivers through the SendGrid v3 mail API.
type SendGridSender struct {
	client *sendgrid.Client
	from   From
	logger *logging.Logger
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	client := sendgrid.NewSendClient(cfg.APIKey)
	if cfg.Host != "" {
		req := sendgrid.GetRequest(cfg.APIKey, "/v3/mail/send", cfg.Host)
		req.Method = "POST"
		client = &sendgrid.Client{Request: req}
	}
	return &SendGridSender{client: client, from: cfg.From.withDefaults(), logger: logger}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}
	if err := msg.validate(); err != nil {
		return err
	}
	ctx, span := notifyTracer.Start(ctx, "notify.sendgrid.send")
	defer span.End()

	resp, err := s.client.SendWithContext(ctx, s.build(msg))
	if err != nil {
		return fmt.Errorf("notify: sendgrid: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Warn("sendgrid rejected email", "status", resp.StatusCode, "body", resp.Body, "business_id", msg.BusinessID)
		return fmt.Errorf("notify: sendgrid status %d", resp.StatusCode)
	}
	s.logger.Info("notification email sent", "provider", "sendgrid", "category", msg.Category, "business_id", msg.BusinessID)
	return nil
}

func (s *SendGridSender) build(msg EmailMessage) *mail.SGMailV3 {
	text := msg.Text
	html := msg.HTML
	if html == "" {
		html = text
	}
	m := mail.NewSingleEmail(
		mail.NewEmail(s.from.Name, s.from.Email),
		msg.Subject,
		mail.NewEmail(msg.ToName, msg.To),
		text,
		html,
	)
	if reply := msg.replyTo(); reply != "" {
		m.SetReplyTo(mail.NewEmail("", reply))
	}
	if msg.Category != "" {
		m.AddCategories(msg.Category)
	}
	if msg.BusinessID != "" {
		m.SetCustomArg("business_id", msg.BusinessID)
	}
	return m
}

var _ EmailSender = (*SendGridSender)(nil)
