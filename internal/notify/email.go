package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/wolfman30/leadqual-platform/pkg/logging"
	"go.opentelemetry.io/otel"
)

var notifyTracer = otel.Tracer("leadqual.internal.notify")

const defaultFromName = "Lead Assistant"

// ErrInvalidRecipient is returned when a message has no usable To address.
var ErrInvalidRecipient = errors.New("notify: invalid recipient")

// EmailSender delivers business notifications.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a single notification email. Category and BusinessID are
// attached as provider tags so deliveries can be traced back to a tenant.
type EmailMessage struct {
	To         string
	ToName     string
	ReplyTo    string
	Subject    string
	Text       string
	HTML       string
	Category   string
	BusinessID string
}

func (m EmailMessage) validate() error {
	if _, err := mail.ParseAddress(strings.TrimSpace(m.To)); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, m.To)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("notify: subject required")
	}
	return nil
}

// replyTo returns the reply address when it parses, empty otherwise.
func (m EmailMessage) replyTo() string {
	if m.ReplyTo == "" {
		return ""
	}
	addr, err := mail.ParseAddress(m.ReplyTo)
	if err != nil {
		return ""
	}
	return addr.Address
}

// From identifies the sending mailbox.
type From struct {
	Email string
	Name  string
}

func (f From) withDefaults() From {
	if strings.TrimSpace(f.Name) == "" {
		f.Name = defaultFromName
	}
	return f
}

// Address renders the RFC 5322 form used in From headers.
func (f From) Address() string {
	return (&mail.Address{Name: f.Name, Address: f.Email}).String()
}

// StubEmailSender only logs. Used when no provider is configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.logger.Info("email not sent (stub)", "to", msg.To, "subject", msg.Subject, "category", msg.Category, "business_id", msg.BusinessID)
	return nil
}

var _ EmailSender = (*StubEmailSender)(nil)
