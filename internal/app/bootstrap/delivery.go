package bootstrap

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/leadqual-platform/internal/config"
	"github.com/wolfman30/leadqual-platform/internal/conversation"
	"github.com/wolfman30/leadqual-platform/internal/messaging"
	"github.com/wolfman30/leadqual-platform/internal/notify"
	"github.com/wolfman30/leadqual-platform/internal/observability/metrics"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

// BuildSender returns the Twilio gateway, or a logging stub outside
// production when no account is configured.
func BuildSender(cfg *appconfig.Config, m *metrics.MessagingMetrics, logger *logging.Logger) (conversation.Sender, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.TwilioAccountSID) == "" || strings.TrimSpace(cfg.TwilioAuthToken) == "" {
		if cfg.Env == "production" {
			return nil, fmt.Errorf("bootstrap: twilio credentials are required in production")
		}
		logger.Warn("twilio not configured; outbound messages will only be logged")
		return messaging.NewStubSender(logger), nil
	}
	return messaging.NewTwilioGateway(messaging.TwilioConfig{
		AccountSID:   cfg.TwilioAccountSID,
		AuthToken:    cfg.TwilioAuthToken,
		FromNumber:   cfg.TwilioFromNumber,
		WhatsAppFrom: cfg.TwilioWhatsAppFrom,
		BaseURL:      cfg.TwilioBaseURL,
	}, m, logger), nil
}

// BuildEmailSender selects the notification transport named by EMAIL_PROVIDER.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.EmailFromAddress) == "" {
		logger.Warn("EMAIL_FROM_ADDRESS not set; booking emails will only be logged")
		return notify.NewStubEmailSender(logger)
	}
	from := notify.From{Email: cfg.EmailFromAddress, Name: cfg.EmailFromName}
	switch cfg.EmailProvider {
	case "ses":
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			From:             from,
			ConfigurationSet: cfg.SESConfigSet,
		}, logger)
	case "sendgrid":
		if strings.TrimSpace(cfg.SendGridAPIKey) == "" {
			logger.Warn("SENDGRID_API_KEY not set; booking emails will only be logged")
			return notify.NewStubEmailSender(logger)
		}
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey: cfg.SendGridAPIKey,
			From:   from,
		}, logger)
	default:
		logger.Warn("unknown EMAIL_PROVIDER; booking emails will only be logged", "provider", cfg.EmailProvider)
		return notify.NewStubEmailSender(logger)
	}
}
