package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wolfman30/leadqual-platform/internal/apperr"
	"github.com/wolfman30/leadqual-platform/internal/availability"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var calendarTracer = otel.Tracer("leadqual.internal.calendar")

const defaultCallTimeout = 10 * time.Second

// GoogleConfig holds the OAuth client registered with Google.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration
}

// GoogleProvider implements Provider on Google Calendar v3. Each call builds a
// service from the user's refresh token.
type GoogleProvider struct {
	oauth      *oauth2.Config
	timeout    time.Duration
	logger     *logging.Logger
	clientOpts []option.ClientOption
	httpClient *http.Client
}

// GoogleOption customizes the provider.
type GoogleOption func(*GoogleProvider)

// WithClientOptions appends google API client options (endpoint overrides in tests).
func WithClientOptions(opts ...option.ClientOption) GoogleOption {
	return func(p *GoogleProvider) { p.clientOpts = append(p.clientOpts, opts...) }
}

// WithHTTPClient bypasses the OAuth transport. Used with local fakes.
func WithHTTPClient(client *http.Client) GoogleOption {
	return func(p *GoogleProvider) { p.httpClient = client }
}

// NewGoogleProvider builds a provider for the configured OAuth client.
func NewGoogleProvider(cfg GoogleConfig, logger *logging.Logger, opts ...GoogleOption) *GoogleProvider {
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	p := &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gcal.CalendarEventsScope, gcal.CalendarReadonlyScope},
		},
		timeout: timeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AuthCodeURL returns the consent URL a business owner visits to connect a calendar.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a credential.
func (p *GoogleProvider) Exchange(ctx context.Context, userID, code string) (*Credential, error) {
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, classify("exchange code", err)
	}
	if tok.RefreshToken == "" {
		return nil, apperr.Validation("calendar grant has no refresh token", map[string]string{"code": "offline access not granted"})
	}
	return &Credential{UserID: userID, RefreshToken: tok.RefreshToken, CalendarID: DefaultCalendarID}, nil
}

func (p *GoogleProvider) service(ctx context.Context, cred Credential) (*gcal.Service, error) {
	opts := append([]option.ClientOption{}, p.clientOpts...)
	if p.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(p.httpClient))
	} else {
		if cred.RefreshToken == "" {
			return nil, ErrCredentialNotFound
		}
		ts := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
		opts = append(opts, option.WithTokenSource(ts))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: build service: %w", err)
	}
	return svc, nil
}

// QueryBusy returns busy intervals on the credential's calendar within [from, to).
func (p *GoogleProvider) QueryBusy(ctx context.Context, cred Credential, from, to time.Time) ([]availability.Interval, error) {
	ctx, span := calendarTracer.Start(ctx, "calendar.query_busy")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	svc, err := p.service(ctx, cred)
	if err != nil {
		return nil, err
	}
	calID := cred.Calendar()
	resp, err := svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: from.UTC().Format(time.RFC3339),
		TimeMax: to.UTC().Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: calID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, classify("query busy", err)
	}

	entry, ok := resp.Calendars[calID]
	if !ok {
		return nil, classify("query busy", fmt.Errorf("calendar %q missing from response", calID))
	}
	if len(entry.Errors) > 0 {
		return nil, classify("query busy", fmt.Errorf("calendar %q: %s", calID, entry.Errors[0].Reason))
	}

	busy := make([]availability.Interval, 0, len(entry.Busy))
	for _, period := range entry.Busy {
		start, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			return nil, classify("parse busy start", err)
		}
		end, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			return nil, classify("parse busy end", err)
		}
		busy = append(busy, availability.Interval{Start: start, End: end})
	}
	span.SetAttributes(attribute.Int("calendar.busy_count", len(busy)))
	return busy, nil
}

// CreateEvent inserts the event and returns its remote id.
func (p *GoogleProvider) CreateEvent(ctx context.Context, cred Credential, event Event) (string, error) {
	ctx, span := calendarTracer.Start(ctx, "calendar.create_event")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	svc, err := p.service(ctx, cred)
	if err != nil {
		return "", err
	}
	body := &gcal.Event{
		Summary:     event.Title,
		Description: event.Description,
		Start:       &gcal.EventDateTime{DateTime: event.Start.Format(time.RFC3339), TimeZone: event.Timezone},
		End:         &gcal.EventDateTime{DateTime: event.End.Format(time.RFC3339), TimeZone: event.Timezone},
	}
	if event.AttendeeEmail != "" {
		body.Attendees = []*gcal.EventAttendee{{Email: event.AttendeeEmail}}
	}
	created, err := svc.Events.Insert(cred.Calendar(), body).Context(ctx).Do()
	if err != nil {
		return "", classify("create event", err)
	}
	p.logger.Info("calendar event created", "user_id", cred.UserID, "event_id", created.Id)
	return created.Id, nil
}

// DeleteEvent removes an event. Events already gone count as deleted.
func (p *GoogleProvider) DeleteEvent(ctx context.Context, cred Credential, eventID string) error {
	ctx, span := calendarTracer.Start(ctx, "calendar.delete_event")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	svc, err := p.service(ctx, cred)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete(cred.Calendar(), eventID).Context(ctx).Do(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
			return nil
		}
		return classify("delete event", err)
	}
	return nil
}

func classify(action string, err error) error {
	wrapped := apperr.Upstream("calendar provider unavailable", err)
	wrapped.Err = fmt.Errorf("calendar: %s: %w: %w", action, ErrCalendarUnavailable, err)
	return wrapped
}
