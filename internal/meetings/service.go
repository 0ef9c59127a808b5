package meetings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/leadqual-platform/internal/apperr"
	"github.com/wolfman30/leadqual-platform/internal/availability"
	"github.com/wolfman30/leadqual-platform/internal/business"
	"github.com/wolfman30/leadqual-platform/internal/calendar"
	"github.com/wolfman30/leadqual-platform/internal/leads"
	"github.com/wolfman30/leadqual-platform/internal/observability/metrics"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var meetingsTracer = otel.Tracer("leadqual.internal.meetings")

// DefaultMeetingMinutes applies when neither the caller nor the assistant
// configuration sets a duration.
const DefaultMeetingMinutes = 30

// BusinessDirectory is the business configuration the service reads.
type BusinessDirectory interface {
	GetBusiness(ctx context.Context, id string) (*business.Business, error)
	GetAssistantConfig(ctx context.Context, businessID string) (*business.AssistantConfig, error)
	ListHours(ctx context.Context, businessID string) ([]business.Hours, error)
}

// Notifier tells the business about a new booking.
type Notifier interface {
	MeetingBooked(ctx context.Context, biz business.Business, lead leads.Lead, meeting Meeting) error
}

// TaskRunner runs best-effort work after the request returns.
type TaskRunner interface {
	Submit(name string, task func(ctx context.Context)) error
}

type inlineRunner struct{}

func (inlineRunner) Submit(name string, task func(ctx context.Context)) error {
	task(context.Background())
	return nil
}

// Service coordinates availability and booking.
type Service struct {
	leads       leads.Repository
	businesses  BusinessDirectory
	repo        Repository
	reserver    SlotReserver
	calendar    calendar.Provider
	credentials calendar.CredentialStore
	notifier    Notifier
	runner      TaskRunner
	metrics     *metrics.PipelineMetrics
	logger      *logging.Logger
	now         func() time.Time
	fallback    int
}

// Option customizes the service.
type Option func(*Service)

// WithCalendar enables remote calendar checks for owners with credentials.
func WithCalendar(provider calendar.Provider, credentials calendar.CredentialStore) Option {
	return func(s *Service) {
		s.calendar = provider
		s.credentials = credentials
	}
}

func WithReserver(r SlotReserver) Option {
	return func(s *Service) {
		if r != nil {
			s.reserver = r
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithTaskRunner(r TaskRunner) Option {
	return func(s *Service) {
		if r != nil {
			s.runner = r
		}
	}
}

func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithDefaultDuration sets the meeting length used when neither the caller
// nor the assistant configuration names one.
func WithDefaultDuration(minutes int) Option {
	return func(s *Service) {
		if minutes > 0 {
			s.fallback = minutes
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the booking coordinator.
func NewService(leadsRepo leads.Repository, businesses BusinessDirectory, repo Repository, logger *logging.Logger, opts ...Option) *Service {
	if leadsRepo == nil {
		panic("meetings: leads repository required")
	}
	if businesses == nil {
		panic("meetings: business directory required")
	}
	if repo == nil {
		panic("meetings: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		leads:      leadsRepo,
		businesses: businesses,
		repo:       repo,
		reserver:   NewLocalReserver(),
		runner:     inlineRunner{},
		logger:     logger,
		now:        time.Now,
		fallback:   DefaultMeetingMinutes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BookMeeting reserves the window, re-checks it against local meetings and the
// owner's calendar, creates the remote event and persists the meeting.
func (s *Service) BookMeeting(ctx context.Context, req BookRequest) (*Meeting, error) {
	ctx, span := meetingsTracer.Start(ctx, "meetings.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("leadqual.business_id", req.BusinessID),
		attribute.String("leadqual.lead_id", req.LeadID),
	)

	if err := req.Validate(); err != nil {
		s.metrics.ObserveBooking("invalid")
		return nil, err
	}
	lead, err := s.leads.GetByID(ctx, req.BusinessID, req.LeadID)
	if err != nil {
		s.metrics.ObserveBooking("invalid")
		return nil, err
	}
	biz, err := s.businesses.GetBusiness(ctx, req.BusinessID)
	if err != nil {
		s.metrics.ObserveBooking("invalid")
		return nil, err
	}

	release, err := s.reserver.Reserve(ctx, req.BusinessID, req.Start, req.End)
	if err != nil {
		s.observeFailure(err)
		return nil, err
	}
	defer release()

	window := availability.Interval{Start: req.Start, End: req.End}
	booked, err := s.repo.ListScheduled(ctx, req.BusinessID, req.Start, req.End)
	if err != nil {
		s.metrics.ObserveBooking("storage_error")
		return nil, fmt.Errorf("meetings: check local schedule: %w", err)
	}
	for _, m := range booked {
		if m.Interval().Overlaps(window) {
			s.metrics.ObserveBooking("conflict")
			return nil, ErrSlotConflict
		}
	}

	tz := req.Timezone
	if tz == "" {
		tz = biz.Location().String()
	}
	meeting := &Meeting{
		BusinessID:     req.BusinessID,
		LeadID:         lead.ID,
		ConversationID: req.ConversationID,
		Title:          meetingTitle(req.Title, lead, biz),
		StartAt:        req.Start,
		EndAt:          req.End,
		Timezone:       tz,
		Status:         StatusScheduled,
		Metadata:       req.Metadata,
	}

	cred, err := s.ownerCredential(ctx, biz)
	if err != nil {
		s.metrics.ObserveBooking("calendar_error")
		return nil, err
	}
	if cred != nil {
		busy, err := s.calendar.QueryBusy(ctx, *cred, req.Start, req.End)
		if err != nil {
			s.metrics.ObserveBooking("calendar_error")
			return nil, err
		}
		for _, iv := range busy {
			if iv.Overlaps(window) {
				s.metrics.ObserveBooking("conflict")
				return nil, ErrSlotConflict
			}
		}
		eventID, err := s.calendar.CreateEvent(ctx, *cred, calendar.Event{
			Title:         meeting.Title,
			Description:   fmt.Sprintf("Booked by the %s assistant.", biz.Name),
			Start:         req.Start,
			End:           req.End,
			Timezone:      tz,
			AttendeeEmail: lead.Email,
		})
		if err != nil {
			s.metrics.ObserveBooking("calendar_error")
			return nil, err
		}
		meeting.ExternalEventID = eventID
	}

	if err := s.repo.Create(ctx, meeting); err != nil {
		if meeting.ExternalEventID != "" {
			if delErr := s.calendar.DeleteEvent(context.WithoutCancel(ctx), *cred, meeting.ExternalEventID); delErr != nil {
				s.logger.Error("failed to remove orphaned calendar event", "error", delErr, "event_id", meeting.ExternalEventID, "business_id", biz.ID)
			}
		}
		s.observeFailure(err)
		span.RecordError(err)
		return nil, err
	}

	if lead.Status == leads.StatusNew {
		if err := s.leads.UpdateStatus(ctx, lead.ID, leads.StatusQualified); err != nil {
			s.logger.Warn("failed to advance lead status", "error", err, "lead_id", lead.ID)
		}
	}
	s.notify(*biz, *lead, *meeting)

	s.metrics.ObserveBooking("booked")
	s.logger.Info("meeting booked",
		"meeting_id", meeting.ID,
		"business_id", biz.ID,
		"lead_id", lead.ID,
		"remote", meeting.ExternalEventID != "",
	)
	return meeting, nil
}

// AvailableSlots returns free slots for each local date in [from, to].
func (s *Service) AvailableSlots(ctx context.Context, businessID string, from, to time.Time, durationMinutes int) ([]availability.Slot, error) {
	ctx, span := meetingsTracer.Start(ctx, "meetings.available_slots")
	defer span.End()

	biz, err := s.businesses.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if durationMinutes <= 0 {
		durationMinutes = s.defaultDuration(ctx, businessID)
	}
	hours, err := s.businesses.ListHours(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("meetings: load business hours: %w", err)
	}
	windows, err := business.Windows(hours)
	if err != nil {
		return nil, err
	}

	loc := biz.Location()
	req := availability.Request{
		From:      from,
		To:        to,
		Location:  loc,
		Duration:  time.Duration(durationMinutes) * time.Minute,
		Windows:   windows,
		NotBefore: s.now(),
	}
	if err := availability.ValidateRequest(req); err != nil {
		return nil, err
	}

	rangeStart, rangeEnd := dayBounds(from, to, loc)
	booked, err := s.repo.ListScheduled(ctx, businessID, rangeStart, rangeEnd)
	if err != nil {
		return nil, fmt.Errorf("meetings: load booked meetings: %w", err)
	}
	for _, m := range booked {
		req.Busy = append(req.Busy, m.Interval())
	}

	cred, err := s.ownerCredential(ctx, biz)
	if err != nil {
		return nil, err
	}
	if cred != nil {
		remote, err := s.calendar.QueryBusy(ctx, *cred, rangeStart, rangeEnd)
		if err != nil {
			return nil, err
		}
		req.Busy = append(req.Busy, remote...)
	}

	slots, err := availability.SuggestSlots(req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("leadqual.slot_count", len(slots)))
	return slots, nil
}

// CancelMeeting marks a scheduled meeting cancelled and removes its remote
// event best-effort.
func (s *Service) CancelMeeting(ctx context.Context, businessID, meetingID string) (*Meeting, error) {
	m, err := s.repo.Get(ctx, businessID, meetingID)
	if err != nil {
		return nil, err
	}
	if m.Status != StatusScheduled {
		return nil, ErrNotCancellable
	}
	if err := s.repo.UpdateStatus(ctx, businessID, meetingID, StatusCancelled); err != nil {
		return nil, err
	}
	m.Status = StatusCancelled

	if m.ExternalEventID != "" {
		if biz, err := s.businesses.GetBusiness(ctx, businessID); err == nil {
			if cred, err := s.ownerCredential(ctx, biz); err == nil && cred != nil {
				if err := s.calendar.DeleteEvent(ctx, *cred, m.ExternalEventID); err != nil {
					s.logger.Warn("failed to delete calendar event", "error", err, "meeting_id", m.ID)
				}
			}
		}
	}
	s.metrics.ObserveBooking("cancelled")
	s.logger.Info("meeting cancelled", "meeting_id", m.ID, "business_id", businessID)
	return m, nil
}

// Location is the business time zone used to place calendar dates.
func (s *Service) Location(ctx context.Context, businessID string) (*time.Location, error) {
	biz, err := s.businesses.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return biz.Location(), nil
}

// List returns meetings for the business.
func (s *Service) List(ctx context.Context, businessID string, filter ListFilter) ([]*Meeting, error) {
	return s.repo.List(ctx, businessID, filter)
}

// ownerCredential returns nil without error when the owner has no calendar.
func (s *Service) ownerCredential(ctx context.Context, biz *business.Business) (*calendar.Credential, error) {
	if s.calendar == nil || s.credentials == nil || biz.OwnerUserID == "" {
		return nil, nil
	}
	cred, err := s.credentials.GetCredential(ctx, biz.OwnerUserID)
	if err != nil {
		if errors.Is(err, calendar.ErrCredentialNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("meetings: load calendar credential: %w", err)
	}
	return cred, nil
}

func (s *Service) defaultDuration(ctx context.Context, businessID string) int {
	cfg, err := s.businesses.GetAssistantConfig(ctx, businessID)
	if err == nil && cfg.DefaultMeetingMinutes > 0 {
		return cfg.DefaultMeetingMinutes
	}
	return s.fallback
}

func (s *Service) notify(biz business.Business, lead leads.Lead, meeting Meeting) {
	if s.notifier == nil || strings.TrimSpace(biz.NotificationEmail) == "" {
		return
	}
	err := s.runner.Submit("meeting_notification", func(ctx context.Context) {
		if err := s.notifier.MeetingBooked(ctx, biz, lead, meeting); err != nil {
			s.logger.Warn("meeting notification failed", "error", err, "meeting_id", meeting.ID)
		}
	})
	if err != nil {
		s.logger.Warn("meeting notification not scheduled", "error", err, "meeting_id", meeting.ID)
	}
}

func (s *Service) observeFailure(err error) {
	switch apperr.KindOf(err) {
	case apperr.KindSlotConflict:
		s.metrics.ObserveBooking("conflict")
	default:
		s.metrics.ObserveBooking("storage_error")
	}
}

func meetingTitle(title string, lead *leads.Lead, biz *business.Business) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	name := strings.TrimSpace(lead.Name)
	if name == "" {
		name = "lead"
	}
	return fmt.Sprintf("%s x %s", biz.Name, name)
}

// dayBounds widens [from, to] to whole local days.
func dayBounds(from, to time.Time, loc *time.Location) (time.Time, time.Time) {
	f := from.In(loc)
	t := to.In(loc)
	start := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, loc)
	end := time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
	return start, end
}
