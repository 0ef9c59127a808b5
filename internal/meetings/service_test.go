package meetings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/leadqual-platform/internal/apperr"
	"github.com/wolfman30/leadqual-platform/internal/availability"
	"github.com/wolfman30/leadqual-platform/internal/business"
	"github.com/wolfman30/leadqual-platform/internal/calendar"
	"github.com/wolfman30/leadqual-platform/internal/leads"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

type fakeCalendar struct {
	mu        sync.Mutex
	busy      []availability.Interval
	busyErr   error
	createErr error
	created   []calendar.Event
	deleted   []string
}

func (f *fakeCalendar) QueryBusy(ctx context.Context, cred calendar.Credential, from, to time.Time) ([]availability.Interval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busyErr != nil {
		return nil, f.busyErr
	}
	return append([]availability.Interval(nil), f.busy...), nil
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, cred calendar.Credential, event calendar.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, event)
	return "evt-1", nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, cred calendar.Credential, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, eventID)
	return nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	meetings []Meeting
}

func (n *recordingNotifier) MeetingBooked(ctx context.Context, biz business.Business, lead leads.Lead, meeting Meeting) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.meetings = append(n.meetings, meeting)
	return nil
}

type failingCreateRepo struct {
	*InMemoryRepository
}

func (r failingCreateRepo) Create(ctx context.Context, m *Meeting) error {
	return errors.New("insert failed")
}

type fixture struct {
	leads      *leads.InMemoryRepository
	businesses *business.InMemoryRepository
	repo       *InMemoryRepository
	cal        *fakeCalendar
	creds      *calendar.InMemoryCredentialStore
	notifier   *recordingNotifier
	lead       *leads.Lead
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		leads:      leads.NewInMemoryRepository(),
		businesses: business.NewInMemoryRepository(),
		repo:       NewInMemoryRepository(),
		cal:        &fakeCalendar{},
		creds:      calendar.NewInMemoryCredentialStore(),
		notifier:   &recordingNotifier{},
	}
	f.businesses.SaveBusiness(business.Business{
		ID:                "biz-1",
		OwnerUserID:       "owner-1",
		Name:              "Acme Roofing",
		Timezone:          "UTC",
		NotificationEmail: "owner@acme.example",
	}, "")
	if err := f.businesses.ReplaceHours(ctx, "biz-1", []business.Hours{{Weekday: "Monday", Start: "09:00", End: "10:00"}}); err != nil {
		t.Fatalf("hours: %v", err)
	}
	lead, err := f.leads.Create(ctx, &leads.CreateLeadRequest{BusinessID: "biz-1", Name: "Pat", Email: "pat@example.com"})
	if err != nil {
		t.Fatalf("lead: %v", err)
	}
	f.lead = lead
	return f
}

func (f *fixture) connectCalendar(t *testing.T) {
	t.Helper()
	if err := f.creds.SaveCredential(context.Background(), calendar.Credential{UserID: "owner-1", RefreshToken: "rt"}); err != nil {
		t.Fatalf("credential: %v", err)
	}
}

func (f *fixture) service(opts ...Option) *Service {
	base := []Option{
		WithCalendar(f.cal, f.creds),
		WithNotifier(f.notifier),
		WithClock(func() time.Time { return monday.Add(-24 * time.Hour) }),
	}
	return NewService(f.leads, f.businesses, f.repo, nil, append(base, opts...)...)
}

func (f *fixture) request(start time.Time) BookRequest {
	return BookRequest{BusinessID: "biz-1", LeadID: f.lead.ID, Start: start, End: start.Add(30 * time.Minute)}
}

func TestBookMeeting_LocalOnlyWithoutCredentials(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	ctx := context.Background()

	m, err := svc.BookMeeting(ctx, f.request(monday.Add(9*time.Hour)))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if m.ExternalEventID != "" || m.Status != StatusScheduled {
		t.Fatalf("unexpected meeting %+v", m)
	}
	if len(f.cal.created) != 0 {
		t.Fatalf("calendar should not be touched without credentials")
	}
	lead, _ := f.leads.GetByID(ctx, "biz-1", f.lead.ID)
	if lead.Status != leads.StatusQualified {
		t.Fatalf("expected lead qualified, got %s", lead.Status)
	}
	if len(f.notifier.meetings) != 1 {
		t.Fatalf("expected notification, got %d", len(f.notifier.meetings))
	}
}

func TestBookMeeting_CreatesRemoteEvent(t *testing.T) {
	f := newFixture(t)
	f.connectCalendar(t)
	svc := f.service()

	m, err := svc.BookMeeting(context.Background(), f.request(monday.Add(9*time.Hour)))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if m.ExternalEventID != "evt-1" {
		t.Fatalf("expected remote event id, got %q", m.ExternalEventID)
	}
	if len(f.cal.created) != 1 || f.cal.created[0].AttendeeEmail != "pat@example.com" {
		t.Fatalf("unexpected events %+v", f.cal.created)
	}
}

func TestBookMeeting_FreshBusyIntervalConflicts(t *testing.T) {
	f := newFixture(t)
	f.connectCalendar(t)
	start := monday.Add(9 * time.Hour)
	f.cal.busy = []availability.Interval{{Start: start.Add(10 * time.Minute), End: start.Add(20 * time.Minute)}}
	svc := f.service()

	_, err := svc.BookMeeting(context.Background(), f.request(start))
	if !errors.Is(err, ErrSlotConflict) || apperr.KindOf(err) != apperr.KindSlotConflict {
		t.Fatalf("expected slot conflict, got %v", err)
	}
	list, _ := f.repo.List(context.Background(), "biz-1", ListFilter{})
	if len(list) != 0 || len(f.cal.created) != 0 {
		t.Fatalf("no meeting or event should exist: meetings=%d events=%d", len(list), len(f.cal.created))
	}
}

func TestBookMeeting_CalendarFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.connectCalendar(t)
	f.cal.createErr = apperr.Upstream("calendar provider unavailable", errors.New("boom"))
	svc := f.service()

	_, err := svc.BookMeeting(context.Background(), f.request(monday.Add(9*time.Hour)))
	if apperr.KindOf(err) != apperr.KindUpstreamFailure {
		t.Fatalf("expected upstream failure, got %v", err)
	}
	list, _ := f.repo.List(context.Background(), "biz-1", ListFilter{})
	if len(list) != 0 {
		t.Fatalf("meeting persisted despite calendar failure")
	}
}

func TestBookMeeting_InsertFailureRemovesRemoteEvent(t *testing.T) {
	f := newFixture(t)
	f.connectCalendar(t)
	svc := NewService(f.leads, f.businesses, failingCreateRepo{f.repo}, nil, WithCalendar(f.cal, f.creds))

	if _, err := svc.BookMeeting(context.Background(), f.request(monday.Add(9*time.Hour))); err == nil {
		t.Fatalf("expected error")
	}
	if len(f.cal.deleted) != 1 || f.cal.deleted[0] != "evt-1" {
		t.Fatalf("expected orphaned event deleted, got %v", f.cal.deleted)
	}
}

func TestBookMeeting_LocalOverlapConflicts(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	ctx := context.Background()
	start := monday.Add(9 * time.Hour)

	if _, err := svc.BookMeeting(ctx, f.request(start)); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if _, err := svc.BookMeeting(ctx, f.request(start.Add(15*time.Minute))); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestBookMeeting_RejectsInvalidWindow(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	req := f.request(monday.Add(9 * time.Hour))
	req.End = req.Start

	_, err := svc.BookMeeting(context.Background(), req)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestBookMeeting_ConcurrentSameSlotBooksOnce(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	start := monday.Add(9 * time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, conflicts := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.BookMeeting(context.Background(), f.request(start))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrSlotConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if successes != 1 || conflicts != 7 {
		t.Fatalf("expected 1 success and 7 conflicts, got %d/%d", successes, conflicts)
	}
}

func TestAvailableSlots_ExcludesBookedAndRemoteBusy(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	ctx := context.Background()

	slots, err := svc.AvailableSlots(ctx, "biz-1", monday, monday, 30)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) != 2 || slots[0].Start.Hour() != 9 || slots[1].Start.Minute() != 30 {
		t.Fatalf("unexpected slots %+v", slots)
	}

	if _, err := svc.BookMeeting(ctx, f.request(monday.Add(9*time.Hour))); err != nil {
		t.Fatalf("book: %v", err)
	}
	slots, err = svc.AvailableSlots(ctx, "biz-1", monday, monday, 30)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) != 1 || !slots[0].Start.Equal(monday.Add(9*time.Hour+30*time.Minute)) {
		t.Fatalf("expected only 09:30, got %+v", slots)
	}

	f.connectCalendar(t)
	f.cal.busy = []availability.Interval{{Start: monday.Add(9*time.Hour + 30*time.Minute), End: monday.Add(10 * time.Hour)}}
	slots, err = svc.AvailableSlots(ctx, "biz-1", monday, monday, 30)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots, got %+v", slots)
	}
}

func TestAvailableSlots_DefaultsDurationFromAssistant(t *testing.T) {
	f := newFixture(t)
	if err := f.businesses.SaveAssistantConfig(context.Background(), &business.AssistantConfig{BusinessID: "biz-1", Role: "assistant", DefaultMeetingMinutes: 60}); err != nil {
		t.Fatalf("assistant: %v", err)
	}
	slots, err := f.service().AvailableSlots(context.Background(), "biz-1", monday, monday, 0)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) != 1 || slots[0].End.Sub(slots[0].Start) != time.Hour {
		t.Fatalf("unexpected slots %+v", slots)
	}
}

func TestAvailableSlots_FallbackDuration(t *testing.T) {
	f := newFixture(t)
	slots, err := f.service(WithDefaultDuration(20)).AvailableSlots(context.Background(), "biz-1", monday, monday, 0)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) != 3 || slots[0].End.Sub(slots[0].Start) != 20*time.Minute {
		t.Fatalf("unexpected slots %+v", slots)
	}
}

func TestAvailableSlots_CalendarErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.connectCalendar(t)
	f.cal.busyErr = apperr.Upstream("calendar provider unavailable", context.DeadlineExceeded)

	_, err := f.service().AvailableSlots(context.Background(), "biz-1", monday, monday, 30)
	if apperr.KindOf(err) != apperr.KindUpstreamTimeout {
		t.Fatalf("expected timeout kind, got %v", err)
	}
}

func TestCancelMeeting_DeletesRemoteEvent(t *testing.T) {
	f := newFixture(t)
	f.connectCalendar(t)
	svc := f.service()
	ctx := context.Background()

	m, err := svc.BookMeeting(ctx, f.request(monday.Add(9*time.Hour)))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	cancelled, err := svc.CancelMeeting(ctx, "biz-1", m.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled || len(f.cal.deleted) != 1 {
		t.Fatalf("unexpected cancel result %+v deleted=%v", cancelled, f.cal.deleted)
	}
	if _, err := svc.CancelMeeting(ctx, "biz-1", m.ID); !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable, got %v", err)
	}
	if _, err := svc.CancelMeeting(ctx, "biz-2", m.ID); !errors.Is(err, ErrMeetingNotFound) {
		t.Fatalf("expected not found for other business, got %v", err)
	}
}
