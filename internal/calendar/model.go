// Package calendar talks to the business owner's external calendar and stores
// the per-user credentials needed to do so.
package calendar

import (
	"context"
	"strings"
	"time"

	"github.com/wolfman30/leadqual-platform/internal/apperr"
	"github.com/wolfman30/leadqual-platform/internal/availability"
)

// DefaultCalendarID is used when a credential does not name a calendar.
const DefaultCalendarID = "primary"

var (
	// ErrCredentialNotFound means the user never connected a calendar.
	ErrCredentialNotFound = apperr.NotFound("calendar credential not found")
	// ErrCalendarUnavailable classifies provider failures.
	ErrCalendarUnavailable = apperr.Upstream("calendar provider unavailable", nil)
)

// Credential is a user's long-lived grant to their calendar.
type Credential struct {
	UserID       string    `json:"user_id"`
	RefreshToken string    `json:"-"`
	CalendarID   string    `json:"calendar_id"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Calendar returns the calendar to operate on.
func (c Credential) Calendar() string {
	if id := strings.TrimSpace(c.CalendarID); id != "" {
		return id
	}
	return DefaultCalendarID
}

// Event is a meeting to create on the remote calendar.
type Event struct {
	Title         string
	Description   string
	Start         time.Time
	End           time.Time
	Timezone      string
	AttendeeEmail string
}

// Provider is the remote calendar contract.
type Provider interface {
	QueryBusy(ctx context.Context, cred Credential, from, to time.Time) ([]availability.Interval, error)
	CreateEvent(ctx context.Context, cred Credential, event Event) (string, error)
	DeleteEvent(ctx context.Context, cred Credential, eventID string) error
}

// CredentialStore persists calendar credentials per user.
type CredentialStore interface {
	GetCredential(ctx context.Context, userID string) (*Credential, error)
	SaveCredential(ctx context.Context, cred Credential) error
	DeleteCredential(ctx context.Context, userID string) error
}
