// Package meetings books, lists and cancels meetings between a business and
// its leads, coordinating local storage with the owner's calendar.
package meetings

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/leadqual-platform/internal/apperr"
	"github.com/wolfman30/leadqual-platform/internal/availability"
)

// Status is the lifecycle state of a meeting.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
)

// ParseStatus validates a status string from the API boundary.
func ParseStatus(value string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(value))); s {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusRescheduled:
		return s, nil
	default:
		return "", apperr.Validation("invalid meeting status", map[string]string{"status": fmt.Sprintf("unknown status %q", value)})
	}
}

// Meeting is a booked time between a business and a lead.
type Meeting struct {
	ID              string         `json:"id"`
	BusinessID      string         `json:"business_id"`
	LeadID          string         `json:"lead_id"`
	ConversationID  string         `json:"conversation_id,omitempty"`
	Title           string         `json:"title"`
	StartAt         time.Time      `json:"start_at"`
	EndAt           time.Time      `json:"end_at"`
	Timezone        string         `json:"timezone"`
	Status          Status         `json:"status"`
	ExternalEventID string         `json:"external_event_id,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Interval returns the meeting's half-open time range.
func (m *Meeting) Interval() availability.Interval {
	return availability.Interval{Start: m.StartAt, End: m.EndAt}
}

// BookRequest is the input to Service.BookMeeting.
type BookRequest struct {
	BusinessID     string         `json:"-"`
	LeadID         string         `json:"lead_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Start          time.Time      `json:"start"`
	End            time.Time      `json:"end"`
	Timezone       string         `json:"timezone,omitempty"`
	Title          string         `json:"title,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Validate checks the request shape.
func (r *BookRequest) Validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(r.BusinessID) == "" {
		fields["business_id"] = "required"
	}
	if strings.TrimSpace(r.LeadID) == "" {
		fields["lead_id"] = "required"
	}
	if r.Start.IsZero() {
		fields["start"] = "required"
	}
	if r.End.IsZero() {
		fields["end"] = "required"
	} else if !r.End.After(r.Start) {
		fields["end"] = "must be after start"
	}
	if r.Timezone != "" {
		if _, err := time.LoadLocation(r.Timezone); err != nil {
			fields["timezone"] = "unknown time zone"
		}
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid meeting request", fields)
	}
	return nil
}

// ListFilter narrows meeting listings.
type ListFilter struct {
	Status Status
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}
