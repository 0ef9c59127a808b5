package leads

import (
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/leadqual-platform/internal/apperr"
)

// Status is the lifecycle state of a lead.
type Status string

const (
	StatusNew         Status = "new"
	StatusQualified   Status = "qualified"
	StatusUnqualified Status = "unqualified"
	StatusConverted   Status = "converted"
	StatusInactive    Status = "inactive"
)

var statusRank = map[Status]int{
	StatusNew:         0,
	StatusQualified:   1,
	StatusUnqualified: 1,
	StatusConverted:   2,
}

// ParseStatus validates a status string.
func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	switch s {
	case StatusNew, StatusQualified, StatusUnqualified, StatusConverted, StatusInactive:
		return s, nil
	}
	return "", apperr.Validation("invalid lead status", map[string]string{"status": "unknown value " + value})
}

// CanTransitionTo reports whether moving from s to next is allowed. Statuses
// only move forward; any lead may go inactive and an inactive lead may be
// re-engaged as new.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next || next == StatusInactive {
		return true
	}
	if s == StatusInactive {
		return next == StatusNew
	}
	from, okFrom := statusRank[s]
	to, okTo := statusRank[next]
	return okFrom && okTo && to > from
}

// allowedPredecessors lists every status that may move to next.
func allowedPredecessors(next Status) []string {
	out := make([]string, 0, 5)
	for _, s := range []Status{StatusNew, StatusQualified, StatusUnqualified, StatusConverted, StatusInactive} {
		if s.CanTransitionTo(next) {
			out = append(out, string(s))
		}
	}
	return out
}

// Channel is the messaging channel a lead is reached on.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
)

// ParseChannel validates a channel string.
func ParseChannel(value string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(value)))
	switch c {
	case ChannelWhatsApp, ChannelSMS, ChannelEmail:
		return c, nil
	}
	return "", apperr.Validation("invalid channel", map[string]string{"channel": "unknown value " + value})
}

// Lead is a prospective customer of a business.
type Lead struct {
	ID              string            `json:"id"`
	BusinessID      string            `json:"business_id"`
	Name            string            `json:"name"`
	Email           string            `json:"email,omitempty"`
	Phone           string            `json:"phone,omitempty"`
	Status          Status            `json:"status"`
	Channel         Channel           `json:"channel"`
	Source          string            `json:"source,omitempty"`
	Qualification   map[string]string `json:"qualification"`
	LastContactedAt *time.Time        `json:"last_contacted_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// CreateLeadRequest represents the request body for creating a lead
type CreateLeadRequest struct {
	BusinessID string `json:"-"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Channel    string `json:"channel"`
	Source     string `json:"source"`
}

// Validate normalizes the request in place and reports field problems.
func (r *CreateLeadRequest) Validate() error {
	fields := map[string]string{}
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(strings.ToLower(r.Email))
	r.Phone = NormalizePhone(r.Phone)

	if strings.TrimSpace(r.BusinessID) == "" {
		return ErrMissingBusiness
	}
	if r.Email == "" && r.Phone == "" {
		fields["contact"] = "phone or email is required"
	}
	if r.Email != "" {
		if _, err := mail.ParseAddress(r.Email); err != nil {
			fields["email"] = "invalid email address"
		}
	}
	if r.Channel == "" {
		switch {
		case r.Phone != "":
			r.Channel = string(ChannelSMS)
		default:
			r.Channel = string(ChannelEmail)
		}
	}
	if _, err := ParseChannel(r.Channel); err != nil {
		fields["channel"] = "must be one of whatsapp, sms, email"
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid lead", fields)
	}
	return nil
}

// ListFilter narrows ListByBusiness results.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// MergeQualification returns existing overlaid with updates. Keys absent from
// updates are kept; empty update values are ignored.
func MergeQualification(existing, updates map[string]string) map[string]string {
	merged := make(map[string]string, len(existing)+len(updates))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range updates {
		if strings.TrimSpace(v) == "" {
			continue
		}
		merged[k] = v
	}
	return merged
}

// SortByRecentActivity orders leads most-recently-active first: latest
// contact, then newest creation.
func SortByRecentActivity(list []*Lead) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		switch {
		case a.LastContactedAt != nil && b.LastContactedAt == nil:
			return true
		case a.LastContactedAt == nil && b.LastContactedAt != nil:
			return false
		case a.LastContactedAt != nil && !a.LastContactedAt.Equal(*b.LastContactedAt):
			return a.LastContactedAt.After(*b.LastContactedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}
