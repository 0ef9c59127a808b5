package business

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/leadqual-platform/internal/apperr"
	"github.com/wolfman30/leadqual-platform/internal/availability"
)

// Business is the tenant profile the assistant speaks for.
type Business struct {
	ID                 string `json:"id"`
	OwnerUserID        string `json:"owner_user_id"`
	Name               string `json:"name"`
	Industry           string `json:"industry"`
	ServiceDescription string `json:"service_description"`
	Timezone           string `json:"timezone"`
	NotificationEmail  string `json:"notification_email,omitempty"`
}

// Location returns the business time zone, falling back to UTC.
func (b *Business) Location() *time.Location {
	if b == nil || strings.TrimSpace(b.Timezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AssistantConfig tunes the assistant persona for a business.
type AssistantConfig struct {
	BusinessID            string   `json:"business_id"`
	Name                  string   `json:"name"`
	Role                  string   `json:"role"`
	Tone                  string   `json:"tone"`
	QualificationFields   []string `json:"qualification_fields"`
	DefaultMeetingMinutes int      `json:"default_meeting_minutes"`
}

// Validate normalizes the config in place.
func (c *AssistantConfig) Validate() error {
	fields := map[string]string{}
	c.Role = strings.TrimSpace(c.Role)
	c.Tone = strings.TrimSpace(c.Tone)
	if c.Role == "" {
		fields["role"] = "required"
	}
	if c.DefaultMeetingMinutes < 0 || c.DefaultMeetingMinutes > 480 {
		fields["default_meeting_minutes"] = "must be between 0 and 480"
	}
	cleaned := make([]string, 0, len(c.QualificationFields))
	seen := map[string]bool{}
	for _, f := range c.QualificationFields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		cleaned = append(cleaned, f)
	}
	c.QualificationFields = cleaned
	if len(fields) > 0 {
		return apperr.Validation("invalid assistant configuration", fields)
	}
	return nil
}

// Hours is one opening window on a weekday. A weekday may carry several.
type Hours struct {
	Weekday string `json:"weekday"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// Window converts the entry to a calculator window.
func (h Hours) Window() (availability.Window, error) {
	day, err := ParseWeekday(h.Weekday)
	if err != nil {
		return availability.Window{}, err
	}
	start, err := availability.ParseClock(h.Start)
	if err != nil {
		return availability.Window{}, apperr.Validation("invalid business hours", map[string]string{"start": err.Error()})
	}
	end, err := availability.ParseClock(h.End)
	if err != nil {
		return availability.Window{}, apperr.Validation("invalid business hours", map[string]string{"end": err.Error()})
	}
	if end <= start {
		return availability.Window{}, apperr.Validation("invalid business hours", map[string]string{"end": "must be after start"})
	}
	return availability.Window{Weekday: day, Start: start, End: end}, nil
}

// Windows converts every entry, failing on the first invalid one.
func Windows(hours []Hours) ([]availability.Window, error) {
	out := make([]availability.Window, 0, len(hours))
	for _, h := range hours {
		w, err := h.Window()
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// NormalizeHours validates entries and lowercases weekday names.
func NormalizeHours(hours []Hours) ([]Hours, error) {
	out := make([]Hours, 0, len(hours))
	for _, h := range hours {
		if _, err := h.Window(); err != nil {
			return nil, err
		}
		h.Weekday = strings.ToLower(strings.TrimSpace(h.Weekday))
		out = append(out, h)
	}
	return out, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts a full English weekday name in any case.
func ParseWeekday(value string) (time.Weekday, error) {
	day, ok := weekdays[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return 0, apperr.Validation("invalid business hours", map[string]string{"weekday": fmt.Sprintf("unknown weekday %q", value)})
	}
	return day, nil
}

// HashAPIKey returns the stored form of a lead-ingestion API key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}
