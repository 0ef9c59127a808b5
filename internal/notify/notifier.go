package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/leadqual-platform/internal/business"
	"github.com/wolfman30/leadqual-platform/internal/leads"
	"github.com/wolfman30/leadqual-platform/internal/meetings"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

const categoryMeetingBooked = "meeting_booked"

// MeetingNotifier emails the business when its assistant books a meeting.
type MeetingNotifier struct {
	email  EmailSender
	logger *logging.Logger
}

// NewMeetingNotifier wraps an email sender.
func NewMeetingNotifier(email EmailSender, logger *logging.Logger) *MeetingNotifier {
	if email == nil {
		panic("notify: email sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MeetingNotifier{email: email, logger: logger}
}

// MeetingBooked sends the booking summary to the business notification address.
func (n *MeetingNotifier) MeetingBooked(ctx context.Context, biz business.Business, lead leads.Lead, meeting meetings.Meeting) error {
	to := strings.TrimSpace(biz.NotificationEmail)
	if to == "" {
		n.logger.Debug("notify: no notification email configured", "business_id", biz.ID)
		return nil
	}
	msg := EmailMessage{
		To:         to,
		ToName:     biz.Name,
		ReplyTo:    lead.Email,
		Subject:    fmt.Sprintf("New meeting booked with %s", displayName(lead)),
		Text:       meetingBody(biz, lead, meeting),
		Category:   categoryMeetingBooked,
		BusinessID: biz.ID,
	}
	if err := n.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: meeting booked: %w", err)
	}
	return nil
}

var _ meetings.Notifier = (*MeetingNotifier)(nil)

func meetingBody(biz business.Business, lead leads.Lead, meeting meetings.Meeting) string {
	loc := biz.Location()
	if meeting.Timezone != "" {
		if l, err := time.LoadLocation(meeting.Timezone); err == nil {
			loc = l
		}
	}
	start := meeting.StartAt.In(loc)
	end := meeting.EndAt.In(loc)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", meeting.Title)
	fmt.Fprintf(&b, "When: %s - %s (%s)\n", start.Format("Mon Jan 2, 2006 3:04 PM"), end.Format("3:04 PM"), loc.String())
	fmt.Fprintf(&b, "Lead: %s\n", displayName(lead))
	if lead.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", lead.Phone)
	}
	if lead.Email != "" {
		fmt.Fprintf(&b, "Email: %s\n", lead.Email)
	}
	if len(lead.Qualification) > 0 {
		keys := make([]string, 0, len(lead.Qualification))
		for k := range lead.Qualification {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\nQualification:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, lead.Qualification[k])
		}
	}
	if meeting.ExternalEventID == "" {
		b.WriteString("\nThis meeting is not on your calendar. Connect a calendar to sync future bookings.\n")
	}
	return b.String()
}

func displayName(lead leads.Lead) string {
	switch {
	case strings.TrimSpace(lead.Name) != "":
		return lead.Name
	case lead.Phone != "":
		return lead.Phone
	case lead.Email != "":
		return lead.Email
	default:
		return "a lead"
	}
}
