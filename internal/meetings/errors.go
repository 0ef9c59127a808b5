package meetings

import "github.com/wolfman30/leadqual-platform/internal/apperr"

var (
	// ErrMeetingNotFound is returned when no meeting matches in the business.
	ErrMeetingNotFound = apperr.NotFound("meeting not found")

	// ErrSlotConflict is returned when the requested window is no longer free.
	ErrSlotConflict = apperr.Conflict("requested time is no longer available")

	// ErrNotCancellable is returned when cancelling a meeting that is not scheduled.
	ErrNotCancellable = apperr.Validation("only scheduled meetings can be cancelled", map[string]string{"status": "not scheduled"})
)
