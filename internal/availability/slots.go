// Package availability computes bookable meeting slots from weekly business
// hours and a list of busy intervals.
package availability

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/leadqual-platform/internal/apperr"
)

// MaxRangeDays bounds a single slot query.
const MaxRangeDays = 62

// Clock is a time of day in minutes after midnight.
type Clock int

// ParseClock parses "HH:MM" (24-hour). "24:00" denotes end of day.
func ParseClock(value string) (Clock, error) {
	value = strings.TrimSpace(value)
	if value == "24:00" {
		return Clock(24 * 60), nil
	}
	layout := "15:04"
	if strings.Count(value, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// on returns the instant at this clock on the given local date.
func (c Clock) on(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, int(c)/60, int(c)%60, 0, 0, loc)
}

// Window is an opening window on a weekday, [Start, End).
type Window struct {
	Weekday time.Weekday
	Start   Clock
	End     Clock
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the two half-open intervals share any instant.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Slot is a bookable interval.
type Slot = Interval

// Request describes a slot query.
type Request struct {
	From     time.Time
	To       time.Time
	Location *time.Location
	Duration time.Duration
	Windows  []Window
	Busy     []Interval
	// NotBefore drops slots starting earlier, when set.
	NotBefore time.Time
}

// SuggestSlots returns every free slot of exactly Duration within the
// business windows for each local date from From to To inclusive, in
// chronological order.
func SuggestSlots(req Request) ([]Slot, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}

	byDay := mergeWindows(req.Windows)
	from := req.From.In(loc)
	to := req.To.In(loc)
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	last := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, loc)

	slots := []Slot{}
	for !day.After(last) {
		y, m, d := day.Date()
		for _, w := range byDay[day.Weekday()] {
			open := w.Start.on(y, m, d, loc)
			closeAt := w.End.on(y, m, d, loc)
			for start := open; !start.Add(req.Duration).After(closeAt); start = start.Add(req.Duration) {
				candidate := Slot{Start: start, End: start.Add(req.Duration)}
				if !req.NotBefore.IsZero() && candidate.Start.Before(req.NotBefore) {
					continue
				}
				if overlapsAny(candidate, req.Busy) {
					continue
				}
				slots = append(slots, candidate)
			}
		}
		day = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	}
	return slots, nil
}

// ValidateRequest reports the problems SuggestSlots would reject req for.
func ValidateRequest(req Request) error {
	fields := map[string]string{}
	if req.Duration <= 0 {
		fields["duration"] = "must be positive"
	}
	if req.From.IsZero() || req.To.IsZero() {
		fields["range"] = "from and to are required"
	} else if req.To.Before(req.From) {
		fields["range"] = "to must not be before from"
	} else if req.To.Sub(req.From) > time.Duration(MaxRangeDays)*24*time.Hour {
		fields["range"] = fmt.Sprintf("must not exceed %d days", MaxRangeDays)
	}
	for _, w := range req.Windows {
		if w.End <= w.Start || w.Start < 0 || w.End > 24*60 {
			fields["windows"] = fmt.Sprintf("invalid window %s-%s on %s", w.Start, w.End, w.Weekday)
			break
		}
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid availability request", fields)
	}
	return nil
}

// mergeWindows groups windows by weekday and unions overlapping or touching
// windows so no instant is produced twice.
func mergeWindows(windows []Window) map[time.Weekday][]Window {
	grouped := map[time.Weekday][]Window{}
	for _, w := range windows {
		grouped[w.Weekday] = append(grouped[w.Weekday], w)
	}
	for day, list := range grouped {
		sort.Slice(list, func(i, j int) bool { return list[i].Start < list[j].Start })
		merged := []Window{list[0]}
		for _, w := range list[1:] {
			cur := &merged[len(merged)-1]
			if w.Start <= cur.End {
				if w.End > cur.End {
					cur.End = w.End
				}
				continue
			}
			merged = append(merged, w)
		}
		grouped[day] = merged
	}
	return grouped
}

func overlapsAny(slot Slot, busy []Interval) bool {
	for _, b := range busy {
		if slot.Overlaps(b) {
			return true
		}
	}
	return false
}
