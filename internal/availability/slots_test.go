package availability

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/leadqual-platform/internal/apperr"
)

// 2024-01-01 is a Monday.
var monday = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func clock(t *testing.T, v string) Clock {
	t.Helper()
	c, err := ParseClock(v)
	require.NoError(t, err)
	return c
}

func TestSuggestSlots_MondayHour(t *testing.T) {
	slots, err := SuggestSlots(Request{
		From:     monday,
		To:       monday,
		Duration: 30 * time.Minute,
		Windows:  []Window{{Weekday: time.Monday, Start: clock(t, "09:00"), End: clock(t, "10:00")}},
	})
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, monday.Add(9*time.Hour), slots[0].Start)
	assert.Equal(t, monday.Add(9*time.Hour+30*time.Minute), slots[0].End)
	assert.Equal(t, monday.Add(9*time.Hour+30*time.Minute), slots[1].Start)
	assert.Equal(t, monday.Add(10*time.Hour), slots[1].End)
}

func TestSuggestSlots_BusyRemovesOverlaps(t *testing.T) {
	hours := []Window{{Weekday: time.Monday, Start: clock(t, "09:00"), End: clock(t, "10:00")}}
	slots, err := SuggestSlots(Request{
		From:     monday,
		To:       monday,
		Duration: 30 * time.Minute,
		Windows:  hours,
		Busy:     []Interval{{Start: monday.Add(9 * time.Hour), End: monday.Add(9*time.Hour + 30*time.Minute)}},
	})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, monday.Add(9*time.Hour+30*time.Minute), slots[0].Start)
}

func TestSuggestSlots_OverlapShapes(t *testing.T) {
	hours := []Window{{Weekday: time.Monday, Start: clock(t, "09:00"), End: clock(t, "11:00")}}
	at := func(h, m int) time.Time { return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	tests := []struct {
		name string
		busy Interval
		want int
	}{
		{"busy starts inside first slot", Interval{at(9, 15), at(9, 20)}, 3},
		{"busy ends inside a slot", Interval{at(8, 0), at(9, 10)}, 3},
		{"busy contains slots", Interval{at(8, 0), at(10, 30)}, 1},
		{"busy touches slot boundary only", Interval{at(8, 0), at(9, 0)}, 4},
		{"busy after window", Interval{at(11, 0), at(12, 0)}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots, err := SuggestSlots(Request{From: monday, To: monday, Duration: 30 * time.Minute, Windows: hours, Busy: []Interval{tt.busy}})
			require.NoError(t, err)
			assert.Len(t, slots, tt.want)
		})
	}
}

func TestSuggestSlots_DaysWithoutHoursProduceNothing(t *testing.T) {
	slots, err := SuggestSlots(Request{
		From:     monday.AddDate(0, 0, 5), // Saturday
		To:       monday.AddDate(0, 0, 6), // Sunday
		Duration: time.Hour,
		Windows:  []Window{{Weekday: time.Monday, Start: clock(t, "09:00"), End: clock(t, "17:00")}},
	})
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSuggestSlots_OverlappingWindowsAreUnioned(t *testing.T) {
	slots, err := SuggestSlots(Request{
		From:     monday,
		To:       monday,
		Duration: 30 * time.Minute,
		Windows: []Window{
			{Weekday: time.Monday, Start: clock(t, "09:00"), End: clock(t, "10:00")},
			{Weekday: time.Monday, Start: clock(t, "09:30"), End: clock(t, "11:00")},
			{Weekday: time.Monday, Start: clock(t, "11:00"), End: clock(t, "11:30")},
		},
	})
	require.NoError(t, err)
	require.Len(t, slots, 5)
	seen := map[time.Time]bool{}
	for i, s := range slots {
		assert.False(t, seen[s.Start], "duplicate slot at %s", s.Start)
		seen[s.Start] = true
		if i > 0 {
			assert.True(t, slots[i-1].Start.Before(s.Start), "slots out of order")
		}
	}
}

func TestSuggestSlots_SpansMultipleDaysChronologically(t *testing.T) {
	windows := []Window{
		{Weekday: time.Monday, Start: clock(t, "09:00"), End: clock(t, "10:00")},
		{Weekday: time.Wednesday, Start: clock(t, "14:00"), End: clock(t, "15:00")},
	}
	slots, err := SuggestSlots(Request{From: monday, To: monday.AddDate(0, 0, 7), Duration: time.Hour, Windows: windows})
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, time.Monday, slots[0].Start.Weekday())
	assert.Equal(t, time.Wednesday, slots[1].Start.Weekday())
	assert.Equal(t, monday.AddDate(0, 0, 7).Add(9*time.Hour), slots[2].Start)
}

func TestSuggestSlots_UsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	slots, err := SuggestSlots(Request{
		From:     day,
		To:       day,
		Location: loc,
		Duration: time.Hour,
		Windows:  []Window{{Weekday: time.Monday, Start: clock(t, "09:00"), End: clock(t, "10:00")}},
	})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, 14, slots[0].Start.UTC().Hour())
}

func TestSuggestSlots_DaylightSavingDay(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// Clocks jump from 02:00 to 03:00 on 2024-03-10, a Sunday.
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, loc)
	slots, err := SuggestSlots(Request{
		From:     day,
		To:       day,
		Location: loc,
		Duration: time.Hour,
		Windows:  []Window{{Weekday: time.Sunday, Start: clock(t, "01:00"), End: clock(t, "04:00")}},
	})
	require.NoError(t, err)
	require.Len(t, slots, 2)
	for _, s := range slots {
		assert.Equal(t, time.Hour, s.End.Sub(s.Start))
	}
}

func TestSuggestSlots_NotBefore(t *testing.T) {
	slots, err := SuggestSlots(Request{
		From:      monday,
		To:        monday,
		Duration:  30 * time.Minute,
		Windows:   []Window{{Weekday: time.Monday, Start: clock(t, "09:00"), End: clock(t, "10:00")}},
		NotBefore: monday.Add(9*time.Hour + 10*time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, monday.Add(9*time.Hour+30*time.Minute), slots[0].Start)
}

func TestSuggestSlots_Validation(t *testing.T) {
	hours := []Window{{Weekday: time.Monday, Start: 9 * 60, End: 10 * 60}}
	tests := []struct {
		name string
		req  Request
	}{
		{"zero duration", Request{From: monday, To: monday, Windows: hours}},
		{"negative duration", Request{From: monday, To: monday, Duration: -time.Minute, Windows: hours}},
		{"reversed range", Request{From: monday, To: monday.Add(-time.Hour), Duration: time.Hour, Windows: hours}},
		{"range too long", Request{From: monday, To: monday.AddDate(0, 0, MaxRangeDays+1), Duration: time.Hour, Windows: hours}},
		{"inverted window", Request{From: monday, To: monday, Duration: time.Hour, Windows: []Window{{Weekday: time.Monday, Start: 600, End: 540}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SuggestSlots(tt.req)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "expected validation failure, got %v", err)
		})
	}
}

func TestSuggestSlots_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	windows := []Window{
		{Weekday: time.Monday, Start: 8 * 60, End: 12 * 60},
		{Weekday: time.Monday, Start: 13 * 60, End: 18 * 60},
		{Weekday: time.Tuesday, Start: 9 * 60, End: 17 * 60},
		{Weekday: time.Friday, Start: 10 * 60, End: 16 * 60},
	}
	for iter := 0; iter < 50; iter++ {
		duration := time.Duration(15*(1+rng.Intn(4))) * time.Minute
		var busy []Interval
		for i := 0; i < 6; i++ {
			start := monday.Add(time.Duration(rng.Intn(7*24*60)) * time.Minute)
			busy = append(busy, Interval{Start: start, End: start.Add(time.Duration(1+rng.Intn(180)) * time.Minute)})
		}
		slots, err := SuggestSlots(Request{From: monday, To: monday.AddDate(0, 0, 6), Duration: duration, Windows: windows, Busy: busy})
		require.NoError(t, err)
		for _, s := range slots {
			require.Equal(t, duration, s.End.Sub(s.Start))
			for _, b := range busy {
				require.False(t, s.Overlaps(b), "slot %v overlaps busy %v", s, b)
			}
			wd := s.Start.Weekday()
			require.NotEqual(t, time.Wednesday, wd)
			require.NotEqual(t, time.Thursday, wd)
		}
	}
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, Clock(570), c)
	assert.Equal(t, "09:30", c.String())

	c, err = ParseClock("17:45:00")
	require.NoError(t, err)
	assert.Equal(t, Clock(17*60+45), c)

	c, err = ParseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, Clock(1440), c)

	_, err = ParseClock("9am")
	assert.Error(t, err)
}
