// Package timeframe resolves dashboard date ranges into inclusive windows of
// whole calendar days in the service's canonical zone.
package timeframe

import (
	"time"
)

// DateLayout is the calendar-day format used for bucket keys and query
// parameters.
const DateLayout = "2006-01-02"

type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider uses the system clock.
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// Window is the inclusive range [Start, End] covering whole days in Loc.
type Window struct {
	Start time.Time
	End   time.Time
	Loc   *time.Location
}

// NewWindow spans the calendar days of from through to, both inclusive, in loc.
func NewWindow(from, to time.Time, loc *time.Location) Window {
	return Window{
		Start: StartOfDay(from, loc),
		End:   StartOfDay(to, loc).AddDate(0, 0, 1).Add(-time.Nanosecond),
		Loc:   loc,
	}
}

// StartOfDay is midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Until is the exclusive upper bound of the window, for storage queries.
func (w Window) Until() time.Time {
	return w.End.Add(time.Nanosecond)
}

// DayKey is the bucket key of t in the window's zone.
func (w Window) DayKey(t time.Time) string {
	return t.In(w.Loc).Format(DateLayout)
}

// Days lists every calendar day in the window in order, including days with
// no data.
func (w Window) Days() []string {
	var days []string
	for d := w.Start; !d.After(w.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DateLayout))
	}
	return days
}

// DayCount is the number of calendar days in the window.
func (w Window) DayCount() int {
	return SpanDays(w.Start, w.End, w.Loc)
}

// SpanDays counts the calendar days from through to, both inclusive, in loc.
// It works on civil dates, so DST shifts and huge ranges cost nothing.
func SpanDays(from, to time.Time, loc *time.Location) int {
	return int(civilDay(to, loc)-civilDay(from, loc)) + 1
}

// civilDay numbers t's calendar date in loc as days since the Unix epoch.
func civilDay(t time.Time, loc *time.Location) int64 {
	t = t.In(loc)
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Unix() / 86400
}
