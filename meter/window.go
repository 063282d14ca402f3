package meter

import "time"

// Window is a half-open time interval [Start, End) used for usage
// aggregation. The monthly window is anchored to the calendar month in
// UTC; the hourly window slides with "now".
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// MonthStart returns the first instant of t's calendar month in UTC.
// Window boundaries are computed offset-free to avoid local-time drift.
func MonthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextMonthStart returns the first instant of the month after t's, UTC.
// This is the reset time reported for monthly quota denials.
func NextMonthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// MonthWindow returns the calendar-month window containing t.
func MonthWindow(t time.Time) Window {
	return Window{Start: MonthStart(t), End: NextMonthStart(t)}
}

// HourWindow returns the sliding 60-minute window ending at t. It is
// deliberately not a fixed clock-hour bucket.
func HourWindow(t time.Time) Window {
	u := t.UTC()
	return Window{Start: u.Add(-time.Hour), End: u}
}
