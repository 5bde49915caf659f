// Package window splits a requested date range into upstream-sized fetch
// windows. Windows are expressed in whole calendar days: Start is midnight
// of the first day, End is 23:59:59 of the last day.
package window

import "time"

// Window is one contiguous sub-range of a requested date range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Split divides [start, end] into ordered, contiguous, non-overlapping
// windows of at most maxSpanDays calendar days that together cover the
// range exactly. The end date is normalized to 23:59:59 of its calendar
// day. An inverted range yields no windows; callers must treat that as a
// validation failure rather than silently ignoring it.
func Split(start, end time.Time, maxSpanDays int) []Window {
	if maxSpanDays < 1 {
		maxSpanDays = 1
	}

	cursor := startOfDay(start)
	rangeEnd := endOfDay(end)
	if cursor.After(rangeEnd) {
		return nil
	}

	var windows []Window
	for !cursor.After(rangeEnd) {
		last := endOfDay(cursor.AddDate(0, 0, maxSpanDays-1))
		if last.After(rangeEnd) {
			last = rangeEnd
		}
		windows = append(windows, Window{Start: cursor, End: last})
		cursor = startOfDay(last).AddDate(0, 0, 1)
	}
	return windows
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}
