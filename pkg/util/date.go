package util

import (
	"strconv"
	"time"
)

const dateOnly = "2006-01-02"

// ParseTime tries RFC3339, RFC3339Nano, date-only, and unix seconds.
// Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(dateOnly, s); err == nil {
		return t.UTC(), true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// TruncateDay floors t to UTC midnight. Daily bars are keyed this way.
func TruncateDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// AlignDaily rounds a query range to whole UTC days, end exclusive.
func AlignDaily(from, to time.Time) (time.Time, time.Time) {
	from = TruncateDay(from)
	if aligned := TruncateDay(to); aligned.Equal(to.UTC()) {
		to = aligned
	} else {
		to = aligned.Add(24 * time.Hour)
	}
	return from, to
}

// FormatDay renders t as a date-only string in UTC.
func FormatDay(t time.Time) string {
	return t.UTC().Format(dateOnly)
}
