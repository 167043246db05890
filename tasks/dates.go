package tasks

import (
	"fmt"
	"time"
)

const (
	// DayLayout is the ISO calendar-day form used in occurrence ids.
	DayLayout = "2006-01-02"

	// wireLayout matches the millisecond ISO-8601 strings clients send.
	wireLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Someday is the epoch-zero sentinel for tasks without a fixed date.
var Someday = time.Unix(0, 0).UTC()

// Date builds a calendar day at midnight UTC.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Day truncates t to its calendar day, expressed at midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// IsSomeday reports whether t is the someday sentinel. The zero time counts too.
func IsSomeday(t time.Time) bool {
	return t.IsZero() || Day(t).Equal(Someday)
}

// NormalizeDate maps t onto a calendar day, folding the zero time into Someday.
func NormalizeDate(t time.Time) time.Time {
	if IsSomeday(t) {
		return Someday
	}
	return Day(t)
}

// FormatDate renders a calendar day in the wire format.
func FormatDate(t time.Time) string {
	return NormalizeDate(t).Format(wireLayout)
}

// ISODay renders t as yyyy-mm-dd.
func ISODay(t time.Time) string {
	return Day(t).Format(DayLayout)
}

// ParseDate accepts the wire format, RFC 3339 or a bare yyyy-mm-dd. An empty
// string is the someday sentinel.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return Someday, nil
	}
	for _, layout := range []string{wireLayout, time.RFC3339Nano, DayLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return NormalizeDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(wireLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
