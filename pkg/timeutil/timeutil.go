// Package timeutil parses backend timestamps and formats dates in the
// school's timezone (India Standard Time, UTC+5:30, no DST).
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// SchoolTZ is fixed so formatting does not depend on the host tzdata.
var SchoolTZ = time.FixedZone("IST", 5*60*60+30*60)

// Now returns the current time in the school timezone.
func Now() time.Time {
	return time.Now().In(SchoolTZ)
}

// StartOfDay returns 00:00:00 of t's day in the school timezone.
func StartOfDay(t time.Time) time.Time {
	t = t.In(SchoolTZ)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, SchoolTZ)
}

// Layouts accepted from the backend, most specific first. PostgREST
// returns timestamptz as RFC 3339; date columns come as plain dates;
// direct SQL text casts use the Postgres form.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses any backend timestamp. Values without an offset
// are taken as school-local. Empty input yields the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, SchoolTZ); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("timeutil: unrecognized timestamp %q", s)
}

// MustParse is ParseTimestamp for fixtures; it returns the zero time on error.
func MustParse(s string) time.Time {
	t, _ := ParseTimestamp(s)
	return t
}

// Common date/time formats.
const (
	LayoutDate    = "2006-01-02"
	LayoutDisplay = "Jan 2, 2006"
)

// FormatDate formats as "Mar 15, 2024" in the school timezone.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(SchoolTZ).Format(LayoutDisplay)
}

// FormatDateStr formats as YYYY-MM-DD in the school timezone.
func FormatDateStr(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(SchoolTZ).Format(LayoutDate)
}

// DaysUntil counts calendar days from now to t; negative for the past.
func DaysUntil(t, now time.Time) int {
	return int(StartOfDay(t).Sub(StartOfDay(now)).Hours() / 24)
}

// FormatRelative renders "today", "tomorrow", "in 5 days" or "3 days ago".
func FormatRelative(t, now time.Time) string {
	switch d := DaysUntil(t, now); {
	case d == 0:
		return "today"
	case d == 1:
		return "tomorrow"
	case d == -1:
		return "yesterday"
	case d > 1:
		return fmt.Sprintf("in %d days", d)
	default:
		return fmt.Sprintf("%d days ago", -d)
	}
}
