// internal/domain/models/dates.go
package models

import (
	"strings"
	"time"
)

// DateLayout is the calendar-day format used for container dates and
// occupied dates. Dates compare correctly as strings in this layout.
const DateLayout = "2006-01-02"

// ParseDate parses a calendar day in DateLayout.
func ParseDate(v string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(v))
}

// NormalizeDate validates v and returns its canonical form.
func NormalizeDate(v string) (string, bool) {
	t, err := ParseDate(v)
	if err != nil {
		return "", false
	}
	return t.Format(DateLayout), true
}

// DaySpan counts the days from..to inclusive without materializing them.
// An unparsable or inverted range yields 0.
func DaySpan(from, to string) int {
	start, err := ParseDate(from)
	if err != nil {
		return 0
	}
	end, err := ParseDate(to)
	if err != nil || end.Before(start) {
		return 0
	}
	return int(end.Sub(start)/(24*time.Hour)) + 1
}

// DatesBetween returns every day from..to inclusive. Both bounds must already
// be normalized; an inverted range yields nil.
func DatesBetween(from, to string) []string {
	start, err := ParseDate(from)
	if err != nil {
		return nil
	}
	end, err := ParseDate(to)
	if err != nil || end.Before(start) {
		return nil
	}
	var out []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(DateLayout))
	}
	return out
}
