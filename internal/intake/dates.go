package intake

import (
	"strings"
	"time"
)

const dateOnly = "2006-01-02"

// StayDate is a parsed check-in or check-out value.
type StayDate struct {
	Time time.Time
	// DateOnly is set when the source had no time of day.
	DateOnly bool
}

// ParseStayDate accepts YYYY-MM-DD and RFC 3339 values.
func ParseStayDate(s string) (StayDate, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return StayDate{}, false
	}
	if t, err := time.Parse(dateOnly, s); err == nil {
		return StayDate{Time: t, DateOnly: true}, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return StayDate{Time: t.UTC()}, true
	}
	return StayDate{}, false
}

// WindowStart is the first instant a check-in date covers.
func (d StayDate) WindowStart() time.Time {
	return d.Time
}

// WindowEnd is the last instant a check-out date covers; a date-only value
// runs to the end of that UTC day.
func (d StayDate) WindowEnd() time.Time {
	if d.DateOnly {
		return d.Time.Add(24*time.Hour - time.Millisecond)
	}
	return d.Time
}
