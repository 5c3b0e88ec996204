package service

import (
	"strings"
	"time"

	"github.com/tazhate/holidaybot/internal/domain"
)

// Layouts without an offset are read in the caller-supplied location.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

const dateLayout = "2006-01-02"

// ParseInstant reads an RFC3339 timestamp, a local date-time or a bare date.
// Local forms are interpreted in loc; a bare date means midnight.
func ParseInstant(s string, loc *time.Location) (time.Time, error) {
	return parseBound(s, loc, false)
}

// ParseRangeEnd is ParseInstant except that a bare date means 23:59:59.
func ParseRangeEnd(s string, loc *time.Location) (time.Time, error) {
	return parseBound(s, loc, true)
}

func parseBound(s string, loc *time.Location, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, domain.Validationf("missing timestamp")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		if endOfDay {
			y, m, d := t.Date()
			return time.Date(y, m, d, 23, 59, 59, 0, loc), nil
		}
		return t, nil
	}
	return time.Time{}, domain.Validationf("invalid timestamp %q", s)
}
