package domain

import (
	"strings"
	"time"
)

type ExceptionKind string

const (
	KindHoliday      ExceptionKind = "holiday"
	KindCancellation ExceptionKind = "cancel"
)

// DefaultCancellationTitle is used when a cancellation has no explicit title
// and its subject cannot be found.
const DefaultCancellationTitle = "Class cancelled"

// ParseKind accepts the wire values plus the long form "cancellation".
func ParseKind(s string) (ExceptionKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "holiday":
		return KindHoliday, true
	case "cancel", "cancellation":
		return KindCancellation, true
	}
	return "", false
}

// Exception is a holiday or class cancellation overriding the normal timetable.
type Exception struct {
	ID         int64
	OwnerID    string
	Kind       ExceptionKind
	SubjectRef *string
	StartAt    time.Time
	EndAt      time.Time
	Title      *string
	Note       *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AllDay is derived from the kind and never stored independently of it.
func (e *Exception) AllDay() bool {
	return AllDayFor(e.Kind)
}

func AllDayFor(k ExceptionKind) bool {
	return k == KindHoliday
}

// Date returns the calendar date of the start in its own offset.
func (e *Exception) Date() string {
	return DateKey(e.StartAt)
}

// DisplayTitle never returns an empty string.
func (e *Exception) DisplayTitle() string {
	if e.Title != nil && strings.TrimSpace(*e.Title) != "" {
		return strings.TrimSpace(*e.Title)
	}
	if e.Kind == KindCancellation {
		return DefaultCancellationTitle
	}
	return "Holiday"
}

func (e *Exception) KindLabel() string {
	switch e.Kind {
	case KindCancellation:
		return "🚫 Class cancelled"
	case KindHoliday:
		return "🏝️ Holiday"
	default:
		return "⏰ Reminder"
	}
}

// DateKey formats t as YYYY-MM-DD without converting its location.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// CleanText trims v and turns blank strings into nil.
func CleanText(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
