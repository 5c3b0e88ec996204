// Package calendar renders schedule exceptions as iCalendar data, both for
// the subscription feed and for the CalDAV mirror.
package calendar

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/tazhate/holidaybot/internal/domain"
)

const productID = "-//HolidayBot//Schedule Exceptions//EN"

// uidNamespace scopes event UIDs so they stay stable across restarts.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://holidaybot/exceptions"))

// UID is the stable iCalendar UID of an exception.
func UID(exceptionID int64) string {
	return uuid.NewSHA1(uidNamespace, []byte(strconv.FormatInt(exceptionID, 10))).String() + "@holidaybot"
}

// Event converts one exception into a VEVENT. Holidays become all-day
// events with an exclusive DTEND on the day after the last day.
func Event(e *domain.Exception, stamp time.Time) *ical.Event {
	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, UID(e.ID))
	ev.Props.SetText(ical.PropSummary, summary(e))
	ev.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())

	if e.Note != nil && *e.Note != "" {
		ev.Props.SetText(ical.PropDescription, *e.Note)
	}
	ev.Props.SetText(ical.PropCategories, string(e.Kind))

	if e.AllDay() {
		ev.Props.SetDate(ical.PropDateTimeStart, e.StartAt)
		y, m, d := e.EndAt.Date()
		ev.Props.SetDate(ical.PropDateTimeEnd, time.Date(y, m, d+1, 0, 0, 0, 0, e.EndAt.Location()))
	} else {
		ev.Props.SetDateTime(ical.PropDateTimeStart, e.StartAt.UTC())
		ev.Props.SetDateTime(ical.PropDateTimeEnd, e.EndAt.UTC())
	}

	if !e.UpdatedAt.IsZero() {
		ev.Props.SetDateTime(ical.PropLastModified, e.UpdatedAt.UTC())
	}
	return ev
}

// Feed wraps exceptions into a calendar named name.
func Feed(name string, items []*domain.Exception, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	if name != "" {
		cal.Props.SetText("X-WR-CALNAME", name)
	}
	for _, e := range items {
		cal.Children = append(cal.Children, Event(e, stamp).Component)
	}
	return cal
}

// Encode writes cal as text/calendar.
func Encode(w io.Writer, cal *ical.Calendar) error {
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

func summary(e *domain.Exception) string {
	switch e.Kind {
	case domain.KindCancellation:
		return "🚫 " + e.DisplayTitle()
	default:
		return "🏝️ " + e.DisplayTitle()
	}
}
