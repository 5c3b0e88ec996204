package scheduler

import (
	"strings"

	"github.com/tazhate/holidaybot/internal/domain"
)

// ReminderText renders the push message for a due reminder. Dates are shown
// in the offset the exception was stored with.
func ReminderText(r *domain.DueReminder) string {
	lines := []string{}

	if r.Exception == nil {
		lines = append(lines,
			"⏰ Reminder",
			"At: "+r.FireAt.Format("02/01/2006 15:04"),
		)
		return strings.Join(lines, "\n")
	}

	ex := r.Exception
	lines = append(lines,
		ex.KindLabel()+" is coming up ✨",
		"Date: "+ex.StartAt.Format("02/01/2006"),
		"Reminder: "+r.FireAt.Format("02/01/2006 15:04"),
		"Title: "+ex.DisplayTitle(),
	)
	if ex.Note != nil && strings.TrimSpace(*ex.Note) != "" {
		lines = append(lines, "Note: "+strings.TrimSpace(*ex.Note))
	}
	lines = append(lines, "Don't forget to check your timetable 😊")
	return strings.Join(lines, "\n")
}
