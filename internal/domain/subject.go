package domain

import "strings"

// Subject is a timetable entry; cancellations reference one by code.
type Subject struct {
	ID         int64
	OwnerID    string
	Code       string
	Name       string
	Day        string
	StartTime  string
	EndTime    string
	Room       string
	Section    string
	Type       string
	Instructor string
	Semester   string
}

// Title is "<code> <name>", or empty if both are blank.
func (s *Subject) Title() string {
	return strings.TrimSpace(strings.TrimSpace(s.Code) + " " + strings.TrimSpace(s.Name))
}

// dayOrder sorts subjects Monday first.
var dayOrder = map[string]int{
	"mon": 1, "monday": 1,
	"tue": 2, "tuesday": 2,
	"wed": 3, "wednesday": 3,
	"thu": 4, "thursday": 4,
	"fri": 5, "friday": 5,
	"sat": 6, "saturday": 6,
	"sun": 7, "sunday": 7,

	"จันทร์": 1, "อังคาร": 2, "พุธ": 3, "พฤ": 4, "พฤหัสบดี": 4,
	"ศุกร์": 5, "เสาร์": 6, "อาทิตย์": 7,
}

func DayOrder(day string) int {
	if n, ok := dayOrder[strings.ToLower(strings.TrimSpace(day))]; ok {
		return n
	}
	return 99
}
