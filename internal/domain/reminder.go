package domain

import "time"

type ReminderStatus string

const (
	ReminderPending ReminderStatus = "pending"
	ReminderSending ReminderStatus = "sending"
	ReminderSent    ReminderStatus = "sent"
	ReminderFailed  ReminderStatus = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s ReminderStatus) IsTerminal() bool {
	return s == ReminderSent || s == ReminderFailed
}

// Reminder is a single scheduled notification for an exception.
type Reminder struct {
	ID          int64
	OwnerID     string
	ExceptionID int64
	FireAt      time.Time
	Status      ReminderStatus
	CreatedAt   time.Time
	SentAt      *time.Time
}

// DueReminder is a claimed-or-claimable reminder joined with the exception it
// belongs to, as read by the dispatcher.
type DueReminder struct {
	Reminder
	Exception *Exception
}
