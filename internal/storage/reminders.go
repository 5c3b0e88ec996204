package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tazhate/holidaybot/internal/domain"
)

// === Reminders ===

const reminderColumns = `r.id, r.user_id, r.holiday_id, r.remind_at, r.status, r.created_at, r.sent_at`

func (q queries) InsertReminder(ctx context.Context, r *domain.Reminder) error {
	now := time.Now()
	if r.Status == "" {
		r.Status = domain.ReminderPending
	}
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO reminders (user_id, holiday_id, remind_at, fire_unix, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.OwnerID, r.ExceptionID, formatStamp(r.FireAt), r.FireAt.Unix(), r.Status, now,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	r.ID = id
	r.CreatedAt = now
	return nil
}

// DeletePendingReminders clears the pending frontier of one exception. Rows
// already sending, sent or failed stay.
func (q queries) DeletePendingReminders(ctx context.Context, ownerID string, exceptionID int64) (int64, error) {
	res, err := q.q.ExecContext(ctx,
		`DELETE FROM reminders WHERE holiday_id = ? AND user_id = ? AND status = 'pending'`,
		exceptionID, ownerID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListReminders returns every reminder of an exception ordered by fire time.
func (q queries) ListReminders(ctx context.Context, ownerID string, exceptionID int64) ([]*domain.Reminder, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders r
		 WHERE r.holiday_id = ? AND r.user_id = ?
		 ORDER BY r.fire_unix ASC, r.id ASC`,
		exceptionID, ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []*domain.Reminder
	for rows.Next() {
		r := &domain.Reminder{}
		var fireAt string
		var sentAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.ExceptionID, &fireAt, &r.Status, &r.CreatedAt, &sentAt); err != nil {
			return nil, err
		}
		if r.FireAt, err = parseStamp(fireAt); err != nil {
			return nil, fmt.Errorf("parse remind_at of %d: %w", r.ID, err)
		}
		r.SentAt = nullTime(sentAt)
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// GetReminder is used by tests and diagnostics.
func (q queries) GetReminder(ctx context.Context, id int64) (*domain.Reminder, error) {
	r := &domain.Reminder{}
	var fireAt string
	var sentAt sql.NullTime
	err := q.q.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders r WHERE r.id = ?`, id,
	).Scan(&r.ID, &r.OwnerID, &r.ExceptionID, &fireAt, &r.Status, &r.CreatedAt, &sentAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.FireAt, err = parseStamp(fireAt); err != nil {
		return nil, err
	}
	r.SentAt = nullTime(sentAt)
	return r, nil
}

// ListDueReminders returns up to limit pending reminders firing at or before
// now, oldest first, each joined with its exception.
func (q queries) ListDueReminders(ctx context.Context, now time.Time, limit int) ([]*domain.DueReminder, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+reminderColumns+`,
		        h.id, h.user_id, h.type, h.subject_id, h.start_at, h.end_at, h.title, h.note, h.created_at, h.updated_at
		 FROM reminders r
		 JOIN holidays h ON h.id = r.holiday_id
		 WHERE r.status = 'pending' AND r.fire_unix <= ?
		 ORDER BY r.fire_unix ASC, r.id ASC
		 LIMIT ?`,
		now.Unix(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*domain.DueReminder
	for rows.Next() {
		d := &domain.DueReminder{}
		var fireAt string
		var sentAt sql.NullTime
		var (
			e                    domain.Exception
			subject, title, note sql.NullString
			startStr, endStr     string
		)
		if err := rows.Scan(
			&d.ID, &d.OwnerID, &d.ExceptionID, &fireAt, &d.Status, &d.CreatedAt, &sentAt,
			&e.ID, &e.OwnerID, &e.Kind, &subject, &startStr, &endStr, &title, &note, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if d.FireAt, err = parseStamp(fireAt); err != nil {
			return nil, fmt.Errorf("parse remind_at of %d: %w", d.ID, err)
		}
		if e.StartAt, err = parseStamp(startStr); err != nil {
			return nil, fmt.Errorf("parse start_at of %d: %w", e.ID, err)
		}
		if e.EndAt, err = parseStamp(endStr); err != nil {
			return nil, fmt.Errorf("parse end_at of %d: %w", e.ID, err)
		}
		d.SentAt = nullTime(sentAt)
		e.SubjectRef = nullableString(subject)
		e.Title = nullableString(title)
		e.Note = nullableString(note)
		d.Exception = &e
		due = append(due, d)
	}
	return due, rows.Err()
}

// ClaimReminder moves a reminder from pending to sending in one conditional
// UPDATE. It returns false when another run already claimed it.
func (q queries) ClaimReminder(ctx context.Context, id int64) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE reminders SET status = 'sending' WHERE id = ? AND status = 'pending'`, id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// FinishReminder records a terminal status for a claimed reminder.
func (q queries) FinishReminder(ctx context.Context, id int64, status domain.ReminderStatus, at time.Time) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("status %q is not terminal", status)
	}
	res, err := q.q.ExecContext(ctx,
		`UPDATE reminders SET status = ?, sent_at = ? WHERE id = ? AND status = 'sending'`,
		status, at, id,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}
