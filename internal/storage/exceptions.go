package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tazhate/holidaybot/internal/domain"
)

// === Exceptions ===

const exceptionColumns = `id, user_id, type, subject_id, start_at, end_at, title, note, created_at, updated_at`

func scanException(sc interface{ Scan(...any) error }) (*domain.Exception, error) {
	var (
		e                    domain.Exception
		subject, title, note sql.NullString
		startStr, endStr     string
	)
	if err := sc.Scan(&e.ID, &e.OwnerID, &e.Kind, &subject, &startStr, &endStr, &title, &note, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if e.StartAt, err = parseStamp(startStr); err != nil {
		return nil, fmt.Errorf("parse start_at of %d: %w", e.ID, err)
	}
	if e.EndAt, err = parseStamp(endStr); err != nil {
		return nil, fmt.Errorf("parse end_at of %d: %w", e.ID, err)
	}
	e.SubjectRef = nullableString(subject)
	e.Title = nullableString(title)
	e.Note = nullableString(note)
	return &e, nil
}

// CreateException inserts e and sets its ID. A second cancellation for the
// same subject and date fails with domain.ErrDuplicate.
func (q queries) CreateException(ctx context.Context, e *domain.Exception) error {
	now := time.Now()
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO holidays (user_id, type, subject_id, all_day, start_at, end_at, start_unix, end_unix, start_date, title, note, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.OwnerID, e.Kind, toNull(e.SubjectRef), e.AllDay(),
		formatStamp(e.StartAt), formatStamp(e.EndAt), e.StartAt.Unix(), e.EndAt.Unix(), e.Date(),
		toNull(e.Title), toNull(e.Note), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert holiday: %w", domain.ErrDuplicate)
		}
		return err
	}
	id, _ := res.LastInsertId()
	e.ID = id
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

// GetException returns nil, nil when the row is missing or owned by someone else.
func (q queries) GetException(ctx context.Context, ownerID string, id int64) (*domain.Exception, error) {
	e, err := scanException(q.q.QueryRowContext(ctx,
		`SELECT `+exceptionColumns+` FROM holidays WHERE id = ? AND user_id = ?`,
		id, ownerID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// FindCancellation returns the cancellation for subject on date, ignoring excludeID.
func (q queries) FindCancellation(ctx context.Context, ownerID, subject, date string, excludeID int64) (*domain.Exception, error) {
	e, err := scanException(q.q.QueryRowContext(ctx,
		`SELECT `+exceptionColumns+` FROM holidays
		 WHERE user_id = ? AND type = 'cancel' AND subject_id = ? AND start_date = ? AND id != ?
		 LIMIT 1`,
		ownerID, subject, date, excludeID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// UpdateException writes every mutable column. It reports false when no row
// matched id and owner.
func (q queries) UpdateException(ctx context.Context, e *domain.Exception) (bool, error) {
	e.UpdatedAt = time.Now()
	res, err := q.q.ExecContext(ctx,
		`UPDATE holidays SET
			subject_id = ?, all_day = ?, start_at = ?, end_at = ?, start_unix = ?, end_unix = ?,
			start_date = ?, title = ?, note = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		toNull(e.SubjectRef), e.AllDay(), formatStamp(e.StartAt), formatStamp(e.EndAt), e.StartAt.Unix(), e.EndAt.Unix(),
		e.Date(), toNull(e.Title), toNull(e.Note), e.UpdatedAt,
		e.ID, e.OwnerID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("update holiday: %w", domain.ErrDuplicate)
		}
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteException removes the exception and all of its reminders. Call it
// inside a transaction.
func (q queries) DeleteException(ctx context.Context, ownerID string, id int64) (bool, error) {
	if _, err := q.q.ExecContext(ctx,
		`DELETE FROM reminders WHERE holiday_id = ? AND user_id = ?`, id, ownerID,
	); err != nil {
		return false, fmt.Errorf("delete reminders: %w", err)
	}
	res, err := q.q.ExecContext(ctx, `DELETE FROM holidays WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete holiday: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ExceptionFilter selects exceptions whose span intersects [From, To].
type ExceptionFilter struct {
	OwnerID    string
	From       time.Time
	To         time.Time
	Kind       domain.ExceptionKind // empty means any
	SubjectRef string               // case-insensitive, empty means any
}

// ListExceptions returns matches ordered by start.
func (q queries) ListExceptions(ctx context.Context, f ExceptionFilter) ([]*domain.Exception, error) {
	query := `SELECT ` + exceptionColumns + ` FROM holidays
		WHERE user_id = ? AND start_unix <= ? AND end_unix >= ?`
	args := []any{f.OwnerID, f.To.Unix(), f.From.Unix()}
	if f.Kind != "" {
		query += ` AND type = ?`
		args = append(args, f.Kind)
	}
	if s := strings.TrimSpace(f.SubjectRef); s != "" {
		query += ` AND UPPER(subject_id) = UPPER(?)`
		args = append(args, s)
	}
	query += ` ORDER BY start_unix ASC, id ASC`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.Exception
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
