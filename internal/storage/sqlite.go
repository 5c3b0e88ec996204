package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/tazhate/holidaybot/internal/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement; Storage runs them on the pool and Tx inside
// a transaction.
type queries struct {
	q querier
}

type Storage struct {
	queries
	db *sql.DB
}

// Tx is a unit of work. All statements issued through it commit or roll back
// together.
type Tx struct {
	queries
}

func New(dbPath string) (*Storage, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time; transactions queue on the pool instead of
	// failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{queries: queries{q: db}, db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// WithTx runs fn in a transaction, committing when fn returns nil.
func (s *Storage) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Tx{queries: queries{q: sqlTx}}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS subjects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			subject_code TEXT NOT NULL,
			subject_name TEXT NOT NULL DEFAULT '',
			day TEXT NOT NULL DEFAULT '',
			start_time TEXT NOT NULL DEFAULT '',
			end_time TEXT NOT NULL DEFAULT '',
			room TEXT NOT NULL DEFAULT '',
			section TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT '',
			instructor TEXT NOT NULL DEFAULT '',
			semester TEXT NOT NULL DEFAULT '',
			UNIQUE (user_id, subject_code, section, type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subjects_user_code ON subjects(user_id, subject_code)`,
		`CREATE TABLE IF NOT EXISTS holidays (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL CHECK (type IN ('holiday', 'cancel')),
			subject_id TEXT,
			all_day INTEGER NOT NULL DEFAULT 1,
			start_at TEXT NOT NULL,
			end_at TEXT NOT NULL,
			start_unix INTEGER NOT NULL,
			end_unix INTEGER NOT NULL,
			start_date TEXT NOT NULL,
			title TEXT,
			note TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_holidays_user_start ON holidays(user_id, start_unix)`,
		// At most one cancellation per owner, subject and date.
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_holidays_cancel_day
			ON holidays(user_id, subject_id, start_date) WHERE type = 'cancel'`,
		`CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			holiday_id INTEGER NOT NULL,
			remind_at TEXT NOT NULL,
			fire_unix INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL,
			sent_at DATETIME,
			FOREIGN KEY (holiday_id) REFERENCES holidays(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(status, fire_unix)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_holiday ON reminders(holiday_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("exec migration: %w", err)
			}
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func formatStamp(t time.Time) string {
	return t.Format(time.RFC3339)
}

func parseStamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func toNull(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// === Subjects ===

const subjectColumns = `id, user_id, subject_code, subject_name, day, start_time, end_time, room, section, type, instructor, semester`

func scanSubject(sc interface{ Scan(...any) error }) (*domain.Subject, error) {
	s := &domain.Subject{}
	err := sc.Scan(&s.ID, &s.OwnerID, &s.Code, &s.Name, &s.Day, &s.StartTime, &s.EndTime, &s.Room, &s.Section, &s.Type, &s.Instructor, &s.Semester)
	return s, err
}

// UpsertSubject inserts or refreshes a subject keyed by owner, code, section and type.
func (q queries) UpsertSubject(ctx context.Context, s *domain.Subject) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO subjects (user_id, subject_code, subject_name, day, start_time, end_time, room, section, type, instructor, semester)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, subject_code, section, type) DO UPDATE SET
			subject_name = excluded.subject_name,
			day = excluded.day,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			room = excluded.room,
			instructor = excluded.instructor,
			semester = excluded.semester`,
		s.OwnerID, s.Code, s.Name, s.Day, s.StartTime, s.EndTime, s.Room, s.Section, s.Type, s.Instructor, s.Semester,
	)
	if err != nil {
		return err
	}
	return q.q.QueryRowContext(ctx,
		`SELECT id FROM subjects WHERE user_id = ? AND subject_code = ? AND section = ? AND type = ?`,
		s.OwnerID, s.Code, s.Section, s.Type,
	).Scan(&s.ID)
}

// GetSubjectByCode matches the code case-insensitively.
func (q queries) GetSubjectByCode(ctx context.Context, ownerID, code string) (*domain.Subject, error) {
	s, err := scanSubject(q.q.QueryRowContext(ctx,
		`SELECT `+subjectColumns+` FROM subjects
		 WHERE user_id = ? AND UPPER(subject_code) = UPPER(?)
		 ORDER BY id LIMIT 1`,
		ownerID, strings.TrimSpace(code),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (q queries) ListSubjects(ctx context.Context, ownerID string) ([]*domain.Subject, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+subjectColumns+` FROM subjects WHERE user_id = ?
		 ORDER BY start_time, subject_code, section, type`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subjects []*domain.Subject
	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, s)
	}
	return subjects, rows.Err()
}
