package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tazhate/holidaybot/internal/domain"
	"github.com/tazhate/holidaybot/internal/storage"
)

type SubjectService struct {
	storage *storage.Storage
}

func NewSubjectService(s *storage.Storage) *SubjectService {
	return &SubjectService{storage: s}
}

// List returns the owner's timetable, Monday first.
func (s *SubjectService) List(ctx context.Context, ownerID string) ([]*domain.Subject, error) {
	subjects, err := s.storage.ListSubjects(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	sort.SliceStable(subjects, func(i, j int) bool {
		return domain.DayOrder(subjects[i].Day) < domain.DayOrder(subjects[j].Day)
	})
	return subjects, nil
}

// Import upserts subjects for ownerID in one transaction.
func (s *SubjectService) Import(ctx context.Context, ownerID string, subjects []*domain.Subject) (int, error) {
	for i, sub := range subjects {
		sub.Code = strings.TrimSpace(sub.Code)
		if sub.Code == "" {
			return 0, domain.Validationf("subject %d has no code", i)
		}
		sub.OwnerID = ownerID
	}
	err := s.storage.WithTx(ctx, func(tx *storage.Tx) error {
		for _, sub := range subjects {
			if err := tx.UpsertSubject(ctx, sub); err != nil {
				return fmt.Errorf("upsert subject %s: %w", sub.Code, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(subjects), nil
}

// CancellationRange selects the window of a cancellation query.
type CancellationRange string

const (
	RangeUpcoming CancellationRange = "upcoming"
	RangeNextWeek CancellationRange = "next_week"
	RangeAll      CancellationRange = "all"
)

type CancellationQuery struct {
	Subject string
	Range   CancellationRange
	Date    string // YYYY-MM-DD, wins over Range
}

type CancellationResult struct {
	From     time.Time
	To       time.Time
	Items    []*domain.Exception
	Subjects map[string]string // upper-cased code -> name
}

// ListCancellations answers "which classes are cancelled" for a window
// relative to today in the service location.
func (s *ExceptionService) ListCancellations(ctx context.Context, ownerID string, q CancellationQuery) (*CancellationResult, error) {
	from, to, err := s.cancellationWindow(q)
	if err != nil {
		return nil, err
	}

	items, err := s.storage.ListExceptions(ctx, storage.ExceptionFilter{
		OwnerID:    ownerID,
		From:       from,
		To:         to,
		Kind:       domain.KindCancellation,
		SubjectRef: q.Subject,
	})
	if err != nil {
		return nil, fmt.Errorf("list cancellations: %w", err)
	}

	names := make(map[string]string)
	for _, it := range items {
		if it.SubjectRef == nil {
			continue
		}
		code := strings.ToUpper(*it.SubjectRef)
		if _, ok := names[code]; ok {
			continue
		}
		sub, err := s.storage.GetSubjectByCode(ctx, ownerID, code)
		if err != nil {
			return nil, fmt.Errorf("get subject: %w", err)
		}
		if sub != nil {
			names[code] = strings.TrimSpace(sub.Name)
		}
	}

	return &CancellationResult{From: from, To: to, Items: items, Subjects: names}, nil
}

func (s *ExceptionService) cancellationWindow(q CancellationQuery) (time.Time, time.Time, error) {
	if d := strings.TrimSpace(q.Date); d != "" {
		day, err := time.ParseInLocation(dateLayout, d, s.location)
		if err != nil {
			return time.Time{}, time.Time{}, domain.Validationf("invalid date %q", d)
		}
		return day, endOfDay(day), nil
	}

	now := s.now().In(s.location)
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, s.location)

	switch q.Range {
	case RangeNextWeek:
		// Monday-based weeks.
		offset := (int(today.Weekday()) + 6) % 7
		monday := today.AddDate(0, 0, 7-offset)
		return monday, endOfDay(monday.AddDate(0, 0, 6)), nil
	case RangeAll:
		return time.Date(1, 1, 1, 0, 0, 0, 0, s.location), time.Date(9999, 12, 31, 23, 59, 59, 0, s.location), nil
	case RangeUpcoming, "":
		return today, endOfDay(today.AddDate(0, 0, 30)), nil
	default:
		return time.Time{}, time.Time{}, domain.Validationf("unknown range %q", q.Range)
	}
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}
