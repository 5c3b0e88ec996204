package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tazhate/holidaybot/internal/domain"
	"github.com/tazhate/holidaybot/internal/storage"
)

// CalendarMirror copies exceptions into an external calendar. Failures are
// logged and never fail the write that triggered them.
type CalendarMirror interface {
	Put(ctx context.Context, e *domain.Exception) error
	Remove(ctx context.Context, ownerID string, id int64) error
}

type subjectLookup interface {
	GetSubjectByCode(ctx context.Context, ownerID, code string) (*domain.Subject, error)
}

// ExceptionService owns holidays and class cancellations.
type ExceptionService struct {
	storage   *storage.Storage
	reminders *ReminderService
	mirror    CalendarMirror
	location  *time.Location
	now       func() time.Time
	log       zerolog.Logger
}

func NewExceptionService(s *storage.Storage, reminders *ReminderService, tz *time.Location, log zerolog.Logger) *ExceptionService {
	if tz == nil {
		tz = time.UTC
	}
	return &ExceptionService{
		storage:   s,
		reminders: reminders,
		location:  tz,
		now:       time.Now,
		log:       log.With().Str("component", "exceptions").Logger(),
	}
}

func (s *ExceptionService) SetMirror(m CalendarMirror) {
	s.mirror = m
}

func (s *ExceptionService) SetClock(now func() time.Time) {
	s.now = now
}

// Location is used for inputs that carry no offset.
func (s *ExceptionService) Location() *time.Location {
	return s.location
}

type CreateInput struct {
	Kind       string
	SubjectRef *string
	StartAt    string
	EndAt      string
	Title      *string
	Note       *string
	Reminders  []domain.ReminderSpec
}

type CreateResult struct {
	ID               int64
	Title            *string
	AllDay           bool
	RemindersCreated int
	RemindersSkipped int
}

// Patch carries the fields of a partial update. Fields left unset keep their
// stored value; the kind can not change.
type Patch struct {
	ID         int64                   `json:"id"`
	SubjectRef domain.Optional[string] `json:"subject_id"`
	StartAt    domain.Optional[string] `json:"start_at"`
	EndAt      domain.Optional[string] `json:"end_at"`
	Title      domain.Optional[string] `json:"title"`
	Note       domain.Optional[string] `json:"note"`
}

type UpdateResult struct {
	Title  *string
	AllDay bool
}

func (s *ExceptionService) Create(ctx context.Context, ownerID string, in CreateInput) (*CreateResult, error) {
	kind, ok := domain.ParseKind(in.Kind)
	if !ok {
		return nil, domain.Validationf("invalid type %q", in.Kind)
	}

	e := &domain.Exception{OwnerID: ownerID, Kind: kind, Note: domain.CleanText(in.Note)}

	var err error
	if e.StartAt, err = ParseInstant(in.StartAt, s.location); err != nil {
		return nil, fmt.Errorf("start_at: %w", err)
	}
	if e.EndAt, err = ParseRangeEnd(in.EndAt, s.location); err != nil {
		return nil, fmt.Errorf("end_at: %w", err)
	}
	if err := validateSpan(e); err != nil {
		return nil, err
	}
	if e.SubjectRef, err = subjectFor(kind, in.SubjectRef); err != nil {
		return nil, err
	}
	if e.Title, err = resolveTitle(ctx, s.storage, ownerID, kind, e.SubjectRef, in.Title); err != nil {
		return nil, err
	}

	result := &CreateResult{AllDay: e.AllDay()}
	err = s.storage.WithTx(ctx, func(tx *storage.Tx) error {
		if err := checkDuplicate(ctx, tx, e); err != nil {
			return err
		}
		if err := tx.CreateException(ctx, e); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				// Lost a race with a concurrent writer.
				return &domain.DuplicateError{Message: duplicateMessage(e.Title, e.StartAt)}
			}
			return fmt.Errorf("create holiday: %w", err)
		}
		if len(in.Reminders) > 0 {
			rr, err := s.reminders.replaceIn(ctx, tx, e, in.Reminders)
			if err != nil {
				return err
			}
			result.RemindersCreated = rr.Created
			result.RemindersSkipped = rr.Skipped
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.ID = e.ID
	result.Title = e.Title
	s.log.Info().
		Str("owner", ownerID).
		Int64("id", e.ID).
		Str("type", string(e.Kind)).
		Str("date", e.Date()).
		Int("reminders", result.RemindersCreated).
		Msg("holiday created")
	s.mirrorPut(ctx, e)
	return result, nil
}

func (s *ExceptionService) Update(ctx context.Context, ownerID string, p Patch) (*UpdateResult, error) {
	var updated *domain.Exception
	err := s.storage.WithTx(ctx, func(tx *storage.Tx) error {
		cur, err := tx.GetException(ctx, ownerID, p.ID)
		if err != nil {
			return fmt.Errorf("get holiday: %w", err)
		}
		if cur == nil {
			return domain.ErrNotFound
		}
		next, err := s.applyPatch(ctx, tx, cur, p)
		if err != nil {
			return err
		}
		ok, err := tx.UpdateException(ctx, next)
		if err != nil {
			return fmt.Errorf("update holiday: %w", err)
		}
		if !ok {
			return domain.ErrNotFound
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mirrorPut(ctx, updated)
	return &UpdateResult{Title: updated.Title, AllDay: updated.AllDay()}, nil
}

func (s *ExceptionService) Delete(ctx context.Context, ownerID string, id int64) error {
	err := s.storage.WithTx(ctx, func(tx *storage.Tx) error {
		ok, err := tx.DeleteException(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("owner", ownerID).Int64("id", id).Msg("holiday deleted")
	s.mirrorRemove(ctx, ownerID, id)
	return nil
}

// List returns exceptions overlapping [from, to]. Bare dates expand to the
// whole day in the service location.
func (s *ExceptionService) List(ctx context.Context, ownerID, from, to string) ([]*domain.Exception, error) {
	fromT, err := ParseInstant(from, s.location)
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	toT, err := ParseRangeEnd(to, s.location)
	if err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	items, err := s.storage.ListExceptions(ctx, storage.ExceptionFilter{OwnerID: ownerID, From: fromT, To: toT})
	if err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}
	return items, nil
}

// BatchApply applies updates then deletes in one transaction. Entries that
// point at unknown or foreign ids are skipped. Any other failure rolls the
// whole batch back. It returns the number of entries applied.
func (s *ExceptionService) BatchApply(ctx context.Context, ownerID string, updates []Patch, deletes []int64) (int, error) {
	var (
		applied int
		touched []*domain.Exception
		removed []int64
	)
	err := s.storage.WithTx(ctx, func(tx *storage.Tx) error {
		for _, p := range updates {
			if p.ID == 0 {
				continue
			}
			cur, err := tx.GetException(ctx, ownerID, p.ID)
			if err != nil {
				return fmt.Errorf("get holiday %d: %w", p.ID, err)
			}
			if cur == nil {
				continue
			}
			next, err := s.applyPatch(ctx, tx, cur, p)
			if err != nil {
				return fmt.Errorf("holiday %d: %w", p.ID, err)
			}
			ok, err := tx.UpdateException(ctx, next)
			if err != nil {
				return fmt.Errorf("update holiday %d: %w", p.ID, err)
			}
			if ok {
				applied++
				touched = append(touched, next)
			}
		}
		for _, id := range deletes {
			if id == 0 {
				continue
			}
			ok, err := tx.DeleteException(ctx, ownerID, id)
			if err != nil {
				return fmt.Errorf("delete holiday %d: %w", id, err)
			}
			if ok {
				applied++
				removed = append(removed, id)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info().Str("owner", ownerID).Int("applied", applied).Msg("batch applied")
	for _, e := range touched {
		s.mirrorPut(ctx, e)
	}
	for _, id := range removed {
		s.mirrorRemove(ctx, ownerID, id)
	}
	return applied, nil
}

func (s *ExceptionService) applyPatch(ctx context.Context, tx *storage.Tx, cur *domain.Exception, p Patch) (*domain.Exception, error) {
	next := *cur

	var err error
	if p.StartAt.Set {
		if p.StartAt.Value == nil {
			return nil, domain.Validationf("start_at can not be null")
		}
		if next.StartAt, err = ParseInstant(*p.StartAt.Value, s.location); err != nil {
			return nil, fmt.Errorf("start_at: %w", err)
		}
	}
	if p.EndAt.Set {
		if p.EndAt.Value == nil {
			return nil, domain.Validationf("end_at can not be null")
		}
		if next.EndAt, err = ParseRangeEnd(*p.EndAt.Value, s.location); err != nil {
			return nil, fmt.Errorf("end_at: %w", err)
		}
	}
	if err := validateSpan(&next); err != nil {
		return nil, err
	}
	if next.SubjectRef, err = subjectFor(cur.Kind, p.SubjectRef.Or(cur.SubjectRef)); err != nil {
		return nil, err
	}
	if next.Title, err = resolveTitle(ctx, tx, cur.OwnerID, cur.Kind, next.SubjectRef, p.Title.Or(cur.Title)); err != nil {
		return nil, err
	}
	next.Note = domain.CleanText(p.Note.Or(cur.Note))

	if err := checkDuplicate(ctx, tx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *ExceptionService) mirrorPut(ctx context.Context, e *domain.Exception) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Put(ctx, e); err != nil {
		s.log.Warn().Err(err).Int64("id", e.ID).Msg("calendar mirror put failed")
	}
}

func (s *ExceptionService) mirrorRemove(ctx context.Context, ownerID string, id int64) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Remove(ctx, ownerID, id); err != nil {
		s.log.Warn().Err(err).Int64("id", id).Msg("calendar mirror remove failed")
	}
}

func validateSpan(e *domain.Exception) error {
	if e.EndAt.Before(e.StartAt) {
		return domain.Validationf("end_at is before start_at")
	}
	return nil
}

// subjectFor keeps the subject only for cancellations, where it is required.
// Codes are stored upper-case so the one-per-day rule ignores case.
func subjectFor(kind domain.ExceptionKind, ref *string) (*string, error) {
	if kind != domain.KindCancellation {
		return nil, nil
	}
	ref = domain.CleanText(ref)
	if ref == nil {
		return nil, domain.Validationf("cancellation requires subject_id")
	}
	code := strings.ToUpper(*ref)
	return &code, nil
}

// resolveTitle: an explicit title wins; a cancellation falls back to the
// subject's "code name", then to a generic label; a holiday stays untitled.
func resolveTitle(ctx context.Context, q subjectLookup, ownerID string, kind domain.ExceptionKind, subject, title *string) (*string, error) {
	if t := domain.CleanText(title); t != nil {
		return t, nil
	}
	if kind != domain.KindCancellation {
		return nil, nil
	}
	label := domain.DefaultCancellationTitle
	if subject != nil {
		sub, err := q.GetSubjectByCode(ctx, ownerID, *subject)
		if err != nil {
			return nil, fmt.Errorf("get subject: %w", err)
		}
		if sub != nil && sub.Title() != "" {
			label = sub.Title()
		}
	}
	return &label, nil
}

func checkDuplicate(ctx context.Context, tx *storage.Tx, e *domain.Exception) error {
	if e.Kind != domain.KindCancellation || e.SubjectRef == nil {
		return nil
	}
	existing, err := tx.FindCancellation(ctx, e.OwnerID, *e.SubjectRef, e.Date(), e.ID)
	if err != nil {
		return fmt.Errorf("check duplicate: %w", err)
	}
	if existing != nil {
		return newDuplicateError(existing, e)
	}
	return nil
}

func newDuplicateError(existing, wanted *domain.Exception) *domain.DuplicateError {
	title := existing.Title
	if domain.CleanText(title) == nil {
		title = wanted.Title
	}
	return &domain.DuplicateError{
		ExistingID: existing.ID,
		Message:    duplicateMessage(title, wanted.StartAt),
	}
}

func duplicateMessage(title *string, start time.Time) string {
	t := "(unknown subject)"
	if c := domain.CleanText(title); c != nil {
		t = *c
	}
	return fmt.Sprintf("This class cancellation already exists ✨\n%s %s", t, start.Format("2 Jan 2006"))
}
