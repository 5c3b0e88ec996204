package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/tazhate/holidaybot/internal/domain"
	"github.com/tazhate/holidaybot/internal/storage"
)

var hhmm = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

// ResolveReminder turns a spec into an absolute fire time relative to the
// exception start. It does not filter past times or deduplicate.
func ResolveReminder(spec domain.ReminderSpec, start time.Time) (time.Time, error) {
	loc := start.Location()

	switch s := spec.(type) {
	case domain.AbsoluteSpec:
		return resolveAbsolute(s.At, loc)
	case domain.AbsoluteFieldSpec:
		return resolveAbsolute(s.RemindAt, loc)
	case domain.RelativeSpec:
		return resolveRelative(s, start)
	case domain.InvalidSpec:
		return time.Time{}, fmt.Errorf("%w: %s", domain.ErrInvalidReminderSpec, s.Reason)
	default:
		return time.Time{}, fmt.Errorf("%w: unknown spec %T", domain.ErrInvalidReminderSpec, spec)
	}
}

func resolveAbsolute(at string, loc *time.Location) (time.Time, error) {
	t, err := ParseInstant(at, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: remind_at %q", domain.ErrInvalidReminderSpec, at)
	}
	return t, nil
}

func resolveRelative(s domain.RelativeSpec, start time.Time) (time.Time, error) {
	if s.DaysBefore < 0 {
		return time.Time{}, fmt.Errorf("%w: days_before must be >= 0", domain.ErrInvalidReminderSpec)
	}
	m := hhmm.FindStringSubmatch(s.TimeOfDay)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: time %q is not HH:MM", domain.ErrInvalidReminderSpec, s.TimeOfDay)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])

	y, mo, d := start.Date()
	return time.Date(y, mo, d-s.DaysBefore, hour, minute, 0, 0, start.Location()), nil
}

// Plan resolves specs into the set of fire times to store: strictly after
// now, unique, ascending. Specs that fail to resolve or are not in the future
// are counted in skipped; duplicates collapse silently.
func Plan(specs []domain.ReminderSpec, start, now time.Time) (fireTimes []time.Time, skipped int) {
	seen := make(map[int64]bool, len(specs))
	for _, spec := range specs {
		t, err := ResolveReminder(spec, start)
		if err != nil || !t.After(now) {
			skipped++
			continue
		}
		key := t.Unix()
		if seen[key] {
			continue
		}
		seen[key] = true
		fireTimes = append(fireTimes, t)
	}
	sort.Slice(fireTimes, func(i, j int) bool { return fireTimes[i].Before(fireTimes[j]) })
	return fireTimes, skipped
}

type ReminderService struct {
	storage *storage.Storage
	now     func() time.Time
	log     zerolog.Logger
}

func NewReminderService(s *storage.Storage, log zerolog.Logger) *ReminderService {
	return &ReminderService{
		storage: s,
		now:     time.Now,
		log:     log.With().Str("component", "reminders").Logger(),
	}
}

// SetClock overrides the time source.
func (s *ReminderService) SetClock(now func() time.Time) {
	s.now = now
}

// ReplaceResult counts the outcome of a replace-all.
type ReplaceResult struct {
	Created int
	Skipped int
}

// ListFor returns all reminders of an exception owned by ownerID.
func (s *ReminderService) ListFor(ctx context.Context, ownerID string, exceptionID int64) ([]*domain.Reminder, error) {
	ex, err := s.storage.GetException(ctx, ownerID, exceptionID)
	if err != nil {
		return nil, fmt.Errorf("get holiday: %w", err)
	}
	if ex == nil {
		return nil, domain.ErrNotFound
	}
	reminders, err := s.storage.ListReminders(ctx, ownerID, exceptionID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return reminders, nil
}

// ReplaceAll swaps the pending reminders of an exception for the set built
// from specs. An empty list clears them. Calling it twice with the same specs
// leaves the same pending set.
func (s *ReminderService) ReplaceAll(ctx context.Context, ownerID string, exceptionID int64, specs []domain.ReminderSpec) (*ReplaceResult, error) {
	var result *ReplaceResult
	err := s.storage.WithTx(ctx, func(tx *storage.Tx) error {
		ex, err := tx.GetException(ctx, ownerID, exceptionID)
		if err != nil {
			return fmt.Errorf("get holiday: %w", err)
		}
		if ex == nil {
			return domain.ErrNotFound
		}
		result, err = s.replaceIn(ctx, tx, ex, specs)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("holiday_id", exceptionID).
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Msg("reminders replaced")
	return result, nil
}

func (s *ReminderService) replaceIn(ctx context.Context, tx *storage.Tx, ex *domain.Exception, specs []domain.ReminderSpec) (*ReplaceResult, error) {
	fireTimes, skipped := Plan(specs, ex.StartAt, s.now())

	if _, err := tx.DeletePendingReminders(ctx, ex.OwnerID, ex.ID); err != nil {
		return nil, fmt.Errorf("delete pending reminders: %w", err)
	}
	for _, t := range fireTimes {
		r := &domain.Reminder{
			OwnerID:     ex.OwnerID,
			ExceptionID: ex.ID,
			FireAt:      t,
			Status:      domain.ReminderPending,
		}
		if err := tx.InsertReminder(ctx, r); err != nil {
			return nil, fmt.Errorf("insert reminder: %w", err)
		}
	}
	return &ReplaceResult{Created: len(fireTimes), Skipped: skipped}, nil
}
