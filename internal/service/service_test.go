package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/tazhate/holidaybot/internal/domain"
	"github.com/tazhate/holidaybot/internal/storage"
)

var bangkok = time.FixedZone("ICT", 7*3600)

type testEnv struct {
	storage    *storage.Storage
	exceptions *ExceptionService
	reminders  *ReminderService
	subjects   *SubjectService
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	s, err := storage.New(filepath.Join(t.TempDir(), "svc.db"))
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	clock := func() time.Time { return now }
	reminders := NewReminderService(s, zerolog.Nop())
	reminders.SetClock(clock)
	exceptions := NewExceptionService(s, reminders, bangkok, zerolog.Nop())
	exceptions.SetClock(clock)

	return &testEnv{
		storage:    s,
		exceptions: exceptions,
		reminders:  reminders,
		subjects:   NewSubjectService(s),
	}
}

func ptr(s string) *string { return &s }

func specs(t *testing.T, raw string) []domain.ReminderSpec {
	t.Helper()
	var out domain.ReminderSpecs
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("decode specs: %v", err)
	}
	return out
}

func TestParseInstant(t *testing.T) {
	tests := []struct {
		in      string
		end     bool
		want    string
		wantErr bool
	}{
		{in: "2026-03-02T10:00:00+09:00", want: "2026-03-02T10:00:00+09:00"},
		{in: "2026-03-02T10:00", want: "2026-03-02T10:00:00+07:00"},
		{in: "2026-03-02 10:00:30", want: "2026-03-02T10:00:30+07:00"},
		{in: "2026-03-02", want: "2026-03-02T00:00:00+07:00"},
		{in: "2026-03-02", end: true, want: "2026-03-02T23:59:59+07:00"},
		{in: "  2026-03-02  ", want: "2026-03-02T00:00:00+07:00"},
		{in: "", wantErr: true},
		{in: "tomorrow", wantErr: true},
	}

	for _, tt := range tests {
		parse := ParseInstant
		if tt.end {
			parse = ParseRangeEnd
		}
		got, err := parse(tt.in, bangkok)
		if tt.wantErr {
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("%q: expected validation error, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tt.in, err)
			continue
		}
		if s := got.Format(time.RFC3339); s != tt.want {
			t.Errorf("%q (end=%v) = %s, want %s", tt.in, tt.end, s, tt.want)
		}
	}
}

func TestResolveReminder(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, bangkok)

	tests := []struct {
		name    string
		spec    domain.ReminderSpec
		want    string
		wantErr bool
	}{
		{name: "absolute with offset", spec: domain.AbsoluteSpec{At: "2026-03-01T20:00:00Z"}, want: "2026-03-01T20:00:00Z"},
		{name: "absolute local", spec: domain.AbsoluteSpec{At: "2026-03-01T18:30"}, want: "2026-03-01T18:30:00+07:00"},
		{name: "absolute field", spec: domain.AbsoluteFieldSpec{RemindAt: "2026-02-28T08:00:00+07:00"}, want: "2026-02-28T08:00:00+07:00"},
		{name: "one day before", spec: domain.RelativeSpec{DaysBefore: 1, TimeOfDay: "09:00"}, want: "2026-03-01T09:00:00+07:00"},
		{name: "same day", spec: domain.RelativeSpec{DaysBefore: 0, TimeOfDay: "07:15"}, want: "2026-03-02T07:15:00+07:00"},
		{name: "across month", spec: domain.RelativeSpec{DaysBefore: 3, TimeOfDay: "23:59"}, want: "2026-02-27T23:59:00+07:00"},
		{name: "negative days", spec: domain.RelativeSpec{DaysBefore: -1, TimeOfDay: "09:00"}, wantErr: true},
		{name: "bad clock", spec: domain.RelativeSpec{DaysBefore: 1, TimeOfDay: "9am"}, wantErr: true},
		{name: "hour out of range", spec: domain.RelativeSpec{DaysBefore: 1, TimeOfDay: "24:00"}, wantErr: true},
		{name: "bad absolute", spec: domain.AbsoluteSpec{At: "soon"}, wantErr: true},
		{name: "invalid", spec: domain.InvalidSpec{Reason: "x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveReminder(tt.spec, start)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidReminderSpec) {
					t.Fatalf("expected ErrInvalidReminderSpec, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s := got.Format(time.RFC3339); s != tt.want {
				t.Errorf("got %s, want %s", s, tt.want)
			}
		})
	}
}

func TestPlan(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, bangkok)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, bangkok)

	in := specs(t, `[
		{"days_before": 1, "time": "18:00"},
		"2026-03-01T18:00:00+07:00",
		{"remind_at": "2026-03-01T11:00:00Z"},
		{"days_before": 1, "time": "09:00"},
		"2026-03-01T12:00:00+07:00",
		{"days_before": "x", "time": "09:00"},
		42
	]`)

	fires, skipped := Plan(in, start, now)
	if skipped != 4 {
		t.Errorf("skipped = %d, want 4", skipped)
	}
	if len(fires) != 1 {
		t.Fatalf("expected duplicates to collapse to one fire time, got %v", fires)
	}
	// 11:00Z is 18:00 ICT.
	if !fires[0].Equal(time.Date(2026, 3, 1, 18, 0, 0, 0, bangkok)) {
		t.Errorf("fire = %s", fires[0])
	}

	fires, _ = Plan(specs(t, `[{"days_before":0,"time":"08:00"},{"days_before":1,"time":"20:00"}]`), start, now)
	if len(fires) != 2 || !fires[0].Before(fires[1]) {
		t.Errorf("fire times must be ascending: %v", fires)
	}
}

func TestCreateCancellationWithReminder(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 2, 20, 10, 0, 0, 0, bangkok))
	ctx := context.Background()

	if _, err := env.subjects.Import(ctx, "U1", []*domain.Subject{{Code: "CSI103", Name: "Programming", Day: "Monday"}}); err != nil {
		t.Fatal(err)
	}

	in := CreateInput{
		Kind:       "cancel",
		SubjectRef: ptr("CSI103"),
		StartAt:    "2026-03-02T00:00:00+07:00",
		EndAt:      "2026-03-02T23:59:59+07:00",
		Reminders:  specs(t, `[{"daysBefore": 1, "timeOfDay": "09:00"}]`),
	}
	res, err := env.exceptions.Create(ctx, "U1", in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.AllDay {
		t.Error("a cancellation is never all-day")
	}
	if res.Title == nil || *res.Title != "CSI103 Programming" {
		t.Errorf("title = %v", res.Title)
	}
	if res.RemindersCreated != 1 || res.RemindersSkipped != 0 {
		t.Errorf("reminders = %d/%d", res.RemindersCreated, res.RemindersSkipped)
	}

	list, err := env.reminders.ListFor(ctx, "U1", res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].FireAt.Format(time.RFC3339) != "2026-03-01T09:00:00+07:00" {
		t.Fatalf("reminders = %+v", list)
	}

	_, err = env.exceptions.Create(ctx, "U1", in)
	var dup *domain.DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dup.ExistingID != res.ID || !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("duplicate = %+v", dup)
	}

	// Subject codes compare case-insensitively.
	in.SubjectRef = ptr("csi103")
	in.Reminders = nil
	if _, err := env.exceptions.Create(ctx, "U1", in); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("lower-case code should collide, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 2, 20, 10, 0, 0, 0, bangkok))
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateInput
	}{
		{name: "bad kind", in: CreateInput{Kind: "party", StartAt: "2026-03-02", EndAt: "2026-03-02"}},
		{name: "no subject", in: CreateInput{Kind: "cancel", StartAt: "2026-03-02", EndAt: "2026-03-02"}},
		{name: "blank subject", in: CreateInput{Kind: "cancel", SubjectRef: ptr("  "), StartAt: "2026-03-02", EndAt: "2026-03-02"}},
		{name: "missing start", in: CreateInput{Kind: "holiday", EndAt: "2026-03-02"}},
		{name: "end before start", in: CreateInput{Kind: "holiday", StartAt: "2026-03-03", EndAt: "2026-03-02"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.exceptions.Create(ctx, "U1", tt.in); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateHoliday(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 2, 20, 10, 0, 0, 0, bangkok))
	ctx := context.Background()

	res, err := env.exceptions.Create(ctx, "U1", CreateInput{
		Kind:       "holiday",
		SubjectRef: ptr("CSI103"),
		StartAt:    "2026-04-13",
		EndAt:      "2026-04-15",
		Note:       ptr("  Songkran  "),
		Reminders:  specs(t, `["2026-01-01T00:00:00+07:00", {"days_before": 2, "time": "20:00"}]`),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !res.AllDay || res.Title != nil {
		t.Errorf("holiday: allDay=%v title=%v", res.AllDay, res.Title)
	}
	if res.RemindersCreated != 1 || res.RemindersSkipped != 1 {
		t.Errorf("reminders = %d/%d, want 1/1", res.RemindersCreated, res.RemindersSkipped)
	}

	items, err := env.exceptions.List(ctx, "U1", "2026-04-14", "2026-04-14")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected overlap match, got %d", len(items))
	}
	got := items[0]
	if got.SubjectRef != nil {
		t.Error("a holiday must not keep a subject")
	}
	if got.Note == nil || *got.Note != "Songkran" {
		t.Errorf("note = %v", got.Note)
	}
	if got.EndAt.Format(time.RFC3339) != "2026-04-15T23:59:59+07:00" {
		t.Errorf("end = %s", got.EndAt.Format(time.RFC3339))
	}

	// Two holidays on the same day are allowed.
	if _, err := env.exceptions.Create(ctx, "U1", CreateInput{Kind: "holiday", StartAt: "2026-04-13", EndAt: "2026-04-13"}); err != nil {
		t.Errorf("second holiday: %v", err)
	}
}

func TestUpdate(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 2, 20, 10, 0, 0, 0, bangkok))
	ctx := context.Background()

	a, err := env.exceptions.Create(ctx, "U1", CreateInput{Kind: "cancel", SubjectRef: ptr("CSI103"), StartAt: "2026-03-02T09:00", EndAt: "2026-03-02T12:00", Title: ptr("Lab"), Note: ptr("room change")})
	if err != nil {
		t.Fatal(err)
	}
	b, err := env.exceptions.Create(ctx, "U1", CreateInput{Kind: "cancel", SubjectRef: ptr("CSI103"), StartAt: "2026-03-09T09:00", EndAt: "2026-03-09T12:00"})
	if err != nil {
		t.Fatal(err)
	}

	// Untouched fields survive; null clears.
	var p Patch
	if err := json.Unmarshal([]byte(`{"id": 0, "note": null, "end_at": "2026-03-02T13:00"}`), &p); err != nil {
		t.Fatal(err)
	}
	p.ID = a.ID
	res, err := env.exceptions.Update(ctx, "U1", p)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.Title == nil || *res.Title != "Lab" {
		t.Errorf("title should be kept, got %v", res.Title)
	}
	got, _ := env.storage.GetException(ctx, "U1", a.ID)
	if got.Note != nil {
		t.Errorf("note should be cleared, got %q", *got.Note)
	}
	if got.EndAt.Hour() != 13 {
		t.Errorf("end = %s", got.EndAt)
	}

	// Rewriting the same date onto itself is not a duplicate.
	if _, err := env.exceptions.Update(ctx, "U1", Patch{ID: a.ID, StartAt: domain.Some("2026-03-02T08:00")}); err != nil {
		t.Errorf("self update: %v", err)
	}

	// Moving b onto a's date is.
	_, err = env.exceptions.Update(ctx, "U1", Patch{ID: b.ID, StartAt: domain.Some("2026-03-02T09:00"), EndAt: domain.Some("2026-03-02T12:00")})
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("expected duplicate, got %v", err)
	}

	if _, err := env.exceptions.Update(ctx, "U2", Patch{ID: a.ID, Title: domain.Some("x")}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("foreign update: %v", err)
	}
	if _, err := env.exceptions.Update(ctx, "U1", Patch{ID: a.ID, StartAt: domain.Null[string]()}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("null start: %v", err)
	}
	if _, err := env.exceptions.Update(ctx, "U1", Patch{ID: a.ID, SubjectRef: domain.Null[string]()}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("null subject on a cancellation: %v", err)
	}
}

func TestDeleteRemovesReminders(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 2, 20, 10, 0, 0, 0, bangkok))
	ctx := context.Background()

	res, err := env.exceptions.Create(ctx, "U1", CreateInput{
		Kind: "holiday", StartAt: "2026-03-02", EndAt: "2026-03-02",
		Reminders: specs(t, `[{"days_before":1,"time":"09:00"},{"days_before":2,"time":"09:00"}]`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.exceptions.Delete(ctx, "U2", res.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("foreign delete: %v", err)
	}
	if err := env.exceptions.Delete(ctx, "U1", res.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := env.reminders.ListFor(ctx, "U1", res.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ListFor after delete: %v", err)
	}
	due, err := env.storage.ListDueReminders(ctx, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 0 {
		t.Errorf("orphan reminders: %d", len(due))
	}
}

func TestReplaceAllIdempotent(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 2, 20, 10, 0, 0, 0, bangkok))
	ctx := context.Background()

	res, err := env.exceptions.Create(ctx, "U1", CreateInput{Kind: "holiday", StartAt: "2026-03-02", EndAt: "2026-03-02"})
	if err != nil {
		t.Fatal(err)
	}

	in := specs(t, `[{"days_before":1,"time":"09:00"},"2026-03-01T09:00:00+07:00","2026-02-01T09:00:00+07:00",{"days_before":0,"time":"07:00"}]`)
	for i := 0; i < 2; i++ {
		rr, err := env.reminders.ReplaceAll(ctx, "U1", res.ID, in)
		if err != nil {
			t.Fatalf("ReplaceAll #%d: %v", i, err)
		}
		if rr.Created != 2 || rr.Skipped != 1 {
			t.Errorf("ReplaceAll #%d = %+v, want 2 created 1 skipped", i, rr)
		}
	}
	list, _ := env.reminders.ListFor(ctx, "U1", res.ID)
	if len(list) != 2 {
		t.Fatalf("expected 2 pending reminders, got %d", len(list))
	}

	rr, err := env.reminders.ReplaceAll(ctx, "U1", res.ID, nil)
	if err != nil || rr.Created != 0 {
		t.Fatalf("clear = %+v, %v", rr, err)
	}
	list, _ = env.reminders.ListFor(ctx, "U1", res.ID)
	if len(list) != 0 {
		t.Errorf("expected no reminders, got %d", len(list))
	}

	if _, err := env.reminders.ReplaceAll(ctx, "U2", res.ID, in); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("foreign replace: %v", err)
	}
}

func TestBatchApply(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 2, 20, 10, 0, 0, 0, bangkok))
	ctx := context.Background()

	a, _ := env.exceptions.Create(ctx, "U1", CreateInput{Kind: "holiday", StartAt: "2026-03-02", EndAt: "2026-03-02"})
	b, _ := env.exceptions.Create(ctx, "U1", CreateInput{Kind: "holiday", StartAt: "2026-03-03", EndAt: "2026-03-03"})
	foreign, _ := env.exceptions.Create(ctx, "U2", CreateInput{Kind: "holiday", StartAt: "2026-03-04", EndAt: "2026-03-04"})

	applied, err := env.exceptions.BatchApply(ctx, "U1",
		[]Patch{{ID: a.ID, Title: domain.Some("Sports day")}, {ID: 9999, Title: domain.Some("ghost")}, {ID: foreign.ID, Title: domain.Some("x")}},
		[]int64{b.ID, 8888, foreign.ID},
	)
	if err != nil {
		t.Fatalf("BatchApply: %v", err)
	}
	if applied != 2 {
		t.Errorf("applied = %d, want 2", applied)
	}
	got, _ := env.storage.GetException(ctx, "U1", a.ID)
	if got.Title == nil || *got.Title != "Sports day" {
		t.Errorf("title = %v", got.Title)
	}
	if gone, _ := env.storage.GetException(ctx, "U1", b.ID); gone != nil {
		t.Error("b should be deleted")
	}
	if kept, _ := env.storage.GetException(ctx, "U2", foreign.ID); kept == nil || kept.Title != nil {
		t.Error("foreign exception must be untouched")
	}

	// A validation failure rolls the whole batch back.
	_, err = env.exceptions.BatchApply(ctx, "U1",
		[]Patch{{ID: a.ID, Title: domain.Some("changed")}, {ID: a.ID, EndAt: domain.Some("2020-01-01")}},
		nil,
	)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	got, _ = env.storage.GetException(ctx, "U1", a.ID)
	if *got.Title != "Sports day" {
		t.Errorf("batch was not rolled back, title = %q", *got.Title)
	}
}

func TestListCancellations(t *testing.T) {
	// Wednesday
	env := newTestEnv(t, time.Date(2026, 3, 4, 10, 0, 0, 0, bangkok))
	ctx := context.Background()

	env.subjects.Import(ctx, "U1", []*domain.Subject{{Code: "CSI103", Name: "Programming"}})
	for _, c := range []struct{ code, day string }{
		{"CSI103", "2026-03-04"},
		{"CSI103", "2026-03-10"},
		{"MAT101", "2026-03-12"},
		{"CSI103", "2026-05-20"},
		{"CSI103", "2026-01-10"},
	} {
		if _, err := env.exceptions.Create(ctx, "U1", CreateInput{Kind: "cancel", SubjectRef: ptr(c.code), StartAt: c.day + "T09:00", EndAt: c.day + "T12:00"}); err != nil {
			t.Fatal(err)
		}
	}
	env.exceptions.Create(ctx, "U1", CreateInput{Kind: "holiday", StartAt: "2026-03-05", EndAt: "2026-03-05"})

	tests := []struct {
		name  string
		q     CancellationQuery
		count int
	}{
		{name: "upcoming", q: CancellationQuery{}, count: 3},
		{name: "upcoming one subject", q: CancellationQuery{Subject: "csi103", Range: RangeUpcoming}, count: 2},
		{name: "next week", q: CancellationQuery{Range: RangeNextWeek}, count: 2},
		{name: "all", q: CancellationQuery{Range: RangeAll}, count: 5},
		{name: "date", q: CancellationQuery{Date: "2026-05-20", Range: RangeNextWeek}, count: 1},
		{name: "empty date", q: CancellationQuery{Date: "2026-03-05"}, count: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.exceptions.ListCancellations(ctx, "U1", tt.q)
			if err != nil {
				t.Fatalf("ListCancellations: %v", err)
			}
			if len(res.Items) != tt.count {
				t.Errorf("got %d items, want %d", len(res.Items), tt.count)
			}
			for _, it := range res.Items {
				if it.Kind != domain.KindCancellation {
					t.Errorf("holiday leaked into result: %d", it.ID)
				}
			}
		})
	}

	res, _ := env.exceptions.ListCancellations(ctx, "U1", CancellationQuery{Range: RangeNextWeek})
	if res.From.Format(dateLayout) != "2026-03-09" || res.To.Format(dateLayout) != "2026-03-15" {
		t.Errorf("next week = %s..%s", res.From, res.To)
	}
	if res.Subjects["CSI103"] != "Programming" {
		t.Errorf("subject names = %v", res.Subjects)
	}

	if _, err := env.exceptions.ListCancellations(ctx, "U1", CancellationQuery{Range: "someday"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("bad range: %v", err)
	}
	if _, err := env.exceptions.ListCancellations(ctx, "U1", CancellationQuery{Date: "03/05/2026"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("bad date: %v", err)
	}
}

func TestSubjectsImportAndOrder(t *testing.T) {
	env := newTestEnv(t, time.Now())
	ctx := context.Background()

	n, err := env.subjects.Import(ctx, "U1", []*domain.Subject{
		{Code: "ENG201", Day: "Friday", StartTime: "08:00"},
		{Code: " CSI103 ", Day: "Monday", StartTime: "13:00"},
		{Code: "MAT101", Day: "พุธ", StartTime: "09:00"},
		{Code: "PE100", Day: "", StartTime: "07:00"},
	})
	if err != nil || n != 4 {
		t.Fatalf("Import = %d, %v", n, err)
	}

	list, err := env.subjects.List(ctx, "U1")
	if err != nil {
		t.Fatal(err)
	}
	var codes []string
	for _, s := range list {
		codes = append(codes, s.Code)
	}
	want := []string{"CSI103", "MAT101", "ENG201", "PE100"}
	if len(codes) != len(want) {
		t.Fatalf("codes = %v", codes)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("codes = %v, want %v", codes, want)
			break
		}
	}

	if _, err := env.subjects.Import(ctx, "U1", []*domain.Subject{{Code: ""}}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty code: %v", err)
	}
}
