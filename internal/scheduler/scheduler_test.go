package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/tazhate/holidaybot/config"
	"github.com/tazhate/holidaybot/internal/domain"
	"github.com/tazhate/holidaybot/internal/storage"
)

var ict = time.FixedZone("ICT", 7*3600)

type recordingGateway struct {
	mu   sync.Mutex
	sent map[string][]string
	err  error
}

func (g *recordingGateway) Push(ctx context.Context, to, text string) error {
	if g.err != nil {
		return g.err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sent == nil {
		g.sent = make(map[string][]string)
	}
	g.sent[to] = append(g.sent[to], text)
	return nil
}

func (g *recordingGateway) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, msgs := range g.sent {
		n += len(msgs)
	}
	return n
}

func openStorage(t *testing.T, path string) *storage.Storage {
	t.Helper()
	s, err := storage.New(path)
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *storage.Storage, subject string, n int, fireAt time.Time) []int64 {
	t.Helper()
	ctx := context.Background()
	e := &domain.Exception{
		OwnerID:    "U1",
		Kind:       domain.KindCancellation,
		SubjectRef: &subject,
		StartAt:    time.Date(2026, 3, 2, 9, 0, 0, 0, ict),
		EndAt:      time.Date(2026, 3, 2, 12, 0, 0, 0, ict),
	}
	if err := s.CreateException(ctx, e); err != nil {
		t.Fatal(err)
	}
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		r := &domain.Reminder{OwnerID: "U1", ExceptionID: e.ID, FireAt: fireAt.Add(-time.Duration(i) * time.Minute)}
		if err := s.InsertReminder(ctx, r); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, r.ID)
	}
	return ids
}

func newDispatcher(s *storage.Storage, g Gateway, now time.Time) *Dispatcher {
	cfg := &config.Config{Timezone: ict, DispatchBatch: 100, DeliveryTimeout: time.Second}
	d := New(cfg, s, zerolog.Nop())
	if g != nil {
		d.SetGateway(g)
	}
	d.SetClock(func() time.Time { return now })
	return d
}

func TestRunOnceDelivers(t *testing.T) {
	s := openStorage(t, filepath.Join(t.TempDir(), "d.db"))
	now := time.Date(2026, 3, 1, 9, 0, 30, 0, ict)
	ids := seed(t, s, "CSI103", 3, now)
	// Not yet due.
	future := seed(t, s, "MAT101", 1, now.Add(time.Hour))

	gw := &recordingGateway{}
	stats, err := newDispatcher(s, gw, now).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stats.Due != 3 || stats.Claimed != 3 || stats.Sent != 3 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if len(gw.sent["U1"]) != 3 {
		t.Fatalf("pushed %d messages", len(gw.sent["U1"]))
	}
	if !strings.Contains(gw.sent["U1"][0], "Class cancelled") {
		t.Errorf("unexpected text: %q", gw.sent["U1"][0])
	}

	for _, id := range ids {
		r, _ := s.GetReminder(context.Background(), id)
		if r.Status != domain.ReminderSent || r.SentAt == nil {
			t.Errorf("reminder %d: status=%s sentAt=%v", id, r.Status, r.SentAt)
		}
	}
	if r, _ := s.GetReminder(context.Background(), future[0]); r.Status != domain.ReminderPending {
		t.Errorf("future reminder touched: %s", r.Status)
	}

	// A second tick finds nothing.
	stats, _ = newDispatcher(s, gw, now).RunOnce(context.Background())
	if stats.Due != 0 || gw.total() != 3 {
		t.Errorf("second tick = %+v, total %d", stats, gw.total())
	}
}

func TestRunOnceFailureIsTerminal(t *testing.T) {
	s := openStorage(t, filepath.Join(t.TempDir(), "d.db"))
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, ict)
	ids := seed(t, s, "CSI103", 1, now)

	gw := &recordingGateway{err: errors.New("LINE is down")}
	stats, err := newDispatcher(s, gw, now).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if stats.Failed != 1 || stats.Sent != 0 {
		t.Errorf("stats = %+v", stats)
	}
	r, _ := s.GetReminder(context.Background(), ids[0])
	if r.Status != domain.ReminderFailed {
		t.Errorf("status = %s, want failed", r.Status)
	}

	// Failed reminders are not retried.
	gw.err = nil
	stats, _ = newDispatcher(s, gw, now.Add(time.Hour)).RunOnce(context.Background())
	if stats.Due != 0 || gw.total() != 0 {
		t.Errorf("failed reminder was retried: %+v", stats)
	}
}

func TestRunOnceWithoutGateway(t *testing.T) {
	s := openStorage(t, filepath.Join(t.TempDir(), "d.db"))
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, ict)
	ids := seed(t, s, "CSI103", 1, now)

	stats, err := newDispatcher(s, nil, now).RunOnce(context.Background())
	if err != nil || stats.Due != 0 {
		t.Fatalf("RunOnce = %+v, %v", stats, err)
	}
	r, _ := s.GetReminder(context.Background(), ids[0])
	if r.Status != domain.ReminderPending {
		t.Errorf("status = %s, want pending", r.Status)
	}
}

// shutdownGateway cancels the tick context while a push is in flight, the
// way SIGTERM does in serve.
type shutdownGateway struct {
	cancel context.CancelFunc
	err    error
	calls  int
}

func (g *shutdownGateway) Push(ctx context.Context, to, text string) error {
	g.calls++
	g.cancel()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return g.err
}

func TestRunOnceCancelledMidDelivery(t *testing.T) {
	tests := []struct {
		name       string
		pushErr    error
		wantStatus domain.ReminderStatus
	}{
		{name: "push fails", pushErr: errors.New("connection reset"), wantStatus: domain.ReminderFailed},
		{name: "push succeeds", wantStatus: domain.ReminderSent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openStorage(t, filepath.Join(t.TempDir(), "d.db"))
			now := time.Date(2026, 3, 1, 9, 0, 0, 0, ict)
			ids := seed(t, s, "CSI103", 2, now)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			gw := &shutdownGateway{cancel: cancel, err: tt.pushErr}

			stats, err := newDispatcher(s, gw, now).RunOnce(ctx)
			if err != nil {
				t.Fatalf("RunOnce: %v", err)
			}
			if gw.calls != 1 || stats.Claimed != 1 {
				t.Fatalf("calls=%d stats=%+v, want one claimed delivery", gw.calls, stats)
			}

			counts := map[domain.ReminderStatus]int{}
			for _, id := range ids {
				r, err := s.GetReminder(context.Background(), id)
				if err != nil || r == nil {
					t.Fatalf("GetReminder(%d) = %v, %v", id, r, err)
				}
				if r.Status == tt.wantStatus && r.SentAt == nil {
					t.Errorf("reminder %d finished without sent_at", id)
				}
				counts[r.Status]++
			}
			if counts[domain.ReminderSending] != 0 {
				t.Errorf("reminder left in sending: %v", counts)
			}
			if counts[tt.wantStatus] != 1 || counts[domain.ReminderPending] != 1 {
				t.Errorf("statuses = %v, want one %s and one pending", counts, tt.wantStatus)
			}
		})
	}
}

func TestConcurrentDispatchersDeliverOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	first := openStorage(t, path)
	second := openStorage(t, path)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, ict)
	const n = 25
	seed(t, first, "CSI103", n, now)

	gw := &recordingGateway{}
	dispatchers := []*Dispatcher{
		newDispatcher(first, gw, now),
		newDispatcher(second, gw, now),
		newDispatcher(first, gw, now),
		newDispatcher(second, gw, now),
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for _, d := range dispatchers {
		wg.Add(1)
		go func(d *Dispatcher) {
			defer wg.Done()
			stats, err := d.RunOnce(context.Background())
			if err != nil {
				t.Errorf("RunOnce: %v", err)
				return
			}
			mu.Lock()
			claimed += stats.Claimed
			mu.Unlock()
		}(d)
	}
	wg.Wait()

	if claimed != n {
		t.Errorf("claimed %d reminders across dispatchers, want %d", claimed, n)
	}
	if gw.total() != n {
		t.Errorf("delivered %d messages, want exactly %d", gw.total(), n)
	}
}

func TestReminderText(t *testing.T) {
	note := "  bring the lab sheet "
	title := "CSI103 Programming"
	r := &domain.DueReminder{
		Reminder: domain.Reminder{FireAt: time.Date(2026, 3, 1, 9, 0, 0, 0, ict)},
		Exception: &domain.Exception{
			Kind:    domain.KindCancellation,
			StartAt: time.Date(2026, 3, 2, 9, 0, 0, 0, ict),
			Title:   &title,
			Note:    &note,
		},
	}

	want := strings.Join([]string{
		"🚫 Class cancelled is coming up ✨",
		"Date: 02/03/2026",
		"Reminder: 01/03/2026 09:00",
		"Title: CSI103 Programming",
		"Note: bring the lab sheet",
		"Don't forget to check your timetable 😊",
	}, "\n")
	if got := ReminderText(r); got != want {
		t.Errorf("ReminderText =\n%s\nwant\n%s", got, want)
	}

	r.Exception = &domain.Exception{Kind: domain.KindHoliday, StartAt: time.Date(2026, 4, 13, 0, 0, 0, 0, ict)}
	got := ReminderText(r)
	if !strings.HasPrefix(got, "🏝️ Holiday is coming up") || !strings.Contains(got, "Title: Holiday") || strings.Contains(got, "Note:") {
		t.Errorf("holiday text = %q", got)
	}

	r.Exception = nil
	if got := ReminderText(r); !strings.HasPrefix(got, "⏰ Reminder") {
		t.Errorf("bare text = %q", got)
	}
}
