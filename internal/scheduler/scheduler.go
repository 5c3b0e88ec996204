package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/tazhate/holidaybot/config"
	"github.com/tazhate/holidaybot/internal/domain"
	"github.com/tazhate/holidaybot/internal/storage"
)

// Gateway delivers a text message to an owner.
type Gateway interface {
	Push(ctx context.Context, to, text string) error
}

// Stats summarises one dispatcher tick.
type Stats struct {
	Due     int
	Claimed int
	Sent    int
	Failed  int
}

type Dispatcher struct {
	cron     *cron.Cron
	cfg      *config.Config
	storage  *storage.Storage
	gateway  Gateway
	now      func() time.Time
	log      zerolog.Logger
	spec     string
	batch    int
	timeout  time.Duration
	location *time.Location
}

func New(cfg *config.Config, storage *storage.Storage, log zerolog.Logger) *Dispatcher {
	location := cfg.Timezone
	if location == nil {
		location = time.UTC
	}

	d := &Dispatcher{
		cron:     cron.New(cron.WithLocation(location)),
		cfg:      cfg,
		storage:  storage,
		now:      time.Now,
		log:      log.With().Str("component", "dispatcher").Logger(),
		spec:     cfg.DispatchSpec,
		batch:    cfg.DispatchBatch,
		timeout:  cfg.DeliveryTimeout,
		location: location,
	}
	if d.spec == "" {
		d.spec = config.DefaultDispatchSpec
	}
	if d.batch <= 0 {
		d.batch = config.DefaultDispatchBatch
	}
	if d.timeout <= 0 {
		d.timeout = config.DefaultDeliveryTimeout
	}
	return d
}

func (d *Dispatcher) SetGateway(g Gateway) {
	d.gateway = g
}

// SetClock overrides the time source used to find due reminders.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Start registers the tick and blocks until ctx is done. Ticks may overlap;
// the claim step keeps each reminder to a single delivery.
func (d *Dispatcher) Start(ctx context.Context) error {
	_, err := d.cron.AddFunc(d.spec, func() {
		if _, err := d.RunOnce(ctx); err != nil {
			d.log.Error().Err(err).Msg("dispatch tick failed")
		}
	})
	if err != nil {
		return fmt.Errorf("add dispatch job %q: %w", d.spec, err)
	}

	d.cron.Start()
	d.log.Info().
		Str("spec", d.spec).
		Str("tz", d.location.String()).
		Int("batch", d.batch).
		Msg("dispatcher started")

	<-ctx.Done()
	return nil
}

func (d *Dispatcher) Stop() {
	ctx := d.cron.Stop()
	<-ctx.Done()
	d.log.Info().Msg("dispatcher stopped")
}

// RunOnce delivers every reminder due at the current time, up to the batch
// size. Delivery errors are recorded on the reminder, not returned.
func (d *Dispatcher) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	if d.gateway == nil {
		d.log.Warn().Msg("no delivery gateway configured, skipping tick")
		return stats, nil
	}

	due, err := d.storage.ListDueReminders(ctx, d.now(), d.batch)
	if err != nil {
		return stats, fmt.Errorf("list due reminders: %w", err)
	}
	stats.Due = len(due)

	for _, r := range due {
		if ctx.Err() != nil {
			break
		}

		ok, err := d.storage.ClaimReminder(ctx, r.ID)
		if err != nil {
			d.log.Error().Err(err).Int64("reminder_id", r.ID).Msg("claim reminder")
			continue
		}
		if !ok {
			continue
		}
		stats.Claimed++

		// A claimed reminder always ends sent or failed, even when the tick
		// is cancelled mid-delivery. Only the claim loop stops on ctx.
		finishCtx := context.WithoutCancel(ctx)

		status := domain.ReminderSent
		if err := d.deliver(finishCtx, r); err != nil {
			status = domain.ReminderFailed
			d.log.Warn().Err(err).
				Int64("reminder_id", r.ID).
				Str("owner", r.OwnerID).
				Msg("reminder delivery failed")
		}

		finished, err := d.storage.FinishReminder(finishCtx, r.ID, status, d.now())
		if err != nil {
			d.log.Error().Err(err).Int64("reminder_id", r.ID).Msg("finish reminder")
			continue
		}
		if !finished {
			d.log.Warn().Int64("reminder_id", r.ID).Msg("reminder left sending state before finish")
			continue
		}

		if status == domain.ReminderSent {
			stats.Sent++
		} else {
			stats.Failed++
		}
	}

	if stats.Due > 0 {
		d.log.Info().
			Int("due", stats.Due).
			Int("claimed", stats.Claimed).
			Int("sent", stats.Sent).
			Int("failed", stats.Failed).
			Msg("dispatch tick")
	}
	return stats, nil
}

func (d *Dispatcher) deliver(ctx context.Context, r *domain.DueReminder) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.gateway.Push(ctx, r.OwnerID, ReminderText(r)); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err)
	}
	return nil
}
