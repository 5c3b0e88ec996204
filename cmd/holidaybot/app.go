package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tazhate/holidaybot/config"
	"github.com/tazhate/holidaybot/internal/clients/caldav"
	"github.com/tazhate/holidaybot/internal/clients/line"
	"github.com/tazhate/holidaybot/internal/logging"
	"github.com/tazhate/holidaybot/internal/service"
	"github.com/tazhate/holidaybot/internal/storage"
)

// app holds the pieces every command shares.
type app struct {
	cfg        *config.Config
	log        zerolog.Logger
	store      *storage.Storage
	line       *line.Client
	exceptions *service.ExceptionService
	reminders  *service.ReminderService
	subjects   *service.SubjectService
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	lineClient := line.NewClient(cfg.LineAPIBase, cfg.LineChannelAccessToken)
	lineClient.SetLoginChannelID(cfg.LineLoginChannelID)
	lineClient.SetRateLimit(cfg.PushRate)

	reminders := service.NewReminderService(store, log)
	exceptions := service.NewExceptionService(store, reminders, cfg.Timezone, log)
	if client := caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword); client.IsConfigured() {
		mirror := caldav.NewMirror(client, cfg.CalDAVCalendar, log)
		mirror.SetOwner(cfg.CalDAVOwner)
		exceptions.SetMirror(mirror)
		if cfg.CalDAVOwner == "" {
			log.Warn().Str("url", cfg.CalDAVURL).Msg("caldav mirror enabled for every owner, set CALDAV_OWNER to limit it")
		} else {
			log.Info().Str("url", cfg.CalDAVURL).Str("owner", cfg.CalDAVOwner).Msg("caldav mirror enabled")
		}
	}

	return &app{
		cfg:        cfg,
		log:        log,
		store:      store,
		line:       lineClient,
		exceptions: exceptions,
		reminders:  reminders,
		subjects:   service.NewSubjectService(store),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close storage")
	}
}
