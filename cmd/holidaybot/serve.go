package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tazhate/holidaybot/config"
	"github.com/tazhate/holidaybot/internal/api"
	"github.com/tazhate/holidaybot/internal/bot"
	"github.com/tazhate/holidaybot/internal/identity"
	"github.com/tazhate/holidaybot/internal/scheduler"
)

var (
	servePort       string
	serveNoDispatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the reminder dispatcher",
	Long: `Run the owner and internal HTTP APIs together with the reminder
dispatcher. Reminders go out through LINE push or Telegram, chosen by DELIVERY.

Examples:
  holidaybot serve
  holidaybot serve --port 9000
  holidaybot serve --no-dispatch`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "override SERVER_PORT")
	serveCmd.Flags().BoolVar(&serveNoDispatch, "no-dispatch", false, "serve the API only, reminders are sent elsewhere")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if servePort != "" {
		a.cfg.ServerPort = servePort
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		wg       sync.WaitGroup
		gateway  scheduler.Gateway
		telegram *bot.Bot
	)

	if !serveNoDispatch {
		if err := a.cfg.ValidateDelivery(); err != nil {
			return err
		}
		switch a.cfg.Delivery {
		case config.DeliveryTelegram:
			telegram, err = bot.New(a.cfg, a.exceptions, a.subjects, a.log)
			if err != nil {
				return fmt.Errorf("init telegram: %w", err)
			}
			gateway = telegram
		default:
			gateway = a.line
		}
	}

	if telegram != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := telegram.Start(ctx); err != nil {
				a.log.Error().Err(err).Msg("telegram bot stopped")
			}
		}()
	}

	var dispatcher *scheduler.Dispatcher
	if gateway != nil {
		dispatcher = scheduler.New(a.cfg, a.store, a.log)
		dispatcher.SetGateway(gateway)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dispatcher.Start(ctx); err != nil {
				a.log.Error().Err(err).Msg("dispatcher failed")
				stop()
			}
		}()
	}

	resolver := identity.NewLINEResolver(a.line, a.log)
	server := api.New(a.cfg, a.exceptions, a.reminders, a.subjects, resolver, a.log)

	a.log.Info().
		Str("version", Version).
		Str("delivery", a.cfg.Delivery).
		Bool("dispatch", dispatcher != nil).
		Msg("holidaybot started")

	serveErr := server.Start(ctx)
	stop()

	if dispatcher != nil {
		dispatcher.Stop()
	}
	wg.Wait()
	a.log.Info().Msg("holidaybot stopped")
	return serveErr
}
