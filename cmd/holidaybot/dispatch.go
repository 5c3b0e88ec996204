package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tazhate/holidaybot/config"
	"github.com/tazhate/holidaybot/internal/bot"
	"github.com/tazhate/holidaybot/internal/scheduler"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Deliver due reminders once and exit",
	Long: `Run a single dispatcher tick. Useful when an external scheduler
(cron, a Kubernetes CronJob) triggers delivery instead of "serve".

Several dispatch runs may overlap; each reminder is still sent once.`,
	RunE: runDispatch,
}

func runDispatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.ValidateDelivery(); err != nil {
		return err
	}

	var gateway scheduler.Gateway = a.line
	if a.cfg.Delivery == config.DeliveryTelegram {
		tg, err := bot.New(a.cfg, a.exceptions, a.subjects, a.log)
		if err != nil {
			return fmt.Errorf("init telegram: %w", err)
		}
		gateway = tg
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := scheduler.New(a.cfg, a.store, a.log)
	d.SetGateway(gateway)
	stats, err := d.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "due=%d claimed=%d sent=%d failed=%d\n", stats.Due, stats.Claimed, stats.Sent, stats.Failed)
	return nil
}
