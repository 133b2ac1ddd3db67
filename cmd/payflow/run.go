package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/illmade-knight/go-payflow/pkg/app"
	"github.com/spf13/cobra"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		ingest          bool
		poll            bool
		shutdownTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Consume, enrich and store payments and run the transaction poller",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			var errs []error
			if ingest {
				errs = append(errs, cfg.ValidateIngest())
			}
			if poll {
				errs = append(errs, cfg.ValidatePoller())
			}
			if err := errors.Join(errs...); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, app.Options{Ingest: ingest, Poll: poll}, logger)
			if err != nil {
				return fmt.Errorf("failed to build payflow: %w", err)
			}
			logger.Info().Str("version", Version).Msg("Payflow running, waiting for signal.")
			return a.Run(ctx, shutdownTimeout)
		},
	}
	cmd.Flags().BoolVar(&ingest, "ingest", true, "consume and enrich payments from the inbound queues")
	cmd.Flags().BoolVar(&poll, "poll", true, "run the transaction poller schedule")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "how long to wait for in-flight work on shutdown")
	return cmd
}

func newPollOnceCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "poll-once",
		Short: "Publish every UNPROCESSED transaction row once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := cfg.ValidatePoller(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			// A one-off run ignores the enabled flag and the schedule.
			cfg.Poller.Enabled = true
			cfg.Poller.Interval = 24 * time.Hour
			cfg.HTTPPort = ""

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, app.Options{Poll: true}, logger)
			if err != nil {
				return fmt.Errorf("failed to build poller: %w", err)
			}
			if err := a.Start(ctx); err != nil {
				return err
			}

			n, pollErr := a.PollOnce(ctx)
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			stopErr := a.Stop(stopCtx)
			if pollErr != nil {
				return errors.Join(pollErr, stopErr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d transaction(s)\n", n)
			return stopErr
		},
	}
}
