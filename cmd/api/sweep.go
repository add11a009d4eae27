package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func sweepCmd() *cobra.Command {
	var (
		maxAttempts int
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Retry undelivered events once and exit",
		Long: `Runs one retry sweep against the configured store, the same work as
GET /api/cron/retry-webhooks. Useful from a system cron or a Kubernetes CronJob.

Examples:
  api sweep
  api sweep --max-attempts 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if maxAttempts <= 0 {
				maxAttempts = a.cfg.Webhook.MaxAttempts
			}

			n, err := a.sweeper().RetryFailedEvents(ctx, maxAttempts)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			a.logger.Info("sweep done", zap.Int("retried", n))
			fmt.Fprintf(cmd.OutOrStdout(), "retried %d\n", n)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "attempt ceiling (default WEBHOOK_MAX_ATTEMPTS)")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "overall time limit for the sweep")

	return cmd
}
