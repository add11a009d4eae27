package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"psicomapa-webhooks/internal/httpapi"
	"psicomapa-webhooks/internal/ratelimit"
	"psicomapa-webhooks/internal/webhook"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	// cancelled on SIGINT/SIGTERM
	rootCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(rootCtx)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	d := webhook.NewDispatcher(a.deps)
	sweeper := a.sweeper()

	var wg sync.WaitGroup
	if cfg.Webhook.SweepInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			webhook.RunSweeper(rootCtx, sweeper, cfg.Webhook.MaxAttempts, cfg.Webhook.SweepInterval, a.logger)
		}()
	}

	handler := httpapi.NewRouter(httpapi.RouterDeps{
		Events:  d,
		Ack:     d,
		Retrier: sweeper,
		Ready:   a.ready,
		Limiter: a.limiter(),
		Logger:  a.logger,
		Health:  healthHandler(),
	}, httpapi.RouterConfig{
		Production:         cfg.IsProduction(),
		WebhookSecret:      cfg.Webhook.Secret,
		CronSecret:         cfg.CronSecret,
		EventsAPIToken:     cfg.EventsAPIToken,
		DefaultMaxAttempts: cfg.Webhook.MaxAttempts,
		RateLimit: ratelimit.Config{
			Window:      cfg.RateLimit.Window,
			MaxRequests: cfg.RateLimit.MaxRequests,
		},
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			stop()
			wg.Wait()
			return err
		}
	}

	// stop accepting new requests; wait for in-flight with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", zap.Error(err))
	}

	wg.Wait()
	a.logger.Info("bye")
	return nil
}
