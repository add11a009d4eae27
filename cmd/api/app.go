package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"psicomapa-webhooks/internal/config"
	"psicomapa-webhooks/internal/httpapi"
	"psicomapa-webhooks/internal/observability/logging"
	"psicomapa-webhooks/internal/ratelimit"
	"psicomapa-webhooks/internal/store/memory"
	"psicomapa-webhooks/internal/store/postgres"
	"psicomapa-webhooks/internal/webhook"
)

// app holds what every subcommand needs. close releases it in reverse
// order of construction.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	store   webhook.EventStore
	ready   httpapi.Pinger
	deps    webhook.Deps
	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	switch cfg.EventStore {
	case "memory":
		logger.Warn("using in-memory event store, records are lost on restart")
		a.store = memory.NewEventStore()
	default:
		pool, err := openPool(ctx, cfg.DBURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		repo := postgres.NewEventRepo(pool)
		a.store = repo
		a.ready = repo
	}

	if !cfg.Webhook.DeliveryEnabled() {
		logger.Warn("N8N_WEBHOOK_URL or WEBHOOK_SECRET not set, events will be recorded but not sent")
	}

	a.deps = webhook.Deps{
		Store:     a.store,
		Deliverer: webhook.NewHTTPSender(cfg.Webhook.URL, cfg.Webhook.Secret, cfg.Webhook.Timeout),
		Logger:    logger,
	}
	return a, nil
}

func (a *app) sweeper() *webhook.Sweeper {
	return webhook.NewSweeper(a.deps, webhook.SweepConfig{
		StaleAfter: a.cfg.Webhook.StaleAfter,
		Batch:      a.cfg.Webhook.SweepBatch,
	})
}

func (a *app) limiter() ratelimit.Limiter {
	if a.cfg.RateLimit.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.logger.Info("rate limiter backed by redis", zap.String("addr", a.cfg.Redis.Addr))
		return ratelimit.NewRedis(rdb, "psicomapa:ratelimit")
	}

	m := ratelimit.NewMemory(a.cfg.RateLimit.SweepEvery)
	a.closers = append(a.closers, func() { _ = m.Close() })
	return m
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return pool, nil
}
