package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"psicomapa-webhooks/internal/ratelimit"
)

type RouterDeps struct {
	Events  EventService
	Ack     Acknowledger
	Retrier Retrier
	Ready   Pinger
	Limiter ratelimit.Limiter
	Logger  *zap.Logger
	Health  http.HandlerFunc
}

type RouterConfig struct {
	Production         bool
	WebhookSecret      string
	CronSecret         string
	EventsAPIToken     string
	DefaultMaxAttempts int
	RateLimit          ratelimit.Config
	CORSOrigins        []string
}

func NewRouter(deps RouterDeps, cfg RouterConfig) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(WithRequestID)
	r.Use(middleware.RealIP)
	r.Use(Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if deps.Health != nil {
		r.Get("/healthz", deps.Health)
	}
	r.Get("/readyz", ReadyzHandler(deps.Ready))

	r.Route("/api", func(r chi.Router) {
		r.Post("/webhooks/n8n", InboundWebhookHandler(InboundConfig{
			Secret:     cfg.WebhookSecret,
			Production: cfg.Production,
		}, deps.Ack, logger))

		r.With(RequireBearer(cfg.CronSecret, cfg.Production)).
			Get("/cron/retry-webhooks", RetryWebhooksHandler(deps.Retrier, cfg.DefaultMaxAttempts, nil, logger))

		r.Route("/events", func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   cfg.CORSOrigins,
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
				ExposedHeaders:   []string{RequestIDHeader, "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
				AllowCredentials: false,
				MaxAge:           300,
			}))
			r.Use(RequireBearer(cfg.EventsAPIToken, cfg.Production || cfg.EventsAPIToken != ""))

			dispatch := http.Handler(DispatchEventHandler(deps.Events, logger))
			if deps.Limiter != nil {
				dispatch = ratelimit.Middleware(deps.Limiter, cfg.RateLimit, "dispatch", ratelimit.ByIP, logger)(dispatch)
			}
			r.Method(http.MethodPost, "/", dispatch)
			r.Get("/", ListEventsHandler(deps.Events))
			r.Get("/{id}", GetEventHandler(deps.Events))
		})
	})

	return r
}
