package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// KeyFunc names the caller a request is counted against.
type KeyFunc func(r *http.Request) string

// ByIP keys on the remote address. Behind a proxy, chi's RealIP middleware
// must run first.
func ByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects callers over cfg with 429 and Retry-After. Keys are
// "<action>:<caller>" so separate actions keep separate windows. A limiter
// error lets the request through.
func Middleware(l Limiter, cfg Config, action string, key KeyFunc, logger *zap.Logger) func(http.Handler) http.Handler {
	if key == nil {
		key = ByIP
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := key(r)
			res, err := l.Check(r.Context(), action+":"+caller, cfg)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					zap.String("action", action),
					zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))

			if !res.Success {
				retry := res.RetryAfterSeconds(now)
				logger.Info("rate limit exceeded",
					zap.String("action", action),
					zap.String("caller", caller),
					zap.Int("retry_after_s", retry))

				h.Set("Retry-After", strconv.Itoa(retry))
				h.Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"error":   "too many requests, try again in " + strconv.Itoa(retry) + "s",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
