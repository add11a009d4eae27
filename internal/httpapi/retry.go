package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

type Retrier interface {
	RetryFailedEvents(ctx context.Context, maxAttempts int) (int, error)
}

// RetryWebhooksHandler is called by the external scheduler. The bearer check
// sits in front of it in the router.
func RetryWebhooksHandler(s Retrier, defaultMaxAttempts int, now func() time.Time, logger *zap.Logger) http.HandlerFunc {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		maxAttempts := defaultMaxAttempts
		if v := r.URL.Query().Get("max_attempts"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "max_attempts must be a positive integer")
				return
			}
			maxAttempts = n
		}

		retried, err := s.RetryFailedEvents(r.Context(), maxAttempts)
		if err != nil {
			logger.Error("retry sweep failed",
				zap.String("rid", RequestIDFromContext(r.Context())),
				zap.Error(err))
			writeError(w, http.StatusInternalServerError, "retry sweep failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"retried":   retried,
			"timestamp": now().UTC().Format(time.RFC3339),
		})
	}
}
