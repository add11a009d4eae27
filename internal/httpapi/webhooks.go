package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"psicomapa-webhooks/internal/model"
	"psicomapa-webhooks/internal/webhookauth"
)

const (
	ActionHeader               = "X-N8n-Action"
	ActionDeliveryConfirmation = "delivery_confirmation"
)

type Acknowledger interface {
	MarkEventDelivered(ctx context.Context, id string) (bool, error)
}

type InboundConfig struct {
	Secret     string
	Production bool
}

type inboundBody struct {
	EventID string `json:"event_id"`
}

// InboundWebhookHandler receives callbacks from n8n. Only delivery
// confirmations change state; every other action is acknowledged.
func InboundWebhookHandler(cfg InboundConfig, ack Acknowledger, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.With(zap.String("rid", RequestIDFromContext(r.Context())))

		body, err := readBody(r, maxBodyBytes)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		err = webhookauth.Verify(webhookauth.Input{
			Secret:          cfg.Secret,
			SignatureHeader: r.Header.Get(webhookauth.SignatureHeader),
			Body:            body,
		})
		switch {
		case err == nil:
		case errors.Is(err, webhookauth.ErrInvalidSignature):
			log.Warn("inbound webhook rejected", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		case cfg.Production:
			// missing signature or no secret to check it with
			log.Warn("inbound webhook rejected", zap.Error(err))
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		default:
			log.Warn("inbound webhook accepted without signature check", zap.Error(err))
		}

		// malformed or empty bodies are treated as {}
		var in inboundBody
		if len(body) > 0 {
			if err := json.Unmarshal(body, &in); err != nil {
				log.Debug("inbound webhook body is not JSON", zap.Error(err))
			}
		}

		action := strings.TrimSpace(r.Header.Get(ActionHeader))
		eventID := strings.TrimSpace(r.Header.Get(webhookauth.EventIDHeader))
		if eventID == "" {
			eventID = strings.TrimSpace(in.EventID)
		}

		if action != ActionDeliveryConfirmation {
			log.Info("inbound webhook acknowledged", zap.String("action", action), zap.String("event_id", eventID))
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "action": action})
			return
		}

		if eventID == "" {
			writeError(w, http.StatusBadRequest, "missing event id")
			return
		}

		if _, err := ack.MarkEventDelivered(r.Context(), eventID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				writeError(w, http.StatusNotFound, "event not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"success": true, "event_id": eventID})
	}
}
