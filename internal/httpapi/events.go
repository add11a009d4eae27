package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"psicomapa-webhooks/internal/model"
	"psicomapa-webhooks/internal/webhook"
)

type EventService interface {
	Dispatch(ctx context.Context, p model.Payload, opts webhook.DispatchOptions) (model.Event, error)
	GetEvent(ctx context.Context, id string) (model.Event, error)
	ListEvents(ctx context.Context, f webhook.ListFilter) ([]model.Event, error)
}

type dispatchRequest struct {
	Type       model.EventType `json:"type"`
	Data       json.RawMessage `json:"data"`
	RecordOnly bool            `json:"record_only"`
}

// DispatchEventHandler lets other services raise an event over HTTP. The
// response is 202 whatever the delivery outcome; the record says what
// happened.
func DispatchEventHandler(svc EventService, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req dispatchRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		p, err := model.DecodePayload(req.Type, req.Data)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		ev, err := svc.Dispatch(r.Context(), p, webhook.DispatchOptions{RecordOnly: req.RecordOnly})
		if err != nil {
			logger.Error("dispatch failed",
				zap.String("rid", RequestIDFromContext(r.Context())),
				zap.String("event_type", string(req.Type)),
				zap.Error(err))
			writeError(w, http.StatusInternalServerError, "event not recorded")
			return
		}

		writeJSON(w, http.StatusAccepted, ev)
	}
}

func GetEventHandler(svc EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "id"))
		if id == "" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		ev, err := svc.GetEvent(r.Context(), id)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				writeError(w, http.StatusNotFound, "event not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, ev)
	}
}

func ListEventsHandler(svc EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		f := webhook.ListFilter{
			Status: model.EventStatus(q.Get("status")),
			Type:   model.EventType(q.Get("type")),
		}
		if f.Status != "" && !f.Status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
		if f.Type != "" && !f.Type.Valid() {
			writeError(w, http.StatusBadRequest, "unknown event type")
			return
		}
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			f.Limit = n
		}

		events, err := svc.ListEvents(r.Context(), f)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
	}
}
