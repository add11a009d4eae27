package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"psicomapa-webhooks/internal/model"
)

type Deps struct {
	Store     EventStore
	Deliverer Deliverer
	Logger    *zap.Logger
	Now       func() time.Time
	NewID     func(now time.Time) string
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = model.NewEventID
	}
	return d
}

// now is truncated to what Postgres stores so the envelope timestamp, and
// with it the signature, survives a round trip.
func (d Deps) now() time.Time {
	return d.Now().UTC().Truncate(time.Microsecond)
}

type DispatchOptions struct {
	// RecordOnly stores the event without the immediate attempt.
	RecordOnly bool
}

type Dispatcher struct {
	deps Deps
}

func NewDispatcher(deps Deps) *Dispatcher {
	return &Dispatcher{deps: deps.withDefaults()}
}

// Dispatch records the event and makes one immediate delivery attempt.
// Only a failure to persist the record is returned; delivery failures end
// up in the record's status.
func (d *Dispatcher) Dispatch(ctx context.Context, p model.Payload, opts DispatchOptions) (model.Event, error) {
	if p == nil || !p.EventType().Valid() {
		return model.Event{}, model.ErrUnknownEventType
	}

	data, err := json.Marshal(p)
	if err != nil {
		return model.Event{}, fmt.Errorf("%w: %v", model.ErrInvalidPayload, err)
	}

	now := d.deps.now()
	ev := model.Event{
		ID:        d.deps.NewID(now),
		Type:      p.EventType(),
		Payload:   data,
		Status:    model.StatusPending,
		CreatedAt: now,
	}

	log := d.deps.Logger.With(zap.String("event_id", ev.ID), zap.String("event_type", string(ev.Type)))

	enabled := d.deps.Deliverer != nil && d.deps.Deliverer.Enabled()
	if enabled {
		sig, err := d.deps.Deliverer.Sign(ev)
		if err != nil {
			return model.Event{}, fmt.Errorf("sign event: %w", err)
		}
		ev.Signature = sig
	}

	if err := d.deps.Store.Insert(ctx, ev); err != nil {
		log.Error("event not persisted", zap.Error(err))
		return model.Event{}, fmt.Errorf("insert event: %w", err)
	}

	switch {
	case !enabled:
		log.Warn("webhook delivery disabled, event recorded as pending")
		return ev, nil
	case opts.RecordOnly:
		log.Info("event recorded for later delivery")
		return ev, nil
	}

	return attempt(ctx, d.deps, ev), nil
}

// MarkEventDelivered applies a consumer confirmation. Repeated confirmations
// succeed without changing the record.
func (d *Dispatcher) MarkEventDelivered(ctx context.Context, id string) (bool, error) {
	changed, err := d.deps.Store.MarkDelivered(ctx, id, d.deps.now())
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			d.deps.Logger.Warn("delivery confirmation for unknown event", zap.String("event_id", id))
		} else {
			d.deps.Logger.Error("delivery confirmation not stored", zap.String("event_id", id), zap.Error(err))
		}
		return false, err
	}

	d.deps.Logger.Info("delivery confirmed",
		zap.String("event_id", id),
		zap.Bool("already_delivered", !changed))
	return true, nil
}

func (d *Dispatcher) GetEvent(ctx context.Context, id string) (model.Event, error) {
	return d.deps.Store.GetByID(ctx, id)
}

func (d *Dispatcher) ListEvents(ctx context.Context, f ListFilter) ([]model.Event, error) {
	return d.deps.Store.List(ctx, f)
}

// attempt sends ev once and records the outcome. Once started, the send
// and its bookkeeping run to completion even if ctx is canceled; the
// sender's own timeout bounds them. The returned copy reflects what was
// written; if the write fails the record is returned unchanged and the
// sweep picks it up again later.
func attempt(ctx context.Context, deps Deps, ev model.Event) model.Event {
	log := deps.Logger.With(zap.String("event_id", ev.ID), zap.String("event_type", string(ev.Type)))
	wctx := context.WithoutCancel(ctx)

	// records created while delivery was off carry no signature yet
	if ev.Signature == "" {
		if sig, err := deps.Deliverer.Sign(ev); err == nil {
			if err := deps.Store.SetSignature(wctx, ev.ID, sig); err != nil {
				log.Warn("signature not stored", zap.Error(err))
			} else {
				ev.Signature = sig
			}
		}
	}

	start := time.Now()
	code, sendErr := deps.Deliverer.Send(wctx, ev)
	at := deps.now()

	if sendErr == nil {
		if err := deps.Store.RecordSuccess(wctx, ev.ID, code, at); err != nil {
			log.Error("delivered but outcome not stored", zap.Error(err))
			return ev
		}
		ev.AttemptCount++
		ev.LastAttemptAt = &at
		ev.Status = model.StatusDelivered
		if ev.DeliveredAt == nil {
			ev.DeliveredAt = &at
		}
		ev.LastError = nil
		ev.LastStatusCode = &code
		log.Info("webhook delivered",
			zap.Int("status_code", code),
			zap.Int("attempt", ev.AttemptCount),
			zap.Duration("duration", time.Since(start)))
		return ev
	}

	var codePtr *int
	if code != 0 {
		codePtr = &code
	}
	msg := sendErr.Error()
	if err := deps.Store.RecordFailure(wctx, ev.ID, codePtr, msg, at); err != nil {
		log.Error("delivery failed and outcome not stored", zap.NamedError("send_error", sendErr), zap.Error(err))
		return ev
	}
	ev.AttemptCount++
	ev.LastAttemptAt = &at
	if ev.Status != model.StatusDelivered {
		ev.Status = model.StatusFailed
	}
	ev.LastError = &msg
	ev.LastStatusCode = codePtr
	log.Warn("webhook delivery failed",
		zap.Int("status_code", code),
		zap.Int("attempt", ev.AttemptCount),
		zap.Duration("duration", time.Since(start)),
		zap.Error(sendErr))
	return ev
}
