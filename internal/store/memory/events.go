package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"psicomapa-webhooks/internal/model"
	"psicomapa-webhooks/internal/webhook"
)

// EventStore keeps Event Records in process memory. It backs tests and
// EVENT_STORE=memory; records are lost on restart.
type EventStore struct {
	mu     sync.RWMutex
	events map[string]model.Event
}

func NewEventStore() *EventStore {
	return &EventStore{events: make(map[string]model.Event)}
}

func (s *EventStore) Insert(ctx context.Context, ev model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[ev.ID]; ok {
		return fmt.Errorf("event %s already exists", ev.ID)
	}
	s.events[ev.ID] = clone(ev)
	return nil
}

func (s *EventStore) GetByID(ctx context.Context, id string) (model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return model.Event{}, model.ErrNotFound
	}
	return clone(ev), nil
}

func (s *EventStore) List(ctx context.Context, f webhook.ListFilter) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Event, 0)
	for _, ev := range s.events {
		if f.Status != "" && ev.Status != f.Status {
			continue
		}
		if f.Type != "" && ev.Type != f.Type {
			continue
		}
		out = append(out, clone(ev))
	}

	// newest first
	sort.Slice(out, func(i, j int) bool { return less(out[j], out[i]) })
	if limit := f.NormalizedLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *EventStore) ListRetryable(ctx context.Context, q webhook.RetryQuery) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Event, 0)
	for _, ev := range s.events {
		if ev.AttemptCount >= q.MaxAttempts {
			continue
		}
		switch {
		case ev.Status == model.StatusFailed:
		case ev.Status == model.StatusPending && ev.CreatedAt.Before(q.StaleBefore):
		default:
			continue
		}
		out = append(out, clone(ev))
	}

	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *EventStore) RecordSuccess(ctx context.Context, id string, statusCode int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return model.ErrNotFound
	}
	ev.Status = model.StatusDelivered
	ev.AttemptCount++
	ev.LastAttemptAt = timePtr(at)
	if ev.DeliveredAt == nil {
		ev.DeliveredAt = timePtr(at)
	}
	ev.LastStatusCode = &statusCode
	ev.LastError = nil
	s.events[id] = ev
	return nil
}

func (s *EventStore) RecordFailure(ctx context.Context, id string, statusCode *int, lastErr string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return model.ErrNotFound
	}
	if ev.Status != model.StatusDelivered {
		ev.Status = model.StatusFailed
	}
	ev.AttemptCount++
	ev.LastAttemptAt = timePtr(at)
	ev.LastStatusCode = intPtr(statusCode)
	ev.LastError = &lastErr
	s.events[id] = ev
	return nil
}

func (s *EventStore) SetSignature(ctx context.Context, id string, sig string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return model.ErrNotFound
	}
	if ev.Signature == "" {
		ev.Signature = sig
		s.events[id] = ev
	}
	return nil
}

func (s *EventStore) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return false, model.ErrNotFound
	}
	if ev.Status == model.StatusDelivered {
		return false, nil
	}
	ev.Status = model.StatusDelivered
	ev.DeliveredAt = timePtr(at)
	s.events[id] = ev
	return true, nil
}

func less(a, b model.Event) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// clone detaches pointer and slice fields so callers cannot mutate stored
// records.
func clone(ev model.Event) model.Event {
	out := ev
	if ev.Payload != nil {
		out.Payload = append([]byte(nil), ev.Payload...)
	}
	if ev.LastError != nil {
		v := *ev.LastError
		out.LastError = &v
	}
	out.LastStatusCode = intPtr(ev.LastStatusCode)
	if ev.LastAttemptAt != nil {
		out.LastAttemptAt = timePtr(*ev.LastAttemptAt)
	}
	if ev.DeliveredAt != nil {
		out.DeliveredAt = timePtr(*ev.DeliveredAt)
	}
	return out
}

func timePtr(t time.Time) *time.Time { return &t }

func intPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
