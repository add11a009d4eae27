package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"psicomapa-webhooks/internal/model"
	"psicomapa-webhooks/internal/webhook"
)

var base = time.Date(2026, 2, 25, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *EventStore, id string, status model.EventStatus, attempts int, createdAt time.Time) {
	t.Helper()
	err := s.Insert(context.Background(), model.Event{
		ID:           id,
		Type:         model.EventDiagnosticCompleted,
		Payload:      json.RawMessage(`{"x":1}`),
		Status:       status,
		AttemptCount: attempts,
		CreatedAt:    createdAt,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestListRetryable_SelectsFailedAndStalePendingOldestFirst(t *testing.T) {
	s := NewEventStore()
	seed(t, s, "evt_new_failed", model.StatusFailed, 1, base.Add(2*time.Minute))
	seed(t, s, "evt_old_failed", model.StatusFailed, 1, base)
	seed(t, s, "evt_stale_pending", model.StatusPending, 0, base.Add(time.Minute))
	seed(t, s, "evt_fresh_pending", model.StatusPending, 0, base.Add(time.Hour))
	seed(t, s, "evt_at_ceiling", model.StatusFailed, 3, base.Add(-time.Hour))
	seed(t, s, "evt_delivered", model.StatusDelivered, 1, base.Add(-time.Hour))

	got, err := s.ListRetryable(context.Background(), webhook.RetryQuery{
		MaxAttempts: 3,
		StaleBefore: base.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"evt_old_failed", "evt_stale_pending", "evt_new_failed"}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestListRetryable_Limit(t *testing.T) {
	s := NewEventStore()
	seed(t, s, "evt_a", model.StatusFailed, 1, base)
	seed(t, s, "evt_b", model.StatusFailed, 1, base.Add(time.Second))

	got, err := s.ListRetryable(context.Background(), webhook.RetryQuery{MaxAttempts: 3, StaleBefore: base, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "evt_a" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestRecordFailure_DoesNotDemoteDelivered(t *testing.T) {
	s := NewEventStore()
	ctx := context.Background()
	seed(t, s, "evt_1", model.StatusPending, 0, base)

	if _, err := s.MarkDelivered(ctx, "evt_1", base); err != nil {
		t.Fatal(err)
	}
	code := 500
	if err := s.RecordFailure(ctx, "evt_1", &code, "boom", base.Add(time.Second)); err != nil {
		t.Fatal(err)
	}

	ev, _ := s.GetByID(ctx, "evt_1")
	if ev.Status != model.StatusDelivered {
		t.Fatalf("expected delivered, got %s", ev.Status)
	}
	if ev.AttemptCount != 1 {
		t.Fatalf("expected attempt_count=1, got %d", ev.AttemptCount)
	}
}

func TestMarkDelivered_NotFoundAndRepeat(t *testing.T) {
	s := NewEventStore()
	ctx := context.Background()

	if _, err := s.MarkDelivered(ctx, "evt_missing", base); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	seed(t, s, "evt_1", model.StatusFailed, 1, base)
	changed, err := s.MarkDelivered(ctx, "evt_1", base)
	if err != nil || !changed {
		t.Fatalf("first confirmation: changed=%v err=%v", changed, err)
	}
	changed, err = s.MarkDelivered(ctx, "evt_1", base.Add(time.Minute))
	if err != nil || changed {
		t.Fatalf("second confirmation: changed=%v err=%v", changed, err)
	}

	ev, _ := s.GetByID(ctx, "evt_1")
	if !ev.DeliveredAt.Equal(base) {
		t.Fatalf("delivered_at moved: %s", ev.DeliveredAt)
	}
}

func TestGetByID_ReturnsCopy(t *testing.T) {
	s := NewEventStore()
	ctx := context.Background()
	seed(t, s, "evt_1", model.StatusPending, 0, base)

	ev, _ := s.GetByID(ctx, "evt_1")
	ev.Payload[0] = 'X'

	again, _ := s.GetByID(ctx, "evt_1")
	if string(again.Payload) != `{"x":1}` {
		t.Fatalf("stored payload mutated: %s", again.Payload)
	}
}

func TestList_FiltersNewestFirst(t *testing.T) {
	s := NewEventStore()
	seed(t, s, "evt_a", model.StatusFailed, 1, base)
	seed(t, s, "evt_b", model.StatusFailed, 1, base.Add(time.Minute))
	seed(t, s, "evt_c", model.StatusDelivered, 1, base.Add(2*time.Minute))

	got, err := s.List(context.Background(), webhook.ListFilter{Status: model.StatusFailed})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "evt_b" || got[1].ID != "evt_a" {
		t.Fatalf("unexpected list: %+v", got)
	}
}

func TestSetSignature_OnlyFillsEmpty(t *testing.T) {
	s := NewEventStore()
	ctx := context.Background()
	seed(t, s, "evt_unsigned", model.StatusPending, 0, base)

	if err := s.SetSignature(ctx, "evt_unsigned", "first"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSignature(ctx, "evt_unsigned", "second"); err != nil {
		t.Fatal(err)
	}
	ev, _ := s.GetByID(ctx, "evt_unsigned")
	if ev.Signature != "first" {
		t.Fatalf("signature=%q", ev.Signature)
	}

	if err := s.SetSignature(ctx, "evt_missing", "x"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
