package webhook

import (
	"context"
	"time"

	"psicomapa-webhooks/internal/model"
)

// EventStore persists Event Records. Implementations never delete rows and
// never move a record out of delivered.
type EventStore interface {
	Insert(ctx context.Context, ev model.Event) error
	GetByID(ctx context.Context, id string) (model.Event, error)
	List(ctx context.Context, f ListFilter) ([]model.Event, error)

	// ListRetryable returns failed records, plus pending records created
	// before StaleBefore, with attempt_count < MaxAttempts, oldest first.
	ListRetryable(ctx context.Context, q RetryQuery) ([]model.Event, error)

	// RecordSuccess and RecordFailure count one delivery attempt.
	RecordSuccess(ctx context.Context, id string, statusCode int, at time.Time) error
	RecordFailure(ctx context.Context, id string, statusCode *int, lastErr string, at time.Time) error

	// SetSignature stores sig on a record that has none. A signature once
	// set is never replaced.
	SetSignature(ctx context.Context, id string, sig string) error

	// MarkDelivered sets delivered without counting an attempt. changed is
	// false when the record was already delivered.
	MarkDelivered(ctx context.Context, id string, at time.Time) (changed bool, err error)
}

type RetryQuery struct {
	MaxAttempts int
	StaleBefore time.Time
	Limit       int
}

type ListFilter struct {
	Status model.EventStatus
	Type   model.EventType
	Limit  int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

func (f ListFilter) NormalizedLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}
