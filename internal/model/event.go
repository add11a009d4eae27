package model

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

var ErrNotFound = errors.New("not found")

type EventStatus string

const (
	StatusPending   EventStatus = "pending"
	StatusDelivered EventStatus = "delivered"
	StatusFailed    EventStatus = "failed"
)

func (s EventStatus) Valid() bool {
	switch s {
	case StatusPending, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

// Event is one outbound notification and its delivery lifecycle.
// Payload never changes after insert; Signature is set once, at insert or
// on the first send.
type Event struct {
	ID             string          `json:"id"`
	Type           EventType       `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	Status         EventStatus     `json:"status"`
	AttemptCount   int             `json:"attempt_count"`
	Signature      string          `json:"signature,omitempty"`
	LastError      *string         `json:"last_error,omitempty"`
	LastStatusCode *int            `json:"last_status_code,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	LastAttemptAt  *time.Time      `json:"last_attempt_at,omitempty"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
}

func (e Event) Delivered() bool {
	return e.Status == StatusDelivered
}

// NewEventID returns a time-sortable id with the evt_ prefix.
func NewEventID(now time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(now), ulid.Monotonic(rand.Reader, 0))
	return "evt_" + id.String()
}
