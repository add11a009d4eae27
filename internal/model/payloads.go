package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrInvalidPayload   = errors.New("invalid event payload")
)

type EventType string

const (
	EventDiagnosticCompleted EventType = "diagnostic-completed"
	EventSubscriptionChanged EventType = "subscription-changed"
	EventUserInvited         EventType = "user-invited"
	EventResponseSubmitted   EventType = "response-submitted"
)

var eventTypes = []EventType{
	EventDiagnosticCompleted,
	EventSubscriptionChanged,
	EventUserInvited,
	EventResponseSubmitted,
}

func EventTypes() []EventType {
	out := make([]EventType, len(eventTypes))
	copy(out, eventTypes)
	return out
}

func (t EventType) Valid() bool {
	for _, known := range eventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Payload is the closed set of event bodies. Each implementation is bound
// to exactly one EventType.
type Payload interface {
	EventType() EventType
	Validate() error
}

type DiagnosticCompleted struct {
	DiagnosticID  string    `json:"diagnostic_id"`
	CompanyID     string    `json:"company_id"`
	CompanyName   string    `json:"company_name,omitempty"`
	Title         string    `json:"title"`
	ResponseCount int       `json:"response_count"`
	CompletedAt   time.Time `json:"completed_at"`
}

func (DiagnosticCompleted) EventType() EventType { return EventDiagnosticCompleted }

func (p DiagnosticCompleted) Validate() error {
	if err := required("diagnostic_id", p.DiagnosticID, "company_id", p.CompanyID, "title", p.Title); err != nil {
		return err
	}
	if p.ResponseCount < 0 {
		return fmt.Errorf("%w: response_count must not be negative", ErrInvalidPayload)
	}
	if p.CompletedAt.IsZero() {
		return fmt.Errorf("%w: completed_at is required", ErrInvalidPayload)
	}
	return nil
}

type SubscriptionChanged struct {
	CompanyID        string     `json:"company_id"`
	SubscriptionID   string     `json:"subscription_id"`
	Plan             string     `json:"plan"`
	PreviousPlan     string     `json:"previous_plan,omitempty"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
}

func (SubscriptionChanged) EventType() EventType { return EventSubscriptionChanged }

func (p SubscriptionChanged) Validate() error {
	return required("company_id", p.CompanyID, "subscription_id", p.SubscriptionID, "plan", p.Plan, "status", p.Status)
}

type UserInvited struct {
	CompanyID string `json:"company_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	InvitedBy string `json:"invited_by,omitempty"`
}

func (UserInvited) EventType() EventType { return EventUserInvited }

func (p UserInvited) Validate() error {
	if err := required("company_id", p.CompanyID, "email", p.Email, "role", p.Role); err != nil {
		return err
	}
	if !strings.Contains(p.Email, "@") {
		return fmt.Errorf("%w: email is malformed", ErrInvalidPayload)
	}
	return nil
}

type ResponseSubmitted struct {
	DiagnosticID string    `json:"diagnostic_id"`
	CompanyID    string    `json:"company_id"`
	ResponseID   string    `json:"response_id"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

func (ResponseSubmitted) EventType() EventType { return EventResponseSubmitted }

func (p ResponseSubmitted) Validate() error {
	if err := required("diagnostic_id", p.DiagnosticID, "company_id", p.CompanyID, "response_id", p.ResponseID); err != nil {
		return err
	}
	if p.SubmittedAt.IsZero() {
		return fmt.Errorf("%w: submitted_at is required", ErrInvalidPayload)
	}
	return nil
}

// DecodePayload parses untrusted JSON into the payload bound to t.
// Unknown fields are rejected.
func DecodePayload(t EventType, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch t {
	case EventDiagnosticCompleted:
		var v DiagnosticCompleted
		if err := decodeStrict(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case EventSubscriptionChanged:
		var v SubscriptionChanged
		if err := decodeStrict(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case EventUserInvited:
		var v UserInvited
		if err := decodeStrict(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case EventResponseSubmitted:
		var v ResponseSubmitted
		if err := decodeStrict(raw, &v); err != nil {
			return nil, err
		}
		p = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, t)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeStrict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: multiple JSON values", ErrInvalidPayload)
	}
	return nil
}

// required takes name/value pairs.
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidPayload, pairs[i])
		}
	}
	return nil
}
