package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"psicomapa-webhooks/internal/model"
	"psicomapa-webhooks/internal/webhookauth"
)

var ErrDeliveryDisabled = errors.New("webhook delivery disabled")

// Deliverer makes one outbound delivery attempt.
type Deliverer interface {
	Enabled() bool
	Sign(ev model.Event) (string, error)
	Send(ctx context.Context, ev model.Event) (statusCode int, err error)
}

// Envelope is the outbound request body. Timestamp is the record's
// creation time so the body is identical on every attempt.
type Envelope struct {
	Type      model.EventType `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

func EncodeEnvelope(ev model.Event) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:      ev.Type,
		Data:      ev.Payload,
		Timestamp: ev.CreatedAt.UTC(),
	})
}

// StatusError is returned by Send for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("endpoint returned status %d: %s", e.StatusCode, e.Body)
}

type HTTPSender struct {
	url    string
	secret string
	client *http.Client
}

func NewHTTPSender(url, secret string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSender) Enabled() bool {
	return s.url != "" && s.secret != ""
}

func (s *HTTPSender) Sign(ev model.Event) (string, error) {
	if s.secret == "" {
		return "", webhookauth.ErrMissingSecret
	}
	body, err := EncodeEnvelope(ev)
	if err != nil {
		return "", err
	}
	return webhookauth.SignHex(s.secret, body), nil
}

func (s *HTTPSender) Send(ctx context.Context, ev model.Event) (int, error) {
	if !s.Enabled() {
		return 0, ErrDeliveryDisabled
	}

	body, err := EncodeEnvelope(ev)
	if err != nil {
		return 0, fmt.Errorf("encode envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhookauth.SignatureHeader, webhookauth.SignHex(s.secret, body))
	req.Header.Set(webhookauth.EventIDHeader, ev.ID)
	req.Header.Set(webhookauth.EventTypeHeader, string(ev.Type))

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	// keep a short excerpt for last_error
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: string(excerpt)}
	}
	return resp.StatusCode, nil
}
