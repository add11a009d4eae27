package webhookauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	EventIDHeader   = "X-Event-Id"
	EventTypeHeader = "X-Event-Type"

	// accepted but not required on inbound signatures
	signaturePrefix = "sha256="
)

var (
	ErrMissingSecret    = errors.New("signing secret not configured")
	ErrMissingSignature = errors.New("missing signature")
	ErrInvalidSignature = errors.New("invalid signature")
)

type Input struct {
	Secret          string
	SignatureHeader string
	Body            []byte
}

// Verify checks a hex HMAC-SHA256 of the raw body against the shared secret.
func Verify(in Input) error {
	if in.Secret == "" {
		return ErrMissingSecret
	}

	sigHeader := strings.TrimSpace(in.SignatureHeader)
	if sigHeader == "" {
		return ErrMissingSignature
	}
	sigHeader = strings.TrimPrefix(sigHeader, signaturePrefix)

	providedSig, err := hex.DecodeString(sigHeader)
	if err != nil {
		return ErrInvalidSignature
	}

	if !hmac.Equal(providedSig, sign(in.Secret, in.Body)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignHex returns the hex HMAC-SHA256 of body, as sent in SignatureHeader.
func SignHex(secret string, body []byte) string {
	return hex.EncodeToString(sign(secret, body))
}

func sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}
