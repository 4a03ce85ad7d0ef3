// Package payments defines the contract the orchestrator needs from an
// external payment provider, and a small in-process implementation used in
// development and tests. Integrating a real processor is out of scope for
// this service; the orchestrator only ever needs "open a session for amount
// X" and "is session Y settled".
package payments

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned by IsSettled for an unknown session id.
var ErrSessionNotFound = errors.New("payment session not found")

// ErrSessionRejected is returned by CreateSession when the provider refuses
// to open a session (e.g., unsupported currency or amount).
var ErrSessionRejected = errors.New("payment session rejected")

// Session is an open checkout session. The caller completes payment
// out-of-band via CheckoutURL; settlement is observed through IsSettled or a
// provider webhook.
type Session struct {
	ID          string    `json:"id"`
	CheckoutURL string    `json:"checkout_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Gateway is the payment-provider contract consumed by the orchestrator.
// Implementations must be safe for concurrent use.
type Gateway interface {
	// CreateSession opens a checkout session for amount (minor units of
	// currency). metadata is attached to the session and echoed back by the
	// provider; the orchestrator uses it to link sessions to submissions.
	CreateSession(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Session, error)

	// IsSettled reports whether the session has been paid.
	IsSettled(ctx context.Context, sessionID string) (bool, error)
}
