package payments

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryGateway is an in-process Gateway for development and tests. Sessions
// are held in memory and settled explicitly via Settle (tests) or the
// provider-webhook stand-in in the HTTP layer (dev deployments).
type MemoryGateway struct {
	mu       sync.Mutex
	sessions map[string]*memorySession

	// SessionTTL bounds how long a session stays payable. Zero means 1h.
	SessionTTL time.Duration
	// CheckoutBase prefixes generated checkout URLs.
	CheckoutBase string
}

type memorySession struct {
	session  Session
	amount   int64
	currency string
	metadata map[string]string
	settled  bool
}

// NewMemoryGateway constructs an empty MemoryGateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		sessions:     make(map[string]*memorySession),
		SessionTTL:   time.Hour,
		CheckoutBase: "https://pay.invalid/checkout/",
	}
}

// CreateSession implements Gateway. Non-positive amounts and empty currencies
// are rejected; free submissions never reach the gateway.
func (g *MemoryGateway) CreateSession(_ context.Context, amount int64, currency string, metadata map[string]string) (*Session, error) {
	if amount <= 0 || currency == "" {
		return nil, ErrSessionRejected
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	id := uuid.NewString()
	ttl := g.SessionTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	s := &memorySession{
		session: Session{
			ID:          id,
			CheckoutURL: g.CheckoutBase + id,
			ExpiresAt:   time.Now().UTC().Add(ttl),
		},
		amount:   amount,
		currency: currency,
		metadata: metadata,
	}
	g.sessions[id] = s

	out := s.session
	return &out, nil
}

// IsSettled implements Gateway.
func (g *MemoryGateway) IsSettled(_ context.Context, sessionID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok {
		return false, ErrSessionNotFound
	}
	return s.settled, nil
}

// Settle marks a session as paid. Returns false for unknown or expired
// sessions.
func (g *MemoryGateway) Settle(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok || time.Now().UTC().After(s.session.ExpiresAt) {
		return false
	}
	s.settled = true
	return true
}

// Metadata returns a copy of the metadata attached to a session, or nil for
// unknown sessions. Used by the webhook stand-in to recover the submission id.
func (g *MemoryGateway) Metadata(sessionID string) map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(s.metadata))
	for k, v := range s.metadata {
		out[k] = v
	}
	return out
}
