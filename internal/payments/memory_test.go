package payments

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryGateway_CreateAndSettle(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	s, err := g.CreateSession(ctx, 500, "USD", map[string]string{"submission_id": "s1"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if s.ID == "" || s.CheckoutURL == "" || s.ExpiresAt.IsZero() {
		t.Fatalf("incomplete session: %+v", s)
	}

	settled, err := g.IsSettled(ctx, s.ID)
	if err != nil || settled {
		t.Fatalf("new session should be unsettled, got settled=%v err=%v", settled, err)
	}

	if !g.Settle(s.ID) {
		t.Fatalf("Settle returned false for live session")
	}
	settled, err = g.IsSettled(ctx, s.ID)
	if err != nil || !settled {
		t.Fatalf("expected settled session, got settled=%v err=%v", settled, err)
	}

	if md := g.Metadata(s.ID); md["submission_id"] != "s1" {
		t.Fatalf("metadata = %v", md)
	}
}

func TestMemoryGateway_Rejections(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	if _, err := g.CreateSession(ctx, 0, "USD", nil); !errors.Is(err, ErrSessionRejected) {
		t.Fatalf("zero amount: err = %v", err)
	}
	if _, err := g.CreateSession(ctx, 100, "", nil); !errors.Is(err, ErrSessionRejected) {
		t.Fatalf("empty currency: err = %v", err)
	}
	if _, err := g.IsSettled(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("unknown session: err = %v", err)
	}
	if g.Settle("nope") {
		t.Fatalf("Settle of unknown session should return false")
	}
}
