package repo

import (
	"context"
	"testing"
	"time"

	"github.com/launchdir/go-federation-backend/internal/domain"
)

func TestInstancesStats_CountError_NoTable(t *testing.T) {
	db := newRepoDB(t /* no migrations */)
	_, _, err := InstancesStats(context.Background(), db, "")
	if err == nil {
		t.Fatalf("expected error due to missing instances table")
	}
}

func TestInstancesStats_ZeroRows(t *testing.T) {
	db := newRepoDB(t, &domain.FederationInstance{})
	count, maxAt, err := InstancesStats(context.Background(), db, "")
	if err != nil {
		t.Fatalf("InstancesStats error: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", count, maxAt)
	}
}

func TestInstancesStats_FilterAndMax(t *testing.T) {
	db := newRepoDB(t, &domain.FederationInstance{})

	// Seed instances with fixed UpdatedAt values.
	t1 := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC) // max among active
	t3 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)   // unverified, newest overall

	seed := []domain.FederationInstance{
		{ID: "i1", Name: "A", BaseURL: "https://a.example", Status: domain.InstanceActive, CreatedAt: t1, UpdatedAt: t1},
		{ID: "i2", Name: "B", BaseURL: "https://b.example", Status: domain.InstanceActive, CreatedAt: t2, UpdatedAt: t2},
		{ID: "i3", Name: "C", BaseURL: "https://c.example", Status: domain.InstanceUnverified, CreatedAt: t3, UpdatedAt: t3},
	}
	for i := range seed {
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed instance: %v", err)
		}
	}

	count, maxAt, err := InstancesStats(context.Background(), db, domain.InstanceActive)
	if err != nil {
		t.Fatalf("InstancesStats: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d; want 2", count)
	}
	if maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("maxUpdatedAt = %v; want %v", maxAt, t2)
	}

	count, maxAt, err = InstancesStats(context.Background(), db, "")
	if err != nil || count != 3 || maxAt == nil || !maxAt.Equal(t3) {
		t.Fatalf("unscoped stats = (%d, %v, %v); want (3, %v, nil)", count, maxAt, err, t3)
	}
}

func TestResultsStats(t *testing.T) {
	db, sub := resultDB(t)
	ctx := context.Background()

	count, maxAt, err := ResultsStats(ctx, db, sub.ID)
	if err != nil || count != 0 || maxAt != nil {
		t.Fatalf("empty stats = (%d, %v, %v); want (0, nil, nil)", count, maxAt, err)
	}

	a, _ := EnsureResult(ctx, db, sub.ID, "https://a.example", "d1")
	_, _ = EnsureResult(ctx, db, sub.ID, "https://b.example", "d2")
	time.Sleep(5 * time.Millisecond)
	if err := MarkResultSubmitted(ctx, db, a.ID, "remote-a"); err != nil {
		t.Fatalf("MarkResultSubmitted: %v", err)
	}

	count, maxAt, err = ResultsStats(ctx, db, sub.ID)
	if err != nil || count != 2 || maxAt == nil {
		t.Fatalf("stats = (%d, %v, %v)", count, maxAt, err)
	}

	// The transitioned row carries the newest updated_at.
	rows, _ := ListResults(ctx, db, sub.ID)
	var newest time.Time
	for _, r := range rows {
		if r.UpdatedAt.After(newest) {
			newest = r.UpdatedAt
		}
	}
	if !maxAt.Equal(newest) {
		t.Fatalf("maxUpdatedAt = %v; want %v", maxAt, newest)
	}
}
