package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticket-validation-api/internal/models"
)

func TestInMemoryCache_Expiry(t *testing.T) {
	c := NewInMemoryCache()
	clock := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Expected v, got %q (%v)", got, err)
	}

	clock = clock.Add(2 * time.Minute)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after expiry, got %v", err)
	}
}

func TestInMemoryCache_ZeroTTLKeeps(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), 0)
	c.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	if _, err := c.Get(ctx, "k"); err != nil {
		t.Errorf("Expected entry without ttl to stay, got %v", err)
	}
}

func TestInMemoryCache_Delete(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Delete(ctx, "k")
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestReceiptCache_RoundTrip(t *testing.T) {
	rc := NewReceiptCache(NewInMemoryCache(), time.Minute)
	ctx := context.Background()
	left := 3
	r := models.ValidationReceipt{
		ID:         "b7d0e0f4-7b0e-4a4e-9a53-0d2b6f3c1a10",
		CardID:     "c1",
		Amount:     1,
		LocationID: 5,
		Outcome: models.ValidationOutcome{
			Status:           models.StatusSuccess,
			CardType:         "Mifare Ultralight",
			TicketsRemaining: &left,
		},
		CreatedAt: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
	}

	if err := rc.Put(ctx, r); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	got, err := rc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if got.Outcome.Status != models.StatusSuccess || *got.Outcome.TicketsRemaining != 3 || got.LocationID != 5 {
		t.Errorf("Unexpected receipt %+v", got)
	}

	if _, err := rc.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
