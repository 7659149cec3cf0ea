package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ticket-validation-api/internal/models"
)

func TestManager_PublishValidationCompleted(t *testing.T) {
	m := NewManager(true)

	var mu sync.Mutex
	var got []Event
	m.Subscribe(EventValidationCompleted, func(ctx context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
		return nil
	})
	m.Subscribe(EventCardIssued, func(ctx context.Context, e Event) error {
		return errors.New("not for validations")
	})

	ctx, cancel := context.WithCancel(context.Background())
	m.PublishValidationCompleted(ctx, models.ValidationReceipt{ID: "r1", Outcome: models.ValidationOutcome{Status: models.StatusSuccess}})
	cancel()
	m.Wait()

	if len(got) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(got))
	}
	data, ok := got[0].Data.(ValidationCompletedData)
	if !ok || data.Receipt.ID != "r1" {
		t.Errorf("Unexpected event data %+v", got[0].Data)
	}
	if got[0].Type != EventValidationCompleted {
		t.Errorf("Expected %s, got %s", EventValidationCompleted, got[0].Type)
	}
}

func TestManager_HandlerContextOutlivesRequest(t *testing.T) {
	m := NewManager(true)
	done := make(chan error, 1)
	m.Subscribe(EventCardIssued, func(ctx context.Context, e Event) error {
		done <- ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.PublishCardIssued(ctx, models.CardSummary{ID: "c1", Product: "calypso"})
	m.Wait()

	if err := <-done; err != nil {
		t.Errorf("Expected live handler context, got %v", err)
	}
}

func TestManager_Disabled(t *testing.T) {
	m := NewManager(false)
	called := false
	m.Subscribe(EventCardIssued, func(ctx context.Context, e Event) error {
		called = true
		return nil
	})
	m.PublishCardIssued(context.Background(), models.CardSummary{ID: "c1"})
	m.Wait()
	if called {
		t.Error("Expected no handler call on a disabled manager")
	}
}

func TestManager_Shutdown(t *testing.T) {
	m := NewManager(true)
	calls := 0
	m.Subscribe(EventCardIssued, func(ctx context.Context, e Event) error {
		calls++
		return nil
	})
	m.Shutdown()
	m.PublishCardIssued(context.Background(), models.CardSummary{ID: "c1"})
	m.Wait()
	if calls != 0 {
		t.Errorf("Expected no calls after shutdown, got %d", calls)
	}
}
