package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"ticket-validation-api/internal/card"
	"ticket-validation-api/internal/models"
)

func setupTestDB(t *testing.T) (*DB, func()) {
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	return db, func() { db.Close() }
}

func TestCardRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	id := uuid.NewString()
	created := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	img := card.NewCalypsoImage([]byte("1TIC.ICA"))
	if err := db.InsertCard(id, img, created); err != nil {
		t.Fatalf("Failed to insert card: %v", err)
	}

	sc, err := db.GetCard(id)
	if err != nil {
		t.Fatalf("Failed to get card: %v", err)
	}
	if sc.Image.Product != card.ProductCalypso || string(sc.Image.DFName) != "1TIC.ICA" {
		t.Errorf("Unexpected image %+v", sc.Image)
	}
	if !sc.CreatedAt.Equal(created) || !sc.UpdatedAt.Equal(created) {
		t.Errorf("Expected timestamps %s, got %s / %s", created, sc.CreatedAt, sc.UpdatedAt)
	}

	if _, err := db.GetCard(uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSaveTapJournal(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	id := uuid.NewString()
	base := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	img, _ := card.NewStorageImage(card.ProductMifareUltralight)
	if err := db.InsertCard(id, img, base); err != nil {
		t.Fatalf("Failed to insert card: %v", err)
	}

	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * 1500 * time.Millisecond)
		r := &models.ValidationReceipt{
			ID:         uuid.NewString(),
			CardID:     id,
			Amount:     1,
			LocationID: i,
			Outcome:    models.ValidationOutcome{Status: models.StatusSuccess, CardType: "Mifare Ultralight", EventDateTime: at},
			CreatedAt:  at,
		}
		img.Ratified = i%2 == 0
		if err := db.SaveTap(id, img, r, at); err != nil {
			t.Fatalf("Failed to save tap: %v", err)
		}
		ids = append(ids, r.ID)
	}

	receipts, err := db.ListValidations(id, 10)
	if err != nil {
		t.Fatalf("Failed to list validations: %v", err)
	}
	if len(receipts) != 3 {
		t.Fatalf("Expected 3 receipts, got %d", len(receipts))
	}
	if receipts[0].ID != ids[2] || receipts[2].ID != ids[0] {
		t.Errorf("Expected newest first, got %s, %s, %s", receipts[0].ID, receipts[1].ID, receipts[2].ID)
	}

	limited, _ := db.ListValidations(id, 2)
	if len(limited) != 2 {
		t.Errorf("Expected 2 receipts, got %d", len(limited))
	}

	got, err := db.GetValidation(ids[1])
	if err != nil {
		t.Fatalf("Failed to get validation: %v", err)
	}
	if got.LocationID != 1 || got.Outcome.Status != models.StatusSuccess {
		t.Errorf("Unexpected receipt %+v", got)
	}

	sc, _ := db.GetCard(id)
	if !sc.Image.Ratified {
		t.Error("Expected the last stored image")
	}
	if !sc.UpdatedAt.Equal(base.Add(3 * time.Second)) {
		t.Errorf("Expected updated_at of the last tap, got %s", sc.UpdatedAt)
	}
}

func TestSaveTapWithoutJournal(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	id := uuid.NewString()
	img, _ := card.NewStorageImage(card.ProductST25SRT512)
	db.InsertCard(id, img, time.Now())

	if err := db.SaveTap(id, img, nil, time.Now()); err != nil {
		t.Fatalf("Failed to save tap: %v", err)
	}
	receipts, _ := db.ListValidations(id, 10)
	if len(receipts) != 0 {
		t.Errorf("Expected empty journal, got %d", len(receipts))
	}

	if err := db.SaveTap(uuid.NewString(), img, nil, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown card, got %v", err)
	}
	if _, err := db.GetValidation(uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
