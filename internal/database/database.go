package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"ticket-validation-api/internal/card"
	"ticket-validation-api/internal/models"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("database: not found")

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB wraps the database connection and provides methods for data access.
type DB struct {
	conn *sql.DB
}

// StoredCard is a persisted card image.
type StoredCard struct {
	ID        string
	Image     *card.Image
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS cards (
			id TEXT PRIMARY KEY,
			product TEXT NOT NULL,
			image BLOB NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS validations (
			id TEXT PRIMARY KEY,
			card_id TEXT NOT NULL REFERENCES cards(id),
			amount INTEGER NOT NULL,
			location_id INTEGER NOT NULL,
			status TEXT NOT NULL,
			outcome TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_validations_card_id ON validations(card_id)`,
		`CREATE INDEX IF NOT EXISTS idx_validations_card_created_at ON validations(card_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_validations_status ON validations(status)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// InsertCard stores a newly personalized card.
func (db *DB) InsertCard(id string, img *card.Image, now time.Time) error {
	data, err := card.MarshalImage(img)
	if err != nil {
		return err
	}

	stamp := now.UTC().Format(timeLayout)
	_, err = db.conn.Exec(
		`INSERT INTO cards (id, product, image, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id,
		string(img.Product),
		data,
		stamp,
		stamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert card: %w", err)
	}

	return nil
}

// GetCard loads a card image.
func (db *DB) GetCard(id string) (StoredCard, error) {
	var data []byte
	var createdAtStr, updatedAtStr string

	err := db.conn.QueryRow(
		`SELECT image, created_at, updated_at FROM cards WHERE id = ?`, id,
	).Scan(&data, &createdAtStr, &updatedAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredCard{}, ErrNotFound
	}
	if err != nil {
		return StoredCard{}, fmt.Errorf("failed to query card: %w", err)
	}

	sc := StoredCard{ID: id}
	if sc.Image, err = card.UnmarshalImage(data); err != nil {
		return StoredCard{}, fmt.Errorf("failed to decode card %s: %w", id, err)
	}
	if sc.CreatedAt, err = time.Parse(timeLayout, createdAtStr); err != nil {
		return StoredCard{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if sc.UpdatedAt, err = time.Parse(timeLayout, updatedAtStr); err != nil {
		return StoredCard{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return sc, nil
}

// SaveTap stores the card image left by a validation and, when receipt is
// not nil, journals it in the same transaction.
func (db *DB) SaveTap(id string, img *card.Image, receipt *models.ValidationReceipt, now time.Time) error {
	data, err := card.MarshalImage(img)
	if err != nil {
		return err
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE cards SET image = ?, updated_at = ? WHERE id = ?`,
		data,
		now.UTC().Format(timeLayout),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update card: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	if receipt != nil {
		outcome, err := json.Marshal(receipt.Outcome)
		if err != nil {
			return fmt.Errorf("failed to encode outcome: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO validations (id, card_id, amount, location_id, status, outcome, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			receipt.ID,
			receipt.CardID,
			receipt.Amount,
			receipt.LocationID,
			string(receipt.Outcome.Status),
			string(outcome),
			receipt.CreatedAt.UTC().Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("failed to insert validation %s: %w", receipt.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListValidations returns the journal of a card, newest first.
func (db *DB) ListValidations(cardID string, limit int) ([]models.ValidationReceipt, error) {
	rows, err := db.conn.Query(
		`SELECT id, card_id, amount, location_id, outcome, created_at
		FROM validations
		WHERE card_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		cardID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query validations: %w", err)
	}
	defer rows.Close()

	receipts := []models.ValidationReceipt{}
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating validations: %w", err)
	}

	return receipts, nil
}

// GetValidation returns one journal entry.
func (db *DB) GetValidation(id string) (models.ValidationReceipt, error) {
	row := db.conn.QueryRow(
		`SELECT id, card_id, amount, location_id, outcome, created_at FROM validations WHERE id = ?`, id,
	)
	r, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ValidationReceipt{}, ErrNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(s scanner) (models.ValidationReceipt, error) {
	var r models.ValidationReceipt
	var outcome, createdAtStr string

	if err := s.Scan(&r.ID, &r.CardID, &r.Amount, &r.LocationID, &outcome, &createdAtStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan validation: %w", err)
	}

	if err := json.Unmarshal([]byte(outcome), &r.Outcome); err != nil {
		return r, fmt.Errorf("failed to decode outcome: %w", err)
	}

	var err error
	r.CreatedAt, err = time.Parse(timeLayout, createdAtStr)
	if err != nil {
		return r, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return r, nil
}
