package models

import "time"

// Location is a validation point known to the terminal.
type Location struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ContractSpec describes one contract to personalize on a card.
type ContractSpec struct {
	Tariff          string `json:"tariff"`            // MULTI_TRIP, STORED_VALUE, SEASON_PASS
	ValidityEndDate string `json:"validity_end_date"` // YYYY-MM-DD
	Counter         int    `json:"counter"`           // trips or stored value
}

// IssueCardRequest represents the request body for personalizing a card.
type IssueCardRequest struct {
	Product            string         `json:"product"`           // e.g. "calypso", "mifare_ultralight"
	DFName             string         `json:"df_name,omitempty"` // hex, Calypso only
	HolderID           uint32         `json:"holder_id"`
	EnvironmentEndDate string         `json:"environment_end_date"` // YYYY-MM-DD
	Contracts          []ContractSpec `json:"contracts"`            // up to 4 on Calypso, 1 on storage cards
}

// EnvironmentView is the decoded environment record.
type EnvironmentView struct {
	Version   string `json:"version"`
	IssueDate string `json:"issue_date"`
	EndDate   string `json:"end_date"`
	HolderID  uint32 `json:"holder_id"`
}

// EventView is the decoded last event.
type EventView struct {
	Version      string   `json:"version"`
	Date         string   `json:"date"`
	Time         string   `json:"time"`
	LocationID   int      `json:"location_id"`
	ContractUsed int      `json:"contract_used"`
	Priorities   []string `json:"priorities"`
}

// ContractView is one decoded contract with its counter.
type ContractView struct {
	Slot            int    `json:"slot"`
	Version         string `json:"version"`
	Tariff          string `json:"tariff"`
	ValidityEndDate string `json:"validity_end_date"`
	Counter         *int   `json:"counter,omitempty"`
}

// CardSummary is the decoded content of a stored card.
type CardSummary struct {
	ID          string          `json:"id"` // uuid
	Product     string          `json:"product"`
	CardType    string          `json:"card_type"`
	Ratified    bool            `json:"ratified"`
	Environment EnvironmentView `json:"environment"`
	LastEvent   *EventView      `json:"last_event,omitempty"`
	Contracts   []ContractView  `json:"contracts"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ValidateRequest represents the request body for a tap.
type ValidateRequest struct {
	Amount     *int       `json:"amount,omitempty"`      // defaults to the terminal amount
	LocationID *int       `json:"location_id,omitempty"` // defaults to the terminal location
	Now        *time.Time `json:"now,omitempty"`         // defaults to the server clock
}

// ValidationReceipt is one journaled validation.
type ValidationReceipt struct {
	ID         string            `json:"id"`      // uuid
	CardID     string            `json:"card_id"` // uuid
	Amount     int               `json:"amount"`
	LocationID int               `json:"location_id"`
	Outcome    ValidationOutcome `json:"outcome"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ValidationsResponse lists a card's journal, newest first.
type ValidationsResponse struct {
	CardID      string              `json:"card_id"`
	Validations []ValidationReceipt `json:"validations"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
