package models

import "time"

// Status is the classification of one validation.
type Status string

const (
	StatusLoading     Status = "loading" // never returned by the engine
	StatusSuccess     Status = "success"
	StatusInvalidCard Status = "invalid_card"
	StatusEmptyCard   Status = "empty_card"
	StatusError       Status = "error"
)

// IsTerminal reports whether s is a final status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusInvalidCard, StatusEmptyCard, StatusError:
		return true
	default:
		return false
	}
}

// ValidationData describes the event written by a successful validation.
type ValidationData struct {
	LocationID   int       `json:"location_id"`
	Location     string    `json:"location"`
	DateTime     time.Time `json:"date_time"`
	ContractUsed int       `json:"contract_used"` // 1-based contract slot
}

// ValidationOutcome is the result handed to the terminal after a tap.
type ValidationOutcome struct {
	Status              Status          `json:"status"`
	CardType            string          `json:"card_type"`
	TicketsRemaining    *int            `json:"tickets_remaining,omitempty"`
	Contract            string          `json:"contract,omitempty"` // fare product used
	ValidationData      *ValidationData `json:"validation_data,omitempty"`
	PassValidityEndDate *time.Time      `json:"pass_validity_end_date,omitempty"`
	ErrorMessage        string          `json:"error_message,omitempty"`
	EventDateTime       time.Time       `json:"event_date_time"` // terminal clock at the tap
}
