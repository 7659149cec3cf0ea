package engine

import (
	"ticket-validation-api/internal/compact"
	"ticket-validation-api/internal/records"
	"ticket-validation-api/internal/rules"
)

// Strategy is the transaction shape of one card family. The engine calls
// Open first, Finalize last, and the read methods in between in the order
// they are declared.
type Strategy interface {
	// CardType is the label reported in outcomes.
	CardType() string
	// Open prepares the card and returns its environment.
	Open() (records.EnvironmentHolder, error)
	// Event returns the last validation event.
	Event() (records.Event, error)
	// Ratified reports whether the previous write completed.
	Ratified() bool
	// Priorities returns the candidate priority vector.
	Priorities(ev records.Event) ([4]compact.PriorityCode, error)
	// NoTitleReason explains an empty priority vector.
	NoTitleReason() string
	Contract(slot int) (records.Contract, error)
	Counter(slot int, contract records.Contract) (int, error)
	// PersistsExpiry reports whether slots marked expired are written back
	// when nothing else is.
	PersistsExpiry() bool
	// Write issues the result's card changes.
	Write(res rules.Result) error
	// Finalize commits or cancels the transaction and releases the card.
	Finalize(commit bool) error
	// Describe turns a transport error into a rider-facing message.
	Describe(err error) string
}

// implicitContract is implemented by strategies whose single contract is
// the only candidate. Its version is checked before the tariff filters it.
type implicitContract interface {
	ImplicitContract() (records.Contract, error)
}
