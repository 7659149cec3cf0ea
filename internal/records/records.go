package records

import (
	"errors"
	"fmt"

	"ticket-validation-api/internal/compact"
)

// ErrMalformedRecord is wrapped by every buffer-length mismatch.
var ErrMalformedRecord = errors.New("malformed record")

// MalformedRecordError describes a record buffer of the wrong size.
type MalformedRecordError struct {
	Record string
	Want   int
	Got    int
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s: %s record must be %d bytes, got %d", ErrMalformedRecord, e.Record, e.Want, e.Got)
}

func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

// Format selects the byte layout of a card family.
type Format int

const (
	// FormatCalypso is the 29-byte record layout of session-secured cards.
	FormatCalypso Format = iota
	// FormatStorage is the 16-byte record layout of plain storage cards.
	FormatStorage
)

const (
	CalypsoRecordSize = 29
	StorageRecordSize = 16

	// MaxCounterValue is the largest value a 3-byte counter holds.
	MaxCounterValue = 0xFFFFFF
)

// RecordSize returns the fixed record length of the format.
func (f Format) RecordSize() int {
	if f == FormatStorage {
		return StorageRecordSize
	}
	return CalypsoRecordSize
}

func (f Format) String() string {
	if f == FormatStorage {
		return "storage"
	}
	return "calypso"
}

// EnvironmentHolder is the card's environment and holder record. The
// engine only interprets the version and the end date.
type EnvironmentHolder struct {
	VersionNumber     compact.VersionNumber
	ApplicationNumber uint32
	IssuingDate       compact.CompactDate
	EndDate           compact.CompactDate
	HolderCompany     uint8
	HolderIDNumber    uint32
}

// Event is the most recent validation event. Storage cards only carry
// the first priority slot; the others read back as Forbidden.
type Event struct {
	VersionNumber compact.VersionNumber
	DateStamp     compact.CompactDate
	TimeStamp     compact.CompactTime
	Location      uint32
	ContractUsed  uint8
	Priorities    [4]compact.PriorityCode
}

// Contract is one fare product. Counter is set only by the storage
// format and only for counter-based tariffs; Calypso counters live in
// their own file.
type Contract struct {
	VersionNumber   compact.VersionNumber
	Tariff          compact.PriorityCode
	SaleDate        compact.CompactDate
	ValidityEndDate compact.CompactDate
	SaleSAM         uint32
	SaleCounter     uint32
	AuthKVC         uint8
	Authenticator   uint32
	Counter         *int
}

// CounterValue returns the inline counter, 0 when absent.
func (c Contract) CounterValue() int {
	if c.Counter == nil {
		return 0
	}
	return *c.Counter
}

func checkSize(record string, b []byte, want int) error {
	if len(b) != want {
		return &MalformedRecordError{Record: record, Want: want, Got: len(b)}
	}
	return nil
}

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func clampCounter(v int) uint32 {
	switch {
	case v < 0:
		return 0
	case v > MaxCounterValue:
		return MaxCounterValue
	default:
		return uint32(v)
	}
}
