package card

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCommunication  = errors.New("card communication failed")
	ErrAuthentication = errors.New("card authentication failed")
	ErrSession        = errors.New("secure session failure")
	ErrRejected       = errors.New("card rejected command")
	ErrNotRead        = errors.New("range was not read")
	ErrChannelClosed  = errors.New("card channel closed")
	ErrUnknownKey     = errors.New("unknown key")
)

// Family is the transaction shape a card supports.
type Family int

const (
	FamilyCalypso Family = iota
	FamilyStorage
)

func (f Family) String() string {
	if f == FamilyStorage {
		return "storage"
	}
	return "calypso"
}

// Product identifies the physical card product.
type Product string

const (
	ProductCalypso          Product = "calypso"
	ProductMifareClassic1K  Product = "mifare_classic_1k"
	ProductMifareClassic4K  Product = "mifare_classic_4k"
	ProductMifareUltralight Product = "mifare_ultralight"
	ProductST25SRT512       Product = "st25_srt512"
)

// Products lists every supported product.
var Products = []Product{
	ProductCalypso,
	ProductMifareClassic1K,
	ProductMifareClassic4K,
	ProductMifareUltralight,
	ProductST25SRT512,
}

// ParseProduct validates a product name.
func ParseProduct(s string) (Product, error) {
	for _, p := range Products {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unsupported card product %q", s)
}

// Family returns the transaction family of the product.
func (p Product) Family() Family {
	if p == ProductCalypso {
		return FamilyCalypso
	}
	return FamilyStorage
}

// IsMifareClassic reports whether the product needs sector authentication.
func (p Product) IsMifareClassic() bool {
	return p == ProductMifareClassic1K || p == ProductMifareClassic4K
}

// DisplayName is the product name shown to riders.
func (p Product) DisplayName() string {
	switch p {
	case ProductCalypso:
		return "Calypso"
	case ProductMifareClassic1K:
		return "Mifare Classic 1K"
	case ProductMifareClassic4K:
		return "Mifare Classic 4K"
	case ProductMifareUltralight:
		return "Mifare Ultralight"
	case ProductST25SRT512:
		return "ST25 SRT512"
	default:
		return string(p)
	}
}

// Info is what the reader learns about a card on selection.
type Info struct {
	Product Product
	DFName  []byte
}

// TypeLabel is the card type string placed in validation outcomes.
func (i Info) TypeLabel() string {
	if i.Product.Family() == FamilyCalypso {
		return CalypsoTypePrefix + strings.ToUpper(hex.EncodeToString(i.DFName))
	}
	return i.Product.DisplayName()
}

// ChannelControl tells ProcessCommands whether to keep the card channel open.
type ChannelControl int

const (
	KeepOpen ChannelControl = iota
	CloseAfter
)

func (c ChannelControl) String() string {
	if c == CloseAfter {
		return "close_after"
	}
	return "keep_open"
}

// SessionLevel is the access level of a secure session.
type SessionLevel int

const (
	SessionPersonalization SessionLevel = iota
	SessionLoad
	SessionDebit
)

func (l SessionLevel) String() string {
	switch l {
	case SessionPersonalization:
		return "personalization"
	case SessionLoad:
		return "load"
	default:
		return "debit"
	}
}

// KeyType selects which sector key authenticates a Mifare Classic block.
type KeyType int

const (
	KeyA KeyType = iota
	KeyB
)

func (k KeyType) String() string {
	if k == KeyB {
		return "KEY_B"
	}
	return "KEY_A"
}

// Range addresses records First..Last of file SFI on Calypso cards, or
// blocks First..Last on storage cards (SFI is zero).
type Range struct {
	SFI   byte
	First int
	Last  int
}

// Record addresses one Calypso record.
func Record(sfi byte, number int) Range {
	return Range{SFI: sfi, First: number, Last: number}
}

// Blocks addresses a run of storage blocks.
func Blocks(first, last int) Range {
	return Range{First: first, Last: last}
}

// Len is the number of records or blocks covered.
func (r Range) Len() int {
	return r.Last - r.First + 1
}

func (r Range) String() string {
	if r.SFI != 0 {
		return fmt.Sprintf("sfi=0x%02X records=%d..%d", r.SFI, r.First, r.Last)
	}
	return fmt.Sprintf("blocks=%d..%d", r.First, r.Last)
}

// Transaction is the card transaction port. Prepare calls queue commands;
// ProcessCommands executes the queue as one batch and reports the first
// failure.
type Transaction interface {
	PrepareReadRecords(r Range)
	PrepareWriteRecords(r Range, data []byte)
	PrepareDecrementCounter(sfi byte, counter int, amount int)
	PrepareAuthenticate(block int, keyType KeyType, keyNumber int)
	PrepareOpenSecureSession(level SessionLevel)
	PrepareCloseSecureSession()
	PrepareCancelSecureSession()
	ProcessCommands(cc ChannelControl) error
}

// Snapshot exposes data returned by executed read batches.
type Snapshot interface {
	Info() Info
	// ReadData returns the bytes of a range read by an earlier batch.
	ReadData(r Range) ([]byte, error)
	// Ratified reports whether the previous secure session on the card
	// was closed normally.
	Ratified() bool
}

// Card is a selected card: its transaction port and its snapshot.
type Card interface {
	Transaction
	Snapshot
}
