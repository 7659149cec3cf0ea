package card

// CalypsoTypePrefix starts the card type label of Calypso cards.
const CalypsoTypePrefix = "CALYPSO: DF name "

// Calypso file identifiers.
const (
	SFIEnvironmentAndHolder byte = 0x07
	SFIEventLog             byte = 0x08
	SFIContractList         byte = 0x09
	SFICounter              byte = 0x19

	CalypsoRecordSize    = 29
	CalypsoContractCount = 4
	CalypsoEventCount    = 3
	CounterRecordSize    = CalypsoContractCount * 3
)

// StorageLayout is the block geometry of one storage card product.
type StorageLayout struct {
	BlockSize   int
	BlockCount  int
	Environment Range
	Contract    Range
	Event       Range
	// AuthBlock is the block authenticated before reads and writes, or -1.
	AuthBlock int
}

// NeedsAuthentication reports whether the sector must be unlocked first.
func (l StorageLayout) NeedsAuthentication() bool {
	return l.AuthBlock >= 0
}

var (
	pageLayout = StorageLayout{
		BlockSize:   4,
		BlockCount:  16,
		Environment: Blocks(4, 7),
		Contract:    Blocks(8, 11),
		Event:       Blocks(12, 15),
		AuthBlock:   -1,
	}
	classicLayout = StorageLayout{
		BlockSize:   16,
		BlockCount:  64,
		Environment: Blocks(4, 4),
		Contract:    Blocks(5, 5),
		Event:       Blocks(6, 6),
		AuthBlock:   4,
	}
)

// LayoutFor returns the geometry of a storage product.
func LayoutFor(p Product) (StorageLayout, bool) {
	switch p {
	case ProductMifareUltralight, ProductST25SRT512:
		return pageLayout, true
	case ProductMifareClassic1K:
		return classicLayout, true
	case ProductMifareClassic4K:
		l := classicLayout
		l.BlockCount = 256
		return l, true
	default:
		return StorageLayout{}, false
	}
}
