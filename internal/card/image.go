package card

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Image is the full stored contents of a card, used to persist simulated
// cards between taps.
type Image struct {
	Product  Product `cbor:"product"`
	DFName   []byte  `cbor:"df_name,omitempty"`
	Ratified bool    `cbor:"ratified"`
	// Files holds Calypso records by SFI; record n is at index n-1.
	Files map[byte][][]byte `cbor:"files,omitempty"`
	// Blocks holds storage card blocks by block number.
	Blocks [][]byte `cbor:"blocks,omitempty"`
	// SectorKey protects the Mifare Classic application sector.
	SectorKey []byte `cbor:"sector_key,omitempty"`
}

var (
	imageEncMode cbor.EncMode
	imageDecMode cbor.DecMode
)

func init() {
	var err error
	imageEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("card: CBOR encoder initialization failed: " + err.Error())
	}
	imageDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("card: CBOR decoder initialization failed: " + err.Error())
	}
}

// NewCalypsoImage returns a blank Calypso card with every file allocated.
func NewCalypsoImage(dfName []byte) *Image {
	img := &Image{
		Product:  ProductCalypso,
		DFName:   bytes.Clone(dfName),
		Ratified: true,
		Files: map[byte][][]byte{
			SFIEnvironmentAndHolder: blankRecords(1, CalypsoRecordSize),
			SFIEventLog:             blankRecords(CalypsoEventCount, CalypsoRecordSize),
			SFIContractList:         blankRecords(CalypsoContractCount, CalypsoRecordSize),
			SFICounter:              blankRecords(1, CounterRecordSize),
		},
	}
	return img
}

// NewStorageImage returns a blank storage card of the given product.
func NewStorageImage(p Product) (*Image, error) {
	layout, ok := LayoutFor(p)
	if !ok {
		return nil, fmt.Errorf("product %s is not a storage card", p)
	}
	img := &Image{
		Product:  p,
		Ratified: true,
		Blocks:   blankRecords(layout.BlockCount, layout.BlockSize),
	}
	if p.IsMifareClassic() {
		img.SectorKey = bytes.Clone(DefaultMifareKey)
	}
	return img, nil
}

func blankRecords(n, size int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = make([]byte, size)
	}
	return out
}

// Info returns the selection data of the imaged card.
func (img *Image) Info() Info {
	return Info{Product: img.Product, DFName: bytes.Clone(img.DFName)}
}

// Clone returns a deep copy.
func (img *Image) Clone() *Image {
	out := &Image{
		Product:   img.Product,
		DFName:    bytes.Clone(img.DFName),
		Ratified:  img.Ratified,
		SectorKey: bytes.Clone(img.SectorKey),
		Blocks:    cloneRecords(img.Blocks),
	}
	if img.Files != nil {
		out.Files = make(map[byte][][]byte, len(img.Files))
		for sfi, recs := range img.Files {
			out.Files[sfi] = cloneRecords(recs)
		}
	}
	return out
}

func cloneRecords(in [][]byte) [][]byte {
	if in == nil {
		return nil
	}
	out := make([][]byte, len(in))
	for i, r := range in {
		out[i] = bytes.Clone(r)
	}
	return out
}

// ReadRange returns the concatenated records or blocks of r.
func (img *Image) ReadRange(r Range) ([]byte, error) {
	recs, first, err := img.locate(r)
	if err != nil {
		return nil, err
	}
	var out []byte
	for i := 0; i < r.Len(); i++ {
		out = append(out, recs[first+i]...)
	}
	return out, nil
}

// WriteRange splits data across the records or blocks of r. data must
// cover the range exactly.
func (img *Image) WriteRange(r Range, data []byte) error {
	recs, first, err := img.locate(r)
	if err != nil {
		return err
	}
	size := len(recs[first])
	if len(data) != size*r.Len() {
		return fmt.Errorf("%w: write of %d bytes to %s (want %d)", ErrRejected, len(data), r, size*r.Len())
	}
	for i := 0; i < r.Len(); i++ {
		copy(recs[first+i], data[i*size:(i+1)*size])
	}
	return nil
}

func (img *Image) locate(r Range) ([][]byte, int, error) {
	var recs [][]byte
	first := r.First
	if img.Product.Family() == FamilyCalypso {
		recs = img.Files[r.SFI]
		first = r.First - 1
	} else {
		recs = img.Blocks
	}
	if recs == nil || r.Len() < 1 || first < 0 || first+r.Len() > len(recs) {
		return nil, 0, fmt.Errorf("%w: no such range %s", ErrRejected, r)
	}
	return recs, first, nil
}

// MarshalImage encodes an image with deterministic CBOR.
func MarshalImage(img *Image) ([]byte, error) {
	data, err := imageEncMode.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode card image: %w", err)
	}
	return data, nil
}

// UnmarshalImage decodes an image written by MarshalImage.
func UnmarshalImage(data []byte) (*Image, error) {
	var img Image
	if err := imageDecMode.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("failed to decode card image: %w", err)
	}
	if _, err := ParseProduct(string(img.Product)); err != nil {
		return nil, err
	}
	return &img, nil
}
