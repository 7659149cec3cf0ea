package card

import (
	"bytes"
	"fmt"
)

// MaxKeyNumber is the highest key number a provider resolves.
const MaxKeyNumber = 255

// DefaultMifareKey is the factory transport key of Mifare Classic sectors.
var DefaultMifareKey = []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// KeyProvider resolves a key number to sector key bytes.
type KeyProvider interface {
	Key(keyType KeyType, number int) ([]byte, error)
}

// DefaultKeys serves the factory key for every key number.
type DefaultKeys struct{}

// Key implements KeyProvider.
func (DefaultKeys) Key(keyType KeyType, number int) ([]byte, error) {
	if number < 0 || number > MaxKeyNumber {
		return nil, fmt.Errorf("%w: %s #%d", ErrUnknownKey, keyType, number)
	}
	return bytes.Clone(DefaultMifareKey), nil
}
