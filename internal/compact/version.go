package compact

import "fmt"

// VersionNumber is the one-byte schema tag carried by every card record.
type VersionNumber uint8

const (
	// VersionUndefined marks a record that was never written.
	VersionUndefined VersionNumber = 0
	// VersionCurrent is the only schema this engine accepts.
	VersionCurrent VersionNumber = 1
)

// VersionClass groups version numbers the way the rule engine looks at them.
type VersionClass int

const (
	VersionClassUndefined VersionClass = iota
	VersionClassCurrent
	VersionClassOther
)

// DecodeVersion never fails: unknown values stay representable as VersionClassOther.
func DecodeVersion(b byte) VersionNumber {
	return VersionNumber(b)
}

// Encode returns the on-card byte.
func (v VersionNumber) Encode() byte {
	return byte(v)
}

// Class classifies the version number.
func (v VersionNumber) Class() VersionClass {
	switch v {
	case VersionUndefined:
		return VersionClassUndefined
	case VersionCurrent:
		return VersionClassCurrent
	default:
		return VersionClassOther
	}
}

// IsCurrent reports whether v exactly matches the supported schema.
func (v VersionNumber) IsCurrent() bool {
	return v == VersionCurrent
}

func (v VersionNumber) String() string {
	switch v.Class() {
	case VersionClassUndefined:
		return "undefined"
	case VersionClassCurrent:
		return "current"
	default:
		return fmt.Sprintf("other(0x%02X)", uint8(v))
	}
}
