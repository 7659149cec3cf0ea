package compact

// PriorityCode is the fare-product kind of a contract. The same byte is
// stored in the event's priority slots and in the contract tariff.
type PriorityCode uint8

// On-card values. Any other byte decodes to PriorityUnknown.
const (
	PriorityForbidden   PriorityCode = 0x00
	PrioritySeasonPass  PriorityCode = 0x01
	PriorityMultiTrip   PriorityCode = 0x02
	PriorityStoredValue PriorityCode = 0x03
	PriorityExpired     PriorityCode = 0x1F
	PriorityUnknown     PriorityCode = 0xFF
)

// AllPriorityCodes lists every representable code in evaluation order.
var AllPriorityCodes = []PriorityCode{
	PriorityMultiTrip,
	PriorityStoredValue,
	PrioritySeasonPass,
	PriorityForbidden,
	PriorityExpired,
	PriorityUnknown,
}

// DecodePriority maps a card byte onto the closed set of priority codes.
func DecodePriority(b byte) PriorityCode {
	switch p := PriorityCode(b); p {
	case PriorityForbidden, PrioritySeasonPass, PriorityMultiTrip,
		PriorityStoredValue, PriorityExpired:
		return p
	default:
		return PriorityUnknown
	}
}

// Encode returns the on-card byte.
func (p PriorityCode) Encode() byte {
	return byte(p)
}

// Key is the evaluation-order key; lower keys are tried first.
func (p PriorityCode) Key() int {
	switch p {
	case PriorityMultiTrip:
		return 1
	case PriorityStoredValue:
		return 2
	case PrioritySeasonPass:
		return 3
	case PriorityForbidden:
		return 4
	case PriorityExpired:
		return 5
	default:
		return 6
	}
}

// IsCounterBased reports whether the product consumes an on-card counter.
func (p PriorityCode) IsCounterBased() bool {
	return p == PriorityMultiTrip || p == PriorityStoredValue
}

// IsUsable is false for Forbidden, Expired and Unknown.
func (p PriorityCode) IsUsable() bool {
	return p == PriorityMultiTrip || p == PriorityStoredValue || p == PrioritySeasonPass
}

func (p PriorityCode) String() string {
	switch p {
	case PriorityForbidden:
		return "FORBIDDEN"
	case PrioritySeasonPass:
		return "SEASON_PASS"
	case PriorityMultiTrip:
		return "MULTI_TRIP"
	case PriorityStoredValue:
		return "STORED_VALUE"
	case PriorityExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Label is the rider-facing product name.
func (p PriorityCode) Label() string {
	switch p {
	case PrioritySeasonPass:
		return "Season pass"
	case PriorityMultiTrip:
		return "Multi trip"
	case PriorityStoredValue:
		return "Stored value"
	case PriorityForbidden:
		return "Forbidden"
	case PriorityExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// ParsePriority accepts the String form, used by the issuance API.
func ParsePriority(s string) (PriorityCode, bool) {
	for _, p := range AllPriorityCodes {
		if p.String() == s {
			return p, true
		}
	}
	return PriorityUnknown, false
}
