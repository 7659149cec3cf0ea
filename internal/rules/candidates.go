package rules

import (
	"sort"
	"time"

	"ticket-validation-api/internal/compact"
	"ticket-validation-api/internal/models"
	"ticket-validation-api/internal/records"
)

// Candidate is a contract slot that may pay for the validation.
type Candidate struct {
	Slot     int // 1-based
	Priority compact.PriorityCode
}

// GatherCandidates returns the slots not tagged Forbidden or Expired,
// ordered by priority key. Slots with equal keys keep their order.
func GatherCandidates(priorities [4]compact.PriorityCode) []Candidate {
	var out []Candidate
	for i, p := range priorities {
		if p == compact.PriorityForbidden || p == compact.PriorityExpired {
			continue
		}
		out = append(out, Candidate{Slot: i + 1, Priority: p})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Key() < out[j].Priority.Key()
	})
	return out
}

// Kind tags a per-candidate verdict.
type Kind int

const (
	Accepted Kind = iota
	Rejected
	Skipped
)

func (k Kind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return "skipped"
	}
}

// Verdict is the evaluation of one candidate.
type Verdict struct {
	Kind   Kind
	Status models.Status // Rejected and Skipped only
	Reason string

	// MarkExpired asks for the slot to be rewritten as Expired.
	MarkExpired bool

	// Accepted only.
	Decrement int
	Remaining *int
	PassEnd   *compact.CompactDate
}

// NeedsCounter reports whether evaluating c against contract requires its
// counter value. Evaluation stops before the counter for a contract of
// another schema or past its validity.
func NeedsCounter(c Candidate, contract records.Contract, now time.Time) bool {
	return c.Priority.IsCounterBased() &&
		contract.VersionNumber.IsCurrent() &&
		!contract.ValidityEndDate.Before(now)
}

// Evaluate decides whether candidate c can pay for a validation of amount.
// counter is consulted only when NeedsCounter is true.
func Evaluate(c Candidate, contract records.Contract, counter int, now time.Time, amount int) Verdict {
	if rej := CheckContractVersion(contract); rej != nil {
		return Verdict{Kind: Rejected, Status: rej.Status, Reason: rej.Reason}
	}
	if contract.ValidityEndDate.Before(now) {
		return Verdict{Kind: Skipped, Status: models.StatusEmptyCard, Reason: MsgExpiredTitle, MarkExpired: true}
	}
	switch c.Priority {
	case compact.PriorityMultiTrip, compact.PriorityStoredValue:
		if counter <= 0 {
			return Verdict{Kind: Skipped, Status: models.StatusEmptyCard, Reason: MsgNoTripsLeft, MarkExpired: true}
		}
		decrement := 1
		if c.Priority == compact.PriorityStoredValue {
			if counter < amount {
				return Verdict{Kind: Skipped, Status: models.StatusEmptyCard, Reason: MsgInsufficientValue}
			}
			decrement = amount
		}
		remaining := counter - decrement
		return Verdict{Kind: Accepted, Decrement: decrement, Remaining: &remaining}
	case compact.PrioritySeasonPass:
		end := contract.ValidityEndDate
		return Verdict{Kind: Accepted, PassEnd: &end}
	default:
		return Verdict{Kind: Skipped, Status: models.StatusEmptyCard, Reason: MsgForbiddenOrExpired}
	}
}
