package rules

import (
	"fmt"
	"time"

	"ticket-validation-api/internal/compact"
	"ticket-validation-api/internal/models"
	"ticket-validation-api/internal/records"
)

// Decision accumulates the changes of one candidate search. The input
// event is never modified; Assemble applies the changes in one step.
type Decision struct {
	event      records.Event
	priorities [4]compact.PriorityCode
	marked     bool
	used       *Candidate
	accepted   Verdict
	rejected   *Rejection
	lastSkip   string
}

// NewDecision starts a search over the given working priorities.
func NewDecision(ev records.Event, priorities [4]compact.PriorityCode) *Decision {
	return &Decision{event: ev, priorities: priorities}
}

// Apply records the verdict for c and reports whether the search is over.
func (d *Decision) Apply(c Candidate, v Verdict) bool {
	switch v.Kind {
	case Accepted:
		used := c
		d.used = &used
		d.accepted = v
		return true
	case Rejected:
		d.rejected = &Rejection{Status: v.Status, Reason: v.Reason}
		return true
	default:
		if v.MarkExpired && c.Slot >= 1 && c.Slot <= len(d.priorities) {
			d.priorities[c.Slot-1] = compact.PriorityExpired
			d.marked = true
		}
		d.lastSkip = v.Reason
		return false
	}
}

// Priorities returns the working priority vector.
func (d *Decision) Priorities() [4]compact.PriorityCode {
	return d.priorities
}

// Result is the terminal decision of a validation.
type Result struct {
	Status models.Status
	Reason string

	// Event is the record to write, nil when nothing is written.
	Event *records.Event

	// Set on Success.
	Used      Candidate
	Decrement int
	Remaining *int
	PassEnd   *compact.CompactDate
}

// HasWrites reports whether the result changes the card.
func (r Result) HasWrites() bool {
	return r.Event != nil || r.Decrement > 0
}

// Assemble builds the result. A successful search yields a fresh event
// stamped with now and location. Otherwise, when slots were marked expired
// and persistExpiry is set, the previous event is rewritten with the
// updated priorities only.
func (d *Decision) Assemble(now time.Time, location uint32, persistExpiry bool) (Result, error) {
	if d.rejected != nil {
		return Result{Status: d.rejected.Status, Reason: d.rejected.Reason}, nil
	}
	if d.used != nil {
		date, err := compact.NewDate(now)
		if err != nil {
			return Result{}, fmt.Errorf("failed to stamp event: %w", err)
		}
		ev := records.Event{
			VersionNumber: compact.VersionCurrent,
			DateStamp:     date,
			TimeStamp:     compact.NewTime(now),
			Location:      location,
			ContractUsed:  uint8(d.used.Slot),
			Priorities:    d.priorities,
		}
		return Result{
			Status:    models.StatusSuccess,
			Event:     &ev,
			Used:      *d.used,
			Decrement: d.accepted.Decrement,
			Remaining: d.accepted.Remaining,
			PassEnd:   d.accepted.PassEnd,
		}, nil
	}
	res := Result{Status: models.StatusEmptyCard, Reason: d.lastSkip}
	if res.Reason == "" {
		res.Reason = MsgNoValidTitle
	}
	if d.marked && persistExpiry {
		ev := d.event
		ev.Priorities = d.priorities
		res.Event = &ev
	}
	return res, nil
}
