// Package rules holds the validation business rules. Every function is
// pure: decoded records, the clock and the requested amount in, typed
// verdicts out.
package rules

import (
	"time"

	"ticket-validation-api/internal/compact"
	"ticket-validation-api/internal/models"
	"ticket-validation-api/internal/records"
)

// Rider-facing reasons.
const (
	MsgNoValidTitle            = "No valid title detected"
	MsgEnvironmentWrongVersion = "Environment error: wrong version number"
	MsgEnvironmentExpired      = "Environment error: end date expired"
	MsgEventWrongVersion       = "Event error: wrong version number"
	MsgContractWrongVersion    = "Contract Version Number error (!= CURRENT_VERSION)"
	MsgAlreadyTapped           = "Card already tapped.\nPlease wait before retrying."
	MsgRecoveredSession        = "Recover previous broken valid session"
	MsgExpiredTitle            = "Expired title"
	MsgNoTripsLeft             = "No trips left"
	MsgInsufficientValue       = "Insufficient stored value"
	MsgForbiddenOrExpired      = "Contract is forbidden or expired"
)

// AntiPassbackWindow is the minimum delay between two validations.
const AntiPassbackWindow = time.Minute

// Rejection is a business outcome that ends the validation.
type Rejection struct {
	Status models.Status
	Reason string
}

func reject(status models.Status, reason string) *Rejection {
	return &Rejection{Status: status, Reason: reason}
}

// CheckEnvironment rejects a card whose environment is not of the current
// schema or has ended before today.
func CheckEnvironment(env records.EnvironmentHolder, now time.Time) *Rejection {
	if !env.VersionNumber.IsCurrent() {
		return reject(models.StatusInvalidCard, MsgEnvironmentWrongVersion)
	}
	if env.EndDate.Before(now) {
		return reject(models.StatusInvalidCard, MsgEnvironmentExpired)
	}
	return nil
}

// CheckEventVersion rejects a card that was never validated or carries an
// event of another schema.
func CheckEventVersion(ev records.Event) *Rejection {
	switch ev.VersionNumber.Class() {
	case compact.VersionClassCurrent:
		return nil
	case compact.VersionClassUndefined:
		return reject(models.StatusEmptyCard, MsgNoValidTitle)
	default:
		return reject(models.StatusInvalidCard, MsgEventWrongVersion)
	}
}

// CheckContractVersion rejects a contract of another schema, whatever
// its tariff.
func CheckContractVersion(c records.Contract) *Rejection {
	if !c.VersionNumber.IsCurrent() {
		return reject(models.StatusInvalidCard, MsgContractWrongVersion)
	}
	return nil
}

// Passback is the anti-passback verdict.
type Passback int

const (
	// PassbackClear lets the validation proceed.
	PassbackClear Passback = iota
	// PassbackDuplicate is a second tap inside the window after a
	// completed validation.
	PassbackDuplicate
	// PassbackRecovery is a tap inside the window after a session that
	// was never ratified; it is replayed as a success without a debit.
	PassbackRecovery
)

func (p Passback) String() string {
	switch p {
	case PassbackDuplicate:
		return "duplicate"
	case PassbackRecovery:
		return "recovery"
	default:
		return "clear"
	}
}

// CheckAntiPassback compares the last event with now, read in now's
// location. Clock skew that puts the event in the future counts as inside
// the window.
func CheckAntiPassback(ev records.Event, now time.Time, ratified bool) Passback {
	last, ok := compact.Timestamp(ev.DateStamp, ev.TimeStamp, now.Location())
	if !ok {
		return PassbackClear
	}
	if now.Sub(last) >= AntiPassbackWindow {
		return PassbackClear
	}
	if ratified {
		return PassbackDuplicate
	}
	return PassbackRecovery
}

// PassbackRejection maps a passback verdict to its outcome. Recovery maps
// to a Success carrying MsgRecoveredSession.
func PassbackRejection(p Passback) *Rejection {
	switch p {
	case PassbackDuplicate:
		return reject(models.StatusInvalidCard, MsgAlreadyTapped)
	case PassbackRecovery:
		return reject(models.StatusSuccess, MsgRecoveredSession)
	default:
		return nil
	}
}
