package engine

import (
	"errors"
	"fmt"

	"ticket-validation-api/internal/card"
	"ticket-validation-api/internal/compact"
	"ticket-validation-api/internal/records"
	"ticket-validation-api/internal/rules"
)

// Mifare Classic failure messages.
const (
	MsgMifareAuthentication = "Mifare Classic authentication failed"
	MsgMifareTransaction    = "Mifare Classic transaction failed"
)

// storage drives a plain read/write card holding a single contract. All
// records are read in one batch and written back in one batch; sector
// authentication, when the product needs it, precedes both.
type storage struct {
	card      card.Card
	layout    card.StorageLayout
	keyNumber int
	contract  *records.Contract
}

func newStorage(c card.Card, keyNumber int) (*storage, error) {
	layout, ok := card.LayoutFor(c.Info().Product)
	if !ok {
		return nil, fmt.Errorf("no storage layout for %s", c.Info().Product)
	}
	return &storage{card: c, layout: layout, keyNumber: keyNumber}, nil
}

func (s *storage) CardType() string {
	return s.card.Info().TypeLabel()
}

func (s *storage) authenticate() {
	if s.layout.NeedsAuthentication() {
		s.card.PrepareAuthenticate(s.layout.AuthBlock, card.KeyA, s.keyNumber)
	}
}

func (s *storage) Open() (records.EnvironmentHolder, error) {
	s.authenticate()
	s.card.PrepareReadRecords(s.layout.Environment)
	s.card.PrepareReadRecords(s.layout.Event)
	s.card.PrepareReadRecords(s.layout.Contract)
	if err := s.card.ProcessCommands(card.KeepOpen); err != nil {
		return records.EnvironmentHolder{}, err
	}
	raw, err := s.card.ReadData(s.layout.Environment)
	if err != nil {
		return records.EnvironmentHolder{}, err
	}
	return records.ParseEnvironment(records.FormatStorage, raw)
}

func (s *storage) Event() (records.Event, error) {
	raw, err := s.card.ReadData(s.layout.Event)
	if err != nil {
		return records.Event{}, err
	}
	return records.ParseEvent(records.FormatStorage, raw)
}

// Ratified is always true: a storage card has no session to leave open,
// so its last written event is final and a repeat tap inside the
// anti-passback window is a duplicate, never a recovery.
func (s *storage) Ratified() bool {
	return true
}

// ImplicitContract returns the card's one contract, evaluated whatever
// its tariff.
func (s *storage) ImplicitContract() (records.Contract, error) {
	return s.Contract(1)
}

// Priorities derives the single candidate from the contract tariff.
func (s *storage) Priorities(records.Event) ([4]compact.PriorityCode, error) {
	c, err := s.ImplicitContract()
	if err != nil {
		return [4]compact.PriorityCode{}, err
	}
	return [4]compact.PriorityCode{
		c.Tariff,
		compact.PriorityForbidden,
		compact.PriorityForbidden,
		compact.PriorityForbidden,
	}, nil
}

func (s *storage) NoTitleReason() string {
	return rules.MsgForbiddenOrExpired
}

func (s *storage) Contract(slot int) (records.Contract, error) {
	if slot != 1 {
		return records.Contract{}, fmt.Errorf("storage cards hold one contract, got slot %d", slot)
	}
	if s.contract == nil {
		raw, err := s.card.ReadData(s.layout.Contract)
		if err != nil {
			return records.Contract{}, err
		}
		c, err := records.ParseContract(records.FormatStorage, raw)
		if err != nil {
			return records.Contract{}, err
		}
		s.contract = &c
	}
	return *s.contract, nil
}

func (s *storage) Counter(_ int, contract records.Contract) (int, error) {
	return contract.CounterValue(), nil
}

func (s *storage) PersistsExpiry() bool {
	return false
}

func (s *storage) Write(res rules.Result) error {
	s.authenticate()
	if res.Decrement > 0 && s.contract != nil && res.Remaining != nil {
		updated := *s.contract
		remaining := *res.Remaining
		updated.Counter = &remaining
		s.card.PrepareWriteRecords(s.layout.Contract, records.GenerateContract(records.FormatStorage, updated))
	}
	if res.Event != nil {
		s.card.PrepareWriteRecords(s.layout.Event, records.GenerateEvent(records.FormatStorage, *res.Event))
	}
	return s.card.ProcessCommands(card.KeepOpen)
}

func (s *storage) Finalize(bool) error {
	return s.card.ProcessCommands(card.CloseAfter)
}

func (s *storage) Describe(err error) string {
	if !s.card.Info().Product.IsMifareClassic() {
		return err.Error()
	}
	if errors.Is(err, card.ErrAuthentication) {
		return MsgMifareAuthentication
	}
	return MsgMifareTransaction
}
