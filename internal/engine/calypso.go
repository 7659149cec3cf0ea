package engine

import (
	"fmt"

	"ticket-validation-api/internal/card"
	"ticket-validation-api/internal/compact"
	"ticket-validation-api/internal/records"
	"ticket-validation-api/internal/rules"
)

// calypso drives a session-secured card: every read and write happens
// inside one secure session that is closed on success and cancelled
// otherwise.
type calypso struct {
	card     card.Card
	counters []int
}

func newCalypso(c card.Card) *calypso {
	return &calypso{card: c}
}

func (s *calypso) CardType() string {
	return s.card.Info().TypeLabel()
}

func (s *calypso) Open() (records.EnvironmentHolder, error) {
	r := card.Record(card.SFIEnvironmentAndHolder, 1)
	s.card.PrepareOpenSecureSession(card.SessionDebit)
	s.card.PrepareReadRecords(r)
	raw, err := s.process(r)
	if err != nil {
		return records.EnvironmentHolder{}, err
	}
	return records.ParseEnvironment(records.FormatCalypso, raw)
}

func (s *calypso) Event() (records.Event, error) {
	r := card.Record(card.SFIEventLog, 1)
	s.card.PrepareReadRecords(r)
	raw, err := s.process(r)
	if err != nil {
		return records.Event{}, err
	}
	return records.ParseEvent(records.FormatCalypso, raw)
}

func (s *calypso) Ratified() bool {
	return s.card.Ratified()
}

func (s *calypso) Priorities(ev records.Event) ([4]compact.PriorityCode, error) {
	return ev.Priorities, nil
}

func (s *calypso) NoTitleReason() string {
	return rules.MsgNoValidTitle
}

func (s *calypso) Contract(slot int) (records.Contract, error) {
	r := card.Record(card.SFIContractList, slot)
	s.card.PrepareReadRecords(r)
	raw, err := s.process(r)
	if err != nil {
		return records.Contract{}, err
	}
	return records.ParseContract(records.FormatCalypso, raw)
}

// Counter reads the counter file once per validation.
func (s *calypso) Counter(slot int, _ records.Contract) (int, error) {
	if s.counters == nil {
		r := card.Record(card.SFICounter, 1)
		s.card.PrepareReadRecords(r)
		raw, err := s.process(r)
		if err != nil {
			return 0, err
		}
		values, err := records.ParseCounterFile(raw)
		if err != nil {
			return 0, err
		}
		s.counters = values
	}
	if slot < 1 || slot > len(s.counters) {
		return 0, fmt.Errorf("no counter for contract #%d", slot)
	}
	return s.counters[slot-1], nil
}

func (s *calypso) PersistsExpiry() bool {
	return true
}

func (s *calypso) Write(res rules.Result) error {
	if res.Decrement > 0 {
		s.card.PrepareDecrementCounter(card.SFICounter, res.Used.Slot, res.Decrement)
	}
	if res.Event != nil {
		s.card.PrepareWriteRecords(card.Record(card.SFIEventLog, 1), records.GenerateEvent(records.FormatCalypso, *res.Event))
	}
	return s.card.ProcessCommands(card.KeepOpen)
}

func (s *calypso) Finalize(commit bool) error {
	if commit {
		s.card.PrepareCloseSecureSession()
	} else {
		s.card.PrepareCancelSecureSession()
	}
	return s.card.ProcessCommands(card.CloseAfter)
}

func (s *calypso) Describe(err error) string {
	return err.Error()
}

func (s *calypso) process(r card.Range) ([]byte, error) {
	if err := s.card.ProcessCommands(card.KeepOpen); err != nil {
		return nil, err
	}
	return s.card.ReadData(r)
}
