package service

import (
	"fmt"

	"ticket-validation-api/internal/card"
	"ticket-validation-api/internal/compact"
	"ticket-validation-api/internal/database"
	"ticket-validation-api/internal/models"
	"ticket-validation-api/internal/records"
)

// Summarize decodes a stored card image for display. Contract slots never
// written are left out.
func Summarize(sc database.StoredCard) (models.CardSummary, error) {
	img := sc.Image
	summary := models.CardSummary{
		ID:        sc.ID,
		Product:   string(img.Product),
		CardType:  img.Info().TypeLabel(),
		Ratified:  img.Ratified,
		Contracts: []models.ContractView{},
		CreatedAt: sc.CreatedAt,
		UpdatedAt: sc.UpdatedAt,
	}

	var err error
	if img.Product.Family() == card.FamilyCalypso {
		err = summarizeCalypso(img, &summary)
	} else {
		err = summarizeStorage(img, &summary)
	}
	if err != nil {
		return models.CardSummary{}, fmt.Errorf("failed to decode card %s: %w", sc.ID, err)
	}
	return summary, nil
}

func summarizeCalypso(img *card.Image, summary *models.CardSummary) error {
	raw, err := img.ReadRange(card.Record(card.SFIEnvironmentAndHolder, 1))
	if err != nil {
		return err
	}
	env, err := records.ParseEnvironment(records.FormatCalypso, raw)
	if err != nil {
		return err
	}
	summary.Environment = environmentView(env)

	if raw, err = img.ReadRange(card.Record(card.SFIEventLog, 1)); err != nil {
		return err
	}
	ev, err := records.ParseEvent(records.FormatCalypso, raw)
	if err != nil {
		return err
	}
	summary.LastEvent = eventView(ev)

	if raw, err = img.ReadRange(card.Record(card.SFICounter, 1)); err != nil {
		return err
	}
	counters, err := records.ParseCounterFile(raw)
	if err != nil {
		return err
	}

	for slot := 1; slot <= card.CalypsoContractCount; slot++ {
		if raw, err = img.ReadRange(card.Record(card.SFIContractList, slot)); err != nil {
			return err
		}
		c, err := records.ParseContract(records.FormatCalypso, raw)
		if err != nil {
			return err
		}
		if c.VersionNumber == compact.VersionUndefined {
			continue
		}
		view := contractView(slot, c)
		if c.Tariff.IsCounterBased() && slot <= len(counters) {
			value := counters[slot-1]
			view.Counter = &value
		}
		summary.Contracts = append(summary.Contracts, view)
	}
	return nil
}

func summarizeStorage(img *card.Image, summary *models.CardSummary) error {
	layout, ok := card.LayoutFor(img.Product)
	if !ok {
		return fmt.Errorf("no storage layout for %s", img.Product)
	}

	raw, err := img.ReadRange(layout.Environment)
	if err != nil {
		return err
	}
	env, err := records.ParseEnvironment(records.FormatStorage, raw)
	if err != nil {
		return err
	}
	summary.Environment = environmentView(env)

	if raw, err = img.ReadRange(layout.Event); err != nil {
		return err
	}
	ev, err := records.ParseEvent(records.FormatStorage, raw)
	if err != nil {
		return err
	}
	summary.LastEvent = eventView(ev)

	if raw, err = img.ReadRange(layout.Contract); err != nil {
		return err
	}
	c, err := records.ParseContract(records.FormatStorage, raw)
	if err != nil {
		return err
	}
	if c.VersionNumber != compact.VersionUndefined {
		view := contractView(1, c)
		view.Counter = c.Counter
		summary.Contracts = append(summary.Contracts, view)
	}
	return nil
}

func environmentView(env records.EnvironmentHolder) models.EnvironmentView {
	return models.EnvironmentView{
		Version:   env.VersionNumber.String(),
		IssueDate: env.IssuingDate.String(),
		EndDate:   env.EndDate.String(),
		HolderID:  env.HolderIDNumber,
	}
}

func eventView(ev records.Event) *models.EventView {
	if ev.VersionNumber == compact.VersionUndefined {
		return nil
	}
	view := &models.EventView{
		Version:      ev.VersionNumber.String(),
		Date:         ev.DateStamp.String(),
		Time:         ev.TimeStamp.String(),
		LocationID:   int(ev.Location),
		ContractUsed: int(ev.ContractUsed),
	}
	for _, p := range ev.Priorities {
		view.Priorities = append(view.Priorities, p.String())
	}
	return view
}

func contractView(slot int, c records.Contract) models.ContractView {
	return models.ContractView{
		Slot:            slot,
		Version:         c.VersionNumber.String(),
		Tariff:          c.Tariff.String(),
		ValidityEndDate: c.ValidityEndDate.String(),
	}
}
