// Package issuance personalizes blank cards: it encodes the environment,
// an initial event and the contracts of an issue request into a card image.
package issuance

import (
	"encoding/hex"
	"fmt"
	"time"

	"ticket-validation-api/internal/card"
	"ticket-validation-api/internal/compact"
	"ticket-validation-api/internal/models"
	"ticket-validation-api/internal/records"
)

// DateLayout is the calendar date format used by issue requests.
const DateLayout = "2006-01-02"

// DefaultDFName is the application name given to Calypso cards issued
// without one ("1TIC.ICA").
var DefaultDFName = []byte("1TIC.ICA")

// SaleSAM identifies this terminal as the selling device.
const SaleSAM uint32 = 0x00C0FFEE

// Plan is a parsed issue request.
type Plan struct {
	Product     card.Product
	DFName      []byte
	HolderID    uint32
	EnvEndDate  compact.CompactDate
	Contracts   []ContractPlan
	IssuingDate compact.CompactDate
}

// ContractPlan is one parsed contract.
type ContractPlan struct {
	Tariff  compact.PriorityCode
	EndDate compact.CompactDate
	Counter int
}

// MaxContracts returns how many contracts a product can hold.
func MaxContracts(p card.Product) int {
	if p.Family() == card.FamilyCalypso {
		return card.CalypsoContractCount
	}
	return 1
}

// ParseDate decodes a YYYY-MM-DD date into its compact form.
func ParseDate(s string) (compact.CompactDate, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return 0, err
	}
	return compact.NewDate(t)
}

// ParseTariff accepts the fare products a card can be sold.
func ParseTariff(s string) (compact.PriorityCode, error) {
	p, ok := compact.ParsePriority(s)
	if !ok || !p.IsUsable() {
		return compact.PriorityUnknown, fmt.Errorf("unsupported tariff %q", s)
	}
	return p, nil
}

// NewPlan parses req. issued is the personalization time.
func NewPlan(req models.IssueCardRequest, issued time.Time) (Plan, error) {
	product, err := card.ParseProduct(req.Product)
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{Product: product, HolderID: req.HolderID}

	if product.Family() == card.FamilyCalypso {
		plan.DFName = DefaultDFName
		if req.DFName != "" {
			if plan.DFName, err = hex.DecodeString(req.DFName); err != nil {
				return Plan{}, fmt.Errorf("invalid df_name: %w", err)
			}
		}
	}

	if plan.EnvEndDate, err = ParseDate(req.EnvironmentEndDate); err != nil {
		return Plan{}, fmt.Errorf("invalid environment_end_date: %w", err)
	}
	if plan.IssuingDate, err = compact.NewDate(issued); err != nil {
		return Plan{}, err
	}

	if len(req.Contracts) > MaxContracts(product) {
		return Plan{}, fmt.Errorf("%s holds at most %d contracts", product.DisplayName(), MaxContracts(product))
	}
	for i, cs := range req.Contracts {
		cp := ContractPlan{Counter: cs.Counter}
		if cp.Tariff, err = ParseTariff(cs.Tariff); err != nil {
			return Plan{}, fmt.Errorf("contract %d: %w", i+1, err)
		}
		if cp.EndDate, err = ParseDate(cs.ValidityEndDate); err != nil {
			return Plan{}, fmt.Errorf("contract %d: invalid validity_end_date: %w", i+1, err)
		}
		if cs.Counter < 0 || cs.Counter > records.MaxCounterValue {
			return Plan{}, fmt.Errorf("contract %d: counter out of range", i+1)
		}
		plan.Contracts = append(plan.Contracts, cp)
	}
	return plan, nil
}

// Personalize parses req and returns the personalized card image.
func Personalize(req models.IssueCardRequest, issued time.Time) (*card.Image, error) {
	plan, err := NewPlan(req, issued)
	if err != nil {
		return nil, err
	}
	return plan.Image()
}

// Image encodes the plan into a fresh card image.
func (p Plan) Image() (*card.Image, error) {
	env := records.EnvironmentHolder{
		VersionNumber:     compact.VersionCurrent,
		ApplicationNumber: 1,
		IssuingDate:       p.IssuingDate,
		EndDate:           p.EnvEndDate,
		HolderIDNumber:    p.HolderID,
	}
	// The initial event carries the slot priorities but no date, so the
	// first tap passes anti-passback.
	ev := records.Event{
		VersionNumber: compact.VersionCurrent,
		TimeStamp:     compact.TimeUndefined,
		Priorities: [4]compact.PriorityCode{
			compact.PriorityForbidden,
			compact.PriorityForbidden,
			compact.PriorityForbidden,
			compact.PriorityForbidden,
		},
	}
	contracts := make([]records.Contract, len(p.Contracts))
	counters := make([]int, card.CalypsoContractCount)
	for i, cp := range p.Contracts {
		ev.Priorities[i] = cp.Tariff
		contracts[i] = records.Contract{
			VersionNumber:   compact.VersionCurrent,
			Tariff:          cp.Tariff,
			SaleDate:        p.IssuingDate,
			ValidityEndDate: cp.EndDate,
			SaleSAM:         SaleSAM,
			SaleCounter:     uint32(i + 1),
		}
		if cp.Tariff.IsCounterBased() {
			counters[i] = cp.Counter
			counter := cp.Counter
			contracts[i].Counter = &counter
		}
	}

	if p.Product.Family() == card.FamilyCalypso {
		return p.calypsoImage(env, ev, contracts, counters)
	}
	return p.storageImage(env, ev, contracts)
}

type recordWrite struct {
	r    card.Range
	data []byte
}

func (p Plan) calypsoImage(env records.EnvironmentHolder, ev records.Event, contracts []records.Contract, counters []int) (*card.Image, error) {
	img := card.NewCalypsoImage(p.DFName)
	writes := []recordWrite{
		{card.Record(card.SFIEnvironmentAndHolder, 1), records.GenerateEnvironment(records.FormatCalypso, env)},
		{card.Record(card.SFIEventLog, 1), records.GenerateEvent(records.FormatCalypso, ev)},
		{card.Record(card.SFICounter, 1), records.GenerateCounterFile(counters)},
	}
	for i, c := range contracts {
		writes = append(writes, recordWrite{card.Record(card.SFIContractList, i+1), records.GenerateContract(records.FormatCalypso, c)})
	}
	for _, w := range writes {
		if err := img.WriteRange(w.r, w.data); err != nil {
			return nil, fmt.Errorf("failed to personalize %s: %w", w.r, err)
		}
	}
	return img, nil
}

func (p Plan) storageImage(env records.EnvironmentHolder, ev records.Event, contracts []records.Contract) (*card.Image, error) {
	img, err := card.NewStorageImage(p.Product)
	if err != nil {
		return nil, err
	}
	layout, _ := card.LayoutFor(p.Product)
	if err := img.WriteRange(layout.Environment, records.GenerateEnvironment(records.FormatStorage, env)); err != nil {
		return nil, fmt.Errorf("failed to personalize environment: %w", err)
	}
	if err := img.WriteRange(layout.Event, records.GenerateEvent(records.FormatStorage, ev)); err != nil {
		return nil, fmt.Errorf("failed to personalize event: %w", err)
	}
	if len(contracts) > 0 {
		if err := img.WriteRange(layout.Contract, records.GenerateContract(records.FormatStorage, contracts[0])); err != nil {
			return nil, fmt.Errorf("failed to personalize contract: %w", err)
		}
	}
	return img, nil
}
