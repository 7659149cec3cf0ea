// Package engine runs a ticket validation against a presented card: it
// reads the card records, applies the fare rules, writes the new state and
// always leaves the card committed or cancelled.
package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"ticket-validation-api/internal/card"
	"ticket-validation-api/internal/compact"
	"ticket-validation-api/internal/location"
	"ticket-validation-api/internal/logging"
	"ticket-validation-api/internal/models"
	"ticket-validation-api/internal/rules"
	"ticket-validation-api/internal/tracing"
)

// MsgIncomplete is reported when a validation ends without a decision.
const MsgIncomplete = "Validation did not complete"

// Request carries everything a validation depends on besides the card.
type Request struct {
	Now      time.Time
	Amount   int    // stored-value debit
	Location uint32 // written into the new event
}

// Engine validates cards. It holds no per-card state and is safe for
// concurrent use on distinct cards.
type Engine struct {
	locations       *location.Repository
	tracer          *tracing.Tracer
	mifareKeyNumber int
}

// Option configures an Engine.
type Option func(*Engine)

// WithTracer sets the tracer used for validation spans.
func WithTracer(t *tracing.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithMifareKeyNumber sets the key number used to unlock Mifare Classic sectors.
func WithMifareKeyNumber(n int) Option {
	return func(e *Engine) { e.mifareKeyNumber = n }
}

// New creates an engine.
func New(locations *location.Repository, opts ...Option) *Engine {
	e := &Engine{locations: locations}
	for _, opt := range opts {
		opt(e)
	}
	if e.locations == nil {
		e.locations = location.NewRepository()
	}
	if e.tracer == nil {
		e.tracer = tracing.GetTracer()
	}
	return e
}

// Validate runs one validation. It never returns StatusLoading and never
// returns an error: every failure is classified in the outcome.
func (e *Engine) Validate(ctx context.Context, c card.Card, req Request) models.ValidationOutcome {
	info := c.Info()
	ctx, span := e.tracer.StartSpan(ctx, "engine.Validate")
	logger := logging.FromContext(ctx).With("card_type", info.TypeLabel(), "product", string(info.Product))

	var s Strategy
	if info.Product.Family() == card.FamilyCalypso {
		s = newCalypso(c)
	} else {
		st, err := newStorage(c, e.mifareKeyNumber)
		if err != nil {
			out := models.ValidationOutcome{
				Status:        models.StatusError,
				CardType:      info.TypeLabel(),
				ErrorMessage:  err.Error(),
				EventDateTime: req.Now,
			}
			tracing.EndSpan(span, err, attribute.String("validation.status", string(out.Status)))
			return out
		}
		s = st
	}

	out := e.Run(s, req)

	logger.Info("validation finished",
		"status", string(out.Status),
		"reason", out.ErrorMessage,
		"contract", out.Contract,
	)
	tracing.EndSpan(span, nil,
		attribute.String("card.type", out.CardType),
		attribute.String("validation.status", string(out.Status)),
	)
	return out
}

// Run executes the validation state machine over s.
func (e *Engine) Run(s Strategy, req Request) models.ValidationOutcome {
	out := models.ValidationOutcome{
		Status:        models.StatusLoading,
		CardType:      s.CardType(),
		EventDateTime: req.Now,
	}

	commit := false
	res, err := e.decide(s, req)
	if err != nil {
		out.Status = models.StatusError
		out.ErrorMessage = s.Describe(err)
	} else {
		e.apply(&out, res, req)
		commit = res.Status == models.StatusSuccess || res.HasWrites()
	}

	// A failed finalize keeps the business message already decided; the
	// transport message fills an empty one only.
	if err := s.Finalize(commit); err != nil {
		if out.Status == models.StatusSuccess || out.Status == models.StatusLoading {
			clearSuccess(&out)
			out.Status = models.StatusError
		}
		if out.ErrorMessage == "" {
			out.ErrorMessage = s.Describe(err)
		}
	}

	if !out.Status.IsTerminal() {
		out.Status = models.StatusError
		if out.ErrorMessage == "" {
			out.ErrorMessage = MsgIncomplete
		}
	}
	return out
}

// decide reads the card, applies the rules and issues the writes. A
// returned error is a transport or encoding failure; business outcomes
// are always in the result.
func (e *Engine) decide(s Strategy, req Request) (rules.Result, error) {
	env, err := s.Open()
	if err != nil {
		return rules.Result{}, err
	}
	if rej := rules.CheckEnvironment(env, req.Now); rej != nil {
		return rejected(rej), nil
	}

	ev, err := s.Event()
	if err != nil {
		return rules.Result{}, err
	}
	if rej := rules.CheckEventVersion(ev); rej != nil {
		return rejected(rej), nil
	}
	if rej := rules.PassbackRejection(rules.CheckAntiPassback(ev, req.Now, s.Ratified())); rej != nil {
		return rejected(rej), nil
	}

	if ic, ok := s.(implicitContract); ok {
		contract, err := ic.ImplicitContract()
		if err != nil {
			return rules.Result{}, err
		}
		if rej := rules.CheckContractVersion(contract); rej != nil {
			return rejected(rej), nil
		}
	}

	priorities, err := s.Priorities(ev)
	if err != nil {
		return rules.Result{}, err
	}
	candidates := rules.GatherCandidates(priorities)
	if len(candidates) == 0 {
		return rules.Result{Status: models.StatusEmptyCard, Reason: s.NoTitleReason()}, nil
	}

	d := rules.NewDecision(ev, priorities)
	for _, c := range candidates {
		contract, err := s.Contract(c.Slot)
		if err != nil {
			return rules.Result{}, err
		}
		counter := 0
		if rules.NeedsCounter(c, contract, req.Now) {
			if counter, err = s.Counter(c.Slot, contract); err != nil {
				return rules.Result{}, err
			}
		}
		if d.Apply(c, rules.Evaluate(c, contract, counter, req.Now, req.Amount)) {
			break
		}
	}

	res, err := d.Assemble(req.Now, req.Location, s.PersistsExpiry())
	if err != nil {
		return rules.Result{}, err
	}
	if res.HasWrites() {
		if err := s.Write(res); err != nil {
			return rules.Result{}, err
		}
	}
	return res, nil
}

func rejected(r *rules.Rejection) rules.Result {
	return rules.Result{Status: r.Status, Reason: r.Reason}
}

func (e *Engine) apply(out *models.ValidationOutcome, res rules.Result, req Request) {
	out.Status = res.Status
	out.ErrorMessage = res.Reason
	if res.Status != models.StatusSuccess || res.Used.Slot == 0 {
		return
	}
	out.Contract = res.Used.Priority.Label()
	out.TicketsRemaining = res.Remaining
	if res.PassEnd != nil {
		out.PassValidityEndDate = passEndDate(*res.PassEnd)
	}
	if res.Event != nil {
		out.ValidationData = e.locations.ValidationData(*res.Event, req.Now.Location())
	}
}

func clearSuccess(out *models.ValidationOutcome) {
	out.TicketsRemaining = nil
	out.Contract = ""
	out.ValidationData = nil
	out.PassValidityEndDate = nil
	if out.ErrorMessage == rules.MsgRecoveredSession {
		out.ErrorMessage = ""
	}
}

func passEndDate(d compact.CompactDate) *time.Time {
	if d.IsUndefined() {
		return nil
	}
	t := d.Time()
	return &t
}
