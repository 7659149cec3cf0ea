package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"ticket-validation-api/internal/cache"
	"ticket-validation-api/internal/card/sim"
	"ticket-validation-api/internal/database"
	"ticket-validation-api/internal/engine"
	"ticket-validation-api/internal/events"
	"ticket-validation-api/internal/features"
	"ticket-validation-api/internal/issuance"
	"ticket-validation-api/internal/location"
	"ticket-validation-api/internal/logging"
	"ticket-validation-api/internal/models"
	"ticket-validation-api/internal/tracing"
	"ticket-validation-api/internal/validation"
)

var (
	ErrCardNotFound       = errors.New("card not found")
	ErrValidationNotFound = errors.New("validation not found")
	ErrUnknownFeature     = errors.New("unknown feature flag")
)

// DefaultJournalLimit caps a journal listing.
const DefaultJournalLimit = 50

// Terminal holds the defaults of the validator this service drives.
type Terminal struct {
	LocationID      int
	DefaultAmount   int
	MifareKeyNumber int
	Timezone        *time.Location
}

// Service provides the terminal operations: issuing simulated cards,
// validating them and reading the validation journal.
type Service struct {
	db        *database.DB
	engine    *engine.Engine
	locations *location.Repository
	terminal  Terminal
	events    *events.Manager
	features  *features.Manager
	receipts  *cache.ReceiptCache
	tracer    *tracing.Tracer
	now       func() time.Time

	// cardLocks serializes taps per card id.
	cardLocks sync.Map
}

// Option configures a Service.
type Option func(*Service)

func WithEvents(m *events.Manager) Option {
	return func(s *Service) { s.events = m }
}

func WithFeatures(m *features.Manager) Option {
	return func(s *Service) { s.features = m }
}

func WithReceiptCache(rc *cache.ReceiptCache) Option {
	return func(s *Service) { s.receipts = rc }
}

func WithTracer(t *tracing.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new service instance.
func NewService(db *database.DB, locations *location.Repository, terminal Terminal, opts ...Option) *Service {
	s := &Service{
		db:        db,
		locations: locations,
		terminal:  terminal,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locations == nil {
		s.locations = location.NewRepository()
	}
	if s.terminal.Timezone == nil {
		s.terminal.Timezone = time.UTC
	}
	if s.tracer == nil {
		s.tracer = tracing.GetTracer()
	}
	if s.events == nil {
		s.events = events.NewManager(false)
	}
	if s.features == nil {
		s.features = features.NewDefaultManager()
	}
	s.engine = engine.New(s.locations,
		engine.WithTracer(s.tracer),
		engine.WithMifareKeyNumber(terminal.MifareKeyNumber),
	)
	return s
}

func (s *Service) clock() time.Time {
	return s.now().In(s.terminal.Timezone)
}

func (s *Service) lockCard(id string) func() {
	v, _ := s.cardLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Locations returns the validation points known to the terminal.
func (s *Service) Locations() []models.Location {
	return s.locations.List()
}

// IssueCard personalizes and stores a new simulated card.
func (s *Service) IssueCard(ctx context.Context, req models.IssueCardRequest) (models.CardSummary, error) {
	if err := validation.ValidateIssueCardRequest(req); err != nil {
		return models.CardSummary{}, err
	}

	now := s.clock()
	img, err := issuance.Personalize(req, now)
	if err != nil {
		return models.CardSummary{}, fmt.Errorf("failed to personalize card: %w", err)
	}

	id := uuid.NewString()
	if err := s.db.InsertCard(id, img, now); err != nil {
		return models.CardSummary{}, err
	}

	summary, err := Summarize(database.StoredCard{ID: id, Image: img, CreatedAt: now.UTC(), UpdatedAt: now.UTC()})
	if err != nil {
		return models.CardSummary{}, err
	}

	logging.FromContext(ctx).Info("card issued", "card_id", id, "product", summary.Product)
	if s.features.IsEnabled(features.FeatureEventHooks) {
		s.events.PublishCardIssued(ctx, summary)
	}
	return summary, nil
}

// GetCard returns the decoded content of a stored card.
func (s *Service) GetCard(ctx context.Context, id string) (models.CardSummary, error) {
	sc, err := s.loadCard(id)
	if err != nil {
		return models.CardSummary{}, err
	}
	return Summarize(sc)
}

func (s *Service) loadCard(id string) (database.StoredCard, error) {
	if err := validation.ValidateUUID(id, "card_id"); err != nil {
		return database.StoredCard{}, err
	}
	sc, err := s.db.GetCard(id)
	if errors.Is(err, database.ErrNotFound) {
		return database.StoredCard{}, ErrCardNotFound
	}
	return sc, err
}

// Validate presents the stored card to the engine, stores the card state
// it leaves behind and journals the outcome. Taps on one card run one at
// a time.
func (s *Service) Validate(ctx context.Context, cardID string, req models.ValidateRequest) (models.ValidationReceipt, error) {
	if err := validation.ValidateUUID(cardID, "card_id"); err != nil {
		return models.ValidationReceipt{}, err
	}
	if err := validation.ValidateValidateRequest(req, s.locations); err != nil {
		return models.ValidationReceipt{}, err
	}

	ctx, span := s.tracer.StartSpan(ctx, "service.Validate")
	var spanErr error
	defer func() { tracing.EndSpan(span, spanErr, attribute.String("card.id", cardID)) }()

	unlock := s.lockCard(cardID)
	defer unlock()

	sc, err := s.loadCard(cardID)
	if err != nil {
		spanErr = err
		return models.ValidationReceipt{}, err
	}

	amount := s.terminal.DefaultAmount
	if req.Amount != nil {
		amount = *req.Amount
	}
	locationID := s.terminal.LocationID
	if req.LocationID != nil {
		locationID = *req.LocationID
	}
	now := s.clock()
	if req.Now != nil {
		now = req.Now.In(s.terminal.Timezone)
	}

	c := sim.New(sc.Image)
	ctx = logging.ContextWithLogger(ctx, logging.FromContext(ctx).With("card_id", cardID))
	out := s.engine.Validate(ctx, c, engine.Request{
		Now:      now,
		Amount:   amount,
		Location: uint32(locationID),
	})

	receipt := models.ValidationReceipt{
		ID:         uuid.NewString(),
		CardID:     cardID,
		Amount:     amount,
		LocationID: locationID,
		Outcome:    out,
		CreatedAt:  s.now().UTC(),
	}

	var journal *models.ValidationReceipt
	if s.features.IsEnabled(features.FeatureValidationJournal) {
		journal = &receipt
	}
	if err := s.db.SaveTap(cardID, c.Image(), journal, receipt.CreatedAt); err != nil {
		spanErr = err
		return models.ValidationReceipt{}, fmt.Errorf("failed to store tap: %w", err)
	}

	if s.receipts != nil && s.features.IsEnabled(features.FeatureReceiptCache) {
		if err := s.receipts.Put(ctx, receipt); err != nil {
			logging.FromContext(ctx).Warn("failed to cache receipt", "validation_id", receipt.ID, "error", err)
		}
	}
	if s.features.IsEnabled(features.FeatureEventHooks) {
		s.events.PublishValidationCompleted(ctx, receipt)
	}

	return receipt, nil
}

// ListValidations returns the journal of a card, newest first.
func (s *Service) ListValidations(ctx context.Context, cardID string, limit int) (models.ValidationsResponse, error) {
	if _, err := s.loadCard(cardID); err != nil {
		return models.ValidationsResponse{}, err
	}
	if limit <= 0 || limit > DefaultJournalLimit {
		limit = DefaultJournalLimit
	}

	receipts, err := s.db.ListValidations(cardID, limit)
	if err != nil {
		return models.ValidationsResponse{}, err
	}
	return models.ValidationsResponse{CardID: cardID, Validations: receipts}, nil
}

// GetValidation returns one journal entry, from the receipt cache when
// it is there.
func (s *Service) GetValidation(ctx context.Context, id string) (models.ValidationReceipt, error) {
	if err := validation.ValidateUUID(id, "validation_id"); err != nil {
		return models.ValidationReceipt{}, err
	}

	useCache := s.receipts != nil && s.features.IsEnabled(features.FeatureReceiptCache)
	if useCache {
		r, err := s.receipts.Get(ctx, id)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			logging.FromContext(ctx).Warn("receipt cache lookup failed", "validation_id", id, "error", err)
		}
	}

	r, err := s.db.GetValidation(id)
	if errors.Is(err, database.ErrNotFound) {
		return models.ValidationReceipt{}, ErrValidationNotFound
	}
	if err != nil {
		return models.ValidationReceipt{}, err
	}

	if useCache {
		if err := s.receipts.Put(ctx, r); err != nil {
			logging.FromContext(ctx).Warn("failed to cache receipt", "validation_id", id, "error", err)
		}
	}
	return r, nil
}

// Features lists the feature flags.
func (s *Service) Features() []features.FeatureFlag {
	return s.features.List()
}

// SetFeature switches a feature flag.
func (s *Service) SetFeature(name string, enabled bool) error {
	if !s.features.Set(name, enabled) {
		return ErrUnknownFeature
	}
	return nil
}
