package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"weighbridge-service/internal/config"
	"weighbridge-service/internal/domain/weighing"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrCannotPair   = errors.New("cannot pair events")
)

// EventStore is the persistence collaborator. Each call is individually
// atomic; PairEvents composes document creation and the matched-state update
// of both events into one transaction.
type EventStore interface {
	CreateEvent(ctx context.Context, event *weighing.WeighingEvent) error
	UpdateEvent(ctx context.Context, event *weighing.WeighingEvent) error
	GetEvent(ctx context.Context, id uuid.UUID) (*weighing.WeighingEvent, error)
	QueryUnmatchedEvents(ctx context.Context, plate string, since time.Time) ([]weighing.WeighingEvent, error)
	ListEvents(ctx context.Context, plate *string, limit, offset int) ([]weighing.WeighingEvent, error)
	PairEvents(ctx context.Context, doc *weighing.ShipmentDocument) error
	ListDocuments(ctx context.Context, limit, offset int) ([]weighing.ShipmentDocument, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*weighing.ShipmentDocument, error)
}

// Capturer is the camera collaborator. An empty result on total failure is
// acceptable; it must never abort the calling cycle.
type Capturer interface {
	CaptureAll(ctx context.Context, reason string) ([]string, error)
}

// WeighingService bridges the stability detector to persistence and runs the
// matching engine.
type WeighingService struct {
	store    EventStore
	capturer Capturer
	cfg      config.MatchingConfig
	log      zerolog.Logger
}

func NewWeighingService(store EventStore, capturer Capturer, cfg config.MatchingConfig, log zerolog.Logger) *WeighingService {
	return &WeighingService{
		store:    store,
		capturer: capturer,
		cfg:      cfg,
		log:      log,
	}
}

// RecordStabilized persists one weighing event from a stabilization signal,
// then attaches photos and attempts an automatic match. The three steps are
// independently fault-tolerant: a capture failure does not prevent matching,
// and a match failure leaves the event unmatched for a later retry.
func (s *WeighingService) RecordStabilized(ctx context.Context, weight decimal.Decimal, plate string) (uuid.UUID, error) {
	event := &weighing.WeighingEvent{
		ID:        uuid.New(),
		Weight:    weight,
		Plate:     plate,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		s.log.Error().Err(err).Str("weight", weight.String()).Str("plate", plate).
			Msg("failed to persist weighing event")
		return uuid.Nil, fmt.Errorf("create weighing event: %w", err)
	}
	s.log.Info().
		Str("event_id", event.ID.String()).
		Str("weight", weight.String()).
		Str("plate", plate).
		Msg("weighing event recorded")

	photos, err := s.capturer.CaptureAll(ctx, "stabilized")
	if err != nil {
		s.log.Error().Err(err).Str("event_id", event.ID.String()).Msg("photo capture failed")
	} else if len(photos) == 0 {
		s.log.Warn().Str("event_id", event.ID.String()).Msg("capture returned no photos")
	} else {
		event.Photos = photos
		if err := s.store.UpdateEvent(ctx, event); err != nil {
			s.log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to attach photos")
		}
	}

	if _, matched, err := s.AutoMatch(ctx, event); err != nil {
		s.log.Error().Err(err).Str("event_id", event.ID.String()).Msg("automatic matching failed")
	} else if !matched {
		s.log.Debug().Str("event_id", event.ID.String()).Msg("no counterpart found, event left unmatched")
	}

	return event.ID, nil
}

// UpdateEventPlate replaces the plate guess on an event after a better
// recognition result arrived late in the cycle.
func (s *WeighingService) UpdateEventPlate(ctx context.Context, id uuid.UUID, plate string) error {
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, weighing.ErrNotFound) {
			return fmt.Errorf("%w: event %s", ErrNotFound, id)
		}
		return err
	}
	if event.Matched() {
		// The pair was already synthesized with the old plate; changing it
		// now would desync the document.
		s.log.Warn().Str("event_id", id.String()).Str("plate", plate).
			Msg("skipping plate revision on matched event")
		return nil
	}
	old := event.Plate
	event.Plate = plate
	if err := s.store.UpdateEvent(ctx, event); err != nil {
		return fmt.Errorf("update event plate: %w", err)
	}
	s.log.Info().Str("event_id", id.String()).Str("old_plate", old).Str("plate", plate).
		Msg("event plate revised from late recognition")
	return nil
}

// CaptureUnstableFlow takes best-effort photos of a vehicle that left the
// scale before stabilizing. No weighing event is persisted.
func (s *WeighingService) CaptureUnstableFlow(ctx context.Context) {
	photos, err := s.capturer.CaptureAll(ctx, "unstable-flow")
	if err != nil {
		s.log.Error().Err(err).Msg("unstable flow capture failed")
		return
	}
	s.log.Info().Int("photos", len(photos)).Msg("unstable flow captured")
}

// VoidEvent is the terminal operator action on an event. Matched events
// cannot be voided.
func (s *WeighingService) VoidEvent(ctx context.Context, id uuid.UUID) error {
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, weighing.ErrNotFound) {
			return fmt.Errorf("%w: event %s", ErrNotFound, id)
		}
		return err
	}
	if event.Matched() {
		return fmt.Errorf("%w: matched events cannot be voided", ErrInvalidInput)
	}
	if event.Voided {
		return nil
	}
	event.Voided = true
	if err := s.store.UpdateEvent(ctx, event); err != nil {
		return fmt.Errorf("void event: %w", err)
	}
	s.log.Info().Str("event_id", id.String()).Msg("weighing event voided")
	return nil
}

func (s *WeighingService) ListEvents(ctx context.Context, plate *string, limit, offset int) ([]weighing.WeighingEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListEvents(ctx, plate, limit, offset)
}

func (s *WeighingService) ListDocuments(ctx context.Context, limit, offset int) ([]weighing.ShipmentDocument, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListDocuments(ctx, limit, offset)
}

func (s *WeighingService) GetEvent(ctx context.Context, id uuid.UUID) (*weighing.WeighingEvent, error) {
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, weighing.ErrNotFound) {
			return nil, fmt.Errorf("%w: event %s", ErrNotFound, id)
		}
		return nil, err
	}
	return event, nil
}

func (s *WeighingService) GetDocument(ctx context.Context, id uuid.UUID) (*weighing.ShipmentDocument, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, weighing.ErrNotFound) {
			return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
		}
		return nil, err
	}
	return doc, nil
}
