package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"weighbridge-service/internal/domain/weighing"
	"weighbridge-service/internal/utils"
)

// FindCandidates returns all unmatched prior events that could pair with the
// given event in the given direction: same plate, recorded within the maximum
// pairing interval before the event, and on the right side of the weight
// relationship. Results are ordered most recent first.
//
// Receiving expects the candidate to be the loaded reading, so its weight
// must exceed the event's by more than the minimum delta; Sending is the
// mirror image.
func (s *WeighingService) FindCandidates(ctx context.Context, event *weighing.WeighingEvent, direction weighing.Direction) ([]weighing.WeighingEvent, error) {
	if event.Plate == "" {
		return nil, nil
	}
	since := event.CreatedAt.Add(-s.cfg.MaxInterval)
	unmatched, err := s.store.QueryUnmatchedEvents(ctx, event.Plate, since)
	if err != nil {
		return nil, fmt.Errorf("query unmatched events: %w", err)
	}

	candidates := make([]weighing.WeighingEvent, 0, len(unmatched))
	for _, c := range unmatched {
		if c.ID == event.ID || c.Voided {
			continue
		}
		if c.CreatedAt.After(event.CreatedAt) {
			continue
		}
		if !weightCompatible(&c, event, direction, s.cfg.MinWeightDelta) {
			continue
		}
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	return candidates, nil
}

// AutoMatch tries to pair a newly recorded event. Matched events are a no-op.
// Events whose plate fails the format check are never matched automatically
// and wait for the operator. When the event carries no direction, both are
// tried in configured order and the first success wins.
//
// Among compatible candidates the one nearest in time is preferred, not
// simply the most recent. A candidate claimed by a concurrent match is
// skipped and the next nearest one is tried before falling through to the
// other direction.
func (s *WeighingService) AutoMatch(ctx context.Context, event *weighing.WeighingEvent) (*weighing.ShipmentDocument, bool, error) {
	if event.Matched() {
		return nil, false, nil
	}
	if event.Voided {
		return nil, false, nil
	}
	if !utils.IsValidPlate(event.Plate) {
		s.log.Debug().Str("event_id", event.ID.String()).Str("plate", event.Plate).
			Msg("plate failed format check, leaving event for manual matching")
		return nil, false, nil
	}

	directions := s.directionOrder(event.Direction)
	for _, dir := range directions {
		candidates, err := s.FindCandidates(ctx, event, dir)
		if err != nil {
			return nil, false, err
		}
		sortByTimeProximity(candidates, event.CreatedAt)
		for i := range candidates {
			counterpart := &candidates[i]
			doc, err := s.pair(ctx, event, counterpart, dir)
			if err != nil {
				if errors.Is(err, weighing.ErrAlreadyMatched) {
					s.log.Warn().Str("event_id", event.ID.String()).
						Str("counterpart_id", counterpart.ID.String()).
						Msg("candidate claimed by concurrent match, trying next")
					continue
				}
				return nil, false, err
			}
			return doc, true, nil
		}
	}
	return nil, false, nil
}

// ManualMatch pairs two events picked by an operator. Compatibility is
// re-validated at call time, never trusted from a stale candidate list: the
// automatic path may have claimed either event in the meantime. Unlike
// AutoMatch, the plate format is not re-checked here.
func (s *WeighingService) ManualMatch(ctx context.Context, eventID, counterpartID uuid.UUID, direction weighing.Direction) (*weighing.ShipmentDocument, error) {
	if eventID == counterpartID {
		return nil, fmt.Errorf("%w: an event cannot be paired with itself", ErrInvalidInput)
	}
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, weighing.ErrNotFound) {
			return nil, fmt.Errorf("%w: event %s", ErrNotFound, eventID)
		}
		return nil, err
	}
	counterpart, err := s.store.GetEvent(ctx, counterpartID)
	if err != nil {
		if errors.Is(err, weighing.ErrNotFound) {
			return nil, fmt.Errorf("%w: event %s", ErrNotFound, counterpartID)
		}
		return nil, err
	}

	if err := s.checkPairable(event, counterpart, direction); err != nil {
		return nil, err
	}

	doc, err := s.pair(ctx, event, counterpart, direction)
	if err != nil {
		if errors.Is(err, weighing.ErrAlreadyMatched) {
			return nil, fmt.Errorf("%w: one of the events was matched concurrently", ErrCannotPair)
		}
		return nil, err
	}
	return doc, nil
}

// checkPairable is the manual-path compatibility predicate: both events
// unmatched and not voided, same plate, within the pairing interval, and the
// counterpart on the right side of the weight relationship for the direction.
func (s *WeighingService) checkPairable(event, counterpart *weighing.WeighingEvent, direction weighing.Direction) error {
	if event.Matched() || counterpart.Matched() {
		return fmt.Errorf("%w: event already matched", ErrCannotPair)
	}
	if event.Voided || counterpart.Voided {
		return fmt.Errorf("%w: event is voided", ErrCannotPair)
	}
	if event.Plate != counterpart.Plate {
		return fmt.Errorf("%w: plate numbers differ", ErrCannotPair)
	}
	interval := event.CreatedAt.Sub(counterpart.CreatedAt)
	if interval < 0 {
		interval = -interval
	}
	if interval > s.cfg.MaxInterval {
		return fmt.Errorf("%w: events are %s apart, limit is %s", ErrCannotPair, interval, s.cfg.MaxInterval)
	}
	if !weightCompatible(counterpart, event, direction, s.cfg.MinWeightDelta) {
		return fmt.Errorf("%w: weight difference does not satisfy direction %s", ErrCannotPair, direction)
	}
	return nil
}

// pair synthesizes the shipment document and marks both events matched in a
// single store transaction. The heavier event becomes the Join leg for
// Receiving and the Out leg for Sending; the roles are derived strictly from
// the weight comparison, never from time order. Entry and exit timestamps
// follow the legs.
func (s *WeighingService) pair(ctx context.Context, event, counterpart *weighing.WeighingEvent, direction weighing.Direction) (*weighing.ShipmentDocument, error) {
	heavier, lighter := event, counterpart
	if counterpart.Weight.GreaterThan(event.Weight) {
		heavier, lighter = counterpart, event
	}

	join, out := heavier, lighter
	if direction == weighing.DirectionSending {
		join, out = lighter, heavier
	}

	if join.ID == uuid.Nil || out.ID == uuid.Nil {
		// Matching invariant bypassed upstream; this is a programming error,
		// not a recoverable no-match.
		return nil, fmt.Errorf("pairing invariant violated: leg without identity (join=%s out=%s)", join.ID, out.ID)
	}

	doc := &weighing.ShipmentDocument{
		ID:          uuid.New(),
		Plate:       event.Plate,
		Direction:   direction,
		JoinEventID: join.ID,
		OutEventID:  out.ID,
		EntryTime:   join.CreatedAt,
		ExitTime:    out.CreatedAt,
		GrossWeight: heavier.Weight,
		TareWeight:  lighter.Weight,
		NetWeight:   heavier.Weight.Sub(lighter.Weight),
		Status:      weighing.StatusCompleted,
		CreatedAt:   time.Now(),
	}

	if err := s.store.PairEvents(ctx, doc); err != nil {
		return nil, err
	}

	docID := doc.ID
	event.CounterpartID, event.DocumentID = &counterpart.ID, &docID
	counterpart.CounterpartID, counterpart.DocumentID = &event.ID, &docID

	s.log.Info().
		Str("document_id", doc.ID.String()).
		Str("join_event_id", join.ID.String()).
		Str("out_event_id", out.ID.String()).
		Str("plate", doc.Plate).
		Str("direction", string(direction)).
		Str("net_weight", doc.NetWeight.String()).
		Msg("shipment document created")
	return doc, nil
}

func (s *WeighingService) directionOrder(known *weighing.Direction) []weighing.Direction {
	if known != nil {
		return []weighing.Direction{*known}
	}
	if s.cfg.ReceivingFirst {
		return []weighing.Direction{weighing.DirectionReceiving, weighing.DirectionSending}
	}
	return []weighing.Direction{weighing.DirectionSending, weighing.DirectionReceiving}
}

// weightCompatible reports whether candidate can be the counterpart of event
// for the direction: for Receiving the candidate must outweigh the event by
// more than minDelta, for Sending the reverse.
func weightCompatible(candidate, event *weighing.WeighingEvent, direction weighing.Direction, minDelta decimal.Decimal) bool {
	switch direction {
	case weighing.DirectionReceiving:
		return candidate.Weight.Sub(event.Weight).GreaterThan(minDelta)
	case weighing.DirectionSending:
		return event.Weight.Sub(candidate.Weight).GreaterThan(minDelta)
	default:
		return false
	}
}

func sortByTimeProximity(candidates []weighing.WeighingEvent, at time.Time) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return absDuration(at.Sub(candidates[i].CreatedAt)) < absDuration(at.Sub(candidates[j].CreatedAt))
	})
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
