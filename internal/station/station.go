package station

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"weighbridge-service/internal/config"
	"weighbridge-service/internal/domain/weighing"
	"weighbridge-service/internal/utils"
	"weighbridge-service/internal/worker"
)

// EventRecorder is the collaborator a station hands stabilization signals to.
// Implementations persist the weighing event, capture photos and run the
// automatic matcher; all of it outside the station lock.
type EventRecorder interface {
	RecordStabilized(ctx context.Context, weight decimal.Decimal, plate string) (uuid.UUID, error)
	UpdateEventPlate(ctx context.Context, id uuid.UUID, plate string) error
	CaptureUnstableFlow(ctx context.Context)
}

// Station owns the stability detector for one scale platform. Every mutation
// of detector state, the sample window and the plate vote cache happens under
// one exclusive lock, so overlapping weight notifications can never interleave
// a transition. I/O triggered by a transition is submitted to the worker pool
// and observed only through logs.
type Station struct {
	cfg           config.StationConfig
	expectedCount int

	mu     sync.Mutex
	state  detectorState
	window *sampleWindow
	votes  *plateVoteCache

	// Per-cycle bookkeeping for the late plate re-evaluation.
	cycleSeq      uint64
	cycleEventID  *uuid.UUID
	selectedPlate string
	selectedCount int
	pendingPlate  string

	recorder  EventRecorder
	pool      *worker.Pool
	broadcast *statusBroadcaster
	log       zerolog.Logger
}

func New(cfg config.StationConfig, recorder EventRecorder, pool *worker.Pool, log zerolog.Logger) *Station {
	expected := int(cfg.StabilityWindow / cfg.SampleInterval)
	return &Station{
		cfg:           cfg,
		expectedCount: expected,
		state:         newDetectorState(),
		window:        newSampleWindow(cfg.StabilityWindow, expected),
		votes:         newPlateVoteCache(),
		recorder:      recorder,
		pool:          pool,
		broadcast:     newStatusBroadcaster(log),
		log:           log,
	}
}

// Push feeds one scale sample through the detector and returns the phase
// after the transition. Samples must arrive in timestamp order.
func (s *Station) Push(sample weighing.Sample) weighing.StationPhase {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state.phase
	s.window.add(sample)
	in := reduceInput{
		sample:        sample,
		window:        s.window.stats(sample.At),
		expectedCount: s.expectedCount,
	}
	next, effects := reduce(s.state, in, s.cfg)
	s.state = next

	for _, eff := range effects {
		s.applyEffect(eff, sample)
	}

	if prev != next.phase {
		s.log.Info().
			Str("from", string(prev)).
			Str("to", string(next.phase)).
			Str("weight", sample.Weight.String()).
			Msg("station phase changed")
		// Publishing under the lock keeps changes in transition order;
		// subscriber sends never block.
		s.broadcast.Publish(weighing.StatusChange{
			From:   prev,
			To:     next.phase,
			Weight: sample.Weight,
			At:     sample.At,
		})
	}
	return next.phase
}

func (s *Station) applyEffect(eff effect, sample weighing.Sample) {
	switch eff {
	case effectCycleStart:
		s.window.reset()
		s.window.add(sample)
		s.votes.clear()
		s.cycleSeq++
		s.cycleEventID = nil
		s.selectedPlate = ""
		s.selectedCount = 0
		s.pendingPlate = ""

	case effectUnstableFlow:
		s.pool.Submit(worker.Task{
			Name: "unstable-flow-capture",
			Run: func(ctx context.Context) error {
				s.recorder.CaptureUnstableFlow(ctx)
				return nil
			},
		})

	case effectRecordEvent:
		plate, count, _ := s.votes.bestGuess()
		s.selectedPlate = plate
		s.selectedCount = count
		seq := s.cycleSeq
		weight := s.state.stabilizedWeight
		s.pool.Submit(worker.Task{
			Name: "record-weighing-event",
			Run: func(ctx context.Context) error {
				id, err := s.recorder.RecordStabilized(ctx, weight, plate)
				if err != nil {
					return err
				}
				s.noteRecorded(seq, id)
				return nil
			},
		})

	case effectPlateReview:
		s.reviewPlateLocked()

	case effectCycleEnd:
		s.votes.clear()
		s.cycleEventID = nil
	}
}

// reviewPlateLocked runs at the stabilized->off-scale boundary: recognition
// results kept arriving after the event was recorded, so the best guess may
// have improved. The guess is replaced only when the new leader's count
// strictly exceeds the one selected at stabilization.
func (s *Station) reviewPlateLocked() {
	plate, count, ok := s.votes.bestGuess()
	if !ok || count <= s.selectedCount || plate == s.selectedPlate {
		return
	}
	if s.cycleEventID == nil {
		// The record task has not reported the event id yet; noteRecorded
		// applies the revision once it does.
		s.pendingPlate = plate
		return
	}
	s.submitPlateUpdate(*s.cycleEventID, plate)
}

func (s *Station) submitPlateUpdate(id uuid.UUID, plate string) {
	s.pool.Submit(worker.Task{
		Name: "revise-event-plate",
		Run: func(ctx context.Context) error {
			return s.recorder.UpdateEventPlate(ctx, id, plate)
		},
	})
}

// noteRecorded stores the persisted event id for this cycle so a later plate
// review can address it. A stale seq means a new cycle already began; the id
// is dropped.
func (s *Station) noteRecorded(seq uint64, id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.cycleSeq {
		s.log.Debug().Str("event_id", id.String()).Msg("event recorded after cycle ended")
		return
	}
	s.cycleEventID = &id
	if s.pendingPlate != "" {
		s.submitPlateUpdate(id, s.pendingPlate)
		s.pendingPlate = ""
	}
}

// ObservePlate records one recognition result. It is a no-op unless the
// detector is waiting for stability or stabilized; duplicates and conflicting
// reads are expected and simply vote.
func (s *Station) ObservePlate(raw string) {
	plate := utils.NormalizePlate(raw)
	if plate == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state.phase {
	case weighing.PhaseWaitingForStability, weighing.PhaseWeightStabilized:
		s.votes.observe(plate, time.Now())
	}
}

// Status returns the current phase, the last observed weight and the current
// cycle's leading plate guess with its recognition count and last-seen time.
func (s *Station) Status() weighing.StationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := weighing.StationStatus{
		Phase:  s.state.phase,
		Weight: s.state.lastWeight,
	}
	if plate, count, ok := s.votes.bestGuess(); ok {
		seen := s.votes.seenAt(plate)
		status.PlateGuess, status.PlateVotes, status.PlateSeenAt = plate, count, &seen
	}
	return status
}

// Subscribe registers a status-change listener; see statusBroadcaster.
func (s *Station) Subscribe() (<-chan weighing.StatusChange, func()) {
	return s.broadcast.Subscribe()
}
