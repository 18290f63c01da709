package station

import (
	"github.com/shopspring/decimal"

	"weighbridge-service/internal/config"
	"weighbridge-service/internal/domain/weighing"
)

// detectorState is the complete per-cycle state of the stability detector.
// It is a plain value: the reducer below is a pure function over it, and the
// Station applies the result under its lock.
type detectorState struct {
	phase            weighing.StationPhase
	lastWeight       decimal.Decimal
	stabilizedWeight decimal.Decimal
	eventCreated     bool
}

func newDetectorState() detectorState {
	return detectorState{phase: weighing.PhaseOffScale}
}

// effect names a side action the Station must dispatch after applying a
// transition. Effects never run inside the reducer.
type effect int

const (
	effectCycleStart     effect = iota // vehicle entered: reset window and vote cache
	effectUnstableFlow                 // left before stabilizing: best-effort photo capture
	effectRecordEvent                  // stabilized: capture photos and persist the event
	effectPlateReview                  // departing after stabilization: re-check the vote cache
	effectCycleEnd                     // back off-scale: clear per-cycle state
)

// reduceInput carries one sample plus the window summary evaluated at the
// sample's timestamp.
type reduceInput struct {
	sample        weighing.Sample
	window        windowStats
	expectedCount int
}

// reduce advances the detector lifecycle for one sample:
//
//	OffScale -> WaitingForStability -> WeightStabilized -> WaitingForDeparture -> OffScale
//
// Stability requires the window spread to stay under the tolerance AND the
// window to hold at least minWindowFill of the expected sample count, so a
// freshly restarted station cannot judge "stable" on two samples.
func reduce(st detectorState, in reduceInput, cfg config.StationConfig) (detectorState, []effect) {
	w := in.sample.Weight
	st.lastWeight = w
	aboveThreshold := w.GreaterThan(cfg.MinWeight)

	switch st.phase {
	case weighing.PhaseOffScale:
		if aboveThreshold {
			st.phase = weighing.PhaseWaitingForStability
			st.eventCreated = false
			st.stabilizedWeight = decimal.Zero
			return st, []effect{effectCycleStart}
		}

	case weighing.PhaseWaitingForStability:
		if !aboveThreshold {
			st.phase = weighing.PhaseOffScale
			return st, []effect{effectUnstableFlow, effectCycleEnd}
		}
		if windowFilled(in, cfg) && in.window.spread.LessThan(cfg.StabilityTolerance) {
			st.phase = weighing.PhaseWeightStabilized
			// Snapshot the newest in-window sample, not whatever value
			// happened to trigger this check.
			st.stabilizedWeight = in.window.latest.Weight
			if !st.eventCreated {
				st.eventCreated = true
				return st, []effect{effectRecordEvent}
			}
		}

	case weighing.PhaseWeightStabilized:
		if !aboveThreshold {
			st.phase = weighing.PhaseOffScale
			return st, []effect{effectPlateReview, effectCycleEnd}
		}
		if st.eventCreated && w.Sub(st.stabilizedWeight).Abs().GreaterThanOrEqual(cfg.StabilityTolerance) {
			// Second weighing phase on the same platform: the vehicle is
			// moving or being loaded but has not left the scale.
			st.phase = weighing.PhaseWaitingForDeparture
		}

	case weighing.PhaseWaitingForDeparture:
		if !aboveThreshold {
			st.phase = weighing.PhaseOffScale
			return st, []effect{effectCycleEnd}
		}
	}

	return st, nil
}

func windowFilled(in reduceInput, cfg config.StationConfig) bool {
	if in.expectedCount <= 0 {
		return in.window.count > 1
	}
	need := int(float64(in.expectedCount) * cfg.MinWindowFill)
	if need < 2 {
		need = 2
	}
	return in.window.count >= need
}
