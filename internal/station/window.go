package station

import (
	"time"

	"github.com/shopspring/decimal"

	"weighbridge-service/internal/domain/weighing"
)

// sampleWindow keeps recent scale samples for the trailing stability check.
// Samples older than the span are pruned lazily, only once the buffer grows
// past pruneAbove, so the hot path stays a plain append. Pruning retains
// everything still inside [now-span, now].
type sampleWindow struct {
	samples    []weighing.Sample
	span       time.Duration
	pruneAbove int
}

func newSampleWindow(span time.Duration, expectedCount int) *sampleWindow {
	pruneAbove := expectedCount * 4
	if pruneAbove < 64 {
		pruneAbove = 64
	}
	return &sampleWindow{
		samples:    make([]weighing.Sample, 0, pruneAbove),
		span:       span,
		pruneAbove: pruneAbove,
	}
}

func (w *sampleWindow) add(s weighing.Sample) {
	w.samples = append(w.samples, s)
	if len(w.samples) > w.pruneAbove {
		w.prune(s.At)
	}
}

func (w *sampleWindow) reset() {
	w.samples = w.samples[:0]
}

// prune drops samples timestamped before now-span. Samples arrive in order,
// so a single scan for the cut point suffices.
func (w *sampleWindow) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	cut := 0
	for cut < len(w.samples) && w.samples[cut].At.Before(cutoff) {
		cut++
	}
	if cut > 0 {
		w.samples = append(w.samples[:0], w.samples[cut:]...)
	}
}

// windowStats summarizes the samples inside the trailing span at time now.
type windowStats struct {
	count  int
	spread decimal.Decimal // max - min over in-window samples
	latest weighing.Sample // most recent in-window sample
}

func (w *sampleWindow) stats(now time.Time) windowStats {
	cutoff := now.Add(-w.span)
	var st windowStats
	var min, max decimal.Decimal
	for _, s := range w.samples {
		if s.At.Before(cutoff) || s.At.After(now) {
			continue
		}
		if st.count == 0 {
			min, max = s.Weight, s.Weight
		} else {
			if s.Weight.LessThan(min) {
				min = s.Weight
			}
			if s.Weight.GreaterThan(max) {
				max = s.Weight
			}
		}
		st.latest = s
		st.count++
	}
	if st.count > 0 {
		st.spread = max.Sub(min)
	}
	return st
}
