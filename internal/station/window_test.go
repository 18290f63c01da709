package station

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"weighbridge-service/internal/domain/weighing"
)

func sampleAt(t0 time.Time, offset time.Duration, weight string) weighing.Sample {
	return weighing.Sample{At: t0.Add(offset), Weight: decimal.RequireFromString(weight)}
}

func TestWindowStatsOnlyCoverTrailingSpan(t *testing.T) {
	t0 := time.Now()
	w := newSampleWindow(10*time.Second, 33)

	w.add(sampleAt(t0, 0, "5"))              // outside the window at t0+15s
	w.add(sampleAt(t0, 6*time.Second, "12")) // inside
	w.add(sampleAt(t0, 15*time.Second, "12.05"))

	st := w.stats(t0.Add(15 * time.Second))
	assert.Equal(t, 2, st.count)
	assert.True(t, st.spread.Equal(decimal.RequireFromString("0.05")), "spread was %s", st.spread)
	assert.True(t, st.latest.Weight.Equal(decimal.RequireFromString("12.05")))
}

func TestWindowLazyPruneRetainsInWindowSamples(t *testing.T) {
	t0 := time.Now()
	w := newSampleWindow(10*time.Second, 4) // pruneAbove floors at 64

	// 100 samples 300ms apart: trips the prune threshold mid-stream.
	for i := 0; i < 100; i++ {
		w.add(sampleAt(t0, time.Duration(i)*300*time.Millisecond, "12"))
	}

	last := t0.Add(99 * 300 * time.Millisecond)
	st := w.stats(last)
	// Everything inside [last-10s, last] must have survived pruning:
	// 10s / 300ms = 33 intervals, 34 samples.
	assert.Equal(t, 34, st.count)
	assert.True(t, st.spread.IsZero())
}

func TestWindowResetEmpties(t *testing.T) {
	t0 := time.Now()
	w := newSampleWindow(10*time.Second, 33)
	w.add(sampleAt(t0, 0, "3"))
	w.reset()
	assert.Equal(t, 0, w.stats(t0).count)
}
