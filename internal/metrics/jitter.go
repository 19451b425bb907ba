// SPDX-License-Identifier: MIT
package metrics

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"sndsync/internal/engine"
)

// Tracker accumulates loop diagnostics over one run: wakeup lateness,
// per-channel balance at completion, and reset counts. It implements the
// engine's Observer; all methods run on the loop thread and only append
// to slices.
type Tracker struct {
	lateness  []float64
	balances  map[string][]float64
	periods   int
	gapResets int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{balances: make(map[string][]float64)}
}

func (t *Tracker) PeriodFinished(s engine.PeriodStats) {
	t.periods++
	t.balances[s.Channel] = append(t.balances[s.Channel], float64(s.Balance))
}

func (t *Tracker) LateWakeup(frames int64) {
	t.lateness = append(t.lateness, float64(frames))
}

func (t *Tracker) GapReset(int64) {
	t.gapResets++
}

var _ engine.Observer = (*Tracker)(nil)

// Summary condenses one run's samples.
type Summary struct {
	Periods     int
	GapResets   int
	LateWakeups int

	// Lateness in frames over the wakeups that missed their deadline.
	LateMean   float64
	LateStdDev float64
	LateP99    float64

	// Balance in frames, per channel, at period completion.
	BalanceMean   map[string]float64
	BalanceStdDev map[string]float64
}

// Summarize computes the run statistics.
func (t *Tracker) Summarize() Summary {
	s := Summary{
		Periods:       t.periods,
		GapResets:     t.gapResets,
		LateWakeups:   len(t.lateness),
		BalanceMean:   make(map[string]float64),
		BalanceStdDev: make(map[string]float64),
	}
	if len(t.lateness) > 0 {
		s.LateMean = stat.Mean(t.lateness, nil)
		s.LateStdDev = stdDev(t.lateness)
		sorted := append([]float64(nil), t.lateness...)
		sort.Float64s(sorted)
		s.LateP99 = stat.Quantile(0.99, stat.Empirical, sorted, nil)
	}
	for channel, samples := range t.balances {
		s.BalanceMean[channel] = stat.Mean(samples, nil)
		s.BalanceStdDev[channel] = stdDev(samples)
	}
	return s
}

// stdDev is the sample standard deviation, zero for fewer than two
// samples instead of NaN.
func stdDev(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	return stat.StdDev(samples, nil)
}
