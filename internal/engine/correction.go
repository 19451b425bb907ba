// SPDX-License-Identifier: MIT
package engine

// Correction is the drift filter for one channel. It tracks a signed
// correction parameter in frames which the driver adds to the deadline of
// the next enqueued buffer. Small drift is absorbed by a slow sub-frame
// slew driven by a moving average of the balance offset; a discrepancy
// beyond lossMax (USB packet loss, device stall) jumps the correction to
// the full offset in a single step.
type Correction struct {
	lossMax       int64
	driftMax      int64
	correction    int64
	averageOffset int64
}

// NewCorrection returns a filter with the default thresholds.
func NewCorrection() Correction {
	return Correction{lossMax: 128, driftMax: 64}
}

// SetDriftLimit sets the balance threshold for small corrections.
func (c *Correction) SetDriftLimit(driftMax int64) { c.driftMax = driftMax }

// SetLossLimit sets the hard limit above which a single rigorous
// correction is applied.
func (c *Correction) SetLossLimit(lossMax int64) { c.lossMax = lossMax }

// Correction returns the current correction parameter.
func (c *Correction) Correction() int64 { return c.correction }

// Correct folds a new balance measurement into the filter and returns
// the updated correction parameter. target is the balance of a reference
// channel, zero when correcting against the frame clock alone.
func (c *Correction) Correct(balance, target int64) int64 {
	offset := target - balance
	c.averageOffset = (c.averageOffset + offset) / 2
	if offset-c.correction < -c.lossMax || offset-c.correction > c.lossMax {
		c.correction = offset
	} else {
		c.correction += (c.averageOffset - c.correction) / (c.driftMax + 1)
	}
	return c.correction
}

// Clear resets the correction parameter, leaving the thresholds alone.
func (c *Correction) Clear() { c.correction = 0 }
