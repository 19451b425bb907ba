// SPDX-License-Identifier: MIT
package engine

import (
	"fmt"
	"time"
)

// Clock is the engine's time base, expressed in frames at a fixed sample
// rate. The loop driver only ever talks to this interface, which lets the
// tests substitute a scripted clock for the monotonic one.
type Clock interface {
	// Init establishes the frame origin so that Now() at the instant of
	// the call returns 0. Fails if the time source is unusable.
	Init(sampleRate uint) error
	// Now returns frames elapsed since Init. Never decreases.
	Now() (int64, error)
	// Sleep blocks until Now() has reached deadline frames. May overshoot
	// by a scheduler quantum.
	Sleep(deadline int64) error
	// FramesToTime converts a frame count to wall-clock duration.
	FramesToTime(frames int64) time.Duration
}

// FrameClock is the production Clock, backed by the runtime's monotonic
// clock. A frame origin is captured at Init and all queries are relative
// to it.
type FrameClock struct {
	rate   uint
	origin time.Time
}

func (c *FrameClock) Init(sampleRate uint) error {
	if sampleRate == 0 {
		return fmt.Errorf("%w: zero sample rate", ErrClock)
	}
	c.rate = sampleRate
	c.origin = time.Now()
	return nil
}

func (c *FrameClock) Now() (int64, error) {
	if c.rate == 0 {
		return 0, fmt.Errorf("%w: clock not initialized", ErrClock)
	}
	return framesOf(time.Since(c.origin), c.rate), nil
}

func (c *FrameClock) Sleep(deadline int64) error {
	if c.rate == 0 {
		return fmt.Errorf("%w: clock not initialized", ErrClock)
	}
	target := c.origin.Add(c.FramesToTime(deadline))
	if d := time.Until(target); d > 0 {
		time.Sleep(d)
	}
	return nil
}

func (c *FrameClock) FramesToTime(frames int64) time.Duration {
	if c.rate == 0 {
		return 0
	}
	rate := int64(c.rate)
	// Split to keep frames*1e9 from overflowing on long runs.
	sec := frames / rate
	rem := frames % rate
	return time.Duration(sec)*time.Second + time.Duration(rem*int64(time.Second)/rate)
}

// framesOf converts an elapsed duration to frames, truncating toward zero.
func framesOf(d time.Duration, rate uint) int64 {
	ns := d.Nanoseconds()
	r := int64(rate)
	sec := ns / int64(time.Second)
	rem := ns % int64(time.Second)
	return sec*r + rem*r/int64(time.Second)
}
