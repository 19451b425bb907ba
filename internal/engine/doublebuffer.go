// SPDX-License-Identifier: MIT
package engine

import (
	applog "sndsync/internal/log"
)

// slot ties a buffer to the absolute frame at which its last sample
// lands.
type slot struct {
	buf      Buffer
	endFrame int64
}

// DoubleBuffer schedules period-sized buffers in front of a Device. Up to
// two slots are held: the front slot is being transferred, the back slot
// is queued behind it so the device never runs dry while user code reacts
// to a completion. End frames strictly increase from front to back and
// across successive enqueues.
type DoubleBuffer struct {
	Device
	front *slot
	back  *slot
}

// NewDoubleBuffer wraps dev with an empty two-slot schedule.
func NewDoubleBuffer(dev Device) *DoubleBuffer {
	return &DoubleBuffer{Device: dev}
}

// SetBuffer enqueues buf with the given deadline. Fails when both slots
// are occupied or the deadline does not advance past the queued ones.
func (d *DoubleBuffer) SetBuffer(buf Buffer, endFrame int64) bool {
	switch {
	case d.front == nil:
		d.front = &slot{buf: buf, endFrame: endFrame}
	case d.back == nil:
		if endFrame <= d.front.endFrame {
			return false
		}
		d.back = &slot{buf: buf, endFrame: endFrame}
	default:
		return false
	}
	return true
}

// Finished reports whether the front slot is complete: its deadline has
// passed and the device has transferred all of its frames.
func (d *DoubleBuffer) Finished(syncFrames int64) bool {
	return d.front != nil && d.front.buf.Done() && d.front.endFrame <= syncFrames
}

// TakeBuffer dequeues the front slot and promotes back to front. Must
// only be called when Finished returned true.
func (d *DoubleBuffer) TakeBuffer() Buffer {
	buf := d.front.buf
	d.front = d.back
	d.back = nil
	return buf
}

// Balance is the channel's position relative to the loop clock. Positive
// means the device runs ahead of where the clock says it should be.
func (d *DoubleBuffer) Balance(syncFrames int64) int64 {
	pos, ok := d.Position()
	if !ok {
		return 0
	}
	return pos - syncFrames
}

// PeriodEnd returns the furthest scheduled deadline.
func (d *DoubleBuffer) PeriodEnd() int64 {
	if d.back != nil {
		return d.back.endFrame
	}
	if d.front != nil {
		return d.front.endFrame
	}
	return 0
}

// EndFrames returns the furthest scheduled deadline, the anchor used by
// ResetBuffers.
func (d *DoubleBuffer) EndFrames() int64 { return d.PeriodEnd() }

// WakeupTime returns the next frame instant at which Process needs to run
// for this channel: the front deadline, pulled in by whatever residual
// the device could transfer immediately. When the deadline trails the
// earliest instant the residual can exist (after a schedule reset), the
// fill instant wins, so the loop never spins on an unreachable deadline.
// A device whose position query fails is due immediately, so the failure
// surfaces through the next Process call.
func (d *DoubleBuffer) WakeupTime(syncFrames int64) int64 {
	if d.front == nil {
		return syncFrames
	}
	remaining := d.front.buf.Remaining()
	if remaining == 0 {
		return d.front.endFrame
	}
	if _, ok := d.Position(); !ok {
		return syncFrames
	}
	avail := d.Transferable()
	if avail >= remaining {
		return syncFrames
	}
	wake := d.front.endFrame
	if earliest := syncFrames + remaining; earliest > wake {
		wake = earliest
	}
	return wake - avail
}

// Process transfers as many frames as the device accepts right now into
// or out of the front buffer, at most one period's worth. Returns false
// on device error.
func (d *DoubleBuffer) Process(syncFrames int64) bool {
	if d.front == nil || d.front.buf.Done() {
		return true
	}
	_, ok := d.Transfer(&d.front.buf)
	return ok
}

// ResetBuffers abandons the current deadlines after a large gap and
// re-anchors the schedule so the last queued slot ends at newEndFrames.
// Transfer progress is kept: any backlog the device accumulated during
// the stall replays through the re-anchored slots, which walks the
// schedule back onto the nominal grid within two completions.
func (d *DoubleBuffer) ResetBuffers(newEndFrames int64) {
	if d.front == nil {
		return
	}
	period := d.front.buf.Frames()
	if d.back != nil {
		d.front.endFrame = newEndFrames - period
		d.back.endFrame = newEndFrames
	} else {
		d.front.endFrame = newEndFrames
	}
}

// LogState emits a debug snapshot of the schedule, used once per loop
// iteration.
func (d *DoubleBuffer) LogState(syncFrames int64) {
	if d.front == nil {
		return
	}
	dir := "out"
	if d.Recording() {
		dir = "in"
	}
	applog.Debugf("%s: sync %d end %d progress %d/%d balance %d",
		dir, syncFrames, d.front.endFrame, d.front.buf.Progress(),
		d.front.buf.Frames(), d.Balance(syncFrames))
}
