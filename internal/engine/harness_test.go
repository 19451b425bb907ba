// SPDX-License-Identifier: MIT
package engine

import "time"

// fakeDevice scripts the device side of the loop: its hardware frame
// pointer is driven by the fake clock, like DMA progressing while the
// control thread sleeps.
type fakeDevice struct {
	recording bool
	rate      uint
	frameSize uint
	stepping  uint

	pos         int64
	posOK       bool
	transferred int64
	writeAhead  int64 // playback scheduling headroom

	canMap bool
	mapped bool
	armed  bool
	start  bool
	closed bool

	failMap      bool
	failTransfer bool
	failArm      bool
}

func newFakeDevice(recording bool, rate uint) *fakeDevice {
	return &fakeDevice{
		recording:  recording,
		rate:       rate,
		frameSize:  4,
		stepping:   16,
		posOK:      true,
		writeAhead: 8192,
		canMap:     true,
	}
}

func (d *fakeDevice) Recording() bool  { return d.recording }
func (d *fakeDevice) Playback() bool   { return !d.recording }
func (d *fakeDevice) SampleRate() uint { return d.rate }
func (d *fakeDevice) FrameSize() uint  { return d.frameSize }
func (d *fakeDevice) Stepping() uint   { return d.stepping }

func (d *fakeDevice) CanMemoryMap() bool { return d.canMap }

func (d *fakeDevice) MemoryMap() bool {
	if d.failMap {
		return false
	}
	d.mapped = true
	return true
}

func (d *fakeDevice) MemoryUnmap() { d.mapped = false }

func (d *fakeDevice) AddToSyncGroup(id int) bool {
	if d.failArm {
		return false
	}
	d.armed = true
	return true
}

func (d *fakeDevice) StartSyncGroup(id int) bool {
	d.start = true
	return true
}

func (d *fakeDevice) Position() (int64, bool) { return d.pos, d.posOK }

func (d *fakeDevice) Transferable() int64 {
	avail := d.pos - d.transferred
	if !d.recording {
		avail += d.writeAhead
	}
	return max(avail, 0)
}

func (d *fakeDevice) Transfer(buf *Buffer) (int64, bool) {
	if d.failTransfer || d.closed {
		return 0, false
	}
	n := min(d.Transferable(), buf.Remaining())
	if n <= 0 {
		return 0, true
	}
	d.transferred += n
	buf.Advance(n)
	return n, true
}

func (d *fakeDevice) Close() { d.closed = true }

// advanceTo moves the hardware pointer to the clock instant, truncated
// to the stepping granularity.
func (d *fakeDevice) advanceTo(now int64) {
	d.pos = now - now%int64(d.stepping)
}

// fakeClock advances instantly on Sleep and pushes the scripted devices
// forward as it goes.
type fakeClock struct {
	rate      uint
	now       int64
	overshoot int64 // extra frames on every sleep return
	sleeps    []int64
	devices   []*fakeDevice
	failInit  bool
	failSleep bool
}

func (c *fakeClock) Init(sampleRate uint) error {
	if c.failInit {
		return ErrClock
	}
	c.rate = sampleRate
	c.advance(0)
	return nil
}

func (c *fakeClock) Now() (int64, error) { return c.now, nil }

func (c *fakeClock) Sleep(deadline int64) error {
	if c.failSleep {
		return ErrClock
	}
	c.sleeps = append(c.sleeps, deadline)
	if deadline > c.now {
		c.advance(deadline + c.overshoot)
	}
	return nil
}

func (c *fakeClock) FramesToTime(frames int64) time.Duration {
	if c.rate == 0 {
		return 0
	}
	return time.Duration(frames * int64(time.Second) / int64(c.rate))
}

func (c *fakeClock) advance(now int64) {
	c.now = now
	for _, d := range c.devices {
		d.advanceTo(now)
	}
}

// recorder collects observer events for assertions.
type recorder struct {
	periods     []PeriodStats
	lateWakeups []int64
	gapResets   []int64
}

func (r *recorder) PeriodFinished(s PeriodStats) { r.periods = append(r.periods, s) }
func (r *recorder) LateWakeup(frames int64)      { r.lateWakeups = append(r.lateWakeups, frames) }
func (r *recorder) GapReset(gap int64)           { r.gapResets = append(r.gapResets, gap) }

// duplexRig bundles a full engine setup over fakes.
type duplexRig struct {
	in    *fakeDevice
	out   *fakeDevice
	clock *fakeClock
	rec   *recorder
	eng   *Engine
}

func newDuplexRig(rate uint, opts ...Option) *duplexRig {
	in := newFakeDevice(true, rate)
	out := newFakeDevice(false, rate)
	clock := &fakeClock{devices: []*fakeDevice{in, out}}
	rec := &recorder{}
	opts = append(opts, WithObserver(rec))
	return &duplexRig{
		in:    in,
		out:   out,
		clock: clock,
		rec:   rec,
		eng:   New(in, out, clock, opts...),
	}
}
