// SPDX-License-Identifier: MIT
package device

import (
	"time"

	"sndsync/internal/engine"
)

// loopRing is the shared byte ring connecting a loopback pair: playback
// writes land here, the recording side reads them back.
type loopRing struct {
	data      []byte
	frameSize int
}

func (r *loopRing) copyIn(at int64, p []byte) {
	off := (at * int64(r.frameSize)) % int64(len(r.data))
	n := copy(r.data[off:], p)
	copy(r.data, p[n:])
}

func (r *loopRing) copyOut(at int64, p []byte) {
	off := (at * int64(r.frameSize)) % int64(len(r.data))
	n := copy(p, r.data[off:])
	copy(p[n:], r.data)
}

// LoopbackConfig describes a simulated duplex device.
type LoopbackConfig struct {
	SampleRate uint
	FrameSize  uint
	// DriftPPM skews the simulated hardware cursor against the real
	// clock, in parts per million, to exercise the correction filter.
	DriftPPM int64
	// WriteAhead is how many frames playback may be scheduled in front
	// of the consume pointer. Defaults to 8192.
	WriteAhead int64
}

// Loopback is a simulated single-direction device. A pair created by
// NewLoopbackPair shares a byte ring and a sync-group registry, so a
// full duplex run works without hardware.
type Loopback struct {
	cfg       LoopbackConfig
	recording bool
	stepping  uint
	groups    *SyncGroups
	ring      *loopRing

	state       chanState
	mapped      bool
	origin      time.Time
	transferred int64
}

// NewLoopbackPair creates a linked record/playback pair.
func NewLoopbackPair(cfg LoopbackConfig) (in, out *Loopback) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 48000
	}
	if cfg.FrameSize == 0 {
		cfg.FrameSize = 4 // stereo S16
	}
	if cfg.WriteAhead == 0 {
		cfg.WriteAhead = 8192
	}
	groups := NewSyncGroups()
	ring := &loopRing{
		data:      make([]byte, 1<<16*int(cfg.FrameSize)),
		frameSize: int(cfg.FrameSize),
	}
	step := SteppingForRate(cfg.SampleRate)
	in = &Loopback{cfg: cfg, recording: true, stepping: step, groups: groups, ring: ring}
	out = &Loopback{cfg: cfg, recording: false, stepping: step, groups: groups, ring: ring}
	return in, out
}

func (l *Loopback) Recording() bool { return l.recording }
func (l *Loopback) Playback() bool  { return !l.recording }

func (l *Loopback) SampleRate() uint { return l.cfg.SampleRate }
func (l *Loopback) FrameSize() uint  { return l.cfg.FrameSize }
func (l *Loopback) Stepping() uint   { return l.stepping }

func (l *Loopback) CanMemoryMap() bool { return true }

func (l *Loopback) MemoryMap() bool {
	if l.state == stateClosed {
		return false
	}
	l.mapped = true
	return true
}

func (l *Loopback) MemoryUnmap() {
	l.mapped = false
	if l.state == stateRunning {
		l.state = stateUnmapped
	}
}

func (l *Loopback) AddToSyncGroup(id int) bool {
	if l.state != stateIdle {
		return false
	}
	if !l.groups.add(id, l) {
		return false
	}
	l.state = stateArmed
	return true
}

func (l *Loopback) StartSyncGroup(id int) bool {
	return l.groups.start(id)
}

func (l *Loopback) startAt(origin time.Time) bool {
	if l.state != stateArmed {
		return false
	}
	l.origin = origin
	l.state = stateRunning
	return true
}

// Position is the simulated hardware frame pointer: real elapsed time at
// the nominal rate, skewed by the configured drift, truncated to the
// stepping granularity.
func (l *Loopback) Position() (int64, bool) {
	if l.state == stateClosed {
		return 0, false
	}
	if l.state != stateRunning && l.state != stateUnmapped {
		return 0, true
	}
	ns := time.Since(l.origin).Nanoseconds()
	f := ns / int64(time.Second) * int64(l.cfg.SampleRate)
	f += ns % int64(time.Second) * int64(l.cfg.SampleRate) / int64(time.Second)
	f += f * l.cfg.DriftPPM / 1_000_000
	return f - f%int64(l.stepping), true
}

func (l *Loopback) Transferable() int64 {
	pos, ok := l.Position()
	if !ok {
		return 0
	}
	var avail int64
	if l.recording {
		avail = pos - l.transferred
	} else {
		avail = pos + l.cfg.WriteAhead - l.transferred
	}
	return max(avail, 0)
}

func (l *Loopback) Transfer(buf *engine.Buffer) (int64, bool) {
	if l.state == stateClosed {
		return 0, false
	}
	n := min(l.Transferable(), buf.Remaining())
	if n <= 0 {
		return 0, true
	}
	span := buf.Tail()[:n*int64(l.cfg.FrameSize)]
	if l.recording {
		l.ring.copyOut(l.transferred, span)
	} else {
		l.ring.copyIn(l.transferred, span)
	}
	l.transferred += n
	buf.Advance(n)
	return n, true
}

func (l *Loopback) Close() {
	l.state = stateClosed
	l.mapped = false
}

var _ engine.Device = (*Loopback)(nil)
