// SPDX-License-Identifier: MIT
package engine

import (
	"errors"
	"testing"
)

func TestReadWriteSteadyState(t *testing.T) {
	// Four period completions across both channels, no drift, no delay:
	// corrections stay zero and nothing resets.
	rig := newDuplexRig(48000)

	if err := rig.eng.ReadWrite(1024, 4, true); err != nil {
		t.Fatalf("ReadWrite failed: %v", err)
	}
	if got := len(rig.rec.periods); got != 4 {
		t.Errorf("completed periods = %d, want 4", got)
	}
	if got := rig.eng.inCorrection.Correction(); got != 0 {
		t.Errorf("in correction = %d, want 0", got)
	}
	if got := rig.eng.outCorrection.Correction(); got != 0 {
		t.Errorf("out correction = %d, want 0", got)
	}
	if got := len(rig.rec.gapResets); got != 0 {
		t.Errorf("gap resets = %d, want 0", got)
	}
	if got := len(rig.rec.lateWakeups); got != 0 {
		t.Errorf("late wakeups = %d, want 0", got)
	}
	// Teardown unmapped both channels.
	if rig.in.mapped || rig.out.mapped {
		t.Error("channels still mapped after completion")
	}
}

func TestReadWriteBalancesStayZero(t *testing.T) {
	rig := newDuplexRig(48000)
	if err := rig.eng.ReadWrite(1024, 8, true); err != nil {
		t.Fatalf("ReadWrite failed: %v", err)
	}
	prevSync := int64(0)
	for _, s := range rig.rec.periods {
		if s.Balance != 0 {
			t.Errorf("%s period at %d has balance %d, want 0",
				s.Channel, s.SyncFrames, s.Balance)
		}
		if s.SyncFrames < prevSync {
			t.Errorf("sync frames went backwards: %d after %d", s.SyncFrames, prevSync)
		}
		prevSync = s.SyncFrames
	}
}

func TestReadWriteZeroRepetitions(t *testing.T) {
	// Initialization runs and the loop exits immediately.
	rig := newDuplexRig(48000)
	if err := rig.eng.ReadWrite(1024, 0, true); err != nil {
		t.Fatalf("ReadWrite failed: %v", err)
	}
	if !rig.in.armed || !rig.out.armed {
		t.Error("channels not armed during initialization")
	}
	if got := len(rig.rec.periods); got != 0 {
		t.Errorf("completed periods = %d, want 0", got)
	}
}

func TestReadWritePeriodEqualsStepping(t *testing.T) {
	// The smallest legal period still makes progress every iteration.
	rig := newDuplexRig(48000)
	if err := rig.eng.ReadWrite(16, 8, true); err != nil {
		t.Fatalf("ReadWrite failed: %v", err)
	}
	if got := len(rig.rec.periods); got != 8 {
		t.Errorf("completed periods = %d, want 8", got)
	}
}

func TestReadWriteSimulatedLateWakeup(t *testing.T) {
	// The injected 8x1024 frame delay on the 7th block forces exactly
	// one schedule reset, and the loop still completes every repetition.
	rig := newDuplexRig(48000, WithSimulatedLateWakeups())

	if err := rig.eng.ReadWrite(1024, 16, true); err != nil {
		t.Fatalf("ReadWrite failed: %v", err)
	}
	if got := len(rig.rec.periods); got != 16 {
		t.Errorf("completed periods = %d, want 16", got)
	}
	if got := len(rig.rec.gapResets); got != 1 {
		t.Errorf("gap resets = %d, want 1", got)
	}
	if got := len(rig.rec.lateWakeups); got != 1 {
		t.Errorf("late wakeups = %d, want 1", got)
	}
	if rig.rec.gapResets[0] <= gapLimit {
		t.Errorf("gap reset of %d not above the limit", rig.rec.gapResets[0])
	}
	// Recovery: the completions after the reset settle back onto the
	// schedule with bounded corrections.
	last := rig.rec.periods[len(rig.rec.periods)-1]
	if last.Correction > 128 || last.Correction < -128 {
		t.Errorf("final correction %d not bounded after recovery", last.Correction)
	}
}

func TestReadWriteConfigurationErrors(t *testing.T) {
	tests := []struct {
		desc string
		prep func(*duplexRig)
	}{
		{"In channel not recording", func(r *duplexRig) {
			r.in.recording = false
		}},
		{"Out channel not playback", func(r *duplexRig) {
			r.out.recording = true
		}},
		{"Sample rate mismatch", func(r *duplexRig) {
			r.in.rate = 44100
		}},
		{"Stepping mismatch", func(r *duplexRig) {
			r.out.stepping = 32
		}},
		{"Memory map failure", func(r *duplexRig) {
			r.in.failMap = true
		}},
		{"Zero period", nil},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			rig := newDuplexRig(48000)
			period := uint(1024)
			if tt.prep != nil {
				tt.prep(rig)
			} else {
				period = 0
			}
			err := rig.eng.ReadWrite(period, 4, true)
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("error = %v, want ErrConfig", err)
			}
			// Verification precedes allocation: no buffer was enqueued
			// on either channel.
			if rig.eng.in.front != nil || rig.eng.out.front != nil {
				t.Error("buffers enqueued despite failed verification")
			}
		})
	}
}

func TestReadWriteMemoryMapSkipped(t *testing.T) {
	// Channels that cannot map are run unmapped without failing.
	rig := newDuplexRig(48000)
	rig.in.canMap = false
	rig.in.failMap = true

	if err := rig.eng.ReadWrite(1024, 2, true); err != nil {
		t.Fatalf("ReadWrite failed: %v", err)
	}

	// And the toggle disables mapping entirely.
	rig = newDuplexRig(48000)
	if err := rig.eng.ReadWrite(1024, 2, false); err != nil {
		t.Fatalf("ReadWrite without mmap failed: %v", err)
	}
	if rig.in.mapped || rig.out.mapped {
		t.Error("channels mapped with memory mapping disabled")
	}
}

func TestReadWriteDeviceFailureAborts(t *testing.T) {
	rig := newDuplexRig(48000)
	rig.out.failTransfer = true
	err := rig.eng.ReadWrite(1024, 4, true)
	if !errors.Is(err, ErrDevice) {
		t.Fatalf("error = %v, want ErrDevice", err)
	}

	rig = newDuplexRig(48000)
	rig.in.failArm = true
	if err := rig.eng.ReadWrite(1024, 4, true); !errors.Is(err, ErrDevice) {
		t.Fatalf("error = %v, want ErrDevice", err)
	}
}

func TestReadWriteClockFailureAborts(t *testing.T) {
	rig := newDuplexRig(48000)
	rig.clock.failInit = true
	if err := rig.eng.ReadWrite(1024, 4, true); !errors.Is(err, ErrClock) {
		t.Fatalf("init error = %v, want ErrClock", err)
	}

	rig = newDuplexRig(48000)
	rig.clock.failSleep = true
	if err := rig.eng.ReadWrite(1024, 4, true); !errors.Is(err, ErrClock) {
		t.Fatalf("sleep error = %v, want ErrClock", err)
	}
}

func TestReadWriteSchedulerOvershoot(t *testing.T) {
	// A constant overshoot below one stepping never triggers catch-up;
	// a larger one advances sync frames in stepping multiples and the
	// loop still completes.
	rig := newDuplexRig(48000)
	rig.clock.overshoot = 8
	if err := rig.eng.ReadWrite(1024, 4, true); err != nil {
		t.Fatalf("ReadWrite with small overshoot failed: %v", err)
	}
	if got := len(rig.rec.lateWakeups); got != 0 {
		t.Errorf("late wakeups with sub-stepping overshoot = %d, want 0", got)
	}

	rig = newDuplexRig(48000)
	rig.clock.overshoot = 100
	if err := rig.eng.ReadWrite(1024, 8, true); err != nil {
		t.Fatalf("ReadWrite with large overshoot failed: %v", err)
	}
	if got := len(rig.rec.lateWakeups); got == 0 {
		t.Error("no late wakeups recorded despite overshoot beyond stepping")
	}
	if got := len(rig.rec.gapResets); got != 0 {
		t.Errorf("gap resets = %d with bounded overshoot, want 0", got)
	}
	if got := len(rig.rec.periods); got != 8 {
		t.Errorf("completed periods = %d, want 8", got)
	}
}

func TestReadWriteClose(t *testing.T) {
	rig := newDuplexRig(48000)
	rig.eng.Close()
	if !rig.in.closed || !rig.out.closed {
		t.Error("Close did not close both channels")
	}
}
