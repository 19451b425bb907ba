// SPDX-License-Identifier: MIT
/*
Package engine implements the synchronous full-duplex loop: one recording
and one playback channel advanced period by period against a shared frame
clock, with drift correction applied to buffer deadlines and hard
resynchronization after large scheduling gaps.

The package is single-threaded by design. The only suspension point is
Clock.Sleep; everything else observes device state through non-blocking
queries. Do not introduce goroutines into the loop path — the step-aligned
wakeup logic assumes one control thread.
*/
package engine

import "errors"

// Failure kinds. Every error returned out of the loop wraps exactly one
// of these; any of them aborts the run.
var (
	ErrConfig = errors.New("engine: configuration")
	ErrDevice = errors.New("engine: device")
	ErrClock  = errors.New("engine: clock")
)

// Device is the contract the engine requires of the device layer. One
// Device represents a single direction (record or playback) on a kernel
// audio device. The DoubleBuffer adds period scheduling on top and is
// what the loop driver actually holds.
type Device interface {
	// Direction affirmation.
	Recording() bool
	Playback() bool

	// Format queries, fixed for the lifetime of the run.
	SampleRate() uint
	FrameSize() uint
	// Stepping is the minimum transfer granularity in frames, the amount
	// the device cursor advances per interrupt.
	Stepping() uint

	// DMA mapping.
	CanMemoryMap() bool
	MemoryMap() bool
	MemoryUnmap()

	// Kernel-assisted synchronous start across devices.
	AddToSyncGroup(id int) bool
	StartSyncGroup(id int) bool

	// Position returns the hardware frame pointer: frames the device has
	// produced (record) or consumed (playback) since the sync group
	// started. ok is false on device error.
	Position() (pos int64, ok bool)

	// Transferable returns how many frames the device would accept right
	// now, direction dependent: captured-but-unread frames for record,
	// free schedule ahead of the consume pointer for playback.
	Transferable() int64

	// Transfer moves up to buf.Remaining() frames between the device and
	// buf, bounded by Transferable(). Returns frames moved and ok=false
	// on device error.
	Transfer(buf *Buffer) (moved int64, ok bool)

	// Close releases all device resources. Idempotent.
	Close()
}
