// SPDX-License-Identifier: MIT
package engine

import (
	"fmt"

	applog "sndsync/internal/log"
	"sndsync/pkg/frames"
)

// Frames the loop may fall behind the scheduled deadlines before the
// schedule is abandoned and re-anchored. Below this, drift correction
// absorbs the jitter.
const gapLimit = 1024

// PeriodSink consumes the bytes of each completed recording period.
type PeriodSink interface {
	Consume(p []byte) error
}

// PeriodSource fills the bytes of each playback period before it is
// re-enqueued.
type PeriodSource interface {
	Fill(p []byte) error
}

// PeriodStats describes one completed period, for observers.
type PeriodStats struct {
	Channel    string // "in" or "out"
	SyncFrames int64
	Balance    int64
	Correction int64
}

// Observer receives diagnostic events from the loop. Implementations
// must not block; they run on the loop thread.
type Observer interface {
	PeriodFinished(s PeriodStats)
	LateWakeup(frames int64)
	GapReset(gap int64)
}

// MultiObserver fans events out to several observers.
type MultiObserver []Observer

func (m MultiObserver) PeriodFinished(s PeriodStats) {
	for _, o := range m {
		o.PeriodFinished(s)
	}
}

func (m MultiObserver) LateWakeup(frames int64) {
	for _, o := range m {
		o.LateWakeup(frames)
	}
}

func (m MultiObserver) GapReset(gap int64) {
	for _, o := range m {
		o.GapReset(gap)
	}
}

// Engine owns the two double-buffered channels, their correction filters
// and the frame clock, and runs the period-by-period loop.
type Engine struct {
	clock Clock
	in    *DoubleBuffer
	out   *DoubleBuffer

	inCorrection  Correction
	outCorrection Correction

	syncFrames int64
	gap        int64

	sink     PeriodSink
	source   PeriodSource
	observer Observer

	// Injects 8x1024 frames of extra sleep whenever sync frames fall in
	// a 1024-frame block whose index is 7 mod 8 (one block in every
	// eight), to exercise late-wakeup recovery.
	simulateLateWakeups bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink routes completed recording periods to sink.
func WithSink(sink PeriodSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithSource fills playback periods from source instead of silence.
func WithSource(source PeriodSource) Option {
	return func(e *Engine) { e.source = source }
}

// WithObserver registers a diagnostics observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithSimulatedLateWakeups turns on the injected scheduling delays.
func WithSimulatedLateWakeups() Option {
	return func(e *Engine) { e.simulateLateWakeups = true }
}

// New builds an engine around a recording device, a playback device and
// a clock.
func New(in, out Device, clock Clock, opts ...Option) *Engine {
	e := &Engine{
		clock:         clock,
		in:            NewDoubleBuffer(in),
		out:           NewDoubleBuffer(out),
		inCorrection:  NewCorrection(),
		outCorrection: NewCorrection(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// In exposes the recording channel.
func (e *Engine) In() *DoubleBuffer { return e.in }

// Out exposes the playback channel.
func (e *Engine) Out() *DoubleBuffer { return e.out }

// Close releases both channels. Safe on every exit path.
func (e *Engine) Close() {
	e.out.Close()
	e.in.Close()
}

// ReadWrite runs the duplex loop for the given number of period
// completions, counted across both channels. Any returned error aborted
// the run; a nil return means every repetition completed.
func (e *Engine) ReadWrite(period, repetitions uint, memoryMap bool) error {
	if period == 0 {
		return fmt.Errorf("%w: zero period", ErrConfig)
	}
	if !e.in.Recording() {
		return fmt.Errorf("%w: in device not in recording mode", ErrConfig)
	}
	if !e.out.Playback() {
		return fmt.Errorf("%w: out device not in playback mode", ErrConfig)
	}
	if e.in.SampleRate() != e.out.SampleRate() {
		return fmt.Errorf("%w: recording sample rate %d vs playback %d",
			ErrConfig, e.in.SampleRate(), e.out.SampleRate())
	}
	if e.in.Stepping() != e.out.Stepping() {
		return fmt.Errorf("%w: recording stepping %d vs playback %d",
			ErrConfig, e.in.Stepping(), e.out.Stepping())
	}
	if memoryMap && e.in.CanMemoryMap() && !e.in.MemoryMap() {
		return fmt.Errorf("%w: in device not memory mapped", ErrConfig)
	}
	if memoryMap && e.out.CanMemoryMap() && !e.out.MemoryMap() {
		return fmt.Errorf("%w: out device not memory mapped", ErrConfig)
	}

	// Two byte regions per direction, one period each. The storage stays
	// put for the whole run; slots only borrow it.
	p := int64(period)
	inData := [2][]byte{
		make([]byte, period*e.in.FrameSize()),
		make([]byte, period*e.in.FrameSize()),
	}
	outData := [2][]byte{
		make([]byte, period*e.out.FrameSize()),
		make([]byte, period*e.out.FrameSize()),
	}
	inFrames := p
	if !e.in.SetBuffer(NewBuffer(inData[0], int(e.in.FrameSize())), inFrames) {
		return fmt.Errorf("%w: in buffer rejected", ErrDevice)
	}
	inFrames += p
	if !e.in.SetBuffer(NewBuffer(inData[1], int(e.in.FrameSize())), inFrames) {
		return fmt.Errorf("%w: in buffer rejected", ErrDevice)
	}
	outFrames := p
	if !e.out.SetBuffer(NewBuffer(outData[0], int(e.out.FrameSize())), outFrames) {
		return fmt.Errorf("%w: out buffer rejected", ErrDevice)
	}
	outFrames += p
	if !e.out.SetBuffer(NewBuffer(outData[1], int(e.out.FrameSize())), outFrames) {
		return fmt.Errorf("%w: out buffer rejected", ErrDevice)
	}

	e.inCorrection.SetDriftLimit(64)
	e.outCorrection.SetDriftLimit(64)

	const syncGroupID = 0
	if !e.in.AddToSyncGroup(syncGroupID) || !e.out.AddToSyncGroup(syncGroupID) {
		return fmt.Errorf("%w: sync group membership failed", ErrDevice)
	}
	if !e.in.StartSyncGroup(syncGroupID) {
		return fmt.Errorf("%w: sync group start failed", ErrDevice)
	}

	if err := e.clock.Init(e.in.SampleRate()); err != nil {
		return err
	}
	applog.Infof("Period of %d is %d ns.", period, e.clock.FramesToTime(p))
	applog.Infof("Step of %d is %d ns.", e.in.Stepping(),
		e.clock.FramesToTime(int64(e.in.Stepping())))

	var finished uint
	for finished < repetitions {
		if err := e.process(); err != nil {
			return err
		}
		if e.in.Finished(e.syncFrames) {
			balance := e.in.Balance(e.syncFrames)
			e.inCorrection.Correct(balance, 0)
			if e.syncFrames+p != inFrames {
				applog.Infof("In period finished at %d, %d frames off, balance %d, correction %d.",
					e.syncFrames, inFrames-p-e.syncFrames, balance, e.inCorrection.Correction())
			}
			buf := e.in.TakeBuffer()
			if e.sink != nil {
				if err := e.sink.Consume(buf.Bytes()); err != nil {
					applog.Errorf("In period sink: %v", err)
				}
			}
			zeroFill(buf.Bytes())
			buf.Reset()
			inFrames += p
			if !e.in.SetBuffer(buf, inFrames+e.inCorrection.Correction()) {
				return fmt.Errorf("%w: in buffer rejected", ErrDevice)
			}
			finished++
			e.notifyPeriod("in", balance, e.inCorrection.Correction())
		}
		if e.out.Finished(e.syncFrames) {
			balance := e.out.Balance(e.syncFrames)
			e.outCorrection.Correct(balance, 0)
			if e.syncFrames+p != outFrames {
				applog.Infof("Out period finished at %d, %d frames off, balance %d, correction %d.",
					e.syncFrames, outFrames-p-e.syncFrames, balance, e.outCorrection.Correction())
			}
			buf := e.out.TakeBuffer()
			buf.Reset()
			if err := e.fillPeriod(buf.Bytes()); err != nil {
				applog.Errorf("Out period source: %v", err)
			}
			outFrames += p
			if !e.out.SetBuffer(buf, outFrames+e.outCorrection.Correction()) {
				return fmt.Errorf("%w: out buffer rejected", ErrDevice)
			}
			finished++
			e.notifyPeriod("out", balance, e.outCorrection.Correction())
		}
		if err := e.sleep(); err != nil {
			return err
		}
		if e.gap > 0 {
			applog.Warnf("Gap of %d frames, reset period.", e.gap)
			if e.observer != nil {
				e.observer.GapReset(e.gap)
			}
			inFrames += e.gap
			outFrames += e.gap
			e.gap = 0
		}
	}

	e.in.MemoryUnmap()
	e.out.MemoryUnmap()
	return nil
}

// process transfers whatever both devices will accept right now, at most
// one period each, and logs channel state.
func (e *Engine) process() error {
	if e.in.WakeupTime(e.syncFrames) <= e.syncFrames && !e.in.Process(e.syncFrames) {
		return fmt.Errorf("%w: in process failed at %d", ErrDevice, e.syncFrames)
	}
	if e.out.WakeupTime(e.syncFrames) <= e.syncFrames && !e.out.Process(e.syncFrames) {
		return fmt.Errorf("%w: out process failed at %d", ErrDevice, e.syncFrames)
	}
	e.in.LogState(e.syncFrames)
	e.out.LogState(e.syncFrames)
	return nil
}

// sleep advances sync frames to the earlier of the two channels' wakeup
// instants, then reconciles against the clock: late wakeups advance sync
// frames in stepping-sized increments, and a gap beyond gapLimit
// re-anchors both schedules.
func (e *Engine) sleep() error {
	wakeup := min(e.in.WakeupTime(e.syncFrames), e.out.WakeupTime(e.syncFrames))
	if wakeup > e.syncFrames {
		var simDelay int64
		if e.simulateLateWakeups && ((e.syncFrames/1024)%8) == 7 {
			simDelay = 8 * 1024
			applog.Warnf("Simulate late wakeup by %d.", simDelay)
		}
		if err := e.clock.Sleep(wakeup + simDelay); err != nil {
			return err
		}
		e.syncFrames = wakeup
	}
	now, err := e.clock.Now()
	if err != nil {
		return err
	}
	syncDiff := now - e.syncFrames
	if step := int64(e.in.Stepping()); syncDiff > step {
		rounded := frames.RoundDown(syncDiff, step)
		applog.Infof("Wakeup time is %d late, correct by %d.", syncDiff, rounded)
		e.syncFrames += rounded
		if e.observer != nil {
			e.observer.LateWakeup(syncDiff)
		}
	}
	e.gap = max(0, e.syncFrames-e.in.PeriodEnd())
	e.gap = max(e.gap, e.syncFrames-e.out.PeriodEnd())
	if e.gap > gapLimit {
		e.in.ResetBuffers(e.in.EndFrames() + e.gap)
		e.out.ResetBuffers(e.out.EndFrames() + e.gap)
	} else {
		e.gap = 0
	}
	return nil
}

func (e *Engine) fillPeriod(p []byte) error {
	if e.source == nil {
		zeroFill(p)
		return nil
	}
	return e.source.Fill(p)
}

func (e *Engine) notifyPeriod(channel string, balance, correction int64) {
	if e.observer == nil {
		return
	}
	e.observer.PeriodFinished(PeriodStats{
		Channel:    channel,
		SyncFrames: e.syncFrames,
		Balance:    balance,
		Correction: correction,
	})
}

func zeroFill(p []byte) {
	for i := range p {
		p[i] = 0
	}
}
