// SPDX-License-Identifier: MIT
package device

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"

	"sndsync/internal/engine"
	applog "sndsync/internal/log"
)

// Initialize sets up the PortAudio subsystem. Must be called before any
// device operations and paired with Terminate.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate shuts down the PortAudio subsystem.
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// PAConfig describes both directions of a PortAudio-backed channel pair.
type PAConfig struct {
	SampleRate uint
	Channels   int
	// InputDevice and OutputDevice select the PortAudio device index for
	// each direction, -1 for the host default.
	InputDevice  int
	OutputDevice int
}

// PAChannel adapts a blocking PortAudio stream to the engine's Device
// contract. PortAudio has no DMA mapping, so CanMemoryMap is false and
// the engine stays on the read/write path. Samples cross the boundary as
// S16LE, matching the opaque byte frames the engine schedules.
type PAChannel struct {
	recording bool
	rate      uint
	channels  int
	stepping  uint
	groups    *SyncGroups

	stream *portaudio.Stream
	bound  []int16 // one stepping's worth, bound to the stream

	state       chanState
	startOffset time.Duration
	transferred int64
}

// OpenPAPair opens a recording and a playback stream as one linked pair.
func OpenPAPair(cfg PAConfig) (in, out *PAChannel, err error) {
	groups := NewSyncGroups()
	in, err = openPAChannel(cfg, true, groups)
	if err != nil {
		return nil, nil, err
	}
	out, err = openPAChannel(cfg, false, groups)
	if err != nil {
		in.Close()
		return nil, nil, err
	}
	return in, out, nil
}

func openPAChannel(cfg PAConfig, recording bool, groups *SyncGroups) (*PAChannel, error) {
	deviceID := cfg.OutputDevice
	if recording {
		deviceID = cfg.InputDevice
	}
	info, err := lookupDevice(deviceID, recording)
	if err != nil {
		return nil, err
	}

	step := SteppingForRate(cfg.SampleRate)
	ch := &PAChannel{
		recording: recording,
		rate:      cfg.SampleRate,
		channels:  cfg.Channels,
		stepping:  step,
		groups:    groups,
		bound:     make([]int16, int(step)*cfg.Channels),
	}

	params := portaudio.StreamParameters{
		FramesPerBuffer: int(step),
		SampleRate:      float64(cfg.SampleRate),
	}
	side := portaudio.StreamDeviceParameters{
		Device:   info,
		Channels: cfg.Channels,
	}
	if recording {
		side.Latency = info.DefaultHighInputLatency
		params.Input = side
	} else {
		side.Latency = info.DefaultHighOutputLatency
		params.Output = side
	}
	stream, err := portaudio.OpenStream(params, &ch.bound)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s stream: %w", direction(recording), err)
	}
	ch.stream = stream
	return ch, nil
}

func direction(recording bool) string {
	if recording {
		return "capture"
	}
	return "playback"
}

func lookupDevice(deviceID int, recording bool) (*portaudio.DeviceInfo, error) {
	if deviceID < 0 {
		if recording {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if deviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", deviceID)
	}
	return devices[deviceID], nil
}

// ListDevices prints all PortAudio devices with their capabilities.
func ListDevices() error {
	devices, err := portaudio.Devices()
	if err != nil {
		return err
	}

	fmt.Printf("\nAvailable Audio Devices\n\n")
	for i, dev := range devices {
		kind := ""
		switch {
		case dev.MaxInputChannels > 0 && dev.MaxOutputChannels > 0:
			kind = "Input/Output"
		case dev.MaxInputChannels > 0:
			kind = "Input"
		case dev.MaxOutputChannels > 0:
			kind = "Output"
		}
		fmt.Printf("[%d] %s (%s)\n", i, dev.Name, kind)
		fmt.Printf("    Input channels: %d, Output channels: %d\n",
			dev.MaxInputChannels, dev.MaxOutputChannels)
		fmt.Printf("    Default sample rate: %.0f Hz\n", dev.DefaultSampleRate)
	}
	return nil
}

func (c *PAChannel) Recording() bool { return c.recording }
func (c *PAChannel) Playback() bool  { return !c.recording }

func (c *PAChannel) SampleRate() uint { return c.rate }
func (c *PAChannel) FrameSize() uint  { return uint(c.channels) * 2 }
func (c *PAChannel) Stepping() uint   { return c.stepping }

func (c *PAChannel) CanMemoryMap() bool { return false }
func (c *PAChannel) MemoryMap() bool    { return false }
func (c *PAChannel) MemoryUnmap()       {}

func (c *PAChannel) AddToSyncGroup(id int) bool {
	if c.state != stateIdle {
		return false
	}
	if !c.groups.add(id, c) {
		return false
	}
	c.state = stateArmed
	return true
}

func (c *PAChannel) StartSyncGroup(id int) bool {
	return c.groups.start(id)
}

func (c *PAChannel) startAt(time.Time) bool {
	if c.state != stateArmed {
		return false
	}
	if err := c.stream.Start(); err != nil {
		applog.Errorf("Failed to start %s stream: %v", direction(c.recording), err)
		return false
	}
	c.startOffset = c.stream.Time()
	c.state = stateRunning
	return true
}

// Position derives the hardware frame pointer from the stream clock,
// truncated to the stepping granularity.
func (c *PAChannel) Position() (int64, bool) {
	if c.state == stateClosed {
		return 0, false
	}
	if c.state != stateRunning {
		return 0, true
	}
	ns := (c.stream.Time() - c.startOffset).Nanoseconds()
	f := ns / int64(time.Second) * int64(c.rate)
	f += ns % int64(time.Second) * int64(c.rate) / int64(time.Second)
	return f - f%int64(c.stepping), true
}

func (c *PAChannel) Transferable() int64 {
	if c.stream == nil || c.state != stateRunning {
		return 0
	}
	var n int
	var err error
	if c.recording {
		n, err = c.stream.AvailableToRead()
	} else {
		n, err = c.stream.AvailableToWrite()
	}
	if err != nil {
		return 0
	}
	return int64(n) - int64(n)%int64(c.stepping)
}

// Transfer moves whole steps between the stream and buf, bounded by what
// the host has available right now.
func (c *PAChannel) Transfer(buf *engine.Buffer) (int64, bool) {
	if c.state == stateClosed || c.stream == nil {
		return 0, false
	}
	step := int64(c.stepping)
	var moved int64
	for buf.Remaining() >= step && c.Transferable() >= step {
		if c.recording {
			if err := c.stream.Read(); err != nil {
				applog.Errorf("Capture read failed: %v", err)
				return moved, false
			}
			packSamples(buf.Tail(), c.bound)
		} else {
			unpackSamples(c.bound, buf.Tail())
			if err := c.stream.Write(); err != nil {
				// Underflows surface as errors on some hosts; the
				// schedule reset handles the lost time.
				applog.Warnf("Playback write reported: %v", err)
			}
		}
		buf.Advance(step)
		moved += step
		c.transferred += step
	}
	return moved, true
}

func (c *PAChannel) Close() {
	if c.state == stateClosed {
		return
	}
	if c.stream != nil {
		if c.state == stateRunning {
			if err := c.stream.Stop(); err != nil {
				applog.Errorf("Failed to stop %s stream: %v", direction(c.recording), err)
			}
		}
		c.stream.Close()
		c.stream = nil
	}
	c.state = stateClosed
}

// packSamples encodes bound int16 samples into dst as S16LE bytes.
func packSamples(dst []byte, src []int16) {
	for i, s := range src {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(s))
	}
}

// unpackSamples decodes S16LE bytes from src into the bound sample
// slice.
func unpackSamples(dst []int16, src []byte) {
	for i := range dst {
		dst[i] = int16(binary.LittleEndian.Uint16(src[i*2:]))
	}
}

var _ engine.Device = (*PAChannel)(nil)
