// SPDX-License-Identifier: MIT
package config

// Core configuration constants that define the boundaries and defaults
// for the duplex loop.
const (
	DefaultSampleRate  = 48000 // Shared by both directions
	DefaultChannels    = 2     // Stereo frames
	DefaultPeriod      = 1024  // Frames per scheduling quantum
	DefaultRepetitions = 16    // Period completions across both channels
	DefaultMemoryMap   = true  // Map DMA regions when the device supports it
	DefaultDeviceID    = -1    // -1 selects the host default device

	MinSampleRate = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate = 192000 // Maximum supported sample rate (Hz)
	MaxPeriod     = 65536  // Upper bound on the scheduling quantum
)

// Config holds all runtime options, built from defaults, an optional
// YAML file and command line flags.
type Config struct {
	Debug    bool   `yaml:"debug"`
	LogLevel string `yaml:"log_level"`
	Command  string `yaml:"-"` // one-off command ("list"), flags only

	Loop      LoopConfig      `yaml:"loop"`
	Devices   DeviceConfig    `yaml:"devices"`
	Capture   CaptureConfig   `yaml:"capture"`
	Transport TransportConfig `yaml:"transport"`
}

// LoopConfig drives the engine.
type LoopConfig struct {
	SampleRate  uint `yaml:"sample_rate"`
	Period      uint `yaml:"period"`      // frames
	Repetitions uint `yaml:"repetitions"` // period completions
	MemoryMap   bool `yaml:"memory_map"`
	// LateWakeups injects simulated scheduling delays, for soak testing
	// the gap recovery path.
	LateWakeups bool `yaml:"late_wakeups"`
}

// DeviceConfig selects the device pair.
type DeviceConfig struct {
	// Simulated uses the loopback pair instead of real hardware.
	Simulated bool  `yaml:"simulated"`
	DriftPPM  int64 `yaml:"drift_ppm"` // loopback only
	Channels  int   `yaml:"channels"`
	InputID   int   `yaml:"input_id"`
	OutputID  int   `yaml:"output_id"`
}

// CaptureConfig routes completed recording periods to a WAV file.
type CaptureConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputFile string `yaml:"output_file"`
}

// TransportConfig publishes loop diagnostics.
type TransportConfig struct {
	WSEnabled  bool   `yaml:"ws_enabled"`
	WSAddr     string `yaml:"ws_addr"`
	UDPEnabled bool   `yaml:"udp_enabled"`
	UDPTarget  string `yaml:"udp_target"`
}
