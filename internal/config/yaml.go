// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sndsync/internal/device"
	"sndsync/pkg/frames"
)

// LoadConfig loads configuration from a YAML file at path. An empty path
// searches the default location ("sndsync.yaml"); when no file is found
// the built-in defaults are used. Environment variable overrides are
// applied after the file, validation last.
func LoadConfig(path string) (*Config, error) {
	cfg := Config{
		LogLevel: "info",
		Loop: LoopConfig{
			SampleRate:  DefaultSampleRate,
			Period:      DefaultPeriod,
			Repetitions: DefaultRepetitions,
			MemoryMap:   DefaultMemoryMap,
		},
		Devices: DeviceConfig{
			Simulated: true,
			Channels:  DefaultChannels,
			InputID:   DefaultDeviceID,
			OutputID:  DefaultDeviceID,
		},
		Capture: CaptureConfig{
			OutputFile: "capture.wav",
		},
		Transport: TransportConfig{
			WSAddr:    "127.0.0.1:8080",
			UDPTarget: "127.0.0.1:9090",
		},
	}

	explicit := path != ""
	if path == "" {
		path = "sndsync.yaml"
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case explicit:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if level := os.Getenv("SNDSYNC_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if os.Getenv("SNDSYNC_DEBUG") == "1" {
		cfg.Debug = true
	}
}

// Validate checks rate bounds and period alignment. The period must sit
// on the device stepping for the configured rate, or the catch-up logic
// would wake between interrupt instants.
func (c *Config) Validate() error {
	if c.Loop.SampleRate < MinSampleRate || c.Loop.SampleRate > MaxSampleRate {
		return fmt.Errorf("sample rate %d outside [%d, %d]",
			c.Loop.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if c.Loop.Period == 0 || c.Loop.Period > MaxPeriod {
		return fmt.Errorf("period %d outside (0, %d]", c.Loop.Period, MaxPeriod)
	}
	step := device.SteppingForRate(c.Loop.SampleRate)
	if !frames.Aligned(int64(c.Loop.Period), int64(step)) {
		return fmt.Errorf("period %d not aligned to device stepping %d",
			c.Loop.Period, step)
	}
	if c.Devices.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", c.Devices.Channels)
	}
	return nil
}
