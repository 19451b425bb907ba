// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.Loop.SampleRate != DefaultSampleRate {
		t.Errorf("default sample rate = %d, want %d", cfg.Loop.SampleRate, DefaultSampleRate)
	}
	if cfg.Loop.Period != DefaultPeriod {
		t.Errorf("default period = %d, want %d", cfg.Loop.Period, DefaultPeriod)
	}
	if !cfg.Devices.Simulated {
		t.Error("default config should use the simulated device pair")
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Error("expected error for missing explicit file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_FileOverrides(t *testing.T) {
	path := writeTempConfig(t, `
log_level: debug
loop:
  sample_rate: 96000
  period: 2048
  repetitions: 32
devices:
  simulated: true
  drift_ppm: 50
  channels: 1
transport:
  udp_enabled: true
  udp_target: "10.0.0.1:7000"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
	if cfg.Loop.SampleRate != 96000 || cfg.Loop.Period != 2048 || cfg.Loop.Repetitions != 32 {
		t.Errorf("loop config not applied: %+v", cfg.Loop)
	}
	if cfg.Devices.DriftPPM != 50 || cfg.Devices.Channels != 1 {
		t.Errorf("device config not applied: %+v", cfg.Devices)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTarget != "10.0.0.1:7000" {
		t.Errorf("transport config not applied: %+v", cfg.Transport)
	}
	// Unset fields keep their defaults.
	if cfg.Transport.WSAddr != "127.0.0.1:8080" {
		t.Errorf("ws addr default lost: %q", cfg.Transport.WSAddr)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SNDSYNC_LOG_LEVEL", "warn")
	t.Setenv("SNDSYNC_DEBUG", "1")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log level = %q, want warn from env", cfg.LogLevel)
	}
	if !cfg.Debug {
		t.Error("debug not enabled from env")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Loop: LoopConfig{
				SampleRate: 48000, Period: 1024, Repetitions: 4,
			},
			Devices: DeviceConfig{Channels: 2},
		}
	}

	tests := []struct {
		desc    string
		mutate  func(*Config)
		wantErr string
	}{
		{"Valid", func(c *Config) {}, ""},
		{"Rate too low", func(c *Config) { c.Loop.SampleRate = 4000 }, "sample rate"},
		{"Rate too high", func(c *Config) { c.Loop.SampleRate = 384000 }, "sample rate"},
		{"Zero period", func(c *Config) { c.Loop.Period = 0 }, "period"},
		{"Oversized period", func(c *Config) { c.Loop.Period = 1 << 20 }, "period"},
		{"Misaligned period", func(c *Config) { c.Loop.Period = 1000 }, "stepping"},
		{"Misaligned at 96k", func(c *Config) {
			c.Loop.SampleRate = 96000
			c.Loop.Period = 1040 // aligned to 16, not to 32
		}, "stepping"},
		{"No channels", func(c *Config) { c.Devices.Channels = 0 }, "channel"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate failed: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
