// Package config provides the configuration schema and loader for the revox
// recorder.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for revox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Capture   CaptureConfig   `yaml:"capture"`
	Recording RecordingConfig `yaml:"recording"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level controls verbosity. Default: info.
	Level LogLevel `yaml:"level"`

	// File is an optional log file path. When set, logs are written there
	// with size-based rotation; when empty, logs go to stderr.
	File string `yaml:"file"`
}

// MetricsConfig holds the optional Prometheus scrape endpoint settings.
type MetricsConfig struct {
	// ListenAddr is the TCP address serving /metrics (e.g. ":9464").
	// Empty disables the endpoint.
	ListenAddr string `yaml:"listen_addr"`
}

// CaptureConfig holds input-device stream parameters.
type CaptureConfig struct {
	// SampleRate in Hz. Default: 44100.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the input channel count (1 or 2). Default: 1.
	Channels int `yaml:"channels"`

	// FramesPerBuffer is the device callback granularity. Default: 1024.
	FramesPerBuffer int `yaml:"frames_per_buffer"`
}

// RecordingConfig holds chunking and persistence settings.
type RecordingConfig struct {
	// ChunkDurationMs is the rotation cadence in milliseconds. Smaller
	// values increase recovery granularity and persistence write
	// frequency; larger values reduce the number of segment boundaries.
	// Default: 10000.
	ChunkDurationMs int `yaml:"chunk_duration_ms"`

	// StorePath is the SQLite file backing the recovery slots. When
	// opening it fails, recovery features are disabled and recording
	// continues without persistence. Default: "revox.db".
	StorePath string `yaml:"store_path"`
}

// ChunkDuration returns the rotation cadence as a [time.Duration].
func (r RecordingConfig) ChunkDuration() time.Duration {
	return time.Duration(r.ChunkDurationMs) * time.Millisecond
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: LogInfo},
		Capture: CaptureConfig{
			SampleRate:      44100,
			Channels:        1,
			FramesPerBuffer: 1024,
		},
		Recording: RecordingConfig{
			ChunkDurationMs: 10000,
			StorePath:       "revox.db",
		},
	}
}
