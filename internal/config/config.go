// Package config loads the YAML configuration of the w25n tool.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Bus    BusConfig    `yaml:"bus"`
	Timing TimingConfig `yaml:"timing"`
	Scan   ScanConfig   `yaml:"scan"`
	Log    LogConfig    `yaml:"log"`
}

// ---- BUS ----

type BusConfig struct {
	Driver  string `yaml:"driver"`   // ftdi | spidev | sim
	Port    string `yaml:"port"`     // spidev port name, e.g. /dev/spidev0.0
	CS      string `yaml:"cs"`       // chip select pin, e.g. D4 on an FTDI adapter
	ClockHz int64  `yaml:"clock_hz"` // SPI clock
}

// ---- TIMING ----

type TimingConfig struct {
	PollIntervalUs int `yaml:"poll_interval_us"`

	// Unset derives the timeout from the chip's timing parameters.
	// Zero waits indefinitely.
	BusyTimeoutMs *int `yaml:"busy_timeout_ms"`
}

// ---- SCAN ----

type ScanConfig struct {
	StartPage uint32 `yaml:"start_page"`
	EndPage   uint32 `yaml:"end_page"` // exclusive; 0 means the last page of the device
}

// ---- LOG ----

type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// Load reads a YAML file. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes a YAML document. An empty document yields a zero Config.
func Parse(b []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// PollInterval returns the busy poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Timing.PollIntervalUs) * time.Microsecond
}

// BusyTimeout returns the busy wait bound and whether one was configured.
func (c *Config) BusyTimeout() (time.Duration, bool) {
	if c.Timing.BusyTimeoutMs == nil {
		return 0, false
	}
	return time.Duration(*c.Timing.BusyTimeoutMs) * time.Millisecond, true
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
