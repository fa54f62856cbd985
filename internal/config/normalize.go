package config

import (
	"strings"

	"github.com/gentam/w25n"
)

const (
	DefaultDriver         = "ftdi"
	DefaultFTDIChipSelect = "D4"
	DefaultClockHz        = 30_000_000
	DefaultPollIntervalUs = 50
	DefaultLogLevel       = "info"
)

// Normalize fills in defaults.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Bus.Driver = strings.ToLower(cfg.Bus.Driver)
	if cfg.Bus.Driver == "" {
		cfg.Bus.Driver = DefaultDriver
	}
	if cfg.Bus.Driver == "ftdi" && cfg.Bus.CS == "" {
		cfg.Bus.CS = DefaultFTDIChipSelect
	}
	if cfg.Bus.ClockHz == 0 {
		cfg.Bus.ClockHz = DefaultClockHz
	}

	if cfg.Timing.PollIntervalUs == 0 {
		cfg.Timing.PollIntervalUs = DefaultPollIntervalUs
	}

	if cfg.Scan.EndPage == 0 {
		cfg.Scan.EndPage = w25n.PageCount
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}
