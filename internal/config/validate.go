package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gentam/w25n"
)

// MPSSE clock range is [92Hz, 30MHz]; periph.io's minimum is 100Hz.
// [FTDI AN_135|3.2.1 Divisors]
const (
	minFTDIClockHz = 100
	maxFTDIClockHz = 30_000_000
)

// Validate checks configuration correctness.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ---- bus ----

	driver := strings.ToLower(cfg.Bus.Driver)
	switch driver {
	case "", "ftdi", "spidev", "sim":
	default:
		return fmt.Errorf("bus.driver %q: must be one of ftdi, spidev, sim", cfg.Bus.Driver)
	}
	if cfg.Bus.ClockHz < 0 {
		return fmt.Errorf("bus.clock_hz must not be negative")
	}
	if (driver == "" || driver == "ftdi") && cfg.Bus.ClockHz != 0 &&
		(cfg.Bus.ClockHz < minFTDIClockHz || cfg.Bus.ClockHz > maxFTDIClockHz) {
		return fmt.Errorf(
			"bus.clock_hz %d out of FTDI range [%d, %d]",
			cfg.Bus.ClockHz,
			minFTDIClockHz,
			maxFTDIClockHz,
		)
	}
	if driver == "ftdi" && cfg.Bus.Port != "" {
		return fmt.Errorf("bus.port is only used by the spidev driver")
	}

	// ---- timing ----

	if cfg.Timing.PollIntervalUs < 0 {
		return fmt.Errorf("timing.poll_interval_us must not be negative")
	}
	if t := cfg.Timing.BusyTimeoutMs; t != nil && *t < 0 {
		return fmt.Errorf("timing.busy_timeout_ms must not be negative")
	}

	// ---- scan ----

	if cfg.Scan.EndPage > w25n.PageCount {
		return fmt.Errorf("scan.end_page %d exceeds page count %d", cfg.Scan.EndPage, w25n.PageCount)
	}
	end := cfg.Scan.EndPage
	if end == 0 {
		end = w25n.PageCount
	}
	if cfg.Scan.StartPage >= end {
		return fmt.Errorf("scan.start_page %d must be below end_page %d", cfg.Scan.StartPage, end)
	}

	// ---- log ----

	if cfg.Log.Level != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			return fmt.Errorf("log.level %q: %w", cfg.Log.Level, err)
		}
	}

	return nil
}
