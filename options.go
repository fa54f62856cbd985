package w25n

import (
	"log/slog"
	"time"
)

// Progress is reported by long sequences: EraseDevice and the head/tail
// scanner.
type Progress struct {
	Op    string // "erase" or "scan"
	Done  int
	Total int
}

type config struct {
	log      *slog.Logger
	progress func(Progress)

	pollInterval time.Duration
	busyTimeout  time.Duration
	fixedTimeout bool // busyTimeout overrides the per-operation timing
}

func defaultConfig() config {
	return config{
		log:          slog.New(slog.DiscardHandler),
		pollInterval: 50 * time.Microsecond,
	}
}

// Option configures a Flash.
type Option func(*config)

// WithLogger sets the logger for instruction tracing and failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithPollInterval sets how often the status register is polled while the
// device is busy.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithBusyTimeout bounds every busy wait by d instead of the timeout derived
// from the chip's timing parameters. Zero waits indefinitely.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.busyTimeout = d
			c.fixedTimeout = true
		}
	}
}

// WithProgress sets a callback for EraseDevice and FindHeadTail progress.
func WithProgress(fn func(Progress)) Option {
	return func(c *config) {
		c.progress = fn
	}
}
