package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/gentam/w25n"
)

func intp(v int) *int { return &v }

func TestValidate_Empty(t *testing.T) {
	cfg := &Config{}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown driver", Config{Bus: BusConfig{Driver: "i2c"}}},
		{"negative clock", Config{Bus: BusConfig{Driver: "spidev", ClockHz: -1}}},
		{"ftdi clock too fast", Config{Bus: BusConfig{Driver: "ftdi", ClockHz: 60_000_000}}},
		{"ftdi clock too slow", Config{Bus: BusConfig{ClockHz: 50}}},
		{"ftdi with port", Config{Bus: BusConfig{Driver: "ftdi", Port: "/dev/spidev0.0"}}},
		{"negative poll interval", Config{Timing: TimingConfig{PollIntervalUs: -5}}},
		{"negative busy timeout", Config{Timing: TimingConfig{BusyTimeoutMs: intp(-1)}}},
		{"end beyond device", Config{Scan: ScanConfig{EndPage: w25n.PageCount + 1}}},
		{"empty scan range", Config{Scan: ScanConfig{StartPage: 10, EndPage: 10}}},
		{"start at device end", Config{Scan: ScanConfig{StartPage: w25n.PageCount}}},
		{"bad log level", Config{Log: LogConfig{Level: "verbose"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(&tt.cfg); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestValidate_SpidevFastClock(t *testing.T) {
	cfg := &Config{Bus: BusConfig{Driver: "spidev", Port: "/dev/spidev0.0", ClockHz: 80_000_000}}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNormalize_Defaults(t *testing.T) {
	cfg := &Config{}
	Normalize(cfg)

	if cfg.Bus.Driver != "ftdi" || cfg.Bus.CS != "D4" || cfg.Bus.ClockHz != DefaultClockHz {
		t.Fatalf("bus = %+v", cfg.Bus)
	}
	if cfg.PollInterval() != 50*time.Microsecond {
		t.Fatalf("poll interval = %v", cfg.PollInterval())
	}
	if _, ok := cfg.BusyTimeout(); ok {
		t.Fatal("busy timeout set by default")
	}
	if cfg.Scan.EndPage != w25n.PageCount {
		t.Fatalf("end page = %d", cfg.Scan.EndPage)
	}
	if cfg.LogLevel() != slog.LevelInfo {
		t.Fatalf("log level = %v", cfg.LogLevel())
	}
}

func TestNormalize_KeepsSpidevChipSelect(t *testing.T) {
	cfg := &Config{Bus: BusConfig{Driver: "SPIDEV"}}
	Normalize(cfg)
	if cfg.Bus.Driver != "spidev" || cfg.Bus.CS != "" {
		t.Fatalf("bus = %+v", cfg.Bus)
	}
}

func TestParse(t *testing.T) {
	doc := []byte(`
bus:
  driver: sim
  clock_hz: 1000000
timing:
  poll_interval_us: 20
  busy_timeout_ms: 0
scan:
  start_page: 64
  end_page: 128
log:
  level: debug
`)
	cfg, err := Parse(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Normalize(cfg)

	if cfg.Bus.Driver != "sim" || cfg.Bus.ClockHz != 1_000_000 {
		t.Fatalf("bus = %+v", cfg.Bus)
	}
	if d, ok := cfg.BusyTimeout(); !ok || d != 0 {
		t.Fatalf("busy timeout = %v, %v; want explicit zero", d, ok)
	}
	if cfg.PollInterval() != 20*time.Microsecond {
		t.Fatalf("poll interval = %v", cfg.PollInterval())
	}
	if cfg.Scan.StartPage != 64 || cfg.Scan.EndPage != 128 {
		t.Fatalf("scan = %+v", cfg.Scan)
	}
	if cfg.LogLevel() != slog.LevelDebug {
		t.Fatalf("log level = %v", cfg.LogLevel())
	}
}

func TestParse_UnknownField(t *testing.T) {
	if _, err := Parse([]byte("bus:\n  speed: 9\n")); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if *cfg != (Config{}) {
		t.Fatalf("config = %+v", cfg)
	}
}
