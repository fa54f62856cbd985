package main

import (
	"fmt"
	"log/slog"
	"os"

	"periph.io/x/conn/v3/physic"

	"github.com/gentam/w25n"
	"github.com/gentam/w25n/internal/sim"
)

func (c *cli) flashOptions() []w25n.Option {
	opts := []w25n.Option{
		w25n.WithLogger(slog.Default()),
		w25n.WithPollInterval(c.cfg.PollInterval()),
	}
	if d, ok := c.cfg.BusyTimeout(); ok {
		opts = append(opts, w25n.WithBusyTimeout(d))
	}
	return opts
}

// open opens the configured bus and identifies the chip.
func (c *cli) open(opts ...w25n.Option) (*w25n.Device, error) {
	opts = append(c.flashOptions(), opts...)
	bus := c.cfg.Bus
	clock := physic.Frequency(bus.ClockHz) * physic.Hertz

	var (
		d   *w25n.Device
		err error
	)
	switch bus.Driver {
	case "ftdi":
		d, err = w25n.OpenFTDI(clock, bus.CS, opts...)
	case "spidev":
		d, err = w25n.OpenSPIDev(bus.Port, clock, bus.CS, opts...)
	case "sim":
		d = &w25n.Device{Flash: w25n.New(sim.New(), opts...)}
	default:
		err = fmt.Errorf("unknown bus driver %q", bus.Driver)
	}
	if err != nil {
		return nil, err
	}

	id, name, err := d.Flash.ReadID()
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("read flash ID failed: %w", err)
	}
	if name == "" {
		fmt.Fprintf(os.Stderr, "unknown flash ID (%X), using worst case timing\n", id)
	}
	slog.Debug("flash identified", slog.String("id", fmt.Sprintf("%X", id)), slog.String("name", name))
	return d, nil
}

// progress prints a status line to stderr every step updates.
func progress(step int) w25n.Option {
	return w25n.WithProgress(func(p w25n.Progress) {
		if p.Done%step == 0 || p.Done == p.Total {
			fmt.Fprintf(os.Stderr, "\r%s %d/%d", p.Op, p.Done, p.Total)
		}
		if p.Done == p.Total {
			fmt.Fprintln(os.Stderr)
		}
	})
}
