package w25n

import (
	"errors"
	"fmt"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"

	"github.com/gentam/w25n/qspi"
)

// Device is a flash chip attached to a host SPI port.
type Device struct {
	FTDI  *ftdi.FT232H // nil unless opened through an FTDI adapter
	Flash *Flash

	cs    gpio.PinIO
	clock physic.Frequency
	port  spi.PortCloser
	conn  spi.Conn
}

var hostInitialized atomic.Bool

func initHost() error {
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			hostInitialized.Store(false)
			return fmt.Errorf("host initialization failed: %w", err)
		}
	}
	return nil
}

// OpenFTDI finds an FT232H/FT2232H adapter and opens its MPSSE SPI port.
// csPin names the adapter pin wired to the flash /CS, e.g. "D4" for ADBUS4.
func OpenFTDI(clock physic.Frequency, csPin string, opts ...Option) (*Device, error) {
	if err := initHost(); err != nil {
		return nil, err
	}

	d := &Device{clock: clock}
	if err := d.findFT232H(); err != nil {
		return nil, err
	}

	// ADBUS0 | SCK
	// ADBUS1 | MOSI (IO0)
	// ADBUS2 | MISO (IO1)
	// ADBUS3..7 | GPIO, one of them drives /CS
	cs, err := d.ftdiPin(csPin)
	if err != nil {
		return nil, err
	}
	if err := cs.Out(gpio.High); err != nil {
		return nil, err
	}
	d.cs = cs

	port, err := d.FTDI.SPI()
	if err != nil {
		return nil, fmt.Errorf("failed to get SPI port: %w", err)
	}
	if err := d.connect(port); err != nil {
		return nil, err
	}

	d.Flash = New(qspi.NewSPI(d.conn, d.cs), opts...)
	return d, nil
}

// OpenSPIDev opens a host SPI port by name ("" for the first one, or
// "/dev/spidev0.0"). csPin optionally names a GPIO to use as /CS; when empty
// the port's own chip select is used.
func OpenSPIDev(name string, clock physic.Frequency, csPin string, opts ...Option) (*Device, error) {
	if err := initHost(); err != nil {
		return nil, err
	}

	d := &Device{clock: clock}
	if csPin != "" {
		if d.cs = gpioreg.ByName(csPin); d.cs == nil {
			return nil, fmt.Errorf("GPIO %q not found", csPin)
		}
		if err := d.cs.Out(gpio.High); err != nil {
			return nil, err
		}
	}

	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", name, err)
	}
	if err := d.connect(port); err != nil {
		return nil, err
	}

	var cs gpio.PinOut
	if d.cs != nil {
		cs = d.cs
	}
	d.Flash = New(qspi.NewSPI(d.conn, cs), opts...)
	return d, nil
}

func (d *Device) Close() error {
	if d.port == nil {
		return nil
	}
	return d.port.Close()
}

func (d *Device) findFT232H() error {
	const vendorID = 0x0403 // FTDI

	info := ftdi.Info{}
	for _, dev := range ftdi.All() {
		dev.Info(&info)
		if info.VenID != vendorID {
			continue
		}
		if ft, ok := dev.(*ftdi.FT232H); ok {
			d.FTDI = ft
			return nil
		}
	}

	return errors.New("FT232H device not found")
}

func (d *Device) ftdiPin(name string) (gpio.PinIO, error) {
	pins := map[string]gpio.PinIO{
		"D3": d.FTDI.D3,
		"D4": d.FTDI.D4,
		"D5": d.FTDI.D5,
		"D6": d.FTDI.D6,
		"D7": d.FTDI.D7,
	}
	p, ok := pins[name]
	if !ok {
		return nil, fmt.Errorf("unknown FTDI pin %q", name)
	}
	return p, nil
}

func (d *Device) connect(port spi.PortCloser) (err error) {
	// W25N04KV supports SPI mode 0 and 3; MPSSE only does 0 and 2.
	// [FTDI AN_114|1.2] / [W25N04KV|6.1.1 Standard SPI Instructions]
	d.conn, err = port.Connect(d.clock, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return fmt.Errorf("SPI connect failed: %w", err)
	}
	d.port = port
	return nil
}
