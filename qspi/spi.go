package qspi

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// SPI runs commands on a plain 4-wire SPI connection. Only single line
// phases and dummy cycles in whole bytes are supported; SPI has no way to
// drive IO2/IO3.
type SPI struct {
	conn spi.Conn
	cs   gpio.PinOut // nil when the port toggles CS itself

	header []byte // pending command phases awaiting their data phase
	want   int
}

// NewSPI returns a Bus over conn. When cs is non-nil it is driven low for
// the duration of each transaction, like the FTDI MPSSE setup where CS is a
// plain GPIO.
func NewSPI(conn spi.Conn, cs gpio.PinOut) *SPI {
	return &SPI{conn: conn, cs: cs}
}

// tx wraps SPI transaction with CS assertion.
func (s *SPI) tx(buf []byte) (err error) {
	if s.cs != nil {
		if err = s.cs.Out(gpio.Low); err != nil {
			return err
		}
		defer func() {
			if csErr := s.cs.Out(gpio.High); csErr != nil && err == nil {
				err = csErr
			}
		}()
	}
	err = s.conn.Tx(buf, buf)
	return
}

func (s *SPI) Command(c *Command) error {
	s.header, s.want = nil, 0

	if c.HasAddress() && c.AddressLines != LinesSingle {
		return fmt.Errorf("%w: address on %s", ErrUnsupportedLines, c.AddressLines)
	}
	if c.HasData() && c.DataLines != LinesSingle {
		return fmt.Errorf("%w: data on %s", ErrUnsupportedLines, c.DataLines)
	}
	if c.DummyCycles%8 != 0 {
		return fmt.Errorf("qspi: %d dummy cycles is not a whole number of bytes", c.DummyCycles)
	}

	buf := make([]byte, 0, 1+4+c.DummyCycles/8)
	buf = append(buf, c.Instruction)
	buf = append(buf, c.AddressBytes()...)
	buf = append(buf, make([]byte, c.DummyCycles/8)...)

	if !c.HasData() {
		return s.tx(buf)
	}
	// CS stays deasserted until the data phase arrives; both go out in one
	// transaction.
	s.header, s.want = buf, c.DataLen
	return nil
}

func (s *SPI) Transmit(p []byte) error {
	buf, err := s.frame(p)
	if err != nil {
		return err
	}
	copy(buf[len(buf)-len(p):], p)
	return s.tx(buf)
}

func (s *SPI) Receive(p []byte) error {
	buf, err := s.frame(p)
	if err != nil {
		return err
	}
	if err := s.tx(buf); err != nil {
		return err
	}
	copy(p, buf[len(buf)-len(p):])
	return nil
}

func (s *SPI) frame(p []byte) ([]byte, error) {
	header, want := s.header, s.want
	s.header, s.want = nil, 0
	if header == nil {
		return nil, ErrNoPendingCommand
	}
	if len(p) != want {
		return nil, errors.Join(ErrLengthMismatch, fmt.Errorf("got %d bytes, command expects %d", len(p), want))
	}
	buf := make([]byte, len(header)+len(p))
	copy(buf, header)
	return buf, nil
}
