package w25n

import (
	"fmt"
	"log/slog"

	"github.com/gentam/w25n/qspi"
)

// Direction of an instruction's data phase.
type Direction uint8

const (
	DirNone Direction = iota
	DirTransmit
	DirReceive
)

func (d Direction) String() string {
	switch d {
	case DirNone:
		return "none"
	case DirTransmit:
		return "transmit"
	case DirReceive:
		return "receive"
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// Instruction is one flash instruction as the command set builds it.
// AddressSize is in bytes, 0 meaning no address phase. Line counts of 2
// and 4 select dual and quad transfers, any other value a single line.
// Data is owned by the caller; it is the source of a transmit or the
// destination of a receive.
type Instruction struct {
	Opcode byte

	Address      uint32
	AddressSize  int
	AddressLines int

	DummyClocks int

	Direction Direction
	Data      []byte
	DataLines int
}

// Encode derives the bus phases of ins.
func Encode(ins *Instruction) (qspi.Command, error) {
	c := qspi.Command{Instruction: ins.Opcode}

	switch ins.AddressSize {
	case 0:
	case 1, 2, 3, 4:
		c.AddressLines = qspi.LinesFor(ins.AddressLines)
		c.AddressBits = 8 * ins.AddressSize
		c.Address = ins.Address
	default:
		return c, fmt.Errorf("%w: %d byte address", ErrInvalidInstruction, ins.AddressSize)
	}

	if ins.DummyClocks < 0 {
		return c, fmt.Errorf("%w: %d dummy clocks", ErrInvalidInstruction, ins.DummyClocks)
	}
	c.DummyCycles = ins.DummyClocks

	if len(ins.Data) > 0 {
		if ins.Direction != DirTransmit && ins.Direction != DirReceive {
			return c, fmt.Errorf("%w: %d data bytes with direction %s", ErrInvalidInstruction, len(ins.Data), ins.Direction)
		}
		c.DataLines = qspi.LinesFor(ins.DataLines)
		c.DataLen = len(ins.Data)
	}
	return c, nil
}

// Execute issues a raw instruction. It does not wait for BUSY and does not
// set the write enable latch; callers own the sequencing.
func (f *Flash) Execute(ins *Instruction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.execute(ins)
}

func (f *Flash) execute(ins *Instruction) error {
	cmd, err := Encode(ins)
	if err != nil {
		return err
	}
	f.log.Debug("instruction", slog.String("cmd", cmd.String()))

	if err := f.bus.Command(&cmd); err != nil {
		return f.busError(ins.Opcode, PhaseCommand, err)
	}
	if !cmd.HasData() {
		return nil
	}

	switch ins.Direction {
	case DirTransmit:
		if err := f.bus.Transmit(ins.Data); err != nil {
			return f.busError(ins.Opcode, PhaseTransmit, err)
		}
	case DirReceive:
		if err := f.bus.Receive(ins.Data); err != nil {
			return f.busError(ins.Opcode, PhaseReceive, err)
		}
	}
	return nil
}

func (f *Flash) busError(op byte, phase Phase, err error) error {
	f.log.Warn("bus transfer failed",
		slog.String("opcode", fmt.Sprintf("%#02x", op)),
		slog.String("phase", string(phase)),
		slog.Any("error", err))
	return &BusError{Opcode: op, Phase: phase, Err: err}
}
