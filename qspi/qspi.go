// Package qspi describes a serial flash bus transaction as a sequence of
// phases (instruction, address, dummy cycles, data) and defines the Bus
// capability that executes them.
package qspi

import (
	"errors"
	"fmt"
)

// Lines is the number of IO lines a phase is clocked on.
type Lines uint8

const (
	LinesNone   Lines = 0 // phase omitted
	LinesSingle Lines = 1 // IO0 out, IO1 in
	LinesDual   Lines = 2 // IO0-IO1
	LinesQuad   Lines = 4 // IO0-IO3
)

// LinesFor maps a requested line count to a Lines value. Only 2 and 4 select
// multi-line transfers, everything else falls back to a single line.
func LinesFor(n int) Lines {
	switch n {
	case 2:
		return LinesDual
	case 4:
		return LinesQuad
	default:
		return LinesSingle
	}
}

func (l Lines) String() string {
	switch l {
	case LinesNone:
		return "none"
	case LinesSingle:
		return "1-line"
	case LinesDual:
		return "2-line"
	case LinesQuad:
		return "4-line"
	}
	return fmt.Sprintf("Lines(%d)", uint8(l))
}

// Command is the bus-level descriptor of one flash instruction. The
// instruction byte is always sent on a single line.
type Command struct {
	Instruction byte

	AddressLines Lines // LinesNone when there is no address phase
	AddressBits  int   // 8, 16, 24 or 32
	Address      uint32

	DummyCycles int

	DataLines Lines // LinesNone when there is no data phase
	DataLen   int
}

// HasAddress reports whether the command carries an address phase.
func (c *Command) HasAddress() bool { return c.AddressLines != LinesNone }

// HasData reports whether a Transmit or Receive must follow the command.
func (c *Command) HasData() bool { return c.DataLines != LinesNone && c.DataLen > 0 }

// AddressBytes returns the address phase as big-endian bytes.
func (c *Command) AddressBytes() []byte {
	if !c.HasAddress() {
		return nil
	}
	n := c.AddressBits / 8
	b := make([]byte, n)
	for i := range n {
		b[i] = byte(c.Address >> (8 * (n - 1 - i)))
	}
	return b
}

func (c Command) String() string {
	s := fmt.Sprintf("op=%#02x", c.Instruction)
	if c.HasAddress() {
		s += fmt.Sprintf(" addr=%#x/%db/%s", c.Address, c.AddressBits, c.AddressLines)
	}
	if c.DummyCycles > 0 {
		s += fmt.Sprintf(" dummy=%d", c.DummyCycles)
	}
	if c.HasData() {
		s += fmt.Sprintf(" data=%d/%s", c.DataLen, c.DataLines)
	}
	return s
}

// Bus executes flash commands. Command sends the instruction, address and
// dummy phases; if c.HasData(), exactly one Transmit or Receive of c.DataLen
// bytes completes the transaction. Chip select framing is the bus's concern.
type Bus interface {
	Command(c *Command) error
	Transmit(p []byte) error
	Receive(p []byte) error
}

var (
	ErrUnsupportedLines = errors.New("qspi: unsupported line width")
	ErrNoPendingCommand = errors.New("qspi: data phase without pending command")
	ErrLengthMismatch   = errors.New("qspi: data length does not match command")
)
