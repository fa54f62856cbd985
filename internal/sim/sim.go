// Package sim models a W25N04KV behind a qspi.Bus: the data buffer, a
// sparse main array, the three status registers, WEL and BUSY. It checks
// that every command is framed the way the datasheet lays it out and keeps
// a log of what it was sent.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gentam/w25n/qspi"
)

const (
	pagesPerBlock = 64
	pageCount     = 4096 * pagesPerBlock
	bufferSize    = 2048 + 64

	busyBit = 1 << 0
	welBit  = 1 << 1

	// power-on register values
	defaultProtection    = 0x7C // BP3-0 and TB set: whole array protected
	defaultConfiguration = 0x19 // ECC-E, BUF, H-DIS
)

var (
	ErrInjected    = errors.New("sim: injected bus failure")
	ErrMalformed   = errors.New("sim: malformed command")
	ErrBusy        = errors.New("sim: command issued while busy")
	ErrNoPending   = errors.New("sim: data phase without command")
	ErrLength      = errors.New("sim: data length mismatch")
	ErrWrongPhase  = errors.New("sim: wrong data direction")
	ErrUnknownOp   = errors.New("sim: unknown opcode")
	ErrBadRegister = errors.New("sim: unknown register address")
)

// DefaultJEDECID identifies a W25N04KV.
var DefaultJEDECID = [3]byte{0xEF, 0xAA, 0x23}

const defaultBusyPolls = 1

type direction uint8

const (
	none direction = iota
	rx
	tx
)

type layout struct {
	addrBits  int
	addrLines qspi.Lines
	dummy     int
	dir       direction
	dataLines qspi.Lines
}

// [W25N04KV|8.1.2 Instruction Set Table]
var layouts = map[byte]layout{
	0x9F: {0, qspi.LinesNone, 8, rx, qspi.LinesSingle},
	0x0F: {8, qspi.LinesSingle, 0, rx, qspi.LinesSingle},
	0x01: {8, qspi.LinesSingle, 0, tx, qspi.LinesSingle},
	0x13: {24, qspi.LinesSingle, 0, none, qspi.LinesNone},
	0x03: {16, qspi.LinesSingle, 8, rx, qspi.LinesSingle},
	0x0B: {16, qspi.LinesSingle, 8, rx, qspi.LinesSingle},
	0x3B: {16, qspi.LinesSingle, 8, rx, qspi.LinesDual},
	0xBB: {16, qspi.LinesDual, 4, rx, qspi.LinesDual},
	0x6B: {16, qspi.LinesSingle, 8, rx, qspi.LinesQuad},
	0xEB: {16, qspi.LinesQuad, 4, rx, qspi.LinesQuad},
	0x06: {0, qspi.LinesNone, 0, none, qspi.LinesNone},
	0x04: {0, qspi.LinesNone, 0, none, qspi.LinesNone},
	0x84: {16, qspi.LinesSingle, 0, tx, qspi.LinesSingle},
	0x34: {16, qspi.LinesSingle, 0, tx, qspi.LinesQuad},
	0x02: {16, qspi.LinesSingle, 0, tx, qspi.LinesSingle},
	0x10: {24, qspi.LinesSingle, 0, none, qspi.LinesNone},
	0xD8: {24, qspi.LinesSingle, 0, none, qspi.LinesNone},
	0xFF: {0, qspi.LinesNone, 0, none, qspi.LinesNone},
}

// allowed while BUSY is set
var busyOK = map[byte]bool{
	0x0F: true, // read status
	0x9F: true,
	0x06: true,
	0x04: true,
	0xFF: true,
}

// Phase selects where an injected failure hits.
type Phase uint8

const (
	PhaseCommand Phase = iota
	PhaseData
)

type fault struct {
	op    byte
	phase Phase
}

// Chip is a simulated W25N04KV. The zero value is not usable; call New.
type Chip struct {
	mu sync.Mutex

	id     [3]byte
	pages  map[uint32]*[bufferSize]byte // programmed pages; absent pages are erased
	buffer [bufferSize]byte

	sr1, sr2 byte
	wel      bool
	welHold  bool // WEL reads as set until the running operation ends
	busy     int  // status reads left before the running operation ends

	busyPolls int
	stuck     bool

	pending *qspi.Command
	faults  []fault
	log     []qspi.Command
}

// Option configures a Chip.
type Option func(*Chip)

// WithBusyPolls sets how many status reads an array operation stays busy
// for. Zero completes operations instantly.
func WithBusyPolls(n int) Option {
	return func(c *Chip) { c.busyPolls = max(n, 0) }
}

// WithJEDECID overrides the identification bytes.
func WithJEDECID(id [3]byte) Option {
	return func(c *Chip) { c.id = id }
}

func New(opts ...Option) *Chip {
	c := &Chip{
		id:        DefaultJEDECID,
		pages:     make(map[uint32]*[bufferSize]byte),
		sr1:       defaultProtection,
		sr2:       defaultConfiguration,
		busyPolls: defaultBusyPolls,
	}
	for i := range c.buffer {
		c.buffer[i] = 0xFF
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chip) Command(cmd *qspi.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = nil
	c.log = append(c.log, *cmd)
	if c.takeFault(cmd.Instruction, PhaseCommand) {
		return ErrInjected
	}

	l, ok := layouts[cmd.Instruction]
	if !ok {
		return fmt.Errorf("%w %#02x", ErrUnknownOp, cmd.Instruction)
	}
	if err := l.check(cmd); err != nil {
		return err
	}
	if c.busy > 0 && !busyOK[cmd.Instruction] {
		return fmt.Errorf("%w: %s", ErrBusy, cmd)
	}

	if cmd.HasData() {
		pending := *cmd
		c.pending = &pending
		return nil
	}
	return c.run(cmd, nil)
}

func (l layout) check(cmd *qspi.Command) error {
	switch {
	case l.addrBits == 0 && cmd.HasAddress(),
		l.addrBits != 0 && (cmd.AddressBits != l.addrBits || cmd.AddressLines != l.addrLines):
		return fmt.Errorf("%w: %s: address phase", ErrMalformed, cmd)
	case cmd.DummyCycles != l.dummy:
		return fmt.Errorf("%w: %s: %d dummy cycles, want %d", ErrMalformed, cmd, cmd.DummyCycles, l.dummy)
	case cmd.HasData() && (l.dir == none || cmd.DataLines != l.dataLines):
		return fmt.Errorf("%w: %s: data phase", ErrMalformed, cmd)
	}
	return nil
}

func (c *Chip) Transmit(p []byte) error { return c.data(tx, p) }
func (c *Chip) Receive(p []byte) error  { return c.data(rx, p) }

func (c *Chip) data(dir direction, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd := c.pending
	c.pending = nil
	if cmd == nil {
		return ErrNoPending
	}
	if c.takeFault(cmd.Instruction, PhaseData) {
		return ErrInjected
	}
	if layouts[cmd.Instruction].dir != dir {
		return fmt.Errorf("%w: %s", ErrWrongPhase, cmd)
	}
	if len(p) != cmd.DataLen {
		return fmt.Errorf("%w: %d bytes for %s", ErrLength, len(p), cmd)
	}
	return c.run(cmd, p)
}

func (c *Chip) run(cmd *qspi.Command, p []byte) error {
	switch cmd.Instruction {
	case 0x9F:
		copy(p, c.id[:])
	case 0x0F:
		v, err := c.readRegister(byte(cmd.Address))
		if err != nil {
			return err
		}
		p[0] = v
	case 0x01:
		switch byte(cmd.Address) {
		case 0xA0:
			c.sr1 = p[0]
		case 0xB0:
			c.sr2 = p[0]
		case 0xC0: // read only
		default:
			return fmt.Errorf("%w %#02x", ErrBadRegister, cmd.Address)
		}
	case 0x13:
		c.loadPage(cmd.Address)
		c.start()
	case 0x03, 0x0B, 0x3B, 0xBB, 0x6B, 0xEB:
		col := int(cmd.Address & 0x0FFF)
		for i := range p {
			if col+i < bufferSize {
				p[i] = c.buffer[col+i]
			} else {
				p[i] = 0xFF
			}
		}
	case 0x06:
		c.wel = true
	case 0x04:
		c.wel = false
	case 0x02:
		if !c.wel {
			return nil
		}
		for i := range c.buffer {
			c.buffer[i] = 0xFF
		}
		copy(c.buffer[:], p)
	case 0x84, 0x34:
		if !c.wel {
			return nil
		}
		col := int(cmd.Address & 0x0FFF)
		if col < bufferSize {
			copy(c.buffer[col:], p)
		}
	case 0x10:
		if !c.wel {
			return nil
		}
		c.program(cmd.Address)
		c.consumeWEL()
		c.start()
	case 0xD8:
		if !c.wel {
			return nil
		}
		c.erase(cmd.Address)
		c.consumeWEL()
		c.start()
	case 0xFF:
		c.sr1 = defaultProtection
		c.sr2 = defaultConfiguration
		c.wel, c.welHold, c.busy = false, false, 0
	}
	return nil
}

func (c *Chip) readRegister(addr byte) (byte, error) {
	switch addr {
	case 0xA0:
		return c.sr1, nil
	case 0xB0:
		return c.sr2, nil
	case 0xC0:
		var v byte
		if c.wel || c.welHold {
			v |= welBit
		}
		if c.busy > 0 || c.stuck {
			v |= busyBit
		}
		if c.busy > 0 {
			if c.busy--; c.busy == 0 {
				c.welHold = false
			}
		}
		return v, nil
	}
	return 0, fmt.Errorf("%w %#02x", ErrBadRegister, addr)
}

func (c *Chip) consumeWEL() {
	c.wel = false
	c.welHold = c.busyPolls > 0
}

func (c *Chip) start() {
	c.busy = c.busyPolls
}

func (c *Chip) loadPage(addr uint32) {
	page := addr % pageCount
	if p, ok := c.pages[page]; ok {
		c.buffer = *p
		return
	}
	for i := range c.buffer {
		c.buffer[i] = 0xFF
	}
}

// program can only clear bits, like NAND cells.
func (c *Chip) program(addr uint32) {
	page := addr % pageCount
	p, ok := c.pages[page]
	if !ok {
		p = new([bufferSize]byte)
		for i := range p {
			p[i] = 0xFF
		}
		c.pages[page] = p
	}
	for i := range p {
		p[i] &= c.buffer[i]
	}
}

func (c *Chip) erase(addr uint32) {
	first := (addr % pageCount) / pagesPerBlock * pagesPerBlock
	for page := first; page < first+pagesPerBlock; page++ {
		delete(c.pages, page)
	}
}

func (c *Chip) takeFault(op byte, phase Phase) bool {
	for i, f := range c.faults {
		if f.op == op && f.phase == phase {
			c.faults = append(c.faults[:i], c.faults[i+1:]...)
			return true
		}
	}
	return false
}

// FailNext makes the next transfer of op in phase fail with ErrInjected.
func (c *Chip) FailNext(op byte, phase Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = append(c.faults, fault{op, phase})
}

// SetStuckBusy forces BUSY on (or releases it).
func (c *Chip) SetStuckBusy(stuck bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stuck = stuck
}

// Commands returns every command received so far, including rejected ones.
func (c *Chip) Commands() []qspi.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]qspi.Command(nil), c.log...)
}

// Opcodes returns the instruction byte of every command received so far.
func (c *Chip) Opcodes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	ops := make([]byte, len(c.log))
	for i, cmd := range c.log {
		ops[i] = cmd.Instruction
	}
	return ops
}

// ClearLog forgets the commands received so far.
func (c *Chip) ClearLog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = nil
}

// Page returns a copy of a page including its spare area.
func (c *Chip) Page(page uint32) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, bufferSize)
	if p, ok := c.pages[page]; ok {
		copy(out, p[:])
		return out
	}
	for i := range out {
		out[i] = 0xFF
	}
	return out
}

// Buffer returns a copy of the data buffer.
func (c *Chip) Buffer() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.buffer[:]...)
}

// ProgrammedPages returns the number of pages holding data.
func (c *Chip) ProgrammedPages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}
