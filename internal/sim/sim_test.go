package sim

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gentam/w25n/qspi"
)

func cmd(op byte, addrBits int, addr uint32, dummy int, dataLines qspi.Lines, n int) *qspi.Command {
	c := &qspi.Command{Instruction: op, AddressBits: addrBits, Address: addr, DummyCycles: dummy, DataLines: dataLines, DataLen: n}
	if addrBits > 0 {
		c.AddressLines = qspi.LinesSingle
	}
	return c
}

func mustCommand(t *testing.T, c *Chip, cm *qspi.Command) {
	t.Helper()
	if err := c.Command(cm); err != nil {
		t.Fatalf("Command(%s): %v", cm, err)
	}
}

func readStatus(t *testing.T, c *Chip) byte {
	t.Helper()
	mustCommand(t, c, cmd(0x0F, 8, 0xC0, 0, qspi.LinesSingle, 1))
	var v [1]byte
	if err := c.Receive(v[:]); err != nil {
		t.Fatal(err)
	}
	return v[0]
}

func TestJEDECID(t *testing.T) {
	c := New()
	mustCommand(t, c, cmd(0x9F, 0, 0, 8, qspi.LinesSingle, 3))
	id := make([]byte, 3)
	if err := c.Receive(id); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(id, DefaultJEDECID[:]) {
		t.Fatalf("id = %X", id)
	}
}

func TestMalformed(t *testing.T) {
	tests := []struct {
		name string
		cmd  *qspi.Command
	}{
		{"read page with column address", cmd(0x13, 16, 0, 0, qspi.LinesNone, 0)},
		{"read buffer without dummy", cmd(0x03, 16, 0, 0, qspi.LinesSingle, 4)},
		{"jedec without dummy", cmd(0x9F, 0, 0, 0, qspi.LinesSingle, 3)},
		{"write enable with address", cmd(0x06, 8, 0, 0, qspi.LinesNone, 0)},
		{"quad load on single line", cmd(0x34, 16, 0, 0, qspi.LinesSingle, 4)},
		{"erase with data", cmd(0xD8, 24, 0, 0, qspi.LinesSingle, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			if err := c.Command(tt.cmd); !errors.Is(err, ErrMalformed) {
				t.Fatalf("Command() = %v, want ErrMalformed", err)
			}
		})
	}

	c := New()
	if err := c.Command(cmd(0x99, 0, 0, 0, qspi.LinesNone, 0)); !errors.Is(err, ErrUnknownOp) {
		t.Fatalf("Command(0x99) = %v", err)
	}
}

func TestDataPhase(t *testing.T) {
	c := New()
	if err := c.Receive(make([]byte, 1)); !errors.Is(err, ErrNoPending) {
		t.Fatalf("Receive() without command = %v", err)
	}

	mustCommand(t, c, cmd(0x0F, 8, 0xC0, 0, qspi.LinesSingle, 1))
	if err := c.Transmit([]byte{0}); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("Transmit() after read command = %v", err)
	}

	mustCommand(t, c, cmd(0x0F, 8, 0xC0, 0, qspi.LinesSingle, 1))
	if err := c.Receive(make([]byte, 2)); !errors.Is(err, ErrLength) {
		t.Fatalf("Receive() with wrong length = %v", err)
	}
}

func TestProgramNeedsWEL(t *testing.T) {
	c := New(WithBusyPolls(0))
	data := []byte{1, 2, 3}

	mustCommand(t, c, cmd(0x84, 16, 0, 0, qspi.LinesSingle, 3))
	if err := c.Transmit(data); err != nil {
		t.Fatal(err)
	}
	if got := c.Buffer()[:3]; !bytes.Equal(got, []byte{0xFF, 0xFF, 0xFF}) {
		t.Fatalf("buffer loaded without WEL: %X", got)
	}

	mustCommand(t, c, cmd(0x06, 0, 0, 0, qspi.LinesNone, 0))
	mustCommand(t, c, cmd(0x84, 16, 0, 0, qspi.LinesSingle, 3))
	if err := c.Transmit(data); err != nil {
		t.Fatal(err)
	}
	mustCommand(t, c, cmd(0x10, 24, 7, 0, qspi.LinesNone, 0))
	if got := c.Page(7)[:3]; !bytes.Equal(got, data) {
		t.Fatalf("page 7 = %X", got)
	}
	if readStatus(t, c)&welBit != 0 {
		t.Fatal("WEL still set after program")
	}

	// a second execute without WEL changes nothing
	mustCommand(t, c, cmd(0x10, 24, 8, 0, qspi.LinesNone, 0))
	if n := c.ProgrammedPages(); n != 1 {
		t.Fatalf("%d programmed pages", n)
	}
}

func TestProgramClearsBitsOnly(t *testing.T) {
	c := New(WithBusyPolls(0))
	load := func(b byte) {
		mustCommand(t, c, cmd(0x06, 0, 0, 0, qspi.LinesNone, 0))
		mustCommand(t, c, cmd(0x84, 16, 0, 0, qspi.LinesSingle, 1))
		if err := c.Transmit([]byte{b}); err != nil {
			t.Fatal(err)
		}
		mustCommand(t, c, cmd(0x10, 24, 0, 0, qspi.LinesNone, 0))
	}
	load(0xF0)
	load(0x3C)
	if got := c.Page(0)[0]; got != 0x30 {
		t.Fatalf("page byte = %#x, want 0x30", got)
	}
}

func TestBusy(t *testing.T) {
	c := New(WithBusyPolls(2))
	mustCommand(t, c, cmd(0x06, 0, 0, 0, qspi.LinesNone, 0))
	mustCommand(t, c, cmd(0xD8, 24, 64, 0, qspi.LinesNone, 0))

	if err := c.Command(cmd(0x13, 24, 0, 0, qspi.LinesNone, 0)); !errors.Is(err, ErrBusy) {
		t.Fatalf("page read while busy = %v", err)
	}
	if sr := readStatus(t, c); sr != busyBit|welBit {
		t.Fatalf("status = %#x, want BUSY|WEL", sr)
	}
	if sr := readStatus(t, c); sr != busyBit|welBit {
		t.Fatalf("status = %#x, want BUSY|WEL", sr)
	}
	if sr := readStatus(t, c); sr != 0 {
		t.Fatalf("status = %#x after erase", sr)
	}
	mustCommand(t, c, cmd(0x13, 24, 0, 0, qspi.LinesNone, 0))
}

func TestResetRestoresRegisters(t *testing.T) {
	c := New()
	mustCommand(t, c, cmd(0x01, 8, 0xA0, 0, qspi.LinesSingle, 1))
	if err := c.Transmit([]byte{0}); err != nil {
		t.Fatal(err)
	}
	mustCommand(t, c, cmd(0x06, 0, 0, 0, qspi.LinesNone, 0))
	mustCommand(t, c, cmd(0xFF, 0, 0, 0, qspi.LinesNone, 0))

	mustCommand(t, c, cmd(0x0F, 8, 0xA0, 0, qspi.LinesSingle, 1))
	var v [1]byte
	if err := c.Receive(v[:]); err != nil {
		t.Fatal(err)
	}
	if v[0] != defaultProtection {
		t.Fatalf("protection = %#x", v[0])
	}
	if sr := readStatus(t, c); sr != 0 {
		t.Fatalf("status = %#x after reset", sr)
	}
}

func TestFailNext(t *testing.T) {
	c := New()
	c.FailNext(0x9F, PhaseData)
	mustCommand(t, c, cmd(0x9F, 0, 0, 8, qspi.LinesSingle, 3))
	if err := c.Receive(make([]byte, 3)); !errors.Is(err, ErrInjected) {
		t.Fatalf("Receive() = %v", err)
	}

	// one-shot
	mustCommand(t, c, cmd(0x9F, 0, 0, 8, qspi.LinesSingle, 3))
	if err := c.Receive(make([]byte, 3)); err != nil {
		t.Fatal(err)
	}
	if ops := c.Opcodes(); !bytes.Equal(ops, []byte{0x9F, 0x9F}) {
		t.Fatalf("log = % X", ops)
	}
}
