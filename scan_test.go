package w25n

import (
	"context"
	"errors"
	"testing"

	"github.com/gentam/w25n/internal/sim"
)

// programPackets writes a page with live packets in the given slots.
func programPackets(t *testing.T, f *Flash, page uint32, slots ...int) {
	t.Helper()
	var pg Page
	for i := range pg {
		pg[i] = ErasedMarker
	}
	for _, s := range slots {
		pkt := pg.Packet(s)
		pkt[0] = 0x01
		for i := range pkt.Payload() {
			pkt.Payload()[i] = byte(s + i)
		}
	}
	if err := f.ProgramPage(context.Background(), page, pg[:]); err != nil {
		t.Fatal(err)
	}
}

func TestPageLayout(t *testing.T) {
	if PagePadding != 20 {
		t.Fatalf("PagePadding = %d", PagePadding)
	}
	var pg Page
	pg[5*PacketSize] = 0x42
	if m := pg.Packet(5).Marker(); m != 0x42 {
		t.Fatalf("marker of packet 5 = %#x", m)
	}
	if n := len(pg.Packet(0).Payload()); n != PacketSize-1 {
		t.Fatalf("payload size = %d", n)
	}
	if n := len(pg.Padding()); n != PagePadding {
		t.Fatalf("padding size = %d", n)
	}

	// packets alias the page
	pg.Packet(1)[0] = ErasedMarker
	if pg[PacketSize] != ErasedMarker || pg.Packet(1).Live() {
		t.Fatal("packet does not alias page")
	}
}

func TestFindHeadTail(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		setup func(*testing.T, *Flash)
		want  CircularBuffer
	}{
		{
			name: "contiguous",
			setup: func(t *testing.T, f *Flash) {
				programPackets(t, f, 0, 0, 1, 2)
			},
			want: CircularBuffer{Head: 0, Tail: 1014},
		},
		{
			name: "offset",
			setup: func(t *testing.T, f *Flash) {
				programPackets(t, f, 1, 1, 2, 3)
			},
			want: CircularBuffer{Head: 2386, Tail: 3400},
		},
		{
			name: "gapped",
			setup: func(t *testing.T, f *Flash) {
				programPackets(t, f, 1, 1, 2, 3)
				// a single packet loaded at column 1352 of page 2 (slot 4)
				pkt := make([]byte, PacketSize)
				pkt[0] = 0x01
				if err := f.EraseBuffer(ctx); err != nil {
					t.Fatal(err)
				}
				if err := f.WriteBuffer(ctx, WriteStandard, 4*PacketSize, pkt); err != nil {
					t.Fatal(err)
				}
				if err := f.WriteExecute(ctx, 2); err != nil {
					t.Fatal(err)
				}
			},
			want: CircularBuffer{Head: 2386, Tail: 5786},
		},
		{
			name: "last slot",
			setup: func(t *testing.T, f *Flash) {
				programPackets(t, f, 3, 5)
			},
			want: CircularBuffer{Head: 3*PageSize + 5*PacketSize, Tail: 4*PageSize - PagePadding},
		},
		{
			name:  "empty",
			setup: func(*testing.T, *Flash) {},
			want:  CircularBuffer{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := newTestFlash(t)
			tt.setup(t, f)
			got, err := f.FindHeadTail(ctx, 0, 8)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("FindHeadTail() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFindHeadTailRange(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestFlash(t)
	programPackets(t, f, 2, 0)
	programPackets(t, f, 6, 2)

	got, err := f.FindHeadTail(ctx, 3, 8)
	if err != nil {
		t.Fatal(err)
	}
	if want := (CircularBuffer{Head: 6*PageSize + 2*PacketSize, Tail: 6*PageSize + 3*PacketSize}); got != want {
		t.Fatalf("FindHeadTail(3, 8) = %s, want %s", got, want)
	}

	got, err = f.FindHeadTail(ctx, 3, 6)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Empty() || got.String() != "empty" {
		t.Fatalf("FindHeadTail(3, 6) = %s, want empty", got)
	}
}

func TestFindHeadTailSequencing(t *testing.T) {
	f, chip := newTestFlash(t, sim.WithBusyPolls(0))
	if _, err := f.FindHeadTail(context.Background(), 10, 12); err != nil {
		t.Fatal(err)
	}
	cmds := chip.Commands()
	var pages []uint32
	for _, c := range cmds {
		switch c.Instruction {
		case opReadPage:
			pages = append(pages, c.Address)
		case opReadBuffer:
			if c.Address != 0 || c.DataLen != PageSize {
				t.Fatalf("buffer read %s, want column 0 length %d", c, PageSize)
			}
		}
	}
	if len(pages) != 2 || pages[0] != 10 || pages[1] != 11 {
		t.Fatalf("pages read = %v", pages)
	}
	if n := countOp(chip, opReadBuffer); n != 2 {
		t.Fatalf("%d buffer reads", n)
	}
}

func TestFindHeadTailProgress(t *testing.T) {
	var got []Progress
	f := New(sim.New(sim.WithBusyPolls(0)), WithProgress(func(p Progress) {
		got = append(got, p)
	}))
	if _, err := f.FindHeadTail(context.Background(), 100, 104); err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("%d progress reports", len(got))
	}
	if last := got[3]; last != (Progress{Op: "scan", Done: 4, Total: 4}) {
		t.Fatalf("last progress = %+v", last)
	}
}

func TestFindHeadTailRejectsRange(t *testing.T) {
	f, chip := newTestFlash(t)
	_, err := f.FindHeadTail(context.Background(), 0, PageCount+1)
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("FindHeadTail() = %v, want ErrInvalidParameter", err)
	}
	if n := len(chip.Commands()); n != 0 {
		t.Fatalf("%d commands issued", n)
	}
}

func TestFindHeadTailCanceled(t *testing.T) {
	f, chip := newTestFlash(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.FindHeadTailDevice(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("FindHeadTailDevice() = %v", err)
	}
	if n := len(chip.Commands()); n != 0 {
		t.Fatalf("%d commands issued after cancel", n)
	}
}

func TestFindHeadTailBusFailure(t *testing.T) {
	f, chip := newTestFlash(t)
	chip.FailNext(opReadPage, sim.PhaseCommand)
	_, err := f.FindHeadTail(context.Background(), 0, 4)
	if !errors.Is(err, ErrBus) {
		t.Fatalf("FindHeadTail() = %v, want ErrBus", err)
	}
}
