package harness

import (
	"context"
	"fmt"

	"github.com/gentam/w25n"
)

// The head/tail scenarios use block 0 only.
const (
	logBlock = 0
	logPages = w25n.PagesPerBlock
)

// testPacket is a live log record: marker 0x45 and a fixed payload.
func testPacket() []byte {
	pkt := make([]byte, w25n.PacketSize)
	pkt[0] = 0x45
	x := uint32(0x8D35923C)
	for i := 1; i < len(pkt); i++ {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		pkt[i] = byte(x)
	}
	return pkt
}

// writePackets loads packets into the given slots of page and programs it.
func (h *Harness) writePackets(ctx context.Context, page uint32, slots ...int) error {
	pkt := testPacket()
	if err := h.flash.EraseBuffer(ctx); err != nil {
		return err
	}
	for _, s := range slots {
		if err := h.flash.WriteBuffer(ctx, w25n.WriteStandard, uint16(s*w25n.PacketSize), pkt); err != nil {
			return err
		}
	}
	return h.flash.WriteExecute(ctx, page)
}

func (h *Harness) expectSpan(ctx context.Context, check string, want w25n.CircularBuffer) error {
	got, err := h.flash.FindHeadTail(ctx, logBlock*w25n.PagesPerBlock, logBlock*w25n.PagesPerBlock+logPages)
	if err != nil {
		return err
	}
	fmt.Fprintf(h.out, "%s: %s\n", check, got)
	h.expect(got == want, check, "got %s, want %s", got, want)
	return nil
}

func (h *Harness) headTailTest(ctx context.Context, _ []string) error {
	if err := h.flash.EraseBlock(ctx, logBlock); err != nil {
		return err
	}
	if err := h.expectSpan(ctx, "empty log", w25n.CircularBuffer{}); err != nil {
		return err
	}

	// three packets at the start of page 0
	if err := h.writePackets(ctx, 0, 0, 1, 2); err != nil {
		return err
	}
	if err := h.expectSpan(ctx, "contiguous", w25n.CircularBuffer{Head: 0, Tail: 1014}); err != nil {
		return err
	}
	if err := h.flash.EraseBlock(ctx, logBlock); err != nil {
		return err
	}

	// slots 1-3 of page 1
	if err := h.writePackets(ctx, 1, 1, 2, 3); err != nil {
		return err
	}
	if err := h.expectSpan(ctx, "offset", w25n.CircularBuffer{Head: 2386, Tail: 3400}); err != nil {
		return err
	}

	// one more packet in slot 4 of page 2 leaves a gap
	if err := h.writePackets(ctx, 2, 4); err != nil {
		return err
	}
	if err := h.expectSpan(ctx, "gapped", w25n.CircularBuffer{Head: 2386, Tail: 5786}); err != nil {
		return err
	}

	return h.flash.EraseBlock(ctx, logBlock)
}
