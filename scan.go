package w25n

import (
	"context"
	"fmt"
)

// Log layout. Each page holds six fixed-size packets followed by padding.
// A packet whose marker byte is 0xFF is an erased slot.
const (
	PacketSize     = 338
	PacketsPerPage = 6
	PagePadding    = PageSize - PacketsPerPage*PacketSize // 20

	ErasedMarker = 0xFF
)

// Packet is one log record: a marker byte and its payload.
type Packet [PacketSize]byte

func (p *Packet) Marker() byte    { return p[0] }
func (p *Packet) Payload() []byte { return p[1:] }
func (p *Packet) Live() bool      { return p[0] != ErasedMarker }

// Page is the data area of a page viewed as log packets.
type Page [PageSize]byte

// Packet returns the i-th packet of the page.
func (pg *Page) Packet(i int) *Packet {
	return (*Packet)(pg[i*PacketSize : (i+1)*PacketSize])
}

// Padding returns the unused tail of the page.
func (pg *Page) Padding() []byte {
	return pg[PacketsPerPage*PacketSize:]
}

// CircularBuffer holds the byte offsets bounding the live region of the
// log: Head is the first byte of the first live packet, Tail one past the
// last byte of the last live packet. Erased slots between them are part of
// the span.
type CircularBuffer struct {
	Head uint32
	Tail uint32
}

// Empty reports whether no live packet was found.
func (c CircularBuffer) Empty() bool { return c.Tail == 0 }

// Len returns the size of the span in bytes.
func (c CircularBuffer) Len() uint32 { return c.Tail - c.Head }

func (c CircularBuffer) String() string {
	if c.Empty() {
		return "empty"
	}
	return fmt.Sprintf("head=%d tail=%d", c.Head, c.Tail)
}

// FindHeadTail scans pages [start, end) and returns the span of live
// packets.
func (f *Flash) FindHeadTail(ctx context.Context, start, end uint32) (CircularBuffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findHeadTail(ctx, start, end)
}

// FindHeadTailDevice scans the whole device.
func (f *Flash) FindHeadTailDevice(ctx context.Context) (CircularBuffer, error) {
	return f.FindHeadTail(ctx, 0, PageCount)
}

func (f *Flash) findHeadTail(ctx context.Context, start, end uint32) (CircularBuffer, error) {
	var buf CircularBuffer
	if end > PageCount {
		return buf, &ParameterError{Name: "end page", Value: end, Max: PageCount + 1}
	}

	var page Page
	headFound := false
	for p := start; p < end; p++ {
		if err := ctx.Err(); err != nil {
			return buf, err
		}
		if err := f.readPage(ctx, p); err != nil {
			return buf, err
		}
		if err := f.readBuffer(ctx, ReadStandard, 0, page[:]); err != nil {
			return buf, err
		}

		for i := range PacketsPerPage {
			if !page.Packet(i).Live() {
				continue
			}
			if !headFound {
				buf.Head = p*PageSize + uint32(i)*PacketSize
				headFound = true
			}
			buf.Tail = p*PageSize + uint32(i+1)*PacketSize
		}
		f.report("scan", int(p-start)+1, int(end-start))
	}
	return buf, nil
}
