package w25n

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gentam/w25n/qspi"
)

// Geometry of the W25N04KV main array.
//
// [W25N04KV|6.1 Device Memory Array]
const (
	BlockCount    = 4096
	PagesPerBlock = 64
	PageCount     = BlockCount * PagesPerBlock // 262144
	PageSize      = 2048                       // data area of a page
	SpareSize     = 64                         // spare area following the data
	BufferSize    = PageSize + SpareSize       // on-chip data buffer
)

// Flash commands:
//   - [W25N04KV|8.1.2 Instruction Set Table]
const (
	opGetJEDEC             = 0x9F
	opReadRegister         = 0x0F
	opWriteRegister        = 0x01
	opReadPage             = 0x13 // Page Data Read: array -> buffer
	opReadBuffer           = 0x03
	opFastReadBuffer       = 0x0B
	opFastDualReadBuffer   = 0x3B
	opFastDualReadIO       = 0xBB
	opFastQuadReadBuffer   = 0x6B
	opFastQuadReadIO       = 0xEB
	opWriteEnable          = 0x06
	opWriteDisable         = 0x04
	opWriteBuffer          = 0x84 // Random Load Program Data
	opQuadWriteBuffer      = 0x34 // Quad Random Load Program Data
	opWriteBufferWithReset = 0x02 // Load Program Data, resets unwritten bytes to 0xFF
	opWriteExecute         = 0x10 // Program Execute: buffer -> array
	opEraseBlock           = 0xD8
	opResetDevice          = 0xFF
)

// ReadMode selects the instruction used to read the data buffer.
type ReadMode uint8

const (
	ReadStandard   ReadMode = iota // 0x03, all single line
	ReadFast                       // 0x0B
	ReadFastDual                   // 0x3B, data on 2 lines
	ReadFastDualIO                 // 0xBB, address and data on 2 lines
	ReadFastQuad                   // 0x6B, data on 4 lines
	ReadFastQuadIO                 // 0xEB, address and data on 4 lines
)

type busMode struct {
	name         string
	opcode       byte
	addressLines int
	dummyClocks  int
	dataLines    int
}

var readModes = [...]busMode{
	ReadStandard:   {"standard", opReadBuffer, 1, 8, 1},
	ReadFast:       {"fast", opFastReadBuffer, 1, 8, 1},
	ReadFastDual:   {"fast-dual", opFastDualReadBuffer, 1, 8, 2},
	ReadFastDualIO: {"fast-dual-io", opFastDualReadIO, 2, 4, 2},
	ReadFastQuad:   {"fast-quad", opFastQuadReadBuffer, 1, 8, 4},
	ReadFastQuadIO: {"fast-quad-io", opFastQuadReadIO, 4, 4, 4},
}

func (m ReadMode) String() string {
	if int(m) < len(readModes) {
		return readModes[m].name
	}
	return fmt.Sprintf("ReadMode(%d)", uint8(m))
}

// ParseReadMode returns the ReadMode named s, as printed by String.
func ParseReadMode(s string) (ReadMode, error) {
	for i, m := range readModes {
		if m.name == s {
			return ReadMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown read mode %q", s)
}

// WriteMode selects the instruction used to load the data buffer.
type WriteMode uint8

const (
	WriteStandard WriteMode = iota // 0x84
	WriteQuad                      // 0x34, data on 4 lines
)

var writeModes = [...]busMode{
	WriteStandard: {"standard", opWriteBuffer, 1, 0, 1},
	WriteQuad:     {"quad", opQuadWriteBuffer, 1, 0, 4},
}

func (m WriteMode) String() string {
	if int(m) < len(writeModes) {
		return writeModes[m].name
	}
	return fmt.Sprintf("WriteMode(%d)", uint8(m))
}

// ParseWriteMode returns the WriteMode named s, as printed by String.
func ParseWriteMode(s string) (WriteMode, error) {
	for i, m := range writeModes {
		if m.name == s {
			return WriteMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown write mode %q", s)
}

// Flash drives one W25N04KV chip. A Flash is safe for concurrent use; each
// command holds the chip for its whole duration, busy waits included.
type Flash struct {
	mu  sync.Mutex
	bus qspi.Bus
	cfg config
	log *slog.Logger

	id [3]byte // JEDEC ID of the flash chip
	pr *flashParams

	inflight time.Duration // datasheet maximum of the operation last started
}

func New(bus qspi.Bus, opts ...Option) *Flash {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Flash{
		bus: bus,
		cfg: cfg,
		log: cfg.log,
	}
}

// ReadID returns the JEDEC ID of the flash chip and configures its timing
// parameters. It returns a non-empty name for known IDs.
func (f *Flash) ReadID() (id [3]byte, name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var buf [3]byte
	if err = f.execute(&Instruction{
		Opcode:      opGetJEDEC,
		DummyClocks: 8,
		Direction:   DirReceive,
		Data:        buf[:],
	}); err != nil {
		return id, "", fmt.Errorf("read JEDEC ID: %w", err)
	}

	f.id = buf
	if params, ok := knownFlash[f.id]; ok {
		f.pr = &params
		name = params.name
	}
	return f.id, name, nil
}

func checkPage(page uint32) error {
	if page >= PageCount {
		return &ParameterError{Name: "page", Value: page, Max: PageCount}
	}
	return nil
}

// ReadPage transfers a page from the array into the data buffer. The
// transfer takes tRD; the next buffer access waits for it.
func (f *Flash) ReadPage(ctx context.Context, page uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readPage(ctx, page)
}

func (f *Flash) readPage(ctx context.Context, page uint32) error {
	if err := checkPage(page); err != nil {
		return err
	}
	if err := f.awaitNotBusy(ctx); err != nil {
		return err
	}
	if err := f.execute(&Instruction{
		Opcode:      opReadPage,
		Address:     page,
		AddressSize: 3,
	}); err != nil {
		return fmt.Errorf("read page %d: %w", page, err)
	}
	f.inflight = f.tRD()
	return nil
}

// ReadBuffer reads len(buf) bytes of the data buffer starting at column.
func (f *Flash) ReadBuffer(ctx context.Context, mode ReadMode, column uint16, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readBuffer(ctx, mode, column, buf)
}

func (f *Flash) readBuffer(ctx context.Context, mode ReadMode, column uint16, buf []byte) error {
	if int(mode) >= len(readModes) {
		return fmt.Errorf("%w: %v", ErrInvalidInstruction, mode)
	}
	m := readModes[mode]

	if err := f.awaitNotBusy(ctx); err != nil {
		return err
	}
	if err := f.execute(&Instruction{
		Opcode:       m.opcode,
		Address:      uint32(column),
		AddressSize:  2,
		AddressLines: m.addressLines,
		DummyClocks:  m.dummyClocks,
		Direction:    DirReceive,
		Data:         buf,
		DataLines:    m.dataLines,
	}); err != nil {
		return fmt.Errorf("read buffer (%s): %w", mode, err)
	}
	return nil
}

// WriteBuffer loads data into the data buffer starting at column. Bytes
// past the end of the buffer are dropped by the chip. Other bytes of the
// buffer are left as they are.
func (f *Flash) WriteBuffer(ctx context.Context, mode WriteMode, column uint16, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeBuffer(ctx, mode, column, data)
}

func (f *Flash) writeBuffer(ctx context.Context, mode WriteMode, column uint16, data []byte) error {
	if int(mode) >= len(writeModes) {
		return fmt.Errorf("%w: %v", ErrInvalidInstruction, mode)
	}
	m := writeModes[mode]

	if err := f.awaitNotBusy(ctx); err != nil {
		return err
	}
	if err := f.writeEnable(); err != nil {
		return err
	}
	if err := f.execute(&Instruction{
		Opcode:       m.opcode,
		Address:      uint32(column),
		AddressSize:  2,
		AddressLines: m.addressLines,
		Direction:    DirTransmit,
		Data:         data,
		DataLines:    m.dataLines,
	}); err != nil {
		return fmt.Errorf("write buffer (%s): %w", mode, err)
	}
	return nil
}

// WriteExecute programs the data buffer into page. The buffer keeps its
// contents; only EraseBuffer resets it.
func (f *Flash) WriteExecute(ctx context.Context, page uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeExecute(ctx, page)
}

func (f *Flash) writeExecute(ctx context.Context, page uint32) error {
	if err := checkPage(page); err != nil {
		return err
	}
	if err := f.awaitNotBusy(ctx); err != nil {
		return err
	}
	if err := f.execute(&Instruction{
		Opcode:      opWriteExecute,
		Address:     page,
		AddressSize: 3,
	}); err != nil {
		return fmt.Errorf("write execute page %d: %w", page, err)
	}
	f.inflight = f.tPP()
	return nil
}

// EraseBuffer sets every byte of the data buffer to 0xFF.
func (f *Flash) EraseBuffer(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eraseBuffer(ctx)
}

func (f *Flash) eraseBuffer(ctx context.Context) error {
	if err := f.writeEnable(); err != nil {
		return err
	}
	if err := f.awaitNotBusy(ctx); err != nil {
		return err
	}
	if err := f.execute(&Instruction{
		Opcode:      opWriteBufferWithReset,
		Address:     0,
		AddressSize: 2,
	}); err != nil {
		return fmt.Errorf("erase buffer: %w", err)
	}
	return f.writeDisable()
}

// EraseBlock erases the 64 pages of block.
func (f *Flash) EraseBlock(ctx context.Context, block uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.eraseBlock(ctx, block)
}

func (f *Flash) eraseBlock(ctx context.Context, block uint32) error {
	if block >= BlockCount {
		return &ParameterError{Name: "block", Value: block, Max: BlockCount}
	}
	if err := f.awaitNotBusy(ctx); err != nil {
		return err
	}
	if err := f.writeEnable(); err != nil {
		return err
	}
	if err := f.execute(&Instruction{
		Opcode:      opEraseBlock,
		Address:     block * PagesPerBlock,
		AddressSize: 3,
	}); err != nil {
		return fmt.Errorf("erase block %d: %w", block, err)
	}
	f.inflight = f.tBE()
	return nil
}

// Reset issues a software reset and clears block protection, which the
// reset restores to its power-on default.
func (f *Flash) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reset(ctx)
}

func (f *Flash) reset(ctx context.Context) error {
	if err := f.awaitNotBusy(ctx); err != nil {
		return err
	}
	if err := f.execute(&Instruction{Opcode: opResetDevice}); err != nil {
		return fmt.Errorf("reset device: %w", err)
	}
	time.Sleep(f.tRST())
	return f.disableWriteProtection()
}

// EraseDevice erases every block, then the data buffer, then resets the
// device. It stops at the first failure.
func (f *Flash) EraseDevice(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for b := uint32(0); b < BlockCount; b++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.eraseBlock(ctx, b); err != nil {
			return err
		}
		f.report("erase", int(b)+1, BlockCount)
	}
	if err := f.eraseBuffer(ctx); err != nil {
		return err
	}
	return f.reset(ctx)
}

func (f *Flash) report(op string, done, total int) {
	if f.cfg.progress != nil {
		f.cfg.progress(Progress{Op: op, Done: done, Total: total})
	}
}

// ProgramPage replaces the data buffer with data and programs it into
// page. Columns not covered by data are written as 0xFF.
func (f *Flash) ProgramPage(ctx context.Context, page uint32, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.programPage(ctx, page, data)
}

func (f *Flash) programPage(ctx context.Context, page uint32, data []byte) error {
	if err := checkPage(page); err != nil {
		return err
	}
	if len(data) > BufferSize {
		return errors.New("data must not exceed the data buffer")
	}
	if err := f.eraseBuffer(ctx); err != nil {
		return err
	}
	if len(data) > 0 {
		if err := f.writeBuffer(ctx, WriteStandard, 0, data); err != nil {
			return err
		}
	}
	return f.writeExecute(ctx, page)
}

// Read reads n bytes of page data starting at page, continuing into the
// following pages as needed. Spare areas are skipped.
func (f *Flash) Read(ctx context.Context, page uint32, n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]byte, n)
	off := 0
	for remaining := n; remaining > 0; page++ {
		chunk := min(remaining, PageSize)
		if err := f.readPage(ctx, page); err != nil {
			return nil, err
		}
		if err := f.readBuffer(ctx, ReadStandard, 0, out[off:off+chunk]); err != nil {
			return nil, err
		}
		off += chunk
		remaining -= chunk
	}
	return out, nil
}

// Write programs the contents of r into successive pages starting at page
// and returns the number of pages written. The target pages must be
// erased.
func (f *Flash) Write(ctx context.Context, page uint32, r io.Reader) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	buf := make([]byte, PageSize)
	pages := 0
	for {
		n, err := io.ReadFull(r, buf)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return pages, err
		}
		if n == 0 {
			break
		}
		if err := f.programPage(ctx, page, buf[:n]); err != nil {
			return pages, err
		}
		page++
		pages++
		if n < PageSize {
			break
		}
	}
	return pages, nil
}
