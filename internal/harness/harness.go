// Package harness runs on-device diagnostics against a flash chip. Each
// scenario prints its checks as it goes and returns the ones that failed.
package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gentam/w25n"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrChecksFailed   = errors.New("checks failed")
)

// Failure is one check that did not hold.
type Failure struct {
	Test    string
	Check   string
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s: %s", f.Test, f.Check, f.Message)
}

// Harness dispatches diagnostic commands by name.
type Harness struct {
	flash *w25n.Flash
	out   io.Writer
	log   *slog.Logger

	test     string
	passed   int
	failures []*Failure
}

func New(f *w25n.Flash, out io.Writer, log *slog.Logger) *Harness {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Harness{flash: f, out: out, log: log}
}

type command struct {
	name  string
	usage string
	desc  string
	run   func(ctx context.Context, args []string) error
}

func (h *Harness) commands() []command {
	return []command{
		{"help", "help", "Displays available commands and descriptions.",
			func(context.Context, []string) error { h.help(); return nil }},
		{"reset-device", "reset-device", "Resets and erases the entire flash device.",
			h.resetDevice},
		{"register-test", "register-test", "Verifies the values and behaviour of the status registers.",
			h.registerTest},
		{"data-test", "data-test [page]", "Checks buffer, read, write and erase on pages p, p+1 and the next block.",
			h.dataTest},
		{"head-tail-test", "head-tail-test", "Checks head and tail detection of the packet log in block 0.",
			h.headTailTest},
	}
}

// Names lists the commands in help order.
func (h *Harness) Names() []string {
	cmds := h.commands()
	names := make([]string, len(cmds))
	for i, c := range cmds {
		names[i] = c.name
	}
	return names
}

// Run executes the named command. A bus or parameter error aborts the
// command and is returned as is; failed checks are returned together with
// an error wrapping ErrChecksFailed.
func (h *Harness) Run(ctx context.Context, name string, args []string) ([]*Failure, error) {
	var cmd *command
	for _, c := range h.commands() {
		if c.name == name {
			cmd = &c
			break
		}
	}
	if cmd == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, name)
	}

	h.test, h.passed, h.failures = name, 0, nil
	h.log.Info("running diagnostic", slog.String("command", name), slog.Any("args", args))
	if err := cmd.run(ctx, args); err != nil {
		return h.failures, fmt.Errorf("%s: %w", name, err)
	}
	if n := len(h.failures); n > 0 {
		return h.failures, fmt.Errorf("%s: %w: %d of %d", name, ErrChecksFailed, n, n+h.passed)
	}
	return nil, nil
}

// expect records the outcome of one check.
func (h *Harness) expect(ok bool, check, format string, a ...any) {
	if ok {
		h.passed++
		fmt.Fprintf(h.out, "[PASSED] %s\n", check)
		return
	}
	f := &Failure{Test: h.test, Check: check, Message: fmt.Sprintf(format, a...)}
	h.failures = append(h.failures, f)
	h.log.Warn("check failed", slog.String("test", f.Test), slog.String("check", check), slog.String("detail", f.Message))
	fmt.Fprintf(h.out, "[ERROR] %s: %s\n", check, f.Message)
}

func (h *Harness) help() {
	fmt.Fprintf(h.out, "COMMANDS\nFORMAT:\t<command> [<args>...]\n\n")
	for _, c := range h.commands() {
		fmt.Fprintf(h.out, "%s\n\t%s\n", c.usage, c.desc)
	}
}

func (h *Harness) resetDevice(ctx context.Context, _ []string) error {
	fmt.Fprintln(h.out, "Performing software and data reset...")
	if err := h.flash.Reset(ctx); err != nil {
		return err
	}
	if err := h.flash.EraseDevice(ctx); err != nil {
		return err
	}
	fmt.Fprintln(h.out, "Reset complete")
	return nil
}

func (h *Harness) registerTest(ctx context.Context, _ []string) error {
	pr, err := h.flash.ReadProtection()
	if err != nil {
		return err
	}
	h.expect(pr == 0, "protection register cleared",
		"got %s, some blocks are still protected", pr)

	cr, err := h.flash.ReadConfiguration()
	if err != nil {
		return err
	}
	h.expect(cr == w25n.DefaultConfiguration, "configuration register default",
		"got %s, want %s", cr, w25n.DefaultConfiguration)

	sr, err := h.flash.ReadStatus()
	if err != nil {
		return err
	}
	h.expect(sr == 0, "status register idle",
		"got %s, possible program or erase failure", sr)

	if err := h.flash.WriteEnable(); err != nil {
		return err
	}
	sr, err = h.flash.ReadStatus()
	if err != nil {
		return err
	}
	h.expect(sr == 0b10, "write enable latch sets", "got %s", sr)

	// Status is read right after the erase is issued, without waiting.
	if err := h.flash.EraseBlock(ctx, 0); err != nil {
		return err
	}
	sr, err = h.flash.ReadStatus()
	if err != nil {
		return err
	}
	fmt.Fprintf(h.out, "status during erase: %s\n", sr)
	h.expect(sr == 0b11, "busy during erase", "got %s, want BUSY and WEL", sr)

	if err := h.flash.AwaitNotBusy(ctx); err != nil {
		return err
	}
	sr, err = h.flash.ReadStatus()
	if err != nil {
		return err
	}
	h.expect(sr == 0, "busy and latch clear after erase", "got %s", sr)
	return nil
}

// Pages a data test may start at: p+1 and the following block must exist.
const (
	minTestPage = 1
	maxTestPage = w25n.PageCount - 1 - w25n.PagesPerBlock
)

// parsePage clamps a page argument into the testable range. Malformed
// arguments are reported and ignored.
func (h *Harness) parsePage(args []string) uint32 {
	page := uint32(minTestPage)
	if len(args) == 0 {
		return page
	}
	v, err := strconv.ParseUint(strings.TrimSpace(args[0]), 10, 32)
	if err != nil {
		fmt.Fprintf(h.out, "Parameter %q is invalid, expected a non-negative number\n", args[0])
		return page
	}
	return uint32(min(max(v, minTestPage), maxTestPage))
}

var testData = []byte{0x34, 0x5B, 0x78, 0x68}

func (h *Harness) readBuffer(ctx context.Context, column uint16) ([]byte, error) {
	buf := make([]byte, len(testData))
	err := h.flash.ReadBuffer(ctx, w25n.ReadStandard, column, buf)
	return buf, err
}

func (h *Harness) readPage(ctx context.Context, page uint32) ([]byte, error) {
	if err := h.flash.ReadPage(ctx, page); err != nil {
		return nil, err
	}
	return h.readBuffer(ctx, 0)
}

func (h *Harness) dataTest(ctx context.Context, args []string) error {
	p := h.parsePage(args)
	erased := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	shifted := []byte{testData[2], testData[3], 0xFF, 0xFF}
	fmt.Fprintf(h.out, "Testing buffer, read, write and erase at page %d, please ensure the device is wiped\n", p)

	if err := h.flash.EraseBuffer(ctx); err != nil {
		return err
	}
	got, err := h.readBuffer(ctx, 0)
	if err != nil {
		return err
	}
	h.expect(bytes.Equal(got, erased), "buffer empty", "got %X", got)

	if err := h.flash.WriteBuffer(ctx, w25n.WriteStandard, 0, testData); err != nil {
		return err
	}
	if got, err = h.readBuffer(ctx, 0); err != nil {
		return err
	}
	h.expect(bytes.Equal(got, testData), "buffer write", "got %X, want %X", got, testData)

	if got, err = h.readBuffer(ctx, 2); err != nil {
		return err
	}
	h.expect(bytes.Equal(got, shifted), "buffer read at column 2", "got %X, want %X", got, shifted)

	if err := h.flash.WriteExecute(ctx, p); err != nil {
		return err
	}
	if got, err = h.readBuffer(ctx, 0); err != nil {
		return err
	}
	h.expect(bytes.Equal(got, testData), "buffer kept after execute", "got %X, want %X", got, testData)

	if err := h.flash.EraseBuffer(ctx); err != nil {
		return err
	}
	if got, err = h.readBuffer(ctx, 0); err != nil {
		return err
	}
	h.expect(bytes.Equal(got, erased), "buffer erase", "got %X", got)

	if got, err = h.readPage(ctx, p+1); err != nil {
		return err
	}
	h.expect(bytes.Equal(got, erased), "untouched page empty", "page %d: got %X", p+1, got)

	if got, err = h.readPage(ctx, p); err != nil {
		return err
	}
	h.expect(bytes.Equal(got, testData), "page program", "page %d: got %X, want %X", p, got, testData)

	return h.eraseTest(ctx, p/w25n.PagesPerBlock)
}

// eraseTest fills blocks b and b+1, erases b and checks that only b was
// cleared. Both blocks are left erased.
func (h *Harness) eraseTest(ctx context.Context, b uint32) error {
	first := b * w25n.PagesPerBlock
	next := first + w25n.PagesPerBlock
	fmt.Fprintf(h.out, "Filling blocks %d and %d with %X\n", b, b+1, testData)
	for p := first; p < next+w25n.PagesPerBlock; p++ {
		if err := h.flash.ProgramPage(ctx, p, testData); err != nil {
			return err
		}
	}

	for _, p := range []uint32{first, next} {
		got, err := h.readPage(ctx, p)
		if err != nil {
			return err
		}
		h.expect(bytes.Equal(got, testData), fmt.Sprintf("page %d filled", p), "got %X", got)
	}

	if err := h.flash.EraseBlock(ctx, b); err != nil {
		return err
	}
	for _, p := range []uint32{first, first + 1} {
		got, err := h.readPage(ctx, p)
		if err != nil {
			return err
		}
		h.expect(bytes.Equal(got, []byte{0xFF, 0xFF, 0xFF, 0xFF}), fmt.Sprintf("page %d erased", p), "got %X", got)
	}
	got, err := h.readPage(ctx, next)
	if err != nil {
		return err
	}
	h.expect(bytes.Equal(got, testData), fmt.Sprintf("page %d kept", next), "block %d was erased too: got %X", b+1, got)

	return h.flash.EraseBlock(ctx, b+1)
}
