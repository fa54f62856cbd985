package w25n

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Register selects one of the three status/configuration registers by its
// address.
//
// [W25N04KV|7. Status Registers]
type Register byte

const (
	Protection    Register = 0xA0 // Status Register-1
	Configuration Register = 0xB0 // Status Register-2
	Status        Register = 0xC0 // Status Register-3
)

// Registers lists the registers in the order the datasheet numbers them.
var Registers = [...]Register{Protection, Configuration, Status}

// RegisterByNumber maps the datasheet numbering (1, 2, 3) to a Register.
func RegisterByNumber(n int) (Register, error) {
	if n < 1 || n > len(Registers) {
		return 0, &ParameterError{Name: "register", Value: uint32(n), Max: uint32(len(Registers)) + 1}
	}
	return Registers[n-1], nil
}

func (r Register) String() string {
	switch r {
	case Protection:
		return "protection"
	case Configuration:
		return "configuration"
	case Status:
		return "status"
	}
	return fmt.Sprintf("Register(%#02x)", byte(r))
}

// RegisterSentinel is returned alongside the error of a failed register
// read. With every bit set it also reads as BUSY, so code that only looks
// at the value stays on the safe side.
const RegisterSentinel byte = 0xFF

// StatusRegister is Status Register-3.
//
//	Bit | [W25N04KV|7.3 Status Register-3]
//	----+-----------------------------------
//	6   | LUT-F: BBM LUT full
//	5:4 | ECC-1, ECC-0: ECC status
//	3   | P-FAIL: program failure
//	2   | E-FAIL: erase failure
//	1   | WEL: write enable latch
//	0   | BUSY: operation in progress
type StatusRegister byte

func (sr StatusRegister) LUTFull() bool       { return sr&(1<<6) != 0 }
func (sr StatusRegister) ECC() int            { return int(sr>>4) & 0b11 }
func (sr StatusRegister) ProgramFailed() bool { return sr&(1<<3) != 0 }
func (sr StatusRegister) EraseFailed() bool   { return sr&(1<<2) != 0 }
func (sr StatusRegister) WriteEnabled() bool  { return sr&(1<<1) != 0 }
func (sr StatusRegister) Busy() bool          { return sr&(1<<0) != 0 }

func (sr StatusRegister) String() string {
	s := []string{}
	if sr.LUTFull() {
		s = append(s, "LUT-F")
	}
	if ecc := sr.ECC(); ecc != 0 {
		s = append(s, fmt.Sprintf("ECC=%d", ecc))
	}
	if sr.ProgramFailed() {
		s = append(s, "P-FAIL")
	}
	if sr.EraseFailed() {
		s = append(s, "E-FAIL")
	}
	if sr.WriteEnabled() {
		s = append(s, "WEL")
	}
	if sr.Busy() {
		s = append(s, "BUSY")
	}
	return bitString(byte(sr), s)
}

// ProtectionRegister is Status Register-1.
//
//	Bit | [W25N04KV|7.1 Protection Register]
//	----+-----------------------------------
//	7   | SRP0: status register protect 0
//	6:3 | BP3-0: block protect bits
//	2   | TB: top/bottom protect
//	1   | WP-E: /WP enable
//	0   | SRP1: status register protect 1
type ProtectionRegister byte

func (pr ProtectionRegister) BlockProtect() int { return int(pr>>3) & 0b1111 }
func (pr ProtectionRegister) TopBottom() bool   { return pr&(1<<2) != 0 }
func (pr ProtectionRegister) WPEnable() bool    { return pr&(1<<1) != 0 }

func (pr ProtectionRegister) String() string {
	s := []string{}
	if pr&(1<<7) != 0 {
		s = append(s, "SRP0")
	}
	if bp := pr.BlockProtect(); bp != 0 {
		s = append(s, fmt.Sprintf("BP=%d", bp))
	}
	if pr.TopBottom() {
		s = append(s, "TB")
	}
	if pr.WPEnable() {
		s = append(s, "WP-E")
	}
	if pr&1 != 0 {
		s = append(s, "SRP1")
	}
	return bitString(byte(pr), s)
}

// ConfigRegister is Status Register-2.
//
//	Bit | [W25N04KV|7.2 Configuration Register]
//	----+--------------------------------------
//	7   | OTP-L: OTP lock
//	6   | OTP-E: enter OTP mode
//	5   | SR1-L: status register-1 lock
//	4   | ECC-E: enable ECC
//	3   | BUF: buffer read mode
//	0   | H-DIS: /HOLD disable
type ConfigRegister byte

// DefaultConfiguration is the power-on value of Status Register-2.
const DefaultConfiguration ConfigRegister = 0x19

func (cr ConfigRegister) ECCEnabled() bool  { return cr&(1<<4) != 0 }
func (cr ConfigRegister) BufferMode() bool  { return cr&(1<<3) != 0 }
func (cr ConfigRegister) HoldDisable() bool { return cr&(1<<0) != 0 }

func (cr ConfigRegister) String() string {
	s := []string{}
	if cr&(1<<7) != 0 {
		s = append(s, "OTP-L")
	}
	if cr&(1<<6) != 0 {
		s = append(s, "OTP-E")
	}
	if cr&(1<<5) != 0 {
		s = append(s, "SR1-L")
	}
	if cr.ECCEnabled() {
		s = append(s, "ECC-E")
	}
	if cr.BufferMode() {
		s = append(s, "BUF")
	}
	if cr.HoldDisable() {
		s = append(s, "H-DIS")
	}
	return bitString(byte(cr), s)
}

func bitString(b byte, flags []string) string {
	s := fmt.Sprintf("%08b", b)
	if len(flags) == 0 {
		return s
	}
	return s + " " + strings.Join(flags, ",")
}

// ReadRegister reads r. Registers are never cached. On failure the value is
// RegisterSentinel.
func (f *Flash) ReadRegister(r Register) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readRegister(r)
}

func (f *Flash) readRegister(r Register) (byte, error) {
	var v [1]byte
	if err := f.execute(&Instruction{
		Opcode:      opReadRegister,
		Address:     uint32(r),
		AddressSize: 1,
		Direction:   DirReceive,
		Data:        v[:],
	}); err != nil {
		return RegisterSentinel, fmt.Errorf("read %s register: %w", r, err)
	}
	return v[0], nil
}

// WriteRegister writes v to r.
func (f *Flash) WriteRegister(r Register, v byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeRegister(r, v)
}

func (f *Flash) writeRegister(r Register, v byte) error {
	if err := f.execute(&Instruction{
		Opcode:      opWriteRegister,
		Address:     uint32(r),
		AddressSize: 1,
		Direction:   DirTransmit,
		Data:        []byte{v},
	}); err != nil {
		return fmt.Errorf("write %s register: %w", r, err)
	}
	return nil
}

// ReadStatus reads Status Register-3.
func (f *Flash) ReadStatus() (StatusRegister, error) {
	v, err := f.ReadRegister(Status)
	return StatusRegister(v), err
}

// ReadProtection reads Status Register-1.
func (f *Flash) ReadProtection() (ProtectionRegister, error) {
	v, err := f.ReadRegister(Protection)
	return ProtectionRegister(v), err
}

// ReadConfiguration reads Status Register-2.
func (f *Flash) ReadConfiguration() (ConfigRegister, error) {
	v, err := f.ReadRegister(Configuration)
	return ConfigRegister(v), err
}

// IsBusy reports the BUSY bit. A failed read reports busy together with
// the error.
func (f *Flash) IsBusy() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isBusy()
}

func (f *Flash) isBusy() (bool, error) {
	v, err := f.readRegister(Status)
	if err != nil {
		return true, err
	}
	return StatusRegister(v).Busy(), nil
}

// IsWriteEnabled reports the WEL bit.
func (f *Flash) IsWriteEnabled() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := f.readRegister(Status)
	if err != nil {
		return false, err
	}
	return StatusRegister(v).WriteEnabled(), nil
}

// AwaitNotBusy blocks until BUSY clears. Failed status reads count as busy.
// The wait is bounded by the timing of the last array operation issued (or
// the WithBusyTimeout override) and returns ErrTimeout when exceeded.
func (f *Flash) AwaitNotBusy(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.awaitNotBusy(ctx)
}

func (f *Flash) awaitNotBusy(ctx context.Context) error {
	// Fast path
	busy, lastErr := f.isBusy()
	if !busy {
		f.inflight = 0
		return nil
	}

	timeout := f.busyTimeout()
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	ticker := time.NewTicker(f.cfg.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-expired:
			f.log.Warn("busy wait timed out", slog.Duration("timeout", timeout), slog.Any("error", lastErr))
			if lastErr != nil {
				return fmt.Errorf("%w after %v: %w", ErrTimeout, timeout, lastErr)
			}
			return fmt.Errorf("%w after %v", ErrTimeout, timeout)
		case <-ticker.C:
			busy, err := f.isBusy()
			if err != nil {
				lastErr = err
				continue
			}
			if !busy {
				f.inflight = 0
				return nil
			}
		}
	}
}

// busyTimeout allows generous slack over the datasheet maximum of the
// operation in flight, with a floor that covers USB adapter latency.
func (f *Flash) busyTimeout() time.Duration {
	if f.cfg.fixedTimeout {
		return f.cfg.busyTimeout
	}
	const floor = 100 * time.Millisecond
	return max(10*f.inflight, floor)
}

// WriteEnable sets the write enable latch. The latch clears by itself once
// a program or erase completes.
func (f *Flash) WriteEnable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeEnable()
}

func (f *Flash) writeEnable() error {
	if err := f.execute(&Instruction{Opcode: opWriteEnable}); err != nil {
		return fmt.Errorf("write enable: %w", err)
	}
	return nil
}

// WriteDisable clears the write enable latch.
func (f *Flash) WriteDisable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeDisable()
}

func (f *Flash) writeDisable() error {
	if err := f.execute(&Instruction{Opcode: opWriteDisable}); err != nil {
		return fmt.Errorf("write disable: %w", err)
	}
	return nil
}

// DisableWriteProtection clears every block protection bit.
func (f *Flash) DisableWriteProtection() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disableWriteProtection()
}

func (f *Flash) disableWriteProtection() error {
	if err := f.writeRegister(Protection, 0x00); err != nil {
		return fmt.Errorf("disable write protection: %w", err)
	}
	return nil
}
