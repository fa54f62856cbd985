package w25n

import (
	"errors"
	"fmt"
)

var (
	// ErrBus matches every *BusError.
	ErrBus = errors.New("bus transaction failed")
	// ErrInvalidParameter matches every *ParameterError.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrTimeout is returned when BUSY does not clear in time.
	ErrTimeout = errors.New("device unresponsive: busy wait timed out")
	// ErrInvalidInstruction is returned for instructions that cannot be
	// encoded, such as a data buffer without a transfer direction.
	ErrInvalidInstruction = errors.New("invalid instruction")
)

// Phase names the part of an instruction that failed on the bus.
type Phase string

const (
	PhaseCommand  Phase = "command"
	PhaseTransmit Phase = "transmit"
	PhaseReceive  Phase = "receive"
)

// BusError reports a failed command or data transfer.
type BusError struct {
	Opcode byte
	Phase  Phase
	Err    error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("opcode %#02x: %s phase failed: %v", e.Opcode, e.Phase, e.Err)
}

func (e *BusError) Unwrap() error        { return e.Err }
func (e *BusError) Is(target error) bool { return target == ErrBus }

// ParameterError reports an argument rejected before any bus activity.
type ParameterError struct {
	Name  string
	Value uint32
	Max   uint32 // exclusive
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("%s %d out of range [0, %d)", e.Name, e.Value, e.Max)
}

func (e *ParameterError) Is(target error) bool { return target == ErrInvalidParameter }
