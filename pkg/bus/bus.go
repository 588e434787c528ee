// Package bus defines the register I/O channel between the host API and the
// OCT6100 chip. Every access is a synchronous round-trip addressed in bytes;
// data is always a 16-bit word.
package bus

import (
	"errors"
	"fmt"
)

// Bus is the host-provided register access layer. Implementations must
// preserve ordering between calls and report every failure.
type Bus interface {
	// Read returns the word at addr.
	Read(addr uint32) (uint16, error)
	// Write stores data at addr.
	Write(addr uint32, data uint16) error
	// BurstRead fills data with consecutive words starting at addr.
	BurstRead(addr uint32, data []uint16) error
	// BurstWrite stores consecutive words starting at addr.
	BurstWrite(addr uint32, data []uint16) error
	// WriteSmear stores the same word into length consecutive words.
	WriteSmear(addr uint32, length int, data uint16) error
}

// Errors returned by the bus implementations in this package
var (
	ErrUnaligned   = errors.New("unaligned register address")
	ErrOutOfWindow = errors.New("address outside mapped window")
	ErrClosed      = errors.New("bus is closed")
)

// AccessError describes a failed register access
type AccessError struct {
	Op   string
	Addr uint32
	Err  error
}

// Error implements the error interface
func (e *AccessError) Error() string {
	return fmt.Sprintf("%s 0x%08x: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the underlying cause
func (e *AccessError) Unwrap() error {
	return e.Err
}

func checkAligned(op string, addr uint32) error {
	if addr&1 != 0 {
		return &AccessError{Op: op, Addr: addr, Err: ErrUnaligned}
	}
	return nil
}
