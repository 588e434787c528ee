package testutil

import (
	"errors"
	"sync"

	"github.com/emergingrobotics/oct6100/pkg/bus"
)

// ErrInjected is returned by FaultBus once its budget is spent
var ErrInjected = errors.New("injected bus fault")

// FaultBus wraps a bus.Memory and starts failing every write, or every
// access, after a configurable number of successful calls
type FaultBus struct {
	*bus.Memory

	mu         sync.Mutex
	armed      bool
	writesLeft int
	once       bool
	failReads  bool
	faults     int
}

// NewFaultBus creates a fault bus over a fresh memory image. It does not
// fail until armed.
func NewFaultBus() *FaultBus {
	return &FaultBus{Memory: bus.NewMemory()}
}

// FailAfterWrites lets n more write calls succeed, then fails all writes
func (f *FaultBus) FailAfterWrites(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = true
	f.once = false
	f.writesLeft = n
}

// FailWrite lets n more write calls succeed and fails only the next one
func (f *FaultBus) FailWrite(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = true
	f.once = true
	f.writesLeft = n
}

// FailReads makes every read fail while armed
func (f *FaultBus) FailReads(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReads = fail
}

// Disarm stops injecting faults
func (f *FaultBus) Disarm() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = false
	f.once = false
	f.failReads = false
}

// Faults returns the number of calls that were failed
func (f *FaultBus) Faults() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.faults
}

func (f *FaultBus) writeFault() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.armed {
		return false
	}
	if f.writesLeft > 0 {
		f.writesLeft--
		return false
	}
	f.faults++
	if f.once {
		f.armed = false
		f.once = false
	}
	return true
}

func (f *FaultBus) readFault() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		f.faults++
		return true
	}
	return false
}

// Read implements bus.Bus
func (f *FaultBus) Read(addr uint32) (uint16, error) {
	if f.readFault() {
		return 0, &bus.AccessError{Op: "read", Addr: addr, Err: ErrInjected}
	}
	return f.Memory.Read(addr)
}

// BurstRead implements bus.Bus
func (f *FaultBus) BurstRead(addr uint32, data []uint16) error {
	if f.readFault() {
		return &bus.AccessError{Op: "burst read", Addr: addr, Err: ErrInjected}
	}
	return f.Memory.BurstRead(addr, data)
}

// Write implements bus.Bus
func (f *FaultBus) Write(addr uint32, data uint16) error {
	if f.writeFault() {
		return &bus.AccessError{Op: "write", Addr: addr, Err: ErrInjected}
	}
	return f.Memory.Write(addr, data)
}

// BurstWrite implements bus.Bus
func (f *FaultBus) BurstWrite(addr uint32, data []uint16) error {
	if f.writeFault() {
		return &bus.AccessError{Op: "burst write", Addr: addr, Err: ErrInjected}
	}
	return f.Memory.BurstWrite(addr, data)
}

// WriteSmear implements bus.Bus
func (f *FaultBus) WriteSmear(addr uint32, length int, data uint16) error {
	if f.writeFault() {
		return &bus.AccessError{Op: "write smear", Addr: addr, Err: ErrInjected}
	}
	return f.Memory.WriteSmear(addr, length, data)
}
