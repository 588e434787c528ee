// Package alloc implements the fixed-capacity slot allocators that back the
// chip resources (bridges, flexible participants, mixer events, copy events,
// TSI memory entries, channels).
package alloc

import (
	"errors"
	"fmt"
)

// Errors returned by Pool
var (
	// ErrAllSlotsOpen is returned by Reserve when every slot is in use.
	ErrAllSlotsOpen = errors.New("all slots open")
	// ErrNotReserved is returned by Release for a slot that is already free.
	// It always indicates an API bug, never bad user input.
	ErrNotReserved = errors.New("slot not reserved")
	// ErrOutOfRange is returned for an index outside the pool.
	ErrOutOfRange = errors.New("slot index out of range")
)

// Pool is a LIFO free-list over the indices [first, first+size).
// The zero value is unusable; create pools with New.
type Pool struct {
	name     string
	first    int
	free     []uint16
	reserved []bool
}

// New creates a pool of size slots numbered from first
func New(name string, first, size int) *Pool {
	p := &Pool{
		name:     name,
		first:    first,
		free:     make([]uint16, 0, size),
		reserved: make([]bool, size),
	}
	// push in reverse so the lowest index is handed out first
	for i := size - 1; i >= 0; i-- {
		p.free = append(p.free, uint16(first+i))
	}
	return p
}

// Name returns the pool name used in error messages
func (p *Pool) Name() string {
	return p.name
}

// Reserve takes a free slot
func (p *Pool) Reserve() (uint16, error) {
	if len(p.free) == 0 {
		return 0, fmt.Errorf("%s: %w", p.name, ErrAllSlotsOpen)
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.reserved[int(idx)-p.first] = true
	return idx, nil
}

// Release returns a slot to the pool
func (p *Pool) Release(idx uint16) error {
	i := int(idx) - p.first
	if i < 0 || i >= len(p.reserved) {
		return fmt.Errorf("%s: index %d: %w", p.name, idx, ErrOutOfRange)
	}
	if !p.reserved[i] {
		return fmt.Errorf("%s: index %d: %w", p.name, idx, ErrNotReserved)
	}
	p.reserved[i] = false
	p.free = append(p.free, idx)
	return nil
}

// IsReserved reports whether idx is currently in use
func (p *Pool) IsReserved(idx uint16) bool {
	i := int(idx) - p.first
	return i >= 0 && i < len(p.reserved) && p.reserved[i]
}

// Free returns the number of free slots
func (p *Pool) Free() int {
	return len(p.free)
}

// Size returns the pool capacity
func (p *Pool) Size() int {
	return len(p.reserved)
}

// Used returns the number of reserved slots
func (p *Pool) Used() int {
	return len(p.reserved) - len(p.free)
}
