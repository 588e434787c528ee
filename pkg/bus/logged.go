package bus

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// Logged traces every access made through an underlying Bus at debug level
type Logged struct {
	bus    Bus
	logger *log.Logger
}

// NewLogged wraps b so that each register access is logged to logger
func NewLogged(b Bus, logger *log.Logger) *Logged {
	return &Logged{bus: b, logger: logger.WithPrefix("bus")}
}

// Read implements Bus
func (l *Logged) Read(addr uint32) (uint16, error) {
	data, err := l.bus.Read(addr)
	l.logger.Debug("read", "addr", hex32(addr), "data", hex16(data), "err", err)
	return data, err
}

// Write implements Bus
func (l *Logged) Write(addr uint32, data uint16) error {
	err := l.bus.Write(addr, data)
	l.logger.Debug("write", "addr", hex32(addr), "data", hex16(data), "err", err)
	return err
}

// BurstRead implements Bus
func (l *Logged) BurstRead(addr uint32, data []uint16) error {
	err := l.bus.BurstRead(addr, data)
	l.logger.Debug("burst read", "addr", hex32(addr), "len", len(data), "err", err)
	return err
}

// BurstWrite implements Bus
func (l *Logged) BurstWrite(addr uint32, data []uint16) error {
	err := l.bus.BurstWrite(addr, data)
	l.logger.Debug("burst write", "addr", hex32(addr), "len", len(data), "err", err)
	return err
}

// WriteSmear implements Bus
func (l *Logged) WriteSmear(addr uint32, length int, data uint16) error {
	err := l.bus.WriteSmear(addr, length, data)
	l.logger.Debug("write smear", "addr", hex32(addr), "len", length, "data", hex16(data), "err", err)
	return err
}

type hex32 uint32

func (h hex32) String() string { return fmt.Sprintf("0x%08x", uint32(h)) }

type hex16 uint16

func (h hex16) String() string { return fmt.Sprintf("0x%04x", uint16(h)) }
