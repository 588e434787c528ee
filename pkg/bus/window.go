package bus

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Window maps a region of a device or memory file (for example a PCI BAR
// resource file under /sys/bus/pci/devices) and serves register accesses
// from it. Chip addresses in [base, base+size) map to file offset
// addr-base+offset.
type Window struct {
	mu   sync.Mutex
	fd   int
	path string
	base uint32
	mem  []byte
}

// OpenWindow maps size bytes of path starting at file offset offset and
// exposes them at chip address base
func OpenWindow(path string, offset int64, base uint32, size int) (*Window, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	mem, err := unix.Mmap(fd, offset, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	return &Window{fd: fd, path: path, base: base, mem: mem}, nil
}

// Close unmaps the window and closes the file
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.mem == nil {
		return nil
	}
	err := unix.Munmap(w.mem)
	w.mem = nil
	if cerr := unix.Close(w.fd); err == nil {
		err = cerr
	}
	w.fd = -1
	return err
}

// Path returns the mapped file path
func (w *Window) Path() string {
	return w.path
}

func (w *Window) offset(op string, addr uint32, words int) (int, error) {
	if err := checkAligned(op, addr); err != nil {
		return 0, err
	}
	if w.mem == nil {
		return 0, &AccessError{Op: op, Addr: addr, Err: ErrClosed}
	}
	if addr < w.base || int(addr-w.base)+words*2 > len(w.mem) {
		return 0, &AccessError{Op: op, Addr: addr, Err: ErrOutOfWindow}
	}
	return int(addr - w.base), nil
}

// Read implements Bus
func (w *Window) Read(addr uint32) (uint16, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	off, err := w.offset("read", addr, 1)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(w.mem[off:]), nil
}

// Write implements Bus
func (w *Window) Write(addr uint32, data uint16) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	off, err := w.offset("write", addr, 1)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(w.mem[off:], data)
	return nil
}

// BurstRead implements Bus
func (w *Window) BurstRead(addr uint32, data []uint16) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	off, err := w.offset("burst read", addr, len(data))
	if err != nil {
		return err
	}
	for i := range data {
		data[i] = binary.LittleEndian.Uint16(w.mem[off+i*2:])
	}
	return nil
}

// BurstWrite implements Bus
func (w *Window) BurstWrite(addr uint32, data []uint16) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	off, err := w.offset("burst write", addr, len(data))
	if err != nil {
		return err
	}
	for i, d := range data {
		binary.LittleEndian.PutUint16(w.mem[off+i*2:], d)
	}
	return nil
}

// WriteSmear implements Bus
func (w *Window) WriteSmear(addr uint32, length int, data uint16) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	off, err := w.offset("write smear", addr, length)
	if err != nil {
		return err
	}
	for i := 0; i < length; i++ {
		binary.LittleEndian.PutUint16(w.mem[off+i*2:], data)
	}
	return nil
}
