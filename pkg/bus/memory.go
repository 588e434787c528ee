package bus

import (
	"sort"
	"sync"
)

// Memory is an in-host image of the chip address space. It backs the
// simulator and the tests; unwritten words read as zero.
type Memory struct {
	mu     sync.Mutex
	words  map[uint32]uint16
	reads  uint64
	writes uint64
}

// NewMemory creates an empty chip image
func NewMemory() *Memory {
	return &Memory{words: make(map[uint32]uint16)}
}

// Read implements Bus
func (m *Memory) Read(addr uint32) (uint16, error) {
	if err := checkAligned("read", addr); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	return m.words[addr], nil
}

// Write implements Bus
func (m *Memory) Write(addr uint32, data uint16) error {
	if err := checkAligned("write", addr); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.store(addr, data)
	return nil
}

// BurstRead implements Bus
func (m *Memory) BurstRead(addr uint32, data []uint16) error {
	if err := checkAligned("burst read", addr); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range data {
		data[i] = m.words[addr+uint32(i)*2]
		m.reads++
	}
	return nil
}

// BurstWrite implements Bus
func (m *Memory) BurstWrite(addr uint32, data []uint16) error {
	if err := checkAligned("burst write", addr); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range data {
		m.store(addr+uint32(i)*2, w)
		m.writes++
	}
	return nil
}

// WriteSmear implements Bus
func (m *Memory) WriteSmear(addr uint32, length int, data uint16) error {
	if err := checkAligned("write smear", addr); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < length; i++ {
		m.store(addr+uint32(i)*2, data)
		m.writes++
	}
	return nil
}

// zero words are not kept so that two images compare equal regardless of
// how they were cleared
func (m *Memory) store(addr uint32, data uint16) {
	if data == 0 {
		delete(m.words, addr)
		return
	}
	m.words[addr] = data
}

// Counters returns the number of word reads and writes performed so far
func (m *Memory) Counters() (reads, writes uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads, m.writes
}

// Snapshot returns a copy of every non-zero word
func (m *Memory) Snapshot() map[uint32]uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint32]uint16, len(m.words))
	for k, v := range m.words {
		out[k] = v
	}
	return out
}

// Addresses returns the sorted addresses of every non-zero word
func (m *Memory) Addresses() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	addrs := make([]uint32, 0, len(m.words))
	for k := range m.words {
		addrs = append(addrs, k)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}
