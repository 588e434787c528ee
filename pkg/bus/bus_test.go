//go:build unit

package bus

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryReadWrite(t *testing.T) {
	m := NewMemory()

	v, err := m.Read(0x100)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), v)

	require.NoError(t, m.Write(0x100, 0xBEEF))
	v, err = m.Read(0x100)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), v)

	reads, writes := m.Counters()
	assert.Equal(t, uint64(2), reads)
	assert.Equal(t, uint64(1), writes)
}

func TestMemoryBurst(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.BurstWrite(0x310010, []uint16{1, 2, 3, 0}))

	got := make([]uint16, 4)
	require.NoError(t, m.BurstRead(0x310010, got))
	assert.Equal(t, []uint16{1, 2, 3, 0}, got)
	assert.Equal(t, []uint32{0x310010, 0x310012, 0x310014}, m.Addresses())
}

func TestMemorySmearClears(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.BurstWrite(0x10, []uint16{7, 7, 7}))
	require.NoError(t, m.WriteSmear(0x10, 3, 0))
	assert.Empty(t, m.Snapshot())

	require.NoError(t, m.WriteSmear(0x20, 2, 0x55))
	assert.Equal(t, map[uint32]uint16{0x20: 0x55, 0x22: 0x55}, m.Snapshot())
}

func TestMemoryUnaligned(t *testing.T) {
	m := NewMemory()

	tests := []struct {
		name string
		call func() error
	}{
		{"read", func() error { _, err := m.Read(0x101); return err }},
		{"write", func() error { return m.Write(0x101, 1) }},
		{"burst read", func() error { return m.BurstRead(0x101, make([]uint16, 2)) }},
		{"burst write", func() error { return m.BurstWrite(0x101, []uint16{1}) }},
		{"smear", func() error { return m.WriteSmear(0x101, 2, 1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			assert.ErrorIs(t, err, ErrUnaligned)
			var accessErr *AccessError
			require.True(t, errors.As(err, &accessErr))
			assert.Equal(t, uint32(0x101), accessErr.Addr)
		})
	}
}

func TestLoggedForwards(t *testing.T) {
	var out bytes.Buffer
	logger := log.NewWithOptions(&out, log.Options{Level: log.DebugLevel})
	m := NewMemory()
	l := NewLogged(m, logger)

	require.NoError(t, l.Write(0x20010, 0x1234))
	v, err := l.Read(0x20010)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), v)
	require.NoError(t, l.BurstWrite(0x40, []uint16{1, 2}))
	require.NoError(t, l.BurstRead(0x40, make([]uint16, 2)))
	require.NoError(t, l.WriteSmear(0x40, 2, 0))

	assert.Contains(t, out.String(), "0x00020010")
	assert.Contains(t, out.String(), "0x1234")
	assert.Contains(t, out.String(), "write smear")
}

func TestWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bar0")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0644))

	w, err := OpenWindow(path, 0, 0x310000, 4096)
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, path, w.Path())

	require.NoError(t, w.Write(0x310002, 0xA55A))
	v, err := w.Read(0x310002)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xA55A), v)

	require.NoError(t, w.BurstWrite(0x310100, []uint16{1, 2, 3}))
	got := make([]uint16, 3)
	require.NoError(t, w.BurstRead(0x310100, got))
	assert.Equal(t, []uint16{1, 2, 3}, got)

	require.NoError(t, w.WriteSmear(0x310100, 3, 9))
	require.NoError(t, w.BurstRead(0x310100, got))
	assert.Equal(t, []uint16{9, 9, 9}, got)

	_, err = w.Read(0x300000)
	assert.ErrorIs(t, err, ErrOutOfWindow)
	err = w.BurstWrite(0x310000+4094, []uint16{1, 2})
	assert.ErrorIs(t, err, ErrOutOfWindow)

	require.NoError(t, w.Close())
	_, err = w.Read(0x310002)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, w.Close())
}

func TestWindowMissingFile(t *testing.T) {
	_, err := OpenWindow(filepath.Join(t.TempDir(), "missing"), 0, 0, 4096)
	assert.Error(t, err)
}
