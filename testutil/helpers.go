package testutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
)

// TempFile creates a temporary file with given content
func TempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	err := os.WriteFile(path, content, 0644)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return path
}

// ZeroFile creates a temporary file of size zeroed bytes, suitable for
// mapping as a register window
func ZeroFile(t *testing.T, size int) string {
	t.Helper()
	return TempFile(t, "window.bin", make([]byte, size))
}

// QuietLogger returns a logger that discards everything unless the
// OCT6100_TEST_LOG environment variable is set
func QuietLogger() *log.Logger {
	var w io.Writer = io.Discard
	if os.Getenv("OCT6100_TEST_LOG") != "" {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{Level: log.DebugLevel, Prefix: "test"})
}

// WordsDiff lists the addresses whose value differs between two memory
// snapshots
func WordsDiff(before, after map[uint32]uint16) []uint32 {
	var out []uint32
	for addr, v := range after {
		if before[addr] != v {
			out = append(out, addr)
		}
	}
	for addr := range before {
		if _, ok := after[addr]; !ok {
			out = append(out, addr)
		}
	}
	return out
}
