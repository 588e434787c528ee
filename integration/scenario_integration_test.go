//go:build integration

package integration

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergingrobotics/oct6100/pkg/config"
	"github.com/emergingrobotics/oct6100/pkg/oct6100"
	"github.com/emergingrobotics/oct6100/pkg/scenario"
	"github.com/emergingrobotics/oct6100/testutil"
)

const examplesDir = "../examples/conference"

func loadExample(t *testing.T) (*config.Config, *scenario.Script) {
	t.Helper()

	cfg, err := config.Load(filepath.Join(examplesDir, "chip.yaml"))
	require.NoError(t, err)
	script, err := scenario.Load(filepath.Join(examplesDir, "ops.yaml"))
	require.NoError(t, err)
	return cfg, script
}

// getWindowPath returns the register window of a real chip, for example a
// PCI resource file, named by OCT6100_WINDOW
func getWindowPath(t *testing.T) string {
	t.Helper()

	path := os.Getenv("OCT6100_WINDOW")
	if path == "" {
		t.Skip("No OCT6100 register window available")
	}
	if _, err := os.Stat(path); err != nil {
		t.Skipf("OCT6100 register window %s: %v", path, err)
	}
	return path
}

func runExample(t *testing.T, cfg *config.Config, script *scenario.Script) *oct6100.Instance {
	t.Helper()
	ctx := context.Background()

	logger := testutil.QuietLogger()
	b, closer, err := cfg.OpenBus(logger)
	require.NoError(t, err)
	t.Cleanup(func() { closer.Close() })

	inst, err := oct6100.OpenChip(b, cfg.ChipOpenParams(logger))
	require.NoError(t, err)

	results, err := scenario.NewRunner(inst, logger).Run(ctx, script)
	require.NoError(t, err)
	require.Len(t, results, len(script.Steps))
	return inst
}

func TestExampleScriptOnMemory(t *testing.T) {
	cfg, script := loadExample(t)
	inst := runExample(t, cfg, script)

	ctx := context.Background()
	stats, err := inst.ChipGetStats(ctx)
	require.NoError(t, err)

	// only the silence event of the hold channel is left in the list
	assert.Equal(t, stats.MixerEvents.Total-1, stats.MixerEvents.Free)
	assert.Equal(t, 3, stats.MixerEventListLength)
	assert.Equal(t, stats.ConfBridges.Total, stats.ConfBridges.Free)
	assert.Equal(t, stats.CopyEvents.Total, stats.CopyEvents.Free)
	assert.Equal(t, stats.Channels.Total-len(script.Channels), stats.Channels.Free)

	require.NoError(t, inst.Close(ctx, true))
}

func TestExampleScriptOnWindow(t *testing.T) {
	cfg, script := loadExample(t)
	cfg.Bus = config.Bus{Kind: config.BusWindow}
	cfg.Bus.Path = testutil.ZeroFile(t, cfg.WindowSize())
	require.NoError(t, cfg.Validate())

	inst := runExample(t, cfg, script)
	ctx := context.Background()

	events, err := inst.MixerEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// the mapped file holds the same list the host shadow does
	raw, err := os.ReadFile(cfg.Bus.Path)
	require.NoError(t, err)
	headNext := oct6100.MixerControlMemBase + oct6100.MixerControlMemNextOfst - oct6100.ChannelMainMemBase
	assert.Equal(t, events[1].Index, binary.LittleEndian.Uint16(raw[headNext:]))

	require.NoError(t, inst.Close(ctx, true))
}

func TestExampleScriptOnHardware(t *testing.T) {
	path := getWindowPath(t)
	cfg, script := loadExample(t)
	cfg.Bus = config.Bus{Kind: config.BusWindow, Path: path}
	if v := os.Getenv("OCT6100_WINDOW_OFFSET"); v != "" {
		off, err := strconv.ParseInt(v, 0, 64)
		require.NoError(t, err)
		cfg.Bus.Offset = off
	}
	require.NoError(t, cfg.Validate())

	t.Logf("Using register window: %s", path)
	inst := runExample(t, cfg, script)
	require.NoError(t, inst.CheckIntegrity(context.Background()))
	require.NoError(t, inst.Close(context.Background(), true))
}
