//go:build unit

package scenario

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergingrobotics/oct6100/pkg/oct6100"
	"github.com/emergingrobotics/oct6100/testutil"
)

func newInstance(t *testing.T) *oct6100.Instance {
	t.Helper()
	p := &oct6100.ChipOpenParams{
		MaxChannels:                 16,
		MaxConfBridges:              8,
		MaxFlexibleConfParticipants: 16,
		MaxMixerEvents:              96,
		MaxCopyEvents:               16,
		MaxTsiMemEntries:            64,
		DominantSpeakerEnabled:      true,
		Logger:                      testutil.QuietLogger(),
	}
	inst, err := oct6100.OpenChip(testutil.NewFaultBus(), p)
	require.NoError(t, err)
	return inst
}

func run(t *testing.T, script string) ([]StepResult, *Runner, error) {
	t.Helper()
	s, err := Parse([]byte(script))
	require.NoError(t, err)
	r := NewRunner(newInstance(t), nil)
	res, err := r.Run(context.Background(), s)
	return res, r, err
}

func freeCounts(res []StepResult) []int {
	out := make([]int, len(res))
	for i, r := range res {
		out[i] = r.FreeMixerEvents
	}
	return out
}

func TestRunSimpleBridge(t *testing.T) {
	res, _, err := run(t, `
verify: true
channels:
  - name: a
  - name: b
steps:
  - {op: bridge_open, bridge: conf}
  - {op: chan_add, bridge: conf, channel: a}
  - {op: chan_add, bridge: conf, channel: b}
  - {op: chan_add, bridge: conf, channel: a, expect_error: ConfBridgeChannelAlreadyOnBridge}
  - {op: chan_mute, channel: a}
  - {op: chan_unmute, channel: a}
  - {op: dominant_speaker, bridge: conf, channel: b}
  - {op: chan_remove, bridge: conf, all: true}
  - {op: bridge_close, bridge: conf}
  - {op: bridge_close, bridge: conf, expect_error: ConfBridgeNotOpen}
`)
	require.NoError(t, err)
	require.Len(t, res, 10)

	assert.Equal(t, []int{94, 91, 88, 88, 88, 88, 88, 94, 94, 94}, freeCounts(res))
	assert.Equal(t, "OK", res[0].Status)
	assert.Equal(t, "ConfBridgeChannelAlreadyOnBridge", res[3].Status)
	assert.Equal(t, "ConfBridgeNotOpen", res[9].Status)
	assert.Equal(t, OpChanMute, res[4].Op)
}

func TestRunFlexibleBridge(t *testing.T) {
	res, r, err := run(t, `
verify: true
channels:
  - {name: p1}
  - {name: p2}
  - {name: p3}
steps:
  - {op: bridge_open, bridge: flex, flexible: true}
  - {op: chan_add, bridge: flex, channel: p1, mask_index: 0, mask: 0x0}
  - {op: chan_add, bridge: flex, channel: p2, mask_index: 1, mask: 0x0}
  - {op: chan_add, bridge: flex, channel: p3, mask_index: 1, expect_error: ConfBridgeListenerMaskIndexUsed}
  - {op: chan_add, bridge: flex, channel: p3, mask_index: 2, mask: 0x3}
  - {op: mask_change, channel: p3, mask: 0x1}
  - {op: chan_mute, channel: p1}
  - {op: chan_unmute, channel: p1}
  - {op: chan_remove, channel: p2}
  - {op: chan_remove, bridge: flex, all: true}
`)
	require.NoError(t, err)
	require.Len(t, res, 10)
	assert.Equal(t, res[0].FreeMixerEvents, res[9].FreeMixerEvents)
	assert.Less(t, res[2].FreeMixerEvents, res[1].FreeMixerEvents)

	h, ok := r.Bridge("flex")
	require.True(t, ok)
	stats, err := r.inst.ConfBridgeGetStats(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, stats.FlexibleConferencing)
	assert.Equal(t, uint16(0), stats.NumClients)
}

func TestRunCopyAndSilence(t *testing.T) {
	res, r, err := run(t, `
verify: true
channels:
  - {name: a, sin_tsst: 10}
  - {name: b, rin_tsst: 11}
  - {name: c}
steps:
  - {op: bridge_open, bridge: conf}
  - {op: copy_create, copy: cp, source: a, source_port: sin, destination: b, destination_port: rin}
  - {op: chan_add, bridge: conf, channel: a, expect_error: ConfBridgeChannelCopyEventsActive}
  - {op: channel_close, channel: a, expect_error: ChannelActiveDependencies}
  - {op: copy_destroy, copy: cp}
  - {op: copy_destroy, copy: cp, expect_error: CopyEventNotOpen}
  - {op: chan_add, bridge: conf, channel: a}
  - {op: silence, channel: c, rin: true, sin: true}
  - {op: silence, channel: a, rin: true, expect_error: ChannelActiveDependencies}
  - {op: silence, channel: c}
  - {op: channel_close, channel: c}
`)
	require.NoError(t, err)
	require.Len(t, res, 11)

	assert.Equal(t, res[0].FreeMixerEvents, res[4].FreeMixerEvents)
	assert.Equal(t, res[6].FreeMixerEvents-2, res[7].FreeMixerEvents)
	assert.Equal(t, res[6].FreeMixerEvents, res[9].FreeMixerEvents)

	_, ok := r.Channel("c")
	assert.True(t, ok)
}

func TestRunStaleHandle(t *testing.T) {
	res, _, err := run(t, `
channels:
  - {name: a}
steps:
  - {op: bridge_open, bridge: old}
  - {op: bridge_close, bridge: old}
  - {op: bridge_open, bridge: new}
  - {op: chan_add, bridge: old, channel: a, expect_error: ConfBridgeInvalidHandle}
  - {op: chan_add, bridge: new, channel: a}
`)
	require.NoError(t, err)
	assert.Len(t, res, 5)
}

func TestRunLawConversion(t *testing.T) {
	_, _, err := run(t, `
channels:
  - {name: a, rin_law: alaw, rout_law: ulaw, nlp: false}
steps:
  - {op: bridge_open, bridge: conf}
  - {op: chan_add, bridge: conf, channel: a, expect_error: ConfBridgeChannelLawConversion}
`)
	require.NoError(t, err)
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name   string
		script string
		index  int
		want   error
	}{
		{
			name: "expected failure",
			script: `
steps:
  - {op: bridge_open, bridge: conf}
  - {op: bridge_close, bridge: conf, expect_error: ConfBridgeActiveDependencies}
`,
			index: 1,
			want:  ErrExpectedFailure,
		},
		{
			name: "unexpected status",
			script: `
channels: [{name: a}]
steps:
  - {op: bridge_open, bridge: conf}
  - {op: chan_mute, channel: a, expect_error: ConfBridgeChannelAlreadyMuted}
`,
			index: 1,
			want:  ErrUnexpectedError,
		},
		{
			name: "unexpected error",
			script: `
steps:
  - {op: bridge_open, bridge: conf}
  - {op: bridge_close, bridge: conf}
  - {op: bridge_close, bridge: conf}
`,
			index: 2,
			want:  ErrUnexpectedError,
		},
		{
			name: "unknown bridge",
			script: `
channels: [{name: a}]
steps:
  - {op: chan_add, bridge: nowhere, channel: a}
`,
			index: 0,
			want:  ErrUnknownName,
		},
		{
			name: "duplicate bridge",
			script: `
steps:
  - {op: bridge_open, bridge: conf}
  - {op: bridge_open, bridge: conf, expect_error: ConfBridgeAllBuffersOpen}
`,
			index: 1,
			want:  ErrDuplicateName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.script)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, tt.index, stepErr.Index)
		})
	}
}

func TestRunUnexpectedErrorKeepsStatus(t *testing.T) {
	_, _, err := run(t, `
steps:
  - {op: bridge_open, bridge: conf}
  - {op: bridge_close, bridge: conf}
  - {op: bridge_close, bridge: conf}
`)
	require.Error(t, err)
	assert.Equal(t, oct6100.StatusConfBridgeNotOpen, oct6100.StatusOf(err))
	assert.False(t, IsScriptError(err))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   error
	}{
		{"unknown op", "steps: [{op: explode}]", ErrUnknownOp},
		{"bridge open without name", "steps: [{op: bridge_open}]", ErrMissingField},
		{"add without channel", "steps: [{op: chan_add, bridge: b}]", ErrMissingField},
		{"remove all without bridge", "steps: [{op: chan_remove, all: true}]", ErrMissingField},
		{"copy without destination", "steps: [{op: copy_create, copy: c, source: a}]", ErrMissingField},
		{"unknown status", "steps: [{op: bridge_open, bridge: b, expect_error: Nope}]", ErrUnknownStatus},
		{"channel without name", "channels: [{rin_law: alaw}]", ErrMissingField},
		{"duplicate channel", "channels: [{name: a}, {name: a}]", ErrDuplicateName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.script))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseSpellings(t *testing.T) {
	_, err := Parse([]byte("channels: [{name: a, sin_law: slaw}]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown law")

	_, err = Parse([]byte("steps: [{op: chan_add, bridge: b, channel: a, input: tout}]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown port")

	s, err := Parse([]byte("steps: [{op: chan_add, bridge: b, channel: a, input: RIN, mask_index: 3, mask: 0x10}]"))
	require.NoError(t, err)
	require.NotNil(t, s.Steps[0].MaskIndex)
	assert.Equal(t, uint32(3), *s.Steps[0].MaskIndex)
	assert.Equal(t, uint32(0x10), s.Steps[0].Mask)
}

func TestLoad(t *testing.T) {
	path := testutil.TempFile(t, "ops.yaml", []byte("verify: true\nsteps: [{op: bridge_open, bridge: b}]\n"))
	s, err := Load(path)
	require.NoError(t, err)
	assert.True(t, s.Verify)
	assert.Len(t, s.Steps, 1)

	_, err = Load(path + ".missing")
	require.Error(t, err)
}
