//go:build unit

package oct6100

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emergingrobotics/oct6100/testutil"
)

type testChip struct {
	*Instance
	t   *testing.T
	ctx context.Context
	bus *testutil.FaultBus
}

func smallChipParams() *ChipOpenParams {
	p := NewChipOpenParams()
	p.MaxChannels = 16
	p.MaxConfBridges = 8
	p.MaxFlexibleConfParticipants = 16
	p.MaxMixerEvents = 96
	p.MaxCopyEvents = 16
	p.MaxTsiMemEntries = 64
	p.Logger = testutil.QuietLogger()
	return p
}

func newTestChip(t *testing.T, mutate ...func(*ChipOpenParams)) *testChip {
	t.Helper()
	p := smallChipParams()
	for _, m := range mutate {
		m(p)
	}
	fb := testutil.NewFaultBus()
	inst, err := OpenChip(fb, p)
	require.NoError(t, err)
	return &testChip{Instance: inst, t: t, ctx: context.Background(), bus: fb}
}

func (tc *testChip) openChannel(mutate ...func(*ChannelOpenParams)) uint32 {
	tc.t.Helper()
	p := NewChannelOpenParams()
	p.EnableNlp = true
	p.EnableConfNoiseReduction = true
	for _, m := range mutate {
		m(p)
	}
	h, err := tc.ChannelOpen(tc.ctx, p)
	require.NoError(tc.t, err)
	return h
}

func (tc *testChip) openBridge(flexible bool) uint32 {
	tc.t.Helper()
	p := NewConfBridgeOpenParams()
	p.FlexibleConferencing = flexible
	h, err := tc.ConfBridgeOpen(tc.ctx, p)
	require.NoError(tc.t, err)
	return h
}

func (tc *testChip) add(bridge, channel uint32, mutate ...func(*ConfBridgeChanAddParams)) error {
	p := NewConfBridgeChanAddParams()
	p.ConfBridgeHandle = bridge
	p.ChannelHandle = channel
	for _, m := range mutate {
		m(p)
	}
	return tc.ConfBridgeChanAdd(tc.ctx, p)
}

func (tc *testChip) mustAdd(bridge, channel uint32, mutate ...func(*ConfBridgeChanAddParams)) {
	tc.t.Helper()
	require.NoError(tc.t, tc.add(bridge, channel, mutate...))
}

func (tc *testChip) remove(channel uint32) error {
	p := NewConfBridgeChanRemoveParams()
	p.ChannelHandle = channel
	return tc.ConfBridgeChanRemove(tc.ctx, p)
}

func (tc *testChip) removeAll(bridge uint32) error {
	p := NewConfBridgeChanRemoveParams()
	p.ConfBridgeHandle = bridge
	p.RemoveAll = true
	return tc.ConfBridgeChanRemove(tc.ctx, p)
}

func (tc *testChip) verify() {
	tc.t.Helper()
	require.NoError(tc.t, tc.CheckIntegrity(tc.ctx))
}

func (tc *testChip) channel(h uint32) *Channel {
	return &tc.channels[handleIndex(h)]
}

func (tc *testChip) bridge(h uint32) *ConfBridge {
	return &tc.bridges[handleIndex(h)]
}

func (tc *testChip) participant(h uint32) *FlexConfParticipant {
	return &tc.participants[tc.channel(h).FlexConfParticipantIndex]
}

func (tc *testChip) event(idx uint16) MixerEvent {
	return tc.mixerEvents[idx]
}

func (tc *testChip) listLen() int {
	return len(tc.listOrder())
}

func (tc *testChip) freeEvents() int {
	return tc.mixerEventPool.Free()
}

// eventsFrom counts the bridge events that read from a channel
func (tc *testChip) eventsFrom(bridge, channel uint32) int {
	n := 0
	for _, idx := range tc.listOrder() {
		ev := tc.mixerEvents[idx]
		if ev.BridgeIndex == handleIndex(bridge) && ev.SourceChanIndex == handleIndex(channel) {
			n++
		}
	}
	return n
}

func withRin(p *ConfBridgeChanAddParams)  { p.InputPort = PortRin }
func withMute(p *ConfBridgeChanAddParams) { p.Mute = true }

func withMask(index, mask uint32) func(*ConfBridgeChanAddParams) {
	return func(p *ConfBridgeChanAddParams) {
		p.ListenerMaskIndex = index
		p.ListenerMask = mask
	}
}

func withTsst(rin, sin uint32) func(*ChannelOpenParams) {
	return func(p *ChannelOpenParams) {
		p.RinTsst = rin
		p.SinTsst = sin
	}
}

// chipSnapshot is a deep copy of every piece of mutable chip state
type chipSnapshot struct {
	Mixer        mixerInfo
	Events       []MixerEvent
	Bridges      []ConfBridge
	Participants []FlexConfParticipant
	Channels     []Channel
	CopyEvents   []CopyEvent
	Free         []int
	Memory       map[uint32]uint16
}

func (tc *testChip) snapshot() chipSnapshot {
	return chipSnapshot{
		Mixer:        tc.mixer,
		Events:       append([]MixerEvent(nil), tc.mixerEvents...),
		Bridges:      append([]ConfBridge(nil), tc.bridges...),
		Participants: append([]FlexConfParticipant(nil), tc.participants...),
		Channels:     append([]Channel(nil), tc.channels...),
		CopyEvents:   append([]CopyEvent(nil), tc.copyEvents...),
		Free: []int{
			tc.mixerEventPool.Free(), tc.copyEventPool.Free(), tc.bridgePool.Free(),
			tc.participantPool.Free(), tc.tsiPool.Free(), tc.channelPool.Free(),
		},
		Memory: tc.bus.Snapshot(),
	}
}
