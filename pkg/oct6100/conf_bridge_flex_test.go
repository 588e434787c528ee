//go:build unit

package oct6100

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (tc *testChip) maskChange(ch uint32, mask uint32) error {
	p := NewConfBridgeMaskChangeParams()
	p.ChannelHandle = ch
	p.NewListenerMask = mask
	return tc.ConfBridgeMaskChange(tc.ctx, p)
}

func flexMember(index, mask uint32) []func(*ConfBridgeChanAddParams) {
	return []func(*ConfBridgeChanAddParams){withRin, withMask(index, mask)}
}

func TestFlexibleListenerMask(t *testing.T) {
	tc := newTestChip(t)
	b := tc.openBridge(true)
	p1, p2, p3 := tc.openChannel(), tc.openChannel(), tc.openChannel()

	tc.mustAdd(b, p1, flexMember(0, 0)...)
	assert.False(t, tc.participant(p1).FlexibleMixerCreated, "nobody to hear yet")

	free := tc.freeEvents()
	tc.mustAdd(b, p2, flexMember(1, 0x1)...)
	// p1 hears p2 through a new chain of LOAD and STORE; p2 is deaf to p1.
	// Chains are created lazily, so the first edge costs both events.
	assert.Equal(t, free-2, tc.freeEvents())
	assert.Equal(t, 1, tc.eventsFrom(b, p2))
	assert.Equal(t, 0, tc.eventsFrom(b, p1))
	assert.True(t, tc.participant(p1).FlexibleMixerCreated)
	assert.False(t, tc.participant(p2).FlexibleMixerCreated)

	fp1 := tc.participant(p1)
	load := tc.event(fp1.ChainLoadEventIndex)
	assert.Equal(t, MixerEventLoad, load.Type)
	assert.Equal(t, tc.channel(p2).RinRoutTsiMemIndex, load.SourceTsi())
	store := tc.event(fp1.StoreEventIndex)
	assert.Equal(t, MixerEventStore, store.Type)
	assert.Equal(t, tc.channel(p1).SinSoutTsiMemIndex, store.DestinationTsi)
	tc.verify()

	// p3 is heard by both and hears both
	free = tc.freeEvents()
	tc.mustAdd(b, p3, flexMember(2, 0)...)
	assert.Equal(t, free-6, tc.freeEvents())
	assert.Equal(t, 2, tc.eventsFrom(b, p3))
	assert.Equal(t, 2, tc.eventsFrom(b, p2))
	assert.Equal(t, 1, tc.eventsFrom(b, p1))
	assert.Equal(t, uint16(2), tc.participant(p1).SourceCount)
	assert.Equal(t, uint16(2), tc.participant(p3).SourceCount)
	assert.Equal(t, uint16(1), tc.participant(p2).SourceCount)
	assert.Equal(t, uint16(3), tc.stats(b).NumClients)
	tc.verify()

	require.NoError(t, tc.remove(p2))
	assert.Equal(t, 0, tc.eventsFrom(b, p2))
	assert.Equal(t, uint16(1), tc.participant(p1).SourceCount)
	assert.Equal(t, tc.channel(p3).RinRoutTsiMemIndex, tc.event(tc.participant(p1).ChainLoadEventIndex).SourceTsi())
	tc.verify()

	require.NoError(t, tc.remove(p1))
	require.NoError(t, tc.remove(p3))
	assert.Equal(t, []uint16{MixerHeadNode, MixerTailNode}, tc.listOrder())
	assert.Equal(t, tc.participantPool.Size(), tc.participantPool.Free())
	tc.verify()
}

func TestFlexibleAddRollsBackOnExhaustion(t *testing.T) {
	tc := newTestChip(t)
	b := tc.openBridge(true)
	p1, p2 := tc.openChannel(), tc.openChannel()
	tc.mustAdd(b, p1, flexMember(0, 0)...)

	var burned []uint16
	for tc.freeEvents() > 1 {
		idx, err := tc.reserveMixerEvent()
		require.NoError(t, err)
		burned = append(burned, idx)
	}

	before := tc.snapshot()
	err := tc.add(b, p2, flexMember(1, 0)...)
	assert.Equal(t, StatusMixerAllMixerEventEntryOpened, StatusOf(err))
	assert.Equal(t, 1, tc.freeEvents())
	assert.Equal(t, before, tc.snapshot())

	tc.releaseMixerEvents(burned)
	tc.verify()
	tc.mustAdd(b, p2, flexMember(1, 0)...)
	tc.verify()
}

func TestFlexibleMaskChange(t *testing.T) {
	tc := newTestChip(t)
	b := tc.openBridge(true)
	p1, p2, p3 := tc.openChannel(), tc.openChannel(), tc.openChannel()
	tc.mustAdd(b, p1, flexMember(0, 0x4)...)
	tc.mustAdd(b, p2, flexMember(1, 0)...)
	tc.mustAdd(b, p3, flexMember(2, 0)...)

	fp1 := tc.participant(p1)
	assert.Equal(t, uint16(1), fp1.SourceCount)
	assert.NotEqual(t, InvalidIndex, fp1.LoadOrAccumulateEventIndex[1])
	tc.verify()

	// swap p2 for p3
	require.NoError(t, tc.maskChange(p1, 0x2))
	assert.Equal(t, uint32(0x2), fp1.ListenerMask)
	assert.Equal(t, uint16(1), fp1.SourceCount)
	assert.Equal(t, InvalidIndex, fp1.LoadOrAccumulateEventIndex[1])
	require.NotEqual(t, InvalidIndex, fp1.LoadOrAccumulateEventIndex[2])
	assert.Equal(t, fp1.ChainLoadEventIndex, fp1.LoadOrAccumulateEventIndex[2])
	assert.Equal(t, MixerEventLoad, tc.event(fp1.ChainLoadEventIndex).Type)
	tc.verify()

	// deaf to everyone: the chain goes and the output port is muted again
	free := tc.freeEvents()
	require.NoError(t, tc.maskChange(p1, 0xFFFFFFFF))
	assert.False(t, fp1.FlexibleMixerCreated)
	assert.Equal(t, free+2, tc.freeEvents())
	assert.Equal(t, MutePortsAllBits, tc.channel(p1).MutePortsMask)
	tc.verify()

	require.NoError(t, tc.maskChange(p1, 0))
	assert.Equal(t, uint16(2), fp1.SourceCount)
	assert.Equal(t, MutePortsRinBit, tc.channel(p1).MutePortsMask)
	tc.verify()
}

func TestFlexibleMaskChangeErrors(t *testing.T) {
	tc := newTestChip(t)
	simple := tc.openBridge(false)
	c1, lone := tc.openChannel(), tc.openChannel()
	tc.mustAdd(simple, c1)

	assert.Equal(t, StatusConfBridgeFlexibleConferencing, StatusOf(tc.maskChange(c1, 0)))
	assert.Equal(t, StatusConfBridgeChannelNotOnBridge, StatusOf(tc.maskChange(lone, 0)))
	assert.Equal(t, StatusChannelInvalidHandle, StatusOf(tc.maskChange(InvalidHandle, 0)))
	assert.Equal(t, StatusInvalidParams, StatusOf(tc.ConfBridgeMaskChange(tc.ctx, nil)))
}

func TestFlexibleMute(t *testing.T) {
	tc := newTestChip(t)
	b := tc.openBridge(true)
	p1, p2, p3, p4 := tc.openChannel(), tc.openChannel(), tc.openChannel(), tc.openChannel()
	tc.mustAdd(b, p1, flexMember(0, 0)...)
	tc.mustAdd(b, p2, flexMember(1, 0)...)
	tc.mustAdd(b, p3, flexMember(2, 0)...)
	assert.Equal(t, 2, tc.eventsFrom(b, p2))

	free := tc.freeEvents()
	require.NoError(t, tc.ConfBridgeChanMute(tc.ctx, p2))
	assert.Equal(t, 0, tc.eventsFrom(b, p2))
	assert.Equal(t, free+2, tc.freeEvents())
	assert.Equal(t, uint16(2), tc.participant(p2).SourceCount, "a muted participant still listens")
	tc.verify()

	// p4 joins while p2 is muted and does not hear it
	tc.mustAdd(b, p4, flexMember(3, 0)...)
	assert.Equal(t, 0, tc.eventsFrom(b, p2))
	assert.Equal(t, uint16(2), tc.participant(p4).SourceCount)
	tc.verify()

	require.NoError(t, tc.ConfBridgeChanUnMute(tc.ctx, p2))
	assert.Equal(t, 3, tc.eventsFrom(b, p2))
	assert.Equal(t, uint16(3), tc.participant(p4).SourceCount)
	tc.verify()

	assert.Equal(t, StatusConfBridgeChannelNotMuted, StatusOf(tc.ConfBridgeChanUnMute(tc.ctx, p2)))
}

func TestFlexibleAddMuted(t *testing.T) {
	tc := newTestChip(t)
	b := tc.openBridge(true)
	p1, p2 := tc.openChannel(), tc.openChannel()
	tc.mustAdd(b, p1, flexMember(0, 0)...)
	tc.mustAdd(b, p2, append(flexMember(1, 0), withMute)...)

	assert.Equal(t, 0, tc.eventsFrom(b, p2))
	assert.Equal(t, 1, tc.eventsFrom(b, p1))
	tc.verify()

	require.NoError(t, tc.ConfBridgeChanUnMute(tc.ctx, p2))
	assert.Equal(t, 1, tc.eventsFrom(b, p2))
	tc.verify()
}

func TestFlexibleSoutInput(t *testing.T) {
	tc := newTestChip(t)
	b := tc.openBridge(true)
	p1, p2 := tc.openChannel(), tc.openChannel()
	tc.mustAdd(b, p1, withMask(0, 0))
	tc.mustAdd(b, p2, withMask(1, 0))

	c1 := tc.channel(p1)
	require.NotEqual(t, InvalidIndex, c1.SinCopyEventIndex)
	assert.Equal(t, uint16(0), c1.MutePortsMask)
	// p2 hears p1's Sout signal and its mix goes to p2's Rin/Rout TSI
	fp2 := tc.participant(p2)
	assert.Equal(t, c1.SinSoutTsiMemIndex, tc.event(fp2.ChainLoadEventIndex).SourceTsi())
	assert.Equal(t, tc.channel(p2).RinRoutTsiMemIndex, tc.event(fp2.StoreEventIndex).DestinationTsi)
	tc.verify()

	require.NoError(t, tc.removeAll(b))
	assert.Equal(t, []uint16{MixerHeadNode, MixerTailNode}, tc.listOrder())
	assert.Equal(t, MutePortsAllBits, c1.MutePortsMask)
	assert.Equal(t, tc.participantPool.Size(), tc.participantPool.Free())
	tc.verify()
}

func TestFlexibleAddChecks(t *testing.T) {
	tc := newTestChip(t)
	b := tc.openBridge(true)
	p1, p2 := tc.openChannel(), tc.openChannel()
	tc.mustAdd(b, p1, flexMember(4, 0)...)

	tests := []struct {
		name   string
		add    []func(*ConfBridgeChanAddParams)
		status Status
	}{
		{"no mask index", []func(*ConfBridgeChanAddParams){withRin}, StatusConfBridgeListenerMaskIndex},
		{"mask index too large", flexMember(MaxParticipantsPerBridge, 0), StatusConfBridgeListenerMaskIndex},
		{"mask index taken", flexMember(4, 0), StatusConfBridgeListenerMaskIndexUsed},
		{"tap", append(flexMember(5, 0), func(p *ConfBridgeChanAddParams) { p.TappedChannelHandle = p1 }), StatusConfBridgeFlexibleConferencing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tc.snapshot()
			assert.Equal(t, tt.status, StatusOf(tc.add(b, p2, tt.add...)))
			assert.Equal(t, before, tc.snapshot())
		})
	}
}

func TestFlexibleMaxParticipants(t *testing.T) {
	tc := newTestChip(t, func(p *ChipOpenParams) {
		p.MaxChannels = 40
		p.MaxFlexibleConfParticipants = 40
		p.MaxTsiMemEntries = 100
	})
	b := tc.openBridge(true)
	for i := uint32(0); i < MaxParticipantsPerBridge; i++ {
		tc.mustAdd(b, tc.openChannel(), flexMember(i, 0xFFFFFFFF)...)
	}
	extra := tc.openChannel()
	assert.Equal(t, StatusConfBridgeMaxParticipants, StatusOf(tc.add(b, extra, flexMember(0, 0)...)))
	tc.verify()
}

func TestFlexibleParticipantPoolExhaustion(t *testing.T) {
	tc := newTestChip(t, func(p *ChipOpenParams) { p.MaxFlexibleConfParticipants = 1 })
	b := tc.openBridge(true)
	p1, p2 := tc.openChannel(), tc.openChannel()
	tc.mustAdd(b, p1, flexMember(0, 0)...)

	before := tc.snapshot()
	assert.Equal(t, StatusConfBridgeAllFlexParticipantsOpen, StatusOf(tc.add(b, p2, flexMember(1, 0)...)))
	assert.Equal(t, before, tc.snapshot())
}

func TestFlexibleConferencingDisabled(t *testing.T) {
	tc := newTestChip(t, func(p *ChipOpenParams) { p.MaxFlexibleConfParticipants = 0 })
	p := NewConfBridgeOpenParams()
	p.FlexibleConferencing = true
	_, err := tc.ConfBridgeOpen(tc.ctx, p)
	assert.Equal(t, StatusConfBridgeFlexibleConferencingDisabled, StatusOf(err))
}
