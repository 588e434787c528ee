package oct6100

import (
	"context"
)

// FlexConfParticipant is a member of a flexible bridge. Each participant
// that hears at least one other member owns a private chain in the bridge
// segment: one LOAD or ACCUMULATE node per audible source followed by a
// STORE into its output TSI.
type FlexConfParticipant struct {
	Reserved     bool
	BridgeIndex  uint16
	ChannelIndex uint16
	InputPort    Port

	FlexibleMixerCreated bool
	ListenerMask         uint32
	ListenerMaskIndex    uint8

	// LoadOrAccumulateEventIndex is indexed by the source's listener mask
	// index
	LoadOrAccumulateEventIndex [MaxParticipantsPerBridge]uint16
	StoreEventIndex            uint16
	ChainLoadEventIndex        uint16
	SourceCount                uint16
}

func (fp *FlexConfParticipant) reset() {
	*fp = FlexConfParticipant{
		BridgeIndex:         InvalidIndex,
		ChannelIndex:        InvalidIndex,
		StoreEventIndex:     InvalidIndex,
		ChainLoadEventIndex: InvalidIndex,
	}
	for i := range fp.LoadOrAccumulateEventIndex {
		fp.LoadOrAccumulateEventIndex[i] = InvalidIndex
	}
}

// hears reports whether listener accepts audio from source
func (fp *FlexConfParticipant) hears(source *FlexConfParticipant) bool {
	return fp != source && fp.ListenerMask&(1<<source.ListenerMaskIndex) == 0
}

// flexEdge is one listener/source pair with its pre-reserved events. Store
// is InvalidIndex unless this edge creates the listener's chain.
type flexEdge struct {
	listener uint16
	source   uint16
	event    uint16
	store    uint16
}

type flexibleMixer struct {
	inst *Instance
}

func (f flexibleMixer) members(bIdx uint16) []uint16 {
	var out []uint16
	for i := range f.inst.participants {
		fp := &f.inst.participants[i]
		if fp.Reserved && fp.BridgeIndex == bIdx {
			out = append(out, uint16(i))
		}
	}
	return out
}

func (f flexibleMixer) sourceMuted(pIdx uint16) bool {
	return f.inst.channels[f.inst.participants[pIdx].ChannelIndex].Mute
}

func (f flexibleMixer) checkAdd(bIdx, chanIdx uint16, p *ConfBridgeChanAddParams) error {
	inst := f.inst
	if p.ListenerMaskIndex >= MaxParticipantsPerBridge {
		return NewError(StatusConfBridgeListenerMaskIndex, "")
	}
	if inst.bridges[bIdx].NumClients >= MaxParticipantsPerBridge {
		return NewError(StatusConfBridgeMaxParticipants, "")
	}
	for _, m := range f.members(bIdx) {
		if uint32(inst.participants[m].ListenerMaskIndex) == p.ListenerMaskIndex {
			return NewError(StatusConfBridgeListenerMaskIndexUsed, "")
		}
	}
	return nil
}

// reserveEdges reserves the events of every edge. Any failure releases all
// events reserved by this call.
func (f flexibleMixer) reserveEdges(edges []flexEdge) error {
	inst := f.inst
	var reserved []uint16
	chained := make(map[uint16]bool)

	for i := range edges {
		e := &edges[i]
		ev, err := inst.reserveMixerEvent()
		if err != nil {
			inst.releaseMixerEvents(reserved)
			return err
		}
		reserved = append(reserved, ev)
		e.event = ev
		e.store = InvalidIndex

		if !inst.participants[e.listener].FlexibleMixerCreated && !chained[e.listener] {
			st, err := inst.reserveMixerEvent()
			if err != nil {
				inst.releaseMixerEvents(reserved)
				return err
			}
			reserved = append(reserved, st)
			e.store = st
			chained[e.listener] = true
		}
	}
	return nil
}

// addSource links the listener's node for a source. The first source
// creates the listener's chain at the end of the bridge segment; later
// sources are inserted as ACCUMULATE right after the chain LOAD.
func (f flexibleMixer) addSource(bIdx uint16, e flexEdge) error {
	inst := f.inst
	l := &inst.participants[e.listener]
	s := &inst.participants[e.source]
	if l.LoadOrAccumulateEventIndex[s.ListenerMaskIndex] != InvalidIndex {
		return fatal(StatusFatalParticipantState, "participant %d already hears %d", e.listener, e.source)
	}

	if !l.FlexibleMixerCreated {
		if e.store == InvalidIndex {
			return fatal(StatusFatalParticipantState, "participant %d has no store event", e.listener)
		}
		loadEv := inst.loadEvent(s.ChannelIndex, MixerEventLoad, false)
		storeEv := inst.storeEvent(l.ChannelIndex, MixerEventStore)
		if err := inst.appendToBridge(bIdx, []uint16{e.event, e.store}, []MixerEvent{loadEv, storeEv}); err != nil {
			return err
		}
		l.FlexibleMixerCreated = true
		l.StoreEventIndex = e.store
		l.ChainLoadEventIndex = e.event
	} else {
		accEv := inst.loadEvent(s.ChannelIndex, MixerEventAccumulate, false)
		accEv.BridgeIndex = bIdx
		if err := inst.insertAfter(l.ChainLoadEventIndex, e.event, accEv); err != nil {
			return err
		}
	}

	l.LoadOrAccumulateEventIndex[s.ListenerMaskIndex] = e.event
	l.SourceCount++
	inst.logger.Debug("flexible source added", "bridge", bIdx, "listener", l.ChannelIndex,
		"source", s.ChannelIndex, "event", e.event)

	if l.SourceCount == 1 {
		c := &inst.channels[l.ChannelIndex]
		return inst.unmutePorts(l.ChannelIndex, c.outputPortMask())
	}
	return nil
}

// linkEdges adds the edges in order. When one fails, the events of that
// edge and of every edge after it are discarded. It returns how many edges
// were linked.
func (f flexibleMixer) linkEdges(bIdx uint16, edges []flexEdge) (int, error) {
	inst := f.inst
	for i, e := range edges {
		err := f.addSource(bIdx, e)
		if err == nil {
			continue
		}
		s := &inst.participants[e.source]
		if inst.participants[e.listener].LoadOrAccumulateEventIndex[s.ListenerMaskIndex] == e.event {
			i++
		}
		for _, rest := range edges[i:] {
			inst.discardEvents(rest.event, rest.store)
		}
		return i, err
	}
	return len(edges), nil
}

// removeSource unlinks the listener's node for the source at slot. Removing
// the last source removes the whole chain.
func (f flexibleMixer) removeSource(bIdx, lIdx uint16, slot uint8) error {
	inst := f.inst
	l := &inst.participants[lIdx]
	ev := l.LoadOrAccumulateEventIndex[slot]
	if ev == InvalidIndex || !l.FlexibleMixerCreated {
		return fatal(StatusFatalParticipantState, "participant %d has no event for slot %d", lIdx, slot)
	}

	if l.SourceCount == 1 {
		if err := inst.unlinkBridgeRange(bIdx, ev, l.StoreEventIndex); err != nil {
			return err
		}
		l.FlexibleMixerCreated = false
		l.StoreEventIndex = InvalidIndex
		l.ChainLoadEventIndex = InvalidIndex
		c := &inst.channels[l.ChannelIndex]
		if err := inst.mutePorts(l.ChannelIndex, c.outputPortMask()); err != nil {
			return err
		}
	} else {
		if ev == l.ChainLoadEventIndex {
			next := inst.mixerEvents[ev].NextEventPtr
			if next == l.StoreEventIndex || inst.mixerEvents[next].Type != MixerEventAccumulate {
				return fatal(StatusFatalParticipantState, "participant %d chain has no accumulate after load", lIdx)
			}
			if err := inst.retypeLoad(next, MixerEventLoad); err != nil {
				return err
			}
			l.ChainLoadEventIndex = next
		}
		if err := inst.unlinkBridgeEvent(bIdx, ev); err != nil {
			return err
		}
	}

	l.LoadOrAccumulateEventIndex[slot] = InvalidIndex
	l.SourceCount--
	inst.logger.Debug("flexible source removed", "bridge", bIdx, "listener", l.ChannelIndex, "slot", slot, "event", ev)
	return nil
}

func (f flexibleMixer) add(bIdx, chanIdx uint16, p *ConfBridgeChanAddParams) error {
	inst := f.inst

	pIdx, err := reserve(inst.participantPool, StatusConfBridgeAllFlexParticipantsOpen)
	if err != nil {
		return err
	}
	copyEv, extraTsi, err := inst.reserveSinCopy(p.InputPort)
	if err != nil {
		_ = release(inst.participantPool, pIdx)
		return err
	}

	n := &inst.participants[pIdx]
	n.reset()
	n.Reserved = true
	n.ChannelIndex = chanIdx
	n.InputPort = p.InputPort
	n.ListenerMask = p.ListenerMask
	n.ListenerMaskIndex = uint8(p.ListenerMaskIndex)

	var edges []flexEdge
	for _, m := range f.members(bIdx) {
		e := &inst.participants[m]
		if !p.Mute && e.hears(n) {
			edges = append(edges, flexEdge{listener: m, source: pIdx})
		}
		if n.hears(e) && !f.sourceMuted(m) {
			edges = append(edges, flexEdge{listener: pIdx, source: m})
		}
	}
	if err := f.reserveEdges(edges); err != nil {
		n.reset()
		_ = release(inst.participantPool, pIdx)
		inst.unreserveSinCopy(copyEv, extraTsi)
		return err
	}

	n.BridgeIndex = bIdx
	c := &inst.channels[chanIdx]
	c.InputPort = p.InputPort
	c.FlexConfParticipantIndex = pIdx

	linked, err := f.linkEdges(bIdx, edges)
	if err == nil && copyEv != InvalidIndex {
		err = inst.attachSinCopy(chanIdx, copyEv, extraTsi)
		if c.SinCopyEventIndex != InvalidIndex {
			linked++
		}
		copyEv, extraTsi = InvalidIndex, InvalidIndex
	}
	if err != nil && linked == 0 {
		// nothing reached the list: the channel stays off the bridge
		n.reset()
		_ = release(inst.participantPool, pIdx)
		inst.unreserveSinCopy(copyEv, extraTsi)
		c.leaveBridge()
		return err
	}

	c.BridgeIndex = bIdx
	c.Mute = p.Mute
	b := &inst.bridges[bIdx]
	b.NumClients++
	if err != nil {
		inst.unreserveSinCopy(copyEv, extraTsi)
		return err
	}

	var ports uint16
	if p.InputPort == PortSout {
		ports = MutePortsSinBit
	}
	if err := inst.settleMember(chanIdx, InvalidIndex, InvalidIndex, ports); err != nil {
		return err
	}
	inst.logger.Debug("participant added to flexible bridge", "bridge", bIdx, "channel", chanIdx,
		"participant", pIdx, "edges", len(edges), "clients", b.NumClients)
	return nil
}

// participant returns the flexible participant of a channel on bIdx
func (f flexibleMixer) participant(bIdx, chanIdx uint16) (uint16, error) {
	inst := f.inst
	pIdx := inst.channels[chanIdx].FlexConfParticipantIndex
	if int(pIdx) >= len(inst.participants) || !inst.participants[pIdx].Reserved || inst.participants[pIdx].BridgeIndex != bIdx {
		return 0, fatal(StatusFatalParticipantState, "channel %d has no participant on bridge %d", chanIdx, bIdx)
	}
	return pIdx, nil
}

// detach removes every edge touching participant pIdx
func (f flexibleMixer) detach(bIdx, pIdx uint16) error {
	inst := f.inst
	n := &inst.participants[pIdx]
	for _, m := range f.members(bIdx) {
		if m == pIdx {
			continue
		}
		if inst.participants[m].LoadOrAccumulateEventIndex[n.ListenerMaskIndex] != InvalidIndex {
			if err := f.removeSource(bIdx, m, n.ListenerMaskIndex); err != nil {
				return err
			}
		}
	}
	for slot, ev := range n.LoadOrAccumulateEventIndex {
		if ev == InvalidIndex {
			continue
		}
		if err := f.removeSource(bIdx, pIdx, uint8(slot)); err != nil {
			return err
		}
	}
	return nil
}

func (f flexibleMixer) remove(bIdx, chanIdx uint16) error {
	pIdx, err := f.participant(bIdx, chanIdx)
	if err != nil {
		return err
	}
	if err := f.detach(bIdx, pIdx); err != nil {
		return err
	}
	return f.release(bIdx, chanIdx)
}

func (f flexibleMixer) release(bIdx, chanIdx uint16) error {
	inst := f.inst
	pIdx := inst.channels[chanIdx].FlexConfParticipantIndex
	if err := inst.leaveBridgePorts(chanIdx); err != nil {
		return err
	}
	if err := release(inst.participantPool, pIdx); err != nil {
		return err
	}
	inst.participants[pIdx].reset()
	inst.channels[chanIdx].leaveBridge()
	b := &inst.bridges[bIdx]
	b.NumClients--
	inst.logger.Debug("participant removed from flexible bridge", "bridge", bIdx, "channel", chanIdx, "clients", b.NumClients)
	return nil
}

func (f flexibleMixer) removeAll(bIdx uint16) error {
	inst := f.inst
	b := &inst.bridges[bIdx]
	if b.FirstLoadEventPtr != InvalidIndex {
		if err := inst.unlinkBridgeRange(bIdx, b.FirstLoadEventPtr, b.LastSubStoreEventPtr); err != nil {
			return err
		}
	}
	for _, m := range f.members(bIdx) {
		if err := f.release(bIdx, inst.participants[m].ChannelIndex); err != nil {
			return err
		}
	}
	if b.NumClients != 0 {
		return fatal(StatusFatalParticipantState, "bridge %d still counts %d participants", bIdx, b.NumClients)
	}
	return nil
}

func (f flexibleMixer) mute(bIdx, chanIdx uint16) error {
	inst := f.inst
	pIdx, err := f.participant(bIdx, chanIdx)
	if err != nil {
		return err
	}
	n := &inst.participants[pIdx]
	for _, m := range f.members(bIdx) {
		if m != pIdx && inst.participants[m].LoadOrAccumulateEventIndex[n.ListenerMaskIndex] != InvalidIndex {
			if err := f.removeSource(bIdx, m, n.ListenerMaskIndex); err != nil {
				return err
			}
		}
	}
	inst.channels[chanIdx].Mute = true
	inst.logger.Debug("participant muted", "bridge", bIdx, "channel", chanIdx)
	return nil
}

func (f flexibleMixer) unmute(bIdx, chanIdx uint16) error {
	inst := f.inst
	pIdx, err := f.participant(bIdx, chanIdx)
	if err != nil {
		return err
	}
	n := &inst.participants[pIdx]

	var edges []flexEdge
	for _, m := range f.members(bIdx) {
		if inst.participants[m].hears(n) {
			edges = append(edges, flexEdge{listener: m, source: pIdx})
		}
	}
	if err := f.reserveEdges(edges); err != nil {
		return err
	}
	linked, err := f.linkEdges(bIdx, edges)
	if linked > 0 {
		inst.channels[chanIdx].Mute = false
	}
	if err != nil {
		return err
	}
	inst.channels[chanIdx].Mute = false
	inst.logger.Debug("participant unmuted", "bridge", bIdx, "channel", chanIdx, "edges", len(edges))
	return nil
}

// ConfBridgeMaskChangeParams replaces the listener mask of a flexible
// bridge participant
type ConfBridgeMaskChangeParams struct {
	ChannelHandle   uint32
	NewListenerMask uint32
}

// NewConfBridgeMaskChangeParams returns the defaults for ConfBridgeMaskChange
func NewConfBridgeMaskChangeParams() *ConfBridgeMaskChangeParams {
	return &ConfBridgeMaskChangeParams{ChannelHandle: InvalidHandle}
}

// ConfBridgeMaskChange changes which members a flexible participant hears.
// New sources are linked before dropped ones are unlinked.
func (inst *Instance) ConfBridgeMaskChange(ctx context.Context, p *ConfBridgeMaskChangeParams) error {
	return inst.serialize(ctx, "conference bridge mask change", func() error {
		if p == nil {
			return NewError(StatusInvalidParams, "conference bridge mask change")
		}
		chanIdx, err := inst.channelFromHandle(p.ChannelHandle, StatusChannelInvalidHandle)
		if err != nil {
			return err
		}
		c := &inst.channels[chanIdx]
		if c.BridgeIndex == InvalidIndex {
			return NewError(StatusConfBridgeChannelNotOnBridge, "")
		}
		bIdx := c.BridgeIndex
		if !inst.bridges[bIdx].FlexibleConferencing {
			return NewError(StatusConfBridgeFlexibleConferencing, "mask change on simple bridge")
		}
		f := flexibleMixer{inst}
		pIdx, err := f.participant(bIdx, chanIdx)
		if err != nil {
			return err
		}
		return f.maskChange(bIdx, pIdx, p.NewListenerMask)
	})
}

func (f flexibleMixer) maskChange(bIdx, pIdx uint16, mask uint32) error {
	inst := f.inst
	n := &inst.participants[pIdx]
	old := n.ListenerMask

	var adds []flexEdge
	var drops []uint8
	for _, m := range f.members(bIdx) {
		if m == pIdx {
			continue
		}
		slot := inst.participants[m].ListenerMaskIndex
		bit := uint32(1) << slot
		wasDeaf, nowDeaf := old&bit != 0, mask&bit != 0
		switch {
		case wasDeaf && !nowDeaf && !f.sourceMuted(m):
			adds = append(adds, flexEdge{listener: pIdx, source: m})
		case !wasDeaf && nowDeaf && n.LoadOrAccumulateEventIndex[slot] != InvalidIndex:
			drops = append(drops, slot)
		}
	}

	if err := f.reserveEdges(adds); err != nil {
		return err
	}
	if _, err := f.linkEdges(bIdx, adds); err != nil {
		return err
	}
	for _, slot := range drops {
		if err := f.removeSource(bIdx, pIdx, slot); err != nil {
			return err
		}
	}
	n.ListenerMask = mask
	inst.logger.Debug("listener mask changed", "bridge", bIdx, "participant", pIdx,
		"old", old, "new", mask, "added", len(adds), "dropped", len(drops))
	return nil
}
