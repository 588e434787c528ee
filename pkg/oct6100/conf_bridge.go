package oct6100

import (
	"context"
)

// ConfBridge is one conference bridge. The mixer events of a bridge form a
// contiguous run of the mixer list: for a simple bridge the load sub-chain
// followed by the sub-store sub-chain, for a flexible bridge one private
// chain per listener.
type ConfBridge struct {
	Reserved     bool
	EntryOpenCnt uint8

	FlexibleConferencing bool
	// Internal marks the private bridge that feeds a tap channel
	Internal bool

	NumClients       uint16
	NumTappedClients uint16

	FirstLoadEventPtr     uint16
	FirstSubStoreEventPtr uint16
	LastSubStoreEventPtr  uint16
	LoadIndex             uint16
	SilenceLoadEventPtr   uint16

	DominantSpeakerSet       bool
	DominantSpeakerChanIndex uint16
}

func (b *ConfBridge) reset() {
	openCnt := b.EntryOpenCnt
	*b = ConfBridge{EntryOpenCnt: openCnt, DominantSpeakerChanIndex: InvalidIndex}
	b.clearSegment()
}

func (b *ConfBridge) clearSegment() {
	b.FirstLoadEventPtr = InvalidIndex
	b.FirstSubStoreEventPtr = InvalidIndex
	b.LastSubStoreEventPtr = InvalidIndex
	b.LoadIndex = InvalidIndex
	b.SilenceLoadEventPtr = InvalidIndex
}

// bridgeMixer is the mutation logic of one bridge flavor
type bridgeMixer interface {
	checkAdd(bIdx, chanIdx uint16, p *ConfBridgeChanAddParams) error
	add(bIdx, chanIdx uint16, p *ConfBridgeChanAddParams) error
	remove(bIdx, chanIdx uint16) error
	removeAll(bIdx uint16) error
	mute(bIdx, chanIdx uint16) error
	unmute(bIdx, chanIdx uint16) error
}

func (inst *Instance) mixerFor(bIdx uint16) bridgeMixer {
	if inst.bridges[bIdx].FlexibleConferencing {
		return flexibleMixer{inst}
	}
	return simpleMixer{inst}
}

// ConfBridgeOpenParams describes a bridge to open
type ConfBridgeOpenParams struct {
	FlexibleConferencing bool
}

// NewConfBridgeOpenParams returns the defaults for ConfBridgeOpen
func NewConfBridgeOpenParams() *ConfBridgeOpenParams {
	return &ConfBridgeOpenParams{}
}

// ConfBridgeOpen reserves an empty bridge
func (inst *Instance) ConfBridgeOpen(ctx context.Context, p *ConfBridgeOpenParams) (uint32, error) {
	var handle uint32
	err := inst.serialize(ctx, "conference bridge open", func() error {
		if p == nil {
			return NewError(StatusInvalidParams, "conference bridge open")
		}
		if p.FlexibleConferencing && len(inst.participants) == 0 {
			return NewError(StatusConfBridgeFlexibleConferencingDisabled, "conference bridge open")
		}
		idx, err := inst.confBridgeOpenIndex(p.FlexibleConferencing, false)
		if err != nil {
			return err
		}
		handle = makeHandle(HandleTagConfBridge, inst.bridges[idx].EntryOpenCnt, idx)
		return nil
	})
	return handle, err
}

func (inst *Instance) confBridgeOpenIndex(flexible, internal bool) (uint16, error) {
	idx, err := reserve(inst.bridgePool, StatusConfBridgeAllBuffersOpen)
	if err != nil {
		return 0, err
	}
	b := &inst.bridges[idx]
	b.reset()
	b.Reserved = true
	b.FlexibleConferencing = flexible
	b.Internal = internal
	inst.logger.Debug("conference bridge opened", "bridge", idx, "flexible", flexible, "internal", internal)
	return idx, nil
}

// ConfBridgeClose releases an empty bridge
func (inst *Instance) ConfBridgeClose(ctx context.Context, handle uint32) error {
	return inst.serialize(ctx, "conference bridge close", func() error {
		idx, err := inst.bridgeFromHandle(handle)
		if err != nil {
			return err
		}
		if inst.bridges[idx].NumClients != 0 {
			return NewError(StatusConfBridgeActiveDependencies, "conference bridge close")
		}
		return inst.confBridgeCloseIndex(idx)
	})
}

func (inst *Instance) confBridgeCloseIndex(idx uint16) error {
	b := &inst.bridges[idx]
	if b.FirstLoadEventPtr != InvalidIndex {
		return fatal(StatusFatalSegmentCorrupt, "closing bridge %d with linked events", idx)
	}
	if err := release(inst.bridgePool, idx); err != nil {
		return err
	}
	b.EntryOpenCnt = nextOpenCnt(b.EntryOpenCnt)
	b.reset()
	inst.logger.Debug("conference bridge closed", "bridge", idx)
	return nil
}

func (inst *Instance) bridgeFromHandle(handle uint32) (uint16, error) {
	idx, openCnt, err := decodeHandle(handle, HandleTagConfBridge, len(inst.bridges), StatusConfBridgeInvalidHandle)
	if err != nil {
		return 0, err
	}
	b := &inst.bridges[idx]
	if !b.Reserved || b.Internal {
		return 0, NewError(StatusConfBridgeNotOpen, "conference bridge")
	}
	if b.EntryOpenCnt != openCnt {
		return 0, NewError(StatusConfBridgeInvalidHandle, "stale conference bridge handle")
	}
	return idx, nil
}

func (inst *Instance) bridgeHandle(idx uint16) uint32 {
	return makeHandle(HandleTagConfBridge, inst.bridges[idx].EntryOpenCnt, idx)
}

// ConfBridgeChanAddParams describes a channel joining a bridge
type ConfBridgeChanAddParams struct {
	ConfBridgeHandle uint32
	ChannelHandle    uint32

	// InputPort is the port whose signal the channel contributes, PortSout
	// or PortRin. The mix is written to the opposite direction.
	InputPort Port
	Mute      bool

	// TappedChannelHandle makes the channel a tap of another member of the
	// same simple bridge
	TappedChannelHandle uint32

	// ListenerMaskIndex and ListenerMask are used by flexible bridges only.
	// A participant hears B unless bit B.ListenerMaskIndex is set in its mask.
	ListenerMaskIndex uint32
	ListenerMask      uint32
}

// NewConfBridgeChanAddParams returns an unmuted Sout-input add request
func NewConfBridgeChanAddParams() *ConfBridgeChanAddParams {
	return &ConfBridgeChanAddParams{
		ConfBridgeHandle:    InvalidHandle,
		ChannelHandle:       InvalidHandle,
		InputPort:           PortSout,
		TappedChannelHandle: InvalidHandle,
		ListenerMaskIndex:   InvalidValue,
	}
}

// ConfBridgeChanAdd adds a channel to a bridge
func (inst *Instance) ConfBridgeChanAdd(ctx context.Context, p *ConfBridgeChanAddParams) error {
	return inst.serialize(ctx, "conference bridge channel add", func() error {
		return inst.confBridgeChanAddSer(p)
	})
}

func (inst *Instance) confBridgeChanAddSer(p *ConfBridgeChanAddParams) error {
	bIdx, chanIdx, err := inst.checkChanAdd(p)
	if err != nil {
		return err
	}
	if p.TappedChannelHandle != InvalidHandle {
		tapped, err := inst.checkTapAdd(bIdx, chanIdx, p)
		if err != nil {
			return err
		}
		return inst.tapAdd(bIdx, chanIdx, tapped, p)
	}

	m := inst.mixerFor(bIdx)
	if err := m.checkAdd(bIdx, chanIdx, p); err != nil {
		return err
	}
	if err := m.add(bIdx, chanIdx, p); err != nil {
		return err
	}
	if b := &inst.bridges[bIdx]; b.DominantSpeakerSet {
		return inst.writeDominantSpeaker(chanIdx, b.DominantSpeakerChanIndex)
	}
	return nil
}

func (inst *Instance) checkChanAdd(p *ConfBridgeChanAddParams) (uint16, uint16, error) {
	if p == nil {
		return 0, 0, NewError(StatusInvalidParams, "conference bridge channel add")
	}
	bIdx, err := inst.bridgeFromHandle(p.ConfBridgeHandle)
	if err != nil {
		return 0, 0, err
	}
	chanIdx, err := inst.channelFromHandle(p.ChannelHandle, StatusConfBridgeChannelAddInvalidHandle)
	if err != nil {
		return 0, 0, err
	}
	c := &inst.channels[chanIdx]
	switch {
	case c.BridgeIndex != InvalidIndex:
		return 0, 0, NewError(StatusConfBridgeChannelAlreadyOnBridge, "")
	case c.Bidirectional:
		return 0, 0, NewError(StatusConfBridgeChannelBidirectional, "")
	case c.RinLaw != c.RoutLaw || c.SinLaw != c.SoutLaw:
		return 0, 0, NewError(StatusConfBridgeChannelLawConversion, "")
	case c.CodecPort != PortNone:
		return 0, 0, NewError(StatusConfBridgeChannelCodecActive, "")
	case c.ExtendedToneDetection:
		return 0, 0, NewError(StatusConfBridgeChannelExtendedToneDetection, "")
	case c.CopyEventCnt != 0:
		return 0, 0, NewError(StatusConfBridgeChannelCopyEventsActive, "")
	case p.InputPort != PortSout && p.InputPort != PortRin:
		return 0, 0, NewError(StatusConfBridgeInputPort, p.InputPort.String())
	}
	return bIdx, chanIdx, nil
}

// settleMember finishes a member whose events are already linked: the Sin
// copy of a Sout-input channel, the port silence events and the mute-ports
// word. The member stays on its bridge if any step fails; remove undoes
// whatever was done.
func (inst *Instance) settleMember(chanIdx, copyEv, tsi, ports uint16) error {
	if copyEv != InvalidIndex {
		if err := inst.attachSinCopy(chanIdx, copyEv, tsi); err != nil {
			return err
		}
	}
	if err := inst.removeSilenceEvents(chanIdx); err != nil {
		return err
	}
	return inst.unmutePorts(chanIdx, ports)
}

// attachSinCopy gives a Sout-input channel an extra Sin TSI: the Sin TSST is
// rerouted into it and a Sin copy event moves it into the Sin/Sout TSI, so
// the bridge can overwrite the Rin/Rout TSI without losing the Sin signal.
// If the copy event cannot be linked, its reservations are dropped.
func (inst *Instance) attachSinCopy(chanIdx, evIdx, tsi uint16) error {
	c := &inst.channels[chanIdx]
	node := newMixerEvent(MixerEventCopy, c.SinLaw, tsi, c.SinSoutTsiMemIndex)
	node.SourceChanIndex = chanIdx
	node.DestinationChanIndex = chanIdx
	if err := inst.mixerEventAdd(evIdx, eventClassSinCopy, node); err != nil {
		inst.discardEvents(evIdx)
		inst.unreserveSinCopy(InvalidIndex, tsi)
		return err
	}
	c.ExtraSinTsiMemIndex = tsi
	c.SinCopyEventIndex = evIdx
	return inst.routeTsst(c.SinTsstIndex, tsi)
}

// discardEvents frees events that a failed call reserved but never linked.
// A node image already written is cleared when the bus allows it; one that
// cannot be cleared is unreachable from HEAD and is overwritten on reuse.
func (inst *Instance) discardEvents(idxs ...uint16) {
	for _, idx := range idxs {
		if idx == InvalidIndex {
			continue
		}
		ev := inst.mixerEvents[idx]
		if ev.Control != 0 || ev.DestinationTsi != 0 || ev.NextEventPtr != InvalidIndex {
			if err := inst.clearEvent(idx); err != nil {
				inst.logger.Warn("mixer event image left in control memory", "event", idx, "err", err)
			}
		}
		if err := inst.releaseMixerEvent(idx); err != nil {
			inst.logger.Error("unwinding mixer event reservation", "event", idx, "err", err)
		}
	}
}

func (inst *Instance) detachSinCopy(chanIdx uint16) error {
	c := &inst.channels[chanIdx]
	if c.SinCopyEventIndex == InvalidIndex {
		return nil
	}
	if err := inst.routeTsst(c.SinTsstIndex, c.SinSoutTsiMemIndex); err != nil {
		return err
	}
	ev := c.SinCopyEventIndex
	if err := inst.mixerEventRemove(ev, eventClassSinCopy); err != nil {
		return err
	}
	if err := inst.releaseMixerEvent(ev); err != nil {
		return err
	}
	if err := release(inst.tsiPool, c.ExtraSinTsiMemIndex); err != nil {
		return err
	}
	c.SinCopyEventIndex = InvalidIndex
	c.ExtraSinTsiMemIndex = InvalidIndex
	return nil
}

// reserveSinCopy reserves the extra Sin TSI and the Sin copy event of a
// Sout-input channel
func (inst *Instance) reserveSinCopy(port Port) (ev, tsi uint16, err error) {
	if port != PortSout {
		return InvalidIndex, InvalidIndex, nil
	}
	tsi, err = reserve(inst.tsiPool, StatusTsiMemAllOpen)
	if err != nil {
		return InvalidIndex, InvalidIndex, err
	}
	ev, err = inst.reserveMixerEvent()
	if err != nil {
		_ = release(inst.tsiPool, tsi)
		return InvalidIndex, InvalidIndex, err
	}
	return ev, tsi, nil
}

func (inst *Instance) unreserveSinCopy(ev, tsi uint16) {
	if ev != InvalidIndex {
		inst.releaseMixerEvents([]uint16{ev})
	}
	if tsi != InvalidIndex {
		_ = release(inst.tsiPool, tsi)
	}
}

// leaveBridgePorts restores a channel's ports after it stopped being mixed
func (inst *Instance) leaveBridgePorts(chanIdx uint16) error {
	c := &inst.channels[chanIdx]
	mask := c.outputPortMask()
	if c.InputPort == PortSout {
		mask |= MutePortsSinBit
	}
	if err := inst.detachSinCopy(chanIdx); err != nil {
		return err
	}
	return inst.mutePorts(chanIdx, mask)
}

// ConfBridgeChanRemoveParams describes a channel leaving a bridge
type ConfBridgeChanRemoveParams struct {
	ConfBridgeHandle uint32
	ChannelHandle    uint32
	// RemoveAll empties the bridge named by ConfBridgeHandle. ChannelHandle
	// must then be InvalidHandle.
	RemoveAll bool
}

// NewConfBridgeChanRemoveParams returns the defaults for ConfBridgeChanRemove
func NewConfBridgeChanRemoveParams() *ConfBridgeChanRemoveParams {
	return &ConfBridgeChanRemoveParams{
		ConfBridgeHandle: InvalidHandle,
		ChannelHandle:    InvalidHandle,
	}
}

// ConfBridgeChanRemove removes one channel, or every channel, from a bridge
func (inst *Instance) ConfBridgeChanRemove(ctx context.Context, p *ConfBridgeChanRemoveParams) error {
	return inst.serialize(ctx, "conference bridge channel remove", func() error {
		return inst.confBridgeChanRemoveSer(p)
	})
}

func (inst *Instance) confBridgeChanRemoveSer(p *ConfBridgeChanRemoveParams) error {
	if p == nil {
		return NewError(StatusInvalidParams, "conference bridge channel remove")
	}
	if p.RemoveAll {
		if p.ChannelHandle != InvalidHandle {
			return NewError(StatusConfBridgeRemoveAll, "channel handle given with remove all")
		}
		bIdx, err := inst.bridgeFromHandle(p.ConfBridgeHandle)
		if err != nil {
			return err
		}
		return inst.confBridgeRemoveAll(bIdx)
	}

	chanIdx, err := inst.channelFromHandle(p.ChannelHandle, StatusChannelInvalidHandle)
	if err != nil {
		return err
	}
	c := &inst.channels[chanIdx]
	if c.BridgeIndex == InvalidIndex {
		return NewError(StatusConfBridgeChannelNotOnBridge, "")
	}
	if p.ConfBridgeHandle != InvalidHandle {
		bIdx, err := inst.bridgeFromHandle(p.ConfBridgeHandle)
		if err != nil {
			return err
		}
		if bIdx != c.BridgeIndex {
			return NewError(StatusConfBridgeChannelNotOnBridge, "channel is on another bridge")
		}
	}
	if c.BeingTapped {
		return NewError(StatusConfBridgeTapDependency, "")
	}
	return inst.confBridgeChanRemoveIndex(chanIdx)
}

func (inst *Instance) confBridgeChanRemoveIndex(chanIdx uint16) error {
	c := &inst.channels[chanIdx]
	bIdx := c.BridgeIndex
	if c.Tap {
		return inst.tapRemove(chanIdx)
	}
	if err := inst.dominantSpeakerLeave(bIdx, chanIdx); err != nil {
		return err
	}
	return inst.mixerFor(bIdx).remove(bIdx, chanIdx)
}

func (inst *Instance) confBridgeRemoveAll(bIdx uint16) error {
	b := &inst.bridges[bIdx]
	if b.NumClients == 0 {
		return nil
	}
	for i := range inst.channels {
		c := &inst.channels[i]
		if c.Reserved && c.Tap && c.BridgeIndex == bIdx {
			if err := inst.tapRemove(uint16(i)); err != nil {
				return err
			}
		}
	}
	if err := inst.dominantSpeakerClear(bIdx); err != nil {
		return err
	}
	if err := inst.mixerFor(bIdx).removeAll(bIdx); err != nil {
		return err
	}
	inst.logger.Debug("conference bridge emptied", "bridge", bIdx)
	return nil
}

// ConfBridgeChanMute stops a channel from being heard on its bridge
func (inst *Instance) ConfBridgeChanMute(ctx context.Context, chanHandle uint32) error {
	return inst.serialize(ctx, "conference bridge channel mute", func() error {
		bIdx, chanIdx, err := inst.checkMuteChange(chanHandle)
		if err != nil {
			return err
		}
		if inst.channels[chanIdx].Mute {
			return NewError(StatusConfBridgeChannelAlreadyMuted, "")
		}
		return inst.mixerFor(bIdx).mute(bIdx, chanIdx)
	})
}

// ConfBridgeChanUnMute makes a muted channel heard again
func (inst *Instance) ConfBridgeChanUnMute(ctx context.Context, chanHandle uint32) error {
	return inst.serialize(ctx, "conference bridge channel unmute", func() error {
		bIdx, chanIdx, err := inst.checkMuteChange(chanHandle)
		if err != nil {
			return err
		}
		if !inst.channels[chanIdx].Mute {
			return NewError(StatusConfBridgeChannelNotMuted, "")
		}
		return inst.mixerFor(bIdx).unmute(bIdx, chanIdx)
	})
}

func (inst *Instance) checkMuteChange(chanHandle uint32) (uint16, uint16, error) {
	chanIdx, err := inst.channelFromHandle(chanHandle, StatusChannelInvalidHandle)
	if err != nil {
		return 0, 0, err
	}
	c := &inst.channels[chanIdx]
	if c.BridgeIndex == InvalidIndex {
		return 0, 0, NewError(StatusConfBridgeChannelNotOnBridge, "")
	}
	if c.Tap {
		return 0, 0, NewError(StatusConfBridgeTapAlwaysMute, "")
	}
	return c.BridgeIndex, chanIdx, nil
}

// segmentPredecessor returns the node before the first node of a bridge
// segment. That node belongs to another segment, so it is either derived
// from the global pointers or found by walking the list from HEAD.
func (inst *Instance) segmentPredecessor(first uint16) (uint16, error) {
	if first == inst.mixer.FirstBridgeEventPtr {
		if inst.mixer.LastSoutCopyEventPtr != InvalidIndex {
			return inst.mixer.LastSoutCopyEventPtr, nil
		}
		return MixerHeadNode, nil
	}
	prev, err := inst.previousEvent(first)
	if err != nil {
		if StatusOf(err) == StatusConfMixerEventNotFound {
			return 0, fatal(StatusFatalEventUnreachable, "bridge event %d not linked", first)
		}
		return 0, err
	}
	return prev, nil
}

// insertAfter writes a node and links it after anchor
func (inst *Instance) insertAfter(anchor, idx uint16, ev MixerEvent) error {
	ev.NextEventPtr = inst.mixerEvents[anchor].NextEventPtr
	if err := inst.writeEvent(idx, ev); err != nil {
		return err
	}
	return inst.writeNext(anchor, idx)
}

// appendToBridge links a run of nodes at the end of a bridge segment. All
// nodes are written back to front before the single anchor rewrite.
func (inst *Instance) appendToBridge(bIdx uint16, idxs []uint16, evs []MixerEvent) error {
	b := &inst.bridges[bIdx]
	anchor := b.LastSubStoreEventPtr
	if anchor == InvalidIndex {
		anchor = inst.bridgeSegmentAnchor()
	}

	next := inst.mixerEvents[anchor].NextEventPtr
	for i := len(idxs) - 1; i >= 0; i-- {
		evs[i].NextEventPtr = next
		evs[i].BridgeIndex = bIdx
		if err := inst.writeEvent(idxs[i], evs[i]); err != nil {
			return err
		}
		next = idxs[i]
	}
	if err := inst.writeNext(anchor, idxs[0]); err != nil {
		return err
	}

	last := idxs[len(idxs)-1]
	m := &inst.mixer
	if m.FirstBridgeEventPtr == InvalidIndex {
		m.FirstBridgeEventPtr = idxs[0]
	}
	if m.LastBridgeEventPtr == InvalidIndex || m.LastBridgeEventPtr == anchor {
		m.LastBridgeEventPtr = last
	}
	if b.FirstLoadEventPtr == InvalidIndex {
		b.FirstLoadEventPtr = idxs[0]
	}
	b.LastSubStoreEventPtr = last
	inst.logger.Debug("bridge events linked", "bridge", bIdx, "first", idxs[0], "last", last, "after", anchor)
	return nil
}

// unlinkBridgeRange splices the contiguous run first..last out of a bridge
// segment with one predecessor rewrite, then clears and frees its nodes
func (inst *Instance) unlinkBridgeRange(bIdx, first, last uint16) error {
	b := &inst.bridges[bIdx]

	var nodes []uint16
	for cur, loops := first, 0; ; loops++ {
		if loops >= MaxLoop || cur == InvalidIndex {
			return fatal(StatusFatalMixerLoopOverflow, "collecting bridge %d events", bIdx)
		}
		nodes = append(nodes, cur)
		if cur == last {
			break
		}
		cur = inst.mixerEvents[cur].NextEventPtr
	}

	var prev uint16
	var err error
	if first == b.FirstLoadEventPtr {
		prev, err = inst.segmentPredecessor(first)
	} else {
		prev, err = inst.previousInSegment(b.FirstLoadEventPtr, b.LastSubStoreEventPtr, first)
		if StatusOf(err) == StatusConfMixerEventNotFound {
			err = fatal(StatusFatalSegmentCorrupt, "event %d not in bridge %d", first, bIdx)
		}
	}
	if err != nil {
		return err
	}

	next := inst.mixerEvents[last].NextEventPtr
	if err := inst.writeNext(prev, next); err != nil {
		return err
	}

	m := &inst.mixer
	switch {
	case m.FirstBridgeEventPtr == first && m.LastBridgeEventPtr == last:
		m.FirstBridgeEventPtr, m.LastBridgeEventPtr = InvalidIndex, InvalidIndex
	case m.FirstBridgeEventPtr == first:
		m.FirstBridgeEventPtr = next
	case m.LastBridgeEventPtr == last:
		m.LastBridgeEventPtr = prev
	}

	if first == b.FirstLoadEventPtr && last == b.LastSubStoreEventPtr {
		b.clearSegment()
	} else {
		if first == b.FirstLoadEventPtr {
			b.FirstLoadEventPtr = next
		}
		if first == b.FirstSubStoreEventPtr {
			b.FirstSubStoreEventPtr = next
		}
		if last == b.LastSubStoreEventPtr {
			b.LastSubStoreEventPtr = prev
		}
	}
	inst.logger.Debug("bridge events unlinked", "bridge", bIdx, "first", first, "last", last, "after", prev)

	for _, idx := range nodes {
		if err := inst.clearAndRelease(idx); err != nil {
			return err
		}
	}
	return nil
}

func (inst *Instance) unlinkBridgeEvent(bIdx, idx uint16) error {
	return inst.unlinkBridgeRange(bIdx, idx, idx)
}

// retypeLoad rewrites a load-side node of a source channel
func (inst *Instance) retypeLoad(idx uint16, t MixerEventType) error {
	c := &inst.channels[inst.mixerEvents[idx].SourceChanIndex]
	tsi, law := c.inputTsi()
	return inst.writeType(idx, t, law, tsi)
}

// retypeSilenceLoad turns a load-side node into a LOAD of the silence TSI
func (inst *Instance) retypeSilenceLoad(idx uint16) error {
	c := &inst.channels[inst.mixerEvents[idx].SourceChanIndex]
	_, law := c.inputTsi()
	return inst.writeType(idx, MixerEventLoad, law, SilenceTsi)
}

// retypeStore switches a store node between STORE and SUB_STORE
func (inst *Instance) retypeStore(idx uint16, t MixerEventType) error {
	c := &inst.channels[inst.mixerEvents[idx].DestinationChanIndex]
	_, law := c.outputTsi()
	var tsi uint16
	if t == MixerEventSubStore {
		tsi, _ = c.inputTsi()
	}
	return inst.writeType(idx, t, law, tsi)
}

// loadEvent builds the load-side node of a channel
func (inst *Instance) loadEvent(chanIdx uint16, t MixerEventType, silence bool) MixerEvent {
	c := &inst.channels[chanIdx]
	tsi, law := c.inputTsi()
	if silence {
		tsi = SilenceTsi
	}
	ev := newMixerEvent(t, law, tsi, 0)
	ev.SourceChanIndex = chanIdx
	return ev
}

// storeEvent builds the node writing the mix into a channel's output TSI
func (inst *Instance) storeEvent(chanIdx uint16, t MixerEventType) MixerEvent {
	c := &inst.channels[chanIdx]
	out, law := c.outputTsi()
	var tsi uint16
	if t == MixerEventSubStore {
		tsi, _ = c.inputTsi()
	}
	ev := newMixerEvent(t, law, tsi, out)
	ev.DestinationChanIndex = chanIdx
	return ev
}
