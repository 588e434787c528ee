package oct6100

// MixerEvent is the host shadow of one mixer control memory entry. Control
// and DestinationTsi are the exact words programmed into the chip; the
// remaining fields are bookkeeping that never reaches hardware.
type MixerEvent struct {
	Reserved bool
	Type     MixerEventType

	Control        uint16
	DestinationTsi uint16
	NextEventPtr   uint16

	SourceChanIndex      uint16
	DestinationChanIndex uint16
	// BridgeIndex is the owning bridge, InvalidIndex for copy events
	BridgeIndex uint16
}

func freeMixerEvent() MixerEvent {
	return MixerEvent{
		NextEventPtr:         InvalidIndex,
		SourceChanIndex:      InvalidIndex,
		DestinationChanIndex: InvalidIndex,
		BridgeIndex:          InvalidIndex,
	}
}

// newMixerEvent builds a node image. tsi is the source operand for
// LOAD/ACCUMULATE/COPY and the subtracted operand for SUB_STORE.
func newMixerEvent(t MixerEventType, law PcmLaw, tsi, dstTsi uint16) MixerEvent {
	ev := freeMixerEvent()
	ev.Reserved = true
	ev.Type = t
	ev.Control = controlWord(t, law, tsi)
	ev.DestinationTsi = dstTsi
	return ev
}

func controlWord(t MixerEventType, law PcmLaw, tsi uint16) uint16 {
	if t == MixerEventNoOp {
		return MixerControlMemNoOp
	}
	return t.Opcode() | uint16(law)<<MixerControlMemLawOfst&MixerControlMemLawMask | tsi&MixerControlMemTsiMask
}

// SourceTsi returns the TSI operand of the control word
func (ev MixerEvent) SourceTsi() uint16 {
	return ev.Control & MixerControlMemTsiMask
}

func mixerEventAddr(idx uint16, ofst uint32) uint32 {
	return MixerControlMemBase + uint32(idx)*MixerControlMemEntrySize + ofst
}

func (inst *Instance) reserveMixerEvent() (uint16, error) {
	idx, err := reserve(inst.mixerEventPool, StatusMixerAllMixerEventEntryOpened)
	if err != nil {
		return 0, err
	}
	ev := freeMixerEvent()
	ev.Reserved = true
	inst.mixerEvents[idx] = ev
	return idx, nil
}

func (inst *Instance) releaseMixerEvent(idx uint16) error {
	if !inst.mixerEvents[idx].Reserved {
		return fatal(StatusFatalAllocatorRelease, "mixer event %d already free", idx)
	}
	if err := release(inst.mixerEventPool, idx); err != nil {
		return err
	}
	inst.mixerEvents[idx] = freeMixerEvent()
	return nil
}

// releaseMixerEvents returns reserved slots to the pool. It is used to unwind
// reservations made earlier in the same call.
func (inst *Instance) releaseMixerEvents(idxs []uint16) {
	for _, idx := range idxs {
		if err := inst.releaseMixerEvent(idx); err != nil {
			inst.logger.Error("unwinding mixer event reservation", "event", idx, "err", err)
		}
	}
}

// writeEvent programs a complete node and commits it to the shadow list
func (inst *Instance) writeEvent(idx uint16, ev MixerEvent) error {
	words := []uint16{ev.Control, ev.DestinationTsi, ev.NextEventPtr, 0}
	if err := inst.bus.BurstWrite(mixerEventAddr(idx, MixerControlMemCtrlOfst), words); err != nil {
		return busError("mixer event write", err)
	}
	inst.mixerEvents[idx] = ev
	return nil
}

// writeNext rewrites the next pointer of idx. This is the single write that
// splices a node in or out of the live list.
func (inst *Instance) writeNext(idx, next uint16) error {
	if err := inst.write(mixerEventAddr(idx, MixerControlMemNextOfst), next); err != nil {
		return err
	}
	inst.mixerEvents[idx].NextEventPtr = next
	return nil
}

// writeType rewrites the opcode of a node in place. The TSI operand is
// recomputed so NO_OP nodes carry an all-zero control word.
func (inst *Instance) writeType(idx uint16, t MixerEventType, law PcmLaw, tsi uint16) error {
	ctrl := controlWord(t, law, tsi)
	if err := inst.write(mixerEventAddr(idx, MixerControlMemCtrlOfst), ctrl); err != nil {
		return err
	}
	ev := &inst.mixerEvents[idx]
	ev.Type = t
	ev.Control = ctrl
	inst.logger.Debug("mixer event retyped", "event", idx, "type", t)
	return nil
}

// clearEvent zeroes the register image of an unlinked node
func (inst *Instance) clearEvent(idx uint16) error {
	words := make([]uint16, MixerControlMemEntryWords)
	if err := inst.bus.BurstWrite(mixerEventAddr(idx, MixerControlMemCtrlOfst), words); err != nil {
		return busError("mixer event clear", err)
	}
	ev := &inst.mixerEvents[idx]
	ev.Type = MixerEventNoOp
	ev.Control = 0
	ev.DestinationTsi = 0
	ev.NextEventPtr = InvalidIndex
	return nil
}

// clearAndRelease zeroes and frees a node that is no longer linked
func (inst *Instance) clearAndRelease(idx uint16) error {
	if err := inst.clearEvent(idx); err != nil {
		return err
	}
	return inst.releaseMixerEvent(idx)
}

// bridgeSegmentAnchor is the node a new bridge segment is appended after
func (inst *Instance) bridgeSegmentAnchor() uint16 {
	switch {
	case inst.mixer.LastBridgeEventPtr != InvalidIndex:
		return inst.mixer.LastBridgeEventPtr
	case inst.mixer.LastSoutCopyEventPtr != InvalidIndex:
		return inst.mixer.LastSoutCopyEventPtr
	}
	return MixerHeadNode
}

// sinCopyAnchor is the node that precedes the Sin copy segment
func (inst *Instance) sinCopyAnchor() uint16 {
	if inst.mixer.LastBridgeEventPtr != InvalidIndex {
		return inst.mixer.LastBridgeEventPtr
	}
	if inst.mixer.LastSoutCopyEventPtr != InvalidIndex {
		return inst.mixer.LastSoutCopyEventPtr
	}
	return MixerHeadNode
}

// mixerEventAdd links a COPY node at the end of its segment. The node is
// fully written before the anchor is pointed at it.
func (inst *Instance) mixerEventAdd(idx uint16, class copyEventClass, ev MixerEvent) error {
	var anchor uint16
	switch class {
	case eventClassSoutCopy:
		anchor = MixerHeadNode
		if inst.mixer.LastSoutCopyEventPtr != InvalidIndex {
			anchor = inst.mixer.LastSoutCopyEventPtr
		}
	case eventClassSinCopy:
		anchor = inst.sinCopyAnchor()
		if inst.mixer.LastSinCopyEventPtr != InvalidIndex {
			anchor = inst.mixer.LastSinCopyEventPtr
		}
	}

	ev.Reserved = true
	ev.Type = MixerEventCopy
	ev.BridgeIndex = InvalidIndex
	ev.NextEventPtr = inst.mixerEvents[anchor].NextEventPtr
	if err := inst.writeEvent(idx, ev); err != nil {
		return err
	}
	if err := inst.writeNext(anchor, idx); err != nil {
		return err
	}

	first, last := inst.segment(class)
	if *first == InvalidIndex {
		*first = idx
	}
	*last = idx

	if ev.DestinationChanIndex != InvalidIndex {
		inst.channels[ev.DestinationChanIndex].MixerEventCnt++
	}
	inst.logger.Debug("copy event linked", "event", idx, "class", class, "after", anchor)
	return nil
}

// mixerEventRemove unlinks a COPY node from its segment and clears it. The
// predecessor is found by scanning forward from the segment head.
func (inst *Instance) mixerEventRemove(idx uint16, class copyEventClass) error {
	first, last := inst.segment(class)
	if *first == InvalidIndex {
		return fatal(StatusFatalSegmentCorrupt, "%s segment empty removing %d", class, idx)
	}

	var prev uint16
	if idx == *first {
		prev = MixerHeadNode
		if class == eventClassSinCopy {
			prev = inst.sinCopyAnchor()
		}
	} else {
		var err error
		prev, err = inst.previousInSegment(*first, *last, idx)
		if err != nil {
			if StatusOf(err) == StatusConfMixerEventNotFound {
				return fatal(StatusFatalSegmentCorrupt, "event %d not in %s segment", idx, class)
			}
			return err
		}
	}

	next := inst.mixerEvents[idx].NextEventPtr
	if err := inst.writeNext(prev, next); err != nil {
		return err
	}

	switch {
	case idx == *first && idx == *last:
		*first, *last = InvalidIndex, InvalidIndex
	case idx == *first:
		*first = next
	case idx == *last:
		*last = prev
	}

	dst := inst.mixerEvents[idx].DestinationChanIndex
	if err := inst.clearEvent(idx); err != nil {
		return err
	}
	if dst != InvalidIndex && inst.channels[dst].MixerEventCnt > 0 {
		inst.channels[dst].MixerEventCnt--
	}
	inst.logger.Debug("copy event unlinked", "event", idx, "class", class, "after", prev)
	return nil
}

func (inst *Instance) segment(class copyEventClass) (first, last *uint16) {
	if class == eventClassSinCopy {
		return &inst.mixer.FirstSinCopyEventPtr, &inst.mixer.LastSinCopyEventPtr
	}
	return &inst.mixer.FirstSoutCopyEventPtr, &inst.mixer.LastSoutCopyEventPtr
}

// previousInSegment scans forward from first, never past last, for the node
// whose next pointer is target. It returns StatusConfMixerEventNotFound when
// target is first or is not inside the segment: the real predecessor then
// lies in another segment.
func (inst *Instance) previousInSegment(first, last, target uint16) (uint16, error) {
	if target == first {
		return 0, NewError(StatusConfMixerEventNotFound, "first node of segment")
	}
	cur := first
	for loops := 0; ; loops++ {
		if loops >= MaxLoop {
			return 0, fatal(StatusFatalMixerLoopOverflow, "scanning for predecessor of %d", target)
		}
		next := inst.mixerEvents[cur].NextEventPtr
		if cur == last || next == InvalidIndex || next == MixerHeadNode {
			return 0, NewError(StatusConfMixerEventNotFound, "segment scan")
		}
		if next == target {
			return cur, nil
		}
		cur = next
	}
}

// previousEvent walks the whole list from HEAD for the predecessor of
// target. The walk is capped at the mixer event table size; hitting the cap
// means the list has a cycle.
func (inst *Instance) previousEvent(target uint16) (uint16, error) {
	cur := MixerHeadNode
	for depth := 0; depth < len(inst.mixerEvents); depth++ {
		next := inst.mixerEvents[cur].NextEventPtr
		if next == target {
			return cur, nil
		}
		if cur == MixerTailNode || next == InvalidIndex {
			return 0, NewError(StatusConfMixerEventNotFound, "list scan")
		}
		cur = next
	}
	return 0, fatal(StatusFatalEventUnreachable, "event %d: list walk exceeded %d nodes", target, len(inst.mixerEvents))
}
