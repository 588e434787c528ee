package oct6100

// simpleMixer implements full-mesh bridges. Every member owns one load-side
// node (LOAD, ACCUMULATE or NO_OP) in the load sub-chain and one store node
// (SUB_STORE, or STORE while muted) in the sub-store sub-chain. The first
// active node of the load sub-chain is the bridge LOAD; when every member is
// muted one load-side node is turned into a LOAD of the silence TSI.
type simpleMixer struct {
	inst *Instance
}

func (s simpleMixer) checkAdd(bIdx, chanIdx uint16, p *ConfBridgeChanAddParams) error {
	return nil
}

func (s simpleMixer) add(bIdx, chanIdx uint16, p *ConfBridgeChanAddParams) error {
	inst := s.inst

	load, err := inst.reserveMixerEvent()
	if err != nil {
		return err
	}
	store, err := inst.reserveMixerEvent()
	if err != nil {
		inst.releaseMixerEvents([]uint16{load})
		return err
	}
	copyEv, extraTsi, err := inst.reserveSinCopy(p.InputPort)
	if err != nil {
		inst.releaseMixerEvents([]uint16{load, store})
		return err
	}

	c := &inst.channels[chanIdx]
	c.InputPort = p.InputPort

	b := &inst.bridges[bIdx]
	empty := b.FirstLoadEventPtr == InvalidIndex
	silence := b.SilenceLoadEventPtr

	var loadEv MixerEvent
	switch {
	case !p.Mute && empty:
		loadEv = inst.loadEvent(chanIdx, MixerEventLoad, false)
	case !p.Mute:
		// behind a silence LOAD until promoted
		loadEv = inst.loadEvent(chanIdx, MixerEventAccumulate, false)
	case empty:
		loadEv = inst.loadEvent(chanIdx, MixerEventLoad, true)
	default:
		loadEv = inst.loadEvent(chanIdx, MixerEventNoOp, false)
	}
	loadEv.BridgeIndex = bIdx
	storeType := MixerEventSubStore
	if p.Mute {
		storeType = MixerEventStore
	}
	storeEv := inst.storeEvent(chanIdx, storeType)
	storeEv.BridgeIndex = bIdx

	if err := s.link(bIdx, load, store, loadEv, storeEv); err != nil {
		c.leaveBridge()
		inst.discardEvents(load, store)
		inst.unreserveSinCopy(copyEv, extraTsi)
		return err
	}

	// the member is reachable from here on and stays on the bridge
	c.BridgeIndex = bIdx
	c.Mute = p.Mute
	c.LoadEventIndex = load
	c.SubStoreEventIndex = store
	b.NumClients++
	if empty {
		b.LoadIndex = load
		if p.Mute {
			b.SilenceLoadEventPtr = load
		}
	}

	if !p.Mute && silence != InvalidIndex {
		if err := s.promote(bIdx); err != nil {
			inst.unreserveSinCopy(copyEv, extraTsi)
			return err
		}
	}

	ports := c.outputPortMask()
	if p.InputPort == PortSout {
		ports |= MutePortsSinBit
	}
	if err := inst.settleMember(chanIdx, copyEv, extraTsi, ports); err != nil {
		return err
	}
	inst.logger.Debug("channel added to bridge", "bridge", bIdx, "channel", chanIdx,
		"load", load, "store", store, "type", inst.mixerEvents[load].Type, "clients", b.NumClients)
	return nil
}

// link writes a member's load-side and store nodes and makes them reachable
// with one pointer write. The first member opens the bridge segment; later
// loads join the tail of the load sub-chain with their store right behind,
// at the head of the sub-store sub-chain.
func (s simpleMixer) link(bIdx, load, store uint16, loadEv, storeEv MixerEvent) error {
	inst := s.inst
	b := &inst.bridges[bIdx]

	if b.FirstLoadEventPtr == InvalidIndex {
		if err := inst.appendToBridge(bIdx, []uint16{load, store}, []MixerEvent{loadEv, storeEv}); err != nil {
			return err
		}
		b.FirstSubStoreEventPtr = store
		return nil
	}

	lastLoad, err := inst.previousInSegment(b.FirstLoadEventPtr, b.LastSubStoreEventPtr, b.FirstSubStoreEventPtr)
	if err != nil {
		if StatusOf(err) == StatusConfMixerEventNotFound {
			return fatal(StatusFatalSegmentCorrupt, "bridge %d has no load sub-chain", bIdx)
		}
		return err
	}
	storeEv.NextEventPtr = b.FirstSubStoreEventPtr
	if err := inst.writeEvent(store, storeEv); err != nil {
		return err
	}
	loadEv.NextEventPtr = store
	if err := inst.writeEvent(load, loadEv); err != nil {
		return err
	}
	if err := inst.writeNext(lastLoad, load); err != nil {
		return err
	}
	b.FirstSubStoreEventPtr = store
	inst.logger.Debug("bridge events linked", "bridge", bIdx, "load", load, "store", store, "after", lastLoad)
	return nil
}

// promote hands the bridge LOAD from the silence LOAD to the first heard
// member behind it. Until both nodes are retyped the silence node stays the
// recorded LOAD, so removing or muting that member restores the bridge.
func (s simpleMixer) promote(bIdx uint16) error {
	inst := s.inst
	b := &inst.bridges[bIdx]
	silence := b.SilenceLoadEventPtr
	next, err := s.nextAccumulate(bIdx, silence)
	if err != nil || next == InvalidIndex {
		return err
	}
	if err := inst.retypeLoad(next, MixerEventLoad); err != nil {
		return err
	}
	if err := inst.writeType(silence, MixerEventNoOp, 0, 0); err != nil {
		return err
	}
	b.SilenceLoadEventPtr = InvalidIndex
	b.LoadIndex = next
	return nil
}

// member returns the nodes a channel owns on a simple bridge
func (s simpleMixer) member(bIdx, chanIdx uint16) (load, store uint16, err error) {
	inst := s.inst
	c := &inst.channels[chanIdx]
	load, store = c.LoadEventIndex, c.SubStoreEventIndex
	for _, idx := range []uint16{load, store} {
		if int(idx) >= len(inst.mixerEvents) || !inst.mixerEvents[idx].Reserved || inst.mixerEvents[idx].BridgeIndex != bIdx {
			return 0, 0, fatal(StatusFatalBridgeLoadMissing, "channel %d has no events on bridge %d", chanIdx, bIdx)
		}
	}
	return load, store, nil
}

func (s simpleMixer) remove(bIdx, chanIdx uint16) error {
	inst := s.inst
	b := &inst.bridges[bIdx]
	load, store, err := s.member(bIdx, chanIdx)
	if err != nil {
		return err
	}

	if load == b.FirstLoadEventPtr && store == b.FirstSubStoreEventPtr && store == b.LastSubStoreEventPtr {
		// last member: the whole segment goes
		if err := inst.unlinkBridgeRange(bIdx, load, store); err != nil {
			return err
		}
	} else {
		if load == b.LoadIndex {
			if err := s.replaceLoad(bIdx, load); err != nil {
				return err
			}
		}
		if err := inst.unlinkBridgeEvent(bIdx, load); err != nil {
			return err
		}
		if err := inst.unlinkBridgeEvent(bIdx, store); err != nil {
			return err
		}
	}

	return s.release(bIdx, chanIdx)
}

// release finishes a member whose nodes are already unlinked
func (s simpleMixer) release(bIdx, chanIdx uint16) error {
	inst := s.inst
	if err := inst.leaveBridgePorts(chanIdx); err != nil {
		return err
	}
	b := &inst.bridges[bIdx]
	b.NumClients--
	inst.channels[chanIdx].leaveBridge()
	inst.logger.Debug("channel removed from bridge", "bridge", bIdx, "channel", chanIdx, "clients", b.NumClients)
	return nil
}

// replaceLoad moves the bridge LOAD off a node that is about to leave the
// load sub-chain: the next ACCUMULATE is promoted, or, when every remaining
// member is muted, another member's node becomes the silence LOAD.
func (s simpleMixer) replaceLoad(bIdx, load uint16) error {
	inst := s.inst
	b := &inst.bridges[bIdx]

	next, err := s.nextAccumulate(bIdx, load)
	if err != nil {
		return err
	}
	if next != InvalidIndex {
		if err := inst.retypeLoad(next, MixerEventLoad); err != nil {
			return err
		}
		b.LoadIndex = next
		if b.SilenceLoadEventPtr == load {
			b.SilenceLoadEventPtr = InvalidIndex
		}
		return nil
	}

	other := b.FirstLoadEventPtr
	if other == load {
		other = inst.mixerEvents[load].NextEventPtr
	}
	if other == b.FirstSubStoreEventPtr || other == InvalidIndex {
		return fatal(StatusFatalBridgeLoadMissing, "bridge %d has no other member", bIdx)
	}
	if err := inst.retypeSilenceLoad(other); err != nil {
		return err
	}
	b.LoadIndex = other
	b.SilenceLoadEventPtr = other
	return nil
}

// nextAccumulate scans the load sub-chain after from for the first
// ACCUMULATE node
func (s simpleMixer) nextAccumulate(bIdx, from uint16) (uint16, error) {
	inst := s.inst
	end := inst.bridges[bIdx].FirstSubStoreEventPtr
	cur := inst.mixerEvents[from].NextEventPtr
	for loops := 0; cur != end; loops++ {
		if loops >= MaxLoop || cur == InvalidIndex {
			return 0, fatal(StatusFatalMixerLoopOverflow, "scanning bridge %d load sub-chain", bIdx)
		}
		if inst.mixerEvents[cur].Type == MixerEventAccumulate {
			return cur, nil
		}
		cur = inst.mixerEvents[cur].NextEventPtr
	}
	return InvalidIndex, nil
}

func (s simpleMixer) removeAll(bIdx uint16) error {
	inst := s.inst
	b := &inst.bridges[bIdx]
	if b.FirstLoadEventPtr != InvalidIndex {
		if err := inst.unlinkBridgeRange(bIdx, b.FirstLoadEventPtr, b.LastSubStoreEventPtr); err != nil {
			return err
		}
	}
	for i := range inst.channels {
		c := &inst.channels[i]
		if !c.Reserved || c.BridgeIndex != bIdx {
			continue
		}
		if err := s.release(bIdx, uint16(i)); err != nil {
			return err
		}
	}
	if b.NumClients != 0 {
		return fatal(StatusFatalSegmentCorrupt, "bridge %d still counts %d clients", bIdx, b.NumClients)
	}
	return nil
}

func (s simpleMixer) mute(bIdx, chanIdx uint16) error {
	inst := s.inst
	b := &inst.bridges[bIdx]
	c := &inst.channels[chanIdx]
	load, store, err := s.member(bIdx, chanIdx)
	if err != nil {
		return err
	}

	if load == b.LoadIndex {
		next, err := s.nextAccumulate(bIdx, load)
		if err != nil {
			return err
		}
		if next != InvalidIndex {
			if err := inst.retypeLoad(next, MixerEventLoad); err != nil {
				return err
			}
			b.LoadIndex = next
			if err := inst.writeType(load, MixerEventNoOp, 0, 0); err != nil {
				return err
			}
		} else {
			// nobody else is heard: keep the node as the silence LOAD
			if err := inst.retypeSilenceLoad(load); err != nil {
				return err
			}
			b.SilenceLoadEventPtr = load
		}
	} else {
		if err := inst.writeType(load, MixerEventNoOp, 0, 0); err != nil {
			return err
		}
	}

	if err := inst.retypeStore(store, MixerEventStore); err != nil {
		return err
	}
	c.Mute = true
	inst.logger.Debug("channel muted", "bridge", bIdx, "channel", chanIdx)
	return nil
}

func (s simpleMixer) unmute(bIdx, chanIdx uint16) error {
	inst := s.inst
	b := &inst.bridges[bIdx]
	c := &inst.channels[chanIdx]
	load, store, err := s.member(bIdx, chanIdx)
	if err != nil {
		return err
	}

	switch {
	case b.SilenceLoadEventPtr == load:
		if err := inst.retypeLoad(load, MixerEventLoad); err != nil {
			return err
		}
		b.SilenceLoadEventPtr = InvalidIndex
	case b.SilenceLoadEventPtr != InvalidIndex:
		silence := b.SilenceLoadEventPtr
		if err := inst.retypeLoad(load, MixerEventLoad); err != nil {
			return err
		}
		if err := inst.writeType(silence, MixerEventNoOp, 0, 0); err != nil {
			return err
		}
		b.SilenceLoadEventPtr = InvalidIndex
		b.LoadIndex = load
	default:
		first, err := s.precedes(bIdx, load, b.LoadIndex)
		if err != nil {
			return err
		}
		if first {
			old := b.LoadIndex
			if err := inst.retypeLoad(load, MixerEventLoad); err != nil {
				return err
			}
			if err := inst.retypeLoad(old, MixerEventAccumulate); err != nil {
				return err
			}
			b.LoadIndex = load
		} else if err := inst.retypeLoad(load, MixerEventAccumulate); err != nil {
			return err
		}
	}

	if err := inst.retypeStore(store, MixerEventSubStore); err != nil {
		return err
	}
	c.Mute = false
	inst.logger.Debug("channel unmuted", "bridge", bIdx, "channel", chanIdx)
	return nil
}

// precedes reports whether a comes before b in the load sub-chain
func (s simpleMixer) precedes(bIdx, a, b uint16) (bool, error) {
	inst := s.inst
	end := inst.bridges[bIdx].FirstSubStoreEventPtr
	cur := inst.bridges[bIdx].FirstLoadEventPtr
	for loops := 0; cur != end; loops++ {
		if loops >= MaxLoop || cur == InvalidIndex {
			return false, fatal(StatusFatalMixerLoopOverflow, "scanning bridge %d load sub-chain", bIdx)
		}
		switch cur {
		case a:
			return true, nil
		case b:
			return false, nil
		}
		cur = inst.mixerEvents[cur].NextEventPtr
	}
	return false, fatal(StatusFatalBridgeLoadMissing, "bridge %d load %d not in load sub-chain", bIdx, b)
}
