package oct6100

// A tap channel listens to one member of a simple bridge. It is counted as a
// client of that bridge but owns no events there: its audio comes from a
// private internal bridge whose only LOAD reads the tapped channel's input
// TSI and whose STORE writes the tap channel's output TSI.

func (inst *Instance) checkTapAdd(bIdx, chanIdx uint16, p *ConfBridgeChanAddParams) (uint16, error) {
	if inst.bridges[bIdx].FlexibleConferencing {
		return 0, NewError(StatusConfBridgeFlexibleConferencing, "tap on flexible bridge")
	}
	tapped, err := inst.channelFromHandle(p.TappedChannelHandle, StatusConfBridgeTapInvalidHandle)
	if err != nil {
		return 0, err
	}
	t := &inst.channels[tapped]
	switch {
	case tapped == chanIdx:
		return 0, NewError(StatusConfBridgeTapSelf, "")
	case t.BridgeIndex != bIdx:
		return 0, NewError(StatusConfBridgeTapNotOnSameBridge, "")
	case t.Tap:
		return 0, NewError(StatusConfBridgeTapOfTap, "")
	case t.BeingTapped:
		return 0, NewError(StatusConfBridgeTapDependency, "channel already tapped")
	}
	return tapped, nil
}

func (inst *Instance) tapAdd(bIdx, chanIdx, tapped uint16, p *ConfBridgeChanAddParams) error {
	priv, err := inst.confBridgeOpenIndex(false, true)
	if err != nil {
		return err
	}
	load, err := inst.reserveMixerEvent()
	if err != nil {
		_ = inst.confBridgeCloseIndex(priv)
		return err
	}
	store, err := inst.reserveMixerEvent()
	if err != nil {
		inst.releaseMixerEvents([]uint16{load})
		_ = inst.confBridgeCloseIndex(priv)
		return err
	}

	c := &inst.channels[chanIdx]
	c.InputPort = p.InputPort

	loadEv := inst.loadEvent(tapped, MixerEventLoad, false)
	storeEv := inst.storeEvent(chanIdx, MixerEventStore)
	if err := inst.appendToBridge(priv, []uint16{load, store}, []MixerEvent{loadEv, storeEv}); err != nil {
		c.leaveBridge()
		inst.discardEvents(load, store)
		_ = inst.confBridgeCloseIndex(priv)
		return err
	}
	pb := &inst.bridges[priv]
	pb.FirstSubStoreEventPtr = store
	pb.LoadIndex = load
	pb.NumClients = 1

	c.BridgeIndex = bIdx
	c.Tap = true
	c.Mute = true
	c.TapBridgeIndex = priv
	c.TapChanIndex = tapped
	c.LoadEventIndex = load
	c.SubStoreEventIndex = store
	inst.channels[tapped].BeingTapped = true

	b := &inst.bridges[bIdx]
	b.NumClients++
	b.NumTappedClients++

	// Disconnect the tap channel's own TSST into its output TSI so the
	// private bridge STORE is the only writer. The tapped channel keeps its
	// Rin input: it is still a live member of the bridge.
	if err := inst.routeTsst(c.outputTsst(), InvalidIndex); err != nil {
		return err
	}
	if err := inst.removeSilenceEvents(chanIdx); err != nil {
		return err
	}
	if err := inst.unmutePorts(chanIdx, c.outputPortMask()); err != nil {
		return err
	}
	inst.logger.Debug("tap added", "bridge", bIdx, "tap", chanIdx, "tapped", tapped, "private_bridge", priv)
	return nil
}

func (inst *Instance) tapRemove(chanIdx uint16) error {
	c := &inst.channels[chanIdx]
	bIdx, priv, tapped := c.BridgeIndex, c.TapBridgeIndex, c.TapChanIndex
	if int(priv) >= len(inst.bridges) || !inst.bridges[priv].Internal || int(tapped) >= len(inst.channels) {
		return fatal(StatusFatalSegmentCorrupt, "tap channel %d has no private bridge", chanIdx)
	}
	pb := &inst.bridges[priv]

	if pb.FirstLoadEventPtr != InvalidIndex {
		if err := inst.unlinkBridgeRange(priv, pb.FirstLoadEventPtr, pb.LastSubStoreEventPtr); err != nil {
			return err
		}
	}
	pb.NumClients = 0
	if err := inst.confBridgeCloseIndex(priv); err != nil {
		return err
	}

	out, _ := c.outputTsi()
	if err := inst.routeTsst(c.outputTsst(), out); err != nil {
		return err
	}
	if err := inst.mutePorts(chanIdx, c.outputPortMask()); err != nil {
		return err
	}

	inst.channels[tapped].BeingTapped = false
	b := &inst.bridges[bIdx]
	b.NumClients--
	b.NumTappedClients--
	c.leaveBridge()
	inst.logger.Debug("tap removed", "bridge", bIdx, "tap", chanIdx, "tapped", tapped)
	return nil
}
