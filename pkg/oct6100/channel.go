package oct6100

import (
	"context"
)

// Channel is the echo channel record the mixer logic reads. Only the fields
// the conferencing core needs are modeled.
type Channel struct {
	Reserved     bool
	EntryOpenCnt uint8

	RinLaw  PcmLaw
	RoutLaw PcmLaw
	SinLaw  PcmLaw
	SoutLaw PcmLaw

	// TSST feeding each input port, InvalidIndex when the port has no TDM input
	RinTsstIndex uint16
	SinTsstIndex uint16

	RinRoutTsiMemIndex  uint16
	SinSoutTsiMemIndex  uint16
	ExtraSinTsiMemIndex uint16

	Bidirectional            bool
	CodecPort                Port
	ExtendedToneDetection    bool
	EnableNlp                bool
	EnableConfNoiseReduction bool

	// Conferencing state
	BridgeIndex              uint16
	InputPort                Port
	LoadEventIndex           uint16
	SubStoreEventIndex       uint16
	SinCopyEventIndex        uint16
	FlexConfParticipantIndex uint16
	Mute                     bool

	Tap            bool
	TapBridgeIndex uint16
	TapChanIndex   uint16
	BeingTapped    bool

	CopyEventCnt  uint16
	MixerEventCnt uint16

	RinSilenceEventIndex uint16
	SinSilenceEventIndex uint16

	// shadow of the mute-ports word in channel main memory
	MutePortsMask uint16
}

func (c *Channel) reset() {
	openCnt := c.EntryOpenCnt
	*c = Channel{
		EntryOpenCnt:         openCnt,
		RinTsstIndex:         InvalidIndex,
		SinTsstIndex:         InvalidIndex,
		RinRoutTsiMemIndex:   InvalidIndex,
		SinSoutTsiMemIndex:   InvalidIndex,
		ExtraSinTsiMemIndex:  InvalidIndex,
		RinSilenceEventIndex: InvalidIndex,
		SinSilenceEventIndex: InvalidIndex,
	}
	c.leaveBridge()
}

func (c *Channel) leaveBridge() {
	c.BridgeIndex = InvalidIndex
	c.InputPort = PortNone
	c.LoadEventIndex = InvalidIndex
	c.SubStoreEventIndex = InvalidIndex
	c.SinCopyEventIndex = InvalidIndex
	c.FlexConfParticipantIndex = InvalidIndex
	c.Mute = false
	c.Tap = false
	c.TapBridgeIndex = InvalidIndex
	c.TapChanIndex = InvalidIndex
}

// inputTsi is the TSI and law a channel contributes to a bridge through its
// conference input port
func (c *Channel) inputTsi() (uint16, PcmLaw) {
	if c.InputPort == PortRin {
		return c.RinRoutTsiMemIndex, c.RoutLaw
	}
	return c.SinSoutTsiMemIndex, c.SoutLaw
}

// outputTsi is the TSI the bridge mix is stored into for this channel
func (c *Channel) outputTsi() (uint16, PcmLaw) {
	if c.InputPort == PortRin {
		return c.SinSoutTsiMemIndex, c.SinLaw
	}
	return c.RinRoutTsiMemIndex, c.RinLaw
}

// outputTsst is the TSST that normally feeds the bridge output TSI
func (c *Channel) outputTsst() uint16 {
	if c.InputPort == PortRin {
		return c.SinTsstIndex
	}
	return c.RinTsstIndex
}

// outputPortMask is the mute-ports bit of the port the bridge drives
func (c *Channel) outputPortMask() uint16 {
	if c.InputPort == PortRin {
		return MutePortsSinBit
	}
	return MutePortsRinBit
}

// ChannelOpenParams describes a channel to open
type ChannelOpenParams struct {
	RinLaw  PcmLaw
	RoutLaw PcmLaw
	SinLaw  PcmLaw
	SoutLaw PcmLaw

	// RinTsst and SinTsst are InvalidValue for ports without TDM input
	RinTsst uint32
	SinTsst uint32

	Bidirectional            bool
	CodecPort                Port
	ExtendedToneDetection    bool
	EnableNlp                bool
	EnableConfNoiseReduction bool
}

// NewChannelOpenParams returns a u-law channel without TDM inputs
func NewChannelOpenParams() *ChannelOpenParams {
	return &ChannelOpenParams{
		RinTsst:   InvalidValue,
		SinTsst:   InvalidValue,
		CodecPort: PortNone,
	}
}

func checkLaw(l PcmLaw) error {
	if l != PcmULaw && l != PcmALaw {
		return NewError(StatusChannelInvalidLaw, l.String())
	}
	return nil
}

func checkTsst(tsst uint32) error {
	if tsst != InvalidValue && tsst >= MaxTsstEntries {
		return NewError(StatusInvalidParams, "TSST out of range")
	}
	return nil
}

func tsstIndex(tsst uint32) uint16 {
	if tsst == InvalidValue {
		return InvalidIndex
	}
	return uint16(tsst)
}

func (p *ChannelOpenParams) check() error {
	for _, l := range []PcmLaw{p.RinLaw, p.RoutLaw, p.SinLaw, p.SoutLaw} {
		if err := checkLaw(l); err != nil {
			return err
		}
	}
	if err := checkTsst(p.RinTsst); err != nil {
		return err
	}
	if err := checkTsst(p.SinTsst); err != nil {
		return err
	}
	switch p.CodecPort {
	case PortNone, PortRin, PortSin:
	default:
		return NewError(StatusChannelInvalidPort, "codec port")
	}
	return nil
}

// ChannelOpen reserves a channel with its Rin/Rout and Sin/Sout TSI entries
// and routes its input TSSTs
func (inst *Instance) ChannelOpen(ctx context.Context, p *ChannelOpenParams) (uint32, error) {
	var handle uint32
	err := inst.serialize(ctx, "channel open", func() error {
		var err error
		handle, err = inst.channelOpenSer(p)
		return err
	})
	return handle, err
}

func (inst *Instance) channelOpenSer(p *ChannelOpenParams) (uint32, error) {
	if p == nil {
		return InvalidHandle, NewError(StatusInvalidParams, "channel open")
	}
	if err := p.check(); err != nil {
		return InvalidHandle, err
	}

	idx, err := reserve(inst.channelPool, StatusChannelAllOpen)
	if err != nil {
		return InvalidHandle, err
	}
	rinTsi, err := reserve(inst.tsiPool, StatusTsiMemAllOpen)
	if err != nil {
		_ = release(inst.channelPool, idx)
		return InvalidHandle, err
	}
	sinTsi, err := reserve(inst.tsiPool, StatusTsiMemAllOpen)
	if err != nil {
		_ = release(inst.tsiPool, rinTsi)
		_ = release(inst.channelPool, idx)
		return InvalidHandle, err
	}

	c := &inst.channels[idx]
	c.reset()
	c.Reserved = true
	c.RinLaw, c.RoutLaw, c.SinLaw, c.SoutLaw = p.RinLaw, p.RoutLaw, p.SinLaw, p.SoutLaw
	c.RinTsstIndex = tsstIndex(p.RinTsst)
	c.SinTsstIndex = tsstIndex(p.SinTsst)
	c.RinRoutTsiMemIndex = rinTsi
	c.SinSoutTsiMemIndex = sinTsi
	c.Bidirectional = p.Bidirectional
	c.CodecPort = p.CodecPort
	c.ExtendedToneDetection = p.ExtendedToneDetection
	c.EnableNlp = p.EnableNlp
	c.EnableConfNoiseReduction = p.EnableConfNoiseReduction

	if err := inst.programChannel(idx); err != nil {
		inst.abandonChannel(idx)
		return InvalidHandle, err
	}

	inst.logger.Debug("channel opened", "channel", idx, "rin_tsi", rinTsi, "sin_tsi", sinTsi)
	return makeHandle(HandleTagChannel, c.EntryOpenCnt, idx), nil
}

// programChannel routes the input TSSTs of a freshly reserved channel and
// writes its initial channel main memory words
func (inst *Instance) programChannel(idx uint16) error {
	c := &inst.channels[idx]
	if err := inst.routeTsst(c.RinTsstIndex, c.RinRoutTsiMemIndex); err != nil {
		return err
	}
	if err := inst.routeTsst(c.SinTsstIndex, c.SinSoutTsiMemIndex); err != nil {
		return err
	}

	// ports with no TDM input stay silent until something drives them
	var mute uint16
	if c.RinTsstIndex == InvalidIndex {
		mute |= MutePortsRinBit
	}
	if c.SinTsstIndex == InvalidIndex {
		mute |= MutePortsSinBit
	}
	if err := inst.writeMutePorts(idx, mute); err != nil {
		return err
	}
	return inst.writeDominantSpeaker(idx, DominantSpeakerUnassigned)
}

// abandonChannel gives back the slot and TSIs of a channel whose open
// failed on the bus. Routed TSSTs are disconnected when the bus allows it.
func (inst *Instance) abandonChannel(idx uint16) {
	c := &inst.channels[idx]
	for _, tsst := range []uint16{c.RinTsstIndex, c.SinTsstIndex} {
		if err := inst.routeTsst(tsst, InvalidIndex); err != nil {
			inst.logger.Warn("TSST left routed to a released TSI", "channel", idx, "tsst", tsst, "err", err)
		}
	}
	for _, tsi := range []uint16{c.RinRoutTsiMemIndex, c.SinSoutTsiMemIndex} {
		if err := release(inst.tsiPool, tsi); err != nil {
			inst.logger.Error("unwinding TSI reservation", "channel", idx, "tsi", tsi, "err", err)
		}
	}
	if err := release(inst.channelPool, idx); err != nil {
		inst.logger.Error("unwinding channel reservation", "channel", idx, "err", err)
	}
	c.reset()
}

// ChannelClose releases a channel. Any port silence event is torn down first.
func (inst *Instance) ChannelClose(ctx context.Context, handle uint32) error {
	return inst.serialize(ctx, "channel close", func() error {
		idx, err := inst.channelFromHandle(handle, StatusChannelInvalidHandle)
		if err != nil {
			return err
		}
		c := &inst.channels[idx]
		if c.BridgeIndex != InvalidIndex || c.CopyEventCnt > 0 {
			return NewError(StatusChannelActiveDependencies, "channel close")
		}
		return inst.channelCloseIndex(idx)
	})
}

func (inst *Instance) channelCloseIndex(idx uint16) error {
	if err := inst.removeSilenceEvents(idx); err != nil {
		return err
	}
	c := &inst.channels[idx]
	if err := inst.routeTsst(c.RinTsstIndex, InvalidIndex); err != nil {
		return err
	}
	if err := inst.routeTsst(c.SinTsstIndex, InvalidIndex); err != nil {
		return err
	}
	if err := release(inst.tsiPool, c.RinRoutTsiMemIndex); err != nil {
		return err
	}
	if err := release(inst.tsiPool, c.SinSoutTsiMemIndex); err != nil {
		return err
	}
	if err := release(inst.channelPool, idx); err != nil {
		return err
	}
	c.EntryOpenCnt = nextOpenCnt(c.EntryOpenCnt)
	c.reset()
	inst.logger.Debug("channel closed", "channel", idx)
	return nil
}

// channelFromHandle validates a channel handle: tag, index range and then the
// entry open count
func (inst *Instance) channelFromHandle(handle uint32, bad Status) (uint16, error) {
	idx, openCnt, err := decodeHandle(handle, HandleTagChannel, len(inst.channels), bad)
	if err != nil {
		return 0, err
	}
	c := &inst.channels[idx]
	if !c.Reserved {
		return 0, NewError(bad, "channel not open")
	}
	if c.EntryOpenCnt != openCnt {
		return 0, NewError(bad, "stale channel handle")
	}
	return idx, nil
}

// channelHandle returns the current handle of an open channel index
func (inst *Instance) channelHandle(idx uint16) uint32 {
	return makeHandle(HandleTagChannel, inst.channels[idx].EntryOpenCnt, idx)
}

// ChannelMutePortsParams selects which ports of a channel are replaced by
// silence
type ChannelMutePortsParams struct {
	ChannelHandle uint32
	MuteRin       bool
	MuteSin       bool
}

// NewChannelMutePortsParams returns a request that unmutes both ports
func NewChannelMutePortsParams() *ChannelMutePortsParams {
	return &ChannelMutePortsParams{ChannelHandle: InvalidHandle}
}

// ChannelMutePorts creates or destroys the silence events of a channel. A
// silence event is a Sout copy event from the silence TSI into the port TSI.
func (inst *Instance) ChannelMutePorts(ctx context.Context, p *ChannelMutePortsParams) error {
	return inst.serialize(ctx, "channel mute ports", func() error {
		if p == nil {
			return NewError(StatusInvalidParams, "channel mute ports")
		}
		idx, err := inst.channelFromHandle(p.ChannelHandle, StatusChannelInvalidHandle)
		if err != nil {
			return err
		}
		c := &inst.channels[idx]
		if c.BridgeIndex != InvalidIndex {
			return NewError(StatusChannelActiveDependencies, "channel is on a conference bridge")
		}

		need := 0
		if p.MuteRin && c.RinSilenceEventIndex == InvalidIndex {
			need++
		}
		if p.MuteSin && c.SinSilenceEventIndex == InvalidIndex {
			need++
		}
		if need > inst.mixerEventPool.Free() {
			return NewError(StatusMixerAllMixerEventEntryOpened, "silence events")
		}

		if err := inst.setSilence(idx, PortRin, p.MuteRin); err != nil {
			return err
		}
		return inst.setSilence(idx, PortSin, p.MuteSin)
	})
}

func (inst *Instance) setSilence(chanIdx uint16, port Port, on bool) error {
	c := &inst.channels[chanIdx]
	slot := &c.RinSilenceEventIndex
	tsi, law := c.RinRoutTsiMemIndex, c.RinLaw
	if port == PortSin {
		slot = &c.SinSilenceEventIndex
		tsi, law = c.SinSoutTsiMemIndex, c.SinLaw
	}

	switch {
	case on && *slot == InvalidIndex:
		ev, err := inst.reserveMixerEvent()
		if err != nil {
			return err
		}
		node := newMixerEvent(MixerEventCopy, law, SilenceTsi, tsi)
		node.SourceChanIndex = chanIdx
		node.DestinationChanIndex = chanIdx
		if err := inst.mixerEventAdd(ev, eventClassSoutCopy, node); err != nil {
			return err
		}
		*slot = ev
		inst.logger.Debug("silence event added", "channel", chanIdx, "port", port, "event", ev)
	case !on && *slot != InvalidIndex:
		ev := *slot
		if err := inst.mixerEventRemove(ev, eventClassSoutCopy); err != nil {
			return err
		}
		if err := inst.releaseMixerEvent(ev); err != nil {
			return err
		}
		*slot = InvalidIndex
		inst.logger.Debug("silence event removed", "channel", chanIdx, "port", port, "event", ev)
	}
	return nil
}

func (inst *Instance) removeSilenceEvents(chanIdx uint16) error {
	if err := inst.setSilence(chanIdx, PortRin, false); err != nil {
		return err
	}
	return inst.setSilence(chanIdx, PortSin, false)
}

// routeTsst points an input TSST at a TSI entry. An invalid TSI disconnects it.
func (inst *Instance) routeTsst(tsst, tsi uint16) error {
	if tsst == InvalidIndex {
		return nil
	}
	var word uint16
	if tsi != InvalidIndex {
		word = TsstControlMemInputTsst | tsi&MixerControlMemTsiMask
	}
	return inst.write(TsstControlMemBase+uint32(tsst)*TsstControlMemEntrySize, word)
}

func channelMainAddr(chanIdx uint16, ofst uint32) uint32 {
	return ChannelMainMemBase + uint32(chanIdx)*ChannelMainMemEntrySize + ofst
}

func (inst *Instance) writeMutePorts(chanIdx uint16, mask uint16) error {
	if err := inst.write(channelMainAddr(chanIdx, MutePortsOfst), mask); err != nil {
		return err
	}
	inst.channels[chanIdx].MutePortsMask = mask
	return nil
}

// mutePorts mutes the ports in mask that no TDM input drives
func (inst *Instance) mutePorts(chanIdx uint16, mask uint16) error {
	c := &inst.channels[chanIdx]
	if c.RinTsstIndex != InvalidIndex {
		mask &^= MutePortsRinBit
	}
	if c.SinTsstIndex != InvalidIndex {
		mask &^= MutePortsSinBit
	}
	if mask == 0 || c.MutePortsMask&mask == mask {
		return nil
	}
	word, err := inst.read(channelMainAddr(chanIdx, MutePortsOfst))
	if err != nil {
		return err
	}
	return inst.writeMutePorts(chanIdx, (word&MutePortsAllBits)|mask)
}

func (inst *Instance) unmutePorts(chanIdx uint16, mask uint16) error {
	c := &inst.channels[chanIdx]
	if c.MutePortsMask&mask == 0 {
		return nil
	}
	word, err := inst.read(channelMainAddr(chanIdx, MutePortsOfst))
	if err != nil {
		return err
	}
	return inst.writeMutePorts(chanIdx, word&MutePortsAllBits&^mask)
}
