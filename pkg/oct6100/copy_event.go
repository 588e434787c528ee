package oct6100

import (
	"context"
)

// CopyEvent is a standalone point-to-point copy between two channel ports.
// It occupies one node of the Sin copy segment.
type CopyEvent struct {
	Reserved     bool
	EntryOpenCnt uint8

	SourcePort           Port
	DestinationPort      Port
	SourceChanIndex      uint16
	DestinationChanIndex uint16
	MixerEventIndex      uint16
}

func (ce *CopyEvent) reset() {
	openCnt := ce.EntryOpenCnt
	*ce = CopyEvent{
		EntryOpenCnt:         openCnt,
		SourceChanIndex:      InvalidIndex,
		DestinationChanIndex: InvalidIndex,
		MixerEventIndex:      InvalidIndex,
	}
}

// CopyEventCreateParams describes a copy event
type CopyEventCreateParams struct {
	SourceChannelHandle      uint32
	SourcePort               Port
	DestinationChannelHandle uint32
	DestinationPort          Port
}

// NewCopyEventCreateParams returns a request with no channels selected
func NewCopyEventCreateParams() *CopyEventCreateParams {
	return &CopyEventCreateParams{
		SourceChannelHandle:      InvalidHandle,
		SourcePort:               PortNone,
		DestinationChannelHandle: InvalidHandle,
		DestinationPort:          PortNone,
	}
}

// CopyEventCreate copies every sample of a source port into a destination
// port
func (inst *Instance) CopyEventCreate(ctx context.Context, p *CopyEventCreateParams) (uint32, error) {
	var handle uint32
	err := inst.serialize(ctx, "copy event create", func() error {
		var err error
		handle, err = inst.copyEventCreateSer(p)
		return err
	})
	return handle, err
}

func (inst *Instance) checkCopyEventCreate(p *CopyEventCreateParams) (uint16, uint16, error) {
	if p == nil {
		return 0, 0, NewError(StatusInvalidParams, "copy event create")
	}
	src, err := inst.channelFromHandle(p.SourceChannelHandle, StatusCopyEventSourceChannel)
	if err != nil {
		return 0, 0, err
	}
	dst, err := inst.channelFromHandle(p.DestinationChannelHandle, StatusCopyEventDestinationChannel)
	if err != nil {
		return 0, 0, err
	}
	if inst.channels[src].BridgeIndex != InvalidIndex {
		return 0, 0, NewError(StatusCopyEventSourceChannel, "channel is on a conference bridge")
	}
	if inst.channels[dst].BridgeIndex != InvalidIndex {
		return 0, 0, NewError(StatusCopyEventDestinationChannel, "channel is on a conference bridge")
	}
	if p.SourcePort != PortRin && p.SourcePort != PortSin {
		return 0, 0, NewError(StatusCopyEventSourcePort, p.SourcePort.String())
	}
	if p.DestinationPort != PortRin && p.DestinationPort != PortSin {
		return 0, 0, NewError(StatusCopyEventDestinationPort, p.DestinationPort.String())
	}
	if src == dst && p.SourcePort == p.DestinationPort {
		return 0, 0, NewError(StatusCopyEventSamePort, "")
	}
	if inst.channels[src].CodecPort == p.SourcePort || inst.channels[dst].CodecPort == p.DestinationPort {
		return 0, 0, NewError(StatusCopyEventCodecActive, "")
	}
	return src, dst, nil
}

func (inst *Instance) copyEventCreateSer(p *CopyEventCreateParams) (uint32, error) {
	src, dst, err := inst.checkCopyEventCreate(p)
	if err != nil {
		return InvalidHandle, err
	}

	idx, err := reserve(inst.copyEventPool, StatusMixerAllCopyEventEntryOpened)
	if err != nil {
		return InvalidHandle, err
	}
	evIdx, err := inst.reserveMixerEvent()
	if err != nil {
		_ = release(inst.copyEventPool, idx)
		return InvalidHandle, err
	}

	s, d := &inst.channels[src], &inst.channels[dst]
	srcTsi, law := s.RinRoutTsiMemIndex, s.RinLaw
	if p.SourcePort == PortSin {
		srcTsi, law = s.SinSoutTsiMemIndex, s.SinLaw
	}
	dstTsi, dstPort := d.RinRoutTsiMemIndex, MutePortsRinBit
	if p.DestinationPort == PortSin {
		dstTsi, dstPort = d.SinSoutTsiMemIndex, MutePortsSinBit
	}

	node := newMixerEvent(MixerEventCopy, law, srcTsi, dstTsi)
	node.SourceChanIndex = src
	node.DestinationChanIndex = dst
	if err := inst.mixerEventAdd(evIdx, eventClassSinCopy, node); err != nil {
		return InvalidHandle, err
	}

	ce := &inst.copyEvents[idx]
	ce.reset()
	ce.Reserved = true
	ce.SourcePort = p.SourcePort
	ce.DestinationPort = p.DestinationPort
	ce.SourceChanIndex = src
	ce.DestinationChanIndex = dst
	ce.MixerEventIndex = evIdx
	s.CopyEventCnt++
	d.CopyEventCnt++

	if err := inst.unmutePorts(dst, dstPort); err != nil {
		return InvalidHandle, err
	}
	inst.logger.Debug("copy event created", "copy", idx, "event", evIdx,
		"src", src, "src_port", p.SourcePort, "dst", dst, "dst_port", p.DestinationPort)
	return makeHandle(HandleTagCopyEvent, ce.EntryOpenCnt, idx), nil
}

// CopyEventDestroy removes a copy event
func (inst *Instance) CopyEventDestroy(ctx context.Context, handle uint32) error {
	return inst.serialize(ctx, "copy event destroy", func() error {
		idx, openCnt, err := decodeHandle(handle, HandleTagCopyEvent, len(inst.copyEvents), StatusCopyEventInvalidHandle)
		if err != nil {
			return err
		}
		ce := &inst.copyEvents[idx]
		if !ce.Reserved {
			return NewError(StatusCopyEventNotOpen, "")
		}
		if ce.EntryOpenCnt != openCnt {
			return NewError(StatusCopyEventInvalidHandle, "stale copy event handle")
		}
		return inst.copyEventDestroyIndex(idx)
	})
}

func (inst *Instance) copyEventDestroyIndex(idx uint16) error {
	ce := &inst.copyEvents[idx]
	evIdx := ce.MixerEventIndex
	if !inst.mixerEventPool.IsReserved(evIdx) {
		return fatal(StatusFatalAllocatorRelease, "copy event %d owns free mixer event %d", idx, evIdx)
	}
	if err := inst.mixerEventRemove(evIdx, eventClassSinCopy); err != nil {
		return err
	}
	if err := inst.releaseMixerEvent(evIdx); err != nil {
		return err
	}
	if err := release(inst.copyEventPool, idx); err != nil {
		return err
	}

	src, dst, port := ce.SourceChanIndex, ce.DestinationChanIndex, ce.DestinationPort
	inst.channels[src].CopyEventCnt--
	inst.channels[dst].CopyEventCnt--
	ce.EntryOpenCnt = nextOpenCnt(ce.EntryOpenCnt)
	ce.reset()

	if !inst.portCopied(dst, port) {
		mask := MutePortsRinBit
		if port == PortSin {
			mask = MutePortsSinBit
		}
		if err := inst.mutePorts(dst, mask); err != nil {
			return err
		}
	}
	inst.logger.Debug("copy event destroyed", "copy", idx, "event", evIdx)
	return nil
}

// portCopied reports whether another copy event still writes the port
func (inst *Instance) portCopied(chanIdx uint16, port Port) bool {
	for i := range inst.copyEvents {
		ce := &inst.copyEvents[i]
		if ce.Reserved && ce.DestinationChanIndex == chanIdx && ce.DestinationPort == port {
			return true
		}
	}
	return false
}
