package oct6100

import (
	"context"
)

// ConfBridgeDominantSpeakerSetParams selects the dominant speaker of a bridge
type ConfBridgeDominantSpeakerSetParams struct {
	ConfBridgeHandle uint32
	// ChannelHandle is InvalidHandle to clear the dominant speaker
	ChannelHandle uint32
}

// NewConfBridgeDominantSpeakerSetParams returns a request that clears the
// dominant speaker
func NewConfBridgeDominantSpeakerSetParams() *ConfBridgeDominantSpeakerSetParams {
	return &ConfBridgeDominantSpeakerSetParams{
		ConfBridgeHandle: InvalidHandle,
		ChannelHandle:    InvalidHandle,
	}
}

// ConfBridgeDominantSpeakerSet writes the dominant speaker channel index
// into the conferencing NLP field of every other bridge member. It does not
// touch the mixer list.
func (inst *Instance) ConfBridgeDominantSpeakerSet(ctx context.Context, p *ConfBridgeDominantSpeakerSetParams) error {
	return inst.serialize(ctx, "conference bridge dominant speaker set", func() error {
		if p == nil {
			return NewError(StatusInvalidParams, "dominant speaker set")
		}
		if !inst.dominantSpeakerEnabled {
			return NewError(StatusConfBridgeDominantSpeakerDisabled, "")
		}
		bIdx, err := inst.bridgeFromHandle(p.ConfBridgeHandle)
		if err != nil {
			return err
		}
		if p.ChannelHandle == InvalidHandle {
			return inst.dominantSpeakerClear(bIdx)
		}

		chanIdx, err := inst.channelFromHandle(p.ChannelHandle, StatusChannelInvalidHandle)
		if err != nil {
			return err
		}
		c := &inst.channels[chanIdx]
		if c.BridgeIndex != bIdx || c.Tap {
			return NewError(StatusConfBridgeDominantSpeakerNotOnBridge, "")
		}
		if !c.EnableNlp || !c.EnableConfNoiseReduction {
			return NewError(StatusConfBridgeDominantSpeakerNlp, "")
		}
		return inst.dominantSpeakerSet(bIdx, chanIdx)
	})
}

func (inst *Instance) dominantSpeakerSet(bIdx, dominant uint16) error {
	for _, member := range inst.bridgeMembers(bIdx) {
		value := dominant
		if member == dominant {
			value = DominantSpeakerUnassigned
		}
		if err := inst.writeDominantSpeaker(member, value); err != nil {
			return err
		}
	}
	b := &inst.bridges[bIdx]
	b.DominantSpeakerSet = true
	b.DominantSpeakerChanIndex = dominant
	inst.logger.Debug("dominant speaker set", "bridge", bIdx, "channel", dominant)
	return nil
}

func (inst *Instance) dominantSpeakerClear(bIdx uint16) error {
	b := &inst.bridges[bIdx]
	if !b.DominantSpeakerSet {
		return nil
	}
	for _, member := range inst.bridgeMembers(bIdx) {
		if err := inst.writeDominantSpeaker(member, DominantSpeakerUnassigned); err != nil {
			return err
		}
	}
	b.DominantSpeakerSet = false
	b.DominantSpeakerChanIndex = InvalidIndex
	inst.logger.Debug("dominant speaker cleared", "bridge", bIdx)
	return nil
}

// dominantSpeakerLeave resets the field of a channel leaving the bridge, and
// clears the bridge designation if it was the dominant speaker
func (inst *Instance) dominantSpeakerLeave(bIdx, chanIdx uint16) error {
	b := &inst.bridges[bIdx]
	if !b.DominantSpeakerSet {
		return nil
	}
	if b.DominantSpeakerChanIndex == chanIdx {
		return inst.dominantSpeakerClear(bIdx)
	}
	return inst.writeDominantSpeaker(chanIdx, DominantSpeakerUnassigned)
}

// bridgeMembers lists the channels on a bridge, taps excluded
func (inst *Instance) bridgeMembers(bIdx uint16) []uint16 {
	var out []uint16
	for i := range inst.channels {
		c := &inst.channels[i]
		if c.Reserved && c.BridgeIndex == bIdx && !c.Tap {
			out = append(out, uint16(i))
		}
	}
	return out
}

// writeDominantSpeaker updates the low bits of the conferencing NLP word,
// preserving the other fields
func (inst *Instance) writeDominantSpeaker(chanIdx, value uint16) error {
	addr := channelMainAddr(chanIdx, DominantSpeakerFieldOfst)
	word, err := inst.read(addr)
	if err != nil {
		return err
	}
	word = word&^DominantSpeakerFieldMask | value&DominantSpeakerFieldMask
	return inst.write(addr, word)
}
