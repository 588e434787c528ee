package oct6100

import (
	"context"
)

// ConfBridgeStats reports the state of one bridge
type ConfBridgeStats struct {
	NumClients                   uint16 `json:"num_clients"`
	NumTappedClients             uint16 `json:"num_tapped_clients"`
	FlexibleConferencing         bool   `json:"flexible_conferencing"`
	DominantSpeakerChannelHandle uint32 `json:"dominant_speaker_channel_handle"`
}

// ConfBridgeGetStats returns the client counts of a bridge
func (inst *Instance) ConfBridgeGetStats(ctx context.Context, handle uint32) (ConfBridgeStats, error) {
	var stats ConfBridgeStats
	err := inst.serialize(ctx, "conference bridge get stats", func() error {
		idx, err := inst.bridgeFromHandle(handle)
		if err != nil {
			return err
		}
		b := &inst.bridges[idx]
		stats = ConfBridgeStats{
			NumClients:                   b.NumClients,
			NumTappedClients:             b.NumTappedClients,
			FlexibleConferencing:         b.FlexibleConferencing,
			DominantSpeakerChannelHandle: InvalidHandle,
		}
		if b.DominantSpeakerSet {
			stats.DominantSpeakerChannelHandle = inst.channelHandle(b.DominantSpeakerChanIndex)
		}
		return nil
	})
	return stats, err
}

// PoolStats is the occupancy of one resource pool
type PoolStats struct {
	Free  int `json:"free"`
	Total int `json:"total"`
}

// ChipStats reports resource usage of the chip instance
type ChipStats struct {
	InstanceID            string    `json:"instance_id"`
	MixerEvents           PoolStats `json:"mixer_events"`
	CopyEvents            PoolStats `json:"copy_events"`
	ConfBridges           PoolStats `json:"conf_bridges"`
	FlexConfParticipants  PoolStats `json:"flex_conf_participants"`
	TsiMemEntries         PoolStats `json:"tsi_mem_entries"`
	Channels              PoolStats `json:"channels"`
	MixerEventListLength  int       `json:"mixer_event_list_length"`
	DominantSpeakerEnable bool      `json:"dominant_speaker_enabled"`
}

// ChipGetStats returns the free and total counts of every pool
func (inst *Instance) ChipGetStats(ctx context.Context) (ChipStats, error) {
	var stats ChipStats
	err := inst.serialize(ctx, "chip get stats", func() error {
		stats = inst.chipStats()
		return nil
	})
	return stats, err
}

func (inst *Instance) chipStats() ChipStats {
	pool := func(free, total int) PoolStats { return PoolStats{Free: free, Total: total} }
	return ChipStats{
		InstanceID:            inst.id.String(),
		MixerEvents:           pool(inst.mixerEventPool.Free(), inst.mixerEventPool.Size()),
		CopyEvents:            pool(inst.copyEventPool.Free(), inst.copyEventPool.Size()),
		ConfBridges:           pool(inst.bridgePool.Free(), inst.bridgePool.Size()),
		FlexConfParticipants:  pool(inst.participantPool.Free(), inst.participantPool.Size()),
		TsiMemEntries:         pool(inst.tsiPool.Free(), inst.tsiPool.Size()),
		Channels:              pool(inst.channelPool.Free(), inst.channelPool.Size()),
		MixerEventListLength:  len(inst.listOrder()),
		DominantSpeakerEnable: inst.dominantSpeakerEnabled,
	}
}

// FreeMixerEventCount returns the number of unreserved mixer events
func (inst *Instance) FreeMixerEventCount(ctx context.Context) (int, error) {
	var n int
	err := inst.serialize(ctx, "free mixer event count", func() error {
		n = inst.mixerEventPool.Free()
		return nil
	})
	return n, err
}

// MixerEventInfo is one node of the live mixer list
type MixerEventInfo struct {
	Index                uint16         `json:"index"`
	Type                 MixerEventType `json:"-"`
	TypeName             string         `json:"type"`
	SourceTsi            uint16         `json:"source_tsi"`
	DestinationTsi       uint16         `json:"destination_tsi"`
	SourceChanIndex      uint16         `json:"source_channel"`
	DestinationChanIndex uint16         `json:"destination_channel"`
	BridgeIndex          uint16         `json:"bridge"`
	NextEventPtr         uint16         `json:"next"`
}

// MixerEvents returns the list in execution order, HEAD and TAIL included
func (inst *Instance) MixerEvents(ctx context.Context) ([]MixerEventInfo, error) {
	var out []MixerEventInfo
	err := inst.serialize(ctx, "mixer events", func() error {
		for _, idx := range inst.listOrder() {
			ev := inst.mixerEvents[idx]
			out = append(out, MixerEventInfo{
				Index:                idx,
				Type:                 ev.Type,
				TypeName:             ev.Type.String(),
				SourceTsi:            ev.SourceTsi(),
				DestinationTsi:       ev.DestinationTsi,
				SourceChanIndex:      ev.SourceChanIndex,
				DestinationChanIndex: ev.DestinationChanIndex,
				BridgeIndex:          ev.BridgeIndex,
				NextEventPtr:         ev.NextEventPtr,
			})
		}
		return nil
	})
	return out, err
}

// listOrder walks the shadow list from HEAD to TAIL. The walk stops early on
// a broken link; CheckIntegrity reports why.
func (inst *Instance) listOrder() []uint16 {
	order := []uint16{MixerHeadNode}
	cur := MixerHeadNode
	for steps := 0; cur != MixerTailNode && steps < len(inst.mixerEvents); steps++ {
		cur = inst.mixerEvents[cur].NextEventPtr
		if cur == InvalidIndex || int(cur) >= len(inst.mixerEvents) {
			break
		}
		order = append(order, cur)
	}
	return order
}
