package oct6100

import (
	"context"
)

// CheckIntegrity verifies the shadow mixer list and compares it with the
// image read back from chip control memory. Any violation is reported as a
// fatal status.
func (inst *Instance) CheckIntegrity(ctx context.Context) error {
	return inst.serialize(ctx, "check integrity", func() error {
		if err := inst.checkList(); err != nil {
			return err
		}
		if err := inst.checkSegments(); err != nil {
			return err
		}
		if err := inst.checkBridges(); err != nil {
			return err
		}
		return inst.checkHardware()
	})
}

// checkList walks from HEAD: TAIL must be reached within the table size and
// every reserved node visited exactly once
func (inst *Instance) checkList() error {
	visited := make([]bool, len(inst.mixerEvents))
	cur := MixerHeadNode
	for steps := 0; ; steps++ {
		if steps > len(inst.mixerEvents) {
			return fatal(StatusFatalMixerLoopOverflow, "TAIL not reached after %d nodes", steps)
		}
		if int(cur) >= len(inst.mixerEvents) {
			return fatal(StatusFatalEventUnreachable, "link to invalid event %d", cur)
		}
		if visited[cur] {
			return fatal(StatusFatalMixerLoopOverflow, "event %d visited twice", cur)
		}
		if !inst.mixerEvents[cur].Reserved {
			return fatal(StatusFatalSegmentCorrupt, "free event %d is linked", cur)
		}
		visited[cur] = true
		if cur == MixerTailNode {
			break
		}
		cur = inst.mixerEvents[cur].NextEventPtr
	}
	if inst.mixerEvents[MixerTailNode].NextEventPtr != MixerHeadNode {
		return fatal(StatusFatalSegmentCorrupt, "TAIL does not loop to HEAD")
	}
	for i, ev := range inst.mixerEvents {
		if ev.Reserved != inst.isAllocated(uint16(i)) {
			return fatal(StatusFatalAllocatorRelease, "event %d shadow and pool disagree", i)
		}
		if ev.Reserved && !visited[i] {
			return fatal(StatusFatalEventUnreachable, "reserved event %d not linked", i)
		}
	}
	return nil
}

func (inst *Instance) isAllocated(idx uint16) bool {
	if idx < MixerFirstFreeNode {
		return true
	}
	return inst.mixerEventPool.IsReserved(idx)
}

// checkSegments verifies the global order HEAD, Sout copies, bridges, Sin
// copies, TAIL and that bridge segments do not interleave
func (inst *Instance) checkSegments() error {
	order := inst.listOrder()
	body := order[1 : len(order)-1]
	pos := 0

	run := func(first, last uint16, name string) ([]uint16, error) {
		if first == InvalidIndex {
			if last != InvalidIndex {
				return nil, fatal(StatusFatalSegmentCorrupt, "%s segment has last without first", name)
			}
			return nil, nil
		}
		if pos >= len(body) || body[pos] != first {
			return nil, fatal(StatusFatalSegmentCorrupt, "%s segment does not start at %d", name, first)
		}
		start := pos
		for pos < len(body) && body[pos] != last {
			pos++
		}
		if pos == len(body) {
			return nil, fatal(StatusFatalSegmentCorrupt, "%s segment does not end at %d", name, last)
		}
		pos++
		return body[start:pos], nil
	}

	m := &inst.mixer
	sout, err := run(m.FirstSoutCopyEventPtr, m.LastSoutCopyEventPtr, "sout copy")
	if err != nil {
		return err
	}
	bridges, err := run(m.FirstBridgeEventPtr, m.LastBridgeEventPtr, "bridge")
	if err != nil {
		return err
	}
	sin, err := run(m.FirstSinCopyEventPtr, m.LastSinCopyEventPtr, "sin copy")
	if err != nil {
		return err
	}
	if pos != len(body) {
		return fatal(StatusFatalSegmentCorrupt, "event %d outside every segment", body[pos])
	}

	for _, seg := range [][]uint16{sout, sin} {
		for _, idx := range seg {
			if ev := inst.mixerEvents[idx]; ev.Type != MixerEventCopy || ev.BridgeIndex != InvalidIndex {
				return fatal(StatusFatalSegmentCorrupt, "event %d in copy segment is %s", idx, ev.Type)
			}
		}
	}

	// bridge runs: each bridge appears once, from its first load to its last
	// store
	seen := make(map[uint16]bool)
	for i := 0; i < len(bridges); {
		owner := inst.mixerEvents[bridges[i]].BridgeIndex
		if owner == InvalidIndex || int(owner) >= len(inst.bridges) || seen[owner] {
			return fatal(StatusFatalSegmentCorrupt, "bridge segments interleave at event %d", bridges[i])
		}
		seen[owner] = true
		b := &inst.bridges[owner]
		if bridges[i] != b.FirstLoadEventPtr {
			return fatal(StatusFatalSegmentCorrupt, "bridge %d run starts at %d, first load is %d", owner, bridges[i], b.FirstLoadEventPtr)
		}
		j := i
		for j < len(bridges) && inst.mixerEvents[bridges[j]].BridgeIndex == owner {
			j++
		}
		if bridges[j-1] != b.LastSubStoreEventPtr {
			return fatal(StatusFatalSegmentCorrupt, "bridge %d run ends at %d, last store is %d", owner, bridges[j-1], b.LastSubStoreEventPtr)
		}
		i = j
	}
	for i := range inst.bridges {
		b := &inst.bridges[i]
		if b.Reserved && b.FirstLoadEventPtr != InvalidIndex && !seen[uint16(i)] {
			return fatal(StatusFatalSegmentCorrupt, "bridge %d events not in bridge segment", i)
		}
	}
	return nil
}

// checkBridges verifies the per-bridge mix chains
func (inst *Instance) checkBridges() error {
	for i := range inst.bridges {
		b := &inst.bridges[i]
		if !b.Reserved || b.FirstLoadEventPtr == InvalidIndex {
			continue
		}
		var err error
		if b.FlexibleConferencing {
			err = inst.checkFlexibleBridge(uint16(i))
		} else {
			err = inst.checkSimpleBridge(uint16(i))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// checkSimpleBridge verifies that the first active node of the load
// sub-chain is the only LOAD and that loads and stores pair up
func (inst *Instance) checkSimpleBridge(bIdx uint16) error {
	b := &inst.bridges[bIdx]
	loads, stores := 0, 0
	sawLoad := false
	inStores := false
	cur := b.FirstLoadEventPtr
	for loops := 0; ; loops++ {
		if loops >= MaxLoop {
			return fatal(StatusFatalMixerLoopOverflow, "walking bridge %d", bIdx)
		}
		if cur == b.FirstSubStoreEventPtr {
			inStores = true
		}
		ev := inst.mixerEvents[cur]
		if inStores {
			if ev.Type != MixerEventStore && ev.Type != MixerEventSubStore {
				return fatal(StatusFatalSegmentCorrupt, "bridge %d store sub-chain holds %s", bIdx, ev.Type)
			}
			stores++
		} else {
			switch ev.Type {
			case MixerEventLoad:
				if sawLoad || cur != b.LoadIndex {
					return fatal(StatusFatalBridgeLoadMissing, "bridge %d has a second LOAD at %d", bIdx, cur)
				}
				sawLoad = true
			case MixerEventAccumulate:
				if !sawLoad {
					return fatal(StatusFatalBridgeLoadMissing, "bridge %d accumulates before its LOAD", bIdx)
				}
			case MixerEventNoOp:
			default:
				return fatal(StatusFatalSegmentCorrupt, "bridge %d load sub-chain holds %s", bIdx, ev.Type)
			}
			loads++
		}
		if cur == b.LastSubStoreEventPtr {
			break
		}
		cur = ev.NextEventPtr
	}
	if !sawLoad {
		return fatal(StatusFatalBridgeLoadMissing, "bridge %d", bIdx)
	}
	if loads != stores {
		return fatal(StatusFatalSegmentCorrupt, "bridge %d has %d loads and %d stores", bIdx, loads, stores)
	}
	if b.SilenceLoadEventPtr != InvalidIndex {
		if b.SilenceLoadEventPtr != b.LoadIndex || inst.mixerEvents[b.LoadIndex].SourceTsi() != SilenceTsi {
			return fatal(StatusFatalBridgeLoadMissing, "bridge %d silence load is not its LOAD", bIdx)
		}
	}
	if !b.Internal && loads != int(b.NumClients-b.NumTappedClients) {
		return fatal(StatusFatalSegmentCorrupt, "bridge %d has %d loads for %d members", bIdx, loads, b.NumClients-b.NumTappedClients)
	}
	return nil
}

// checkFlexibleBridge verifies each listener chain: its LOAD, one node per
// recorded source, and a STORE at the end
func (inst *Instance) checkFlexibleBridge(bIdx uint16) error {
	nodes := 0
	for i := range inst.participants {
		fp := &inst.participants[i]
		if !fp.Reserved || fp.BridgeIndex != bIdx {
			continue
		}
		count := 0
		for _, ev := range fp.LoadOrAccumulateEventIndex {
			if ev != InvalidIndex {
				count++
			}
		}
		if count != int(fp.SourceCount) || fp.FlexibleMixerCreated != (count > 0) {
			return fatal(StatusFatalParticipantState, "participant %d counts %d sources, holds %d", i, fp.SourceCount, count)
		}
		if !fp.FlexibleMixerCreated {
			continue
		}
		cur := fp.ChainLoadEventIndex
		if inst.mixerEvents[cur].Type != MixerEventLoad {
			return fatal(StatusFatalBridgeLoadMissing, "participant %d chain", i)
		}
		n := 0
		for loops := 0; cur != fp.StoreEventIndex; loops++ {
			if loops >= MaxLoop || cur == InvalidIndex {
				return fatal(StatusFatalMixerLoopOverflow, "walking participant %d chain", i)
			}
			if n > 0 && inst.mixerEvents[cur].Type != MixerEventAccumulate {
				return fatal(StatusFatalParticipantState, "participant %d chain holds %s", i, inst.mixerEvents[cur].Type)
			}
			n++
			cur = inst.mixerEvents[cur].NextEventPtr
		}
		if n != count {
			return fatal(StatusFatalParticipantState, "participant %d chain has %d nodes for %d sources", i, n, count)
		}
		nodes += n + 1
	}

	b := &inst.bridges[bIdx]
	length := 0
	for cur := b.FirstLoadEventPtr; ; cur = inst.mixerEvents[cur].NextEventPtr {
		length++
		if cur == b.LastSubStoreEventPtr || length > MaxLoop {
			break
		}
	}
	if length != nodes {
		return fatal(StatusFatalSegmentCorrupt, "flexible bridge %d holds %d events, chains own %d", bIdx, length, nodes)
	}
	return nil
}

// checkHardware reads every entry of mixer control memory back and compares
// it with the shadow image. Free entries must read as zero.
func (inst *Instance) checkHardware() error {
	words := make([]uint16, MixerControlMemEntryWords)
	for i := range inst.mixerEvents {
		idx := uint16(i)
		if err := inst.bus.BurstRead(mixerEventAddr(idx, MixerControlMemCtrlOfst), words); err != nil {
			return busError("mixer event read back", err)
		}
		ev := inst.mixerEvents[i]
		var want [MixerControlMemEntryWords]uint16
		if ev.Reserved {
			want = [MixerControlMemEntryWords]uint16{ev.Control, ev.DestinationTsi, ev.NextEventPtr, 0}
		}
		for w := range want {
			if words[w] != want[w] {
				return fatal(StatusFatalShadowMismatch, "event %d word %d: chip 0x%04x, shadow 0x%04x", idx, w, words[w], want[w])
			}
		}
	}
	return nil
}
