// Package oct6100 is the host-side control plane of the OCT6100 conferencing
// DSP: channels, point-to-point copy events and conference bridges, all
// expressed as a linked list of mixer events that lives in chip control
// memory and is mirrored in host shadow memory.
package oct6100

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/emergingrobotics/oct6100/pkg/alloc"
	"github.com/emergingrobotics/oct6100/pkg/bus"
)

// ChipOpenParams sizes the chip instance
type ChipOpenParams struct {
	MaxChannels                 int
	MaxConfBridges              int
	MaxFlexibleConfParticipants int
	MaxMixerEvents              int
	MaxCopyEvents               int
	MaxTsiMemEntries            int

	// DominantSpeakerEnabled reflects the firmware feature flag
	DominantSpeakerEnabled bool

	// SerializeTimeout bounds the wait on the serialize object. Zero waits
	// forever.
	SerializeTimeout time.Duration

	Logger *log.Logger
}

// NewChipOpenParams returns the default chip sizing
func NewChipOpenParams() *ChipOpenParams {
	return &ChipOpenParams{
		MaxChannels:                 MaxChannels,
		MaxConfBridges:              MaxConfBridges,
		MaxFlexibleConfParticipants: MaxFlexibleConfParticipants,
		MaxMixerEvents:              MaxMixerEvents,
		MaxCopyEvents:               MaxCopyEvents,
		MaxTsiMemEntries:            UsableTsiMemEntries,
		DominantSpeakerEnabled:      true,
	}
}

// Validate checks the sizing against the chip limits
func (p *ChipOpenParams) Validate() error {
	switch {
	case p.MaxChannels < 1 || p.MaxChannels > MaxChannels:
		return NewError(StatusInvalidParams, "max channels")
	case p.MaxConfBridges < 0 || p.MaxConfBridges > MaxConfBridges:
		return NewError(StatusInvalidParams, "max conference bridges")
	case p.MaxFlexibleConfParticipants < 0 || p.MaxFlexibleConfParticipants > MaxFlexibleConfParticipants:
		return NewError(StatusInvalidParams, "max flexible conference participants")
	case p.MaxMixerEvents < int(MixerFirstFreeNode) || p.MaxMixerEvents > MaxMixerEvents:
		return NewError(StatusInvalidParams, "max mixer events")
	case p.MaxCopyEvents < 0 || p.MaxCopyEvents > MaxCopyEvents:
		return NewError(StatusInvalidParams, "max copy events")
	case p.MaxTsiMemEntries < 2 || p.MaxTsiMemEntries > UsableTsiMemEntries:
		return NewError(StatusInvalidParams, "max TSI memory entries")
	case p.SerializeTimeout < 0:
		return NewError(StatusInvalidParams, "serialize timeout")
	}
	return nil
}

// mixerInfo tracks the global segment boundaries of the mixer list:
// HEAD, Sout copy events, bridge events, Sin copy events, TAIL.
type mixerInfo struct {
	FirstBridgeEventPtr   uint16
	LastBridgeEventPtr    uint16
	FirstSoutCopyEventPtr uint16
	LastSoutCopyEventPtr  uint16
	FirstSinCopyEventPtr  uint16
	LastSinCopyEventPtr   uint16
}

// Instance is one open chip. All public methods are serialized on a single
// semaphore, the equivalent of the driver's API serialize object.
type Instance struct {
	id     uuid.UUID
	bus    bus.Bus
	logger *log.Logger

	sem              *semaphore.Weighted
	serializeTimeout time.Duration
	closed           bool

	dominantSpeakerEnabled bool

	mixer        mixerInfo
	mixerEvents  []MixerEvent
	copyEvents   []CopyEvent
	bridges      []ConfBridge
	participants []FlexConfParticipant
	channels     []Channel

	mixerEventPool  *alloc.Pool
	copyEventPool   *alloc.Pool
	bridgePool      *alloc.Pool
	participantPool *alloc.Pool
	tsiPool         *alloc.Pool
	channelPool     *alloc.Pool
}

// OpenChip allocates the host shadow state and programs the empty mixer list
// (HEAD linked to TAIL) into chip control memory
func OpenChip(b bus.Bus, p *ChipOpenParams) (*Instance, error) {
	if b == nil || p == nil {
		return nil, NewError(StatusInvalidParams, "open chip")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	logger := p.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "oct6100"})
	}
	id := uuid.New()

	inst := &Instance{
		id:                     id,
		bus:                    b,
		logger:                 logger.With("instance", id.String()[:8]),
		sem:                    semaphore.NewWeighted(1),
		serializeTimeout:       p.SerializeTimeout,
		dominantSpeakerEnabled: p.DominantSpeakerEnabled,

		mixerEvents:  make([]MixerEvent, p.MaxMixerEvents),
		copyEvents:   make([]CopyEvent, p.MaxCopyEvents),
		bridges:      make([]ConfBridge, p.MaxConfBridges),
		participants: make([]FlexConfParticipant, p.MaxFlexibleConfParticipants),
		channels:     make([]Channel, p.MaxChannels),

		mixerEventPool:  alloc.New("mixer events", int(MixerFirstFreeNode), p.MaxMixerEvents-int(MixerFirstFreeNode)),
		copyEventPool:   alloc.New("copy events", 0, p.MaxCopyEvents),
		bridgePool:      alloc.New("conference bridges", 0, p.MaxConfBridges),
		participantPool: alloc.New("flexible participants", 0, p.MaxFlexibleConfParticipants),
		tsiPool:         alloc.New("TSI memory", 0, p.MaxTsiMemEntries),
		channelPool:     alloc.New("channels", 0, p.MaxChannels),
	}

	inst.mixer = mixerInfo{
		FirstBridgeEventPtr:   InvalidIndex,
		LastBridgeEventPtr:    InvalidIndex,
		FirstSoutCopyEventPtr: InvalidIndex,
		LastSoutCopyEventPtr:  InvalidIndex,
		FirstSinCopyEventPtr:  InvalidIndex,
		LastSinCopyEventPtr:   InvalidIndex,
	}
	for i := range inst.mixerEvents {
		inst.mixerEvents[i] = freeMixerEvent()
	}
	for i := range inst.bridges {
		inst.bridges[i].reset()
	}
	for i := range inst.participants {
		inst.participants[i].reset()
	}
	for i := range inst.channels {
		inst.channels[i].reset()
	}
	for i := range inst.copyEvents {
		inst.copyEvents[i].reset()
	}

	if err := inst.initMixerMemory(); err != nil {
		return nil, err
	}

	inst.logger.Info("chip opened",
		"channels", p.MaxChannels,
		"bridges", p.MaxConfBridges,
		"mixer_events", p.MaxMixerEvents,
		"flex_participants", p.MaxFlexibleConfParticipants)
	return inst, nil
}

func (inst *Instance) initMixerMemory() error {
	words := len(inst.mixerEvents) * MixerControlMemEntryWords
	if err := inst.bus.WriteSmear(MixerControlMemBase, words, 0); err != nil {
		return busError("clearing mixer control memory", err)
	}

	head := MixerEvent{Reserved: true, Type: MixerEventNoOp, NextEventPtr: MixerTailNode,
		SourceChanIndex: InvalidIndex, DestinationChanIndex: InvalidIndex, BridgeIndex: InvalidIndex}
	tail := head
	// the DSP restarts at HEAD once it reaches TAIL
	tail.NextEventPtr = MixerHeadNode

	if err := inst.writeEvent(MixerTailNode, tail); err != nil {
		return err
	}
	return inst.writeEvent(MixerHeadNode, head)
}

// ID returns the instance identifier used in logs
func (inst *Instance) ID() uuid.UUID {
	return inst.id
}

// Logger returns the instance logger
func (inst *Instance) Logger() *log.Logger {
	return inst.logger
}

// Close releases the chip instance. It fails while channels, bridges or copy
// events are still open unless force is set, in which case every bridge is
// emptied and closed and every copy event and channel is released first.
func (inst *Instance) Close(ctx context.Context, force bool) error {
	return inst.serialize(ctx, "chip close", func() error {
		busy := inst.channelPool.Used() > 0 || inst.bridgePool.Used() > 0 || inst.copyEventPool.Used() > 0
		if busy && !force {
			return NewError(StatusChipActiveDependencies, "chip close")
		}
		if busy {
			if err := inst.releaseAll(); err != nil {
				return err
			}
		}
		inst.closed = true
		inst.logger.Info("chip closed")
		return nil
	})
}

func (inst *Instance) releaseAll() error {
	for i := range inst.bridges {
		b := &inst.bridges[i]
		if !b.Reserved || b.Internal {
			continue
		}
		if b.NumClients > 0 {
			if err := inst.confBridgeRemoveAll(uint16(i)); err != nil {
				return err
			}
		}
		if err := inst.confBridgeCloseIndex(uint16(i)); err != nil {
			return err
		}
	}
	for i := range inst.copyEvents {
		if inst.copyEvents[i].Reserved {
			if err := inst.copyEventDestroyIndex(uint16(i)); err != nil {
				return err
			}
		}
	}
	for i := range inst.channels {
		if inst.channels[i].Reserved {
			if err := inst.channelCloseIndex(uint16(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// serialize runs fn while holding the serialize object
func (inst *Instance) serialize(ctx context.Context, op string, fn func() error) error {
	if inst.serializeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inst.serializeTimeout)
		defer cancel()
	}
	if err := inst.sem.Acquire(ctx, 1); err != nil {
		return NewErrorWithCause(StatusSerializeTimeout, op, err)
	}
	defer inst.sem.Release(1)

	if inst.closed {
		return NewError(StatusChipClosed, op)
	}

	err := fn()
	if err != nil {
		status := StatusOf(err)
		switch {
		case status.IsFatal():
			inst.logger.Error(op+" failed", "status", status, "err", err)
		case status == StatusBusIO:
			inst.logger.Warn(op+" interrupted by bus error; shadow and chip state may differ", "err", err)
		default:
			inst.logger.Debug(op+" rejected", "status", status)
		}
		var apiErr *Error
		if !errors.As(err, &apiErr) {
			err = busError(op, err)
		}
	}
	return err
}

// reserve maps pool exhaustion onto the pool's status code
func reserve(p *alloc.Pool, exhausted Status) (uint16, error) {
	idx, err := p.Reserve()
	if err != nil {
		if errors.Is(err, alloc.ErrAllSlotsOpen) {
			return 0, NewErrorWithCause(exhausted, "", err)
		}
		return 0, NewErrorWithCause(StatusFatalAllocatorRelease, "", err)
	}
	return idx, nil
}

// release treats any allocator complaint as a fatal bookkeeping error
func release(p *alloc.Pool, idx uint16) error {
	if err := p.Release(idx); err != nil {
		return NewErrorWithCause(StatusFatalAllocatorRelease, p.Name(), err)
	}
	return nil
}

func (inst *Instance) write(addr uint32, data uint16) error {
	if err := inst.bus.Write(addr, data); err != nil {
		return busError("register write", err)
	}
	return nil
}

func (inst *Instance) read(addr uint32) (uint16, error) {
	data, err := inst.bus.Read(addr)
	if err != nil {
		return 0, busError("register read", err)
	}
	return data, nil
}
