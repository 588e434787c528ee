package oct6100

// Sentinels
const (
	InvalidIndex  uint16 = 0xFFFF
	InvalidHandle uint32 = 0xFFFFFFFF
	InvalidValue  uint32 = 0xFFFFFFFF
)

// Mixer control memory. Each event entry is four 16-bit words: the control
// word (opcode, law, source or subtract TSI), the destination TSI, the next
// event index and one unused word.
const (
	MixerControlMemBase      uint32 = 0x00310000
	MixerControlMemEntrySize uint32 = 8

	MixerControlMemCtrlOfst uint32 = 0
	MixerControlMemDstOfst  uint32 = 2
	MixerControlMemNextOfst uint32 = 4
)

// MixerControlMemEntryWords is the number of words in one event entry
const MixerControlMemEntryWords = 4

// Mixer control word layout
const (
	MixerControlMemNoOp       uint16 = 0x0000
	MixerControlMemCopy       uint16 = 0x2000
	MixerControlMemLoad       uint16 = 0x4000
	MixerControlMemAccumulate uint16 = 0x6000
	MixerControlMemStore      uint16 = 0x8000
	MixerControlMemSubStore   uint16 = 0xA000
	MixerControlMemOpcodeMask uint16 = 0xE000

	MixerControlMemTsiMask uint16 = 0x07FF
	MixerControlMemLawMask uint16 = 0x1000
)

// MixerControlMemLawOfst is the bit position of the law flag
const MixerControlMemLawOfst = 12

// Fixed mixer list nodes
const (
	MixerHeadNode uint16 = 0
	MixerTailNode uint16 = 1
	// MixerFirstFreeNode is the first index handed out by the event pool.
	MixerFirstFreeNode uint16 = 2
)

// TSI memory
const (
	MaxTsiMemEntries = 1536
	// UsableTsiMemEntries excludes the silence and scratch entries
	UsableTsiMemEntries = 1534
)

// SilenceTsi always holds a silent sample
const SilenceTsi uint16 = 1534

// TSST control memory: one word per input TSST, routing it into a TSI entry
const (
	TsstControlMemBase      uint32 = 0x00026000
	TsstControlMemEntrySize uint32 = 2
	TsstControlMemInputTsst uint16 = 0x8000
)

// MaxTsstEntries is the number of input TSSTs
const MaxTsstEntries = 4096

// Channel main memory
const (
	ChannelMainMemBase      uint32 = 0x00020000
	ChannelMainMemEntrySize uint32 = 0x400

	// MutePortsOfst holds the direct port mute bits
	MutePortsOfst    uint32 = 0x10
	MutePortsRinBit  uint16 = 0x0001
	MutePortsSinBit  uint16 = 0x0002
	MutePortsAllBits uint16 = MutePortsRinBit | MutePortsSinBit

	// DominantSpeakerFieldOfst is the conferencing NLP word whose low bits
	// carry the dominant speaker channel index
	DominantSpeakerFieldOfst  uint32 = 0x20
	DominantSpeakerFieldMask  uint16 = 0x0FFF
	DominantSpeakerUnassigned uint16 = 0x0FFF
)

// Chip limits
const (
	MaxChannels                 = 672
	MaxConfBridges              = 672
	MaxFlexibleConfParticipants = 672
	MaxMixerEvents              = 1344
	MaxCopyEvents               = 1344
	MaxParticipantsPerBridge    = 32
	// MaxLoop bounds every forward scan of a list segment
	MaxLoop = 4096
)

// PcmLaw is the companding law of a port
type PcmLaw uint8

const (
	PcmULaw PcmLaw = 0
	PcmALaw PcmLaw = 1
)

// String returns the law name
func (l PcmLaw) String() string {
	switch l {
	case PcmULaw:
		return "ulaw"
	case PcmALaw:
		return "alaw"
	}
	return "invalid"
}

// Port identifies one of the four channel ports
type Port uint8

const (
	PortNone Port = iota
	PortRin
	PortRout
	PortSin
	PortSout
)

// String returns the port name
func (p Port) String() string {
	switch p {
	case PortNone:
		return "none"
	case PortRin:
		return "rin"
	case PortRout:
		return "rout"
	case PortSin:
		return "sin"
	case PortSout:
		return "sout"
	}
	return "invalid"
}

// MixerEventType is the opcode of a mixer event
type MixerEventType uint8

const (
	MixerEventNoOp MixerEventType = iota
	MixerEventLoad
	MixerEventAccumulate
	MixerEventStore
	MixerEventSubStore
	MixerEventCopy
)

var mixerEventOpcodes = [...]uint16{
	MixerEventNoOp:       MixerControlMemNoOp,
	MixerEventLoad:       MixerControlMemLoad,
	MixerEventAccumulate: MixerControlMemAccumulate,
	MixerEventStore:      MixerControlMemStore,
	MixerEventSubStore:   MixerControlMemSubStore,
	MixerEventCopy:       MixerControlMemCopy,
}

var mixerEventNames = [...]string{
	MixerEventNoOp:       "NO_OP",
	MixerEventLoad:       "LOAD",
	MixerEventAccumulate: "ACCUMULATE",
	MixerEventStore:      "STORE",
	MixerEventSubStore:   "SUB_STORE",
	MixerEventCopy:       "COPY",
}

// String returns the opcode mnemonic
func (t MixerEventType) String() string {
	if int(t) < len(mixerEventNames) {
		return mixerEventNames[t]
	}
	return "INVALID"
}

// Opcode returns the control-word opcode bits
func (t MixerEventType) Opcode() uint16 {
	return mixerEventOpcodes[t]
}

// copyEventClass selects the list segment a copy event lives in
type copyEventClass uint8

const (
	eventClassSoutCopy copyEventClass = iota
	eventClassSinCopy
)

func (c copyEventClass) String() string {
	if c == eventClassSoutCopy {
		return "sout copy"
	}
	return "sin copy"
}
