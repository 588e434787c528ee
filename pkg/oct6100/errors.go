package oct6100

import (
	"errors"
	"fmt"
)

// Status represents an OCT6100 API status code
type Status uint32

// Status groups. The group base is kept in the upper bits so a code can be
// classified without a lookup.
const (
	statusChannelBase    Status = 0x00100000
	statusConfBridgeBase Status = 0x00110000
	statusMixerBase      Status = 0x00120000
	statusResourceBase   Status = 0x00130000
	statusApiBase        Status = 0x00140000
	statusFatalBase      Status = 0x00FF0000
	statusGroupMask      Status = 0xFFFF0000
)

// StatusOK is returned for every successful call
const StatusOK Status = 0

// Channel errors
const (
	StatusChannelInvalidHandle Status = statusChannelBase + iota + 1
	StatusChannelNotOpen
	StatusChannelInvalidLaw
	StatusChannelInvalidPort
	StatusChannelActiveDependencies
	StatusChannelSilenceAlreadyActive
)

// Conference bridge errors
const (
	StatusConfBridgeInvalidHandle Status = statusConfBridgeBase + iota + 1
	StatusConfBridgeNotOpen
	StatusConfBridgeActiveDependencies
	StatusConfBridgeChannelAddInvalidHandle
	StatusConfBridgeChannelNotOpen
	StatusConfBridgeChannelAlreadyOnBridge
	StatusConfBridgeChannelNotOnBridge
	StatusConfBridgeChannelBidirectional
	StatusConfBridgeChannelLawConversion
	StatusConfBridgeChannelCodecActive
	StatusConfBridgeChannelExtendedToneDetection
	StatusConfBridgeChannelCopyEventsActive
	StatusConfBridgeInputPort
	StatusConfBridgeRemoveAll
	StatusConfBridgeChannelAlreadyMuted
	StatusConfBridgeChannelNotMuted
	StatusConfBridgeListenerMaskIndex
	StatusConfBridgeListenerMaskIndexUsed
	StatusConfBridgeFlexibleConferencing
	StatusConfBridgeFlexibleConferencingDisabled
	StatusConfBridgeMaxParticipants
	StatusConfBridgeTapInvalidHandle
	StatusConfBridgeTapNotOnSameBridge
	StatusConfBridgeTapSelf
	StatusConfBridgeTapAlwaysMute
	StatusConfBridgeTapDependency
	StatusConfBridgeTapOfTap
	StatusConfBridgeDominantSpeakerDisabled
	StatusConfBridgeDominantSpeakerNlp
	StatusConfBridgeDominantSpeakerNotOnBridge
)

// Mixer and copy event errors
const (
	StatusConfMixerEventNotFound Status = statusMixerBase + iota + 1
	StatusCopyEventInvalidHandle
	StatusCopyEventNotOpen
	StatusCopyEventSourceChannel
	StatusCopyEventDestinationChannel
	StatusCopyEventSourcePort
	StatusCopyEventDestinationPort
	StatusCopyEventCodecActive
	StatusCopyEventSamePort
)

// Resource exhaustion errors
const (
	StatusMixerAllMixerEventEntryOpened Status = statusResourceBase + iota + 1
	StatusMixerAllCopyEventEntryOpened
	StatusConfBridgeAllBuffersOpen
	StatusConfBridgeAllFlexParticipantsOpen
	StatusTsiMemAllOpen
	StatusChannelAllOpen
)

// API level errors
const (
	StatusInvalidParams Status = statusApiBase + iota + 1
	StatusSerializeTimeout
	StatusChipClosed
	StatusChipActiveDependencies
	StatusBusIO
)

// Fatal errors: the shadow model and the hardware list can no longer be
// trusted. Callers should abort.
const (
	StatusFatalAllocatorRelease Status = statusFatalBase + iota + 1
	StatusFatalMixerLoopOverflow
	StatusFatalEventUnreachable
	StatusFatalSegmentCorrupt
	StatusFatalBridgeLoadMissing
	StatusFatalShadowMismatch
	StatusFatalParticipantState
)

var statusMessages = map[Status]string{
	StatusOK: "ok",

	StatusChannelInvalidHandle:        "invalid channel handle",
	StatusChannelNotOpen:              "channel not open",
	StatusChannelInvalidLaw:           "invalid PCM law",
	StatusChannelInvalidPort:          "invalid channel port",
	StatusChannelActiveDependencies:   "channel still has active dependencies",
	StatusChannelSilenceAlreadyActive: "port silence event already active",

	StatusConfBridgeInvalidHandle:                "invalid conference bridge handle",
	StatusConfBridgeNotOpen:                      "conference bridge not open",
	StatusConfBridgeActiveDependencies:           "conference bridge still has clients",
	StatusConfBridgeChannelAddInvalidHandle:      "invalid channel handle for conference bridge",
	StatusConfBridgeChannelNotOpen:               "channel not open",
	StatusConfBridgeChannelAlreadyOnBridge:       "channel already on a conference bridge",
	StatusConfBridgeChannelNotOnBridge:           "channel not on a conference bridge",
	StatusConfBridgeChannelBidirectional:         "bidirectional channels cannot be conferenced",
	StatusConfBridgeChannelLawConversion:         "channel law conversion not supported on conference bridge",
	StatusConfBridgeChannelCodecActive:           "channel has an active ADPCM codec",
	StatusConfBridgeChannelExtendedToneDetection: "channel has extended tone detection enabled",
	StatusConfBridgeChannelCopyEventsActive:      "channel has active copy events",
	StatusConfBridgeInputPort:                    "invalid conference input port",
	StatusConfBridgeRemoveAll:                    "invalid remove-all request",
	StatusConfBridgeChannelAlreadyMuted:          "channel already muted",
	StatusConfBridgeChannelNotMuted:              "channel not muted",
	StatusConfBridgeListenerMaskIndex:            "invalid listener mask index",
	StatusConfBridgeListenerMaskIndexUsed:        "listener mask index already used on bridge",
	StatusConfBridgeFlexibleConferencing:         "operation does not match bridge conferencing mode",
	StatusConfBridgeFlexibleConferencingDisabled: "flexible conferencing not enabled on chip",
	StatusConfBridgeMaxParticipants:              "flexible bridge participant limit reached",
	StatusConfBridgeTapInvalidHandle:             "invalid tapped channel handle",
	StatusConfBridgeTapNotOnSameBridge:           "tapped channel not on the same bridge",
	StatusConfBridgeTapSelf:                      "channel cannot tap itself",
	StatusConfBridgeTapAlwaysMute:                "tap channels are always muted",
	StatusConfBridgeTapDependency:                "channel is being tapped",
	StatusConfBridgeTapOfTap:                     "tap channels cannot be tapped",
	StatusConfBridgeDominantSpeakerDisabled:      "dominant speaker not supported by firmware",
	StatusConfBridgeDominantSpeakerNlp:           "dominant speaker requires NLP and conferencing noise reduction",
	StatusConfBridgeDominantSpeakerNotOnBridge:   "dominant speaker channel not on bridge",

	StatusConfMixerEventNotFound:      "mixer event not found",
	StatusCopyEventInvalidHandle:      "invalid copy event handle",
	StatusCopyEventNotOpen:            "copy event not open",
	StatusCopyEventSourceChannel:      "invalid copy event source channel",
	StatusCopyEventDestinationChannel: "invalid copy event destination channel",
	StatusCopyEventSourcePort:         "invalid copy event source port",
	StatusCopyEventDestinationPort:    "invalid copy event destination port",
	StatusCopyEventCodecActive:        "copy event port used by an ADPCM codec",
	StatusCopyEventSamePort:           "copy event source and destination are the same port",

	StatusMixerAllMixerEventEntryOpened:     "all mixer event entries opened",
	StatusMixerAllCopyEventEntryOpened:      "all copy event entries opened",
	StatusConfBridgeAllBuffersOpen:          "all conference bridges opened",
	StatusConfBridgeAllFlexParticipantsOpen: "all flexible conference participants opened",
	StatusTsiMemAllOpen:                     "all TSI memory entries opened",
	StatusChannelAllOpen:                    "all channels opened",

	StatusInvalidParams:          "invalid parameters",
	StatusSerializeTimeout:       "timed out waiting for serialize object",
	StatusChipClosed:             "chip instance closed",
	StatusChipActiveDependencies: "chip instance still has open resources",
	StatusBusIO:                  "register access failed",

	StatusFatalAllocatorRelease:  "fatal: allocator release disagrees with shadow state",
	StatusFatalMixerLoopOverflow: "fatal: mixer list scan exceeded loop limit",
	StatusFatalEventUnreachable:  "fatal: mixer event unreachable from list head",
	StatusFatalSegmentCorrupt:    "fatal: mixer segment pointers corrupt",
	StatusFatalBridgeLoadMissing: "fatal: conference bridge has no load event",
	StatusFatalShadowMismatch:    "fatal: hardware mixer image differs from shadow list",
	StatusFatalParticipantState:  "fatal: flexible participant state corrupt",
}

// String returns the human-readable status message
func (s Status) String() string {
	if msg, ok := statusMessages[s]; ok {
		return msg
	}
	return fmt.Sprintf("unknown status (0x%08x)", uint32(s))
}

// IsFatal reports whether s indicates an internal consistency failure
func (s Status) IsFatal() bool {
	return s&statusGroupMask == statusFatalBase
}

// IsResourceExhausted reports whether s indicates an empty allocator pool
func (s Status) IsResourceExhausted() bool {
	return s&statusGroupMask == statusResourceBase
}

// Error is returned by every API call that does not succeed
type Error struct {
	Status  Status
	Context string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Context != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Context, e.Status.String(), e.Cause)
		}
		return fmt.Sprintf("%s: %s", e.Context, e.Status.String())
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Status.String(), e.Cause)
	}
	return e.Status.String()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target status
func (e *Error) Is(target error) bool {
	var apiErr *Error
	if errors.As(target, &apiErr) {
		return e.Status == apiErr.Status
	}
	return false
}

// NewError creates a new Error with the given status
func NewError(status Status, context string) *Error {
	return &Error{
		Status:  status,
		Context: context,
	}
}

// NewErrorWithCause creates a new Error with an underlying cause
func NewErrorWithCause(status Status, context string, cause error) *Error {
	return &Error{
		Status:  status,
		Context: context,
		Cause:   cause,
	}
}

// StatusOf extracts the status code carried by err. A nil error maps to
// StatusOK and a foreign error to StatusBusIO.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return StatusBusIO
}

// ParseStatus resolves a status constant by its Go identifier, without the
// Status prefix (for example "ConfBridgeNotOpen")
func ParseStatus(name string) (Status, bool) {
	s, ok := statusNames[name]
	return s, ok
}

func busError(context string, err error) *Error {
	return NewErrorWithCause(StatusBusIO, context, err)
}

func fatal(status Status, format string, args ...interface{}) *Error {
	return NewError(status, fmt.Sprintf(format, args...))
}
