package oct6100

import "fmt"

// statusNames maps status identifiers (without the Status prefix) to codes.
// Scenario scripts use these names for expected errors.
var statusNames = map[string]Status{
	"OK":                                     StatusOK,
	"ChannelInvalidHandle":                   StatusChannelInvalidHandle,
	"ChannelNotOpen":                         StatusChannelNotOpen,
	"ChannelInvalidLaw":                      StatusChannelInvalidLaw,
	"ChannelInvalidPort":                     StatusChannelInvalidPort,
	"ChannelActiveDependencies":              StatusChannelActiveDependencies,
	"ChannelSilenceAlreadyActive":            StatusChannelSilenceAlreadyActive,
	"ConfBridgeInvalidHandle":                StatusConfBridgeInvalidHandle,
	"ConfBridgeNotOpen":                      StatusConfBridgeNotOpen,
	"ConfBridgeActiveDependencies":           StatusConfBridgeActiveDependencies,
	"ConfBridgeChannelAddInvalidHandle":      StatusConfBridgeChannelAddInvalidHandle,
	"ConfBridgeChannelNotOpen":               StatusConfBridgeChannelNotOpen,
	"ConfBridgeChannelAlreadyOnBridge":       StatusConfBridgeChannelAlreadyOnBridge,
	"ConfBridgeChannelNotOnBridge":           StatusConfBridgeChannelNotOnBridge,
	"ConfBridgeChannelBidirectional":         StatusConfBridgeChannelBidirectional,
	"ConfBridgeChannelLawConversion":         StatusConfBridgeChannelLawConversion,
	"ConfBridgeChannelCodecActive":           StatusConfBridgeChannelCodecActive,
	"ConfBridgeChannelExtendedToneDetection": StatusConfBridgeChannelExtendedToneDetection,
	"ConfBridgeChannelCopyEventsActive":      StatusConfBridgeChannelCopyEventsActive,
	"ConfBridgeInputPort":                    StatusConfBridgeInputPort,
	"ConfBridgeRemoveAll":                    StatusConfBridgeRemoveAll,
	"ConfBridgeChannelAlreadyMuted":          StatusConfBridgeChannelAlreadyMuted,
	"ConfBridgeChannelNotMuted":              StatusConfBridgeChannelNotMuted,
	"ConfBridgeListenerMaskIndex":            StatusConfBridgeListenerMaskIndex,
	"ConfBridgeListenerMaskIndexUsed":        StatusConfBridgeListenerMaskIndexUsed,
	"ConfBridgeFlexibleConferencing":         StatusConfBridgeFlexibleConferencing,
	"ConfBridgeFlexibleConferencingDisabled": StatusConfBridgeFlexibleConferencingDisabled,
	"ConfBridgeMaxParticipants":              StatusConfBridgeMaxParticipants,
	"ConfBridgeTapInvalidHandle":             StatusConfBridgeTapInvalidHandle,
	"ConfBridgeTapNotOnSameBridge":           StatusConfBridgeTapNotOnSameBridge,
	"ConfBridgeTapSelf":                      StatusConfBridgeTapSelf,
	"ConfBridgeTapAlwaysMute":                StatusConfBridgeTapAlwaysMute,
	"ConfBridgeTapDependency":                StatusConfBridgeTapDependency,
	"ConfBridgeTapOfTap":                     StatusConfBridgeTapOfTap,
	"ConfBridgeDominantSpeakerDisabled":      StatusConfBridgeDominantSpeakerDisabled,
	"ConfBridgeDominantSpeakerNlp":           StatusConfBridgeDominantSpeakerNlp,
	"ConfBridgeDominantSpeakerNotOnBridge":   StatusConfBridgeDominantSpeakerNotOnBridge,
	"ConfMixerEventNotFound":                 StatusConfMixerEventNotFound,
	"CopyEventInvalidHandle":                 StatusCopyEventInvalidHandle,
	"CopyEventNotOpen":                       StatusCopyEventNotOpen,
	"CopyEventSourceChannel":                 StatusCopyEventSourceChannel,
	"CopyEventDestinationChannel":            StatusCopyEventDestinationChannel,
	"CopyEventSourcePort":                    StatusCopyEventSourcePort,
	"CopyEventDestinationPort":               StatusCopyEventDestinationPort,
	"CopyEventCodecActive":                   StatusCopyEventCodecActive,
	"CopyEventSamePort":                      StatusCopyEventSamePort,
	"MixerAllMixerEventEntryOpened":          StatusMixerAllMixerEventEntryOpened,
	"MixerAllCopyEventEntryOpened":           StatusMixerAllCopyEventEntryOpened,
	"ConfBridgeAllBuffersOpen":               StatusConfBridgeAllBuffersOpen,
	"ConfBridgeAllFlexParticipantsOpen":      StatusConfBridgeAllFlexParticipantsOpen,
	"TsiMemAllOpen":                          StatusTsiMemAllOpen,
	"ChannelAllOpen":                         StatusChannelAllOpen,
	"InvalidParams":                          StatusInvalidParams,
	"SerializeTimeout":                       StatusSerializeTimeout,
	"ChipClosed":                             StatusChipClosed,
	"ChipActiveDependencies":                 StatusChipActiveDependencies,
	"BusIO":                                  StatusBusIO,
	"FatalAllocatorRelease":                  StatusFatalAllocatorRelease,
	"FatalMixerLoopOverflow":                 StatusFatalMixerLoopOverflow,
	"FatalEventUnreachable":                  StatusFatalEventUnreachable,
	"FatalSegmentCorrupt":                    StatusFatalSegmentCorrupt,
	"FatalBridgeLoadMissing":                 StatusFatalBridgeLoadMissing,
	"FatalShadowMismatch":                    StatusFatalShadowMismatch,
	"FatalParticipantState":                  StatusFatalParticipantState,
}

// Name returns the identifier of s without the Status prefix, or the hex
// code for an unknown status
func (s Status) Name() string {
	for name, status := range statusNames {
		if status == s {
			return name
		}
	}
	return fmt.Sprintf("0x%08x", uint32(s))
}
