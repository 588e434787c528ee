//go:build unit

package oct6100

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllStatusCodesHaveMessages(t *testing.T) {
	for name, status := range statusNames {
		msg := status.String()
		assert.NotEmpty(t, msg, name)
		assert.False(t, strings.HasPrefix(msg, "unknown "), "%s has no message", name)
	}
}

func TestStatusNamesCoverMessages(t *testing.T) {
	byCode := make(map[Status]string, len(statusNames))
	for name, s := range statusNames {
		byCode[s] = name
	}
	for s := range statusMessages {
		_, ok := byCode[s]
		assert.True(t, ok, "status 0x%08x has no name", uint32(s))
	}
}

func TestStatusStringUnknown(t *testing.T) {
	assert.Equal(t, "unknown status (0x00009999)", Status(0x9999).String())
}

func TestStatusGroups(t *testing.T) {
	tests := []struct {
		status    Status
		fatal     bool
		exhausted bool
	}{
		{StatusOK, false, false},
		{StatusConfBridgeChannelAlreadyOnBridge, false, false},
		{StatusMixerAllMixerEventEntryOpened, false, true},
		{StatusTsiMemAllOpen, false, true},
		{StatusFatalMixerLoopOverflow, true, false},
		{StatusFatalParticipantState, true, false},
		{StatusBusIO, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.fatal, tt.status.IsFatal())
			assert.Equal(t, tt.exhausted, tt.status.IsResourceExhausted())
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("bus stalled")
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"bare", NewError(StatusConfBridgeNotOpen, ""), "conference bridge not open"},
		{"context", NewError(StatusConfBridgeNotOpen, "close"), "close: conference bridge not open"},
		{"cause", NewErrorWithCause(StatusBusIO, "", cause), "register access failed: bus stalled"},
		{"both", NewErrorWithCause(StatusBusIO, "write", cause), "write: register access failed: bus stalled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("bus stalled")
	err := fmt.Errorf("adding channel: %w", NewErrorWithCause(StatusBusIO, "write", cause))

	assert.ErrorIs(t, err, NewError(StatusBusIO, ""))
	assert.NotErrorIs(t, err, NewError(StatusConfBridgeNotOpen, ""))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, StatusBusIO, StatusOf(err))
	assert.Equal(t, StatusOK, StatusOf(nil))
	assert.Equal(t, StatusBusIO, StatusOf(cause))
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus("ConfBridgeTapDependency")
	require.True(t, ok)
	assert.Equal(t, StatusConfBridgeTapDependency, s)

	_, ok = ParseStatus("NoSuchStatus")
	assert.False(t, ok)

	assert.Equal(t, "ConfBridgeTapDependency", StatusConfBridgeTapDependency.Name())
	assert.Equal(t, "OK", StatusOK.Name())
	assert.Equal(t, "0x00abcdef", Status(0xabcdef).Name())
}

func TestHandleLayout(t *testing.T) {
	h := makeHandle(HandleTagConfBridge, 7, 300)
	assert.Equal(t, HandleTagConfBridge, handleTag(h))
	assert.Equal(t, uint16(300), handleIndex(h))
	assert.Equal(t, uint8(7), handleOpenCnt(h))

	assert.Equal(t, uint8(0), nextOpenCnt(uint8(HandleEntryOpenCntMask)))
	assert.Equal(t, uint8(1), nextOpenCnt(0))
}

func TestDecodeHandle(t *testing.T) {
	tests := []struct {
		name   string
		handle uint32
		ok     bool
	}{
		{"valid", makeHandle(HandleTagChannel, 3, 5), true},
		{"wrong tag", makeHandle(HandleTagConfBridge, 3, 5), false},
		{"index out of range", makeHandle(HandleTagChannel, 3, 16), false},
		{"invalid handle", InvalidHandle, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, cnt, err := decodeHandle(tt.handle, HandleTagChannel, 16, StatusChannelInvalidHandle)
			if !tt.ok {
				assert.ErrorIs(t, err, NewError(StatusChannelInvalidHandle, ""))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint16(5), idx)
			assert.Equal(t, uint8(3), cnt)
		})
	}
}

func TestStaleHandlesAfterReopen(t *testing.T) {
	tc := newTestChip(t)

	old := tc.openChannel()
	require.NoError(t, tc.ChannelClose(tc.ctx, old))
	fresh := tc.openChannel()

	assert.Equal(t, handleIndex(old), handleIndex(fresh), "slot reused")
	assert.NotEqual(t, old, fresh)
	err := tc.ChannelClose(tc.ctx, old)
	assert.Equal(t, StatusChannelInvalidHandle, StatusOf(err))

	b := tc.openBridge(false)
	require.NoError(t, tc.ConfBridgeClose(tc.ctx, b))
	assert.Equal(t, StatusConfBridgeNotOpen, StatusOf(tc.ConfBridgeClose(tc.ctx, b)))
	b2 := tc.openBridge(false)
	assert.Equal(t, StatusConfBridgeInvalidHandle, StatusOf(tc.ConfBridgeClose(tc.ctx, b)))
	require.NoError(t, tc.ConfBridgeClose(tc.ctx, b2))
}
