//go:build unit

package oct6100

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (tc *testChip) dominantField(ch uint32) uint16 {
	tc.t.Helper()
	w, err := tc.bus.Read(channelMainAddr(handleIndex(ch), DominantSpeakerFieldOfst))
	require.NoError(tc.t, err)
	return w
}

func (tc *testChip) setDominant(bridge, ch uint32) error {
	p := NewConfBridgeDominantSpeakerSetParams()
	p.ConfBridgeHandle = bridge
	p.ChannelHandle = ch
	return tc.ConfBridgeDominantSpeakerSet(tc.ctx, p)
}

func TestDominantSpeaker(t *testing.T) {
	tc := newTestChip(t)
	b := tc.openBridge(false)
	c1, c2, c3 := tc.openChannel(), tc.openChannel(), tc.openChannel()
	tc.mustAdd(b, c1)
	tc.mustAdd(b, c2)
	assert.Equal(t, DominantSpeakerUnassigned, tc.dominantField(c1))

	// upper bits of the NLP word belong to other features
	require.NoError(t, tc.bus.Write(channelMainAddr(handleIndex(c2), DominantSpeakerFieldOfst), 0xA000|DominantSpeakerUnassigned))

	mixer := tc.snapshot().Events
	require.NoError(t, tc.setDominant(b, c1))
	assert.Equal(t, mixer, tc.snapshot().Events, "mixer list untouched")
	assert.Equal(t, DominantSpeakerUnassigned, tc.dominantField(c1)&DominantSpeakerFieldMask)
	assert.Equal(t, 0xA000|handleIndex(c1), tc.dominantField(c2))
	assert.Equal(t, c1, tc.stats(b).DominantSpeakerChannelHandle)

	// a late joiner learns the current dominant speaker
	tc.mustAdd(b, c3)
	assert.Equal(t, handleIndex(c1), tc.dominantField(c3))

	// a non-dominant member leaving gets its field reset
	require.NoError(t, tc.remove(c2))
	assert.Equal(t, 0xA000|DominantSpeakerUnassigned, tc.dominantField(c2))
	assert.Equal(t, c1, tc.stats(b).DominantSpeakerChannelHandle)

	// the dominant speaker leaving clears the bridge
	require.NoError(t, tc.remove(c1))
	assert.Equal(t, DominantSpeakerUnassigned, tc.dominantField(c3))
	assert.Equal(t, InvalidHandle, tc.stats(b).DominantSpeakerChannelHandle)
	tc.verify()
}

func TestDominantSpeakerClear(t *testing.T) {
	tc := newTestChip(t)
	b := tc.openBridge(false)
	c1, c2, tap := tc.openChannel(), tc.openChannel(), tc.openChannel()
	tc.mustAdd(b, c1)
	tc.mustAdd(b, c2)
	tc.mustAdd(b, tap, withTap(c1))

	require.NoError(t, tc.setDominant(b, c2))
	assert.Equal(t, DominantSpeakerUnassigned, tc.dominantField(tap), "taps are not told")

	require.NoError(t, tc.setDominant(b, InvalidHandle))
	assert.Equal(t, DominantSpeakerUnassigned, tc.dominantField(c1))
	assert.Equal(t, InvalidHandle, tc.stats(b).DominantSpeakerChannelHandle)

	require.NoError(t, tc.setDominant(b, c1))
	require.NoError(t, tc.removeAll(b))
	assert.Equal(t, DominantSpeakerUnassigned, tc.dominantField(c2))
	assert.False(t, tc.bridge(b).DominantSpeakerSet)
}

func TestDominantSpeakerErrors(t *testing.T) {
	tc := newTestChip(t)
	b1, b2 := tc.openBridge(false), tc.openBridge(false)
	c1, other := tc.openChannel(), tc.openChannel()
	noNlp := tc.openChannel(func(p *ChannelOpenParams) { p.EnableNlp = false })
	tap := tc.openChannel()
	tc.mustAdd(b1, c1)
	tc.mustAdd(b2, other)
	tc.mustAdd(b1, noNlp)
	tc.mustAdd(b1, tap, withTap(c1))

	tests := []struct {
		name    string
		bridge  uint32
		channel uint32
		status  Status
	}{
		{"other bridge", b1, other, StatusConfBridgeDominantSpeakerNotOnBridge},
		{"tap", b1, tap, StatusConfBridgeDominantSpeakerNotOnBridge},
		{"no NLP", b1, noNlp, StatusConfBridgeDominantSpeakerNlp},
		{"bad bridge", InvalidHandle, c1, StatusConfBridgeInvalidHandle},
		{"bad channel", b1, makeHandle(HandleTagChannel, 3, 0), StatusChannelInvalidHandle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, StatusOf(tc.setDominant(tt.bridge, tt.channel)))
		})
	}
	assert.Equal(t, StatusInvalidParams, StatusOf(tc.ConfBridgeDominantSpeakerSet(tc.ctx, nil)))

	off := newTestChip(t, func(p *ChipOpenParams) { p.DominantSpeakerEnabled = false })
	ob := off.openBridge(false)
	oc := off.openChannel()
	off.mustAdd(ob, oc)
	assert.Equal(t, StatusConfBridgeDominantSpeakerDisabled, StatusOf(off.setDominant(ob, oc)))
}
