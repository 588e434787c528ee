//go:build unit

package alloc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestReserveLowestFirst(t *testing.T) {
	p := New("test", 2, 4)

	idx, err := p.Reserve()
	require.NoError(t, err)
	assert.Equal(t, uint16(2), idx)
	assert.Equal(t, 3, p.Free())
	assert.Equal(t, 1, p.Used())
	assert.True(t, p.IsReserved(2))
	assert.False(t, p.IsReserved(3))
}

func TestReserveExhaustion(t *testing.T) {
	p := New("bridges", 0, 2)

	_, err := p.Reserve()
	require.NoError(t, err)
	_, err = p.Reserve()
	require.NoError(t, err)

	_, err = p.Reserve()
	assert.True(t, errors.Is(err, ErrAllSlotsOpen))
	assert.Contains(t, err.Error(), "bridges")
}

func TestReleaseErrors(t *testing.T) {
	p := New("events", 2, 4)

	tests := []struct {
		name string
		idx  uint16
		want error
	}{
		{"below range", 1, ErrOutOfRange},
		{"above range", 6, ErrOutOfRange},
		{"never reserved", 3, ErrNotReserved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Release(tt.idx)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDoubleRelease(t *testing.T) {
	p := New("events", 0, 1)
	idx, err := p.Reserve()
	require.NoError(t, err)

	require.NoError(t, p.Release(idx))
	assert.ErrorIs(t, p.Release(idx), ErrNotReserved)
	assert.Equal(t, 1, p.Free())
}

func TestPoolAccounting(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(1, 64).Draw(t, "size")
		p := New("prop", 5, size)
		held := map[uint16]bool{}

		steps := rapid.IntRange(0, 200).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(t, "reserve") || len(held) == 0 {
				idx, err := p.Reserve()
				if len(held) == size {
					assert.ErrorIs(t, err, ErrAllSlotsOpen)
					continue
				}
				require.NoError(t, err)
				assert.False(t, held[idx], "index %d handed out twice", idx)
				held[idx] = true
			} else {
				var victim uint16
				for k := range held {
					victim = k
					break
				}
				require.NoError(t, p.Release(victim))
				delete(held, victim)
			}
			assert.Equal(t, size-len(held), p.Free())
		}
	})
}
