package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raycs13/RealCasino/internal/model"
)

func TestSlotColorPartition(t *testing.T) {
	counts := map[model.Color]int{}
	for slot := 0; slot < model.NumSlots; slot++ {
		counts[model.ColorForSlot(slot)]++
	}
	assert.Equal(t, 1, counts[model.ColorGreen])
	assert.Equal(t, 7, counts[model.ColorRed])
	assert.Equal(t, 7, counts[model.ColorBlack])
}

func TestWheelResolveOncePerRound(t *testing.T) {
	w := NewWheel()
	w.spin = func() int { return 3 }

	first, err := w.Resolve(1)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Slot)
	assert.Equal(t, model.ColorRed, first.Color)

	// A second draw for the same round must fail and leave the original
	// outcome unchanged.
	w.spin = func() int { return 9 }
	second, err := w.Resolve(1)
	assert.ErrorIs(t, err, model.ErrAlreadyResolved)
	assert.Equal(t, first, second)
}

func TestWheelIndependentRounds(t *testing.T) {
	slots := []int{0, 8}
	i := 0
	w := NewWheel()
	w.spin = func() int { s := slots[i]; i++; return s }

	out1, err := w.Resolve(1)
	require.NoError(t, err)
	out2, err := w.Resolve(2)
	require.NoError(t, err)
	assert.Equal(t, model.ColorGreen, out1.Color)
	assert.Equal(t, model.ColorBlack, out2.Color)
}

func TestWheelRejectsOutOfRangeSlot(t *testing.T) {
	w := NewWheel()
	w.spin = func() int { return model.NumSlots }

	_, err := w.Resolve(1)
	require.Error(t, err)

	// The failed draw must not count as a resolution.
	w.spin = func() int { return 5 }
	out, err := w.Resolve(1)
	require.NoError(t, err)
	assert.Equal(t, 5, out.Slot)
}

func TestWheelForgetsRoundsBeyondHistory(t *testing.T) {
	w := NewWheel()
	w.spin = func() int { return 5 }
	for id := int64(1); id <= resolvedHistory+1; id++ {
		_, err := w.Resolve(id)
		require.NoError(t, err)
	}

	// Round 1 fell out of the window, so a replay draws fresh instead of
	// reporting the duplicate. Recent rounds are still detected.
	_, err := w.Resolve(1)
	require.NoError(t, err)
	_, err = w.Resolve(resolvedHistory + 1)
	assert.ErrorIs(t, err, model.ErrAlreadyResolved)
}

func TestWheelDrawInRange(t *testing.T) {
	w := NewWheel()
	for id := int64(1); id <= 100; id++ {
		out, err := w.Resolve(id)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, out.Slot, 0)
		assert.Less(t, out.Slot, model.NumSlots)
		assert.Equal(t, model.ColorForSlot(out.Slot), out.Color)
	}
}
