package render

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestInstanceArenaReusesSlots(t *testing.T) {
	var arena instanceArena

	first := arena.create()
	second := arena.create()
	require.Equal(t, 0, first.Slot())
	require.Equal(t, 1, second.Slot())
	require.Equal(t, 2, arena.live)

	require.NoError(t, arena.remove(first))
	require.Equal(t, 1, arena.live)
	require.Equal(t, 2, arena.slotCount())

	third := arena.create()
	require.Equal(t, first.Slot(), third.Slot())
	require.NotEqual(t, first, third)

	_, err := arena.lookup(first)
	require.True(t, errors.Is(err, ErrStaleInstance))
	_, err = arena.lookup(Instance{slot: 7})
	require.True(t, errors.Is(err, ErrStaleInstance))

	slot, err := arena.lookup(third)
	require.NoError(t, err)
	require.True(t, slot.visible)
	require.Equal(t, mgl32.Ident4(), slot.transform)
}

func TestInstanceArenaSnapshot(t *testing.T) {
	var arena instanceArena

	a := arena.create()
	b := arena.create()
	arena.create()

	slot, err := arena.lookup(a)
	require.NoError(t, err)
	slot.transform = mgl32.Scale3D(2, 2, 2)
	slot.visible = false
	require.NoError(t, arena.remove(b))

	out := make([]InstanceData, 4)
	arena.snapshot(out)

	require.Equal(t, mgl32.Scale3D(2, 2, 2), out[0].Transform)
	require.Zero(t, out[0].Params.X())
	require.Equal(t, mgl32.Ident4(), out[1].Transform)
	require.Zero(t, out[1].Params.X())
	require.Equal(t, float32(1), out[2].Params.X())
	// slots past the arena are padding
	require.Zero(t, out[3].Params.X())
}
