package vkdevice

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vkngwrapper/forward/gfx"
)

func TestTableHandlesAreUniqueAcrossKinds(t *testing.T) {
	var counter gfx.Handle
	names := newTable[string]("name", &counter)
	sizes := newTable[int]("size", &counter)

	a := names.put("a")
	b := sizes.put(4)
	c := names.put("c")

	require.True(t, a.Initialized())
	require.NotEqual(t, a, b)
	require.NotEqual(t, b, c)

	_, err := names.get(b)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown name handle")

	value, err := names.get(c)
	require.NoError(t, err)
	require.Equal(t, "c", value)
}

func TestTableTake(t *testing.T) {
	var counter gfx.Handle
	sizes := newTable[int]("size", &counter)

	h := sizes.put(16)
	require.Equal(t, 1, sizes.len())

	value, ok := sizes.take(h)
	require.True(t, ok)
	require.Equal(t, 16, value)

	_, ok = sizes.take(h)
	require.False(t, ok)
	require.Zero(t, sizes.lookup(h))
	require.Zero(t, sizes.len())
}
