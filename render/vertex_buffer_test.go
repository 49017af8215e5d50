package render

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/forward/gfx"
	"github.com/vkngwrapper/forward/gfx/gfxtest"
)

func TestVertexBufferTransfer(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	buffer := NewVertexBuffer(device)
	buffer.Vertices = quadVertices
	buffer.Indices = quadIndices

	require.NoError(t, buffer.AllocateAndTransfer(len(quadVertices)))
	require.True(t, buffer.Allocated())
	require.True(t, buffer.Indexed())

	// staging buffers are gone once the copies complete
	require.Equal(t, 2, device.Live(gfxtest.KindBuffer))
	require.Equal(t, 2, device.Live(gfxtest.KindMemory))

	info := device.Buffers[buffer.vertexBuffer]
	require.Equal(t, core1_0.MemoryPropertyDeviceLocal, info.Properties)
	require.Equal(t, core1_0.BufferUsageTransferDst|core1_0.BufferUsageVertexBuffer, info.Usage)

	expected, err := encode(quadVertices)
	require.NoError(t, err)
	require.Equal(t, expected, device.Memory[buffer.vertexMemory])

	expected, err = encode(quadIndices)
	require.NoError(t, err)
	require.Equal(t, expected, device.Memory[buffer.indexMemory])

	err = buffer.AllocateAndTransfer(len(quadVertices))
	require.True(t, errors.Is(err, gfx.ErrInvalidState))

	buffer.Release()
	require.False(t, buffer.Allocated())
	for _, kind := range gfxtest.AllKinds {
		require.Equal(t, device.Created(kind), device.Destroyed(kind), "%s leaked", kind)
	}
	require.Empty(t, device.Faults)
}

func TestVertexBufferPartialTransfer(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	buffer := NewVertexBuffer(device)
	buffer.Vertices = quadVertices

	require.Error(t, buffer.AllocateAndTransfer(0))
	require.Error(t, buffer.AllocateAndTransfer(len(quadVertices)+1))

	require.NoError(t, buffer.AllocateAndTransfer(3))
	require.False(t, buffer.Indexed())
	require.Equal(t, 3*int(vertexSize()), device.Buffers[buffer.vertexBuffer].Size)
}

func TestVertexBufferRecordsNonIndexedDraw(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	pipeline := buildTestPipeline(t, device)

	model := NewModel(device)
	require.NoError(t, model.AddVertices(quadVertices[:3], nil))
	require.NoError(t, model.AddShader(core1_0.StageVertex, []uint32{1}))
	model.CreateInstance()

	require.NoError(t, pipeline.Rebuild([]Drawable{model}))
	for _, buffer := range pipeline.CommandBuffers() {
		require.Empty(t, device.CommandsNamed(buffer, "bind-index-buffer"))
		draw := device.CommandsNamed(buffer, "draw")
		require.Len(t, draw, 1)
		require.Equal(t, []int{3, 1}, draw[0].Counts)
	}
	require.Empty(t, device.Faults)
}

func TestVertexBufferTransferFailure(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	buffer := NewVertexBuffer(device)
	buffer.Vertices = quadVertices
	device.FailAfter(gfxtest.KindBuffer, 1)

	err := buffer.AllocateAndTransfer(len(quadVertices))
	require.True(t, errors.Is(err, gfx.ErrCreationFailure))
	require.False(t, buffer.Allocated())
	for _, kind := range gfxtest.AllKinds {
		require.Equal(t, device.Created(kind), device.Destroyed(kind), "%s leaked", kind)
	}
}

func vertexSize() uintptr {
	return uintptr(getVertexBindingDescription()[0].Stride)
}
