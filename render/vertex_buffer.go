package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/forward/gfx"
)

// VertexBuffer holds one model's geometry in device-local memory. Its lifetime is
// independent of the swapchain: rebuilds never touch it.
type VertexBuffer struct {
	device gfx.Allocator

	Vertices []Vertex
	Indices  []uint32

	vertexBuffer gfx.Buffer
	vertexMemory gfx.Memory
	indexBuffer  gfx.Buffer
	indexMemory  gfx.Memory
	vertexCount  int
	indexCount   int
}

func NewVertexBuffer(device gfx.Allocator) *VertexBuffer {
	return &VertexBuffer{device: device}
}

// Allocated reports whether the geometry currently lives on the device.
func (b *VertexBuffer) Allocated() bool {
	return b.vertexBuffer.Initialized()
}

// Indexed reports whether the uploaded geometry carries an index buffer.
func (b *VertexBuffer) Indexed() bool {
	return b.indexBuffer.Initialized()
}

// AllocateAndTransfer uploads the first n vertices, and every index when indices
// are present, into device-local buffers. It blocks until the copies complete.
func (b *VertexBuffer) AllocateAndTransfer(n int) error {
	if b.Allocated() {
		return errors.Wrap(gfx.ErrInvalidState, "vertex buffer already allocated")
	}
	if n <= 0 || n > len(b.Vertices) {
		return errors.Newf("cannot transfer %d of %d vertices", n, len(b.Vertices))
	}

	var err error
	b.vertexBuffer, b.vertexMemory, err = b.stageAndCopy(b.Vertices[:n], core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return errors.Wrap(err, "vertex buffer")
	}
	b.vertexCount = n

	if len(b.Indices) == 0 {
		return nil
	}

	b.indexBuffer, b.indexMemory, err = b.stageAndCopy(b.Indices, core1_0.BufferUsageIndexBuffer)
	if err != nil {
		return errors.Wrap(err, "index buffer")
	}
	b.indexCount = len(b.Indices)

	return nil
}

func (b *VertexBuffer) stageAndCopy(data any, usage core1_0.BufferUsageFlags) (gfx.Buffer, gfx.Memory, error) {
	payload, err := encode(data)
	if err != nil {
		return gfx.Buffer{}, gfx.Memory{}, err
	}
	bufferSize := len(payload)

	stagingBuffer, stagingMemory, err := b.device.CreateBuffer(gfx.BufferCreateInfo{
		Size:       bufferSize,
		Usage:      core1_0.BufferUsageTransferSrc,
		Properties: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
	})
	if err != nil {
		return gfx.Buffer{}, gfx.Memory{}, gfx.CreationFailure(err, "staging buffer of %d bytes", bufferSize)
	}
	defer b.device.FreeMemory(stagingMemory)
	defer b.device.DestroyBuffer(stagingBuffer)

	err = b.device.WriteMemory(stagingMemory, 0, payload)
	if err != nil {
		return gfx.Buffer{}, gfx.Memory{}, err
	}

	buffer, memory, err := b.device.CreateBuffer(gfx.BufferCreateInfo{
		Size:       bufferSize,
		Usage:      core1_0.BufferUsageTransferDst | usage,
		Properties: core1_0.MemoryPropertyDeviceLocal,
	})
	if err != nil {
		return gfx.Buffer{}, gfx.Memory{}, gfx.CreationFailure(err, "device buffer of %d bytes", bufferSize)
	}

	err = b.device.CopyBuffer(stagingBuffer, buffer, bufferSize)
	if err != nil {
		b.device.DestroyBuffer(buffer)
		b.device.FreeMemory(memory)
		return gfx.Buffer{}, gfx.Memory{}, err
	}

	return buffer, memory, nil
}

// Release frees both device buffers. The host-side geometry is kept so the buffer
// can be transferred again.
func (b *VertexBuffer) Release() {
	if b.indexBuffer.Initialized() {
		b.device.DestroyBuffer(b.indexBuffer)
	}
	if b.indexMemory.Initialized() {
		b.device.FreeMemory(b.indexMemory)
	}
	if b.vertexBuffer.Initialized() {
		b.device.DestroyBuffer(b.vertexBuffer)
	}
	if b.vertexMemory.Initialized() {
		b.device.FreeMemory(b.vertexMemory)
	}

	b.vertexBuffer, b.vertexMemory = gfx.Buffer{}, gfx.Memory{}
	b.indexBuffer, b.indexMemory = gfx.Buffer{}, gfx.Memory{}
	b.vertexCount, b.indexCount = 0, 0
}

// record binds the geometry and draws instanceCount copies of it.
func (b *VertexBuffer) record(recorder gfx.Recorder, buffer gfx.CommandBuffer, instanceCount int) {
	recorder.CmdBindVertexBuffers(buffer, b.vertexBuffer)
	if b.Indexed() {
		recorder.CmdBindIndexBuffer(buffer, b.indexBuffer, core1_0.IndexTypeUInt32)
		recorder.CmdDrawIndexed(buffer, b.indexCount, instanceCount)
		return
	}
	recorder.CmdDraw(buffer, b.vertexCount, instanceCount)
}
