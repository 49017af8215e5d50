package vkdevice

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/forward/gfx"
)

func (d *Device) WriteMemory(memory gfx.Memory, offset int, data []byte) error {
	native, err := d.memories.get(memory.Handle)
	if err != nil {
		return err
	}

	memoryPtr, _, err := d.deviceDriver.MapMemory(native, offset, len(data), 0)
	if err != nil {
		return errors.Wrapf(err, "map %d bytes at %d", len(data), offset)
	}
	defer d.deviceDriver.UnmapMemory(native)

	dataBuffer := unsafe.Slice((*byte)(memoryPtr), len(data))
	copy(dataBuffer, data)
	return nil
}

func (d *Device) beginSingleTimeCommands() (core1_0.CommandBuffer, error) {
	buffers, _, err := d.deviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        d.transferPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return core1_0.CommandBuffer{}, err
	}

	buffer := buffers[0]
	_, err = d.deviceDriver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		d.deviceDriver.FreeCommandBuffers(buffer)
		return core1_0.CommandBuffer{}, err
	}
	return buffer, nil
}

func (d *Device) endSingleTimeCommands(buffer core1_0.CommandBuffer) error {
	defer d.deviceDriver.FreeCommandBuffers(buffer)

	_, err := d.deviceDriver.EndCommandBuffer(buffer)
	if err != nil {
		return err
	}

	_, err = d.deviceDriver.QueueSubmit(d.graphicsQueue, nil,
		core1_0.SubmitInfo{
			CommandBuffers: []core1_0.CommandBuffer{buffer},
		},
	)
	if err != nil {
		return err
	}

	_, err = d.deviceDriver.QueueWaitIdle(d.graphicsQueue)
	return err
}

// singleTime records with record into a one-shot command buffer, submits it and
// waits for the graphics queue to drain.
func (d *Device) singleTime(record func(buffer core1_0.CommandBuffer) error) error {
	buffer, err := d.beginSingleTimeCommands()
	if err != nil {
		return err
	}

	err = record(buffer)
	if err != nil {
		_, _ = d.deviceDriver.EndCommandBuffer(buffer)
		d.deviceDriver.FreeCommandBuffers(buffer)
		return err
	}

	return d.endSingleTimeCommands(buffer)
}

func (d *Device) CopyBuffer(src, dst gfx.Buffer, size int) error {
	srcBuffer, err := d.buffers.get(src.Handle)
	if err != nil {
		return err
	}
	dstBuffer, err := d.buffers.get(dst.Handle)
	if err != nil {
		return err
	}

	err = d.singleTime(func(buffer core1_0.CommandBuffer) error {
		return d.deviceDriver.CmdCopyBuffer(buffer, srcBuffer, dstBuffer,
			core1_0.BufferCopy{
				SrcOffset: 0,
				DstOffset: 0,
				Size:      size,
			},
		)
	})
	return errors.Wrapf(err, "copy %d bytes", size)
}

func (d *Device) CopyBufferToImage(src gfx.Buffer, dst gfx.Image, width, height int) error {
	srcBuffer, err := d.buffers.get(src.Handle)
	if err != nil {
		return err
	}
	entry, err := d.images.get(dst.Handle)
	if err != nil {
		return err
	}

	err = d.singleTime(func(buffer core1_0.CommandBuffer) error {
		err := d.transitionImageLayout(buffer, entry.image, core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal)
		if err != nil {
			return err
		}

		err = d.deviceDriver.CmdCopyBufferToImage(buffer, srcBuffer, entry.image, core1_0.ImageLayoutTransferDstOptimal,
			core1_0.BufferImageCopy{
				BufferOffset:      0,
				BufferRowLength:   0,
				BufferImageHeight: 0,

				ImageSubresource: core1_0.ImageSubresourceLayers{
					AspectMask:     core1_0.ImageAspectColor,
					MipLevel:       0,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
				ImageExtent: core1_0.Extent3D{Width: width, Height: height, Depth: 1},
			},
		)
		if err != nil {
			return err
		}

		return d.transitionImageLayout(buffer, entry.image, core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal)
	})
	return errors.Wrapf(err, "upload %dx%d image", width, height)
}

func (d *Device) transitionImageLayout(buffer core1_0.CommandBuffer, image core1_0.Image, oldLayout core1_0.ImageLayout, newLayout core1_0.ImageLayout) error {
	var sourceStage, destStage core1_0.PipelineStageFlags
	var sourceAccess, destAccess core1_0.AccessFlags

	if oldLayout == core1_0.ImageLayoutUndefined && newLayout == core1_0.ImageLayoutTransferDstOptimal {
		sourceAccess = 0
		destAccess = core1_0.AccessTransferWrite
		sourceStage = core1_0.PipelineStageTopOfPipe
		destStage = core1_0.PipelineStageTransfer
	} else if oldLayout == core1_0.ImageLayoutTransferDstOptimal && newLayout == core1_0.ImageLayoutShaderReadOnlyOptimal {
		sourceAccess = core1_0.AccessTransferWrite
		destAccess = core1_0.AccessShaderRead
		sourceStage = core1_0.PipelineStageTransfer
		destStage = core1_0.PipelineStageFragmentShader
	} else {
		return errors.Newf("unexpected layout transition: %v -> %v", oldLayout, newLayout)
	}

	return d.deviceDriver.CmdPipelineBarrier(buffer, sourceStage, destStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           oldLayout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               image,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			SrcAccessMask: sourceAccess,
			DstAccessMask: destAccess,
		},
	})
}
