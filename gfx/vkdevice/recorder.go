package vkdevice

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/forward/gfx"
)

func (d *Device) BeginCommandBuffer(buffer gfx.CommandBuffer) error {
	native, err := d.commandBuffers.get(buffer.Handle)
	if err != nil {
		return err
	}

	_, err = d.deviceDriver.BeginCommandBuffer(native, core1_0.CommandBufferBeginInfo{})
	return errors.Wrap(err, "begin command buffer")
}

func (d *Device) EndCommandBuffer(buffer gfx.CommandBuffer) error {
	native, err := d.commandBuffers.get(buffer.Handle)
	if err != nil {
		return err
	}

	_, err = d.deviceDriver.EndCommandBuffer(native)
	return errors.Wrap(err, "end command buffer")
}

func (d *Device) CmdBeginRenderPass(buffer gfx.CommandBuffer, info gfx.RenderPassBeginInfo) error {
	renderPass, err := d.renderPasses.get(info.RenderPass.Handle)
	if err != nil {
		return err
	}
	framebuffer, err := d.framebuffers.get(info.Framebuffer.Handle)
	if err != nil {
		return err
	}

	return d.deviceDriver.CmdBeginRenderPass(d.commandBuffers.lookup(buffer.Handle), core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  renderPass,
			Framebuffer: framebuffer,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: info.Extent,
			},
			ClearValues: info.ClearValues,
		})
}

func (d *Device) CmdEndRenderPass(buffer gfx.CommandBuffer) {
	d.deviceDriver.CmdEndRenderPass(d.commandBuffers.lookup(buffer.Handle))
}

func (d *Device) CmdBindPipeline(buffer gfx.CommandBuffer, pipeline gfx.GraphicsPipeline) {
	d.deviceDriver.CmdBindPipeline(d.commandBuffers.lookup(buffer.Handle), core1_0.PipelineBindPointGraphics, d.pipelines.lookup(pipeline.Handle))
}

func (d *Device) CmdBindVertexBuffers(buffer gfx.CommandBuffer, vertexBuffers ...gfx.Buffer) {
	natives := make([]core1_0.Buffer, 0, len(vertexBuffers))
	offsets := make([]int, 0, len(vertexBuffers))
	for _, vertexBuffer := range vertexBuffers {
		natives = append(natives, d.buffers.lookup(vertexBuffer.Handle))
		offsets = append(offsets, 0)
	}

	d.deviceDriver.CmdBindVertexBuffers(d.commandBuffers.lookup(buffer.Handle), 0, natives, offsets)
}

func (d *Device) CmdBindIndexBuffer(buffer gfx.CommandBuffer, indexBuffer gfx.Buffer, indexType core1_0.IndexType) {
	d.deviceDriver.CmdBindIndexBuffer(d.commandBuffers.lookup(buffer.Handle), d.buffers.lookup(indexBuffer.Handle), 0, indexType)
}

func (d *Device) CmdBindDescriptorSets(buffer gfx.CommandBuffer, layout gfx.PipelineLayout, sets ...gfx.DescriptorSet) {
	natives := make([]core1_0.DescriptorSet, 0, len(sets))
	for _, set := range sets {
		natives = append(natives, d.descriptorSets.lookup(set.Handle))
	}

	d.deviceDriver.CmdBindDescriptorSets(d.commandBuffers.lookup(buffer.Handle), core1_0.PipelineBindPointGraphics,
		d.pipelineLayouts.lookup(layout.Handle), 0, natives, nil)
}

func (d *Device) CmdDraw(buffer gfx.CommandBuffer, vertexCount, instanceCount int) {
	d.deviceDriver.CmdDraw(d.commandBuffers.lookup(buffer.Handle), vertexCount, instanceCount, 0, 0)
}

func (d *Device) CmdDrawIndexed(buffer gfx.CommandBuffer, indexCount, instanceCount int) {
	d.deviceDriver.CmdDrawIndexed(d.commandBuffers.lookup(buffer.Handle), indexCount, instanceCount, 0, 0, 0)
}
