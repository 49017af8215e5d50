package render

import (
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/forward/gfx"
)

// Every swapchain-bound resource lives in one of the wrappers below. Each wrapper
// owns its handles exclusively and destroy returns it to the zero value, so the
// pipeline's release is a fixed sequence of destroy calls in dependency order.

type swapchainState struct {
	handle gfx.Swapchain
	format core1_0.Format
	extent core1_0.Extent2D
	images []gfx.Image
	views  []gfx.ImageView
}

func (s *swapchainState) imageCount() int {
	return len(s.images)
}

func (s *swapchainState) createViews(device gfx.Allocator) error {
	for i, image := range s.images {
		view, err := device.CreateImageView(gfx.ImageViewCreateInfo{
			Image:  image,
			Format: s.format,
			Aspect: core1_0.ImageAspectColor,
		})
		if err != nil {
			return gfx.CreationFailure(err, "swapchain image view %d", i)
		}
		s.views = append(s.views, view)
	}
	return nil
}

func (s *swapchainState) destroyViews(device gfx.Allocator) {
	for _, view := range s.views {
		device.DestroyImageView(view)
	}
	s.views = nil
}

func (s *swapchainState) destroy(device gfx.Allocator) {
	s.destroyViews(device)
	if s.handle.Initialized() {
		device.DestroySwapchain(s.handle)
	}
	*s = swapchainState{}
}

type depthResource struct {
	image  gfx.Image
	memory gfx.Memory
	view   gfx.ImageView
	extent core1_0.Extent2D
}

func (d *depthResource) create(device gfx.Device, extent core1_0.Extent2D) error {
	format, err := device.DepthFormat()
	if err != nil {
		return gfx.CreationFailure(err, "depth format")
	}

	d.image, d.memory, err = device.CreateImage(gfx.ImageCreateInfo{
		Width:      extent.Width,
		Height:     extent.Height,
		Format:     format,
		Usage:      core1_0.ImageUsageDepthStencilAttachment,
		Properties: core1_0.MemoryPropertyDeviceLocal,
	})
	if err != nil {
		return gfx.CreationFailure(err, "depth image %dx%d", extent.Width, extent.Height)
	}

	d.view, err = device.CreateImageView(gfx.ImageViewCreateInfo{
		Image:  d.image,
		Format: format,
		Aspect: core1_0.ImageAspectDepth,
	})
	if err != nil {
		return gfx.CreationFailure(err, "depth image view")
	}

	d.extent = extent
	return nil
}

func (d *depthResource) destroy(device gfx.Allocator) {
	if d.view.Initialized() {
		device.DestroyImageView(d.view)
	}
	if d.image.Initialized() {
		device.DestroyImage(d.image)
	}
	if d.memory.Initialized() {
		device.FreeMemory(d.memory)
	}
	*d = depthResource{}
}

type uniformBufferSet struct {
	buffers  []gfx.Buffer
	memories []gfx.Memory
}

func (u *uniformBufferSet) create(device gfx.Allocator, count int) error {
	for i := 0; i < count; i++ {
		buffer, memory, err := device.CreateBuffer(gfx.BufferCreateInfo{
			Size:       uniformBufferSize,
			Usage:      core1_0.BufferUsageUniformBuffer,
			Properties: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
		})
		if err != nil {
			return gfx.CreationFailure(err, "uniform buffer %d", i)
		}

		u.buffers = append(u.buffers, buffer)
		u.memories = append(u.memories, memory)
	}
	return nil
}

func (u *uniformBufferSet) destroy(device gfx.Allocator) {
	for _, buffer := range u.buffers {
		device.DestroyBuffer(buffer)
	}
	for _, memory := range u.memories {
		device.FreeMemory(memory)
	}
	*u = uniformBufferSet{}
}

type framebufferSet struct {
	framebuffers []gfx.Framebuffer
	extent       core1_0.Extent2D
}

func (f *framebufferSet) create(device gfx.Allocator, renderPass gfx.RenderPass, views []gfx.ImageView, depth gfx.ImageView, extent core1_0.Extent2D) error {
	for i, view := range views {
		framebuffer, err := device.CreateFramebuffer(gfx.FramebufferCreateInfo{
			RenderPass:  renderPass,
			Attachments: []gfx.ImageView{view, depth},
			Width:       extent.Width,
			Height:      extent.Height,
		})
		if err != nil {
			return gfx.CreationFailure(err, "framebuffer %d", i)
		}

		f.framebuffers = append(f.framebuffers, framebuffer)
	}
	f.extent = extent
	return nil
}

func (f *framebufferSet) destroy(device gfx.Allocator) {
	for _, framebuffer := range f.framebuffers {
		device.DestroyFramebuffer(framebuffer)
	}
	*f = framebufferSet{}
}

type commandBufferSet struct {
	pool    gfx.CommandPool
	buffers []gfx.CommandBuffer
}

func (c *commandBufferSet) allocate(device gfx.Allocator, pool gfx.CommandPool, count int) error {
	buffers, err := device.AllocateCommandBuffers(pool, count)
	if err != nil {
		return gfx.CreationFailure(err, "%d command buffers", count)
	}

	c.pool = pool
	c.buffers = buffers
	return nil
}

// destroy frees the buffers back to their pool. The pool itself outlives a
// rebuild and is destroyed separately.
func (c *commandBufferSet) destroy(device gfx.Allocator) {
	if len(c.buffers) > 0 {
		device.FreeCommandBuffers(c.pool, c.buffers)
	}
	*c = commandBufferSet{}
}
