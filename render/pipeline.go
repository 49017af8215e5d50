// Package render owns the swapchain-bound half of the renderer: the Pipeline that
// creates, rebuilds and releases every resource whose count or size follows the
// swapchain, and the Models whose draws it records.
//
// The package does not log. Every failure is returned to the caller.
package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/forward/gfx"
)

// State is where a Pipeline is in its build lifecycle.
type State int

const (
	// Uninitialized pipelines own nothing and may be built.
	Uninitialized State = iota
	// Built pipelines hold a complete swapchain-bound build and may render.
	Built
	// RebuildPending pipelines hold a partial or stale build that must be rebuilt,
	// released or destroyed before rendering.
	RebuildPending
	// Released pipelines own nothing and may be built again.
	Released
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Built:
		return "Built"
	case RebuildPending:
		return "RebuildPending"
	case Released:
		return "Released"
	}
	return "Unknown"
}

// Option configures a Pipeline at construction.
type Option func(*Pipeline)

// WithPreferredImageCount asks for count swapchain images instead of one more
// than the surface minimum. The surface bounds still apply.
func WithPreferredImageCount(count int) Option {
	return func(p *Pipeline) {
		p.preferredImageCount = count
	}
}

// WithMailbox presents in mailbox mode when the surface supports it.
func WithMailbox(enabled bool) Option {
	return func(p *Pipeline) {
		p.preferMailbox = enabled
	}
}

// WithClearColor sets the color the render pass clears each frame to.
func WithClearColor(r, g, b, a float32) Option {
	return func(p *Pipeline) {
		p.clearColor = core1_0.ClearValueFloat{r, g, b, a}
	}
}

// Pipeline owns the swapchain and every resource derived from it. It is driven
// from a single goroutine.
type Pipeline struct {
	device gfx.Device
	state  State

	preferredImageCount int
	preferMailbox       bool
	clearColor          core1_0.ClearValueFloat

	swapchain    swapchainState
	uniforms     uniformBufferSet
	renderPass   gfx.RenderPass
	depth        depthResource
	framebuffers framebufferSet
	commandPool  gfx.CommandPool
	commands     commandBufferSet
}

func NewPipeline(device gfx.Device, options ...Option) *Pipeline {
	p := &Pipeline{
		device:     device,
		clearColor: core1_0.ClearValueFloat{0, 0, 0, 1},
	}
	for _, option := range options {
		option(p)
	}
	return p
}

func (p *Pipeline) State() State {
	return p.state
}

// ImageCount is the number of swapchain images of the current build.
func (p *Pipeline) ImageCount() int {
	return p.swapchain.imageCount()
}

func (p *Pipeline) Extent() core1_0.Extent2D {
	return p.swapchain.extent
}

func (p *Pipeline) Swapchain() gfx.Swapchain {
	return p.swapchain.handle
}

// CommandBuffer returns the recorded command buffer that draws into swapchain
// image imageIndex.
func (p *Pipeline) CommandBuffer(imageIndex int) gfx.CommandBuffer {
	return p.commands.buffers[imageIndex]
}

func (p *Pipeline) CommandBuffers() []gfx.CommandBuffer {
	return append([]gfx.CommandBuffer(nil), p.commands.buffers...)
}

func (p *Pipeline) Framebuffers() []gfx.Framebuffer {
	return append([]gfx.Framebuffer(nil), p.framebuffers.framebuffers...)
}

func (p *Pipeline) FramebufferExtent() core1_0.Extent2D {
	return p.framebuffers.extent
}

func (p *Pipeline) UniformBuffers() []gfx.Buffer {
	return append([]gfx.Buffer(nil), p.uniforms.buffers...)
}

func (p *Pipeline) RenderPass() gfx.RenderPass {
	return p.renderPass
}

func (p *Pipeline) DepthExtent() core1_0.Extent2D {
	return p.depth.extent
}

// Build creates the swapchain and everything that depends on it, builds every
// model against it and records one command buffer per swapchain image. A
// failure that leaves resources behind moves the pipeline to RebuildPending; it
// must then be rebuilt, released or destroyed, and Build is refused.
func (p *Pipeline) Build(models []Drawable) error {
	if p.state != Uninitialized && p.state != Released {
		return errors.Wrapf(gfx.ErrInvalidState, "build from state %s", p.state)
	}

	err := p.build(models, false)
	if err != nil {
		if p.swapchain.handle.Initialized() {
			p.state = RebuildPending
		}
		return err
	}

	p.state = Built
	return nil
}

// Rebuild drains the device, releases the swapchain-bound resources and builds
// them again, giving every model the chance to reuse what does not depend on the
// swapchain. A zero surface extent returns ErrUnsupportedSurfaceState without
// touching the current build.
func (p *Pipeline) Rebuild(models []Drawable) error {
	if p.state != Built && p.state != RebuildPending {
		return errors.Wrapf(gfx.ErrInvalidState, "rebuild from state %s", p.state)
	}

	_, err := p.surfaceExtent()
	if err != nil {
		return err
	}

	p.state = RebuildPending

	err = p.device.WaitIdle()
	if err != nil {
		return errors.Wrap(err, "drain device before rebuild")
	}
	p.release()

	err = p.build(models, true)
	if err != nil {
		return err
	}

	p.state = Built
	return nil
}

// Release drains the device, releases every model's swapchain-bound resources
// and destroys everything the pipeline created. It pairs with Build: calling it
// again without an intervening Build returns ErrInvalidState.
func (p *Pipeline) Release(models []Drawable) error {
	if p.state != Built && p.state != RebuildPending {
		return errors.Wrapf(gfx.ErrInvalidState, "release from state %s", p.state)
	}

	err := p.device.WaitIdle()
	if err != nil {
		return errors.Wrap(err, "drain device before release")
	}

	imageCount := p.ImageCount()
	for _, model := range models {
		model.Release(imageCount)
	}

	p.release()
	p.destroyCommandPool()

	p.state = Released
	return nil
}

// Destroy drains the device and frees whatever the pipeline still owns, including
// the leftovers of a failed Build or Rebuild. Models are not touched.
func (p *Pipeline) Destroy() error {
	if p.state == Released {
		return nil
	}

	err := p.device.WaitIdle()
	if err != nil {
		return errors.Wrap(err, "drain device before destroy")
	}

	p.release()
	p.destroyCommandPool()

	p.state = Released
	return nil
}

// WriteUniforms stores ubo in the uniform buffer read by frame imageIndex. The
// caller must not write a slot whose previous submission is still executing.
func (p *Pipeline) WriteUniforms(imageIndex int, ubo UniformBufferObject) error {
	if p.state != Built {
		return errors.Wrapf(gfx.ErrInvalidState, "write uniforms in state %s", p.state)
	}
	if imageIndex < 0 || imageIndex >= len(p.uniforms.memories) {
		return errors.Newf("image index %d out of range [0, %d)", imageIndex, len(p.uniforms.memories))
	}

	payload, err := encode(&ubo)
	if err != nil {
		return err
	}
	return p.device.WriteMemory(p.uniforms.memories[imageIndex], 0, payload)
}

func (p *Pipeline) build(models []Drawable, rebuild bool) error {
	err := p.createSwapchain()
	if err != nil {
		return err
	}

	err = p.uniforms.create(p.device, p.ImageCount())
	if err != nil {
		return err
	}

	err = p.swapchain.createViews(p.device)
	if err != nil {
		return err
	}

	err = p.createRenderPass()
	if err != nil {
		return err
	}

	err = p.buildModels(models, rebuild)
	if err != nil {
		return err
	}

	err = p.depth.create(p.device, p.swapchain.extent)
	if err != nil {
		return err
	}

	err = p.framebuffers.create(p.device, p.renderPass, p.swapchain.views, p.depth.view, p.swapchain.extent)
	if err != nil {
		return err
	}

	err = p.createCommandPool()
	if err != nil {
		return err
	}

	err = p.commands.allocate(p.device, p.commandPool, p.ImageCount())
	if err != nil {
		return err
	}

	return p.recordCommandBuffers(models)
}

// release destroys the swapchain-bound resources in reverse dependency order.
// The command pool survives so a rebuild can allocate from it again.
func (p *Pipeline) release() {
	p.depth.destroy(p.device)
	p.framebuffers.destroy(p.device)
	p.commands.destroy(p.device)

	if p.renderPass.Initialized() {
		p.device.DestroyRenderPass(p.renderPass)
		p.renderPass = gfx.RenderPass{}
	}

	p.swapchain.destroy(p.device)
	p.uniforms.destroy(p.device)
}

func (p *Pipeline) surfaceExtent() (gfx.SurfaceSupport, error) {
	support, err := p.device.SurfaceSupport()
	if err != nil {
		return support, gfx.CreationFailure(err, "query surface support")
	}

	extent := gfx.ChooseExtent(support.Capabilities, p.device.DrawableExtent())
	if gfx.ZeroExtent(extent) {
		return support, errors.Wrapf(gfx.ErrUnsupportedSurfaceState, "surface extent %dx%d", extent.Width, extent.Height)
	}
	return support, nil
}

func (p *Pipeline) createSwapchain() error {
	support, err := p.surfaceExtent()
	if err != nil {
		return err
	}

	surfaceFormat, err := gfx.ChooseSurfaceFormat(support.Formats)
	if err != nil {
		return err
	}
	presentMode := gfx.ChoosePresentMode(support.PresentModes, p.preferMailbox)
	extent := gfx.ChooseExtent(support.Capabilities, p.device.DrawableExtent())
	imageCount := gfx.ChooseImageCount(support.Capabilities, p.preferredImageCount)

	swapchain, images, err := p.device.CreateSwapchain(gfx.SwapchainCreateInfo{
		Capabilities:  support.Capabilities,
		MinImageCount: imageCount,
		Format:        surfaceFormat,
		PresentMode:   presentMode,
		Extent:        extent,
	})
	if err != nil {
		return gfx.CreationFailure(err, "swapchain of %d images at %dx%d", imageCount, extent.Width, extent.Height)
	}

	p.swapchain = swapchainState{
		handle: swapchain,
		format: surfaceFormat.Format,
		extent: extent,
		images: images,
	}
	return nil
}

func (p *Pipeline) createRenderPass() error {
	depthFormat, err := p.device.DepthFormat()
	if err != nil {
		return gfx.CreationFailure(err, "depth format")
	}

	p.renderPass, err = p.device.CreateRenderPass(core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         p.swapchain.format,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
			{
				Format:         depthFormat,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpDontCare,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
				DepthStencilAttachment: &core1_0.AttachmentReference{
					Attachment: 1,
					Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				DstAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
			},
		},
	})
	if err != nil {
		return gfx.CreationFailure(err, "render pass")
	}
	return nil
}

func (p *Pipeline) buildModels(models []Drawable, rebuild bool) error {
	imageCount := p.ImageCount()
	for i, model := range models {
		var err error
		if rebuild {
			err = model.Rebuild(imageCount, p.uniforms.buffers, p.renderPass, p.swapchain.extent)
		} else {
			err = model.Build(imageCount, p.uniforms.buffers, p.renderPass, p.swapchain.extent)
		}
		if err != nil {
			return errors.Wrapf(err, "model %d", i)
		}
	}
	return nil
}

func (p *Pipeline) createCommandPool() error {
	if p.commandPool.Initialized() {
		return nil
	}

	var err error
	p.commandPool, err = p.device.CreateCommandPool()
	if err != nil {
		return gfx.CreationFailure(err, "command pool")
	}
	return nil
}

func (p *Pipeline) destroyCommandPool() {
	if p.commandPool.Initialized() {
		p.device.DestroyCommandPool(p.commandPool)
		p.commandPool = gfx.CommandPool{}
	}
}

func (p *Pipeline) recordCommandBuffers(models []Drawable) error {
	clearValues := []core1_0.ClearValue{
		p.clearColor,
		core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0},
	}

	for bufferIdx, buffer := range p.commands.buffers {
		err := p.device.BeginCommandBuffer(buffer)
		if err != nil {
			return gfx.CreationFailure(err, "begin command buffer %d", bufferIdx)
		}

		err = p.device.CmdBeginRenderPass(buffer, gfx.RenderPassBeginInfo{
			RenderPass:  p.renderPass,
			Framebuffer: p.framebuffers.framebuffers[bufferIdx],
			Extent:      p.swapchain.extent,
			ClearValues: clearValues,
		})
		if err != nil {
			return gfx.CreationFailure(err, "begin render pass %d", bufferIdx)
		}

		for _, model := range models {
			model.CommitRenderCommand(buffer, bufferIdx)
		}

		p.device.CmdEndRenderPass(buffer)

		err = p.device.EndCommandBuffer(buffer)
		if err != nil {
			return gfx.CreationFailure(err, "record command buffer %d", bufferIdx)
		}
	}

	return nil
}
