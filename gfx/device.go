package gfx

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

type QueueFamilyIndices struct {
	GraphicsFamily *int
	PresentFamily  *int
}

func (i *QueueFamilyIndices) IsComplete() bool {
	return i.GraphicsFamily != nil && i.PresentFamily != nil
}

// Shared reports whether graphics and present work run on the same queue family.
func (i *QueueFamilyIndices) Shared() bool {
	return i.IsComplete() && *i.GraphicsFamily == *i.PresentFamily
}

type SurfaceSupport struct {
	Capabilities *khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

type SwapchainCreateInfo struct {
	Capabilities  *khr_surface.SurfaceCapabilities
	MinImageCount int
	Format        khr_surface.SurfaceFormat
	PresentMode   khr_surface.PresentMode
	Extent        core1_0.Extent2D
}

type ImageCreateInfo struct {
	Width, Height int
	Format        core1_0.Format
	Usage         core1_0.ImageUsageFlags
	Properties    core1_0.MemoryPropertyFlags
}

type ImageViewCreateInfo struct {
	Image  Image
	Format core1_0.Format
	Aspect core1_0.ImageAspectFlags
}

type BufferCreateInfo struct {
	Size       int
	Usage      core1_0.BufferUsageFlags
	Properties core1_0.MemoryPropertyFlags
}

type FramebufferCreateInfo struct {
	RenderPass    RenderPass
	Attachments   []ImageView
	Width, Height int
}

type SamplerCreateInfo struct {
	Filter      core1_0.Filter
	AddressMode core1_0.SamplerAddressMode
}

// DescriptorWrite points one binding of a descriptor set at either a buffer range
// or an image/sampler pair, depending on Type.
type DescriptorWrite struct {
	Set     DescriptorSet
	Binding int
	Type    core1_0.DescriptorType

	Buffer Buffer
	Offset int
	Range  int

	ImageView ImageView
	Sampler   Sampler
}

type ShaderStage struct {
	Stage  core1_0.ShaderStageFlags
	Module ShaderModule
}

// GraphicsPipelineCreateInfo carries the parts of a graphics pipeline that vary
// between models. Fixed-function state (depth test, back-face culling, opaque
// blending) is filled in by the implementation.
type GraphicsPipelineCreateInfo struct {
	Layout     PipelineLayout
	RenderPass RenderPass
	Stages     []ShaderStage
	Extent     core1_0.Extent2D

	VertexBindings   []core1_0.VertexInputBindingDescription
	VertexAttributes []core1_0.VertexInputAttributeDescription
}

type RenderPassBeginInfo struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      core1_0.Extent2D
	ClearValues []core1_0.ClearValue
}

// Surface answers read-only questions about the presentation surface.
type Surface interface {
	SurfaceSupport() (SurfaceSupport, error)
	// DrawableExtent is the window's drawable size in pixels, used when the
	// surface leaves the swapchain extent up to the application.
	DrawableExtent() core1_0.Extent2D
	QueueFamilies() QueueFamilyIndices
	DepthFormat() (core1_0.Format, error)
	// StorageBufferAlignment is the minimum offset alignment, in bytes, for a
	// storage buffer range bound to a descriptor.
	StorageBufferAlignment() int
}

// Allocator creates and destroys native resources. Create calls either succeed
// completely or return an error marked ErrCreationFailure and leave nothing behind.
type Allocator interface {
	CreateSwapchain(info SwapchainCreateInfo) (Swapchain, []Image, error)
	DestroySwapchain(swapchain Swapchain)

	CreateImage(info ImageCreateInfo) (Image, Memory, error)
	DestroyImage(image Image)
	CreateImageView(info ImageViewCreateInfo) (ImageView, error)
	DestroyImageView(view ImageView)

	CreateBuffer(info BufferCreateInfo) (Buffer, Memory, error)
	DestroyBuffer(buffer Buffer)
	FreeMemory(memory Memory)

	// WriteMemory copies data into host-visible memory at offset.
	WriteMemory(memory Memory, offset int, data []byte) error
	// CopyBuffer copies size bytes between buffers and blocks until the transfer
	// has completed on the device.
	CopyBuffer(src, dst Buffer, size int) error
	// CopyBufferToImage uploads tightly packed RGBA pixels into image, leaving it
	// ready for sampling, and blocks until the transfer has completed.
	CopyBufferToImage(src Buffer, dst Image, width, height int) error

	CreateRenderPass(info core1_0.RenderPassCreateInfo) (RenderPass, error)
	DestroyRenderPass(renderPass RenderPass)
	CreateFramebuffer(info FramebufferCreateInfo) (Framebuffer, error)
	DestroyFramebuffer(framebuffer Framebuffer)

	CreateCommandPool() (CommandPool, error)
	DestroyCommandPool(pool CommandPool)
	AllocateCommandBuffers(pool CommandPool, count int) ([]CommandBuffer, error)
	FreeCommandBuffers(pool CommandPool, buffers []CommandBuffer)

	CreateDescriptorSetLayout(info core1_0.DescriptorSetLayoutCreateInfo) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout DescriptorSetLayout)
	CreateDescriptorPool(info core1_0.DescriptorPoolCreateInfo) (DescriptorPool, error)
	// DestroyDescriptorPool also frees every set allocated from the pool.
	DestroyDescriptorPool(pool DescriptorPool)
	AllocateDescriptorSets(pool DescriptorPool, layouts []DescriptorSetLayout) ([]DescriptorSet, error)
	UpdateDescriptorSets(writes []DescriptorWrite) error

	CreatePipelineLayout(layouts []DescriptorSetLayout) (PipelineLayout, error)
	DestroyPipelineLayout(layout PipelineLayout)
	CreateGraphicsPipeline(info GraphicsPipelineCreateInfo) (GraphicsPipeline, error)
	DestroyGraphicsPipeline(pipeline GraphicsPipeline)

	CreateShaderModule(code []uint32) (ShaderModule, error)
	DestroyShaderModule(module ShaderModule)
	CreateSampler(info SamplerCreateInfo) (Sampler, error)
	DestroySampler(sampler Sampler)
}

// Recorder emits commands into a command buffer. Recording calls never allocate
// native resources.
type Recorder interface {
	BeginCommandBuffer(buffer CommandBuffer) error
	EndCommandBuffer(buffer CommandBuffer) error
	CmdBeginRenderPass(buffer CommandBuffer, info RenderPassBeginInfo) error
	CmdEndRenderPass(buffer CommandBuffer)
	CmdBindPipeline(buffer CommandBuffer, pipeline GraphicsPipeline)
	CmdBindVertexBuffers(buffer CommandBuffer, vertexBuffers ...Buffer)
	CmdBindIndexBuffer(buffer CommandBuffer, indexBuffer Buffer, indexType core1_0.IndexType)
	CmdBindDescriptorSets(buffer CommandBuffer, layout PipelineLayout, sets ...DescriptorSet)
	CmdDraw(buffer CommandBuffer, vertexCount, instanceCount int)
	CmdDrawIndexed(buffer CommandBuffer, indexCount, instanceCount int)
}

// Device is everything the renderer needs from the native API.
type Device interface {
	Surface
	Allocator
	Recorder

	// WaitIdle blocks until every submitted command buffer has retired.
	WaitIdle() error
}
