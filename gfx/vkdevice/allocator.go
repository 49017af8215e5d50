package vkdevice

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/forward/gfx"
)

func (d *Device) warnUnknown(kind string, h gfx.Handle) {
	d.log.WithField("handle", h).Warnf("destroy of unknown %s", kind)
}

func (d *Device) CreateSwapchain(info gfx.SwapchainCreateInfo) (gfx.Swapchain, []gfx.Image, error) {
	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int

	if !d.queueFamilies.Shared() {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = append(queueFamilyIndices, *d.queueFamilies.GraphicsFamily, *d.queueFamilies.PresentFamily)
	}

	swapchain, _, err := d.swapchainExtension.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: d.surface,

		MinImageCount:    info.MinImageCount,
		ImageFormat:      info.Format.Format,
		ImageColorSpace:  info.Format.ColorSpace,
		ImageExtent:      info.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   info.Capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    info.PresentMode,
		Clipped:        true,
	})
	if err != nil {
		return gfx.Swapchain{}, nil, gfx.CreationFailure(err, "swapchain")
	}

	images, _, err := d.swapchainExtension.GetSwapchainImages(swapchain)
	if err != nil {
		d.swapchainExtension.DestroySwapchain(swapchain, nil)
		return gfx.Swapchain{}, nil, gfx.CreationFailure(err, "swapchain images")
	}

	entry := swapchainEntry{swapchain: swapchain}
	result := make([]gfx.Image, 0, len(images))
	for _, image := range images {
		h := d.images.put(imageEntry{image: image})
		entry.images = append(entry.images, h)
		result = append(result, gfx.Image{Handle: h})
	}

	return gfx.Swapchain{Handle: d.swapchains.put(entry)}, result, nil
}

func (d *Device) DestroySwapchain(swapchain gfx.Swapchain) {
	entry, ok := d.swapchains.take(swapchain.Handle)
	if !ok {
		d.warnUnknown("swapchain", swapchain.Handle)
		return
	}

	for _, image := range entry.images {
		d.images.take(image)
	}
	d.swapchainExtension.DestroySwapchain(entry.swapchain, nil)
}

func (d *Device) CreateImage(info gfx.ImageCreateInfo) (gfx.Image, gfx.Memory, error) {
	image, _, err := d.deviceDriver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  info.Width,
			Height: info.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        info.Format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         info.Usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return gfx.Image{}, gfx.Memory{}, gfx.CreationFailure(err, "image %dx%d", info.Width, info.Height)
	}

	memReqs := d.deviceDriver.GetImageMemoryRequirements(image)
	imageMemory, err := d.allocate(memReqs.Size, memReqs.MemoryTypeBits, info.Properties)
	if err != nil {
		d.deviceDriver.DestroyImage(image, nil)
		return gfx.Image{}, gfx.Memory{}, gfx.CreationFailure(err, "image memory")
	}

	_, err = d.deviceDriver.BindImageMemory(image, imageMemory, 0)
	if err != nil {
		d.deviceDriver.DestroyImage(image, nil)
		d.deviceDriver.FreeMemory(imageMemory, nil)
		return gfx.Image{}, gfx.Memory{}, gfx.CreationFailure(err, "bind image memory")
	}

	return gfx.Image{Handle: d.images.put(imageEntry{image: image, owned: true})},
		gfx.Memory{Handle: d.memories.put(imageMemory)},
		nil
}

func (d *Device) DestroyImage(image gfx.Image) {
	entry, ok := d.images.entries[image.Handle]
	if !ok || !entry.owned {
		d.warnUnknown("image", image.Handle)
		return
	}

	d.images.take(image.Handle)
	d.deviceDriver.DestroyImage(entry.image, nil)
}

func (d *Device) CreateImageView(info gfx.ImageViewCreateInfo) (gfx.ImageView, error) {
	entry, err := d.images.get(info.Image.Handle)
	if err != nil {
		return gfx.ImageView{}, gfx.CreationFailure(err, "image view")
	}

	imageView, _, err := d.deviceDriver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    entry.image,
		ViewType: core1_0.ImageViewType2D,
		Format:   info.Format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     info.Aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return gfx.ImageView{}, gfx.CreationFailure(err, "image view")
	}

	return gfx.ImageView{Handle: d.imageViews.put(imageView)}, nil
}

func (d *Device) DestroyImageView(view gfx.ImageView) {
	imageView, ok := d.imageViews.take(view.Handle)
	if !ok {
		d.warnUnknown("image view", view.Handle)
		return
	}
	d.deviceDriver.DestroyImageView(imageView, nil)
}

func (d *Device) allocate(size int, typeFilter uint32, properties core1_0.MemoryPropertyFlags) (core1_0.DeviceMemory, error) {
	memoryTypeIndex, err := d.findMemoryType(typeFilter, properties)
	if err != nil {
		return core1_0.DeviceMemory{}, err
	}

	memory, _, err := d.deviceDriver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	return memory, err
}

func (d *Device) CreateBuffer(info gfx.BufferCreateInfo) (gfx.Buffer, gfx.Memory, error) {
	buffer, _, err := d.deviceDriver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        info.Size,
		Usage:       info.Usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return gfx.Buffer{}, gfx.Memory{}, gfx.CreationFailure(err, "buffer of %d bytes", info.Size)
	}

	memRequirements := d.deviceDriver.GetBufferMemoryRequirements(buffer)
	memory, err := d.allocate(memRequirements.Size, memRequirements.MemoryTypeBits, info.Properties)
	if err != nil {
		d.deviceDriver.DestroyBuffer(buffer, nil)
		return gfx.Buffer{}, gfx.Memory{}, gfx.CreationFailure(err, "buffer memory of %d bytes", info.Size)
	}

	_, err = d.deviceDriver.BindBufferMemory(buffer, memory, 0)
	if err != nil {
		d.deviceDriver.DestroyBuffer(buffer, nil)
		d.deviceDriver.FreeMemory(memory, nil)
		return gfx.Buffer{}, gfx.Memory{}, gfx.CreationFailure(err, "bind buffer memory")
	}

	return gfx.Buffer{Handle: d.buffers.put(buffer)}, gfx.Memory{Handle: d.memories.put(memory)}, nil
}

func (d *Device) DestroyBuffer(buffer gfx.Buffer) {
	native, ok := d.buffers.take(buffer.Handle)
	if !ok {
		d.warnUnknown("buffer", buffer.Handle)
		return
	}
	d.deviceDriver.DestroyBuffer(native, nil)
}

func (d *Device) FreeMemory(memory gfx.Memory) {
	native, ok := d.memories.take(memory.Handle)
	if !ok {
		d.warnUnknown("memory", memory.Handle)
		return
	}
	d.deviceDriver.FreeMemory(native, nil)
}

func (d *Device) CreateRenderPass(info core1_0.RenderPassCreateInfo) (gfx.RenderPass, error) {
	renderPass, _, err := d.deviceDriver.CreateRenderPass(nil, info)
	if err != nil {
		return gfx.RenderPass{}, gfx.CreationFailure(err, "render pass")
	}
	return gfx.RenderPass{Handle: d.renderPasses.put(renderPass)}, nil
}

func (d *Device) DestroyRenderPass(renderPass gfx.RenderPass) {
	native, ok := d.renderPasses.take(renderPass.Handle)
	if !ok {
		d.warnUnknown("render pass", renderPass.Handle)
		return
	}
	d.deviceDriver.DestroyRenderPass(native, nil)
}

func (d *Device) CreateFramebuffer(info gfx.FramebufferCreateInfo) (gfx.Framebuffer, error) {
	renderPass, err := d.renderPasses.get(info.RenderPass.Handle)
	if err != nil {
		return gfx.Framebuffer{}, gfx.CreationFailure(err, "framebuffer")
	}

	attachments := make([]core1_0.ImageView, 0, len(info.Attachments))
	for _, view := range info.Attachments {
		imageView, err := d.imageViews.get(view.Handle)
		if err != nil {
			return gfx.Framebuffer{}, gfx.CreationFailure(err, "framebuffer attachment")
		}
		attachments = append(attachments, imageView)
	}

	framebuffer, _, err := d.deviceDriver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  renderPass,
		Layers:      1,
		Attachments: attachments,
		Width:       info.Width,
		Height:      info.Height,
	})
	if err != nil {
		return gfx.Framebuffer{}, gfx.CreationFailure(err, "framebuffer %dx%d", info.Width, info.Height)
	}

	return gfx.Framebuffer{Handle: d.framebuffers.put(framebuffer)}, nil
}

func (d *Device) DestroyFramebuffer(framebuffer gfx.Framebuffer) {
	native, ok := d.framebuffers.take(framebuffer.Handle)
	if !ok {
		d.warnUnknown("framebuffer", framebuffer.Handle)
		return
	}
	d.deviceDriver.DestroyFramebuffer(native, nil)
}

func (d *Device) CreateCommandPool() (gfx.CommandPool, error) {
	pool, _, err := d.deviceDriver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: *d.queueFamilies.GraphicsFamily,
	})
	if err != nil {
		return gfx.CommandPool{}, gfx.CreationFailure(err, "command pool")
	}
	return gfx.CommandPool{Handle: d.commandPools.put(pool)}, nil
}

func (d *Device) DestroyCommandPool(pool gfx.CommandPool) {
	native, ok := d.commandPools.take(pool.Handle)
	if !ok {
		d.warnUnknown("command pool", pool.Handle)
		return
	}
	d.deviceDriver.DestroyCommandPool(native, nil)
}

func (d *Device) AllocateCommandBuffers(pool gfx.CommandPool, count int) ([]gfx.CommandBuffer, error) {
	native, err := d.commandPools.get(pool.Handle)
	if err != nil {
		return nil, gfx.CreationFailure(err, "command buffers")
	}

	buffers, _, err := d.deviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        native,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, gfx.CreationFailure(err, "%d command buffers", count)
	}

	result := make([]gfx.CommandBuffer, 0, len(buffers))
	for _, buffer := range buffers {
		result = append(result, gfx.CommandBuffer{Handle: d.commandBuffers.put(buffer)})
	}
	return result, nil
}

func (d *Device) FreeCommandBuffers(_ gfx.CommandPool, buffers []gfx.CommandBuffer) {
	var natives []core1_0.CommandBuffer
	for _, buffer := range buffers {
		native, ok := d.commandBuffers.take(buffer.Handle)
		if !ok {
			d.warnUnknown("command buffer", buffer.Handle)
			continue
		}
		natives = append(natives, native)
	}

	if len(natives) > 0 {
		d.deviceDriver.FreeCommandBuffers(natives...)
	}
}

func (d *Device) CreateDescriptorSetLayout(info core1_0.DescriptorSetLayoutCreateInfo) (gfx.DescriptorSetLayout, error) {
	layout, _, err := d.deviceDriver.CreateDescriptorSetLayout(nil, info)
	if err != nil {
		return gfx.DescriptorSetLayout{}, gfx.CreationFailure(err, "descriptor set layout")
	}
	return gfx.DescriptorSetLayout{Handle: d.setLayouts.put(layout)}, nil
}

func (d *Device) DestroyDescriptorSetLayout(layout gfx.DescriptorSetLayout) {
	native, ok := d.setLayouts.take(layout.Handle)
	if !ok {
		d.warnUnknown("descriptor set layout", layout.Handle)
		return
	}
	d.deviceDriver.DestroyDescriptorSetLayout(native, nil)
}

func (d *Device) CreateDescriptorPool(info core1_0.DescriptorPoolCreateInfo) (gfx.DescriptorPool, error) {
	pool, _, err := d.deviceDriver.CreateDescriptorPool(nil, info)
	if err != nil {
		return gfx.DescriptorPool{}, gfx.CreationFailure(err, "descriptor pool of %d sets", info.MaxSets)
	}
	return gfx.DescriptorPool{Handle: d.descriptorPools.put(descriptorPoolEntry{pool: pool})}, nil
}

func (d *Device) DestroyDescriptorPool(pool gfx.DescriptorPool) {
	entry, ok := d.descriptorPools.take(pool.Handle)
	if !ok {
		d.warnUnknown("descriptor pool", pool.Handle)
		return
	}

	for _, set := range entry.sets {
		d.descriptorSets.take(set)
	}
	d.deviceDriver.DestroyDescriptorPool(entry.pool, nil)
}

func (d *Device) AllocateDescriptorSets(pool gfx.DescriptorPool, layouts []gfx.DescriptorSetLayout) ([]gfx.DescriptorSet, error) {
	entry, err := d.descriptorPools.get(pool.Handle)
	if err != nil {
		return nil, gfx.CreationFailure(err, "descriptor sets")
	}

	allocLayouts := make([]core1_0.DescriptorSetLayout, 0, len(layouts))
	for _, layout := range layouts {
		native, err := d.setLayouts.get(layout.Handle)
		if err != nil {
			return nil, gfx.CreationFailure(err, "descriptor sets")
		}
		allocLayouts = append(allocLayouts, native)
	}

	sets, _, err := d.deviceDriver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: entry.pool,
		SetLayouts:     allocLayouts,
	})
	if err != nil {
		return nil, gfx.CreationFailure(err, "%d descriptor sets", len(layouts))
	}

	result := make([]gfx.DescriptorSet, 0, len(sets))
	for _, set := range sets {
		h := d.descriptorSets.put(set)
		entry.sets = append(entry.sets, h)
		result = append(result, gfx.DescriptorSet{Handle: h})
	}
	d.descriptorPools.entries[pool.Handle] = entry

	return result, nil
}

func (d *Device) UpdateDescriptorSets(writes []gfx.DescriptorWrite) error {
	nativeWrites := make([]core1_0.WriteDescriptorSet, 0, len(writes))
	for _, write := range writes {
		set, err := d.descriptorSets.get(write.Set.Handle)
		if err != nil {
			return err
		}

		nativeWrite := core1_0.WriteDescriptorSet{
			DstSet:          set,
			DstBinding:      write.Binding,
			DstArrayElement: 0,

			DescriptorType: write.Type,
		}

		if write.Buffer.Initialized() {
			buffer, err := d.buffers.get(write.Buffer.Handle)
			if err != nil {
				return err
			}
			nativeWrite.BufferInfo = []core1_0.DescriptorBufferInfo{
				{
					Buffer: buffer,
					Offset: write.Offset,
					Range:  write.Range,
				},
			}
		} else {
			view, err := d.imageViews.get(write.ImageView.Handle)
			if err != nil {
				return err
			}
			sampler, err := d.samplers.get(write.Sampler.Handle)
			if err != nil {
				return err
			}
			nativeWrite.ImageInfo = []core1_0.DescriptorImageInfo{
				{
					ImageView:   view,
					Sampler:     sampler,
					ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
				},
			}
		}

		nativeWrites = append(nativeWrites, nativeWrite)
	}

	return errors.Wrap(d.deviceDriver.UpdateDescriptorSets(nativeWrites, nil), "update descriptor sets")
}

func (d *Device) CreatePipelineLayout(layouts []gfx.DescriptorSetLayout) (gfx.PipelineLayout, error) {
	setLayouts := make([]core1_0.DescriptorSetLayout, 0, len(layouts))
	for _, layout := range layouts {
		native, err := d.setLayouts.get(layout.Handle)
		if err != nil {
			return gfx.PipelineLayout{}, gfx.CreationFailure(err, "pipeline layout")
		}
		setLayouts = append(setLayouts, native)
	}

	pipelineLayout, _, err := d.deviceDriver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: setLayouts,
	})
	if err != nil {
		return gfx.PipelineLayout{}, gfx.CreationFailure(err, "pipeline layout")
	}
	return gfx.PipelineLayout{Handle: d.pipelineLayouts.put(pipelineLayout)}, nil
}

func (d *Device) DestroyPipelineLayout(layout gfx.PipelineLayout) {
	native, ok := d.pipelineLayouts.take(layout.Handle)
	if !ok {
		d.warnUnknown("pipeline layout", layout.Handle)
		return
	}
	d.deviceDriver.DestroyPipelineLayout(native, nil)
}

func (d *Device) CreateShaderModule(code []uint32) (gfx.ShaderModule, error) {
	module, _, err := d.deviceDriver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		return gfx.ShaderModule{}, gfx.CreationFailure(err, "shader module of %d words", len(code))
	}
	return gfx.ShaderModule{Handle: d.shaderModules.put(module)}, nil
}

func (d *Device) DestroyShaderModule(module gfx.ShaderModule) {
	native, ok := d.shaderModules.take(module.Handle)
	if !ok {
		d.warnUnknown("shader module", module.Handle)
		return
	}
	d.deviceDriver.DestroyShaderModule(native, nil)
}

func (d *Device) CreateSampler(info gfx.SamplerCreateInfo) (gfx.Sampler, error) {
	sampler, _, err := d.deviceDriver.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    info.Filter,
		MinFilter:    info.Filter,
		AddressModeU: info.AddressMode,
		AddressModeV: info.AddressMode,
		AddressModeW: info.AddressMode,

		AnisotropyEnable: true,
		MaxAnisotropy:    d.anisotropyLimit,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
		MinLod:     0,
		MaxLod:     0,
	})
	if err != nil {
		return gfx.Sampler{}, gfx.CreationFailure(err, "sampler")
	}
	return gfx.Sampler{Handle: d.samplers.put(sampler)}, nil
}

func (d *Device) DestroySampler(sampler gfx.Sampler) {
	native, ok := d.samplers.take(sampler.Handle)
	if !ok {
		d.warnUnknown("sampler", sampler.Handle)
		return
	}
	d.deviceDriver.DestroySampler(native, nil)
}

func (d *Device) CreateGraphicsPipeline(info gfx.GraphicsPipelineCreateInfo) (gfx.GraphicsPipeline, error) {
	layout, err := d.pipelineLayouts.get(info.Layout.Handle)
	if err != nil {
		return gfx.GraphicsPipeline{}, gfx.CreationFailure(err, "graphics pipeline")
	}
	renderPass, err := d.renderPasses.get(info.RenderPass.Handle)
	if err != nil {
		return gfx.GraphicsPipeline{}, gfx.CreationFailure(err, "graphics pipeline")
	}

	var stages []core1_0.PipelineShaderStageCreateInfo
	for _, stage := range info.Stages {
		module, err := d.shaderModules.get(stage.Module.Handle)
		if err != nil {
			return gfx.GraphicsPipeline{}, gfx.CreationFailure(err, "graphics pipeline")
		}

		stages = append(stages, core1_0.PipelineShaderStageCreateInfo{
			Stage:  stage.Stage,
			Module: module,
			Name:   "main",
		})
	}

	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions:   info.VertexBindings,
		VertexAttributeDescriptions: info.VertexAttributes,
	}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               core1_0.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: false,
	}

	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{
				X:        0,
				Y:        0,
				Width:    float32(info.Extent.Width),
				Height:   float32(info.Extent.Height),
				MinDepth: 0,
				MaxDepth: 1,
			},
		},
		Scissors: []core1_0.Rect2D{
			{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: info.Extent,
			},
		},
	}

	rasterization := &core1_0.PipelineRasterizationStateCreateInfo{
		DepthClampEnable:        false,
		RasterizerDiscardEnable: false,

		PolygonMode: core1_0.PolygonModeFill,
		CullMode:    core1_0.CullModeBack,
		FrontFace:   core1_0.FrontFaceCounterClockwise,

		DepthBiasEnable: false,

		LineWidth: 1.0,
	}

	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: core1_0.Samples1,
		MinSampleShading:     1.0,
	}

	depthStencil := &core1_0.PipelineDepthStencilStateCreateInfo{
		DepthTestEnable:  true,
		DepthWriteEnable: true,
		DepthCompareOp:   core1_0.CompareOpLess,
	}

	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		BlendConstants: [4]float32{0, 0, 0, 0},
		Attachments: []core1_0.PipelineColorBlendAttachmentState{
			{
				BlendEnabled:   false,
				ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
			},
		},
	}

	pipelines, _, err := d.deviceDriver.CreateGraphicsPipelines(nil, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages:             stages,
			VertexInputState:   vertexInput,
			InputAssemblyState: inputAssembly,
			ViewportState:      viewport,
			RasterizationState: rasterization,
			MultisampleState:   multisample,
			DepthStencilState:  depthStencil,
			ColorBlendState:    colorBlend,
			Layout:             layout,
			RenderPass:         renderPass,
			Subpass:            0,
			BasePipelineIndex:  -1,
		},
	)
	if err != nil {
		return gfx.GraphicsPipeline{}, gfx.CreationFailure(err, "graphics pipeline with %d stages", len(stages))
	}
	return gfx.GraphicsPipeline{Handle: d.pipelines.put(pipelines[0])}, nil
}

func (d *Device) DestroyGraphicsPipeline(pipeline gfx.GraphicsPipeline) {
	native, ok := d.pipelines.take(pipeline.Handle)
	if !ok {
		d.warnUnknown("graphics pipeline", pipeline.Handle)
		return
	}
	d.deviceDriver.DestroyPipeline(native, nil)
}
