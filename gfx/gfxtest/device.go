// Package gfxtest provides an in-memory gfx.Device for GPU-free tests.
//
// The fake hands out unique handles, counts creations and destructions per
// resource kind, keeps the command stream recorded into every command buffer and
// reports misuse (double destroy, recording into freed buffers, allocating while
// recording) through Faults.
package gfxtest

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/forward/gfx"
)

type Kind string

const (
	KindSwapchain           Kind = "swapchain"
	KindImage               Kind = "image"
	KindImageView           Kind = "image-view"
	KindMemory              Kind = "memory"
	KindBuffer              Kind = "buffer"
	KindRenderPass          Kind = "render-pass"
	KindFramebuffer         Kind = "framebuffer"
	KindCommandPool         Kind = "command-pool"
	KindCommandBuffer       Kind = "command-buffer"
	KindDescriptorSetLayout Kind = "descriptor-set-layout"
	KindDescriptorPool      Kind = "descriptor-pool"
	KindDescriptorSet       Kind = "descriptor-set"
	KindPipelineLayout      Kind = "pipeline-layout"
	KindGraphicsPipeline    Kind = "graphics-pipeline"
	KindShaderModule        Kind = "shader-module"
	KindSampler             Kind = "sampler"

	// swapchain images are owned by their swapchain and never destroyed directly
	kindSwapchainImage Kind = "swapchain-image"
)

// AllKinds lists every kind a caller can create directly.
var AllKinds = []Kind{
	KindSwapchain, KindImage, KindImageView, KindMemory, KindBuffer, KindRenderPass,
	KindFramebuffer, KindCommandPool, KindCommandBuffer, KindDescriptorSetLayout,
	KindDescriptorPool, KindDescriptorSet, KindPipelineLayout, KindGraphicsPipeline,
	KindShaderModule, KindSampler,
}

const (
	OpCreate   = "create"
	OpDestroy  = "destroy"
	OpWaitIdle = "wait-idle"
)

type Event struct {
	Op     string
	Kind   Kind
	Handle gfx.Handle
}

// Command is one recorded command. Refs holds every handle the command reads.
type Command struct {
	Name   string
	Refs   []gfx.Handle
	Counts []int
}

type Device struct {
	Support  gfx.SurfaceSupport
	Drawable core1_0.Extent2D
	Families gfx.QueueFamilyIndices
	Depth    core1_0.Format

	// StorageAlignment is reported as the storage buffer offset alignment.
	StorageAlignment int

	Events []Event
	Faults []string

	Swapchains   map[gfx.Swapchain]gfx.SwapchainCreateInfo
	Images       map[gfx.Image]gfx.ImageCreateInfo
	Buffers      map[gfx.Buffer]gfx.BufferCreateInfo
	Framebuffers map[gfx.Framebuffer]gfx.FramebufferCreateInfo
	Pipelines    map[gfx.GraphicsPipeline]gfx.GraphicsPipelineCreateInfo
	Writes       map[gfx.DescriptorSet][]gfx.DescriptorWrite
	Memory       map[gfx.Memory][]byte
	Commands     map[gfx.CommandBuffer][]Command

	next         gfx.Handle
	kinds        map[gfx.Handle]Kind
	live         map[gfx.Handle]bool
	created      map[Kind]int
	destroyed    map[Kind]int
	failAfter    map[Kind]int
	bufferMemory map[gfx.Buffer]gfx.Memory
	hostVisible  map[gfx.Memory]bool
	poolSets     map[gfx.DescriptorPool][]gfx.DescriptorSet
	chainImages  map[gfx.Swapchain][]gfx.Image
	recording    map[gfx.CommandBuffer]bool
}

// NewDevice returns a fake whose surface reports the given extent, an image count
// range of [2, 3], a BGRA sRGB format and FIFO plus mailbox presentation.
func NewDevice(width, height int) *Device {
	graphics, present := 0, 0
	return &Device{
		Support: gfx.SurfaceSupport{
			Capabilities: &khr_surface.SurfaceCapabilities{
				MinImageCount:  2,
				MaxImageCount:  3,
				CurrentExtent:  core1_0.Extent2D{Width: width, Height: height},
				MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
				MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 4096},
			},
			Formats: []khr_surface.SurfaceFormat{
				{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
			},
			PresentModes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox},
		},
		Drawable: core1_0.Extent2D{Width: width, Height: height},
		Families: gfx.QueueFamilyIndices{GraphicsFamily: &graphics, PresentFamily: &present},
		Depth:    core1_0.FormatD32SignedFloat,

		StorageAlignment: 64,

		Swapchains:   make(map[gfx.Swapchain]gfx.SwapchainCreateInfo),
		Images:       make(map[gfx.Image]gfx.ImageCreateInfo),
		Buffers:      make(map[gfx.Buffer]gfx.BufferCreateInfo),
		Framebuffers: make(map[gfx.Framebuffer]gfx.FramebufferCreateInfo),
		Pipelines:    make(map[gfx.GraphicsPipeline]gfx.GraphicsPipelineCreateInfo),
		Writes:       make(map[gfx.DescriptorSet][]gfx.DescriptorWrite),
		Memory:       make(map[gfx.Memory][]byte),
		Commands:     make(map[gfx.CommandBuffer][]Command),

		kinds:        make(map[gfx.Handle]Kind),
		live:         make(map[gfx.Handle]bool),
		created:      make(map[Kind]int),
		destroyed:    make(map[Kind]int),
		failAfter:    make(map[Kind]int),
		bufferMemory: make(map[gfx.Buffer]gfx.Memory),
		hostVisible:  make(map[gfx.Memory]bool),
		poolSets:     make(map[gfx.DescriptorPool][]gfx.DescriptorSet),
		chainImages:  make(map[gfx.Swapchain][]gfx.Image),
		recording:    make(map[gfx.CommandBuffer]bool),
	}
}

// Resize changes the extent the surface reports.
func (d *Device) Resize(width, height int) {
	d.Support.Capabilities.CurrentExtent = core1_0.Extent2D{Width: width, Height: height}
	d.Drawable = core1_0.Extent2D{Width: width, Height: height}
}

// SetImageCountRange changes the surface's image count bounds. A max of zero
// means unbounded.
func (d *Device) SetImageCountRange(min, max int) {
	d.Support.Capabilities.MinImageCount = min
	d.Support.Capabilities.MaxImageCount = max
}

// FailAfter makes the creation of kind fail once n more creations of it succeeded.
func (d *Device) FailAfter(kind Kind, n int) {
	d.failAfter[kind] = n + 1
}

func (d *Device) Created(kind Kind) int   { return d.created[kind] }
func (d *Device) Destroyed(kind Kind) int { return d.destroyed[kind] }
func (d *Device) Live(kind Kind) int      { return d.created[kind] - d.destroyed[kind] }

// IsLive reports whether h was created and not yet destroyed.
func (d *Device) IsLive(h gfx.Handle) bool {
	return d.live[h]
}

// KindOf returns the kind h was created as.
func (d *Device) KindOf(h gfx.Handle) Kind {
	return d.kinds[h]
}

// Referenced returns every handle read by the commands recorded into buffer.
func (d *Device) Referenced(buffer gfx.CommandBuffer) []gfx.Handle {
	var refs []gfx.Handle
	for _, cmd := range d.Commands[buffer] {
		refs = append(refs, cmd.Refs...)
	}
	return refs
}

// CommandsNamed filters the stream recorded into buffer by command name.
func (d *Device) CommandsNamed(buffer gfx.CommandBuffer, name string) []Command {
	var out []Command
	for _, cmd := range d.Commands[buffer] {
		if cmd.Name == name {
			out = append(out, cmd)
		}
	}
	return out
}

// EventIndex returns the position of the first event matching op and kind after
// start, or -1. An empty kind matches any kind.
func (d *Device) EventIndex(start int, op string, kind Kind) int {
	for i := start; i < len(d.Events); i++ {
		if d.Events[i].Op == op && (kind == "" || d.Events[i].Kind == kind) {
			return i
		}
	}
	return -1
}

func (d *Device) fault(format string, args ...interface{}) {
	d.Faults = append(d.Faults, fmt.Sprintf(format, args...))
}

func (d *Device) create(kind Kind) (gfx.Handle, error) {
	for cb, active := range d.recording {
		if active {
			d.fault("%s created while recording command buffer %d", kind, cb.Handle)
		}
	}

	if remaining, ok := d.failAfter[kind]; ok {
		remaining--
		d.failAfter[kind] = remaining
		if remaining == 0 {
			delete(d.failAfter, kind)
			return 0, gfx.CreationFailure(errors.New("injected failure"), "create %s", kind)
		}
	}

	d.next++
	h := d.next
	d.kinds[h] = kind
	d.live[h] = true
	d.created[kind]++
	d.Events = append(d.Events, Event{Op: OpCreate, Kind: kind, Handle: h})
	return h, nil
}

func (d *Device) destroy(kind Kind, h gfx.Handle) bool {
	if !h.Initialized() {
		return false
	}
	if d.kinds[h] != kind {
		d.fault("destroy %s called on %s handle %d", kind, d.kinds[h], h)
		return false
	}
	if !d.live[h] {
		d.fault("%s %d destroyed twice", kind, h)
		return false
	}

	d.live[h] = false
	d.destroyed[kind]++
	d.Events = append(d.Events, Event{Op: OpDestroy, Kind: kind, Handle: h})
	return true
}

func (d *Device) requireLive(what string, handles ...gfx.Handle) {
	for _, h := range handles {
		if !d.live[h] {
			d.fault("%s uses dead or null handle %d", what, h)
		}
	}
}

func (d *Device) SurfaceSupport() (gfx.SurfaceSupport, error) {
	caps := *d.Support.Capabilities
	support := d.Support
	support.Capabilities = &caps
	return support, nil
}

func (d *Device) DrawableExtent() core1_0.Extent2D      { return d.Drawable }
func (d *Device) QueueFamilies() gfx.QueueFamilyIndices { return d.Families }
func (d *Device) DepthFormat() (core1_0.Format, error)  { return d.Depth, nil }
func (d *Device) StorageBufferAlignment() int           { return d.StorageAlignment }

func (d *Device) WaitIdle() error {
	d.Events = append(d.Events, Event{Op: OpWaitIdle})
	return nil
}

func (d *Device) CreateSwapchain(info gfx.SwapchainCreateInfo) (gfx.Swapchain, []gfx.Image, error) {
	caps := d.Support.Capabilities
	if info.MinImageCount < caps.MinImageCount || (caps.MaxImageCount > 0 && info.MinImageCount > caps.MaxImageCount) {
		d.fault("swapchain requested %d images outside [%d, %d]", info.MinImageCount, caps.MinImageCount, caps.MaxImageCount)
	}

	h, err := d.create(KindSwapchain)
	if err != nil {
		return gfx.Swapchain{}, nil, err
	}
	swapchain := gfx.Swapchain{Handle: h}
	d.Swapchains[swapchain] = info

	images := make([]gfx.Image, info.MinImageCount)
	for i := range images {
		d.next++
		images[i] = gfx.Image{Handle: d.next}
		d.kinds[d.next] = kindSwapchainImage
		d.live[d.next] = true
	}
	d.chainImages[swapchain] = images

	return swapchain, images, nil
}

func (d *Device) DestroySwapchain(swapchain gfx.Swapchain) {
	if d.destroy(KindSwapchain, swapchain.Handle) {
		for _, image := range d.chainImages[swapchain] {
			d.live[image.Handle] = false
		}
	}
}

func (d *Device) CreateImage(info gfx.ImageCreateInfo) (gfx.Image, gfx.Memory, error) {
	h, err := d.create(KindImage)
	if err != nil {
		return gfx.Image{}, gfx.Memory{}, err
	}
	m, err := d.create(KindMemory)
	if err != nil {
		d.destroy(KindImage, h)
		return gfx.Image{}, gfx.Memory{}, err
	}

	image := gfx.Image{Handle: h}
	d.Images[image] = info
	return image, gfx.Memory{Handle: m}, nil
}

func (d *Device) DestroyImage(image gfx.Image) { d.destroy(KindImage, image.Handle) }

func (d *Device) CreateImageView(info gfx.ImageViewCreateInfo) (gfx.ImageView, error) {
	d.requireLive("image view", info.Image.Handle)
	h, err := d.create(KindImageView)
	return gfx.ImageView{Handle: h}, err
}

func (d *Device) DestroyImageView(view gfx.ImageView) { d.destroy(KindImageView, view.Handle) }

func (d *Device) CreateBuffer(info gfx.BufferCreateInfo) (gfx.Buffer, gfx.Memory, error) {
	if info.Size <= 0 {
		d.fault("buffer created with size %d", info.Size)
	}

	h, err := d.create(KindBuffer)
	if err != nil {
		return gfx.Buffer{}, gfx.Memory{}, err
	}
	m, err := d.create(KindMemory)
	if err != nil {
		d.destroy(KindBuffer, h)
		return gfx.Buffer{}, gfx.Memory{}, err
	}

	buffer, memory := gfx.Buffer{Handle: h}, gfx.Memory{Handle: m}
	d.Buffers[buffer] = info
	d.bufferMemory[buffer] = memory
	d.hostVisible[memory] = info.Properties&core1_0.MemoryPropertyHostVisible != 0
	d.Memory[memory] = make([]byte, info.Size)
	return buffer, memory, nil
}

func (d *Device) DestroyBuffer(buffer gfx.Buffer) { d.destroy(KindBuffer, buffer.Handle) }
func (d *Device) FreeMemory(memory gfx.Memory)    { d.destroy(KindMemory, memory.Handle) }

func (d *Device) WriteMemory(memory gfx.Memory, offset int, data []byte) error {
	d.requireLive("write memory", memory.Handle)
	if !d.hostVisible[memory] {
		d.fault("write to memory %d that is not host visible", memory.Handle)
	}

	contents := d.Memory[memory]
	if offset < 0 || offset+len(data) > len(contents) {
		d.fault("write of %d bytes at %d overflows memory %d of %d bytes", len(data), offset, memory.Handle, len(contents))
		return errors.Newf("write out of bounds")
	}
	copy(contents[offset:], data)
	return nil
}

func (d *Device) CopyBuffer(src, dst gfx.Buffer, size int) error {
	d.requireLive("copy buffer", src.Handle, dst.Handle)
	from, to := d.Memory[d.bufferMemory[src]], d.Memory[d.bufferMemory[dst]]
	if size > len(from) || size > len(to) {
		d.fault("copy of %d bytes overflows buffers", size)
		return errors.Newf("copy out of bounds")
	}
	copy(to, from[:size])
	return nil
}

func (d *Device) CopyBufferToImage(src gfx.Buffer, dst gfx.Image, width, height int) error {
	d.requireLive("copy buffer to image", src.Handle, dst.Handle)
	if len(d.Memory[d.bufferMemory[src]]) < width*height*4 {
		d.fault("staging buffer too small for %dx%d image", width, height)
	}
	return nil
}

func (d *Device) CreateRenderPass(core1_0.RenderPassCreateInfo) (gfx.RenderPass, error) {
	h, err := d.create(KindRenderPass)
	return gfx.RenderPass{Handle: h}, err
}

func (d *Device) DestroyRenderPass(renderPass gfx.RenderPass) {
	d.destroy(KindRenderPass, renderPass.Handle)
}

func (d *Device) CreateFramebuffer(info gfx.FramebufferCreateInfo) (gfx.Framebuffer, error) {
	d.requireLive("framebuffer render pass", info.RenderPass.Handle)
	for _, view := range info.Attachments {
		d.requireLive("framebuffer attachment", view.Handle)
	}

	h, err := d.create(KindFramebuffer)
	if err != nil {
		return gfx.Framebuffer{}, err
	}
	framebuffer := gfx.Framebuffer{Handle: h}
	d.Framebuffers[framebuffer] = info
	return framebuffer, nil
}

func (d *Device) DestroyFramebuffer(framebuffer gfx.Framebuffer) {
	d.destroy(KindFramebuffer, framebuffer.Handle)
}

func (d *Device) CreateCommandPool() (gfx.CommandPool, error) {
	h, err := d.create(KindCommandPool)
	return gfx.CommandPool{Handle: h}, err
}

func (d *Device) DestroyCommandPool(pool gfx.CommandPool) {
	d.destroy(KindCommandPool, pool.Handle)
}

func (d *Device) AllocateCommandBuffers(pool gfx.CommandPool, count int) ([]gfx.CommandBuffer, error) {
	d.requireLive("allocate command buffers", pool.Handle)

	buffers := make([]gfx.CommandBuffer, 0, count)
	for i := 0; i < count; i++ {
		h, err := d.create(KindCommandBuffer)
		if err != nil {
			for _, buffer := range buffers {
				d.destroy(KindCommandBuffer, buffer.Handle)
			}
			return nil, err
		}
		buffers = append(buffers, gfx.CommandBuffer{Handle: h})
	}
	return buffers, nil
}

func (d *Device) FreeCommandBuffers(pool gfx.CommandPool, buffers []gfx.CommandBuffer) {
	d.requireLive("free command buffers", pool.Handle)
	for _, buffer := range buffers {
		d.destroy(KindCommandBuffer, buffer.Handle)
		delete(d.recording, buffer)
	}
}

func (d *Device) CreateDescriptorSetLayout(core1_0.DescriptorSetLayoutCreateInfo) (gfx.DescriptorSetLayout, error) {
	h, err := d.create(KindDescriptorSetLayout)
	return gfx.DescriptorSetLayout{Handle: h}, err
}

func (d *Device) DestroyDescriptorSetLayout(layout gfx.DescriptorSetLayout) {
	d.destroy(KindDescriptorSetLayout, layout.Handle)
}

func (d *Device) CreateDescriptorPool(core1_0.DescriptorPoolCreateInfo) (gfx.DescriptorPool, error) {
	h, err := d.create(KindDescriptorPool)
	return gfx.DescriptorPool{Handle: h}, err
}

func (d *Device) DestroyDescriptorPool(pool gfx.DescriptorPool) {
	if d.destroy(KindDescriptorPool, pool.Handle) {
		for _, set := range d.poolSets[pool] {
			d.destroy(KindDescriptorSet, set.Handle)
		}
		delete(d.poolSets, pool)
	}
}

func (d *Device) AllocateDescriptorSets(pool gfx.DescriptorPool, layouts []gfx.DescriptorSetLayout) ([]gfx.DescriptorSet, error) {
	d.requireLive("allocate descriptor sets", pool.Handle)

	sets := make([]gfx.DescriptorSet, 0, len(layouts))
	for _, layout := range layouts {
		d.requireLive("descriptor set layout", layout.Handle)
		h, err := d.create(KindDescriptorSet)
		if err != nil {
			for _, set := range sets {
				d.destroy(KindDescriptorSet, set.Handle)
			}
			return nil, err
		}
		sets = append(sets, gfx.DescriptorSet{Handle: h})
	}
	d.poolSets[pool] = append(d.poolSets[pool], sets...)
	return sets, nil
}

func (d *Device) UpdateDescriptorSets(writes []gfx.DescriptorWrite) error {
	for _, write := range writes {
		d.requireLive("descriptor write target", write.Set.Handle)
		if write.Buffer.Initialized() {
			d.requireLive("descriptor write buffer", write.Buffer.Handle)
			if size := d.Buffers[write.Buffer].Size; write.Offset+write.Range > size {
				d.fault("descriptor range [%d, %d) exceeds buffer of %d bytes", write.Offset, write.Offset+write.Range, size)
			}
		}
		if write.ImageView.Initialized() {
			d.requireLive("descriptor write image", write.ImageView.Handle, write.Sampler.Handle)
		}

		existing := d.Writes[write.Set]
		replaced := false
		for i := range existing {
			if existing[i].Binding == write.Binding {
				existing[i] = write
				replaced = true
			}
		}
		if !replaced {
			existing = append(existing, write)
		}
		d.Writes[write.Set] = existing
	}
	return nil
}

func (d *Device) CreatePipelineLayout(layouts []gfx.DescriptorSetLayout) (gfx.PipelineLayout, error) {
	for _, layout := range layouts {
		d.requireLive("pipeline layout", layout.Handle)
	}
	h, err := d.create(KindPipelineLayout)
	return gfx.PipelineLayout{Handle: h}, err
}

func (d *Device) DestroyPipelineLayout(layout gfx.PipelineLayout) {
	d.destroy(KindPipelineLayout, layout.Handle)
}

func (d *Device) CreateGraphicsPipeline(info gfx.GraphicsPipelineCreateInfo) (gfx.GraphicsPipeline, error) {
	d.requireLive("graphics pipeline", info.Layout.Handle, info.RenderPass.Handle)
	for _, stage := range info.Stages {
		d.requireLive("shader stage", stage.Module.Handle)
	}

	h, err := d.create(KindGraphicsPipeline)
	if err != nil {
		return gfx.GraphicsPipeline{}, err
	}
	pipeline := gfx.GraphicsPipeline{Handle: h}
	d.Pipelines[pipeline] = info
	return pipeline, nil
}

func (d *Device) DestroyGraphicsPipeline(pipeline gfx.GraphicsPipeline) {
	d.destroy(KindGraphicsPipeline, pipeline.Handle)
}

func (d *Device) CreateShaderModule(code []uint32) (gfx.ShaderModule, error) {
	if len(code) == 0 {
		d.fault("empty shader module")
	}
	h, err := d.create(KindShaderModule)
	return gfx.ShaderModule{Handle: h}, err
}

func (d *Device) DestroyShaderModule(module gfx.ShaderModule) {
	d.destroy(KindShaderModule, module.Handle)
}

func (d *Device) CreateSampler(gfx.SamplerCreateInfo) (gfx.Sampler, error) {
	h, err := d.create(KindSampler)
	return gfx.Sampler{Handle: h}, err
}

func (d *Device) DestroySampler(sampler gfx.Sampler) { d.destroy(KindSampler, sampler.Handle) }

func (d *Device) record(buffer gfx.CommandBuffer, cmd Command) {
	if !d.recording[buffer] {
		d.fault("%s recorded outside Begin/End on command buffer %d", cmd.Name, buffer.Handle)
		return
	}
	d.requireLive(cmd.Name, cmd.Refs...)
	d.Commands[buffer] = append(d.Commands[buffer], cmd)
}

func (d *Device) BeginCommandBuffer(buffer gfx.CommandBuffer) error {
	d.requireLive("begin command buffer", buffer.Handle)
	d.Commands[buffer] = nil
	d.recording[buffer] = true
	return nil
}

func (d *Device) EndCommandBuffer(buffer gfx.CommandBuffer) error {
	if !d.recording[buffer] {
		d.fault("end on command buffer %d that is not recording", buffer.Handle)
	}
	d.recording[buffer] = false
	return nil
}

func (d *Device) CmdBeginRenderPass(buffer gfx.CommandBuffer, info gfx.RenderPassBeginInfo) error {
	d.record(buffer, Command{
		Name:   "begin-render-pass",
		Refs:   []gfx.Handle{info.RenderPass.Handle, info.Framebuffer.Handle},
		Counts: []int{info.Extent.Width, info.Extent.Height},
	})
	return nil
}

func (d *Device) CmdEndRenderPass(buffer gfx.CommandBuffer) {
	d.record(buffer, Command{Name: "end-render-pass"})
}

func (d *Device) CmdBindPipeline(buffer gfx.CommandBuffer, pipeline gfx.GraphicsPipeline) {
	d.record(buffer, Command{Name: "bind-pipeline", Refs: []gfx.Handle{pipeline.Handle}})
}

func (d *Device) CmdBindVertexBuffers(buffer gfx.CommandBuffer, vertexBuffers ...gfx.Buffer) {
	cmd := Command{Name: "bind-vertex-buffers"}
	for _, vb := range vertexBuffers {
		cmd.Refs = append(cmd.Refs, vb.Handle)
	}
	d.record(buffer, cmd)
}

func (d *Device) CmdBindIndexBuffer(buffer gfx.CommandBuffer, indexBuffer gfx.Buffer, _ core1_0.IndexType) {
	d.record(buffer, Command{Name: "bind-index-buffer", Refs: []gfx.Handle{indexBuffer.Handle}})
}

func (d *Device) CmdBindDescriptorSets(buffer gfx.CommandBuffer, layout gfx.PipelineLayout, sets ...gfx.DescriptorSet) {
	cmd := Command{Name: "bind-descriptor-sets", Refs: []gfx.Handle{layout.Handle}}
	for _, set := range sets {
		cmd.Refs = append(cmd.Refs, set.Handle)
		// the descriptor set reads whatever its bindings point at
		for _, write := range d.Writes[set] {
			if write.Buffer.Initialized() {
				cmd.Refs = append(cmd.Refs, write.Buffer.Handle)
			}
			if write.ImageView.Initialized() {
				cmd.Refs = append(cmd.Refs, write.ImageView.Handle, write.Sampler.Handle)
			}
		}
	}
	d.record(buffer, cmd)
}

func (d *Device) CmdDraw(buffer gfx.CommandBuffer, vertexCount, instanceCount int) {
	d.record(buffer, Command{Name: "draw", Counts: []int{vertexCount, instanceCount}})
}

func (d *Device) CmdDrawIndexed(buffer gfx.CommandBuffer, indexCount, instanceCount int) {
	d.record(buffer, Command{Name: "draw-indexed", Counts: []int{indexCount, instanceCount}})
}

var _ gfx.Device = (*Device)(nil)
