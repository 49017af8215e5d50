package render

import (
	"image"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/forward/gfx"
)

// Drawable is what the Pipeline drives for every registered model.
type Drawable interface {
	// Build allocates everything the drawable needs for imageCount swapchain
	// images drawn into renderPass at extent.
	Build(imageCount int, uniformBuffers []gfx.Buffer, renderPass gfx.RenderPass, extent core1_0.Extent2D) error
	// Rebuild is Build after the swapchain was recreated. Resources that do not
	// depend on the swapchain are reused.
	Rebuild(imageCount int, uniformBuffers []gfx.Buffer, renderPass gfx.RenderPass, extent core1_0.Extent2D) error
	// Release frees the resources sized by the image count or the extent.
	Release(imageCount int)
	// CommitRenderCommand records the drawable's draw into an open render pass.
	CommitRenderCommand(buffer gfx.CommandBuffer, imageIndex int)
	// Update refreshes the per-frame data read by imageIndex's descriptor set.
	Update(imageIndex int) error
}

const (
	uniformBinding  = 0
	instanceBinding = 1
	textureBinding  = 2
)

// Model is one drawable asset: geometry, shaders and an optional texture, drawn
// once per live instance.
type Model struct {
	id     uuid.UUID
	device gfx.Device

	geometry  *VertexBuffer
	shaders   []gfx.ShaderStage
	texture   *Texture
	instances instanceArena

	descriptorSetLayout gfx.DescriptorSetLayout
	pipelineLayout      gfx.PipelineLayout
	graphicsPipeline    gfx.GraphicsPipeline

	descriptorPool gfx.DescriptorPool
	descriptorSets []gfx.DescriptorSet

	instanceBuffer gfx.Buffer
	instanceMemory gfx.Memory
	capacity       int
	stride         int
	imageCount     int
	frame          []InstanceData
}

var _ Drawable = (*Model)(nil)

func NewModel(device gfx.Device) *Model {
	return &Model{
		id:       uuid.New(),
		device:   device,
		geometry: NewVertexBuffer(device),
	}
}

func (m *Model) ID() uuid.UUID {
	return m.id
}

// AddVertices sets the model's geometry. indices may be nil for non-indexed
// drawing. Geometry can only change before the first build.
func (m *Model) AddVertices(vertices []Vertex, indices []uint32) error {
	if m.geometry.Allocated() {
		return errors.Wrapf(gfx.ErrInvalidState, "model %s: geometry already on the device", m.id)
	}

	m.geometry.Vertices = append(m.geometry.Vertices, vertices...)
	m.geometry.Indices = append(m.geometry.Indices, indices...)
	return nil
}

// AddShader creates a shader module from SPIR-V words for the given stage.
func (m *Model) AddShader(stage core1_0.ShaderStageFlags, code []uint32) error {
	if len(code) == 0 {
		return errors.Newf("model %s: empty shader code for stage %v", m.id, stage)
	}

	module, err := m.device.CreateShaderModule(code)
	if err != nil {
		return gfx.CreationFailure(err, "model %s: shader module", m.id)
	}

	m.shaders = append(m.shaders, gfx.ShaderStage{Stage: stage, Module: module})
	return nil
}

// SetTexture uploads source as the model's texture. It must be called before
// the first build, because the descriptor layout depends on it.
func (m *Model) SetTexture(source image.Image, mode SamplingMode) error {
	if m.descriptorSetLayout.Initialized() {
		return errors.Wrapf(gfx.ErrInvalidState, "model %s: texture set after build", m.id)
	}

	texture, err := newTexture(m.device, source, mode)
	if err != nil {
		return errors.Wrapf(err, "model %s", m.id)
	}

	if m.texture != nil {
		m.texture.destroy(m.device)
	}
	m.texture = texture
	return nil
}

// CreateInstance adds a visible instance with an identity transform. When the
// new instance does not fit the instance buffer of the current build, the model
// reports NeedsRebuild and the instance is drawn after the next rebuild.
func (m *Model) CreateInstance() Instance {
	return m.instances.create()
}

// DeleteInstance frees inst. Handles to other instances remain valid.
func (m *Model) DeleteInstance(inst Instance) error {
	return m.instances.remove(inst)
}

func (m *Model) SetTransform(inst Instance, transform mgl32.Mat4) error {
	slot, err := m.instances.lookup(inst)
	if err != nil {
		return err
	}
	slot.transform = transform
	return nil
}

func (m *Model) Transform(inst Instance) (mgl32.Mat4, error) {
	slot, err := m.instances.lookup(inst)
	if err != nil {
		return mgl32.Mat4{}, err
	}
	return slot.transform, nil
}

func (m *Model) SetVisible(inst Instance, visible bool) error {
	slot, err := m.instances.lookup(inst)
	if err != nil {
		return err
	}
	slot.visible = visible
	return nil
}

// InstanceCount is the number of live instances.
func (m *Model) InstanceCount() int {
	return m.instances.live
}

// Capacity is the number of instance slots the current build draws.
func (m *Model) Capacity() int {
	return m.capacity
}

// NeedsRebuild reports whether live instances no longer fit the instance buffer.
func (m *Model) NeedsRebuild() bool {
	return m.built() && m.instances.slotCount() > m.capacity
}

func (m *Model) ImageCount() int {
	return m.imageCount
}

func (m *Model) DescriptorSets() []gfx.DescriptorSet {
	return append([]gfx.DescriptorSet(nil), m.descriptorSets...)
}

func (m *Model) GraphicsPipeline() gfx.GraphicsPipeline {
	return m.graphicsPipeline
}

func (m *Model) built() bool {
	return len(m.descriptorSets) > 0
}

func (m *Model) Build(imageCount int, uniformBuffers []gfx.Buffer, renderPass gfx.RenderPass, extent core1_0.Extent2D) error {
	if m.built() {
		return errors.Wrapf(gfx.ErrInvalidState, "model %s: already built", m.id)
	}
	err := m.checkBuildArguments(imageCount, uniformBuffers)
	if err != nil {
		return err
	}

	if !m.geometry.Allocated() {
		err = m.geometry.AllocateAndTransfer(len(m.geometry.Vertices))
		if err != nil {
			return errors.Wrapf(err, "model %s", m.id)
		}
	}

	err = m.createLayouts()
	if err != nil {
		return err
	}

	err = m.createInstanceBuffer(imageCount)
	if err != nil {
		return err
	}

	err = m.createDescriptorSets(imageCount)
	if err != nil {
		return err
	}

	err = m.writeDescriptorSets(uniformBuffers)
	if err != nil {
		return err
	}

	err = m.createGraphicsPipeline(renderPass, extent)
	if err != nil {
		return err
	}

	m.imageCount = imageCount
	return nil
}

// Rebuild recreates the extent-dependent graphics pipeline. Descriptor sets and
// the instance buffer are reallocated only when the image count changed or the
// instances outgrew the buffer; otherwise the existing sets are pointed at the
// new uniform buffers.
func (m *Model) Rebuild(imageCount int, uniformBuffers []gfx.Buffer, renderPass gfx.RenderPass, extent core1_0.Extent2D) error {
	if !m.built() {
		return m.Build(imageCount, uniformBuffers, renderPass, extent)
	}
	err := m.checkBuildArguments(imageCount, uniformBuffers)
	if err != nil {
		return err
	}

	m.destroyGraphicsPipeline()

	if imageCount != m.imageCount || m.NeedsRebuild() {
		m.destroyDescriptorSets()
		m.destroyInstanceBuffer()

		err = m.createInstanceBuffer(imageCount)
		if err != nil {
			return err
		}

		err = m.createDescriptorSets(imageCount)
		if err != nil {
			return err
		}
	}

	err = m.writeDescriptorSets(uniformBuffers)
	if err != nil {
		return err
	}

	err = m.createGraphicsPipeline(renderPass, extent)
	if err != nil {
		return err
	}

	m.imageCount = imageCount
	return nil
}

// Release frees the graphics pipeline, the descriptor sets and the instance
// buffer. Geometry, shaders, texture and layouts stay until Destroy.
func (m *Model) Release(int) {
	m.destroyGraphicsPipeline()
	m.destroyDescriptorSets()
	m.destroyInstanceBuffer()
	m.imageCount = 0
}

// Destroy frees everything the model owns. The device must be idle.
func (m *Model) Destroy() {
	m.Release(m.imageCount)

	if m.pipelineLayout.Initialized() {
		m.device.DestroyPipelineLayout(m.pipelineLayout)
		m.pipelineLayout = gfx.PipelineLayout{}
	}
	if m.descriptorSetLayout.Initialized() {
		m.device.DestroyDescriptorSetLayout(m.descriptorSetLayout)
		m.descriptorSetLayout = gfx.DescriptorSetLayout{}
	}
	if m.texture != nil {
		m.texture.destroy(m.device)
		m.texture = nil
	}
	for _, shader := range m.shaders {
		m.device.DestroyShaderModule(shader.Module)
	}
	m.shaders = nil

	m.geometry.Release()
}

// CommitRenderCommand binds this model's pipeline, geometry and descriptor set
// for imageIndex and draws every instance slot in one call. Slots without a
// visible instance are collapsed by the vertex shader.
func (m *Model) CommitRenderCommand(buffer gfx.CommandBuffer, imageIndex int) {
	m.device.CmdBindPipeline(buffer, m.graphicsPipeline)
	m.device.CmdBindDescriptorSets(buffer, m.pipelineLayout, m.descriptorSets[imageIndex])
	m.geometry.record(m.device, buffer, m.capacity)
}

// Update writes every instance slot into the region of the instance buffer read
// by imageIndex's descriptor set.
func (m *Model) Update(imageIndex int) error {
	if !m.built() {
		return errors.Wrapf(gfx.ErrInvalidState, "model %s: update before build", m.id)
	}
	if imageIndex < 0 || imageIndex >= m.imageCount {
		return errors.Newf("model %s: image index %d out of range [0, %d)", m.id, imageIndex, m.imageCount)
	}

	return m.writeInstances(imageIndex)
}

func (m *Model) writeInstances(imageIndex int) error {
	m.instances.snapshot(m.frame)
	payload, err := encode(m.frame)
	if err != nil {
		return err
	}

	return m.device.WriteMemory(m.instanceMemory, m.regionOffset(imageIndex), payload)
}

func (m *Model) regionSize() int {
	return m.capacity * instanceDataSize
}

// regionOffset is the start of imageIndex's region. Regions are spaced by the
// device's storage buffer offset alignment so each can be bound on its own.
func (m *Model) regionOffset(imageIndex int) int {
	return imageIndex * m.stride
}

func alignUp(size, alignment int) int {
	if alignment <= 1 {
		return size
	}
	return (size + alignment - 1) / alignment * alignment
}

func (m *Model) checkBuildArguments(imageCount int, uniformBuffers []gfx.Buffer) error {
	if imageCount <= 0 {
		return errors.Newf("model %s: image count %d", m.id, imageCount)
	}
	if len(uniformBuffers) != imageCount {
		return errors.Newf("model %s: %d uniform buffers for %d images", m.id, len(uniformBuffers), imageCount)
	}
	if len(m.shaders) == 0 {
		return errors.Newf("model %s: no shader stages", m.id)
	}
	return nil
}

func (m *Model) createLayouts() error {
	if m.descriptorSetLayout.Initialized() {
		return nil
	}

	bindings := []core1_0.DescriptorSetLayoutBinding{
		{
			Binding:         uniformBinding,
			DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,

			StageFlags: core1_0.StageVertex,
		},
		{
			Binding:         instanceBinding,
			DescriptorType:  core1_0.DescriptorTypeStorageBuffer,
			DescriptorCount: 1,

			StageFlags: core1_0.StageVertex,
		},
	}
	if m.texture != nil {
		bindings = append(bindings, core1_0.DescriptorSetLayoutBinding{
			Binding:         textureBinding,
			DescriptorType:  core1_0.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,

			StageFlags: core1_0.StageFragment,
		})
	}

	var err error
	m.descriptorSetLayout, err = m.device.CreateDescriptorSetLayout(core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: bindings,
	})
	if err != nil {
		return gfx.CreationFailure(err, "model %s: descriptor set layout", m.id)
	}

	m.pipelineLayout, err = m.device.CreatePipelineLayout([]gfx.DescriptorSetLayout{m.descriptorSetLayout})
	if err != nil {
		return gfx.CreationFailure(err, "model %s: pipeline layout", m.id)
	}

	return nil
}

func (m *Model) createInstanceBuffer(imageCount int) error {
	m.capacity = m.instances.slotCount()
	if m.capacity == 0 {
		m.capacity = 1
	}
	m.frame = make([]InstanceData, m.capacity)
	m.stride = alignUp(m.regionSize(), m.device.StorageBufferAlignment())

	var err error
	m.instanceBuffer, m.instanceMemory, err = m.device.CreateBuffer(gfx.BufferCreateInfo{
		Size:       imageCount * m.stride,
		Usage:      core1_0.BufferUsageStorageBuffer,
		Properties: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
	})
	if err != nil {
		return gfx.CreationFailure(err, "model %s: instance buffer for %d slots", m.id, m.capacity)
	}

	for i := 0; i < imageCount; i++ {
		err = m.writeInstances(i)
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *Model) destroyInstanceBuffer() {
	if m.instanceBuffer.Initialized() {
		m.device.DestroyBuffer(m.instanceBuffer)
		m.instanceBuffer = gfx.Buffer{}
	}
	if m.instanceMemory.Initialized() {
		m.device.FreeMemory(m.instanceMemory)
		m.instanceMemory = gfx.Memory{}
	}
	m.capacity = 0
	m.stride = 0
	m.frame = nil
}

func (m *Model) createDescriptorSets(imageCount int) error {
	poolSizes := []core1_0.DescriptorPoolSize{
		{
			Type:            core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: imageCount,
		},
		{
			Type:            core1_0.DescriptorTypeStorageBuffer,
			DescriptorCount: imageCount,
		},
	}
	if m.texture != nil {
		poolSizes = append(poolSizes, core1_0.DescriptorPoolSize{
			Type:            core1_0.DescriptorTypeCombinedImageSampler,
			DescriptorCount: imageCount,
		})
	}

	var err error
	m.descriptorPool, err = m.device.CreateDescriptorPool(core1_0.DescriptorPoolCreateInfo{
		MaxSets:   imageCount,
		PoolSizes: poolSizes,
	})
	if err != nil {
		return gfx.CreationFailure(err, "model %s: descriptor pool", m.id)
	}

	allocLayouts := make([]gfx.DescriptorSetLayout, imageCount)
	for i := range allocLayouts {
		allocLayouts[i] = m.descriptorSetLayout
	}

	m.descriptorSets, err = m.device.AllocateDescriptorSets(m.descriptorPool, allocLayouts)
	if err != nil {
		return gfx.CreationFailure(err, "model %s: %d descriptor sets", m.id, imageCount)
	}

	return nil
}

func (m *Model) writeDescriptorSets(uniformBuffers []gfx.Buffer) error {
	var writes []gfx.DescriptorWrite
	for i, set := range m.descriptorSets {
		writes = append(writes,
			gfx.DescriptorWrite{
				Set:     set,
				Binding: uniformBinding,
				Type:    core1_0.DescriptorTypeUniformBuffer,
				Buffer:  uniformBuffers[i],
				Range:   uniformBufferSize,
			},
			gfx.DescriptorWrite{
				Set:     set,
				Binding: instanceBinding,
				Type:    core1_0.DescriptorTypeStorageBuffer,
				Buffer:  m.instanceBuffer,
				Offset:  m.regionOffset(i),
				Range:   m.regionSize(),
			},
		)

		if m.texture != nil {
			writes = append(writes, gfx.DescriptorWrite{
				Set:       set,
				Binding:   textureBinding,
				Type:      core1_0.DescriptorTypeCombinedImageSampler,
				ImageView: m.texture.view,
				Sampler:   m.texture.sampler,
			})
		}
	}

	err := m.device.UpdateDescriptorSets(writes)
	if err != nil {
		return errors.Wrapf(err, "model %s: write descriptor sets", m.id)
	}
	return nil
}

func (m *Model) destroyDescriptorSets() {
	if m.descriptorPool.Initialized() {
		m.device.DestroyDescriptorPool(m.descriptorPool)
		m.descriptorPool = gfx.DescriptorPool{}
	}
	m.descriptorSets = nil
}

func (m *Model) createGraphicsPipeline(renderPass gfx.RenderPass, extent core1_0.Extent2D) error {
	var err error
	m.graphicsPipeline, err = m.device.CreateGraphicsPipeline(gfx.GraphicsPipelineCreateInfo{
		Layout:     m.pipelineLayout,
		RenderPass: renderPass,
		Stages:     m.shaders,
		Extent:     extent,

		VertexBindings:   getVertexBindingDescription(),
		VertexAttributes: getVertexAttributeDescriptions(),
	})
	if err != nil {
		return gfx.CreationFailure(err, "model %s: graphics pipeline for %dx%d", m.id, extent.Width, extent.Height)
	}
	return nil
}

func (m *Model) destroyGraphicsPipeline() {
	if m.graphicsPipeline.Initialized() {
		m.device.DestroyGraphicsPipeline(m.graphicsPipeline)
		m.graphicsPipeline = gfx.GraphicsPipeline{}
	}
}
