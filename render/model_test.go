package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/forward/gfx"
	"github.com/vkngwrapper/forward/gfx/gfxtest"
)

// visibleAt reads the visibility flag of slot in region imageIndex straight out
// of the model's instance memory.
func visibleAt(device *gfxtest.Device, model *Model, imageIndex, slot int) bool {
	offset := model.regionOffset(imageIndex) + slot*instanceDataSize + 16*4
	flag := device.Memory[model.instanceMemory][offset : offset+4]
	for _, b := range flag {
		if b != 0 {
			return true
		}
	}
	return false
}

func TestModelBuild(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	model := newTestModel(t, device, 2)
	pipeline := buildTestPipeline(t, device, model)

	require.Equal(t, 3, model.ImageCount())
	require.Equal(t, 2, model.Capacity())
	require.Equal(t, 2, model.InstanceCount())
	require.False(t, model.NeedsRebuild())

	buffer := device.Buffers[model.instanceBuffer]
	// two 80 byte slots padded to the fake's 64 byte alignment
	require.Equal(t, 3*192, buffer.Size)
	require.Equal(t, core1_0.BufferUsageStorageBuffer, buffer.Usage)

	for i, set := range model.DescriptorSets() {
		writes := device.Writes[set]
		require.Len(t, writes, 2)
		for _, write := range writes {
			switch write.Binding {
			case uniformBinding:
				require.Equal(t, pipeline.UniformBuffers()[i], write.Buffer)
				require.Equal(t, uniformBufferSize, write.Range)
			case instanceBinding:
				require.Equal(t, model.instanceBuffer, write.Buffer)
				require.Equal(t, i*192, write.Offset)
				require.Equal(t, 2*instanceDataSize, write.Range)
			default:
				t.Fatalf("unexpected binding %d", write.Binding)
			}
		}
	}

	info := device.Pipelines[model.GraphicsPipeline()]
	require.Equal(t, pipeline.RenderPass(), info.RenderPass)
	require.Len(t, info.Stages, 2)
	require.Len(t, info.VertexAttributes, 3)

	err := model.Build(3, pipeline.UniformBuffers(), pipeline.RenderPass(), pipeline.Extent())
	require.True(t, errors.Is(err, gfx.ErrInvalidState))
	require.Empty(t, device.Faults)
}

func TestModelInstanceRegionsAligned(t *testing.T) {
	for alignment, stride := range map[int]int{1: 80, 64: 128, 256: 256} {
		device := gfxtest.NewDevice(800, 600)
		device.StorageAlignment = alignment
		model := newTestModel(t, device, 0)
		inst := model.CreateInstance()
		buildTestPipeline(t, device, model)

		require.Equal(t, 3*stride, device.Buffers[model.instanceBuffer].Size)
		for i, set := range model.DescriptorSets() {
			for _, write := range device.Writes[set] {
				if write.Binding != instanceBinding {
					continue
				}
				require.Zero(t, write.Offset%alignment, "image %d offset %d with alignment %d", i, write.Offset, alignment)
				require.Equal(t, i*stride, write.Offset)
				require.Equal(t, instanceDataSize, write.Range)
			}
		}

		// padding keeps each image's region separate
		require.NoError(t, model.SetVisible(inst, false))
		require.NoError(t, model.Update(2))
		require.False(t, visibleAt(device, model, 2, 0))
		require.True(t, visibleAt(device, model, 1, 0))
		require.Empty(t, device.Faults)
	}
}

func TestModelBuildArguments(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	pipeline := buildTestPipeline(t, device)

	model := newTestModel(t, device, 1)
	require.Error(t, model.Build(0, nil, pipeline.RenderPass(), pipeline.Extent()))
	require.Error(t, model.Build(2, pipeline.UniformBuffers(), pipeline.RenderPass(), pipeline.Extent()))

	bare := NewModel(device)
	require.NoError(t, bare.AddVertices(quadVertices, nil))
	require.Error(t, bare.Build(3, pipeline.UniformBuffers(), pipeline.RenderPass(), pipeline.Extent()))

	require.Error(t, bare.AddShader(core1_0.StageVertex, nil))
}

func TestModelZeroInstances(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	model := newTestModel(t, device, 0)
	pipeline := buildTestPipeline(t, device, model)

	require.Equal(t, 1, model.Capacity())
	for i, buffer := range pipeline.CommandBuffers() {
		draw := device.CommandsNamed(buffer, "draw-indexed")
		require.Len(t, draw, 1)
		require.Equal(t, []int{len(quadIndices), 1}, draw[0].Counts)
		require.False(t, visibleAt(device, model, i, 0))
	}
	require.Empty(t, device.Faults)
}

func TestModelInstances(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	model := newTestModel(t, device, 0)

	a := model.CreateInstance()
	b := model.CreateInstance()
	c := model.CreateInstance()
	require.Equal(t, 3, model.InstanceCount())

	require.NoError(t, model.DeleteInstance(b))
	require.Equal(t, 2, model.InstanceCount())

	err := model.DeleteInstance(b)
	require.True(t, errors.Is(err, ErrStaleInstance))
	err = model.SetTransform(b, mgl32.Ident4())
	require.True(t, errors.Is(err, ErrStaleInstance))

	// the freed slot is reused, the stale handle stays rejected
	d := model.CreateInstance()
	require.Equal(t, b.Slot(), d.Slot())
	_, err = model.Transform(b)
	require.True(t, errors.Is(err, ErrStaleInstance))

	translate := mgl32.Translate3D(1, 2, 3)
	require.NoError(t, model.SetTransform(c, translate))
	transform, err := model.Transform(c)
	require.NoError(t, err)
	require.Equal(t, translate, transform)

	transform, err = model.Transform(a)
	require.NoError(t, err)
	require.Equal(t, mgl32.Ident4(), transform)
	require.Equal(t, 3, model.InstanceCount())
}

func TestModelUpdate(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	model := newTestModel(t, device, 0)
	require.Error(t, model.Update(0))

	a := model.CreateInstance()
	b := model.CreateInstance()
	buildTestPipeline(t, device, model)

	require.True(t, visibleAt(device, model, 0, 0))
	require.True(t, visibleAt(device, model, 0, 1))

	require.NoError(t, model.SetVisible(a, false))
	require.NoError(t, model.DeleteInstance(b))
	require.NoError(t, model.Update(1))

	require.False(t, visibleAt(device, model, 1, 0))
	require.False(t, visibleAt(device, model, 1, 1))
	// other images' regions are untouched until their own update
	require.True(t, visibleAt(device, model, 0, 0))
	require.True(t, visibleAt(device, model, 0, 1))

	require.Error(t, model.Update(3))
	require.Error(t, model.Update(-1))
	require.Empty(t, device.Faults)
}

func TestModelGrowthNeedsRebuild(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	model := newTestModel(t, device, 1)
	pipeline := buildTestPipeline(t, device, model)
	oldSets := model.DescriptorSets()

	model.CreateInstance()
	require.True(t, model.NeedsRebuild())
	require.Equal(t, 1, model.Capacity())
	require.NoError(t, model.Update(0))

	require.NoError(t, pipeline.Rebuild([]Drawable{model}))
	require.False(t, model.NeedsRebuild())
	require.Equal(t, 2, model.Capacity())
	requireImageCountInvariants(t, pipeline, model)

	for _, set := range oldSets {
		require.False(t, device.IsLive(set.Handle))
	}
	for _, buffer := range pipeline.CommandBuffers() {
		draw := device.CommandsNamed(buffer, "draw-indexed")[0]
		require.Equal(t, []int{len(quadIndices), 2}, draw.Counts)
	}

	// a deleted slot still occupies the buffer until it is reused
	require.NoError(t, model.DeleteInstance(model.CreateInstance()))
	require.True(t, model.NeedsRebuild())
	require.NoError(t, pipeline.Rebuild([]Drawable{model}))
	require.Equal(t, 3, model.Capacity())
	require.Equal(t, 2, model.InstanceCount())

	requireNoDeadReferences(t, device, pipeline)
	require.Empty(t, device.Faults)
}

func TestModelTexture(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	model := newTestModel(t, device, 1)

	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	img.Set(1, 1, color.NRGBA{R: 255, A: 255})
	require.NoError(t, model.SetTexture(img, SamplingNearest))
	require.NoError(t, model.SetTexture(img, SamplingLinear))
	require.Equal(t, 1, device.Live(gfxtest.KindSampler))

	pipeline := buildTestPipeline(t, device, model)
	for _, set := range model.DescriptorSets() {
		require.Len(t, device.Writes[set], 3)
	}
	for _, buffer := range pipeline.CommandBuffers() {
		bind := device.CommandsNamed(buffer, "bind-descriptor-sets")[0]
		require.Contains(t, bind.Refs, model.texture.view.Handle)
		require.Contains(t, bind.Refs, model.texture.sampler.Handle)
	}

	err := model.SetTexture(img, SamplingLinear)
	require.True(t, errors.Is(err, gfx.ErrInvalidState))

	require.NoError(t, pipeline.Release([]Drawable{model}))
	model.Destroy()
	for _, kind := range gfxtest.AllKinds {
		require.Equal(t, device.Created(kind), device.Destroyed(kind), "%s leaked", kind)
	}
	require.Empty(t, device.Faults)
}

func TestModelGeometryFrozenAfterUpload(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	model := newTestModel(t, device, 1)
	buildTestPipeline(t, device, model)

	err := model.AddVertices(quadVertices, quadIndices)
	require.True(t, errors.Is(err, gfx.ErrInvalidState))
}

func TestModelIDsAreUnique(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	require.NotEqual(t, NewModel(device).ID(), NewModel(device).ID())
}
