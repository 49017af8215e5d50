package render

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/forward/gfx"
	"github.com/vkngwrapper/forward/gfx/gfxtest"
)

func commandNames(device *gfxtest.Device, buffer gfx.CommandBuffer) []string {
	var names []string
	for _, cmd := range device.Commands[buffer] {
		names = append(names, cmd.Name)
	}
	return names
}

func TestPipelineBuild(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	model := newTestModel(t, device, 2)

	pipeline := buildTestPipeline(t, device, model)

	require.Equal(t, 3, pipeline.ImageCount())
	requireImageCountInvariants(t, pipeline, model)
	require.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, pipeline.Extent())
	require.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, pipeline.DepthExtent())
	require.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, pipeline.FramebufferExtent())

	for i, buffer := range pipeline.CommandBuffers() {
		require.Equal(t, buffer, pipeline.CommandBuffer(i))
		require.Equal(t, []string{
			"begin-render-pass",
			"bind-pipeline",
			"bind-descriptor-sets",
			"bind-vertex-buffers",
			"bind-index-buffer",
			"draw-indexed",
			"end-render-pass",
		}, commandNames(device, buffer))

		begin := device.CommandsNamed(buffer, "begin-render-pass")[0]
		require.Equal(t, []int{800, 600}, begin.Counts)
		require.Equal(t, pipeline.Framebuffers()[i].Handle, begin.Refs[1])

		bind := device.CommandsNamed(buffer, "bind-descriptor-sets")[0]
		require.Contains(t, bind.Refs, model.DescriptorSets()[i].Handle)
		require.Contains(t, bind.Refs, pipeline.UniformBuffers()[i].Handle)

		draw := device.CommandsNamed(buffer, "draw-indexed")[0]
		require.Equal(t, []int{len(quadIndices), 2}, draw.Counts)
	}

	for _, framebuffer := range pipeline.Framebuffers() {
		info := device.Framebuffers[framebuffer]
		require.Equal(t, 800, info.Width)
		require.Equal(t, 600, info.Height)
		require.Len(t, info.Attachments, 2)
	}

	requireNoDeadReferences(t, device, pipeline)
	require.Empty(t, device.Faults)
}

func TestPipelineImageCount(t *testing.T) {
	tests := []struct {
		name      string
		min, max  int
		preferred int
		expected  int
	}{
		{name: "MinPlusOne", min: 2, max: 3, expected: 3},
		{name: "ClampedToMax", min: 2, max: 2, expected: 2},
		{name: "Unbounded", min: 3, max: 0, expected: 4},
		{name: "PreferredClamped", min: 2, max: 3, preferred: 8, expected: 3},
		{name: "PreferredInRange", min: 2, max: 4, preferred: 2, expected: 2},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			device := gfxtest.NewDevice(640, 480)
			device.SetImageCountRange(test.min, test.max)
			model := newTestModel(t, device, 1)

			pipeline := NewPipeline(device, WithPreferredImageCount(test.preferred))
			require.NoError(t, pipeline.Build([]Drawable{model}))

			require.Equal(t, test.expected, pipeline.ImageCount())
			requireImageCountInvariants(t, pipeline, model)
			require.Empty(t, device.Faults)
		})
	}
}

func TestPipelinePresentModeAndFormat(t *testing.T) {
	device := gfxtest.NewDevice(640, 480)

	pipeline := NewPipeline(device, WithMailbox(true))
	require.NoError(t, pipeline.Build(nil))

	info := device.Swapchains[pipeline.Swapchain()]
	require.Equal(t, core1_0.FormatB8G8R8A8SRGB, info.Format.Format)
	require.Equal(t, khr_surface.PresentModeMailbox, info.PresentMode)
}

func TestPipelineRebuildFollowsResize(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	model := newTestModel(t, device, 3)
	pipeline := buildTestPipeline(t, device, model)

	oldFramebuffers := pipeline.Framebuffers()
	oldUniforms := pipeline.UniformBuffers()
	oldSets := model.DescriptorSets()
	oldGraphicsPipeline := model.GraphicsPipeline()
	oldSwapchain := pipeline.Swapchain()

	device.Resize(400, 300)
	require.NoError(t, pipeline.Rebuild([]Drawable{model}))
	require.Equal(t, Built, pipeline.State())

	requireImageCountInvariants(t, pipeline, model)
	require.Equal(t, core1_0.Extent2D{Width: 400, Height: 300}, pipeline.Extent())
	require.Equal(t, core1_0.Extent2D{Width: 400, Height: 300}, pipeline.DepthExtent())
	for _, framebuffer := range pipeline.Framebuffers() {
		info := device.Framebuffers[framebuffer]
		require.Equal(t, 400, info.Width)
		require.Equal(t, 300, info.Height)
	}

	// everything bound to the old swapchain is gone
	require.False(t, device.IsLive(oldSwapchain.Handle))
	require.False(t, device.IsLive(oldGraphicsPipeline.Handle))
	current := framebufferHandles(pipeline.Framebuffers())
	for _, framebuffer := range oldFramebuffers {
		require.False(t, device.IsLive(framebuffer.Handle))
		require.False(t, current[framebuffer.Handle])
	}
	for _, buffer := range oldUniforms {
		require.False(t, device.IsLive(buffer.Handle))
	}

	// same image count: sets survive but point at the new uniform buffers
	require.Equal(t, descriptorSetHandles(oldSets), descriptorSetHandles(model.DescriptorSets()))
	for i, set := range model.DescriptorSets() {
		var uniform gfx.Buffer
		for _, write := range device.Writes[set] {
			if write.Binding == 0 {
				uniform = write.Buffer
			}
		}
		require.Equal(t, pipeline.UniformBuffers()[i], uniform)
	}

	require.Equal(t, core1_0.Extent2D{Width: 400, Height: 300}, device.Pipelines[model.GraphicsPipeline()].Extent)
	for _, buffer := range pipeline.CommandBuffers() {
		begin := device.CommandsNamed(buffer, "begin-render-pass")[0]
		require.Equal(t, []int{400, 300}, begin.Counts)
	}

	requireNoDeadReferences(t, device, pipeline)
	require.Empty(t, device.Faults)
}

func TestPipelineRebuildWithNewImageCount(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	model := newTestModel(t, device, 1)
	pipeline := buildTestPipeline(t, device, model)
	require.Equal(t, 3, pipeline.ImageCount())

	device.SetImageCountRange(3, 5)
	require.NoError(t, pipeline.Rebuild([]Drawable{model}))

	require.Equal(t, 4, pipeline.ImageCount())
	requireImageCountInvariants(t, pipeline, model)
	require.Equal(t, 1, device.Live(gfxtest.KindDescriptorPool))
	require.Equal(t, 4, device.Live(gfxtest.KindDescriptorSet))

	device.SetImageCountRange(1, 2)
	require.NoError(t, pipeline.Rebuild([]Drawable{model}))

	require.Equal(t, 2, pipeline.ImageCount())
	requireImageCountInvariants(t, pipeline, model)
	require.Equal(t, 2, device.Live(gfxtest.KindDescriptorSet))

	requireNoDeadReferences(t, device, pipeline)
	require.Empty(t, device.Faults)
}

func TestPipelineRebuildKeepsCommandPool(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	pipeline := buildTestPipeline(t, device)

	require.NoError(t, pipeline.Rebuild(nil))
	require.NoError(t, pipeline.Rebuild(nil))

	require.Equal(t, 1, device.Created(gfxtest.KindCommandPool))
	require.Equal(t, 0, device.Destroyed(gfxtest.KindCommandPool))
	require.Equal(t, 3, device.Live(gfxtest.KindCommandBuffer))
}

func TestPipelineZeroExtent(t *testing.T) {
	device := gfxtest.NewDevice(0, 0)
	pipeline := NewPipeline(device)

	err := pipeline.Build(nil)
	require.True(t, errors.Is(err, gfx.ErrUnsupportedSurfaceState))
	for _, kind := range gfxtest.AllKinds {
		require.Zero(t, device.Created(kind), "%s created for a zero extent", kind)
	}

	device.Resize(800, 600)
	model := newTestModel(t, device, 1)
	require.NoError(t, pipeline.Build([]Drawable{model}))
	framebuffers := pipeline.Framebuffers()

	device.Resize(0, 0)
	err = pipeline.Rebuild([]Drawable{model})
	require.True(t, errors.Is(err, gfx.ErrUnsupportedSurfaceState))

	// the previous build is untouched and still usable
	require.Equal(t, Built, pipeline.State())
	require.Equal(t, framebuffers, pipeline.Framebuffers())
	for _, framebuffer := range framebuffers {
		require.True(t, device.IsLive(framebuffer.Handle))
	}

	device.Resize(1024, 768)
	require.NoError(t, pipeline.Rebuild([]Drawable{model}))
	require.Equal(t, core1_0.Extent2D{Width: 1024, Height: 768}, pipeline.Extent())
	require.Empty(t, device.Faults)
}

func TestPipelineReleaseBalancesResources(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	model := newTestModel(t, device, 2)
	pipeline := buildTestPipeline(t, device, model)

	device.Resize(1280, 720)
	require.NoError(t, pipeline.Rebuild([]Drawable{model}))
	model.CreateInstance()
	require.True(t, model.NeedsRebuild())
	require.NoError(t, pipeline.Rebuild([]Drawable{model}))

	require.NoError(t, pipeline.Release([]Drawable{model}))
	require.Equal(t, Released, pipeline.State())
	model.Destroy()

	for _, kind := range gfxtest.AllKinds {
		assert.Equal(t, device.Created(kind), device.Destroyed(kind), "%s leaked", kind)
	}
	require.Empty(t, device.Faults)
}

func TestPipelineReleaseTwice(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	pipeline := NewPipeline(device)

	err := pipeline.Release(nil)
	require.True(t, errors.Is(err, gfx.ErrInvalidState))

	require.NoError(t, pipeline.Build(nil))
	require.NoError(t, pipeline.Release(nil))

	err = pipeline.Release(nil)
	require.True(t, errors.Is(err, gfx.ErrInvalidState))
	err = pipeline.Rebuild(nil)
	require.True(t, errors.Is(err, gfx.ErrInvalidState))
	require.NoError(t, pipeline.Destroy())

	require.Empty(t, device.Faults)
}

func TestPipelineBuildAfterRelease(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	model := newTestModel(t, device, 1)
	pipeline := buildTestPipeline(t, device, model)

	require.NoError(t, pipeline.Release([]Drawable{model}))
	require.NoError(t, pipeline.Build([]Drawable{model}))

	requireImageCountInvariants(t, pipeline, model)
	requireNoDeadReferences(t, device, pipeline)

	err := pipeline.Build([]Drawable{model})
	require.True(t, errors.Is(err, gfx.ErrInvalidState))
	require.Empty(t, device.Faults)
}

func TestPipelineWaitsIdleBeforeDestroying(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	model := newTestModel(t, device, 1)
	pipeline := buildTestPipeline(t, device, model)

	for _, step := range []func() error{
		func() error { return pipeline.Rebuild([]Drawable{model}) },
		func() error { return pipeline.Release([]Drawable{model}) },
	} {
		start := len(device.Events)
		require.NoError(t, step())

		wait := device.EventIndex(start, gfxtest.OpWaitIdle, "")
		destroy := device.EventIndex(start, gfxtest.OpDestroy, "")
		require.GreaterOrEqual(t, wait, 0)
		require.Greater(t, destroy, wait)
	}
}

func TestPipelineCreationFailure(t *testing.T) {
	for _, kind := range []gfxtest.Kind{
		gfxtest.KindSwapchain,
		gfxtest.KindRenderPass,
		gfxtest.KindFramebuffer,
		gfxtest.KindGraphicsPipeline,
		gfxtest.KindCommandBuffer,
	} {
		t.Run(string(kind), func(t *testing.T) {
			device := gfxtest.NewDevice(800, 600)
			model := newTestModel(t, device, 1)
			device.FailAfter(kind, 0)

			pipeline := NewPipeline(device)
			err := pipeline.Build([]Drawable{model})
			require.Error(t, err)
			require.True(t, errors.Is(err, gfx.ErrCreationFailure), err.Error())
			require.NotEqual(t, Built, pipeline.State())

			require.NoError(t, pipeline.Destroy())
			model.Destroy()
			for _, k := range gfxtest.AllKinds {
				assert.Equal(t, device.Created(k), device.Destroyed(k), "%s leaked", k)
			}
			require.Empty(t, device.Faults)
		})
	}
}

func TestPipelineFailedBuildRefusesBuild(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	model := newTestModel(t, device, 1)
	models := []Drawable{model}
	device.FailAfter(gfxtest.KindFramebuffer, 0)

	pipeline := NewPipeline(device)
	err := pipeline.Build(models)
	require.True(t, errors.Is(err, gfx.ErrCreationFailure))
	require.Equal(t, RebuildPending, pipeline.State())

	buffers := device.Created(gfxtest.KindBuffer)
	swapchains := device.Created(gfxtest.KindSwapchain)
	err = pipeline.Build(models)
	require.True(t, errors.Is(err, gfx.ErrInvalidState))
	require.Equal(t, buffers, device.Created(gfxtest.KindBuffer))
	require.Equal(t, swapchains, device.Created(gfxtest.KindSwapchain))

	require.NoError(t, pipeline.Rebuild(models))
	require.Equal(t, Built, pipeline.State())
	requireImageCountInvariants(t, pipeline, model)
	require.Equal(t, 1, device.Live(gfxtest.KindSwapchain))

	require.NoError(t, pipeline.Destroy())
	model.Destroy()
	for _, k := range gfxtest.AllKinds {
		assert.Equal(t, device.Created(k), device.Destroyed(k), "%s leaked", k)
	}
	require.Empty(t, device.Faults)
}

// lostSurface fails every surface support query while lost is set.
type lostSurface struct {
	*gfxtest.Device
	lost bool
}

func (d *lostSurface) SurfaceSupport() (gfx.SurfaceSupport, error) {
	if d.lost {
		return gfx.SurfaceSupport{}, errors.New("surface lost")
	}
	return d.Device.SurfaceSupport()
}

func TestPipelineSurfaceQueryFailure(t *testing.T) {
	device := &lostSurface{Device: gfxtest.NewDevice(800, 600), lost: true}
	model := newTestModel(t, device.Device, 1)
	models := []Drawable{model}

	pipeline := NewPipeline(device)
	err := pipeline.Build(models)
	require.True(t, errors.Is(err, gfx.ErrCreationFailure), err.Error())
	require.False(t, errors.Is(err, gfx.ErrUnsupportedSurfaceState))
	require.Equal(t, Uninitialized, pipeline.State())

	device.lost = false
	require.NoError(t, pipeline.Build(models))
	framebuffers := pipeline.Framebuffers()

	device.lost = true
	err = pipeline.Rebuild(models)
	require.True(t, errors.Is(err, gfx.ErrCreationFailure), err.Error())
	require.False(t, errors.Is(err, gfx.ErrUnsupportedSurfaceState))

	require.Equal(t, Built, pipeline.State())
	for _, framebuffer := range framebuffers {
		require.True(t, device.IsLive(framebuffer.Handle))
	}
	require.Empty(t, device.Faults)
}

func TestPipelineWriteUniforms(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	pipeline := buildTestPipeline(t, device)

	ubo := UniformBufferObject{}
	ubo.Model[0] = 2
	require.NoError(t, pipeline.WriteUniforms(1, ubo))

	memory := device.Memory[pipeline.uniforms.memories[1]]
	require.Len(t, memory, uniformBufferSize)
	require.NotEqual(t, []byte{0, 0, 0, 0}, memory[:4])
	require.Equal(t, make([]byte, uniformBufferSize), device.Memory[pipeline.uniforms.memories[0]])

	require.Error(t, pipeline.WriteUniforms(3, ubo))
	require.Error(t, pipeline.WriteUniforms(-1, ubo))
	require.Empty(t, device.Faults)
}

func TestPipelineClearValues(t *testing.T) {
	device := gfxtest.NewDevice(800, 600)
	pipeline := NewPipeline(device, WithClearColor(0.1, 0.2, 0.3, 1))
	require.NoError(t, pipeline.Build(nil))

	require.Equal(t, core1_0.ClearValueFloat{0.1, 0.2, 0.3, 1}, pipeline.clearColor)
	for _, buffer := range pipeline.CommandBuffers() {
		require.Equal(t, []string{"begin-render-pass", "end-render-pass"}, commandNames(device, buffer))
	}
}
