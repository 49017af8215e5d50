package render

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/forward/gfx"
	"github.com/vkngwrapper/forward/gfx/gfxtest"
)

var quadVertices = []Vertex{
	{Position: mgl32.Vec3{-0.5, -0.5, 0}, Color: mgl32.Vec3{1, 0, 0}, TexCoord: mgl32.Vec2{1, 0}},
	{Position: mgl32.Vec3{0.5, -0.5, 0}, Color: mgl32.Vec3{0, 1, 0}, TexCoord: mgl32.Vec2{0, 0}},
	{Position: mgl32.Vec3{0.5, 0.5, 0}, Color: mgl32.Vec3{0, 0, 1}, TexCoord: mgl32.Vec2{0, 1}},
	{Position: mgl32.Vec3{-0.5, 0.5, 0}, Color: mgl32.Vec3{1, 1, 1}, TexCoord: mgl32.Vec2{1, 1}},
}

var quadIndices = []uint32{0, 1, 2, 2, 3, 0}

func newTestModel(t *testing.T, device *gfxtest.Device, instances int) *Model {
	t.Helper()

	model := NewModel(device)
	require.NoError(t, model.AddVertices(quadVertices, quadIndices))
	require.NoError(t, model.AddShader(core1_0.StageVertex, []uint32{0x07230203, 1}))
	require.NoError(t, model.AddShader(core1_0.StageFragment, []uint32{0x07230203, 2}))

	for i := 0; i < instances; i++ {
		model.CreateInstance()
	}
	return model
}

func buildTestPipeline(t *testing.T, device *gfxtest.Device, models ...Drawable) *Pipeline {
	t.Helper()

	pipeline := NewPipeline(device)
	require.NoError(t, pipeline.Build(models))
	require.Equal(t, Built, pipeline.State())
	return pipeline
}

// requireImageCountInvariants checks that every per-image collection matches the
// swapchain image count.
func requireImageCountInvariants(t *testing.T, pipeline *Pipeline, models ...*Model) {
	t.Helper()

	n := pipeline.ImageCount()
	require.Greater(t, n, 0)
	require.Len(t, pipeline.Framebuffers(), n)
	require.Len(t, pipeline.CommandBuffers(), n)
	require.Len(t, pipeline.UniformBuffers(), n)
	for _, model := range models {
		require.Len(t, model.DescriptorSets(), n)
		require.Equal(t, n, model.ImageCount())
	}
}

// requireNoDeadReferences checks that no recorded command reads a destroyed handle.
func requireNoDeadReferences(t *testing.T, device *gfxtest.Device, pipeline *Pipeline) {
	t.Helper()

	for _, buffer := range pipeline.CommandBuffers() {
		for _, h := range device.Referenced(buffer) {
			require.True(t, device.IsLive(h), "command buffer %d reads dead %s %d", buffer.Handle, device.KindOf(h), h)
		}
	}
}

func framebufferHandles(framebuffers []gfx.Framebuffer) map[gfx.Handle]bool {
	set := make(map[gfx.Handle]bool, len(framebuffers))
	for _, framebuffer := range framebuffers {
		set[framebuffer.Handle] = true
	}
	return set
}

func descriptorSetHandles(sets []gfx.DescriptorSet) map[gfx.Handle]bool {
	set := make(map[gfx.Handle]bool, len(sets))
	for _, s := range sets {
		set[s.Handle] = true
	}
	return set
}
