// Package gfx describes the native graphics collaborator consumed by the renderer.
//
// Resources are referenced through small opaque handles. The zero value of every
// handle type is the null handle; Initialized reports whether a handle refers to a
// live object. Implementations never reuse a handle value once it has been destroyed,
// so a stale handle cannot alias a newer object.
package gfx

// Handle is the opaque identity shared by all resource handle types.
type Handle uint64

// Initialized reports whether the handle refers to an object.
func (h Handle) Initialized() bool {
	return h != 0
}

type Swapchain struct{ Handle }
type Image struct{ Handle }
type ImageView struct{ Handle }
type Memory struct{ Handle }
type Buffer struct{ Handle }
type RenderPass struct{ Handle }
type Framebuffer struct{ Handle }
type CommandPool struct{ Handle }
type CommandBuffer struct{ Handle }
type DescriptorSetLayout struct{ Handle }
type DescriptorPool struct{ Handle }
type DescriptorSet struct{ Handle }
type PipelineLayout struct{ Handle }
type GraphicsPipeline struct{ Handle }
type ShaderModule struct{ Handle }
type Sampler struct{ Handle }
