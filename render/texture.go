package render

import (
	"image"
	"image/draw"

	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/forward/gfx"
)

type SamplingMode int

const (
	SamplingLinear SamplingMode = iota
	SamplingNearest
)

func (m SamplingMode) filter() core1_0.Filter {
	if m == SamplingNearest {
		return core1_0.FilterNearest
	}
	return core1_0.FilterLinear
}

// Texture is a sampled RGBA image owned by a single Model.
type Texture struct {
	Width, Height int

	image   gfx.Image
	memory  gfx.Memory
	view    gfx.ImageView
	sampler gfx.Sampler
}

func newTexture(device gfx.Allocator, source image.Image, mode SamplingMode) (*Texture, error) {
	bounds := source.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), source, bounds.Min, draw.Src)

	texture := &Texture{Width: bounds.Dx(), Height: bounds.Dy()}
	imageSize := len(rgba.Pix)

	stagingBuffer, stagingMemory, err := device.CreateBuffer(gfx.BufferCreateInfo{
		Size:       imageSize,
		Usage:      core1_0.BufferUsageTransferSrc,
		Properties: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
	})
	if err != nil {
		return nil, gfx.CreationFailure(err, "texture staging buffer")
	}
	defer device.FreeMemory(stagingMemory)
	defer device.DestroyBuffer(stagingBuffer)

	err = device.WriteMemory(stagingMemory, 0, rgba.Pix)
	if err != nil {
		return nil, err
	}

	texture.image, texture.memory, err = device.CreateImage(gfx.ImageCreateInfo{
		Width:      texture.Width,
		Height:     texture.Height,
		Format:     core1_0.FormatR8G8B8A8SRGB,
		Usage:      core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled,
		Properties: core1_0.MemoryPropertyDeviceLocal,
	})
	if err != nil {
		return nil, gfx.CreationFailure(err, "texture image %dx%d", texture.Width, texture.Height)
	}

	err = device.CopyBufferToImage(stagingBuffer, texture.image, texture.Width, texture.Height)
	if err != nil {
		texture.destroy(device)
		return nil, err
	}

	texture.view, err = device.CreateImageView(gfx.ImageViewCreateInfo{
		Image:  texture.image,
		Format: core1_0.FormatR8G8B8A8SRGB,
		Aspect: core1_0.ImageAspectColor,
	})
	if err != nil {
		texture.destroy(device)
		return nil, gfx.CreationFailure(err, "texture image view")
	}

	texture.sampler, err = device.CreateSampler(gfx.SamplerCreateInfo{
		Filter:      mode.filter(),
		AddressMode: core1_0.SamplerAddressModeRepeat,
	})
	if err != nil {
		texture.destroy(device)
		return nil, gfx.CreationFailure(err, "texture sampler")
	}

	return texture, nil
}

func (t *Texture) destroy(device gfx.Allocator) {
	if t.sampler.Initialized() {
		device.DestroySampler(t.sampler)
	}
	if t.view.Initialized() {
		device.DestroyImageView(t.view)
	}
	if t.image.Initialized() {
		device.DestroyImage(t.image)
	}
	if t.memory.Initialized() {
		device.FreeMemory(t.memory)
	}
	*t = Texture{}
}
