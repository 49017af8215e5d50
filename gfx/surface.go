package gfx

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// ChooseSurfaceFormat prefers 8-bit BGRA sRGB and otherwise takes the first
// format the surface offers.
func ChooseSurfaceFormat(availableFormats []khr_surface.SurfaceFormat) (khr_surface.SurfaceFormat, error) {
	if len(availableFormats) == 0 {
		return khr_surface.SurfaceFormat{}, errors.Mark(errors.New("surface reports no formats"), ErrUnsupportedSurfaceState)
	}

	for _, format := range availableFormats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format, nil
		}
	}

	return availableFormats[0], nil
}

// ChoosePresentMode returns mailbox when requested and available. FIFO is always
// supported and is the fallback.
func ChoosePresentMode(availablePresentModes []khr_surface.PresentMode, preferMailbox bool) khr_surface.PresentMode {
	if !preferMailbox {
		return khr_surface.PresentModeFIFO
	}

	for _, presentMode := range availablePresentModes {
		if presentMode == khr_surface.PresentModeMailbox {
			return presentMode
		}
	}

	return khr_surface.PresentModeFIFO
}

// ChooseExtent uses the surface's current extent unless the surface lets the
// application decide (width reported as -1), in which case the drawable size is
// clamped to the supported range.
func ChooseExtent(capabilities *khr_surface.SurfaceCapabilities, drawable core1_0.Extent2D) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	width := clamp(drawable.Width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width)
	height := clamp(drawable.Height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height)

	return core1_0.Extent2D{Width: width, Height: height}
}

// ChooseImageCount picks one image more than the surface minimum, or preferred
// when it is positive, and never leaves [MinImageCount, MaxImageCount]. A
// MaxImageCount of zero means the surface sets no upper bound.
func ChooseImageCount(capabilities *khr_surface.SurfaceCapabilities, preferred int) int {
	imageCount := capabilities.MinImageCount + 1
	if preferred > 0 {
		imageCount = preferred
	}

	if imageCount < capabilities.MinImageCount {
		imageCount = capabilities.MinImageCount
	}
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}

	return imageCount
}

// ZeroExtent reports whether an extent has no drawable area.
func ZeroExtent(extent core1_0.Extent2D) bool {
	return extent.Width <= 0 || extent.Height <= 0
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
