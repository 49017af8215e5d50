package vkdevice

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/forward/gfx"
)

func (d *Device) pickPhysicalDevice() error {
	physicalDevices, _, err := d.instanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return err
	}

	for _, device := range physicalDevices {
		indices, suitable := d.isDeviceSuitable(device)
		if !suitable {
			continue
		}

		d.physicalDevice = device
		d.queueFamilies = indices
		break
	}

	if !d.physicalDevice.Initialized() {
		return errors.New("failed to find a suitable GPU")
	}

	properties, err := d.instanceDriver.GetPhysicalDeviceProperties(d.physicalDevice)
	if err != nil {
		return err
	}
	d.anisotropyLimit = properties.Limits.MaxSamplerAnisotropy
	d.storageAlignment = properties.Limits.MinStorageBufferOffsetAlignment

	d.depthFormat, err = d.findDepthFormat()
	if err != nil {
		return err
	}

	d.log.WithFields(logrus.Fields{
		"device":         properties.DeviceName,
		"graphicsFamily": *d.queueFamilies.GraphicsFamily,
		"presentFamily":  *d.queueFamilies.PresentFamily,
		"depthFormat":    d.depthFormat,
	}).Info("physical device selected")
	return nil
}

func (d *Device) isDeviceSuitable(device core1_0.PhysicalDevice) (gfx.QueueFamilyIndices, bool) {
	indices, err := d.findQueueFamilies(device)
	if err != nil {
		return indices, false
	}

	extensionsSupported := d.checkDeviceExtensionSupport(device)

	var swapChainAdequate bool
	if extensionsSupported {
		swapChainSupport, err := d.querySwapChainSupport(device)
		if err != nil {
			return indices, false
		}

		swapChainAdequate = len(swapChainSupport.Formats) > 0 && len(swapChainSupport.PresentModes) > 0
	}

	features := d.instanceDriver.GetPhysicalDeviceFeatures(device)
	return indices, indices.IsComplete() && extensionsSupported && swapChainAdequate && features.SamplerAnisotropy
}

func (d *Device) checkDeviceExtensionSupport(device core1_0.PhysicalDevice) bool {
	extensions, _, err := d.instanceDriver.EnumerateDeviceExtensionProperties(device)
	if err != nil {
		return false
	}

	for _, extension := range deviceExtensions {
		_, hasExtension := extensions[extension]
		if !hasExtension {
			return false
		}
	}

	return true
}

// findQueueFamilies prefers a single family that can both draw and present.
func (d *Device) findQueueFamilies(device core1_0.PhysicalDevice) (gfx.QueueFamilyIndices, error) {
	indices := gfx.QueueFamilyIndices{}
	queueFamilies := d.instanceDriver.GetPhysicalDeviceQueueFamilyProperties(device)

	for queueFamilyIdx, queueFamily := range queueFamilies {
		graphics := (queueFamily.QueueFlags & core1_0.QueueGraphics) != 0

		supported, _, err := d.surfaceExtension.GetPhysicalDeviceSurfaceSupport(d.surface, device, queueFamilyIdx)
		if err != nil {
			return indices, err
		}

		if graphics && supported {
			family := queueFamilyIdx
			return gfx.QueueFamilyIndices{GraphicsFamily: &family, PresentFamily: &family}, nil
		}

		if graphics && indices.GraphicsFamily == nil {
			indices.GraphicsFamily = new(int)
			*indices.GraphicsFamily = queueFamilyIdx
		}
		if supported && indices.PresentFamily == nil {
			indices.PresentFamily = new(int)
			*indices.PresentFamily = queueFamilyIdx
		}
	}

	return indices, nil
}

func (d *Device) querySwapChainSupport(device core1_0.PhysicalDevice) (gfx.SurfaceSupport, error) {
	var details gfx.SurfaceSupport
	var err error

	details.Capabilities, _, err = d.surfaceExtension.GetPhysicalDeviceSurfaceCapabilities(d.surface, device)
	if err != nil {
		return details, err
	}

	details.Formats, _, err = d.surfaceExtension.GetPhysicalDeviceSurfaceFormats(d.surface, device)
	if err != nil {
		return details, err
	}

	details.PresentModes, _, err = d.surfaceExtension.GetPhysicalDeviceSurfacePresentModes(d.surface, device)
	return details, err
}

func (d *Device) findSupportedFormat(formats []core1_0.Format, tiling core1_0.ImageTiling, features core1_0.FormatFeatureFlags) (core1_0.Format, error) {
	for _, format := range formats {
		props := d.instanceDriver.GetPhysicalDeviceFormatProperties(d.physicalDevice, format)

		if tiling == core1_0.ImageTilingLinear && (props.LinearTilingFeatures&features) == features {
			return format, nil
		} else if tiling == core1_0.ImageTilingOptimal && (props.OptimalTilingFeatures&features) == features {
			return format, nil
		}
	}

	return 0, errors.Newf("failed to find supported format for tiling %v, featureset %v", tiling, features)
}

func (d *Device) findDepthFormat() (core1_0.Format, error) {
	return d.findSupportedFormat([]core1_0.Format{core1_0.FormatD32SignedFloat, core1_0.FormatD32SignedFloatS8UnsignedInt, core1_0.FormatD24UnsignedNormalizedS8UnsignedInt},
		core1_0.ImageTilingOptimal,
		core1_0.FormatFeatureDepthStencilAttachment)
}

func (d *Device) findMemoryType(typeFilter uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	memProperties := d.instanceDriver.GetPhysicalDeviceMemoryProperties(d.physicalDevice)
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, errors.Newf("no memory type with properties %v", properties)
}

// SurfaceSupport reports a zero current extent while the window is minimized,
// whatever the platform says.
func (d *Device) SurfaceSupport() (gfx.SurfaceSupport, error) {
	support, err := d.querySwapChainSupport(d.physicalDevice)
	if err == nil && d.Minimized() {
		support.Capabilities.CurrentExtent = core1_0.Extent2D{}
	}
	return support, err
}

func (d *Device) DrawableExtent() core1_0.Extent2D {
	width, height := d.window.VulkanGetDrawableSize()
	if d.Minimized() {
		return core1_0.Extent2D{}
	}
	return core1_0.Extent2D{Width: int(width), Height: int(height)}
}

func (d *Device) QueueFamilies() gfx.QueueFamilyIndices {
	return d.queueFamilies
}

func (d *Device) DepthFormat() (core1_0.Format, error) {
	return d.depthFormat, nil
}

func (d *Device) StorageBufferAlignment() int {
	return d.storageAlignment
}

var _ gfx.Surface = (*Device)(nil)
