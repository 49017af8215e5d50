// Package vkdevice implements gfx.Device on Vulkan through vkngwrapper, presenting
// to an SDL2 window.
package vkdevice

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"

	"github.com/vkngwrapper/forward/gfx"
)

var deviceExtensions = []string{khr_swapchain.ExtensionName}

type Options struct {
	ApplicationName  string
	EnableValidation bool
	ValidationLayers []string
}

type imageEntry struct {
	image core1_0.Image
	// swapchain images belong to their swapchain and are never destroyed directly
	owned bool
}

type swapchainEntry struct {
	swapchain khr_swapchain.Swapchain
	images    []gfx.Handle
}

type descriptorPoolEntry struct {
	pool core1_0.DescriptorPool
	sets []gfx.Handle
}

// Device owns the Vulkan instance, surface and logical device for one window.
// It is not safe for concurrent use.
type Device struct {
	window *sdl.Window
	log    logrus.FieldLogger

	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver
	deviceDriver   core1_0.CoreDeviceDriver

	debugDriver        ext_debug_utils.ExtensionDriver
	debugMessenger     ext_debug_utils.DebugUtilsMessenger
	surfaceExtension   khr_surface.ExtensionDriver
	surface            khr_surface.Surface
	swapchainExtension khr_swapchain.ExtensionDriver

	physicalDevice core1_0.PhysicalDevice
	queueFamilies  gfx.QueueFamilyIndices
	graphicsQueue  core1_0.Queue
	presentQueue   core1_0.Queue
	depthFormat    core1_0.Format

	// transferPool backs the blocking one-shot copies
	transferPool core1_0.CommandPool

	counter          gfx.Handle
	swapchains       *table[swapchainEntry]
	images           *table[imageEntry]
	imageViews       *table[core1_0.ImageView]
	memories         *table[core1_0.DeviceMemory]
	buffers          *table[core1_0.Buffer]
	renderPasses     *table[core1_0.RenderPass]
	framebuffers     *table[core1_0.Framebuffer]
	commandPools     *table[core1_0.CommandPool]
	commandBuffers   *table[core1_0.CommandBuffer]
	setLayouts       *table[core1_0.DescriptorSetLayout]
	descriptorPools  *table[descriptorPoolEntry]
	descriptorSets   *table[core1_0.DescriptorSet]
	pipelineLayouts  *table[core1_0.PipelineLayout]
	pipelines        *table[core1_0.Pipeline]
	shaderModules    *table[core1_0.ShaderModule]
	samplers         *table[core1_0.Sampler]
	anisotropyLimit  float32
	storageAlignment int
	enableValidation bool
}

var _ gfx.Device = (*Device)(nil)

// New creates a Vulkan instance with the window's required extensions, picks
// the first physical device that can draw and present to the window and creates
// a logical device on it.
func New(window *sdl.Window, options Options, log logrus.FieldLogger) (*Device, error) {
	d := &Device{
		window:           window,
		log:              log,
		enableValidation: options.EnableValidation,
	}
	d.swapchains = newTable[swapchainEntry]("swapchain", &d.counter)
	d.images = newTable[imageEntry]("image", &d.counter)
	d.imageViews = newTable[core1_0.ImageView]("image view", &d.counter)
	d.memories = newTable[core1_0.DeviceMemory]("memory", &d.counter)
	d.buffers = newTable[core1_0.Buffer]("buffer", &d.counter)
	d.renderPasses = newTable[core1_0.RenderPass]("render pass", &d.counter)
	d.framebuffers = newTable[core1_0.Framebuffer]("framebuffer", &d.counter)
	d.commandPools = newTable[core1_0.CommandPool]("command pool", &d.counter)
	d.commandBuffers = newTable[core1_0.CommandBuffer]("command buffer", &d.counter)
	d.setLayouts = newTable[core1_0.DescriptorSetLayout]("descriptor set layout", &d.counter)
	d.descriptorPools = newTable[descriptorPoolEntry]("descriptor pool", &d.counter)
	d.descriptorSets = newTable[core1_0.DescriptorSet]("descriptor set", &d.counter)
	d.pipelineLayouts = newTable[core1_0.PipelineLayout]("pipeline layout", &d.counter)
	d.pipelines = newTable[core1_0.Pipeline]("graphics pipeline", &d.counter)
	d.shaderModules = newTable[core1_0.ShaderModule]("shader module", &d.counter)
	d.samplers = newTable[core1_0.Sampler]("sampler", &d.counter)

	var err error
	d.globalDriver, err = core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return nil, errors.Wrap(err, "load vulkan")
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"create instance", func() error { return d.createInstance(options) }},
		{"setup debug messenger", d.setupDebugMessenger},
		{"create surface", d.createSurface},
		{"pick physical device", d.pickPhysicalDevice},
		{"create logical device", d.createLogicalDevice},
		{"create transfer pool", d.createTransferPool},
	}
	for _, step := range steps {
		err = step.run()
		if err != nil {
			d.Destroy()
			return nil, errors.Wrap(err, step.name)
		}
	}

	return d, nil
}

// Destroy tears down the logical device, surface and instance. Every resource
// created through the device must have been destroyed first; leftovers are
// reported through the logger.
func (d *Device) Destroy() {
	if d.deviceDriver != nil {
		_, _ = d.deviceDriver.DeviceWaitIdle()
		d.reportLeaks()

		if d.transferPool.Initialized() {
			d.deviceDriver.DestroyCommandPool(d.transferPool, nil)
			d.transferPool = core1_0.CommandPool{}
		}
		d.deviceDriver.DestroyDevice(nil)
		d.deviceDriver = nil
	}

	if d.debugMessenger.Initialized() {
		d.debugDriver.DestroyDebugUtilsMessenger(d.debugMessenger, nil)
		d.debugMessenger = ext_debug_utils.DebugUtilsMessenger{}
	}

	if d.surface.Initialized() {
		d.surfaceExtension.DestroySurface(d.surface, nil)
		d.surface = khr_surface.Surface{}
	}

	if d.instanceDriver != nil {
		d.instanceDriver.DestroyInstance(nil)
		d.instanceDriver = nil
	}
}

func (d *Device) reportLeaks() {
	counts := map[string]int{
		"swapchain":             d.swapchains.len(),
		"image view":            d.imageViews.len(),
		"memory":                d.memories.len(),
		"buffer":                d.buffers.len(),
		"render pass":           d.renderPasses.len(),
		"framebuffer":           d.framebuffers.len(),
		"command pool":          d.commandPools.len(),
		"descriptor set layout": d.setLayouts.len(),
		"descriptor pool":       d.descriptorPools.len(),
		"pipeline layout":       d.pipelineLayouts.len(),
		"graphics pipeline":     d.pipelines.len(),
		"shader module":         d.shaderModules.len(),
		"sampler":               d.samplers.len(),
	}
	for kind, count := range counts {
		if count > 0 {
			d.log.WithFields(logrus.Fields{"kind": kind, "count": count}).Warn("resources still live at device destruction")
		}
	}
}

func (d *Device) WaitIdle() error {
	_, err := d.deviceDriver.DeviceWaitIdle()
	if err != nil {
		return errors.Wrap(err, "device wait idle")
	}
	return nil
}

// Minimized reports whether the window is currently minimized, in which case
// the surface has no drawable area.
func (d *Device) Minimized() bool {
	return d.window.GetFlags()&sdl.WINDOW_MINIMIZED != 0
}

func (d *Device) createInstance(options Options) error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    options.ApplicationName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "forward",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := d.window.VulkanGetInstanceExtensions()
	extensions, _, err := d.globalDriver.AvailableExtensions()
	if err != nil {
		return err
	}

	for _, ext := range sdlExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Newf("missing instance extension %s required by sdl", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if d.enableValidation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if d.enableValidation {
		layers, _, err := d.globalDriver.AvailableLayers()
		if err != nil {
			return err
		}

		for _, layer := range options.ValidationLayers {
			_, hasValidation := layers[layer]
			if !hasValidation {
				return errors.WithHint(
					errors.Newf("validation layer %s not available", layer),
					"install the LunarG Vulkan SDK or disable validation")
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		instanceOptions.Next = d.debugMessengerOptions()
	}

	d.instanceDriver, _, err = d.globalDriver.CreateInstance(nil, instanceOptions)
	if err != nil {
		return err
	}

	d.log.WithFields(logrus.Fields{
		"extensions": instanceOptions.EnabledExtensionNames,
		"layers":     instanceOptions.EnabledLayerNames,
	}).Debug("vulkan instance created")
	return nil
}

func (d *Device) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    d.logDebug,
	}
}

func (d *Device) setupDebugMessenger() error {
	if !d.enableValidation {
		return nil
	}

	var err error
	d.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(d.instanceDriver)
	d.debugMessenger, _, err = d.debugDriver.CreateDebugUtilsMessenger(nil, d.debugMessengerOptions())
	return err
}

func (d *Device) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	entry := d.log.WithField("type", msgType)
	if severity&ext_debug_utils.SeverityError != 0 {
		entry.Error(data.Message)
	} else {
		entry.Warn(data.Message)
	}
	return false
}

func (d *Device) createSurface() error {
	d.surfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(d.instanceDriver)
	surface, err := vkng_sdl2.CreateSurface(d.instanceDriver.Instance(), d.surfaceExtension, d.window)
	if err != nil {
		return err
	}

	d.surface = surface
	return nil
}

func (d *Device) createLogicalDevice() error {
	indices := d.queueFamilies

	uniqueQueueFamilies := []int{*indices.GraphicsFamily}
	if uniqueQueueFamilies[0] != *indices.PresentFamily {
		uniqueQueueFamilies = append(uniqueQueueFamilies, *indices.PresentFamily)
	}

	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range uniqueQueueFamilies {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	var extensionNames []string
	extensionNames = append(extensionNames, deviceExtensions...)

	extensions, _, err := d.instanceDriver.EnumerateDeviceExtensionProperties(d.physicalDevice)
	if err != nil {
		return err
	}

	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	d.deviceDriver, _, err = d.instanceDriver.CreateDevice(d.physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueFamilyOptions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: true,
		},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return err
	}

	d.swapchainExtension = khr_swapchain.CreateExtensionDriverFromCoreDriver(d.deviceDriver)
	d.graphicsQueue = d.deviceDriver.GetQueue(*indices.GraphicsFamily, 0)
	d.presentQueue = d.deviceDriver.GetQueue(*indices.PresentFamily, 0)
	return nil
}

func (d *Device) createTransferPool() error {
	var err error
	d.transferPool, _, err = d.deviceDriver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: *d.queueFamilies.GraphicsFamily,
	})
	return err
}
