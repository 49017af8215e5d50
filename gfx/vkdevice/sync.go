package vkdevice

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/forward/gfx"
)

// FrameSync owns the semaphores and fences that pace acquire, submit and present
// with up to a fixed number of frames in flight.
//
// Acquire returns only once the previous submission that targeted the acquired
// image has retired, so the caller may rewrite that image's per-frame data.
type FrameSync struct {
	device       *Device
	frames       int
	currentFrame int

	imageAvailable []core1_0.Semaphore
	inFlight       []core1_0.Fence

	renderFinished []core1_0.Semaphore
	imagesInFlight []core1_0.Fence
}

func (d *Device) NewFrameSync(frames, imageCount int) (*FrameSync, error) {
	if frames < 1 {
		return nil, errors.Newf("frames in flight must be positive, got %d", frames)
	}

	s := &FrameSync{device: d, frames: frames}
	for i := 0; i < frames; i++ {
		semaphore, _, err := d.deviceDriver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			s.Destroy()
			return nil, gfx.CreationFailure(err, "image available semaphore %d", i)
		}
		s.imageAvailable = append(s.imageAvailable, semaphore)

		fence, _, err := d.deviceDriver.CreateFence(nil, core1_0.FenceCreateInfo{
			Flags: core1_0.FenceCreateSignaled,
		})
		if err != nil {
			s.Destroy()
			return nil, gfx.CreationFailure(err, "in flight fence %d", i)
		}
		s.inFlight = append(s.inFlight, fence)
	}

	err := s.Resize(imageCount)
	if err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

// Resize recreates the per-image semaphores for a rebuilt swapchain. The device
// must be idle.
func (s *FrameSync) Resize(imageCount int) error {
	s.destroyPerImage()

	for i := 0; i < imageCount; i++ {
		semaphore, _, err := s.device.deviceDriver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return gfx.CreationFailure(err, "render finished semaphore %d", i)
		}

		s.renderFinished = append(s.renderFinished, semaphore)
		s.imagesInFlight = append(s.imagesInFlight, core1_0.Fence{})
	}
	return nil
}

// Acquire waits for the current frame slot and returns the index of the next
// swapchain image. It returns gfx.ErrSurfaceOutOfDate when the swapchain must be
// rebuilt first.
func (s *FrameSync) Acquire(swapchain gfx.Swapchain) (int, error) {
	entry, err := s.device.swapchains.get(swapchain.Handle)
	if err != nil {
		return 0, err
	}

	fences := []core1_0.Fence{s.inFlight[s.currentFrame]}
	_, err = s.device.deviceDriver.WaitForFences(true, common.NoTimeout, fences...)
	if err != nil {
		return 0, errors.Wrap(err, "wait for frame")
	}

	imageIndex, res, err := s.device.swapchainExtension.AcquireNextImage(entry.swapchain, common.NoTimeout, &s.imageAvailable[s.currentFrame], nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		return 0, errors.Mark(errors.New("acquire next image"), gfx.ErrSurfaceOutOfDate)
	} else if err != nil {
		return 0, errors.Wrap(err, "acquire next image")
	}

	if imageIndex < 0 || imageIndex >= len(s.imagesInFlight) {
		return 0, errors.Newf("acquired image %d outside swapchain of %d images", imageIndex, len(s.imagesInFlight))
	}

	if s.imagesInFlight[imageIndex].Initialized() {
		_, err := s.device.deviceDriver.WaitForFences(true, common.NoTimeout, s.imagesInFlight[imageIndex])
		if err != nil {
			return 0, errors.Wrapf(err, "wait for image %d", imageIndex)
		}
	}
	s.imagesInFlight[imageIndex] = s.inFlight[s.currentFrame]

	return imageIndex, nil
}

func (s *FrameSync) Submit(buffer gfx.CommandBuffer, imageIndex int) error {
	native, err := s.device.commandBuffers.get(buffer.Handle)
	if err != nil {
		return err
	}

	_, err = s.device.deviceDriver.ResetFences(s.inFlight[s.currentFrame])
	if err != nil {
		return errors.Wrap(err, "reset frame fence")
	}

	_, err = s.device.deviceDriver.QueueSubmit(s.device.graphicsQueue, &s.inFlight[s.currentFrame],
		core1_0.SubmitInfo{
			WaitSemaphores:   []core1_0.Semaphore{s.imageAvailable[s.currentFrame]},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{native},
			SignalSemaphores: []core1_0.Semaphore{s.renderFinished[imageIndex]},
		},
	)
	return errors.Wrapf(err, "submit image %d", imageIndex)
}

// Present queues imageIndex for presentation and advances to the next frame slot.
// An out-of-date or suboptimal swapchain is reported as gfx.ErrSurfaceOutOfDate.
func (s *FrameSync) Present(swapchain gfx.Swapchain, imageIndex int) error {
	entry, err := s.device.swapchains.get(swapchain.Handle)
	if err != nil {
		return err
	}

	s.currentFrame = (s.currentFrame + 1) % s.frames

	res, err := s.device.swapchainExtension.QueuePresent(s.device.presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{s.renderFinished[imageIndex]},
		Swapchains:     []khr_swapchain.Swapchain{entry.swapchain},
		ImageIndices:   []int{imageIndex},
	})
	if res == khr_swapchain.VKErrorOutOfDate || res == khr_swapchain.VKSuboptimal {
		return errors.Mark(errors.Newf("present image %d", imageIndex), gfx.ErrSurfaceOutOfDate)
	} else if err != nil {
		return errors.Wrapf(err, "present image %d", imageIndex)
	}
	return nil
}

func (s *FrameSync) destroyPerImage() {
	for _, semaphore := range s.renderFinished {
		s.device.deviceDriver.DestroySemaphore(semaphore, nil)
	}
	s.renderFinished = nil
	s.imagesInFlight = nil
}

// Destroy releases every synchronization object. The device must be idle.
func (s *FrameSync) Destroy() {
	s.destroyPerImage()

	for _, fence := range s.inFlight {
		s.device.deviceDriver.DestroyFence(fence, nil)
	}
	s.inFlight = nil

	for _, semaphore := range s.imageAvailable {
		s.device.deviceDriver.DestroySemaphore(semaphore, nil)
	}
	s.imageAvailable = nil
}
