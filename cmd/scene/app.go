package main

import (
	"context"
	"math"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/loov/hrtime"
	"github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/forward/assets"
	"github.com/vkngwrapper/forward/config"
	"github.com/vkngwrapper/forward/gfx"
	"github.com/vkngwrapper/forward/gfx/vkdevice"
	"github.com/vkngwrapper/forward/render"
)

type application struct {
	cfg config.Config
	log *logrus.Logger

	window   *sdl.Window
	device   *vkdevice.Device
	sync     *vkdevice.FrameSync
	pipeline *render.Pipeline
	model    *render.Model

	instances    []render.Instance
	hidden       bool
	needsRebuild bool
}

func (app *application) Run() error {
	err := app.initWindow()
	if err != nil {
		return err
	}
	defer app.destroyWindow()

	app.device, err = vkdevice.New(app.window, vkdevice.Options{
		ApplicationName:  app.cfg.Window.Title,
		EnableValidation: app.cfg.Vulkan.EnableValidation,
		ValidationLayers: app.cfg.Vulkan.ValidationLayers,
	}, app.log)
	if err != nil {
		return err
	}
	defer app.device.Destroy()

	err = app.initScene()
	if err != nil {
		return err
	}
	defer app.cleanup()

	return app.mainLoop()
}

func (app *application) initWindow() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return errors.Wrap(err, "init sdl")
	}

	window, err := sdl.CreateWindow(app.cfg.Window.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(app.cfg.Window.Width), int32(app.cfg.Window.Height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return errors.Wrap(err, "create window")
	}
	app.window = window

	return nil
}

func (app *application) destroyWindow() {
	_ = app.window.Destroy()
	sdl.Quit()
}

func (app *application) models() []render.Drawable {
	return []render.Drawable{app.model}
}

func (app *application) initScene() error {
	scene, err := assets.LoadScene(context.Background(), os.DirFS(app.cfg.Assets.Root), app.cfg.Assets, app.log)
	if err != nil {
		return err
	}

	app.model = render.NewModel(app.device)
	err = app.populateModel(scene)
	if err != nil {
		app.model.Destroy()
		return err
	}

	for i := 0; i < app.cfg.Render.Instances; i++ {
		app.instances = append(app.instances, app.model.CreateInstance())
	}

	clearColor := app.cfg.Render.ClearColor
	app.pipeline = render.NewPipeline(app.device,
		render.WithPreferredImageCount(app.cfg.Vulkan.PreferredImageCount),
		render.WithMailbox(app.cfg.Vulkan.PreferMailbox),
		render.WithClearColor(clearColor[0], clearColor[1], clearColor[2], clearColor[3]),
	)

	err = app.pipeline.Build(app.models())
	if err != nil {
		_ = app.pipeline.Destroy()
		app.model.Destroy()
		return errors.Wrap(err, "build pipeline")
	}

	app.sync, err = app.device.NewFrameSync(app.cfg.Render.FramesInFlight, app.pipeline.ImageCount())
	if err != nil {
		_ = app.pipeline.Release(app.models())
		app.model.Destroy()
		return err
	}

	app.log.WithFields(logrus.Fields{
		"model":     app.model.ID(),
		"images":    app.pipeline.ImageCount(),
		"extent":    app.pipeline.Extent(),
		"instances": len(app.instances),
	}).Info("scene built")
	return nil
}

func (app *application) populateModel(scene *assets.Scene) error {
	err := app.model.AddVertices(scene.Mesh.Vertices, scene.Mesh.Indices)
	if err != nil {
		return err
	}

	err = app.model.AddShader(core1_0.StageVertex, scene.VertexShader)
	if err != nil {
		return err
	}

	err = app.model.AddShader(core1_0.StageFragment, scene.FragmentShader)
	if err != nil {
		return err
	}

	if scene.Texture != nil {
		mode := render.SamplingLinear
		if app.cfg.Assets.NearestFilter {
			mode = render.SamplingNearest
		}
		return app.model.SetTexture(scene.Texture, mode)
	}
	return nil
}

func (app *application) cleanup() {
	err := app.device.WaitIdle()
	if err != nil {
		app.log.WithError(err).Error("wait idle before cleanup")
	}

	app.sync.Destroy()

	err = app.pipeline.Release(app.models())
	if err != nil {
		app.log.WithError(err).Error("release pipeline")
		_ = app.pipeline.Destroy()
	}
	app.model.Destroy()
}

func (app *application) mainLoop() error {
	rendering := true

appLoop:
	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				break appLoop
			case *sdl.WindowEvent:
				switch e.Event {
				case sdl.WINDOWEVENT_MINIMIZED:
					rendering = false
				case sdl.WINDOWEVENT_RESTORED:
					rendering = true
					app.needsRebuild = true
				case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
					app.needsRebuild = true
				}
			case *sdl.KeyboardEvent:
				if e.Type != sdl.KEYDOWN {
					continue
				}
				if e.Keysym.Sym == sdl.K_ESCAPE {
					break appLoop
				}
				err := app.handleKey(e.Keysym.Sym)
				if err != nil {
					return err
				}
			}
		}

		if !rendering {
			sdl.Delay(10)
			continue
		}

		err := app.drawFrame()
		if err != nil {
			return err
		}
	}

	return app.device.WaitIdle()
}

func (app *application) handleKey(key sdl.Keycode) error {
	switch key {
	case sdl.K_SPACE:
		app.instances = append(app.instances, app.model.CreateInstance())
	case sdl.K_BACKSPACE:
		if len(app.instances) == 0 {
			return nil
		}
		last := app.instances[len(app.instances)-1]
		app.instances = app.instances[:len(app.instances)-1]
		return app.model.DeleteInstance(last)
	case sdl.K_v:
		if len(app.instances) == 0 {
			return nil
		}
		app.hidden = !app.hidden
		return app.model.SetVisible(app.instances[0], !app.hidden)
	default:
		return nil
	}

	app.log.WithFields(logrus.Fields{
		"instances": len(app.instances),
		"capacity":  app.model.Capacity(),
	}).Debug("instance count changed")
	return nil
}

// rebuild recreates the swapchain-bound resources. A surface that cannot back a
// swapchain right now leaves the rebuild pending.
func (app *application) rebuild() (bool, error) {
	start := hrtime.Now()

	err := app.pipeline.Rebuild(app.models())
	if errors.Is(err, gfx.ErrUnsupportedSurfaceState) {
		return false, nil
	} else if err != nil {
		return false, errors.Wrap(err, "rebuild pipeline")
	}

	err = app.sync.Resize(app.pipeline.ImageCount())
	if err != nil {
		return false, err
	}

	app.needsRebuild = false
	app.log.WithFields(logrus.Fields{
		"images":  app.pipeline.ImageCount(),
		"extent":  app.pipeline.Extent(),
		"elapsed": hrtime.Since(start),
	}).Info("swapchain rebuilt")
	return true, nil
}

func (app *application) drawFrame() error {
	if app.needsRebuild || app.model.NeedsRebuild() {
		rebuilt, err := app.rebuild()
		if err != nil || !rebuilt {
			return err
		}
	}

	imageIndex, err := app.sync.Acquire(app.pipeline.Swapchain())
	if errors.Is(err, gfx.ErrSurfaceOutOfDate) {
		app.needsRebuild = true
		return nil
	} else if err != nil {
		return err
	}

	err = app.animate()
	if err != nil {
		return err
	}

	err = app.model.Update(imageIndex)
	if err != nil {
		return err
	}

	err = app.pipeline.WriteUniforms(imageIndex, app.uniforms())
	if err != nil {
		return err
	}

	err = app.sync.Submit(app.pipeline.CommandBuffer(imageIndex), imageIndex)
	if err != nil {
		return err
	}

	err = app.sync.Present(app.pipeline.Swapchain(), imageIndex)
	if errors.Is(err, gfx.ErrSurfaceOutOfDate) {
		app.needsRebuild = true
		return nil
	}
	return err
}

// animate spreads the instances along the x axis and spins each one around z,
// one full turn every four seconds.
func (app *application) animate() error {
	timePeriod := math.Mod(hrtime.Now().Seconds(), 4.0)
	angle := float32(timePeriod * math.Pi / 2.0)

	spacing := float32(1.2)
	first := -spacing * float32(len(app.instances)-1) / 2

	for i, inst := range app.instances {
		transform := mgl32.Translate3D(first+spacing*float32(i), 0, 0).Mul4(mgl32.HomogRotate3DZ(angle))
		err := app.model.SetTransform(inst, transform)
		if err != nil {
			return err
		}
	}
	return nil
}

func (app *application) uniforms() render.UniformBufferObject {
	extent := app.pipeline.Extent()
	aspectRatio := float32(extent.Width) / float32(extent.Height)

	near := float32(0.1)
	far := float32(20.0)
	fovy := mgl32.DegToRad(45)

	ubo := render.UniformBufferObject{
		Model: mgl32.Ident4(),
		View: mgl32.LookAtV(
			mgl32.Vec3{3, 3, 3},
			mgl32.Vec3{0, 0, 0},
			mgl32.Vec3{0, 0, 1},
		),
		Proj: mgl32.Perspective(fovy, aspectRatio, near, far),
	}
	// clip space y points down
	ubo.Proj[5] *= -1
	return ubo
}
