package assets

import (
	"context"
	"image"
	"io/fs"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vkngwrapper/forward/config"
)

// Scene is everything needed to populate one render.Model.
type Scene struct {
	VertexShader   []uint32
	FragmentShader []uint32
	// Texture is nil when no texture was configured.
	Texture image.Image
	Mesh    *Mesh
}

// LoadScene loads the configured assets from fsys concurrently. The built-in
// cube stands in when no mesh is configured.
func LoadScene(ctx context.Context, fsys fs.FS, paths config.Assets, log logrus.FieldLogger) (*Scene, error) {
	scene := &Scene{}
	start := hrtime.Now()

	group, ctx := errgroup.WithContext(ctx)
	load := func(name string, run func() error) {
		group.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			loadStart := hrtime.Now()
			err := run()
			if err != nil {
				return errors.Wrapf(err, "load %s", name)
			}

			log.WithFields(logrus.Fields{
				"asset":   name,
				"elapsed": hrtime.Since(loadStart),
			}).Debug("asset loaded")
			return nil
		})
	}

	load("vertex shader", func() (err error) {
		scene.VertexShader, err = LoadShader(fsys, paths.VertexShader)
		return err
	})
	load("fragment shader", func() (err error) {
		scene.FragmentShader, err = LoadShader(fsys, paths.FragmentShader)
		return err
	})
	if paths.Texture != "" {
		load("texture", func() (err error) {
			scene.Texture, err = LoadTexture(fsys, paths.Texture)
			return err
		})
	}
	if paths.Mesh != "" {
		load("mesh", func() (err error) {
			scene.Mesh, err = LoadMesh(fsys, paths.Mesh)
			return err
		})
	} else {
		scene.Mesh = Cube()
	}

	err := group.Wait()
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"vertices": len(scene.Mesh.Vertices),
		"indices":  len(scene.Mesh.Indices),
		"textured": scene.Texture != nil,
		"elapsed":  hrtime.Since(start),
	}).Info("scene assets loaded")
	return scene, nil
}
