package assets

import (
	"bytes"
	"image"
	"image/png"
	"io/fs"

	"github.com/cockroachdb/errors"
)

// LoadTexture decodes a PNG image from fsys.
func LoadTexture(fsys fs.FS, path string) (image.Image, error) {
	imageBytes, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read texture %s", path)
	}

	decodedImage, err := png.Decode(bytes.NewBuffer(imageBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "decode texture %s", path)
	}

	size := decodedImage.Bounds().Size()
	if size.X == 0 || size.Y == 0 {
		return nil, errors.Newf("texture %s is empty", path)
	}
	return decodedImage, nil
}
