// Package assets loads the shaders, textures and meshes a scene is built from.
package assets

import (
	"io/fs"

	"github.com/cockroachdb/errors"
)

const spirvMagic = 0x07230203

// ErrInvalidShader marks shader files that are not little-endian SPIR-V.
var ErrInvalidShader = errors.New("invalid SPIR-V")

// LoadShader reads a compiled SPIR-V module from fsys.
func LoadShader(fsys fs.FS, path string) ([]uint32, error) {
	b, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", path)
	}

	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Mark(errors.Newf("shader %s is %d bytes, not a whole number of words", path, len(b)), ErrInvalidShader)
	}

	code := bytesToBytecode(b)
	if code[0] != spirvMagic {
		return nil, errors.Mark(errors.Newf("shader %s has magic %#x", path, code[0]), ErrInvalidShader)
	}
	return code, nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}
