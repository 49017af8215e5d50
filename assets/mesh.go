package assets

import (
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/vkngwrapper/forward/render"
)

// Mesh is indexed triangle geometry ready for render.Model.AddVertices.
type Mesh struct {
	Vertices []render.Vertex
	Indices  []uint32
}

type meshBuilder struct {
	decoder        *obj.Decoder
	uniqueVertices map[[2]int]uint32
	mesh           Mesh
}

func (b *meshBuilder) addVertex(face obj.Face, faceIndex int) {
	vertInd := face.Vertices[faceIndex]
	uvInd := -1
	if faceIndex < len(face.Uvs) {
		uvInd = face.Uvs[faceIndex]
	}

	key := [2]int{vertInd, uvInd}
	index, vertexExists := b.uniqueVertices[key]

	if !vertexExists {
		vert := render.Vertex{Position: mgl32.Vec3{
			b.decoder.Vertices[vertInd*3],
			b.decoder.Vertices[vertInd*3+1],
			b.decoder.Vertices[vertInd*3+2],
		}, Color: mgl32.Vec3{1, 1, 1}}

		if uvInd >= 0 && uvInd*2+1 < len(b.decoder.Uvs) {
			vert.TexCoord = mgl32.Vec2{
				b.decoder.Uvs[uvInd*2],
				1.0 - b.decoder.Uvs[uvInd*2+1],
			}
		}

		index = uint32(len(b.mesh.Vertices))
		b.mesh.Vertices = append(b.mesh.Vertices, vert)
		b.uniqueVertices[key] = index
	}

	b.mesh.Indices = append(b.mesh.Indices, index)
}

// LoadMesh decodes a Wavefront OBJ file from fsys, fanning polygons into
// triangles and merging vertices that share position and texture coordinate.
// A material library next to the mesh with the same base name is used if present.
func LoadMesh(fsys fs.FS, meshPath string) (*Mesh, error) {
	meshFile, err := fsys.Open(meshPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open mesh %s", meshPath)
	}
	defer meshFile.Close()

	var matReader io.Reader = strings.NewReader("")
	matPath := strings.TrimSuffix(meshPath, path.Ext(meshPath)) + ".mtl"
	matFile, err := fsys.Open(matPath)
	if err == nil {
		defer matFile.Close()
		matReader = matFile
	}

	decoder, err := obj.DecodeReader(meshFile, matReader)
	if err != nil {
		return nil, errors.Wrapf(err, "decode mesh %s", meshPath)
	}

	return buildMesh(decoder, meshPath)
}

func buildMesh(decoder *obj.Decoder, meshPath string) (*Mesh, error) {
	builder := &meshBuilder{
		decoder:        decoder,
		uniqueVertices: make(map[[2]int]uint32),
	}

	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			// polygons are fanned around their first vertex
			for i := 2; i < len(face.Vertices); i++ {
				builder.addVertex(face, 0)
				builder.addVertex(face, i-1)
				builder.addVertex(face, i)
			}
		}
	}

	if len(builder.mesh.Indices) == 0 {
		return nil, errors.Newf("mesh %s has no faces", meshPath)
	}
	return &builder.mesh, nil
}

// Cube is a unit cube centered on the origin with one texture tile per face.
func Cube() *Mesh {
	corners := [8]mgl32.Vec3{
		{-0.5, -0.5, -0.5}, {0.5, -0.5, -0.5}, {0.5, 0.5, -0.5}, {-0.5, 0.5, -0.5},
		{-0.5, -0.5, 0.5}, {0.5, -0.5, 0.5}, {0.5, 0.5, 0.5}, {-0.5, 0.5, 0.5},
	}
	// counter-clockwise seen from outside
	faces := [6][4]int{
		{4, 5, 6, 7}, // +z
		{1, 0, 3, 2}, // -z
		{5, 1, 2, 6}, // +x
		{0, 4, 7, 3}, // -x
		{7, 6, 2, 3}, // +y
		{0, 1, 5, 4}, // -y
	}
	uvs := [4]mgl32.Vec2{{0, 1}, {1, 1}, {1, 0}, {0, 0}}

	mesh := &Mesh{}
	for _, face := range faces {
		base := uint32(len(mesh.Vertices))
		for i, corner := range face {
			mesh.Vertices = append(mesh.Vertices, render.Vertex{
				Position: corners[corner],
				Color:    mgl32.Vec3{1, 1, 1},
				TexCoord: uvs[i],
			})
		}
		mesh.Indices = append(mesh.Indices, base, base+1, base+2, base+2, base+3, base)
	}
	return mesh
}
