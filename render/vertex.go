package render

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
	TexCoord mgl32.Vec2
}

// UniformBufferObject is the per-frame transform triple bound at binding 0.
type UniformBufferObject struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

// InstanceData is one slot of a model's instance buffer as the vertex shader
// reads it. Params.X() is 1 for a visible instance and 0 otherwise.
type InstanceData struct {
	Transform mgl32.Mat4
	Params    mgl32.Vec4
}

var (
	uniformBufferSize = int(unsafe.Sizeof(UniformBufferObject{}))
	instanceDataSize  = int(unsafe.Sizeof(InstanceData{}))
)

func getVertexBindingDescription() []core1_0.VertexInputBindingDescription {
	v := Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func getVertexAttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.TexCoord)),
		},
	}
}

// encode lays data out in the byte order the device expects.
func encode(data any) ([]byte, error) {
	buf := &bytes.Buffer{}
	err := binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
