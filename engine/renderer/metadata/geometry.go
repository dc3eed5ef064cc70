package metadata

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// VertexSize is the packed size of a Vertex on the GPU: vec2 position followed by vec3 color.
const VertexSize = 5 * 4

type Vertex struct {
	Pos   mgl32.Vec2
	Color mgl32.Vec3
}

/**
 * @brief Represents the geometry drawn every frame.
 * Vertices and indices are uploaded once to device local memory.
 */
type Mesh struct {
	Name     string
	Vertices []Vertex
	Indices  []uint16
}

// VertexBytes packs the vertices as little endian float32 values in shader input order.
func (m *Mesh) VertexBytes() []byte {
	out := make([]byte, 0, len(m.Vertices)*VertexSize)
	for _, v := range m.Vertices {
		out = appendFloats(out, v.Pos[:]...)
		out = appendFloats(out, v.Color[:]...)
	}
	return out
}

func (m *Mesh) IndexBytes() []byte {
	out := make([]byte, 0, len(m.Indices)*2)
	for _, i := range m.Indices {
		out = binary.LittleEndian.AppendUint16(out, i)
	}
	return out
}

func (m *Mesh) IndexCount() uint32 {
	return uint32(len(m.Indices))
}

func appendFloats(dst []byte, values ...float32) []byte {
	for _, f := range values {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
	}
	return dst
}
