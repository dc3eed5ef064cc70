package metadata

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestMeshVertexBytes(t *testing.T) {
	m := &Mesh{
		Vertices: []Vertex{
			{Pos: mgl32.Vec2{-0.5, 0.5}, Color: mgl32.Vec3{1, 0, 0}},
			{Pos: mgl32.Vec2{0.5, -0.5}, Color: mgl32.Vec3{0, 0, 1}},
		},
		Indices: []uint16{0, 1, 0},
	}
	vb := m.VertexBytes()
	if len(vb) != 2*VertexSize {
		t.Fatalf("len(VertexBytes()) = %d, want %d", len(vb), 2*VertexSize)
	}
	want := []float32{-0.5, 0.5, 1, 0, 0, 0.5, -0.5, 0, 0, 1}
	for i, w := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(vb[i*4:]))
		if got != w {
			t.Errorf("float %d = %v, want %v", i, got, w)
		}
	}

	ib := m.IndexBytes()
	if len(ib) != 6 {
		t.Fatalf("len(IndexBytes()) = %d, want 6", len(ib))
	}
	if got := binary.LittleEndian.Uint16(ib[2:]); got != 1 {
		t.Errorf("index 1 = %d, want 1", got)
	}
	if m.IndexCount() != 3 {
		t.Errorf("IndexCount() = %d, want 3", m.IndexCount())
	}
}

func TestUniformBufferObjectBytes(t *testing.T) {
	ubo := IdentityTransform()
	ubo.Proj[5] = -1
	b := ubo.Bytes()
	if len(b) != UniformBufferObjectSize {
		t.Fatalf("len(Bytes()) = %d, want %d", len(b), UniformBufferObjectSize)
	}
	at := func(i int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	if at(0) != 1 || at(1) != 0 {
		t.Errorf("model[0:2] = %v %v, want 1 0", at(0), at(1))
	}
	if at(32+5) != -1 {
		t.Errorf("proj[5] = %v, want -1", at(32+5))
	}
}

func TestFlagsHas(t *testing.T) {
	u := BUFFER_USAGE_TRANSFER_DST | BUFFER_USAGE_VERTEX_BUFFER
	if !u.Has(BUFFER_USAGE_VERTEX_BUFFER) || u.Has(BUFFER_USAGE_INDEX_BUFFER) {
		t.Errorf("BufferUsageFlags.Has mismatch for %#x", u)
	}
	p := MEMORY_PROPERTY_HOST_VISIBLE | MEMORY_PROPERTY_HOST_COHERENT
	if !p.Has(MEMORY_PROPERTY_HOST_VISIBLE|MEMORY_PROPERTY_HOST_COHERENT) || p.Has(MEMORY_PROPERTY_DEVICE_LOCAL) {
		t.Errorf("MemoryPropertyFlags.Has mismatch for %#x", p)
	}
}
