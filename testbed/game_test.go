package testbed

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/fromscratch/engine"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

func TestQuad(t *testing.T) {
	m := Quad()
	if len(m.Vertices) != 4 {
		t.Errorf("len(Vertices) = %d, want 4", len(m.Vertices))
	}
	if m.IndexCount() != 6 {
		t.Errorf("IndexCount() = %d, want 6", m.IndexCount())
	}
	for _, i := range m.Indices {
		if int(i) >= len(m.Vertices) {
			t.Errorf("index %d out of range", i)
		}
	}
	if got := len(m.VertexBytes()); got != 4*metadata.VertexSize {
		t.Errorf("len(VertexBytes()) = %d, want %d", got, 4*metadata.VertexSize)
	}
}

func TestGameRotates(t *testing.T) {
	g := NewTestGame(engine.DefaultConfig())
	if err := g.FnUpdate(2); err != nil {
		t.Fatal(err)
	}
	ubo, err := g.FnRender(2)
	if err != nil {
		t.Fatal(err)
	}
	want := mgl32.HomogRotate3DZ(1)
	if !ubo.Model.ApproxEqual(want) {
		t.Errorf("Model = %v, want %v", ubo.Model, want)
	}
	if ubo.Proj[5] >= 0 {
		t.Errorf("Proj[5] = %v, want negative for vulkan clip space", ubo.Proj[5])
	}
}
