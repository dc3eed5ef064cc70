package testbed

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/fromscratch/engine"
	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

// Radians per second around the z axis.
const rotationSpeed = 0.5

type TestGame struct {
	*engine.Game
}

type gameState struct {
	angle  float32
	width  uint32
	height uint32
}

func NewTestGame(config *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State: &gameState{
				width:  config.Window.StartWidth,
				height: config.Window.StartHeight,
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

// Quad is four colored corners drawn as two triangles.
func Quad() *metadata.Mesh {
	return &metadata.Mesh{
		Name: "quad",
		Vertices: []metadata.Vertex{
			{Pos: mgl32.Vec2{-0.5, -0.5}, Color: mgl32.Vec3{1, 0, 0}},
			{Pos: mgl32.Vec2{0.5, -0.5}, Color: mgl32.Vec3{0, 1, 0}},
			{Pos: mgl32.Vec2{0.5, 0.5}, Color: mgl32.Vec3{0, 0, 1}},
			{Pos: mgl32.Vec2{-0.5, 0.5}, Color: mgl32.Vec3{1, 1, 1}},
		},
		Indices: []uint16{0, 1, 2, 2, 3, 0},
	}
}

func (g *TestGame) Initialize() (*metadata.Mesh, error) {
	core.LogDebug("TestGame Initialize fn....")
	return Quad(), nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	state.angle += float32(deltaTime * rotationSpeed)
	return nil
}

func (g *TestGame) Render(deltaTime float64) (metadata.UniformBufferObject, error) {
	state := g.State.(*gameState)
	return Transform(state.angle, state.width, state.height), nil
}

// Transform looks down on the quad spinning in the xy plane.
func Transform(angle float32, width, height uint32) metadata.UniformBufferObject {
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	proj := mgl32.Perspective(mgl32.DegToRad(45), aspect, 0.1, 10)
	// Vulkan clip space has y pointing down.
	proj[5] *= -1
	return metadata.UniformBufferObject{
		Model: mgl32.HomogRotate3DZ(angle),
		View:  mgl32.LookAtV(mgl32.Vec3{0, 0, 2}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0}),
		Proj:  proj,
	}
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	core.LogDebug("testbed extent %dx%d", width, height)
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogDebug("TestGame Shutdown fn....")
	return nil
}
