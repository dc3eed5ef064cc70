package engine

import (
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

// Initialize returns the mesh uploaded once and drawn every frame.
type Initialize func() (*metadata.Mesh, error)
type Update func(deltaTime float64) error

// Render produces the transform for the frame about to be drawn.
type Render func(deltaTime float64) (metadata.UniformBufferObject, error)
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
