package renderer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

const (
	DefaultMaxFramesInFlight = 2
	DefaultPauseInterval     = 100 * time.Millisecond
)

type Config struct {
	MaxFramesInFlight int
	// FenceTimeout of zero waits forever.
	FenceTimeout  time.Duration
	PauseInterval time.Duration
	ClearColor    [4]float32
	UseUniforms   bool
	DebugReadback bool
}

func DefaultConfig() Config {
	return Config{
		MaxFramesInFlight: DefaultMaxFramesInFlight,
		PauseInterval:     DefaultPauseInterval,
		ClearColor:        [4]float32{0, 0, 0, 1},
		UseUniforms:       true,
	}
}

// LoopSignal is what the window layer reports between two frames.
type LoopSignal uint8

const (
	LOOP_CONTINUE LoopSignal = iota
	LOOP_PAUSE
	LOOP_STOP
)

// Renderer owns the frame slots, the uploaded mesh and the scheduler drawing it.
type Renderer struct {
	driver Driver
	config Config

	allocator *Allocator
	uploader  *Uploader
	uniforms  *UniformUpdater
	scheduler *Scheduler

	frames   []*FrameResources
	geometry *Geometry

	initialized bool
	destroyed   bool
}

func New(driver Driver, config Config) (*Renderer, error) {
	if driver == nil {
		return nil, errors.New("renderer requires a driver")
	}
	if config.MaxFramesInFlight < 1 {
		return nil, fmt.Errorf("max frames in flight must be at least 1, got %d", config.MaxFramesInFlight)
	}
	if config.FenceTimeout < 0 {
		return nil, fmt.Errorf("fence timeout must not be negative, got %s", config.FenceTimeout)
	}
	if config.PauseInterval <= 0 {
		config.PauseInterval = DefaultPauseInterval
	}
	allocator := NewAllocator(driver)
	return &Renderer{
		driver:    driver,
		config:    config,
		allocator: allocator,
		uploader:  NewUploader(driver, allocator, config.DebugReadback),
	}, nil
}

// Initialize creates the frame slots and uploads the mesh to device local memory.
// On failure everything created so far is released.
func (r *Renderer) Initialize(mesh *metadata.Mesh) error {
	if r.destroyed {
		return core.ErrRendererDestroyed
	}
	if r.initialized {
		return errors.New("renderer already initialized")
	}
	if mesh == nil || len(mesh.Vertices) == 0 || len(mesh.Indices) == 0 {
		return errors.New("renderer requires a mesh with vertices and indices")
	}

	var uniformSize uint64
	if r.config.UseUniforms {
		uniformSize = metadata.UniformBufferObjectSize
	}

	r.frames = make([]*FrameResources, 0, r.config.MaxFramesInFlight)
	for i := 0; i < r.config.MaxFramesInFlight; i++ {
		f, err := newFrameResources(r.driver, r.allocator, i, uniformSize)
		if err != nil {
			r.release()
			return err
		}
		r.frames = append(r.frames, f)
	}
	core.LogDebug("created %d frame slots", len(r.frames))

	r.geometry = &Geometry{
		IndexCount: mesh.IndexCount(),
		IndexType:  metadata.INDEX_TYPE_UINT16,
	}
	var err error
	if r.geometry.Vertices, err = r.uploader.Upload(mesh.VertexBytes(), metadata.BUFFER_USAGE_VERTEX_BUFFER); err != nil {
		core.LogError("failed to upload vertices of mesh %q: %s", mesh.Name, err)
		r.release()
		return err
	}
	if r.geometry.Indices, err = r.uploader.Upload(mesh.IndexBytes(), metadata.BUFFER_USAGE_INDEX_BUFFER); err != nil {
		core.LogError("failed to upload indices of mesh %q: %s", mesh.Name, err)
		r.release()
		return err
	}

	r.uniforms = NewUniformUpdater(r.frames)
	r.scheduler = NewScheduler(r.driver, r.frames, r.geometry, r.uniforms, SchedulerConfig{
		FenceTimeout: r.config.FenceTimeout,
		ClearColor:   r.config.ClearColor,
	})
	r.initialized = true
	core.LogInfo("renderer initialized with %d frames in flight", len(r.frames))
	return nil
}

func (r *Renderer) DrawFrame() error {
	if r.destroyed {
		return core.ErrRendererDestroyed
	}
	if !r.initialized {
		return errors.New("renderer not initialized")
	}
	return r.scheduler.DrawFrame()
}

// SetTransform is picked up by the next frame after its slot fence wait.
func (r *Renderer) SetTransform(ubo metadata.UniformBufferObject) {
	if r.scheduler != nil {
		r.scheduler.SetTransform(ubo)
	}
}

// Run draws frames until the context is cancelled, poll reports LOOP_STOP or a
// frame fails. The device is idle when Run returns. The caller still owns teardown.
func (r *Renderer) Run(ctx context.Context, poll func() LoopSignal) error {
	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		default:
		}

		switch poll() {
		case LOOP_STOP:
			break loop
		case LOOP_PAUSE:
			select {
			case <-ctx.Done():
				break loop
			case <-time.After(r.config.PauseInterval):
			}
			continue
		}

		if err := r.DrawFrame(); err != nil {
			runErr = err
			break loop
		}
	}

	if r.initialized && !r.destroyed {
		if err := r.driver.DeviceWaitIdle(); err != nil {
			core.LogError("device wait idle failed after frame loop: %s", err)
			if runErr == nil {
				runErr = err
			}
		}
	}
	return runErr
}

// ReleaseAll waits for the device to go idle and destroys every object the
// renderer created, newest first. It is safe to call more than once.
func (r *Renderer) ReleaseAll() error {
	if r.destroyed {
		return nil
	}
	var err error
	if r.initialized || len(r.frames) > 0 {
		if err = r.driver.DeviceWaitIdle(); err != nil {
			core.LogError("device wait idle failed before teardown: %s", err)
		}
	}
	r.release()
	r.destroyed = true
	if r.scheduler != nil {
		r.scheduler.markDestroyed()
	}
	core.LogInfo("renderer resources released")
	return err
}

func (r *Renderer) release() {
	if r.geometry != nil {
		r.geometry.Indices.Destroy()
		r.geometry.Vertices.Destroy()
		r.geometry = nil
	}
	for i := len(r.frames) - 1; i >= 0; i-- {
		r.frames[i].destroy(r.driver)
	}
	r.frames = nil
}

func (r *Renderer) Uploader() *Uploader {
	return r.uploader
}

func (r *Renderer) Scheduler() *Scheduler {
	return r.scheduler
}

func (r *Renderer) Geometry() *Geometry {
	return r.geometry
}

func (r *Renderer) Frames() []*FrameResources {
	return r.frames
}

func (r *Renderer) Config() Config {
	return r.config
}
