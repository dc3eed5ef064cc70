package renderer

import (
	"fmt"

	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

// FrameResources is everything one in-flight frame owns. A slot is only touched
// by the CPU after its InFlight fence has been observed signaled.
type FrameResources struct {
	Index          int
	CommandBuffer  metadata.CommandBufferHandle
	ImageAvailable metadata.SemaphoreHandle
	RenderFinished metadata.SemaphoreHandle
	InFlight       metadata.FenceHandle

	// Uniform is persistently mapped and nil when uniforms are disabled.
	Uniform       *Buffer
	DescriptorSet metadata.DescriptorSetHandle
}

func newFrameResources(driver Driver, allocator *Allocator, index int, uniformSize uint64) (*FrameResources, error) {
	f := &FrameResources{Index: index}

	var err error
	if f.CommandBuffer, err = driver.AllocateCommandBuffer(); err != nil {
		core.LogError("frame %d: failed to allocate command buffer: %s", index, err)
		return nil, fmt.Errorf("%w: frame %d: %w", core.ErrCommandAllocationFailure, index, err)
	}
	if f.ImageAvailable, err = driver.CreateSemaphore(); err != nil {
		f.destroy(driver)
		return nil, fmt.Errorf("%w: frame %d image available semaphore: %w", core.ErrAllocationFailure, index, err)
	}
	if f.RenderFinished, err = driver.CreateSemaphore(); err != nil {
		f.destroy(driver)
		return nil, fmt.Errorf("%w: frame %d render finished semaphore: %w", core.ErrAllocationFailure, index, err)
	}
	// Created signaled so the very first wait on this slot returns immediately.
	if f.InFlight, err = driver.CreateFence(true); err != nil {
		f.destroy(driver)
		return nil, fmt.Errorf("%w: frame %d fence: %w", core.ErrAllocationFailure, index, err)
	}

	if uniformSize > 0 {
		if f.Uniform, err = allocator.CreateBuffer(uniformSize, metadata.BUFFER_USAGE_UNIFORM_BUFFER, stagingProperties); err != nil {
			f.destroy(driver)
			return nil, err
		}
		if _, err = f.Uniform.Map(); err != nil {
			f.destroy(driver)
			return nil, fmt.Errorf("%w: frame %d uniform mapping: %w", core.ErrAllocationFailure, index, err)
		}
		if f.DescriptorSet, err = driver.AllocateDescriptorSet(f.Uniform.Handle, uniformSize); err != nil {
			f.destroy(driver)
			return nil, fmt.Errorf("%w: frame %d descriptor set: %w", core.ErrAllocationFailure, index, err)
		}
	}
	return f, nil
}

// destroy releases the slot objects in reverse creation order. The caller must
// make sure the device no longer uses them.
func (f *FrameResources) destroy(driver Driver) {
	if f.Uniform != nil {
		f.Uniform.Destroy()
		f.Uniform = nil
	}
	f.DescriptorSet = metadata.NullHandle
	if f.InFlight != metadata.NullHandle {
		driver.DestroyFence(f.InFlight)
		f.InFlight = metadata.NullHandle
	}
	if f.RenderFinished != metadata.NullHandle {
		driver.DestroySemaphore(f.RenderFinished)
		f.RenderFinished = metadata.NullHandle
	}
	if f.ImageAvailable != metadata.NullHandle {
		driver.DestroySemaphore(f.ImageAvailable)
		f.ImageAvailable = metadata.NullHandle
	}
	if f.CommandBuffer != metadata.NullHandle {
		driver.FreeCommandBuffer(f.CommandBuffer)
		f.CommandBuffer = metadata.NullHandle
	}
}
