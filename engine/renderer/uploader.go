package renderer

import (
	"fmt"

	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

const stagingProperties = metadata.MEMORY_PROPERTY_HOST_VISIBLE | metadata.MEMORY_PROPERTY_HOST_COHERENT

// Uploader moves CPU data into device local buffers through a temporary staging buffer.
type Uploader struct {
	driver    Driver
	allocator *Allocator
	// readback adds transfer source usage to every destination so Readback can copy it out again.
	readback bool
}

func NewUploader(driver Driver, allocator *Allocator, readback bool) *Uploader {
	return &Uploader{
		driver:    driver,
		allocator: allocator,
		readback:  readback,
	}
}

// Upload returns a device local buffer holding data, usable as usage. The staging
// buffer is released before Upload returns, whatever the outcome.
func (u *Uploader) Upload(data []byte, usage metadata.BufferUsageFlags) (*Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: nothing to upload", core.ErrAllocationFailure)
	}
	size := uint64(len(data))

	staging, err := u.allocator.CreateBuffer(size, metadata.BUFFER_USAGE_TRANSFER_SRC, stagingProperties)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	if err := staging.LoadData(data); err != nil {
		return nil, fmt.Errorf("%w: fill staging buffer: %w", core.ErrAllocationFailure, err)
	}

	dstUsage := metadata.BUFFER_USAGE_TRANSFER_DST | usage
	if u.readback {
		dstUsage |= metadata.BUFFER_USAGE_TRANSFER_SRC
	}
	dst, err := u.allocator.CreateBuffer(size, dstUsage, metadata.MEMORY_PROPERTY_DEVICE_LOCAL)
	if err != nil {
		return nil, err
	}

	if err := u.copyBuffer(staging, dst, size); err != nil {
		dst.Destroy()
		return nil, err
	}
	core.LogDebug("uploaded %d bytes into buffer %s", size, dst.ID)
	return dst, nil
}

// Readback copies a device local buffer into host memory. Only available when the
// uploader was created with readback enabled.
func (u *Uploader) Readback(src *Buffer) ([]byte, error) {
	if !src.Usage.Has(metadata.BUFFER_USAGE_TRANSFER_SRC) {
		return nil, fmt.Errorf("buffer %s was not created with transfer source usage", src.ID)
	}
	staging, err := u.allocator.CreateBuffer(src.Size, metadata.BUFFER_USAGE_TRANSFER_DST, stagingProperties)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	if err := u.copyBuffer(src, staging, src.Size); err != nil {
		return nil, err
	}
	mapped, err := staging.Map()
	if err != nil {
		return nil, err
	}
	out := make([]byte, src.Size)
	copy(out, mapped)
	return out, nil
}

// copyBuffer records a single full range copy into a one shot command buffer,
// submits it and blocks until the queue is idle.
func (u *Uploader) copyBuffer(src, dst *Buffer, size uint64) error {
	cb, err := u.driver.AllocateCommandBuffer()
	if err != nil {
		core.LogError("failed to allocate transfer command buffer: %s", err)
		return fmt.Errorf("%w: %w", core.ErrCommandAllocationFailure, err)
	}
	defer u.driver.FreeCommandBuffer(cb)

	if err := u.driver.BeginCommandBuffer(cb, true); err != nil {
		return fmt.Errorf("%w: begin transfer commands: %w", core.ErrCommandAllocationFailure, err)
	}
	u.driver.CmdCopyBuffer(cb, src.Handle, dst.Handle, size)
	if err := u.driver.EndCommandBuffer(cb); err != nil {
		return fmt.Errorf("%w: end transfer commands: %w", core.ErrCommandSubmissionFailure, err)
	}

	if err := u.driver.QueueSubmit(metadata.SubmitInfo{CommandBuffer: cb}); err != nil {
		core.LogError("failed to submit transfer: %s", err)
		return fmt.Errorf("%w: submit transfer: %w", core.ErrCommandSubmissionFailure, err)
	}
	if err := u.driver.QueueWaitIdle(); err != nil {
		// The copy may still be executing. The deferred frees must not run until it retires.
		if idleErr := u.driver.DeviceWaitIdle(); idleErr != nil {
			core.LogError("failed to wait for device idle after transfer wait failure: %s", idleErr)
		}
		return fmt.Errorf("%w: wait for transfer: %w", core.ErrCommandSubmissionFailure, err)
	}
	return nil
}
