package core

import (
	"errors"
)

var (
	// ErrAllocationFailure is returned when a buffer or its backing memory cannot be created.
	ErrAllocationFailure = errors.New("gpu allocation failure")
	// ErrNoSuitableMemoryType is returned when no memory type satisfies both the type filter and the requested properties.
	ErrNoSuitableMemoryType = errors.New("no suitable memory type")

	ErrCommandAllocationFailure = errors.New("command buffer allocation failure")
	ErrCommandSubmissionFailure = errors.New("command submission failure")
	ErrFenceTimeout             = errors.New("timed out waiting for fence")

	// ErrResourceInUse means the CPU tried to reuse a frame slot the GPU still owns.
	ErrResourceInUse = errors.New("frame resources still in use by the gpu")

	ErrInvalidFrameSlot  = errors.New("invalid frame slot")
	ErrRendererDestroyed = errors.New("renderer already destroyed")
	ErrUnknown           = errors.New("unknown")
)
