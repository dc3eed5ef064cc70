package renderer

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

// Allocator creates buffers backed by a dedicated memory block each.
type Allocator struct {
	driver Driver
	types  []metadata.MemoryType
}

func NewAllocator(driver Driver) *Allocator {
	return &Allocator{
		driver: driver,
		types:  driver.MemoryTypes(),
	}
}

// FindMemoryType returns the lowest memory type index allowed by typeFilter whose
// property flags contain all of the requested properties.
func FindMemoryType(types []metadata.MemoryType, typeFilter uint32, properties metadata.MemoryPropertyFlags) (uint32, error) {
	for i := 0; i < len(types) && i < 32; i++ {
		if typeFilter&(1<<uint(i)) != 0 && types[i].PropertyFlags.Has(properties) {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("filter %#x, properties %#x: %w", typeFilter, properties, core.ErrNoSuitableMemoryType)
}

// CreateBuffer creates a buffer of the given size and binds a freshly allocated
// memory block of the size the device requires for it.
func (a *Allocator) CreateBuffer(size uint64, usage metadata.BufferUsageFlags, properties metadata.MemoryPropertyFlags) (*Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: zero sized buffer", core.ErrAllocationFailure)
	}

	handle, reqs, err := a.driver.CreateBuffer(size, usage)
	if err != nil {
		core.LogError("failed to create buffer of %d bytes: %s", size, err)
		return nil, fmt.Errorf("%w: create buffer: %w", core.ErrAllocationFailure, err)
	}

	typeIndex, err := FindMemoryType(a.types, reqs.MemoryTypeBits, properties)
	if err != nil {
		a.driver.DestroyBuffer(handle)
		core.LogError("unable to find a memory type for buffer: %s", err)
		return nil, fmt.Errorf("%w: %w", core.ErrAllocationFailure, err)
	}

	allocSize := reqs.Size
	if aligned := core.AlignUp(size, reqs.Alignment); allocSize < aligned {
		core.LogWarn("driver reported %d bytes for a %d byte buffer, allocating %d", reqs.Size, size, aligned)
		allocSize = aligned
	}

	memory, err := a.driver.AllocateMemory(allocSize, typeIndex)
	if err != nil {
		a.driver.DestroyBuffer(handle)
		core.LogError("failed to allocate %d bytes of buffer memory: %s", allocSize, err)
		return nil, fmt.Errorf("%w: allocate memory: %w", core.ErrAllocationFailure, err)
	}

	if err := a.driver.BindBufferMemory(handle, memory); err != nil {
		a.driver.DestroyBuffer(handle)
		a.driver.FreeMemory(memory)
		core.LogError("failed to bind buffer memory: %s", err)
		return nil, fmt.Errorf("%w: bind memory: %w", core.ErrAllocationFailure, err)
	}

	b := &Buffer{
		ID:         uuid.New(),
		Handle:     handle,
		Memory:     memory,
		Size:       size,
		AllocSize:  allocSize,
		TypeIndex:  typeIndex,
		Usage:      usage,
		Properties: properties,
		driver:     a.driver,
	}
	core.LogDebug("buffer %s created: size=%d alloc=%d type=%d usage=%#x", b.ID, size, allocSize, typeIndex, usage)
	return b, nil
}
