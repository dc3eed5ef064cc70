package renderer

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

// Buffer is a GPU buffer together with the single memory block backing it.
type Buffer struct {
	ID         uuid.UUID
	Handle     metadata.BufferHandle
	Memory     metadata.MemoryHandle
	Size       uint64
	AllocSize  uint64
	TypeIndex  uint32
	Usage      metadata.BufferUsageFlags
	Properties metadata.MemoryPropertyFlags

	driver    Driver
	mapped    []byte
	destroyed bool
}

// Map maps the whole buffer. The mapping stays valid until Unmap or Destroy.
func (b *Buffer) Map() ([]byte, error) {
	if b.destroyed {
		return nil, fmt.Errorf("buffer %s: %w", b.ID, core.ErrRendererDestroyed)
	}
	if b.mapped != nil {
		return b.mapped, nil
	}
	if !b.Properties.Has(metadata.MEMORY_PROPERTY_HOST_VISIBLE) {
		return nil, fmt.Errorf("buffer %s is not host visible", b.ID)
	}
	data, err := b.driver.MapMemory(b.Memory, b.Size)
	if err != nil {
		core.LogError("failed to map buffer %s: %s", b.ID, err)
		return nil, err
	}
	b.mapped = data[:b.Size:b.Size]
	return b.mapped, nil
}

func (b *Buffer) Mapped() []byte {
	return b.mapped
}

func (b *Buffer) Unmap() {
	if b.mapped == nil {
		return
	}
	b.driver.UnmapMemory(b.Memory)
	b.mapped = nil
}

// LoadData copies data into a host visible buffer through a transient mapping.
func (b *Buffer) LoadData(data []byte) error {
	if uint64(len(data)) > b.Size {
		return fmt.Errorf("buffer %s: %d bytes do not fit in %d", b.ID, len(data), b.Size)
	}
	wasMapped := b.mapped != nil
	dst, err := b.Map()
	if err != nil {
		return err
	}
	copy(dst, data)
	if !wasMapped {
		b.Unmap()
	}
	return nil
}

// Destroy releases the buffer and its memory block. Calling it twice is a no-op.
func (b *Buffer) Destroy() {
	if b == nil || b.destroyed {
		return
	}
	b.Unmap()
	b.driver.DestroyBuffer(b.Handle)
	b.driver.FreeMemory(b.Memory)
	b.destroyed = true
}

func (b *Buffer) Destroyed() bool {
	return b.destroyed
}
