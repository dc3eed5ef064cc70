package renderer

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

func TestFindMemoryType(t *testing.T) {
	hostVisible := metadata.MEMORY_PROPERTY_HOST_VISIBLE | metadata.MEMORY_PROPERTY_HOST_COHERENT
	types := []metadata.MemoryType{
		{PropertyFlags: metadata.MEMORY_PROPERTY_DEVICE_LOCAL},
		{PropertyFlags: hostVisible},
		{PropertyFlags: metadata.MEMORY_PROPERTY_DEVICE_LOCAL},
		{PropertyFlags: hostVisible | metadata.MEMORY_PROPERTY_HOST_CACHED},
	}

	tests := []struct {
		name    string
		filter  uint32
		props   metadata.MemoryPropertyFlags
		want    uint32
		wantErr bool
	}{
		{"lowest of two qualifying", 0b1010, hostVisible, 1, false},
		{"superset qualifies", 0b1000, hostVisible, 3, false},
		{"device local first", 0b0101, metadata.MEMORY_PROPERTY_DEVICE_LOCAL, 0, false},
		{"filter excludes first match", 0b0100, metadata.MEMORY_PROPERTY_DEVICE_LOCAL, 2, false},
		{"no property match", 0b0001, metadata.MEMORY_PROPERTY_HOST_VISIBLE, 0, true},
		{"empty filter", 0, metadata.MEMORY_PROPERTY_DEVICE_LOCAL, 0, true},
		{"filter beyond table", 0b10000, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindMemoryType(types, tt.filter, tt.props)
			if tt.wantErr {
				if !errors.Is(err, core.ErrNoSuitableMemoryType) {
					t.Fatalf("FindMemoryType() error = %v, want %v", err, core.ErrNoSuitableMemoryType)
				}
				return
			}
			if err != nil {
				t.Fatalf("FindMemoryType() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("FindMemoryType() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAllocatorUsesRequirementSize(t *testing.T) {
	m := newMockDriver()
	a := NewAllocator(m)

	b, err := a.CreateBuffer(100, metadata.BUFFER_USAGE_UNIFORM_BUFFER, stagingProperties)
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	if b.Size != 100 {
		t.Errorf("Size = %d, want 100", b.Size)
	}
	if b.AllocSize != 256 {
		t.Errorf("AllocSize = %d, want 256", b.AllocSize)
	}
	if len(m.lastMemAllocSizes) != 1 || m.lastMemAllocSizes[0] != 256 {
		t.Errorf("allocated sizes = %v, want [256]", m.lastMemAllocSizes)
	}
	if b.TypeIndex != 1 {
		t.Errorf("TypeIndex = %d, want 1", b.TypeIndex)
	}

	b.Destroy()
	b.Destroy()
	if m.memFrees != 1 {
		t.Errorf("memory freed %d times, want 1", m.memFrees)
	}
	if m.live() != 0 {
		t.Errorf("live objects = %d, want 0", m.live())
	}
	if len(m.violations) != 0 {
		t.Errorf("violations: %v", m.violations)
	}
}

func TestAllocatorNoSuitableMemoryType(t *testing.T) {
	m := newMockDriver()
	m.typeBits = 0b001
	a := NewAllocator(m)

	_, err := a.CreateBuffer(64, metadata.BUFFER_USAGE_TRANSFER_SRC, stagingProperties)
	if !errors.Is(err, core.ErrAllocationFailure) {
		t.Errorf("CreateBuffer() error = %v, want %v", err, core.ErrAllocationFailure)
	}
	if !errors.Is(err, core.ErrNoSuitableMemoryType) {
		t.Errorf("CreateBuffer() error = %v, want %v", err, core.ErrNoSuitableMemoryType)
	}
	if m.live() != 0 {
		t.Errorf("live objects after failure = %d, want 0", m.live())
	}
}

func TestAllocatorMemoryFailureReleasesBuffer(t *testing.T) {
	m := newMockDriver()
	m.failAllocateAt = 1
	a := NewAllocator(m)

	if _, err := a.CreateBuffer(64, metadata.BUFFER_USAGE_VERTEX_BUFFER, metadata.MEMORY_PROPERTY_DEVICE_LOCAL); !errors.Is(err, core.ErrAllocationFailure) {
		t.Errorf("CreateBuffer() error = %v, want %v", err, core.ErrAllocationFailure)
	}
	if m.live() != 0 {
		t.Errorf("live objects after failure = %d, want 0", m.live())
	}
}

func TestAllocatorRejectsZeroSize(t *testing.T) {
	m := newMockDriver()
	a := NewAllocator(m)
	if _, err := a.CreateBuffer(0, metadata.BUFFER_USAGE_VERTEX_BUFFER, metadata.MEMORY_PROPERTY_DEVICE_LOCAL); !errors.Is(err, core.ErrAllocationFailure) {
		t.Errorf("CreateBuffer(0) error = %v, want %v", err, core.ErrAllocationFailure)
	}
}

func TestBufferMapRequiresHostVisible(t *testing.T) {
	m := newMockDriver()
	a := NewAllocator(m)
	b, err := a.CreateBuffer(16, metadata.BUFFER_USAGE_VERTEX_BUFFER, metadata.MEMORY_PROPERTY_DEVICE_LOCAL)
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	defer b.Destroy()
	if _, err := b.Map(); err == nil {
		t.Errorf("Map() on device local buffer succeeded, want error")
	}
}

func TestAllocatorAlignsShortRequirement(t *testing.T) {
	m := newMockDriver()
	m.shortReqs = true
	a := NewAllocator(m)

	b, err := a.CreateBuffer(100, metadata.BUFFER_USAGE_VERTEX_BUFFER, metadata.MEMORY_PROPERTY_DEVICE_LOCAL)
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	defer b.Destroy()
	if b.AllocSize != 256 {
		t.Errorf("AllocSize = %d, want 256", b.AllocSize)
	}
	if len(m.lastMemAllocSizes) != 1 || m.lastMemAllocSizes[0] != 256 {
		t.Errorf("allocated sizes = %v, want [256]", m.lastMemAllocSizes)
	}
}
