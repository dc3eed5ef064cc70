package metadata

import "time"

// Opaque handles handed out by a renderer backend. Zero is never a valid handle.
type (
	BufferHandle        uint64
	MemoryHandle        uint64
	CommandBufferHandle uint64
	SemaphoreHandle     uint64
	FenceHandle         uint64
	DescriptorSetHandle uint64
)

const NullHandle = 0

type BufferUsageFlags uint32

// Values match the Vulkan bit layout so backends can convert with a plain cast.
const (
	BUFFER_USAGE_TRANSFER_SRC   BufferUsageFlags = 0x00000001
	BUFFER_USAGE_TRANSFER_DST   BufferUsageFlags = 0x00000002
	BUFFER_USAGE_UNIFORM_BUFFER BufferUsageFlags = 0x00000010
	BUFFER_USAGE_INDEX_BUFFER   BufferUsageFlags = 0x00000040
	BUFFER_USAGE_VERTEX_BUFFER  BufferUsageFlags = 0x00000080
)

func (u BufferUsageFlags) Has(flags BufferUsageFlags) bool {
	return u&flags == flags
}

type MemoryPropertyFlags uint32

const (
	MEMORY_PROPERTY_DEVICE_LOCAL  MemoryPropertyFlags = 0x00000001
	MEMORY_PROPERTY_HOST_VISIBLE  MemoryPropertyFlags = 0x00000002
	MEMORY_PROPERTY_HOST_COHERENT MemoryPropertyFlags = 0x00000004
	MEMORY_PROPERTY_HOST_CACHED   MemoryPropertyFlags = 0x00000008
)

func (p MemoryPropertyFlags) Has(flags MemoryPropertyFlags) bool {
	return p&flags == flags
}

// MemoryType is one entry of the device memory type table.
type MemoryType struct {
	PropertyFlags MemoryPropertyFlags
	HeapIndex     uint32
}

// MemoryRequirements is what the device reports for a freshly created buffer.
type MemoryRequirements struct {
	Size           uint64
	Alignment      uint64
	MemoryTypeBits uint32
}

type Extent2D struct {
	Width  uint32
	Height uint32
}

type IndexType uint8

const (
	INDEX_TYPE_UINT16 IndexType = iota
	INDEX_TYPE_UINT32
)

// SubmitInfo describes a single batch for the graphics queue. Null handles are omitted.
type SubmitInfo struct {
	CommandBuffer   CommandBufferHandle
	WaitSemaphore   SemaphoreHandle
	SignalSemaphore SemaphoreHandle
	Fence           FenceHandle
}

// RendererBackendConfig is what the device layer needs to come up.
type RendererBackendConfig struct {
	ApplicationName   string
	Validation        bool
	MaxFramesInFlight uint32
	UseUniforms       bool
	VertexShader      []byte
	FragmentShader    []byte
	// FenceTimeout of zero waits forever.
	FenceTimeout time.Duration
}
