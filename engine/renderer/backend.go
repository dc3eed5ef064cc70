package renderer

import (
	"time"

	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

// Driver is the explicit GPU API the frame engine is written against. The Vulkan
// backend implements it for real hardware; every call maps to one API entry point.
type Driver interface {
	// Memory
	MemoryTypes() []metadata.MemoryType
	CreateBuffer(size uint64, usage metadata.BufferUsageFlags) (metadata.BufferHandle, metadata.MemoryRequirements, error)
	DestroyBuffer(buffer metadata.BufferHandle)
	AllocateMemory(size uint64, memoryTypeIndex uint32) (metadata.MemoryHandle, error)
	FreeMemory(memory metadata.MemoryHandle)
	BindBufferMemory(buffer metadata.BufferHandle, memory metadata.MemoryHandle) error
	MapMemory(memory metadata.MemoryHandle, size uint64) ([]byte, error)
	UnmapMemory(memory metadata.MemoryHandle)

	// Commands
	AllocateCommandBuffer() (metadata.CommandBufferHandle, error)
	FreeCommandBuffer(cb metadata.CommandBufferHandle)
	ResetCommandBuffer(cb metadata.CommandBufferHandle) error
	BeginCommandBuffer(cb metadata.CommandBufferHandle, oneTimeSubmit bool) error
	EndCommandBuffer(cb metadata.CommandBufferHandle) error
	CmdCopyBuffer(cb metadata.CommandBufferHandle, src, dst metadata.BufferHandle, size uint64)
	CmdBeginRenderPass(cb metadata.CommandBufferHandle, imageIndex uint32, clearColor [4]float32)
	CmdEndRenderPass(cb metadata.CommandBufferHandle)
	CmdBindPipeline(cb metadata.CommandBufferHandle)
	CmdSetViewport(cb metadata.CommandBufferHandle, extent metadata.Extent2D)
	CmdSetScissor(cb metadata.CommandBufferHandle, extent metadata.Extent2D)
	CmdBindVertexBuffer(cb metadata.CommandBufferHandle, buffer metadata.BufferHandle)
	CmdBindIndexBuffer(cb metadata.CommandBufferHandle, buffer metadata.BufferHandle, indexType metadata.IndexType)
	CmdBindDescriptorSet(cb metadata.CommandBufferHandle, set metadata.DescriptorSetHandle)
	CmdDrawIndexed(cb metadata.CommandBufferHandle, indexCount uint32)

	// Synchronization
	CreateSemaphore() (metadata.SemaphoreHandle, error)
	DestroySemaphore(semaphore metadata.SemaphoreHandle)
	CreateFence(signaled bool) (metadata.FenceHandle, error)
	DestroyFence(fence metadata.FenceHandle)
	// WaitForFence blocks until the fence is signaled. A zero timeout waits forever.
	WaitForFence(fence metadata.FenceHandle, timeout time.Duration) error
	ResetFence(fence metadata.FenceHandle) error

	// Queue and presentation
	QueueSubmit(info metadata.SubmitInfo) error
	QueueWaitIdle() error
	AcquireNextImage(signal metadata.SemaphoreHandle) (uint32, error)
	QueuePresent(wait metadata.SemaphoreHandle, imageIndex uint32) error
	DeviceWaitIdle() error
	Extent() metadata.Extent2D
	ImageCount() uint32

	// Descriptors
	AllocateDescriptorSet(uniform metadata.BufferHandle, size uint64) (metadata.DescriptorSetHandle, error)
}
