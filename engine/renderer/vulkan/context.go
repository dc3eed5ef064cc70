package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

type VulkanContext struct {
	// The framebuffer's current width.
	FramebufferWidth uint32
	// The framebuffer's current height.
	FramebufferHeight uint32

	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	// only set when validation is enabled
	debugMessenger vk.DebugReportCallback

	Device *VulkanDevice

	Swapchain      *VulkanSwapchain
	MainRenderpass *VulkanRenderpass
	Pipeline       *VulkanPipeline

	// Nil when the pipeline has no uniform input.
	Descriptors *VulkanDescriptors

	locks *VulkanLockPool
}

// MemoryTypes translates the selected device's memory type table. Property bits
// share the Vulkan layout so a cast is enough.
func (vc *VulkanContext) MemoryTypes() []metadata.MemoryType {
	memoryProperties := vc.Device.Memory
	memoryProperties.Deref()

	types := make([]metadata.MemoryType, memoryProperties.MemoryTypeCount)
	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		memoryProperties.MemoryTypes[i].Deref()
		types[i] = metadata.MemoryType{
			PropertyFlags: metadata.MemoryPropertyFlags(memoryProperties.MemoryTypes[i].PropertyFlags),
			HeapIndex:     memoryProperties.MemoryTypes[i].HeapIndex,
		}
	}
	return types
}
