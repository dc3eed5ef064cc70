package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

type VulkanBuffer struct {
	Handle vk.Buffer
	Size   uint64
	Usage  metadata.BufferUsageFlags
}

type VulkanMemory struct {
	Handle vk.DeviceMemory
	Size   uint64
	Mapped bool
}

func (vr *VulkanRenderer) MemoryTypes() []metadata.MemoryType {
	return vr.memoryTypes
}

func (vr *VulkanRenderer) CreateBuffer(size uint64, usage metadata.BufferUsageFlags) (metadata.BufferHandle, metadata.MemoryRequirements, error) {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}

	var handle vk.Buffer
	if res := vk.CreateBuffer(vr.context.Device.LogicalDevice, &bufferInfo, vr.context.Allocator, &handle); res != vk.Success {
		err := fmt.Errorf("vkCreateBuffer failed with %s", VulkanResultString(res))
		core.LogError(err.Error())
		return metadata.NullHandle, metadata.MemoryRequirements{}, err
	}

	var memRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(vr.context.Device.LogicalDevice, handle, &memRequirements)
	memRequirements.Deref()

	id := vr.buffers.Insert(&VulkanBuffer{
		Handle: handle,
		Size:   size,
		Usage:  usage,
	})
	return metadata.BufferHandle(id), metadata.MemoryRequirements{
		Size:           uint64(memRequirements.Size),
		Alignment:      uint64(memRequirements.Alignment),
		MemoryTypeBits: memRequirements.MemoryTypeBits,
	}, nil
}

func (vr *VulkanRenderer) DestroyBuffer(buffer metadata.BufferHandle) {
	if b, ok := vr.buffers.Remove(uint64(buffer)); ok {
		vk.DestroyBuffer(vr.context.Device.LogicalDevice, b.Handle, vr.context.Allocator)
	}
}

func (vr *VulkanRenderer) AllocateMemory(size uint64, memoryTypeIndex uint32) (metadata.MemoryHandle, error) {
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: memoryTypeIndex,
	}

	var memory vk.DeviceMemory
	if err := vr.context.locks.SafeCall(MemoryManagement, func() error {
		if res := vk.AllocateMemory(vr.context.Device.LogicalDevice, &allocInfo, vr.context.Allocator, &memory); res != vk.Success {
			return fmt.Errorf("vkAllocateMemory of %d bytes (type %d) failed with %s", size, memoryTypeIndex, VulkanResultString(res))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return metadata.NullHandle, err
	}

	return metadata.MemoryHandle(vr.memory.Insert(&VulkanMemory{Handle: memory, Size: size})), nil
}

func (vr *VulkanRenderer) FreeMemory(memory metadata.MemoryHandle) {
	m, ok := vr.memory.Remove(uint64(memory))
	if !ok {
		return
	}
	vr.context.locks.SafeCall(MemoryManagement, func() error {
		if m.Mapped {
			vk.UnmapMemory(vr.context.Device.LogicalDevice, m.Handle)
			m.Mapped = false
		}
		vk.FreeMemory(vr.context.Device.LogicalDevice, m.Handle, vr.context.Allocator)
		return nil
	})
}

func (vr *VulkanRenderer) BindBufferMemory(buffer metadata.BufferHandle, memory metadata.MemoryHandle) error {
	b, ok := vr.buffers.Get(uint64(buffer))
	if !ok {
		return fmt.Errorf("unknown buffer %d", buffer)
	}
	m, ok := vr.memory.Get(uint64(memory))
	if !ok {
		return fmt.Errorf("unknown memory block %d", memory)
	}
	if res := vk.BindBufferMemory(vr.context.Device.LogicalDevice, b.Handle, m.Handle, 0); res != vk.Success {
		err := fmt.Errorf("vkBindBufferMemory failed with %s", VulkanResultString(res))
		core.LogError(err.Error())
		return err
	}
	return nil
}

// MapMemory exposes the first size bytes of the block. The slice stays valid until UnmapMemory.
func (vr *VulkanRenderer) MapMemory(memory metadata.MemoryHandle, size uint64) ([]byte, error) {
	m, ok := vr.memory.Get(uint64(memory))
	if !ok {
		return nil, fmt.Errorf("unknown memory block %d", memory)
	}
	if size > m.Size {
		return nil, fmt.Errorf("cannot map %d bytes of a %d byte block", size, m.Size)
	}

	var pData unsafe.Pointer
	if err := vr.context.locks.SafeCall(MemoryManagement, func() error {
		if res := vk.MapMemory(vr.context.Device.LogicalDevice, m.Handle, 0, vk.DeviceSize(size), 0, &pData); res != vk.Success {
			return fmt.Errorf("vkMapMemory failed with %s", VulkanResultString(res))
		}
		m.Mapped = true
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return unsafe.Slice((*byte)(pData), size), nil
}

func (vr *VulkanRenderer) UnmapMemory(memory metadata.MemoryHandle) {
	m, ok := vr.memory.Get(uint64(memory))
	if !ok {
		return
	}
	vr.context.locks.SafeCall(MemoryManagement, func() error {
		if m.Mapped {
			vk.UnmapMemory(vr.context.Device.LogicalDevice, m.Handle)
			m.Mapped = false
		}
		return nil
	})
}

func (vr *VulkanRenderer) buffer(handle metadata.BufferHandle) vk.Buffer {
	if b, ok := vr.buffers.Get(uint64(handle)); ok {
		return b.Handle
	}
	return nil
}
