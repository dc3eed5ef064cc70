package vulkan

import (
	"fmt"
	"math"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(context *VulkanContext, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if res := vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &pFence); res != vk.Success {
		err := fmt.Errorf("vkCreateFence failed with %s", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) FenceDestroy(context *VulkanContext) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(context.Device.LogicalDevice, vf.Handle, context.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// FenceWait returns immediately when the fence was already observed signaled.
func (vf *VulkanFence) FenceWait(context *VulkanContext, timeoutNs uint64) error {
	if vf.IsSignaled {
		return nil
	}

	result := vk.WaitForFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		vf.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
		return core.ErrFenceTimeout
	default:
		err := fmt.Errorf("vk_fence_wait - %s", VulkanResultString(result))
		core.LogError(err.Error())
		return err
	}
}

func (vf *VulkanFence) FenceReset(context *VulkanContext) error {
	if vf.IsSignaled {
		if res := vk.ResetFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}); res != vk.Success {
			err := fmt.Errorf("vkResetFences failed with %s", VulkanResultString(res))
			core.LogError(err.Error())
			return err
		}
		vf.IsSignaled = false
	}
	return nil
}

func fenceTimeout(timeout time.Duration) uint64 {
	if timeout <= 0 {
		return math.MaxUint64
	}
	return uint64(timeout.Nanoseconds())
}

func (vr *VulkanRenderer) CreateFence(signaled bool) (metadata.FenceHandle, error) {
	f, err := NewFence(vr.context, signaled)
	if err != nil {
		return metadata.NullHandle, err
	}
	return metadata.FenceHandle(vr.fences.Insert(f)), nil
}

func (vr *VulkanRenderer) DestroyFence(fence metadata.FenceHandle) {
	if f, ok := vr.fences.Remove(uint64(fence)); ok {
		f.FenceDestroy(vr.context)
	}
}

func (vr *VulkanRenderer) WaitForFence(fence metadata.FenceHandle, timeout time.Duration) error {
	f, ok := vr.fences.Get(uint64(fence))
	if !ok {
		return fmt.Errorf("unknown fence %d", fence)
	}
	return f.FenceWait(vr.context, fenceTimeout(timeout))
}

func (vr *VulkanRenderer) ResetFence(fence metadata.FenceHandle) error {
	f, ok := vr.fences.Get(uint64(fence))
	if !ok {
		return fmt.Errorf("unknown fence %d", fence)
	}
	return f.FenceReset(vr.context)
}

func (vr *VulkanRenderer) CreateSemaphore() (metadata.SemaphoreHandle, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	var semaphore vk.Semaphore
	if res := vk.CreateSemaphore(vr.context.Device.LogicalDevice, &semaphoreCreateInfo, vr.context.Allocator, &semaphore); res != vk.Success {
		err := fmt.Errorf("vkCreateSemaphore failed with %s", VulkanResultString(res))
		core.LogError(err.Error())
		return metadata.NullHandle, err
	}
	return metadata.SemaphoreHandle(vr.semaphores.Insert(semaphore)), nil
}

func (vr *VulkanRenderer) DestroySemaphore(semaphore metadata.SemaphoreHandle) {
	if s, ok := vr.semaphores.Remove(uint64(semaphore)); ok {
		vk.DestroySemaphore(vr.context.Device.LogicalDevice, s, vr.context.Allocator)
	}
}

func (vr *VulkanRenderer) semaphore(handle metadata.SemaphoreHandle) vk.Semaphore {
	if s, ok := vr.semaphores.Get(uint64(handle)); ok {
		return s
	}
	return vk.NullSemaphore
}
