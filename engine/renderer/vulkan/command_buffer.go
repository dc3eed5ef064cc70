package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState
}

func NewVulkanCommandBuffer(context *VulkanContext, pool vk.CommandPool, isPrimary bool) (*VulkanCommandBuffer, error) {
	vCommandBuffer := &VulkanCommandBuffer{
		State: COMMAND_BUFFER_STATE_NOT_ALLOCATED,
	}

	level := vk.CommandBufferLevelSecondary
	if isPrimary {
		level = vk.CommandBufferLevelPrimary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
	}

	handles := make([]vk.CommandBuffer, 1)
	if err := context.locks.SafeCall(CommandPoolManagement, func() error {
		if res := vk.AllocateCommandBuffers(context.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
			return fmt.Errorf("vkAllocateCommandBuffers failed with %s", VulkanResultString(res))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	vCommandBuffer.Handle = handles[0]
	vCommandBuffer.State = COMMAND_BUFFER_STATE_READY

	return vCommandBuffer, nil
}

func (v *VulkanCommandBuffer) Free(context *VulkanContext, pool vk.CommandPool) {
	context.locks.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(context.Device.LogicalDevice, pool, 1, []vk.CommandBuffer{v.Handle})
		return nil
	})
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Begin(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: 0,
	}

	if isSingleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if res := vk.BeginCommandBuffer(v.Handle, beginInfo); res != vk.Success {
		err := fmt.Errorf("vkBeginCommandBuffer failed with %s", VulkanResultString(res))
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING

	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		err := fmt.Errorf("vkEndCommandBuffer failed with %s", VulkanResultString(res))
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (v *VulkanCommandBuffer) Reset() error {
	if res := vk.ResetCommandBuffer(v.Handle, 0); res != vk.Success {
		err := fmt.Errorf("vkResetCommandBuffer failed with %s", VulkanResultString(res))
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (vr *VulkanRenderer) AllocateCommandBuffer() (metadata.CommandBufferHandle, error) {
	cb, err := NewVulkanCommandBuffer(vr.context, vr.context.Device.GraphicsCommandPool, true)
	if err != nil {
		return metadata.NullHandle, err
	}
	return metadata.CommandBufferHandle(vr.commandBuffers.Insert(cb)), nil
}

func (vr *VulkanRenderer) FreeCommandBuffer(cb metadata.CommandBufferHandle) {
	if c, ok := vr.commandBuffers.Remove(uint64(cb)); ok {
		c.Free(vr.context, vr.context.Device.GraphicsCommandPool)
	}
}

func (vr *VulkanRenderer) ResetCommandBuffer(cb metadata.CommandBufferHandle) error {
	c, err := vr.commandBuffer(cb)
	if err != nil {
		return err
	}
	return c.Reset()
}

func (vr *VulkanRenderer) BeginCommandBuffer(cb metadata.CommandBufferHandle, oneTimeSubmit bool) error {
	c, err := vr.commandBuffer(cb)
	if err != nil {
		return err
	}
	return c.Begin(oneTimeSubmit, false, false)
}

func (vr *VulkanRenderer) EndCommandBuffer(cb metadata.CommandBufferHandle) error {
	c, err := vr.commandBuffer(cb)
	if err != nil {
		return err
	}
	return c.End()
}

func (vr *VulkanRenderer) CmdCopyBuffer(cb metadata.CommandBufferHandle, src, dst metadata.BufferHandle, size uint64) {
	c, err := vr.commandBuffer(cb)
	if err != nil {
		return
	}
	copyRegion := vk.BufferCopy{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      vk.DeviceSize(size),
	}
	vk.CmdCopyBuffer(c.Handle, vr.buffer(src), vr.buffer(dst), 1, []vk.BufferCopy{copyRegion})
}

func (vr *VulkanRenderer) CmdSetViewport(cb metadata.CommandBufferHandle, extent metadata.Extent2D) {
	c, err := vr.commandBuffer(cb)
	if err != nil {
		return
	}
	viewport := vk.Viewport{
		X:        0.0,
		Y:        0.0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	vk.CmdSetViewport(c.Handle, 0, 1, []vk.Viewport{viewport})
}

func (vr *VulkanRenderer) CmdSetScissor(cb metadata.CommandBufferHandle, extent metadata.Extent2D) {
	c, err := vr.commandBuffer(cb)
	if err != nil {
		return
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{Width: extent.Width, Height: extent.Height},
	}
	vk.CmdSetScissor(c.Handle, 0, 1, []vk.Rect2D{scissor})
}

func (vr *VulkanRenderer) CmdBindVertexBuffer(cb metadata.CommandBufferHandle, buffer metadata.BufferHandle) {
	c, err := vr.commandBuffer(cb)
	if err != nil {
		return
	}
	vk.CmdBindVertexBuffers(c.Handle, 0, 1, []vk.Buffer{vr.buffer(buffer)}, []vk.DeviceSize{0})
}

func (vr *VulkanRenderer) CmdBindIndexBuffer(cb metadata.CommandBufferHandle, buffer metadata.BufferHandle, indexType metadata.IndexType) {
	c, err := vr.commandBuffer(cb)
	if err != nil {
		return
	}
	vkIndexType := vk.IndexTypeUint16
	if indexType == metadata.INDEX_TYPE_UINT32 {
		vkIndexType = vk.IndexTypeUint32
	}
	vk.CmdBindIndexBuffer(c.Handle, vr.buffer(buffer), 0, vkIndexType)
}

func (vr *VulkanRenderer) CmdDrawIndexed(cb metadata.CommandBufferHandle, indexCount uint32) {
	c, err := vr.commandBuffer(cb)
	if err != nil {
		return
	}
	vk.CmdDrawIndexed(c.Handle, indexCount, 1, 0, 0, 0)
}

func (vr *VulkanRenderer) commandBuffer(cb metadata.CommandBufferHandle) (*VulkanCommandBuffer, error) {
	c, ok := vr.commandBuffers.Get(uint64(cb))
	if !ok {
		err := fmt.Errorf("unknown command buffer %d", cb)
		core.LogError(err.Error())
		return nil, err
	}
	return c, nil
}
