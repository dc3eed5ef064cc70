package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

type VulkanRenderpass struct {
	Handle vk.RenderPass
}

// RenderpassCreate builds a single subpass pass with one color attachment that is
// cleared on load and handed to the presentation engine at the end.
func RenderpassCreate(context *VulkanContext) (*VulkanRenderpass, error) {
	colorAttachment := vk.AttachmentDescription{
		Format:         context.Swapchain.ImageFormat.Format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,  // Do not expect any particular layout before render pass starts.
		FinalLayout:    vk.ImageLayoutPresentSrc, // Transitioned to after the render pass
	}

	colorAttachmentReference := []vk.AttachmentReference{
		{
			Attachment: 0, // Attachment description array index
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		},
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    colorAttachmentReference,
	}

	// The image-available semaphore is waited on at color attachment output, so the
	// layout transition has to wait for that stage too.
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.AttachmentDescription{colorAttachment},
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var pRenderPass vk.RenderPass
	if res := vk.CreateRenderPass(context.Device.LogicalDevice, &renderpassCreateInfo, context.Allocator, &pRenderPass); res != vk.Success {
		err := fmt.Errorf("vkCreateRenderPass failed with %s", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	core.LogDebug("Main renderpass created.")
	return &VulkanRenderpass{Handle: pRenderPass}, nil
}

func (vr *VulkanRenderpass) RenderpassDestroy(context *VulkanContext) {
	if vr.Handle != nil {
		vk.DestroyRenderPass(context.Device.LogicalDevice, vr.Handle, context.Allocator)
		vr.Handle = nil
	}
}

func (vr *VulkanRenderpass) RenderpassBegin(commandBuffer *VulkanCommandBuffer, framebuffer vk.Framebuffer, extent vk.Extent2D, clearColor [4]float32) {
	clearValues := make([]vk.ClearValue, 1)
	clearValues[0].SetColor(clearColor[:])

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}

	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (vr *VulkanRenderpass) RenderpassEnd(commandBuffer *VulkanCommandBuffer) {
	vk.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING
}

func (vr *VulkanRenderer) CmdBeginRenderPass(cb metadata.CommandBufferHandle, imageIndex uint32, clearColor [4]float32) {
	c, err := vr.commandBuffer(cb)
	if err != nil {
		return
	}
	swapchain := vr.context.Swapchain
	if int(imageIndex) >= len(swapchain.Framebuffers) {
		core.LogError("no framebuffer for swapchain image %d", imageIndex)
		return
	}
	vr.context.MainRenderpass.RenderpassBegin(c, swapchain.Framebuffers[imageIndex].Handle, swapchain.Extent, clearColor)
}

func (vr *VulkanRenderer) CmdEndRenderPass(cb metadata.CommandBufferHandle) {
	c, err := vr.commandBuffer(cb)
	if err != nil {
		return
	}
	vr.context.MainRenderpass.RenderpassEnd(c)
}
