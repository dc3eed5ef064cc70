package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/fromscratch/engine/core"
)

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
	Renderpass  *VulkanRenderpass
}

func FramebufferCreate(context *VulkanContext, renderpass *VulkanRenderpass, width, height uint32, attachments []vk.ImageView) (*VulkanFramebuffer, error) {
	outFramebuffer := &VulkanFramebuffer{
		Attachments: append([]vk.ImageView(nil), attachments...),
		Renderpass:  renderpass,
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderpass.Handle,
		AttachmentCount: uint32(len(outFramebuffer.Attachments)),
		PAttachments:    outFramebuffer.Attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}

	var pFramebuffer vk.Framebuffer
	if res := vk.CreateFramebuffer(context.Device.LogicalDevice, &framebufferCreateInfo, context.Allocator, &pFramebuffer); res != vk.Success {
		err := fmt.Errorf("vkCreateFramebuffer failed with %s", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	outFramebuffer.Handle = pFramebuffer
	return outFramebuffer, nil
}

func (vfb *VulkanFramebuffer) Destroy(context *VulkanContext) {
	if vfb.Handle != nil {
		vk.DestroyFramebuffer(context.Device.LogicalDevice, vfb.Handle, context.Allocator)
	}
	vfb.Attachments = nil
	vfb.Handle = nil
	vfb.Renderpass = nil
}

// createFramebuffers builds one framebuffer per swapchain image view.
func createFramebuffers(context *VulkanContext) error {
	swapchain := context.Swapchain
	swapchain.Framebuffers = make([]*VulkanFramebuffer, swapchain.ImageCount)
	for i := range swapchain.Views {
		fb, err := FramebufferCreate(
			context,
			context.MainRenderpass,
			swapchain.Extent.Width,
			swapchain.Extent.Height,
			[]vk.ImageView{swapchain.Views[i]})
		if err != nil {
			return err
		}
		swapchain.Framebuffers[i] = fb
	}
	core.LogDebug("%d swapchain framebuffers created.", len(swapchain.Framebuffers))
	return nil
}
