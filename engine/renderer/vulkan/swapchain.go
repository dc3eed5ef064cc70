package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	Extent      vk.Extent2D
	ImageCount  uint32
	Images      []vk.Image
	Views       []vk.ImageView

	// framebuffers used for on-screen rendering.
	Framebuffers []*VulkanFramebuffer
}

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

func SwapchainCreate(context *VulkanContext, width, height uint32) (*VulkanSwapchain, error) {
	support := context.Device.SwapchainSupport
	swapchain := &VulkanSwapchain{
		ImageFormat: support.Formats[0],
	}

	// Choose a swap surface format.
	for _, format := range support.Formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			swapchain.ImageFormat = format
			break
		}
	}

	presentMode := vk.PresentModeFifo
	for _, mode := range support.PresentModes {
		if mode == vk.PresentModeMailbox {
			presentMode = mode
			break
		}
	}

	// The surface dictates the extent unless it reports the special value.
	swapchainExtent := vk.Extent2D{Width: width, Height: height}
	if support.Capabilities.CurrentExtent.Width != math.MaxUint32 {
		swapchainExtent = support.Capabilities.CurrentExtent
	}
	minExtent := support.Capabilities.MinImageExtent
	maxExtent := support.Capabilities.MaxImageExtent
	swapchainExtent.Width = core.Clamp(swapchainExtent.Width, minExtent.Width, maxExtent.Width)
	swapchainExtent.Height = core.Clamp(swapchainExtent.Height, minExtent.Height, maxExtent.Height)
	swapchain.Extent = swapchainExtent

	imageCount := support.Capabilities.MinImageCount + 1
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      swapchainExtent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}

	// Setup the queue family indices
	if context.Device.GraphicsQueueIndex != context.Device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(context.Device.GraphicsQueueIndex),
			uint32(context.Device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var swapchainHandle vk.Swapchain
	if res := vk.CreateSwapchain(context.Device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &swapchainHandle); res != vk.Success {
		err := fmt.Errorf("vkCreateSwapchainKHR failed with %s", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	swapchain.Handle = swapchainHandle

	// Images
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &swapchain.ImageCount, nil); res != vk.Success {
		err := fmt.Errorf("vkGetSwapchainImagesKHR failed with %s", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}
	swapchain.Images = make([]vk.Image, swapchain.ImageCount)
	swapchain.Views = make([]vk.ImageView, swapchain.ImageCount)
	if res := vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &swapchain.ImageCount, swapchain.Images); res != vk.Success {
		err := fmt.Errorf("vkGetSwapchainImagesKHR failed with %s", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}

	// Views
	for i := range swapchain.Images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    swapchain.Images[i],
			ViewType: vk.ImageViewType2d,
			Format:   swapchain.ImageFormat.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}

		if res := vk.CreateImageView(context.Device.LogicalDevice, &viewInfo, context.Allocator, &swapchain.Views[i]); res != vk.Success {
			err := fmt.Errorf("vkCreateImageView failed with %s", VulkanResultString(res))
			core.LogError(err.Error())
			swapchain.SwapchainDestroy(context)
			return nil, err
		}
	}

	core.LogInfo("Swapchain created successfully: %d images, %dx%d.", swapchain.ImageCount, swapchainExtent.Width, swapchainExtent.Height)

	return swapchain, nil
}

func (vs *VulkanSwapchain) SwapchainDestroy(context *VulkanContext) {
	for i := range vs.Framebuffers {
		if vs.Framebuffers[i] != nil {
			vs.Framebuffers[i].Destroy(context)
		}
	}
	vs.Framebuffers = nil

	// Only destroy the views, not the images, since those are owned by the swapchain and are thus
	// destroyed when it is.
	for i := range vs.Views {
		if vs.Views[i] != nil {
			vk.DestroyImageView(context.Device.LogicalDevice, vs.Views[i], context.Allocator)
		}
	}
	vs.Views = nil

	if vs.Handle != nil {
		vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
		vs.Handle = nil
	}
}

// AcquireNextImage blocks until an image is available. Anything but VK_SUCCESS is
// an error: the swapchain is never recreated.
func (vr *VulkanRenderer) AcquireNextImage(signal metadata.SemaphoreHandle) (uint32, error) {
	var imageIndex uint32
	result := vk.AcquireNextImage(
		vr.context.Device.LogicalDevice,
		vr.context.Swapchain.Handle,
		math.MaxUint64,
		vr.semaphore(signal),
		vk.NullFence,
		&imageIndex)
	if result != vk.Success {
		err := fmt.Errorf("vkAcquireNextImageKHR failed with %s", VulkanResultString(result))
		core.LogError(err.Error())
		return 0, err
	}
	return imageIndex, nil
}

func (vr *VulkanRenderer) QueuePresent(wait metadata.SemaphoreHandle, imageIndex uint32) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{vr.semaphore(wait)},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vr.context.Swapchain.Handle},
		PImageIndices:      []uint32{imageIndex},
	}

	return vr.context.locks.SafeQueueCall(uint32(vr.context.Device.PresentQueueIndex), func() error {
		if result := vk.QueuePresent(vr.context.Device.PresentQueue, &presentInfo); result != vk.Success {
			err := fmt.Errorf("vkQueuePresentKHR failed with %s", VulkanResultString(result))
			core.LogError(err.Error())
			return err
		}
		return nil
	})
}

func (vr *VulkanRenderer) Extent() metadata.Extent2D {
	return metadata.Extent2D{
		Width:  vr.context.Swapchain.Extent.Width,
		Height: vr.context.Swapchain.Extent.Height,
	}
}

func (vr *VulkanRenderer) ImageCount() uint32 {
	return vr.context.Swapchain.ImageCount
}
