package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/fromscratch/engine/core"
)

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	SwapchainSupport   *VulkanSwapchainSupportInfo
	GraphicsQueueIndex int32
	PresentQueueIndex  int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	DeviceExtensionNames []string
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
}

func DeviceCreate(context *VulkanContext) error {
	context.Device = &VulkanDevice{
		GraphicsQueueIndex: -1,
		PresentQueueIndex:  -1,
	}
	if err := SelectPhysicalDevice(context); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")

	// NOTE: Do not create additional queues for shared indices.
	indices := []uint32{uint32(context.Device.GraphicsQueueIndex)}
	if context.Device.GraphicsQueueIndex != context.Device.PresentQueueIndex {
		indices = append(indices, uint32(context.Device.PresentQueueIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: indices[i],
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	portabilityRequired, err := deviceHasExtension(context.Device.PhysicalDevice, "VK_KHR_portability_subset")
	if err != nil {
		return err
	}
	if portabilityRequired {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
		// Deprecated and ignored, so pass nothing.
		EnabledLayerCount:   0,
		PpEnabledLayerNames: nil,
	}

	var device vk.Device
	if res := vk.CreateDevice(context.Device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device); res != vk.Success {
		err := fmt.Errorf("vkCreateDevice failed with %s", VulkanResultString(res))
		core.LogError(err.Error())
		return err
	}
	context.Device.LogicalDevice = device
	core.LogInfo("Logical device created.")

	var graphicsQueue, presentQueue vk.Queue
	vk.GetDeviceQueue(device, uint32(context.Device.GraphicsQueueIndex), 0, &graphicsQueue)
	vk.GetDeviceQueue(device, uint32(context.Device.PresentQueueIndex), 0, &presentQueue)
	context.Device.GraphicsQueue = graphicsQueue
	context.Device.PresentQueue = presentQueue
	context.locks.SetQueueFamily(uint32(context.Device.GraphicsQueueIndex))
	context.locks.SetQueueFamily(uint32(context.Device.PresentQueueIndex))
	core.LogInfo("Queues obtained.")

	// Frame command buffers are reset individually every frame.
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(context.Device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(device, &poolCreateInfo, context.Allocator, &pool); res != vk.Success {
		err := fmt.Errorf("vkCreateCommandPool failed with %s", VulkanResultString(res))
		core.LogError(err.Error())
		return err
	}
	context.Device.GraphicsCommandPool = pool
	core.LogInfo("Graphics command pool created.")

	return nil
}

func DeviceDestroy(context *VulkanContext) {
	if context.Device == nil {
		return
	}
	context.Device.GraphicsQueue = nil
	context.Device.PresentQueue = nil

	if context.Device.GraphicsCommandPool != nil {
		core.LogInfo("Destroying command pools...")
		vk.DestroyCommandPool(context.Device.LogicalDevice, context.Device.GraphicsCommandPool, context.Allocator)
		context.Device.GraphicsCommandPool = nil
	}

	if context.Device.LogicalDevice != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(context.Device.LogicalDevice, context.Allocator)
		context.Device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	context.Device.PhysicalDevice = nil
	context.Device.SwapchainSupport = nil
	context.Device.GraphicsQueueIndex = -1
	context.Device.PresentQueueIndex = -1
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface) (*VulkanSwapchainSupportInfo, error) {
	supportInfo := &VulkanSwapchainSupportInfo{}

	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities); res != vk.Success {
		return nil, fmt.Errorf("vkGetPhysicalDeviceSurfaceCapabilities failed with %s", VulkanResultString(res))
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, nil); res != vk.Success {
		return nil, fmt.Errorf("vkGetPhysicalDeviceSurfaceFormats failed with %s", VulkanResultString(res))
	}
	if supportInfo.FormatCount != 0 {
		supportInfo.Formats = make([]vk.SurfaceFormat, supportInfo.FormatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, supportInfo.Formats); res != vk.Success {
			return nil, fmt.Errorf("vkGetPhysicalDeviceSurfaceFormats failed with %s", VulkanResultString(res))
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, nil); res != vk.Success {
		return nil, fmt.Errorf("vkGetPhysicalDeviceSurfacePresentModes failed with %s", VulkanResultString(res))
	}
	if supportInfo.PresentModeCount != 0 {
		supportInfo.PresentModes = make([]vk.PresentMode, supportInfo.PresentModeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, supportInfo.PresentModes); res != vk.Success {
			return nil, fmt.Errorf("vkGetPhysicalDeviceSurfacePresentModes failed with %s", VulkanResultString(res))
		}
	}
	return supportInfo, nil
}

// SelectPhysicalDevice picks the first device that can draw and present to the
// surface. Discrete GPUs win over everything else.
func SelectPhysicalDevice(context *VulkanContext) error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return fmt.Errorf("vkEnumeratePhysicalDevices failed with %s", VulkanResultString(res))
	}
	if physicalDeviceCount == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found")
		core.LogError(err.Error())
		return err
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return fmt.Errorf("vkEnumeratePhysicalDevices failed with %s", VulkanResultString(res))
	}

	requirements := &VulkanPhysicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}

	selected := -1
	var selectedProperties vk.PhysicalDeviceProperties
	var selectedQueues VulkanPhysicalDeviceQueueFamilyInfo
	var selectedSupport *VulkanSwapchainSupportInfo

	for i := range physicalDevices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(physicalDevices[i], &properties)
		properties.Deref()

		queueInfo, support, ok := PhysicalDeviceMeetsRequirements(physicalDevices[i], context.Surface, &properties, requirements)
		if !ok {
			continue
		}
		if selected < 0 || (properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu && selectedProperties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu) {
			selected = i
			selectedProperties = properties
			selectedQueues = queueInfo
			selectedSupport = support
		}
	}

	if selected < 0 {
		err := fmt.Errorf("no physical devices were found which meet the requirements")
		core.LogError(err.Error())
		return err
	}

	device := physicalDevices[selected]
	core.LogInfo("Selected device: '%s'.", vk.ToString(selectedProperties.DeviceName[:]))
	switch selectedProperties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(selectedProperties.ApiVersion).Major(),
		vk.Version(selectedProperties.ApiVersion).Minor(),
		vk.Version(selectedProperties.ApiVersion).Patch(),
	)

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(device, &features)
	features.Deref()

	var memory vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(device, &memory)
	memory.Deref()
	for j := uint32(0); j < memory.MemoryHeapCount; j++ {
		memory.MemoryHeaps[j].Deref()
		memorySizeMib := uint64(memory.MemoryHeaps[j].Size) / 1024 / 1024
		if vk.MemoryHeapFlagBits(memory.MemoryHeaps[j].Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %d MiB", memorySizeMib)
		} else {
			core.LogInfo("Shared System memory: %d MiB", memorySizeMib)
		}
	}

	context.Device.PhysicalDevice = device
	context.Device.GraphicsQueueIndex = selectedQueues.GraphicsFamilyIndex
	context.Device.PresentQueueIndex = selectedQueues.PresentFamilyIndex
	context.Device.SwapchainSupport = selectedSupport
	context.Device.Properties = selectedProperties
	context.Device.Features = features
	context.Device.Memory = memory

	core.LogInfo("Physical device selected.")
	return nil
}

func PhysicalDeviceMeetsRequirements(
	device vk.PhysicalDevice,
	surface vk.Surface,
	properties *vk.PhysicalDeviceProperties,
	requirements *VulkanPhysicalDeviceRequirements,
) (VulkanPhysicalDeviceQueueFamilyInfo, *VulkanSwapchainSupportInfo, bool) {
	queueInfo := VulkanPhysicalDeviceQueueFamilyInfo{
		GraphicsFamilyIndex: -1,
		PresentFamilyIndex:  -1,
	}
	name := vk.ToString(properties.DeviceName[:])

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	for i := range queueFamilies {
		queueFamilies[i].Deref()

		if queueInfo.GraphicsFamilyIndex < 0 && vk.QueueFlagBits(queueFamilies[i].QueueFlags)&vk.QueueGraphicsBit != 0 {
			queueInfo.GraphicsFamilyIndex = int32(i)
		}

		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
			return queueInfo, nil, false
		}
		// Prefer a family that does both.
		if supportsPresent == vk.True && (queueInfo.PresentFamilyIndex < 0 || queueInfo.GraphicsFamilyIndex == int32(i)) {
			queueInfo.PresentFamilyIndex = int32(i)
		}
	}

	core.LogDebug("Graphics: %d | Present: %d | %s", queueInfo.GraphicsFamilyIndex, queueInfo.PresentFamilyIndex, name)

	if requirements.Graphics && queueInfo.GraphicsFamilyIndex < 0 {
		core.LogInfo("Device '%s' has no graphics queue, skipping.", name)
		return queueInfo, nil, false
	}
	if requirements.Present && queueInfo.PresentFamilyIndex < 0 {
		core.LogInfo("Device '%s' cannot present to the surface, skipping.", name)
		return queueInfo, nil, false
	}

	support, err := DeviceQuerySwapchainSupport(device, surface)
	if err != nil || support.FormatCount < 1 || support.PresentModeCount < 1 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return queueInfo, nil, false
	}

	for _, extension := range requirements.DeviceExtensionNames {
		found, err := deviceHasExtension(device, extension)
		if err != nil || !found {
			core.LogInfo("Required extension not found: '%s', skipping device.", extension)
			return queueInfo, nil, false
		}
	}

	return queueInfo, support, true
}

func deviceHasExtension(device vk.PhysicalDevice, name string) (bool, error) {
	var availableExtensionCount uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &availableExtensionCount, nil); res != vk.Success {
		return false, fmt.Errorf("vkEnumerateDeviceExtensionProperties failed with %s", VulkanResultString(res))
	}
	availableExtensions := make([]vk.ExtensionProperties, availableExtensionCount)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &availableExtensionCount, availableExtensions); res != vk.Success {
		return false, fmt.Errorf("vkEnumerateDeviceExtensionProperties failed with %s", VulkanResultString(res))
	}
	for i := range availableExtensions {
		availableExtensions[i].Deref()
		if vk.ToString(availableExtensions[i].ExtensionName[:]) == name {
			return true, nil
		}
	}
	return false, nil
}
