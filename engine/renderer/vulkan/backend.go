package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/fromscratch/engine/containers"
	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

// Surface is the windowing side the backend needs: loader entry point, instance
// extensions and a presentable surface.
type Surface interface {
	GetInstanceProcAddress() unsafe.Pointer
	GetRequiredExtensionNames() []string
	CreateWindowSurface(instance vk.Instance) (uintptr, error)
	FramebufferSize() (uint32, uint32)
}

// VulkanRenderer owns the device level objects and implements the frame engine's
// driver on top of them. Handles given out are registry ids, never raw Vulkan handles.
type VulkanRenderer struct {
	platform Surface
	config   metadata.RendererBackendConfig
	context  *VulkanContext

	buffers        *containers.HandleRegistry[*VulkanBuffer]
	memory         *containers.HandleRegistry[*VulkanMemory]
	commandBuffers *containers.HandleRegistry[*VulkanCommandBuffer]
	semaphores     *containers.HandleRegistry[vk.Semaphore]
	fences         *containers.HandleRegistry[*VulkanFence]
	descriptorSets *containers.HandleRegistry[vk.DescriptorSet]

	memoryTypes []metadata.MemoryType
	initialized bool
}

func New(p Surface, config metadata.RendererBackendConfig) *VulkanRenderer {
	return &VulkanRenderer{
		platform: p,
		config:   config,
		context: &VulkanContext{
			Allocator: nil,
			locks:     NewVulkanLockPool(),
		},
		buffers:        containers.NewHandleRegistry[*VulkanBuffer](),
		memory:         containers.NewHandleRegistry[*VulkanMemory](),
		commandBuffers: containers.NewHandleRegistry[*VulkanCommandBuffer](),
		semaphores:     containers.NewHandleRegistry[vk.Semaphore](),
		fences:         containers.NewHandleRegistry[*VulkanFence](),
		descriptorSets: containers.NewHandleRegistry[vk.DescriptorSet](),
	}
}

// Initialize brings up everything up to the graphics pipeline. On failure the
// partially built state is torn down before returning.
func (vr *VulkanRenderer) Initialize() error {
	if err := vr.initialize(); err != nil {
		vr.Shutdown()
		return err
	}
	vr.initialized = true
	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vr *VulkanRenderer) initialize() error {
	procAddr := vr.platform.GetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil")
		core.LogError(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	vr.context.FramebufferWidth, vr.context.FramebufferHeight = vr.platform.FramebufferSize()

	if err := vr.createInstance(); err != nil {
		return err
	}

	if vr.config.Validation {
		if err := vr.createDebugCallback(); err != nil {
			return err
		}
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := vr.platform.CreateWindowSurface(vr.context.Instance)
	if err != nil {
		core.LogError("Vulkan surface creation failed: %s", err)
		return err
	}
	vr.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(vr.context); err != nil {
		return err
	}
	vr.memoryTypes = vr.context.MemoryTypes()

	sc, err := SwapchainCreate(vr.context, vr.context.FramebufferWidth, vr.context.FramebufferHeight)
	if err != nil {
		return err
	}
	vr.context.Swapchain = sc

	rp, err := RenderpassCreate(vr.context)
	if err != nil {
		return err
	}
	vr.context.MainRenderpass = rp

	if err := createFramebuffers(vr.context); err != nil {
		return err
	}

	if vr.config.UseUniforms {
		descriptors, err := NewDescriptors(vr.context, vr.config.MaxFramesInFlight)
		if err != nil {
			return err
		}
		vr.context.Descriptors = descriptors
	}

	return createPipeline(vr.context, vr.config.VertexShader, vr.config.FragmentShader)
}

func (vr *VulkanRenderer) createInstance() error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(vr.config.ApplicationName),
		PEngineName:        VulkanSafeString("fromscratch"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := vr.platform.GetRequiredExtensionNames()
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	if vr.config.Validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}
	for _, ext := range requiredExtensions {
		core.LogDebug("Required extension: %s", ext)
	}
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	// Validation layers.
	var requiredValidationLayerNames []string
	if vr.config.Validation {
		core.LogInfo("Validation layers enabled. Enumerating...")
		requiredValidationLayerNames = []string{"VK_LAYER_KHRONOS_validation"}
		if err := checkValidationLayers(requiredValidationLayerNames); err != nil {
			return err
		}
		core.LogInfo("All required validation layers are present.")
	}
	createInfo.EnabledLayerCount = uint32(len(requiredValidationLayerNames))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredValidationLayerNames)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, vr.context.Allocator, &instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance with error `%s`", VulkanResultString(res))
		core.LogError(err.Error())
		return err
	}
	vr.context.Instance = instance
	if err := vk.InitInstance(instance); err != nil {
		core.LogError(err.Error())
		return err
	}

	core.LogInfo("Vulkan Instance created.")
	return nil
}

func checkValidationLayers(required []string) error {
	var availableLayerCount uint32
	if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil); res != vk.Success {
		return fmt.Errorf("vkEnumerateInstanceLayerProperties failed with %s", VulkanResultString(res))
	}
	availableLayers := make([]vk.LayerProperties, availableLayerCount)
	if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers); res != vk.Success {
		return fmt.Errorf("vkEnumerateInstanceLayerProperties failed with %s", VulkanResultString(res))
	}

	for _, name := range required {
		core.LogDebug("Searching for layer: %s...", name)
		found := false
		for j := range availableLayers {
			availableLayers[j].Deref()
			if vk.ToString(availableLayers[j].LayerName[:]) == name {
				found = true
				break
			}
		}
		if !found {
			err := fmt.Errorf("required validation layer is missing: %s", name)
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

func (vr *VulkanRenderer) createDebugCallback() error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}

	var dbg vk.DebugReportCallback
	if err := vk.Error(vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, vr.context.Allocator, &dbg)); err != nil {
		core.LogError("vk.CreateDebugReportCallback failed with %s", err)
		return err
	}
	vr.context.debugMessenger = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

// Shutdown destroys everything in the opposite order of creation. Objects the
// frame engine did not release are destroyed here as well.
func (vr *VulkanRenderer) Shutdown() {
	ctx := vr.context
	if ctx.Device != nil && ctx.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(ctx.Device.LogicalDevice)
		vr.releaseLeftovers()

		if ctx.Pipeline != nil {
			ctx.Pipeline.Destroy(ctx)
			ctx.Pipeline = nil
		}
		if ctx.Descriptors != nil {
			ctx.Descriptors.Destroy(ctx)
			ctx.Descriptors = nil
		}
		if ctx.Swapchain != nil {
			ctx.Swapchain.SwapchainDestroy(ctx)
			ctx.Swapchain = nil
		}
		if ctx.MainRenderpass != nil {
			ctx.MainRenderpass.RenderpassDestroy(ctx)
			ctx.MainRenderpass = nil
		}

		core.LogDebug("Destroying Vulkan device...")
		DeviceDestroy(ctx)
	}

	if ctx.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(ctx.Instance, ctx.Surface, ctx.Allocator)
		ctx.Surface = vk.NullSurface
	}

	if ctx.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugMessenger, ctx.Allocator)
		ctx.debugMessenger = vk.NullDebugReportCallback
	}

	if ctx.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		ctx.Instance = nil
	}
	vr.initialized = false
}

func (vr *VulkanRenderer) releaseLeftovers() {
	leaked := vr.commandBuffers.Len() + vr.semaphores.Len() + vr.fences.Len() + vr.buffers.Len() + vr.memory.Len()
	if leaked > 0 {
		core.LogWarn("%d gpu objects were not released before shutdown", leaked)
	}

	vr.commandBuffers.Drain(func(_ uint64, c *VulkanCommandBuffer) {
		c.Free(vr.context, vr.context.Device.GraphicsCommandPool)
	})
	vr.semaphores.Drain(func(_ uint64, s vk.Semaphore) {
		vk.DestroySemaphore(vr.context.Device.LogicalDevice, s, vr.context.Allocator)
	})
	vr.fences.Drain(func(_ uint64, f *VulkanFence) {
		f.FenceDestroy(vr.context)
	})
	vr.buffers.Drain(func(_ uint64, b *VulkanBuffer) {
		vk.DestroyBuffer(vr.context.Device.LogicalDevice, b.Handle, vr.context.Allocator)
	})
	vr.memory.Drain(func(_ uint64, m *VulkanMemory) {
		if m.Mapped {
			vk.UnmapMemory(vr.context.Device.LogicalDevice, m.Handle)
		}
		vk.FreeMemory(vr.context.Device.LogicalDevice, m.Handle, vr.context.Allocator)
	})
	// Sets go away with their pool.
	vr.descriptorSets.Drain(func(uint64, vk.DescriptorSet) {})
}

func (vr *VulkanRenderer) QueueSubmit(info metadata.SubmitInfo) error {
	c, err := vr.commandBuffer(info.CommandBuffer)
	if err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{c.Handle},
	}

	// Wait semaphore ensures that the operation cannot begin until the image is available.
	// Color attachment writes are held back until the semaphore signals.
	if info.WaitSemaphore != metadata.NullHandle {
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{vr.semaphore(info.WaitSemaphore)}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
	}
	if info.SignalSemaphore != metadata.NullHandle {
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{vr.semaphore(info.SignalSemaphore)}
	}

	fence := vk.NullFence
	if info.Fence != metadata.NullHandle {
		f, ok := vr.fences.Get(uint64(info.Fence))
		if !ok {
			return fmt.Errorf("unknown fence %d", info.Fence)
		}
		fence = f.Handle
	}

	if err := vr.context.locks.SafeQueueCall(uint32(vr.context.Device.GraphicsQueueIndex), func() error {
		if result := vk.QueueSubmit(vr.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence); result != vk.Success {
			return fmt.Errorf("vkQueueSubmit failed with result: %s", VulkanResultString(result))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return err
	}
	c.UpdateSubmitted()
	return nil
}

func (vr *VulkanRenderer) QueueWaitIdle() error {
	return vr.context.locks.SafeQueueCall(uint32(vr.context.Device.GraphicsQueueIndex), func() error {
		if result := vk.QueueWaitIdle(vr.context.Device.GraphicsQueue); result != vk.Success {
			err := fmt.Errorf("vkQueueWaitIdle failed with %s", VulkanResultString(result))
			core.LogError(err.Error())
			return err
		}
		return nil
	})
}

func (vr *VulkanRenderer) DeviceWaitIdle() error {
	if result := vk.DeviceWaitIdle(vr.context.Device.LogicalDevice); !VulkanResultIsSuccess(result) {
		err := fmt.Errorf("vkDeviceWaitIdle failed with %s", VulkanResultString(result))
		core.LogError(err.Error())
		return err
	}
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
