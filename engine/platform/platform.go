package platform

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/fromscratch/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type Platform struct {
	Window    *glfw.Window
	events    *core.EventBus
	minimized bool
	quit      bool
}

func New(events *core.EventBus) *Platform {
	return &Platform{
		Window: nil,
		events: events,
	}
}

func (p *Platform) Startup(applicationName string, x uint32, y uint32, width uint32, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		err := fmt.Errorf("glfw reports no vulkan loader")
		core.LogError(err.Error())
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.False)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		glfw.Terminate()
		core.LogError("failed to create window: %s", err)
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetIconifyCallback(p.iconifyCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	core.LogInfo("window %q created (%dx%d)", applicationName, width, height)
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages drains the window system queue. Callbacks fire from here.
func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

func (p *Platform) ShouldClose() bool {
	return p.quit || (p.Window != nil && p.Window.ShouldClose())
}

func (p *Platform) Minimized() bool {
	return p.minimized
}

// RequestQuit is honored on the next PumpMessages check.
func (p *Platform) RequestQuit() {
	p.quit = true
	if p.Window != nil {
		p.Window.SetShouldClose(true)
	}
}

func (p *Platform) GetInstanceProcAddress() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (p *Platform) GetRequiredExtensionNames() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) CreateWindowSurface(instance vk.Instance) (uintptr, error) {
	return p.Window.CreateWindowSurface(instance, nil)
}

func (p *Platform) FramebufferSize() (uint32, uint32) {
	w, h := p.Window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action != glfw.Press {
		return
	}
	if key == glfw.KeyEscape {
		p.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, p, core.EventContext{})
		return
	}
	ctx := core.EventContext{}
	ctx.Data.U16[0] = uint16(key)
	p.events.Fire(core.EVENT_CODE_KEY_PRESSED, p, ctx)
}

func (p *Platform) closeCallback(w *glfw.Window) {
	p.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, p, core.EventContext{})
}

func (p *Platform) iconifyCallback(w *glfw.Window, iconified bool) {
	p.minimized = iconified
	if iconified {
		p.events.Fire(core.EVENT_CODE_MINIMIZED, p, core.EventContext{})
	} else {
		p.events.Fire(core.EVENT_CODE_RESTORED, p, core.EventContext{})
	}
}
