package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/fromscratch/engine/assets"
	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/platform"
	"github.com/spaghettifunk/fromscratch/engine/renderer"
	"github.com/spaghettifunk/fromscratch/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Everything has been released
	EngineStageStopped
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	case EngineStageStopped:
		return "stopped"
	default:
		return fmt.Sprintf("Stage(%d)", uint8(s))
	}
}

var _ renderer.Driver = (*vulkan.VulkanRenderer)(nil)

const metricsReportInterval = 5 * time.Second

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *ApplicationConfig

	events       *core.EventBus
	platform     *platform.Platform
	assetManager *assets.AssetManager
	backend      *vulkan.VulkanRenderer
	renderer     *renderer.Renderer

	clock       *core.Clock
	metrics     *core.Metrics
	lastTime    time.Duration
	lastReport  time.Duration
	isSuspended bool
	quit        bool

	// Zero means unlimited.
	frameLimit uint64
	frameCount uint64
	gameErr    error
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, errors.New("engine requires a game with an application config")
	}
	if g.FnInitialize == nil || g.FnRender == nil {
		return nil, errors.New("game must provide FnInitialize and FnRender")
	}
	if err := g.ApplicationConfig.Validate(); err != nil {
		return nil, err
	}

	events := core.NewEventBus()
	am, err := assets.NewAssetManager(g.ApplicationConfig.Assets.Watch)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       g.ApplicationConfig,
		events:       events,
		platform:     platform.New(events),
		assetManager: am,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
	}, nil
}

// SetFrameLimit stops the run loop after n frames. Zero disables the limit.
func (e *Engine) SetFrameLimit(n uint64) {
	e.frameLimit = n
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("cannot initialize engine in stage %s", e.currentStage)
	}
	e.currentStage = EngineStageInitializing

	if err := core.SetLogLevel(e.config.Log.Level); err != nil {
		return err
	}

	// register some events
	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_MINIMIZED, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_RESTORED, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)

	window := e.config.Window
	if err := e.platform.Startup(window.Name, window.StartPosX, window.StartPosY, window.StartWidth, window.StartHeight); err != nil {
		return err
	}

	if e.config.Assets.Watch {
		e.assetManager.OnChange(func(info assets.AssetInfo) {
			core.LogWarn("asset %s changed on disk, restart to pick it up", info.Path)
		})
	}
	if err := e.assetManager.Initialize(e.config.Assets.ShaderDir); err != nil {
		return err
	}
	vertexShader, err := e.assetManager.LoadShader(e.config.VertexShaderName())
	if err != nil {
		return err
	}
	fragmentShader, err := e.assetManager.LoadShader(e.config.Assets.FragmentShader)
	if err != nil {
		return err
	}

	e.backend = vulkan.New(e.platform, e.config.BackendConfig(vertexShader, fragmentShader))
	if err := e.backend.Initialize(); err != nil {
		e.backend = nil
		return err
	}

	r, err := renderer.New(e.backend, e.config.FrameConfig())
	if err != nil {
		return err
	}
	e.renderer = r

	mesh, err := e.gameInstance.FnInitialize()
	if err != nil {
		return err
	}
	if err := e.renderer.Initialize(mesh); err != nil {
		return err
	}

	if e.gameInstance.FnOnResize != nil {
		extent := e.backend.Extent()
		if err := e.gameInstance.FnOnResize(extent.Width, extent.Height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized")
	return nil
}

// Run draws frames until ctx is cancelled, the window asks to close, the frame
// limit is reached or something fails. Teardown is left to Shutdown.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("cannot run engine in stage %s", e.currentStage)
	}
	e.currentStage = EngineStageRunning

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	err := e.renderer.Run(ctx, e.poll)
	core.LogInfo("frame loop stopped after %d frames", e.frameCount)
	return errors.Join(err, e.gameErr)
}

// poll runs between two frames: window events, game update and the transform
// for the next frame.
func (e *Engine) poll() renderer.LoopSignal {
	e.platform.PumpMessages()
	if e.quit || e.platform.ShouldClose() {
		return renderer.LOOP_STOP
	}
	if e.frameLimit > 0 && e.frameCount >= e.frameLimit {
		return renderer.LOOP_STOP
	}
	if e.isSuspended {
		return renderer.LOOP_PAUSE
	}

	// Update clock and get delta time.
	e.clock.Update()
	currentTime := e.clock.Elapsed()
	frameElapsed := currentTime - e.lastTime
	delta := frameElapsed.Seconds()
	e.lastTime = currentTime

	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(delta); err != nil {
			core.LogError("game update failed, shutting down: %s", err)
			e.gameErr = err
			return renderer.LOOP_STOP
		}
	}
	ubo, err := e.gameInstance.FnRender(delta)
	if err != nil {
		core.LogError("game render failed, shutting down: %s", err)
		e.gameErr = err
		return renderer.LOOP_STOP
	}
	e.renderer.SetTransform(ubo)

	e.metrics.Update(frameElapsed)
	if currentTime-e.lastReport >= metricsReportInterval {
		fps, ms := e.metrics.Frame()
		core.LogDebug("%.0f fps, %.3f ms per frame", fps, ms)
		e.lastReport = currentTime
	}
	e.frameCount++
	return renderer.LOOP_CONTINUE
}

// Shutdown releases everything in reverse order of creation. It is safe to
// call after a failed Initialize.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageStopped {
		return nil
	}
	e.currentStage = EngineStageShuttingDown

	var errs []error
	if e.renderer != nil {
		errs = append(errs, e.renderer.ReleaseAll())
	}
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.backend != nil {
		e.backend.Shutdown()
	}
	errs = append(errs, e.assetManager.Shutdown())
	errs = append(errs, e.platform.Shutdown())
	e.events.Shutdown()

	e.currentStage = EngineStageStopped
	core.LogInfo("engine shut down")
	return errors.Join(errs...)
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.quit = true
		e.platform.RequestQuit()
		return true
	case core.EVENT_CODE_MINIMIZED:
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	case core.EVENT_CODE_RESTORED:
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
		// The pause must not count as frame time.
		e.clock.Update()
		e.lastTime = e.clock.Elapsed()
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	core.LogDebug("key %d pressed", data.Data.U16[0])
	return false
}
