package engine

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

type WindowConfig struct {
	// The application name used in windowing, if applicable.
	Name string `toml:"name"`
	// Window starting position x axis, if applicable.
	StartPosX uint32 `toml:"x"`
	// Window starting position y axis, if applicable.
	StartPosY uint32 `toml:"y"`
	// Window starting width, if applicable.
	StartWidth uint32 `toml:"width"`
	// Window starting height, if applicable.
	StartHeight uint32 `toml:"height"`
}

type RendererConfig struct {
	MaxFramesInFlight int `toml:"max_frames_in_flight"`
	// Zero waits forever.
	FenceTimeoutMS  int64      `toml:"fence_timeout_ms"`
	PauseIntervalMS int64      `toml:"pause_interval_ms"`
	Validation      bool       `toml:"validation"`
	ClearColor      [4]float32 `toml:"clear_color"`
	UseUniforms     bool       `toml:"use_uniforms"`
	DebugReadback   bool       `toml:"debug_readback"`
}

type AssetsConfig struct {
	ShaderDir      string `toml:"shader_dir"`
	VertexShader string `toml:"vertex_shader"`
	// Declares no uniform block. Loaded in place of VertexShader when uniforms are off.
	FlatVertexShader string `toml:"flat_vertex_shader"`
	FragmentShader   string `toml:"fragment_shader"`
	Watch            bool   `toml:"watch"`
}

type LogConfig struct {
	Level core.LogLevel `toml:"level"`
}

type ApplicationConfig struct {
	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Assets   AssetsConfig   `toml:"assets"`
	Log      LogConfig      `toml:"log"`
}

func DefaultConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Window: WindowConfig{
			Name:        "fromscratch",
			StartPosX:   100,
			StartPosY:   100,
			StartWidth:  1280,
			StartHeight: 720,
		},
		Renderer: RendererConfig{
			MaxFramesInFlight: renderer.DefaultMaxFramesInFlight,
			PauseIntervalMS:   renderer.DefaultPauseInterval.Milliseconds(),
			ClearColor:        [4]float32{0, 0, 0, 1},
			UseUniforms:       true,
		},
		Assets: AssetsConfig{
			ShaderDir:      "assets/shaders",
			VertexShader:     "shader.vert.spv",
			FlatVertexShader: "flat.vert.spv",
			FragmentShader:   "shader.frag.spv",
		},
		Log: LogConfig{
			Level: core.LogLevelInfo,
		},
	}
}

// LoadConfig reads a TOML file on top of the defaults. Keys missing from the
// file keep their default value.
func LoadConfig(path string) (*ApplicationConfig, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, config); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("%s:%d:%d: %w", path, row, col, err)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

func (c *ApplicationConfig) Validate() error {
	var errs []error
	if c.Window.StartWidth == 0 || c.Window.StartHeight == 0 {
		errs = append(errs, fmt.Errorf("window size must be non zero, got %dx%d", c.Window.StartWidth, c.Window.StartHeight))
	}
	if c.Renderer.MaxFramesInFlight < 1 {
		errs = append(errs, fmt.Errorf("max_frames_in_flight must be at least 1, got %d", c.Renderer.MaxFramesInFlight))
	}
	if c.Renderer.FenceTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("fence_timeout_ms must not be negative, got %d", c.Renderer.FenceTimeoutMS))
	}
	if c.Renderer.PauseIntervalMS < 0 {
		errs = append(errs, fmt.Errorf("pause_interval_ms must not be negative, got %d", c.Renderer.PauseIntervalMS))
	}
	if c.Assets.VertexShader == "" || c.Assets.FragmentShader == "" {
		errs = append(errs, errors.New("both vertex_shader and fragment_shader are required"))
	}
	if !c.Renderer.UseUniforms && c.Assets.FlatVertexShader == "" {
		errs = append(errs, errors.New("flat_vertex_shader is required when use_uniforms is false"))
	}
	if _, err := core.ParseLogLevel(string(c.Log.Level)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *ApplicationConfig) FrameConfig() renderer.Config {
	return renderer.Config{
		MaxFramesInFlight: c.Renderer.MaxFramesInFlight,
		FenceTimeout:      time.Duration(c.Renderer.FenceTimeoutMS) * time.Millisecond,
		PauseInterval:     time.Duration(c.Renderer.PauseIntervalMS) * time.Millisecond,
		ClearColor:        c.Renderer.ClearColor,
		UseUniforms:       c.Renderer.UseUniforms,
		DebugReadback:     c.Renderer.DebugReadback,
	}
}

// VertexShaderName picks the vertex shader matching the pipeline layout. Without
// uniforms the layout declares no descriptor set, so the shader must not use one.
func (c *ApplicationConfig) VertexShaderName() string {
	if c.Renderer.UseUniforms {
		return c.Assets.VertexShader
	}
	return c.Assets.FlatVertexShader
}

// BackendConfig needs the shader code already loaded.
func (c *ApplicationConfig) BackendConfig(vertexShader, fragmentShader []byte) metadata.RendererBackendConfig {
	return metadata.RendererBackendConfig{
		ApplicationName:   c.Window.Name,
		Validation:        c.Renderer.Validation,
		MaxFramesInFlight: uint32(c.Renderer.MaxFramesInFlight),
		UseUniforms:       c.Renderer.UseUniforms,
		VertexShader:      vertexShader,
		FragmentShader:    fragmentShader,
		FenceTimeout:      time.Duration(c.Renderer.FenceTimeoutMS) * time.Millisecond,
	}
}
