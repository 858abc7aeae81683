package bbe

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrInvalidSettings is wrapped by every error returned from [Settings.Validate].
var ErrInvalidSettings = errors.New("bbe: invalid settings")

// Shader source formats accepted in [RenderSettings.ShaderFormat].
const (
	ShaderFormatWGSL  = "wgsl"
	ShaderFormatSPIRV = "spirv"
)

// AppSettings identifies the application using the engine.
type AppSettings struct {
	Name  string `toml:"name"`
	Major int    `toml:"major"`
	Minor int    `toml:"minor"`
	Patch int    `toml:"patch"`
}

// WindowSettings sizes the presentation target.
type WindowSettings struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// MemorySettings configures the engine's scratch allocators.
type MemorySettings struct {
	StackAllocatorSize int `toml:"stack_allocator_size"` // bytes per arena
}

// RenderSettings configures the rendering-context manager.
type RenderSettings struct {
	TransformContainers int    `toml:"transform_containers"` // model uniform slots
	SwapchainImages     int    `toml:"swapchain_images"`
	FrameTimeoutMS      int    `toml:"frame_timeout_ms"` // 0 waits forever
	ShaderFormat        string `toml:"shader_format"`    // "wgsl" or "spirv"
}

// FrameTimeout returns the acquire and fence timeout as a duration.
// Zero means unbounded.
func (r RenderSettings) FrameTimeout() time.Duration {
	return time.Duration(r.FrameTimeoutMS) * time.Millisecond
}

// LoggingSettings controls the logger built by [NewLogger].
type LoggingSettings struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // "text" or "json"
}

// SlogLevel maps Level to a slog level. Unknown values map to info.
func (l LoggingSettings) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MetricsSettings controls the Prometheus endpoint of the demo binary.
type MetricsSettings struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

// Settings is the engine configuration, usually decoded from a TOML file.
type Settings struct {
	App     AppSettings     `toml:"app"`
	Window  WindowSettings  `toml:"window"`
	Memory  MemorySettings  `toml:"memory"`
	Render  RenderSettings  `toml:"render"`
	Logging LoggingSettings `toml:"logging"`
	Metrics MetricsSettings `toml:"metrics"`
}

// DefaultSettings returns the settings used when no file is given.
func DefaultSettings() Settings {
	return Settings{
		App: AppSettings{
			Name:  "BrotboxEngine",
			Major: VersionMajor,
			Minor: VersionMinor,
			Patch: VersionPatch,
		},
		Window: WindowSettings{
			Width:  1280,
			Height: 720,
		},
		Memory: MemorySettings{
			StackAllocatorSize: 1024,
		},
		Render: RenderSettings{
			TransformContainers: 16,
			SwapchainImages:     2,
			FrameTimeoutMS:      0,
			ShaderFormat:        ShaderFormatWGSL,
		},
		Logging: LoggingSettings{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsSettings{
			Enabled: false,
			Address: "127.0.0.1:9464",
		},
	}
}

// LoadSettings decodes path on top of [DefaultSettings] and validates the
// result. A missing file is not an error: the defaults are returned and a
// warning is logged.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			Logger().Warn("bbe: settings file not found, using defaults", "path", path)
			return s, nil
		}
		return s, fmt.Errorf("bbe: stat settings: %w", err)
	}
	Logger().Info("bbe: loading settings", "path", path)
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return s, fmt.Errorf("bbe: decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// ParseSettings decodes TOML text on top of [DefaultSettings] and validates it.
func ParseSettings(data string) (Settings, error) {
	s := DefaultSettings()
	if _, err := toml.Decode(data, &s); err != nil {
		return s, fmt.Errorf("bbe: decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate reports the first setting that the engine cannot run with.
func (s Settings) Validate() error {
	if s.Window.Width < 1 || s.Window.Height < 1 {
		return fmt.Errorf("%w: window size %dx%d", ErrInvalidSettings, s.Window.Width, s.Window.Height)
	}
	if s.Memory.StackAllocatorSize < 1 {
		return fmt.Errorf("%w: stack_allocator_size must be >= 1, got %d", ErrInvalidSettings, s.Memory.StackAllocatorSize)
	}
	if s.Render.TransformContainers < 1 {
		return fmt.Errorf("%w: transform_containers must be >= 1, got %d", ErrInvalidSettings, s.Render.TransformContainers)
	}
	if s.Render.SwapchainImages < 1 {
		return fmt.Errorf("%w: swapchain_images must be >= 1, got %d", ErrInvalidSettings, s.Render.SwapchainImages)
	}
	if s.Render.FrameTimeoutMS < 0 {
		return fmt.Errorf("%w: frame_timeout_ms must be >= 0, got %d", ErrInvalidSettings, s.Render.FrameTimeoutMS)
	}
	switch s.Render.ShaderFormat {
	case ShaderFormatWGSL, ShaderFormatSPIRV:
	default:
		return fmt.Errorf("%w: unknown shader_format %q", ErrInvalidSettings, s.Render.ShaderFormat)
	}
	if s.Metrics.Enabled && s.Metrics.Address == "" {
		return fmt.Errorf("%w: metrics enabled without address", ErrInvalidSettings)
	}
	return nil
}
