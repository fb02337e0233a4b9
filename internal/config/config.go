// Package config loads, validates, persists and watches the trigger configuration.
package config

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/GriffinCanCode/pixel-trigger/internal/detect"
	"github.com/GriffinCanCode/pixel-trigger/internal/engine"
	apperrors "github.com/GriffinCanCode/pixel-trigger/internal/errors"
	"github.com/GriffinCanCode/pixel-trigger/internal/grid"
	"github.com/GriffinCanCode/pixel-trigger/internal/input"
	"github.com/GriffinCanCode/pixel-trigger/internal/pixel"
)

// EnvPrefix prefixes environment overrides, e.g. TRIGGER_TIMING_SCAN_INTERVAL_MS.
const EnvPrefix = "TRIGGER"

// DefaultPath is used when no --config flag is given.
const DefaultPath = "pixeltrigger.yaml"

// Config is the complete, flat-serializable configuration.
type Config struct {
	Target   TargetConfig   `mapstructure:"target" yaml:"target" json:"target"`
	Grid     GridConfig     `mapstructure:"grid" yaml:"grid" json:"grid"`
	Detector DetectorConfig `mapstructure:"detector" yaml:"detector" json:"detector"`
	Timing   TimingConfig   `mapstructure:"timing" yaml:"timing" json:"timing"`
	Input    InputConfig    `mapstructure:"input" yaml:"input" json:"input"`
	Focal    FocalConfig    `mapstructure:"focal" yaml:"focal" json:"focal"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server" json:"server"`
	Feedback FeedbackConfig `mapstructure:"feedback" yaml:"feedback" json:"feedback"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging" json:"logging"`
	Stats    StatsConfig    `mapstructure:"stats" yaml:"stats" json:"stats"`
}

// TargetConfig is the color signature.
type TargetConfig struct {
	// Color is #rrggbb.
	Color string `mapstructure:"color" yaml:"color" json:"color"`
	// Tolerance is the minimum similarity in [0,1]; higher is stricter.
	Tolerance float64 `mapstructure:"tolerance" yaml:"tolerance" json:"tolerance"`
}

// GridConfig selects the sample grid.
type GridConfig struct {
	// Shape is 3x3, 5x5 or custom.
	Shape  string       `mapstructure:"shape" yaml:"shape" json:"shape"`
	Points []grid.Point `mapstructure:"points" yaml:"points,omitempty" json:"points,omitempty"`
}

// DetectorConfig selects the detection strategy.
type DetectorConfig struct {
	// Strategy is tolerance, quorum, channel, pattern or hsv.
	Strategy  string `mapstructure:"strategy" yaml:"strategy" json:"strategy"`
	MinPixels int    `mapstructure:"min_pixels" yaml:"min_pixels" json:"min_pixels"`
	// Preset is green, red or blue for the channel strategy.
	Preset string `mapstructure:"preset" yaml:"preset" json:"preset"`
}

// TimingConfig holds loop timing in milliseconds.
type TimingConfig struct {
	ScanIntervalMs    float64 `mapstructure:"scan_interval_ms" yaml:"scan_interval_ms" json:"scan_interval_ms"`
	CooldownMs        float64 `mapstructure:"cooldown_ms" yaml:"cooldown_ms" json:"cooldown_ms"`
	ErrorBackoffMs    float64 `mapstructure:"error_backoff_ms" yaml:"error_backoff_ms" json:"error_backoff_ms"`
	RecoveryBackoffMs float64 `mapstructure:"recovery_backoff_ms" yaml:"recovery_backoff_ms" json:"recovery_backoff_ms"`
}

// InputConfig selects the click mechanism and its jitter.
type InputConfig struct {
	// Method is hardware, post, send or simulate.
	Method         string  `mapstructure:"method" yaml:"method" json:"method"`
	HoldMinMs      float64 `mapstructure:"hold_min_ms" yaml:"hold_min_ms" json:"hold_min_ms"`
	HoldMaxMs      float64 `mapstructure:"hold_max_ms" yaml:"hold_max_ms" json:"hold_max_ms"`
	ReleaseMinMs   float64 `mapstructure:"release_min_ms" yaml:"release_min_ms" json:"release_min_ms"`
	ReleaseMaxMs   float64 `mapstructure:"release_max_ms" yaml:"release_max_ms" json:"release_max_ms"`
	CursorJitterPx int     `mapstructure:"cursor_jitter_px" yaml:"cursor_jitter_px" json:"cursor_jitter_px"`
	DryRun         bool    `mapstructure:"dry_run" yaml:"dry_run" json:"dry_run"`
}

// FocalConfig places the grid. Auto follows the display center.
type FocalConfig struct {
	Auto bool `mapstructure:"auto" yaml:"auto" json:"auto"`
	X    int  `mapstructure:"x" yaml:"x" json:"x"`
	Y    int  `mapstructure:"y" yaml:"y" json:"y"`
}

// ServerConfig is the control plane.
type ServerConfig struct {
	HTTPAddr       string   `mapstructure:"http_addr" yaml:"http_addr" json:"http_addr"`
	GRPCAddr       string   `mapstructure:"grpc_addr" yaml:"grpc_addr" json:"grpc_addr"`
	PushIntervalMs int      `mapstructure:"push_interval_ms" yaml:"push_interval_ms" json:"push_interval_ms"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
}

// FeedbackConfig toggles audio cues.
type FeedbackConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// LoggingConfig sets the slog level.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level" json:"level"`
}

// StatsConfig sizes the rolling windows.
type StatsConfig struct {
	ScanWindow  int  `mapstructure:"scan_window" yaml:"scan_window" json:"scan_window"`
	ColorWindow int  `mapstructure:"color_window" yaml:"color_window" json:"color_window"`
	Accumulate  bool `mapstructure:"accumulate" yaml:"accumulate" json:"accumulate"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Target:   TargetConfig{Color: "#800080", Tolerance: 0.85},
		Grid:     GridConfig{Shape: grid.Shape5x5},
		Detector: DetectorConfig{Strategy: string(detect.StrategyQuorum), MinPixels: 3, Preset: "green"},
		Timing: TimingConfig{
			ScanIntervalMs:    10,
			CooldownMs:        100,
			ErrorBackoffMs:    100,
			RecoveryBackoffMs: 500,
		},
		Input: InputConfig{
			Method:       string(input.MethodHardware),
			HoldMinMs:    8,
			HoldMaxMs:    15,
			ReleaseMinMs: 1,
			ReleaseMaxMs: 3,
		},
		Focal:    FocalConfig{Auto: true},
		Server:   ServerConfig{HTTPAddr: "127.0.0.1:8765", GRPCAddr: "127.0.0.1:8766", PushIntervalMs: 500, AllowedOrigins: []string{"localhost", "localhost:*", "127.0.0.1", "127.0.0.1:*"}},
		Feedback: FeedbackConfig{Enabled: true},
		Logging:  LoggingConfig{Level: "info"},
		Stats:    StatsConfig{ScanWindow: 100, ColorWindow: 50},
	}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("target.color", d.Target.Color)
	v.SetDefault("target.tolerance", d.Target.Tolerance)

	v.SetDefault("grid.shape", d.Grid.Shape)

	v.SetDefault("detector.strategy", d.Detector.Strategy)
	v.SetDefault("detector.min_pixels", d.Detector.MinPixels)
	v.SetDefault("detector.preset", d.Detector.Preset)

	v.SetDefault("timing.scan_interval_ms", d.Timing.ScanIntervalMs)
	v.SetDefault("timing.cooldown_ms", d.Timing.CooldownMs)
	v.SetDefault("timing.error_backoff_ms", d.Timing.ErrorBackoffMs)
	v.SetDefault("timing.recovery_backoff_ms", d.Timing.RecoveryBackoffMs)

	v.SetDefault("input.method", d.Input.Method)
	v.SetDefault("input.hold_min_ms", d.Input.HoldMinMs)
	v.SetDefault("input.hold_max_ms", d.Input.HoldMaxMs)
	v.SetDefault("input.release_min_ms", d.Input.ReleaseMinMs)
	v.SetDefault("input.release_max_ms", d.Input.ReleaseMaxMs)
	v.SetDefault("input.cursor_jitter_px", d.Input.CursorJitterPx)
	v.SetDefault("input.dry_run", d.Input.DryRun)

	v.SetDefault("focal.auto", d.Focal.Auto)
	v.SetDefault("focal.x", d.Focal.X)
	v.SetDefault("focal.y", d.Focal.Y)

	v.SetDefault("server.http_addr", d.Server.HTTPAddr)
	v.SetDefault("server.grpc_addr", d.Server.GRPCAddr)
	v.SetDefault("server.push_interval_ms", d.Server.PushIntervalMs)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)

	v.SetDefault("feedback.enabled", d.Feedback.Enabled)
	v.SetDefault("logging.level", d.Logging.Level)

	v.SetDefault("stats.scan_window", d.Stats.ScanWindow)
	v.SetDefault("stats.color_window", d.Stats.ColorWindow)
	v.SetDefault("stats.accumulate", d.Stats.Accumulate)
}

// Load resolves .env, defaults, the YAML file at path (optional; a missing file
// means defaults) and TRIGGER_ environment overrides, then validates.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, apperrors.Wrapf(err, apperrors.ConfigInvalid, "read config %s", path)
			}
			slog.Debug("config file not found, using defaults", "path", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ConfigInvalid, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks every field the engine consumes plus the control-plane fields.
func (c *Config) Validate() error {
	if _, err := c.Settings(); err != nil {
		return err
	}
	invalid := func(field, format string, args ...any) error {
		return apperrors.Newf(apperrors.ConfigInvalid, format, args...).WithMetadata("field", field)
	}
	switch {
	case c.Server.PushIntervalMs <= 0:
		return invalid("server.push_interval_ms", "push interval must be positive, got %d", c.Server.PushIntervalMs)
	case c.Stats.ScanWindow < 1 || c.Stats.ColorWindow < 1:
		return invalid("stats", "stats windows must be at least 1")
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return invalid("logging.level", "%v", err)
	}
	return nil
}

// Settings converts the configuration into engine settings and validates them.
func (c *Config) Settings() (engine.Settings, error) {
	invalid := func(field string, err error) error {
		return apperrors.Wrapf(err, apperrors.ConfigInvalid, "%s", field).WithMetadata("field", field)
	}
	target, err := pixel.ParseHex(c.Target.Color)
	if err != nil {
		return engine.Settings{}, invalid("target.color", err)
	}
	g, err := grid.Parse(c.Grid.Shape, c.Grid.Points)
	if err != nil {
		return engine.Settings{}, invalid("grid", err)
	}
	strategy, err := detect.ParseStrategy(c.Detector.Strategy)
	if err != nil {
		return engine.Settings{}, invalid("detector.strategy", err)
	}
	method, err := input.ParseMethod(c.Input.Method)
	if err != nil {
		return engine.Settings{}, invalid("input.method", err)
	}

	s := engine.Settings{
		Target:          target,
		Tolerance:       c.Target.Tolerance,
		Grid:            g,
		Strategy:        strategy,
		MinPixels:       c.Detector.MinPixels,
		Preset:          c.Detector.Preset,
		ScanInterval:    ms(c.Timing.ScanIntervalMs),
		Cooldown:        ms(c.Timing.CooldownMs),
		ErrorBackoff:    ms(c.Timing.ErrorBackoffMs),
		RecoveryBackoff: ms(c.Timing.RecoveryBackoffMs),
		Input: input.Options{
			Method: method,
			Jitter: input.Jitter{
				HoldMin:    ms(c.Input.HoldMinMs),
				HoldMax:    ms(c.Input.HoldMaxMs),
				ReleaseMin: ms(c.Input.ReleaseMinMs),
				ReleaseMax: ms(c.Input.ReleaseMaxMs),
				CursorPx:   c.Input.CursorJitterPx,
			},
			DryRun: c.Input.DryRun,
		},
		ScanWindow:      c.Stats.ScanWindow,
		ColorWindow:     c.Stats.ColorWindow,
		AccumulateStats: c.Stats.Accumulate,
	}
	if !c.Focal.Auto {
		p := image.Pt(c.Focal.X, c.Focal.Y)
		s.Focal = &p
	}
	if err := s.Validate(); err != nil {
		return engine.Settings{}, err
	}
	return s, nil
}

// PushInterval returns the websocket stats push period.
func (c *Config) PushInterval() time.Duration {
	return time.Duration(c.Server.PushIntervalMs) * time.Millisecond
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(s))
	return l, err
}

func ms(v float64) time.Duration {
	return time.Duration(v * float64(time.Millisecond))
}
