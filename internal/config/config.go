package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"arlayout/internal/engine"
	"arlayout/internal/geomath"
	"arlayout/internal/marker"
	"arlayout/internal/projector"
	"arlayout/internal/sector"
)

type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	GPS     GPSConfig     `yaml:"gps"`
	Sim     SimConfig     `yaml:"sim"`
	Catalog CatalogConfig `yaml:"catalog"`
	Output  OutputConfig  `yaml:"output"`
	Log     LogConfig     `yaml:"log"`
}

type EngineConfig struct {
	Viewport       ViewportConfig `yaml:"viewport"`
	FOVDeg         float64        `yaml:"fov_deg"`
	VerticalFOVDeg float64        `yaml:"vertical_fov_deg"`
	Range          RangeConfig    `yaml:"range"`

	Sectors        int      `yaml:"sectors"`
	MaxStack       int      `yaml:"max_stack"`
	StackSpacing   *float64 `yaml:"stack_spacing"`
	Overflow       string   `yaml:"overflow"`
	Sort           string   `yaml:"sort"`
	StackDirection string   `yaml:"stack_direction"`
	Projection     string   `yaml:"projection"`

	DefaultOrientation string    `yaml:"default_orientation"`
	CameraTransform    []float64 `yaml:"camera_transform"`
	CameraTint         []float64 `yaml:"camera_tint"`

	Radar  RadarConfig     `yaml:"radar"`
	Marker MarkerBoxConfig `yaml:"marker"`
	Enable FlagsConfig     `yaml:"enable"`

	ErrorDelay  time.Duration `yaml:"error_delay"`
	Info        InfoConfig    `yaml:"info"`
	FusionAlpha float64       `yaml:"fusion_alpha"`
}

type ViewportConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// RangeConfig bounds are meters; -1 means unlimited. Absent bounds take the
// defaults.
type RangeConfig struct {
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`
}

type RadarConfig struct {
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Radius float64 `yaml:"radius"`
	Range  float64 `yaml:"range"`
}

type MarkerBoxConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// FlagsConfig uses pointers so an absent flag keeps its default.
type FlagsConfig struct {
	Camera                *bool `yaml:"camera"`
	Accelerometer         *bool `yaml:"accelerometer"`
	Interaction           *bool `yaml:"interaction"`
	Radar                 *bool `yaml:"radar"`
	AutoswitchToRadar     *bool `yaml:"autoswitch_to_radar"`
	ViewOrientationUpdate *bool `yaml:"view_orientation_update"`
	LoadingView           *bool `yaml:"loading_view"`
	ContinuousGPS         *bool `yaml:"continuous_gps"`
}

type InfoConfig struct {
	MinDistanceM  float64 `yaml:"min_distance_m"`
	MinHeadingDeg float64 `yaml:"min_heading_deg"`
}

type GPSConfig struct {
	Enable bool   `yaml:"enable"`
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	// Parity is none, odd or even.
	Parity      string        `yaml:"parity"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// MetersPerHDOP converts GGA horizontal dilution into an accuracy radius.
	MetersPerHDOP float64 `yaml:"meters_per_hdop"`
}

type SimConfig struct {
	Scenario ScenarioConfig `yaml:"scenario"`
	Walk     WalkConfig     `yaml:"walk"`
	Ring     RingConfig     `yaml:"ring"`
}

type ScenarioConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
	Loop   bool   `yaml:"loop"`
}

type WalkConfig struct {
	Enable       bool          `yaml:"enable"`
	CenterLatDeg float64       `yaml:"center_lat_deg"`
	CenterLonDeg float64       `yaml:"center_lon_deg"`
	AltM         float64       `yaml:"alt_m"`
	RadiusM      float64       `yaml:"radius_m"`
	Period       time.Duration `yaml:"period"`
}

type RingConfig struct {
	Enable  bool    `yaml:"enable"`
	Count   int     `yaml:"count"`
	RadiusM float64 `yaml:"radius_m"`
	AltM    float64 `yaml:"alt_m"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

type OutputConfig struct {
	// Dest is a host:port for UDP frame output; empty disables UDP.
	Dest string `yaml:"dest"`
	FPS  int    `yaml:"fps"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		var te *yaml.TypeError
		if errors.As(err, &te) && unknownFields(te) != "" {
			return Config{}, fmt.Errorf("config contains unknown fields: %s", unknownFields(te))
		}
		// An empty file decodes to io.EOF; treat it as all defaults.
		if !errors.Is(err, io.EOF) {
			return Config{}, err
		}
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func unknownFields(te *yaml.TypeError) string {
	var out []string
	for _, msg := range te.Errors {
		if !strings.Contains(msg, "not found in type") {
			continue
		}
		if i := strings.Index(msg, ": "); i >= 0 && strings.HasPrefix(msg, "line ") {
			msg = msg[i+2:]
		}
		out = append(out, msg)
	}
	return strings.Join(out, "; ")
}

// DefaultAndValidate fills unset fields and rejects inconsistent settings.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	def := engine.DefaultConfig()
	e := &cfg.Engine

	if e.Viewport.Width == 0 && e.Viewport.Height == 0 {
		e.Viewport.Width, e.Viewport.Height = def.Viewport.Width, def.Viewport.Height
	}
	if e.Viewport.Width <= 0 || e.Viewport.Height <= 0 {
		return fmt.Errorf("engine.viewport width and height must be > 0")
	}
	if e.FOVDeg == 0 {
		e.FOVDeg = def.FOVDeg
	}
	if e.FOVDeg < 0 || e.FOVDeg > 360 {
		return fmt.Errorf("engine.fov_deg must be in (0, 360]")
	}
	if e.VerticalFOVDeg < 0 || e.VerticalFOVDeg > 180 {
		return fmt.Errorf("engine.vertical_fov_deg must be in [0, 180]")
	}
	if e.Range.Min == nil {
		e.Range.Min = ptr(def.MinRange)
	}
	if e.Range.Max == nil {
		e.Range.Max = ptr(def.MaxRange)
	}
	for name, v := range map[string]float64{"min": *e.Range.Min, "max": *e.Range.Max} {
		if v < 0 && v != projector.Unlimited {
			return fmt.Errorf("engine.range.%s must be >= 0 or -1 for unlimited", name)
		}
	}
	if *e.Range.Min >= 0 && *e.Range.Max >= 0 && *e.Range.Min > *e.Range.Max {
		return fmt.Errorf("engine.range.min must not exceed engine.range.max")
	}

	if e.Sectors == 0 {
		e.Sectors = def.Sectors
	}
	if e.Sectors < 0 || e.Sectors > sector.MaxSectors {
		return fmt.Errorf("engine.sectors must be in [1, %d]", sector.MaxSectors)
	}
	if e.MaxStack == 0 {
		e.MaxStack = def.MaxStack
	}
	if e.MaxStack < 0 || e.MaxStack > sector.MaxStack {
		return fmt.Errorf("engine.max_stack must be in [1, %d]", sector.MaxStack)
	}
	if e.StackSpacing == nil {
		e.StackSpacing = ptr(def.StackSpacing)
	}
	if *e.StackSpacing < 0 {
		return fmt.Errorf("engine.stack_spacing must be >= 0")
	}

	if _, err := sector.ParseOverflowPolicy(e.Overflow); err != nil {
		return fmt.Errorf("engine.overflow: %w", err)
	}
	if _, err := marker.ParseOrder(e.Sort); err != nil {
		return fmt.Errorf("engine.sort: %w", err)
	}
	if _, err := marker.ParseStackDirection(e.StackDirection); err != nil {
		return fmt.Errorf("engine.stack_direction: %w", err)
	}
	if _, err := projector.ParseCurve(e.Projection); err != nil {
		return fmt.Errorf("engine.projection: %w", err)
	}
	if _, err := geomath.ParseScreenOrientation(e.DefaultOrientation); err != nil {
		return fmt.Errorf("engine.default_orientation: %w", err)
	}

	if len(e.CameraTransform) == 0 {
		e.CameraTransform = def.CameraTransform[:]
	}
	if len(e.CameraTransform) != 2 {
		return fmt.Errorf("engine.camera_transform must have 2 values (x, y)")
	}
	if len(e.CameraTint) == 0 {
		e.CameraTint = def.CameraTint[:]
	}
	if len(e.CameraTint) != 4 {
		return fmt.Errorf("engine.camera_tint must have 4 values (r, g, b, a)")
	}
	for _, v := range e.CameraTint {
		if v < 0 || v > 1 {
			return fmt.Errorf("engine.camera_tint values must be in [0, 1]")
		}
	}

	if e.Radar == (RadarConfig{}) {
		e.Radar = RadarConfig{X: def.Radar.X, Y: def.Radar.Y, Radius: def.Radar.Radius, Range: def.Radar.Range}
	}
	if e.Radar.Radius < 0 || e.Radar.Range < 0 {
		return fmt.Errorf("engine.radar.radius and engine.radar.range must be >= 0")
	}
	if e.Marker.Width == 0 && e.Marker.Height == 0 {
		e.Marker.Width, e.Marker.Height = def.MarkerWidth, def.MarkerHeight
	}
	if e.Marker.Width < 0 || e.Marker.Height < 0 {
		return fmt.Errorf("engine.marker width and height must be >= 0")
	}

	defaultFlag(&e.Enable.Camera, def.EnableCamera)
	defaultFlag(&e.Enable.Accelerometer, def.EnableAccelerometer)
	defaultFlag(&e.Enable.Interaction, def.EnableInteraction)
	defaultFlag(&e.Enable.Radar, def.EnableRadar)
	defaultFlag(&e.Enable.AutoswitchToRadar, def.EnableAutoswitchToRadar)
	defaultFlag(&e.Enable.ViewOrientationUpdate, def.EnableViewOrientationUpdate)
	defaultFlag(&e.Enable.LoadingView, def.EnableLoadingView)
	defaultFlag(&e.Enable.ContinuousGPS, def.EnableContinuousGPS)

	if e.ErrorDelay == 0 {
		e.ErrorDelay = def.ErrorDelay
	}
	if e.ErrorDelay < 0 {
		return fmt.Errorf("engine.error_delay must be >= 0")
	}
	if e.Info == (InfoConfig{}) {
		e.Info = InfoConfig{MinDistanceM: def.InfoMinDistance, MinHeadingDeg: def.InfoMinHeadingDeg}
	}
	if e.Info.MinDistanceM < 0 || e.Info.MinHeadingDeg < 0 {
		return fmt.Errorf("engine.info thresholds must be >= 0")
	}
	if e.FusionAlpha == 0 {
		e.FusionAlpha = def.FusionAlpha
	}
	if e.FusionAlpha < 0 || e.FusionAlpha > 1 {
		return fmt.Errorf("engine.fusion_alpha must be in (0, 1]")
	}

	if cfg.GPS.Enable && strings.TrimSpace(cfg.GPS.Device) == "" {
		return fmt.Errorf("gps.device is required when gps.enable is true")
	}
	if cfg.GPS.Baud == 0 {
		cfg.GPS.Baud = 9600
	}
	if cfg.GPS.Baud < 0 {
		return fmt.Errorf("gps.baud must be > 0")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.GPS.Parity)) {
	case "":
		cfg.GPS.Parity = "none"
	case "none", "odd", "even":
	default:
		return fmt.Errorf("gps.parity must be one of none, odd, even")
	}
	if cfg.GPS.ReadTimeout == 0 {
		cfg.GPS.ReadTimeout = time.Second
	}
	if cfg.GPS.ReadTimeout < 100*time.Millisecond || cfg.GPS.ReadTimeout > 25*time.Second {
		return fmt.Errorf("gps.read_timeout must be in [100ms, 25s]")
	}
	if cfg.GPS.MetersPerHDOP <= 0 {
		cfg.GPS.MetersPerHDOP = 5
	}

	if cfg.Sim.Scenario.Enable && cfg.Sim.Scenario.Path == "" {
		return fmt.Errorf("sim.scenario.path is required when sim.scenario.enable is true")
	}
	sources := 0
	for _, on := range []bool{cfg.GPS.Enable, cfg.Sim.Scenario.Enable, cfg.Sim.Walk.Enable} {
		if on {
			sources++
		}
	}
	if sources == 0 {
		return fmt.Errorf("no device source enabled: set one of gps.enable, sim.scenario.enable, sim.walk.enable")
	}
	if sources > 1 {
		return fmt.Errorf("gps, sim.scenario and sim.walk cannot be enabled together")
	}

	// Simulator defaults (safe even if disabled).
	if cfg.Sim.Walk.RadiusM <= 0 {
		cfg.Sim.Walk.RadiusM = 50
	}
	if cfg.Sim.Walk.Period <= 0 {
		cfg.Sim.Walk.Period = 120 * time.Second
	}
	if !geomath.NewCoordinate(cfg.Sim.Walk.CenterLatDeg, cfg.Sim.Walk.CenterLonDeg).Valid() {
		return fmt.Errorf("sim.walk center must be a valid lat/lon")
	}
	if cfg.Sim.Ring.Count <= 0 {
		cfg.Sim.Ring.Count = 8
	}
	if cfg.Sim.Ring.RadiusM <= 0 {
		cfg.Sim.Ring.RadiusM = 300
	}

	if cfg.Output.FPS == 0 {
		cfg.Output.FPS = 10
	}
	if cfg.Output.FPS < 0 || cfg.Output.FPS > 120 {
		return fmt.Errorf("output.fps must be in [1, 120]")
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// EngineConfig converts the validated engine section.
func (c Config) EngineConfig() (engine.Config, error) {
	e := c.Engine
	out := engine.DefaultConfig()

	out.Viewport = projector.Viewport{Width: e.Viewport.Width, Height: e.Viewport.Height}
	out.FOVDeg = e.FOVDeg
	out.VerticalFOVDeg = e.VerticalFOVDeg
	if e.Range.Min != nil {
		out.MinRange = *e.Range.Min
	}
	if e.Range.Max != nil {
		out.MaxRange = *e.Range.Max
	}
	out.Sectors = e.Sectors
	out.MaxStack = e.MaxStack
	if e.StackSpacing != nil {
		out.StackSpacing = *e.StackSpacing
	}

	var err error
	if out.Overflow, err = sector.ParseOverflowPolicy(e.Overflow); err != nil {
		return engine.Config{}, err
	}
	if out.Order, err = marker.ParseOrder(e.Sort); err != nil {
		return engine.Config{}, err
	}
	if out.StackDirection, err = marker.ParseStackDirection(e.StackDirection); err != nil {
		return engine.Config{}, err
	}
	if out.Curve, err = projector.ParseCurve(e.Projection); err != nil {
		return engine.Config{}, err
	}
	if out.DefaultOrientation, err = geomath.ParseScreenOrientation(e.DefaultOrientation); err != nil {
		return engine.Config{}, err
	}

	if len(e.CameraTransform) == 2 {
		copy(out.CameraTransform[:], e.CameraTransform)
	}
	if len(e.CameraTint) == 4 {
		copy(out.CameraTint[:], e.CameraTint)
	}
	out.Radar = engine.RadarConfig{X: e.Radar.X, Y: e.Radar.Y, Radius: e.Radar.Radius, Range: e.Radar.Range}
	out.MarkerWidth, out.MarkerHeight = e.Marker.Width, e.Marker.Height

	out.EnableCamera = flag(e.Enable.Camera, out.EnableCamera)
	out.EnableAccelerometer = flag(e.Enable.Accelerometer, out.EnableAccelerometer)
	out.EnableInteraction = flag(e.Enable.Interaction, out.EnableInteraction)
	out.EnableRadar = flag(e.Enable.Radar, out.EnableRadar)
	out.EnableAutoswitchToRadar = flag(e.Enable.AutoswitchToRadar, out.EnableAutoswitchToRadar)
	out.EnableViewOrientationUpdate = flag(e.Enable.ViewOrientationUpdate, out.EnableViewOrientationUpdate)
	out.EnableLoadingView = flag(e.Enable.LoadingView, out.EnableLoadingView)
	out.EnableContinuousGPS = flag(e.Enable.ContinuousGPS, out.EnableContinuousGPS)

	out.ErrorDelay = e.ErrorDelay
	out.InfoMinDistance = e.Info.MinDistanceM
	out.InfoMinHeadingDeg = e.Info.MinHeadingDeg
	out.FusionAlpha = e.FusionAlpha

	if err := out.Validate(); err != nil {
		return engine.Config{}, err
	}
	return out, nil
}

func ptr[T any](v T) *T { return &v }

func defaultFlag(p **bool, def bool) {
	if *p == nil {
		*p = ptr(def)
	}
}

func flag(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
