package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"arlayout/internal/geomath"
	"arlayout/internal/marker"
	"arlayout/internal/projector"
	"arlayout/internal/sector"
)

var (
	ErrInvalidConfig     = errors.New("invalid engine config")
	ErrUnsupportedDevice = errors.New("device does not support AR")
)

// RadarConfig places the radar disk in viewport coordinates. Range is the
// distance drawn at the rim; 0 uses MaxRange, or 1 km when that is
// unlimited.
type RadarConfig struct {
	X      float64
	Y      float64
	Radius float64
	Range  float64
}

// Config is fixed for the lifetime of an Engine. New copies it; there are
// no setters.
type Config struct {
	Viewport       projector.Viewport
	FOVDeg         float64
	VerticalFOVDeg float64
	MinRange       float64
	MaxRange       float64
	Curve          projector.Curve

	Sectors        int
	MaxStack       int
	StackSpacing   float64
	Overflow       sector.OverflowPolicy
	Order          marker.Order
	StackDirection marker.StackDirection

	DefaultOrientation geomath.ScreenOrientation
	// CameraTransform scales the camera feed (x, y); CameraTint is RGBA in
	// [0, 1] drawn above it. Both are forwarded to the renderer untouched.
	CameraTransform [2]float64
	CameraTint      [4]float64

	Radar RadarConfig

	// MarkerWidth and MarkerHeight are the hit box used by Tap.
	MarkerWidth  float64
	MarkerHeight float64

	EnableCamera                bool
	EnableAccelerometer         bool
	EnableInteraction           bool
	EnableRadar                 bool
	EnableAutoswitchToRadar     bool
	EnableViewOrientationUpdate bool
	EnableLoadingView           bool
	EnableContinuousGPS         bool

	// ErrorDelay debounces FailDelayed.
	ErrorDelay time.Duration

	// InfoChanged fires when the device moved at least InfoMinDistance
	// meters or turned at least InfoMinHeadingDeg since the last one.
	InfoMinDistance   float64
	InfoMinHeadingDeg float64

	FusionAlpha float64
}

func DefaultConfig() Config {
	return Config{
		Viewport:           projector.Viewport{Width: 320, Height: 480},
		FOVDeg:             60,
		MinRange:           5,
		MaxRange:           20000,
		Curve:              projector.Linear,
		Sectors:            sector.DefaultSectors,
		MaxStack:           sector.MaxStack,
		StackSpacing:       40,
		Overflow:           sector.Hide,
		Order:              marker.FarToNear,
		DefaultOrientation: geomath.Portrait,
		CameraTransform:    [2]float64{1, 1},
		Radar:              RadarConfig{X: 60, Y: 60, Radius: 50},
		MarkerWidth:        120,
		MarkerHeight:       40,

		EnableCamera:                true,
		EnableAccelerometer:         true,
		EnableInteraction:           true,
		EnableRadar:                 true,
		EnableAutoswitchToRadar:     true,
		EnableViewOrientationUpdate: true,
		EnableLoadingView:           true,

		ErrorDelay:        5 * time.Second,
		InfoMinDistance:   5,
		InfoMinHeadingDeg: 2,
		FusionAlpha:       0.15,
	}
}

// Validate reports all invalid fields in a single error.
func (c Config) Validate() error {
	var problems []string
	if !c.Viewport.Valid() {
		problems = append(problems, "viewport must have positive width and height")
	}
	if !geomath.Finite(c.FOVDeg) || c.FOVDeg <= 0 || c.FOVDeg > 360 {
		problems = append(problems, "fov_deg must be in (0, 360]")
	}
	if !geomath.Finite(c.VerticalFOVDeg) || c.VerticalFOVDeg < 0 || c.VerticalFOVDeg > 180 {
		problems = append(problems, "vertical_fov_deg must be in [0, 180]")
	}
	if !geomath.Finite(c.MinRange, c.MaxRange) {
		problems = append(problems, "range bounds must be finite")
	} else if c.MinRange >= 0 && c.MaxRange >= 0 && c.MinRange > c.MaxRange {
		problems = append(problems, "range min must not exceed max")
	}
	if c.Sectors < 0 || c.Sectors > sector.MaxSectors {
		problems = append(problems, fmt.Sprintf("sectors must be in [0, %d]", sector.MaxSectors))
	}
	if c.MaxStack < 0 || c.MaxStack > sector.MaxStack {
		problems = append(problems, fmt.Sprintf("max_stack must be in [0, %d]", sector.MaxStack))
	}
	if !geomath.Finite(c.StackSpacing) || c.StackSpacing < 0 {
		problems = append(problems, "stack_spacing must be >= 0")
	}
	if !geomath.Finite(c.Radar.Radius, c.Radar.Range) || c.Radar.Radius < 0 || c.Radar.Range < 0 {
		problems = append(problems, "radar radius and range must be >= 0")
	}
	if c.MarkerWidth < 0 || c.MarkerHeight < 0 {
		problems = append(problems, "marker size must be >= 0")
	}
	for _, v := range c.CameraTint {
		if !geomath.Finite(v) || v < 0 || v > 1 {
			problems = append(problems, "camera_tint components must be in [0, 1]")
			break
		}
	}
	if c.ErrorDelay < 0 {
		problems = append(problems, "error_delay must be >= 0")
	}
	if c.InfoMinDistance < 0 || c.InfoMinHeadingDeg < 0 {
		problems = append(problems, "info thresholds must be >= 0")
	}
	if !geomath.Finite(c.FusionAlpha) || c.FusionAlpha < 0 || c.FusionAlpha > 1 {
		problems = append(problems, "fusion_alpha must be in [0, 1]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// normalized applies the flag dependencies: without an accelerometer there
// is no face-up detection or screen tracking, and autoswitch needs radar.
func (c Config) normalized() Config {
	if !c.EnableAccelerometer {
		c.EnableAutoswitchToRadar = false
		c.EnableViewOrientationUpdate = false
	}
	if !c.EnableRadar {
		c.EnableAutoswitchToRadar = false
	}
	return c
}

func (c Config) radarRange() float64 {
	switch {
	case c.Radar.Range > 0:
		return c.Radar.Range
	case c.MaxRange > 0:
		return c.MaxRange
	default:
		return 1000
	}
}

func (c Config) registryConfig() marker.Config {
	return marker.Config{
		Projector: projector.Config{
			Viewport:         c.Viewport,
			HorizontalFOVDeg: c.FOVDeg,
			VerticalFOVDeg:   c.VerticalFOVDeg,
			MinRange:         c.MinRange,
			MaxRange:         c.MaxRange,
			Curve:            c.Curve,
		},
		Sectors:      c.Sectors,
		MaxStack:     c.MaxStack,
		StackSpacing: c.StackSpacing,
		Overflow:     c.Overflow,
		Order:        c.Order,
		Stack:        c.StackDirection,
	}
}

// Capabilities lists the sensors the host device provides.
type Capabilities struct {
	Location      bool
	Compass       bool
	Accelerometer bool
	Camera        bool
}

// Supported reports whether caps can drive an engine configured with cfg.
func Supported(caps Capabilities, cfg Config) error {
	var missing []string
	if !caps.Location {
		missing = append(missing, "location")
	}
	if !caps.Compass {
		missing = append(missing, "compass")
	}
	if cfg.EnableAccelerometer && !caps.Accelerometer {
		missing = append(missing, "accelerometer")
	}
	if cfg.EnableCamera && !caps.Camera {
		missing = append(missing, "camera")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrUnsupportedDevice, strings.Join(missing, ", "))
	}
	return nil
}
