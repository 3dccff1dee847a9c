package projector

import (
	"fmt"
	"math"
	"strings"

	"arlayout/internal/geomath"
)

// Unlimited disables a range bound.
const Unlimited = -1

// viewTolerance keeps markers exactly on the FOV edge visible despite
// rounding in the bearing math.
const viewTolerance = 1e-9

// Curve selects how an angular offset maps onto the horizontal axis.
type Curve int

const (
	// Linear spaces equal angles equally across the frame.
	Linear Curve = iota
	// Tangent follows a pinhole camera: equal screen distances near the
	// center cover more angle than near the edges.
	Tangent
)

func (c Curve) String() string {
	switch c {
	case Linear:
		return "linear"
	case Tangent:
		return "tangent"
	default:
		return fmt.Sprintf("curve(%d)", int(c))
	}
}

func ParseCurve(s string) (Curve, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear":
		return Linear, nil
	case "tangent", "tan", "pinhole":
		return Tangent, nil
	default:
		return Linear, fmt.Errorf("unknown projection curve %q", s)
	}
}

// Viewport is the drawable rectangle in portrait device coordinates.
type Viewport struct {
	Width  float64
	Height float64
}

func (v Viewport) Valid() bool {
	return geomath.Finite(v.Width, v.Height) && v.Width > 0 && v.Height > 0
}

type Config struct {
	Viewport         Viewport
	HorizontalFOVDeg float64
	// VerticalFOVDeg of 0 derives the vertical field of view from the frame
	// aspect ratio.
	VerticalFOVDeg float64
	// MinRange and MaxRange are meters; a negative bound is unlimited.
	MinRange float64
	MaxRange float64
	Curve    Curve
}

// CullReason records why a marker is not drawn this tick.
type CullReason int

const (
	NotCulled CullReason = iota
	OutOfView
	OutOfRange
	InvalidGeometry
	// Overflow is assigned by the layout pass when a sector column is full.
	Overflow
)

func (r CullReason) String() string {
	switch r {
	case NotCulled:
		return "none"
	case OutOfView:
		return "out_of_view"
	case OutOfRange:
		return "out_of_range"
	case InvalidGeometry:
		return "invalid_geometry"
	case Overflow:
		return "overflow"
	default:
		return fmt.Sprintf("cull_reason(%d)", int(r))
	}
}

// Input is the per-marker geometry relative to the device.
type Input struct {
	BearingDeg   float64
	Distance     float64
	ElevationDeg float64
	// Virtual markers ignore ElevationDeg and sit on the horizon.
	Virtual bool
}

// Projection is the candidate screen placement of one marker.
//
// U and V are in the orientation-local frame (FrameW x FrameH, U to the
// right, V down) before the stack offset is applied. X and Y are the
// final viewport coordinates.
type Projection struct {
	U, V           float64
	FrameW, FrameH float64
	X, Y           float64
	Depth          float64
	OffsetDeg      float64
	Visible        bool
	Reason         CullReason
}

// InRange reports whether d lies inside the configured [min, max] bounds.
func (c Config) InRange(d float64) bool {
	if c.MinRange >= 0 && d < c.MinRange {
		return false
	}
	if c.MaxRange >= 0 && d > c.MaxRange {
		return false
	}
	return true
}

// FrameSize returns the width and height of the layout frame for screen.
// Landscape frames run along the long edge of the portrait viewport.
func FrameSize(vp Viewport, screen geomath.ScreenOrientation) (w, h float64) {
	if screen.Landscape() {
		return vp.Height, vp.Width
	}
	return vp.Width, vp.Height
}

// ToViewport rotates frame coordinates into portrait viewport coordinates.
func ToViewport(u, v float64, vp Viewport, screen geomath.ScreenOrientation) (x, y float64) {
	switch screen {
	case geomath.PortraitUpsideDown:
		return vp.Width - u, vp.Height - v
	case geomath.LandscapeLeft:
		return vp.Width - v, u
	case geomath.LandscapeRight:
		return v, vp.Height - u
	default:
		return u, v
	}
}

// VerticalFOV returns the configured vertical field of view for a frame of
// size w x h, deriving it from the aspect ratio when unset.
func (c Config) VerticalFOV(w, h float64) float64 {
	if c.VerticalFOVDeg > 0 {
		return c.VerticalFOVDeg
	}
	if w <= 0 || h <= 0 {
		return c.HorizontalFOVDeg
	}
	half := c.HorizontalFOVDeg / 2
	if half >= 89 {
		return c.HorizontalFOVDeg * h / w
	}
	return geomath.Degrees(2 * math.Atan(math.Tan(geomath.Radians(half))*h/w))
}

// Project places one marker for orientation o. It never panics; anomalous
// geometry yields Visible=false with Reason InvalidGeometry.
func Project(in Input, o geomath.Orientation, cfg Config) Projection {
	p := Projection{Depth: in.Distance}

	elev := in.ElevationDeg
	if in.Virtual {
		elev = 0
	}
	if !geomath.Finite(in.BearingDeg, in.Distance, elev, o.HeadingDeg, o.Pitch) || in.Distance <= 0 {
		p.Reason = InvalidGeometry
		return p
	}
	if !cfg.Viewport.Valid() || !geomath.Finite(cfg.HorizontalFOVDeg) || cfg.HorizontalFOVDeg <= 0 {
		p.Reason = OutOfView
		return p
	}

	fw, fh := FrameSize(cfg.Viewport, o.Screen)
	p.FrameW, p.FrameH = fw, fh

	offset := geomath.NormalizeSigned(in.BearingDeg - o.HeadingDeg)
	p.OffsetDeg = offset
	halfH := cfg.HorizontalFOVDeg / 2
	halfV := cfg.VerticalFOV(fw, fh) / 2

	p.U = fw/2 + horizontalFraction(offset, halfH, cfg.Curve)*fw/2
	if halfV > 0 {
		p.V = fh/2 - (elev-geomath.Degrees(o.Pitch))/halfV*fh/2
	} else {
		p.V = fh / 2
	}
	p.X, p.Y = ToViewport(p.U, p.V, cfg.Viewport, o.Screen)

	switch {
	case !cfg.InRange(in.Distance):
		p.Reason = OutOfRange
	case math.Abs(offset) > halfH+viewTolerance:
		p.Reason = OutOfView
	default:
		p.Visible = true
	}
	return p
}

// horizontalFraction maps offset into [-1, 1] for offsets inside the FOV.
func horizontalFraction(offset, half float64, c Curve) float64 {
	if c == Tangent && half < 89 && math.Abs(offset) < 89 {
		return math.Tan(geomath.Radians(offset)) / math.Tan(geomath.Radians(half))
	}
	return offset / half
}
