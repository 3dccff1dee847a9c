package geomath

import (
	"fmt"
	"math"
	"strings"
)

// ScreenOrientation is the UI orientation markers are laid out for.
type ScreenOrientation int

const (
	Portrait ScreenOrientation = iota
	PortraitUpsideDown
	LandscapeLeft
	LandscapeRight
)

func (o ScreenOrientation) String() string {
	switch o {
	case Portrait:
		return "portrait"
	case PortraitUpsideDown:
		return "portrait_upside_down"
	case LandscapeLeft:
		return "landscape_left"
	case LandscapeRight:
		return "landscape_right"
	default:
		return fmt.Sprintf("screen_orientation(%d)", int(o))
	}
}

// Landscape reports whether the long edge of the screen is horizontal.
func (o ScreenOrientation) Landscape() bool {
	return o == LandscapeLeft || o == LandscapeRight
}

// ParseScreenOrientation accepts the String() forms plus a few aliases.
func ParseScreenOrientation(s string) (ScreenOrientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "portrait":
		return Portrait, nil
	case "portrait_upside_down", "upside_down":
		return PortraitUpsideDown, nil
	case "landscape_left", "landscape":
		return LandscapeLeft, nil
	case "landscape_right":
		return LandscapeRight, nil
	default:
		return Portrait, fmt.Errorf("unknown screen orientation %q", s)
	}
}

// Orientation is the fused device attitude for one sensor tick.
//
// Pitch is the camera elevation above the horizon and Roll the rotation about
// the camera axis, both in radians within [-π, π]. HeadingDeg is in [0, 360).
type Orientation struct {
	HeadingDeg float64
	Pitch      float64
	Roll       float64
	Screen     ScreenOrientation
	FaceUp     bool

	// Valid is false until the first sample has been fused.
	Valid bool
}

// AccelSample is a raw accelerometer reading in g, device frame: x to the
// right edge, y to the top edge, z out of the screen.
type AccelSample struct {
	X, Y, Z float64
}

// FusionParams tunes FuseOrientation.
type FusionParams struct {
	// Alpha is the weight of a new tilt sample in (0, 1]; 1 disables filtering.
	Alpha float64
	// HeadingAlpha is the weight of a new compass sample; 0 uses Alpha.
	HeadingAlpha float64
	// TrackScreen derives the screen orientation from roll. When false the
	// screen stays at DefaultScreen.
	TrackScreen   bool
	DefaultScreen ScreenOrientation
}

const (
	// faceUpRatio is the share of gravity on -z above which the device is
	// considered lying screen-up.
	faceUpRatio = 0.8
	// screenCaptureDeg is the half-width of the roll window that switches
	// screen orientation; rolls between windows keep the previous value.
	screenCaptureDeg = 35.0
)

// FuseOrientation low-pass filters a raw accelerometer sample (and optional
// compass heading) into prev.
//
// Without a compass the heading follows the filtered roll trend, which is a
// coarse turn proxy for a hand-held device. Heading never leaves [0, 360) and
// pitch/roll never leave [-π, π]; unusable samples keep the previous tilt.
func FuseOrientation(s AccelSample, headingDeg *float64, prev Orientation, p FusionParams) Orientation {
	alpha := clampAlpha(p.Alpha)
	headingAlpha := alpha
	if p.HeadingAlpha > 0 {
		headingAlpha = clampAlpha(p.HeadingAlpha)
	}

	out := prev
	mag := math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
	tiltOK := Finite(s.X, s.Y, s.Z) && mag > 0

	rawPitch, rawRoll := prev.Pitch, prev.Roll
	if tiltOK {
		rawPitch = math.Atan2(s.Z, math.Hypot(s.X, s.Y))
		rawRoll = math.Atan2(-s.X, -s.Y)
	}

	if !prev.Valid {
		out.Pitch = rawPitch
		out.Roll = rawRoll
	} else {
		out.Pitch = prev.Pitch + alpha*(rawPitch-prev.Pitch)
		out.Roll = NormalizeRadians(prev.Roll + alpha*NormalizeRadians(rawRoll-prev.Roll))
	}
	out.Pitch = clampRadians(out.Pitch)
	out.Roll = clampRadians(out.Roll)

	switch {
	case headingDeg != nil && finite(*headingDeg):
		h := NormalizeDegrees(*headingDeg)
		if prev.Valid {
			h = NormalizeDegrees(prev.HeadingDeg + headingAlpha*NormalizeSigned(h-prev.HeadingDeg))
		}
		out.HeadingDeg = h
	case prev.Valid:
		trend := NormalizeRadians(out.Roll - prev.Roll)
		out.HeadingDeg = NormalizeDegrees(prev.HeadingDeg + Degrees(trend))
	default:
		out.HeadingDeg = 0
	}
	if !finite(out.HeadingDeg) {
		out.HeadingDeg = 0
	}

	if tiltOK {
		out.FaceUp = s.Z < -faceUpRatio*mag
	}

	if p.TrackScreen {
		base := prev.Screen
		if !prev.Valid {
			base = p.DefaultScreen
		}
		out.Screen = base
		if tiltOK && !out.FaceUp {
			out.Screen = ScreenFromRoll(out.Roll, base)
		}
	} else {
		out.Screen = p.DefaultScreen
	}

	out.Valid = true
	return out
}

// ScreenFromRoll maps a roll angle onto a screen orientation. Rolls between
// the capture windows keep prev so the layout does not flap at 45°.
func ScreenFromRoll(roll float64, prev ScreenOrientation) ScreenOrientation {
	d := NormalizeSigned(Degrees(roll))
	switch {
	case math.Abs(d) <= screenCaptureDeg:
		return Portrait
	case math.Abs(d) >= 180-screenCaptureDeg:
		return PortraitUpsideDown
	case math.Abs(d-90) <= screenCaptureDeg:
		return LandscapeLeft
	case math.Abs(d+90) <= screenCaptureDeg:
		return LandscapeRight
	default:
		return prev
	}
}

func clampAlpha(a float64) float64 {
	if !finite(a) || a <= 0 || a > 1 {
		return 1
	}
	return a
}

func clampRadians(r float64) float64 {
	if !finite(r) {
		return 0
	}
	if r > math.Pi {
		return math.Pi
	}
	if r < -math.Pi {
		return -math.Pi
	}
	return r
}
