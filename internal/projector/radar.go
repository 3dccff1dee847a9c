package projector

import (
	"math"

	"arlayout/internal/geomath"
)

// RadarConfig describes the top-down radar disk in viewport coordinates.
type RadarConfig struct {
	CenterX float64
	CenterY float64
	Radius  float64
	// Range is the distance in meters drawn at the rim.
	Range float64
}

// Blip is one marker on the radar disk.
type Blip struct {
	X, Y    float64
	InRange bool
}

// Radar places a marker on a heading-up radar disk. Markers beyond Range
// are pinned to the rim with InRange=false.
func Radar(bearingDeg, distance, headingDeg float64, cfg RadarConfig) Blip {
	b := Blip{X: cfg.CenterX, Y: cfg.CenterY}
	if !geomath.Finite(bearingDeg, distance, headingDeg, cfg.Range, cfg.Radius) || cfg.Range <= 0 || cfg.Radius <= 0 || distance < 0 {
		return b
	}

	r := distance / cfg.Range * cfg.Radius
	b.InRange = true
	if r > cfg.Radius {
		r = cfg.Radius
		b.InRange = false
	}
	a := geomath.Radians(geomath.NormalizeSigned(bearingDeg - headingDeg))
	b.X = cfg.CenterX + r*math.Sin(a)
	b.Y = cfg.CenterY - r*math.Cos(a)
	return b
}
