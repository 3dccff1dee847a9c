package geomath

import "math"

func Radians(deg float64) float64 { return deg * math.Pi / 180 }

func Degrees(rad float64) float64 { return rad * 180 / math.Pi }

// NormalizeDegrees wraps deg into [0, 360). Non-finite input is returned as-is.
func NormalizeDegrees(deg float64) float64 {
	if !finite(deg) {
		return deg
	}
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	// -tiny + 360 rounds to 360.
	if d >= 360 {
		d = 0
	}
	return d
}

// NormalizeSigned wraps deg into (-180, 180].
func NormalizeSigned(deg float64) float64 {
	d := NormalizeDegrees(deg)
	if d > 180 {
		d -= 360
	}
	return d
}

// NormalizeRadians wraps rad into [-π, π].
func NormalizeRadians(rad float64) float64 {
	if !finite(rad) {
		return rad
	}
	r := math.Mod(rad+math.Pi, 2*math.Pi)
	if r < 0 {
		r += 2 * math.Pi
	}
	return r - math.Pi
}

// LerpAngleDeg interpolates along the shortest arc and returns [0, 360).
func LerpAngleDeg(a0, a1, t float64) float64 {
	a0 = NormalizeDegrees(a0)
	delta := NormalizeSigned(a1 - a0)
	return NormalizeDegrees(a0 + delta*t)
}
