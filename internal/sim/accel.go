package sim

import (
	"math"

	"arlayout/internal/geomath"
)

// AccelFor synthesizes the 1 g accelerometer reading of a device whose
// camera is pitched pitchDeg above the horizon and rolled rollDeg about
// the camera axis.
func AccelFor(pitchDeg, rollDeg float64) geomath.AccelSample {
	p := geomath.Radians(pitchDeg)
	r := geomath.Radians(rollDeg)
	return geomath.AccelSample{
		X: -math.Cos(p) * math.Sin(r),
		Y: -math.Cos(p) * math.Cos(r),
		Z: math.Sin(p),
	}
}
