package sim

import (
	"math"
	"time"

	"arlayout/internal/geomath"
)

// Walk is a deterministic figure-eight around Center that stays within
// RadiusM. The camera pitch sweeps gently so markers move vertically too.
type Walk struct {
	Center  geomath.Coordinate
	RadiusM float64
	Period  time.Duration
	// PitchAmpDeg is the camera pitch swing; 0 holds the camera level.
	PitchAmpDeg float64
}

func (w Walk) StateAt(elapsed time.Duration) DeviceState {
	period := w.Period
	if period <= 0 {
		period = 120 * time.Second
	}
	radius := w.RadiusM
	if radius <= 0 {
		radius = 50
	}
	if elapsed < 0 {
		elapsed = 0
	}

	phase := float64(elapsed%period) / float64(period)
	a := 2 * math.Pi * phase

	//	east  = cos(a)
	//	north = 0.5*sin(2a)
	east := radius * math.Cos(a)
	north := 0.5 * radius * math.Sin(2*a)
	coord := geomath.Destination(w.Center, geomath.Degrees(math.Atan2(east, north)), math.Hypot(east, north))

	// Heading follows the velocity.
	ve := -math.Sin(a)
	vn := math.Cos(2 * a)
	heading := geomath.NormalizeDegrees(geomath.Degrees(math.Atan2(ve, vn)))

	return DeviceState{
		Coord:      coord,
		AccuracyM:  5,
		HeadingDeg: heading,
		PitchDeg:   w.PitchAmpDeg * math.Sin(a),
		Available:  true,
	}
}
