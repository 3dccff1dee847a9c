package sim

import (
	"fmt"
	"math"

	"arlayout/internal/geomath"
)

// Ring places Count geolocated markers evenly around Center. Distances
// cycle through 1x, 1.25x and 1.5x RadiusM so neighboring markers differ
// in depth.
type Ring struct {
	Center  geomath.Coordinate
	Count   int
	RadiusM float64
	// AltM is the base marker altitude; markers are staggered 10 m apart.
	// Nil leaves markers at the observer's height.
	AltM *float64
}

func (r Ring) Markers() []ScenarioMarker {
	if r.Count <= 0 {
		return nil
	}
	radius := r.RadiusM
	if radius <= 0 {
		radius = 300
	}

	out := make([]ScenarioMarker, 0, r.Count)
	for i := 0; i < r.Count; i++ {
		bearing := 360 * float64(i) / float64(r.Count)
		dist := radius * (1 + 0.25*float64(i%3))
		c := geomath.Destination(r.Center, bearing, dist)
		m := ScenarioMarker{
			ID:     fmt.Sprintf("ring-%02d", i),
			Name:   fmt.Sprintf("Ring %d (%03.0f°)", i, math.Round(bearing)),
			LatDeg: c.LatDeg,
			LonDeg: c.LonDeg,
		}
		if r.AltM != nil {
			alt := *r.AltM + float64(i-r.Count/2)*10
			m.AltM = &alt
		}
		out = append(out, m)
	}
	return out
}
