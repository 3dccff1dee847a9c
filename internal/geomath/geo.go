package geomath

import (
	"math"

	"github.com/wroge/wgs84"
	"gonum.org/v1/gonum/spatial/r3"
)

// EarthRadiusMeters is the IUGG mean Earth radius used for great-circle math.
const EarthRadiusMeters = 6_371_008.8

// Coordinate is an immutable WGS84 position.
//
// AltM is meaningful only when HasAlt is set; markers without altitude are
// treated as sitting at the observer's height.
type Coordinate struct {
	LatDeg float64
	LonDeg float64
	AltM   float64
	HasAlt bool
}

func NewCoordinate(latDeg, lonDeg float64) Coordinate {
	return Coordinate{LatDeg: latDeg, LonDeg: lonDeg}
}

// WithAltitude returns a copy of c carrying altM.
func (c Coordinate) WithAltitude(altM float64) Coordinate {
	c.AltM = altM
	c.HasAlt = true
	return c
}

// Valid reports whether c is finite and inside the WGS84 lat/lon domain.
func (c Coordinate) Valid() bool {
	if !finite(c.LatDeg) || !finite(c.LonDeg) {
		return false
	}
	if c.HasAlt && !finite(c.AltM) {
		return false
	}
	return c.LatDeg >= -90 && c.LatDeg <= 90 && c.LonDeg >= -180 && c.LonDeg <= 180
}

// SamePosition ignores altitude.
func (c Coordinate) SamePosition(o Coordinate) bool {
	return c.LatDeg == o.LatDeg && c.LonDeg == o.LonDeg
}

// Bearing returns the great-circle initial bearing from -> to in [0, 360).
// Coincident points yield 0.
func Bearing(from, to Coordinate) float64 {
	if from.SamePosition(to) {
		return 0
	}
	phi1 := Radians(from.LatDeg)
	phi2 := Radians(to.LatDeg)
	dLambda := Radians(to.LonDeg - from.LonDeg)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	if x == 0 && y == 0 {
		return 0
	}
	return NormalizeDegrees(Degrees(math.Atan2(y, x)))
}

// Distance returns the haversine distance in meters.
//
// The haversine term is clamped to [0, 1] so rounding near the antipode never
// produces NaN. Distinct positions always yield a positive distance.
func Distance(from, to Coordinate) float64 {
	if from.SamePosition(to) {
		return 0
	}
	phi1 := Radians(from.LatDeg)
	phi2 := Radians(to.LatDeg)
	dPhi := Radians(to.LatDeg - from.LatDeg)
	dLambda := Radians(to.LonDeg - from.LonDeg)

	sp := math.Sin(dPhi / 2)
	sl := math.Sin(dLambda / 2)
	a := sp*sp + math.Cos(phi1)*math.Cos(phi2)*sl*sl
	if a < 1e-20 {
		// Millimetre separations: the squared terms lose precision or
		// underflow, the planar form does not.
		d := EarthRadiusMeters * math.Hypot(dPhi, dLambda*math.Cos((phi1+phi2)/2))
		if d <= 0 {
			return math.SmallestNonzeroFloat64
		}
		return d
	}
	if a < 0 {
		a = 0
	} else if a > 1 {
		a = 1
	}
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Destination returns the point reached by travelling distanceM along the
// great circle leaving from at bearingDeg. Altitude is carried over.
func Destination(from Coordinate, bearingDeg, distanceM float64) Coordinate {
	delta := distanceM / EarthRadiusMeters
	theta := Radians(bearingDeg)
	phi1 := Radians(from.LatDeg)
	lambda1 := Radians(from.LonDeg)

	sinPhi2 := math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta)
	if sinPhi2 > 1 {
		sinPhi2 = 1
	} else if sinPhi2 < -1 {
		sinPhi2 = -1
	}
	phi2 := math.Asin(sinPhi2)
	y := math.Sin(theta) * math.Sin(delta) * math.Cos(phi1)
	x := math.Cos(delta) - math.Sin(phi1)*sinPhi2
	lambda2 := lambda1 + math.Atan2(y, x)

	out := from
	out.LatDeg = Degrees(phi2)
	out.LonDeg = NormalizeSigned(Degrees(lambda2))
	return out
}

// geocentric converts EPSG:4326 (lon, lat, h) into EPSG:4978 ECEF meters.
var geocentric = wgs84.EPSG().Transform(4326, 4978)

// ECEF returns the earth-centered earth-fixed position of c.
// ok is false when the transform yields non-finite output.
func ECEF(c Coordinate) (v r3.Vec, ok bool) {
	x, y, z := geocentric(c.LonDeg, c.LatDeg, c.AltM)
	if !finite(x) || !finite(y) || !finite(z) {
		return r3.Vec{}, false
	}
	return r3.Vec{X: x, Y: y, Z: z}, true
}

// ElevationAngle returns the angle in degrees above the local horizon at
// from under which to is seen. Without altitude on both ends the target is
// taken to be level with the observer and 0 is returned.
func ElevationAngle(from, to Coordinate) float64 {
	if !from.HasAlt || !to.HasAlt {
		return 0
	}
	if from.SamePosition(to) {
		switch {
		case to.AltM > from.AltM:
			return 90
		case to.AltM < from.AltM:
			return -90
		default:
			return 0
		}
	}

	a, okA := ECEF(from)
	b, okB := ECEF(to)
	if !okA || !okB {
		return sphericalElevation(from, to)
	}

	d := r3.Sub(b, a)
	phi := Radians(from.LatDeg)
	lambda := Radians(from.LonDeg)
	up := r3.Vec{X: math.Cos(phi) * math.Cos(lambda), Y: math.Cos(phi) * math.Sin(lambda), Z: math.Sin(phi)}
	east := r3.Vec{X: -math.Sin(lambda), Y: math.Cos(lambda)}
	north := r3.Cross(up, east)

	horizontal := math.Hypot(r3.Dot(d, east), r3.Dot(d, north))
	return Degrees(math.Atan2(r3.Dot(d, up), horizontal))
}

// sphericalElevation accounts for earth curvature drop over the surface
// distance on a spherical earth.
func sphericalElevation(from, to Coordinate) float64 {
	d := Distance(from, to)
	if d <= 0 {
		return 0
	}
	drop := d * d / (2 * EarthRadiusMeters)
	return Degrees(math.Atan2(to.AltM-from.AltM-drop, d))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Finite reports whether every value is neither NaN nor infinite.
func Finite(vs ...float64) bool {
	for _, v := range vs {
		if !finite(v) {
			return false
		}
	}
	return true
}
