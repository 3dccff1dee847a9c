package sim

import (
	"math"
	"testing"
	"time"

	"arlayout/internal/geomath"
)

func TestWalk_StaysWithinRadius(t *testing.T) {
	w := Walk{
		Center:      geomath.NewCoordinate(45, -122),
		RadiusM:     80,
		Period:      60 * time.Second,
		PitchAmpDeg: 10,
	}
	for i := 0; i <= 120; i++ {
		st := w.StateAt(time.Duration(i) * 500 * time.Millisecond)
		if !st.Coord.Valid() || !st.Available {
			t.Fatalf("step %d: invalid state %+v", i, st)
		}
		if d := geomath.Distance(w.Center, st.Coord); d > w.RadiusM*1.001 {
			t.Fatalf("step %d: distance=%v beyond radius", i, d)
		}
		if st.HeadingDeg < 0 || st.HeadingDeg >= 360 {
			t.Fatalf("step %d: heading=%v out of range", i, st.HeadingDeg)
		}
		if math.Abs(st.PitchDeg) > 10+1e-9 {
			t.Fatalf("step %d: pitch=%v beyond amplitude", i, st.PitchDeg)
		}
	}
}

func TestWalk_StartAndPeriodic(t *testing.T) {
	w := Walk{Center: geomath.NewCoordinate(0, 0), RadiusM: 100, Period: 40 * time.Second}

	// Phase 0 sits due east of center heading north.
	st := w.StateAt(0)
	if d := geomath.Distance(w.Center, st.Coord); math.Abs(d-100) > 0.5 {
		t.Fatalf("distance=%v want ~100", d)
	}
	if b := geomath.Bearing(w.Center, st.Coord); math.Abs(b-90) > 0.01 {
		t.Fatalf("bearing=%v want 90", b)
	}
	if st.HeadingDeg != 0 {
		t.Fatalf("heading=%v want 0", st.HeadingDeg)
	}

	again := w.StateAt(40 * time.Second)
	if again != st {
		t.Fatalf("expected periodic state: %+v vs %+v", again, st)
	}
}

func TestRing_Markers(t *testing.T) {
	alt := 100.0
	r := Ring{Center: geomath.NewCoordinate(47.6, -122.3), Count: 6, RadiusM: 200, AltM: &alt}
	ms := r.Markers()
	if len(ms) != 6 {
		t.Fatalf("len=%d want 6", len(ms))
	}
	seen := map[string]bool{}
	for i, m := range ms {
		if seen[m.ID] {
			t.Fatalf("duplicate id %q", m.ID)
		}
		seen[m.ID] = true

		c := m.Coordinate()
		wantDist := 200 * (1 + 0.25*float64(i%3))
		if d := geomath.Distance(r.Center, c); math.Abs(d-wantDist) > 0.5 {
			t.Fatalf("marker %d distance=%v want %v", i, d, wantDist)
		}
		wantBearing := 60 * float64(i)
		if b := geomath.Bearing(r.Center, c); math.Abs(geomath.NormalizeSigned(b-wantBearing)) > 0.1 {
			t.Fatalf("marker %d bearing=%v want %v", i, b, wantBearing)
		}
		if !c.HasAlt || c.AltM != 100+float64(i-3)*10 {
			t.Fatalf("marker %d alt=%+v", i, c)
		}
	}
	if ms[0].ID != "ring-00" {
		t.Fatalf("id=%q want ring-00", ms[0].ID)
	}
}

func TestRing_Empty(t *testing.T) {
	if got := (Ring{}).Markers(); got != nil {
		t.Fatalf("expected nil for count=0")
	}
}

func TestAccelFor_RoundTripsThroughFusion(t *testing.T) {
	cases := []struct{ pitch, roll float64 }{
		{0, 0},
		{30, 0},
		{-20, 15},
		{10, 90},
		{0, -90},
	}
	for _, tc := range cases {
		s := AccelFor(tc.pitch, tc.roll)
		if g := math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z); math.Abs(g-1) > 1e-9 {
			t.Fatalf("|g|=%v want 1", g)
		}
		o := geomath.FuseOrientation(s, nil, geomath.Orientation{}, geomath.FusionParams{Alpha: 1})
		if math.Abs(geomath.Degrees(o.Pitch)-tc.pitch) > 1e-6 {
			t.Fatalf("pitch=%v want %v", geomath.Degrees(o.Pitch), tc.pitch)
		}
		if math.Abs(geomath.Degrees(o.Roll)-tc.roll) > 1e-6 {
			t.Fatalf("roll=%v want %v", geomath.Degrees(o.Roll), tc.roll)
		}
	}
}

func TestAccelFor_FaceUp(t *testing.T) {
	o := geomath.FuseOrientation(AccelFor(-90, 0), nil, geomath.Orientation{}, geomath.FusionParams{Alpha: 1})
	if !o.FaceUp {
		t.Fatalf("expected face up when the camera points down")
	}
}
