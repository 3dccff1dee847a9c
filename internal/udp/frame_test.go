package udp

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"arlayout/internal/engine"
	"arlayout/internal/geomath"
	"arlayout/internal/marker"
	"arlayout/internal/projector"
)

func TestEncodeFrame(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := engine.Frame{
		Time:         t0,
		Delta:        100 * time.Millisecond,
		Location:     geomath.NewCoordinate(47.6, -122.3).WithAltitude(12),
		LocationTime: t0,
		AccuracyM:    4,
		Orientation: geomath.Orientation{
			HeadingDeg: 90,
			Pitch:      math.Pi / 6,
			Screen:     geomath.LandscapeLeft,
			Valid:      true,
		},
		Markers: []marker.Renderable{
			{ID: "far", X: 10, Y: 20, Depth: 100, Sector: 2, Slot: 1, Z: 0, Payload: map[string]string{"name": "Tower"}},
			{ID: "near", X: 12, Y: 60, Depth: 50, Sector: 2, Slot: 0, Z: 1},
		},
		Radar:           []engine.RadarBlip{{ID: "far", Blip: projector.Blip{X: 1, Y: 2, InRange: true}}},
		CameraTransform: [2]float64{1, 1},
		CameraTint:      [4]float64{0, 0, 0, 0.5},
	}

	b, err := EncodeFrame(f)
	if err != nil {
		t.Fatalf("EncodeFrame() error: %v", err)
	}

	var got wireFrame
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if !got.Time.Equal(t0) || got.DeltaMS != 100 {
		t.Fatalf("time=%s delta=%v", got.Time, got.DeltaMS)
	}
	if got.Location == nil || got.Location.AltM == nil || *got.Location.AltM != 12 || got.Location.AccuracyM != 4 {
		t.Fatalf("location=%+v", got.Location)
	}
	if math.Abs(got.PitchDeg-30) > 1e-9 || got.Screen != geomath.LandscapeLeft.String() {
		t.Fatalf("pitch=%v screen=%q", got.PitchDeg, got.Screen)
	}
	if len(got.Markers) != 2 || got.Markers[0].ID != "far" || got.Markers[1].Z != 1 {
		t.Fatalf("markers=%+v", got.Markers)
	}
	if p, ok := got.Markers[0].Payload.(map[string]any); !ok || p["name"] != "Tower" {
		t.Fatalf("payload=%#v", got.Markers[0].Payload)
	}
	if len(got.Radar) != 1 || !got.Radar[0].InRange {
		t.Fatalf("radar=%+v", got.Radar)
	}
	if got.CameraTint[3] != 0.5 {
		t.Fatalf("tint=%v", got.CameraTint)
	}
}

func TestEncodeFrame_LoadingOmitsLocation(t *testing.T) {
	b, err := EncodeFrame(engine.Frame{Loading: true})
	if err != nil {
		t.Fatalf("EncodeFrame() error: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if _, ok := raw["location"]; ok {
		t.Fatalf("expected no location in %s", b)
	}
	if raw["loading"] != true {
		t.Fatalf("expected loading flag in %s", b)
	}
	if ms, ok := raw["markers"].([]any); !ok || len(ms) != 0 {
		t.Fatalf("expected empty markers array in %s", b)
	}
}

func TestEncodeFrame_UnencodablePayload(t *testing.T) {
	f := engine.Frame{Markers: []marker.Renderable{{ID: "x", Payload: make(chan int)}}}
	if _, err := EncodeFrame(f); err == nil {
		t.Fatalf("expected error")
	}
}
