package udp

import (
	"encoding/json"
	"time"

	"arlayout/internal/engine"
	"arlayout/internal/geomath"
)

// wireFrame is the JSON datagram layout. Field names are part of the
// renderer contract.
type wireFrame struct {
	Time    time.Time `json:"time"`
	DeltaMS float64   `json:"delta_ms"`
	Hidden  bool      `json:"hidden,omitempty"`
	Loading bool      `json:"loading,omitempty"`

	Location *wireLocation `json:"location,omitempty"`

	HeadingDeg float64 `json:"heading_deg"`
	PitchDeg   float64 `json:"pitch_deg"`
	RollDeg    float64 `json:"roll_deg"`
	Screen     string  `json:"screen"`

	Markers   []wireMarker `json:"markers"`
	RadarMode bool         `json:"radar_mode,omitempty"`
	Radar     []wireBlip   `json:"radar,omitempty"`

	CameraTransform [2]float64 `json:"camera_transform"`
	CameraTint      [4]float64 `json:"camera_tint"`
}

type wireLocation struct {
	LatDeg    float64  `json:"lat_deg"`
	LonDeg    float64  `json:"lon_deg"`
	AltM      *float64 `json:"alt_m,omitempty"`
	AccuracyM float64  `json:"accuracy_m,omitempty"`
}

type wireMarker struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Depth    float64 `json:"depth"`
	Sector   int     `json:"sector"`
	Slot     int     `json:"slot"`
	Z        int     `json:"z"`
	Overflow bool    `json:"overflow,omitempty"`
	Payload  any     `json:"payload,omitempty"`
}

type wireBlip struct {
	ID      string  `json:"id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	InRange bool    `json:"in_range"`
}

// EncodeFrame renders f as one JSON datagram. Payloads must be JSON
// encodable.
func EncodeFrame(f engine.Frame) ([]byte, error) {
	w := wireFrame{
		Time:            f.Time.UTC(),
		DeltaMS:         float64(f.Delta) / float64(time.Millisecond),
		Hidden:          f.Hidden,
		Loading:         f.Loading,
		HeadingDeg:      f.Orientation.HeadingDeg,
		PitchDeg:        geomath.Degrees(f.Orientation.Pitch),
		RollDeg:         geomath.Degrees(f.Orientation.Roll),
		Screen:          f.Orientation.Screen.String(),
		Markers:         make([]wireMarker, 0, len(f.Markers)),
		RadarMode:       f.RadarMode,
		CameraTransform: f.CameraTransform,
		CameraTint:      f.CameraTint,
	}
	if f.Location.Valid() && !f.LocationTime.IsZero() {
		loc := &wireLocation{
			LatDeg:    f.Location.LatDeg,
			LonDeg:    f.Location.LonDeg,
			AccuracyM: f.AccuracyM,
		}
		if f.Location.HasAlt {
			alt := f.Location.AltM
			loc.AltM = &alt
		}
		w.Location = loc
	}
	for _, m := range f.Markers {
		w.Markers = append(w.Markers, wireMarker{
			ID:       m.ID,
			X:        m.X,
			Y:        m.Y,
			Depth:    m.Depth,
			Sector:   m.Sector,
			Slot:     m.Slot,
			Z:        m.Z,
			Overflow: m.Overflow,
			Payload:  m.Payload,
		})
	}
	for _, b := range f.Radar {
		w.Radar = append(w.Radar, wireBlip{ID: b.ID, X: b.X, Y: b.Y, InRange: b.InRange})
	}
	return json.Marshal(w)
}
