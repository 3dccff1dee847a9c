package sim

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"arlayout/internal/geomath"
)

// ScenarioScript is a deterministic, script-driven device walk plus the
// markers placed around it.
//
// YAML schema (v1):
//
//	version: 1
//	duration: 30s
//	device:
//	  accuracy_m: 5
//	  keyframes:
//	    - t: 0s
//	      lat_deg: 47.6
//	      lon_deg: -122.3
//	      alt_m: 20
//	      heading_deg: 90
//	      pitch_deg: 0
//	      roll_deg: 0
//	  outages:
//	    - from: 10s
//	      to: 15s
//	      code: network
//	markers:
//	  - id: cafe
//	    lat_deg: 47.601
//	    lon_deg: -122.3
//	  - id: north
//	    virtual: true
//	    angle_deg: 0
//	    distance_m: 100
//
// Device keyframes must use non-decreasing t values.
type ScenarioScript struct {
	Version  int              `yaml:"version"`
	Duration time.Duration    `yaml:"duration"`
	Device   ScenarioDevice   `yaml:"device"`
	Markers  []ScenarioMarker `yaml:"markers"`
}

type ScenarioDevice struct {
	AccuracyM float64          `yaml:"accuracy_m"`
	Keyframes []DeviceKeyframe `yaml:"keyframes"`
	Outages   []Outage         `yaml:"outages"`
}

// DeviceKeyframe is a time-stamped device pose. AltM is optional.
type DeviceKeyframe struct {
	T          time.Duration `yaml:"t"`
	LatDeg     float64       `yaml:"lat_deg"`
	LonDeg     float64       `yaml:"lon_deg"`
	AltM       *float64      `yaml:"alt_m"`
	HeadingDeg float64       `yaml:"heading_deg"`
	PitchDeg   float64       `yaml:"pitch_deg"`
	RollDeg    float64       `yaml:"roll_deg"`
}

// Outage is a window without a location fix. Code is unknown, denied or
// network.
type Outage struct {
	From time.Duration `yaml:"from"`
	To   time.Duration `yaml:"to"`
	Code string        `yaml:"code"`
}

// ScenarioMarker is either geolocated (lat/lon) or virtual (angle and
// distance from the device).
type ScenarioMarker struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	LatDeg    float64  `yaml:"lat_deg"`
	LonDeg    float64  `yaml:"lon_deg"`
	AltM      *float64 `yaml:"alt_m"`
	Virtual   bool     `yaml:"virtual"`
	AngleDeg  float64  `yaml:"angle_deg"`
	DistanceM float64  `yaml:"distance_m"`
}

// Coordinate is the marker position; meaningless for virtual markers.
func (m ScenarioMarker) Coordinate() geomath.Coordinate {
	c := geomath.NewCoordinate(m.LatDeg, m.LonDeg)
	if m.AltM != nil {
		c = c.WithAltitude(*m.AltM)
	}
	return c
}

// Scenario is the validated runtime form; use StateAt to sample it.
type Scenario struct {
	script   ScenarioScript
	duration time.Duration
}

// LoadScenarioScript reads and unmarshals a YAML scenario script from path.
func LoadScenarioScript(path string) (ScenarioScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ScenarioScript{}, err
	}
	return ParseScenarioScriptYAML(b)
}

func ParseScenarioScriptYAML(b []byte) (ScenarioScript, error) {
	var s ScenarioScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return ScenarioScript{}, err
	}
	return s, nil
}

// NewScenario validates script and returns a runtime Scenario.
func NewScenario(script ScenarioScript) (*Scenario, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported scenario version %d", script.Version)
	}
	kfs := script.Device.Keyframes
	if len(kfs) == 0 {
		return nil, fmt.Errorf("device.keyframes is required")
	}
	for i := range kfs {
		if kfs[i].T < 0 {
			return nil, fmt.Errorf("device.keyframes[%d].t must be >= 0", i)
		}
		if i > 0 && kfs[i].T < kfs[i-1].T {
			return nil, fmt.Errorf("device.keyframes must be sorted by t (index %d)", i)
		}
		if !geomath.NewCoordinate(kfs[i].LatDeg, kfs[i].LonDeg).Valid() {
			return nil, fmt.Errorf("device.keyframes[%d] has an invalid lat/lon", i)
		}
	}
	for i, o := range script.Device.Outages {
		if o.To <= o.From {
			return nil, fmt.Errorf("device.outages[%d].to must be after from", i)
		}
		if _, ok := outageCodes[strings.ToLower(strings.TrimSpace(o.Code))]; !ok {
			return nil, fmt.Errorf("device.outages[%d].code %q is not one of unknown, denied, network", i, o.Code)
		}
	}
	for i, m := range script.Markers {
		if m.Virtual {
			if m.DistanceM <= 0 {
				return nil, fmt.Errorf("markers[%d].distance_m must be > 0 for virtual markers", i)
			}
			continue
		}
		if !m.Coordinate().Valid() {
			return nil, fmt.Errorf("markers[%d] has an invalid lat/lon", i)
		}
	}

	dur := script.Duration
	if dur <= 0 {
		dur = kfs[len(kfs)-1].T
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration is required (or derivable from keyframes)")
	}
	return &Scenario{script: script, duration: dur}, nil
}

var outageCodes = map[string]struct{}{"": {}, "unknown": {}, "denied": {}, "network": {}}

func (s *Scenario) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.duration
}

// Markers returns the scripted markers in file order.
func (s *Scenario) Markers() []ScenarioMarker {
	if s == nil {
		return nil
	}
	return append([]ScenarioMarker(nil), s.script.Markers...)
}

// DeviceState is the sampled device pose. When Available is false the
// location is withheld and OutageCode names the failure.
type DeviceState struct {
	Coord      geomath.Coordinate
	AccuracyM  float64
	HeadingDeg float64
	PitchDeg   float64
	RollDeg    float64
	Available  bool
	OutageCode string
}

// StateAt samples the device at elapsed. With loop, elapsed wraps around
// Duration(); otherwise it is clamped to [0, Duration()].
func (s *Scenario) StateAt(elapsed time.Duration, loop bool) DeviceState {
	if s == nil {
		return DeviceState{}
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if loop {
		elapsed %= s.duration
	} else if elapsed > s.duration {
		elapsed = s.duration
	}

	k0, k1, a := selectSegment(s.script.Device.Keyframes, elapsed)
	out := DeviceState{
		Coord:      geomath.NewCoordinate(lerp(k0.LatDeg, k1.LatDeg, a), lerp(k0.LonDeg, k1.LonDeg, a)),
		HeadingDeg: geomath.LerpAngleDeg(k0.HeadingDeg, k1.HeadingDeg, a),
		PitchDeg:   lerp(k0.PitchDeg, k1.PitchDeg, a),
		RollDeg:    lerp(k0.RollDeg, k1.RollDeg, a),
		AccuracyM:  s.script.Device.AccuracyM,
		Available:  true,
	}
	if k0.AltM != nil && k1.AltM != nil {
		out.Coord = out.Coord.WithAltitude(lerp(*k0.AltM, *k1.AltM, a))
	}
	if out.AccuracyM == 0 {
		out.AccuracyM = 5
	}
	for _, o := range s.script.Device.Outages {
		if elapsed >= o.From && elapsed < o.To {
			out.Available = false
			out.OutageCode = strings.ToLower(strings.TrimSpace(o.Code))
			if out.OutageCode == "" {
				out.OutageCode = "unknown"
			}
			break
		}
	}
	return out
}

func selectSegment(kfs []DeviceKeyframe, t time.Duration) (DeviceKeyframe, DeviceKeyframe, float64) {
	if len(kfs) == 1 {
		return kfs[0], kfs[0], 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0 := kfs[idx-1]
	k1 := kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	alpha := float64(t-k0.T) / float64(dt)
	return k0, k1, min(max(alpha, 0), 1)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
