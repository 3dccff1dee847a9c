package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"arlayout/internal/geomath"
	"arlayout/internal/marker"
	"arlayout/internal/projector"
)

// LocationSample is one fix from the location source.
type LocationSample struct {
	Coord     geomath.Coordinate
	Time      time.Time
	AccuracyM float64
}

// RadarBlip is one marker on the radar disk.
type RadarBlip struct {
	ID string
	projector.Blip
}

// Frame is the per-tick output handed to the renderer.
type Frame struct {
	Time  time.Time
	Delta time.Duration

	// Hidden is set while the view is hidden or suspended; nothing is laid out.
	Hidden bool
	// Loading is set while no location or orientation is known yet and the
	// loading view is enabled.
	Loading bool

	Location     geomath.Coordinate
	LocationTime time.Time
	AccuracyM    float64
	Orientation  geomath.Orientation

	// Markers is in draw order; empty in radar mode.
	Markers []marker.Renderable

	RadarMode bool
	Radar     []RadarBlip

	CameraTransform [2]float64
	CameraTint      [4]float64
}

type Option func(*options)

type options struct {
	log   zerolog.Logger
	sink  Sink
	meter metric.Meter
	now   func() time.Time
}

func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.log = l } }
func WithSink(s Sink) Option             { return func(o *options) { o.sink = s } }
func WithMeter(m metric.Meter) Option    { return func(o *options) { o.meter = m } }

// WithClock sets the engine clock used to stamp events and start failure
// debounces. Without it the clock follows the time passed to Frame, or the
// wall clock before the first frame. Frame times should come from the same
// source as the injected clock.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

type pendingFailure struct {
	code ErrorCode
	due  time.Time
}

// Engine drives the marker layout from sensor input.
//
// All methods must be called from a single goroutine.
type Engine struct {
	cfg     Config
	caps    Capabilities
	log     zerolog.Logger
	sink    Sink
	metrics *metrics
	clock   func() time.Time
	reg     *marker.Registry

	servicesAvailable bool
	shown             bool
	suspended         bool
	radarMode         bool
	autoRadar         bool

	haveLocation bool
	location     geomath.Coordinate
	accuracy     float64
	locationTime time.Time

	compass *float64
	orient  geomath.Orientation

	pending *pendingFailure

	haveInfo    bool
	infoLoc     geomath.Coordinate
	infoHeading float64

	frameTime  time.Time
	last       Frame
	lastTapped *marker.Marker
}

// New validates cfg against caps and returns a hidden engine.
func New(cfg Config, caps Capabilities, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := Supported(caps, cfg); err != nil {
		return nil, err
	}

	o := options{log: zerolog.Nop(), sink: nopSink{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.meter == nil {
		o.meter = defaultMeter()
	}
	m, err := newMetrics(o.meter)
	if err != nil {
		return nil, err
	}

	cfg = cfg.normalized()
	e := &Engine{
		cfg:               cfg,
		caps:              caps,
		log:               o.log,
		sink:              o.sink,
		metrics:           m,
		clock:             o.now,
		reg:               marker.NewRegistry(cfg.registryConfig(), o.log.With().Str("component", "registry").Logger()),
		servicesAvailable: true,
	}
	e.log.Info().
		Float64("fov_deg", cfg.FOVDeg).
		Float64("min_range", cfg.MinRange).
		Float64("max_range", cfg.MaxRange).
		Str("overflow", cfg.Overflow.String()).
		Msg("engine ready")
	return e, nil
}

// Config returns the effective configuration after flag dependencies.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) AddGeolocated(spec marker.Spec, coord geomath.Coordinate) (*marker.Marker, error) {
	return e.reg.AddGeolocated(spec, coord)
}

func (e *Engine) AddVirtual(spec marker.Spec, angleDeg, distance float64) (*marker.Marker, error) {
	return e.reg.AddVirtual(spec, angleDeg, distance)
}

func (e *Engine) Remove(m *marker.Marker) bool {
	if m != nil && m == e.lastTapped {
		e.lastTapped = nil
	}
	return e.reg.Remove(m)
}

func (e *Engine) ClearMarkers() {
	e.lastTapped = nil
	e.reg.Clear()
}

func (e *Engine) MarkerCount() int                        { return e.reg.Count() }
func (e *Engine) Markers() []*marker.Marker               { return e.reg.Markers() }
func (e *Engine) Marker(id string) (*marker.Marker, bool) { return e.reg.Get(id) }
func (e *Engine) Registry() *marker.Registry              { return e.reg }
func (e *Engine) LastTapped() *marker.Marker              { return e.lastTapped }
func (e *Engine) Orientation() geomath.Orientation        { return e.orient }
func (e *Engine) Location() (geomath.Coordinate, bool)    { return e.location, e.haveLocation }
func (e *Engine) Shown() bool                             { return e.shown }
func (e *Engine) Suspended() bool                         { return e.suspended }
func (e *Engine) InRadarMode() bool                       { return e.radarMode }
func (e *Engine) Capabilities() Capabilities              { return e.caps }

// LocationActive reports whether location samples are being consumed.
// Location runs while shown, or always with continuous GPS, and never while
// suspended or with location services off.
func (e *Engine) LocationActive() bool {
	if e.suspended || !e.servicesAvailable {
		return false
	}
	return e.shown || e.cfg.EnableContinuousGPS
}

// Show makes the view visible. With location services off it reports
// LocationDenied immediately and returns false.
func (e *Engine) Show() bool {
	e.shown = true
	if !e.servicesAvailable {
		e.FailImmediately(LocationDenied)
		return false
	}
	e.log.Debug().Msg("view shown")
	return true
}

func (e *Engine) Hide() {
	e.shown = false
	e.last = Frame{}
	e.log.Debug().Msg("view hidden")
}

// Suspend stops consuming sensor input. Markers are kept.
func (e *Engine) Suspend() {
	if e.suspended {
		return
	}
	e.suspended = true
	e.log.Info().Int("markers", e.reg.Count()).Msg("suspended")
}

// Resume restarts sensor consumption. The orientation filter restarts from
// the next sample.
func (e *Engine) Resume() {
	if !e.suspended {
		return
	}
	e.suspended = false
	e.orient.Valid = false
	e.log.Info().Int("markers", e.reg.Count()).Msg("resumed")
}

// ShowRadar switches to radar mode until HideRadar. It returns false when
// radar is disabled.
func (e *Engine) ShowRadar() bool {
	if !e.cfg.EnableRadar {
		return false
	}
	e.radarMode = true
	e.autoRadar = false
	return true
}

func (e *Engine) HideRadar() {
	e.radarMode = false
	e.autoRadar = false
}

// SetLocationServicesAvailable forwards the platform's location switch.
// Turning services off reports LocationDenied at once.
func (e *Engine) SetLocationServicesAvailable(ok bool) {
	was := e.servicesAvailable
	e.servicesAvailable = ok
	if was && !ok {
		e.log.Warn().Msg("location services unavailable")
		e.FailImmediately(LocationDenied)
	}
}

// UpdateLocation consumes a fix. It returns false when the sample was
// ignored: inactive location, unusable coordinate or negative accuracy.
// An accepted fix cancels a pending delayed failure.
func (e *Engine) UpdateLocation(s LocationSample) bool {
	if !e.LocationActive() {
		return false
	}
	if !s.Coord.Valid() || !geomath.Finite(s.AccuracyM) || s.AccuracyM < 0 {
		e.log.Debug().Float64("lat", s.Coord.LatDeg).Float64("lon", s.Coord.LonDeg).Msg("location sample ignored")
		return false
	}
	e.location = s.Coord
	e.accuracy = s.AccuracyM
	e.locationTime = s.Time
	e.haveLocation = true
	if e.pending != nil {
		e.log.Debug().Str("code", e.pending.code.String()).Msg("delayed failure cancelled by fix")
		e.pending = nil
	}
	return true
}

// LocationFailed routes a location service error: a denial is reported
// immediately, transient errors are debounced.
func (e *Engine) LocationFailed(code ErrorCode) {
	if code == LocationDenied {
		e.FailImmediately(code)
		return
	}
	e.FailDelayed(code)
}

func (e *Engine) FailImmediately(code ErrorCode) {
	e.emitFailure(code, e.now())
}

// FailDelayed reports code after ErrorDelay unless a valid fix arrives
// first. A second call while one is pending keeps the original deadline
// and reports the latest code.
func (e *Engine) FailDelayed(code ErrorCode) {
	if e.pending != nil {
		e.pending.code = code
		return
	}
	e.pending = &pendingFailure{code: code, due: e.now().Add(e.cfg.ErrorDelay)}
}

func (e *Engine) emitFailure(code ErrorCode, at time.Time) {
	e.log.Warn().Str("code", code.String()).Msg("location failure")
	e.metrics.recordFailure(code)
	e.sink.Emit(Event{Kind: Failure, Time: at, Code: code, Err: code.Err()})
}

func (e *Engine) flushPending(now time.Time) {
	if e.pending == nil || now.Before(e.pending.due) {
		return
	}
	p := e.pending
	e.pending = nil
	e.emitFailure(p.code, now)
}

// UpdateHeading consumes a compass heading in degrees.
func (e *Engine) UpdateHeading(deg float64) bool {
	if e.suspended || !geomath.Finite(deg) {
		return false
	}
	h := geomath.NormalizeDegrees(deg)
	e.compass = &h
	if !e.cfg.EnableAccelerometer {
		e.orient = geomath.Orientation{HeadingDeg: h, Screen: e.cfg.DefaultOrientation, Valid: true}
	}
	return true
}

// UpdateAccelerometer fuses a tilt sample with the latest compass heading.
func (e *Engine) UpdateAccelerometer(s geomath.AccelSample) bool {
	if e.suspended || !e.cfg.EnableAccelerometer {
		return false
	}
	e.orient = geomath.FuseOrientation(s, e.compass, e.orient, geomath.FusionParams{
		Alpha:         e.cfg.FusionAlpha,
		TrackScreen:   e.cfg.EnableViewOrientationUpdate,
		DefaultScreen: e.cfg.DefaultOrientation,
	})

	if e.cfg.EnableAutoswitchToRadar {
		switch {
		case e.orient.FaceUp && !e.radarMode:
			e.radarMode, e.autoRadar = true, true
			e.log.Debug().Msg("face up, radar on")
		case !e.orient.FaceUp && e.autoRadar:
			e.radarMode, e.autoRadar = false, false
			e.log.Debug().Msg("upright, radar off")
		}
	}
	return true
}

func (e *Engine) now() time.Time {
	switch {
	case e.clock != nil:
		return e.clock()
	case !e.frameTime.IsZero():
		return e.frameTime
	default:
		return time.Now()
	}
}

// Frame lays out all markers for now. Pending delayed failures and info
// changes are emitted to the sink from here.
func (e *Engine) Frame(now time.Time) Frame {
	e.frameTime = now
	f := Frame{
		Time:            now,
		RadarMode:       e.radarMode,
		CameraTransform: e.cfg.CameraTransform,
		CameraTint:      e.cfg.CameraTint,
	}
	if !e.last.Time.IsZero() && now.After(e.last.Time) {
		f.Delta = now.Sub(e.last.Time)
	}

	e.flushPending(now)

	if e.suspended || !e.shown {
		f.Hidden = true
		e.last = Frame{}
		return f
	}
	if !e.haveLocation || !e.orient.Valid {
		f.Loading = e.cfg.EnableLoadingView
		e.last = f
		return f
	}

	f.Location = e.location
	f.LocationTime = e.locationTime
	f.AccuracyM = e.accuracy
	f.Orientation = e.orient
	markers := e.reg.Tick(e.location, e.orient)
	if !e.radarMode {
		f.Markers = markers
	}
	if e.cfg.EnableRadar {
		f.Radar = e.radarBlips()
	}

	e.checkInfo(now)
	e.metrics.recordFrame(len(f.Markers), e.reg.Overflowed(), e.radarMode)
	e.last = f
	return f
}

func (e *Engine) radarBlips() []RadarBlip {
	rc := projector.RadarConfig{
		CenterX: e.cfg.Radar.X,
		CenterY: e.cfg.Radar.Y,
		Radius:  e.cfg.Radar.Radius,
		Range:   e.cfg.radarRange(),
	}
	ms := e.reg.Markers()
	out := make([]RadarBlip, 0, len(ms))
	for _, m := range ms {
		if !geomath.Finite(m.Bearing, m.Distance) || m.Distance <= 0 {
			continue
		}
		out = append(out, RadarBlip{ID: m.ID, Blip: projector.Radar(m.Bearing, m.Distance, e.orient.HeadingDeg, rc)})
	}
	return out
}

func (e *Engine) checkInfo(now time.Time) {
	h := e.orient.HeadingDeg
	if e.haveInfo {
		moved := geomath.Distance(e.infoLoc, e.location)
		turned := math.Abs(geomath.NormalizeSigned(h - e.infoHeading))
		if moved < e.cfg.InfoMinDistance && turned < e.cfg.InfoMinHeadingDeg {
			return
		}
	}
	e.haveInfo = true
	e.infoLoc = e.location
	e.infoHeading = h
	e.sink.Emit(Event{Kind: InfoChanged, Time: now, Location: e.location, HeadingDeg: h})
}

// Tap hit-tests (x, y) against the last frame, topmost marker first. It
// emits MarkerTapped and records LastTapped on a hit.
func (e *Engine) Tap(x, y float64) (*marker.Marker, bool) {
	if !e.cfg.EnableInteraction || e.suspended || !e.shown {
		return nil, false
	}
	hw, hh := e.cfg.MarkerWidth/2, e.cfg.MarkerHeight/2
	ms := e.last.Markers
	for i := len(ms) - 1; i >= 0; i-- {
		r := ms[i]
		if math.Abs(x-r.X) > hw || math.Abs(y-r.Y) > hh {
			continue
		}
		m, ok := e.reg.Get(r.ID)
		if !ok {
			continue
		}
		e.lastTapped = m
		e.log.Debug().Str("id", m.ID).Msg("marker tapped")
		e.sink.Emit(Event{Kind: MarkerTapped, Time: e.now(), MarkerID: m.ID, Payload: m.Payload, Tag: m.Tag})
		return m, true
	}
	return nil, false
}

func (e *Engine) String() string {
	return fmt.Sprintf("engine(markers=%d shown=%v suspended=%v radar=%v)", e.reg.Count(), e.shown, e.suspended, e.radarMode)
}
