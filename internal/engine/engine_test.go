package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"arlayout/internal/geomath"
	"arlayout/internal/marker"
)

var (
	t0      = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	allCaps = Capabilities{Location: true, Compass: true, Accelerometer: true, Camera: true}
	origin  = geomath.NewCoordinate(0, 0)
)

// compassOnly disables the accelerometer so orientation follows the
// compass exactly.
func compassOnly() Config {
	cfg := DefaultConfig()
	cfg.EnableAccelerometer = false
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *Queue) {
	t.Helper()
	q := &Queue{}
	e, err := New(cfg, allCaps,
		WithSink(q),
		WithMeter(noop.NewMeterProvider().Meter("test")),
		WithClock(func() time.Time { return t0 }),
	)
	require.NoError(t, err)
	return e, q
}

func kinds(evs []Event) []EventKind {
	out := make([]EventKind, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Kind)
	}
	return out
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FOVDeg = 0
	cfg.MinRange, cfg.MaxRange = 100, 10
	_, err := New(cfg, allCaps)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "fov_deg")
	assert.Contains(t, err.Error(), "range min")
}

func TestNew_RejectsOversizedGrid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sectors = 1 << 30
	_, err := New(cfg, allCaps)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "sectors must be in [0, 360]")
}

func TestNew_UnsupportedDevice(t *testing.T) {
	cases := []struct {
		name string
		caps Capabilities
		cfg  Config
		ok   bool
	}{
		{"NoCompass", Capabilities{Location: true, Accelerometer: true, Camera: true}, DefaultConfig(), false},
		{"NoLocation", Capabilities{Compass: true, Accelerometer: true, Camera: true}, DefaultConfig(), false},
		{"NoCameraNeeded", Capabilities{Location: true, Compass: true, Accelerometer: true}, func() Config {
			c := DefaultConfig()
			c.EnableCamera = false
			return c
		}(), true},
		{"NoAccelerometerNeeded", Capabilities{Location: true, Compass: true, Camera: true}, compassOnly(), true},
		{"NoAccelerometer", Capabilities{Location: true, Compass: true, Camera: true}, DefaultConfig(), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg, tc.caps, WithMeter(noop.NewMeterProvider().Meter("test")))
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUnsupportedDevice)
			}
		})
	}
}

func TestNew_FlagDependencies(t *testing.T) {
	e, _ := newTestEngine(t, compassOnly())
	assert.False(t, e.Config().EnableAutoswitchToRadar)
	assert.False(t, e.Config().EnableViewOrientationUpdate)

	cfg := DefaultConfig()
	cfg.EnableRadar = false
	e, _ = newTestEngine(t, cfg)
	assert.False(t, e.Config().EnableAutoswitchToRadar)
	assert.False(t, e.ShowRadar())
}

func TestFrame_HiddenAndLoading(t *testing.T) {
	e, _ := newTestEngine(t, compassOnly())

	assert.False(t, e.UpdateLocation(LocationSample{Coord: origin}), "location is off while hidden")
	f := e.Frame(t0)
	assert.True(t, f.Hidden)
	assert.Empty(t, f.Markers)

	require.True(t, e.Show())
	f = e.Frame(t0)
	assert.False(t, f.Hidden)
	assert.True(t, f.Loading)
}

func TestFrame_ContinuousGPSWhileHidden(t *testing.T) {
	cfg := compassOnly()
	cfg.EnableContinuousGPS = true
	e, _ := newTestEngine(t, cfg)

	assert.True(t, e.UpdateLocation(LocationSample{Coord: origin, Time: t0}))
	loc, ok := e.Location()
	require.True(t, ok)
	assert.Equal(t, origin, loc)
}

func TestFrame_LaysOutMarkers(t *testing.T) {
	e, q := newTestEngine(t, compassOnly())
	require.True(t, e.Show())
	require.True(t, e.UpdateLocation(LocationSample{Coord: origin, Time: t0, AccuracyM: 5}))
	require.True(t, e.UpdateHeading(0))

	right, err := e.AddVirtual(marker.Spec{ID: "right"}, 30, 100)
	require.NoError(t, err)
	behind, err := e.AddVirtual(marker.Spec{ID: "behind"}, 200, 100)
	require.NoError(t, err)

	f := e.Frame(t0)
	require.False(t, f.Loading)
	require.Len(t, f.Markers, 1)
	assert.Equal(t, "right", f.Markers[0].ID)
	assert.Greater(t, f.Markers[0].X, 160.0)
	assert.True(t, right.Visible)
	assert.False(t, behind.Visible)
	assert.Equal(t, 5.0, f.AccuracyM)
	assert.Len(t, f.Radar, 2)

	assert.Equal(t, []EventKind{InfoChanged}, kinds(q.Drain()))

	again := e.Frame(t0.Add(time.Second))
	if diff := cmp.Diff(f.Markers, again.Markers); diff != "" {
		t.Fatalf("frame not idempotent (-first +second):\n%s", diff)
	}
	assert.Equal(t, time.Second, again.Delta)
	assert.Zero(t, q.Len(), "no info change without movement")
}

func TestFrame_InfoChangedThresholds(t *testing.T) {
	e, q := newTestEngine(t, compassOnly())
	e.Show()
	e.UpdateLocation(LocationSample{Coord: origin})
	e.UpdateHeading(10)
	e.Frame(t0)
	q.Drain()

	e.UpdateHeading(11)
	e.Frame(t0)
	assert.Zero(t, q.Len(), "1 degree is below the threshold")

	e.UpdateHeading(13)
	e.Frame(t0)
	evs := q.Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, InfoChanged, evs[0].Kind)
	assert.InDelta(t, 13, evs[0].HeadingDeg, 1e-9)

	e.UpdateLocation(LocationSample{Coord: geomath.Destination(origin, 90, 10)})
	e.Frame(t0)
	assert.Equal(t, 1, q.Len())
}

func TestFailures_ImmediateAndDelayed(t *testing.T) {
	e, q := newTestEngine(t, compassOnly())
	e.Show()

	e.LocationFailed(LocationDenied)
	evs := q.Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, Failure, evs[0].Kind)
	assert.True(t, errors.Is(evs[0].Err, ErrLocationDenied))

	e.LocationFailed(LocationNetwork)
	assert.Zero(t, q.Len(), "network errors are debounced")

	e.Frame(t0.Add(time.Second))
	assert.Zero(t, q.Len())

	e.Frame(t0.Add(5 * time.Second))
	evs = q.Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, LocationNetwork, evs[0].Code)
	assert.ErrorIs(t, evs[0].Err, ErrLocationNetwork)
	assert.Equal(t, t0.Add(5*time.Second), evs[0].Time)
}

func TestFailures_DelayFollowsFrameTimeWithoutClock(t *testing.T) {
	q := &Queue{}
	e, err := New(compassOnly(), allCaps, WithSink(q), WithMeter(noop.NewMeterProvider().Meter("test")))
	require.NoError(t, err)
	e.Show()

	base := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	e.Frame(base)
	q.Drain()

	e.FailDelayed(LocationNetwork)
	e.Frame(base.Add(4 * time.Second))
	assert.Zero(t, q.Len())

	e.Frame(base.Add(5 * time.Second))
	evs := q.Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, LocationNetwork, evs[0].Code)
	assert.Equal(t, base.Add(5*time.Second), evs[0].Time)
}

func TestFailures_DelayedCancelledByFix(t *testing.T) {
	e, q := newTestEngine(t, compassOnly())
	e.Show()

	e.FailDelayed(LocationUnknown)
	require.True(t, e.UpdateLocation(LocationSample{Coord: origin}))
	e.UpdateHeading(0)
	e.Frame(t0.Add(time.Minute))

	for _, ev := range q.Drain() {
		assert.NotEqual(t, Failure, ev.Kind)
	}
}

func TestFailures_InvalidFixDoesNotCancel(t *testing.T) {
	e, q := newTestEngine(t, compassOnly())
	e.Show()

	e.FailDelayed(LocationUnknown)
	assert.False(t, e.UpdateLocation(LocationSample{Coord: geomath.NewCoordinate(120, 0)}))
	assert.False(t, e.UpdateLocation(LocationSample{Coord: origin, AccuracyM: -1}))
	e.Frame(t0.Add(10 * time.Second))

	evs := q.Drain()
	require.Len(t, evs, 1)
	assert.ErrorIs(t, evs[0].Err, ErrLocationUnavailable)
}

func TestLocationServicesUnavailable(t *testing.T) {
	e, q := newTestEngine(t, compassOnly())

	e.SetLocationServicesAvailable(false)
	assert.Equal(t, []EventKind{Failure}, kinds(q.Drain()))

	assert.False(t, e.Show())
	evs := q.Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, LocationDenied, evs[0].Code)
	assert.False(t, e.UpdateLocation(LocationSample{Coord: origin}))

	e.SetLocationServicesAvailable(true)
	assert.True(t, e.UpdateLocation(LocationSample{Coord: origin}))
}

func TestSuspendResumeKeepsMarkers(t *testing.T) {
	e, _ := newTestEngine(t, compassOnly())
	e.Show()
	e.UpdateLocation(LocationSample{Coord: origin})
	e.UpdateHeading(0)
	_, err := e.AddVirtual(marker.Spec{}, 0, 50)
	require.NoError(t, err)

	e.Suspend()
	assert.False(t, e.UpdateHeading(90))
	assert.False(t, e.UpdateLocation(LocationSample{Coord: origin}))
	assert.True(t, e.Frame(t0).Hidden)
	_, ok := e.Tap(160, 240)
	assert.False(t, ok)

	e.Resume()
	assert.False(t, e.Orientation().Valid)
	assert.Equal(t, 1, e.MarkerCount())
	assert.True(t, e.Frame(t0).Loading, "waits for a fresh orientation")

	e.UpdateHeading(0)
	assert.Len(t, e.Frame(t0).Markers, 1)
}

func TestAutoswitchToRadar(t *testing.T) {
	e, _ := newTestEngine(t, DefaultConfig())
	e.Show()
	e.UpdateLocation(LocationSample{Coord: origin})
	e.UpdateHeading(0)
	_, err := e.AddVirtual(marker.Spec{}, 0, 50)
	require.NoError(t, err)

	require.True(t, e.UpdateAccelerometer(geomath.AccelSample{Y: -1}))
	f := e.Frame(t0)
	assert.False(t, f.RadarMode)
	assert.Len(t, f.Markers, 1)

	e.UpdateAccelerometer(geomath.AccelSample{Z: -1})
	assert.True(t, e.InRadarMode())
	f = e.Frame(t0)
	assert.True(t, f.RadarMode)
	assert.Empty(t, f.Markers)
	require.Len(t, f.Radar, 1)
	assert.True(t, f.Radar[0].InRange)

	e.UpdateAccelerometer(geomath.AccelSample{Y: -1})
	assert.False(t, e.InRadarMode())

	// A manual switch is not undone by the tilt detector.
	require.True(t, e.ShowRadar())
	e.UpdateAccelerometer(geomath.AccelSample{Y: -1})
	assert.True(t, e.InRadarMode())
	e.HideRadar()
	assert.False(t, e.InRadarMode())
}

func TestTap_TopmostFirst(t *testing.T) {
	e, q := newTestEngine(t, compassOnly())
	e.Show()
	e.UpdateLocation(LocationSample{Coord: origin})
	e.UpdateHeading(0)
	near, err := e.AddVirtual(marker.Spec{ID: "near", Payload: "n"}, 0, 50)
	require.NoError(t, err)
	far, err := e.AddVirtual(marker.Spec{ID: "far"}, 0, 100)
	require.NoError(t, err)

	e.Frame(t0)
	q.Drain()
	require.Equal(t, 0, near.Slot)
	require.Equal(t, 1, far.Slot)

	got, ok := e.Tap(160, 220)
	require.True(t, ok)
	assert.Same(t, near, got, "overlapping boxes resolve to the marker drawn last")
	assert.Same(t, near, e.LastTapped())

	evs := q.Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, MarkerTapped, evs[0].Kind)
	assert.Equal(t, "near", evs[0].MarkerID)
	assert.Equal(t, "n", evs[0].Payload)

	got, ok = e.Tap(160, 190)
	require.True(t, ok)
	assert.Same(t, far, got)

	_, ok = e.Tap(5, 5)
	assert.False(t, ok)

	assert.True(t, e.Remove(far))
	assert.Nil(t, e.LastTapped())
}

func TestTap_DisabledInteraction(t *testing.T) {
	cfg := compassOnly()
	cfg.EnableInteraction = false
	e, q := newTestEngine(t, cfg)
	e.Show()
	e.UpdateLocation(LocationSample{Coord: origin})
	e.UpdateHeading(0)
	e.AddVirtual(marker.Spec{}, 0, 50)
	e.Frame(t0)
	q.Drain()

	_, ok := e.Tap(160, 240)
	assert.False(t, ok)
	assert.Zero(t, q.Len())
}

func TestErrorCodeMapping(t *testing.T) {
	assert.ErrorIs(t, LocationUnknown.Err(), ErrLocationUnavailable)
	assert.ErrorIs(t, LocationDenied.Err(), ErrLocationDenied)
	assert.ErrorIs(t, LocationNetwork.Err(), ErrLocationNetwork)
	assert.ErrorIs(t, ErrorCode(42).Err(), ErrLocationUnavailable)
}

func TestQueue(t *testing.T) {
	var q Queue
	q.Emit(Event{Kind: InfoChanged})
	q.Emit(Event{Kind: Failure})
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, []EventKind{InfoChanged, Failure}, kinds(q.Drain()))
	assert.Zero(t, q.Len())
	assert.Empty(t, q.Drain())

	var got []EventKind
	SinkFunc(func(ev Event) { got = append(got, ev.Kind) }).Emit(Event{Kind: MarkerTapped})
	assert.Equal(t, []EventKind{MarkerTapped}, got)
}
