package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"arlayout/internal/catalog"
	"arlayout/internal/config"
	"arlayout/internal/engine"
	"arlayout/internal/geomath"
	"arlayout/internal/gps"
	"arlayout/internal/marker"
	"arlayout/internal/sim"
	"arlayout/internal/udp"
)

// publisher is satisfied by *udp.Broadcaster.
type publisher interface {
	Send(payload []byte) error
	Close() error
}

// deviceSource feeds one tick of device input into the engine.
type deviceSource interface {
	feed(e *engine.Engine, elapsed time.Duration, now time.Time)
	close()
}

type liveRuntime struct {
	cfg config.Config
	log zerolog.Logger

	eng    *engine.Engine
	events *engine.Queue
	src    deviceSource

	sender publisher
	stdout io.Writer

	start time.Time
	clock time.Time
}

func newLiveRuntime(ctx context.Context, cfg config.Config, stdout io.Writer, log zerolog.Logger) (*liveRuntime, error) {
	c := cfg
	if err := config.DefaultAndValidate(&c); err != nil {
		return nil, err
	}
	ec, err := c.EngineConfig()
	if err != nil {
		return nil, err
	}

	r := &liveRuntime{
		cfg:    c,
		log:    log,
		events: &engine.Queue{},
		stdout: stdout,
	}
	ok := false
	defer func() {
		if !ok {
			r.Close()
		}
	}()

	var scenario *sim.Scenario
	if c.Sim.Scenario.Enable {
		script, err := sim.LoadScenarioScript(c.Sim.Scenario.Path)
		if err != nil {
			return nil, fmt.Errorf("loading scenario %s: %w", c.Sim.Scenario.Path, err)
		}
		if scenario, err = sim.NewScenario(script); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", c.Sim.Scenario.Path, err)
		}
	}

	// Simulated sources always carry a heading; GPS derives one from course.
	caps := engine.Capabilities{Location: true, Compass: true, Accelerometer: true, Camera: true}
	r.eng, err = engine.New(ec, caps,
		engine.WithLogger(log.With().Str("component", "engine").Logger()),
		engine.WithSink(r.events),
		engine.WithClock(r.now),
	)
	if err != nil {
		return nil, err
	}

	switch {
	case scenario != nil:
		r.src = &scenarioSource{scn: scenario, loop: c.Sim.Scenario.Loop}
		if err := r.addScenarioMarkers(scenario.Markers()); err != nil {
			return nil, err
		}
	case c.Sim.Walk.Enable:
		r.src = &walkSource{walk: sim.Walk{
			Center:      walkCenter(c.Sim.Walk),
			RadiusM:     c.Sim.Walk.RadiusM,
			Period:      c.Sim.Walk.Period,
			PitchAmpDeg: 5,
		}}
	case c.GPS.Enable:
		svc := gps.New(gps.Config{
			Device:        c.GPS.Device,
			Baud:          c.GPS.Baud,
			Parity:        c.GPS.Parity,
			ReadTimeout:   c.GPS.ReadTimeout,
			MetersPerHDOP: c.GPS.MetersPerHDOP,
		}, log.With().Str("component", "gps").Logger())
		if err := svc.Start(ctx); err != nil {
			// Keep running; the engine reports the missing fix.
			log.Warn().Err(err).Msg("gps init failed")
		}
		r.src = &gpsSource{svc: svc}
	}

	if c.Sim.Ring.Enable {
		ring := sim.Ring{Center: walkCenter(c.Sim.Walk), Count: c.Sim.Ring.Count, RadiusM: c.Sim.Ring.RadiusM}
		if c.Sim.Ring.AltM != 0 {
			alt := c.Sim.Ring.AltM
			ring.AltM = &alt
		}
		if err := r.addScenarioMarkers(ring.Markers()); err != nil {
			return nil, err
		}
	}

	if c.Catalog.Path != "" {
		entries, err := catalog.Load(c.Catalog.Path)
		if err != nil {
			return nil, fmt.Errorf("loading catalog %s: %w", c.Catalog.Path, err)
		}
		for _, en := range entries {
			spec := marker.Spec{ID: en.ID, Payload: markerPayload(en.Name, en.Properties)}
			if _, err := r.eng.AddGeolocated(spec, en.Coord); err != nil {
				return nil, fmt.Errorf("catalog marker %s: %w", en.ID, err)
			}
		}
		log.Info().Int("markers", len(entries)).Str("path", c.Catalog.Path).Msg("catalog loaded")
	}

	if c.Output.Dest != "" {
		b, err := udp.NewBroadcaster(c.Output.Dest)
		if err != nil {
			return nil, err
		}
		r.sender = b
	}

	r.eng.Show()
	ok = true
	return r, nil
}

func walkCenter(w config.WalkConfig) geomath.Coordinate {
	c := geomath.NewCoordinate(w.CenterLatDeg, w.CenterLonDeg)
	if w.AltM != 0 {
		c = c.WithAltitude(w.AltM)
	}
	return c
}

func markerPayload(name string, props map[string]any) map[string]any {
	out := make(map[string]any, len(props)+1)
	for k, v := range props {
		out[k] = v
	}
	if name != "" {
		out["name"] = name
	}
	return out
}

func (r *liveRuntime) addScenarioMarkers(ms []sim.ScenarioMarker) error {
	for _, m := range ms {
		spec := marker.Spec{ID: m.ID, Payload: markerPayload(m.Name, nil)}
		var err error
		if m.Virtual {
			_, err = r.eng.AddVirtual(spec, m.AngleDeg, m.DistanceM)
		} else {
			_, err = r.eng.AddGeolocated(spec, m.Coordinate())
		}
		if err != nil {
			return fmt.Errorf("marker %s: %w", m.ID, err)
		}
	}
	return nil
}

func (r *liveRuntime) now() time.Time { return r.clock }

// Step feeds device input for now, lays out one frame, publishes it and
// logs the engine events it produced.
func (r *liveRuntime) Step(now time.Time) (engine.Frame, error) {
	if r.start.IsZero() {
		r.start = now
	}
	r.clock = now
	r.src.feed(r.eng, now.Sub(r.start), now)

	f := r.eng.Frame(now)
	r.logEvents()

	if r.sender == nil && r.stdout == nil {
		return f, nil
	}
	payload, err := udp.EncodeFrame(f)
	if err != nil {
		return f, fmt.Errorf("encoding frame: %w", err)
	}
	var errs []error
	if r.sender != nil {
		if err := r.sender.Send(payload); err != nil {
			errs = append(errs, fmt.Errorf("udp send: %w", err))
		}
	}
	if r.stdout != nil {
		if _, err := r.stdout.Write(append(payload, '\n')); err != nil {
			errs = append(errs, fmt.Errorf("stdout: %w", err))
		}
	}
	return f, errors.Join(errs...)
}

func (r *liveRuntime) logEvents() {
	for _, ev := range r.events.Drain() {
		switch ev.Kind {
		case engine.Failure:
			r.log.Warn().Str("code", ev.Code.String()).Err(ev.Err).Msg("location failure")
		case engine.InfoChanged:
			r.log.Debug().
				Float64("lat", ev.Location.LatDeg).
				Float64("lon", ev.Location.LonDeg).
				Float64("heading_deg", ev.HeadingDeg).
				Msg("device moved")
		case engine.MarkerTapped:
			r.log.Info().Str("marker", ev.MarkerID).Msg("marker tapped")
		}
	}
}

// Run steps at the configured rate until ctx is done or frames frames have
// been produced (0 means unbounded). Send errors are logged, not fatal.
func (r *liveRuntime) Run(ctx context.Context, frames int) error {
	interval := time.Second / time.Duration(r.cfg.Output.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 0; frames <= 0 || n < frames; n++ {
		f, err := r.Step(time.Now())
		if err != nil {
			r.log.Warn().Err(err).Msg("frame publish failed")
		}
		if n%r.cfg.Output.FPS == 0 {
			r.log.Debug().Int("markers", len(f.Markers)).Bool("loading", f.Loading).Bool("radar", f.RadarMode).Msg("frame")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (r *liveRuntime) Close() {
	if r == nil {
		return
	}
	if r.src != nil {
		r.src.close()
	}
	if r.sender != nil {
		_ = r.sender.Close()
	}
}

type scenarioSource struct {
	scn       *sim.Scenario
	loop      bool
	wasOutage bool
}

func (s *scenarioSource) feed(e *engine.Engine, elapsed time.Duration, now time.Time) {
	feedDevice(e, s.scn.StateAt(elapsed, s.loop), now, &s.wasOutage)
}

func (s *scenarioSource) close() {}

type walkSource struct {
	walk sim.Walk
}

func (s *walkSource) feed(e *engine.Engine, elapsed time.Duration, now time.Time) {
	var outage bool
	feedDevice(e, s.walk.StateAt(elapsed), now, &outage)
}

func (s *walkSource) close() {}

// feedDevice reports an outage once when it begins.
func feedDevice(e *engine.Engine, st sim.DeviceState, now time.Time, inOutage *bool) {
	if st.Available {
		*inOutage = false
		e.UpdateLocation(engine.LocationSample{Coord: st.Coord, Time: now, AccuracyM: st.AccuracyM})
	} else if !*inOutage {
		*inOutage = true
		e.LocationFailed(outageCode(st.OutageCode))
	}
	e.UpdateHeading(st.HeadingDeg)
	e.UpdateAccelerometer(sim.AccelFor(st.PitchDeg, st.RollDeg))
}

func outageCode(s string) engine.ErrorCode {
	switch s {
	case "denied":
		return engine.LocationDenied
	case "network":
		return engine.LocationNetwork
	default:
		return engine.LocationUnknown
	}
}

type gpsSource struct {
	svc     *gps.Service
	lastSeq uint64
}

// feed holds the camera level; only position and course come from the
// receiver.
func (s *gpsSource) feed(e *engine.Engine, _ time.Duration, now time.Time) {
	snap := s.svc.Snapshot()
	if snap.Seq != s.lastSeq {
		s.lastSeq = snap.Seq
		switch {
		case snap.Valid:
			e.UpdateLocation(engine.LocationSample{Coord: snap.Coord, Time: snap.Time, AccuracyM: snap.AccuracyM})
			if snap.CourseDeg != nil {
				e.UpdateHeading(*snap.CourseDeg)
			}
		case snap.Lost:
			e.LocationFailed(engine.LocationUnknown)
		}
	}
	e.UpdateAccelerometer(sim.AccelFor(0, 0))
}

func (s *gpsSource) close() { s.svc.Close() }
