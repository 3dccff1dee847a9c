package marker

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"arlayout/internal/geomath"
	"arlayout/internal/projector"
	"arlayout/internal/sector"
)

type Config struct {
	Projector    projector.Config
	Sectors      int
	MaxStack     int
	StackSpacing float64
	Overflow     sector.OverflowPolicy
	Order        Order
	Stack        StackDirection
}

// Registry owns the live marker set and lays it out once per tick.
//
// Every tick recomputes geometry, order and sector occupancy from scratch,
// so nothing from a previous tick (including removed markers) survives
// into the next layout. Registry is not safe for concurrent use.
type Registry struct {
	cfg  Config
	log  zerolog.Logger
	grid *sector.Grid

	markers []*Marker
	byID    map[string]*Marker
	nextSeq uint64

	needsSorting bool
	needsRefresh bool

	haveLast   bool
	lastLoc    geomath.Coordinate
	lastOrient geomath.Orientation

	overflowed int
}

func NewRegistry(cfg Config, log zerolog.Logger) *Registry {
	return &Registry{
		cfg:  cfg,
		log:  log,
		grid: sector.New(cfg.Sectors, cfg.MaxStack),
		byID: make(map[string]*Marker),
	}
}

// AddGeolocated registers a marker pinned to coord.
func (r *Registry) AddGeolocated(spec Spec, coord geomath.Coordinate) (*Marker, error) {
	if !coord.Valid() {
		return nil, fmt.Errorf("geolocated marker at (%v, %v): %w", coord.LatDeg, coord.LonDeg, ErrInvalidMarkerGeometry)
	}
	m := &Marker{Mode: Geolocated, Coordinate: coord}
	return r.insert(spec, m)
}

// AddVirtual registers a marker at a fixed compass angle and declared
// distance from the device, independent of the device location.
func (r *Registry) AddVirtual(spec Spec, angleDeg, distance float64) (*Marker, error) {
	if !geomath.Finite(angleDeg, distance) || distance <= 0 {
		return nil, fmt.Errorf("virtual marker angle=%v distance=%v: %w", angleDeg, distance, ErrInvalidMarkerGeometry)
	}
	m := &Marker{
		Mode:             Virtual,
		AngleDeg:         geomath.NormalizeDegrees(angleDeg),
		DeclaredDistance: distance,
	}
	return r.insert(spec, m)
}

func (r *Registry) insert(spec Spec, m *Marker) (*Marker, error) {
	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, ok := r.byID[id]; ok {
		return nil, fmt.Errorf("marker %q: %w", id, ErrDuplicateID)
	}

	m.ID = id
	m.Payload = spec.Payload
	m.Tag = spec.Tag
	m.Sector, m.Slot = -1, -1
	m.state = Registered
	m.seq = r.nextSeq
	r.nextSeq++

	r.markers = append(r.markers, m)
	r.byID[id] = m
	r.markDirty()

	r.log.Debug().Str("id", id).Str("mode", m.Mode.String()).Int("count", len(r.markers)).Msg("marker added")
	return m, nil
}

// Remove drops m from the registry. It returns false if m is not a live
// member of this registry.
func (r *Registry) Remove(m *Marker) bool {
	if m == nil {
		return false
	}
	cur, ok := r.byID[m.ID]
	if !ok || cur != m {
		return false
	}
	delete(r.byID, m.ID)
	for i, x := range r.markers {
		if x == m {
			r.markers = append(r.markers[:i], r.markers[i+1:]...)
			break
		}
	}
	m.state = Removed
	m.Visible = false
	r.markDirty()

	r.log.Debug().Str("id", m.ID).Int("count", len(r.markers)).Msg("marker removed")
	return true
}

// RemoveID is Remove by identifier.
func (r *Registry) RemoveID(id string) bool {
	return r.Remove(r.byID[id])
}

func (r *Registry) Clear() {
	for _, m := range r.markers {
		m.state = Removed
		m.Visible = false
	}
	n := len(r.markers)
	r.markers = nil
	r.byID = make(map[string]*Marker)
	r.markDirty()

	if n > 0 {
		r.log.Debug().Int("removed", n).Msg("markers cleared")
	}
}

func (r *Registry) Count() int { return len(r.markers) }

// Markers returns the live markers in registration order.
func (r *Registry) Markers() []*Marker {
	out := make([]*Marker, len(r.markers))
	copy(out, r.markers)
	return out
}

func (r *Registry) Get(id string) (*Marker, bool) {
	m, ok := r.byID[id]
	return m, ok
}

func (r *Registry) NeedsSorting() bool { return r.needsSorting }
func (r *Registry) NeedsRefresh() bool { return r.needsRefresh }

// Overflowed is the number of markers that hit a full sector column on the
// last tick.
func (r *Registry) Overflowed() int { return r.overflowed }

// Grid exposes the sector occupancy of the last tick.
func (r *Registry) Grid() *sector.Grid { return r.grid }

func (r *Registry) Config() Config { return r.cfg }

func (r *Registry) markDirty() {
	r.needsSorting = true
	r.needsRefresh = true
}

// Tick lays out every marker for the device at loc with orientation o and
// returns the visible markers in draw order.
//
// Geometry anomalies (unknown location, zero distance, non-finite values)
// cull the affected marker and never fail the pass.
func (r *Registry) Tick(loc geomath.Coordinate, o geomath.Orientation) []Renderable {
	if !r.haveLast || loc != r.lastLoc || o != r.lastOrient {
		r.markDirty()
	}
	r.haveLast, r.lastLoc, r.lastOrient = true, loc, o

	locOK := loc.Valid()
	visible := make([]*Marker, 0, len(r.markers))
	projections := make(map[*Marker]projector.Projection, len(r.markers))

	for _, m := range r.markers {
		in := r.geometry(m, loc, locOK)
		p := projector.Project(in, o, r.cfg.Projector)

		m.Bearing, m.Distance, m.Elevation = in.BearingDeg, in.Distance, in.ElevationDeg
		m.Depth = p.Depth
		m.X, m.Y = p.X, p.Y
		m.Sector, m.Slot = -1, -1
		m.Overflow = false
		m.Visible = p.Visible
		m.Reason = p.Reason
		if p.Visible {
			m.state = Visible
			visible = append(visible, m)
			projections[m] = p
		} else {
			m.state = Culled
		}
	}

	// Nearest first; registration order breaks ties so the order is total.
	sort.SliceStable(visible, func(i, j int) bool {
		a, b := visible[i], visible[j]
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		return a.seq < b.seq
	})

	r.grid.Clear()
	r.overflowed = 0
	placed := visible[:0]
	for _, m := range visible {
		p := projections[m]
		sec := r.grid.SectorFor(p.U, p.FrameW)
		pl := r.grid.Place(sec, r.cfg.Overflow)
		if pl.Overflow {
			r.overflowed++
		}
		if !pl.Placed {
			m.Visible = false
			m.Reason = projector.Overflow
			m.state = Culled
			continue
		}

		m.Sector, m.Slot, m.Overflow = sec, pl.Slot, pl.Overflow
		v := p.V
		offset := float64(pl.Slot) * r.cfg.StackSpacing
		if r.cfg.Stack == StackDown {
			v += offset
		} else {
			v -= offset
		}
		m.X, m.Y = projector.ToViewport(p.U, v, r.cfg.Projector.Viewport, o.Screen)
		placed = append(placed, m)
	}

	// Draw order follows the configured direction; ties stay in registration order.
	if r.cfg.Order == FarToNear {
		sort.SliceStable(placed, func(i, j int) bool {
			a, b := placed[i], placed[j]
			if a.Depth != b.Depth {
				return a.Depth > b.Depth
			}
			return a.seq < b.seq
		})
	}

	out := make([]Renderable, 0, len(placed))
	for z, m := range placed {
		out = append(out, Renderable{
			ID:       m.ID,
			X:        m.X,
			Y:        m.Y,
			Depth:    m.Depth,
			Sector:   m.Sector,
			Slot:     m.Slot,
			Z:        z,
			Overflow: m.Overflow,
			Payload:  m.Payload,
			Tag:      m.Tag,
		})
	}

	if r.overflowed > 0 {
		r.log.Debug().Int("overflowed", r.overflowed).Str("policy", r.cfg.Overflow.String()).Msg("sector columns full")
	}

	r.needsSorting = false
	r.needsRefresh = false
	return out
}

func (r *Registry) geometry(m *Marker, loc geomath.Coordinate, locOK bool) projector.Input {
	if m.Mode == Virtual {
		return projector.Input{BearingDeg: m.AngleDeg, Distance: m.DeclaredDistance, Virtual: true}
	}
	if !locOK {
		return projector.Input{BearingDeg: math.NaN(), Distance: math.NaN()}
	}
	return projector.Input{
		BearingDeg:   geomath.Bearing(loc, m.Coordinate),
		Distance:     geomath.Distance(loc, m.Coordinate),
		ElevationDeg: geomath.ElevationAngle(loc, m.Coordinate),
	}
}
