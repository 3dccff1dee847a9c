package marker

import (
	"errors"
	"fmt"
	"strings"

	"arlayout/internal/geomath"
	"arlayout/internal/projector"
)

var (
	ErrInvalidMarkerGeometry = errors.New("invalid marker geometry")
	ErrDuplicateID           = errors.New("duplicate marker id")
)

type Mode int

const (
	Geolocated Mode = iota
	Virtual
)

func (m Mode) String() string {
	switch m {
	case Geolocated:
		return "geolocated"
	case Virtual:
		return "virtual"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// State is the per-marker lifecycle. Visible and Culled are re-evaluated
// every tick; Removed is terminal.
type State int

const (
	Unplaced State = iota
	Registered
	Visible
	Culled
	Removed
)

func (s State) String() string {
	switch s {
	case Unplaced:
		return "unplaced"
	case Registered:
		return "registered"
	case Visible:
		return "visible"
	case Culled:
		return "culled"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Order is the draw order of the renderable sequence.
type Order int

const (
	// FarToNear draws the farthest marker first so nearer ones end on top.
	FarToNear Order = iota
	NearToFar
)

func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "far_to_near", "far-to-near":
		return FarToNear, nil
	case "near_to_far", "near-to-far":
		return NearToFar, nil
	default:
		return FarToNear, fmt.Errorf("unknown sort order %q", s)
	}
}

// StackDirection is where higher slots move on screen.
type StackDirection int

const (
	StackUp StackDirection = iota
	StackDown
)

func ParseStackDirection(s string) (StackDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "up":
		return StackUp, nil
	case "down":
		return StackDown, nil
	default:
		return StackUp, fmt.Errorf("unknown stack direction %q", s)
	}
}

// Spec carries the caller-owned parts of a marker.
type Spec struct {
	// ID is generated when empty.
	ID string
	// Payload is a borrowed handle to caller content; it is never inspected.
	Payload any
	Tag     any
}

// Marker is owned by a Registry. Fields below the placement block are
// rewritten on every tick.
type Marker struct {
	ID      string
	Mode    Mode
	Payload any
	Tag     any

	// Geolocated placement.
	Coordinate geomath.Coordinate
	// Virtual placement: compass angle and declared distance from the device.
	AngleDeg         float64
	DeclaredDistance float64

	Bearing   float64
	Distance  float64
	Elevation float64
	X, Y      float64
	Depth     float64
	Sector    int
	Slot      int
	Visible   bool
	Overflow  bool
	Reason    projector.CullReason

	state State
	seq   uint64
}

func (m *Marker) State() State {
	if m == nil {
		return Removed
	}
	return m.state
}

// Renderable is one entry of the draw-ordered output. Z is the draw index;
// a higher Z is drawn later and sits on top.
type Renderable struct {
	ID       string
	X, Y     float64
	Depth    float64
	Sector   int
	Slot     int
	Z        int
	Overflow bool
	Payload  any
	Tag      any
}
