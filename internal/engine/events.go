package engine

import (
	"errors"
	"fmt"
	"time"

	"arlayout/internal/geomath"
)

var (
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrLocationDenied      = errors.New("location access denied")
	ErrLocationNetwork     = errors.New("location network error")
)

// ErrorCode is a location failure code as reported by the platform
// location service.
type ErrorCode int

const (
	LocationUnknown ErrorCode = 0
	LocationDenied  ErrorCode = 1
	LocationNetwork ErrorCode = 2
)

func (c ErrorCode) String() string {
	switch c {
	case LocationUnknown:
		return "location_unknown"
	case LocationDenied:
		return "location_denied"
	case LocationNetwork:
		return "location_network"
	default:
		return fmt.Sprintf("error_code(%d)", int(c))
	}
}

// Err maps c onto its sentinel error. Unknown codes map to
// ErrLocationUnavailable.
func (c ErrorCode) Err() error {
	switch c {
	case LocationDenied:
		return ErrLocationDenied
	case LocationNetwork:
		return ErrLocationNetwork
	default:
		return ErrLocationUnavailable
	}
}

type EventKind int

const (
	MarkerTapped EventKind = iota
	Failure
	InfoChanged
)

func (k EventKind) String() string {
	switch k {
	case MarkerTapped:
		return "marker_tapped"
	case Failure:
		return "failure"
	case InfoChanged:
		return "info_changed"
	default:
		return fmt.Sprintf("event_kind(%d)", int(k))
	}
}

// Event is delivered to a Sink. Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind
	Time time.Time

	// MarkerTapped
	MarkerID string
	Payload  any
	Tag      any

	// Failure
	Code ErrorCode
	Err  error

	// InfoChanged
	Location   geomath.Coordinate
	HeadingDeg float64
}

// Sink receives engine events synchronously on the caller's goroutine.
type Sink interface {
	Emit(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

type nopSink struct{}

func (nopSink) Emit(Event) {}

// Queue buffers events until drained. Not safe for concurrent use.
type Queue struct {
	events []Event
}

func (q *Queue) Emit(ev Event) {
	q.events = append(q.events, ev)
}

// Drain returns the buffered events in emission order and empties q.
func (q *Queue) Drain() []Event {
	out := q.events
	q.events = nil
	return out
}

func (q *Queue) Len() int { return len(q.events) }
