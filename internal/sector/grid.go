package sector

import (
	"fmt"
	"math"
	"strings"
)

const (
	// DefaultSectors is the number of angular buckets across the view.
	DefaultSectors = 16
	// MaxSectors bounds the angular buckets; one per degree of a full circle.
	MaxSectors = 360
	// MaxStack bounds the vertical slots per sector.
	MaxStack = 100
)

// OverflowPolicy decides what happens to a marker whose sector column is full.
type OverflowPolicy int

const (
	// Hide drops the marker from the frame.
	Hide OverflowPolicy = iota
	// Overlap forces the marker onto the last slot of the column.
	Overlap
)

func (p OverflowPolicy) String() string {
	switch p {
	case Hide:
		return "hide"
	case Overlap:
		return "overlap"
	default:
		return fmt.Sprintf("overflow_policy(%d)", int(p))
	}
}

func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hide":
		return Hide, nil
	case "overlap", "stack":
		return Overlap, nil
	default:
		return Hide, fmt.Errorf("unknown overflow policy %q", s)
	}
}

type cell struct {
	occupied  bool
	occupants int
}

// Grid is a sectors x stack occupancy arena. Cells are stored column-major
// so one sector's slots are contiguous: idx = sector*stack + slot.
//
// Grid is not safe for concurrent use.
type Grid struct {
	sectors int
	stack   int
	cells   []cell // len = sectors * stack
	depth   []int  // markers placed per sector, overflow included
}

// New returns an empty grid. Non-positive sizes fall back to the defaults,
// sectors is capped at MaxSectors and stack at MaxStack.
func New(sectors, stack int) *Grid {
	if sectors <= 0 {
		sectors = DefaultSectors
	}
	if sectors > MaxSectors {
		sectors = MaxSectors
	}
	if stack <= 0 || stack > MaxStack {
		stack = MaxStack
	}
	return &Grid{
		sectors: sectors,
		stack:   stack,
		cells:   make([]cell, sectors*stack),
		depth:   make([]int, sectors),
	}
}

func (g *Grid) Sectors() int { return g.sectors }
func (g *Grid) Stack() int   { return g.stack }

func (g *Grid) inBounds(sector, slot int) bool {
	return sector >= 0 && sector < g.sectors && slot >= 0 && slot < g.stack
}

// idx assumes inBounds.
func (g *Grid) idx(sector, slot int) int { return sector*g.stack + slot }

// Clear resets all occupancy.
func (g *Grid) Clear() {
	if g == nil {
		return
	}
	clear(g.cells)
	clear(g.depth)
}

// Occupy marks (sector, slot) as taken. It returns false when the cell is
// already taken or out of bounds.
func (g *Grid) Occupy(sector, slot int) bool {
	if g == nil || !g.inBounds(sector, slot) {
		return false
	}
	c := &g.cells[g.idx(sector, slot)]
	if c.occupied {
		return false
	}
	c.occupied = true
	c.occupants = 1
	g.depth[sector]++
	return true
}

func (g *Grid) Occupied(sector, slot int) bool {
	if g == nil || !g.inBounds(sector, slot) {
		return false
	}
	return g.cells[g.idx(sector, slot)].occupied
}

// Occupants is the number of markers drawn in (sector, slot). It exceeds 1
// only for the last slot of a column under the Overlap policy.
func (g *Grid) Occupants(sector, slot int) int {
	if g == nil || !g.inBounds(sector, slot) {
		return 0
	}
	return g.cells[g.idx(sector, slot)].occupants
}

// Depth is the number of markers placed in sector this pass.
func (g *Grid) Depth(sector int) int {
	if g == nil || sector < 0 || sector >= g.sectors {
		return 0
	}
	return g.depth[sector]
}

// FindFreeSlot probes upward from slot 0 and returns the first free slot.
func (g *Grid) FindFreeSlot(sector int) (int, bool) {
	if g == nil || sector < 0 || sector >= g.sectors {
		return -1, false
	}
	base := g.idx(sector, 0)
	for slot := 0; slot < g.stack; slot++ {
		if !g.cells[base+slot].occupied {
			return slot, true
		}
	}
	return -1, false
}

// Placement is the outcome of Place.
type Placement struct {
	Slot     int
	Placed   bool
	Overflow bool
}

// Place claims the next free slot in sector. When the column is full the
// policy decides: Hide leaves the marker unplaced, Overlap stacks it onto
// the last slot and flags the overflow.
func (g *Grid) Place(sector int, policy OverflowPolicy) Placement {
	if slot, ok := g.FindFreeSlot(sector); ok {
		g.Occupy(sector, slot)
		return Placement{Slot: slot, Placed: true}
	}
	if g == nil || sector < 0 || sector >= g.sectors {
		return Placement{Slot: -1}
	}
	if policy != Overlap {
		return Placement{Slot: -1, Overflow: true}
	}
	last := g.stack - 1
	g.cells[g.idx(sector, last)].occupants++
	g.depth[sector]++
	return Placement{Slot: last, Placed: true, Overflow: true}
}

// SectorFor maps a horizontal frame position onto a sector. Positions
// outside [0, width] clamp to the edge sectors.
func (g *Grid) SectorFor(x, width float64) int {
	if g == nil || width <= 0 || math.IsNaN(x) {
		return 0
	}
	s := int(math.Floor(x / width * float64(g.sectors)))
	if s < 0 {
		return 0
	}
	if s >= g.sectors {
		return g.sectors - 1
	}
	return s
}

// Empty reports whether no cell is occupied.
func (g *Grid) Empty() bool {
	if g == nil {
		return true
	}
	for _, d := range g.depth {
		if d != 0 {
			return false
		}
	}
	return true
}
