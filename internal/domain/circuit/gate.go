// Package circuit contains the pure logic-circuit model: gates, the wire
// graph and the per-tick evaluator.
// This package is PURE and must NOT import any infrastructure packages.
package circuit

import "github.com/hourglass-games/timelift/server/internal/domain/level"

// GateKind identifies the evaluation rule of a gate. The gate set is fixed
// and closed.
type GateKind string

const (
	GateAnd         GateKind = "and"
	GateOr          GateKind = "or"
	GateNot         GateKind = "not"
	GatePassthrough GateKind = "passthrough"
	GateToggle      GateKind = "toggle"
	GateToggleOn    GateKind = "toggle_on"
	GateHold        GateKind = "hold"
	GateHoldOn      GateKind = "hold_on"
	GateStart       GateKind = "start"
	GateEnd         GateKind = "end"
	GateDelay       GateKind = "delay"
	GateOutput      GateKind = "output"
)

// Valid reports whether k names a known gate kind.
func (k GateKind) Valid() bool {
	switch k {
	case GateAnd, GateOr, GateNot, GatePassthrough, GateToggle, GateToggleOn,
		GateHold, GateHoldOn, GateStart, GateEnd, GateDelay, GateOutput:
		return true
	}
	return false
}

// Stateful reports whether the gate's output at tick T depends on latched
// state from tick T-1. Stateful gates never read current-tick values of other
// gates, which is what breaks wire cycles.
func (k GateKind) Stateful() bool {
	switch k {
	case GateToggle, GateToggleOn, GateHold, GateHoldOn, GateDelay, GateStart, GateEnd:
		return true
	}
	return false
}

// Combinational reports whether the gate's output is a pure function of its
// current-tick inputs.
func (k GateKind) Combinational() bool {
	switch k {
	case GateAnd, GateOr, GateNot, GatePassthrough, GateOutput:
		return true
	}
	return false
}

// Marker reports whether the gate is a boundary marker with no pins and no
// logic.
func (k GateKind) Marker() bool {
	return k == GateStart || k == GateEnd
}

// MultiInput reports whether the gate accepts an unbounded number of input
// pins. All other non-marker kinds carry a single input pin.
func (k GateKind) MultiInput() bool {
	return k == GateAnd || k == GateOr
}

// InitialLatch returns the latched value the gate starts with.
func (k GateKind) InitialLatch() bool {
	return k == GateToggleOn || k == GateHoldOn
}

// Gate is a node in the signal graph. All state lives in the Evaluator; the
// Gate itself is static edit-time data.
type Gate struct {
	ID        string
	Kind      GateKind
	Pos       level.GridPos
	Direction level.Direction

	// Trigger, when set, adds a pressure-plate input pin to the gate: an
	// actor occupying the cell reads as a true input for that tick.
	Trigger *level.GridPos
}
