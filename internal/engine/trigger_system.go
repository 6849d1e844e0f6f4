package engine

import (
	"github.com/hourglass-games/timelift/server/internal/domain/circuit"
	"github.com/hourglass-games/timelift/server/internal/domain/level"
)

// TriggerSystem samples the externally driven circuit signals from final
// actor positions: pressure-plate presence per gate and occupancy per
// elevator. Sampling happens after transport resolution so the circuit sees
// where actors actually ended the tick.
type TriggerSystem struct{}

// NewTriggerSystem creates the trigger system.
func NewTriggerSystem() *TriggerSystem {
	return &TriggerSystem{}
}

// Sample builds the circuit inputs for this tick.
func (t *TriggerSystem) Sample(lvl *level.Level, graph *circuit.Graph, actors []*Actor) circuit.Inputs {
	occupied := make(map[level.GridPos]bool, len(actors))
	for _, a := range actors {
		occupied[a.Pose.Pos] = true
	}

	in := circuit.Inputs{
		Presence:  make(map[string]bool),
		Elevators: make(map[string]bool),
	}
	for _, gate := range graph.Gates() {
		if gate.Trigger != nil && occupied[*gate.Trigger] {
			in.Presence[gate.ID] = true
		}
	}
	for _, e := range lvl.Elevators() {
		if occupied[e.Pos] {
			in.Elevators[e.ID] = true
		}
	}
	return in
}
