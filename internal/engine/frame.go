package engine

import "github.com/hourglass-games/timelift/server/internal/domain/level"

// ActorState is one actor's observable state inside a frame.
type ActorState struct {
	ID   string     `json:"id"`
	Live bool       `json:"live"`
	Pose level.Pose `json:"pose"`
}

// Frame is the per-tick notification sent to the render sink: actor poses,
// output gate values, elevator door bits and any level-integrity warnings
// raised during the tick.
type Frame struct {
	Type     string          `json:"type"` // always "FRAME"
	Tick     uint64          `json:"tick"`
	Level    string          `json:"level"`
	Actors   []ActorState    `json:"actors"`
	Outputs  map[string]bool `json:"outputs"`
	Doors    map[string]bool `json:"doors"`
	Warnings []string        `json:"warnings,omitempty"`
}

// Frame snapshots the state of the most recently completed tick.
func (e *Engine) Frame() Frame {
	e.mu.Lock()
	defer e.mu.Unlock()

	actors := e.replicas.Actors()
	f := Frame{
		Type:    "FRAME",
		Tick:    e.tick,
		Level:   e.current.Level.Name,
		Actors:  make([]ActorState, 0, len(actors)),
		Outputs: make(map[string]bool),
		Doors:   make(map[string]bool),
	}

	occupied := make(map[level.GridPos]bool, len(actors))
	for _, a := range actors {
		f.Actors = append(f.Actors, ActorState{ID: a.ID, Live: a.Live, Pose: a.Pose})
		occupied[a.Pose.Pos] = true
	}

	for id, val := range e.prevOutputs {
		f.Outputs[id] = val
	}
	// A door stands open while no transport is in progress on its cell.
	for _, elev := range e.current.Level.Elevators() {
		f.Doors[elev.ID] = !occupied[elev.Pos]
	}
	if len(e.warnings) > 0 {
		f.Warnings = append(f.Warnings, e.warnings...)
	}
	return f
}
