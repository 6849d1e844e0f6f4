package level

// Action is the per-tick movement intent of an actor. The engine treats it as
// an opaque command supplied by the input source (live player) or by a
// recorded timeline (replica).
type Action string

const (
	ActionWait      Action = "WAIT"
	ActionMoveNorth Action = "MOVE_N"
	ActionMoveSouth Action = "MOVE_S"
	ActionMoveEast  Action = "MOVE_E"
	ActionMoveWest  Action = "MOVE_W"
)

// Direction returns the movement direction for the action, or false for
// non-movement actions.
func (a Action) Direction() (Direction, bool) {
	switch a {
	case ActionMoveNorth:
		return North, true
	case ActionMoveSouth:
		return South, true
	case ActionMoveEast:
		return East, true
	case ActionMoveWest:
		return West, true
	}
	return "", false
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionWait, ActionMoveNorth, ActionMoveSouth, ActionMoveEast, ActionMoveWest:
		return true
	}
	return false
}

// Pose is the observable state of an actor: where it stands and which way it
// faces.
type Pose struct {
	Pos    GridPos   `json:"pos"`
	Facing Direction `json:"facing"`
}
