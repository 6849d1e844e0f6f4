package level

// Direction is a cardinal orientation used for actor facing, elevator
// mounting and gate orientation.
type Direction string

const (
	North Direction = "north"
	South Direction = "south"
	East  Direction = "east"
	West  Direction = "west"
)

// Offset returns the unit grid step for the direction.
func (d Direction) Offset() (dx, dy int) {
	switch d {
	case North:
		return 0, -1
	case South:
		return 0, 1
	case East:
		return 1, 0
	case West:
		return -1, 0
	}
	return 0, 0
}

// Opposite returns the mirrored direction.
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	case West:
		return East
	}
	return d
}

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	switch d {
	case North, South, East, West:
		return true
	}
	return false
}

// ElevatorKind distinguishes the four transport behaviours.
type ElevatorKind string

const (
	// ElevatorEntry marks where loop replicas materialize. It performs no
	// transport itself.
	ElevatorEntry ElevatorKind = "entry"
	// ElevatorExit teleports the actor to the elevator named by ExitPath.
	ElevatorExit ElevatorKind = "exit"
	// ElevatorLoop sends the live player into the recorded past of this
	// level: recording begins and the previous traversal replays.
	ElevatorLoop ElevatorKind = "loop"
	// ElevatorInverseLoop is ElevatorLoop with the replay consumed in
	// reverse tick order.
	ElevatorInverseLoop ElevatorKind = "inverse_loop"
)

// Valid reports whether k is a known elevator kind.
func (k ElevatorKind) Valid() bool {
	switch k {
	case ElevatorEntry, ElevatorExit, ElevatorLoop, ElevatorInverseLoop:
		return true
	}
	return false
}

// ExitPath names the destination of an exit elevator. The destination may
// live in another level; resolution happens at transport time and may fail
// (dangling reference), in which case transport is refused.
type ExitPath struct {
	Level    string `json:"level" yaml:"level"`
	Elevator string `json:"elevator" yaml:"elevator"`
}

// Elevator is a transport entity occupying one grid cell.
type Elevator struct {
	ID        string       `json:"id"`
	Kind      ElevatorKind `json:"kind"`
	Pos       GridPos      `json:"pos"`
	Direction Direction    `json:"direction"`
	ExitPath  ExitPath     `json:"exit_path,omitempty"` // kind == ElevatorExit only
}
