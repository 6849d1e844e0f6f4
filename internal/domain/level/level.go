package level

import "fmt"

// Level is the unit of play: a tile grid plus the transport entities placed
// on it. Levels are supplied by the level provider at load time and are
// read-only to the simulation; only the editor mutates them, and never while
// a tick is mid-execution.
type Level struct {
	Name      string
	Tiles     *Grid
	PlayerPos GridPos
	PlayerDir Direction

	elevators []*Elevator
	byID      map[string]*Elevator
	byPos     map[GridPos]*Elevator
}

// New creates an empty level.
func New(name string) *Level {
	return &Level{
		Name:  name,
		Tiles: NewGrid(),
		byID:  make(map[string]*Elevator),
		byPos: make(map[GridPos]*Elevator),
	}
}

// AddElevator places an elevator. IDs and cells must be unique within the
// level.
func (l *Level) AddElevator(e *Elevator) error {
	if !e.Kind.Valid() {
		return fmt.Errorf("elevator %q: unknown kind %q", e.ID, e.Kind)
	}
	if !e.Direction.Valid() {
		return fmt.Errorf("elevator %q: unknown direction %q", e.ID, e.Direction)
	}
	if _, ok := l.byID[e.ID]; ok {
		return fmt.Errorf("elevator %q: duplicate id", e.ID)
	}
	if other, ok := l.byPos[e.Pos]; ok {
		return fmt.Errorf("elevator %q: cell (%d,%d) already holds %q", e.ID, e.Pos.X, e.Pos.Y, other.ID)
	}
	l.elevators = append(l.elevators, e)
	l.byID[e.ID] = e
	l.byPos[e.Pos] = e
	return nil
}

// Elevators returns the elevators in placement order.
func (l *Level) Elevators() []*Elevator {
	return l.elevators
}

// Elevator looks up an elevator by id.
func (l *Level) Elevator(id string) (*Elevator, bool) {
	e, ok := l.byID[id]
	return e, ok
}

// ElevatorAt returns the elevator occupying pos, if any.
func (l *Level) ElevatorAt(pos GridPos) (*Elevator, bool) {
	e, ok := l.byPos[pos]
	return e, ok
}

// EntryElevator returns the first entry-kind elevator in placement order.
// Loop replicas materialize there.
func (l *Level) EntryElevator() (*Elevator, bool) {
	for _, e := range l.elevators {
		if e.Kind == ElevatorEntry {
			return e, true
		}
	}
	return nil, false
}
