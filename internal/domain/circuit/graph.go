package circuit

import "fmt"

// SourceKind distinguishes what drives a wire: another gate's output pin or
// an elevator's occupancy signal.
type SourceKind string

const (
	SourceGate     SourceKind = "gate"
	SourceElevator SourceKind = "elevator"
)

// Source is an output pin reference: the driving end of a wire.
type Source struct {
	Kind SourceKind
	ID   string
}

// GatePin returns a gate output pin reference.
func GatePin(id string) Source { return Source{Kind: SourceGate, ID: id} }

// ElevatorPin returns an elevator signal pin reference.
func ElevatorPin(id string) Source { return Source{Kind: SourceElevator, ID: id} }

// Graph holds the static connectivity of gates and wires for a level. It
// performs no simulation; adjacency is precomputed so that "what feeds pin P"
// and "what does pin P feed" resolve in constant time.
type Graph struct {
	gates   map[string]*Gate
	order   []string // gate insertion order, for deterministic iteration
	signals map[string]bool

	inputs  map[string][]Source // destination gate -> ordered incoming pins
	outputs map[Source][]string // source pin -> destination gates (fan-out)
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		gates:   make(map[string]*Gate),
		signals: make(map[string]bool),
		inputs:  make(map[string][]Source),
		outputs: make(map[Source][]string),
	}
}

// AddGate registers a gate. Gate IDs are unique within the graph.
func (g *Graph) AddGate(gate *Gate) error {
	if !gate.Kind.Valid() {
		return fmt.Errorf("gate %q: unknown kind %q", gate.ID, gate.Kind)
	}
	if _, ok := g.gates[gate.ID]; ok {
		return fmt.Errorf("gate %q: duplicate id", gate.ID)
	}
	g.gates[gate.ID] = gate
	g.order = append(g.order, gate.ID)
	return nil
}

// RegisterSignal registers an elevator occupancy signal so wires may use it
// as a source.
func (g *Graph) RegisterSignal(elevatorID string) {
	g.signals[elevatorID] = true
}

// Gate looks up a gate by id.
func (g *Graph) Gate(id string) (*Gate, bool) {
	gate, ok := g.gates[id]
	return gate, ok
}

// Gates returns all gates in insertion order.
func (g *Graph) Gates() []*Gate {
	out := make([]*Gate, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.gates[id])
	}
	return out
}

// AddWire connects a source output pin to dst's input pin. It fails with
// ErrInvalidConnection if the source is not an output pin (markers have
// none), the destination does not accept inputs, or the destination pin is
// already wired. Multi-input gates (and/or) expose one pin per distinct
// source; every other kind carries a single input pin.
func (g *Graph) AddWire(src Source, dst string) error {
	if err := g.checkSource(src); err != nil {
		return err
	}
	dstGate, ok := g.gates[dst]
	if !ok {
		return fmt.Errorf("%w: destination %q", ErrUnknownGate, dst)
	}
	if dstGate.Kind.Marker() {
		return fmt.Errorf("%w: %q has no input pins", ErrInvalidConnection, dst)
	}
	existing := g.inputs[dst]
	if dstGate.Kind.MultiInput() {
		for _, in := range existing {
			if in == src {
				return fmt.Errorf("%w: pin already wired", ErrInvalidConnection)
			}
		}
	} else if len(existing) > 0 {
		return fmt.Errorf("%w: %q input pin already wired", ErrInvalidConnection, dst)
	}
	g.inputs[dst] = append(g.inputs[dst], src)
	g.outputs[src] = append(g.outputs[src], dst)
	return nil
}

// RemoveWire disconnects src from dst. Removing a wire that does not exist is
// a no-op, mirroring the editor's permissive remove-if-present semantics.
func (g *Graph) RemoveWire(src Source, dst string) {
	ins := g.inputs[dst]
	for i, in := range ins {
		if in == src {
			g.inputs[dst] = append(ins[:i:i], ins[i+1:]...)
			break
		}
	}
	outs := g.outputs[src]
	for i, out := range outs {
		if out == dst {
			g.outputs[src] = append(outs[:i:i], outs[i+1:]...)
			break
		}
	}
}

// InputsOf returns the pins feeding the gate, in wiring order. Absent
// connections read as logical false during evaluation.
func (g *Graph) InputsOf(id string) []Source {
	return g.inputs[id]
}

// OutputOf returns the gates fed by the pin.
func (g *Graph) OutputOf(src Source) []string {
	return g.outputs[src]
}

func (g *Graph) checkSource(src Source) error {
	switch src.Kind {
	case SourceGate:
		gate, ok := g.gates[src.ID]
		if !ok {
			return fmt.Errorf("%w: source %q", ErrUnknownGate, src.ID)
		}
		if gate.Kind.Marker() {
			return fmt.Errorf("%w: %q has no output pin", ErrInvalidConnection, src.ID)
		}
	case SourceElevator:
		if !g.signals[src.ID] {
			return fmt.Errorf("%w: unknown elevator signal %q", ErrInvalidConnection, src.ID)
		}
	default:
		return fmt.Errorf("%w: unknown source kind %q", ErrInvalidConnection, src.Kind)
	}
	return nil
}
