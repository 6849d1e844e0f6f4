package circuit

// Inputs carries the externally driven signals for one tick, sampled by the
// engine from final actor positions before evaluation.
type Inputs struct {
	// Presence maps gate ID -> an actor occupies the gate's trigger cell.
	Presence map[string]bool
	// Elevators maps elevator ID -> the elevator cell is occupied.
	Elevators map[string]bool
}

// Evaluator computes every gate's output for the current tick from
// current-tick inputs and previous-tick latched state.
//
// Cycles through at least one stateful gate are legal by construction:
// stateful gates read only previous-tick values (sample-then-latch). A cycle
// made solely of combinational gates is a configuration error; the implicated
// gates are held at false and reported through Fault.
type Evaluator struct {
	graph *Graph

	latched   map[string]bool
	delayBuf  map[string]bool
	prevInput map[string]bool
	outs      map[string]bool

	combOrder []string
	cyclic    map[string]bool
	fault     *CombinationalCycleError
}

// NewEvaluator prepares an evaluator for the graph: derives the topological
// order of the combinational subgraph, detects combinational cycles, and
// resets all latched state.
func NewEvaluator(g *Graph) *Evaluator {
	e := &Evaluator{graph: g}
	e.planCombinational()
	e.Reset()
	return e
}

// Reset restores every gate's latched state to its initial value.
func (e *Evaluator) Reset() {
	e.latched = make(map[string]bool)
	e.delayBuf = make(map[string]bool)
	e.prevInput = make(map[string]bool)
	e.outs = make(map[string]bool)
	for _, gate := range e.graph.Gates() {
		e.latched[gate.ID] = gate.Kind.InitialLatch()
	}
}

// Fault returns the combinational-cycle report, or nil when the graph is
// well formed. The fault is static per graph; simulation continues with the
// affected gates reading false.
func (e *Evaluator) Fault() *CombinationalCycleError {
	return e.fault
}

// Output returns the gate's output for the tick most recently evaluated.
func (e *Evaluator) Output(id string) bool {
	return e.outs[id]
}

// Outputs returns a copy of every gate's current output.
func (e *Evaluator) Outputs() map[string]bool {
	out := make(map[string]bool, len(e.outs))
	for id, v := range e.outs {
		out[id] = v
	}
	return out
}

// Step evaluates one tick.
func (e *Evaluator) Step(in Inputs) {
	// Stateful gates emit from previous-tick state only.
	for _, gate := range e.graph.Gates() {
		if !gate.Kind.Stateful() {
			continue
		}
		switch gate.Kind {
		case GateDelay:
			e.outs[gate.ID] = e.delayBuf[gate.ID]
		case GateStart, GateEnd:
			e.outs[gate.ID] = false
		default:
			e.outs[gate.ID] = e.latched[gate.ID]
		}
	}

	// Combinational settling. Gates caught in a combinational cycle are
	// held at false for the whole tick.
	for id := range e.cyclic {
		e.outs[id] = false
	}
	for _, id := range e.combOrder {
		gate, _ := e.graph.Gate(id)
		e.outs[id] = e.evalCombinational(gate, in)
	}

	// Stateful gates sample their settled inputs for next tick and latch.
	for _, gate := range e.graph.Gates() {
		if !gate.Kind.Stateful() || gate.Kind.Marker() {
			continue
		}
		sampled := e.sampleInputs(gate, in)
		switch gate.Kind {
		case GateToggle, GateToggleOn:
			if sampled && !e.prevInput[gate.ID] {
				e.latched[gate.ID] = !e.latched[gate.ID]
			}
			e.prevInput[gate.ID] = sampled
		case GateHold, GateHoldOn:
			e.latched[gate.ID] = sampled
		case GateDelay:
			e.delayBuf[gate.ID] = sampled
		}
	}
}

// evalCombinational applies the gate's boolean rule over its connected pins.
// A gate with zero connected inputs outputs false, whatever its kind.
func (e *Evaluator) evalCombinational(gate *Gate, in Inputs) bool {
	vals := e.inputValues(gate, in)
	if len(vals) == 0 {
		return false
	}
	switch gate.Kind {
	case GateAnd:
		for _, v := range vals {
			if !v {
				return false
			}
		}
		return true
	case GateOr:
		for _, v := range vals {
			if v {
				return true
			}
		}
		return false
	case GateNot:
		return !vals[0]
	case GatePassthrough, GateOutput:
		return vals[0]
	}
	return false
}

// sampleInputs folds a stateful gate's pins into its single sampled value.
func (e *Evaluator) sampleInputs(gate *Gate, in Inputs) bool {
	for _, v := range e.inputValues(gate, in) {
		if v {
			return true
		}
	}
	return false
}

func (e *Evaluator) inputValues(gate *Gate, in Inputs) []bool {
	srcs := e.graph.InputsOf(gate.ID)
	vals := make([]bool, 0, len(srcs)+1)
	for _, src := range srcs {
		switch src.Kind {
		case SourceElevator:
			vals = append(vals, in.Elevators[src.ID])
		default:
			vals = append(vals, e.outs[src.ID])
		}
	}
	if gate.Trigger != nil {
		vals = append(vals, in.Presence[gate.ID])
	}
	return vals
}

// planCombinational derives a topological order over the subgraph restricted
// to combinational-to-combinational edges (Kahn's algorithm, seeded in gate
// insertion order for determinism). Combinational gates left with unresolved
// predecessors form the cycle set.
func (e *Evaluator) planCombinational() {
	indegree := make(map[string]int)
	succ := make(map[string][]string)
	var comb []string

	for _, gate := range e.graph.Gates() {
		if !gate.Kind.Combinational() {
			continue
		}
		comb = append(comb, gate.ID)
		for _, src := range e.graph.InputsOf(gate.ID) {
			if src.Kind != SourceGate {
				continue
			}
			srcGate, ok := e.graph.Gate(src.ID)
			if !ok || !srcGate.Kind.Combinational() {
				continue
			}
			indegree[gate.ID]++
			succ[src.ID] = append(succ[src.ID], gate.ID)
		}
	}

	var queue []string
	for _, id := range comb {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	e.combOrder = nil
	resolved := make(map[string]bool, len(comb))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		e.combOrder = append(e.combOrder, id)
		resolved[id] = true
		for _, next := range succ[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	e.cyclic = make(map[string]bool)
	var cycleGates []string
	for _, id := range comb {
		if !resolved[id] {
			e.cyclic[id] = true
			cycleGates = append(cycleGates, id)
		}
	}
	if len(cycleGates) > 0 {
		e.fault = &CombinationalCycleError{Gates: cycleGates}
	}
}
