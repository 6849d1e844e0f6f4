package circuit

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConnection rejects a wire that violates pin cardinality: the
// source is not an output pin, the destination is not an input pin, or the
// destination pin already has an incoming wire. Wiring errors are local and
// are surfaced at edit time; they never reach simulation.
var ErrInvalidConnection = errors.New("invalid connection")

// ErrUnknownGate rejects an operation naming a gate the graph does not hold.
var ErrUnknownGate = errors.New("unknown gate")

// CombinationalCycleError reports unbroken feedback among purely
// combinational gates. The level remains playable: the implicated gates
// output false for every tick.
type CombinationalCycleError struct {
	Gates []string
}

func (e *CombinationalCycleError) Error() string {
	return fmt.Sprintf("combinational cycle through gates [%s]", strings.Join(e.Gates, ", "))
}
