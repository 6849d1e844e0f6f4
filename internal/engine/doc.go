// Package engine contains the tick loop and simulation logic.
// This is the heartbeat of "TimeLift".
//
// ARCHITECTURAL RULE: the per-tick sequence is fixed and runs to completion
// under one lock. Stateful gates read only previous-tick values and replicas
// read only sealed recordings, so replaying the same history always
// reproduces the same run.
package engine
