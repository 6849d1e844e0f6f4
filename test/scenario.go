// Package test - scenario.go
// Scenario harness: scripted traversal of a bundled level asserting loop,
// replica and circuit behavior end to end, outside the unit test suite.
package test

import (
	"fmt"

	"github.com/hourglass-games/timelift/server/internal/domain/circuit"
	"github.com/hourglass-games/timelift/server/internal/domain/level"
	"github.com/hourglass-games/timelift/server/internal/engine"
	"github.com/hourglass-games/timelift/server/internal/events"
	"github.com/hourglass-games/timelift/server/internal/platform/logger"
)

// TestResult captures the outcome of each scenario.
type TestResult struct {
	ScenarioName string
	Expected     string
	Actual       string
	Passed       bool
	Reason       string
}

// LoopScenarioTest drives a full loop traversal through a real engine.
type LoopScenarioTest struct {
	engine   *engine.Engine
	eventLog *events.EventLog
	logger   *logger.Logger
	results  []TestResult
}

// staticProvider serves in-memory levels to the engine.
type staticProvider struct {
	levels map[string]*engine.LoadedLevel
}

func (p *staticProvider) Load(name string) (*engine.LoadedLevel, error) {
	if lvl, ok := p.levels[name]; ok {
		return lvl, nil
	}
	return nil, fmt.Errorf("no such level: %q", name)
}

// buildLoopLevel assembles the scenario arena: a walled 7x5 room with an
// entry elevator, a loop elevator, an exit routed back to the entry, and a
// pressure plate driving a door output.
//
//	#######
//	#P   L#    P player start, L loop1, plate trigger at (3,1)
//	#     #
//	#F X  #    F front (entry), X out (exit -> front)
//	#######
func buildLoopLevel() (*engine.LoadedLevel, error) {
	lvl := level.New("arena")
	for x := 0; x < 7; x++ {
		lvl.Tiles.Set(level.GridPos{X: x, Y: 0}, level.TileBrick1)
		lvl.Tiles.Set(level.GridPos{X: x, Y: 4}, level.TileBrick1)
	}
	for y := 1; y < 4; y++ {
		lvl.Tiles.Set(level.GridPos{X: 0, Y: y}, level.TileBrick1)
		lvl.Tiles.Set(level.GridPos{X: 6, Y: y}, level.TileBrick1)
	}
	lvl.PlayerPos = level.GridPos{X: 1, Y: 1}
	lvl.PlayerDir = level.East

	elevators := []*level.Elevator{
		{ID: "front", Kind: level.ElevatorEntry, Pos: level.GridPos{X: 1, Y: 3}, Direction: level.East},
		{ID: "loop1", Kind: level.ElevatorLoop, Pos: level.GridPos{X: 5, Y: 1}, Direction: level.West},
		{ID: "out", Kind: level.ElevatorExit, Pos: level.GridPos{X: 3, Y: 3}, Direction: level.South,
			ExitPath: level.ExitPath{Elevator: "front"}},
	}

	graph := circuit.NewGraph()
	for _, e := range elevators {
		if err := lvl.AddElevator(e); err != nil {
			return nil, err
		}
		graph.RegisterSignal(e.ID)
	}

	plate := &circuit.Gate{ID: "plate", Kind: circuit.GateHold, Pos: level.GridPos{X: 3, Y: 0},
		Direction: level.South, Trigger: &level.GridPos{X: 3, Y: 1}}
	door := &circuit.Gate{ID: "door", Kind: circuit.GateOutput, Pos: level.GridPos{X: 6, Y: 2},
		Direction: level.West}
	if err := graph.AddGate(plate); err != nil {
		return nil, err
	}
	if err := graph.AddGate(door); err != nil {
		return nil, err
	}
	if err := graph.AddWire(circuit.GatePin("plate"), "door"); err != nil {
		return nil, err
	}

	return &engine.LoadedLevel{Level: lvl, Graph: graph}, nil
}

// NewLoopScenarioTest creates the scenario harness.
func NewLoopScenarioTest() (*LoopScenarioTest, error) {
	log := logger.NewLogger()
	el := events.NewEventLog(nil)

	arena, err := buildLoopLevel()
	if err != nil {
		return nil, err
	}
	provider := &staticProvider{levels: map[string]*engine.LoadedLevel{"arena": arena}}

	eng, err := engine.NewEngine(provider, "arena", nil, el, log)
	if err != nil {
		return nil, err
	}

	return &LoopScenarioTest{
		engine:   eng,
		eventLog: el,
		logger:   log,
		results:  make([]TestResult, 0),
	}, nil
}

// walk issues one intent and advances one tick.
func (t *LoopScenarioTest) walk(a level.Action) {
	if err := t.engine.SetIntent(a); err != nil {
		t.logger.Error("scenario intent: " + err.Error())
	}
	t.engine.Step()
}

func (t *LoopScenarioTest) record(name, expected, actual string, passed bool, reason string) {
	t.results = append(t.results, TestResult{
		ScenarioName: name,
		Expected:     expected,
		Actual:       actual,
		Passed:       passed,
		Reason:       reason,
	})
	status := "PASS"
	if !passed {
		status = "FAIL"
	}
	fmt.Printf("  [%s] %s: expected %s, got %s (%s)\n", status, name, expected, actual, reason)
}

// RunTest executes the full loop scenario.
func (t *LoopScenarioTest) RunTest() {
	fmt.Println("\n============================================================")
	fmt.Println("SCENARIO: FIRST TRAVERSAL, REPLAY, PRESSURE PLATE")
	fmt.Println("============================================================")

	// Scenario 1: first loop entry has no history, so no replica spawns
	// and recording begins.
	for i := 0; i < 4; i++ {
		t.walk(level.ActionMoveEast) // (1,1) -> (5,1), onto loop1
	}
	spawned := len(t.eventLog.GetByType(events.EventTypeReplicaSpawned))
	t.record("first loop entry", "0 replicas", fmt.Sprintf("%d replicas", spawned),
		spawned == 0, "a loop with no sealed history replays nothing")

	// Walk to the exit; crossing it seals the traversal and teleports the
	// player to the front elevator.
	t.walk(level.ActionMoveSouth) // (5,2)
	t.walk(level.ActionMoveSouth) // (5,3)
	t.walk(level.ActionMoveWest)  // (4,3)
	t.walk(level.ActionMoveWest)  // (3,3) = out -> teleported to front

	sealed := len(t.eventLog.GetByType(events.EventTypeSegmentSealed))
	t.record("exit seals traversal", "1 sealed segment", fmt.Sprintf("%d sealed", sealed),
		sealed == 1, "leaving through the exit seals the recording")

	frame := t.engine.Frame()
	atFront := len(frame.Actors) == 1 && frame.Actors[0].Pose.Pos == (level.GridPos{X: 1, Y: 3})
	t.record("exit teleports player", "player at (1,3)",
		fmt.Sprintf("player at (%d,%d)", frame.Actors[0].Pose.Pos.X, frame.Actors[0].Pose.Pos.Y),
		atFront, "exit_path routes back to the front elevator")

	// Scenario 2: re-entering the loop replays the sealed traversal.
	t.walk(level.ActionMoveNorth) // (1,2)
	t.walk(level.ActionMoveNorth) // (1,1)
	for i := 0; i < 4; i++ {
		t.walk(level.ActionMoveEast) // back onto loop1
	}
	spawned = len(t.eventLog.GetByType(events.EventTypeReplicaSpawned))
	frame = t.engine.Frame()
	t.record("second loop entry", "1 replica active", fmt.Sprintf("%d actors in frame", len(frame.Actors)),
		spawned == 1 && len(frame.Actors) == 2, "sealed history spawns exactly one replica")

	// Let the replica finish its 4 recorded ticks plus the retirement tick.
	for i := 0; i < 5; i++ {
		t.walk(level.ActionWait)
	}
	retired := len(t.eventLog.GetByType(events.EventTypeReplicaRetired))
	t.record("replica retirement", "1 retired", fmt.Sprintf("%d retired", retired),
		retired == 1, "replica retires the tick after its final recorded tick")

	// Scenario 3: the pressure plate drives the door output with one tick of
	// latch latency.
	t.engine.ResetLevel()
	t.walk(level.ActionMoveEast)  // (2,1)
	t.walk(level.ActionMoveEast)  // (3,1) = plate trigger
	t.walk(level.ActionWait)      // hold latched last tick, door goes true
	doorOpen := t.engine.Output("door")
	changes := len(t.eventLog.GetByType(events.EventTypeOutputChanged))
	t.record("pressure plate", "door=true with OUTPUT_CHANGED", fmt.Sprintf("door=%v changes=%d", doorOpen, changes),
		doorOpen && changes >= 1, "hold gate latches presence, output follows next tick")
}

// GetResults returns all scenario results.
func (t *LoopScenarioTest) GetResults() []TestResult {
	return t.results
}
