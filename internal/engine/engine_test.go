package engine_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hourglass-games/timelift/server/internal/domain/circuit"
	"github.com/hourglass-games/timelift/server/internal/domain/level"
	"github.com/hourglass-games/timelift/server/internal/engine"
	"github.com/hourglass-games/timelift/server/internal/events"
	"github.com/hourglass-games/timelift/server/internal/platform/logger"
	"github.com/hourglass-games/timelift/server/internal/timeline"
)

type staticProvider struct {
	levels map[string]*engine.LoadedLevel
}

func (p *staticProvider) Load(name string) (*engine.LoadedLevel, error) {
	if lvl, ok := p.levels[name]; ok {
		return lvl, nil
	}
	return nil, fmt.Errorf("no such level: %q", name)
}

// arenaFixture builds a small open room used by most tests:
//
//	entry "front" at (0,0), the player starting at (0,1) facing east,
//	a loop elevator "lift" at (2,1) and an exit "out" at (0,2) routed
//	back to "front" on the same level.
type arenaFixture struct {
	level *level.Level
	graph *circuit.Graph
}

func newArena(liftKind level.ElevatorKind) *arenaFixture {
	lvl := level.New("arena")
	lvl.PlayerPos = level.GridPos{X: 0, Y: 1}
	lvl.PlayerDir = level.East

	elevators := []*level.Elevator{
		{ID: "front", Kind: level.ElevatorEntry, Pos: level.GridPos{X: 0, Y: 0}, Direction: level.East},
		{ID: "lift", Kind: liftKind, Pos: level.GridPos{X: 2, Y: 1}, Direction: level.West},
		{ID: "out", Kind: level.ElevatorExit, Pos: level.GridPos{X: 0, Y: 2}, Direction: level.South,
			ExitPath: level.ExitPath{Elevator: "front"}},
	}
	graph := circuit.NewGraph()
	for _, e := range elevators {
		if err := lvl.AddElevator(e); err != nil {
			panic(err)
		}
		graph.RegisterSignal(e.ID)
	}
	return &arenaFixture{level: lvl, graph: graph}
}

func (f *arenaFixture) exit() *level.Elevator {
	e, _ := f.level.Elevator("out")
	return e
}

func startEngine(t *testing.T, fixtures map[string]*engine.LoadedLevel, initial string) (*engine.Engine, *events.EventLog) {
	t.Helper()
	el := events.NewEventLog(nil)
	eng, err := engine.NewEngine(&staticProvider{levels: fixtures}, initial, nil, el, logger.NewLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng, el
}

func startArena(t *testing.T, liftKind level.ElevatorKind) (*engine.Engine, *events.EventLog, *arenaFixture) {
	t.Helper()
	f := newArena(liftKind)
	eng, el := startEngine(t, map[string]*engine.LoadedLevel{
		"arena": {Level: f.level, Graph: f.graph},
	}, "arena")
	return eng, el, f
}

func walk(t *testing.T, eng *engine.Engine, actions ...level.Action) {
	t.Helper()
	for _, a := range actions {
		if err := eng.SetIntent(a); err != nil {
			t.Fatalf("SetIntent(%s): %v", a, err)
		}
		eng.Step()
	}
}

func findActor(t *testing.T, f engine.Frame, id string) engine.ActorState {
	t.Helper()
	for _, a := range f.Actors {
		if a.ID == id {
			return a
		}
	}
	t.Fatalf("actor %q not in frame (have %d actors)", id, len(f.Actors))
	return engine.ActorState{}
}

// firstTraversal walks onto the lift and leaves through the exit, sealing
// one three-tick recording: (2,1) east, (1,1) west, (0,1) west.
func firstTraversal(t *testing.T, eng *engine.Engine) {
	t.Helper()
	walk(t, eng,
		level.ActionMoveEast, level.ActionMoveEast, // onto the lift
		level.ActionMoveWest, level.ActionMoveWest,
		level.ActionMoveSouth, // onto the exit, sealing the recording
	)
}

func TestLoopWithoutHistorySpawnsNothing(t *testing.T) {
	eng, el, _ := startArena(t, level.ElevatorLoop)

	walk(t, eng, level.ActionMoveEast, level.ActionMoveEast)

	f := eng.Frame()
	if len(f.Actors) != 1 {
		t.Errorf("actors: got %d, want only the live player", len(f.Actors))
	}
	if got := len(el.GetByType(events.EventTypeReplicaSpawned)); got != 0 {
		t.Errorf("replica spawns: got %d, want 0", got)
	}
}

func TestExitSealsTraversal(t *testing.T) {
	eng, el, _ := startArena(t, level.ElevatorLoop)

	firstTraversal(t, eng)

	sealed := el.GetByType(events.EventTypeSegmentSealed)
	if len(sealed) != 1 {
		t.Fatalf("sealed segments: got %d, want 1", len(sealed))
	}
	payload := sealed[0].Payload.(map[string]interface{})
	if payload["loop"] != "lift" {
		t.Errorf("sealed loop: got %v, want lift", payload["loop"])
	}
	if payload["length"] != 3 {
		t.Errorf("sealed length: got %v, want 3", payload["length"])
	}

	// The exit routed the player back to the entry elevator.
	p := findActor(t, eng.Frame(), engine.PlayerID)
	want := level.Pose{Pos: level.GridPos{X: 0, Y: 0}, Facing: level.East}
	if p.Pose != want {
		t.Errorf("player pose after exit: got %+v, want %+v", p.Pose, want)
	}
}

func TestLoopReplaysSealedTraversal(t *testing.T) {
	eng, el, _ := startArena(t, level.ElevatorLoop)

	firstTraversal(t, eng)
	// Walk back to the lift from the entry elevator.
	walk(t, eng, level.ActionMoveSouth, level.ActionMoveEast, level.ActionMoveEast)

	f := eng.Frame()
	if len(f.Actors) != 2 {
		t.Fatalf("actors after re-entry: got %d, want 2", len(f.Actors))
	}
	replica := findActor(t, f, "replica-1")
	if replica.Live {
		t.Error("replica must not be live")
	}
	// Replicas materialize at the entry elevator on the spawn tick.
	if replica.Pose.Pos != (level.GridPos{X: 0, Y: 0}) {
		t.Errorf("spawn pose: got %+v, want the entry elevator", replica.Pose.Pos)
	}
	if f.Doors["lift"] {
		t.Error("lift door bit should read closed while the player stands on it")
	}

	// The replayed poses are authoritative: exactly the recorded track.
	wantTrack := []level.Pose{
		{Pos: level.GridPos{X: 2, Y: 1}, Facing: level.East},
		{Pos: level.GridPos{X: 1, Y: 1}, Facing: level.West},
		{Pos: level.GridPos{X: 0, Y: 1}, Facing: level.West},
	}
	for i, want := range wantTrack {
		walk(t, eng, level.ActionWait)
		got := findActor(t, eng.Frame(), "replica-1").Pose
		if got != want {
			t.Errorf("replay tick %d: got %+v, want %+v", i+1, got, want)
		}
	}

	// Retirement happens the tick after the final recorded tick.
	walk(t, eng, level.ActionWait)
	if got := len(eng.Frame().Actors); got != 1 {
		t.Errorf("actors after replay ended: got %d, want 1", got)
	}
	if got := len(el.GetByType(events.EventTypeReplicaRetired)); got != 1 {
		t.Errorf("retirements: got %d, want 1", got)
	}
	if got := len(el.GetByType(events.EventTypeReplicaSpawned)); got != 1 {
		t.Errorf("spawns: got %d, want 1", got)
	}
}

func TestInverseLoopReplaysNewestFirst(t *testing.T) {
	eng, _, _ := startArena(t, level.ElevatorInverseLoop)

	firstTraversal(t, eng)
	walk(t, eng, level.ActionMoveSouth, level.ActionMoveEast, level.ActionMoveEast)

	if got := len(eng.Frame().Actors); got != 2 {
		t.Fatalf("actors after re-entry: got %d, want 2", got)
	}

	// Reverse replay walks the recording newest-first with facing mirrored.
	wantTrack := []level.Pose{
		{Pos: level.GridPos{X: 0, Y: 1}, Facing: level.East},
		{Pos: level.GridPos{X: 1, Y: 1}, Facing: level.East},
		{Pos: level.GridPos{X: 2, Y: 1}, Facing: level.West},
	}
	for i, want := range wantTrack {
		walk(t, eng, level.ActionWait)
		got := findActor(t, eng.Frame(), "replica-1").Pose
		if got != want {
			t.Errorf("reverse replay tick %d: got %+v, want %+v", i+1, got, want)
		}
	}
}

func TestNestedLoopRefused(t *testing.T) {
	eng, el, _ := startArena(t, level.ElevatorLoop)

	walk(t, eng,
		level.ActionMoveEast, level.ActionMoveEast, // onto the lift, recording starts
		level.ActionMoveWest,
		level.ActionMoveEast, // back onto the lift mid-recording
	)

	refused := el.GetByType(events.EventTypeTransportRefused)
	if len(refused) != 1 {
		t.Fatalf("refusals: got %d, want 1", len(refused))
	}
	if len(eng.Frame().Warnings) == 0 {
		t.Error("the refusal should surface in the frame warnings")
	}

	// Recording survives the refusal and seals at the exit.
	walk(t, eng, level.ActionMoveWest, level.ActionMoveWest, level.ActionMoveSouth)
	sealed := el.GetByType(events.EventTypeSegmentSealed)
	if len(sealed) != 1 {
		t.Fatalf("sealed segments: got %d, want 1", len(sealed))
	}
	if got := sealed[0].Payload.(map[string]interface{})["length"]; got != 5 {
		t.Errorf("sealed length: got %v, want 5", got)
	}
}

func TestDanglingExitRefused(t *testing.T) {
	f := newArena(level.ElevatorLoop)
	f.exit().ExitPath = level.ExitPath{}
	eng, el := startEngine(t, map[string]*engine.LoadedLevel{
		"arena": {Level: f.level, Graph: f.graph},
	}, "arena")

	walk(t, eng, level.ActionMoveSouth)

	// The actor stays on the elevator cell; the level remains playable.
	p := findActor(t, eng.Frame(), engine.PlayerID)
	if p.Pose.Pos != (level.GridPos{X: 0, Y: 2}) {
		t.Errorf("player pose: got %+v, want to stay on the exit cell", p.Pose.Pos)
	}
	if got := len(el.GetByType(events.EventTypeTransportRefused)); got != 1 {
		t.Fatalf("refusals: got %d, want 1", got)
	}
	if len(eng.Frame().Warnings) == 0 {
		t.Error("frame should carry the refusal warning")
	}

	// Standing still on the cell does not re-trigger the elevator.
	walk(t, eng, level.ActionWait)
	if got := len(el.GetByType(events.EventTypeTransportRefused)); got != 1 {
		t.Errorf("refusals after waiting: got %d, want still 1", got)
	}
	if len(eng.Frame().Warnings) != 0 {
		t.Error("warnings are per-tick and should have cleared")
	}
}

func TestExitCrossesLevels(t *testing.T) {
	alpha := newArena(level.ElevatorLoop)
	alpha.exit().ExitPath = level.ExitPath{Level: "beta", Elevator: "dock"}

	beta := level.New("beta")
	beta.PlayerPos = level.GridPos{X: 0, Y: 0}
	beta.PlayerDir = level.South
	if err := beta.AddElevator(&level.Elevator{
		ID: "dock", Kind: level.ElevatorEntry,
		Pos: level.GridPos{X: 3, Y: 3}, Direction: level.North,
	}); err != nil {
		t.Fatal(err)
	}

	eng, el := startEngine(t, map[string]*engine.LoadedLevel{
		"arena": {Level: alpha.level, Graph: alpha.graph},
		"beta":  {Level: beta, Graph: circuit.NewGraph()},
	}, "arena")

	walk(t, eng, level.ActionMoveSouth)

	if got := eng.CurrentLevel(); got != "beta" {
		t.Fatalf("current level: got %q, want beta", got)
	}
	f := eng.Frame()
	if f.Level != "beta" {
		t.Errorf("frame level: got %q, want beta", f.Level)
	}
	p := findActor(t, f, engine.PlayerID)
	want := level.Pose{Pos: level.GridPos{X: 3, Y: 3}, Facing: level.North}
	if p.Pose != want {
		t.Errorf("arrival pose: got %+v, want %+v", p.Pose, want)
	}
	if got := len(el.GetByType(events.EventTypeLevelLoaded)); got != 2 {
		t.Errorf("level loads: got %d, want 2 (initial plus transition)", got)
	}
}

func TestResetLevel(t *testing.T) {
	eng, el, _ := startArena(t, level.ElevatorLoop)

	firstTraversal(t, eng)
	walk(t, eng, level.ActionMoveSouth, level.ActionMoveEast, level.ActionMoveEast)
	if got := len(eng.Frame().Actors); got != 2 {
		t.Fatalf("actors before reset: got %d, want 2", got)
	}

	eng.ResetLevel()

	f := eng.Frame()
	if len(f.Actors) != 1 {
		t.Errorf("actors after reset: got %d, want 1", len(f.Actors))
	}
	p := findActor(t, f, engine.PlayerID)
	if p.Pose.Pos != (level.GridPos{X: 0, Y: 1}) {
		t.Errorf("player pose after reset: got %+v, want the level start", p.Pose.Pos)
	}
	if got := len(el.GetByType(events.EventTypeLevelReset)); got != 1 {
		t.Errorf("reset events: got %d, want 1", got)
	}

	// Loop history is gone: re-entering the lift spawns nothing.
	spawnsBefore := len(el.GetByType(events.EventTypeReplicaSpawned))
	walk(t, eng, level.ActionMoveEast, level.ActionMoveEast)
	if got := len(el.GetByType(events.EventTypeReplicaSpawned)); got != spawnsBefore {
		t.Errorf("spawns after reset: got %d, want %d", got, spawnsBefore)
	}
}

func TestPressurePlateDrivesOutput(t *testing.T) {
	f := newArena(level.ElevatorLoop)
	trigger := level.GridPos{X: 1, Y: 1}
	plate := &circuit.Gate{ID: "plate", Kind: circuit.GateHold, Trigger: &trigger}
	door := &circuit.Gate{ID: "door", Kind: circuit.GateOutput}
	for _, g := range []*circuit.Gate{plate, door} {
		if err := f.graph.AddGate(g); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.graph.AddWire(circuit.GatePin("plate"), "door"); err != nil {
		t.Fatal(err)
	}
	eng, el := startEngine(t, map[string]*engine.LoadedLevel{
		"arena": {Level: f.level, Graph: f.graph},
	}, "arena")

	if out, ok := eng.Frame().Outputs["door"]; !ok || out {
		t.Errorf("door before any tick: got %v present=%v, want false and present", out, ok)
	}

	walk(t, eng, level.ActionMoveEast) // onto the plate
	if eng.Output("door") {
		t.Error("hold lags by one tick; the door must still be closed")
	}
	walk(t, eng, level.ActionWait)
	if !eng.Output("door") {
		t.Error("door should open one tick after the plate was pressed")
	}
	if !eng.Frame().Outputs["door"] {
		t.Error("frame outputs should carry the open door")
	}

	walk(t, eng, level.ActionMoveWest) // off the plate
	walk(t, eng, level.ActionWait)
	if eng.Output("door") {
		t.Error("door should close one tick after the plate was released")
	}

	changed := el.GetByType(events.EventTypeOutputChanged)
	if len(changed) != 2 {
		t.Errorf("output changes: got %d, want 2 (open then close)", len(changed))
	}
}

func TestCircuitFaultReportedOnce(t *testing.T) {
	f := newArena(level.ElevatorLoop)
	for _, g := range []*circuit.Gate{
		{ID: "a", Kind: circuit.GatePassthrough},
		{ID: "b", Kind: circuit.GateNot},
	} {
		if err := f.graph.AddGate(g); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.graph.AddWire(circuit.GatePin("a"), "b"); err != nil {
		t.Fatal(err)
	}
	if err := f.graph.AddWire(circuit.GatePin("b"), "a"); err != nil {
		t.Fatal(err)
	}
	eng, el := startEngine(t, map[string]*engine.LoadedLevel{
		"arena": {Level: f.level, Graph: f.graph},
	}, "arena")

	walk(t, eng, level.ActionWait, level.ActionWait, level.ActionWait)

	if got := len(el.GetByType(events.EventTypeCircuitFault)); got != 1 {
		t.Errorf("fault events: got %d, want 1 per level install", got)
	}
	if eng.Output("a") || eng.Output("b") {
		t.Error("cycle gates must read false")
	}
}

func TestSetIntentRejectsUnknownActions(t *testing.T) {
	eng, _, _ := startArena(t, level.ElevatorLoop)
	if err := eng.SetIntent("FLY"); err == nil {
		t.Error("expected an error for an unknown action")
	}
	if err := eng.SetIntent(level.ActionWait); err != nil {
		t.Errorf("WAIT should be accepted: %v", err)
	}
}

func TestTickHeartbeat(t *testing.T) {
	eng, el, _ := startArena(t, level.ElevatorLoop)

	for i := 0; i < 59; i++ {
		eng.Step()
	}
	if got := len(el.GetByType(events.EventTypeTick)); got != 0 {
		t.Fatalf("heartbeats after 59 ticks: got %d, want 0", got)
	}
	eng.Step()
	if got := len(el.GetByType(events.EventTypeTick)); got != 1 {
		t.Errorf("heartbeats after 60 ticks: got %d, want 1", got)
	}
	if got := eng.CurrentTick(); got != 60 {
		t.Errorf("CurrentTick: got %d, want 60", got)
	}
}

// memArchiver is an in-memory segment archive standing in for the SQLite
// repository. savedCh signals each completed write, since the engine
// archives off the tick path.
type memArchiver struct {
	mu      sync.Mutex
	saved   map[string][]*timeline.Segment
	deletes int
	savedCh chan struct{}
}

func newMemArchiver() *memArchiver {
	return &memArchiver{
		saved:   make(map[string][]*timeline.Segment),
		savedCh: make(chan struct{}, 8),
	}
}

func (m *memArchiver) SaveSegment(levelName string, seg *timeline.Segment) error {
	m.mu.Lock()
	m.saved[levelName] = append(m.saved[levelName], seg)
	m.mu.Unlock()
	m.savedCh <- struct{}{}
	return nil
}

func (m *memArchiver) LoadSegments(levelName string) ([]*timeline.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*timeline.Segment(nil), m.saved[levelName]...), nil
}

func (m *memArchiver) DeleteSegments(levelName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, levelName)
	m.deletes++
	return nil
}

func (m *memArchiver) count(levelName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved[levelName])
}

func (m *memArchiver) waitSaved(t *testing.T) {
	t.Helper()
	select {
	case <-m.savedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the segment archive write")
	}
}

var _ engine.SegmentArchiver = (*memArchiver)(nil)

func TestResetLevelClearsArchive(t *testing.T) {
	f := newArena(level.ElevatorLoop)
	provider := &staticProvider{levels: map[string]*engine.LoadedLevel{
		"arena": {Level: f.level, Graph: f.graph},
	}}
	arch := newMemArchiver()

	eng, err := engine.NewEngine(provider, "arena", arch, events.NewEventLog(nil), logger.NewLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	firstTraversal(t, eng)
	arch.waitSaved(t)
	if arch.count("arena") != 1 {
		t.Fatalf("archived segments after traversal: got %d, want 1", arch.count("arena"))
	}

	eng.ResetLevel()
	if arch.count("arena") != 0 {
		t.Errorf("archived segments after reset: got %d, want 0", arch.count("arena"))
	}
	if arch.deletes != 1 {
		t.Errorf("archive deletes: got %d, want 1", arch.deletes)
	}

	// A restart over the same archive must not resurrect cleared history.
	restartLog := events.NewEventLog(nil)
	restarted, err := engine.NewEngine(provider, "arena", arch, restartLog, logger.NewLogger())
	if err != nil {
		t.Fatalf("NewEngine after restart: %v", err)
	}
	walk(t, restarted, level.ActionMoveEast, level.ActionMoveEast)
	if got := len(restartLog.GetByType(events.EventTypeReplicaSpawned)); got != 0 {
		t.Errorf("spawns after restart: got %d, want 0", got)
	}
	if got := len(restarted.Frame().Actors); got != 1 {
		t.Errorf("actors after restart: got %d, want only the live player", got)
	}
}

func TestLevelSwitchEndsElevatorPass(t *testing.T) {
	alpha := newArena(level.ElevatorLoop)
	if err := alpha.level.AddElevator(&level.Elevator{
		ID: "gate", Kind: level.ElevatorExit,
		Pos: level.GridPos{X: 1, Y: 2}, Direction: level.West,
		ExitPath: level.ExitPath{Level: "beta", Elevator: "dock"},
	}); err != nil {
		t.Fatal(err)
	}
	alpha.graph.RegisterSignal("gate")

	// Beta holds a dangling exit on the cell the retired replica's stale
	// pose lands on; it must never be consulted for that pose.
	beta := level.New("beta")
	beta.PlayerPos = level.GridPos{X: 3, Y: 3}
	beta.PlayerDir = level.North
	for _, e := range []*level.Elevator{
		{ID: "dock", Kind: level.ElevatorEntry, Pos: level.GridPos{X: 3, Y: 3}, Direction: level.North},
		{ID: "stale", Kind: level.ElevatorExit, Pos: level.GridPos{X: 1, Y: 1}, Direction: level.North},
	} {
		if err := beta.AddElevator(e); err != nil {
			t.Fatal(err)
		}
	}

	eng, el := startEngine(t, map[string]*engine.LoadedLevel{
		"arena": {Level: alpha.level, Graph: alpha.graph},
		"beta":  {Level: beta, Graph: circuit.NewGraph()},
	}, "arena")

	firstTraversal(t, eng)
	// Back to the lift; the sealed traversal spawns a replica.
	walk(t, eng, level.ActionMoveSouth, level.ActionMoveEast, level.ActionMoveEast)
	if got := len(eng.Frame().Actors); got != 2 {
		t.Fatalf("actors before the switch: got %d, want 2", got)
	}

	// The replica replays (2,1) then (1,1); the player reaches the
	// cross-level gate on the same tick the replica moves onto the cell
	// that is an elevator in beta.
	walk(t, eng, level.ActionMoveSouth) // player (2,2), replica (2,1)
	walk(t, eng, level.ActionMoveWest)  // player onto the gate, replica (1,1)

	if got := eng.CurrentLevel(); got != "beta" {
		t.Fatalf("current level: got %q, want beta", got)
	}
	if got := len(el.GetByType(events.EventTypeTransportRefused)); got != 0 {
		t.Errorf("refusals: got %d, want 0; stale replica poses must not hit the new level's elevators", got)
	}
	if got := len(eng.Frame().Actors); got != 1 {
		t.Errorf("actors after the switch: got %d, want only the live player", got)
	}
}
