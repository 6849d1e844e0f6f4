package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hourglass-games/timelift/server/internal/domain/circuit"
	"github.com/hourglass-games/timelift/server/internal/domain/level"
	"github.com/hourglass-games/timelift/server/internal/events"
	"github.com/hourglass-games/timelift/server/internal/platform/logger"
	"github.com/hourglass-games/timelift/server/internal/platform/metrics"
	"github.com/hourglass-games/timelift/server/internal/timeline"
)

// SegmentArchiver persists sealed traversals per level so loop history
// survives a restart. Implementations must tolerate concurrent SaveSegment
// calls; the engine writes through off the tick path. DeleteSegments drops a
// level's archived history when the player resets it, so the cleared loops
// stay cleared across a restart.
type SegmentArchiver interface {
	SaveSegment(levelName string, seg *timeline.Segment) error
	LoadSegments(levelName string) ([]*timeline.Segment, error)
	DeleteSegments(levelName string) error
}

// Engine is the central orchestrator: it owns the per-tick sequence across
// movement, transport, circuit evaluation and timeline recording. The whole
// sequence runs to completion under one lock before the next tick's input is
// sampled; there is no concurrent mutation of simulation state.
type Engine struct {
	eventLog *events.EventLog
	logger   *logger.Logger

	levels   LevelProvider
	archiver SegmentArchiver // may be nil

	movement  *MovementSystem
	triggers  *TriggerSystem
	transport *TransportSystem
	replicas  *ReplicaSystem
	recorder  *timeline.Recorder

	mu        sync.Mutex
	current   *LoadedLevel
	evaluator *circuit.Evaluator
	tick      uint64

	// prevOutputs tracks output-kind gate values for change notification.
	prevOutputs map[string]bool
	warnings    []string
	liveAction  level.Action

	// heartbeatEvery spaces TICK events in the log; per-tick frames go to
	// the network sink instead, the log would drown at full rate.
	heartbeatEvery uint64
}

// NewEngine loads the initial level and wires up all subsystems. archiver may
// be nil, in which case sealed segments live only in memory.
func NewEngine(levels LevelProvider, initialLevel string, archiver SegmentArchiver, eventLog *events.EventLog, log *logger.Logger) (*Engine, error) {
	e := &Engine{
		eventLog: eventLog,
		logger:   log,
		levels:   levels,
		archiver: archiver,

		movement:  NewMovementSystem(log),
		triggers:  NewTriggerSystem(),
		transport: NewTransportSystem(log, levels),
		replicas:  NewReplicaSystem(eventLog, log),
		recorder:  timeline.NewRecorder(),

		heartbeatEvery: 60,
	}

	loaded, err := levels.Load(initialLevel)
	if err != nil {
		return nil, fmt.Errorf("engine: initial level %q: %w", initialLevel, err)
	}
	e.installLevel(loaded)
	return e, nil
}

// SetIntent places the live player's movement intent for the next tick.
// Safe to call from network goroutines.
func (e *Engine) SetIntent(a level.Action) error {
	if !a.Valid() {
		return fmt.Errorf("engine: unknown action %q", a)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replicas.SetIntent(a)
	return nil
}

// CurrentTick returns the number of completed ticks.
func (e *Engine) CurrentTick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// CurrentLevel returns the name of the level being simulated.
func (e *Engine) CurrentLevel() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Level.Name
}

// GetEventLog exposes the event log for the inspector API and network layer.
func (e *Engine) GetEventLog() *events.EventLog {
	return e.eventLog
}

// Output returns a gate's output for the most recently completed tick.
func (e *Engine) Output(gateID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluator.Output(gateID)
}

// Step runs one simulation tick.
func (e *Engine) Step() {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	e.tick++
	e.warnings = e.warnings[:0]

	// 1. Apply live input and advance every replica one step of its
	// recording. A replica whose recording is exhausted retires now, the
	// tick after its final recorded tick.
	prev := make(map[string]level.GridPos)
	var exhausted []*Actor
	for _, a := range e.replicas.Actors() {
		prev[a.ID] = a.Pose.Pos
		step, ok := a.source.Next()
		if !ok {
			exhausted = append(exhausted, a)
			continue
		}
		if a.Live {
			e.liveAction = step.Action
		}
		e.movement.Apply(e.current.Level, a, step)
	}
	for _, a := range exhausted {
		e.replicas.Retire(a, e.current.Level, e.tick)
	}

	// 2. Resolve elevator transitions, live player first then replicas
	// oldest-spawned first. An elevator transports at most one actor per
	// tick, and only actors that entered its cell this tick.
	used := make(map[string]bool)
	levelBefore := e.current
	for _, a := range e.replicas.Actors() {
		if a.Pose.Pos == prev[a.ID] {
			continue
		}
		elev, ok := e.current.Level.ElevatorAt(a.Pose.Pos)
		if !ok || used[elev.ID] {
			continue
		}
		if e.resolveElevator(a, elev) {
			used[elev.ID] = true
		}
		// A level switch retires every replica; the rest of the snapshot
		// holds poses from the old level and must not be matched against
		// the new one.
		if e.current != levelBefore {
			break
		}
	}

	// 3+4. Sample trigger inputs from final positions, then evaluate.
	in := e.triggers.Sample(e.current.Level, e.current.Graph, e.replicas.Actors())
	evalStart := time.Now()
	e.evaluator.Step(in)
	metrics.Get().RecordEval(time.Since(evalStart))

	// 5. Surface output gate changes to external collaborators.
	e.publishOutputChanges()

	// 6. Append the live player's final state to the open segment.
	if e.recorder.Recording() {
		p := e.replicas.Player()
		e.recorder.Record(timeline.Snapshot{
			Pos:    p.Pose.Pos,
			Facing: p.Pose.Facing,
			Action: e.liveAction,
		})
		metrics.Get().RecordSnapshot()
	}

	if e.heartbeatEvery > 0 && e.tick%e.heartbeatEvery == 0 {
		e.eventLog.Append(events.SimEvent{
			ID:        events.GenerateEventID(),
			Timestamp: time.Now(),
			Type:      events.EventTypeTick,
			ActorID:   PlayerID,
			LevelName: e.current.Level.Name,
			Tick:      e.tick,
		})
	}
	metrics.Get().RecordTick(time.Since(start))
}

// resolveElevator handles one actor standing on a freshly entered elevator
// cell. Returns true when the elevator acted (successfully or not), which
// blocks it for later actors this tick.
func (e *Engine) resolveElevator(a *Actor, elev *level.Elevator) bool {
	switch elev.Kind {
	case level.ElevatorEntry:
		// Arrival point only. Walking onto it does nothing.
		return false

	case level.ElevatorLoop, level.ElevatorInverseLoop:
		if !a.Live {
			// Replicas replay history, they do not originate new loops.
			return false
		}
		if e.recorder.Recording() {
			e.refuseTransport(a, elev, "loop entered while a loop is already being recorded")
			return true
		}
		// Spawn the previous traversal's replica before recording starts;
		// a loop with no sealed history simply spawns nothing.
		reverse := elev.Kind == level.ElevatorInverseLoop
		e.replicas.Spawn(e.current.Level, elev.ID, reverse, e.tick)
		if _, err := e.recorder.Begin(elev.ID, e.tick); err != nil {
			// Unreachable given the Recording check above.
			e.logger.Error("recorder: " + err.Error())
			panic(err)
		}
		e.logger.Event("LOOP_ENTERED", a.ID, "loop "+elev.ID)
		return true

	case level.ElevatorExit:
		dest, target, err := e.transport.ResolveExit(e.current, elev)
		if err != nil {
			e.refuseTransport(a, elev, err.Error())
			return true
		}
		if dest != e.current {
			if !a.Live {
				e.refuseTransport(a, elev, "replica cannot leave the level")
				return true
			}
			e.sealIfRecording()
			e.switchLevel(dest, target)
			return true
		}
		a.Pose = level.Pose{Pos: target.Pos, Facing: target.Direction}
		if a.Live {
			e.sealIfRecording()
		}
		return true
	}
	return false
}

// refuseTransport reports a refused transport: the actor stays put, the
// level stays playable.
func (e *Engine) refuseTransport(a *Actor, elev *level.Elevator, reason string) {
	e.logger.Warn("transport refused for " + a.ID + " at " + elev.ID + ": " + reason)
	e.warnings = append(e.warnings, reason)
	e.eventLog.Append(events.SimEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeTransportRefused,
		ActorID:   a.ID,
		LevelName: e.current.Level.Name,
		Tick:      e.tick,
		Payload: map[string]interface{}{
			"elevator": elev.ID,
			"reason":   reason,
		},
	})
}

// sealIfRecording seals the open segment, registers it as the loop's history
// and archives it. A double seal is a scheduler ordering bug and panics.
func (e *Engine) sealIfRecording() {
	if !e.recorder.Recording() {
		return
	}
	seg, err := e.recorder.Seal()
	if err != nil {
		if errors.Is(err, timeline.ErrAlreadySealed) {
			e.logger.Error("recorder: " + err.Error())
			panic(err)
		}
		e.logger.Error("recorder: " + err.Error())
		return
	}
	e.replicas.RememberSealed(seg)
	metrics.Get().RecordSegmentSealed()

	e.eventLog.Append(events.SimEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeSegmentSealed,
		ActorID:   PlayerID,
		LevelName: e.current.Level.Name,
		Tick:      e.tick,
		Payload: map[string]interface{}{
			"loop":       seg.LoopID(),
			"start_tick": seg.StartTick(),
			"length":     seg.Len(),
		},
	})

	if e.archiver != nil {
		name := e.current.Level.Name
		go func() {
			if err := e.archiver.SaveSegment(name, seg); err != nil {
				e.logger.Error("segment archive: " + err.Error())
			}
		}()
	}
}

// publishOutputChanges diffs output-kind gates against the previous tick and
// emits OUTPUT_CHANGED for every flip. The render sink owns the visual
// realization; the engine only issues intents.
func (e *Engine) publishOutputChanges() {
	for _, gate := range e.current.Graph.Gates() {
		if gate.Kind != circuit.GateOutput {
			continue
		}
		val := e.evaluator.Output(gate.ID)
		if val == e.prevOutputs[gate.ID] {
			continue
		}
		e.prevOutputs[gate.ID] = val
		e.eventLog.Append(events.SimEvent{
			ID:        events.GenerateEventID(),
			Timestamp: time.Now(),
			Type:      events.EventTypeOutputChanged,
			ActorID:   gate.ID,
			LevelName: e.current.Level.Name,
			Tick:      e.tick,
			Payload: map[string]interface{}{
				"gate":  gate.ID,
				"value": val,
			},
		})
	}
}

// installLevel makes a loaded level current: fresh evaluator, player at the
// level start, archived loop history restored, circuit faults surfaced once.
func (e *Engine) installLevel(loaded *LoadedLevel) {
	e.current = loaded
	e.evaluator = circuit.NewEvaluator(loaded.Graph)
	e.prevOutputs = make(map[string]bool)
	for _, gate := range loaded.Graph.Gates() {
		if gate.Kind == circuit.GateOutput {
			e.prevOutputs[gate.ID] = false
		}
	}
	e.replicas.PlacePlayer(level.Pose{Pos: loaded.Level.PlayerPos, Facing: loaded.Level.PlayerDir})

	if e.archiver != nil {
		segs, err := e.archiver.LoadSegments(loaded.Level.Name)
		if err != nil {
			e.logger.Error("segment archive: " + err.Error())
		}
		for _, seg := range segs {
			e.replicas.RememberSealed(seg)
		}
	}

	e.eventLog.Append(events.SimEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeLevelLoaded,
		ActorID:   PlayerID,
		LevelName: loaded.Level.Name,
		Tick:      e.tick,
	})
	e.reportFault()
}

// switchLevel moves the live player to another level through an exit
// elevator. Replicas never cross levels; they are silently retired.
func (e *Engine) switchLevel(dest *LoadedLevel, arrive *level.Elevator) {
	e.logger.Info("level transition: " + e.current.Level.Name + " -> " + dest.Level.Name)
	e.replicas.RetireAll()
	e.replicas.ClearHistory()
	e.recorder.Discard()

	e.installLevel(dest)
	e.replicas.PlacePlayer(level.Pose{Pos: arrive.Pos, Facing: arrive.Direction})
}

// ResetLevel restores the current level's initial state: replicas retired,
// loop history cleared, latched gate state reset, the player back at the
// level start.
func (e *Engine) ResetLevel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.replicas.RetireAll()
	e.replicas.ClearHistory()
	if e.archiver != nil {
		// The archive must forget the cleared loops too, or a restart
		// would bring them back through installLevel.
		if err := e.archiver.DeleteSegments(e.current.Level.Name); err != nil {
			e.logger.Error("segment archive: " + err.Error())
		}
	}
	e.recorder.Discard()
	e.evaluator.Reset()
	for id := range e.prevOutputs {
		e.prevOutputs[id] = false
	}
	e.replicas.PlacePlayer(level.Pose{Pos: e.current.Level.PlayerPos, Facing: e.current.Level.PlayerDir})

	e.eventLog.Append(events.SimEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeLevelReset,
		ActorID:   PlayerID,
		LevelName: e.current.Level.Name,
		Tick:      e.tick,
	})
	e.logger.Info("level reset: " + e.current.Level.Name)
}

// reportFault surfaces the level's combinational cycle, if any. The fault is
// static per graph, so it is reported once on install.
func (e *Engine) reportFault() {
	fault := e.evaluator.Fault()
	if fault == nil {
		return
	}
	metrics.Get().RecordCircuitFault()
	e.logger.Warn("level " + e.current.Level.Name + ": " + fault.Error())
	e.eventLog.Append(events.SimEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeCircuitFault,
		LevelName: e.current.Level.Name,
		Tick:      e.tick,
		Payload: map[string]interface{}{
			"gates": fault.Gates,
		},
	})
}
