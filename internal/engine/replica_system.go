package engine

import (
	"fmt"
	"time"

	"github.com/hourglass-games/timelift/server/internal/domain/level"
	"github.com/hourglass-games/timelift/server/internal/events"
	"github.com/hourglass-games/timelift/server/internal/platform/logger"
	"github.com/hourglass-games/timelift/server/internal/platform/metrics"
	"github.com/hourglass-games/timelift/server/internal/timeline"
)

// ReplicaSystem owns the arena of active actors: exactly one live player plus
// zero or more replicas, and the registry of sealed segments per loop
// elevator. Replicas are spawned when a loop elevator with history is entered
// and retired the tick after their segment's final recorded tick.
type ReplicaSystem struct {
	eventLog *events.EventLog
	logger   *logger.Logger

	player   *Actor
	live     *liveSource
	replicas []*Actor

	// sealedByLoop holds the most recently sealed traversal per loop
	// elevator. Re-entering a loop always replays the latest one.
	sealedByLoop map[string]*timeline.Segment
	spawnCounter int
}

// NewReplicaSystem creates the actor arena with the live player placed at the
// level's start pose.
func NewReplicaSystem(eventLog *events.EventLog, log *logger.Logger) *ReplicaSystem {
	rs := &ReplicaSystem{
		eventLog:     eventLog,
		logger:       log,
		sealedByLoop: make(map[string]*timeline.Segment),
	}
	rs.live = newLiveSource()
	rs.player = &Actor{ID: PlayerID, Live: true, source: rs.live}
	return rs
}

// Player returns the live player actor.
func (rs *ReplicaSystem) Player() *Actor {
	return rs.player
}

// SetIntent places the live player's movement intent for the next tick.
// Later intents within the same tick overwrite earlier ones.
func (rs *ReplicaSystem) SetIntent(a level.Action) {
	rs.live.Set(a)
}

// Actors returns the active set in deterministic order: the live player
// first, then replicas oldest-spawned first. Transport contention resolves
// in this order.
func (rs *ReplicaSystem) Actors() []*Actor {
	out := make([]*Actor, 0, 1+len(rs.replicas))
	out = append(out, rs.player)
	out = append(out, rs.replicas...)
	return out
}

// RememberSealed registers a sealed traversal as the loop's replayable
// history, replacing any earlier one.
func (rs *ReplicaSystem) RememberSealed(seg *timeline.Segment) {
	rs.sealedByLoop[seg.LoopID()] = seg
}

// SealedFor returns the replayable history for a loop elevator, if any.
func (rs *ReplicaSystem) SealedFor(loopID string) (*timeline.Segment, bool) {
	seg, ok := rs.sealedByLoop[loopID]
	return seg, ok
}

// Spawn creates a replica replaying the loop's sealed history, materialized
// at the level's entry elevator. With no sealed history, or no entry
// elevator, nothing spawns: the loop has no past to replay yet.
func (rs *ReplicaSystem) Spawn(lvl *level.Level, loopID string, reverse bool, tick uint64) (*Actor, bool) {
	seg, ok := rs.sealedByLoop[loopID]
	if !ok || seg.Len() == 0 {
		return nil, false
	}
	entry, ok := lvl.EntryElevator()
	if !ok {
		rs.logger.Warn("loop " + loopID + " has history but level " + lvl.Name + " has no entry elevator")
		return nil, false
	}

	rs.spawnCounter++
	replica := &Actor{
		ID:      fmt.Sprintf("replica-%d", rs.spawnCounter),
		Pose:    level.Pose{Pos: entry.Pos, Facing: entry.Direction},
		source:  newReplaySource(seg, reverse),
		segment: seg,
	}
	rs.replicas = append(rs.replicas, replica)
	metrics.Get().RecordReplica(true)

	rs.eventLog.Append(events.SimEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeReplicaSpawned,
		ActorID:   replica.ID,
		LevelName: lvl.Name,
		Tick:      tick,
		Payload: map[string]interface{}{
			"loop":    loopID,
			"reverse": reverse,
			"length":  seg.Len(),
		},
	})
	return replica, true
}

// Retire removes a replica from the active set. Segments outlive their
// replicas; the loop may be re-entered later.
func (rs *ReplicaSystem) Retire(replica *Actor, lvl *level.Level, tick uint64) {
	for i, r := range rs.replicas {
		if r == replica {
			rs.replicas = append(rs.replicas[:i:i], rs.replicas[i+1:]...)
			break
		}
	}
	metrics.Get().RecordReplica(false)

	rs.eventLog.Append(events.SimEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeReplicaRetired,
		ActorID:   replica.ID,
		LevelName: lvl.Name,
		Tick:      tick,
	})
}

// RetireAll silently drops every replica. Used on level unload and reset;
// replicas are purely derived from immutable segments, so nothing needs
// flushing.
func (rs *ReplicaSystem) RetireAll() {
	rs.replicas = nil
}

// ClearHistory drops all sealed segments. Used on level reset.
func (rs *ReplicaSystem) ClearHistory() {
	rs.sealedByLoop = make(map[string]*timeline.Segment)
}

// PlacePlayer moves the live player to a fresh pose, typically the level
// start or an arrival elevator.
func (rs *ReplicaSystem) PlacePlayer(pose level.Pose) {
	rs.player.Pose = pose
}
