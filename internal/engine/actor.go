package engine

import (
	"github.com/hourglass-games/timelift/server/internal/domain/level"
	"github.com/hourglass-games/timelift/server/internal/timeline"
)

// PlayerID is the stable identifier of the live player actor.
const PlayerID = "player"

// Step is what a movement source yields for one tick.
type Step struct {
	Action level.Action
	// Pose, when non-nil, overrides movement resolution entirely. Replayed
	// poses are authoritative: a replica stands exactly where the recording
	// says it stood, whatever the level looks like now.
	Pose *level.Pose
}

// MovementSource supplies an actor's movement for one tick. Next reports
// false when the source is exhausted, which retires the actor.
type MovementSource interface {
	Next() (Step, bool)
}

// Actor is one entity moving through the level. The live player and replicas
// share this type; they differ only in their movement source.
type Actor struct {
	ID   string
	Live bool
	Pose level.Pose

	source MovementSource
	// segment is set for replicas only: the sealed recording being replayed.
	segment *timeline.Segment
}

// liveSource is the live player's movement source: a latest-wins mailbox of
// one intent, consumed each tick. With no intent pending the player waits.
// It is never exhausted.
type liveSource struct {
	pending level.Action
}

func newLiveSource() *liveSource {
	return &liveSource{pending: level.ActionWait}
}

// Set replaces the pending intent. Multiple intents within one tick keep
// only the last.
func (s *liveSource) Set(a level.Action) {
	s.pending = a
}

func (s *liveSource) Next() (Step, bool) {
	a := s.pending
	s.pending = level.ActionWait
	return Step{Action: a}, true
}

// replaySource is a read-only cursor over a sealed segment. Forward replay
// walks the recording oldest-first; reverse replay walks it newest-first with
// facing mirrored, modeling the broken end-game elevator.
type replaySource struct {
	seg     *timeline.Segment
	cursor  int
	reverse bool
}

func newReplaySource(seg *timeline.Segment, reverse bool) *replaySource {
	return &replaySource{seg: seg, reverse: reverse}
}

func (s *replaySource) Next() (Step, bool) {
	idx := s.cursor
	if s.reverse {
		idx = s.seg.Len() - 1 - s.cursor
	}
	snap, ok := s.seg.At(idx)
	if !ok {
		return Step{}, false
	}
	s.cursor++

	pose := level.Pose{Pos: snap.Pos, Facing: snap.Facing}
	if s.reverse {
		pose.Facing = pose.Facing.Opposite()
	}
	return Step{Action: snap.Action, Pose: &pose}, true
}
