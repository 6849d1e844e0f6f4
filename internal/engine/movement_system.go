package engine

import (
	"github.com/hourglass-games/timelift/server/internal/domain/level"
	"github.com/hourglass-games/timelift/server/internal/platform/logger"
)

// MovementSystem applies one movement step to an actor. Movement is
// grid-discrete and deterministic: the same step against the same grid always
// produces the same pose.
type MovementSystem struct {
	logger *logger.Logger
}

// NewMovementSystem creates the movement system.
func NewMovementSystem(log *logger.Logger) *MovementSystem {
	return &MovementSystem{logger: log}
}

// Apply resolves a step for the actor. A recorded pose wins outright; a live
// movement intent turns the actor to face the direction always, and moves it
// only when the target tile is walkable. Blocked moves are not an error.
func (m *MovementSystem) Apply(lvl *level.Level, actor *Actor, step Step) {
	if step.Pose != nil {
		actor.Pose = *step.Pose
		return
	}

	dir, ok := step.Action.Direction()
	if !ok {
		return // WAIT
	}

	actor.Pose.Facing = dir
	dx, dy := dir.Offset()
	target := actor.Pose.Pos.Add(dx, dy)
	if lvl.Tiles.Walkable(target) {
		actor.Pose.Pos = target
	}
}
