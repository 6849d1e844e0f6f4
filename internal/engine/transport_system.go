package engine

import (
	"errors"
	"fmt"

	"github.com/hourglass-games/timelift/server/internal/domain/circuit"
	"github.com/hourglass-games/timelift/server/internal/domain/level"
	"github.com/hourglass-games/timelift/server/internal/platform/logger"
)

// ErrDanglingTransport signals an exit elevator whose destination does not
// resolve. Transport is refused and the actor stays put; the level remains
// playable.
var ErrDanglingTransport = errors.New("transport destination does not resolve")

// LoadedLevel bundles a level with its signal graph, as supplied by the level
// provider.
type LoadedLevel struct {
	Level *level.Level
	Graph *circuit.Graph
}

// LevelProvider resolves level names, including exit paths that cross levels.
// Implementations return an error for unknown names; the engine maps that to
// a refused transport, never a crash.
type LevelProvider interface {
	Load(name string) (*LoadedLevel, error)
}

// TransportSystem resolves exit elevator destinations. Loop transitions do
// not go through here; they stay inside the level and are handled by the
// replica system.
type TransportSystem struct {
	logger *logger.Logger
	levels LevelProvider
}

// NewTransportSystem creates the transport system.
func NewTransportSystem(log *logger.Logger, levels LevelProvider) *TransportSystem {
	return &TransportSystem{logger: log, levels: levels}
}

// ResolveExit resolves an exit elevator's destination against the current
// level or, when the exit path names another level, through the level
// provider. A destination that cannot be resolved fails with
// ErrDanglingTransport.
func (ts *TransportSystem) ResolveExit(current *LoadedLevel, e *level.Elevator) (*LoadedLevel, *level.Elevator, error) {
	path := e.ExitPath
	if path.Elevator == "" {
		return nil, nil, fmt.Errorf("%w: exit %q has no exit path", ErrDanglingTransport, e.ID)
	}

	dest := current
	if path.Level != "" && path.Level != current.Level.Name {
		loaded, err := ts.levels.Load(path.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: exit %q level %q: %v", ErrDanglingTransport, e.ID, path.Level, err)
		}
		dest = loaded
	}

	target, ok := dest.Level.Elevator(path.Elevator)
	if !ok {
		return nil, nil, fmt.Errorf("%w: exit %q elevator %q not in level %q", ErrDanglingTransport, e.ID, path.Elevator, dest.Level.Name)
	}
	return dest, target, nil
}
