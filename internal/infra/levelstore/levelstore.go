// Package levelstore loads levels from YAML files under a levels directory
// and compiles them into the engine's immutable level + signal graph pair.
package levelstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hourglass-games/timelift/server/internal/domain/circuit"
	"github.com/hourglass-games/timelift/server/internal/domain/level"
	"github.com/hourglass-games/timelift/server/internal/engine"
	"github.com/hourglass-games/timelift/server/internal/platform/logger"
)

// ErrNoSuchLevel signals a level name with no backing file.
var ErrNoSuchLevel = errors.New("no such level")

// LevelMirror receives the raw source of every successfully loaded level.
// The storage layer implements this; nil disables mirroring.
type LevelMirror interface {
	SaveLevel(name string, data []byte) error
}

// Store resolves level names to compiled levels. Loads are cached: a level is
// parsed once and every exit path to it resolves to the same instance.
type Store struct {
	dir    string
	logger *logger.Logger
	mirror LevelMirror

	mu    sync.Mutex
	cache map[string]*engine.LoadedLevel
}

// NewStore creates a store rooted at dir. mirror may be nil.
func NewStore(dir string, log *logger.Logger, mirror LevelMirror) *Store {
	return &Store{
		dir:    dir,
		logger: log,
		mirror: mirror,
		cache:  make(map[string]*engine.LoadedLevel),
	}
}

// Load resolves a level name. Unknown names fail with ErrNoSuchLevel.
func (s *Store) Load(name string) (*engine.LoadedLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if loaded, ok := s.cache[name]; ok {
		return loaded, nil
	}

	path := filepath.Join(s.dir, name+".yaml")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchLevel, name)
	}
	if err != nil {
		return nil, fmt.Errorf("level %q: %w", name, err)
	}

	loaded, err := Parse(name, raw)
	if err != nil {
		return nil, err
	}
	s.cache[name] = loaded

	if s.mirror != nil {
		if err := s.mirror.SaveLevel(name, raw); err != nil {
			s.logger.Error("level mirror: " + err.Error())
		}
	}
	s.logger.Info("level loaded: " + name)
	return loaded, nil
}

// Invalidate drops a cached level so the next Load re-reads its file. The
// editor calls this between simulation runs, never during one.
func (s *Store) Invalidate(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, name)
}

// List returns the level names available in the store directory.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	return names, nil
}

// levelFile is the YAML shape of a level source file.
type levelFile struct {
	Name   string `yaml:"name"`
	Player struct {
		Pos    gridPos `yaml:"pos"`
		Facing string  `yaml:"facing"`
	} `yaml:"player"`
	Tiles struct {
		Legend map[string]string `yaml:"legend"`
		Rows   []string          `yaml:"rows"`
	} `yaml:"tiles"`
	Elevators []elevatorSpec `yaml:"elevators"`
	Gates     []gateSpec     `yaml:"gates"`
	Wires     []wireSpec     `yaml:"wires"`
}

type gridPos struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

type elevatorSpec struct {
	ID        string  `yaml:"id"`
	Kind      string  `yaml:"kind"`
	Pos       gridPos `yaml:"pos"`
	Direction string  `yaml:"direction"`
	ExitPath  struct {
		Level    string `yaml:"level"`
		Elevator string `yaml:"elevator"`
	} `yaml:"exit_path"`
}

type gateSpec struct {
	ID        string   `yaml:"id"`
	Kind      string   `yaml:"kind"`
	Pos       gridPos  `yaml:"pos"`
	Direction string   `yaml:"direction"`
	Trigger   *gridPos `yaml:"trigger"`
}

type wireSpec struct {
	From string `yaml:"from"` // gate id, or "elevator:<id>"
	To   string `yaml:"to"`
}

// elevatorSourcePrefix marks a wire driven by elevator occupancy instead of
// a gate output pin.
const elevatorSourcePrefix = "elevator:"

// Parse compiles raw YAML level source. The returned level and graph are
// fully validated: unknown kinds, duplicate ids, bad wires and malformed
// grids are all load errors, never simulation surprises.
func Parse(name string, raw []byte) (*engine.LoadedLevel, error) {
	var file levelFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("level %q: %w", name, err)
	}
	if file.Name != "" && file.Name != name {
		return nil, fmt.Errorf("level %q: file declares name %q", name, file.Name)
	}

	lvl := level.New(name)
	if err := parseTiles(lvl, &file); err != nil {
		return nil, fmt.Errorf("level %q: %w", name, err)
	}

	facing := level.Direction(file.Player.Facing)
	if file.Player.Facing == "" {
		facing = level.South
	}
	if !facing.Valid() {
		return nil, fmt.Errorf("level %q: unknown player facing %q", name, file.Player.Facing)
	}
	lvl.PlayerPos = level.GridPos{X: file.Player.Pos.X, Y: file.Player.Pos.Y}
	lvl.PlayerDir = facing

	graph := circuit.NewGraph()
	for _, spec := range file.Elevators {
		e := &level.Elevator{
			ID:        spec.ID,
			Kind:      level.ElevatorKind(spec.Kind),
			Pos:       level.GridPos{X: spec.Pos.X, Y: spec.Pos.Y},
			Direction: level.Direction(spec.Direction),
			ExitPath: level.ExitPath{
				Level:    spec.ExitPath.Level,
				Elevator: spec.ExitPath.Elevator,
			},
		}
		if err := lvl.AddElevator(e); err != nil {
			return nil, fmt.Errorf("level %q: %w", name, err)
		}
		graph.RegisterSignal(e.ID)
	}

	for _, spec := range file.Gates {
		gate := &circuit.Gate{
			ID:        spec.ID,
			Kind:      circuit.GateKind(spec.Kind),
			Pos:       level.GridPos{X: spec.Pos.X, Y: spec.Pos.Y},
			Direction: level.Direction(spec.Direction),
		}
		if spec.Trigger != nil {
			gate.Trigger = &level.GridPos{X: spec.Trigger.X, Y: spec.Trigger.Y}
		}
		if gate.Direction == "" {
			gate.Direction = level.North
		}
		if !gate.Direction.Valid() {
			return nil, fmt.Errorf("level %q: gate %q: unknown direction %q", name, spec.ID, spec.Direction)
		}
		if err := graph.AddGate(gate); err != nil {
			return nil, fmt.Errorf("level %q: %w", name, err)
		}
	}

	for _, spec := range file.Wires {
		src := circuit.GatePin(spec.From)
		if strings.HasPrefix(spec.From, elevatorSourcePrefix) {
			src = circuit.ElevatorPin(strings.TrimPrefix(spec.From, elevatorSourcePrefix))
		}
		if err := graph.AddWire(src, spec.To); err != nil {
			return nil, fmt.Errorf("level %q: wire %s -> %s: %w", name, spec.From, spec.To, err)
		}
	}

	return &engine.LoadedLevel{Level: lvl, Graph: graph}, nil
}

// parseTiles fills the grid from legend-keyed rows. Spaces and unmapped runes
// are empty cells; the legend maps single runes to tile kind names.
func parseTiles(lvl *level.Level, file *levelFile) error {
	legend := make(map[rune]level.TileKind, len(file.Tiles.Legend))
	for key, kindName := range file.Tiles.Legend {
		runes := []rune(key)
		if len(runes) != 1 {
			return fmt.Errorf("tile legend key %q must be a single character", key)
		}
		kind := level.TileKind(kindName)
		if !kind.Valid() {
			return fmt.Errorf("tile legend %q: unknown tile kind %q", key, kindName)
		}
		legend[runes[0]] = kind
	}

	for y, row := range file.Tiles.Rows {
		for x, r := range []rune(row) {
			if r == ' ' {
				continue
			}
			kind, ok := legend[r]
			if !ok {
				return fmt.Errorf("row %d: rune %q not in tile legend", y, r)
			}
			lvl.Tiles.Set(level.GridPos{X: x, Y: y}, kind)
		}
	}
	return nil
}
