package network_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hourglass-games/timelift/server/internal/domain/level"
	"github.com/hourglass-games/timelift/server/internal/engine"
)

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

func asValue(t *testing.T, v any) any {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestIntentSchema_ValidatesSamples(t *testing.T) {
	s := compileSchema(t, "intent.schema.json")

	valid := []string{
		`{"type":"INTENT","action":"MOVE_N"}`,
		`{"type":"INTENT","action":"WAIT"}`,
		`{"type":"RESET"}`,
	}
	for _, raw := range valid {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if err := s.Validate(v); err != nil {
			t.Errorf("expected %s to validate, got: %v", raw, err)
		}
	}

	invalid := []string{
		`{"type":"INTENT"}`,
		`{"type":"INTENT","action":"MOVE_UP"}`,
		`{"type":"JUMP"}`,
		`{"action":"WAIT"}`,
	}
	for _, raw := range invalid {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if err := s.Validate(v); err == nil {
			t.Errorf("expected %s to fail validation", raw)
		}
	}
}

func TestFrameSchema_ValidatesEngineFrame(t *testing.T) {
	s := compileSchema(t, "frame.schema.json")

	frame := engine.Frame{
		Type:  "FRAME",
		Tick:  42,
		Level: "arena",
		Actors: []engine.ActorState{
			{ID: engine.PlayerID, Live: true, Pose: level.Pose{Pos: level.GridPos{X: 1, Y: 2}, Facing: level.East}},
			{ID: "replica-1", Live: false, Pose: level.Pose{Pos: level.GridPos{X: 3, Y: 2}, Facing: level.West}},
		},
		Outputs:  map[string]bool{"door": true},
		Doors:    map[string]bool{"front": true, "out": false},
		Warnings: []string{"transport refused: dangling exit"},
	}
	if err := s.Validate(asValue(t, frame)); err != nil {
		t.Errorf("engine frame failed schema validation: %v", err)
	}

	// Warnings are omitted from the wire form when empty.
	frame.Warnings = nil
	if err := s.Validate(asValue(t, frame)); err != nil {
		t.Errorf("frame without warnings failed schema validation: %v", err)
	}
}
