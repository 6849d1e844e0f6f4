package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/hourglass-games/timelift/server/internal/domain/level"
	"github.com/hourglass-games/timelift/server/internal/events"
	"github.com/hourglass-games/timelift/server/internal/timeline"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitSQLite(filepath.Join(t.TempDir(), "timelift.db"))
	if err != nil {
		t.Fatalf("InitSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sealedSegment(t *testing.T, loopID string, ticks int) *timeline.Segment {
	t.Helper()
	rec := timeline.NewRecorder()
	if _, err := rec.Begin(loopID, 10); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < ticks; i++ {
		rec.Record(timeline.Snapshot{
			Pos:    level.GridPos{X: i, Y: 0},
			Facing: level.East,
			Action: level.ActionMoveEast,
		})
	}
	seg, err := rec.Seal()
	if err != nil {
		t.Fatal(err)
	}
	return seg
}

func TestEventRepository_AppendAndQuery(t *testing.T) {
	repo := NewEventRepository(openTestDB(t))
	ctx := context.Background()

	evts := []events.SimEvent{
		{ID: "e1", Timestamp: time.Now(), Type: events.EventTypeLevelLoaded, ActorID: "player", LevelName: "arena", Tick: 0},
		{ID: "e2", Timestamp: time.Now(), Type: events.EventTypeReplicaSpawned, ActorID: "replica-1", LevelName: "arena", Tick: 8,
			Payload: map[string]interface{}{"loop": "lift"}},
		{ID: "e3", Timestamp: time.Now(), Type: events.EventTypeReplicaRetired, ActorID: "replica-1", LevelName: "arena", Tick: 12},
		{ID: "e4", Timestamp: time.Now(), Type: events.EventTypeLevelLoaded, ActorID: "player", LevelName: "lobby", Tick: 20},
	}
	for _, e := range evts {
		if err := repo.Append(e); err != nil {
			t.Fatalf("Append(%s): %v", e.ID, err)
		}
	}

	byLevel, err := repo.GetByLevel(ctx, "arena")
	if err != nil {
		t.Fatalf("GetByLevel: %v", err)
	}
	if len(byLevel) != 3 {
		t.Errorf("GetByLevel: got %d events, want 3", len(byLevel))
	}

	byActor, err := repo.GetByActor(ctx, "replica-1")
	if err != nil {
		t.Fatalf("GetByActor: %v", err)
	}
	if len(byActor) != 2 {
		t.Errorf("GetByActor: got %d events, want 2", len(byActor))
	}

	byType, err := repo.GetByType(ctx, events.EventTypeReplicaSpawned)
	if err != nil {
		t.Fatalf("GetByType: %v", err)
	}
	if len(byType) != 1 {
		t.Fatalf("GetByType: got %d events, want 1", len(byType))
	}
	payload, ok := byType[0].Payload.(map[string]interface{})
	if !ok || payload["loop"] != "lift" {
		t.Errorf("payload roundtrip: got %+v", byType[0].Payload)
	}

	since, err := repo.GetSinceTick(ctx, "arena", 8)
	if err != nil {
		t.Fatalf("GetSinceTick: %v", err)
	}
	if len(since) != 2 {
		t.Errorf("GetSinceTick: got %d events, want 2", len(since))
	}
}

func TestEventRepository_RejectsDuplicateIDs(t *testing.T) {
	repo := NewEventRepository(openTestDB(t))
	e := events.SimEvent{ID: "dup", Timestamp: time.Now(), Type: events.EventTypeTick, ActorID: "player", LevelName: "arena"}
	if err := repo.Append(e); err != nil {
		t.Fatalf("first Append: %v", err)
	}
	if err := repo.Append(e); err == nil {
		t.Error("the journal is immutable; re-appending an id should fail")
	}
}

func TestSegmentRepository_RoundTrip(t *testing.T) {
	repo := NewSegmentRepository(openTestDB(t))

	older := sealedSegment(t, "lift", 3)
	newer := sealedSegment(t, "lift", 5)
	if err := repo.SaveSegment("arena", older); err != nil {
		t.Fatalf("SaveSegment: %v", err)
	}
	if err := repo.SaveSegment("arena", newer); err != nil {
		t.Fatalf("SaveSegment: %v", err)
	}
	if err := repo.SaveSegment("lobby", sealedSegment(t, "shaft", 2)); err != nil {
		t.Fatalf("SaveSegment: %v", err)
	}

	segs, err := repo.LoadSegments("arena")
	if err != nil {
		t.Fatalf("LoadSegments: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("LoadSegments: got %d segments, want 2", len(segs))
	}
	// Oldest first, so the engine's newest-wins registration holds.
	if segs[0].Len() != 3 || segs[1].Len() != 5 {
		t.Errorf("ordering: got lengths %d, %d, want 3, 5", segs[0].Len(), segs[1].Len())
	}
	for i := 0; i < newer.Len(); i++ {
		want, _ := newer.At(i)
		got, _ := segs[1].At(i)
		if got != want {
			t.Fatalf("snapshot %d: got %+v, want %+v", i, got, want)
		}
	}

	metas, err := repo.ListSegments("arena")
	if err != nil {
		t.Fatalf("ListSegments: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("ListSegments: got %d entries, want 2", len(metas))
	}
	if metas[1].LoopID != "lift" || metas[1].Length != 5 || metas[1].StartTick != 10 || metas[1].Level != "arena" {
		t.Errorf("meta: got %+v", metas[1])
	}

	if err := repo.DeleteSegments("arena"); err != nil {
		t.Fatalf("DeleteSegments: %v", err)
	}
	segs, err = repo.LoadSegments("arena")
	if err != nil {
		t.Fatalf("LoadSegments after delete: %v", err)
	}
	if len(segs) != 0 {
		t.Errorf("segments after delete: got %d, want 0", len(segs))
	}
	// Other levels are untouched.
	if segs, err = repo.LoadSegments("lobby"); err != nil || len(segs) != 1 {
		t.Errorf("lobby segments: got %d (err %v), want 1", len(segs), err)
	}
}

func TestLevelRepository_UpsertAndLoad(t *testing.T) {
	repo := NewLevelRepository(openTestDB(t))

	if data, err := repo.LoadLevel("ghost"); err != nil || data != nil {
		t.Errorf("unmirrored level: got %q, %v; want nil, nil", data, err)
	}

	if err := repo.SaveLevel("arena", []byte("v1")); err != nil {
		t.Fatalf("SaveLevel: %v", err)
	}
	if err := repo.SaveLevel("arena", []byte("v2")); err != nil {
		t.Fatalf("SaveLevel upsert: %v", err)
	}
	if err := repo.SaveLevel("lobby", []byte("lobby")); err != nil {
		t.Fatalf("SaveLevel: %v", err)
	}

	data, err := repo.LoadLevel("arena")
	if err != nil {
		t.Fatalf("LoadLevel: %v", err)
	}
	if string(data) != "v2" {
		t.Errorf("upsert: got %q, want the newer source", data)
	}

	names, err := repo.ListLevels()
	if err != nil {
		t.Fatalf("ListLevels: %v", err)
	}
	if len(names) != 2 || names[0] != "arena" || names[1] != "lobby" {
		t.Errorf("ListLevels: got %v", names)
	}
}
