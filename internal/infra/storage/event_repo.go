// Package storage provides the persistence layer for the simulation server:
// the durable event journal, the sealed segment archive and the level blob
// mirror, all on SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hourglass-games/timelift/server/internal/events"
	"github.com/hourglass-games/timelift/server/internal/platform/metrics"
)

// EventRepository persists simulation events to SQLite. It implements
// events.EventPersister so the in-memory log writes through to disk.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates the event repository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append adds a new event to the immutable journal.
func (r *EventRepository) Append(event events.SimEvent) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		metrics.Get().RecordEventWrite(err)
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO events (id, timestamp, event_type, actor_id, level_name, tick, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		event.ID, event.Timestamp, string(event.Type), event.ActorID,
		event.LevelName, event.Tick, string(payloadBytes),
	)
	metrics.Get().RecordEventWrite(err)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *EventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]events.SimEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.SimEvent
	for rows.Next() {
		var e events.SimEvent
		var eventType, payloadStr string
		err := rows.Scan(&e.ID, &e.Timestamp, &eventType, &e.ActorID, &e.LevelName, &e.Tick, &payloadStr)
		if err != nil {
			return nil, err
		}
		e.Type = events.EventType(eventType)
		if err := json.Unmarshal([]byte(payloadStr), &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetByLevel retrieves all events recorded for a level, oldest first.
func (r *EventRepository) GetByLevel(ctx context.Context, levelName string) ([]events.SimEvent, error) {
	query := `SELECT id, timestamp, event_type, actor_id, level_name, tick, payload FROM events WHERE level_name = ? ORDER BY tick ASC, timestamp ASC`
	return r.getMany(ctx, query, levelName)
}

// GetByActor retrieves all events performed by or affecting an actor.
func (r *EventRepository) GetByActor(ctx context.Context, actorID string) ([]events.SimEvent, error) {
	query := `SELECT id, timestamp, event_type, actor_id, level_name, tick, payload FROM events WHERE actor_id = ? ORDER BY tick ASC, timestamp ASC`
	return r.getMany(ctx, query, actorID)
}

// GetByType retrieves all events of one category.
func (r *EventRepository) GetByType(ctx context.Context, eventType events.EventType) ([]events.SimEvent, error) {
	query := `SELECT id, timestamp, event_type, actor_id, level_name, tick, payload FROM events WHERE event_type = ? ORDER BY tick ASC, timestamp ASC`
	return r.getMany(ctx, query, string(eventType))
}

// GetSinceTick retrieves events from a tick onward for incremental replay.
func (r *EventRepository) GetSinceTick(ctx context.Context, levelName string, tick uint64) ([]events.SimEvent, error) {
	query := `SELECT id, timestamp, event_type, actor_id, level_name, tick, payload FROM events WHERE level_name = ? AND tick >= ? ORDER BY tick ASC, timestamp ASC`
	return r.getMany(ctx, query, levelName, tick)
}
