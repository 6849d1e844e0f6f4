// Package events provides the append-only log of simulation events.
// Everything observable about a run - ticks, transports, circuit faults,
// replica lifecycle - lands here; the network hub and the storage layer both
// consume the same immutable history.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a simulation event.
type EventType string

const (
	EventTypeTick             EventType = "TICK"
	EventTypeLevelLoaded      EventType = "LEVEL_LOADED"
	EventTypeLevelReset       EventType = "LEVEL_RESET"
	EventTypeOutputChanged    EventType = "OUTPUT_CHANGED"
	EventTypeReplicaSpawned   EventType = "REPLICA_SPAWNED"
	EventTypeReplicaRetired   EventType = "REPLICA_RETIRED"
	EventTypeSegmentSealed    EventType = "SEGMENT_SEALED"
	EventTypeTransportRefused EventType = "TRANSPORT_REFUSED"
	EventTypeCircuitFault     EventType = "CIRCUIT_FAULT"
)

// SimEvent represents an immutable record of something that happened during
// simulation.
type SimEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	ActorID   string      `json:"actor_id"` // Who performed or suffered the action
	LevelName string      `json:"level"`    // Level the event belongs to
	Tick      uint64      `json:"tick"`     // Engine tick at emission
	Payload   interface{} `json:"payload"`  // Event-specific data
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event SimEvent) error
}

// EventLog is the in-memory append-only log of simulation events.
type EventLog struct {
	mu        sync.RWMutex
	events    []SimEvent
	persister EventPersister
}

// NewEventLog creates a new event log with an optional persister.
func NewEventLog(persister EventPersister) *EventLog {
	return &EventLog{
		events:    make([]SimEvent, 0),
		persister: persister,
	}
}

// Append adds a new event to the log. Events are immutable once appended.
func (el *EventLog) Append(event SimEvent) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.events = append(el.events, event)

	if el.persister != nil {
		// Write through to persistent storage off the tick path.
		go func(e SimEvent) {
			_ = el.persister.Append(e)
		}(event)
	}
}

// GetByActor returns all events involving a specific actor.
func (el *EventLog) GetByActor(actorID string) []SimEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []SimEvent
	for _, e := range el.events {
		if e.ActorID == actorID {
			result = append(result, e)
		}
	}
	return result
}

// GetByType returns all events of one category.
func (el *EventLog) GetByType(t EventType) []SimEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []SimEvent
	for _, e := range el.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns the full history of events for state reconstruction.
func (el *EventLog) Replay() []SimEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.events
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
