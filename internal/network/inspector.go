// Package network - inspector.go
// JSON export of the immutable simulation history: events, archived
// segments and aggregate stats. Read-only; the simulation is never touched.
package network

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hourglass-games/timelift/server/internal/events"
	"github.com/hourglass-games/timelift/server/internal/platform/logger"
	"github.com/hourglass-games/timelift/server/internal/timeline"
)

// SegmentLister enumerates archived traversals for a level. The storage
// layer implements this; nil disables the segments endpoint.
type SegmentLister interface {
	ListSegments(levelName string) ([]timeline.SegmentMeta, error)
}

// InspectorHandler provides the timeline inspection API.
type InspectorHandler struct {
	eventLog *events.EventLog
	segments SegmentLister
	logger   *logger.Logger
}

// NewInspectorHandler creates a new inspector handler. segments may be nil.
func NewInspectorHandler(el *events.EventLog, segments SegmentLister, log *logger.Logger) *InspectorHandler {
	return &InspectorHandler{
		eventLog: el,
		segments: segments,
		logger:   log,
	}
}

// EventsResponse is the API response for the events endpoint.
type EventsResponse struct {
	TotalEvents int               `json:"total_events"`
	FilteredBy  string            `json:"filtered_by,omitempty"`
	GeneratedAt string            `json:"generated_at"`
	Events      []events.SimEvent `json:"events"`
}

// HandleEvents returns the simulation event history.
// GET /api/timeline/events?type=SEGMENT_SEALED&actor=player&since_tick=N
func (ih *InspectorHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ih.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	eventType := r.URL.Query().Get("type")
	actor := r.URL.Query().Get("actor")
	sinceStr := r.URL.Query().Get("since_tick")
	var sinceTick uint64
	if sinceStr != "" {
		sinceTick, _ = strconv.ParseUint(sinceStr, 10, 64)
	}

	filterDesc := ""
	if eventType != "" {
		filterDesc = "type=" + eventType
	}

	var filtered []events.SimEvent
	for _, e := range ih.eventLog.Replay() {
		if eventType != "" && string(e.Type) != eventType {
			continue
		}
		if actor != "" && e.ActorID != actor {
			continue
		}
		if e.Tick < sinceTick {
			continue
		}
		filtered = append(filtered, e)
	}

	response := EventsResponse{
		TotalEvents: len(filtered),
		FilteredBy:  filterDesc,
		GeneratedAt: time.Now().Format(time.RFC3339),
		Events:      filtered,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleSegments returns the archived loop traversals for a level.
// GET /api/timeline/segments?level=lobby
func (ih *InspectorHandler) HandleSegments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ih.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ih.segments == nil {
		ih.jsonError(w, "Segment archive not configured", http.StatusNotImplemented)
		return
	}

	levelName := r.URL.Query().Get("level")
	if levelName == "" {
		ih.jsonError(w, "Missing level", http.StatusBadRequest)
		return
	}

	metas, err := ih.segments.ListSegments(levelName)
	if err != nil {
		ih.logger.Error("segment listing failed: " + err.Error())
		ih.jsonError(w, "Segment listing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"level":        levelName,
		"generated_at": time.Now().Format(time.RFC3339),
		"segments":     metas,
	})
}

// HandleStats returns aggregate statistics over the event history.
// GET /api/timeline/stats
func (ih *InspectorHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ih.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	allEvents := ih.eventLog.Replay()

	stats := map[string]int{
		"total_events":       len(allEvents),
		"segments_sealed":    0,
		"replicas_spawned":   0,
		"replicas_retired":   0,
		"transports_refused": 0,
		"output_changes":     0,
		"circuit_faults":     0,
	}

	for _, e := range allEvents {
		switch e.Type {
		case events.EventTypeSegmentSealed:
			stats["segments_sealed"]++
		case events.EventTypeReplicaSpawned:
			stats["replicas_spawned"]++
		case events.EventTypeReplicaRetired:
			stats["replicas_retired"]++
		case events.EventTypeTransportRefused:
			stats["transports_refused"]++
		case events.EventTypeOutputChanged:
			stats["output_changes"]++
		case events.EventTypeCircuitFault:
			stats["circuit_faults"]++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"generated_at": time.Now().Format(time.RFC3339),
		"stats":        stats,
	})
}

// RegisterRoutes sets up the inspector API routes.
func (ih *InspectorHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/timeline/events", ih.HandleEvents)
	mux.HandleFunc("/api/timeline/segments", ih.HandleSegments)
	mux.HandleFunc("/api/timeline/stats", ih.HandleStats)
}

// jsonError sends an error response.
func (ih *InspectorHandler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
