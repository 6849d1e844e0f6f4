// Package metrics provides observability for the simulation server.
// Counters cover the tick loop, circuit evaluation, timeline recording and
// the WebSocket surface.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers performance metrics.
type Collector struct {
	// Tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTickTime   time.Time

	// Circuit metrics
	EvalCount      int64
	EvalLatencySum int64
	EvalLatencyMax int64
	CircuitFaults  int64

	// Timeline metrics
	SegmentsSealed   int64
	SnapshotsWritten int64
	ReplicasSpawned  int64
	ReplicasRetired  int64

	// Event metrics
	EventsWritten    int64
	EventWriteErrors int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSErrors            int64

	// System
	StartTime time.Time
	mu        sync.RWMutex
}

// Global collector instance
var collector = &Collector{
	StartTime: time.Now(),
}

// Get returns the global collector.
func Get() *Collector {
	return collector
}

// RecordTick records a tick cycle completion.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))

	// Update max (non-atomic but acceptable for metrics)
	if int64(latency) > atomic.LoadInt64(&c.TickLatencyMax) {
		atomic.StoreInt64(&c.TickLatencyMax, int64(latency))
	}

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordEval records one circuit evaluation pass.
func (c *Collector) RecordEval(latency time.Duration) {
	atomic.AddInt64(&c.EvalCount, 1)
	atomic.AddInt64(&c.EvalLatencySum, int64(latency))

	if int64(latency) > atomic.LoadInt64(&c.EvalLatencyMax) {
		atomic.StoreInt64(&c.EvalLatencyMax, int64(latency))
	}
}

// RecordCircuitFault records a combinational cycle report.
func (c *Collector) RecordCircuitFault() {
	atomic.AddInt64(&c.CircuitFaults, 1)
}

// RecordSnapshot records one timeline snapshot append.
func (c *Collector) RecordSnapshot() {
	atomic.AddInt64(&c.SnapshotsWritten, 1)
}

// RecordSegmentSealed records a sealed traversal.
func (c *Collector) RecordSegmentSealed() {
	atomic.AddInt64(&c.SegmentsSealed, 1)
}

// RecordReplica records replica lifecycle changes.
func (c *Collector) RecordReplica(spawned bool) {
	if spawned {
		atomic.AddInt64(&c.ReplicasSpawned, 1)
	} else {
		atomic.AddInt64(&c.ReplicasRetired, 1)
	}
}

// RecordEventWrite records an event write to the database.
func (c *Collector) RecordEventWrite(err error) {
	atomic.AddInt64(&c.EventsWritten, 1)
	if err != nil {
		atomic.AddInt64(&c.EventWriteErrors, 1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	evalCount := atomic.LoadInt64(&c.EvalCount)

	var tickAvg, evalAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}
	if evalCount > 0 {
		evalAvg = float64(atomic.LoadInt64(&c.EvalLatencySum)) / float64(evalCount) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      c.LastTickTime.Format(time.RFC3339),
		},

		"circuit": map[string]interface{}{
			"evaluations":    evalCount,
			"avg_latency_ms": evalAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.EvalLatencyMax)) / 1e6,
			"faults":         atomic.LoadInt64(&c.CircuitFaults),
		},

		"timeline": map[string]interface{}{
			"snapshots_written": atomic.LoadInt64(&c.SnapshotsWritten),
			"segments_sealed":   atomic.LoadInt64(&c.SegmentsSealed),
			"replicas_spawned":  atomic.LoadInt64(&c.ReplicasSpawned),
			"replicas_retired":  atomic.LoadInt64(&c.ReplicasRetired),
		},

		"events": map[string]interface{}{
			"written": atomic.LoadInt64(&c.EventsWritten),
			"errors":  atomic.LoadInt64(&c.EventWriteErrors),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")

		snapshot := collector.Snapshot()
		json.NewEncoder(w).Encode(snapshot)
	}
}

// PrometheusHandler returns metrics in Prometheus format.
func PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		c := collector

		fmt.Fprintf(w, "# HELP timelift_tick_count Total tick cycles\n")
		fmt.Fprintf(w, "# TYPE timelift_tick_count counter\n")
		fmt.Fprintf(w, "timelift_tick_count %d\n\n", atomic.LoadInt64(&c.TickCount))

		fmt.Fprintf(w, "# HELP timelift_tick_latency_max_ms Maximum tick latency\n")
		fmt.Fprintf(w, "# TYPE timelift_tick_latency_max_ms gauge\n")
		fmt.Fprintf(w, "timelift_tick_latency_max_ms %.2f\n\n", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)

		fmt.Fprintf(w, "# HELP timelift_circuit_faults Combinational cycle reports\n")
		fmt.Fprintf(w, "# TYPE timelift_circuit_faults counter\n")
		fmt.Fprintf(w, "timelift_circuit_faults %d\n\n", atomic.LoadInt64(&c.CircuitFaults))

		fmt.Fprintf(w, "# HELP timelift_segments_sealed Sealed timeline segments\n")
		fmt.Fprintf(w, "# TYPE timelift_segments_sealed counter\n")
		fmt.Fprintf(w, "timelift_segments_sealed %d\n\n", atomic.LoadInt64(&c.SegmentsSealed))

		fmt.Fprintf(w, "# HELP timelift_replicas_spawned Replicas spawned\n")
		fmt.Fprintf(w, "# TYPE timelift_replicas_spawned counter\n")
		fmt.Fprintf(w, "timelift_replicas_spawned %d\n\n", atomic.LoadInt64(&c.ReplicasSpawned))

		fmt.Fprintf(w, "# HELP timelift_events_written Total events written\n")
		fmt.Fprintf(w, "# TYPE timelift_events_written counter\n")
		fmt.Fprintf(w, "timelift_events_written %d\n\n", atomic.LoadInt64(&c.EventsWritten))

		fmt.Fprintf(w, "# HELP timelift_ws_connections Active WebSocket connections\n")
		fmt.Fprintf(w, "# TYPE timelift_ws_connections gauge\n")
		fmt.Fprintf(w, "timelift_ws_connections %d\n\n", atomic.LoadInt64(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP timelift_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE timelift_ws_messages_total counter\n")
		fmt.Fprintf(w, "timelift_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "timelift_ws_messages_total{direction=\"out\"} %d\n", atomic.LoadInt64(&c.WSMessagesOut))
	}
}
