// Package network exposes the simulation over WebSocket: per-tick frames out,
// player intents in, plus the HTTP inspector API over the event history.
package network

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hourglass-games/timelift/server/internal/engine"
	"github.com/hourglass-games/timelift/server/internal/platform/logger"
	"github.com/hourglass-games/timelift/server/internal/platform/metrics"
)

// HubConfig carries the hub's tunables, taken from the server config.
// Zero values fall back to the production defaults.
type HubConfig struct {
	BroadcastBuffer     int
	ClientSendBuffer    int
	MaxClients          int
	MaxIntentsPerSecond int
}

// Hub maintains the set of active clients and broadcasts frames to them.
type Hub struct {
	engine *engine.Engine

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex
	logger     *logger.Logger

	clientSendBuffer int
	maxClients       int
	maxIntentsPerSec int
}

// NewHub initializes a new WebSocket Hub bound to the engine.
func NewHub(eng *engine.Engine, log *logger.Logger, cfg HubConfig) *Hub {
	if cfg.BroadcastBuffer <= 0 {
		cfg.BroadcastBuffer = 256
	}
	if cfg.ClientSendBuffer <= 0 {
		cfg.ClientSendBuffer = 64
	}
	return &Hub{
		engine:     eng,
		broadcast:  make(chan []byte, cfg.BroadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     log,

		clientSendBuffer: cfg.ClientSendBuffer,
		maxClients:       cfg.MaxClients,
		maxIntentsPerSec: cfg.MaxIntentsPerSecond,
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.Get().RecordWSConnection(1)
			h.logger.Info("WebSocket client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.Get().RecordWSConnection(-1)
				h.logger.Info("WebSocket client disconnected")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					metrics.Get().RecordWSMessage(false)
				default:
					// Slow consumer, drop it.
					close(client.send)
					delete(h.clients, client)
					metrics.Get().RecordWSError()
					metrics.Get().RecordWSConnection(-1)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastFrame serializes a frame and queues it for every client. Frames
// arrive at tick rate; when the hub loop lags, the newest frame wins and the
// stale one is dropped.
func (h *Hub) BroadcastFrame(f engine.Frame) {
	payload, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("failed to serialize frame: " + err.Error())
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		metrics.Get().RecordWSError()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The render client may be served from anywhere during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWs upgrades an HTTP request to a WebSocket client connection.
// Connections over the client cap are turned away before the upgrade.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	if h.maxClients > 0 && h.ClientCount() >= h.maxClients {
		metrics.Get().RecordWSError()
		http.Error(w, "client limit reached", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed: " + err.Error())
		return
	}
	client := NewClient(h, conn)
	client.Register()

	go client.WritePump()
	go client.ReadPump()
}
