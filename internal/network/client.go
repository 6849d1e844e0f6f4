package network

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hourglass-games/timelift/server/internal/domain/level"
	"github.com/hourglass-games/timelift/server/internal/engine"
	"github.com/hourglass-games/timelift/server/internal/platform/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// IntentMsg is an incoming command from the render client. INTENT carries the
// live player's movement for the next tick; RESET restarts the level.
type IntentMsg struct {
	Type   string `json:"type"`             // "INTENT" or "RESET"
	Action string `json:"action,omitempty"` // INTENT only
}

// intentLimiter bounds how many intents a client may issue per second.
// max <= 0 disables the limit.
type intentLimiter struct {
	max         int
	windowStart time.Time
	count       int
}

func (l *intentLimiter) allow(now time.Time) bool {
	if l.max <= 0 {
		return true
	}
	if now.Sub(l.windowStart) >= time.Second {
		l.windowStart = now
		l.count = 0
	}
	l.count++
	return l.count <= l.max
}

// Client holds one WebSocket connection. Hub ref allows unregister.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	intents intentLimiter
}

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, hub.clientSendBuffer),
		intents: intentLimiter{max: hub.maxIntentsPerSec},
	}
}

// Register adds the client to the hub.
func (c *Client) Register() {
	c.hub.register <- c
}

// ReadPump pumps messages from the websocket connection into the engine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket read: " + err.Error())
				metrics.Get().RecordWSError()
			}
			break
		}
		metrics.Get().RecordWSMessage(true)

		var msg IntentMsg
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.logger.Warn("failed to parse client message: " + err.Error())
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg IntentMsg) {
	switch msg.Type {
	case "INTENT":
		if !c.intents.allow(time.Now()) {
			metrics.Get().RecordWSError()
			return
		}
		if err := c.hub.engine.SetIntent(level.Action(msg.Action)); err != nil {
			c.hub.logger.Warn("intent rejected: " + err.Error())
		}
	case "RESET":
		c.hub.engine.ResetLevel()
		c.hub.logger.Event("LEVEL_RESET", engine.PlayerID, "requested by client")
	default:
		c.hub.logger.Warn("unknown client message type: " + msg.Type)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
