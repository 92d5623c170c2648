package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"roamradio/pkg/model"
	"roamradio/pkg/playback"
)

const (
	wsWriteWait  = 10 * time.Second
	wsSendBuffer = 16
)

// WSMessage is the envelope for every websocket frame, both directions.
type WSMessage struct {
	Type    string            `json:"type"`
	Command string            `json:"command,omitempty"`
	Now     *model.NowPlaying `json:"now_playing,omitempty"`
	Status  *PlaybackStatus   `json:"status,omitempty"`
}

// Hub pushes now-playing metadata and playback status to connected
// websocket clients and routes their transport commands back into the
// engine. It is the production nowplaying.Surface.
type Hub struct {
	upgrader websocket.Upgrader
	command  func(cmd string) error

	mu      sync.Mutex
	clients map[string]*wsClient
	lastNow *model.NowPlaying
	closed  bool
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan WSMessage
}

// NewHub creates a Hub. The command callback receives remote transport
// commands ("play", "pause", "stop").
func NewHub(command func(cmd string) error) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The server binds to localhost; remote origins cannot reach it.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		command: command,
		clients: make(map[string]*wsClient),
	}
}

// HandleWS handles GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WS: upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan WSMessage, wsSendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c.id] = c
	last := h.lastNow
	h.mu.Unlock()

	slog.Debug("WS: client connected", "id", c.id)

	// New clients immediately see the current metadata.
	if last != nil {
		h.trySend(c, WSMessage{Type: "now_playing", Now: last})
	}

	go h.writePump(c)
	go h.readPump(c)
}

// SetNowPlaying broadcasts metadata to all clients.
func (h *Hub) SetNowPlaying(np model.NowPlaying) {
	h.mu.Lock()
	h.lastNow = &np
	h.mu.Unlock()
	h.broadcast(WSMessage{Type: "now_playing", Now: &np})
}

// ClearNowPlaying broadcasts a metadata clear to all clients.
func (h *Hub) ClearNowPlaying() {
	h.mu.Lock()
	h.lastNow = nil
	h.mu.Unlock()
	h.broadcast(WSMessage{Type: "now_playing_cleared"})
}

// PublishStatus broadcasts a playback status change. Wire it up with
// engine.Subscribe.
func (h *Hub) PublishStatus(st playback.Status) {
	h.broadcast(WSMessage{Type: "status", Status: &PlaybackStatus{
		State:     string(st.State),
		Station:   st.Station,
		Buffering: st.Buffering,
		Error:     st.Error,
	}})
}

// Close disconnects all clients. The hub accepts no new connections after.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}

func (h *Hub) broadcast(msg WSMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Slow consumer; drop the client rather than block the engine.
			slog.Warn("WS: dropping slow client", "id", id)
			close(c.send)
			delete(h.clients, id)
		}
	}
}

// trySend queues a message for one client, skipping clients that were
// already dropped (their send channel is closed).
func (h *Hub) trySend(c *wsClient, msg WSMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		close(c.send)
		delete(h.clients, c.id)
	}
}

func (h *Hub) writePump(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			slog.Debug("WS: write failed", "id", c.id, "error", err)
			return
		}
	}
	// Channel closed: say goodbye politely.
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) readPump(c *wsClient) {
	defer h.drop(c)
	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("WS: read failed", "id", c.id, "error", err)
			}
			return
		}
		if msg.Type != "transport" {
			continue
		}
		if err := h.command(msg.Command); err != nil {
			h.trySend(c, WSMessage{Type: "error", Command: msg.Command})
		}
	}
}
