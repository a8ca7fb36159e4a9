package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MisterZedd/SourceStalker/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	clientBuffer = 16
	writeWait    = 10 * time.Second
)

// Event is the JSON frame pushed to websocket clients.
type Event struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// Hub broadcasts notifications to connected websocket clients. Each client
// has its own writer goroutine; a client whose buffer is full misses the
// event instead of blocking the others.
type Hub struct {
	upgrader  websocket.Upgrader
	clients   map[*hubClient]struct{}
	clientsMu sync.RWMutex
	logger    zerolog.Logger
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *hubClient) close() {
	c.once.Do(func() { close(c.send) })
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*hubClient]struct{}),
		logger:  logger.With().Str("component", "ws_hub").Logger(),
	}
}

func (h *Hub) Name() string { return "websocket" }

func (h *Hub) Send(_ context.Context, n domain.Notification) error {
	frame, err := json.Marshal(NotificationEvent(n))
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	h.broadcast(frame)
	return nil
}

func (h *Hub) broadcast(frame []byte) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.logger.Warn().Str("remote_addr", c.conn.RemoteAddr().String()).Msg("client buffer full, dropping event")
		}
	}
}

// enqueue sends to a single client that is still registered.
func (h *Hub) enqueue(c *hubClient, frame []byte) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the client until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &hubClient{conn: conn, send: make(chan []byte, clientBuffer)}
	h.clientsMu.Lock()
	h.clients[c] = struct{}{}
	h.clientsMu.Unlock()
	h.logger.Info().Int("clients", h.ClientCount()).Msg("client connected")

	welcome, _ := json.Marshal(Event{
		Type:      "tracker:connected",
		Data:      map[string]any{},
		Timestamp: time.Now(),
	})
	h.enqueue(c, welcome)

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) readLoop(c *hubClient) {
	defer func() {
		h.remove(c)
		h.logger.Info().Int("clients", h.ClientCount()).Msg("client disconnected")
	}()

	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		if msg.Type == "ping" {
			pong, _ := json.Marshal(Event{Type: "pong", Data: map[string]any{}, Timestamp: time.Now()})
			h.enqueue(c, pong)
		}
	}
}

func (h *Hub) writeLoop(c *hubClient) {
	defer c.conn.Close()
	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			h.logger.Debug().Err(err).Msg("websocket write failed")
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

func (h *Hub) remove(c *hubClient) {
	h.clientsMu.Lock()
	delete(h.clients, c)
	h.clientsMu.Unlock()
	c.close()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.clientsMu.Lock()
	clients := h.clients
	h.clients = make(map[*hubClient]struct{})
	h.clientsMu.Unlock()

	for c := range clients {
		c.close()
	}
}

// NotificationEvent converts n to its websocket frame.
func NotificationEvent(n domain.Notification) Event {
	data := map[string]any{
		"queue_type": n.QueueType,
	}
	eventType := "game:" + string(n.Kind)

	switch n.Kind {
	case domain.NotificationCompleted:
		data["match_id"] = n.MatchID
		data["win"] = n.Win
		data["kills"] = n.Kills
		data["deaths"] = n.Deaths
		data["assists"] = n.Assists
		data["champion_id"] = n.ChampionID
		if n.HasLPDelta {
			data["lp_delta"] = n.LPDelta
		}
	case domain.NotificationEntered:
		if n.Snapshot != nil {
			data["game_id"] = n.Snapshot.GameID
			data["started_at"] = n.Snapshot.StartedAt
			data["champion_id"] = n.ChampionID
		}
	}

	ts := n.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return Event{Type: eventType, Data: data, Timestamp: ts}
}
