package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/raycs13/RealCasino/internal/metrics"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Msg is a message sent to clients.
type Msg struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans game events out to every connected client and keeps a session
// registry (user id -> connections) for per-user delivery. Delivery is
// best-effort: a client that cannot drain its send buffer gets dropped
// rather than stalling the engine. Per-connection order follows publish
// order because sends happen under the hub mutex into FIFO channels.
type Hub struct {
	log *logrus.Entry

	mu    sync.Mutex
	conns map[*conn]bool
	users map[string]map[*conn]bool // userID -> connections
}

type conn struct {
	ws     *websocket.Conn
	send   chan []byte
	hub    *Hub
	userID string
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		log:   log.WithField("component", "ws"),
		conns: make(map[*conn]bool),
		users: make(map[string]map[*conn]bool),
	}
}

// Broadcast sends a message to every connected client.
func (h *Hub) Broadcast(event string, data any) {
	b, err := json.Marshal(Msg{Type: event, Data: data})
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		c.trySend(b)
	}
}

// SendToUser sends a message to every connection of one user.
func (h *Hub) SendToUser(userID, event string, data any) {
	b, err := json.Marshal(Msg{Type: event, Data: data})
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.users[userID] {
		c.trySend(b)
	}
}

func (c *conn) trySend(b []byte) {
	select {
	case c.send <- b:
	default:
		// slow client, drop the message
	}
}

// HandleWS upgrades an authenticated request. The caller resolves the user
// id before handing the request over.
func (h *Hub) HandleWS(userID string, w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("upgrade failed")
		return
	}
	c := &conn{
		ws:     wsConn,
		send:   make(chan []byte, 64),
		hub:    h,
		userID: userID,
	}
	h.mu.Lock()
	h.conns[c] = true
	set, ok := h.users[userID]
	if !ok {
		set = make(map[*conn]bool)
		h.users[userID] = set
	}
	set[c] = true
	h.mu.Unlock()
	metrics.WSConnect()

	go c.writePump()
	go c.readPump()
}

func (c *conn) readPump() {
	defer func() {
		c.hub.removeConn(c)
		c.ws.Close()
		metrics.WSDisconnect()
	}()
	for {
		// Clients only listen; reads just detect disconnects.
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *conn) writePump() {
	defer c.ws.Close()
	for msg := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (h *Hub) removeConn(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.conns[c] {
		return
	}
	delete(h.conns, c)
	if set, ok := h.users[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.userID)
		}
	}
	close(c.send)
}
