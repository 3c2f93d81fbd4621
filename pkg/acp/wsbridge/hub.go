// Package wsbridge fans Update Router / Tool-Call Registry events out to
// WebSocket-connected observers (a browser dev tool, a dashboard), keyed
// by session id. The bridge never feeds anything back into the ACP
// session: a slow or disconnected browser client only drops its own
// messages, never blocks the agent connection.
//
// Grounded on internal/orchestrator/streaming/hub.go's
// register/unregister/broadcast channel-driven Hub, generalized from
// its task-id keying to session-id keying, and pkg/websocket/handler.go's
// Message envelope shape.
package wsbridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brindlewood/acpcore/pkg/acp/internal/corelog"
)

// Message is the envelope written to every subscribed client.
type Message struct {
	SessionID string          `json:"sessionId"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client wraps one upgraded WebSocket connection.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	sessions map[string]bool
}

// NewClient wraps an already-upgraded *websocket.Conn.
func NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{id: id, conn: conn, send: make(chan []byte, 256), sessions: make(map[string]bool)}
}

// WritePump drains c.send to the socket until it closes or ctx ends.
// Run this in its own goroutine per connection.
func (c *Client) WritePump(ctx context.Context) {
	defer c.conn.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// broadcastMessage is the payload carried on Hub's internal broadcast
// channel.
type broadcastMessage struct {
	sessionID string
	msg       Message
}

// Hub fans out broadcast messages to every client subscribed to the
// matching session, the same register/unregister/broadcast channel
// pattern as the teacher's streaming Hub.
type Hub struct {
	clients        map[*Client]bool
	sessionClients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMessage
	subscribe  chan subscription

	mu  sync.RWMutex
	log *corelog.Logger
}

type subscription struct {
	client    *Client
	sessionID string
	subscribe bool
}

// NewHub constructs an idle Hub; call Run to start its processing loop.
func NewHub(log *corelog.Logger) *Hub {
	if log == nil {
		log = corelog.Default()
	}
	return &Hub{
		clients:        make(map[*Client]bool),
		sessionClients: make(map[string]map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan broadcastMessage, 256),
		subscribe:      make(chan subscription),
		log:            log.WithComponent("wsbridge"),
	}
}

// Run drives the Hub's event loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*Client]bool)
			h.sessionClients = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				for sid := range c.sessions {
					h.removeFromSession(sid, c)
				}
			}
			h.mu.Unlock()

		case sub := <-h.subscribe:
			h.mu.Lock()
			if sub.subscribe {
				if h.sessionClients[sub.sessionID] == nil {
					h.sessionClients[sub.sessionID] = make(map[*Client]bool)
				}
				h.sessionClients[sub.sessionID][sub.client] = true
				sub.client.mu.Lock()
				sub.client.sessions[sub.sessionID] = true
				sub.client.mu.Unlock()
			} else {
				h.removeFromSession(sub.sessionID, sub.client)
			}
			h.mu.Unlock()

		case bm := <-h.broadcast:
			h.mu.RLock()
			recipients := h.sessionClients[bm.sessionID]
			h.mu.RUnlock()
			if len(recipients) == 0 {
				continue
			}
			data, err := json.Marshal(bm.msg)
			if err != nil {
				h.log.Warn("failed to marshal bridge message", corelog.Field("error", err.Error()))
				continue
			}
			for c := range recipients {
				select {
				case c.send <- data:
				default:
					h.log.Warn("client send buffer full, dropping", corelog.Field("client_id", c.id))
				}
			}
		}
	}
}

func (h *Hub) removeFromSession(sessionID string, c *Client) {
	if clients, ok := h.sessionClients[sessionID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.sessionClients, sessionID)
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) { h.register <- c }

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// Subscribe attaches a client to a session's broadcast stream.
func (h *Hub) Subscribe(c *Client, sessionID string) {
	h.subscribe <- subscription{client: c, sessionID: sessionID, subscribe: true}
}

// Unsubscribe detaches a client from a session's broadcast stream.
func (h *Hub) Unsubscribe(c *Client, sessionID string) {
	h.subscribe <- subscription{client: c, sessionID: sessionID, subscribe: false}
}

// Broadcast fans out a kind/payload pair to every client subscribed to
// sessionID. Intended to be wired to prompt.Router/toolcall.Registry
// listeners.
func (h *Hub) Broadcast(sessionID, kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Warn("failed to marshal broadcast payload", corelog.Field("kind", kind), corelog.Field("error", err.Error()))
		return
	}
	h.broadcast <- broadcastMessage{sessionID: sessionID, msg: Message{SessionID: sessionID, Kind: kind, Payload: data, Timestamp: time.Now()}}
}

// ClientCount returns the number of currently registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SessionSubscriberCount returns how many clients are subscribed to
// sessionID.
func (h *Hub) SessionSubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessionClients[sessionID])
}
