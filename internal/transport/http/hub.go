package http

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type outboundMessage struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// client is one authenticated websocket connection. joinCode and isOwner are
// only touched by the connection's own read loop.
type client struct {
	id    string
	email string
	conn  *websocket.Conn
	send  chan outboundMessage
	done  chan struct{}
	once  sync.Once

	joinCode string
	isOwner  bool
}

func newClient(conn *websocket.Conn, email string) *client {
	return &client{
		id:    uuid.NewString(),
		email: email,
		conn:  conn,
		send:  make(chan outboundMessage, 16),
		done:  make(chan struct{}),
	}
}

// writePump is the single writer for the connection; gorilla connections do
// not allow concurrent writes.
func (c *client) writePump() {
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.shutdown()
				return
			}
		case <-c.done:
			// Drain queued messages so a final broadcast still reaches the
			// peer before the close frame.
			for {
				select {
				case msg := <-c.send:
					_ = c.conn.WriteJSON(msg)
					continue
				default:
				}
				break
			}
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = c.conn.Close()
			return
		}
	}
}

// shutdown closes the connection exactly once; the read loop unblocks when
// the underlying socket closes.
func (c *client) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// push enqueues a message, dropping it if the client stopped draining.
func (c *client) push(msg outboundMessage) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
	}
}

// Hub is the room registry: one room per join code, members addressable
// individually by connection id for unicasts.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
	byID  map[string]*client
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*client]struct{}),
		byID:  make(map[string]*client),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byID[c.id] = c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byID, c.id)
	if c.joinCode != "" {
		if room, ok := h.rooms[c.joinCode]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, c.joinCode)
			}
		}
	}
}

func (h *Hub) joinRoom(joinCode string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[joinCode] == nil {
		h.rooms[joinCode] = make(map[*client]struct{})
	}
	h.rooms[joinCode][c] = struct{}{}
}

// broadcast delivers msg to every room member except skip.
func (h *Hub) broadcast(joinCode string, msg outboundMessage, skip *client) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for member := range h.rooms[joinCode] {
		if member != skip {
			member.push(msg)
		}
	}
}

// unicast delivers msg to one connection handle; reports whether it resolved.
func (h *Hub) unicast(connID string, msg outboundMessage) bool {
	h.mu.RLock()
	c, ok := h.byID[connID]
	h.mu.RUnlock()
	if ok {
		c.push(msg)
	}
	return ok
}

// closeRoom force-disconnects every member except keep and drops the room.
func (h *Hub) closeRoom(joinCode string, keep *client) {
	h.mu.Lock()
	room := h.rooms[joinCode]
	delete(h.rooms, joinCode)
	members := make([]*client, 0, len(room))
	for member := range room {
		members = append(members, member)
	}
	h.mu.Unlock()

	for _, member := range members {
		if member != keep {
			member.shutdown()
		}
	}
}
