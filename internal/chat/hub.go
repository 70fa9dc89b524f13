package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one WebSocket connection joined to a room.  gorilla connections
// allow a single concurrent writer, so writes go through mu.
type Client struct {
	Room string
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewClient binds conn to room.  It is not joined until Hub.Join.
func NewClient(room string, conn *websocket.Conn) *Client {
	return &Client{Room: room, conn: conn}
}

func (c *Client) write(messageType int, data []byte, wait time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if wait > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wait))
	}
	return c.conn.WriteMessage(messageType, data)
}

// Hub tracks the connections of every active room.
type Hub struct {
	mu        sync.RWMutex
	rooms     map[string]map[*Client]struct{}
	writeWait time.Duration
}

// NewHub creates an empty hub.  writeWait bounds each broadcast write; zero
// means no deadline.
func NewHub(writeWait time.Duration) *Hub {
	return &Hub{rooms: make(map[string]map[*Client]struct{}), writeWait: writeWait}
}

// Join adds the client to its room.
func (h *Hub) Join(c *Client) {
	h.mu.Lock()
	if h.rooms[c.Room] == nil {
		h.rooms[c.Room] = make(map[*Client]struct{})
	}
	h.rooms[c.Room][c] = struct{}{}
	h.mu.Unlock()
}

// Leave removes the client, dropping the room once empty, and closes the
// connection.  Calling it twice is harmless.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	if set := h.rooms[c.Room]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, c.Room)
		}
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

// Broadcast writes msg to every client in room and returns how many
// received it.  Clients whose write fails are removed.
func (h *Hub) Broadcast(room string, msg []byte) int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		if err := c.write(websocket.TextMessage, msg, h.writeWait); err != nil {
			h.Leave(c)
			continue
		}
		delivered++
	}
	return delivered
}

// Size returns the number of connections in room.
func (h *Hub) Size(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms returns the number of rooms with at least one connection.
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
