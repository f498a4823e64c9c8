package ws

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/manpreetbhatti/menuroom/internal/protocol"
	"github.com/manpreetbhatti/menuroom/internal/ratelimit"
)

// Hub owns the connected clients and the room subscriptions. Every change and
// every outbound message goes through the single Run loop, so messages
// handed to the hub by one goroutine reach each client in that order.
type Hub struct {
	// Connected clients by connection id
	clients map[string]*Client

	// Subscribed connection ids by room
	rooms map[string]map[string]bool

	// Outbound messages, to a room or a single connection
	outbound chan *Message

	// Room subscription changes
	subscriptions chan subscription

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	limiters       *ratelimit.ClientLimiters
	allowedOrigins []string
	log            *slog.Logger

	done chan struct{}
	mu   sync.RWMutex
}

// Message is addressed either to a room (RoomID) or to one connection (ConnID).
type Message struct {
	RoomID  string
	ConnID  string
	Exclude string
	Data    []byte
}

type subscription struct {
	roomID    string
	connID    string
	subscribe bool
	applied   chan struct{}
}

func NewHub(limiters *ratelimit.ClientLimiters, allowedOrigins []string, log *slog.Logger) *Hub {
	return &Hub{
		clients:        make(map[string]*Client),
		rooms:          make(map[string]map[string]bool),
		outbound:       make(chan *Message),
		subscriptions:  make(chan subscription),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		limiters:       limiters,
		allowedOrigins: allowedOrigins,
		log:            log,
		done:           make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			clientCount := len(h.clients)
			h.mu.Unlock()

			h.log.Debug("Client connected", "conn", client.id, "clients", clientCount)

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.id]; ok && current == client {
				h.drop(client)
			}
			h.mu.Unlock()

		case sub := <-h.subscriptions:
			h.mu.Lock()
			if sub.subscribe {
				if _, ok := h.clients[sub.connID]; ok {
					if _, ok := h.rooms[sub.roomID]; !ok {
						h.rooms[sub.roomID] = make(map[string]bool)
					}
					h.rooms[sub.roomID][sub.connID] = true
				}
			} else {
				h.leaveRoom(sub.roomID, sub.connID)
			}
			h.mu.Unlock()
			close(sub.applied)

		case message := <-h.outbound:
			h.mu.Lock()
			if message.ConnID != "" {
				if client, ok := h.clients[message.ConnID]; ok {
					h.deliver(client, message.Data)
				}
			} else {
				for connID := range h.rooms[message.RoomID] {
					if connID == message.Exclude {
						continue
					}
					if client, ok := h.clients[connID]; ok {
						h.deliver(client, message.Data)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// A client whose buffer is full is too slow to keep up; it is dropped and
// will resync in full when it reconnects.
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.log.Warn("Dropping slow client", "conn", client.id)
		h.drop(client)
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client.id)
	close(client.send)
	for roomID := range h.rooms {
		h.leaveRoom(roomID, client.id)
	}
	h.log.Debug("Client disconnected", "conn", client.id, "clients", len(h.clients))
}

func (h *Hub) leaveRoom(roomID, connID string) {
	if members, ok := h.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.clients {
		h.drop(client)
	}
}

// Subscribe adds connID to roomID. It returns once the hub has applied the
// change, so any later broadcast to roomID reaches connID.
func (h *Hub) Subscribe(roomID, connID string) {
	h.changeSubscription(subscription{roomID: roomID, connID: connID, subscribe: true})
}

func (h *Hub) Unsubscribe(roomID, connID string) {
	h.changeSubscription(subscription{roomID: roomID, connID: connID})
}

func (h *Hub) changeSubscription(sub subscription) {
	sub.applied = make(chan struct{})
	select {
	case h.subscriptions <- sub:
		<-sub.applied
	case <-h.done:
	}
}

// SendTo delivers one message to a single connection.
func (h *Hub) SendTo(connID string, kind protocol.Kind, data any) {
	frame, err := protocol.Encode(kind, data)
	if err != nil {
		h.log.Error("Failed to encode message", "kind", kind, "error", err)
		return
	}
	h.enqueue(&Message{ConnID: connID, Data: frame})
}

// Broadcast delivers one message to every connection in roomID except exclude.
func (h *Hub) Broadcast(roomID string, kind protocol.Kind, data any, exclude string) {
	frame, err := protocol.Encode(kind, data)
	if err != nil {
		h.log.Error("Failed to encode message", "kind", kind, "room", roomID, "error", err)
		return
	}
	h.enqueue(&Message{RoomID: roomID, Exclude: exclude, Data: frame})
}

func (h *Hub) enqueue(m *Message) {
	select {
	case h.outbound <- m:
	case <-h.done:
	}
}

func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetActiveRooms returns the number of connections per room.
func (h *Hub) GetActiveRooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	active := make(map[string]int, len(h.rooms))
	for roomID, members := range h.rooms {
		active[roomID] = len(members)
	}
	return active
}

func (h *Hub) checkOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
