package ws

import (
	"sync"

	"github.com/cwrk-planet/room-sync/internal/protocol"
)

// Conn is one push socket, bound to a room and a user for its lifetime.
type Conn interface {
	Send(msg protocol.PushMessage) error
	Close() error
	UserID() int64
	RoomID() int64
}

// Hub indexes live sockets by room and then by user. A user holds at most
// one socket per room; clients reconnect faster than dead sockets time out.
type Hub struct {
	mu    sync.RWMutex
	rooms map[int64]map[int64]Conn // roomID -> userID -> conn
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[int64]map[int64]Conn)}
}

// Add registers c and returns the socket it displaced, if any. The caller
// owns closing the displaced socket.
func (h *Hub) Add(c Conn) Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[c.RoomID()]
	if !ok {
		members = make(map[int64]Conn)
		h.rooms[c.RoomID()] = members
	}
	prev := members[c.UserID()]
	members[c.UserID()] = c
	if prev == c {
		return nil
	}
	return prev
}

// Remove unregisters c unless it was already displaced by a newer socket.
func (h *Hub) Remove(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c Conn) {
	members, ok := h.rooms[c.RoomID()]
	if !ok || members[c.UserID()] != c {
		return
	}
	delete(members, c.UserID())
	if len(members) == 0 {
		delete(h.rooms, c.RoomID())
	}
}

// Broadcast sends msg to every socket in the room and returns how many
// accepted it. Sockets that fail a send are dropped from the hub and closed.
func (h *Hub) Broadcast(roomID int64, msg protocol.PushMessage) int {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.rooms[roomID]))
	for _, c := range h.rooms[roomID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var dead []Conn
	sent := 0
	for _, c := range targets {
		if err := c.Send(msg); err != nil {
			dead = append(dead, c)
			continue
		}
		sent++
	}
	if len(dead) == 0 {
		return sent
	}

	h.mu.Lock()
	for _, c := range dead {
		h.removeLocked(c)
	}
	h.mu.Unlock()
	for _, c := range dead {
		_ = c.Close()
	}
	return sent
}

// Count returns the number of open sockets in a room.
func (h *Hub) Count(roomID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
