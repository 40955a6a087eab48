package relay

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Hub owns the live rooms. Rooms are created on first join and removed when
// their last member leaves.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	limit  int
	logger *zap.Logger
}

// NewHub creates an empty hub whose rooms buffer at most bufferLimit messages.
//
// Precondition: bufferLimit >= 1; logger must not be nil.
func NewHub(bufferLimit int, logger *zap.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]*Room),
		limit:  bufferLimit,
		logger: logger,
	}
}

// Join adds m to the room named id, creating it if necessary.
//
// Postcondition: Returns the room m joined, or ErrRoomFull.
func (h *Hub) Join(id string, m Member) (*Room, error) {
	for {
		room := h.room(id)
		err := room.Join(m)
		if errors.Is(err, errRoomClosed) {
			// Lost a race with the room's destruction; the next lookup creates a fresh one.
			continue
		}
		if err != nil {
			return nil, err
		}
		return room, nil
	}
}

// Stats returns the stats of the named room and whether it exists.
func (h *Hub) Stats(id string) (RoomStats, bool) {
	h.mu.Lock()
	room, ok := h.rooms[id]
	h.mu.Unlock()
	if !ok {
		return RoomStats{}, false
	}
	return room.Stats(), true
}

// Len returns the number of live rooms.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Close shuts every room down, closing all member connections.
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()
	for _, r := range rooms {
		r.shutdown()
	}
}

func (h *Hub) room(id string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[id]; ok {
		return r
	}
	r := newRoom(id, h.limit, h.logger, h.remove)
	h.rooms[id] = r
	return r
}

func (h *Hub) remove(r *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[r.id] == r {
		delete(h.rooms, r.id)
	}
}
