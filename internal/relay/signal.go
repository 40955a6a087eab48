package relay

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/protocol"
)

// SignalHub is the signalling broker used by mesh clients. It announces peers
// within a room and routes addressed signal envelopes between them. It
// enforces no capacity; mesh clients refuse crowded rooms themselves.
type SignalHub struct {
	mu     sync.Mutex
	rooms  map[string]map[string]Member
	logger *zap.Logger
}

// NewSignalHub creates an empty signalling hub.
func NewSignalHub(logger *zap.Logger) *SignalHub {
	return &SignalHub{rooms: make(map[string]map[string]Member), logger: logger}
}

// Add registers m in room under a fresh peer id.
//
// Postcondition: m has been sent peers{peer: id, peers: existing}; every
// existing peer has been sent peer-joined{peer: id}.
func (h *SignalHub) Add(room string, m Member) string {
	id := uuid.NewString()
	h.mu.Lock()
	defer h.mu.Unlock()

	peers, ok := h.rooms[room]
	if !ok {
		peers = make(map[string]Member)
		h.rooms[room] = peers
	}
	existing := make([]string, 0, len(peers))
	for pid := range peers {
		existing = append(existing, pid)
	}
	peers[id] = m

	m.Send(protocol.MustEncode(protocol.Envelope{Type: protocol.TypePeers, RoomID: room, Peer: id, Peers: existing}))
	joined := protocol.MustEncode(protocol.Envelope{Type: protocol.TypePeerJoined, RoomID: room, Peer: id})
	for pid, other := range peers {
		if pid != id {
			other.Send(joined)
		}
	}
	h.logger.Debug("signal peer added", zap.String("room", room), zap.String("peer", id), zap.Int("peers", len(peers)))
	return id
}

// Route forwards a signal envelope from peer from to its addressee.
func (h *SignalHub) Route(room, from string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers := h.rooms[room]
	sender, ok := peers[from]
	if !ok {
		return
	}

	env, err := protocol.Decode(data)
	if err != nil {
		sender.Send(protocol.MustEncode(protocol.Error(err.Error())))
		return
	}
	if env.Type != protocol.TypeSignal || env.To == "" {
		sender.Send(protocol.MustEncode(protocol.Error("expected signal with a recipient")))
		return
	}
	to, ok := peers[env.To]
	if !ok {
		sender.Send(protocol.MustEncode(protocol.Error("unknown peer " + env.To)))
		return
	}
	to.Send(protocol.MustEncode(protocol.Envelope{Type: protocol.TypeSignal, From: from, Payload: env.Payload}))
}

// Remove unregisters peer id and announces its departure.
func (h *SignalHub) Remove(room, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers := h.rooms[room]
	m, ok := peers[id]
	if !ok {
		return
	}
	delete(peers, id)
	m.Close()
	left := protocol.MustEncode(protocol.Envelope{Type: protocol.TypePeerLeft, RoomID: room, Peer: id})
	for _, other := range peers {
		other.Send(left)
	}
	if len(peers) == 0 {
		delete(h.rooms, room)
	}
}

// Len returns the number of rooms with at least one peer.
func (h *SignalHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Close disconnects every peer without announcing departures.
func (h *SignalHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, peers := range h.rooms {
		for _, m := range peers {
			m.Close()
		}
		delete(h.rooms, room)
	}
}
