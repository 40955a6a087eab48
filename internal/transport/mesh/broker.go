package mesh

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrUnknownPeer is returned by Membership.Send for an addressee not in the room.
	ErrUnknownPeer = errors.New("unknown peer")
	// ErrBrokerStopped is reported to memberships dropped by LocalBroker.Kick.
	ErrBrokerStopped = errors.New("broker stopped")
)

// Handlers receive a membership's inbound traffic. Calls for one membership
// are serialized and arrive in the order the broker observed them.
type Handlers struct {
	OnSignal   func(from string, payload []byte)
	OnPresence func(peer string, joined bool)
	// OnClosed reports that the broker dropped the membership without Leave.
	OnClosed func(err error)
}

// Broker is a signalling service that lets peers in a named room discover and
// address one another.
type Broker interface {
	Join(ctx context.Context, room string, h Handlers) (Membership, error)
}

// Membership is one peer's presence in a broker room.
type Membership interface {
	// ID is this peer's broker-assigned identifier.
	ID() string
	// Peers lists the other peers present when the membership was created.
	Peers() []string
	Send(ctx context.Context, to string, payload []byte) error
	Leave() error
}

// LocalBroker is an in-process Broker.
type LocalBroker struct {
	mu    sync.Mutex
	rooms map[string]map[string]*localMember
}

// NewLocalBroker creates an empty broker.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{rooms: make(map[string]map[string]*localMember)}
}

type localMember struct {
	broker *LocalBroker
	room   string
	id     string
	peers  []string
	h      Handlers

	mu     sync.Mutex
	queue  chan func()
	closed bool
}

// Join implements Broker.
func (b *LocalBroker) Join(_ context.Context, room string, h Handlers) (Membership, error) {
	m := &localMember{
		broker: b,
		room:   room,
		id:     uuid.NewString(),
		h:      h,
		queue:  make(chan func(), 64),
	}
	go m.run()

	b.mu.Lock()
	defer b.mu.Unlock()
	members, ok := b.rooms[room]
	if !ok {
		members = make(map[string]*localMember)
		b.rooms[room] = members
	}
	for id, other := range members {
		m.peers = append(m.peers, id)
		other.presence(m.id, true)
	}
	members[m.id] = m
	return m, nil
}

// Len returns the number of peers in room.
func (b *LocalBroker) Len(room string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms[room])
}

// Kick drops every membership without announcing departures, as a crashed
// signalling server would.
func (b *LocalBroker) Kick() {
	b.mu.Lock()
	var dropped []*localMember
	for room, members := range b.rooms {
		for _, m := range members {
			dropped = append(dropped, m)
		}
		delete(b.rooms, room)
	}
	b.mu.Unlock()
	for _, m := range dropped {
		m.enqueue(func() {
			if m.h.OnClosed != nil {
				m.h.OnClosed(ErrBrokerStopped)
			}
		})
		m.stop()
	}
}

func (m *localMember) ID() string      { return m.id }
func (m *localMember) Peers() []string { return append([]string(nil), m.peers...) }

func (m *localMember) Send(_ context.Context, to string, payload []byte) error {
	m.broker.mu.Lock()
	defer m.broker.mu.Unlock()
	if _, ok := m.broker.rooms[m.room][m.id]; !ok {
		return errors.New("membership closed")
	}
	target, ok := m.broker.rooms[m.room][to]
	if !ok {
		return ErrUnknownPeer
	}
	data := append([]byte(nil), payload...)
	target.enqueue(func() {
		if target.h.OnSignal != nil {
			target.h.OnSignal(m.id, data)
		}
	})
	return nil
}

func (m *localMember) Leave() error {
	m.broker.mu.Lock()
	members := m.broker.rooms[m.room]
	if _, ok := members[m.id]; ok {
		delete(members, m.id)
		for _, other := range members {
			other.presence(m.id, false)
		}
		if len(members) == 0 {
			delete(m.broker.rooms, m.room)
		}
	}
	m.broker.mu.Unlock()
	m.stop()
	return nil
}

func (m *localMember) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
}

func (m *localMember) presence(peer string, joined bool) {
	m.enqueue(func() {
		if m.h.OnPresence != nil {
			m.h.OnPresence(peer, joined)
		}
	})
}

func (m *localMember) enqueue(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.queue <- fn
}

func (m *localMember) run() {
	for fn := range m.queue {
		fn()
	}
}
