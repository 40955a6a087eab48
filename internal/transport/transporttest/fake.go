// Package transporttest provides an in-memory Transport for tests.
package transporttest

import (
	"context"
	"sync"

	"github.com/cory-johannsen/duel/internal/transport"
)

// Fake records everything sent through it. Inbound traffic is injected with the
// embedded Callbacks' Emit methods.
type Fake struct {
	transport.Callbacks

	mu         sync.Mutex
	room       string
	connected  bool
	moves      []transport.MoveMessage
	names      []string
	characters []string
	// SendErr, when set, is returned by every send.
	SendErr error
	// ConnectErr, when set, is returned by Connect.
	ConnectErr error
}

var _ transport.Transport = (*Fake)(nil)

// Connect implements transport.Transport.
func (f *Fake) Connect(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.room = roomID
	f.connected = true
	return nil
}

// SendMove implements transport.Transport.
func (f *Fake) SendMove(_ context.Context, m transport.MoveMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.moves = append(f.moves, m)
	return nil
}

// SendName implements transport.Transport.
func (f *Fake) SendName(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	return nil
}

// SendCharacter implements transport.Transport.
func (f *Fake) SendCharacter(_ context.Context, slug string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.characters = append(f.characters, slug)
	return nil
}

// Disconnect implements transport.Transport.
func (f *Fake) Disconnect() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.Release()
	return nil
}

// PeerCount implements transport.Transport.
func (f *Fake) PeerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		return 2
	}
	return 0
}

// Room returns the room passed to Connect.
func (f *Fake) Room() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.room
}

// Moves returns a copy of every move sent.
func (f *Fake) Moves() []transport.MoveMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.MoveMessage(nil), f.moves...)
}

// LastMove returns the most recent move sent and whether there was one.
func (f *Fake) LastMove() (transport.MoveMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.moves) == 0 {
		return transport.MoveMessage{}, false
	}
	return f.moves[len(f.moves)-1], true
}
