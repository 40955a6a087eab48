// Package transport defines the duplex channel two duel clients use to agree
// on move pairs, and the message types carried over it.
//
// Implementations live in sub-packages and are selected by the caller at
// construction. Receive-side operations register callbacks; delivery order
// across the move, name and character channels is not guaranteed.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrRoomFull is returned by Connect when the room already holds two participants.
	ErrRoomFull = errors.New("room full")
	// ErrClosed is returned by operations on a disconnected transport.
	ErrClosed = errors.New("transport closed")
	// ErrConnectTimeout is returned when a connection attempt exceeds its bound.
	ErrConnectTimeout = errors.New("connect timeout")
	// ErrNotConnected is returned by send operations before Connect succeeds.
	ErrNotConnected = errors.New("transport not connected")
)

// MoveMessage carries one side's move for a round, with the hint it was
// obliged to disclose.
type MoveMessage struct {
	Move  string   `json:"move"`
	Round int      `json:"round"`
	Hint  []string `json:"hint,omitempty"`
}

// PeerEventKind classifies presence notifications.
type PeerEventKind string

const (
	PeerJoined         PeerEventKind = "peer-joined"
	PeerLeft           PeerEventKind = "peer-left"
	PeerRoomFull       PeerEventKind = "room-full"
	PeerConnectionLost PeerEventKind = "connection-lost"
	PeerReconnected    PeerEventKind = "reconnected"
)

// PeerEvent is a presence notification.
type PeerEvent struct {
	Kind PeerEventKind
	// Peers is the participant count after the event, including self.
	Peers int
}

// Identity is what a transport announces to its partner when the partner appears.
type Identity struct {
	Name          string
	CharacterSlug string
}

// Transport is the duplex channel between the two participants of a duel.
type Transport interface {
	// Connect joins roomID. It fails closed after the implementation's connect timeout.
	Connect(ctx context.Context, roomID string) error
	SendMove(ctx context.Context, m MoveMessage) error
	OnMove(fn func(MoveMessage))
	SendName(ctx context.Context, name string) error
	OnName(fn func(string))
	SendCharacter(ctx context.Context, slug string) error
	OnCharacter(fn func(string))
	OnPeer(fn func(PeerEvent))
	// Disconnect releases every callback and stops pending timers. Safe to call twice.
	Disconnect() error
	// PeerCount returns the number of participants in the room, including self.
	PeerCount() int
}
