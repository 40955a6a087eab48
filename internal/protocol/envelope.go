// Package protocol defines the JSON envelopes exchanged between duel clients
// and the relay server.
//
// Every envelope is an object with a "type" field; the remaining fields depend
// on the type. Application envelopes (move, name, character, ready) are
// forwarded between peers verbatim.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Type names an envelope kind.
type Type string

const (
	// Client to server.
	TypeJoin  Type = "join"
	TypeLeave Type = "leave"

	// Application messages, forwarded between peers.
	TypeMove      Type = "move"
	TypeName      Type = "name"
	TypeCharacter Type = "character"
	TypeReady     Type = "ready"

	// Server to client.
	TypeJoined     Type = "joined"
	TypePeerJoined Type = "peer-joined"
	TypePeerLeft   Type = "peer-left"
	TypeRoomFull   Type = "room-full"
	TypeHistory    Type = "history"
	TypeError      Type = "error"

	// Mesh signalling.
	TypePeers  Type = "peers"
	TypeSignal Type = "signal"
)

// MaxRoomIDLength bounds room identifiers.
const MaxRoomIDLength = 100

var (
	// ErrMissingType is returned by Decode for an envelope without a type.
	ErrMissingType = errors.New("message has no type")
	// ErrMissingRound is returned by Decode for a move without a round.
	ErrMissingRound = errors.New("move has no round")
	// ErrInvalidRoomID is returned by ValidateRoomID.
	ErrInvalidRoomID = errors.New("invalid room id")
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Envelope is the union of every message shape on the wire.
type Envelope struct {
	Type          Type              `json:"type"`
	RoomID        string            `json:"roomId,omitempty"`
	Move          string            `json:"move,omitempty"`
	// Round is set on every move, including round 0.
	Round         *int              `json:"round,omitempty"`
	Hint          []string          `json:"hint,omitempty"`
	Name          string            `json:"name,omitempty"`
	CharacterSlug string            `json:"characterSlug,omitempty"`
	Messages      []json.RawMessage `json:"messages,omitempty"`
	Message       string            `json:"message,omitempty"`
	Peer          string            `json:"peer,omitempty"`
	Peers         []string          `json:"peers,omitempty"`
	To            string            `json:"to,omitempty"`
	From          string            `json:"from,omitempty"`
	Payload       json.RawMessage   `json:"payload,omitempty"`
}

// Replayable reports whether messages of type t may be buffered for a peer
// that has not joined yet. Presence and control messages never are.
func Replayable(t Type) bool {
	switch t {
	case TypeMove, TypeName, TypeCharacter, TypeReady:
		return true
	}
	return false
}

// Decode parses data into an Envelope.
//
// Postcondition: Returns an error wrapping ErrMissingType if the type field is
// absent or empty, or a JSON error if data is malformed.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if e.Type == "" {
		return Envelope{}, ErrMissingType
	}
	if e.Type == TypeMove && e.Round == nil {
		return Envelope{}, ErrMissingRound
	}
	return e, nil
}

// Encode marshals e.
func Encode(e Envelope) ([]byte, error) {
	if e.Type == "" {
		return nil, ErrMissingType
	}
	return json.Marshal(e)
}

// MustEncode is Encode for envelopes built from constants. It panics on error.
func MustEncode(e Envelope) []byte {
	data, err := Encode(e)
	if err != nil {
		panic(err)
	}
	return data
}

// ValidateRoomID checks that id is non-empty, at most MaxRoomIDLength
// characters and restricted to letters, digits, hyphen and underscore.
func ValidateRoomID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRoomID)
	}
	if len(id) > MaxRoomIDLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidRoomID, MaxRoomIDLength)
	}
	if !roomIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q contains characters outside [A-Za-z0-9_-]", ErrInvalidRoomID, id)
	}
	return nil
}

// Move builds a move envelope.
func Move(move string, round int, hint []string) Envelope {
	return Envelope{Type: TypeMove, Move: move, Round: &round, Hint: hint}
}

// RoundOf returns e's round, or -1 when it carries none.
func (e Envelope) RoundOf() int {
	if e.Round == nil {
		return -1
	}
	return *e.Round
}

// Join builds a join envelope.
func Join(roomID string) Envelope { return Envelope{Type: TypeJoin, RoomID: roomID} }

// Error builds an error envelope.
func Error(msg string) Envelope { return Envelope{Type: TypeError, Message: msg} }

// History builds a replay envelope around already-encoded messages.
func History(msgs [][]byte) Envelope {
	raw := make([]json.RawMessage, len(msgs))
	for i, m := range msgs {
		raw[i] = json.RawMessage(m)
	}
	return Envelope{Type: TypeHistory, Messages: raw}
}
