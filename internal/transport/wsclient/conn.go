// Package wsclient holds the websocket plumbing shared by the socket-based
// transports: bounded dialing, serialized envelope writes and delivery of
// inbound application envelopes to transport callbacks.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cory-johannsen/duel/internal/protocol"
	"github.com/cory-johannsen/duel/internal/transport"
)

// Conn is a websocket connection speaking protocol envelopes. Writes are
// serialized; reads must come from a single goroutine.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex
}

// Dial opens url, failing with transport.ErrConnectTimeout if the handshake
// does not complete within timeout.
//
// Precondition: timeout > 0.
func Dial(ctx context.Context, dialer *websocket.Dialer, url string, timeout, writeTimeout time.Duration) (*Conn, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		var netErr net.Error
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
			(errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("dialing %s: %w", url, transport.ErrConnectTimeout)
		}
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return &Conn{ws: ws, writeTimeout: writeTimeout}, nil
}

// Write sends e as one text message.
func (c *Conn) Write(e protocol.Envelope) error {
	data, err := protocol.Encode(e)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Read returns the next envelope. A zero timeout waits indefinitely.
// Malformed messages are returned as errors wrapping the decode failure; the
// connection remains usable.
func (c *Conn) Read(timeout time.Duration) (protocol.Envelope, error) {
	if timeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(timeout))
	} else {
		_ = c.ws.SetReadDeadline(time.Time{})
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return protocol.Envelope{}, &ReadError{Err: err}
	}
	return protocol.Decode(data)
}

// Close sends a close frame and closes the connection.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// ReadError marks a failure of the underlying connection, as opposed to a
// malformed message.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string { return "reading: " + e.Err.Error() }

func (e *ReadError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err came from the connection itself.
func IsConnectionError(err error) bool {
	var re *ReadError
	return errors.As(err, &re)
}

// MoveEnvelope converts a move message to its wire form.
func MoveEnvelope(m transport.MoveMessage) protocol.Envelope {
	return protocol.Move(m.Move, m.Round, m.Hint)
}

// Dispatch delivers an application envelope to cb, unpacking history replays.
//
// Postcondition: Returns false if e carries no application payload.
func Dispatch(cb *transport.Callbacks, e protocol.Envelope) bool {
	switch e.Type {
	case protocol.TypeMove:
		cb.EmitMove(transport.MoveMessage{Move: e.Move, Round: e.RoundOf(), Hint: e.Hint})
	case protocol.TypeName:
		cb.EmitName(e.Name)
	case protocol.TypeCharacter:
		cb.EmitCharacter(e.CharacterSlug)
	case protocol.TypeReady:
	case protocol.TypeHistory:
		for _, raw := range e.Messages {
			inner, err := protocol.Decode(raw)
			if err != nil {
				continue
			}
			Dispatch(cb, inner)
		}
	default:
		return false
	}
	return true
}

// SendIdentity announces id's name and character selection over c.
func SendIdentity(c *Conn, id transport.Identity) error {
	if id.Name != "" {
		if err := c.Write(protocol.Envelope{Type: protocol.TypeName, Name: id.Name}); err != nil {
			return err
		}
	}
	return c.Write(protocol.Envelope{Type: protocol.TypeCharacter, CharacterSlug: id.CharacterSlug})
}
