// Package relaysocket implements a Transport over the relay server's /ws
// endpoint: the client joins by sending a join message and the server
// forwards everything else to the other participant.
package relaysocket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/protocol"
	"github.com/cory-johannsen/duel/internal/transport"
	"github.com/cory-johannsen/duel/internal/transport/wsclient"
)

// Options configures a Transport.
type Options struct {
	// URL is the relay base, e.g. ws://localhost:8787.
	URL            string
	Identity       transport.Identity
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	Logger         *zap.Logger
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Transport is a relay-socket client.
type Transport struct {
	transport.Callbacks

	opts   Options
	logger *zap.Logger

	mu     sync.Mutex
	conn   *wsclient.Conn
	peers  int
	closed bool
}

var _ transport.Transport = (*Transport)(nil)

// New creates a disconnected transport.
//
// Precondition: opts.URL and opts.Logger must be set.
func New(opts Options) *Transport {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	return &Transport{opts: opts, logger: opts.Logger.With(zap.String("transport", "relay"))}
}

// Connect implements transport.Transport.
//
// Postcondition: on success the room has acknowledged the join; returns an
// error wrapping transport.ErrRoomFull if the room is at capacity.
func (t *Transport) Connect(ctx context.Context, roomID string) error {
	if err := protocol.ValidateRoomID(roomID); err != nil {
		return err
	}
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return errors.New("already connected")
	}
	t.closed = false
	t.mu.Unlock()

	conn, err := wsclient.Dial(ctx, t.opts.Dialer, strings.TrimRight(t.opts.URL, "/")+"/ws", t.opts.ConnectTimeout, t.opts.WriteTimeout)
	if err != nil {
		return err
	}
	if err := conn.Write(protocol.Join(roomID)); err != nil {
		conn.Close()
		return fmt.Errorf("sending join: %w", err)
	}
	reply, err := conn.Read(t.opts.ConnectTimeout)
	if err != nil {
		conn.Close()
		return fmt.Errorf("awaiting join reply: %w", err)
	}
	switch reply.Type {
	case protocol.TypeJoined:
	case protocol.TypeRoomFull:
		conn.Close()
		t.EmitPeer(transport.PeerEvent{Kind: transport.PeerRoomFull, Peers: 0})
		return fmt.Errorf("room %q: %w", roomID, transport.ErrRoomFull)
	case protocol.TypeError:
		conn.Close()
		return fmt.Errorf("relay rejected join: %s", reply.Message)
	default:
		conn.Close()
		return fmt.Errorf("unexpected join reply %q", reply.Type)
	}

	t.mu.Lock()
	t.conn = conn
	t.peers = 1
	t.mu.Unlock()
	t.logger.Info("joined room", zap.String("room", roomID))
	go t.readLoop(conn)
	return nil
}

func (t *Transport) readLoop(conn *wsclient.Conn) {
	for {
		e, err := conn.Read(0)
		if err != nil {
			if wsclient.IsConnectionError(err) {
				t.connectionClosed(conn, err)
				return
			}
			t.logger.Warn("dropping malformed message", zap.Error(err))
			continue
		}
		t.handle(conn, e)
	}
}

func (t *Transport) handle(conn *wsclient.Conn, e protocol.Envelope) {
	switch e.Type {
	case protocol.TypePeerJoined:
		t.setPeers(2)
		if err := wsclient.SendIdentity(conn, t.opts.Identity); err != nil {
			t.logger.Warn("announcing identity", zap.Error(err))
		}
		t.EmitPeer(transport.PeerEvent{Kind: transport.PeerJoined, Peers: 2})
	case protocol.TypePeerLeft:
		t.setPeers(1)
		t.EmitPeer(transport.PeerEvent{Kind: transport.PeerLeft, Peers: 1})
	case protocol.TypeError:
		t.logger.Warn("relay error", zap.String("message", e.Message))
	default:
		if !wsclient.Dispatch(&t.Callbacks, e) {
			t.logger.Debug("ignoring message", zap.String("type", string(e.Type)))
		}
	}
}

func (t *Transport) connectionClosed(conn *wsclient.Conn, err error) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	closed := t.closed
	t.conn = nil
	t.peers = 0
	t.mu.Unlock()
	if closed {
		return
	}
	t.logger.Warn("relay connection lost", zap.Error(err))
	t.EmitPeer(transport.PeerEvent{Kind: transport.PeerConnectionLost})
}

func (t *Transport) setPeers(n int) {
	t.mu.Lock()
	t.peers = n
	t.mu.Unlock()
}

func (t *Transport) current() (*wsclient.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, transport.ErrClosed
	}
	if t.conn == nil {
		return nil, transport.ErrNotConnected
	}
	return t.conn, nil
}

func (t *Transport) write(e protocol.Envelope) error {
	conn, err := t.current()
	if err != nil {
		return err
	}
	return conn.Write(e)
}

// SendMove implements transport.Transport.
func (t *Transport) SendMove(_ context.Context, m transport.MoveMessage) error {
	return t.write(wsclient.MoveEnvelope(m))
}

// SendName implements transport.Transport.
func (t *Transport) SendName(_ context.Context, name string) error {
	return t.write(protocol.Envelope{Type: protocol.TypeName, Name: name})
}

// SendCharacter implements transport.Transport.
func (t *Transport) SendCharacter(_ context.Context, slug string) error {
	return t.write(protocol.Envelope{Type: protocol.TypeCharacter, CharacterSlug: slug})
}

// Disconnect implements transport.Transport.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.peers = 0
	t.mu.Unlock()

	t.Release()
	if conn == nil {
		return nil
	}
	_ = conn.Write(protocol.Envelope{Type: protocol.TypeLeave})
	return conn.Close()
}

// PeerCount implements transport.Transport.
func (t *Transport) PeerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peers
}
