// Package edge implements a Transport against a room-scoped relay actor at
// /rooms/{roomId}. Dropped connections are re-established with capped linear
// backoff; the last move sent is re-delivered after every reconnect.
package edge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/protocol"
	"github.com/cory-johannsen/duel/internal/transport"
	"github.com/cory-johannsen/duel/internal/transport/wsclient"
)

// Options configures a Transport.
type Options struct {
	// URL is the relay base, e.g. wss://relay.example.com.
	URL            string
	Identity       transport.Identity
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	Reconnect      config.ReconnectConfig
	Logger         *zap.Logger
	Dialer         *websocket.Dialer
}

// Backoff returns the delay before reconnection attempt n, counting from 1:
// base*n capped at limit.
func Backoff(base, limit time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base * time.Duration(attempt)
	if d > limit || d < 0 {
		return limit
	}
	return d
}

// Transport is an edge relay client.
type Transport struct {
	transport.Callbacks

	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	room     string
	conn     *wsclient.Conn
	peers    int
	lastMove *transport.MoveMessage
	timer    *time.Timer
	closed   bool

	// exhausted is set once reconnection has been abandoned.
	exhausted bool
}

var _ transport.Transport = (*Transport)(nil)

// New creates a disconnected transport.
//
// Precondition: opts.URL and opts.Logger must be set; opts.Reconnect must be valid.
func New(opts Options) *Transport {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	return &Transport{opts: opts, logger: opts.Logger.With(zap.String("transport", "edge"))}
}

// Connect implements transport.Transport.
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
	t.exhausted = false
	t.mu.Unlock()

	conn, err := t.handshake(ctx, roomID)
	if err != nil {
		if errors.Is(err, transport.ErrRoomFull) {
			t.EmitPeer(transport.PeerEvent{Kind: transport.PeerRoomFull})
		}
		return err
	}
	t.mu.Lock()
	t.room = roomID
	t.conn = conn
	t.peers = 1
	t.mu.Unlock()
	t.logger.Info("joined room", zap.String("room", roomID))
	go t.readLoop(conn)
	return nil
}

func (t *Transport) handshake(ctx context.Context, roomID string) (*wsclient.Conn, error) {
	target := strings.TrimRight(t.opts.URL, "/") + "/rooms/" + url.PathEscape(roomID)
	conn, err := wsclient.Dial(ctx, t.opts.Dialer, target, t.opts.ConnectTimeout, t.opts.WriteTimeout)
	if err != nil {
		return nil, err
	}
	reply, err := conn.Read(t.opts.ConnectTimeout)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("awaiting join reply: %w", err)
	}
	switch reply.Type {
	case protocol.TypeJoined:
		return conn, nil
	case protocol.TypeRoomFull:
		conn.Close()
		return nil, fmt.Errorf("room %q: %w", roomID, transport.ErrRoomFull)
	default:
		conn.Close()
		return nil, fmt.Errorf("unexpected join reply %q %s", reply.Type, reply.Message)
	}
}

func (t *Transport) readLoop(conn *wsclient.Conn) {
	for {
		e, err := conn.Read(0)
		if err != nil {
			if wsclient.IsConnectionError(err) {
				t.lost(conn, err)
				return
			}
			t.logger.Warn("dropping malformed message", zap.Error(err))
			continue
		}
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
			wsclient.Dispatch(&t.Callbacks, e)
		}
	}
}

func (t *Transport) lost(conn *wsclient.Conn, err error) {
	t.mu.Lock()
	if t.closed || t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.peers = 0
	t.mu.Unlock()
	t.logger.Warn("connection dropped, reconnecting", zap.Error(err))
	t.schedule(1)
}

func (t *Transport) schedule(attempt int) {
	rc := t.opts.Reconnect
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if attempt > rc.MaxAttempts {
		t.exhausted = true
		t.mu.Unlock()
		t.logger.Error("reconnection attempts exhausted", zap.Int("attempts", rc.MaxAttempts))
		t.EmitPeer(transport.PeerEvent{Kind: transport.PeerConnectionLost})
		return
	}
	delay := Backoff(rc.BaseDelay, rc.MaxDelay, attempt)
	t.timer = time.AfterFunc(delay, func() { t.reconnect(attempt) })
	t.mu.Unlock()
	t.logger.Info("reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("delay", delay))
}

func (t *Transport) reconnect(attempt int) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	room := t.room
	t.mu.Unlock()

	conn, err := t.handshake(context.Background(), room)
	if err != nil {
		t.logger.Info("reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
		if errors.Is(err, transport.ErrRoomFull) {
			t.mu.Lock()
			t.exhausted = true
			t.mu.Unlock()
			t.EmitPeer(transport.PeerEvent{Kind: transport.PeerRoomFull})
			t.EmitPeer(transport.PeerEvent{Kind: transport.PeerConnectionLost})
			return
		}
		t.schedule(attempt + 1)
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conn = conn
	t.peers = 1
	t.timer = nil
	last := t.lastMove
	t.mu.Unlock()

	t.logger.Info("reconnected", zap.Int("attempt", attempt))
	go t.readLoop(conn)
	t.EmitPeer(transport.PeerEvent{Kind: transport.PeerReconnected, Peers: 1})
	if last != nil {
		if err := conn.Write(wsclient.MoveEnvelope(*last)); err != nil {
			t.logger.Warn("resending last move", zap.Error(err))
		}
	}
}

func (t *Transport) setPeers(n int) {
	t.mu.Lock()
	t.peers = n
	t.mu.Unlock()
}

func (t *Transport) write(e protocol.Envelope) error {
	t.mu.Lock()
	conn, closed := t.conn, t.closed
	t.mu.Unlock()
	switch {
	case closed:
		return transport.ErrClosed
	case conn == nil:
		return transport.ErrNotConnected
	}
	return conn.Write(e)
}

// SendMove implements transport.Transport. While a reconnect is pending the
// move is held and delivered once the connection is back.
func (t *Transport) SendMove(_ context.Context, m transport.MoveMessage) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	held := m
	held.Hint = append([]string(nil), m.Hint...)
	t.lastMove = &held
	conn, pending := t.conn, t.room != "" && t.conn == nil && !t.exhausted
	t.mu.Unlock()

	if pending {
		t.logger.Debug("holding move until reconnected", zap.Int("round", m.Round))
		return nil
	}
	if conn == nil {
		return transport.ErrNotConnected
	}
	return conn.Write(wsclient.MoveEnvelope(m))
}

// SendName implements transport.Transport.
func (t *Transport) SendName(_ context.Context, name string) error {
	return t.write(protocol.Envelope{Type: protocol.TypeName, Name: name})
}

// SendCharacter implements transport.Transport.
func (t *Transport) SendCharacter(_ context.Context, slug string) error {
	return t.write(protocol.Envelope{Type: protocol.TypeCharacter, CharacterSlug: slug})
}

// Disconnect implements transport.Transport. It cancels any pending reconnect.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
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
