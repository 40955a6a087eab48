package mesh

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/protocol"
	"github.com/cory-johannsen/duel/internal/transport/wsclient"
)

// SocketBroker is a Broker backed by the relay server's /signal endpoint.
// It carries link setup only.
type SocketBroker struct {
	URL            string
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	Dialer         *websocket.Dialer
	Logger         *zap.Logger
}

type socketMember struct {
	conn   *wsclient.Conn
	id     string
	peers  []string
	logger *zap.Logger
	left   atomic.Bool
}

// Join implements Broker.
//
// Postcondition: the returned membership's Peers reflects the broker's
// announcement; h is invoked from a single reader goroutine until Leave.
func (b *SocketBroker) Join(ctx context.Context, room string, h Handlers) (Membership, error) {
	timeout := b.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	target := strings.TrimRight(b.URL, "/") + "/signal?room=" + url.QueryEscape(room)
	conn, err := wsclient.Dial(ctx, b.Dialer, target, timeout, b.WriteTimeout)
	if err != nil {
		return nil, err
	}
	hello, err := conn.Read(timeout)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("awaiting peer list: %w", err)
	}
	if hello.Type != protocol.TypePeers || hello.Peer == "" {
		conn.Close()
		return nil, fmt.Errorf("unexpected signalling reply %q", hello.Type)
	}
	m := &socketMember{conn: conn, id: hello.Peer, peers: hello.Peers, logger: b.Logger}
	go m.readLoop(h)
	return m, nil
}

func (m *socketMember) ID() string      { return m.id }
func (m *socketMember) Peers() []string { return append([]string(nil), m.peers...) }

func (m *socketMember) Send(_ context.Context, to string, payload []byte) error {
	return m.conn.Write(protocol.Envelope{Type: protocol.TypeSignal, To: to, Payload: payload})
}

func (m *socketMember) Leave() error {
	if m.left.Swap(true) {
		return nil
	}
	return m.conn.Close()
}

func (m *socketMember) readLoop(h Handlers) {
	for {
		e, err := m.conn.Read(0)
		if err != nil {
			if wsclient.IsConnectionError(err) {
				if !m.left.Load() && h.OnClosed != nil {
					h.OnClosed(err)
				}
				return
			}
			continue
		}
		switch e.Type {
		case protocol.TypePeerJoined:
			if h.OnPresence != nil {
				h.OnPresence(e.Peer, true)
			}
		case protocol.TypePeerLeft:
			if h.OnPresence != nil {
				h.OnPresence(e.Peer, false)
			}
		case protocol.TypeSignal:
			if h.OnSignal != nil {
				h.OnSignal(e.From, e.Payload)
			}
		case protocol.TypeError:
			if m.logger != nil {
				m.logger.Warn("signalling error", zap.String("message", e.Message))
			}
		}
	}
}
