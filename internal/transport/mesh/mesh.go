// Package mesh implements a peer-to-peer Transport. Peers meet in a named
// room of a signalling Broker, negotiate a direct link through it and then
// exchange every application message over that link. The broker only ever
// sees link setup, so an open link outlives it.
package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/protocol"
	"github.com/cory-johannsen/duel/internal/transport"
	"github.com/cory-johannsen/duel/internal/transport/wsclient"
)

// Options configures a Transport.
type Options struct {
	Broker Broker
	// Connector sets up the direct link once a partner is found.
	Connector      Connector
	Identity       transport.Identity
	ConnectTimeout time.Duration
	Logger         *zap.Logger
}

// Transport is a mesh client. It pairs with the first peer it sees.
type Transport struct {
	transport.Callbacks

	opts   Options
	logger *zap.Logger

	mu         sync.Mutex
	membership Membership
	partner    string
	link       Negotiation
	open       bool
	closed     bool
}

var _ transport.Transport = (*Transport)(nil)

// New creates a disconnected transport.
//
// Precondition: opts.Broker, opts.Connector and opts.Logger must be set.
func New(opts Options) *Transport {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	return &Transport{opts: opts, logger: opts.Logger.With(zap.String("transport", "mesh"))}
}

// Connect implements transport.Transport. The newcomer to a room with one
// peer initiates the link.
//
// Postcondition: returns an error wrapping transport.ErrRoomFull, after
// leaving the room, if two or more peers were already present.
func (t *Transport) Connect(ctx context.Context, roomID string) error {
	if err := protocol.ValidateRoomID(roomID); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, t.opts.ConnectTimeout)
	defer cancel()

	// Handlers block on t.mu until the membership is recorded.
	t.mu.Lock()
	if t.membership != nil || t.link != nil {
		t.mu.Unlock()
		return errors.New("already connected")
	}
	t.closed = false
	m, err := t.opts.Broker.Join(ctx, roomID, Handlers{
		OnSignal:   t.onSignal,
		OnPresence: t.onPresence,
		OnClosed:   t.onBrokerClosed,
	})
	if err != nil {
		t.mu.Unlock()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, transport.ErrConnectTimeout) {
			return fmt.Errorf("joining %q: %w", roomID, transport.ErrConnectTimeout)
		}
		return fmt.Errorf("joining %q: %w", roomID, err)
	}
	peers := m.Peers()
	if len(peers) >= 2 {
		t.mu.Unlock()
		_ = m.Leave()
		t.logger.Info("room full", zap.String("room", roomID), zap.Int("peers", len(peers)))
		t.EmitPeer(transport.PeerEvent{Kind: transport.PeerRoomFull, Peers: len(peers)})
		return fmt.Errorf("room %q: %w", roomID, transport.ErrRoomFull)
	}
	t.membership = m
	t.mu.Unlock()
	t.logger.Info("joined room", zap.String("room", roomID), zap.String("peer", m.ID()))
	if len(peers) == 1 {
		t.pair(peers[0], true)
	}
	return nil
}

// pair adopts peer as the partner if none is set and starts negotiating.
func (t *Transport) pair(peer string, initiator bool) {
	t.mu.Lock()
	if t.closed || t.membership == nil || t.partner != "" {
		t.mu.Unlock()
		return
	}
	m := t.membership
	neg, err := t.opts.Connector.Negotiate(initiator,
		func(payload []byte) error {
			ctx, cancel := context.WithTimeout(context.Background(), t.opts.ConnectTimeout)
			defer cancel()
			return m.Send(ctx, peer, payload)
		},
		LinkHandlers{
			OnOpen:    func() { t.linkOpened(peer) },
			OnMessage: func(data []byte) { t.linkMessage(peer, data) },
			OnClose:   func(err error) { t.dropPartner(peer, err) },
		})
	if err != nil {
		t.mu.Unlock()
		t.logger.Error("negotiating link", zap.String("peer", peer), zap.Error(err))
		return
	}
	t.partner = peer
	t.link = neg
	t.mu.Unlock()

	t.logger.Debug("negotiating link", zap.String("peer", peer), zap.Bool("initiator", initiator))
	if err := neg.Start(); err != nil {
		t.logger.Warn("starting link", zap.String("peer", peer), zap.Error(err))
		t.dropPartner(peer, err)
	}
}

// linkOpened announces identity once the direct link is up.
func (t *Transport) linkOpened(peer string) {
	t.mu.Lock()
	if t.closed || t.partner != peer || t.open {
		t.mu.Unlock()
		return
	}
	t.open = true
	t.mu.Unlock()

	t.logger.Info("peer link open", zap.String("peer", peer))
	ctx, cancel := context.WithTimeout(context.Background(), t.opts.ConnectTimeout)
	defer cancel()
	if t.opts.Identity.Name != "" {
		if err := t.SendName(ctx, t.opts.Identity.Name); err != nil {
			t.logger.Warn("announcing name", zap.Error(err))
		}
	}
	if err := t.SendCharacter(ctx, t.opts.Identity.CharacterSlug); err != nil {
		t.logger.Warn("announcing character", zap.Error(err))
	}
	t.EmitPeer(transport.PeerEvent{Kind: transport.PeerJoined, Peers: 2})
}

func (t *Transport) linkMessage(peer string, data []byte) {
	t.mu.Lock()
	partner := t.partner
	t.mu.Unlock()
	if peer != partner {
		return
	}
	e, err := protocol.Decode(data)
	if err != nil {
		t.logger.Warn("dropping malformed peer message", zap.Error(err))
		return
	}
	if e.Type == protocol.TypeLeave {
		t.dropPartner(peer, nil)
		return
	}
	wsclient.Dispatch(&t.Callbacks, e)
}

// dropPartner tears down the link to peer and reports its departure.
func (t *Transport) dropPartner(peer string, err error) {
	t.mu.Lock()
	if t.partner != peer {
		t.mu.Unlock()
		return
	}
	neg, wasOpen, closed := t.link, t.open, t.closed
	t.partner, t.link, t.open = "", nil, false
	remaining := 0
	if t.membership != nil {
		remaining = 1
	}
	t.mu.Unlock()

	if neg != nil {
		_ = neg.Close()
	}
	if closed {
		return
	}
	t.logger.Info("partner gone", zap.String("peer", peer), zap.Bool("linked", wasOpen), zap.Error(err))
	t.EmitPeer(transport.PeerEvent{Kind: transport.PeerLeft, Peers: remaining})
}

func (t *Transport) onPresence(peer string, joined bool) {
	if joined {
		t.pair(peer, false)
		return
	}
	t.mu.Lock()
	open := t.open && t.partner == peer
	t.mu.Unlock()
	if open {
		// The partner lost signalling; the link reports its own end.
		t.logger.Debug("partner left signalling", zap.String("peer", peer))
		return
	}
	t.dropPartner(peer, nil)
}

func (t *Transport) onSignal(from string, payload []byte) {
	t.mu.Lock()
	partner := t.partner
	t.mu.Unlock()
	if partner == "" {
		t.pair(from, false)
	}
	t.mu.Lock()
	partner, neg := t.partner, t.link
	t.mu.Unlock()
	if from != partner || neg == nil {
		t.logger.Debug("ignoring signal from unpaired peer", zap.String("peer", from))
		return
	}
	if err := neg.HandleSignal(payload); err != nil {
		t.logger.Warn("link setup failed", zap.String("peer", from), zap.Error(err))
		t.dropPartner(from, err)
	}
}

// onBrokerClosed handles loss of signalling. An open link carries on; a
// pending negotiation cannot complete without the broker.
func (t *Transport) onBrokerClosed(err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.membership = nil
	if t.open {
		t.mu.Unlock()
		t.logger.Warn("signalling connection lost; peer link still open", zap.Error(err))
		return
	}
	neg := t.link
	t.partner, t.link = "", nil
	t.mu.Unlock()
	if neg != nil {
		_ = neg.Close()
	}
	t.logger.Warn("signalling connection lost", zap.Error(err))
	t.EmitPeer(transport.PeerEvent{Kind: transport.PeerConnectionLost})
}

func (t *Transport) send(e protocol.Envelope) error {
	t.mu.Lock()
	neg, open, closed := t.link, t.open, t.closed
	t.mu.Unlock()
	switch {
	case closed:
		return transport.ErrClosed
	case neg == nil || !open:
		return transport.ErrNotConnected
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := neg.Send(payload); err != nil {
		return fmt.Errorf("peer link: %w", err)
	}
	return nil
}

// SendMove implements transport.Transport.
func (t *Transport) SendMove(_ context.Context, m transport.MoveMessage) error {
	return t.send(wsclient.MoveEnvelope(m))
}

// SendName implements transport.Transport.
func (t *Transport) SendName(_ context.Context, name string) error {
	return t.send(protocol.Envelope{Type: protocol.TypeName, Name: name})
}

// SendCharacter implements transport.Transport.
func (t *Transport) SendCharacter(_ context.Context, slug string) error {
	return t.send(protocol.Envelope{Type: protocol.TypeCharacter, CharacterSlug: slug})
}

// Disconnect implements transport.Transport. The partner is told over the
// link before it closes.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	m, neg, open := t.membership, t.link, t.open
	t.membership, t.link, t.partner, t.open = nil, nil, "", false
	t.mu.Unlock()

	t.Release()
	if neg != nil {
		if open {
			_ = neg.Send(protocol.MustEncode(protocol.Envelope{Type: protocol.TypeLeave}))
		}
		_ = neg.Close()
	}
	if m == nil {
		return nil
	}
	return m.Leave()
}

// PeerCount implements transport.Transport: 2 while the link is open, 1
// while waiting in a room, else 0.
func (t *Transport) PeerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.open:
		return 2
	case t.membership != nil:
		return 1
	default:
		return 0
	}
}
