package mesh

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrLinkNotOpen is returned by Negotiation.Send before the link opens.
	ErrLinkNotOpen = errors.New("peer link not open")
	// ErrLinkClosed is returned by Negotiation.Send after Close.
	ErrLinkClosed = errors.New("peer link closed")
)

// LinkHandlers receive a negotiation's events. OnMessage may fire before
// OnOpen on the answering side. OnClose fires once, only when the remote end
// goes away.
type LinkHandlers struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnClose   func(err error)
}

// Connector sets up direct links between two peers. Setup messages travel
// through signal, which delivers them to the partner's HandleSignal via the
// broker; application traffic never does.
type Connector interface {
	Negotiate(initiator bool, signal func(payload []byte) error, h LinkHandlers) (Negotiation, error)
}

// Negotiation is one side of a direct link, from setup through teardown.
type Negotiation interface {
	// Start sends the opening setup message when this side initiates.
	Start() error
	// HandleSignal consumes a setup message from the partner.
	HandleSignal(payload []byte) error
	// Send writes one ordered, reliable message to the partner.
	Send(data []byte) error
	Close() error
}

// LocalConnector links peers in the same process through buffered pipes. Both
// sides must use the same LocalConnector.
type LocalConnector struct {
	mu      sync.Mutex
	pending map[string]*pipeEnd
}

// NewLocalConnector creates an empty connector.
func NewLocalConnector() *LocalConnector {
	return &LocalConnector{pending: make(map[string]*pipeEnd)}
}

type pipeSignal struct {
	Kind  string `json:"kind"`
	Token string `json:"token"`
}

type pipeEnd struct {
	c         *LocalConnector
	initiator bool
	signal    func([]byte) error
	h         LinkHandlers
	queue     chan func()

	mu     sync.Mutex
	token  string
	peer   *pipeEnd
	closed bool
}

// Negotiate implements Connector.
func (c *LocalConnector) Negotiate(initiator bool, signal func([]byte) error, h LinkHandlers) (Negotiation, error) {
	e := &pipeEnd{c: c, initiator: initiator, signal: signal, h: h, queue: make(chan func(), 256)}
	go e.run()
	return e, nil
}

func (e *pipeEnd) Start() error {
	if !e.initiator {
		return nil
	}
	token := uuid.NewString()
	e.mu.Lock()
	e.token = token
	e.mu.Unlock()
	e.c.mu.Lock()
	e.c.pending[token] = e
	e.c.mu.Unlock()
	return e.send(pipeSignal{Kind: "offer", Token: token})
}

func (e *pipeEnd) HandleSignal(payload []byte) error {
	var s pipeSignal
	if err := json.Unmarshal(payload, &s); err != nil {
		return fmt.Errorf("decoding pipe signal: %w", err)
	}
	switch s.Kind {
	case "offer":
		e.c.mu.Lock()
		offerer, ok := e.c.pending[s.Token]
		delete(e.c.pending, s.Token)
		e.c.mu.Unlock()
		if !ok {
			return fmt.Errorf("unknown pipe offer %s", s.Token)
		}
		offerer.mu.Lock()
		offerer.peer = e
		offerer.mu.Unlock()
		e.mu.Lock()
		e.peer = offerer
		e.mu.Unlock()
		if err := e.send(pipeSignal{Kind: "answer", Token: s.Token}); err != nil {
			return err
		}
		e.enqueue(e.h.OnOpen)
	case "answer":
		e.enqueue(e.h.OnOpen)
	default:
		return fmt.Errorf("unexpected pipe signal %q", s.Kind)
	}
	return nil
}

func (e *pipeEnd) Send(data []byte) error {
	e.mu.Lock()
	peer, closed := e.peer, e.closed
	e.mu.Unlock()
	switch {
	case closed:
		return ErrLinkClosed
	case peer == nil:
		return ErrLinkNotOpen
	}
	msg := append([]byte(nil), data...)
	peer.enqueue(func() {
		if peer.h.OnMessage != nil {
			peer.h.OnMessage(msg)
		}
	})
	return nil
}

func (e *pipeEnd) Close() error {
	peer := e.shutdown()
	if peer != nil {
		peer.enqueue(func() {
			if peer.h.OnClose != nil {
				peer.h.OnClose(ErrLinkClosed)
			}
		})
		peer.closeAfterQueue()
	}
	return nil
}

// shutdown marks e closed and returns the peer it was linked to, once.
func (e *pipeEnd) shutdown() *pipeEnd {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	peer := e.peer
	e.peer = nil
	if e.token != "" {
		e.c.mu.Lock()
		delete(e.c.pending, e.token)
		e.c.mu.Unlock()
	}
	close(e.queue)
	return peer
}

// closeAfterQueue closes e once the OnClose already queued has been
// scheduled, so the remote side stops accepting traffic.
func (e *pipeEnd) closeAfterQueue() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.peer = nil
	close(e.queue)
}

func (e *pipeEnd) send(s pipeSignal) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return e.signal(data)
}

func (e *pipeEnd) enqueue(fn func()) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.queue <- fn
}

func (e *pipeEnd) run() {
	for fn := range e.queue {
		fn()
	}
}
