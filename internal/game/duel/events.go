package duel

import (
	"sort"
	"sync"

	"github.com/cory-johannsen/duel/internal/transport"
)

// EventKind classifies orchestrator notifications.
type EventKind string

const (
	// EventReady fires once the opponent's character is known and play can begin.
	EventReady EventKind = "ready"
	// EventOpponentName carries the opponent's display name.
	EventOpponentName EventKind = "opponent-name"
	// EventHintReceived carries a hint the opponent disclosed with its move.
	EventHintReceived EventKind = "hint-received"
	// EventRoundCompleted carries the record of a resolved round.
	EventRoundCompleted EventKind = "round-completed"
	// EventDesync reports an opponent move for a round other than the current one.
	EventDesync EventKind = "desync"
	// EventMoveRejected reports an opponent move that cannot be played.
	EventMoveRejected EventKind = "move-rejected"
	// EventGameOver carries the terminal outcome.
	EventGameOver EventKind = "game-over"
	// EventPeer relays a transport presence notification.
	EventPeer EventKind = "peer"
	// EventError reports a failure outside any round, such as an unknown character.
	EventError EventKind = "error"
)

// Event is a notification delivered to subscribers. Only the fields relevant
// to Kind are set.
type Event struct {
	Kind      EventKind
	Round     int
	Record    *RoundRecord
	Replayed  bool
	Hint      []string
	Name      string
	Character string
	Outcome   Outcome
	Peer      transport.PeerEvent
	Err       error
}

// observers is an explicit subscriber list owned by one orchestrator.
type observers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Event)
}

func (o *observers) add(fn func(Event)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = make(map[int]func(Event))
	}
	id := o.next
	o.next++
	o.fns[id] = fn
	return sync.OnceFunc(func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.fns, id)
	})
}

// emit delivers each event to every subscriber in subscription order.
func (o *observers) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	o.mu.Lock()
	ids := make([]int, 0, len(o.fns))
	for id := range o.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), len(ids))
	for i, id := range ids {
		fns[i] = o.fns[id]
	}
	o.mu.Unlock()

	for _, e := range events {
		for _, fn := range fns {
			fn(e)
		}
	}
}

func (o *observers) clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fns = nil
}
