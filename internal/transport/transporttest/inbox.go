package transporttest

import (
	"testing"
	"time"

	"github.com/cory-johannsen/duel/internal/transport"
)

// Wait bounds every Inbox receive.
const Wait = 3 * time.Second

// Inbox captures everything a Transport delivers to its callbacks.
type Inbox struct {
	Moves      chan transport.MoveMessage
	Names      chan string
	Characters chan string
	Peers      chan transport.PeerEvent
}

// Listen registers an Inbox as tr's callbacks.
func Listen(tr transport.Transport) *Inbox {
	in := &Inbox{
		Moves:      make(chan transport.MoveMessage, 32),
		Names:      make(chan string, 32),
		Characters: make(chan string, 32),
		Peers:      make(chan transport.PeerEvent, 32),
	}
	tr.OnMove(func(m transport.MoveMessage) { in.Moves <- m })
	tr.OnName(func(n string) { in.Names <- n })
	tr.OnCharacter(func(s string) { in.Characters <- s })
	tr.OnPeer(func(e transport.PeerEvent) { in.Peers <- e })
	return in
}

// Receive returns the next value from ch, failing t after Wait.
func Receive[T any](t testing.TB, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(Wait):
		var zero T
		t.Fatalf("timed out after %s waiting for %T", Wait, zero)
		return zero
	}
}

// AwaitPeer discards presence events until one of kind arrives.
func AwaitPeer(t testing.TB, in *Inbox, kind transport.PeerEventKind) transport.PeerEvent {
	t.Helper()
	deadline := time.After(Wait)
	for {
		select {
		case e := <-in.Peers:
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for peer event %q", kind)
			return transport.PeerEvent{}
		}
	}
}

// Quiet fails t if ch delivers anything within d.
func Quiet[T any](t testing.TB, ch <-chan T, d time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected delivery: %v", v)
	case <-time.After(d):
	}
}
