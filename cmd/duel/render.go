package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cory-johannsen/duel/internal/game/character"
	"github.com/cory-johannsen/duel/internal/game/duel"
)

// renderer prints orchestrator events as plain text.
type renderer struct {
	mu    sync.Mutex
	out   io.Writer
	legal func() ([]character.Move, error)
	done  chan duel.Outcome
}

func newRenderer(out io.Writer, legal func() ([]character.Move, error)) *renderer {
	return &renderer{out: out, legal: legal, done: make(chan duel.Outcome, 1)}
}

func (r *renderer) handle(e duel.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch e.Kind {
	case duel.EventPeer:
		fmt.Fprintf(r.out, "* %s (%d in room)\n", e.Peer.Kind, e.Peer.Peers)
	case duel.EventOpponentName:
		fmt.Fprintf(r.out, "* your opponent is %s\n", e.Name)
	case duel.EventReady:
		fmt.Fprintf(r.out, "* opponent fights as %s\n", e.Character)
		r.promptLocked()
	case duel.EventHintReceived:
		fmt.Fprintf(r.out, "* hint: the opponent's move is one of %s\n", strings.Join(e.Hint, ", "))
	case duel.EventRoundCompleted:
		r.roundLocked(e)
		if e.Replayed {
			fmt.Fprintln(r.out, "  (restored)")
		}
	case duel.EventGameOver:
		fmt.Fprintf(r.out, "* game over: %s\n", e.Outcome)
		select {
		case r.done <- e.Outcome:
		default:
		}
		return
	case duel.EventDesync, duel.EventMoveRejected, duel.EventError:
		fmt.Fprintf(r.out, "! %s: %v\n", e.Kind, e.Err)
	}
	if e.Kind == duel.EventRoundCompleted {
		r.promptLocked()
	}
}

func (r *renderer) roundLocked(e duel.Event) {
	rec := e.Record
	if rec == nil {
		return
	}
	side := func(who string, s duel.SideReport) {
		fmt.Fprintf(r.out, "  %-9s %-4s %-28s took %2d  health %2d", who, s.Move, s.Result.Text, s.TotalScore+s.SelfDamage, s.HealthAfter)
		if len(s.Restrictions) > 0 {
			fmt.Fprintf(r.out, "  restricted: %s", strings.Join(s.Restrictions, ", "))
		}
		if s.HintOwed {
			fmt.Fprint(r.out, "  must hint")
		}
		fmt.Fprintln(r.out)
	}
	fmt.Fprintf(r.out, "round %d\n", rec.Round+1)
	side("you", rec.Self)
	side("opponent", rec.Opponent)
}

// prompt prints the legal moves for the current round.
func (r *renderer) prompt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.promptLocked()
}

func (r *renderer) promptLocked() {
	moves, err := r.legal()
	if err != nil {
		fmt.Fprintf(r.out, "! %v\n", err)
		return
	}
	if len(moves) == 0 {
		return
	}
	fmt.Fprintln(r.out, "choose a move:")
	for _, m := range moves {
		fmt.Fprintf(r.out, "  %-4s %-20s %-14s %-8s %+d\n", m.ID, m.Name, m.Tag, m.Type, m.Modifier)
	}
}
