package duel_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/duel/internal/game/character"
	"github.com/cory-johannsen/duel/internal/game/duel"
	"github.com/cory-johannsen/duel/internal/storage/memory"
	"github.com/cory-johannsen/duel/internal/transport/transporttest"
)

// fencerYAML is a single-range character whose table exercises every effect
// the orchestrator applies.
const fencerYAML = `
slug: %s
name: Fencer
health: 10
weapon: true
shield: false
opening_move: "1"
moves:
  - {id: "1", tag: "Feint", name: "Feint", range: close, type: special, modifier: 0}
  - {id: "2", tag: "Lunge", name: "Lunge", range: close, type: strong, modifier: 1}
  - {id: "3", tag: "Parry", name: "Parry", range: close, type: defense, modifier: 0}
table:
  "1": {"1": even, "2": feinted, "3": even}
  "2": {"1": lunged, "2": trade, "3": parried}
  "3": {"1": even, "2": overextended, "3": breather}
results:
  even: {name: "Even footing", range: close, score: 0}
  feinted: {name: "Fell for the feint", range: close, provide_hint: true}
  lunged: {name: "Run through", range: close, score: 2}
  trade: {name: "Trade blows", range: close, score: 1}
  parried: {name: "Parried", range: close, score: 0, bonus: [{strong: 2}]}
  overextended: {name: "Overextended", range: close, restrict: ["strong"]}
  breather: {name: "Breather", range: close, heal: 2}
`

func fencer(t testing.TB, slug string) *character.Character {
	t.Helper()
	c, err := character.LoadCharacterFromBytes([]byte(fmt.Sprintf(fencerYAML, slug)))
	require.NoError(t, err)
	return c
}

type harness struct {
	orch  *duel.Orchestrator
	tr    *transporttest.Fake
	store *memory.Store
	self  *character.Character
	opp   *character.Character

	mu     sync.Mutex
	events []duel.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	self := fencer(t, "fencer")
	opp := fencer(t, "rival")
	cat, err := character.NewBundledCatalog(self, opp)
	require.NoError(t, err)

	h := &harness{tr: &transporttest.Fake{}, store: memory.NewStore(), self: self, opp: opp}
	h.orch, err = duel.NewOrchestrator(duel.Options{
		GameID:    "game-1",
		Self:      self,
		Catalog:   cat,
		Transport: h.tr,
		Store:     h.store,
		Logger:    zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	h.orch.Subscribe(func(e duel.Event) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, e)
	})
	require.NoError(t, h.orch.Start(context.Background(), "room-1"))
	return h
}

// ready announces the opponent's character.
func (h *harness) ready() *harness {
	h.tr.EmitCharacter("rival")
	return h
}

func (h *harness) kinds() []duel.EventKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]duel.EventKind, len(h.events))
	for i, e := range h.events {
		out[i] = e.Kind
	}
	return out
}

func (h *harness) last(kind duel.EventKind) (duel.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].Kind == kind {
			return h.events[i], true
		}
	}
	return duel.Event{}, false
}

func (h *harness) healths(t *testing.T) (int, int) {
	t.Helper()
	snap, err := h.orch.Snapshot()
	require.NoError(t, err)
	return snap.Self.Health, snap.Opponent.Health
}
