package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/content"
	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/game/character"
	"github.com/cory-johannsen/duel/internal/game/dice"
	"github.com/cory-johannsen/duel/internal/game/duel"
	"github.com/cory-johannsen/duel/internal/storage/memory"
	"github.com/cory-johannsen/duel/internal/transport"
	"github.com/cory-johannsen/duel/internal/transport/edge"
	"github.com/cory-johannsen/duel/internal/transport/mesh"
	"github.com/cory-johannsen/duel/internal/transport/relaysocket"
	"github.com/cory-johannsen/duel/internal/transport/synthetic"
)

func defaultConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.LoadFromViper(config.NewViper())
	require.NoError(t, err)
	return cfg
}

func TestBuildTransport_SelectsImplementation(t *testing.T) {
	cat, err := content.Catalog()
	require.NoError(t, err)
	p := transportParams{
		Identity: transport.Identity{Name: "Ada", CharacterSlug: "knight"},
		Opponent: "goblin",
		Catalog:  cat,
		Roller:   dice.NewRoller(dice.NewSeededSource(1), zap.NewNop()),
		Logger:   zap.NewNop(),
	}
	cases := map[string]any{
		"synthetic": &synthetic.Transport{},
		"relay":     &relaysocket.Transport{},
		"edge":      &edge.Transport{},
		"mesh":      &mesh.Transport{},
	}
	for name, want := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := defaultConfig(t)
			cfg.Client.Transport = name
			tr, err := buildTransport(cfg, p)
			require.NoError(t, err)
			assert.IsType(t, want, tr)
		})
	}

	cfg := defaultConfig(t)
	cfg.Client.Transport = "carrier-pigeon"
	_, err = buildTransport(cfg, p)
	assert.Error(t, err)
}

func TestBuildStore_Memory(t *testing.T) {
	cfg := defaultConfig(t)
	store, release, err := buildStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer release()
	assert.IsType(t, &memory.Store{}, store)

	cfg.Storage.Backend = "tape"
	_, _, err = buildStore(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestBuildCatalog_Bundled(t *testing.T) {
	cat, err := buildCatalog(config.ClientConfig{}, zap.NewNop())
	require.NoError(t, err)
	slugs, err := cat.Available(context.Background())
	require.NoError(t, err)
	assert.Contains(t, slugs, "knight")
}

func TestPickOpponent(t *testing.T) {
	cat, err := content.Catalog()
	require.NoError(t, err)
	ctx := context.Background()

	got, err := pickOpponent(ctx, cat, "knight", "")
	require.NoError(t, err)
	assert.Equal(t, "goblin", got)

	got, err = pickOpponent(ctx, cat, "knight", "knight")
	require.NoError(t, err)
	assert.Equal(t, "knight", got)
}

func TestRenderer_RoundAndGameOver(t *testing.T) {
	var out bytes.Buffer
	legal := []character.Move{{ID: "1", Name: "Smash", Tag: "Down Swing", Type: "strong", Modifier: 2}}
	r := newRenderer(&out, func() ([]character.Move, error) { return legal, nil })

	r.handle(duel.Event{Kind: duel.EventRoundCompleted, Round: 0, Record: &duel.RoundRecord{
		Round:    0,
		Self:     duel.SideReport{Move: "1", Result: duel.ResultView{Text: "Glancing blow"}, TotalScore: 2, HealthAfter: 10},
		Opponent: duel.SideReport{Move: "4", Result: duel.ResultView{Text: "Ducked"}, HealthAfter: 12, HintOwed: true},
	}})
	text := out.String()
	assert.Contains(t, text, "round 1")
	assert.Contains(t, text, "Glancing blow")
	assert.Contains(t, text, "must hint")
	assert.Contains(t, text, "Smash")

	r.handle(duel.Event{Kind: duel.EventGameOver, Outcome: duel.OutcomeVictory})
	assert.Equal(t, duel.OutcomeVictory, <-r.done)
}

func TestCheckPlayFlags_ResumeNeedsNetworkOpponent(t *testing.T) {
	cfg := defaultConfig(t)
	require.Equal(t, "synthetic", cfg.Client.Transport)
	assert.NoError(t, checkPlayFlags(cfg, ""))
	assert.ErrorIs(t, checkPlayFlags(cfg, "game-1"), errResumeSynthetic)

	for _, tr := range []string{"relay", "edge", "mesh"} {
		cfg.Client.Transport = tr
		assert.NoError(t, checkPlayFlags(cfg, "game-1"), tr)
	}
}
