package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/duel/content"
	"github.com/cory-johannsen/duel/internal/game/duel"
	"github.com/cory-johannsen/duel/internal/storage/memory"
)

func session(t *testing.T) *duel.Session {
	t.Helper()
	cat, err := content.Catalog()
	require.NoError(t, err)
	ctx := context.Background()
	knight, err := cat.Character(ctx, "knight")
	require.NoError(t, err)
	goblin, err := cat.Character(ctx, "goblin")
	require.NoError(t, err)
	s := duel.NewSession("game-1", knight, goblin)
	_, _, err = s.Resolve(duel.ChosenMove{MoveID: "7"}, duel.ChosenMove{MoveID: "9"})
	require.NoError(t, err)
	return s
}

func TestStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	s := session(t)

	require.NoError(t, st.Save(ctx, s.Snapshot(time.Now())))
	assert.Equal(t, 1, st.Len())

	snap, err := st.Load(ctx, "game-1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.SelfRound)
	require.Len(t, snap.Rounds, 1)
	assert.Equal(t, s.Opponent.Health, snap.Opponent.Health)

	require.NoError(t, st.Delete(ctx, "game-1"))
	_, err = st.Load(ctx, "game-1")
	assert.True(t, errors.Is(err, duel.ErrNotFound))
}

func TestStore_LoadedSnapshotIsIndependent(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	require.NoError(t, st.Save(ctx, session(t).Snapshot(time.Now())))

	a, err := st.Load(ctx, "game-1")
	require.NoError(t, err)
	a.Self.Health = -100

	b, err := st.Load(ctx, "game-1")
	require.NoError(t, err)
	assert.NotEqual(t, -100, b.Self.Health)
}
