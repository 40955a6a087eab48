package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/duel/content"
	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/game/duel"
	redisstore "github.com/cory-johannsen/duel/internal/storage/redis"
)

func newStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := redisstore.NewClient(config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	st, err := redisstore.NewStore(client, time.Hour)
	require.NoError(t, err)
	return st, mr
}

func snapshot(t *testing.T) duel.Snapshot {
	t.Helper()
	cat, err := content.Catalog()
	require.NoError(t, err)
	ctx := context.Background()
	knight, err := cat.Character(ctx, "knight")
	require.NoError(t, err)
	goblin, err := cat.Character(ctx, "goblin")
	require.NoError(t, err)
	s := duel.NewSession("g-42", knight, goblin)
	_, _, err = s.Resolve(duel.ChosenMove{MoveID: "7"}, duel.ChosenMove{MoveID: "7"})
	require.NoError(t, err)
	return s.Snapshot(time.Unix(1700000000, 0))
}

func TestStore_SaveAndLoad(t *testing.T) {
	st, mr := newStore(t)
	ctx := context.Background()
	snap := snapshot(t)

	require.NoError(t, st.Save(ctx, snap))
	assert.True(t, mr.Exists("duel_session:g-42"))
	assert.Equal(t, time.Hour, mr.TTL("duel_session:g-42"))

	got, err := st.Load(ctx, "g-42")
	require.NoError(t, err)
	assert.Equal(t, snap.SelfRound, got.SelfRound)
	assert.Equal(t, snap.Self.Health, got.Self.Health)
	assert.Equal(t, snap.Rounds[0].Self.Outcome, got.Rounds[0].Self.Outcome)
	assert.True(t, snap.SavedAt.Equal(got.SavedAt))
}

func TestStore_ExpiredSnapshotIsNotFound(t *testing.T) {
	st, mr := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.Save(ctx, snapshot(t)))

	mr.FastForward(2 * time.Hour)
	_, err := st.Load(ctx, "g-42")
	assert.True(t, errors.Is(err, duel.ErrNotFound))
}

func TestStore_Delete(t *testing.T) {
	st, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.Save(ctx, snapshot(t)))
	require.NoError(t, st.Delete(ctx, "g-42"))
	require.NoError(t, st.Delete(ctx, "g-42"))

	_, err := st.Load(ctx, "g-42")
	assert.ErrorIs(t, err, duel.ErrNotFound)
}

func TestStore_CorruptPayload(t *testing.T) {
	st, mr := newStore(t)
	require.NoError(t, mr.Set("duel_session:bad", "{not json"))
	_, err := st.Load(context.Background(), "bad")
	require.Error(t, err)
	assert.False(t, errors.Is(err, duel.ErrNotFound))
}

func TestNewStoreValidation(t *testing.T) {
	_, err := redisstore.NewStore(nil, time.Hour)
	assert.Error(t, err)

	_, err = redisstore.NewClient(config.RedisConfig{})
	assert.Error(t, err)
}
