// Package redis persists session snapshots in Redis with a sliding TTL.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/game/duel"
)

// Key pattern: duel_session:{gameId}
const keyPrefix = "duel_session:"

// NewClient creates a client for a single Redis instance. Redis connects
// lazily; use Ping to verify reachability.
//
// Precondition: cfg.Addr must be non-empty.
func NewClient(cfg config.RedisConfig) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis: addr is required")
	}
	return goredis.NewClient(&goredis.Options{
		Addr:       cfg.Addr,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}), nil
}

// Store implements duel.Store. Every Save refreshes the key's TTL.
type Store struct {
	client goredis.Cmdable
	ttl    time.Duration
}

var _ duel.Store = (*Store)(nil)

// NewStore creates a store over client.
//
// Precondition: client must be non-nil; ttl must be > 0.
func NewStore(client goredis.Cmdable, ttl time.Duration) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be > 0, got %s", ttl)
	}
	return &Store{client: client, ttl: ttl}, nil
}

// Save implements duel.Store.
func (s *Store) Save(ctx context.Context, snap duel.Snapshot) error {
	if snap.GameID == "" {
		return errors.New("snapshot has empty game id")
	}
	data, err := snap.Encode()
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key(snap.GameID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("storing snapshot %s: %w", snap.GameID, err)
	}
	return nil
}

// Load implements duel.Store.
func (s *Store) Load(ctx context.Context, gameID string) (duel.Snapshot, error) {
	data, err := s.client.Get(ctx, key(gameID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return duel.Snapshot{}, fmt.Errorf("game %s: %w", gameID, duel.ErrNotFound)
		}
		return duel.Snapshot{}, fmt.Errorf("loading snapshot %s: %w", gameID, err)
	}
	return duel.DecodeSnapshot(data)
}

// Delete implements duel.Store.
func (s *Store) Delete(ctx context.Context, gameID string) error {
	if err := s.client.Del(ctx, key(gameID)).Err(); err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", gameID, err)
	}
	return nil
}

func key(gameID string) string {
	return keyPrefix + gameID
}
