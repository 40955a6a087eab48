// Package memory provides an in-process session snapshot store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/cory-johannsen/duel/internal/game/duel"
)

// Store keeps encoded snapshots in a map. Snapshots are stored encoded so
// callers never share state with the store. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Save implements duel.Store.
func (s *Store) Save(_ context.Context, snap duel.Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[snap.GameID] = data
	return nil
}

// Load implements duel.Store.
func (s *Store) Load(_ context.Context, gameID string) (duel.Snapshot, error) {
	s.mu.RLock()
	data, ok := s.data[gameID]
	s.mu.RUnlock()
	if !ok {
		return duel.Snapshot{}, fmt.Errorf("game %s: %w", gameID, duel.ErrNotFound)
	}
	return duel.DecodeSnapshot(data)
}

// Delete implements duel.Store.
func (s *Store) Delete(_ context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, gameID)
	return nil
}

// Len returns the number of stored snapshots.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
