package duel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cory-johannsen/duel/internal/game/character"
)

// ErrNotFound is returned by a Store when no snapshot exists for a game id.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is the persisted point-in-time state of a Session, taken only after
// a round resolves.
type Snapshot struct {
	GameID        string             `json:"gameId"`
	Rounds        []RoundRecord      `json:"rounds"`
	SelfRound     int                `json:"selfRound"`
	OpponentRound int                `json:"opponentRound"`
	Self          *character.Fighter `json:"self"`
	Opponent      *character.Fighter `json:"opponent"`
	LastMoves     LastMoves          `json:"lastMoves"`
	SavedAt       time.Time          `json:"savedAt"`
}

// Store persists session snapshots keyed by game id.
type Store interface {
	// Save replaces any previous snapshot for snap.GameID.
	Save(ctx context.Context, snap Snapshot) error
	// Load returns the latest snapshot, or an error wrapping ErrNotFound.
	Load(ctx context.Context, gameID string) (Snapshot, error)
	// Delete removes the snapshot. Deleting a missing snapshot is not an error.
	Delete(ctx context.Context, gameID string) error
}

// Snapshot returns a deep copy of the session's persistent state.
func (s *Session) Snapshot(now time.Time) Snapshot {
	rounds := make([]RoundRecord, len(s.Rounds))
	for i, r := range s.Rounds {
		rounds[i] = r.clone()
	}
	return Snapshot{
		GameID:        s.GameID,
		Rounds:        rounds,
		SelfRound:     s.SelfRound,
		OpponentRound: s.OpponentRound,
		Self:          s.Self.Clone(),
		Opponent:      s.Opponent.Clone(),
		LastMoves:     cloneLastMoves(s.LastMoves),
		SavedAt:       now.UTC(),
	}
}

// Restore rebuilds a Session from snap without re-applying any round.
//
// Postcondition: Returns a session equal to the one snapshotted, or an error
// when the snapshot is internally inconsistent.
func Restore(snap Snapshot) (*Session, error) {
	if snap.GameID == "" {
		return nil, errors.New("snapshot has empty game id")
	}
	if snap.Self == nil || snap.Self.Character == nil || snap.Opponent == nil || snap.Opponent.Character == nil {
		return nil, fmt.Errorf("snapshot %s: missing fighter", snap.GameID)
	}
	if snap.SelfRound != len(snap.Rounds) || snap.OpponentRound != len(snap.Rounds) {
		return nil, fmt.Errorf("snapshot %s: %w: %d rounds, pointers self=%d opponent=%d",
			snap.GameID, ErrRoundMismatch, len(snap.Rounds), snap.SelfRound, snap.OpponentRound)
	}
	rounds := make([]RoundRecord, len(snap.Rounds))
	for i, r := range snap.Rounds {
		rounds[i] = r.clone()
	}
	return &Session{
		GameID:        snap.GameID,
		Self:          snap.Self.Clone(),
		Opponent:      snap.Opponent.Clone(),
		Rounds:        rounds,
		SelfRound:     snap.SelfRound,
		OpponentRound: snap.OpponentRound,
		LastMoves:     cloneLastMoves(snap.LastMoves),
	}, nil
}

// Encode serializes snap as JSON.
func (snap Snapshot) Encode() ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot %s: %w", snap.GameID, err)
	}
	return data, nil
}

// DecodeSnapshot parses a snapshot produced by Encode.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snap, nil
}

func cloneLastMoves(lm LastMoves) LastMoves {
	cp := func(m *ChosenMove) *ChosenMove {
		if m == nil {
			return nil
		}
		out := *m
		out.Hint = append([]string(nil), m.Hint...)
		return &out
	}
	return LastMoves{Self: cp(lm.Self), Opponent: cp(lm.Opponent)}
}
