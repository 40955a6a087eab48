package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/duel/internal/game/duel"
)

// SessionRepository stores one snapshot row per game in duel_sessions.
type SessionRepository struct {
	db *pgxpool.Pool
	// owned is set when Open created db, so Close releases it.
	owned bool
}

var _ duel.Store = (*SessionRepository)(nil)

// NewSessionRepository creates a SessionRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// Close releases the pool when the repository was created by Open.
func (r *SessionRepository) Close() {
	if r.owned {
		r.db.Close()
	}
}

// Save upserts the snapshot for snap.GameID.
//
// Postcondition: The row holds snap and its round pointer.
func (r *SessionRepository) Save(ctx context.Context, snap duel.Snapshot) error {
	if snap.GameID == "" {
		return errors.New("snapshot has empty game id")
	}
	data, err := snap.Encode()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO duel_sessions (game_id, round, self_slug, opponent_slug, snapshot, saved_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (game_id) DO UPDATE
		SET round = EXCLUDED.round,
		    snapshot = EXCLUDED.snapshot,
		    saved_at = EXCLUDED.saved_at,
		    updated_at = NOW()`,
		snap.GameID, snap.SelfRound, snap.Self.Character.Slug, snap.Opponent.Character.Slug, data, snap.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("saving snapshot %s: %w", snap.GameID, err)
	}
	return nil
}

// Load returns the snapshot for gameID.
//
// Postcondition: Returns an error wrapping duel.ErrNotFound when no row exists.
func (r *SessionRepository) Load(ctx context.Context, gameID string) (duel.Snapshot, error) {
	var data []byte
	err := r.db.QueryRow(ctx,
		`SELECT snapshot FROM duel_sessions WHERE game_id = $1`, gameID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return duel.Snapshot{}, fmt.Errorf("game %s: %w", gameID, duel.ErrNotFound)
		}
		return duel.Snapshot{}, fmt.Errorf("querying snapshot %s: %w", gameID, err)
	}
	return duel.DecodeSnapshot(data)
}

// Delete removes the row for gameID, if any.
func (r *SessionRepository) Delete(ctx context.Context, gameID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM duel_sessions WHERE game_id = $1`, gameID); err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", gameID, err)
	}
	return nil
}

// Summary is the indexed metadata of a stored game.
type Summary struct {
	GameID       string
	Round        int
	SelfSlug     string
	OpponentSlug string
}

// ListRecent returns up to limit games ordered by most recent save.
//
// Precondition: limit must be > 0.
func (r *SessionRepository) ListRecent(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT game_id, round, self_slug, opponent_slug
		FROM duel_sessions
		ORDER BY saved_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.GameID, &s.Round, &s.SelfSlug, &s.OpponentSlug); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return out, nil
}
