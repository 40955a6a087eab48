package duel_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/duel/internal/game/duel"
	"github.com/cory-johannsen/duel/internal/game/moves"
)

func move(id string, round int) duel.ChosenMove {
	return duel.ChosenMove{MoveID: id, Round: round}
}

func newSession(t testing.TB) *duel.Session {
	return duel.NewSession("g", fencer(t, "fencer"), fencer(t, "rival"))
}

func TestSession_ZeroScoreLeavesHealthUnchanged(t *testing.T) {
	s := newSession(t)
	rec, integrity, err := s.Resolve(move("1", 0), move("1", 0))
	require.NoError(t, err)
	assert.Empty(t, integrity)

	assert.Equal(t, 10, s.Self.Health)
	assert.Equal(t, 10, s.Opponent.Health)
	assert.Equal(t, "even", rec.Self.Outcome)
	assert.Empty(t, rec.Self.NextRoundBonus)
	assert.Empty(t, rec.Opponent.NextRoundBonus)
	assert.False(t, rec.Self.HintOwed)
	assert.False(t, rec.Opponent.HintOwed)
	assert.Equal(t, 1, s.SelfRound)
	assert.Equal(t, 1, s.OpponentRound)
}

func TestSession_DamageIsCrossApplied(t *testing.T) {
	s := newSession(t)
	// Lunge into a parry: the parrying side takes the lunge modifier, the
	// lunging side is left overextended.
	rec, _, err := s.Resolve(move("2", 0), move("3", 0))
	require.NoError(t, err)

	assert.Equal(t, 10, s.Self.Health)
	assert.Equal(t, 9, s.Opponent.Health)
	assert.Equal(t, "overextended", rec.Self.Outcome)
	assert.Equal(t, "parried", rec.Opponent.Outcome)
	assert.Equal(t, 1, rec.Opponent.TotalScore)
	assert.Equal(t, 1, rec.Opponent.Modifier)
	assert.Equal(t, []string{"strong"}, rec.Self.Restrictions)
}

func TestSession_RestrictionGovernsOwnerOnly(t *testing.T) {
	s := newSession(t)
	_, _, err := s.Resolve(move("2", 0), move("3", 0))
	require.NoError(t, err)

	assert.Equal(t, moves.Constraint{Range: "close", Restrict: []string{"strong"}}, s.SelfConstraint())
	assert.Empty(t, s.OpponentConstraint().Restrict)

	legal, err := s.SelfLegalMoves()
	require.NoError(t, err)
	assert.Len(t, legal, 2)
	oppLegal, err := s.OpponentLegalMoves()
	require.NoError(t, err)
	assert.Len(t, oppLegal, 3)
}

func TestSession_BonusCarriesFromOwnExperiencedResult(t *testing.T) {
	s := newSession(t)
	_, _, err := s.Resolve(move("2", 0), move("3", 0))
	require.NoError(t, err)
	assert.Equal(t, 2, s.OpponentGrants()[0]["strong"])
	assert.Empty(t, s.SelfGrants())

	// The opponent's lunge now carries +2: base 2, modifier 1, bonus 2.
	rec, _, err := s.Resolve(move("1", 1), move("2", 1))
	require.NoError(t, err)
	assert.Equal(t, "lunged", rec.Self.Outcome)
	assert.Equal(t, 2, rec.Self.Bonus)
	assert.Equal(t, 5, rec.Self.TotalScore)
	assert.Equal(t, 5, s.Self.Health)
}

func TestSession_HintObligationFallsOnInflictingSide(t *testing.T) {
	s := newSession(t)
	rec, _, err := s.Resolve(move("1", 0), move("2", 0))
	require.NoError(t, err)

	assert.Equal(t, "feinted", rec.Opponent.Outcome)
	assert.True(t, rec.Self.HintOwed)
	assert.False(t, rec.Opponent.HintOwed)
	assert.True(t, s.SelfHintOwed())
	assert.False(t, s.OpponentHintOwed())
}

func TestSession_HealOnlyWhenUnscoredAndCapped(t *testing.T) {
	s := newSession(t)
	_, _, err := s.Resolve(move("1", 0), move("2", 0))
	require.NoError(t, err)
	require.Equal(t, 7, s.Self.Health)

	rec, _, err := s.Resolve(move("3", 1), move("3", 1))
	require.NoError(t, err)
	assert.Equal(t, 9, s.Self.Health)
	assert.Equal(t, 2, rec.Self.Healed)
	assert.Equal(t, 10, s.Opponent.Health, "heal never exceeds starting health")
	assert.Equal(t, 0, rec.Opponent.Healed)
}

func TestSession_ResolveRejectsMismatchWithoutMutation(t *testing.T) {
	s := newSession(t)
	before := s.Snapshot(time.Time{})

	_, _, err := s.Resolve(move("2", 0), move("2", 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, duel.ErrRoundMismatch))

	s.OpponentRound = 1
	_, _, err = s.Resolve(move("2", 0), move("2", 0))
	assert.True(t, errors.Is(err, duel.ErrRoundMismatch))
	s.OpponentRound = 0

	assert.Equal(t, before, s.Snapshot(time.Time{}))
}

func TestSession_ResolveRejectsUnknownMove(t *testing.T) {
	s := newSession(t)
	_, _, err := s.Resolve(move("42", 0), move("1", 0))
	assert.True(t, errors.Is(err, duel.ErrIllegalMove))
	assert.Empty(t, s.Rounds)
}

func TestSession_MissingEntryFallsBackToNeutral(t *testing.T) {
	self := fencer(t, "fencer").Clone()
	delete(self.Table["2"], "2")
	s := duel.NewSession("g", self, fencer(t, "rival"))

	rec, integrity, err := s.Resolve(move("2", 0), move("2", 0))
	require.NoError(t, err)
	require.Len(t, integrity, 1)
	assert.True(t, rec.Self.Fallback)
	assert.Equal(t, "neutral", rec.Self.Outcome)
	assert.Equal(t, 10, s.Self.Health)
	assert.Equal(t, "trade", rec.Opponent.Outcome)
	assert.Equal(t, 8, s.Opponent.Health)
}

func TestSession_OutcomeAndOver(t *testing.T) {
	s := newSession(t)
	assert.Equal(t, duel.OutcomeNone, s.Outcome())

	s.Opponent.Health = 0
	assert.True(t, s.Over())
	assert.Equal(t, duel.OutcomeVictory, s.Outcome())

	s.Self.Health = -1
	assert.Equal(t, duel.OutcomeDraw, s.Outcome())

	s.Opponent.Health = 3
	assert.Equal(t, duel.OutcomeDefeat, s.Outcome())
}

func TestSession_Property_AtMostOneMutationPerRound(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := newSession(t)
		ids := []string{"1", "2", "3"}
		rounds := rapid.IntRange(1, 8).Draw(rt, "rounds")
		for r := 0; r < rounds && !s.Over(); r++ {
			selfLegal, err := s.SelfLegalMoves()
			require.NoError(rt, err)
			oppLegal, err := s.OpponentLegalMoves()
			require.NoError(rt, err)
			a := rapid.SampledFrom(selfLegal).Draw(rt, "self").ID
			b := rapid.SampledFrom(oppLegal).Draw(rt, "opp").ID
			_, _, err = s.Resolve(move(a, r), move(b, r))
			require.NoError(rt, err)

			afterSelf, afterOpp := s.Self.Health, s.Opponent.Health
			replay := rapid.SampledFrom(ids).Draw(rt, "replay")
			_, _, err = s.Resolve(move(replay, r), move(replay, r))
			require.Error(rt, err)
			assert.Equal(rt, afterSelf, s.Self.Health)
			assert.Equal(rt, afterOpp, s.Opponent.Health)
			assert.Len(rt, s.Rounds, r+1)
		}
	})
}

func TestSnapshot_RestoreRoundTrip(t *testing.T) {
	s := newSession(t)
	_, _, err := s.Resolve(move("2", 0), move("3", 0))
	require.NoError(t, err)

	data, err := s.Snapshot(time.Unix(100, 0)).Encode()
	require.NoError(t, err)
	snap, err := duel.DecodeSnapshot(data)
	require.NoError(t, err)
	restored, err := duel.Restore(snap)
	require.NoError(t, err)

	assert.Equal(t, s.SelfRound, restored.SelfRound)
	assert.Equal(t, s.Opponent.Health, restored.Opponent.Health)
	assert.Equal(t, s.SelfConstraint(), restored.SelfConstraint())
	assert.Equal(t, s.OpponentGrants(), restored.OpponentGrants())
	assert.Equal(t, "3", restored.LastMoves.Opponent.MoveID)
}

func TestSnapshot_RestoreRejectsInconsistentPointers(t *testing.T) {
	snap := newSession(t).Snapshot(time.Now())
	snap.SelfRound = 3
	_, err := duel.Restore(snap)
	assert.True(t, errors.Is(err, duel.ErrRoundMismatch))

	_, err = duel.Restore(duel.Snapshot{GameID: "x"})
	assert.Error(t, err)
}
