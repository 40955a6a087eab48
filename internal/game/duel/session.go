// Package duel sequences the rounds of a two-player duel: it owns the live
// session state, applies resolved results to both fighters and synchronizes
// with the opponent through a transport.
package duel

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cory-johannsen/duel/internal/game/character"
	"github.com/cory-johannsen/duel/internal/game/combat"
	"github.com/cory-johannsen/duel/internal/game/moves"
)

var (
	// ErrRoundMismatch indicates the two sides disagree on the current round.
	ErrRoundMismatch = errors.New("round mismatch")
	// ErrAlreadyResolved indicates an attempt to apply a round twice.
	ErrAlreadyResolved = errors.New("round already resolved")
	// ErrIllegalMove indicates a move that is unknown or not legal this round.
	ErrIllegalMove = errors.New("illegal move")
	// ErrGameOver is returned for moves submitted after a terminal round.
	ErrGameOver = errors.New("game over")
	// ErrNotReady is returned for moves submitted before the opponent's character is known.
	ErrNotReady = errors.New("opponent not ready")
)

// Outcome is the terminal result of a duel from the local side's perspective.
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeVictory Outcome = "victory"
	OutcomeDefeat  Outcome = "defeat"
	OutcomeDraw    Outcome = "draw"
)

// ChosenMove is a move one side committed to for a round.
type ChosenMove struct {
	MoveID string   `json:"move"`
	Round  int      `json:"round"`
	Hint   []string `json:"hint,omitempty"`
}

// LastMoves holds the most recent move each side chose.
type LastMoves struct {
	Self     *ChosenMove `json:"self,omitempty"`
	Opponent *ChosenMove `json:"opponent,omitempty"`
}

// Session is the mutable state of one duel seen from the local side. It is not
// safe for concurrent use; the Orchestrator serializes access.
type Session struct {
	GameID        string
	Self          *character.Fighter
	Opponent      *character.Fighter
	Rounds        []RoundRecord
	SelfRound     int
	OpponentRound int
	LastMoves     LastMoves
}

// NewSession starts a duel between private copies of the two templates.
//
// Precondition: self and opponent must be non-nil valid templates.
// Postcondition: Both fighters are at full health and both round pointers are 0.
func NewSession(gameID string, self, opponent *character.Character) *Session {
	return &Session{
		GameID:   gameID,
		Self:     character.NewFighter(self),
		Opponent: character.NewFighter(opponent),
	}
}

// Last returns the most recent round record, or nil before the first round.
func (s *Session) Last() *RoundRecord {
	if len(s.Rounds) == 0 {
		return nil
	}
	return &s.Rounds[len(s.Rounds)-1]
}

// Resolved reports whether round has already been applied.
func (s *Session) Resolved(round int) bool {
	return round < len(s.Rounds)
}

// SelfConstraint is the constraint the previous round left on the local side.
func (s *Session) SelfConstraint() moves.Constraint {
	if last := s.Last(); last != nil {
		return constraintOf(last.Self)
	}
	return moves.Opening(s.Self.Character)
}

// OpponentConstraint is the constraint the previous round left on the opponent.
func (s *Session) OpponentConstraint() moves.Constraint {
	if last := s.Last(); last != nil {
		return constraintOf(last.Opponent)
	}
	return moves.Opening(s.Opponent.Character)
}

// SelfLegalMoves returns the local side's legal moves for the current round.
func (s *Session) SelfLegalMoves() ([]character.Move, error) {
	return moves.Legal(s.Self, s.SelfConstraint())
}

// OpponentLegalMoves returns the opponent's legal moves for the current round.
func (s *Session) OpponentLegalMoves() ([]character.Move, error) {
	return moves.Legal(s.Opponent, s.OpponentConstraint())
}

// SelfGrants are the bonus grants the local side carries into the current round.
func (s *Session) SelfGrants() []character.BonusGrant {
	if last := s.Last(); last != nil {
		return last.Self.NextRoundBonus
	}
	return nil
}

// OpponentGrants are the bonus grants the opponent carries into the current round.
func (s *Session) OpponentGrants() []character.BonusGrant {
	if last := s.Last(); last != nil {
		return last.Opponent.NextRoundBonus
	}
	return nil
}

// SelfHintOwed reports whether the local side must disclose a hint this round.
func (s *Session) SelfHintOwed() bool {
	last := s.Last()
	return last != nil && last.Self.HintOwed
}

// OpponentHintOwed reports whether the opponent must disclose a hint this round.
func (s *Session) OpponentHintOwed() bool {
	last := s.Last()
	return last != nil && last.Opponent.HintOwed
}

// Over reports whether either fighter is out of health.
func (s *Session) Over() bool {
	return !s.Self.Alive() || !s.Opponent.Alive()
}

// Outcome returns the terminal outcome, or OutcomeNone while both fighters stand.
func (s *Session) Outcome() Outcome {
	switch {
	case !s.Self.Alive() && !s.Opponent.Alive():
		return OutcomeDraw
	case !s.Self.Alive():
		return OutcomeDefeat
	case !s.Opponent.Alive():
		return OutcomeVictory
	default:
		return OutcomeNone
	}
}

// Resolve applies the current round to both fighters.
//
// Two resolutions run: the opponent's table yields what the opponent
// experiences from the local move, and the local table yields what the local
// side experiences. Each side loses the total score of the result it
// experienced, computed with the attacker's modifier and carried bonus. A
// missing table entry is replaced by a neutral result and reported in the
// returned integrity slice.
//
// Precondition: both moves must name the current round and both round pointers must agree.
// Postcondition: On success exactly one RoundRecord is appended and both
// pointers advance by one. On error the session is unchanged.
func (s *Session) Resolve(self, opponent ChosenMove) (RoundRecord, []error, error) {
	round := s.SelfRound
	if s.Resolved(round) {
		return RoundRecord{}, nil, fmt.Errorf("%w: round %d", ErrAlreadyResolved, round)
	}
	if s.SelfRound != s.OpponentRound || self.Round != round || opponent.Round != round {
		return RoundRecord{}, nil, fmt.Errorf("%w: pointers self=%d opponent=%d, moves self=%d opponent=%d",
			ErrRoundMismatch, s.SelfRound, s.OpponentRound, self.Round, opponent.Round)
	}
	selfMove, ok := s.Self.Character.Move(self.MoveID)
	if !ok {
		return RoundRecord{}, nil, fmt.Errorf("%w: %s has no move %q", ErrIllegalMove, s.Self.Character.Slug, self.MoveID)
	}
	oppMove, ok := s.Opponent.Character.Move(opponent.MoveID)
	if !ok {
		return RoundRecord{}, nil, fmt.Errorf("%w: %s has no move %q", ErrIllegalMove, s.Opponent.Character.Slug, opponent.MoveID)
	}

	selfBonus := combat.Accumulate(selfMove, s.SelfGrants())
	oppBonus := combat.Accumulate(oppMove, s.OpponentGrants())

	var integrity []error
	oppExp, oppFallback := experience(s.Opponent.Character, selfMove, oppMove, &integrity)
	selfExp, selfFallback := experience(s.Self.Character, oppMove, selfMove, &integrity)

	selfRep := apply(s.Self, selfExp, selfMove, oppMove, oppBonus)
	oppRep := apply(s.Opponent, oppExp, oppMove, selfMove, selfBonus)
	selfRep.Fallback = selfFallback
	oppRep.Fallback = oppFallback
	selfRep.Hint = slices.Clone(self.Hint)
	oppRep.Hint = slices.Clone(opponent.Hint)
	// Disclosure falls on the side that inflicted a hint-providing result.
	selfRep.HintOwed = combat.MustHint(&oppExp)
	oppRep.HintOwed = combat.MustHint(&selfExp)

	rec := RoundRecord{Round: round, Self: selfRep, Opponent: oppRep}
	s.Rounds = append(s.Rounds, rec)
	s.SelfRound++
	s.OpponentRound++
	s.LastMoves = LastMoves{Self: &self, Opponent: &opponent}
	return rec.clone(), integrity, nil
}

func experience(defender *character.Character, attackerMove, defenderMove character.Move, integrity *[]error) (character.Result, bool) {
	r, err := combat.Resolve(defender, attackerMove, defenderMove)
	if err != nil {
		*integrity = append(*integrity, err)
		return combat.NeutralResult(defenderMove.Range), true
	}
	return r, false
}

// apply mutates f with the result it experienced and reports it.
func apply(f *character.Fighter, exp character.Result, own, attacker character.Move, attackerBonus int) SideReport {
	dealt := combat.Damage(exp, attacker, attackerBonus)
	heal := 0
	if !exp.Scored() {
		heal = exp.Heal
	}
	lost := dealt + max(0, exp.SelfDamage)
	before := f.Health
	f.Adjust(lost, heal)
	f.Apply(exp)

	restrict := append([]string{}, exp.Restrict...)
	return SideReport{
		Character:      f.Character.Slug,
		Move:           own.ID,
		Outcome:        exp.ID,
		Result:         ResultView{Text: exp.Name, Flags: flags(exp)},
		Range:          exp.Range,
		Score:          exp.Score,
		TotalScore:     dealt,
		Modifier:       attacker.Modifier,
		Bonus:          attackerBonus,
		NextRoundBonus: exp.Bonus,
		Restrictions:   restrict,
		AllowOnly:      exp.AllowOnly,
		SelfDamage:     max(0, exp.SelfDamage),
		Healed:         f.Health - (before - lost),
		HealthAfter:    f.Health,
	}
}

func constraintOf(rep SideReport) moves.Constraint {
	return moves.Constraint{
		Range:     rep.Range,
		Restrict:  slices.Clone(rep.Restrictions),
		AllowOnly: slices.Clone(rep.AllowOnly),
	}
}
