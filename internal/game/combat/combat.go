// Package combat implements the pure resolution, bonus and hint engines that
// turn a pair of simultaneously chosen moves into per-side results.
//
// Every function in this package is free of side effects. Applying results to
// live fighters is the responsibility of the round orchestrator.
package combat

import (
	"errors"
	"fmt"

	"github.com/cory-johannsen/duel/internal/game/character"
)

// ErrResolutionMissing is matched by every *ResolutionMissingError.
var ErrResolutionMissing = errors.New("resolution missing")

// NeutralResultID identifies the fallback result substituted for missing table data.
const NeutralResultID = "neutral"

// ResolutionMissingError reports a hole in a defender's table or result catalog.
type ResolutionMissingError struct {
	Defender     string
	AttackerMove string
	DefenderMove string
	Reason       string
}

// Error implements error.
func (e *ResolutionMissingError) Error() string {
	return fmt.Sprintf("%s: %s table[%s][%s]: %s",
		ErrResolutionMissing, e.Defender, e.AttackerMove, e.DefenderMove, e.Reason)
}

// Is makes errors.Is(err, ErrResolutionMissing) succeed.
func (e *ResolutionMissingError) Is(target error) bool {
	return target == ErrResolutionMissing
}

// Resolve returns the result defender experiences when attackerMove meets
// defenderMove, looked up in defender's own table and result catalog.
//
// Precondition: defender must be non-nil.
// Postcondition: Returns a deep copy of the catalog result, or a
// *ResolutionMissingError when the row, the entry or the result is absent or
// the entry is the Impossible sentinel.
func Resolve(defender *character.Character, attackerMove, defenderMove character.Move) (character.Result, error) {
	missing := func(reason string) (character.Result, error) {
		return character.Result{}, &ResolutionMissingError{
			Defender:     defender.Slug,
			AttackerMove: attackerMove.ID,
			DefenderMove: defenderMove.ID,
			Reason:       reason,
		}
	}
	row, ok := defender.Table[attackerMove.ID]
	if !ok {
		return missing("no row")
	}
	id, ok := row[defenderMove.ID]
	if !ok {
		return missing("no entry")
	}
	if id == character.Impossible {
		return missing("moves cannot co-occur")
	}
	r, ok := defender.Result(id)
	if !ok {
		return missing(fmt.Sprintf("unknown result %q", id))
	}
	return r.Clone(), nil
}

// NeutralResult is the safe fallback for a missing resolution: no score, no
// effects, and the given range so the next move stays legal.
func NeutralResult(rng character.Range) character.Result {
	return character.Result{
		ID:    NeutralResultID,
		Name:  "Nothing happens",
		Range: rng,
	}
}
