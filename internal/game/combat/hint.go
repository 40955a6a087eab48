package combat

import (
	"slices"

	"github.com/cory-johannsen/duel/internal/game/character"
)

// MustHint reports whether previous obliges the other side to disclose its
// next move. previous is the result the opponent experienced last round.
func MustHint(previous *character.Result) bool {
	return previous != nil && previous.ProvideHint
}

// BuildHint returns the chosen move id with its numeric neighbours in c's
// moveset: [prev, current, next], omitting a neighbour at either boundary.
//
// Postcondition: Returns 2 or 3 ids containing m.ID, or nil when fewer than
// two ids are obtainable or m is not in the moveset.
func BuildHint(m character.Move, c *character.Character) []string {
	ids := c.MoveIDs()
	pos := slices.Index(ids, m.ID)
	if pos < 0 {
		return nil
	}
	lo := max(0, pos-1)
	hi := min(len(ids), pos+2)
	if hi-lo < 2 {
		return nil
	}
	return slices.Clone(ids[lo:hi])
}
