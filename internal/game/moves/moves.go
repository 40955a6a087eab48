// Package moves filters a fighter's moveset down to the moves legal under the
// constraint left by the previous round.
package moves

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cory-johannsen/duel/internal/game/character"
)

// ErrNoLegalMoves indicates corrupt content: a fighter must always have at
// least one legal move.
var ErrNoLegalMoves = errors.New("no legal moves")

// Constraint limits the next move of the fighter that owns it.
type Constraint struct {
	Range     character.Range `json:"range"`
	Restrict  []string        `json:"restrict,omitempty"`
	AllowOnly []string        `json:"allowOnly,omitempty"`
}

// Opening returns the constraint for a fighter's first round: the range of its
// opening move with no restrictions.
//
// Precondition: c must be valid.
func Opening(c *character.Character) Constraint {
	m, _ := c.Move(c.OpeningMove)
	return Constraint{Range: m.Range}
}

// After returns the constraint a result places on its owner's next move.
func After(r character.Result) Constraint {
	return Constraint{
		Range:     r.Range,
		Restrict:  slices.Clone(r.Restrict),
		AllowOnly: slices.Clone(r.AllowOnly),
	}
}

// Matches reports whether any criterion names m's type, tag or name.
func Matches(m character.Move, criteria []string) bool {
	for _, c := range criteria {
		if c == m.Type || c == m.Tag || c == m.Name {
			return true
		}
	}
	return false
}

// Legal returns the moves f may choose under c, in moveset order.
//
// A non-empty AllowOnly replaces Restrict and is matched against tag or name
// only. Equipment and range requirements apply in both cases.
//
// Precondition: f must be non-nil with a non-nil Character.
// Postcondition: Returns a non-empty slice, or an error wrapping ErrNoLegalMoves.
func Legal(f *character.Fighter, c Constraint) ([]character.Move, error) {
	var out []character.Move
	for _, m := range f.Character.Moves {
		if len(c.AllowOnly) > 0 {
			if !slices.Contains(c.AllowOnly, m.Tag) && !slices.Contains(c.AllowOnly, m.Name) {
				continue
			}
		} else if Matches(m, c.Restrict) {
			continue
		}
		if m.RequiresWeapon && !f.HasWeapon {
			continue
		}
		if m.RequiresShield && !f.HasShield {
			continue
		}
		if m.IsWeaponRetrieval() && !f.CanRetrieveWeapon() {
			continue
		}
		if m.Range != c.Range {
			continue
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s at %s range (restrict %v, allow only %v)",
			ErrNoLegalMoves, f.Character.Slug, c.Range, c.Restrict, c.AllowOnly)
	}
	return out, nil
}

// IsLegal reports whether moveID is among the legal moves of f under c.
func IsLegal(f *character.Fighter, c Constraint, moveID string) bool {
	legal, err := Legal(f, c)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(legal, func(m character.Move) bool { return m.ID == moveID })
}
