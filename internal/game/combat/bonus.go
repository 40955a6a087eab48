package combat

import "github.com/cory-johannsen/duel/internal/game/character"

// Accumulate sums every grant entry keyed by m's type, tag or name.
//
// Postcondition: Returns 0 for nil or empty grants.
func Accumulate(m character.Move, grants []character.BonusGrant) int {
	total := 0
	for _, g := range grants {
		for key, amount := range g {
			if key == m.Type || key == m.Tag || key == m.Name {
				total += amount
			}
		}
	}
	return total
}

// TotalScore is base+modifier+bonus floored at zero. A nil base counts as 0.
//
// Postcondition: Returns >= 0.
func TotalScore(base *int, modifier, bonus int) int {
	b := 0
	if base != nil {
		b = *base
	}
	return max(0, b+modifier+bonus)
}

// Damage is the health a result's owner loses to the attacker: the total
// score for scored results and nothing otherwise. Self damage is not included.
//
// Postcondition: Returns >= 0.
func Damage(r character.Result, attackerMove character.Move, bonus int) int {
	if !r.Scored() {
		return 0
	}
	return TotalScore(r.Score, attackerMove.Modifier, bonus)
}
