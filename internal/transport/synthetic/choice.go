package synthetic

import (
	"github.com/cory-johannsen/duel/internal/game/character"
	"github.com/cory-johannsen/duel/internal/game/combat"
	"github.com/cory-johannsen/duel/internal/game/dice"
)

// Percent chances applied by Pick, in order.
const (
	RetrieveWeaponChance = 25
	BonusMoveChance      = 33
)

// Pick selects one of legal for f: a weapon-retrieval move RetrieveWeaponChance
// percent of the time when f is disarmed, otherwise a move redeeming one of
// grants BonusMoveChance percent of the time, otherwise any legal move
// uniformly.
//
// Precondition: legal must be non-empty; src must be non-nil.
func Pick(legal []character.Move, f *character.Fighter, grants []character.BonusGrant, src dice.Source) character.Move {
	if !f.HasWeapon {
		var retrieve []character.Move
		for _, m := range legal {
			if m.IsWeaponRetrieval() {
				retrieve = append(retrieve, m)
			}
		}
		if len(retrieve) > 0 && src.Intn(100) < RetrieveWeaponChance {
			return retrieve[src.Intn(len(retrieve))]
		}
	}

	var bonused []character.Move
	for _, m := range legal {
		if combat.Accumulate(m, grants) > 0 {
			bonused = append(bonused, m)
		}
	}
	if len(bonused) > 0 && src.Intn(100) < BonusMoveChance {
		return bonused[src.Intn(len(bonused))]
	}

	return legal[src.Intn(len(legal))]
}
