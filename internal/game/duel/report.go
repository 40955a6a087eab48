package duel

import (
	"slices"

	"github.com/cory-johannsen/duel/internal/game/character"
)

// ResultView is the presentation form of a result.
type ResultView struct {
	Text  string   `json:"text"`
	Flags []string `json:"flags,omitempty"`
}

// SideReport describes what one side experienced in a round: the result
// looked up in that side's own table, the damage it took and the constraint
// and grants it carries into the next round.
type SideReport struct {
	Character string          `json:"character"`
	Move      string          `json:"move"`
	Outcome   string          `json:"outcome"`
	Result    ResultView      `json:"result"`
	Range     character.Range `json:"range"`
	// Score is the result's base score; nil when unscored.
	Score *int `json:"score"`
	// TotalScore is the damage dealt by the attacker after modifier and bonus.
	TotalScore int `json:"totalScore"`
	// Modifier and Bonus are the attacker's, applied to Score.
	Modifier       int                    `json:"modifier"`
	Bonus          int                    `json:"bonus"`
	NextRoundBonus []character.BonusGrant `json:"nextRoundBonus,omitempty"`
	Restrictions   []string               `json:"restrictions"`
	AllowOnly      []string               `json:"allowOnly,omitempty"`
	SelfDamage     int                    `json:"selfDamage,omitempty"`
	Healed         int                    `json:"healed,omitempty"`
	HealthAfter    int                    `json:"healthAfter"`
	// Hint is what this side disclosed alongside its move this round.
	Hint []string `json:"hint,omitempty"`
	// HintOwed is true when this side must disclose a hint with its next move.
	HintOwed bool `json:"hintOwed"`
	// Fallback is true when the table had no entry and a neutral result was used.
	Fallback bool `json:"fallback,omitempty"`
}

// RoundRecord is the immutable record of one resolved round.
type RoundRecord struct {
	Round    int        `json:"round"`
	Self     SideReport `json:"self"`
	Opponent SideReport `json:"opponent"`
}

// flags lists the effect flags set on r, in a fixed order.
func flags(r character.Result) []string {
	var out []string
	if r.WeaponDislodge {
		out = append(out, "weaponDislodge")
	}
	if r.WeaponDestroy {
		out = append(out, "weaponDestroy")
	}
	if r.ShieldDestroy {
		out = append(out, "shieldDestroy")
	}
	if r.WeaponRetrieve {
		out = append(out, "weaponRetrieve")
	}
	if r.SelfDamage > 0 {
		out = append(out, "selfDamage")
	}
	if r.Heal > 0 {
		out = append(out, "heal")
	}
	if r.ProvideHint {
		out = append(out, "provideHint")
	}
	return out
}

// clone returns a deep copy of rec.
func (rec RoundRecord) clone() RoundRecord {
	rec.Self = rec.Self.clone()
	rec.Opponent = rec.Opponent.clone()
	return rec
}

func (s SideReport) clone() SideReport {
	if s.Score != nil {
		v := *s.Score
		s.Score = &v
	}
	s.Result.Flags = slices.Clone(s.Result.Flags)
	s.Restrictions = slices.Clone(s.Restrictions)
	s.AllowOnly = slices.Clone(s.AllowOnly)
	s.Hint = slices.Clone(s.Hint)
	if s.NextRoundBonus != nil {
		grants := make([]character.BonusGrant, len(s.NextRoundBonus))
		for i, g := range s.NextRoundBonus {
			cp := make(character.BonusGrant, len(g))
			for k, v := range g {
				cp[k] = v
			}
			grants[i] = cp
		}
		s.NextRoundBonus = grants
	}
	return s
}
