// Package character defines the immutable character templates that drive
// combat resolution, and the catalogs that supply them.
//
// Templates are shared and read-only. Code that needs mutable per-session
// state must work on a Clone.
package character

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Range is the distance band a move or result belongs to.
type Range string

const (
	RangeClose  Range = "close"
	RangeMedium Range = "medium"
	RangeFar    Range = "far"
)

// Valid reports whether r is one of the known ranges.
func (r Range) Valid() bool {
	switch r {
	case RangeClose, RangeMedium, RangeFar:
		return true
	}
	return false
}

// Impossible marks a table entry whose two moves cannot co-occur.
const Impossible = "impossible"

// TagRetrieveWeapon identifies the weapon-retrieval move.
const TagRetrieveWeapon = "Retrieve Weapon"

// Move is an action a character can choose in a round.
type Move struct {
	// ID is unique within a character and comparable across characters.
	ID             string `yaml:"id" json:"id"`
	Tag            string `yaml:"tag" json:"tag"`
	Name           string `yaml:"name" json:"name"`
	Range          Range  `yaml:"range" json:"range"`
	Type           string `yaml:"type" json:"type"`
	Modifier       int    `yaml:"modifier" json:"modifier"`
	RequiresWeapon bool   `yaml:"requires_weapon" json:"requiresWeapon"`
	RequiresShield bool   `yaml:"requires_shield" json:"requiresShield"`
}

// IsWeaponRetrieval reports whether m is the move that picks a dropped weapon back up.
func (m Move) IsWeaponRetrieval() bool {
	return m.Tag == TagRetrieveWeapon
}

// BonusGrant maps a move criterion (type, tag or name) to a damage bonus
// redeemable on the following round.
type BonusGrant map[string]int

// Result is the outcome a character experiences when a move pair resolves
// against its own table.
type Result struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Range Range  `yaml:"range" json:"range"`
	// Score is the base damage; nil means the result carries no score.
	Score *int `yaml:"score,omitempty" json:"score,omitempty"`
	// Restrict forbids move types, tags or names on the owner's next move.
	Restrict []string `yaml:"restrict,omitempty" json:"restrict,omitempty"`
	// AllowOnly, when non-empty, overrides Restrict and permits only the
	// listed tags or names.
	AllowOnly      []string     `yaml:"allow_only,omitempty" json:"allowOnly,omitempty"`
	Bonus          []BonusGrant `yaml:"bonus,omitempty" json:"bonus,omitempty"`
	WeaponDislodge bool         `yaml:"weapon_dislodge,omitempty" json:"weaponDislodge,omitempty"`
	WeaponDestroy  bool         `yaml:"weapon_destroy,omitempty" json:"weaponDestroy,omitempty"`
	ShieldDestroy  bool         `yaml:"shield_destroy,omitempty" json:"shieldDestroy,omitempty"`
	WeaponRetrieve bool         `yaml:"weapon_retrieve,omitempty" json:"weaponRetrieve,omitempty"`
	// SelfDamage is suffered by the owner regardless of the attacker's modifier or bonus.
	SelfDamage int `yaml:"self_damage,omitempty" json:"selfDamage,omitempty"`
	// Heal is restored to the owner only when the result is unscored.
	Heal        int  `yaml:"heal,omitempty" json:"heal,omitempty"`
	ProvideHint bool `yaml:"provide_hint,omitempty" json:"provideHint,omitempty"`
}

// Scored reports whether the result carries a base score.
func (r Result) Scored() bool {
	return r.Score != nil
}

// Clone returns a deep copy of r.
func (r Result) Clone() Result {
	out := r
	if r.Score != nil {
		s := *r.Score
		out.Score = &s
	}
	out.Restrict = append([]string(nil), r.Restrict...)
	out.AllowOnly = append([]string(nil), r.AllowOnly...)
	if r.Bonus != nil {
		out.Bonus = make([]BonusGrant, len(r.Bonus))
		for i, g := range r.Bonus {
			cp := make(BonusGrant, len(g))
			for k, v := range g {
				cp[k] = v
			}
			out.Bonus[i] = cp
		}
	}
	return out
}

// Table maps attacker move id → defender (own) move id → result id.
type Table map[string]map[string]string

// Character is an immutable template describing one fighter.
type Character struct {
	Slug        string            `yaml:"slug" json:"slug"`
	Name        string            `yaml:"name" json:"name"`
	Health      int               `yaml:"health" json:"health"`
	Weapon      bool              `yaml:"weapon" json:"weapon"`
	Shield      bool              `yaml:"shield" json:"shield"`
	OpeningMove string            `yaml:"opening_move" json:"openingMove"`
	Moves       []Move            `yaml:"moves" json:"moves"`
	Table       Table             `yaml:"table" json:"table"`
	Results     map[string]Result `yaml:"results" json:"results"`
}

// Move returns the move with the given id.
//
// Postcondition: Returns (move, true) if found, or (zero, false) otherwise.
func (c *Character) Move(id string) (Move, bool) {
	for _, m := range c.Moves {
		if m.ID == id {
			return m, true
		}
	}
	return Move{}, false
}

// Result returns the result with the given id.
func (c *Character) Result(id string) (Result, bool) {
	r, ok := c.Results[id]
	return r, ok
}

// MoveIDs returns the character's move ids sorted numerically. Non-numeric ids
// sort after numeric ones, lexically.
func (c *Character) MoveIDs() []string {
	ids := make([]string, 0, len(c.Moves))
	for _, m := range c.Moves {
		ids = append(ids, m.ID)
	}
	SortIDs(ids)
	return ids
}

// SortIDs sorts move ids numerically in place.
func SortIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
}

// Clone returns a deep copy of c that shares no mutable state with the template.
func (c *Character) Clone() *Character {
	out := *c
	out.Moves = append([]Move(nil), c.Moves...)
	out.Table = make(Table, len(c.Table))
	for row, entries := range c.Table {
		cp := make(map[string]string, len(entries))
		for k, v := range entries {
			cp[k] = v
		}
		out.Table[row] = cp
	}
	out.Results = make(map[string]Result, len(c.Results))
	for id, r := range c.Results {
		out.Results[id] = r.Clone()
	}
	return &out
}

// normalize fills result ids from their catalog keys.
func (c *Character) normalize() {
	for id, r := range c.Results {
		if r.ID == "" {
			r.ID = id
			c.Results[id] = r
		}
	}
}

// Validate checks the template's structural and table-integrity invariants:
// every own move has a table row; every entry references a result in the own
// catalog or the Impossible sentinel; the sentinel appears only where the two
// moves cannot co-occur; every same-range pair has an entry.
//
// Postcondition: Returns nil if valid, or an error listing every violation.
func (c *Character) Validate() error {
	var errs []string
	if c.Slug == "" {
		errs = append(errs, "slug must not be empty")
	}
	if c.Name == "" {
		errs = append(errs, "name must not be empty")
	}
	if c.Health < 1 {
		errs = append(errs, fmt.Sprintf("health must be >= 1, got %d", c.Health))
	}
	if len(c.Moves) == 0 {
		errs = append(errs, "moves must not be empty")
	}

	byID := make(map[string]Move, len(c.Moves))
	for _, m := range c.Moves {
		if m.ID == "" {
			errs = append(errs, fmt.Sprintf("move %q has empty id", m.Name))
			continue
		}
		if _, dup := byID[m.ID]; dup {
			errs = append(errs, fmt.Sprintf("duplicate move id %q", m.ID))
		}
		if !m.Range.Valid() {
			errs = append(errs, fmt.Sprintf("move %q has invalid range %q", m.ID, m.Range))
		}
		byID[m.ID] = m
	}
	if _, ok := byID[c.OpeningMove]; !ok {
		errs = append(errs, fmt.Sprintf("opening move %q is not in the moveset", c.OpeningMove))
	}

	for id, r := range c.Results {
		if !r.Range.Valid() {
			errs = append(errs, fmt.Sprintf("result %q has invalid range %q", id, r.Range))
		}
		if r.ID != id {
			errs = append(errs, fmt.Sprintf("result key %q does not match id %q", id, r.ID))
		}
	}

	for rowID := range c.Table {
		if _, ok := byID[rowID]; !ok {
			errs = append(errs, fmt.Sprintf("table row %q is not a move of this character", rowID))
		}
	}

	for _, row := range c.Moves {
		entries, ok := c.Table[row.ID]
		if !ok {
			errs = append(errs, fmt.Sprintf("missing table row for move %q", row.ID))
			continue
		}
		for colID, resultID := range entries {
			col, known := byID[colID]
			coOccur := known && col.Range == row.Range
			if resultID == Impossible {
				if coOccur {
					errs = append(errs, fmt.Sprintf("table[%s][%s] is impossible but both moves are %s range", row.ID, colID, row.Range))
				}
				continue
			}
			if _, ok := c.Results[resultID]; !ok {
				errs = append(errs, fmt.Sprintf("table[%s][%s] references unknown result %q", row.ID, colID, resultID))
			}
		}
		for _, col := range c.Moves {
			if col.Range != row.Range {
				continue
			}
			if _, ok := entries[col.ID]; !ok {
				errs = append(errs, fmt.Sprintf("table[%s][%s] missing for same-range pair", row.ID, col.ID))
			}
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("character %q: %s", c.Slug, strings.Join(errs, "; "))
	}
	return nil
}
