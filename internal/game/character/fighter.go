package character

// Fighter is a session-owned instance of a character template carrying live
// health and equipment state. The embedded template is a private clone and is
// never re-derived mid-session.
type Fighter struct {
	Character       *Character `json:"character"`
	Health          int        `json:"health"`
	StartingHealth  int        `json:"startingHealth"`
	HasWeapon       bool       `json:"hasWeapon"`
	HasShield       bool       `json:"hasShield"`
	WeaponDestroyed bool       `json:"weaponDestroyed"`
	ShieldDestroyed bool       `json:"shieldDestroyed"`
}

// NewFighter clones template into a fresh fighter at full health.
//
// Precondition: template must be non-nil and valid.
// Postcondition: The returned fighter shares no mutable state with template.
func NewFighter(template *Character) *Fighter {
	c := template.Clone()
	return &Fighter{
		Character:      c,
		Health:         c.Health,
		StartingHealth: c.Health,
		HasWeapon:      c.Weapon,
		HasShield:      c.Shield,
	}
}

// Alive reports whether the fighter still has health remaining.
func (f *Fighter) Alive() bool {
	return f.Health > 0
}

// Adjust applies one round's health change: loss is subtracted, then heal is
// restored without exceeding StartingHealth. Non-positive amounts are ignored.
func (f *Fighter) Adjust(loss, heal int) {
	h := f.Health
	if loss > 0 {
		h -= loss
	}
	if heal > 0 {
		h = min(h+heal, max(f.Health, f.StartingHealth))
	}
	f.Health = h
}

// CanRetrieveWeapon reports whether the weapon is on the ground and intact.
func (f *Fighter) CanRetrieveWeapon() bool {
	return !f.HasWeapon && !f.WeaponDestroyed
}

// Apply applies the equipment flags of a result the fighter experienced.
// Destruction is permanent; a dislodged weapon may be retrieved later.
func (f *Fighter) Apply(r Result) {
	if r.WeaponDislodge {
		f.HasWeapon = false
	}
	if r.WeaponDestroy {
		f.HasWeapon = false
		f.WeaponDestroyed = true
	}
	if r.ShieldDestroy {
		f.HasShield = false
		f.ShieldDestroyed = true
	}
	if r.WeaponRetrieve && f.CanRetrieveWeapon() {
		f.HasWeapon = true
	}
}

// Clone returns a deep copy of f.
func (f *Fighter) Clone() *Fighter {
	out := *f
	if f.Character != nil {
		out.Character = f.Character.Clone()
	}
	return &out
}
