package character

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestNewFighterClonesTemplate(t *testing.T) {
	tpl := duelist()
	f := NewFighter(tpl)

	assert.Equal(t, 10, f.Health)
	assert.Equal(t, 10, f.StartingHealth)
	assert.True(t, f.HasWeapon)
	assert.False(t, f.HasShield)

	f.Character.Moves[0].Name = "mutated"
	assert.Equal(t, "Smash", tpl.Moves[0].Name)
}

func TestFighterApplyEquipmentFlags(t *testing.T) {
	f := NewFighter(duelist())

	f.Apply(Result{WeaponDislodge: true})
	assert.False(t, f.HasWeapon)
	assert.True(t, f.CanRetrieveWeapon())

	f.Apply(Result{WeaponRetrieve: true})
	assert.True(t, f.HasWeapon)

	f.Apply(Result{WeaponDestroy: true})
	assert.False(t, f.HasWeapon)
	assert.False(t, f.CanRetrieveWeapon())

	f.Apply(Result{WeaponRetrieve: true})
	assert.False(t, f.HasWeapon, "destroyed weapon must stay lost")
}

func TestFighterShieldDestroy(t *testing.T) {
	tpl := duelist()
	tpl.Shield = true
	f := NewFighter(tpl)
	f.Apply(Result{ShieldDestroy: true})
	assert.False(t, f.HasShield)
	assert.True(t, f.ShieldDestroyed)
}

func TestPropertyHealNeverExceedsStartingHealth(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := NewFighter(duelist())
		f.Adjust(rapid.IntRange(-5, 20).Draw(t, "loss"), 0)
		f.Adjust(rapid.IntRange(-5, 20).Draw(t, "loss2"), rapid.IntRange(-5, 20).Draw(t, "heal"))
		if f.Health > f.StartingHealth {
			t.Fatalf("health %d exceeds starting %d", f.Health, f.StartingHealth)
		}
	})
}

func TestFighterAdjust(t *testing.T) {
	f := NewFighter(duelist())
	f.Adjust(3, 0)
	assert.Equal(t, 7, f.Health)
	f.Adjust(1, 5)
	assert.Equal(t, 10, f.Health)
	f.Adjust(-4, -4)
	assert.Equal(t, 10, f.Health)
	f.Adjust(12, 0)
	assert.False(t, f.Alive())
}
