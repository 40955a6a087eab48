package character

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func intPtr(v int) *int { return &v }

// duelist builds a minimal two-range character: moves 1 and 2 are close, 3 is far.
func duelist() *Character {
	c := &Character{
		Slug:        "duelist",
		Name:        "Duelist",
		Health:      10,
		Weapon:      true,
		OpeningMove: "3",
		Moves: []Move{
			{ID: "1", Tag: "Down Swing", Name: "Smash", Range: RangeClose, Type: "strong", Modifier: 2},
			{ID: "2", Tag: "Jump", Name: "Jump Back", Range: RangeClose, Type: "special"},
			{ID: "3", Tag: "Charge", Name: "Charge", Range: RangeFar, Type: "strong", Modifier: 1},
		},
		Table: Table{
			"1": {"1": "clash", "2": "hit", "3": Impossible},
			"2": {"1": "clash", "2": "clash", "3": Impossible},
			"3": {"1": Impossible, "2": Impossible, "3": "far_clash"},
		},
		Results: map[string]Result{
			"clash":     {Name: "Clash", Range: RangeClose},
			"hit":       {Name: "Hit", Range: RangeClose, Score: intPtr(2), Restrict: []string{"Jump"}, Bonus: []BonusGrant{{"strong": 1}}},
			"far_clash": {Name: "Far clash", Range: RangeFar},
		},
	}
	c.normalize()
	return c
}

func TestValidateAcceptsConsistentCharacter(t *testing.T) {
	assert.NoError(t, duelist().Validate())
}

func TestValidateRejectsMissingRow(t *testing.T) {
	c := duelist()
	delete(c.Table, "2")
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing table row for move "2"`)
}

func TestValidateRejectsUnknownResult(t *testing.T) {
	c := duelist()
	c.Table["1"]["2"] = "nonexistent"
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown result")
}

func TestValidateRejectsSentinelForSameRangePair(t *testing.T) {
	c := duelist()
	c.Table["1"]["2"] = Impossible
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is impossible but both moves are close range")
}

func TestValidateAllowsSentinelForForeignMove(t *testing.T) {
	c := duelist()
	c.Table["1"]["42"] = Impossible
	assert.NoError(t, c.Validate())
}

func TestValidateRejectsUnknownOpeningMove(t *testing.T) {
	c := duelist()
	c.OpeningMove = "99"
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening move")
}

func TestValidateCollectsAllViolations(t *testing.T) {
	c := duelist()
	c.Name = ""
	c.Health = 0
	c.Moves = append(c.Moves, Move{ID: "1", Range: RangeClose})
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name must not be empty")
	assert.Contains(t, err.Error(), "health must be >= 1")
	assert.Contains(t, err.Error(), `duplicate move id "1"`)
}

func TestCloneSharesNoMutableState(t *testing.T) {
	orig := duelist()
	cp := orig.Clone()

	cp.Health = 1
	cp.Moves[0].Modifier = 99
	cp.Table["1"]["2"] = "clash"
	hit := cp.Results["hit"]
	*hit.Score = 50
	hit.Bonus[0]["strong"] = 7
	hit.Restrict[0] = "Charge"

	assert.Equal(t, 10, orig.Health)
	assert.Equal(t, 2, orig.Moves[0].Modifier)
	assert.Equal(t, "hit", orig.Table["1"]["2"])
	assert.Equal(t, 2, *orig.Results["hit"].Score)
	assert.Equal(t, 1, orig.Results["hit"].Bonus[0]["strong"])
	assert.Equal(t, []string{"Jump"}, orig.Results["hit"].Restrict)
}

func TestMoveLookup(t *testing.T) {
	c := duelist()
	m, ok := c.Move("2")
	require.True(t, ok)
	assert.Equal(t, "Jump Back", m.Name)

	_, ok = c.Move("7")
	assert.False(t, ok)
}

func TestIsWeaponRetrieval(t *testing.T) {
	assert.True(t, Move{Tag: TagRetrieveWeapon}.IsWeaponRetrieval())
	assert.False(t, Move{Tag: "Charge", Name: TagRetrieveWeapon}.IsWeaponRetrieval())
}

func TestSortIDsNumericFirst(t *testing.T) {
	ids := []string{"10", "b", "2", "a", "1"}
	SortIDs(ids)
	assert.Equal(t, []string{"1", "2", "10", "a", "b"}, ids)
}

func TestPropertySortIDsOrdersNumerically(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nums := rapid.SliceOfNDistinct(rapid.IntRange(0, 500), 1, 20, func(n int) int { return n }).Draw(t, "ids")
		ids := make([]string, len(nums))
		for i, n := range nums {
			ids[i] = itoa(n)
		}
		SortIDs(ids)
		for i := 1; i < len(ids); i++ {
			prev, cur := atoi(ids[i-1]), atoi(ids[i])
			if prev >= cur {
				t.Fatalf("ids out of order: %v", ids)
			}
		}
	})
}
