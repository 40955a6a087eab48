package dice_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/duel/internal/game/dice"
)

type fixedSrc struct{ val int }

func (f fixedSrc) Intn(_ int) int { return f.val }

// countingSrc records how many values were drawn.
type countingSrc struct{ calls int }

func (c *countingSrc) Intn(_ int) int { c.calls++; return 0 }

func TestParse_Forms(t *testing.T) {
	cases := map[string]dice.Expression{
		"d20":        {Raw: "d20", Count: 1, Sides: 20},
		"2d6":        {Raw: "2d6", Count: 2, Sides: 6},
		"1d1500+400": {Raw: "1d1500+400", Count: 1, Sides: 1500, Modifier: 400},
		"4D8-2":      {Raw: "4D8-2", Count: 4, Sides: 8, Modifier: -2},
	}
	for raw, want := range cases {
		got, err := dice.Parse(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, raw := range []string{"", "20", "0d6", "2d1", "2dx", "2d6+y", "2d6+", "2d6+-3", "4d6kh3", "101d6", "1d100001", "1d-5"} {
		_, err := dice.Parse(raw)
		assert.ErrorIs(t, err, dice.ErrInvalidExpression, raw)
	}
}

func TestExpression_Bounds(t *testing.T) {
	e, err := dice.Parse("2d6+1")
	require.NoError(t, err)
	assert.Equal(t, 3, e.Min())
	assert.Equal(t, 13, e.Max())
}

func TestParseDelay(t *testing.T) {
	d, err := dice.ParseDelay("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	d, err = dice.ParseDelay("1d1500+400")
	require.NoError(t, err)
	assert.False(t, d.IsZero())
	assert.Equal(t, "1d1500+400", d.String())

	_, err = dice.ParseDelay("1d6-10")
	assert.ErrorIs(t, err, dice.ErrInvalidExpression)
	_, err = dice.ParseDelay("soon")
	assert.ErrorIs(t, err, dice.ErrInvalidExpression)
}

func TestRoller_DelayInMilliseconds(t *testing.T) {
	r := dice.NewRoller(fixedSrc{val: 99}, zaptest.NewLogger(t))
	d, err := dice.ParseDelay("1d1500+400")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, r.Delay(d))
}

func TestRoller_ZeroDelayDrawsNothing(t *testing.T) {
	src := &countingSrc{}
	r := dice.NewRoller(src, zaptest.NewLogger(t))
	assert.Equal(t, time.Duration(0), r.Delay(dice.Delay{}))
	assert.Zero(t, src.calls)
}

func TestRoller_DelayWithinBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		sides := rapid.IntRange(2, 2000).Draw(rt, "sides")
		base := rapid.IntRange(0, 1000).Draw(rt, "base")
		expr, err := dice.ParseDelay(fmt.Sprintf("1d%d+%d", sides, base))
		require.NoError(rt, err)
		r := dice.NewRoller(dice.NewSeededSource(rapid.Uint64().Draw(rt, "seed")), zaptest.NewLogger(t))
		got := r.Delay(expr)
		assert.GreaterOrEqual(rt, got, time.Duration(base+1)*time.Millisecond)
		assert.LessOrEqual(rt, got, time.Duration(base+sides)*time.Millisecond)
	})
}

func TestRoller_RollExpr(t *testing.T) {
	r := dice.NewRoller(fixedSrc{val: 2}, zaptest.NewLogger(t))
	res, err := r.RollExpr("3d6+1")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 3}, res.Dice)
	assert.Equal(t, 10, res.Total())

	_, err = r.RollExpr("3d")
	assert.ErrorIs(t, err, dice.ErrInvalidExpression)
}

func TestRoller_RollExprWithinBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e := dice.Expression{
			Count:    rapid.IntRange(1, 10).Draw(rt, "count"),
			Sides:    rapid.IntRange(2, 20).Draw(rt, "sides"),
			Modifier: rapid.IntRange(-10, 10).Draw(rt, "modifier"),
		}
		raw := e.String()
		parsed, err := dice.Parse(raw)
		require.NoError(rt, err, raw)
		r := dice.NewRoller(dice.NewSeededSource(rapid.Uint64().Draw(rt, "seed")), zaptest.NewLogger(t))
		res, err := r.RollExpr(raw)
		require.NoError(rt, err)
		assert.Len(rt, res.Dice, e.Count)
		assert.GreaterOrEqual(rt, res.Total(), parsed.Min())
		assert.LessOrEqual(rt, res.Total(), parsed.Max())
	})
}

func TestCryptoSource_Intn_InRange(t *testing.T) {
	src := dice.NewCryptoSource()
	for i := 0; i < 1000; i++ {
		v := src.Intn(6)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 6)
	}
	assert.Panics(t, func() { src.Intn(0) })
}

func TestSeededSource_Deterministic(t *testing.T) {
	a := dice.NewSeededSource(42)
	b := dice.NewSeededSource(42)
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Intn(100), b.Intn(100))
	}
}

func TestSeededSource_InRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seed := rapid.Uint64().Draw(rt, "seed")
		n := rapid.IntRange(1, 1000).Draw(rt, "n")
		v := dice.NewSeededSource(seed).Intn(n)
		assert.GreaterOrEqual(rt, v, 0)
		assert.Less(rt, v, n)
	})
}
