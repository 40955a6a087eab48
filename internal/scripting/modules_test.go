package scripting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/scripting"
)

func TestDuelLog_WritesToLogger(t *testing.T) {
	s, logs := loadSource(t, `
		function choose(moves, state)
			duel.log.debug("weighing " .. #moves .. " moves")
			duel.log.info("round " .. state.round)
			duel.log.warn("careful")
			return moves[1].id
		end
	`, 0)
	_, err := s.Choose(offered, scripting.StateView{Round: 4})
	require.NoError(t, err)

	assert.Len(t, logs.FilterMessage("weighing 3 moves").FilterLevelExact(zap.DebugLevel).All(), 1)
	assert.Len(t, logs.FilterMessage("round 4").FilterLevelExact(zap.InfoLevel).All(), 1)
	assert.Len(t, logs.FilterMessage("careful").FilterLevelExact(zap.WarnLevel).All(), 1)
}

func TestDuelRoll_ReturnsTotalInRange(t *testing.T) {
	s, _ := loadSource(t, `
		function choose(moves, state)
			for i = 1, 50 do
				local r = duel.roll("2d6+1")
				if r < 3 or r > 13 then error("out of range: " .. r) end
			end
			return moves[1].id
		end
	`, 0)
	_, err := s.Choose(offered, scripting.StateView{})
	assert.NoError(t, err)
}

func TestDuelRoll_InvalidExpressionRaises(t *testing.T) {
	for _, expr := range []string{"not dice", "4d6kh3", "5000d6"} {
		s, _ := loadSource(t, `
			function choose(moves, state)
				duel.roll("`+expr+`")
				return moves[1].id
			end
		`, 0)
		_, err := s.Choose(offered, scripting.StateView{})
		assert.Error(t, err, expr)
	}
}

func TestDuelRandom_RejectsNonPositive(t *testing.T) {
	s, _ := loadSource(t, `
		function choose(moves, state)
			duel.random(0)
			return moves[1].id
		end
	`, 0)
	_, err := s.Choose(offered, scripting.StateView{})
	assert.Error(t, err)
}

func TestDuelRandom_CoversRange(t *testing.T) {
	s, _ := loadSource(t, `
		function choose(moves, state)
			local seen = {}
			for i = 1, 200 do seen[duel.random(3)] = true end
			if not (seen[1] and seen[2] and seen[3]) then error("missing values") end
			if seen[0] or seen[4] then error("out of range") end
			return moves[1].id
		end
	`, 0)
	_, err := s.Choose(offered, scripting.StateView{})
	assert.NoError(t, err)
}

func TestDuelModule_AvailableAtLoad(t *testing.T) {
	logger := zap.NewNop()
	_, err := scripting.LoadStrategySource("toplevel", `
		local opening = duel.roll("1d2")
		assert(opening == 1 or opening == 2)
		function choose(moves, state) return moves[1].id end
	`, 0, newRoller(logger), logger)
	assert.NoError(t, err)
}
