package scripting_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/duel/internal/game/dice"
	"github.com/cory-johannsen/duel/internal/scripting"
)

var offered = []scripting.MoveView{
	{ID: "1", Tag: "Swing", Name: "Overhead Smash", Type: "swing", Range: "close", Modifier: 2},
	{ID: "4", Tag: "Thrust", Name: "Lunge", Type: "thrust", Range: "close", Bonus: 3},
	{ID: "9", Tag: "Retrieve Weapon", Name: "Pick Up Weapon", Type: "special", Range: "far"},
}

func newRoller(logger *zap.Logger) *dice.Roller {
	return dice.NewRoller(dice.NewSeededSource(7), logger)
}

func loadSource(t testing.TB, src string, limit int) (*scripting.Strategy, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	s, err := scripting.LoadStrategySource(t.Name(), src, limit, newRoller(logger), logger)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, logs
}

func writeTempLua(t testing.TB, filename, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), filename)
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestLoadStrategy_ReadsFile(t *testing.T) {
	path := writeTempLua(t, "first.lua", `
		function choose(moves, state)
			return moves[1].id
		end
	`)
	logger := zap.NewNop()
	s, err := scripting.LoadStrategy(path, 0, newRoller(logger), logger)
	require.NoError(t, err)
	defer s.Close()

	id, err := s.Choose(offered, scripting.StateView{Round: 1})
	require.NoError(t, err)
	assert.Equal(t, "1", id)
}

func TestLoadStrategy_MissingFile(t *testing.T) {
	logger := zap.NewNop()
	_, err := scripting.LoadStrategy(filepath.Join(t.TempDir(), "absent.lua"), 0, newRoller(logger), logger)
	assert.Error(t, err)
}

func TestLoadStrategySource_RequiresChoose(t *testing.T) {
	logger := zap.NewNop()
	_, err := scripting.LoadStrategySource("empty", `local x = 1`, 0, newRoller(logger), logger)
	assert.ErrorIs(t, err, scripting.ErrNoChooseFunction)

	_, err = scripting.LoadStrategySource("not-a-function", `choose = 5`, 0, newRoller(logger), logger)
	assert.ErrorIs(t, err, scripting.ErrNoChooseFunction)
}

func TestLoadStrategySource_SyntaxError(t *testing.T) {
	logger := zap.NewNop()
	_, err := scripting.LoadStrategySource("broken", `function choose(`, 0, newRoller(logger), logger)
	assert.Error(t, err)
}

func TestLoadStrategySource_RunawayTopLevelIsBounded(t *testing.T) {
	logger := zap.NewNop()
	_, err := scripting.LoadStrategySource("spin", `while true do end`, 100, newRoller(logger), logger)
	assert.Error(t, err)
}

func TestStrategy_SeesMoveFields(t *testing.T) {
	s, _ := loadSource(t, `
		function choose(moves, state)
			local best = moves[1]
			for _, m in ipairs(moves) do
				if m.bonus > best.bonus then best = m end
			end
			return best.id
		end
	`, 0)
	id, err := s.Choose(offered, scripting.StateView{Round: 2})
	require.NoError(t, err)
	assert.Equal(t, "4", id)
}

func TestStrategy_SeesState(t *testing.T) {
	s, _ := loadSource(t, `
		function choose(moves, state)
			if not state.has_weapon then
				for _, m in ipairs(moves) do
					if m.tag == "Retrieve Weapon" then return m.id end
				end
			end
			if state.opponent_last_move == "4" and state.health < state.starting_health then
				return "4"
			end
			return moves[1].id
		end
	`, 0)

	id, err := s.Choose(offered, scripting.StateView{Round: 3, Health: 10, StartingHealth: 10})
	require.NoError(t, err)
	assert.Equal(t, "9", id)

	id, err = s.Choose(offered, scripting.StateView{Round: 3, Health: 6, StartingHealth: 10, HasWeapon: true, OpponentLastMove: "4"})
	require.NoError(t, err)
	assert.Equal(t, "4", id)

	id, err = s.Choose(offered, scripting.StateView{Round: 1, Health: 10, StartingHealth: 10, HasWeapon: true})
	require.NoError(t, err)
	assert.Equal(t, "1", id)
}

func TestStrategy_NumericReturnMatchesID(t *testing.T) {
	s, _ := loadSource(t, `function choose(moves, state) return 9 end`, 0)
	id, err := s.Choose(offered, scripting.StateView{})
	require.NoError(t, err)
	assert.Equal(t, "9", id)
}

func TestStrategy_UnofferedChoiceRejected(t *testing.T) {
	s, logs := loadSource(t, `function choose(moves, state) return "42" end`, 0)
	_, err := s.Choose(offered, scripting.StateView{})
	assert.ErrorIs(t, err, scripting.ErrInvalidChoice)
	assert.NotEmpty(t, logs.FilterLevelExact(zap.WarnLevel).All())

	s2, _ := loadSource(t, `function choose(moves, state) return nil end`, 0)
	_, err = s2.Choose(offered, scripting.StateView{})
	assert.ErrorIs(t, err, scripting.ErrInvalidChoice)
}

func TestStrategy_RuntimeErrorReturned(t *testing.T) {
	s, logs := loadSource(t, `function choose(moves, state) error("intentional") end`, 0)
	_, err := s.Choose(offered, scripting.StateView{Round: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intentional")

	warns := logs.FilterLevelExact(zap.WarnLevel).All()
	require.NotEmpty(t, warns)
	assert.Equal(t, int64(5), warns[0].ContextMap()["round"])
}

func TestStrategy_EmptyMoveSet(t *testing.T) {
	s, _ := loadSource(t, `function choose(moves, state) return "1" end`, 0)
	_, err := s.Choose(nil, scripting.StateView{})
	assert.ErrorIs(t, err, scripting.ErrNoMoves)
}

func TestStrategy_BudgetIsPerCall(t *testing.T) {
	s, _ := loadSource(t, `
		function choose(moves, state)
			local n = 0
			for i = 1, 50 do n = n + i end
			return moves[1].id
		end
	`, 1000)
	for round := 1; round <= 50; round++ {
		_, err := s.Choose(offered, scripting.StateView{Round: round})
		require.NoError(t, err, "round %d", round)
	}
}

func TestStrategy_RunawayChooseIsBounded(t *testing.T) {
	s, _ := loadSource(t, `function choose(moves, state) while true do end end`, 200)
	_, err := s.Choose(offered, scripting.StateView{})
	assert.Error(t, err)
}

func TestStrategy_CloseThenChoose(t *testing.T) {
	s, _ := loadSource(t, `function choose(moves, state) return "1" end`, 0)
	s.Close()
	s.Close()
	_, err := s.Choose(offered, scripting.StateView{})
	assert.ErrorIs(t, err, scripting.ErrClosed)
}

func TestStrategy_ConcurrentChoose(t *testing.T) {
	s, _ := loadSource(t, `function choose(moves, state) return moves[#moves].id end`, 0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.Choose(offered, scripting.StateView{Round: 1})
			assert.NoError(t, err)
			assert.Equal(t, "9", id)
		}()
	}
	wg.Wait()
}

func TestProperty_ChoiceAlwaysOffered(t *testing.T) {
	logger := zap.NewNop()
	s, err := scripting.LoadStrategySource("random", `
		function choose(moves, state)
			return moves[duel.random(#moves)].id
		end
	`, 0, newRoller(logger), logger)
	require.NoError(t, err)
	defer s.Close()

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, len(offered)).Draw(t, "n")
		id, err := s.Choose(offered[:n], scripting.StateView{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		found := false
		for _, m := range offered[:n] {
			found = found || m.ID == id
		}
		if !found {
			t.Fatalf("choice %q not among %d offered moves", id, n)
		}
	})
}
