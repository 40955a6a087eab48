package scripting

import (
	"errors"
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/game/dice"
)

// ChooseFunction is the Lua global a strategy script must define. It is called
// as choose(moves, state) and returns the id of one of moves.
const ChooseFunction = "choose"

var (
	// ErrNoChooseFunction is returned when a script does not define choose.
	ErrNoChooseFunction = errors.New("scripting: script does not define " + ChooseFunction)
	// ErrNoMoves is returned when Choose is offered an empty move set.
	ErrNoMoves = errors.New("scripting: no moves to choose from")
	// ErrInvalidChoice is returned when the script names a move it was not offered.
	ErrInvalidChoice = errors.New("scripting: script chose a move it was not offered")
	// ErrClosed is returned by Choose after Close.
	ErrClosed = errors.New("scripting: strategy closed")
)

// MoveView is the script-visible projection of a legal move.
type MoveView struct {
	ID       string
	Tag      string
	Name     string
	Type     string
	Range    string
	Modifier int
	// Bonus is the damage bonus the move would redeem this round.
	Bonus int
}

// StateView is the script-visible projection of the session.
type StateView struct {
	Round          int
	Health         int
	StartingHealth int
	OpponentHealth int
	HasWeapon      bool
	HasShield      bool
	// OpponentLastMove is the opponent's previous move id, empty on the opening round.
	OpponentLastMove string
}

// Strategy owns one sandboxed VM holding a loaded strategy script.
//
// Strategy is safe for concurrent Choose; calls are serialized.
type Strategy struct {
	mu     sync.Mutex
	name   string
	L      *lua.LState
	limit  int
	roller *dice.Roller
	logger *zap.Logger
}

// LoadStrategy reads the script at path and loads it.
//
// Precondition: roller and logger must be non-nil.
// Postcondition: Returns a Strategy whose script defines choose, or an error.
func LoadStrategy(path string, instLimit int, roller *dice.Roller, logger *zap.Logger) (*Strategy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scripting: reading strategy %q: %w", path, err)
	}
	return LoadStrategySource(path, string(src), instLimit, roller, logger)
}

// LoadStrategySource loads a strategy from source text. name identifies the
// script in logs and errors.
//
// Precondition: roller and logger must be non-nil.
// Postcondition: Returns a Strategy whose script defines choose, or an error.
func LoadStrategySource(name, src string, instLimit int, roller *dice.Roller, logger *zap.Logger) (*Strategy, error) {
	s := &Strategy{
		name:   name,
		L:      NewSandboxedState(instLimit),
		limit:  instLimit,
		roller: roller,
		logger: logger.With(zap.String("strategy", name)),
	}
	s.registerModules(s.L)

	cancel := Arm(s.L, s.limit)
	err := s.L.DoString(src)
	cancel()
	if err != nil {
		s.L.Close()
		return nil, fmt.Errorf("scripting: loading %q: %w", name, err)
	}
	if _, ok := s.L.GetGlobal(ChooseFunction).(*lua.LFunction); !ok {
		s.L.Close()
		return nil, fmt.Errorf("%w: %q", ErrNoChooseFunction, name)
	}
	return s, nil
}

// Choose asks the script to pick one of moves.
//
// Precondition: moves must be non-empty.
// Postcondition: on success the returned id is the ID of an element of moves.
// Runtime errors, instruction-limit exhaustion and unknown ids are returned
// as errors and logged at Warn.
func (s *Strategy) Choose(moves []MoveView, state StateView) (string, error) {
	if len(moves) == 0 {
		return "", ErrNoMoves
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	L := s.L
	if L == nil {
		return "", ErrClosed
	}
	cancel := Arm(L, s.limit)
	defer cancel()

	err := L.CallByParam(lua.P{
		Fn:      L.GetGlobal(ChooseFunction),
		NRet:    1,
		Protect: true,
	}, movesTable(L, moves), stateTable(L, state))
	if err != nil {
		s.logger.Warn("scripting: Lua runtime error", zap.Int("round", state.Round), zap.Error(err))
		return "", fmt.Errorf("scripting: %s: %w", s.name, err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	id := ""
	switch v := ret.(type) {
	case lua.LString:
		id = string(v)
	case lua.LNumber:
		id = v.String()
	}
	for _, m := range moves {
		if m.ID == id {
			return id, nil
		}
	}
	s.logger.Warn("scripting: invalid choice", zap.Int("round", state.Round), zap.String("returned", ret.String()))
	return "", fmt.Errorf("%w: %s", ErrInvalidChoice, ret.String())
}

// Close releases the VM.
func (s *Strategy) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L != nil {
		s.L.Close()
		s.L = nil
	}
}

func movesTable(L *lua.LState, moves []MoveView) *lua.LTable {
	t := L.CreateTable(len(moves), 0)
	for _, m := range moves {
		mt := L.CreateTable(0, 7)
		mt.RawSetString("id", lua.LString(m.ID))
		mt.RawSetString("tag", lua.LString(m.Tag))
		mt.RawSetString("name", lua.LString(m.Name))
		mt.RawSetString("type", lua.LString(m.Type))
		mt.RawSetString("range", lua.LString(m.Range))
		mt.RawSetString("modifier", lua.LNumber(m.Modifier))
		mt.RawSetString("bonus", lua.LNumber(m.Bonus))
		t.Append(mt)
	}
	return t
}

func stateTable(L *lua.LState, s StateView) *lua.LTable {
	t := L.CreateTable(0, 7)
	t.RawSetString("round", lua.LNumber(s.Round))
	t.RawSetString("health", lua.LNumber(s.Health))
	t.RawSetString("starting_health", lua.LNumber(s.StartingHealth))
	t.RawSetString("opponent_health", lua.LNumber(s.OpponentHealth))
	t.RawSetString("has_weapon", lua.LBool(s.HasWeapon))
	t.RawSetString("has_shield", lua.LBool(s.HasShield))
	if s.OpponentLastMove != "" {
		t.RawSetString("opponent_last_move", lua.LString(s.OpponentLastMove))
	}
	return t
}
