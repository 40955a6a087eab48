package scripting

import lua "github.com/yuin/gopher-lua"

// registerModules installs the duel global:
//
//	duel.roll(expr)      total of a dice expression such as "2d6+1"
//	duel.random(n)       uniform integer in [1, n]
//	duel.log.debug(msg)  and .info, .warn
//
// Precondition: L must be from NewSandboxedState.
func (s *Strategy) registerModules(L *lua.LState) {
	mod := L.NewTable()

	L.SetField(mod, "roll", L.NewFunction(func(L *lua.LState) int {
		expr := L.CheckString(1)
		res, err := s.roller.RollExpr(expr)
		if err != nil {
			L.ArgError(1, err.Error())
			return 0
		}
		L.Push(lua.LNumber(res.Total()))
		return 1
	}))

	L.SetField(mod, "random", L.NewFunction(func(L *lua.LState) int {
		n := L.CheckInt(1)
		if n < 1 {
			L.ArgError(1, "n must be at least 1")
			return 0
		}
		L.Push(lua.LNumber(s.roller.Source().Intn(n) + 1))
		return 1
	}))

	logTbl := L.NewTable()
	L.SetField(logTbl, "debug", L.NewFunction(func(L *lua.LState) int {
		s.logger.Debug(L.CheckString(1))
		return 0
	}))
	L.SetField(logTbl, "info", L.NewFunction(func(L *lua.LState) int {
		s.logger.Info(L.CheckString(1))
		return 0
	}))
	L.SetField(logTbl, "warn", L.NewFunction(func(L *lua.LState) int {
		s.logger.Warn(L.CheckString(1))
		return 0
	}))
	L.SetField(mod, "log", logTbl)

	L.SetGlobal("duel", mod)
}
