package dice

import (
	"time"

	"go.uber.org/zap"
)

// Roll is the outcome of one expression.
type Roll struct {
	Dice     []int
	Modifier int
}

// Total is the sum of the dice plus the modifier.
func (r Roll) Total() int {
	total := r.Modifier
	for _, d := range r.Dice {
		total += d
	}
	return total
}

// Roller rolls expressions against a Source and logs each roll at debug.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewRoller creates a Roller.
//
// Precondition: src and logger must be non-nil.
func NewRoller(src Source, logger *zap.Logger) *Roller {
	return &Roller{src: src, logger: logger}
}

// Source returns the randomness provider backing r.
func (r *Roller) Source() Source { return r.src }

func (r *Roller) roll(e Expression, purpose string) Roll {
	res := Roll{Dice: make([]int, e.Count), Modifier: e.Modifier}
	for i := range res.Dice {
		res.Dice[i] = r.src.Intn(e.Sides) + 1
	}
	r.logger.Debug("dice roll",
		zap.String("purpose", purpose),
		zap.String("expression", e.Raw),
		zap.Ints("dice", res.Dice),
		zap.Int("total", res.Total()),
	)
	return res
}

// RollExpr parses and rolls s on behalf of a strategy script.
//
// Postcondition: Min() <= Total() <= Max() of the parsed expression.
func (r *Roller) RollExpr(s string) (Roll, error) {
	e, err := Parse(s)
	if err != nil {
		return Roll{}, err
	}
	return r.roll(e, "strategy"), nil
}

// Delay rolls d and returns the wait in milliseconds.
//
// Postcondition: the zero Delay returns 0 without consuming randomness.
func (r *Roller) Delay(d Delay) time.Duration {
	if d.expr == nil {
		return 0
	}
	return time.Duration(r.roll(*d.expr, "thinking").Total()) * time.Millisecond
}
