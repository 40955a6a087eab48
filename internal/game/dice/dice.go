// Package dice rolls the dice expressions that drive the synthetic opponent:
// its thinking delay and the duel.roll helper offered to Lua strategies.
package dice

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Limits on a single expression. Strategy scripts pass arbitrary strings.
const (
	MaxDice  = 100
	MaxSides = 100_000
)

// ErrInvalidExpression is wrapped by every Parse failure.
var ErrInvalidExpression = errors.New("invalid dice expression")

// Source is the randomness provider for dice rolls.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// Expression is a parsed "NdS+M" expression. N defaults to 1 and M to 0.
type Expression struct {
	Raw      string
	Count    int
	Sides    int
	Modifier int
}

// Min is the lowest total e can roll.
func (e Expression) Min() int { return e.Count + e.Modifier }

// Max is the highest total e can roll.
func (e Expression) Max() int { return e.Count*e.Sides + e.Modifier }

// String renders e in canonical form, such as "2d6+1".
func (e Expression) String() string {
	if e.Modifier == 0 {
		return fmt.Sprintf("%dd%d", e.Count, e.Sides)
	}
	return fmt.Sprintf("%dd%d%+d", e.Count, e.Sides, e.Modifier)
}

// Parse accepts "d20", "2d6", "2d6+3" and "1d1500-20".
//
// Postcondition: on success 1 <= Count <= MaxDice and 2 <= Sides <= MaxSides;
// every error wraps ErrInvalidExpression.
func Parse(s string) (Expression, error) {
	fail := func(reason string) (Expression, error) {
		return Expression{}, fmt.Errorf("%w %q: %s", ErrInvalidExpression, s, reason)
	}
	countStr, rest, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "d")
	if !ok {
		return fail("missing 'd'")
	}

	count := 1
	if countStr != "" {
		n, err := strconv.Atoi(countStr)
		if err != nil || n < 1 || n > MaxDice {
			return fail(fmt.Sprintf("die count must be 1..%d", MaxDice))
		}
		count = n
	}

	sidesStr, modStr := rest, ""
	if i := strings.IndexAny(rest, "+-"); i >= 0 {
		sidesStr, modStr = rest[:i], rest[i:]
	}
	sides, err := strconv.Atoi(sidesStr)
	if err != nil || sides < 2 || sides > MaxSides {
		return fail(fmt.Sprintf("sides must be 2..%d", MaxSides))
	}

	modifier := 0
	if modStr != "" {
		// Atoi would accept "+-3"; only one sign is allowed.
		if len(modStr) < 2 || strings.ContainsAny(modStr[1:], "+-") {
			return fail("malformed modifier")
		}
		if modifier, err = strconv.Atoi(modStr); err != nil {
			return fail("malformed modifier")
		}
	}
	return Expression{Raw: s, Count: count, Sides: sides, Modifier: modifier}, nil
}

// Delay is a thinking delay: a dice expression whose total is milliseconds.
// The zero Delay means no delay.
type Delay struct {
	expr *Expression
}

// ParseDelay parses s as a Delay. An empty s yields the zero Delay.
//
// Postcondition: the parsed expression can never roll below zero.
func ParseDelay(s string) (Delay, error) {
	if s == "" {
		return Delay{}, nil
	}
	e, err := Parse(s)
	if err != nil {
		return Delay{}, err
	}
	if e.Min() < 0 {
		return Delay{}, fmt.Errorf("%w %q: delay can roll below zero", ErrInvalidExpression, s)
	}
	return Delay{expr: &e}, nil
}

// IsZero reports whether d never waits.
func (d Delay) IsZero() bool { return d.expr == nil }

func (d Delay) String() string {
	if d.expr == nil {
		return "0"
	}
	return d.expr.Raw
}
