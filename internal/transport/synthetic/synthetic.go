// Package synthetic implements an in-process computer opponent behind the
// Transport interface. It mirrors the duel in its own Session, with itself as
// the local side, so it always knows its constraint, equipment and grants.
package synthetic

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/game/character"
	"github.com/cory-johannsen/duel/internal/game/combat"
	"github.com/cory-johannsen/duel/internal/game/dice"
	"github.com/cory-johannsen/duel/internal/game/duel"
	"github.com/cory-johannsen/duel/internal/scripting"
	"github.com/cory-johannsen/duel/internal/transport"
)

// Options configures a Transport.
type Options struct {
	// Identity is the human side: its CharacterSlug is the opponent the
	// synthetic player fights.
	Identity transport.Identity
	// Name and Character identify the synthetic player.
	Name      string
	Character string
	Catalog   character.Catalog
	Roller    *dice.Roller
	// ThinkingDelay is a dice expression in milliseconds, such as "1d1500+400".
	// Empty means no delay.
	ThinkingDelay string
	// Eager chooses and delivers each move at the start of the round instead
	// of after the human's move arrives.
	Eager bool
	// Strategy, when set, is consulted before the weighted choice.
	Strategy *scripting.Strategy
	// LookupTimeout bounds catalog lookups. Defaults to 5s.
	LookupTimeout time.Duration
	Logger        *zap.Logger
}

// Transport is a synthetic opponent.
type Transport struct {
	transport.Callbacks

	opts   Options
	delay  dice.Delay
	logger *zap.Logger
	timer  ThinkTimer

	mu        sync.Mutex
	session   *duel.Session
	own       *duel.ChosenMove
	human     *duel.ChosenMove
	humanName string
	thinking  bool
	closed    bool
}

var _ transport.Transport = (*Transport)(nil)

// New validates opts and creates a disconnected opponent.
//
// Precondition: opts.Catalog, opts.Roller and opts.Logger must be set.
// Postcondition: Returns an error when ThinkingDelay does not parse.
func New(opts Options) (*Transport, error) {
	if opts.Catalog == nil || opts.Roller == nil || opts.Logger == nil {
		return nil, errors.New("synthetic transport requires catalog, roller and logger")
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 5 * time.Second
	}
	t := &Transport{
		opts: opts,
		logger: opts.Logger.With(
			zap.String("transport", "synthetic"),
			zap.String("character", opts.Character),
			zap.Bool("eager", opts.Eager),
		),
	}
	delay, err := dice.ParseDelay(opts.ThinkingDelay)
	if err != nil {
		return nil, fmt.Errorf("thinking delay: %w", err)
	}
	t.delay = delay
	return t, nil
}

// Connect resolves both characters and announces the synthetic player. roomID
// is only used for logging.
//
// Postcondition: on success PeerCount is 2 and the peer, name and character
// callbacks have fired once each.
func (t *Transport) Connect(ctx context.Context, roomID string) error {
	t.mu.Lock()
	switch {
	case t.closed:
		t.mu.Unlock()
		return transport.ErrClosed
	case t.session != nil:
		t.mu.Unlock()
		return errors.New("already connected")
	}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, t.opts.LookupTimeout)
	defer cancel()
	self, err := t.opts.Catalog.Character(ctx, t.opts.Character)
	if err != nil {
		return fmt.Errorf("synthetic character: %w", err)
	}
	human, err := t.opts.Catalog.Character(ctx, t.opts.Identity.CharacterSlug)
	if err != nil {
		return fmt.Errorf("opponent character: %w", err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	t.session = duel.NewSession("synthetic-"+roomID, self, human)
	t.humanName = t.opts.Identity.Name
	t.mu.Unlock()

	t.logger.Info("synthetic opponent ready",
		zap.String("room", roomID), zap.String("opponent", human.Slug))
	t.EmitPeer(transport.PeerEvent{Kind: transport.PeerJoined, Peers: 2})
	if t.opts.Name != "" {
		t.EmitName(t.opts.Name)
	}
	t.EmitCharacter(self.Slug)
	if t.opts.Eager {
		t.startThinking()
	}
	return nil
}

// SendMove implements transport.Transport. A move for an already resolved
// round is ignored; a move for any other round than the current one is an
// error wrapping duel.ErrRoundMismatch.
func (t *Transport) SendMove(_ context.Context, m transport.MoveMessage) error {
	t.mu.Lock()
	switch {
	case t.closed:
		t.mu.Unlock()
		return transport.ErrClosed
	case t.session == nil:
		t.mu.Unlock()
		return transport.ErrNotConnected
	}
	s := t.session
	if s.Over() || s.Resolved(m.Round) {
		t.mu.Unlock()
		t.logger.Debug("ignoring move", zap.Int("round", m.Round), zap.Bool("over", s.Over()))
		return nil
	}
	if m.Round != s.SelfRound {
		t.mu.Unlock()
		return fmt.Errorf("%w: received round %d, synthetic round is %d", duel.ErrRoundMismatch, m.Round, s.SelfRound)
	}
	if t.human != nil {
		t.mu.Unlock()
		if t.human.MoveID == m.Move {
			return nil
		}
		return fmt.Errorf("%w: move changed for round %d", duel.ErrIllegalMove, m.Round)
	}
	if _, ok := s.Opponent.Character.Move(m.Move); !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s has no move %q", duel.ErrIllegalMove, s.Opponent.Character.Slug, m.Move)
	}
	t.human = &duel.ChosenMove{MoveID: m.Move, Round: m.Round, Hint: slices.Clone(m.Hint)}
	next := false
	if t.own != nil {
		next = t.resolveLocked()
	}
	t.mu.Unlock()

	// Reactive mode starts thinking once the human has moved; eager mode
	// starts the next round as soon as this one resolves.
	if !next || t.opts.Eager {
		t.startThinking()
	}
	return nil
}

// SendName records the human's display name.
func (t *Transport) SendName(_ context.Context, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.usableLocked(); err != nil {
		return err
	}
	t.humanName = name
	return nil
}

// SendCharacter switches the human's character. It is only honoured before
// the first round resolves.
func (t *Transport) SendCharacter(ctx context.Context, slug string) error {
	t.mu.Lock()
	if err := t.usableLocked(); err != nil {
		t.mu.Unlock()
		return err
	}
	s := t.session
	if s.Opponent.Character.Slug == slug {
		t.mu.Unlock()
		return nil
	}
	if len(s.Rounds) > 0 {
		t.mu.Unlock()
		t.logger.Warn("ignoring character change mid-game", zap.String("announced", slug))
		return nil
	}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, t.opts.LookupTimeout)
	defer cancel()
	human, err := t.opts.Catalog.Character(ctx, slug)
	if err != nil {
		return fmt.Errorf("opponent character: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil || len(t.session.Rounds) > 0 {
		return nil
	}
	t.session = duel.NewSession(t.session.GameID, t.session.Self.Character, human)
	t.human = nil
	return nil
}

// Disconnect stops any scheduled move and releases every callback.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.timer.Stop()
	t.Release()
	return nil
}

// PeerCount implements transport.Transport.
func (t *Transport) PeerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.session == nil {
		return 0
	}
	return 2
}

// HumanName returns the name the human side last announced.
func (t *Transport) HumanName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.humanName
}

func (t *Transport) usableLocked() error {
	switch {
	case t.closed:
		return transport.ErrClosed
	case t.session == nil:
		return transport.ErrNotConnected
	}
	return nil
}

// startThinking schedules the synthetic move for the current round unless
// one is already chosen or scheduled.
func (t *Transport) startThinking() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.session == nil || t.session.Over() || t.own != nil || t.thinking {
		return
	}
	t.thinking = true
	round := t.session.SelfRound
	d := t.opts.Roller.Delay(t.delay)
	t.logger.Debug("thinking", zap.Int("round", round), zap.Duration("delay", d))
	t.timer.Schedule(d, func() { t.think(round) })
}

// think chooses and delivers the move for round, then resolves the mirror
// session when the human's move is already known.
func (t *Transport) think(round int) {
	t.mu.Lock()
	t.thinking = false
	if t.closed || t.session == nil || t.session.SelfRound != round || t.own != nil {
		t.mu.Unlock()
		return
	}
	chosen := t.chooseLocked()
	t.own = &chosen
	next := false
	if t.human != nil {
		next = t.resolveLocked()
	}
	t.mu.Unlock()

	t.EmitMove(transport.MoveMessage{Move: chosen.MoveID, Round: chosen.Round, Hint: slices.Clone(chosen.Hint)})
	if next && t.opts.Eager {
		t.startThinking()
	}
}

// chooseLocked picks the synthetic move for the current round.
func (t *Transport) chooseLocked() duel.ChosenMove {
	s := t.session
	legal, err := s.SelfLegalMoves()
	var move character.Move
	if err != nil || len(legal) == 0 {
		move = s.Self.Character.Moves[0]
		t.logger.Warn("no legal moves, falling back to first move",
			zap.Int("round", s.SelfRound), zap.String("move", move.ID), zap.Error(err))
	} else {
		move = t.pick(s, legal)
	}

	chosen := duel.ChosenMove{MoveID: move.ID, Round: s.SelfRound}
	if s.SelfHintOwed() {
		chosen.Hint = combat.BuildHint(move, s.Self.Character)
	}
	t.logger.Debug("move chosen", zap.Int("round", chosen.Round), zap.String("move", chosen.MoveID), zap.Strings("hint", chosen.Hint))
	return chosen
}

func (t *Transport) pick(s *duel.Session, legal []character.Move) character.Move {
	grants := s.SelfGrants()
	if t.opts.Strategy != nil {
		views := make([]scripting.MoveView, len(legal))
		for i, m := range legal {
			views[i] = scripting.MoveView{
				ID:       m.ID,
				Tag:      m.Tag,
				Name:     m.Name,
				Type:     m.Type,
				Range:    string(m.Range),
				Modifier: m.Modifier,
				Bonus:    combat.Accumulate(m, grants),
			}
		}
		state := scripting.StateView{
			Round:          s.SelfRound,
			Health:         s.Self.Health,
			StartingHealth: s.Self.StartingHealth,
			OpponentHealth: s.Opponent.Health,
			HasWeapon:      s.Self.HasWeapon,
			HasShield:      s.Self.HasShield,
		}
		if last := s.Last(); last != nil {
			state.OpponentLastMove = last.Opponent.Move
		}
		id, err := t.opts.Strategy.Choose(views, state)
		if err == nil {
			idx := slices.IndexFunc(legal, func(m character.Move) bool { return m.ID == id })
			return legal[idx]
		}
		t.logger.Warn("strategy failed, using weighted choice", zap.Int("round", s.SelfRound), zap.Error(err))
	}
	return Pick(legal, s.Self, grants, t.opts.Roller.Source())
}

// resolveLocked applies the current round to the mirror session.
//
// Postcondition: returns true when a round was applied and the duel continues.
func (t *Transport) resolveLocked() bool {
	s := t.session
	own, human := *t.own, *t.human
	t.own, t.human = nil, nil
	s.LastMoves = duel.LastMoves{Self: &own, Opponent: &human}
	rec, integrity, err := s.Resolve(own, human)
	if err != nil {
		t.logger.Error("resolving mirror round", zap.Int("round", own.Round), zap.Error(err))
		return false
	}
	for _, ie := range integrity {
		t.logger.Warn("resolution missing", zap.Int("round", rec.Round), zap.Error(ie))
	}
	t.logger.Debug("mirror round resolved",
		zap.Int("round", rec.Round),
		zap.Int("health", rec.Self.HealthAfter),
		zap.Int("opponent_health", rec.Opponent.HealthAfter))
	if s.Over() {
		t.logger.Info("duel over", zap.String("outcome", string(s.Outcome())))
		return false
	}
	return true
}
