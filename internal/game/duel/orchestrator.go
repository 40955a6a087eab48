package duel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/game/character"
	"github.com/cory-johannsen/duel/internal/game/combat"
	"github.com/cory-johannsen/duel/internal/observability"
	"github.com/cory-johannsen/duel/internal/transport"
)

// State is the orchestrator's position in the round lifecycle.
type State int

const (
	// StateAwaitingOpponent waits for the opponent's character selection.
	StateAwaitingOpponent State = iota
	StateAwaitingOwnMove
	StateAwaitingOpponentMove
	StateResolved
	StateTerminal
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateAwaitingOpponent:
		return "awaiting opponent"
	case StateAwaitingOwnMove:
		return "awaiting own move"
	case StateAwaitingOpponentMove:
		return "awaiting opponent move"
	case StateResolved:
		return "resolved"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// maxEarlyMoves bounds opponent moves held before the opponent's character is known.
const maxEarlyMoves = 4

// Options configures an Orchestrator.
type Options struct {
	// GameID keys persisted snapshots; a random id is generated when empty.
	GameID string
	// Self is the local side's character template.
	Self      *character.Character
	Catalog   character.Catalog
	Transport transport.Transport
	// Store persists a snapshot after every round; nil disables persistence.
	Store  Store
	Logger *zap.Logger
	// IOTimeout bounds catalog lookups and snapshot writes made from
	// transport callbacks. Defaults to 10s.
	IOTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Orchestrator drives the round lifecycle of one duel for the local side.
// All methods are safe for concurrent use; observers are invoked outside the
// internal lock.
type Orchestrator struct {
	self      *character.Character
	catalog   character.Catalog
	transport transport.Transport
	store     Store
	logger    *zap.Logger
	ioTimeout time.Duration
	now       func() time.Time
	obs       observers

	mu            sync.Mutex
	gameID        string
	state         State
	session       *Session
	pendingSelf   *ChosenMove
	pendingOpp    *ChosenMove
	early         []transport.MoveMessage
	opponentName  string
	freshlyLoaded bool
	submitting    bool
}

// NewOrchestrator wires an orchestrator to its transport.
//
// Precondition: opts.Self, opts.Catalog, opts.Transport and opts.Logger must be non-nil.
// Postcondition: The transport's receive callbacks are owned by the orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Self == nil || opts.Catalog == nil || opts.Transport == nil || opts.Logger == nil {
		return nil, errors.New("orchestrator requires self, catalog, transport and logger")
	}
	gameID := opts.GameID
	if gameID == "" {
		gameID = uuid.NewString()
	}
	timeout := opts.IOTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	o := &Orchestrator{
		self:      opts.Self,
		catalog:   opts.Catalog,
		transport: opts.Transport,
		store:     opts.Store,
		logger:    opts.Logger.With(zap.String("game_id", gameID)),
		ioTimeout: timeout,
		now:       now,
		gameID:    gameID,
		state:     StateAwaitingOpponent,
	}
	o.transport.OnMove(o.handleMove)
	o.transport.OnName(o.handleName)
	o.transport.OnCharacter(o.handleCharacter)
	o.transport.OnPeer(o.handlePeer)
	return o, nil
}

// Start connects the transport to roomID.
func (o *Orchestrator) Start(ctx context.Context, roomID string) error {
	if err := o.transport.Connect(ctx, roomID); err != nil {
		return fmt.Errorf("connecting to room %q: %w", roomID, err)
	}
	o.logger.Info("joined room", zap.String("room", roomID))
	return nil
}

// Close disconnects the transport and drops every subscriber.
func (o *Orchestrator) Close() error {
	o.obs.clear()
	return o.transport.Disconnect()
}

// Subscribe registers fn for every subsequent event.
//
// Postcondition: Returns a function that removes fn; calling it twice is safe.
func (o *Orchestrator) Subscribe(fn func(Event)) (unsubscribe func()) {
	return o.obs.add(fn)
}

// GameID returns the id snapshots are stored under.
func (o *Orchestrator) GameID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gameID
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// OpponentName returns the last name announced by the opponent.
func (o *Orchestrator) OpponentName() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opponentName
}

// Snapshot returns a copy of the current session state.
//
// Postcondition: Returns ErrNotReady before the opponent's character is known.
func (o *Orchestrator) Snapshot() (Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return Snapshot{}, ErrNotReady
	}
	return o.session.Snapshot(o.now()), nil
}

// LegalMoves returns the local side's legal moves for the current round.
//
// Postcondition: Returns an error wrapping moves.ErrNoLegalMoves when the
// content leaves no legal move.
func (o *Orchestrator) LegalMoves() ([]character.Move, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil, ErrNotReady
	}
	return o.session.SelfLegalMoves()
}

// SubmitMove records the local move for the current round, attaches a hint
// when one is owed, sends it to the opponent and resolves the round when the
// opponent's move is already present.
//
// Postcondition: Returns ErrGameOver, ErrNotReady or ErrIllegalMove without
// side effects; a send failure is returned after the move is recorded, and
// ResendMove may be used to retry.
func (o *Orchestrator) SubmitMove(ctx context.Context, moveID string) error {
	o.mu.Lock()
	if err := o.canSubmitLocked(); err != nil {
		o.mu.Unlock()
		return err
	}
	s := o.session
	legal, err := s.SelfLegalMoves()
	if err != nil {
		o.mu.Unlock()
		return err
	}
	idx := slices.IndexFunc(legal, func(m character.Move) bool { return m.ID == moveID })
	if idx < 0 {
		o.mu.Unlock()
		return fmt.Errorf("%w: %q in round %d", ErrIllegalMove, moveID, s.SelfRound)
	}
	var hint []string
	if s.SelfHintOwed() {
		hint = combat.BuildHint(legal[idx], s.Self.Character)
	}
	chosen := ChosenMove{MoveID: moveID, Round: s.SelfRound, Hint: hint}
	o.pendingSelf = &chosen
	s.LastMoves.Self = &chosen
	o.state = StateAwaitingOpponentMove
	o.submitting = true
	o.logger.Debug("local move chosen", zap.Int("round", chosen.Round), zap.String("move", moveID), zap.Strings("hint", hint))

	var events []Event
	if o.pendingOpp != nil {
		events = o.resolveLocked()
	}
	o.mu.Unlock()

	sendErr := o.transport.SendMove(ctx, toMessage(chosen))

	o.mu.Lock()
	o.submitting = false
	o.mu.Unlock()

	o.obs.emit(events...)
	if sendErr != nil {
		o.logger.Warn("sending move failed", zap.Int("round", chosen.Round), zap.Error(sendErr))
		return fmt.Errorf("sending move for round %d: %w", chosen.Round, sendErr)
	}
	return nil
}

// ResendMove sends the most recent local move again.
//
// Postcondition: Returns ErrNotReady when no move has been chosen.
func (o *Orchestrator) ResendMove(ctx context.Context) error {
	o.mu.Lock()
	if o.session == nil || o.session.LastMoves.Self == nil {
		o.mu.Unlock()
		return ErrNotReady
	}
	msg := toMessage(*o.session.LastMoves.Self)
	o.mu.Unlock()
	return o.transport.SendMove(ctx, msg)
}

// Resume restores the session saved under gameID. The last resolved round is
// re-emitted with Replayed set and is never applied again.
//
// Precondition: a Store must be configured.
// Postcondition: On success the orchestrator continues from the saved round.
func (o *Orchestrator) Resume(ctx context.Context, gameID string) error {
	if o.store == nil {
		return errors.New("resume requires a store")
	}
	snap, err := o.store.Load(ctx, gameID)
	if err != nil {
		return fmt.Errorf("loading game %s: %w", gameID, err)
	}
	s, err := Restore(snap)
	if err != nil {
		return err
	}
	if s.Self.Character.Slug != o.self.Slug {
		return fmt.Errorf("game %s was played as %q, not %q", gameID, s.Self.Character.Slug, o.self.Slug)
	}

	o.mu.Lock()
	o.gameID = gameID
	o.session = s
	o.pendingSelf, o.pendingOpp = nil, nil
	o.early = nil
	o.freshlyLoaded = true
	o.state = StateAwaitingOwnMove
	var events []Event
	if last := s.Last(); last != nil {
		rec := last.clone()
		events = append(events, Event{Kind: EventRoundCompleted, Round: rec.Round, Record: &rec, Replayed: true})
	}
	if s.Over() {
		o.state = StateTerminal
		events = append(events, Event{Kind: EventGameOver, Round: s.SelfRound - 1, Outcome: s.Outcome(), Replayed: true})
	}
	o.mu.Unlock()

	o.logger.Info("resumed game", zap.String("resumed_id", gameID), zap.Int("round", s.SelfRound))
	o.obs.emit(events...)
	return nil
}

func (o *Orchestrator) canSubmitLocked() error {
	switch {
	case o.state == StateTerminal:
		return ErrGameOver
	case o.session == nil:
		return ErrNotReady
	case o.pendingSelf != nil || o.submitting:
		return fmt.Errorf("%w: move already chosen for round %d", ErrIllegalMove, o.session.SelfRound)
	}
	return nil
}

func (o *Orchestrator) handleMove(msg transport.MoveMessage) {
	o.mu.Lock()
	if o.session == nil {
		if len(o.early) < maxEarlyMoves {
			o.early = append(o.early, msg)
		} else {
			o.logger.Warn("dropping early opponent move", zap.Int("round", msg.Round))
		}
		o.mu.Unlock()
		return
	}
	events := o.acceptOpponentMoveLocked(msg)
	o.mu.Unlock()
	o.obs.emit(events...)
}

// acceptOpponentMoveLocked records msg for the current round, or rejects it
// without touching the session.
func (o *Orchestrator) acceptOpponentMoveLocked(msg transport.MoveMessage) []Event {
	s := o.session
	if o.state == StateTerminal {
		o.logger.Debug("ignoring opponent move after game over", zap.Int("round", msg.Round))
		return nil
	}
	if s.Resolved(msg.Round) {
		o.logger.Debug("ignoring stale opponent move",
			zap.Int("round", msg.Round), zap.Int("current", s.SelfRound), zap.Bool("resumed", o.freshlyLoaded))
		return nil
	}
	if msg.Round != s.SelfRound {
		err := fmt.Errorf("%w: opponent sent round %d, local round is %d", ErrRoundMismatch, msg.Round, s.SelfRound)
		o.logger.Warn("round desync", zap.Int("opponent_round", msg.Round), zap.Int("local_round", s.SelfRound))
		return []Event{{Kind: EventDesync, Round: s.SelfRound, Err: err}}
	}
	if _, ok := s.Opponent.Character.Move(msg.Move); !ok {
		err := fmt.Errorf("%w: opponent %s has no move %q", ErrIllegalMove, s.Opponent.Character.Slug, msg.Move)
		o.logger.Warn("rejecting opponent move", zap.Error(err))
		return []Event{{Kind: EventMoveRejected, Round: msg.Round, Err: err}}
	}
	if o.pendingOpp != nil {
		if o.pendingOpp.MoveID != msg.Move {
			err := fmt.Errorf("%w: opponent changed move for round %d", ErrIllegalMove, msg.Round)
			o.logger.Warn("rejecting opponent move", zap.Error(err))
			return []Event{{Kind: EventMoveRejected, Round: msg.Round, Err: err}}
		}
		return nil
	}

	chosen := ChosenMove{MoveID: msg.Move, Round: msg.Round, Hint: slices.Clone(msg.Hint)}
	o.pendingOpp = &chosen
	s.LastMoves.Opponent = &chosen

	var events []Event
	if len(msg.Hint) > 0 {
		events = append(events, Event{Kind: EventHintReceived, Round: msg.Round, Hint: slices.Clone(msg.Hint)})
	}
	if o.pendingSelf != nil {
		events = append(events, o.resolveLocked()...)
	}
	return events
}

// resolveLocked applies the current round at most once, persists the result
// and reports it.
func (o *Orchestrator) resolveLocked() []Event {
	s := o.session
	self, opp := *o.pendingSelf, *o.pendingOpp
	if s.Resolved(self.Round) {
		o.logger.Debug("round already resolved", zap.Int("round", self.Round))
		o.pendingSelf, o.pendingOpp = nil, nil
		return nil
	}
	rec, integrity, err := s.Resolve(self, opp)
	if err != nil {
		o.logger.Error("resolving round", zap.Int("round", self.Round), zap.Error(err))
		return []Event{{Kind: EventDesync, Round: s.SelfRound, Err: err}}
	}
	for _, ie := range integrity {
		observability.IntegrityError(o.logger, "resolution missing",
			zap.Int("round", rec.Round), zap.Error(ie))
	}
	o.pendingSelf, o.pendingOpp = nil, nil
	o.freshlyLoaded = false
	o.state = StateResolved
	o.persistLocked()

	o.logger.Info("round resolved",
		zap.Int("round", rec.Round),
		zap.String("self_outcome", rec.Self.Outcome),
		zap.String("opponent_outcome", rec.Opponent.Outcome),
		zap.Int("self_health", rec.Self.HealthAfter),
		zap.Int("opponent_health", rec.Opponent.HealthAfter),
	)
	events := []Event{{Kind: EventRoundCompleted, Round: rec.Round, Record: &rec}}
	if s.Over() {
		o.state = StateTerminal
		outcome := s.Outcome()
		o.logger.Info("game over", zap.String("outcome", string(outcome)))
		events = append(events, Event{Kind: EventGameOver, Round: rec.Round, Outcome: outcome})
	} else {
		o.state = StateAwaitingOwnMove
	}
	return events
}

func (o *Orchestrator) persistLocked() {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.ioTimeout)
	defer cancel()
	if err := o.store.Save(ctx, o.session.Snapshot(o.now())); err != nil {
		o.logger.Error("saving snapshot", zap.Int("round", o.session.SelfRound), zap.Error(err))
	}
}

func (o *Orchestrator) handleCharacter(slug string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.ioTimeout)
	defer cancel()
	tpl, err := o.catalog.Character(ctx, slug)
	if err != nil {
		o.logger.Error("resolving opponent character", zap.String("slug", slug), zap.Error(err))
		o.obs.emit(Event{Kind: EventError, Character: slug, Err: err})
		return
	}

	o.mu.Lock()
	if o.session != nil {
		if o.session.Opponent.Character.Slug != slug {
			o.logger.Warn("ignoring character change mid-game",
				zap.String("current", o.session.Opponent.Character.Slug), zap.String("announced", slug))
		}
		o.mu.Unlock()
		return
	}
	o.session = NewSession(o.gameID, o.self, tpl)
	o.state = StateAwaitingOwnMove
	events := []Event{{Kind: EventReady, Character: slug}}
	early := o.early
	o.early = nil
	for _, msg := range early {
		events = append(events, o.acceptOpponentMoveLocked(msg)...)
	}
	o.mu.Unlock()

	o.logger.Info("opponent ready", zap.String("character", slug))
	o.obs.emit(events...)
}

func (o *Orchestrator) handleName(name string) {
	o.mu.Lock()
	o.opponentName = name
	o.mu.Unlock()
	o.obs.emit(Event{Kind: EventOpponentName, Name: name})
}

func (o *Orchestrator) handlePeer(e transport.PeerEvent) {
	o.logger.Info("peer event", zap.String("kind", string(e.Kind)), zap.Int("peers", e.Peers))
	o.obs.emit(Event{Kind: EventPeer, Peer: e})
}

func toMessage(m ChosenMove) transport.MoveMessage {
	return transport.MoveMessage{Move: m.MoveID, Round: m.Round, Hint: slices.Clone(m.Hint)}
}
