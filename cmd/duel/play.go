package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/game/character"
	"github.com/cory-johannsen/duel/internal/game/dice"
	"github.com/cory-johannsen/duel/internal/game/duel"
	"github.com/cory-johannsen/duel/internal/observability"
	"github.com/cory-johannsen/duel/internal/scripting"
	"github.com/cory-johannsen/duel/internal/transport"
)

var (
	playCharacter string
	playName      string
	playRoom      string
	playOpponent  string
	playResume    string
	playSeed      uint64
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play a duel",
	Long: `Play a duel from the terminal. Type a move id to commit it for the
round, "moves" to list legal moves again, or "quit" to leave.`,
	RunE: runPlay,
}

func init() {
	f := playCmd.Flags()
	f.StringVar(&playCharacter, "character", "", "your character slug")
	f.StringVar(&playName, "name", "Player", "your display name")
	f.StringVar(&playRoom, "room", "practice", "room id shared with your opponent")
	f.StringVar(&playOpponent, "opponent", "", "synthetic opponent's character slug; defaults to another catalog character")
	f.StringVar(&playResume, "resume", "", "game id of a saved session to continue")
	f.Uint64Var(&playSeed, "seed", 0, "seed for the synthetic opponent; 0 uses crypto randomness")
	f.String("transport", "", "synthetic, relay, edge or mesh")
	f.String("relay-url", "", "relay server base URL")
	f.String("storage", "", "session store: memory, redis or postgres")
	f.Bool("eager", false, "synthetic opponent commits its move before yours")
	f.String("strategy", "", "Lua strategy script for the synthetic opponent")
	_ = v.BindPFlag("client.transport", f.Lookup("transport"))
	_ = v.BindPFlag("client.relay_url", f.Lookup("relay-url"))
	_ = v.BindPFlag("storage.backend", f.Lookup("storage"))
	_ = v.BindPFlag("synthetic.eager", f.Lookup("eager"))
	_ = v.BindPFlag("synthetic.strategy_script", f.Lookup("strategy"))
	_ = playCmd.MarkFlagRequired("character")
}

// errResumeSynthetic rejects --resume with the synthetic opponent, whose
// mirror session always starts at the first round.
var errResumeSynthetic = errors.New("--resume needs a relay, edge or mesh opponent; the synthetic opponent cannot rejoin a saved game")

// checkPlayFlags rejects flag combinations that cannot produce a playable duel.
func checkPlayFlags(cfg config.Config, resume string) error {
	if resume != "" && cfg.Client.Transport == "synthetic" {
		return errResumeSynthetic
	}
	return nil
}

func runPlay(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := checkPlayFlags(cfg, playResume); err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Logging, "duel")
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	catalog, err := buildCatalog(cfg.Client, logger)
	if err != nil {
		return err
	}
	lookupCtx, cancel := context.WithTimeout(ctx, cfg.Client.ConnectTimeout)
	self, err := catalog.Character(lookupCtx, playCharacter)
	if err == nil {
		playOpponent, err = pickOpponent(lookupCtx, catalog, self.Slug, playOpponent)
	}
	cancel()
	if err != nil {
		return err
	}

	store, release, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	src := dice.NewCryptoSource()
	if playSeed != 0 {
		src = dice.NewSeededSource(playSeed)
	}
	roller := dice.NewRoller(src, logger)

	var strategy *scripting.Strategy
	if path := cfg.Synthetic.StrategyScript; path != "" && cfg.Client.Transport == "synthetic" {
		strategy, err = scripting.LoadStrategy(path, 0, roller, logger)
		if err != nil {
			return err
		}
		defer strategy.Close()
	}

	tr, err := buildTransport(cfg, transportParams{
		Identity: transport.Identity{Name: playName, CharacterSlug: self.Slug},
		Opponent: playOpponent,
		Catalog:  catalog,
		Roller:   roller,
		Strategy: strategy,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	orch, err := duel.NewOrchestrator(duel.Options{
		Self:      self,
		Catalog:   catalog,
		Transport: tr,
		Store:     store,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer orch.Close()

	out := cmd.OutOrStdout()
	r := newRenderer(out, func() ([]character.Move, error) {
		if orch.State() == duel.StateTerminal {
			return nil, nil
		}
		return orch.LegalMoves()
	})
	orch.Subscribe(r.handle)

	if playResume != "" {
		if err := orch.Resume(ctx, playResume); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "game %s: %s as %s in room %s via %s\n", orch.GameID(), playName, self.Name, playRoom, cfg.Client.Transport)
	if err := orch.Start(ctx, playRoom); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "interrupted")
			return nil
		case outcome := <-r.done:
			logger.Info("duel finished", zap.String("outcome", string(outcome)), zap.String("game_id", orch.GameID()))
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch line {
			case "":
			case "quit", "q":
				return nil
			case "moves":
				r.prompt()
			default:
				if err := orch.SubmitMove(ctx, line); err != nil {
					fmt.Fprintf(out, "! %v\n", err)
				}
			}
		}
	}
}
