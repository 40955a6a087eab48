package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/content"
	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/game/character"
	"github.com/cory-johannsen/duel/internal/game/dice"
	"github.com/cory-johannsen/duel/internal/game/duel"
	"github.com/cory-johannsen/duel/internal/scripting"
	"github.com/cory-johannsen/duel/internal/storage/memory"
	"github.com/cory-johannsen/duel/internal/storage/postgres"
	"github.com/cory-johannsen/duel/internal/storage/redis"
	"github.com/cory-johannsen/duel/internal/transport"
	"github.com/cory-johannsen/duel/internal/transport/edge"
	"github.com/cory-johannsen/duel/internal/transport/mesh"
	"github.com/cory-johannsen/duel/internal/transport/relaysocket"
	"github.com/cory-johannsen/duel/internal/transport/synthetic"
)

func buildCatalog(cfg config.ClientConfig, logger *zap.Logger) (character.Catalog, error) {
	if cfg.CatalogURL == "" {
		cat, err := content.Catalog()
		if err != nil {
			return nil, err
		}
		return cat, nil
	}
	cat, err := character.NewRemoteCatalog(cfg.CatalogURL, http.DefaultClient, cfg.ConnectTimeout, logger)
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// buildStore opens the configured snapshot store. The returned release
// function closes any connection it opened.
func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (duel.Store, func(), error) {
	switch cfg.Storage.Backend {
	case "memory":
		return memory.NewStore(), func() {}, nil
	case "redis":
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("pinging redis at %s: %w", cfg.Redis.Addr, err)
		}
		store, err := redis.NewStore(client, cfg.Redis.SessionTTL)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		logger.Info("using redis session store", zap.String("addr", cfg.Redis.Addr))
		return store, func() { _ = client.Close() }, nil
	case "postgres":
		repo, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using postgres session store", zap.String("host", cfg.Database.Host))
		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// transportParams carries what buildTransport needs beyond configuration.
type transportParams struct {
	Identity transport.Identity
	// Opponent is the synthetic opponent's character slug.
	Opponent string
	Catalog  character.Catalog
	Roller   *dice.Roller
	Strategy *scripting.Strategy
	Logger   *zap.Logger
}

func buildTransport(cfg config.Config, p transportParams) (transport.Transport, error) {
	c := cfg.Client
	switch c.Transport {
	case "synthetic":
		return synthetic.New(synthetic.Options{
			Identity:      p.Identity,
			Name:          "Computer",
			Character:     p.Opponent,
			Catalog:       p.Catalog,
			Roller:        p.Roller,
			ThinkingDelay: cfg.Synthetic.ThinkingDelay,
			Eager:         cfg.Synthetic.Eager,
			Strategy:      p.Strategy,
			LookupTimeout: c.ConnectTimeout,
			Logger:        p.Logger,
		})
	case "relay":
		return relaysocket.New(relaysocket.Options{
			URL:            c.RelayURL,
			Identity:       p.Identity,
			ConnectTimeout: c.ConnectTimeout,
			WriteTimeout:   cfg.Relay.WriteTimeout,
			Logger:         p.Logger,
		}), nil
	case "edge":
		return edge.New(edge.Options{
			URL:            c.RelayURL,
			Identity:       p.Identity,
			ConnectTimeout: c.ConnectTimeout,
			WriteTimeout:   cfg.Relay.WriteTimeout,
			Reconnect:      c.Reconnect,
			Logger:         p.Logger,
		}), nil
	case "mesh":
		return mesh.New(mesh.Options{
			Broker: &mesh.SocketBroker{
				URL:            c.RelayURL,
				ConnectTimeout: c.ConnectTimeout,
				WriteTimeout:   cfg.Relay.WriteTimeout,
				Logger:         p.Logger,
			},
			Connector: &mesh.WebRTCConnector{
				ICEServers: c.ICEServers,
				Logger:     p.Logger,
			},
			Identity:       p.Identity,
			ConnectTimeout: c.ConnectTimeout,
			Logger:         p.Logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", c.Transport)
	}
}

// pickOpponent returns want when set, otherwise the first catalog slug other than self.
func pickOpponent(ctx context.Context, cat character.Catalog, self, want string) (string, error) {
	if want != "" {
		return want, nil
	}
	slugs, err := cat.Available(ctx)
	if err != nil {
		return "", err
	}
	for _, s := range slugs {
		if s != self {
			return s, nil
		}
	}
	return self, nil
}
