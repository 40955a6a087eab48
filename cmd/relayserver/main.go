// Package main provides the relay server binary: per-room websocket relays
// and mesh signalling behind one HTTP listener.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/observability"
	"github.com/cory-johannsen/duel/internal/relay"
	"github.com/cory-johannsen/duel/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file; empty uses defaults and environment")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "relayserver")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	relaySrv := relay.NewServer(cfg.Relay, logger)
	httpSvc := server.NewHTTPService(cfg.Relay.Addr(), relaySrv.Handler(), cfg.Relay.ShutdownTimeout, logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("relay-http", httpSvc)
	// Registered last so it stops first: open sockets are hijacked and would
	// otherwise hold the HTTP shutdown for its full timeout.
	stopped := make(chan struct{})
	lifecycle.Add("relay-rooms", &server.FuncService{
		StartFn: func() error {
			<-stopped
			return nil
		},
		StopFn: func() {
			relaySrv.Close()
			close(stopped)
		},
	})

	logger.Info("relay server initialized",
		zap.String("addr", cfg.Relay.Addr()),
		zap.Strings("allowed_origins", cfg.Relay.AllowedOrigins),
		zap.Int("buffer_limit", cfg.Relay.BufferLimit),
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("relay server exited", zap.Error(err))
	}
}
