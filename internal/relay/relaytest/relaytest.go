// Package relaytest runs a relay server for transport tests.
package relaytest

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/relay"
)

// Config returns relay settings suitable for tests.
func Config() config.RelayConfig {
	return config.RelayConfig{
		AllowedOrigins: []string{"*"},
		BufferLimit:    16,
		WriteTimeout:   time.Second,
		JoinTimeout:    time.Second,
	}
}

// Server is a running relay.
type Server struct {
	*relay.Server
	HTTP *httptest.Server
	// URL is the websocket base URL, e.g. ws://127.0.0.1:port.
	URL string
}

// Start runs a relay until the test ends.
func Start(t testing.TB) *Server {
	t.Helper()
	srv := relay.NewServer(Config(), zaptest.NewLogger(t))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return &Server{Server: srv, HTTP: ts, URL: "ws" + strings.TrimPrefix(ts.URL, "http")}
}

// Kick drops every live relay connection, as a relay restart would.
func (s *Server) Kick() {
	s.Server.Close()
}
