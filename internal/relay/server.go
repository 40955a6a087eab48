// Package relay implements the relay server: one actor goroutine per room
// forwarding messages between exactly two websocket participants, plus the
// signalling hub used by mesh clients.
package relay

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/protocol"
)

// Server exposes the relay over HTTP.
//
//	GET /ws               join by message: {"type":"join","roomId":...}
//	GET /rooms/{roomId}   join by path
//	GET /signal?room=ID   mesh signalling
//	GET /healthz          liveness and room counts
type Server struct {
	cfg      config.RelayConfig
	hub      *Hub
	signals  *SignalHub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewServer builds a relay server.
//
// Precondition: cfg must have passed Validate; logger must not be nil.
func NewServer(cfg config.RelayConfig, logger *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		hub:     NewHub(cfg.BufferLimit, logger),
		signals: NewSignalHub(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are checked before the upgrade is attempted.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Hub returns the room hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.guardOrigin(s.handleJoinByMessage))
	mux.HandleFunc("GET /rooms/{roomId}", s.guardOrigin(s.handleJoinByPath))
	mux.HandleFunc("GET /signal", s.guardOrigin(s.handleSignal))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Close disconnects every participant.
func (s *Server) Close() {
	s.hub.Close()
	s.signals.Close()
}

func (s *Server) guardOrigin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if !s.originAllowed(origin) {
			s.logger.Info("rejecting origin", zap.String("origin", origin), zap.String("path", r.URL.Path))
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// originAllowed reports whether origin may connect. Requests without an
// Origin header come from non-browser clients and are allowed.
func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *Server) handleJoinByMessage(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", zap.Error(err))
		return
	}
	member := newWSMember(conn, s.cfg.WriteTimeout, s.logger)

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.JoinTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		s.logger.Debug("no join message", zap.Error(err))
		member.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	env, err := protocol.Decode(data)
	if err != nil || env.Type != protocol.TypeJoin {
		member.Send(protocol.MustEncode(protocol.Error("first message must be join")))
		member.Close()
		return
	}
	if err := protocol.ValidateRoomID(env.RoomID); err != nil {
		member.Send(protocol.MustEncode(protocol.Error(err.Error())))
		member.Close()
		return
	}
	s.serveRoom(conn, member, env.RoomID)
}

func (s *Server) handleJoinByPath(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")
	if err := protocol.ValidateRoomID(roomID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", zap.Error(err))
		return
	}
	s.serveRoom(conn, newWSMember(conn, s.cfg.WriteTimeout, s.logger), roomID)
}

func (s *Server) serveRoom(conn *websocket.Conn, member *wsMember, roomID string) {
	room, err := s.hub.Join(roomID, member)
	if err != nil {
		// room-full has already been queued.
		member.Close()
		return
	}
	defer room.Leave(member)
	readLoop(conn, func(data []byte) { room.Deliver(member, data) })
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if err := protocol.ValidateRoomID(roomID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("upgrade failed", zap.Error(err))
		return
	}
	member := newWSMember(conn, s.cfg.WriteTimeout, s.logger)
	id := s.signals.Add(roomID, member)
	defer s.signals.Remove(roomID, id)
	readLoop(conn, func(data []byte) { s.signals.Route(roomID, id, data) })
}

type healthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	SignalRooms int    `json:"signalRooms"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Rooms:       s.hub.Len(),
		SignalRooms: s.signals.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
