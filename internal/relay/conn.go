package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendQueueSize  = 64
	maxMessageSize = 64 * 1024
)

// wsMember adapts a websocket connection to Member. A single writer goroutine
// owns all writes to the connection.
type wsMember struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       *zap.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newWSMember(conn *websocket.Conn, writeTimeout time.Duration, logger *zap.Logger) *wsMember {
	m := &wsMember{
		conn:         conn,
		writeTimeout: writeTimeout,
		logger:       logger,
		send:         make(chan []byte, sendQueueSize),
	}
	go m.writeLoop()
	return m
}

// Send implements Member.
func (m *wsMember) Send(data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	select {
	case m.send <- data:
		return true
	default:
		return false
	}
}

// Close implements Member.
func (m *wsMember) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.send)
}

func (m *wsMember) writeLoop() {
	defer m.conn.Close()
	for data := range m.send {
		_ = m.conn.SetWriteDeadline(time.Now().Add(m.writeTimeout))
		if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			m.logger.Debug("write failed", zap.Error(err))
			m.Close()
			for range m.send {
			}
			return
		}
	}
	_ = m.conn.SetWriteDeadline(time.Now().Add(m.writeTimeout))
	_ = m.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readLoop passes every inbound message to deliver until the connection fails.
func readLoop(conn *websocket.Conn, deliver func([]byte)) {
	conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		deliver(data)
	}
}
