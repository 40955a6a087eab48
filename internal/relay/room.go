package relay

import (
	"errors"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/protocol"
)

// Capacity is the number of participants a room holds.
const Capacity = 2

var (
	// ErrRoomFull is returned by Join when the room already holds Capacity members.
	ErrRoomFull = errors.New("room full")
	// errRoomClosed is returned when the room's goroutine has exited.
	errRoomClosed = errors.New("room closed")
)

// Member is one connected participant as seen by a Room.
type Member interface {
	// Send queues data for delivery without blocking. It reports false if the
	// member is closed or cannot keep up.
	Send(data []byte) bool
	// Close flushes queued data and closes the connection. Safe to call twice.
	Close()
}

// RoomStats is a point-in-time view of a room.
type RoomStats struct {
	Members  int `json:"members"`
	Buffered int `json:"buffered"`
}

type commandKind int

const (
	cmdJoin commandKind = iota
	cmdMessage
	cmdLeave
	cmdStats
	cmdShutdown
)

type roomCommand struct {
	kind   commandKind
	member Member
	data   []byte
	reply  chan error
	stats  chan RoomStats
}

// Room forwards messages between at most two members. All state is owned by
// the goroutine started in newRoom; callers talk to it through the inbox.
type Room struct {
	id      string
	limit   int
	logger  *zap.Logger
	inbox   chan roomCommand
	done    chan struct{}
	onEmpty func(*Room)

	members []Member
	buffer  [][]byte
}

// newRoom starts the room goroutine.
//
// Precondition: limit >= 1; onEmpty must not call back into the room.
func newRoom(id string, limit int, logger *zap.Logger, onEmpty func(*Room)) *Room {
	r := &Room{
		id:      id,
		limit:   limit,
		logger:  logger.With(zap.String("room", id)),
		inbox:   make(chan roomCommand),
		done:    make(chan struct{}),
		onEmpty: onEmpty,
	}
	go r.run()
	return r
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Join adds m to the room.
//
// Postcondition: on success m has been sent joined{roomId}; when the room
// reaches Capacity the newcomer has received any buffered history and both
// members have received peer-joined. Returns ErrRoomFull after sending
// room-full to m; the caller owns closing m in that case.
func (r *Room) Join(m Member) error {
	reply := make(chan error, 1)
	if !r.submit(roomCommand{kind: cmdJoin, member: m, reply: reply}) {
		return errRoomClosed
	}
	return <-reply
}

// Deliver hands a raw message from m to the room.
func (r *Room) Deliver(m Member, data []byte) {
	r.submit(roomCommand{kind: cmdMessage, member: m, data: data})
}

// Leave removes m, notifying the remaining member.
func (r *Room) Leave(m Member) {
	r.submit(roomCommand{kind: cmdLeave, member: m})
}

// Stats reports membership and buffer size. A destroyed room reports zeros.
func (r *Room) Stats() RoomStats {
	ch := make(chan RoomStats, 1)
	if !r.submit(roomCommand{kind: cmdStats, stats: ch}) {
		return RoomStats{}
	}
	return <-ch
}

// shutdown closes every member and destroys the room.
func (r *Room) shutdown() {
	r.submit(roomCommand{kind: cmdShutdown})
	<-r.done
}

func (r *Room) submit(cmd roomCommand) bool {
	select {
	case r.inbox <- cmd:
		return true
	case <-r.done:
		return false
	}
}

func (r *Room) run() {
	defer close(r.done)
	for cmd := range r.inbox {
		switch cmd.kind {
		case cmdJoin:
			cmd.reply <- r.join(cmd.member)
		case cmdMessage:
			r.message(cmd.member, cmd.data)
		case cmdLeave:
			r.remove(cmd.member)
		case cmdStats:
			cmd.stats <- RoomStats{Members: len(r.members), Buffered: len(r.buffer)}
		case cmdShutdown:
			for _, m := range r.members {
				m.Close()
			}
			r.members = nil
		}
		if len(r.members) == 0 && cmd.kind != cmdStats && cmd.kind != cmdJoin {
			r.destroy()
			return
		}
	}
}

func (r *Room) join(m Member) error {
	if r.indexOf(m) >= 0 {
		return nil
	}
	if len(r.members) >= Capacity {
		r.logger.Info("rejecting join: room full")
		m.Send(protocol.MustEncode(protocol.Envelope{Type: protocol.TypeRoomFull, RoomID: r.id}))
		return ErrRoomFull
	}
	r.members = append(r.members, m)
	m.Send(protocol.MustEncode(protocol.Envelope{Type: protocol.TypeJoined, RoomID: r.id}))
	r.logger.Info("member joined", zap.Int("members", len(r.members)))

	if len(r.members) == Capacity {
		if len(r.buffer) > 0 {
			m.Send(protocol.MustEncode(protocol.History(r.buffer)))
			r.logger.Debug("flushed history", zap.Int("messages", len(r.buffer)))
			r.buffer = nil
		}
		joined := protocol.MustEncode(protocol.Envelope{Type: protocol.TypePeerJoined, RoomID: r.id})
		for _, member := range r.members {
			member.Send(joined)
		}
	}
	return nil
}

func (r *Room) message(m Member, data []byte) {
	if r.indexOf(m) < 0 {
		r.logger.Debug("dropping message from non-member")
		return
	}
	env, err := protocol.Decode(data)
	if err != nil {
		r.logger.Debug("rejecting message", zap.Error(err))
		m.Send(protocol.MustEncode(protocol.Error(err.Error())))
		return
	}

	switch env.Type {
	case protocol.TypeLeave:
		r.remove(m)
		return
	case protocol.TypeJoin:
		m.Send(protocol.MustEncode(protocol.Error("already joined")))
		return
	}

	if other := r.other(m); other != nil {
		if !other.Send(data) {
			r.logger.Warn("peer not keeping up, message dropped", zap.String("type", string(env.Type)))
		}
		return
	}
	if !protocol.Replayable(env.Type) {
		return
	}
	r.buffer = append(r.buffer, data)
	if over := len(r.buffer) - r.limit; over > 0 {
		r.buffer = r.buffer[over:]
	}
}

func (r *Room) remove(m Member) {
	i := r.indexOf(m)
	if i < 0 {
		return
	}
	r.members = append(r.members[:i], r.members[i+1:]...)
	m.Close()
	r.logger.Info("member left", zap.Int("members", len(r.members)))
	left := protocol.MustEncode(protocol.Envelope{Type: protocol.TypePeerLeft, RoomID: r.id})
	for _, member := range r.members {
		member.Send(left)
	}
}

func (r *Room) destroy() {
	r.buffer = nil
	r.logger.Info("room destroyed")
	if r.onEmpty != nil {
		r.onEmpty(r)
	}
}

func (r *Room) indexOf(m Member) int {
	for i, member := range r.members {
		if member == m {
			return i
		}
	}
	return -1
}

func (r *Room) other(m Member) Member {
	for _, member := range r.members {
		if member != m {
			return member
		}
	}
	return nil
}
