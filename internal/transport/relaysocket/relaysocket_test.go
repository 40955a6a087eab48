package relaysocket_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/duel/internal/relay/relaytest"
	"github.com/cory-johannsen/duel/internal/transport"
	"github.com/cory-johannsen/duel/internal/transport/relaysocket"
	"github.com/cory-johannsen/duel/internal/transport/transporttest"
)

var ctx = context.Background()

func newTransport(t *testing.T, url, name, slug string) *relaysocket.Transport {
	t.Helper()
	tr := relaysocket.New(relaysocket.Options{
		URL:            url,
		Identity:       transport.Identity{Name: name, CharacterSlug: slug},
		ConnectTimeout: time.Second,
		WriteTimeout:   time.Second,
		Logger:         zaptest.NewLogger(t),
	})
	t.Cleanup(func() { _ = tr.Disconnect() })
	return tr
}

func TestRelaySocket_ExchangesIdentityAndMoves(t *testing.T) {
	srv := relaytest.Start(t)
	a := newTransport(t, srv.URL, "Ada", "knight")
	b := newTransport(t, srv.URL, "Bo", "goblin")
	inA, inB := transporttest.Listen(a), transporttest.Listen(b)

	require.NoError(t, a.Connect(ctx, "arena"))
	assert.Equal(t, 1, a.PeerCount())
	require.NoError(t, b.Connect(ctx, "arena"))

	assert.Equal(t, transport.PeerJoined, transporttest.AwaitPeer(t, inA, transport.PeerJoined).Kind)
	transporttest.AwaitPeer(t, inB, transport.PeerJoined)
	assert.Equal(t, 2, a.PeerCount())

	assert.Equal(t, "Bo", transporttest.Receive(t, inA.Names))
	assert.Equal(t, "goblin", transporttest.Receive(t, inA.Characters))
	assert.Equal(t, "Ada", transporttest.Receive(t, inB.Names))
	assert.Equal(t, "knight", transporttest.Receive(t, inB.Characters))

	require.NoError(t, a.SendMove(ctx, transport.MoveMessage{Move: "7", Round: 1, Hint: []string{"6", "7", "8"}}))
	got := transporttest.Receive(t, inB.Moves)
	assert.Equal(t, transport.MoveMessage{Move: "7", Round: 1, Hint: []string{"6", "7", "8"}}, got)
	transporttest.Quiet(t, inA.Moves, 100*time.Millisecond)
}

func TestRelaySocket_ReplaysHistoryToLateJoiner(t *testing.T) {
	srv := relaytest.Start(t)
	a := newTransport(t, srv.URL, "Ada", "knight")
	b := newTransport(t, srv.URL, "Bo", "goblin")
	inB := transporttest.Listen(b)

	require.NoError(t, a.Connect(ctx, "arena"))
	require.NoError(t, a.SendMove(ctx, transport.MoveMessage{Move: "7", Round: 1}))

	require.NoError(t, b.Connect(ctx, "arena"))
	assert.Equal(t, transport.MoveMessage{Move: "7", Round: 1}, transporttest.Receive(t, inB.Moves))
	assert.Equal(t, "Ada", transporttest.Receive(t, inB.Names))
}

func TestRelaySocket_RoomFull(t *testing.T) {
	srv := relaytest.Start(t)
	a := newTransport(t, srv.URL, "Ada", "knight")
	b := newTransport(t, srv.URL, "Bo", "goblin")
	c := newTransport(t, srv.URL, "Cy", "knight")
	inC := transporttest.Listen(c)

	require.NoError(t, a.Connect(ctx, "arena"))
	require.NoError(t, b.Connect(ctx, "arena"))

	err := c.Connect(ctx, "arena")
	require.ErrorIs(t, err, transport.ErrRoomFull)
	assert.Equal(t, transport.PeerRoomFull, transporttest.Receive(t, inC.Peers).Kind)
	assert.Equal(t, 0, c.PeerCount())
}

func TestRelaySocket_PeerLeft(t *testing.T) {
	srv := relaytest.Start(t)
	a := newTransport(t, srv.URL, "Ada", "knight")
	b := newTransport(t, srv.URL, "Bo", "goblin")
	inA := transporttest.Listen(a)

	require.NoError(t, a.Connect(ctx, "arena"))
	require.NoError(t, b.Connect(ctx, "arena"))
	transporttest.AwaitPeer(t, inA, transport.PeerJoined)

	require.NoError(t, b.Disconnect())
	e := transporttest.AwaitPeer(t, inA, transport.PeerLeft)
	assert.Equal(t, 1, e.Peers)
	assert.Equal(t, 1, a.PeerCount())
}

func TestRelaySocket_ConnectionLost(t *testing.T) {
	srv := relaytest.Start(t)
	a := newTransport(t, srv.URL, "Ada", "knight")
	inA := transporttest.Listen(a)
	require.NoError(t, a.Connect(ctx, "arena"))

	srv.Kick()
	transporttest.AwaitPeer(t, inA, transport.PeerConnectionLost)
	assert.ErrorIs(t, a.SendName(ctx, "again"), transport.ErrNotConnected)
}

func TestRelaySocket_SendBeforeConnect(t *testing.T) {
	tr := newTransport(t, "ws://127.0.0.1:1", "Ada", "knight")
	assert.ErrorIs(t, tr.SendMove(ctx, transport.MoveMessage{Move: "1", Round: 1}), transport.ErrNotConnected)
}

func TestRelaySocket_DisconnectReleasesCallbacks(t *testing.T) {
	srv := relaytest.Start(t)
	a := newTransport(t, srv.URL, "Ada", "knight")
	inA := transporttest.Listen(a)
	require.NoError(t, a.Connect(ctx, "arena"))

	require.NoError(t, a.Disconnect())
	require.NoError(t, a.Disconnect())
	assert.ErrorIs(t, a.SendName(ctx, "x"), transport.ErrClosed)
	transporttest.Quiet(t, inA.Peers, 100*time.Millisecond)
}

func TestRelaySocket_ConnectTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	tr := relaysocket.New(relaysocket.Options{
		URL:            "ws://" + ln.Addr().String(),
		ConnectTimeout: 100 * time.Millisecond,
		Logger:         zaptest.NewLogger(t),
	})
	start := time.Now()
	err = tr.Connect(ctx, "arena")
	assert.ErrorIs(t, err, transport.ErrConnectTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRelaySocket_InvalidRoom(t *testing.T) {
	tr := newTransport(t, "ws://127.0.0.1:1", "Ada", "knight")
	assert.Error(t, tr.Connect(ctx, "no spaces allowed"))
}
