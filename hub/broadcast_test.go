package hub

import (
	"testing"
	"time"

	"github.com/room4-2/callbridge/messages"
	"github.com/room4-2/callbridge/session"
	"github.com/room4-2/callbridge/session/sessiontest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newBroadcastFixture(t *testing.T, n int) (*Broadcaster, []*session.Session, []*sessiontest.Conn) {
	t.Helper()
	reg := session.NewRegistry(session.RegistryConfig{})
	t.Cleanup(reg.Shutdown)

	var (
		sessions []*session.Session
		conns    []*sessiontest.Conn
	)
	for i := 0; i < n; i++ {
		conn := sessiontest.NewConn()
		s, err := reg.Register(conn, nil)
		require.NoError(t, err)
		s.Start()
		sessions = append(sessions, s)
		conns = append(conns, conn)
	}
	logger := zerolog.Nop()
	return NewBroadcaster(reg, &logger), sessions, conns
}

func TestBroadcastExcludesSender(t *testing.T) {
	b, sessions, conns := newBroadcastFixture(t, 3)

	n := b.Broadcast(messages.NewErrorMessage("x"), sessions[0].ID)
	require.Equal(t, 2, n)

	expectNone(t, conns[0])
	require.JSONEq(t, `{"type":"error","message":"x"}`, expect(t, conns[1]))
	require.JSONEq(t, `{"type":"error","message":"x"}`, expect(t, conns[2]))
}

func TestBroadcastSkipsClosedSessions(t *testing.T) {
	b, sessions, conns := newBroadcastFixture(t, 2)
	require.NoError(t, sessions[1].Close())

	require.Equal(t, 1, b.BroadcastRaw([]byte(`{"type":"x"}`), ""))
	require.Equal(t, `{"type":"x"}`, expect(t, conns[0]))
}

func TestBroadcastClosesSlowClient(t *testing.T) {
	b, sessions, conns := newBroadcastFixture(t, 2)
	conns[1].Stall()

	// The stalled writer holds one frame; the rest fill the queue.
	var delivered int
	for i := 0; i < 300; i++ {
		delivered = b.BroadcastRaw([]byte(`{}`), sessions[0].ID)
		if delivered == 0 {
			break
		}
	}
	require.Zero(t, delivered)

	<-conns[1].Done()
	require.True(t, sessions[1].IsClosed())
	require.False(t, sessions[0].IsClosed())
}

func TestBroadcastDoesNotWaitForSlowClientClose(t *testing.T) {
	b, sessions, conns := newBroadcastFixture(t, 2)
	conns[1].Stall()

	for i := 0; i < 300; i++ {
		start := time.Now()
		delivered := b.BroadcastRaw([]byte(`{}`), sessions[0].ID)
		require.Less(t, time.Since(start), 200*time.Millisecond)
		if delivered == 0 {
			break
		}
	}

	require.Eventually(t, sessions[1].IsClosed, waitTimeout, 5*time.Millisecond)
	<-conns[1].Done()
}

func TestSendTo(t *testing.T) {
	b, sessions, conns := newBroadcastFixture(t, 2)

	require.NoError(t, b.SendTo(sessions[1].ID, messages.NewAssignID("z")))
	require.JSONEq(t, `{"type":"assign-id","clientId":"z"}`, expect(t, conns[1]))
	expectNone(t, conns[0])

	require.ErrorIs(t, b.SendTo("missing", messages.NewAssignID("z")), session.ErrClosed)
}
