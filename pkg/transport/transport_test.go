package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osmauxi/gjRepository/pkg/game"
	"github.com/osmauxi/gjRepository/pkg/protocol"
)

func drain(ch <-chan protocol.Envelope) []protocol.Envelope {
	var out []protocol.Envelope
	for {
		select {
		case env := <-ch:
			out = append(out, env)
		default:
			return out
		}
	}
}

func receive(t *testing.T, ch <-chan protocol.Envelope) protocol.Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for envelope")
	}
	return protocol.Envelope{}
}

func input(t *testing.T, entity uint32) protocol.Envelope {
	env, err := protocol.New(protocol.KindInput, entity, protocol.Input{Command: game.NewInputCommand()})
	require.NoError(t, err)
	return env
}

func TestHubRouting(t *testing.T) {
	hub := NewHub(0)
	server := hub.Server()

	a := hub.Connect()
	b := hub.Connect()

	events := drain(server.Incoming())
	require.Len(t, events, 2)
	assert.Equal(t, protocol.KindJoin, events[0].Kind)
	assert.Equal(t, a.ID(), events[0].From)
	assert.Equal(t, b.ID(), events[1].From)

	// Participants cannot claim to be someone else.
	env := input(t, 5)
	env.From = b.ID()
	require.NoError(t, a.Send(env))
	got := drain(server.Incoming())
	require.Len(t, got, 1)
	assert.Equal(t, a.ID(), got[0].From)

	require.NoError(t, server.Send(input(t, 5).WithTo(b.ID())))
	assert.Empty(t, drain(a.Incoming()))
	assert.Len(t, drain(b.Incoming()), 1)

	require.NoError(t, server.Send(input(t, 5)))
	assert.Len(t, drain(a.Incoming()), 1)
	assert.Len(t, drain(b.Incoming()), 1)

	require.NoError(t, a.Close())
	leave := drain(server.Incoming())
	require.Len(t, leave, 1)
	assert.Equal(t, protocol.KindLeave, leave[0].Kind)
	assert.Equal(t, a.ID(), leave[0].From)

	assert.ErrorIs(t, a.Send(input(t, 5)), ErrClosed)
	assert.ErrorIs(t, server.Send(input(t, 5).WithTo(a.ID())), ErrNoPeer)
}

func TestHubDropsOnlyUnreliable(t *testing.T) {
	hub := NewHub(0.5)
	server := hub.Server()
	client := hub.Connect()
	drain(server.Incoming())

	for i := 0; i < 10; i++ {
		require.NoError(t, client.Send(input(t, 1)))
	}
	assert.Len(t, drain(server.Incoming()), 5)
	assert.Equal(t, 5, hub.Dropped())

	for i := 0; i < 10; i++ {
		require.NoError(t, client.Send(input(t, 1).WithLane(protocol.LaneReliable)))
	}
	assert.Len(t, drain(server.Incoming()), 10)
}

func TestWebSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := NewWebSocketServer()
	ts := httptest.NewServer(server)
	defer ts.Close()

	client, err := DialWebSocket(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"))
	require.NoError(t, err)

	join := receive(t, server.Incoming())
	assert.Equal(t, protocol.KindJoin, join.Kind)
	participant := join.From

	require.NoError(t, client.Send(input(t, 9)))
	got := receive(t, server.Incoming())
	assert.Equal(t, protocol.KindInput, got.Kind)
	assert.Equal(t, participant, got.From)
	assert.Equal(t, uint32(9), got.Entity)

	snapshot, err := protocol.New(protocol.KindSnapshot, 9, protocol.Snapshot{State: game.NewEntityState(mgl64.Vec3{1, 2, 3}, 0)})
	require.NoError(t, err)
	require.NoError(t, server.Send(snapshot))

	back := receive(t, client.Incoming())
	assert.Equal(t, protocol.KindSnapshot, back.Kind)
	assert.Equal(t, protocol.Authority, back.From)
	body, err := protocol.Body[protocol.Snapshot](back)
	require.NoError(t, err)
	assert.Equal(t, 2.0, body.State.Position.Y())

	require.NoError(t, client.Close())
	leave := receive(t, server.Incoming())
	assert.Equal(t, protocol.KindLeave, leave.Kind)
	assert.Equal(t, participant, leave.From)
}
