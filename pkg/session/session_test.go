package session

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/repeale/fp-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osmauxi/gjRepository/pkg/config"
	"github.com/osmauxi/gjRepository/pkg/game"
	"github.com/osmauxi/gjRepository/pkg/game/mask"
	"github.com/osmauxi/gjRepository/pkg/journal"
	"github.com/osmauxi/gjRepository/pkg/protocol"
	"github.com/osmauxi/gjRepository/pkg/replication"
	"github.com/osmauxi/gjRepository/pkg/sim"
	"github.com/osmauxi/gjRepository/pkg/transport"
)

const DT = 0.02

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Process([]string{})
	require.NoError(t, err)
	cfg.Server.Pickups.Count = 0
	cfg.Server.SpawnPoints = []config.SpawnPoint{
		{Position: mgl64.Vec3{0, 1, 0}, Yaw: 0},
		{Position: mgl64.Vec3{0, 1, 1}, Yaw: 180},
		{Position: mgl64.Vec3{0, 1, -8}, Yaw: 0},
	}
	return cfg
}

func forward() Intent {
	cmd := game.NewInputCommand()
	cmd.Move = mgl64.Vec2{0, 1}
	return Intent{Command: cmd}
}

func repeat(intent Intent, n int) []Intent {
	intents := make([]Intent, n)
	for i := range intents {
		intents[i] = intent
	}
	return intents
}

type world struct {
	server  *Server
	clients []*Client
}

// step runs one tick the way the network would interleave it: clients
// send, the server steps and answers, clients read.
func (w *world) step() {
	for _, c := range w.clients {
		c.Poll()
		c.FixedTick(DT)
	}
	w.server.Poll()
	w.server.FixedTick(DT)
	w.server.PresentationTick(DT)
	for _, c := range w.clients {
		c.Poll()
		c.PresentationTick(DT)
	}
}

func (w *world) run(n int) {
	for i := 0; i < n; i++ {
		w.step()
	}
}

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

func authoritative(t *testing.T, s *Server, participant uint32) game.EntityState {
	t.Helper()
	e := s.EntityOf(participant)
	require.True(t, opt.IsSome(e))
	return e.Value.Driver().State()
}

func TestServerAuthoritative(t *testing.T) {
	cfg := testConfig(t)
	hub := transport.NewHub(0)
	server := NewServer(cfg, hub.Server())

	a := NewClient(cfg, hub.Connect(), NewScript(repeat(forward(), 60)...))
	b := NewClient(cfg, hub.Connect(), Idle{})
	w := &world{server: server, clients: []*Client{a, b}}

	w.run(60)
	require.True(t, a.Joined())
	require.True(t, b.Joined())

	state := authoritative(t, server, a.Participant())
	assert.Greater(t, state.Position.Z(), 2.0)

	// The owner predicted the same path.
	own := a.Driver(a.Entity())
	require.True(t, opt.IsSome(own))
	assert.Equal(t, replication.RoleOwner, own.Value.Role())
	assert.InDelta(t, state.Position.Z(), own.Value.State().Position.Z(), 0.05)
	assert.Zero(t, a.Corrections())
	assert.Greater(t, server.EntityOf(a.Participant()).Value.Gate().Energy(mask.Dear), 0, "walking feeds dear energy")

	// Observers converge once the entity comes to rest.
	w.run(100)
	state = authoritative(t, server, a.Participant())
	view, ok := b.Views().Get(a.Entity())
	require.True(t, ok)
	assert.Equal(t, "observer", view.Role)
	assert.InDelta(t, state.Position.X(), view.Position.X(), 0.05)
	assert.InDelta(t, state.Position.Z(), view.Position.Z(), 0.05)

	served, ok := server.Views().Get(a.Entity())
	require.True(t, ok)
	assert.Equal(t, "authority", served.Role)
	assert.Equal(t, 100, served.Health)
	assert.Contains(t, served.Energy, "monkey")
}

func TestReconciliationSnap(t *testing.T) {
	cfg := testConfig(t)
	hub := transport.NewHub(0)
	server := NewServer(cfg, hub.Server())

	// This client believes it is faster than the server allows.
	fast := *cfg
	fast.Movement.MaxMoveSpeed = 8

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"), "test")
	require.NoError(t, err)
	defer j.Close()

	a := NewClient(&fast, hub.Connect(), NewScript(repeat(forward(), 100)...), WithClientJournal(j))
	w := &world{server: server, clients: []*Client{a}}
	w.run(100)

	assert.Greater(t, a.Corrections(), 0)

	// After a snap the prediction is back near the authority.
	state := authoritative(t, server, a.Participant())
	own := a.Driver(a.Entity()).Value.State()
	assert.Less(t, state.Position.Sub(own.Position).Len(), 1.0)

	counts, err := j.Counts()
	require.NoError(t, err)
	assert.Equal(t, int64(a.Corrections()), counts.Corrections)
}

func TestOwnerAuthoritative(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Mode = "owner"
	hub := transport.NewHub(0)
	server := NewServer(cfg, hub.Server())

	a := NewClient(cfg, hub.Connect(), NewScript(repeat(forward(), 60)...))
	b := NewClient(cfg, hub.Connect(), Idle{})
	w := &world{server: server, clients: []*Client{a, b}}
	w.run(160)

	own := a.Driver(a.Entity()).Value.State()
	assert.Greater(t, own.Position.Z(), 2.0)

	served, ok := server.Views().Get(a.Entity())
	require.True(t, ok)
	assert.Equal(t, "observer", served.Role)
	assert.Equal(t, "owner", served.Mode)
	assert.InDelta(t, own.Position.Z(), served.Position.Z(), 0.05)

	relayed := b.Driver(a.Entity())
	require.True(t, opt.IsSome(relayed))
	assert.InDelta(t, own.Position.Z(), relayed.Value.State().Position.Z(), 0.05)
	assert.Zero(t, a.Corrections())
}

func TestActivationForcesReliableSnapshot(t *testing.T) {
	cfg := testConfig(t)
	hub := transport.NewHub(0)
	server := NewServer(cfg, hub.Server())

	script := NewScript()
	a := NewClient(cfg, hub.Connect(), script)
	watcher := hub.Connect()
	w := &world{server: server, clients: []*Client{a}}
	w.run(10)

	e := server.EntityOf(a.Participant())
	require.True(t, opt.IsSome(e))

	// Not enough energy yet.
	script.Push(Intent{Command: game.NewInputCommand(), Transform: mask.Panda})
	w.run(5)
	assert.Equal(t, mask.None, e.Value.Gate().Mask())

	e.Value.Gate().AddEnergy(mask.Panda, 100)
	a.requested = mask.None
	drain(watcher.Incoming())

	script.Push(Intent{Command: game.NewInputCommand(), Transform: mask.Panda})
	w.step()

	assert.Equal(t, mask.Panda, e.Value.Gate().Mask())
	assert.Equal(t, 150, e.Value.Gate().Health())

	var transformed, forced bool
	for _, env := range drain(watcher.Incoming()) {
		if env.Entity != a.Entity() {
			continue
		}
		switch env.Kind {
		case protocol.KindTransformed:
			transformed = true
			body, err := protocol.Body[protocol.Transformed](env)
			require.NoError(t, err)
			assert.Equal(t, mask.Panda, body.Mask)
		case protocol.KindSnapshot:
			forced = forced || env.Lane == protocol.LaneReliable
		}
	}
	assert.True(t, transformed)
	assert.True(t, forced)

	// Both simulating processes took on the new form.
	simulator := a.Driver(a.Entity()).Value.Simulator()
	assert.Equal(t, sim.SkillDash, simulator.Installed())
	assert.Equal(t, 0.8, simulator.Config().SpeedMultiplier())
	assert.Equal(t, sim.SkillDash, e.Value.Driver().Simulator().Installed())

	view, ok := a.Views().Get(a.Entity())
	require.True(t, ok)
	assert.Equal(t, "panda", view.Mask)
}

func TestDeathOnReliableLane(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Combat.Damage = 100
	cfg.Server.RespawnDelay = 0.5
	hub := transport.NewHub(0)
	server := NewServer(cfg, hub.Server())

	attack := game.NewInputCommand()
	attack.Attack = true
	script := NewScript(repeat(Intent{Command: game.NewInputCommand()}, 5)...)
	script.Push(Intent{Command: attack})

	a := NewClient(cfg, hub.Connect(), script)
	b := NewClient(cfg, hub.Connect(), Idle{})
	watcher := hub.Connect()
	w := &world{server: server, clients: []*Client{a, b}}

	var death, deadSnapshot bool
	for i := 0; i < 15; i++ {
		w.step()
		for _, env := range drain(watcher.Incoming()) {
			if env.Entity != b.Entity() {
				continue
			}
			switch env.Kind {
			case protocol.KindDeath:
				death = true
				assert.Equal(t, protocol.LaneReliable, env.Lane)
			case protocol.KindSnapshot:
				body, err := protocol.Body[protocol.Snapshot](env)
				require.NoError(t, err)
				if body.State.IsDead {
					deadSnapshot = true
					assert.Equal(t, protocol.LaneReliable, env.Lane)
				}
			}
		}
	}

	require.True(t, death)
	assert.True(t, deadSnapshot)

	victim := server.EntityOf(b.Participant()).Value
	assert.False(t, victim.Gate().Alive())
	assert.True(t, victim.Driver().State().IsDead)
	assert.Equal(t, 25, server.EntityOf(a.Participant()).Value.Gate().Energy(mask.Panda))

	// The owner's prediction disagreed about death and was replaced.
	assert.Greater(t, b.Corrections(), 0)
	assert.True(t, b.Driver(b.Entity()).Value.State().IsDead)

	w.run(30)
	assert.True(t, victim.Gate().Alive())
	assert.False(t, victim.Driver().State().IsDead)
	assert.False(t, b.Driver(b.Entity()).Value.State().IsDead)
}

func TestPickups(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Pickups.Count = 1
	cfg.Server.Pickups.MonkeyShare = 1
	cfg.Server.Pickups.RespawnDelay = 0.1
	cfg.Server.SpawnPoints = []config.SpawnPoint{{Position: mgl64.Vec3{0, 1, 4}}}
	hub := transport.NewHub(0)
	server := NewServer(cfg, hub.Server())

	pickup := server.Pickups().All()
	require.Len(t, pickup, 1)

	a := NewClient(cfg, hub.Connect(), Idle{})
	w := &world{server: server, clients: []*Client{a}}
	w.step()

	e := server.EntityOf(a.Participant()).Value
	assert.Equal(t, 20, e.Gate().Energy(mask.Monkey))
	assert.Zero(t, server.Pickups().Len())

	// Claiming what is gone does nothing.
	claim, err := protocol.New(protocol.KindPickup, e.ID, protocol.Pickup{ID: pickup[0].ID})
	require.NoError(t, err)
	require.NoError(t, a.transport.Send(claim))
	server.Poll()
	assert.Equal(t, 20, e.Gate().Energy(mask.Monkey))

	// It comes back and is taken again.
	w.run(10)
	assert.Equal(t, 40, e.Gate().Energy(mask.Monkey))
	assert.Equal(t, 2, a.Claimed())
}

func TestStaleActivationDropped(t *testing.T) {
	cfg := testConfig(t)
	hub := transport.NewHub(0)
	server := NewServer(cfg, hub.Server())

	a := NewClient(cfg, hub.Connect(), Idle{})
	intruder := hub.Connect()
	w := &world{server: server, clients: []*Client{a}}
	w.run(3)

	e := server.EntityOf(a.Participant()).Value
	e.Gate().AddEnergy(mask.Monkey, 100)

	for _, entity := range []uint32{e.ID, 99} {
		env, err := protocol.New(protocol.KindActivate, entity, protocol.Activate{Mask: mask.Monkey})
		require.NoError(t, err)
		require.NoError(t, intruder.Send(env))
	}
	drain(intruder.Incoming())
	w.run(2)

	assert.Equal(t, mask.None, e.Gate().Mask())
	for _, env := range drain(intruder.Incoming()) {
		assert.NotEqual(t, protocol.KindTransformed, env.Kind)
	}
}

func TestInputRateLimit(t *testing.T) {
	for _, test := range []struct {
		burst int
		moves bool
	}{
		{burst: 2, moves: false},
		{burst: 5, moves: true},
	} {
		cfg := testConfig(t)
		cfg.Server.InputRate = 1
		cfg.Server.InputBurst = test.burst
		hub := transport.NewHub(0)
		server := NewServer(cfg, hub.Server())

		client := hub.Connect()
		server.Poll()
		e := server.EntityOf(client.ID()).Value

		for sequence := uint32(1); sequence <= 3; sequence++ {
			cmd := game.NewInputCommand()
			cmd.Sequence = sequence
			if sequence == 3 {
				cmd.Move = mgl64.Vec2{0, 1}
			}
			env, err := protocol.New(protocol.KindInput, e.ID, protocol.Input{Command: cmd})
			require.NoError(t, err)
			require.NoError(t, client.Send(env))
		}

		server.Poll()
		for i := 0; i < 20; i++ {
			server.FixedTick(DT)
		}

		moved := e.Driver().State().Position.Z() > 0.5
		assert.Equal(t, test.moves, moved, "burst %d", test.burst)
	}
}

func TestLocalHost(t *testing.T) {
	cfg := testConfig(t)
	server := NewServer(cfg, transport.NewHub(0).Server(), WithLocal(NewWander(1, mask.Dear)))

	for i := 0; i < 300; i++ {
		server.FixedTick(DT)
	}

	views := server.Views().List()
	require.Len(t, views, 1)
	assert.Equal(t, "host", views[0].Role)
	assert.NotEqual(t, mgl64.Vec3{0, 1, 0}, views[0].Position)

	recorder := httptest.NewRecorder()
	server.Views().ServeHTTP(recorder, httptest.NewRequest("GET", "/api/entities", nil))
	var decoded []View
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &decoded))
	assert.Equal(t, views, decoded)
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)
	hub := transport.NewHub(0)
	server := NewServer(cfg, hub.Server())
	client := NewClient(cfg, hub.Connect(), NewWander(2, mask.None))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(chan error, 2)
	go func() { errs <- server.Run(ctx) }()
	go func() { errs <- client.Run(ctx) }()

	assert.Eventually(t, func() bool {
		for _, view := range client.Views().List() {
			if view.Role == "owner" && view.Tick > 10 {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			require.FailNow(t, "session did not stop")
		}
	}
}
