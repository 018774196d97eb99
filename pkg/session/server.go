package session

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/repeale/fp-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osmauxi/gjRepository/pkg/chanlock"
	"github.com/osmauxi/gjRepository/pkg/config"
	"github.com/osmauxi/gjRepository/pkg/game"
	"github.com/osmauxi/gjRepository/pkg/game/authority"
	"github.com/osmauxi/gjRepository/pkg/game/mask"
	"github.com/osmauxi/gjRepository/pkg/gate"
	"github.com/osmauxi/gjRepository/pkg/journal"
	"github.com/osmauxi/gjRepository/pkg/protocol"
	"github.com/osmauxi/gjRepository/pkg/replication"
	"github.com/osmauxi/gjRepository/pkg/ticker"
	"github.com/osmauxi/gjRepository/pkg/transport"
)

// Entity is one character hosted by the server.
type Entity struct {
	ID    uint32
	Owner uint32

	driver replication.Driver
	gate   *gate.Gate
	log    zerolog.Logger

	// IsAttacking as of the previous tick.
	attacking bool
	respawnIn float64
}

func (e *Entity) Driver() replication.Driver {
	return e.driver
}

func (e *Entity) Gate() *gate.Gate {
	return e.gate
}

// writes reports whether this process holds the entity's canonical state.
func (e *Entity) writes() bool {
	return e.driver.Role() != replication.RoleObserver
}

type participant struct {
	id      uint32
	entity  uint32
	limiter *rate.Limiter
}

type pendingPickup struct {
	at       float64
	kind     gate.PickupKind
	amount   int
	position mgl64.Vec3
}

// Server hosts a session: it spawns an entity for each participant, runs
// the authority's side of replication and resolves combat, pickups and
// transformations. Everything but Run's tickers happens on one goroutine.
type Server struct {
	config    *config.Config
	transport transport.Transport
	local     InputSource
	journal   *journal.Journal
	log       zerolog.Logger

	mode         authority.Mode
	time         float64
	entities     map[uint32]*Entity
	participants map[uint32]*participant
	nextEntity   uint32
	nextSpawn    int
	pickups      *gate.Pickups
	pending      []pendingPickup
	views        Views
}

type ServerOption func(*Server)

// WithLocal hosts an entity controlled from this process.
func WithLocal(source InputSource) ServerOption {
	return func(s *Server) {
		s.local = source
	}
}

func WithJournal(j *journal.Journal) ServerOption {
	return func(s *Server) {
		s.journal = j
	}
}

func NewServer(cfg *config.Config, t transport.Transport, options ...ServerOption) *Server {
	s := &Server{
		config:       cfg,
		transport:    t,
		log:          log.With().Str("session", "server").Logger(),
		mode:         cfg.Server.AuthorityMode(),
		entities:     make(map[uint32]*Entity),
		participants: make(map[uint32]*participant),
		pickups:      gate.NewPickups(),
	}

	for _, option := range options {
		option(s)
	}

	s.scatterPickups()

	if s.local != nil {
		if _, err := s.spawn(protocol.Authority); err != nil {
			s.log.Error().Err(err).Msg("failed to spawn local entity")
		}
	}

	s.publishViews()
	return s
}

func (s *Server) Views() *Views {
	return &s.views
}

func (s *Server) Pickups() *gate.Pickups {
	return s.pickups
}

func (s *Server) Entity(id uint32) opt.Option[*Entity] {
	e, ok := s.entities[id]
	if !ok {
		return opt.None[*Entity]()
	}
	return opt.Some(e)
}

// EntityOf returns the entity a participant owns.
func (s *Server) EntityOf(participant uint32) opt.Option[*Entity] {
	for _, e := range s.sorted() {
		if e.Owner == participant {
			return opt.Some(e)
		}
	}
	return opt.None[*Entity]()
}

func (s *Server) sorted() []*Entity {
	entities := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].ID < entities[j].ID
	})
	return entities
}

// active reports whether anyone is there to simulate for.
func (s *Server) active() bool {
	return s.local != nil || len(s.participants) > 0
}

func (s *Server) roleFor(owner uint32) replication.Role {
	local := owner == protocol.Authority
	switch {
	case s.mode == authority.Server && local:
		return replication.RoleHost
	case s.mode == authority.Server:
		return replication.RoleAuthority
	case local:
		return replication.RoleOwner
	}
	return replication.RoleObserver
}

func (s *Server) nextSpawnPoint() config.SpawnPoint {
	points := s.config.Server.SpawnPoints
	point := points[s.nextSpawn%len(points)]
	s.nextSpawn++
	return point
}

func (s *Server) spawn(owner uint32) (*Entity, error) {
	s.nextEntity++
	id := s.nextEntity

	point := s.nextSpawnPoint()
	state := game.NewEntityState(point.Position, point.Yaw)
	role := s.roleFor(owner)
	logger := s.log.With().Uint32("entity", id).Uint32("owner", owner).Logger()

	options := replication.Options{
		Mode:     s.mode,
		Role:     role,
		Initial:  state,
		Settings: s.config.Replication.Build(),
		Logger:   logger,
	}
	if role != replication.RoleObserver {
		options.Simulator = newSimulator(s.config, state)
	}

	driver, err := replication.New(options)
	if err != nil {
		return nil, err
	}

	e := &Entity{
		ID:     id,
		Owner:  owner,
		driver: driver,
		gate:   gate.New(s.config.Gate.Build(), logger),
		log:    logger,
	}
	s.entities[id] = e

	logger.Info().Str("role", role.String()).Msg("spawned")
	return e, nil
}

func (s *Server) spawnBody(e *Entity) protocol.Spawn {
	return protocol.Spawn{
		Owner: e.Owner,
		Mode:  s.mode,
		State: e.driver.State(),
		Mask:  e.gate.Mask(),
	}
}

func (s *Server) sendTo(to uint32, kind protocol.Kind, entity uint32, body interface{}) {
	s.sendOn(to, kind.Lane(), kind, entity, body)
}

func (s *Server) sendOn(to uint32, lane protocol.Lane, kind protocol.Kind, entity uint32, body interface{}) {
	err := send(s.transport, kind, entity, to, lane, body)
	if err != nil {
		s.log.Warn().Err(err).Str("kind", kind.String()).Uint32("to", to).Msg("failed to send")
	}
}

func (s *Server) broadcast(kind protocol.Kind, entity uint32, body interface{}) {
	s.sendTo(protocol.Broadcast, kind, entity, body)
}

// Poll handles every envelope that has already arrived.
func (s *Server) Poll() {
	for {
		select {
		case env := <-s.transport.Incoming():
			s.handle(env)
		default:
			return
		}
	}
}

func (s *Server) handle(env protocol.Envelope) {
	switch env.Kind {
	case protocol.KindJoin:
		s.join(env.From)
	case protocol.KindLeave:
		s.leave(env.From)
	case protocol.KindInput:
		s.receiveInput(env)
	case protocol.KindSnapshot:
		s.receiveSnapshot(env)
	case protocol.KindActivate:
		s.receiveActivate(env)
	case protocol.KindPickup:
		s.receiveClaim(env)
	default:
		s.log.Debug().Str("kind", env.Kind.String()).Uint32("from", env.From).Msg("ignoring message")
	}
}

func (s *Server) join(id uint32) {
	if _, ok := s.participants[id]; ok {
		return
	}

	e, err := s.spawn(id)
	if err != nil {
		s.log.Error().Err(err).Uint32("participant", id).Msg("failed to spawn entity")
		return
	}

	s.participants[id] = &participant{
		id:      id,
		entity:  e.ID,
		limiter: rate.NewLimiter(rate.Limit(s.config.Server.InputRate), s.config.Server.InputBurst),
	}

	s.sendTo(id, protocol.KindHello, e.ID, protocol.Hello{
		Participant: id,
		Entity:      e.ID,
		TickRate:    float64(s.config.Server.TickRate),
	})
	for _, other := range s.sorted() {
		if other.ID != e.ID {
			s.sendTo(id, protocol.KindSpawn, other.ID, s.spawnBody(other))
		}
	}
	s.broadcast(protocol.KindSpawn, e.ID, s.spawnBody(e))

	s.log.Info().Uint32("participant", id).Uint32("entity", e.ID).Msg("participant joined")
}

func (s *Server) leave(id uint32) {
	p, ok := s.participants[id]
	if !ok {
		return
	}
	delete(s.participants, id)
	delete(s.entities, p.entity)

	s.broadcast(protocol.KindDespawn, p.entity, nil)
	s.log.Info().Uint32("participant", id).Msg("participant left")
}

// owned resolves the entity a message refers to, if the sender owns it.
func (s *Server) owned(env protocol.Envelope) opt.Option[*Entity] {
	e, ok := s.entities[env.Entity]
	if !ok || e.Owner != env.From {
		s.log.Debug().
			Str("kind", env.Kind.String()).
			Uint32("entity", env.Entity).
			Uint32("from", env.From).
			Msg("dropping message for unknown entity")
		return opt.None[*Entity]()
	}
	return opt.Some(e)
}

func (s *Server) receiveInput(env protocol.Envelope) {
	p, ok := s.participants[env.From]
	if !ok {
		return
	}
	if !p.limiter.Allow() {
		s.log.Debug().Uint32("participant", p.id).Msg("input rate exceeded")
		return
	}

	e := s.owned(env)
	if opt.IsNone(e) {
		return
	}

	body, err := protocol.Body[protocol.Input](env)
	if err != nil {
		s.log.Warn().Err(err).Msg("invalid input")
		return
	}
	e.Value.driver.ReceiveInput(body.Command)
}

func (s *Server) receiveSnapshot(env protocol.Envelope) {
	if s.mode != authority.Owner {
		return
	}

	e := s.owned(env)
	if opt.IsNone(e) {
		return
	}

	body, err := protocol.Body[protocol.Snapshot](env)
	if err != nil {
		s.log.Warn().Err(err).Msg("invalid snapshot")
		return
	}
	e.Value.driver.ReceiveSnapshot(body.State)

	for _, p := range s.participants {
		if p.id != env.From {
			s.sendOn(p.id, env.Lane, protocol.KindSnapshot, env.Entity, body)
		}
	}
}

func (s *Server) receiveActivate(env protocol.Envelope) {
	e := s.owned(env)
	if opt.IsNone(e) {
		return
	}

	body, err := protocol.Body[protocol.Activate](env)
	if err != nil {
		s.log.Warn().Err(err).Msg("invalid activation")
		return
	}
	s.activate(e.Value, body.Mask)
}

func (s *Server) activate(e *Entity, kind mask.Kind) {
	if !e.gate.Activate(kind) {
		e.log.Debug().Str("mask", kind.String()).Msg("activation refused")
		return
	}

	if simulator := e.driver.Simulator(); simulator != nil {
		gate.Apply(simulator, e.driver, kind, e.gate.Settings())
	}

	s.broadcast(protocol.KindTransformed, e.ID, protocol.Transformed{Mask: kind})

	if err := s.journal.Activation(e.ID, e.driver.State().Tick, kind.String()); err != nil {
		s.log.Warn().Err(err).Msg("failed to journal activation")
	}
}

func (s *Server) receiveClaim(env protocol.Envelope) {
	e := s.owned(env)
	if opt.IsNone(e) {
		return
	}

	body, err := protocol.Body[protocol.Pickup](env)
	if err != nil {
		s.log.Warn().Err(err).Msg("invalid pickup")
		return
	}

	pickup := s.pickups.Get(body.ID)
	if opt.IsNone(pickup) {
		e.Value.log.Debug().Uint32("pickup", body.ID).Msg("pickup already taken")
		return
	}

	reach := s.config.Server.Pickups.Radius + s.config.Replication.CorrectionThreshold
	if pickup.Value.Position.Sub(e.Value.driver.State().Position).Len() > reach {
		e.Value.log.Debug().Uint32("pickup", body.ID).Msg("pickup out of reach")
		return
	}

	s.claim(e.Value, body.ID)
}

func (s *Server) claim(e *Entity, id uint32) {
	claimed := s.pickups.Claim(id)
	if opt.IsNone(claimed) {
		return
	}

	pickup := claimed.Value
	kind := gate.Grant(e.gate, pickup)
	s.pending = append(s.pending, pendingPickup{
		at:       s.time + s.config.Server.Pickups.RespawnDelay,
		kind:     pickup.Kind,
		amount:   pickup.Amount,
		position: pickup.Position,
	})

	s.broadcast(protocol.KindPickup, e.ID, protocol.Pickup{ID: pickup.ID})
	e.log.Debug().
		Uint32("pickup", pickup.ID).
		Str("energy", kind.String()).
		Int("total", e.gate.Energy(kind)).
		Msg("picked up energy")
}

// scatterPickups lays the initial pickups on two rings around the origin.
func (s *Server) scatterPickups() {
	settings := s.config.Server.Pickups
	height := s.config.World.FloorHeight + s.config.Physics.HalfExtents.Y()
	monkeys := int(math.Round(float64(settings.Count) * settings.MonkeyShare))

	for i := 0; i < settings.Count; i++ {
		angle := 2 * math.Pi * float64(i) / float64(settings.Count)
		radius := 4.0 + 3*float64(i%2)
		position := mgl64.Vec3{radius * math.Sin(angle), height, radius * math.Cos(angle)}

		kind := gate.PickupCommon
		if i < monkeys {
			kind = gate.PickupMonkey
		}
		s.pickups.Spawn(kind, settings.Amount, position)
	}
}

func (s *Server) restorePickups() {
	remaining := s.pending[:0]
	for _, p := range s.pending {
		if p.at > s.time {
			remaining = append(remaining, p)
			continue
		}
		s.pickups.Spawn(p.kind, p.amount, p.position)
	}
	s.pending = remaining
}

// FixedTick advances every entity by one simulation step and resolves the
// interactions between them.
func (s *Server) FixedTick(dt float64) {
	s.time += dt

	var intent Intent
	if s.local != nil {
		intent = s.local.Poll()
	}

	for _, e := range s.sorted() {
		var input game.InputCommand
		if e.Owner == protocol.Authority && s.local != nil {
			input = intent.Command
			if intent.Transform != mask.None && e.gate.Mask() == mask.None {
				s.activate(e, intent.Transform)
			}
		}

		for _, emission := range e.driver.FixedTick(dt, input) {
			if emission.Kind != replication.EmitSnapshot {
				continue
			}
			s.sendOn(protocol.Broadcast, emission.Lane, protocol.KindSnapshot, e.ID, protocol.Snapshot{State: emission.State})
		}
	}

	s.resolve(dt)
	s.restorePickups()
	s.publishViews()
}

func (s *Server) resolve(dt float64) {
	radius := s.config.Server.Pickups.Radius

	for _, e := range s.sorted() {
		state := e.driver.State()

		if !e.gate.Alive() {
			e.attacking = false
			e.respawnIn -= dt
			if e.respawnIn <= 0 {
				s.respawn(e)
			}
			continue
		}

		if state.IsAttacking && !e.attacking && !state.IsDead {
			s.strike(e, state)
		}
		e.attacking = state.IsAttacking

		moving := game.Horizontal(state.Velocity).Len() > 0.1
		e.gate.AccrueDear(moving, dt)

		for _, pickup := range s.pickups.Within(state.Position, radius) {
			s.claim(e, pickup.ID)
		}
	}
}

// PresentationTick advances interpolation for entities this process only
// observes.
func (s *Server) PresentationTick(dt float64) {
	for _, e := range s.sorted() {
		e.driver.PresentationTick(dt)
	}
}

func (s *Server) publishViews() {
	views := make([]View, 0, len(s.entities))
	for _, e := range s.entities {
		state := e.driver.State()
		view := newView(e.ID, e.Owner, state, state.Transform())
		view.Role = e.driver.Role().String()
		view.Mode = e.driver.Mode().String()
		view.Mask = e.gate.Mask().String()
		view.Health = e.gate.Health()
		view.MaxHealth = e.gate.MaxHealth()
		view.Energy = make(map[string]int, len(mask.All))
		for _, kind := range mask.All {
			view.Energy[kind.String()] = e.gate.Energy(kind)
		}
		views = append(views, view)
	}
	s.views.publish(views)
}

// Run drives the session until ctx is done. The fixed ticker is paused
// while nobody is connected.
func (s *Server) Run(ctx context.Context) error {
	fixed := ticker.NewPaused(time.Second / time.Duration(s.config.Server.TickRate))
	defer fixed.Stop()

	presentation := time.NewTicker(time.Second / time.Duration(s.config.Server.PresentationRate))
	defer presentation.Stop()

	health := chanlock.New(s.log)
	healthy := health.Poll(ctx)

	dt := s.config.Server.FixedStep()
	last := time.Now()

	for {
		if s.active() {
			fixed.Resume()
		} else {
			fixed.Pause()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-healthy:
		case <-fixed.C:
			health.Mark("fixed tick")
			s.FixedTick(dt)
		case now := <-presentation.C:
			health.Mark("presentation tick")
			s.PresentationTick(now.Sub(last).Seconds())
			last = now
		case env := <-s.transport.Incoming():
			health.Mark("incoming " + env.Kind.String())
			s.handle(env)
		}
	}
}
