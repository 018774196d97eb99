package session

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/repeale/fp-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

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

// ErrNotJoined is returned when the server never welcomed the client.
var ErrNotJoined = errors.New("not joined")

type replica struct {
	id     uint32
	owner  uint32
	driver replication.Driver
	mask   mask.Kind
	dead   bool
	shown  game.Transform
	log    zerolog.Logger
}

// Client is a participant's side of a session. It predicts or writes its
// own entity, depending on the authority mode, and follows everyone else.
type Client struct {
	config    *config.Config
	transport transport.Transport
	input     InputSource
	journal   *journal.Journal
	log       zerolog.Logger

	participant uint32
	entity      uint32
	joined      bool
	entities    map[uint32]*replica
	// Pickups anyone claimed since joining.
	claimed     int
	corrections int
	requested   mask.Kind
	views       Views
}

type ClientOption func(*Client)

func WithClientJournal(j *journal.Journal) ClientOption {
	return func(c *Client) {
		c.journal = j
	}
}

func NewClient(cfg *config.Config, t transport.Transport, input InputSource, options ...ClientOption) *Client {
	c := &Client{
		config:    cfg,
		transport: t,
		input:     input,
		log:       log.With().Str("session", "client").Logger(),
		entities:  make(map[uint32]*replica),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) Joined() bool {
	return c.joined
}

func (c *Client) Participant() uint32 {
	return c.participant
}

// Entity is the id of the entity this client owns.
func (c *Client) Entity() uint32 {
	return c.entity
}

func (c *Client) Views() *Views {
	return &c.views
}

// Corrections is the number of times this client's prediction was replaced.
func (c *Client) Corrections() int {
	return c.corrections
}

func (c *Client) Claimed() int {
	return c.claimed
}

func (c *Client) Driver(entity uint32) opt.Option[replication.Driver] {
	r, ok := c.entities[entity]
	if !ok {
		return opt.None[replication.Driver]()
	}
	return opt.Some(r.driver)
}

func (c *Client) sorted() []*replica {
	replicas := make([]*replica, 0, len(c.entities))
	for _, r := range c.entities {
		replicas = append(replicas, r)
	}
	sort.Slice(replicas, func(i, j int) bool {
		return replicas[i].id < replicas[j].id
	})
	return replicas
}

// writesOwn reports whether the client publishes its own entity's state.
func (r *replica) writesOwn() bool {
	return r.driver.Mode() == authority.Owner && r.driver.Role() == replication.RoleOwner
}

func (c *Client) Poll() {
	for {
		select {
		case env := <-c.transport.Incoming():
			c.handle(env)
		default:
			return
		}
	}
}

func (c *Client) lookup(env protocol.Envelope) opt.Option[*replica] {
	r, ok := c.entities[env.Entity]
	if !ok {
		c.log.Debug().
			Str("kind", env.Kind.String()).
			Uint32("entity", env.Entity).
			Msg("dropping message for unknown entity")
		return opt.None[*replica]()
	}
	return opt.Some(r)
}

func (c *Client) handle(env protocol.Envelope) {
	switch env.Kind {
	case protocol.KindHello:
		c.hello(env)
	case protocol.KindSpawn:
		c.spawn(env)
	case protocol.KindDespawn:
		delete(c.entities, env.Entity)
	case protocol.KindSnapshot:
		c.snapshot(env)
	case protocol.KindTransformed:
		c.transformed(env)
	case protocol.KindDeath:
		c.death(env)
	case protocol.KindKnockback:
		c.knockback(env)
	case protocol.KindRespawn:
		c.respawn(env)
	case protocol.KindPickup:
		c.claimed++
	default:
		c.log.Debug().Str("kind", env.Kind.String()).Msg("ignoring message")
	}
}

func (c *Client) hello(env protocol.Envelope) {
	body, err := protocol.Body[protocol.Hello](env)
	if err != nil {
		c.log.Warn().Err(err).Msg("invalid hello")
		return
	}

	c.participant = body.Participant
	c.entity = body.Entity
	c.joined = true
	c.log = c.log.With().Uint32("participant", c.participant).Logger()

	if body.TickRate != float64(c.config.Server.TickRate) {
		c.log.Warn().
			Float64("server", body.TickRate).
			Int("client", c.config.Server.TickRate).
			Msg("tick rates differ; predictions will be corrected often")
	}
	c.log.Info().Uint32("entity", c.entity).Msg("joined")
}

func (c *Client) spawn(env protocol.Envelope) {
	body, err := protocol.Body[protocol.Spawn](env)
	if err != nil {
		c.log.Warn().Err(err).Msg("invalid spawn")
		return
	}

	logger := c.log.With().Uint32("entity", env.Entity).Logger()
	if _, ok := c.entities[env.Entity]; ok {
		logger.Debug().Msg("already spawned")
		return
	}

	options := replication.Options{
		Mode:     body.Mode,
		Role:     replication.RoleObserver,
		Initial:  body.State,
		Settings: c.config.Replication.Build(),
		Logger:   logger,
	}
	own := c.joined && env.Entity == c.entity
	if own {
		options.Role = replication.RoleOwner
		options.Simulator = newSimulator(c.config, body.State)
	}

	driver, err := replication.New(options)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create replica")
		return
	}

	r := &replica{
		id:     env.Entity,
		owner:  body.Owner,
		driver: driver,
		dead:   body.State.IsDead,
		shown:  body.State.Transform(),
		log:    logger,
	}
	c.entities[r.id] = r
	c.applyMask(r, body.Mask)
}

func (c *Client) applyMask(r *replica, kind mask.Kind) {
	if kind == mask.None {
		return
	}
	r.mask = kind
	if simulator := r.driver.Simulator(); simulator != nil {
		gate.Apply(simulator, r.driver, kind, c.config.Gate.Build())
	}
}

func (c *Client) snapshot(env protocol.Envelope) {
	r := c.lookup(env)
	if opt.IsNone(r) {
		return
	}

	body, err := protocol.Body[protocol.Snapshot](env)
	if err != nil {
		c.log.Warn().Err(err).Msg("invalid snapshot")
		return
	}

	correction := r.Value.driver.ReceiveSnapshot(body.State)
	if correction.Snapped {
		c.corrections++
		err := c.journal.Correction(env.Entity, body.State.Tick, correction.Error, body.State.IsDead)
		if err != nil {
			c.log.Warn().Err(err).Msg("failed to journal correction")
		}
	}
}

func (c *Client) transformed(env protocol.Envelope) {
	r := c.lookup(env)
	if opt.IsNone(r) {
		return
	}

	body, err := protocol.Body[protocol.Transformed](env)
	if err != nil {
		c.log.Warn().Err(err).Msg("invalid transformation")
		return
	}
	c.applyMask(r.Value, body.Mask)
	r.Value.log.Info().Str("mask", body.Mask.String()).Msg("transformed")
}

func (c *Client) death(env protocol.Envelope) {
	r := c.lookup(env)
	if opt.IsNone(r) {
		return
	}
	r.Value.dead = true
	if r.Value.writesOwn() {
		r.Value.driver.Kill()
	}
}

func (c *Client) knockback(env protocol.Envelope) {
	r := c.lookup(env)
	if opt.IsNone(r) || !r.Value.writesOwn() {
		return
	}

	body, err := protocol.Body[protocol.Knockback](env)
	if err != nil {
		c.log.Warn().Err(err).Msg("invalid knockback")
		return
	}
	r.Value.driver.ApplyKnockback(body.Direction, body.Force, body.Stun)
}

func (c *Client) respawn(env protocol.Envelope) {
	r := c.lookup(env)
	if opt.IsNone(r) {
		return
	}

	body, err := protocol.Body[protocol.Respawn](env)
	if err != nil {
		c.log.Warn().Err(err).Msg("invalid respawn")
		return
	}

	r.Value.dead = false
	if r.Value.writesOwn() {
		r.Value.driver.Respawn(body.Position, body.Yaw)
	}
}

func (c *Client) sendOn(lane protocol.Lane, kind protocol.Kind, entity uint32, body interface{}) {
	err := send(c.transport, kind, entity, protocol.Authority, lane, body)
	if err != nil {
		c.log.Warn().Err(err).Str("kind", kind.String()).Msg("failed to send")
	}
}

// FixedTick polls the input source and advances every replica.
func (c *Client) FixedTick(dt float64) {
	intent := c.input.Poll()

	for _, r := range c.sorted() {
		var input game.InputCommand
		if r.id == c.entity {
			input = intent.Command
			c.requestTransform(r, intent.Transform)
		}

		for _, emission := range r.driver.FixedTick(dt, input) {
			switch emission.Kind {
			case replication.EmitInput:
				c.sendOn(emission.Lane, protocol.KindInput, r.id, protocol.Input{Command: emission.Input})
			case replication.EmitSnapshot:
				c.sendOn(emission.Lane, protocol.KindSnapshot, r.id, protocol.Snapshot{State: emission.State})
			}
		}
	}

	c.publishViews()
}

// requestTransform asks once per mask; the server has the final word.
func (c *Client) requestTransform(r *replica, kind mask.Kind) {
	if kind == mask.None || r.mask != mask.None || kind == c.requested {
		return
	}
	c.requested = kind
	c.sendOn(protocol.LaneReliable, protocol.KindActivate, r.id, protocol.Activate{Mask: kind})
}

func (c *Client) PresentationTick(dt float64) {
	for _, r := range c.sorted() {
		r.shown = r.driver.PresentationTick(dt)
	}
	c.publishViews()
}

func (c *Client) publishViews() {
	views := make([]View, 0, len(c.entities))
	for _, r := range c.entities {
		view := newView(r.id, r.owner, r.driver.State(), r.shown)
		view.Role = r.driver.Role().String()
		view.Mode = r.driver.Mode().String()
		view.Mask = r.mask.String()
		view.Dead = view.Dead || r.dead
		views = append(views, view)
	}
	c.views.publish(views)
}

// Run drives the client until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	fixed := ticker.New(time.Second / time.Duration(c.config.Server.TickRate))
	defer fixed.Stop()

	presentation := time.NewTicker(time.Second / time.Duration(c.config.Server.PresentationRate))
	defer presentation.Stop()

	health := chanlock.New(c.log)
	healthy := health.Poll(ctx)

	dt := c.config.Server.FixedStep()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			if !c.joined {
				return ErrNotJoined
			}
			return ctx.Err()
		case <-healthy:
		case <-fixed.C:
			health.Mark("fixed tick")
			c.FixedTick(dt)
		case now := <-presentation.C:
			health.Mark("presentation tick")
			c.PresentationTick(now.Sub(last).Seconds())
			last = now
		case env := <-c.transport.Incoming():
			health.Mark("incoming " + env.Kind.String())
			c.handle(env)
		}
	}
}
