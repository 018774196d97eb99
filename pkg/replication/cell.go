package replication

import (
	"strconv"

	"github.com/repeale/fp-go/option"

	"github.com/osmauxi/gjRepository/pkg/game"
	"github.com/osmauxi/gjRepository/pkg/protocol"
)

// Settings are the thresholds of change detection, heartbeats and
// reconciliation. All of them are tuning values.
type Settings struct {
	// Squared distance a position must move to count as a change.
	PositionEpsilon float64
	// Degrees a rotation must turn to count as a change.
	AngleEpsilon float64
	// Seconds between publications of an unchanged state.
	Heartbeat float64

	// Squared change of the move vector that makes an input worth sending.
	InputMoveEpsilon float64
	// Degrees of aim change that make an input worth sending.
	InputYawEpsilon float64
	// Seconds between sends of an unchanged input.
	InputHeartbeat float64

	// Positional error above which the owner replaces its prediction.
	CorrectionThreshold float64
	// Fraction per second observers close toward the latest snapshot.
	BlendRate float64
}

func DefaultSettings() Settings {
	return Settings{
		PositionEpsilon:     0.001,
		AngleEpsilon:        0.1,
		Heartbeat:           1.0,
		InputMoveEpsilon:    0.001,
		InputYawEpsilon:     0.5,
		InputHeartbeat:      1.0,
		CorrectionThreshold: 0.5,
		BlendRate:           10,
	}
}

// Reason is why a publication happened.
type Reason uint8

const (
	ReasonInitial Reason = iota
	ReasonChange
	ReasonHeartbeat
	ReasonForced
)

func (r Reason) String() string {
	switch r {
	case ReasonInitial:
		return "initial"
	case ReasonChange:
		return "change"
	case ReasonHeartbeat:
		return "heartbeat"
	case ReasonForced:
		return "forced"
	}
	return strconv.Itoa(int(r))
}

// Changed reports whether cur differs meaningfully from prev.
func Changed(prev, cur game.EntityState, settings Settings) bool {
	if game.SquaredLen(cur.Position.Sub(prev.Position)) > settings.PositionEpsilon {
		return true
	}
	if game.AngleBetween(prev.Rotation, cur.Rotation) > settings.AngleEpsilon {
		return true
	}
	return prev.IsGrounded != cur.IsGrounded ||
		prev.IsAttacking != cur.IsAttacking ||
		prev.IsJumping != cur.IsJumping ||
		prev.IsUsingSkill != cur.IsUsingSkill ||
		prev.IsDead != cur.IsDead ||
		prev.Tag != cur.Tag
}

// Activated reports a user-visible transition that must reach observers
// without waiting for the change predicate.
func Activated(prev, cur game.EntityState) bool {
	return (!prev.IsAttacking && cur.IsAttacking) ||
		(!prev.IsUsingSkill && cur.IsUsingSkill) ||
		(!prev.IsDead && cur.IsDead)
}

// Publication is one state the cell decided to send.
type Publication struct {
	State  game.EntityState
	Lane   protocol.Lane
	Reason Reason
}

// Cell is the replicated value of one entity. Only the writing role holds
// one; readers hold a Mirror.
type Cell struct {
	settings Settings

	current  game.EntityState
	written  bool
	lastSent opt.Option[game.EntityState]
	since    float64
	force    bool
}

func NewCell(settings Settings) *Cell {
	return &Cell{
		settings: settings,
		lastSent: opt.None[game.EntityState](),
	}
}

// Write replaces the value. Activation edges force the next publication.
func (c *Cell) Write(state game.EntityState) {
	if c.written && Activated(c.current, state) {
		c.force = true
	}
	c.current = state
	c.written = true
}

func (c *Cell) Value() game.EntityState {
	return c.current
}

// Force makes the next Flush publish on the reliable lane.
func (c *Cell) Force() {
	c.force = true
}

// Changed diffs the current value against the last published one.
func (c *Cell) Changed() bool {
	if opt.IsNone(c.lastSent) {
		return true
	}
	return Changed(c.lastSent.Value, c.current, c.settings)
}

// Flush advances the heartbeat clock and returns what, if anything, to send.
func (c *Cell) Flush(dt float64) (Publication, bool) {
	c.since += dt

	if !c.written {
		return Publication{}, false
	}

	var pub Publication
	switch {
	case opt.IsNone(c.lastSent):
		pub = Publication{Lane: protocol.LaneReliable, Reason: ReasonInitial}
	case c.force:
		pub = Publication{Lane: protocol.LaneReliable, Reason: ReasonForced}
	case c.Changed():
		pub = Publication{Lane: protocol.LaneUnreliable, Reason: ReasonChange}
	case c.since >= c.settings.Heartbeat:
		pub = Publication{Lane: protocol.LaneUnreliable, Reason: ReasonHeartbeat}
	default:
		return Publication{}, false
	}

	pub.State = c.current
	c.lastSent = opt.Some(c.current)
	c.since = 0
	c.force = false
	return pub, true
}

// Mirror is a read-only copy of a replicated value.
type Mirror struct {
	latest opt.Option[game.EntityState]
}

func NewMirror() *Mirror {
	return &Mirror{latest: opt.None[game.EntityState]()}
}

// Apply accepts a received state unless it is older than the one held.
func (m *Mirror) Apply(state game.EntityState) bool {
	if opt.IsSome(m.latest) && state.Tick < m.latest.Value.Tick {
		return false
	}
	m.latest = opt.Some(state)
	return true
}

func (m *Mirror) Latest() opt.Option[game.EntityState] {
	return m.latest
}
