package replication

import (
	"fmt"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/repeale/fp-go/option"
	"github.com/rs/zerolog"

	"github.com/osmauxi/gjRepository/pkg/game"
	"github.com/osmauxi/gjRepository/pkg/game/authority"
	"github.com/osmauxi/gjRepository/pkg/protocol"
	"github.com/osmauxi/gjRepository/pkg/sim"
)

// Role is what this process does for one entity.
type Role uint8

const (
	// Simulates from the owner's remote input.
	RoleAuthority Role = iota
	// Simulates from input collected in the same process.
	RoleHost
	// Collects input. Predicts under server authority, writes under owner
	// authority.
	RoleOwner
	// Follows snapshots.
	RoleObserver
)

func (r Role) String() string {
	switch r {
	case RoleAuthority:
		return "authority"
	case RoleHost:
		return "host"
	case RoleOwner:
		return "owner"
	case RoleObserver:
		return "observer"
	}
	return strconv.Itoa(int(r))
}

type EmissionKind uint8

const (
	EmitInput EmissionKind = iota
	EmitSnapshot
)

// Emission is a message the driver wants sent.
type Emission struct {
	Kind   EmissionKind
	Lane   protocol.Lane
	Reason Reason
	State  game.EntityState
	Input  game.InputCommand
}

// Driver runs the replication policy of one entity for one role. Every
// method is called from the session loop.
type Driver interface {
	Mode() authority.Mode
	Role() Role
	// FixedTick advances one simulation tick. input is the command collected
	// locally this tick and is ignored by roles that collect none.
	FixedTick(dt float64, input game.InputCommand) []Emission
	// PresentationTick returns the transform to show.
	PresentationTick(dt float64) game.Transform
	ReceiveInput(cmd game.InputCommand) bool
	ReceiveSnapshot(state game.EntityState) Correction
	ForceSnapshot()
	Kill() bool
	Respawn(position mgl64.Vec3, yaw float64) bool
	ApplyKnockback(dir mgl64.Vec3, force, stun float64) bool
	State() game.EntityState
	// Simulator is nil for roles that do not simulate.
	Simulator() *sim.Simulator
}

type Options struct {
	Mode      authority.Mode
	Role      Role
	Simulator *sim.Simulator
	Initial   game.EntityState
	Settings  Settings
	Logger    zerolog.Logger
}

// New builds the driver for a mode and role. The choice is fixed for the
// life of the entity.
func New(o Options) (Driver, error) {
	needsSim := o.Role != RoleObserver
	if needsSim && o.Simulator == nil {
		return nil, fmt.Errorf("role %s needs a simulator", o.Role)
	}

	switch o.Mode {
	case authority.Server:
		return newServerAuthoritative(o), nil
	case authority.Owner:
		if o.Role != RoleOwner && o.Role != RoleObserver {
			return nil, fmt.Errorf("role %s does not exist under owner authority", o.Role)
		}
		return newOwnerAuthoritative(o), nil
	}

	return nil, fmt.Errorf("unknown mode %s", o.Mode)
}

func snapshotEmission(pub Publication) Emission {
	return Emission{
		Kind:   EmitSnapshot,
		Lane:   pub.Lane,
		Reason: pub.Reason,
		State:  pub.State,
	}
}

// writer owns the canonical state and the cell it is published through.
type writer struct {
	sim   *sim.Simulator
	state game.EntityState
	cell  *Cell
}

func newWriter(simulator *sim.Simulator, initial game.EntityState, settings Settings) *writer {
	w := &writer{
		sim:   simulator,
		state: initial,
		cell:  NewCell(settings),
	}
	w.cell.Write(initial)
	return w
}

func (w *writer) step(input game.InputCommand, dt float64) []Emission {
	w.state = w.sim.Step(w.state, input, dt)
	w.sim.Port().Advance(dt)
	w.cell.Write(w.state)

	pub, ok := w.cell.Flush(dt)
	if !ok {
		return nil
	}
	return []Emission{snapshotEmission(pub)}
}

func (w *writer) kill() bool {
	if w.state.IsDead {
		return false
	}
	w.state.IsDead = true
	w.state = w.sim.Step(w.state, game.InputCommand{}, 0)
	w.sim.Reset()
	w.cell.Write(w.state)
	return true
}

func (w *writer) respawn(position mgl64.Vec3, yaw float64) bool {
	tick := w.state.Tick
	w.state = game.NewEntityState(position, yaw)
	w.state.Tick = tick + 1

	w.sim.Reset()
	port := w.sim.Port()
	port.SyncTransform(position, w.state.Rotation)
	w.state.IsGrounded, _ = port.CheckGround(position, w.sim.Config().GroundCheckOffset, w.sim.Config().GroundCheckRadius)

	w.cell.Write(w.state)
	w.cell.Force()
	return true
}

func (w *writer) knockback(dir mgl64.Vec3, force, stun float64) bool {
	if w.state.IsDead {
		return false
	}
	w.state = sim.Knockback(w.state, dir, force, stun)
	w.cell.Write(w.state)
	return true
}

// follower interpolates toward snapshots it cannot write.
type follower struct {
	mirror *Mirror
	interp *Interpolator
}

func newFollower(initial game.EntityState, settings Settings) *follower {
	f := &follower{
		mirror: NewMirror(),
		interp: NewInterpolator(settings.BlendRate),
	}
	f.receive(initial)
	return f
}

func (f *follower) receive(state game.EntityState) {
	if f.mirror.Apply(state) {
		f.interp.SetTarget(state.Transform())
	}
}

func (f *follower) state() game.EntityState {
	latest := f.mirror.Latest()
	if opt.IsNone(latest) {
		return game.EntityState{}
	}
	return latest.Value
}
