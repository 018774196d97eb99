package replication

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"

	"github.com/osmauxi/gjRepository/pkg/game"
	"github.com/osmauxi/gjRepository/pkg/game/authority"
	"github.com/osmauxi/gjRepository/pkg/protocol"
	"github.com/osmauxi/gjRepository/pkg/sim"
)

// predictor runs the owner's copy of the simulation ahead of the authority.
type predictor struct {
	sim        *sim.Simulator
	state      game.EntityState
	sender     *InputSender
	reconciler *Reconciler
	mirror     *Mirror
}

// ServerAuthoritative replicates an entity the server simulates. Owners
// send input and predict; the server publishes the canonical state.
type ServerAuthoritative struct {
	role Role
	log  zerolog.Logger

	// authority and host
	writer *writer
	// authority only
	held *HeldInput
	// owner only
	predictor *predictor
	// observer only
	follower *follower
}

var _ Driver = (*ServerAuthoritative)(nil)

func newServerAuthoritative(o Options) *ServerAuthoritative {
	d := &ServerAuthoritative{
		role: o.Role,
		log:  o.Logger.With().Str("mode", authority.Server.String()).Str("role", o.Role.String()).Logger(),
	}

	switch o.Role {
	case RoleAuthority:
		d.writer = newWriter(o.Simulator, o.Initial, o.Settings)
		d.held = NewHeldInput()
	case RoleHost:
		d.writer = newWriter(o.Simulator, o.Initial, o.Settings)
	case RoleOwner:
		d.predictor = &predictor{
			sim:        o.Simulator,
			state:      o.Initial,
			sender:     NewInputSender(o.Settings),
			reconciler: NewReconciler(o.Settings, d.log),
			mirror:     NewMirror(),
		}
	default:
		d.follower = newFollower(o.Initial, o.Settings)
	}

	return d
}

func (d *ServerAuthoritative) Mode() authority.Mode {
	return authority.Server
}

func (d *ServerAuthoritative) Role() Role {
	return d.role
}

func (d *ServerAuthoritative) Simulator() *sim.Simulator {
	switch {
	case d.writer != nil:
		return d.writer.sim
	case d.predictor != nil:
		return d.predictor.sim
	}
	return nil
}

func (d *ServerAuthoritative) FixedTick(dt float64, input game.InputCommand) []Emission {
	switch d.role {
	case RoleAuthority:
		return d.writer.step(d.held.Take(), dt)
	case RoleHost:
		return d.writer.step(input, dt)
	case RoleOwner:
		p := d.predictor
		p.state = p.sim.Step(p.state, input, dt)
		p.sim.Port().Advance(dt)

		cmd, send := p.sender.Offer(input, dt)
		if !send {
			return nil
		}
		return []Emission{{
			Kind:  EmitInput,
			Lane:  protocol.LaneUnreliable,
			Input: cmd,
		}}
	}
	return nil
}

func (d *ServerAuthoritative) PresentationTick(dt float64) game.Transform {
	switch {
	case d.writer != nil:
		return d.writer.state.Transform()
	case d.predictor != nil:
		return d.predictor.state.Transform()
	}
	return d.follower.interp.Advance(dt)
}

// ReceiveInput holds the owner's latest command for the next tick.
func (d *ServerAuthoritative) ReceiveInput(cmd game.InputCommand) bool {
	if d.held == nil {
		d.log.Debug().Msg("ignoring input on a role that does not simulate remote input")
		return false
	}
	return d.held.Receive(cmd)
}

func (d *ServerAuthoritative) ReceiveSnapshot(state game.EntityState) Correction {
	switch {
	case d.predictor != nil:
		p := d.predictor
		if !p.mirror.Apply(state) {
			return Correction{Previous: p.state}
		}

		next, correction := p.reconciler.Reconcile(p.state, state)
		if correction.Snapped {
			if !next.IsUsingSkill {
				p.sim.Reset()
			}
			p.sim.Port().SyncTransform(next.Position, next.Rotation)
		}
		p.state = next
		return correction
	case d.follower != nil:
		d.follower.receive(state)
	default:
		d.log.Debug().Msg("ignoring snapshot on the writing role")
	}
	return Correction{}
}

func (d *ServerAuthoritative) ForceSnapshot() {
	if d.writer != nil {
		d.writer.cell.Force()
	}
}

func (d *ServerAuthoritative) Kill() bool {
	if d.writer == nil {
		return false
	}
	return d.writer.kill()
}

func (d *ServerAuthoritative) Respawn(position mgl64.Vec3, yaw float64) bool {
	if d.writer == nil {
		return false
	}
	return d.writer.respawn(position, yaw)
}

func (d *ServerAuthoritative) ApplyKnockback(dir mgl64.Vec3, force, stun float64) bool {
	if d.writer == nil {
		return false
	}
	return d.writer.knockback(dir, force, stun)
}

func (d *ServerAuthoritative) State() game.EntityState {
	switch {
	case d.writer != nil:
		return d.writer.state
	case d.predictor != nil:
		return d.predictor.state
	}
	return d.follower.state()
}

// Corrections is the number of times the owner snapped to the authority.
func (d *ServerAuthoritative) Corrections() int {
	if d.predictor == nil {
		return 0
	}
	return d.predictor.reconciler.Corrections()
}
