package replication

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"

	"github.com/osmauxi/gjRepository/pkg/game"
	"github.com/osmauxi/gjRepository/pkg/game/authority"
	"github.com/osmauxi/gjRepository/pkg/sim"
)

// OwnerAuthoritative replicates an entity its owner simulates. The server
// only relays the owner's snapshots.
type OwnerAuthoritative struct {
	role Role
	log  zerolog.Logger

	writer   *writer
	follower *follower
}

var _ Driver = (*OwnerAuthoritative)(nil)

func newOwnerAuthoritative(o Options) *OwnerAuthoritative {
	d := &OwnerAuthoritative{
		role: o.Role,
		log:  o.Logger.With().Str("mode", authority.Owner.String()).Str("role", o.Role.String()).Logger(),
	}

	if o.Role == RoleOwner {
		d.writer = newWriter(o.Simulator, o.Initial, o.Settings)
	} else {
		d.follower = newFollower(o.Initial, o.Settings)
	}

	return d
}

func (d *OwnerAuthoritative) Mode() authority.Mode {
	return authority.Owner
}

func (d *OwnerAuthoritative) Role() Role {
	return d.role
}

func (d *OwnerAuthoritative) Simulator() *sim.Simulator {
	if d.writer == nil {
		return nil
	}
	return d.writer.sim
}

func (d *OwnerAuthoritative) FixedTick(dt float64, input game.InputCommand) []Emission {
	if d.writer == nil {
		return nil
	}
	return d.writer.step(input, dt)
}

func (d *OwnerAuthoritative) PresentationTick(dt float64) game.Transform {
	if d.writer != nil {
		return d.writer.state.Transform()
	}
	return d.follower.interp.Advance(dt)
}

func (d *OwnerAuthoritative) ReceiveInput(cmd game.InputCommand) bool {
	d.log.Debug().Msg("ignoring input under owner authority")
	return false
}

func (d *OwnerAuthoritative) ReceiveSnapshot(state game.EntityState) Correction {
	if d.follower == nil {
		d.log.Debug().Msg("ignoring snapshot on the writing role")
		return Correction{}
	}
	d.follower.receive(state)
	return Correction{}
}

func (d *OwnerAuthoritative) ForceSnapshot() {
	if d.writer != nil {
		d.writer.cell.Force()
	}
}

func (d *OwnerAuthoritative) Kill() bool {
	if d.writer == nil {
		return false
	}
	return d.writer.kill()
}

func (d *OwnerAuthoritative) Respawn(position mgl64.Vec3, yaw float64) bool {
	if d.writer == nil {
		return false
	}
	return d.writer.respawn(position, yaw)
}

func (d *OwnerAuthoritative) ApplyKnockback(dir mgl64.Vec3, force, stun float64) bool {
	if d.writer == nil {
		return false
	}
	return d.writer.knockback(dir, force, stun)
}

func (d *OwnerAuthoritative) State() game.EntityState {
	if d.writer != nil {
		return d.writer.state
	}
	return d.follower.state()
}
