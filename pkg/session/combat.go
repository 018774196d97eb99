package session

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/osmauxi/gjRepository/pkg/game"
	"github.com/osmauxi/gjRepository/pkg/game/mask"
	"github.com/osmauxi/gjRepository/pkg/protocol"
)

// strike resolves an attack that started this tick against everyone in
// front of the attacker and within range.
func (s *Server) strike(attacker *Entity, state game.EntityState) {
	combat := s.config.Server.Combat
	facing := game.Facing(state.Rotation)

	for _, target := range s.sorted() {
		if target == attacker || !target.gate.Alive() {
			continue
		}

		offset := game.Horizontal(target.driver.State().Position.Sub(state.Position))
		distance := offset.Len()
		if distance > combat.Range {
			continue
		}

		direction := facing
		if distance > 1e-9 {
			if offset.Dot(facing) < 0 {
				continue
			}
			direction = offset.Normalize()
		}

		s.hit(attacker, target, direction)
	}
}

func (s *Server) hit(attacker, target *Entity, direction mgl64.Vec3) {
	combat := s.config.Server.Combat

	attacker.gate.AddEnergy(mask.Panda, combat.HitEnergy)
	died := target.gate.Damage(combat.Damage)

	target.log.Debug().
		Uint32("attacker", attacker.ID).
		Int("health", target.gate.Health()).
		Msg("hit")

	s.knockback(target, direction)
	if died {
		s.kill(target, attacker)
	}
}

func (s *Server) knockback(e *Entity, direction mgl64.Vec3) {
	combat := s.config.Server.Combat
	if e.writes() {
		e.driver.ApplyKnockback(direction, combat.KnockbackForce, combat.KnockbackStun)
		return
	}

	s.sendTo(e.Owner, protocol.KindKnockback, e.ID, protocol.Knockback{
		Direction: direction,
		Force:     combat.KnockbackForce,
		Stun:      combat.KnockbackStun,
	})
}

// kill makes an entity dead. Where the server does not write the entity,
// the owner learns it from the Death message and publishes the result.
func (s *Server) kill(e *Entity, killer *Entity) {
	e.respawnIn = s.config.Server.RespawnDelay
	if e.writes() {
		e.driver.Kill()
	}

	state := e.driver.State()
	state.IsDead = true
	s.broadcast(protocol.KindDeath, e.ID, protocol.Death{State: state})

	var by uint32
	if killer != nil {
		by = killer.ID
	}
	e.log.Info().Uint32("killer", by).Msg("died")

	pos := state.Position
	if err := s.journal.Death(e.ID, state.Tick, by, pos.X(), pos.Y(), pos.Z()); err != nil {
		s.log.Warn().Err(err).Msg("failed to journal death")
	}
}

func (s *Server) respawn(e *Entity) {
	e.gate.Restore()
	e.respawnIn = 0

	point := s.nextSpawnPoint()
	if e.writes() {
		e.driver.Respawn(point.Position, point.Yaw)
	}

	s.broadcast(protocol.KindRespawn, e.ID, protocol.Respawn{
		Position: point.Position,
		Yaw:      point.Yaw,
	})
	e.log.Info().Msg("respawned")
}
