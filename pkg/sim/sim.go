package sim

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog/log"

	"github.com/osmauxi/gjRepository/pkg/game"
	"github.com/osmauxi/gjRepository/pkg/game/statetag"
	"github.com/osmauxi/gjRepository/pkg/physics"
)

// Simulator advances one entity. It owns the entity's skill instance and
// talks to physics only through the port.
type Simulator struct {
	config *game.MovementConfig
	port   physics.Port

	installed SkillKind
	active    *Skill

	// placed is where the last step left the body.
	placed mgl64.Vec3
}

func New(config *game.MovementConfig, port physics.Port) *Simulator {
	return &Simulator{
		config: config,
		port:   port,
		placed: port.Position(),
	}
}

func (s *Simulator) Config() *game.MovementConfig {
	return s.config
}

func (s *Simulator) Port() physics.Port {
	return s.port
}

// Install sets the skill started by the next accepted request.
func (s *Simulator) Install(kind SkillKind) {
	s.installed = kind
}

func (s *Simulator) Installed() SkillKind {
	return s.installed
}

// Active returns the running skill, or nil.
func (s *Simulator) Active() *Skill {
	return s.active
}

// Reset drops the running skill, used on respawn.
func (s *Simulator) Reset() {
	s.active = nil
}

// Step is the per-tick transition. Dead states are absorbing.
func (s *Simulator) Step(state game.EntityState, input game.InputCommand, dt float64) game.EntityState {
	if state.IsDead {
		state.Velocity = mgl64.Vec3{}
		state.Tag = statetag.Dead
		return state
	}

	cfg := s.config
	next := state
	next.Tick++

	// The port follows the state. A replaced state (snap, respawn) is a
	// discontinuity; a body the port moved on its own since the last step
	// (unstuck lift) is adopted instead.
	switch body := s.port.Position(); {
	case body == next.Position:
	case next.Position == s.placed:
		next.Position = body
		if next.Velocity.Y() < 0 {
			next.Velocity[1] = 0
		}
	default:
		s.port.SyncTransform(next.Position, next.Rotation)
	}

	next.JumpTimer = game.Countdown(next.JumpTimer, dt)
	next.JumpCooldownTimer = game.Countdown(next.JumpCooldownTimer, dt)
	next.AttackDurationTimer = game.Countdown(next.AttackDurationTimer, dt)
	next.AttackCooldownTimer = game.Countdown(next.AttackCooldownTimer, dt)
	next.SkillDurationTimer = game.Countdown(next.SkillDurationTimer, dt)
	next.SkillCooldownTimer = game.Countdown(next.SkillCooldownTimer, dt)
	next.StunTimer = game.Countdown(next.StunTimer, dt)

	stunned := next.StunTimer > 0
	if stunned {
		input = input.WithoutActions()
	}

	if !next.IsAttacking {
		next = s.locomotion(next, input, dt, stunned)
	}

	locked := false
	switch {
	case next.IsUsingSkill && s.active != nil:
		var finished bool
		next, finished = s.active.Execute(next, dt)
		if finished {
			next.IsUsingSkill = false
			next.SkillDurationTimer = 0
			next.SkillCooldownTimer = cfg.SkillCooldown
			s.active = nil
		}
		locked = true
	case next.IsUsingSkill:
		// Adopted from elsewhere with no local instance to run it.
		next.IsUsingSkill = false
	case input.Skill:
		if s.canStartSkill(next) {
			skill := NewSkill(s.installed, cfg, s.port)
			next = skill.OnEnter(next, input)
			next.IsUsingSkill = true
			s.active = skill
			locked = true
			log.Debug().Str("skill", s.installed.String()).Msg("skill started")
		}
	}

	if !locked {
		next = s.attack(next, input)
		locked = next.IsAttacking
	}

	if !locked {
		next = s.jump(next, input, dt)
	}

	s.port.SetRotation(next.Rotation)
	s.port.Move(next.Velocity.Mul(dt))
	next.IsGrounded = s.port.IsGrounded()
	next.Position = s.port.Position()
	s.placed = next.Position

	if next.IsGrounded && !next.IsJumping && next.Velocity.Y() <= 0 {
		next.Velocity[1] = cfg.StickVelocity
	}

	next.Tag = deriveTag(next, input)
	return next
}

func (s *Simulator) canStartSkill(state game.EntityState) bool {
	if s.installed == SkillNone {
		log.Debug().Msg("skill request dropped: nothing installed")
		return false
	}
	return state.SkillCooldownTimer <= 0 && !state.IsAttacking
}

func (s *Simulator) locomotion(state game.EntityState, input game.InputCommand, dt float64, stunned bool) game.EntityState {
	cfg := s.config
	current := game.Horizontal(state.Velocity)

	if stunned {
		next := game.MoveTowards(current, mgl64.Vec3{}, cfg.StunDeceleration*dt)
		state.Velocity = game.WithHorizontal(state.Velocity, next)
		return state
	}

	state.Rotation = game.Slerp(state.Rotation, game.YawRotation(input.AimYaw), cfg.RotateSpeed*dt)

	var target mgl64.Vec3
	if input.IsMoving() {
		dir := game.Horizontal(input.CameraForward.Mul(input.Move.Y()).Add(input.CameraRight.Mul(input.Move.X())))
		if dir.Len() > 1e-9 {
			dir = dir.Normalize()
			speed := cfg.MaxMoveSpeed * cfg.SpeedMultiplier() * s.directionalRatio(dir, game.Facing(state.Rotation))
			target = dir.Mul(speed)
		}
	}

	rate := cfg.Acceleration
	if decelerating(current, target) {
		rate = cfg.Deceleration
	}

	next := game.MoveTowards(current, target, rate*dt)
	state.Velocity = game.WithHorizontal(state.Velocity, next)
	return state
}

// directionalRatio is 1 along the facing, StrafeSpeedRatio perpendicular and
// BackwardSpeedRatio opposite, linear in the dot product between.
func (s *Simulator) directionalRatio(dir, facing mgl64.Vec3) float64 {
	d := dir.Dot(facing)
	if d >= 0 {
		return game.Lerp(s.config.StrafeSpeedRatio, 1, d)
	}
	return game.Lerp(s.config.StrafeSpeedRatio, s.config.BackwardSpeedRatio, -d)
}

func decelerating(current, target mgl64.Vec3) bool {
	if target.Len() < 1e-9 {
		return true
	}
	if current.Dot(target) < 0 {
		return true
	}
	return target.Len() < current.Len()
}

func (s *Simulator) attack(state game.EntityState, input game.InputCommand) game.EntityState {
	cfg := s.config

	if state.IsAttacking {
		state.Velocity = game.WithHorizontal(state.Velocity, mgl64.Vec3{})
		if state.AttackDurationTimer <= 0 {
			state.IsAttacking = false
		}
		return state
	}

	if input.Attack && state.IsGrounded && state.AttackCooldownTimer <= 0 {
		state.IsAttacking = true
		state.Velocity = game.WithHorizontal(state.Velocity, mgl64.Vec3{})
		state.Rotation = game.YawRotation(input.AimYaw)
		state.AttackDurationTimer = cfg.AttackDuration
		state.AttackCooldownTimer = cfg.AttackCooldown
	}

	return state
}

func (s *Simulator) jump(state game.EntityState, input game.InputCommand, dt float64) game.EntityState {
	cfg := s.config

	if input.Jump && state.IsGrounded && !state.IsJumping && state.JumpCooldownTimer <= 0 {
		state.IsJumping = true
		state.JumpTimer = cfg.JumpMaxTime
	}

	switch {
	case state.IsJumping && state.JumpTimer > 0:
		elapsed := cfg.JumpMaxTime - state.JumpTimer
		state.Velocity[1] = cfg.JumpCurve.Evaluate(elapsed)
	case state.IsJumping:
		state.IsJumping = false
		state.JumpCooldownTimer = cfg.JumpCooldown
		state.Velocity[1] = applyGravity(state.Velocity.Y(), cfg, dt)
	case !state.IsGrounded:
		state.Velocity[1] = applyGravity(state.Velocity.Y(), cfg, dt)
	}

	return state
}

func applyGravity(vy float64, cfg *game.MovementConfig, dt float64) float64 {
	vy += cfg.Gravity * dt
	if vy < cfg.MaxFallSpeed {
		return cfg.MaxFallSpeed
	}
	return vy
}

func deriveTag(state game.EntityState, input game.InputCommand) statetag.ID {
	switch {
	case state.IsDead:
		return statetag.Dead
	case state.IsAttacking:
		return statetag.Attacking
	case state.IsUsingSkill:
		return statetag.Skill
	case !state.IsGrounded:
		return statetag.Falling
	case input.IsMoving():
		return statetag.Moving
	}
	return statetag.Idle
}

// Knockback launches a living entity along dir and stuns it.
func Knockback(state game.EntityState, dir mgl64.Vec3, force, stun float64) game.EntityState {
	if state.IsDead {
		return state
	}
	h := game.Horizontal(dir)
	if h.Len() > 1e-9 {
		h = h.Normalize()
	}
	state.Velocity = game.WithHorizontal(state.Velocity, h.Mul(force))
	state.StunTimer = stun
	return state
}
