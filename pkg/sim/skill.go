package sim

import (
	"math"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/osmauxi/gjRepository/pkg/game"
	"github.com/osmauxi/gjRepository/pkg/physics"
)

type SkillKind uint8

const (
	SkillNone SkillKind = iota
	SkillDash
	SkillTeleport
	SkillNoOp
)

func (k SkillKind) String() string {
	switch k {
	case SkillNone:
		return "none"
	case SkillDash:
		return "dash"
	case SkillTeleport:
		return "teleport"
	case SkillNoOp:
		return "noop"
	}
	return strconv.Itoa(int(k))
}

// Skill is one running activation. It is created when a request is accepted
// and discarded when it reports finished.
type Skill struct {
	kind   SkillKind
	config *game.MovementConfig
	port   physics.Port

	elapsed   float64
	direction mgl64.Vec3
}

func NewSkill(kind SkillKind, config *game.MovementConfig, port physics.Port) *Skill {
	return &Skill{
		kind:   kind,
		config: config,
		port:   port,
	}
}

func (s *Skill) Kind() SkillKind {
	return s.kind
}

// OnEnter applies the immediate effect of the skill.
func (s *Skill) OnEnter(state game.EntityState, input game.InputCommand) game.EntityState {
	s.elapsed = 0

	switch s.kind {
	case SkillDash:
		s.direction = game.Facing(state.Rotation)
		state.SkillDurationTimer = s.config.DashDuration
	case SkillTeleport:
		state.Position = s.teleportTarget(state.Position, input.AimYaw)
		if s.port != nil {
			s.port.SyncTransform(state.Position, state.Rotation)
		}
	}

	return state
}

func (s *Skill) teleportTarget(from mgl64.Vec3, yaw float64) mgl64.Vec3 {
	dir := game.Facing(game.YawRotation(yaw))
	dist := s.config.TeleportMaxDist

	if s.port != nil {
		origin := from.Add(game.Up.Mul(s.config.TeleportProbeHeight))
		if hit, ok := s.port.CheckObstacle(origin, dir, dist); ok {
			dist = math.Max(hit-s.config.TeleportBackoff, 0)
		}
	}

	return from.Add(dir.Mul(dist))
}

// Execute advances the skill by one tick and reports whether it finished.
func (s *Skill) Execute(state game.EntityState, dt float64) (game.EntityState, bool) {
	switch s.kind {
	case SkillDash:
		s.elapsed += dt
		state.Velocity = s.direction.Mul(s.config.DashSpeed)
		if s.elapsed >= s.config.DashDuration {
			state.Velocity = mgl64.Vec3{}
			return state, true
		}
		return state, false
	default:
		return state, true
	}
}
