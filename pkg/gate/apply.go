package gate

import (
	"github.com/osmauxi/gjRepository/pkg/game"
	"github.com/osmauxi/gjRepository/pkg/game/mask"
	"github.com/osmauxi/gjRepository/pkg/physics"
	"github.com/osmauxi/gjRepository/pkg/sim"
)

// Body is the part of a simulated entity a transformation changes.
// *sim.Simulator implements it.
type Body interface {
	Config() *game.MovementConfig
	Install(kind sim.SkillKind)
	Port() physics.Port
}

// Forcer publishes the entity's state on the next tick regardless of change.
type Forcer interface {
	ForceSnapshot()
}

func SkillFor(kind mask.Kind) sim.SkillKind {
	switch kind {
	case mask.Panda:
		return sim.SkillDash
	case mask.Dear:
		return sim.SkillTeleport
	case mask.Monkey:
		return sim.SkillNoOp
	}
	return sim.SkillNone
}

// Apply puts a transformation into effect on a simulated body: speed
// multiplier, skill, a forced snapshot and an unstuck request, since the
// new form may start out overlapping geometry.
func Apply(body Body, forcer Forcer, kind mask.Kind, settings Settings) {
	if body == nil || kind == mask.None {
		return
	}

	if m, ok := settings.Multipliers[kind]; ok {
		body.Config().SetSpeedMultiplier(kind, m)
	}
	body.Install(SkillFor(kind))

	if forcer != nil {
		forcer.ForceSnapshot()
	}

	if u, ok := body.Port().(physics.Unsticker); ok {
		u.RequestUnstuck()
	}
}
