package session

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/osmauxi/gjRepository/pkg/game"
	"github.com/osmauxi/gjRepository/pkg/game/mask"
)

// Wander is a deterministic bot: it walks toward a heading that turns every
// couple of seconds and now and then jumps, attacks, uses its skill and asks
// to transform.
type Wander struct {
	tick    int
	heading float64
	turn    float64
	mask    mask.Kind
}

func NewWander(seed int, kind mask.Kind) *Wander {
	return &Wander{
		heading: float64((seed * 97) % 360),
		turn:    float64(45 + (seed*31)%90),
		mask:    kind,
	}
}

func (w *Wander) Poll() Intent {
	w.tick++
	if w.tick%120 == 0 {
		w.heading = math.Mod(w.heading+w.turn, 360)
	}

	rad := w.heading * game.RAD
	cmd := game.NewInputCommand()
	cmd.Move = mgl64.Vec2{math.Sin(rad), math.Cos(rad)}
	cmd.AimYaw = w.heading
	cmd.Jump = w.tick%90 == 0
	cmd.Attack = w.tick%75 == 0
	cmd.Skill = w.tick%200 == 0

	intent := Intent{Command: cmd}
	if w.tick%50 == 0 {
		intent.Transform = w.mask
	}
	return intent
}
