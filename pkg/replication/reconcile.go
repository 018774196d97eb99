package replication

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/repeale/fp-go/option"
	"github.com/rs/zerolog"

	"github.com/osmauxi/gjRepository/pkg/game"
)

// Correction describes how the owner handled an authoritative snapshot.
type Correction struct {
	Error   float64
	Snapped bool
	// Previous is the prediction before a snap.
	Previous game.EntityState
}

// Reconciler compares the owner's prediction with authoritative snapshots.
type Reconciler struct {
	settings    Settings
	log         zerolog.Logger
	corrections int
}

func NewReconciler(settings Settings, logger zerolog.Logger) *Reconciler {
	return &Reconciler{settings: settings, log: logger}
}

// Reconcile keeps the prediction unless it strayed beyond the correction
// threshold or disagrees about death, in which case it is replaced.
func (r *Reconciler) Reconcile(local, authoritative game.EntityState) (game.EntityState, Correction) {
	correction := Correction{
		Error:    authoritative.Position.Sub(local.Position).Len(),
		Previous: local,
	}

	if correction.Error <= r.settings.CorrectionThreshold && local.IsDead == authoritative.IsDead {
		return local, correction
	}

	correction.Snapped = true
	r.corrections++
	r.log.Warn().
		Float64("error", correction.Error).
		Uint32("tick", authoritative.Tick).
		Bool("dead", authoritative.IsDead).
		Msg("prediction diverged; snapping to authority")

	return authoritative, correction
}

// Corrections is the number of snaps so far.
func (r *Reconciler) Corrections() int {
	return r.corrections
}

// Interpolator moves a visual transform toward the latest snapshot.
type Interpolator struct {
	rate    float64
	current game.Transform
	target  opt.Option[game.Transform]
}

func NewInterpolator(rate float64) *Interpolator {
	return &Interpolator{
		rate:    rate,
		current: game.Transform{Rotation: mgl64.QuatIdent()},
		target:  opt.None[game.Transform](),
	}
}

// SetTarget records the latest snapshot. The first one is adopted as is.
func (i *Interpolator) SetTarget(target game.Transform) {
	if opt.IsNone(i.target) {
		i.current = target
	}
	i.target = opt.Some(target)
}

func (i *Interpolator) Advance(dt float64) game.Transform {
	if opt.IsNone(i.target) {
		return i.current
	}

	t := game.Clamp01(i.rate * dt)
	target := i.target.Value
	i.current = game.Transform{
		Position: i.current.Position.Add(target.Position.Sub(i.current.Position).Mul(t)),
		Rotation: game.Slerp(i.current.Rotation, target.Rotation, t),
	}
	return i.current
}

func (i *Interpolator) Current() game.Transform {
	return i.current
}
