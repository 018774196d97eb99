package physics

import (
	"github.com/go-gl/mathgl/mgl64"
)

var down = mgl64.Vec3{0, -1, 0}

// body is the state both adapters share: placement, the ground probe and the
// two tick-driven state machines (collision re-enable and unstuck).
type body struct {
	world  *World
	config BodyConfig

	position mgl64.Vec3
	rotation mgl64.Quat
	grounded bool

	// suspended is the time left before collision response resumes.
	suspended float64
	// unstuck is the number of lift attempts left.
	unstuck int
}

func newBody(world *World, config BodyConfig, position mgl64.Vec3, rotation mgl64.Quat) body {
	return body{
		world:    world,
		config:   config,
		position: position,
		rotation: rotation,
	}
}

func (b *body) bounds() AABB {
	return BoxAround(b.position, b.config.HalfExtents)
}

// feet is the offset of the bottom of the body from its center.
func (b *body) feet() mgl64.Vec3 {
	return mgl64.Vec3{0, -b.config.HalfExtents.Y(), 0}
}

// GroundResult is the full outcome of a ground probe.
type GroundResult struct {
	Grounded bool
	Height   float64
	// Ledge is set when ground is near but not directly below.
	Ledge bool
}

func (b *body) ProbeGround(position, offset mgl64.Vec3, radius float64) GroundResult {
	q := position.Add(offset)
	probe := b.config.Probe
	origin := q.Add(mgl64.Vec3{0, probe.Lift, 0})

	hit, ok := b.world.Raycast(origin, down, probe.Lift+probe.Depth, LayerGround)
	if ok && hit.Point.Y() <= q.Y()+probe.CeilingTolerance {
		return GroundResult{Grounded: true, Height: hit.Point.Y()}
	}

	return GroundResult{
		Height: q.Y(),
		Ledge:  b.world.OverlapSphere(q, radius, LayerGround),
	}
}

func (b *body) CheckGround(position, offset mgl64.Vec3, radius float64) (bool, float64) {
	result := b.ProbeGround(position, offset, radius)
	return result.Grounded, result.Height
}

func (b *body) CheckObstacle(origin, direction mgl64.Vec3, maxDist float64) (float64, bool) {
	if b.world == nil || direction.Len() < 1e-9 {
		return 0, false
	}
	hit, ok := b.world.Raycast(origin, direction.Normalize(), maxDist, LayerObstacle)
	if !ok {
		return 0, false
	}
	return hit.Distance, true
}

func (b *body) SetRotation(rotation mgl64.Quat) {
	b.rotation = rotation
}

func (b *body) Rotation() mgl64.Quat {
	return b.rotation
}

func (b *body) SyncTransform(position mgl64.Vec3, rotation mgl64.Quat) {
	b.suspended = b.config.ReenableDelay
	b.position = position
	b.rotation = rotation
}

func (b *body) IsGrounded() bool {
	return b.grounded
}

func (b *body) Position() mgl64.Vec3 {
	return b.position
}

// CollisionsEnabled is false between a SyncTransform and the end of its
// re-enable delay.
func (b *body) CollisionsEnabled() bool {
	return b.suspended <= 0
}

func (b *body) RequestUnstuck() {
	b.unstuck = b.config.UnstuckRetries
}

// Unsticking reports whether unstuck attempts are still pending.
func (b *body) Unsticking() bool {
	return b.unstuck > 0
}

func (b *body) Advance(dt float64) {
	if b.suspended > 0 {
		b.suspended -= dt
		if b.suspended < 0 {
			b.suspended = 0
		}
	}

	if b.unstuck > 0 {
		if b.world.OverlapBox(b.bounds(), LayerAll) {
			b.position = b.position.Add(mgl64.Vec3{0, b.config.UnstuckStep, 0})
			b.unstuck--
		} else {
			b.unstuck = 0
		}
	}
}

// passThrough moves without collision response while suspended.
func (b *body) passThrough(motion mgl64.Vec3) {
	b.position = b.position.Add(motion)
	b.grounded, _ = b.CheckGround(b.position, b.feet(), b.config.HalfExtents.X())
}
