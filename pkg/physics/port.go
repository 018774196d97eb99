package physics

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Port is the narrow set of physics capabilities the simulation step needs.
// Implementations must not block.
type Port interface {
	// CheckGround reports whether there is walkable ground just below
	// position+offset, and its height.
	CheckGround(position, offset mgl64.Vec3, radius float64) (bool, float64)
	// CheckObstacle casts along a normalized direction and returns the
	// distance to the first obstacle, if any.
	CheckObstacle(origin, direction mgl64.Vec3, maxDist float64) (float64, bool)
	// Move displaces the body over one tick, updating IsGrounded and Position.
	Move(motion mgl64.Vec3)
	SetRotation(rotation mgl64.Quat)
	// SyncTransform teleports the body. Collision response is suspended for
	// the write and resumes after a short delay.
	SyncTransform(position mgl64.Vec3, rotation mgl64.Quat)
	IsGrounded() bool
	Position() mgl64.Vec3
	// Advance runs time-based housekeeping once per fixed tick.
	Advance(dt float64)
}

// Unsticker is implemented by adapters that can lift a body out of overlap.
type Unsticker interface {
	RequestUnstuck()
}

// Probe configures the ground query.
type Probe struct {
	// Lift is how far above the query point the downward ray starts.
	Lift float64
	// Depth is how far below the query point the ray reaches.
	Depth float64
	// CeilingTolerance is how far above the query point a hit may be and
	// still count as ground.
	CeilingTolerance float64
}

func DefaultProbe() Probe {
	return Probe{
		Lift:             1.0,
		Depth:            0.15,
		CeilingTolerance: 0.5,
	}
}

type BodyConfig struct {
	HalfExtents mgl64.Vec3
	Probe       Probe
	// ReenableDelay is how long collision response stays off after a
	// SyncTransform, in seconds.
	ReenableDelay float64
	// UnstuckStep is the upward nudge per unstuck attempt.
	UnstuckStep    float64
	UnstuckRetries int
	// Skin keeps swept bodies slightly off the surfaces they touch.
	Skin float64
}

func DefaultBodyConfig() BodyConfig {
	return BodyConfig{
		HalfExtents:    mgl64.Vec3{0.4, 1.0, 0.4},
		Probe:          DefaultProbe(),
		ReenableDelay:  0.02,
		UnstuckStep:    0.25,
		UnstuckRetries: 8,
		Skin:           0.001,
	}
}
