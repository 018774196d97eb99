package game

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const RAD = math.Pi / 180.0

var (
	Up      = mgl64.Vec3{0, 1, 0}
	Forward = mgl64.Vec3{0, 0, 1}
)

// YawRotation returns the rotation about the vertical axis by yaw degrees.
// A yaw of zero faces +Z, 90 faces +X.
func YawRotation(yaw float64) mgl64.Quat {
	return mgl64.QuatRotate(yaw*RAD, Up)
}

// Facing returns the horizontal unit direction a rotation looks along.
func Facing(q mgl64.Quat) mgl64.Vec3 {
	f := Horizontal(q.Rotate(Forward))
	if f.Len() < 1e-9 {
		return Forward
	}
	return f.Normalize()
}

func Horizontal(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{v.X(), 0, v.Z()}
}

// WithHorizontal replaces the x and z components of v.
func WithHorizontal(v mgl64.Vec3, h mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{h.X(), v.Y(), h.Z()}
}

func SquaredLen(v mgl64.Vec3) float64 {
	return v.Dot(v)
}

// MoveTowards moves current toward target by at most maxDelta.
func MoveTowards(current, target mgl64.Vec3, maxDelta float64) mgl64.Vec3 {
	diff := target.Sub(current)
	dist := diff.Len()
	if dist <= maxDelta || dist == 0 {
		return target
	}
	return current.Add(diff.Mul(maxDelta / dist))
}

// Slerp interpolates along the shortest arc and clamps t to [0, 1].
func Slerp(from, to mgl64.Quat, t float64) mgl64.Quat {
	t = Clamp01(t)
	if from.Dot(to) < 0 {
		to = to.Scale(-1)
	}
	return mgl64.QuatSlerp(from, to, t).Normalize()
}

// AngleBetween returns the angle in degrees between two rotations.
func AngleBetween(a, b mgl64.Quat) float64 {
	dot := math.Abs(a.Normalize().Dot(b.Normalize()))
	if dot > 1 {
		dot = 1
	}
	return 2 * math.Acos(dot) / RAD
}

// YawDelta returns the absolute difference between two yaw angles in degrees,
// wrapped to [0, 180].
func YawDelta(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func Clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// Countdown decrements a timer by dt, floored at zero.
func Countdown(timer, dt float64) float64 {
	if timer <= 0 {
		return 0
	}
	timer -= dt
	if timer < 0 {
		return 0
	}
	return timer
}
