package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const epsilon = 1e-6

// Layer is a bit set of collision layers.
type Layer uint8

const (
	LayerGround Layer = 1 << iota
	LayerObstacle

	LayerAll = LayerGround | LayerObstacle
)

type AABB struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// BoxAround returns the box of the given half extents centered on center.
func BoxAround(center, halfExtents mgl64.Vec3) AABB {
	return AABB{
		Min: center.Sub(halfExtents),
		Max: center.Add(halfExtents),
	}
}

func (a AABB) Translate(v mgl64.Vec3) AABB {
	return AABB{Min: a.Min.Add(v), Max: a.Max.Add(v)}
}

// Expand grows the box by e on every side.
func (a AABB) Expand(e mgl64.Vec3) AABB {
	return AABB{Min: a.Min.Sub(e), Max: a.Max.Add(e)}
}

func (a AABB) Intersects(b AABB) bool {
	for axis := 0; axis < 3; axis++ {
		if a.Min[axis] >= b.Max[axis]-epsilon || a.Max[axis] <= b.Min[axis]+epsilon {
			return false
		}
	}
	return true
}

// overlapsExcept reports overlap on every axis other than skip.
func (a AABB) overlapsExcept(b AABB, skip int) bool {
	for axis := 0; axis < 3; axis++ {
		if axis == skip {
			continue
		}
		if a.Min[axis] >= b.Max[axis]-epsilon || a.Max[axis] <= b.Min[axis]+epsilon {
			return false
		}
	}
	return true
}

// Box is a piece of static level geometry.
type Box struct {
	AABB
	Layers Layer
}

type Hit struct {
	Point    mgl64.Vec3
	Normal   mgl64.Vec3
	Distance float64
}

// World is the static geometry the adapters collide against.
type World struct {
	boxes []Box
}

func NewWorld(boxes ...Box) *World {
	return &World{boxes: boxes}
}

func (w *World) Add(box Box) {
	w.boxes = append(w.boxes, box)
}

// Floor returns a ground slab whose top surface is at height y.
func Floor(y, halfSize float64) Box {
	return Box{
		AABB: AABB{
			Min: mgl64.Vec3{-halfSize, y - 1, -halfSize},
			Max: mgl64.Vec3{halfSize, y, halfSize},
		},
		Layers: LayerGround,
	}
}

// Wall returns an obstacle box.
func Wall(min, max mgl64.Vec3) Box {
	return Box{AABB: AABB{Min: min, Max: max}, Layers: LayerObstacle}
}

// rayBox intersects a ray with a box using the slab method. Rays that start
// inside the box are ignored.
func rayBox(origin, dir mgl64.Vec3, box AABB) (float64, mgl64.Vec3, bool) {
	tmin := math.Inf(-1)
	tmax := math.Inf(1)
	var normal mgl64.Vec3

	for axis := 0; axis < 3; axis++ {
		if math.Abs(dir[axis]) < 1e-12 {
			if origin[axis] <= box.Min[axis]+epsilon || origin[axis] >= box.Max[axis]-epsilon {
				return 0, normal, false
			}
			continue
		}

		inv := 1 / dir[axis]
		t1 := (box.Min[axis] - origin[axis]) * inv
		t2 := (box.Max[axis] - origin[axis]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}

		if t1 > tmin {
			tmin = t1
			normal = mgl64.Vec3{}
			normal[axis] = -math.Copysign(1, dir[axis])
		}
		if t2 < tmax {
			tmax = t2
		}
		if tmin > tmax {
			return 0, normal, false
		}
	}

	if tmax < 0 || tmin < -epsilon {
		return 0, normal, false
	}

	return math.Max(tmin, 0), normal, true
}

// Raycast returns the closest hit along a normalized direction.
func (w *World) Raycast(origin, dir mgl64.Vec3, maxDist float64, mask Layer) (Hit, bool) {
	best := Hit{Distance: math.Inf(1)}
	found := false
	if w == nil {
		return best, false
	}

	for _, box := range w.boxes {
		if box.Layers&mask == 0 {
			continue
		}
		t, normal, ok := rayBox(origin, dir, box.AABB)
		if !ok || t > maxDist || t >= best.Distance {
			continue
		}
		best = Hit{
			Point:    origin.Add(dir.Mul(t)),
			Normal:   normal,
			Distance: t,
		}
		found = true
	}

	return best, found
}

// OverlapSphere reports whether any box on mask lies within radius of center.
func (w *World) OverlapSphere(center mgl64.Vec3, radius float64, mask Layer) bool {
	if w == nil {
		return false
	}
	for _, box := range w.boxes {
		if box.Layers&mask == 0 {
			continue
		}
		var closest mgl64.Vec3
		for axis := 0; axis < 3; axis++ {
			closest[axis] = math.Max(box.Min[axis], math.Min(center[axis], box.Max[axis]))
		}
		d := closest.Sub(center)
		if d.Dot(d) <= radius*radius {
			return true
		}
	}
	return false
}

func (w *World) OverlapBox(b AABB, mask Layer) bool {
	if w == nil {
		return false
	}
	for _, box := range w.boxes {
		if box.Layers&mask != 0 && box.Intersects(b) {
			return true
		}
	}
	return false
}

// SweepBox moves a box along motion and returns the first contact.
func (w *World) SweepBox(b AABB, motion mgl64.Vec3, mask Layer) (Hit, bool) {
	dist := motion.Len()
	if w == nil || dist < 1e-12 {
		return Hit{}, false
	}
	dir := motion.Mul(1 / dist)
	half := b.Max.Sub(b.Min).Mul(0.5)
	center := b.Min.Add(half)

	best := Hit{Distance: math.Inf(1)}
	found := false
	for _, box := range w.boxes {
		if box.Layers&mask == 0 {
			continue
		}
		t, normal, ok := rayBox(center, dir, box.Expand(half))
		if !ok || t > dist || t >= best.Distance {
			continue
		}
		best = Hit{
			Point:    center.Add(dir.Mul(t)),
			Normal:   normal,
			Distance: t,
		}
		found = true
	}
	return best, found
}

// ClipAxis shortens a displacement d of b along one axis so it stops at the
// first box on mask.
func (w *World) ClipAxis(b AABB, axis int, d float64, mask Layer) float64 {
	if w == nil || d == 0 {
		return d
	}
	for _, box := range w.boxes {
		if box.Layers&mask == 0 || !b.overlapsExcept(box.AABB, axis) {
			continue
		}
		if d > 0 {
			gap := box.Min[axis] - b.Max[axis]
			if gap >= -epsilon && gap < d {
				d = math.Max(gap, 0)
			}
		} else {
			gap := box.Max[axis] - b.Min[axis]
			if gap <= epsilon && gap > d {
				d = math.Min(gap, 0)
			}
		}
	}
	return d
}
