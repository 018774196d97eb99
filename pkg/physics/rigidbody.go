package physics

import (
	"github.com/go-gl/mathgl/mgl64"
)

// RigidBody resolves motion one axis at a time against the world and takes
// its grounded flag from the ground probe after every move.
type RigidBody struct {
	body
}

var _ Port = (*RigidBody)(nil)

func NewRigidBody(world *World, config BodyConfig, position mgl64.Vec3, rotation mgl64.Quat) *RigidBody {
	r := &RigidBody{body: newBody(world, config, position, rotation)}
	r.grounded, _ = r.CheckGround(position, r.feet(), config.HalfExtents.X())
	return r
}

// Vertical first so that landing is resolved before sliding along the floor.
var axisOrder = [3]int{1, 0, 2}

func (r *RigidBody) Move(motion mgl64.Vec3) {
	if !r.CollisionsEnabled() {
		r.passThrough(motion)
		return
	}

	box := r.bounds()
	var applied mgl64.Vec3
	for _, axis := range axisOrder {
		d := r.world.ClipAxis(box, axis, motion[axis], LayerAll)
		applied[axis] = d

		var shift mgl64.Vec3
		shift[axis] = d
		box = box.Translate(shift)
	}

	r.position = r.position.Add(applied)
	r.grounded, _ = r.CheckGround(r.position, r.feet(), r.config.HalfExtents.X())
}
