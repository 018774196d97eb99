package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	maxSlides = 3
	// Contacts whose normal points up at least this much count as floor.
	floorNormal = 0.7
)

// Controller sweeps the body through the world and slides along whatever it
// hits. It is grounded when the last move touched a floor.
type Controller struct {
	body
}

var _ Port = (*Controller)(nil)

func NewController(world *World, config BodyConfig, position mgl64.Vec3, rotation mgl64.Quat) *Controller {
	c := &Controller{body: newBody(world, config, position, rotation)}
	c.grounded, _ = c.CheckGround(position, c.feet(), config.HalfExtents.X())
	return c
}

func (c *Controller) Move(motion mgl64.Vec3) {
	if !c.CollisionsEnabled() {
		c.passThrough(motion)
		return
	}

	c.grounded = false
	remaining := motion
	for i := 0; i < maxSlides; i++ {
		dist := remaining.Len()
		if dist < 1e-9 {
			break
		}

		hit, ok := c.world.SweepBox(c.bounds(), remaining, LayerAll)
		if !ok {
			c.position = c.position.Add(remaining)
			break
		}

		dir := remaining.Mul(1 / dist)
		travel := math.Max(hit.Distance-c.config.Skin, 0)
		c.position = c.position.Add(dir.Mul(travel))

		if hit.Normal.Y() >= floorNormal {
			c.grounded = true
		}

		left := dir.Mul(dist - travel)
		remaining = left.Sub(hit.Normal.Mul(left.Dot(hit.Normal)))
	}
}
