package physics

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type adapter struct {
	name string
	make func(world *World, position mgl64.Vec3) Port
}

var adapters = []adapter{
	{
		name: "rigidbody",
		make: func(world *World, position mgl64.Vec3) Port {
			return NewRigidBody(world, DefaultBodyConfig(), position, mgl64.QuatIdent())
		},
	},
	{
		name: "controller",
		make: func(world *World, position mgl64.Vec3) Port {
			return NewController(world, DefaultBodyConfig(), position, mgl64.QuatIdent())
		},
	},
}

var feet = mgl64.Vec3{0, -1, 0}

func flat() *World {
	return NewWorld(Floor(0, 50))
}

func forEach(t *testing.T, test func(t *testing.T, make func(*World, mgl64.Vec3) Port)) {
	for _, a := range adapters {
		a := a
		t.Run(a.name, func(t *testing.T) {
			test(t, a.make)
		})
	}
}

func TestLanding(t *testing.T) {
	forEach(t, func(t *testing.T, make func(*World, mgl64.Vec3) Port) {
		port := make(flat(), mgl64.Vec3{0, 4, 0})
		assert.False(t, port.IsGrounded())

		for i := 0; i < 10; i++ {
			port.Move(mgl64.Vec3{0, -0.5, 0})
			port.Advance(0.02)
		}

		assert.True(t, port.IsGrounded())
		assert.InDelta(t, 1.0, port.Position().Y(), 0.01)
	})
}

func TestStaysGroundedWhileWalking(t *testing.T) {
	forEach(t, func(t *testing.T, make func(*World, mgl64.Vec3) Port) {
		port := make(flat(), mgl64.Vec3{0, 1, 0})

		for i := 0; i < 20; i++ {
			port.Move(mgl64.Vec3{0.1, -0.04, 0.05})
			require.True(t, port.IsGrounded(), "tick %d", i)
		}

		assert.InDelta(t, 2.0, port.Position().X(), 1e-6)
		assert.InDelta(t, 1.0, port.Position().Y(), 0.01)
	})
}

func TestWallBlocks(t *testing.T) {
	forEach(t, func(t *testing.T, make func(*World, mgl64.Vec3) Port) {
		world := flat()
		world.Add(Wall(mgl64.Vec3{2, -1, -5}, mgl64.Vec3{3, 5, 5}))
		port := make(world, mgl64.Vec3{0, 1, 0})

		port.Move(mgl64.Vec3{5, 0, 0})
		assert.InDelta(t, 1.6, port.Position().X(), 0.01)
	})
}

func TestSyncTransform(t *testing.T) {
	forEach(t, func(t *testing.T, make func(*World, mgl64.Vec3) Port) {
		world := flat()
		world.Add(Wall(mgl64.Vec3{2, -1, -5}, mgl64.Vec3{3, 5, 5}))
		port := make(world, mgl64.Vec3{0, 1, 0})

		rotation := mgl64.QuatRotate(1, mgl64.Vec3{0, 1, 0})
		port.SyncTransform(mgl64.Vec3{5, 1, 0}, rotation)
		assert.Equal(t, mgl64.Vec3{5, 1, 0}, port.Position())

		port.Move(mgl64.Vec3{-0.1, 0, 0})
		assert.InDelta(t, 4.9, port.Position().X(), 1e-9)
		port.Advance(0.02)

		// Resumed: the wall blocks again.
		port.Move(mgl64.Vec3{-5, 0, 0})
		assert.InDelta(t, 3.4, port.Position().X(), 0.01)
	})
}

func TestCheckGround(t *testing.T) {
	forEach(t, func(t *testing.T, make func(*World, mgl64.Vec3) Port) {
		world := NewWorld(
			Box{
				AABB:   AABB{Min: mgl64.Vec3{-5, -1, -5}, Max: mgl64.Vec3{0, 0, 5}},
				Layers: LayerGround,
			},
			// A platform overhead.
			Box{
				AABB:   AABB{Min: mgl64.Vec3{10, 0.6, -5}, Max: mgl64.Vec3{15, 0.8, 5}},
				Layers: LayerGround,
			},
		)
		port := make(world, mgl64.Vec3{-2, 1, 0})

		grounded, height := port.CheckGround(mgl64.Vec3{-2, 1, 0}, feet, 0.4)
		assert.True(t, grounded)
		assert.InDelta(t, 0.0, height, 1e-9)

		// Ledge: the sphere reaches the floor, the ray does not.
		grounded, _ = port.CheckGround(mgl64.Vec3{0.2, 1, 0}, feet, 0.4)
		assert.False(t, grounded)

		// Ceiling: too far above the query point.
		grounded, _ = port.CheckGround(mgl64.Vec3{12, 1, 0}, feet, 0.4)
		assert.False(t, grounded)

		// Nothing at all.
		grounded, _ = port.CheckGround(mgl64.Vec3{30, 1, 0}, feet, 0.4)
		assert.False(t, grounded)
	})
}

func TestCheckObstacle(t *testing.T) {
	forEach(t, func(t *testing.T, make func(*World, mgl64.Vec3) Port) {
		world := flat()
		world.Add(Wall(mgl64.Vec3{-5, -1, 4}, mgl64.Vec3{5, 5, 5}))
		port := make(world, mgl64.Vec3{0, 1, 0})

		dist, ok := port.CheckObstacle(mgl64.Vec3{0, 2, 0}, mgl64.Vec3{0, 0, 1}, 6)
		require.True(t, ok)
		assert.InDelta(t, 4.0, dist, 1e-9)

		_, ok = port.CheckObstacle(mgl64.Vec3{0, 2, 0}, mgl64.Vec3{0, 0, 1}, 3)
		assert.False(t, ok)

		// The floor is not an obstacle.
		_, ok = port.CheckObstacle(mgl64.Vec3{0, 2, 0}, mgl64.Vec3{0, -1, 0}, 6)
		assert.False(t, ok)
	})
}

func TestNoWorld(t *testing.T) {
	forEach(t, func(t *testing.T, make func(*World, mgl64.Vec3) Port) {
		port := make(nil, mgl64.Vec3{0, 1, 0})

		_, ok := port.CheckObstacle(mgl64.Vec3{}, mgl64.Vec3{0, 0, 1}, 6)
		assert.False(t, ok)

		port.Move(mgl64.Vec3{1, -1, 0})
		assert.Equal(t, mgl64.Vec3{1, 0, 0}, port.Position())
		assert.False(t, port.IsGrounded())
	})
}

func TestUnstuck(t *testing.T) {
	forEach(t, func(t *testing.T, make func(*World, mgl64.Vec3) Port) {
		world := flat()
		world.Add(Wall(mgl64.Vec3{-1, -1, -1}, mgl64.Vec3{1, 1.5, 1}))
		port := make(world, mgl64.Vec3{0, 1, 0})
		require.True(t, world.OverlapBox(BoxAround(port.Position(), DefaultBodyConfig().HalfExtents), LayerAll))

		unsticker, ok := port.(Unsticker)
		require.True(t, ok)
		unsticker.RequestUnstuck()

		for i := 0; i < DefaultBodyConfig().UnstuckRetries; i++ {
			port.Advance(0.02)
		}

		assert.False(t, world.OverlapBox(BoxAround(port.Position(), DefaultBodyConfig().HalfExtents), LayerAll))
		assert.InDelta(t, 0.0, port.Position().X(), 1e-9)
	})
}

func TestRaycastPicksClosest(t *testing.T) {
	world := NewWorld(
		Wall(mgl64.Vec3{-1, -1, 5}, mgl64.Vec3{1, 1, 6}),
		Wall(mgl64.Vec3{-1, -1, 2}, mgl64.Vec3{1, 1, 3}),
	)
	hit, ok := world.Raycast(mgl64.Vec3{}, mgl64.Vec3{0, 0, 1}, 10, LayerAll)
	require.True(t, ok)
	assert.InDelta(t, 2.0, hit.Distance, 1e-9)
	assert.Equal(t, mgl64.Vec3{0, 0, -1}, hit.Normal)

	_, ok = world.Raycast(mgl64.Vec3{}, mgl64.Vec3{0, 0, 1}, 10, LayerGround)
	assert.False(t, ok)
}
