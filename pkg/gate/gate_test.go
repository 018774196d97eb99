package gate

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/repeale/fp-go/option"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osmauxi/gjRepository/pkg/game"
	"github.com/osmauxi/gjRepository/pkg/game/mask"
	"github.com/osmauxi/gjRepository/pkg/physics"
	"github.com/osmauxi/gjRepository/pkg/sim"
)

func newGate() *Gate {
	return New(DefaultSettings(), zerolog.Nop())
}

type forcer struct {
	forced int
}

func (f *forcer) ForceSnapshot() { f.forced++ }

func TestCanActivate(t *testing.T) {
	g := newGate()

	assert.False(t, g.CanActivate(mask.Panda))
	g.AddEnergy(mask.Panda, 99)
	assert.False(t, g.CanActivate(mask.Panda))
	g.AddEnergy(mask.Panda, 1)
	assert.True(t, g.CanActivate(mask.Panda))
	assert.False(t, g.CanActivate(mask.None))

	require.True(t, g.Activate(mask.Panda))
	assert.Equal(t, mask.Panda, g.Mask())
	assert.Equal(t, 150, g.Health())
	assert.Equal(t, 150, g.MaxHealth())

	// Once chosen, a mask is permanent.
	g.AddEnergy(mask.Monkey, 200)
	assert.False(t, g.CanActivate(mask.Monkey))
	assert.False(t, g.Activate(mask.Monkey))
	assert.False(t, g.Activate(mask.Panda))
}

func TestAddToMost(t *testing.T) {
	tests := []struct {
		name   string
		energy map[mask.Kind]int
		want   mask.Kind
	}{
		{"empty prefers dear", nil, mask.Dear},
		{"largest wins", map[mask.Kind]int{mask.Panda: 30, mask.Monkey: 10}, mask.Panda},
		{"monkey", map[mask.Kind]int{mask.Dear: 5, mask.Monkey: 10}, mask.Monkey},
		{"tie prefers panda over monkey", map[mask.Kind]int{mask.Panda: 10, mask.Monkey: 10}, mask.Panda},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g := newGate()
			for kind, amount := range test.energy {
				g.AddEnergy(kind, amount)
			}
			before := g.Energy(test.want)
			assert.Equal(t, test.want, g.AddToMost(20))
			assert.Equal(t, before+20, g.Energy(test.want))
		})
	}
}

func TestAccrueDear(t *testing.T) {
	g := newGate()

	// 6 per second while moving.
	g.AccrueDear(true, 0.5)
	g.AccrueDear(true, 0.5)
	assert.Equal(t, 6, g.Energy(mask.Dear))

	// 10 per second while idle.
	g.AccrueDear(false, 0.5)
	assert.Equal(t, 1, g.Energy(mask.Dear))

	// Never below zero.
	g.AccrueDear(false, 1)
	assert.Equal(t, 0, g.Energy(mask.Dear))

	// A pickup moves the counter away from the buffer, which then follows it.
	g.AddEnergy(mask.Dear, 50)
	g.AccrueDear(true, 0.5)
	assert.Equal(t, 53, g.Energy(mask.Dear))

	// Full energy does not decay and never exceeds the cap.
	g.AddEnergy(mask.Dear, 60)
	g.AccrueDear(true, 1)
	assert.Equal(t, 100, g.Energy(mask.Dear))
	g.AccrueDear(false, 1)
	assert.Equal(t, 100, g.Energy(mask.Dear))

	require.True(t, g.Activate(mask.Dear))
	g.AccrueDear(true, 10)
	assert.Equal(t, 100, g.Energy(mask.Dear))
}

func TestDamage(t *testing.T) {
	g := newGate()

	for i := 0; i < 9; i++ {
		assert.False(t, g.Damage(10))
	}
	assert.Equal(t, 10, g.Health())
	assert.True(t, g.Damage(25))
	assert.Equal(t, 0, g.Health())
	assert.False(t, g.Alive())
	assert.False(t, g.Damage(10), "death is reported once")

	g.Restore()
	assert.Equal(t, 100, g.Health())
}

func TestApply(t *testing.T) {
	world := physics.NewWorld(physics.Floor(0, 50))
	port := physics.NewController(world, physics.DefaultBodyConfig(), mgl64.Vec3{0, 0.5, 0}, mgl64.QuatIdent())
	simulator := sim.New(game.DefaultMovementConfig(), port)
	f := &forcer{}

	Apply(simulator, f, mask.Dear, DefaultSettings())

	assert.Equal(t, sim.SkillTeleport, simulator.Installed())
	assert.Equal(t, 1.5, simulator.Config().SpeedMultiplier())
	assert.Equal(t, 1, f.forced)
	assert.True(t, port.Unsticking())

	for i := 0; i < 3; i++ {
		port.Advance(0.02)
	}
	assert.False(t, port.Unsticking())
	assert.InDelta(t, 1.0, port.Position().Y(), 1e-9)

	Apply(simulator, f, mask.None, DefaultSettings())
	assert.Equal(t, 1, f.forced)

	for kind, skill := range map[mask.Kind]sim.SkillKind{
		mask.Panda:  sim.SkillDash,
		mask.Dear:   sim.SkillTeleport,
		mask.Monkey: sim.SkillNoOp,
		mask.None:   sim.SkillNone,
	} {
		assert.Equal(t, skill, SkillFor(kind), kind.String())
	}
}

func TestPickups(t *testing.T) {
	pickups := NewPickups()
	common := pickups.Spawn(PickupCommon, 20, mgl64.Vec3{1, 0, 0})
	monkey := pickups.Spawn(PickupMonkey, 30, mgl64.Vec3{10, 0, 0})
	assert.NotEqual(t, common.ID, monkey.ID)

	near := pickups.Within(mgl64.Vec3{}, 2)
	require.Len(t, near, 1)
	assert.Equal(t, common.ID, near[0].ID)

	g := newGate()
	claimed := pickups.Claim(common.ID)
	require.True(t, opt.IsSome(claimed))
	assert.Equal(t, mask.Dear, Grant(g, claimed.Value))
	assert.Equal(t, 20, g.Energy(mask.Dear))

	// Someone else already took it.
	assert.True(t, opt.IsNone(pickups.Claim(common.ID)))

	claimed = pickups.Claim(monkey.ID)
	require.True(t, opt.IsSome(claimed))
	assert.Equal(t, mask.Monkey, Grant(g, claimed.Value))
	assert.Equal(t, 30, g.Energy(mask.Monkey))
	assert.Zero(t, pickups.Len())

	kind, ok := ParsePickupKind("Monkey")
	assert.True(t, ok)
	assert.Equal(t, PickupMonkey, kind)
	_, ok = ParsePickupKind("gold")
	assert.False(t, ok)
}
