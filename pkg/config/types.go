package config

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/osmauxi/gjRepository/pkg/game"
	"github.com/osmauxi/gjRepository/pkg/game/authority"
	"github.com/osmauxi/gjRepository/pkg/game/mask"
	"github.com/osmauxi/gjRepository/pkg/gate"
	"github.com/osmauxi/gjRepository/pkg/physics"
	"github.com/osmauxi/gjRepository/pkg/replication"
)

type WebIngress struct {
	Enabled bool
	Port    int
}

type ENetIngress struct {
	Enabled  bool
	Port     int
	MaxPeers int
}

type RedisIngress struct {
	Enabled bool
	Address string
	Session string
}

type ServerIngress struct {
	Web   WebIngress
	ENet  ENetIngress `json:"enet"`
	Redis RedisIngress
}

type SpawnPoint struct {
	Position mgl64.Vec3
	Yaw      float64
}

type PickupSettings struct {
	Count  int
	Amount int
	// Fraction of pickups that feed only the monkey counter.
	MonkeyShare float64
	Radius      float64
	// Seconds before a claimed pickup is replaced.
	RespawnDelay float64
}

type CombatSettings struct {
	Damage         int
	Range          float64
	HitEnergy      int
	KnockbackForce float64
	KnockbackStun  float64
}

type ServerSettings struct {
	Mode             string
	TickRate         int
	PresentationRate int
	// Fraction of unreliable envelopes the loopback hub drops.
	DropRate float64
	// Inputs per second accepted from each participant.
	InputRate   float64
	InputBurst  int
	JournalPath string
	// Seconds between death and respawn.
	RespawnDelay float64
	SpawnPoints  []SpawnPoint
	Pickups      PickupSettings
	Combat       CombatSettings
	Ingress      ServerIngress
}

// AuthorityMode parses Mode. The schema only admits valid values.
func (s ServerSettings) AuthorityMode() authority.Mode {
	mode, err := authority.Parse(s.Mode)
	if err != nil {
		return authority.Server
	}
	return mode
}

// FixedStep is the simulation delta in seconds.
func (s ServerSettings) FixedStep() float64 {
	return 1 / float64(s.TickRate)
}

type MovementSettings struct {
	MaxMoveSpeed       float64
	Acceleration       float64
	Deceleration       float64
	BackwardSpeedRatio float64
	StrafeSpeedRatio   float64
	RotateSpeed        float64

	JumpCurve     []game.CurveKey
	JumpMaxTime   float64
	JumpCooldown  float64
	Gravity       float64
	MaxFallSpeed  float64
	StickVelocity float64

	AttackDuration float64
	AttackCooldown float64

	SkillCooldown       float64
	DashSpeed           float64
	DashDuration        float64
	TeleportMaxDist     float64
	TeleportBackoff     float64
	TeleportProbeHeight float64

	StunDeceleration float64

	GroundCheckOffset mgl64.Vec3
	GroundCheckRadius float64
}

// Build returns a fresh configuration for one simulating process.
func (m MovementSettings) Build() *game.MovementConfig {
	return &game.MovementConfig{
		MaxMoveSpeed:       m.MaxMoveSpeed,
		Acceleration:       m.Acceleration,
		Deceleration:       m.Deceleration,
		BackwardSpeedRatio: m.BackwardSpeedRatio,
		StrafeSpeedRatio:   m.StrafeSpeedRatio,
		RotateSpeed:        m.RotateSpeed,

		JumpCurve:     append(game.Curve(nil), m.JumpCurve...),
		JumpMaxTime:   m.JumpMaxTime,
		JumpCooldown:  m.JumpCooldown,
		Gravity:       m.Gravity,
		MaxFallSpeed:  m.MaxFallSpeed,
		StickVelocity: m.StickVelocity,

		AttackDuration: m.AttackDuration,
		AttackCooldown: m.AttackCooldown,

		SpeedMultipliers: map[mask.Kind]float64{},

		SkillCooldown:       m.SkillCooldown,
		DashSpeed:           m.DashSpeed,
		DashDuration:        m.DashDuration,
		TeleportMaxDist:     m.TeleportMaxDist,
		TeleportBackoff:     m.TeleportBackoff,
		TeleportProbeHeight: m.TeleportProbeHeight,

		StunDeceleration: m.StunDeceleration,

		GroundCheckOffset: m.GroundCheckOffset,
		GroundCheckRadius: m.GroundCheckRadius,
	}
}

type ReplicationSettings struct {
	PositionEpsilon     float64
	AngleEpsilon        float64
	Heartbeat           float64
	InputMoveEpsilon    float64
	InputYawEpsilon     float64
	InputHeartbeat      float64
	CorrectionThreshold float64
	BlendRate           float64
}

func (r ReplicationSettings) Build() replication.Settings {
	return replication.Settings{
		PositionEpsilon:     r.PositionEpsilon,
		AngleEpsilon:        r.AngleEpsilon,
		Heartbeat:           r.Heartbeat,
		InputMoveEpsilon:    r.InputMoveEpsilon,
		InputYawEpsilon:     r.InputYawEpsilon,
		InputHeartbeat:      r.InputHeartbeat,
		CorrectionThreshold: r.CorrectionThreshold,
		BlendRate:           r.BlendRate,
	}
}

type GateSettings struct {
	Threshold        int
	Multipliers      map[string]float64
	MaxHealth        int
	PandaHealthBonus int
	DearGain         float64
	DearLoss         float64
	DearResync       float64
	DearCap          float64
}

func (g GateSettings) Build() gate.Settings {
	multipliers := make(map[mask.Kind]float64)
	for name, value := range g.Multipliers {
		if kind := mask.Parse(name); kind != mask.None {
			multipliers[kind] = value
		}
	}

	return gate.Settings{
		Threshold:        g.Threshold,
		Multipliers:      multipliers,
		MaxHealth:        g.MaxHealth,
		PandaHealthBonus: g.PandaHealthBonus,
		DearGain:         g.DearGain,
		DearLoss:         g.DearLoss,
		DearResync:       g.DearResync,
		DearCap:          g.DearCap,
	}
}

type ProbeSettings struct {
	Lift             float64
	Depth            float64
	CeilingTolerance float64
}

type PhysicsSettings struct {
	// Body is either "controller" or "rigidbody".
	Body           string
	HalfExtents    mgl64.Vec3
	Probe          ProbeSettings
	ReenableDelay  float64
	UnstuckStep    float64
	UnstuckRetries int
	Skin           float64
}

func (p PhysicsSettings) Build() physics.BodyConfig {
	return physics.BodyConfig{
		HalfExtents: p.HalfExtents,
		Probe: physics.Probe{
			Lift:             p.Probe.Lift,
			Depth:            p.Probe.Depth,
			CeilingTolerance: p.Probe.CeilingTolerance,
		},
		ReenableDelay:  p.ReenableDelay,
		UnstuckStep:    p.UnstuckStep,
		UnstuckRetries: p.UnstuckRetries,
		Skin:           p.Skin,
	}
}

// NewPort places a body of the configured kind in world.
func (p PhysicsSettings) NewPort(world *physics.World, position mgl64.Vec3, rotation mgl64.Quat) physics.Port {
	if p.Body == "rigidbody" {
		return physics.NewRigidBody(world, p.Build(), position, rotation)
	}
	return physics.NewController(world, p.Build(), position, rotation)
}

type WallSettings struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

type WorldSettings struct {
	FloorHeight float64
	// Half the side of the square floor.
	FloorSize float64
	Walls     []WallSettings
}

// Build returns a new collision world. Every simulating process owns one.
func (w WorldSettings) Build() *physics.World {
	world := physics.NewWorld(physics.Floor(w.FloorHeight, w.FloorSize))
	for _, wall := range w.Walls {
		world.Add(physics.Wall(wall.Min, wall.Max))
	}
	return world
}

type Config struct {
	Server      ServerSettings
	Movement    MovementSettings
	Replication ReplicationSettings
	Gate        GateSettings
	Physics     PhysicsSettings
	World       WorldSettings
}
