package game

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/osmauxi/gjRepository/pkg/game/mask"
)

// CurveKey is one sample of a Curve.
type CurveKey struct {
	Time  float64
	Value float64
}

// Curve is a piecewise linear function of time. Keys must be sorted by Time.
type Curve []CurveKey

// Evaluate samples the curve at t, clamping to the first and last keys.
func (c Curve) Evaluate(t float64) float64 {
	if len(c) == 0 {
		return 0
	}
	if t <= c[0].Time {
		return c[0].Value
	}
	last := c[len(c)-1]
	if t >= last.Time {
		return last.Value
	}
	for i := 1; i < len(c); i++ {
		next := c[i]
		if t > next.Time {
			continue
		}
		prev := c[i-1]
		span := next.Time - prev.Time
		if span <= 0 {
			return next.Value
		}
		return Lerp(prev.Value, next.Value, (t-prev.Time)/span)
	}
	return last.Value
}

// Duration is the time of the last key.
func (c Curve) Duration() float64 {
	if len(c) == 0 {
		return 0
	}
	return c[len(c)-1].Time
}

// MovementConfig holds the movement tunables of one entity. It is created at
// spawn and only SpeedMultipliers change afterwards, written by the
// transformation gate between ticks. The simulation reads every field anew on
// each step.
type MovementConfig struct {
	MaxMoveSpeed       float64
	Acceleration       float64
	Deceleration       float64
	BackwardSpeedRatio float64
	StrafeSpeedRatio   float64
	RotateSpeed        float64

	JumpCurve    Curve
	JumpMaxTime  float64
	JumpCooldown float64
	Gravity      float64
	MaxFallSpeed float64
	// StickVelocity is the small downward speed kept while grounded so that
	// ground probes keep touching the floor between ticks. Must be negative.
	StickVelocity float64

	AttackDuration float64
	AttackCooldown float64

	SpeedMultipliers map[mask.Kind]float64

	SkillCooldown       float64
	DashSpeed           float64
	DashDuration        float64
	TeleportMaxDist     float64
	TeleportBackoff     float64
	TeleportProbeHeight float64

	// StunDeceleration slows knockback velocity while stunned.
	StunDeceleration float64

	GroundCheckOffset mgl64.Vec3
	GroundCheckRadius float64
}

// DefaultMovementConfig mirrors default.yaml.
func DefaultMovementConfig() *MovementConfig {
	return &MovementConfig{
		MaxMoveSpeed:       5,
		Acceleration:       20,
		Deceleration:       40,
		BackwardSpeedRatio: 0.5,
		StrafeSpeedRatio:   0.75,
		RotateSpeed:        8,

		JumpCurve: Curve{
			{Time: 0, Value: 8},
			{Time: 0.2, Value: 5},
			{Time: 0.4, Value: 0},
		},
		JumpMaxTime:   0.4,
		JumpCooldown:  0.2,
		Gravity:       -15,
		MaxFallSpeed:  -20,
		StickVelocity: -2,

		AttackDuration: 0.4,
		AttackCooldown: 0.8,

		SpeedMultipliers: map[mask.Kind]float64{},

		SkillCooldown:       3,
		DashSpeed:           15,
		DashDuration:        0.3,
		TeleportMaxDist:     6,
		TeleportBackoff:     0.5,
		TeleportProbeHeight: 1,

		StunDeceleration: 30,

		GroundCheckOffset: mgl64.Vec3{0, -1, 0},
		GroundCheckRadius: 0.4,
	}
}

// SpeedMultiplier is the product of every transformation multiplier.
func (c *MovementConfig) SpeedMultiplier() float64 {
	m := 1.0
	for _, kind := range mask.All {
		if v, ok := c.SpeedMultipliers[kind]; ok {
			m *= v
		}
	}
	return m
}

// SetSpeedMultiplier is the only mutation performed on a live config.
func (c *MovementConfig) SetSpeedMultiplier(kind mask.Kind, value float64) {
	if c.SpeedMultipliers == nil {
		c.SpeedMultipliers = map[mask.Kind]float64{}
	}
	c.SpeedMultipliers[kind] = value
}

// ResetSpeedMultipliers drops every transformation multiplier.
func (c *MovementConfig) ResetSpeedMultipliers() {
	c.SpeedMultipliers = map[mask.Kind]float64{}
}

// Clone returns a deep copy, used to give each simulating process its own
// configuration.
func (c *MovementConfig) Clone() *MovementConfig {
	clone := *c
	clone.JumpCurve = append(Curve(nil), c.JumpCurve...)
	clone.SpeedMultipliers = make(map[mask.Kind]float64, len(c.SpeedMultipliers))
	for k, v := range c.SpeedMultipliers {
		clone.SpeedMultipliers[k] = v
	}
	return &clone
}
