package game

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/osmauxi/gjRepository/pkg/game/statetag"
)

// InputCommand is the per-tick intent of an entity's owner. Jump, Attack and
// Skill are edge-triggered: they are consumed by the first step that reads
// them and never queued.
type InputCommand struct {
	_ struct{} `cbor:",toarray"`

	Sequence uint32
	Move     mgl64.Vec2
	// AimYaw is in degrees, zero facing +Z.
	AimYaw float64
	Jump   bool
	Attack bool
	Skill  bool
	// Camera basis vectors, already projected onto the horizontal plane by the
	// camera collaborator.
	CameraForward mgl64.Vec3
	CameraRight   mgl64.Vec3
}

// NewInputCommand returns a neutral command with the world basis as camera.
func NewInputCommand() InputCommand {
	return InputCommand{
		CameraForward: Forward,
		CameraRight:   mgl64.Vec3{1, 0, 0},
	}
}

// IsMoving reports whether the move vector carries intent.
func (c InputCommand) IsMoving() bool {
	return c.Move.Dot(c.Move) > 0.01
}

// WithoutActions clears the edge-triggered flags so a held command does not
// fire the same action twice.
func (c InputCommand) WithoutActions() InputCommand {
	c.Jump = false
	c.Attack = false
	c.Skill = false
	return c
}

// EntityState is the complete snapshot of one character at one tick. It is
// always sent whole so a dropped update heals with the next one.
type EntityState struct {
	_ struct{} `cbor:",toarray"`

	Position mgl64.Vec3
	Rotation mgl64.Quat
	Velocity mgl64.Vec3

	IsGrounded   bool
	IsAttacking  bool
	IsJumping    bool
	IsUsingSkill bool
	IsDead       bool

	// Timers count down in seconds and stop at zero.
	JumpTimer           float64
	JumpCooldownTimer   float64
	AttackDurationTimer float64
	AttackCooldownTimer float64
	SkillDurationTimer  float64
	SkillCooldownTimer  float64
	StunTimer           float64

	Tag  statetag.ID
	Tick uint32
}

// NewEntityState returns the spawn state: every flag false and tag Idle.
func NewEntityState(position mgl64.Vec3, yaw float64) EntityState {
	return EntityState{
		Position: position,
		Rotation: YawRotation(yaw),
		Tag:      statetag.Idle,
	}
}

// Transform is the visual placement of an entity.
type Transform struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

func (s EntityState) Transform() Transform {
	return Transform{Position: s.Position, Rotation: s.Rotation}
}

// Yaw returns the facing of the state in degrees.
func (s EntityState) Yaw() float64 {
	f := Facing(s.Rotation)
	return math.Atan2(f.X(), f.Z()) / RAD
}
