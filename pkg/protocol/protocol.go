package protocol

import (
	"fmt"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/osmauxi/gjRepository/pkg/game"
	"github.com/osmauxi/gjRepository/pkg/game/authority"
	"github.com/osmauxi/gjRepository/pkg/game/mask"
)

// The participant id of the authority.
const Authority uint32 = 0

// Lane selects the delivery guarantee of an envelope.
type Lane uint8

const (
	// Per-tick input and routine snapshots. At most once, may be dropped.
	LaneUnreliable Lane = iota
	// Forced snapshots, activation and death. Delivered in order.
	LaneReliable
)

func (l Lane) String() string {
	switch l {
	case LaneUnreliable:
		return "unreliable"
	case LaneReliable:
		return "reliable"
	}
	return strconv.Itoa(int(l))
}

// Channel is the ENet channel a lane maps to.
func (l Lane) Channel() uint8 {
	return uint8(l)
}

type Kind uint8

const (
	// Local events raised by transports, never sent on the wire.
	KindJoin Kind = iota
	KindLeave

	KindHello
	KindSpawn
	KindDespawn
	KindInput
	KindSnapshot
	KindActivate
	KindTransformed
	KindPickup
	KindDeath
	KindKnockback
	KindRespawn
)

func (k Kind) String() string {
	switch k {
	case KindJoin:
		return "join"
	case KindLeave:
		return "leave"
	case KindHello:
		return "hello"
	case KindSpawn:
		return "spawn"
	case KindDespawn:
		return "despawn"
	case KindInput:
		return "input"
	case KindSnapshot:
		return "snapshot"
	case KindActivate:
		return "activate"
	case KindTransformed:
		return "transformed"
	case KindPickup:
		return "pickup"
	case KindDeath:
		return "death"
	case KindKnockback:
		return "knockback"
	case KindRespawn:
		return "respawn"
	}
	return strconv.Itoa(int(k))
}

// Lane is where messages of this kind travel unless the sender says
// otherwise.
func (k Kind) Lane() Lane {
	switch k {
	case KindInput, KindSnapshot:
		return LaneUnreliable
	}
	return LaneReliable
}

// Envelope is the unit every transport carries.
type Envelope struct {
	_ struct{} `cbor:",toarray"`

	Kind   Kind
	Lane   Lane
	Entity uint32
	// From is filled in by the receiving transport where it can tell.
	From uint32
	// To is a participant id, or Broadcast.
	To      uint32
	Payload []byte
}

// Broadcast addresses every participant.
const Broadcast uint32 = 0

func New(kind Kind, entity uint32, body interface{}) (Envelope, error) {
	env := Envelope{
		Kind:   kind,
		Lane:   kind.Lane(),
		Entity: entity,
	}

	if body == nil {
		return env, nil
	}

	payload, err := cbor.Marshal(body)
	if err != nil {
		return env, fmt.Errorf("failed to encode %s body: %w", kind, err)
	}
	env.Payload = payload
	return env, nil
}

func (e Envelope) WithLane(lane Lane) Envelope {
	e.Lane = lane
	return e
}

func (e Envelope) WithTo(to uint32) Envelope {
	e.To = to
	return e
}

func (e Envelope) Encode() ([]byte, error) {
	return cbor.Marshal(e)
}

func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return env, nil
}

// Body decodes the payload of an envelope.
func Body[T any](env Envelope) (T, error) {
	var body T
	if err := cbor.Unmarshal(env.Payload, &body); err != nil {
		return body, fmt.Errorf("failed to decode %s body: %w", env.Kind, err)
	}
	return body, nil
}

// Hello welcomes a participant and tells it which entity it owns.
type Hello struct {
	_ struct{} `cbor:",toarray"`

	Participant uint32
	Entity      uint32
	TickRate    float64
}

type Spawn struct {
	_ struct{} `cbor:",toarray"`

	Owner uint32
	Mode  authority.Mode
	State game.EntityState
	Mask  mask.Kind
}

type Input struct {
	_ struct{} `cbor:",toarray"`

	Command game.InputCommand
}

type Snapshot struct {
	_ struct{} `cbor:",toarray"`

	State game.EntityState
}

// Activate asks the authority to transform the sender's entity.
type Activate struct {
	_ struct{} `cbor:",toarray"`

	Mask mask.Kind
}

type Transformed struct {
	_ struct{} `cbor:",toarray"`

	Mask mask.Kind
}

type Pickup struct {
	_ struct{} `cbor:",toarray"`

	ID uint32
}

type Death struct {
	_ struct{} `cbor:",toarray"`

	State game.EntityState
}

type Knockback struct {
	_ struct{} `cbor:",toarray"`

	Direction mgl64.Vec3
	Force     float64
	Stun      float64
}

type Respawn struct {
	_ struct{} `cbor:",toarray"`

	Position mgl64.Vec3
	Yaw      float64
}
