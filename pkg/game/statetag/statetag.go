package statetag

import "strconv"

// ID is the externally visible categorical state of an entity. It is derived
// from the state flags at the end of every simulation step.
type ID uint8

const (
	Idle ID = iota
	Moving
	Falling
	Attacking
	Skill
	Dead
)

func (id ID) String() string {
	switch id {
	case Idle:
		return "idle"
	case Moving:
		return "moving"
	case Falling:
		return "falling"
	case Attacking:
		return "attacking"
	case Skill:
		return "skill"
	case Dead:
		return "dead"
	default:
		return strconv.Itoa(int(id))
	}
}
