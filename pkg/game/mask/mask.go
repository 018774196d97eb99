package mask

import (
	"strconv"
	"strings"
)

// Kind is a transformation an entity can take on once enough energy of that
// kind has been accumulated.
type Kind uint8

const (
	None Kind = iota
	Dear
	Panda
	Monkey
)

// All lists every transformation that can be activated.
var All = []Kind{Dear, Panda, Monkey}

func Parse(s string) Kind {
	switch strings.ToLower(s) {
	case "dear":
		return Dear
	case "panda":
		return Panda
	case "monkey":
		return Monkey
	default:
		return None
	}
}

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Dear:
		return "dear"
	case Panda:
		return "panda"
	case Monkey:
		return "monkey"
	default:
		return strconv.Itoa(int(k))
	}
}
