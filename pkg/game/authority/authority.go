package authority

import (
	"fmt"
	"strconv"
)

// Mode is who writes an entity's canonical state.
type Mode uint8

const (
	// The server simulates from the owner's input; the owner predicts.
	Server Mode = iota
	// The owner simulates and publishes; everyone else follows.
	Owner
)

func (m Mode) String() string {
	switch m {
	case Server:
		return "server"
	case Owner:
		return "owner"
	}
	return strconv.Itoa(int(m))
}

func Parse(s string) (Mode, error) {
	switch s {
	case "server":
		return Server, nil
	case "owner":
		return Owner, nil
	}
	return Server, fmt.Errorf("unknown authority mode %q", s)
}
