package game

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

func (s EntityState) Encode() ([]byte, error) {
	return cbor.Marshal(s)
}

func DecodeState(data []byte) (EntityState, error) {
	var s EntityState
	if err := cbor.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("could not decode entity state: %w", err)
	}
	return s, nil
}

func (c InputCommand) Encode() ([]byte, error) {
	return cbor.Marshal(c)
}

func DecodeInput(data []byte) (InputCommand, error) {
	var c InputCommand
	if err := cbor.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("could not decode input command: %w", err)
	}
	return c, nil
}
