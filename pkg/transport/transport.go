package transport

import (
	"errors"

	"github.com/osmauxi/gjRepository/pkg/protocol"
)

// MESSAGE_LIMIT bounds every per-peer queue.
const MESSAGE_LIMIT = 1024

var (
	ErrClosed   = errors.New("transport closed")
	ErrBackedUp = errors.New("peer queue full")
	ErrNoPeer   = errors.New("no such peer")
)

// Transport moves envelopes between the authority and its participants. A
// server-side transport addresses peers with Envelope.To; a client-side
// transport always sends to the authority.
//
// Incoming never blocks the network goroutines for long: unreliable envelopes
// are dropped when the reader falls behind.
type Transport interface {
	Send(env protocol.Envelope) error
	Incoming() <-chan protocol.Envelope
	Close() error
}

// deliver hands an envelope to a queue, dropping unreliable traffic when the
// queue is full.
func deliver(queue chan protocol.Envelope, env protocol.Envelope) error {
	select {
	case queue <- env:
		return nil
	default:
	}

	if env.Lane == protocol.LaneUnreliable {
		return nil
	}
	return ErrBackedUp
}

func joinEvent(participant uint32) protocol.Envelope {
	return protocol.Envelope{
		Kind: protocol.KindJoin,
		Lane: protocol.LaneReliable,
		From: participant,
	}
}

func leaveEvent(participant uint32) protocol.Envelope {
	return protocol.Envelope{
		Kind: protocol.KindLeave,
		Lane: protocol.LaneReliable,
		From: participant,
	}
}
