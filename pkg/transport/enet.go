package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/codecat/go-enet"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"

	"github.com/osmauxi/gjRepository/pkg/protocol"
)

const (
	ENET_CHANNELS = 2
	// Milliseconds each service call may wait for network events.
	ENET_SERVICE_TIMEOUT = 5
)

var initENet sync.Once

func flagsFor(lane protocol.Lane) enet.PacketFlags {
	if lane == protocol.LaneReliable {
		return enet.PacketFlagReliable
	}
	return enet.PacketFlagUnsequenced
}

// ENet carries envelopes over UDP. Lanes map onto ENet channels: channel 0 is
// unsequenced, channel 1 reliable. Every host call happens on the service
// goroutine.
type ENet struct {
	host   enet.Host
	server bool
	// The authority, on the client side.
	remote enet.Peer

	mutex  deadlock.RWMutex
	peers  map[uint32]enet.Peer
	ids    map[enet.Peer]uint32
	nextID uint32

	incoming chan protocol.Envelope
	outbox   chan protocol.Envelope
	cancel   context.CancelFunc
	done     chan struct{}
}

var _ Transport = (*ENet)(nil)

func newENet(host enet.Host, server bool) *ENet {
	return &ENet{
		host:     host,
		server:   server,
		peers:    make(map[uint32]enet.Peer),
		ids:      make(map[enet.Peer]uint32),
		incoming: make(chan protocol.Envelope, MESSAGE_LIMIT),
		outbox:   make(chan protocol.Envelope, MESSAGE_LIMIT),
		done:     make(chan struct{}),
	}
}

// ListenENet accepts participants on the given UDP port.
func ListenENet(ctx context.Context, port int, maxPeers int) (*ENet, error) {
	initENet.Do(func() { enet.Initialize() })

	host, err := enet.NewHost(enet.NewListenAddress(uint16(port)), uint64(maxPeers), ENET_CHANNELS, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to bind ENet port %d: %w", port, err)
	}

	e := newENet(host, true)
	ctx, e.cancel = context.WithCancel(ctx)
	go e.run(ctx)

	log.Info().Int("port", port).Msg("listening on enet")
	return e, nil
}

// DialENet connects to an authority.
func DialENet(ctx context.Context, address string, port int) (*ENet, error) {
	initENet.Do(func() { enet.Initialize() })

	host, err := enet.NewHost(nil, 1, ENET_CHANNELS, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create ENet client host: %w", err)
	}

	peer, err := host.Connect(enet.NewAddress(address, uint16(port)), ENET_CHANNELS, 0)
	if err != nil {
		host.Destroy()
		return nil, fmt.Errorf("failed to connect to %s:%d: %w", address, port, err)
	}

	e := newENet(host, false)
	e.remote = peer
	ctx, e.cancel = context.WithCancel(ctx)
	go e.run(ctx)

	return e, nil
}

// Peers is the number of connected participants.
func (e *ENet) Peers() int {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return len(e.peers)
}

func (e *ENet) Send(env protocol.Envelope) error {
	select {
	case <-e.done:
		return ErrClosed
	default:
	}
	return deliver(e.outbox, env)
}

func (e *ENet) Incoming() <-chan protocol.Envelope {
	return e.incoming
}

func (e *ENet) Close() error {
	e.cancel()
	<-e.done
	return nil
}

func (e *ENet) addPeer(peer enet.Peer) uint32 {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.nextID++
	e.peers[e.nextID] = peer
	e.ids[peer] = e.nextID
	return e.nextID
}

func (e *ENet) removePeer(peer enet.Peer) (uint32, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	id, ok := e.ids[peer]
	if !ok {
		return 0, false
	}
	delete(e.ids, peer)
	delete(e.peers, id)
	return id, true
}

func (e *ENet) lookup(peer enet.Peer) (uint32, bool) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	id, ok := e.ids[peer]
	return id, ok
}

func (e *ENet) transmit(env protocol.Envelope) {
	data, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Msg("could not encode envelope")
		return
	}

	channel := env.Lane.Channel()
	flags := flagsFor(env.Lane)

	if !e.server {
		if err := e.remote.SendBytes(data, channel, flags); err != nil {
			log.Debug().Err(err).Msg("enet send failed")
		}
		return
	}

	e.mutex.RLock()
	var targets []enet.Peer
	if env.To == protocol.Broadcast {
		for _, peer := range e.peers {
			targets = append(targets, peer)
		}
	} else if peer, ok := e.peers[env.To]; ok {
		targets = append(targets, peer)
	}
	e.mutex.RUnlock()

	for _, peer := range targets {
		if err := peer.SendBytes(data, channel, flags); err != nil {
			log.Debug().Err(err).Msg("enet send failed")
		}
	}
}

func (e *ENet) run(ctx context.Context) {
	defer close(e.done)
	defer e.host.Destroy()

	for {
		select {
		case <-ctx.Done():
			if e.remote != nil {
				e.remote.Disconnect(0)
				e.host.Service(ENET_SERVICE_TIMEOUT)
			}
			return
		default:
		}

	drain:
		for {
			select {
			case env := <-e.outbox:
				e.transmit(env)
			default:
				break drain
			}
		}

		event := e.host.Service(ENET_SERVICE_TIMEOUT)
		switch event.GetType() {
		case enet.EventConnect:
			if !e.server {
				continue
			}
			id := e.addPeer(event.GetPeer())
			log.Info().Uint32("participant", id).Str("address", event.GetPeer().GetAddress().String()).Msg("peer joined (enet)")
			deliver(e.incoming, joinEvent(id))

		case enet.EventDisconnect:
			if !e.server {
				deliver(e.incoming, leaveEvent(protocol.Authority))
				continue
			}
			if id, ok := e.removePeer(event.GetPeer()); ok {
				log.Info().Uint32("participant", id).Msg("peer left (enet)")
				deliver(e.incoming, leaveEvent(id))
			}

		case enet.EventReceive:
			packet := event.GetPacket()
			data := append([]byte(nil), packet.GetData()...)
			packet.Destroy()

			env, err := protocol.DecodeEnvelope(data)
			if err != nil {
				log.Debug().Err(err).Msg("dropping malformed enet packet")
				continue
			}

			if e.server {
				id, ok := e.lookup(event.GetPeer())
				if !ok {
					continue
				}
				env.From = id
			} else {
				env.From = protocol.Authority
			}
			env.Lane = protocol.Lane(event.GetChannelID())

			deliver(e.incoming, env)
		}
	}
}
