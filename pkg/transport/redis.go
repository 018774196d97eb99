package transport

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-redis/redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"

	"github.com/osmauxi/gjRepository/pkg/protocol"
)

const REDIS_CHANNEL_PREFIX = "gj-session-"

// redisFrame is what travels over the channel. Participants pick a random
// key when they join and put it on everything they publish; the authority
// numbers participants by key and addresses its replies with the same key.
// Key 0 marks a broadcast.
type redisFrame struct {
	_ struct{} `cbor:",toarray"`

	Upstream bool
	Key      uint64
	Envelope protocol.Envelope
}

// redisRoster is the authority's table of joined keys. Participant ids are
// only ever handed out here, so an envelope is attributed to whoever holds
// the key it was published under.
type redisRoster struct {
	mutex  deadlock.Mutex
	nextID uint32
	ids    map[uint64]uint32
	keys   map[uint32]uint64
}

func newRedisRoster() *redisRoster {
	return &redisRoster{
		ids:  make(map[uint64]uint32),
		keys: make(map[uint32]uint64),
	}
}

// admit turns an upstream frame into the envelope the session sees. Frames
// under unknown keys are refused, except for a Join, which assigns the key
// the next participant id.
func (r *redisRoster) admit(frame redisFrame) (protocol.Envelope, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	id, known := r.ids[frame.Key]
	switch frame.Envelope.Kind {
	case protocol.KindJoin:
		if known || frame.Key == 0 {
			return protocol.Envelope{}, false
		}
		r.nextID++
		r.ids[frame.Key] = r.nextID
		r.keys[r.nextID] = frame.Key
		return joinEvent(r.nextID), true
	case protocol.KindLeave:
		if !known {
			return protocol.Envelope{}, false
		}
		delete(r.ids, frame.Key)
		delete(r.keys, id)
		return leaveEvent(id), true
	}

	if !known {
		return protocol.Envelope{}, false
	}
	env := frame.Envelope
	env.From = id
	env.To = protocol.Authority
	return env, true
}

func (r *redisRoster) key(participant uint32) (uint64, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	key, ok := r.keys[participant]
	return key, ok
}

// Redis relays envelopes through one pub/sub channel per session. There is
// no per-message delivery guarantee, so both lanes behave like the
// unreliable one; pub/sub does preserve order.
//
// Keys keep participants from speaking for each other, but they travel in
// the clear: anyone who can subscribe to the channel can read them. Restrict
// channel access with Redis ACLs when participants are not trusted.
type Redis struct {
	client  *redis.Client
	pubsub  *redis.PubSub
	channel string

	// Set on the authority.
	roster *redisRoster
	// Set on a participant.
	key uint64

	incoming chan protocol.Envelope
	cancel   context.CancelFunc
}

var _ Transport = (*Redis)(nil)

func redisChannel(session string) string {
	return REDIS_CHANNEL_PREFIX + session
}

func subscribe(ctx context.Context, client *redis.Client, session string) (*Redis, error) {
	channel := redisChannel(session)
	pubsub := client.Subscribe(ctx, channel)

	// Wait for the subscription to be confirmed so nothing published after
	// this returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	return &Redis{
		client:   client,
		pubsub:   pubsub,
		channel:  channel,
		incoming: make(chan protocol.Envelope, MESSAGE_LIMIT),
	}, nil
}

func (r *Redis) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	go r.receive(ctx)
}

// NewRedisServer listens for participants of a session.
func NewRedisServer(ctx context.Context, client *redis.Client, session string) (*Redis, error) {
	r, err := subscribe(ctx, client, session)
	if err != nil {
		return nil, err
	}
	r.roster = newRedisRoster()
	r.start(ctx)
	return r, nil
}

func randomKey() (uint64, error) {
	var buffer [8]byte
	for {
		if _, err := rand.Read(buffer[:]); err != nil {
			return 0, err
		}
		if key := binary.LittleEndian.Uint64(buffer[:]); key != 0 {
			return key, nil
		}
	}
}

// NewRedisClient joins a session. The authority assigns the participant id,
// which arrives in its Hello.
func NewRedisClient(ctx context.Context, client *redis.Client, session string) (*Redis, error) {
	key, err := randomKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate participant key: %w", err)
	}

	r, err := subscribe(ctx, client, session)
	if err != nil {
		return nil, err
	}
	r.key = key
	r.start(ctx)

	if err := r.Send(protocol.Envelope{Kind: protocol.KindJoin, Lane: protocol.LaneReliable}); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// accept decides what a frame on the channel means to this end, if anything.
func (r *Redis) accept(frame redisFrame) (protocol.Envelope, bool) {
	if r.roster != nil {
		if !frame.Upstream {
			return protocol.Envelope{}, false
		}
		return r.roster.admit(frame)
	}

	if frame.Upstream || (frame.Key != 0 && frame.Key != r.key) {
		return protocol.Envelope{}, false
	}
	env := frame.Envelope
	env.From = protocol.Authority
	return env, true
}

func (r *Redis) receive(ctx context.Context) {
	messages := r.pubsub.Channel()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var frame redisFrame
			if err := cbor.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				log.Debug().Err(err).Msg("dropping malformed redis message")
				continue
			}
			env, ok := r.accept(frame)
			if !ok {
				continue
			}
			deliver(r.incoming, env)
		case <-ctx.Done():
			return
		}
	}
}

// frame wraps an outgoing envelope for the channel.
func (r *Redis) frame(env protocol.Envelope) (redisFrame, error) {
	if r.roster == nil {
		env.From = 0
		env.To = protocol.Authority
		return redisFrame{Upstream: true, Key: r.key, Envelope: env}, nil
	}

	env.From = protocol.Authority
	if env.To == protocol.Broadcast {
		return redisFrame{Envelope: env}, nil
	}
	key, ok := r.roster.key(env.To)
	if !ok {
		return redisFrame{}, ErrNoPeer
	}
	return redisFrame{Key: key, Envelope: env}, nil
}

func (r *Redis) Send(env protocol.Envelope) error {
	frame, err := r.frame(env)
	if err != nil {
		return err
	}

	data, err := cbor.Marshal(frame)
	if err != nil {
		return err
	}
	return r.client.Publish(context.Background(), r.channel, data).Err()
}

func (r *Redis) Incoming() <-chan protocol.Envelope {
	return r.incoming
}

func (r *Redis) Close() error {
	if r.roster == nil {
		err := r.Send(protocol.Envelope{Kind: protocol.KindLeave, Lane: protocol.LaneReliable})
		if err != nil {
			log.Debug().Err(err).Msg("failed to send leave")
		}
	}
	r.cancel()
	return r.pubsub.Close()
}
