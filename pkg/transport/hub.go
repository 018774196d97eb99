package transport

import (
	"sort"

	"github.com/sasha-s/go-deadlock"

	"github.com/osmauxi/gjRepository/pkg/protocol"
)

// Hub connects an authority endpoint with any number of participant
// endpoints inside one process. Unreliable envelopes are dropped at a fixed,
// deterministic rate.
type Hub struct {
	mutex    deadlock.Mutex
	server   *Endpoint
	clients  map[uint32]*Endpoint
	nextID   uint32
	dropRate float64
	debt     float64
	dropped  int
}

func NewHub(dropRate float64) *Hub {
	h := &Hub{
		clients:  make(map[uint32]*Endpoint),
		dropRate: dropRate,
	}
	h.server = &Endpoint{
		hub:      h,
		id:       protocol.Authority,
		incoming: make(chan protocol.Envelope, MESSAGE_LIMIT),
	}
	return h
}

// Server returns the authority's endpoint.
func (h *Hub) Server() *Endpoint {
	return h.server
}

// Connect adds a participant and announces it to the authority.
func (h *Hub) Connect() *Endpoint {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.nextID++
	client := &Endpoint{
		hub:      h,
		id:       h.nextID,
		incoming: make(chan protocol.Envelope, MESSAGE_LIMIT),
	}
	h.clients[client.id] = client

	deliver(h.server.incoming, joinEvent(client.id))
	return client
}

// Dropped is the number of unreliable envelopes discarded so far.
func (h *Hub) Dropped() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.dropped
}

// shouldDrop must be called with the mutex held.
func (h *Hub) shouldDrop(env protocol.Envelope) bool {
	if env.Lane != protocol.LaneUnreliable || h.dropRate <= 0 {
		return false
	}

	h.debt += h.dropRate
	if h.debt >= 1 {
		h.debt -= 1
		h.dropped++
		return true
	}
	return false
}

func (h *Hub) route(from *Endpoint, env protocol.Envelope) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if from.closed {
		return ErrClosed
	}

	env.From = from.id

	if from != h.server {
		if h.shouldDrop(env) {
			return nil
		}
		return deliver(h.server.incoming, env)
	}

	if env.To != protocol.Broadcast {
		client, ok := h.clients[env.To]
		if !ok {
			return ErrNoPeer
		}
		if h.shouldDrop(env) {
			return nil
		}
		return deliver(client.incoming, env)
	}

	ids := make([]uint32, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var result error
	for _, id := range ids {
		client := h.clients[id]
		if h.shouldDrop(env) {
			continue
		}
		if err := deliver(client.incoming, env); err != nil {
			result = err
		}
	}
	return result
}

func (h *Hub) disconnect(client *Endpoint) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if client.closed {
		return
	}
	client.closed = true

	if client == h.server {
		return
	}

	delete(h.clients, client.id)
	deliver(h.server.incoming, leaveEvent(client.id))
}

// Endpoint is one side of a Hub connection.
type Endpoint struct {
	hub      *Hub
	id       uint32
	incoming chan protocol.Envelope
	closed   bool
}

var _ Transport = (*Endpoint)(nil)

func (e *Endpoint) ID() uint32 {
	return e.id
}

func (e *Endpoint) Send(env protocol.Envelope) error {
	return e.hub.route(e, env)
}

func (e *Endpoint) Incoming() <-chan protocol.Envelope {
	return e.incoming
}

func (e *Endpoint) Close() error {
	e.hub.disconnect(e)
	return nil
}
