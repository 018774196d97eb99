package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mileusna/useragent"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"nhooyr.io/websocket"

	"github.com/osmauxi/gjRepository/pkg/protocol"
)

const WRITE_TIMEOUT = 5 * time.Second

func writeTimeout(ctx context.Context, timeout time.Duration, c *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageBinary, msg)
}

type wsClient struct {
	id        uint32
	send      chan []byte
	closeSlow func()
}

// WebSocketServer accepts participants over WebSocket. Envelopes travel as
// binary CBOR frames; the lane rides inside the envelope.
type WebSocketServer struct {
	mutex    deadlock.RWMutex
	clients  map[uint32]*wsClient
	nextID   uint32
	incoming chan protocol.Envelope
	closed   bool
}

var _ Transport = (*WebSocketServer)(nil)

func NewWebSocketServer() *WebSocketServer {
	return &WebSocketServer{
		clients:  make(map[uint32]*wsClient),
		incoming: make(chan protocol.Envelope, MESSAGE_LIMIT),
	}
}

func (s *WebSocketServer) addClient() *wsClient {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.nextID++
	client := &wsClient{
		id:   s.nextID,
		send: make(chan []byte, MESSAGE_LIMIT),
	}
	s.clients[client.id] = client
	return client
}

func (s *WebSocketServer) removeClient(client *wsClient) {
	s.mutex.Lock()
	delete(s.clients, client.id)
	s.mutex.Unlock()
}

func (s *WebSocketServer) Send(env protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.closed {
		return ErrClosed
	}

	if env.To != protocol.Broadcast {
		client, ok := s.clients[env.To]
		if !ok {
			return ErrNoPeer
		}
		s.queue(client, env.Lane, data)
		return nil
	}

	for _, client := range s.clients {
		s.queue(client, env.Lane, data)
	}
	return nil
}

// queue drops unreliable frames for slow clients and disconnects clients
// that cannot keep up with reliable ones.
func (s *WebSocketServer) queue(client *wsClient, lane protocol.Lane, data []byte) {
	select {
	case client.send <- data:
	default:
		if lane == protocol.LaneReliable && client.closeSlow != nil {
			go client.closeSlow()
		}
	}
}

func (s *WebSocketServer) Incoming() <-chan protocol.Envelope {
	return s.incoming
}

func (s *WebSocketServer) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed = true
	return nil
}

func (s *WebSocketServer) handleClient(ctx context.Context, c *websocket.Conn, host string, agent useragent.UserAgent) error {
	client := s.addClient()
	defer s.removeClient(client)

	client.closeSlow = func() {
		c.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
	}

	logger := log.With().
		Uint32("participant", client.id).
		Str("host", host).
		Str("browser", agent.Name).
		Str("os", agent.OS).
		Bool("mobile", agent.Mobile).
		Logger()

	logger.Info().Msg("peer joined (ws)")
	deliver(s.incoming, joinEvent(client.id))
	defer deliver(s.incoming, leaveEvent(client.id))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	receive := make(chan []byte)
	go func() {
		defer cancel()
		for {
			typ, message, err := c.Read(ctx)
			if err != nil {
				return
			}
			if typ != websocket.MessageBinary {
				continue
			}
			select {
			case receive <- message:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case msg := <-receive:
			env, err := protocol.DecodeEnvelope(msg)
			if err != nil {
				logger.Debug().Err(err).Msg("dropping malformed frame")
				continue
			}
			env.From = client.id
			deliver(s.incoming, env)
		case msg := <-client.send:
			err := writeTimeout(ctx, WRITE_TIMEOUT, c, msg)
			if err != nil {
				logger.Error().Msg("peer missed write timeout; disconnecting")
				return err
			}
		case <-ctx.Done():
			logger.Info().Msg("peer left (ws)")
			return ctx.Err()
		}
	}
}

func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error().Err(err).Msg("error accepting peer connection")
		return
	}
	defer c.Close(websocket.StatusInternalError, "operational fault during relay")

	hostname := r.RemoteAddr
	if original, ok := r.Header["X-Forwarded-For"]; ok {
		hostname = original[0]
	}

	err = s.handleClient(r.Context(), c, hostname, useragent.Parse(r.UserAgent()))
	if errors.Is(err, context.Canceled) {
		return
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
		websocket.CloseStatus(err) == websocket.StatusGoingAway {
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("peer connection failed")
	}
}

// WebSocketClient is a participant's connection to a WebSocketServer.
type WebSocketClient struct {
	conn     *websocket.Conn
	send     chan []byte
	incoming chan protocol.Envelope
	cancel   context.CancelFunc
	done     chan struct{}
}

var _ Transport = (*WebSocketClient)(nil)

func DialWebSocket(ctx context.Context, url string) (*WebSocketClient, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	client := &WebSocketClient{
		conn:     conn,
		send:     make(chan []byte, MESSAGE_LIMIT),
		incoming: make(chan protocol.Envelope, MESSAGE_LIMIT),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go client.read(ctx)
	go client.write(ctx)

	return client, nil
}

func (c *WebSocketClient) read(ctx context.Context) {
	defer close(c.done)
	for {
		typ, message, err := c.conn.Read(ctx)
		if err != nil {
			deliver(c.incoming, leaveEvent(protocol.Authority))
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}

		env, err := protocol.DecodeEnvelope(message)
		if err != nil {
			log.Debug().Err(err).Msg("dropping malformed frame")
			continue
		}
		env.From = protocol.Authority
		deliver(c.incoming, env)
	}
}

func (c *WebSocketClient) write(ctx context.Context) {
	for {
		select {
		case msg := <-c.send:
			if err := writeTimeout(ctx, WRITE_TIMEOUT, c.conn, msg); err != nil {
				log.Error().Err(err).Msg("failed to write to authority")
				c.cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *WebSocketClient) Send(env protocol.Envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	data, err := env.Encode()
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	default:
		if env.Lane == protocol.LaneUnreliable {
			return nil
		}
		return ErrBackedUp
	}
}

func (c *WebSocketClient) Incoming() <-chan protocol.Envelope {
	return c.incoming
}

func (c *WebSocketClient) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.cancel()
	return err
}
