package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avvvet/bingo-sync/internal/comm"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultAckDelay  = 100 * time.Millisecond
	DefaultHeartbeat = 5 * time.Second
)

// Ack is handed to an emitter's callback. It only says the emit was accepted
// locally; nobody confirms remote receipt.
type Ack struct {
	Success bool `json:"success"`
}

type Handler func(payload json.RawMessage)

type Subscription uint64

type handlerEntry struct {
	id     Subscription
	fn     Handler
	active atomic.Bool
}

// Socket is one context's view of a broadcast channel. It behaves like a
// socket.io client: Emit reaches every other context on the channel and is
// echoed to this context's own handlers.
//
// Local echo runs synchronously on the emitting goroutine. Deliveries from other
// contexts arrive on the transport's goroutines, so handlers must be safe for
// concurrent use.
type Socket struct {
	id        string
	channel   string
	transport Transport
	ackDelay  time.Duration
	heartbeat time.Duration

	mu       sync.RWMutex
	handlers map[string][]*handlerEntry
	nextID   Subscription

	connMu    sync.Mutex
	endpoint  Endpoint
	connected bool
	dropped   bool // lost a connection since the last connect
	closed    bool

	stop      chan struct{}
	closeOnce sync.Once
}

type Option func(*Socket)

func WithID(id string) Option {
	return func(s *Socket) { s.id = id }
}

func WithAckDelay(d time.Duration) Option {
	return func(s *Socket) {
		if d > 0 {
			s.ackDelay = d
		}
	}
}

func WithHeartbeat(d time.Duration) Option {
	return func(s *Socket) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// New creates a socket on channel and starts its heartbeat. Call Connect to
// attach it to the channel.
func New(transport Transport, channel string, opts ...Option) *Socket {
	s := &Socket{
		channel:   channel,
		transport: transport,
		ackDelay:  DefaultAckDelay,
		heartbeat: DefaultHeartbeat,
		handlers:  make(map[string][]*handlerEntry),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.New().String()
	}

	go s.heartbeatLoop()
	return s
}

func (s *Socket) ID() string { return s.id }

func (s *Socket) Channel() string { return s.channel }

func (s *Socket) Connected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.connected
}

// Connect attaches the socket to its channel. Connecting again after a drop also
// dispatches a reconnect event.
func (s *Socket) Connect() error {
	s.connMu.Lock()
	if s.closed {
		s.connMu.Unlock()
		return ErrClosed
	}
	if s.connected {
		s.connMu.Unlock()
		return nil
	}

	ep, err := s.transport.Open(s.channel, s.receive)
	if err != nil {
		s.connMu.Unlock()
		return fmt.Errorf("open channel %s: %w", s.channel, err)
	}
	s.endpoint = ep
	s.connected = true
	reconnect := s.dropped
	s.dropped = false
	s.connMu.Unlock()

	s.dispatch(comm.TopicConnect, nil)
	if reconnect {
		s.dispatch(comm.TopicReconnect, nil)
	}
	return nil
}

// Disconnect releases the channel. The heartbeat will reconnect on its next tick
// unless the socket is closed.
func (s *Socket) Disconnect() {
	s.connMu.Lock()
	if !s.connected {
		s.connMu.Unlock()
		return
	}
	ep := s.endpoint
	s.endpoint = nil
	s.connected = false
	s.dropped = true
	s.connMu.Unlock()

	if err := ep.Close(); err != nil {
		log.Warnf("[Socket.Disconnect] closing channel %s: %s", s.channel, err)
	}
	s.dispatch(comm.TopicDisconnect, nil)
}

// drop marks ep as lost after a failed post.
func (s *Socket) drop(ep Endpoint) {
	s.connMu.Lock()
	if !s.connected || s.endpoint != ep {
		s.connMu.Unlock()
		return
	}
	s.endpoint = nil
	s.connected = false
	s.dropped = true
	s.connMu.Unlock()

	log.Warnf("[Socket] channel %s went away, waiting for heartbeat", s.channel)
	s.dispatch(comm.TopicDisconnect, nil)
}

// Emit delivers payload to this socket's handlers for topic, then posts it to the
// other contexts. The post is dropped when disconnected. ack, when given, is
// called after the ack delay whether or not anyone received the message.
func (s *Socket) Emit(topic string, payload interface{}, ack func(Ack)) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}

	s.dispatch(topic, data)
	s.post(topic, data)

	if ack != nil {
		time.AfterFunc(s.ackDelay, func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("Error [Socket.Emit] ack for %s panicked: %v", topic, r)
				}
			}()
			ack(Ack{Success: true})
		})
	}
	return nil
}

func (s *Socket) post(topic string, data json.RawMessage) {
	s.connMu.Lock()
	ep, connected := s.endpoint, s.connected
	s.connMu.Unlock()

	if !connected {
		log.Debugf("[Socket.Emit] %s not delivered remotely, socket disconnected", topic)
		return
	}

	raw, err := json.Marshal(comm.WSMessage{Type: topic, Data: data, SocketId: s.id})
	if err != nil {
		log.Errorf("Error [Socket.Emit] marshaling envelope for %s: %s", topic, err)
		return
	}
	if err := ep.Post(raw); err != nil {
		log.Warnf("[Socket.Emit] posting %s on %s: %s", topic, s.channel, err)
		if errors.Is(err, ErrClosed) {
			s.drop(ep)
		}
	}
}

func (s *Socket) receive(data []byte) {
	var msg comm.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Errorf("Error [Socket.receive] malformed message on %s: %s", s.channel, err)
		return
	}
	if msg.SocketId == s.id || msg.Type == "" {
		return
	}
	s.dispatch(msg.Type, msg.Data)
}

// On registers h for topic and returns a handle for Off.
func (s *Socket) On(topic string, h Handler) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	e := &handlerEntry{id: s.nextID, fn: h}
	e.active.Store(true)
	s.handlers[topic] = append(s.handlers[topic], e)
	return e.id
}

// Off removes the given subscriptions, or every handler of topic when none are
// given. Deliveries already running may still finish.
func (s *Socket) Off(topic string, subs ...Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.handlers[topic]
	if len(subs) == 0 {
		for _, e := range entries {
			e.active.Store(false)
		}
		delete(s.handlers, topic)
		return
	}

	remove := make(map[Subscription]bool, len(subs))
	for _, id := range subs {
		remove[id] = true
	}
	kept := entries[:0:0]
	for _, e := range entries {
		if remove[e.id] {
			e.active.Store(false)
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == 0 {
		delete(s.handlers, topic)
		return
	}
	s.handlers[topic] = kept
}

func (s *Socket) dispatch(topic string, data json.RawMessage) {
	s.mu.RLock()
	entries := append([]*handlerEntry(nil), s.handlers[topic]...)
	s.mu.RUnlock()

	for _, e := range entries {
		if !e.active.Load() {
			continue
		}
		s.invoke(topic, e, data)
	}
}

func (s *Socket) invoke(topic string, e *handlerEntry, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Error [Socket.dispatch] handler for %s panicked: %v", topic, r)
		}
	}()
	e.fn(data)
}

func (s *Socket) heartbeatLoop() {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if s.Connected() {
				continue
			}
			err := s.Connect()
			switch {
			case err == nil:
				log.Infof("[Socket] %s reconnected to channel %s", s.id, s.channel)
			case errors.Is(err, ErrClosed):
				return
			default:
				log.Warnf("[Socket] reconnect to channel %s failed: %s", s.channel, err)
			}
		}
	}
}

// Close stops the heartbeat, releases the channel and drops every handler. It is
// safe to call more than once.
func (s *Socket) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)

		s.connMu.Lock()
		s.closed = true
		ep, wasConnected := s.endpoint, s.connected
		s.endpoint = nil
		s.connected = false
		s.connMu.Unlock()

		if ep != nil {
			if err := ep.Close(); err != nil {
				log.Warnf("[Socket.Close] closing channel %s: %s", s.channel, err)
			}
		}
		if wasConnected {
			s.dispatch(comm.TopicDisconnect, nil)
		}

		s.mu.Lock()
		for _, entries := range s.handlers {
			for _, e := range entries {
				e.active.Store(false)
			}
		}
		s.handlers = make(map[string][]*handlerEntry)
		s.mu.Unlock()
	})
}
