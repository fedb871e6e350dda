package bus

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("bus: endpoint closed")

// Transport opens named broadcast channels. A post on an endpoint reaches the
// other endpoints of the same channel at most once, in no particular order.
type Transport interface {
	Open(channel string, deliver func(data []byte)) (Endpoint, error)
}

type Endpoint interface {
	Post(data []byte) error
	// Close is safe to call more than once.
	Close() error
}

// LocalHub connects endpoints living in one process, the same way a browser
// BroadcastChannel connects tabs of one origin.
type LocalHub struct {
	mu       sync.RWMutex
	channels map[string]map[*localEndpoint]struct{}
}

func NewLocalHub() *LocalHub {
	return &LocalHub{channels: make(map[string]map[*localEndpoint]struct{})}
}

type localEndpoint struct {
	hub     *LocalHub
	channel string
	deliver func([]byte)

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func (h *LocalHub) Open(channel string, deliver func([]byte)) (Endpoint, error) {
	ep := &localEndpoint{hub: h, channel: channel, deliver: deliver}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*localEndpoint]struct{})
	}
	h.channels[channel][ep] = struct{}{}
	return ep, nil
}

// Peers returns how many endpoints are open on a channel.
func (h *LocalHub) Peers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

func (e *localEndpoint) Post(data []byte) error {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	e.hub.mu.RLock()
	peers := make([]*localEndpoint, 0, len(e.hub.channels[e.channel]))
	for p := range e.hub.channels[e.channel] {
		if p != e {
			peers = append(peers, p)
		}
	}
	e.hub.mu.RUnlock()

	for _, p := range peers {
		msg := append([]byte(nil), data...)
		go p.receive(msg)
	}
	return nil
}

func (e *localEndpoint) receive(data []byte) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return
	}
	e.deliver(data)
}

func (e *localEndpoint) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		e.hub.mu.Lock()
		delete(e.hub.channels[e.channel], e)
		if len(e.hub.channels[e.channel]) == 0 {
			delete(e.hub.channels, e.channel)
		}
		e.hub.mu.Unlock()
	})
	return nil
}
