package transport

import (
	"context"
	"fmt"
	"sync"

	"idledger/pkg/platform/sentinel"
	"idledger/pkg/requestcontext"
)

type delivery struct {
	msg    []byte
	sender string
}

// Hub routes messages between in-process endpoints by name.
type Hub struct {
	mu        sync.RWMutex
	endpoints map[string]*Memory
}

func NewHub() *Hub {
	return &Hub{endpoints: make(map[string]*Memory)}
}

// Endpoint returns the endpoint registered under name, creating it on first use.
func (h *Hub) Endpoint(name string) *Memory {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ep, ok := h.endpoints[name]; ok {
		return ep
	}
	ep := &Memory{hub: h, name: name, inbox: make(chan delivery, 64), done: make(chan struct{})}
	h.endpoints[name] = ep
	return ep
}

// Close stops every endpoint.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ep := range h.endpoints {
		ep.Close()
	}
}

func (h *Hub) lookup(name string) (*Memory, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ep, ok := h.endpoints[name]
	return ep, ok
}

// Memory is one named endpoint on a Hub. Inbound messages are handled one at a time, in arrival
// order, on the endpoint's own goroutine.
type Memory struct {
	hub   *Hub
	name  string
	inbox chan delivery

	mu        sync.Mutex
	handler   Handler
	started   bool
	done      chan struct{}
	closeOnce sync.Once
}

func (m *Memory) Name() string { return m.name }

// Connect only checks the name exists on the hub; addresses are not used in process.
func (m *Memory) Connect(_ context.Context, name, _ string) error {
	if _, ok := m.hub.lookup(name); !ok {
		return fmt.Errorf("connect %s: %w", name, sentinel.ErrUnknownDestination)
	}
	return nil
}

func (m *Memory) Send(ctx context.Context, destination string, msg []byte) error {
	dest, ok := m.hub.lookup(destination)
	if !ok {
		return fmt.Errorf("send to %s: %w", destination, sentinel.ErrUnknownDestination)
	}
	select {
	case dest.inbox <- delivery{msg: append([]byte(nil), msg...), sender: m.name}:
		return nil
	case <-dest.done:
		return fmt.Errorf("send to %s: %w", destination, sentinel.ErrUnavailable)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Handle(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
	if !m.started && h != nil {
		m.started = true
		go m.loop()
	}
}

// Close stops delivery. Messages still queued are dropped.
func (m *Memory) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

func (m *Memory) loop() {
	for {
		select {
		case <-m.done:
			return
		case d := <-m.inbox:
			m.mu.Lock()
			h := m.handler
			m.mu.Unlock()
			if h == nil {
				continue
			}
			ctx := requestcontext.WithPeer(context.Background(), d.sender)
			h(ctx, d.msg, d.sender)
		}
	}
}
