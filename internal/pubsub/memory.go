package pubsub

import (
	"context"
	"errors"
	"sync"
)

const memoryBuffer = 256

var (
	sharedMu  sync.Mutex
	sharedMem = map[string]*Memory{}
)

// SharedMemory returns the process-wide in-memory broker registered under name.
func SharedMemory(name string) *Memory {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	m, ok := sharedMem[name]
	if !ok || m.isClosed() {
		m = NewMemory()
		sharedMem[name] = m
	}
	return m
}

// Memory is an in-process broker. A subscriber whose buffer is full misses
// the message.
type Memory struct {
	mu     sync.Mutex
	subs   map[string][]chan []byte
	closed bool
	done   chan struct{}
}

// NewMemory returns an empty, private in-process broker.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]chan []byte), done: make(chan struct{})}
}

// Publish copies payload to every current subscriber of topic.
func (m *Memory) Publish(_ context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("memory broker closed")
	}
	msg := append([]byte(nil), payload...)
	for _, ch := range m.subs[topic] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe delivers messages to h until ctx is done or the broker closes.
func (m *Memory) Subscribe(ctx context.Context, topic string, h Handler) error {
	ch := make(chan []byte, memoryBuffer)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("memory broker closed")
	}
	m.subs[topic] = append(m.subs[topic], ch)
	m.mu.Unlock()
	defer m.unsubscribe(topic, ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.done:
			return errors.New("memory broker closed")
		case msg := <-ch:
			h(ctx, msg)
		}
	}
}

// Subscribers reports how many subscriptions are attached to topic.
func (m *Memory) Subscribers(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[topic])
}

// Close ends every subscription.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *Memory) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Memory) unsubscribe(topic string, ch chan []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[topic]
	for i, c := range list {
		if c == ch {
			m.subs[topic] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
}
