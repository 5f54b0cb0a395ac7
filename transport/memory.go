// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Published is one message the hub accepted.
type Published struct {
	Topic   string
	Payload []byte
	Retain  bool
}

// MemoryHub is an in-process broker with MQTT-like retained messages.
// Every connection gets messages in hub publish order.
type MemoryHub struct {
	mu        sync.Mutex
	conns     map[*MemoryBroker]struct{}
	retained  map[string][]byte
	published []Published
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		conns:    make(map[*MemoryBroker]struct{}),
		retained: make(map[string][]byte),
	}
}

// NewBroker opens a new connection to the hub.
func (h *MemoryHub) NewBroker() *MemoryBroker {
	return &MemoryBroker{hub: h}
}

// Retained returns the retained payload for a topic.
func (h *MemoryHub) Retained(topic string) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.retained[topic]
	return p, ok
}

// Published returns every message accepted on topic, oldest first.
func (h *MemoryHub) Published(topic string) []Published {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Published
	for _, p := range h.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// SetRetained seeds a retained message as if an earlier publisher left it.
func (h *MemoryHub) SetRetained(topic string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retained[topic] = append([]byte(nil), payload...)
}

func (h *MemoryHub) publish(topic string, payload []byte, retain bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	payload = append([]byte(nil), payload...)
	h.published = append(h.published, Published{Topic: topic, Payload: payload, Retain: retain})
	if retain {
		if len(payload) == 0 {
			delete(h.retained, topic)
		} else {
			h.retained[topic] = payload
		}
	}

	for c := range h.conns {
		c.deliver(topic, payload)
	}
}

type delivery struct {
	kind    EventKind
	topic   string
	payload []byte
	err     error
}

const memoryQueue = 1024

// MemoryBroker is one connection to a MemoryHub.
type MemoryBroker struct {
	hub *MemoryHub

	mu     sync.Mutex
	topics map[string]bool
	online bool
	queue  chan delivery
	done   chan struct{}
	cb     Callbacks
}

func (b *MemoryBroker) Connect(ctx context.Context, topics []string, cb Callbacks) error {
	b.mu.Lock()
	if b.queue != nil {
		b.mu.Unlock()
		return errors.New("memory broker already connected")
	}
	b.cb = cb
	b.topics = make(map[string]bool, len(topics))
	for _, t := range topics {
		b.topics[t] = true
	}
	b.queue = make(chan delivery, memoryQueue)
	b.done = make(chan struct{})
	b.mu.Unlock()

	go b.run()

	b.hub.mu.Lock()
	b.hub.conns[b] = struct{}{}
	b.goOnline()
	b.hub.mu.Unlock()
	return nil
}

// goOnline requires hub.mu so retained replay and live traffic stay ordered.
func (b *MemoryBroker) goOnline() {
	b.mu.Lock()
	b.online = true
	b.mu.Unlock()

	b.enqueue(delivery{kind: EventConnected})
	for topic, payload := range b.hub.retained {
		b.deliver(topic, payload)
	}
}

func (b *MemoryBroker) run() {
	for {
		select {
		case d := <-b.queue:
			switch d.kind {
			case EventMessage:
				if b.cb.OnMessage != nil {
					b.cb.OnMessage(d.topic, d.payload)
				}
			case EventConnected:
				if b.cb.OnConnect != nil {
					b.cb.OnConnect()
				}
			case EventDisconnected:
				if b.cb.OnConnectionLost != nil {
					b.cb.OnConnectionLost(d.err)
				}
			}
		case <-b.done:
			return
		}
	}
}

func (b *MemoryBroker) deliver(topic string, payload []byte) {
	b.mu.Lock()
	ok := b.online && b.topics[topic]
	b.mu.Unlock()
	if ok {
		b.enqueue(delivery{kind: EventMessage, topic: topic, payload: payload})
	}
}

func (b *MemoryBroker) enqueue(d delivery) {
	select {
	case b.queue <- d:
	default:
		// A full queue behaves like a lossy network
		slog.Warn("memory broker queue full, message dropped", "topic", d.topic)
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	if !b.IsConnected() {
		return ErrNotConnected
	}
	b.hub.publish(topic, payload, retain)
	return nil
}

func (b *MemoryBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online
}

// Disconnect simulates a dropped connection. Messages published meanwhile
// are not replayed, except retained ones on Reconnect.
func (b *MemoryBroker) Disconnect(err error) {
	b.mu.Lock()
	wasOnline := b.online
	b.online = false
	b.mu.Unlock()

	if wasOnline {
		b.enqueue(delivery{kind: EventDisconnected, err: err})
	}
}

// Reconnect restores a dropped connection and replays retained messages.
func (b *MemoryBroker) Reconnect() {
	b.hub.mu.Lock()
	defer b.hub.mu.Unlock()
	if b.IsConnected() {
		return
	}
	b.goOnline()
}

func (b *MemoryBroker) Close() error {
	b.hub.mu.Lock()
	delete(b.hub.conns, b)
	b.hub.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.online = false
	if b.done != nil {
		select {
		case <-b.done:
		default:
			close(b.done)
		}
	}
	return nil
}
