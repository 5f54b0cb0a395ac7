// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/danielhkuo/securevote/cliparse"
	"github.com/danielhkuo/securevote/models"
)

// ErrNotConnected is returned by brokers that are offline. The Client
// turns it into a silent no-op.
var ErrNotConnected = errors.New("broker not connected")

// Callbacks are invoked by a Broker. Calls may come from any goroutine
// but never concurrently for one connection.
type Callbacks struct {
	OnMessage        func(topic string, payload []byte)
	OnConnect        func()
	OnConnectionLost func(err error)
}

// Broker is one connection to a publish/subscribe broker. Implementations
// resubscribe to topics on every reconnect and deliver retained messages on
// subscription.
type Broker interface {
	Connect(ctx context.Context, topics []string, cb Callbacks) error
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
	IsConnected() bool
	Close() error
}

type EventKind int

const (
	EventMessage EventKind = iota
	EventConnected
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Event is what the owning node's loop receives.
type Event struct {
	Kind    EventKind
	Topic   string
	Payload []byte
	Err     error
}

const eventBuffer = 256

// Client is the node's single broker handle: a typed publish API and one
// event channel carrying every message and connectivity change in order.
type Client struct {
	broker    Broker
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	started   atomic.Bool
}

func NewClient(b Broker) *Client {
	return &Client{
		broker: b,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}
}

// Start connects and subscribes to every protocol topic.
func (c *Client) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("transport already started")
	}

	return c.broker.Connect(ctx, models.Topics(), Callbacks{
		OnMessage: func(topic string, payload []byte) {
			c.push(Event{Kind: EventMessage, Topic: topic, Payload: payload})
		},
		OnConnect: func() {
			slog.Info("broker connected")
			c.push(Event{Kind: EventConnected})
		},
		OnConnectionLost: func(err error) {
			slog.Warn("broker connection lost", "error", err)
			c.push(Event{Kind: EventDisconnected, Err: err})
		},
	})
}

func (c *Client) push(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Events is the single registration point for incoming traffic.
func (c *Client) Events() <-chan Event {
	return c.events
}

func (c *Client) Connected() bool {
	return c.broker.IsConnected()
}

func (c *Client) PublishVote(ctx context.Context, vote models.VotePayload) error {
	return c.publishJSON(ctx, models.TopicVote, vote, false)
}

func (c *Client) PublishAlert(ctx context.Context, entry models.SecurityLogEntry) error {
	return c.publishJSON(ctx, models.TopicAlert, entry, false)
}

func (c *Client) PublishSyncRequest(ctx context.Context) error {
	return c.publishJSON(ctx, models.TopicSyncRequest, models.SyncRequestPayload{Req: models.SyncRequestAll}, false)
}

// PublishSyncData broadcasts the full catalog as a retained message.
func (c *Client) PublishSyncData(ctx context.Context, catalog []models.Survey) error {
	if catalog == nil {
		catalog = []models.Survey{}
	}
	return c.publishJSON(ctx, models.TopicSyncData, catalog, true)
}

func (c *Client) publishJSON(ctx context.Context, topic string, v any, retain bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}

	err = c.broker.Publish(ctx, topic, payload, retain)
	if errors.Is(err, ErrNotConnected) {
		slog.Debug("publish skipped, broker offline", "topic", topic)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	slog.Debug("published", "topic", topic, "size", humanize.Bytes(uint64(len(payload))), "retain", retain)
	return nil
}

// Close disconnects. Events stops receiving new values.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.broker.Close()
	})
	return err
}

// NewBroker picks the backend from the broker URL scheme.
func NewBroker(cfg cliparse.Config) (Broker, error) {
	u, err := url.Parse(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker URL: %w", err)
	}

	switch u.Scheme {
	case "tcp", "ssl", "mqtt", "mqtts", "ws", "wss":
		return NewMQTTBroker(MQTTOptions{
			URL:            cfg.BrokerURL,
			ClientPrefix:   cfg.ClientPrefix,
			CleanSession:   cfg.CleanSession,
			ConnectTimeout: cfg.ConnectTimeout,
		}), nil
	case "redis", "rediss":
		return NewRedisBroker(RedisOptions{
			URL:         cfg.BrokerURL,
			DialTimeout: cfg.ConnectTimeout,
		}), nil
	case "memory":
		return NewMemoryHub().NewBroker(), nil
	}
	return nil, fmt.Errorf("unsupported broker scheme %q", u.Scheme)
}
