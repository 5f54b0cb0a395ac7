// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// QoS 0, like the browser clients: the broker's retain flag is the only
// delivery guarantee the protocol relies on.
const mqttQoS byte = 0

type MQTTOptions struct {
	URL            string
	ClientPrefix   string
	CleanSession   bool
	ConnectTimeout time.Duration
}

// MQTTBroker connects over TCP, TLS or WebSocket using paho.
type MQTTBroker struct {
	opts MQTTOptions

	mu     sync.Mutex
	client mqtt.Client
}

func NewMQTTBroker(opts MQTTOptions) *MQTTBroker {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 4 * time.Second
	}
	return &MQTTBroker{opts: opts}
}

// ClientID returns a fresh id: the prefix plus six hex digits.
func ClientID(prefix string) string {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return prefix + fmt.Sprintf("%06x", time.Now().UnixNano()&0xffffff)
	}
	return prefix + hex.EncodeToString(b)
}

func (b *MQTTBroker) Connect(ctx context.Context, topics []string, cb Callbacks) error {
	filters := make(map[string]byte, len(topics))
	for _, t := range topics {
		filters[t] = mqttQoS
	}

	onMessage := func(_ mqtt.Client, m mqtt.Message) {
		if cb.OnMessage != nil {
			cb.OnMessage(m.Topic(), m.Payload())
		}
	}

	clientID := ClientID(b.opts.ClientPrefix)
	opts := mqtt.NewClientOptions().
		AddBroker(b.opts.URL).
		SetClientID(clientID).
		SetCleanSession(b.opts.CleanSession).
		SetConnectTimeout(b.opts.ConnectTimeout).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetMaxReconnectInterval(30 * time.Second)

	// Subscriptions are renewed on every (re)connect so a clean session
	// never leaves the node deaf.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.SubscribeMultiple(filters, onMessage)
		if !token.WaitTimeout(b.opts.ConnectTimeout) || token.Error() != nil {
			slog.Error("mqtt subscribe failed", "error", token.Error(), "topics", topics)
		}
		if cb.OnConnect != nil {
			cb.OnConnect()
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if cb.OnConnectionLost != nil {
			cb.OnConnectionLost(err)
		}
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		slog.Info("mqtt reconnecting", "broker", b.opts.URL)
	})

	client := mqtt.NewClient(opts)
	b.mu.Lock()
	b.client = client
	b.mu.Unlock()

	slog.Info("connecting to mqtt broker", "broker", b.opts.URL, "client_id", clientID)

	// With ConnectRetry the token stays open until the first connection
	// succeeds; an unreachable broker is not fatal.
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
	case <-time.After(b.opts.ConnectTimeout):
		slog.Warn("mqtt broker unreachable, retrying in background", "broker", b.opts.URL)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (b *MQTTBroker) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := client.Publish(topic, mqttQoS, retain, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-time.After(b.opts.ConnectTimeout):
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MQTTBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client != nil && b.client.IsConnectionOpen()
}

func (b *MQTTBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		b.client.Disconnect(250)
	}
	return nil
}
