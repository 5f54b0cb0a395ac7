// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetainedKeyPrefix prefixes the keys that emulate MQTT retained messages.
const RetainedKeyPrefix = "retained:"

type RedisOptions struct {
	URL         string
	DialTimeout time.Duration
}

// RedisBroker uses Redis pub/sub. Redis has no retained messages, so a
// retained publish also SETs a key that is replayed on every subscription.
type RedisBroker struct {
	opts RedisOptions

	mu        sync.Mutex
	client    *redis.Client
	pubsub    *redis.PubSub
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	connected atomic.Bool
}

func NewRedisBroker(opts RedisOptions) *RedisBroker {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 4 * time.Second
	}
	return &RedisBroker{opts: opts}
}

func retainedKey(topic string) string {
	return RetainedKeyPrefix + topic
}

func (b *RedisBroker) Connect(ctx context.Context, topics []string, cb Callbacks) error {
	opt, err := redis.ParseURL(b.opts.URL)
	if err != nil {
		return fmt.Errorf("invalid redis URL: %w", err)
	}
	opt.DialTimeout = b.opts.DialTimeout

	client := redis.NewClient(opt)

	pingCtx, cancelPing := context.WithTimeout(ctx, b.opts.DialTimeout)
	defer cancelPing()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis broker unreachable, retrying in background", "error", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	pubsub := client.Subscribe(loopCtx, topics...)

	b.mu.Lock()
	b.client = client
	b.pubsub = pubsub
	b.cancel = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go b.receive(loopCtx, client, pubsub, cb)
	return nil
}

// receive runs until Close. go-redis reconnects and resubscribes on the
// next Receive after an error; each subscription confirmation replays the
// retained payload for that channel.
func (b *RedisBroker) receive(ctx context.Context, client *redis.Client, pubsub *redis.PubSub, cb Callbacks) {
	defer b.wg.Done()

	backoff := 100 * time.Millisecond
	for {
		msg, err := pubsub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if b.connected.Swap(false) && cb.OnConnectionLost != nil {
				cb.OnConnectionLost(err)
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = 100 * time.Millisecond

		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind != "subscribe" {
				continue
			}
			if !b.connected.Swap(true) && cb.OnConnect != nil {
				cb.OnConnect()
			}
			b.replayRetained(ctx, client, m.Channel, cb)
		case *redis.Message:
			if cb.OnMessage != nil {
				cb.OnMessage(m.Channel, []byte(m.Payload))
			}
		}
	}
}

func (b *RedisBroker) replayRetained(ctx context.Context, client *redis.Client, topic string, cb Callbacks) {
	payload, err := client.Get(ctx, retainedKey(topic)).Bytes()
	if errors.Is(err, redis.Nil) {
		return
	}
	if err != nil {
		slog.Warn("failed to read retained message", "topic", topic, "error", err)
		return
	}
	if cb.OnMessage != nil {
		cb.OnMessage(topic, payload)
	}
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()

	if client == nil || !b.connected.Load() {
		return ErrNotConnected
	}

	if !retain {
		return client.Publish(ctx, topic, payload).Err()
	}

	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(payload) == 0 {
			pipe.Del(ctx, retainedKey(topic))
		} else {
			pipe.Set(ctx, retainedKey(topic), payload, 0)
		}
		pipe.Publish(ctx, topic, payload)
		return nil
	})
	return err
}

func (b *RedisBroker) IsConnected() bool {
	return b.connected.Load()
}

func (b *RedisBroker) Close() error {
	b.mu.Lock()
	cancel, pubsub, client := b.cancel, b.pubsub, b.client
	b.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	var errs []error
	if err := pubsub.Close(); err != nil {
		errs = append(errs, err)
	}
	b.wg.Wait()
	if err := client.Close(); err != nil {
		errs = append(errs, err)
	}
	b.connected.Store(false)
	return errors.Join(errs...)
}
