// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package transport owns the node's single connection to the message broker.

# Client

A Client wraps one Broker connection. It subscribes to the four protocol
topics and funnels every message and connectivity change into one ordered
channel:

	c := transport.NewClient(broker)
	if err := c.Start(ctx); err != nil { ... }
	defer c.Close()

	for ev := range c.Events() {
		switch ev.Kind {
		case transport.EventMessage:      // ev.Topic, ev.Payload
		case transport.EventConnected:    // (re)connected and subscribed
		case transport.EventDisconnected: // ev.Err
		}
	}

Publishing is typed (PublishVote, PublishAlert, PublishSyncRequest,
PublishSyncData) and fire-and-forget. While the broker is offline a publish
is a silent no-op; missed non-retained messages are never replayed.

# Brokers

  - MQTTBroker: paho MQTT client over tcp://, ssl://, ws:// or wss://
  - RedisBroker: Redis pub/sub; retained messages are kept under
    "retained:<topic>" keys and replayed on each subscription
  - MemoryHub / MemoryBroker: in-process broker with retained messages,
    simulated disconnects and a record of published messages
*/
package transport
