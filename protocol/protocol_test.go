// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package protocol

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/danielhkuo/securevote/models"
	"github.com/danielhkuo/securevote/testutil"
	"github.com/danielhkuo/securevote/transport"
)

// recorder is a Publisher that keeps everything it is asked to send.
type recorder struct {
	mu           sync.Mutex
	votes        []models.VotePayload
	alerts       []models.SecurityLogEntry
	syncRequests int
	snapshots    [][]models.Survey
}

func (r *recorder) PublishVote(_ context.Context, v models.VotePayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.votes = append(r.votes, v)
	return nil
}

func (r *recorder) PublishAlert(_ context.Context, e models.SecurityLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, e)
	return nil
}

func (r *recorder) PublishSyncRequest(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncRequests++
	return nil
}

func (r *recorder) PublishSyncData(_ context.Context, catalog []models.Survey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, catalog)
	return nil
}

func (r *recorder) lastSnapshot() []models.Survey {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

func messageEvent(t *testing.T, topic string, v any) transport.Event {
	t.Helper()
	return transport.Event{Kind: transport.EventMessage, Topic: topic, Payload: testutil.MustMarshal(t, v)}
}

func rawEvent(topic, payload string) transport.Event {
	return transport.Event{Kind: transport.EventMessage, Topic: topic, Payload: []byte(payload)}
}

// fixedClock returns a settable clock.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *fixedClock { return &fixedClock{now: t} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
