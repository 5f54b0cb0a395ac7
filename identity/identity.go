// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package identity

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/danielhkuo/securevote/store"
)

// NewID returns a collision-resistant identifier for surveys, options and
// audit entries.
func NewID() string {
	return uuid.NewString()
}

// NewAddress creates a random identity shaped like a private IPv4 address
// (10.x.y.z). It only looks like an address; it is never resolved.
func NewAddress() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate client identity: %w", err)
	}
	return fmt.Sprintf("10.%d.%d.%d", b[0], b[1], b[2]), nil
}

// Provider issues the device's stable identity, creating it on first use.
type Provider struct {
	mu     sync.Mutex
	store  *store.Store
	cached string
}

func NewProvider(st *store.Store) *Provider {
	return &Provider{store: st}
}

// Identity returns the persisted identity, generating and storing one the
// first time it is called on a fresh store.
func (p *Provider) Identity() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != "" {
		return p.cached, nil
	}

	id, ok, err := p.store.Identity()
	if err != nil {
		return "", err
	}
	if ok {
		p.cached = id
		return id, nil
	}

	id, err = NewAddress()
	if err != nil {
		return "", err
	}
	if err := p.store.PutIdentity(id); err != nil {
		return "", err
	}

	slog.Info("client identity created", "identity", id)
	p.cached = id
	return id, nil
}
