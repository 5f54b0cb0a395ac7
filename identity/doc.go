// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package identity issues identifiers and the per-device client identity.

# Client Identity

Provider returns the same identity for the lifetime of the node's store:

	p := identity.NewProvider(st)
	id, err := p.Identity() // "10.37.201.4"

The identity only looks like an IPv4 address. It is the idempotency key for
duplicate-vote detection, not a verified network address: wiping the store
yields a fresh identity and a fresh vote allowance.

# Identifiers

  - NewID: UUIDv4 strings for surveys, options and audit entries
*/
package identity
