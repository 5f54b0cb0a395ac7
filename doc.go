// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for SecureVote nodes.

SecureVote replicates a survey catalog from one admin node to any number of
voter nodes over a publish/subscribe broker, collects votes back, and logs
duplicate-vote attempts.

# Starting an Admin

	BROKER_URL=ws://127.0.0.1:9001 go run .

The admin serves the HTTP API on -p (default 3318) and broadcasts the catalog
as a retained message.

# Voting From the Command Line

	go run . -role voter -survey <id> -option <option-id>

Without -option the survey is printed and the process exits. The exit code
is non-zero when the survey is not found or the vote could not be stored.

# Configuration

Every flag has an environment fallback and a .env file is read first:

  - NODE_ROLE (-role): admin or voter
  - DATABASE_TYPE (-t), DATABASE_URL (-d): sqlite (default, securevote-<role>.db) or postgres
  - BROKER_URL (-broker): tcp://, ssl://, ws://, wss:// (MQTT), redis://, memory://
  - STRICT_VOTES (-strict): admin de-duplicates votes by identity
  - ADMIN_KEY (-admin-key): required by catalog changes when set

See the cliparse package for the full list.

# Architecture

  - models: domain types and wire messages
  - store: local key/value collections on SQLite or Postgres
  - identity, guard, audit: client id, duplicate-vote guard, security log
  - transport: broker connection (MQTT, Redis, in-memory)
  - protocol: admin and voter roles
  - session: voting session state machine
  - report: CSV export and vote links
  - handlers, router, middleware, auth: admin HTTP API
*/
package main
