// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens the node's database and creates its schema.

# Connecting

Open picks the driver from the database type and pings the server:

	conn, err := db.Open(db.TypeSQLite, "securevote.db")
	conn, err := db.Open(db.TypePostgres, "postgres://...")

SQLite uses the pure-Go modernc.org/sqlite driver and is limited to one open
connection. Postgres uses github.com/lib/pq.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS.

# Tables

  - collection: name (primary key), payload (JSON text), updated_at

Each row holds a whole collection, so replacing or appending to one
collection is a single-row write inside one transaction.
*/
package db
