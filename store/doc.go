// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package store is the node's durable local state.

The store is a set of named collections, each a JSON array kept in one row of
the collection table:

  - surveys: the survey catalog (authoritative on the admin, a replica on voters)
  - votes: the local vote ledger
  - security_logs: blocked attempts, newest first
  - client_identity: the device identity, a single-element collection

Generic operations:

	st.Get(store.CollectionVotes, &votes)
	st.Put(store.CollectionSurveys, surveys)
	st.Append(store.CollectionVotes, vote)

Failures are wrapped in ErrStorage and are never retried.
*/
package store
