// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package session is the voting session state machine.

	loading -> idle | blocked | expired | not_found | error
	idle    -> success | blocked | expired | error

A session starts in loading. If the survey is not in the local replica it
asks for a snapshot and waits up to LoadTimeout before giving up with
not_found. Every state other than loading and idle is terminal.
*/
package session
