// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package protocol implements the two roles of the replication protocol.

# Admin

The admin is the only writer of the catalog. It broadcasts the whole catalog
as a retained SYNC_DATA message on connect, after every create, edit or
delete, and in reply to SYNC_REQUEST. Incoming VOTE messages increment the
option by their count; ALERT messages go to the security log.

	admin := protocol.NewAdmin(client, st, protocol.AdminOptions{})
	go admin.Run(ctx, client.Events())

# Voter

A voter keeps a replica of the catalog, replaced wholesale by every snapshot
it receives. CastVote checks the deadline and the local guard at the moment
of submission, records the vote and publishes it, or logs the attempt and
publishes an ALERT instead.

Malformed messages are logged and dropped by both roles.
*/
package protocol
