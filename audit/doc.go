// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package audit keeps the security log of blocked duplicate-vote attempts.

Entries come from the local guard (voter nodes) or from ALERT messages
(admin node). Two entries for the same survey and voter whose timestamps are
closer than the window are collapsed into the first; entries further apart
are both kept. Redelivered alerts with a known id are ignored.

	log := audit.New(st, audit.DefaultWindow)
	added, err := log.Record(audit.NewEntry(surveyID, voter, audit.ReasonDuplicateVote, time.Now()))
*/
package audit
