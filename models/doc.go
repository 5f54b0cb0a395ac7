// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines domain types and the wire schemas exchanged over the broker.

# Domain Types

  - Survey: catalog entry owned by the admin node
  - Option: answer with a replicated vote count
  - VoteRecord: one accepted vote in a node's local ledger
  - SecurityLogEntry: a blocked duplicate-vote attempt

All timestamps are Unix milliseconds.

# Topics

	TopicVote        = "encuestas/voto"
	TopicAlert       = "encuestas/alerta"
	TopicSyncRequest = "encuestas/sync/request"
	TopicSyncData    = "encuestas/sync/data"

# Messages

DecodeMessage turns a (topic, payload) pair into a Message of one of four
kinds and validates it:

	msg, err := models.DecodeMessage(topic, payload)
	if errors.Is(err, models.ErrInvalidMessage) {
		// drop it
	}

  - VOTE: {surveyId, optionId, count}, 1 <= count <= MaxVoteCount
  - ALERT: a SecurityLogEntry with id, surveyId, voterIp and timestamp
  - SYNC_REQUEST: {req: "all"}
  - SYNC_DATA: a JSON array of Survey; ids must be unique and non-empty

# Request Types

Types used by the admin HTTP API:

  - SurveyRequest: title, description, options, active, deadline
  - OptionRequest: id (optional), text
*/
package models
