// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidMessage is returned for payloads that are not valid JSON or
// fail schema validation.
var ErrInvalidMessage = errors.New("invalid message")

// Kind is the closed set of protocol messages.
type Kind string

const (
	KindVote        Kind = "VOTE"
	KindAlert       Kind = "ALERT"
	KindSyncRequest Kind = "SYNC_REQUEST"
	KindSyncData    Kind = "SYNC_DATA"
)

// SyncRequestAll is the only sync request the protocol knows.
const SyncRequestAll = "all"

// MaxVoteCount bounds a single VOTE increment so option totals cannot
// overflow. Voters always send 1.
const MaxVoteCount = 1000

// VotePayload is published by voters on TopicVote.
// VoterIP is only sent in strict mode.
type VotePayload struct {
	SurveyID string `json:"surveyId"`
	OptionID string `json:"optionId"`
	Count    int    `json:"count"`
	VoterIP  string `json:"voterIp,omitempty"`
}

type SyncRequestPayload struct {
	Req string `json:"req"`
}

// Message is a decoded protocol message. Exactly one payload field is set,
// matching Kind.
type Message struct {
	Kind        Kind
	Vote        *VotePayload
	Alert       *SecurityLogEntry
	SyncRequest *SyncRequestPayload
	Catalog     []Survey
}

var topicKinds = map[string]Kind{
	TopicVote:        KindVote,
	TopicAlert:       KindAlert,
	TopicSyncRequest: KindSyncRequest,
	TopicSyncData:    KindSyncData,
}

// Topics lists every protocol topic in subscription order.
func Topics() []string {
	return []string{TopicVote, TopicAlert, TopicSyncRequest, TopicSyncData}
}

// KindForTopic maps a broker topic to its message kind.
func KindForTopic(topic string) (Kind, bool) {
	k, ok := topicKinds[topic]
	return k, ok
}

// DecodeMessage parses and validates a payload received on topic.
func DecodeMessage(topic string, payload []byte) (Message, error) {
	kind, ok := KindForTopic(topic)
	if !ok {
		return Message{}, fmt.Errorf("%w: unknown topic %q", ErrInvalidMessage, topic)
	}

	msg := Message{Kind: kind}
	switch kind {
	case KindVote:
		var v VotePayload
		if err := unmarshal(payload, &v); err != nil {
			return Message{}, err
		}
		if err := v.Validate(); err != nil {
			return Message{}, err
		}
		msg.Vote = &v
	case KindAlert:
		var e SecurityLogEntry
		if err := unmarshal(payload, &e); err != nil {
			return Message{}, err
		}
		if err := ValidateAlert(e); err != nil {
			return Message{}, err
		}
		msg.Alert = &e
	case KindSyncRequest:
		var r SyncRequestPayload
		if err := unmarshal(payload, &r); err != nil {
			return Message{}, err
		}
		if r.Req != SyncRequestAll {
			return Message{}, fmt.Errorf("%w: unsupported sync request %q", ErrInvalidMessage, r.Req)
		}
		msg.SyncRequest = &r
	case KindSyncData:
		var catalog []Survey
		if err := unmarshal(payload, &catalog); err != nil {
			return Message{}, err
		}
		if catalog == nil {
			return Message{}, fmt.Errorf("%w: snapshot must be an array", ErrInvalidMessage)
		}
		if err := ValidateCatalog(catalog); err != nil {
			return Message{}, err
		}
		msg.Catalog = catalog
	}
	return msg, nil
}

func unmarshal(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

// Validate checks the vote payload schema.
func (v VotePayload) Validate() error {
	if v.SurveyID == "" || v.OptionID == "" {
		return fmt.Errorf("%w: vote requires surveyId and optionId", ErrInvalidMessage)
	}
	if v.Count < 1 || v.Count > MaxVoteCount {
		return fmt.Errorf("%w: vote count must be between 1 and %d, got %d", ErrInvalidMessage, MaxVoteCount, v.Count)
	}
	return nil
}

// ValidateAlert checks a security log entry received as an alert.
func ValidateAlert(e SecurityLogEntry) error {
	if e.ID == "" || e.SurveyID == "" || e.VoterIP == "" {
		return fmt.Errorf("%w: alert requires id, surveyId and voterIp", ErrInvalidMessage)
	}
	if e.Timestamp <= 0 {
		return fmt.Errorf("%w: alert timestamp missing", ErrInvalidMessage)
	}
	return nil
}

// ValidateCatalog checks a full snapshot. A single bad survey rejects the
// whole snapshot.
func ValidateCatalog(catalog []Survey) error {
	seen := make(map[string]bool, len(catalog))
	for _, s := range catalog {
		if s.ID == "" {
			return fmt.Errorf("%w: survey without id", ErrInvalidMessage)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate survey id %q", ErrInvalidMessage, s.ID)
		}
		seen[s.ID] = true

		optionIDs := make(map[string]bool, len(s.Options))
		for _, o := range s.Options {
			if o.ID == "" {
				return fmt.Errorf("%w: survey %q has an option without id", ErrInvalidMessage, s.ID)
			}
			if optionIDs[o.ID] {
				return fmt.Errorf("%w: survey %q repeats option id %q", ErrInvalidMessage, s.ID, o.ID)
			}
			if o.Votes < 0 {
				return fmt.Errorf("%w: survey %q option %q has negative votes", ErrInvalidMessage, s.ID, o.ID)
			}
			optionIDs[o.ID] = true
		}
	}
	return nil
}
