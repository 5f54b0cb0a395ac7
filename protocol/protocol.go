// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package protocol

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/danielhkuo/securevote/models"
	"github.com/danielhkuo/securevote/transport"
)

var (
	ErrSurveyNotFound = errors.New("survey not found")
	ErrInvalidSurvey  = errors.New("invalid survey")
	ErrUnknownOption  = errors.New("option not in survey")
)

// Publisher is the outbound half of the transport.
type Publisher interface {
	PublishVote(ctx context.Context, vote models.VotePayload) error
	PublishAlert(ctx context.Context, entry models.SecurityLogEntry) error
	PublishSyncRequest(ctx context.Context) error
	PublishSyncData(ctx context.Context, catalog []models.Survey) error
}

var _ Publisher = (*transport.Client)(nil)

// decode turns a transport message into a protocol message. Bad payloads
// are logged and dropped; they never stop the loop.
func decode(ev transport.Event) (models.Message, bool) {
	msg, err := models.DecodeMessage(ev.Topic, ev.Payload)
	if err != nil {
		slog.Warn("dropping malformed message", "topic", ev.Topic, "error", err)
		return models.Message{}, false
	}
	return msg, true
}

func nowFunc(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
