// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package audit

import (
	"log/slog"
	"time"

	"github.com/danielhkuo/securevote/identity"
	"github.com/danielhkuo/securevote/models"
	"github.com/danielhkuo/securevote/store"
)

// DefaultWindow is the de-duplication window for repeated attempts.
const DefaultWindow = 5 * time.Second

// ReasonDuplicateVote is recorded when the guard blocks a second vote.
const ReasonDuplicateVote = "blocked: duplicate vote attempt"

// Log is the append-only security log. Entries are kept newest first.
type Log struct {
	store  *store.Store
	window time.Duration
}

func New(st *store.Store, window time.Duration) *Log {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Log{store: st, window: window}
}

// NewEntry builds an entry for a blocked attempt.
func NewEntry(surveyID, voter, reason string, now time.Time) models.SecurityLogEntry {
	return models.SecurityLogEntry{
		ID:        identity.NewID(),
		SurveyID:  surveyID,
		VoterIP:   voter,
		Reason:    reason,
		Timestamp: now.UnixMilli(),
	}
}

// Record appends the entry unless it repeats an entry already logged: the
// same id, or the same survey and voter with timestamps closer than the
// window. It reports whether the entry was added.
func (l *Log) Record(entry models.SecurityLogEntry) (bool, error) {
	entries, err := l.store.SecurityLog()
	if err != nil {
		return false, err
	}

	if l.isDuplicate(entries, entry) {
		slog.Debug("security log entry suppressed",
			"survey_id", entry.SurveyID,
			"voter", entry.VoterIP,
		)
		return false, nil
	}

	entries = append([]models.SecurityLogEntry{entry}, entries...)
	if err := l.store.PutSecurityLog(entries); err != nil {
		return false, err
	}

	slog.Warn("duplicate vote attempt logged",
		"survey_id", entry.SurveyID,
		"voter", entry.VoterIP,
		"reason", entry.Reason,
	)
	return true, nil
}

// Entries returns the log, newest first.
func (l *Log) Entries() ([]models.SecurityLogEntry, error) {
	return l.store.SecurityLog()
}

func (l *Log) isDuplicate(entries []models.SecurityLogEntry, entry models.SecurityLogEntry) bool {
	window := l.window.Milliseconds()
	for _, e := range entries {
		if e.ID == entry.ID {
			return true
		}
		if e.SurveyID != entry.SurveyID || e.VoterIP != entry.VoterIP {
			continue
		}
		delta := e.Timestamp - entry.Timestamp
		if delta < 0 {
			delta = -delta
		}
		if delta < window {
			return true
		}
	}
	return false
}
