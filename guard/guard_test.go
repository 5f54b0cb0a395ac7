// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package guard

import (
	"errors"
	"testing"

	"github.com/danielhkuo/securevote/models"
	"github.com/danielhkuo/securevote/store"
	"github.com/danielhkuo/securevote/testutil"
)

func TestHasVotedPure(t *testing.T) {
	votes := []models.VoteRecord{
		{SurveyID: "s1", OptionID: "a", VoterIP: "10.0.0.1"},
		{SurveyID: "s2", OptionID: "b", VoterIP: "10.0.0.2"},
	}

	tests := []struct {
		name     string
		surveyID string
		identity string
		want     bool
	}{
		{"same pair", "s1", "10.0.0.1", true},
		{"same survey other voter", "s1", "10.0.0.2", false},
		{"same voter other survey", "s2", "10.0.0.1", false},
		{"unknown", "s3", "10.0.0.3", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasVoted(votes, tt.surveyID, tt.identity); got != tt.want {
				t.Errorf("HasVoted() = %v, want %v", got, tt.want)
			}
		})
	}

	if HasVoted(nil, "s1", "10.0.0.1") {
		t.Error("empty ledger should never report a vote")
	}
}

func TestRecordIsIdempotentPerPair(t *testing.T) {
	st, _ := testutil.SetupTestStore(t)
	g := New(st)

	pairs := []struct{ survey, voter string }{
		{"s1", "10.0.0.1"},
		{"s1", "10.0.0.2"},
		{"s2", "10.0.0.1"},
	}

	for _, p := range pairs {
		if err := g.Record(models.VoteRecord{SurveyID: p.survey, OptionID: "a", VoterIP: p.voter, Timestamp: 1}); err != nil {
			t.Fatalf("Record(%s, %s) error = %v", p.survey, p.voter, err)
		}
	}

	// Every recorded pair now reports a prior vote, and a second record fails
	for _, p := range pairs {
		voted, err := g.HasVoted(p.survey, p.voter)
		if err != nil {
			t.Fatal(err)
		}
		if !voted {
			t.Errorf("HasVoted(%s, %s) = false after recording", p.survey, p.voter)
		}

		err = g.Record(models.VoteRecord{SurveyID: p.survey, OptionID: "b", VoterIP: p.voter, Timestamp: 2})
		if !errors.Is(err, ErrAlreadyVoted) {
			t.Errorf("second Record(%s, %s) error = %v, want ErrAlreadyVoted", p.survey, p.voter, err)
		}
	}

	votes, err := st.Votes()
	if err != nil {
		t.Fatal(err)
	}
	if len(votes) != len(pairs) {
		t.Errorf("ledger has %d records, want %d", len(votes), len(pairs))
	}
}

func TestRecordStorageFailure(t *testing.T) {
	st, conn := testutil.SetupTestStore(t)
	g := New(st)
	conn.Close()

	err := g.Record(models.VoteRecord{SurveyID: "s1", OptionID: "a", VoterIP: "10.0.0.1"})
	if !errors.Is(err, store.ErrStorage) {
		t.Errorf("Record() error = %v, want ErrStorage", err)
	}
}
