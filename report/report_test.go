// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/danielhkuo/securevote/models"
	"github.com/danielhkuo/securevote/testutil"
)

func readCSV(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	raw := buf.String()
	if !strings.HasPrefix(raw, BOM) {
		t.Fatal("report does not start with a BOM")
	}
	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(raw, BOM)))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("report is not valid CSV: %v", err)
	}
	return rows
}

func findRow(rows [][]string, first string) []string {
	for _, row := range rows {
		if len(row) > 0 && row[0] == first {
			return row
		}
	}
	return nil
}

func TestVoteLink(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://vote.test", "http://vote.test/#/vote/s1"},
		{"http://vote.test/", "http://vote.test/#/vote/s1"},
		{"https://example.org/app", "https://example.org/app/#/vote/s1"},
	}
	for _, tt := range tests {
		if got := VoteLink(tt.base, "s1"); got != tt.want {
			t.Errorf("VoteLink(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestWriteCSV(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	survey := testutil.NewTestSurvey("s1", "Pizza", "Sushi, rolls", "Tacos")
	survey.Title = `Lunch "Friday"`
	survey.CreatedAt = now.Add(-48 * time.Hour).UnixMilli()
	survey.Options[0].Votes = 3
	survey.Options[1].Votes = 1

	votes := []models.VoteRecord{
		{SurveyID: "s1", OptionID: "Pizza", VoterIP: "10.0.0.1", Timestamp: now.Add(-time.Hour).UnixMilli()},
		{SurveyID: "other", OptionID: "x", VoterIP: "10.0.0.9", Timestamp: now.UnixMilli()},
		{SurveyID: "s1", OptionID: "gone", VoterIP: "10.0.0.2", Timestamp: now.Add(-time.Minute).UnixMilli()},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, survey, votes, now); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	rows := readCSV(t, &buf)

	if row := findRow(rows, "Title"); row == nil || row[1] != `Lunch "Friday"` {
		t.Errorf("Title row = %v", row)
	}
	if row := findRow(rows, "Total votes"); row == nil || row[1] != "4" {
		t.Errorf("Total votes row = %v", row)
	}
	if row := findRow(rows, "Deadline"); row == nil || row[1] != noDeadlineLabel {
		t.Errorf("Deadline row = %v", row)
	}
	if row := findRow(rows, "Created"); row == nil || !strings.Contains(row[1], "2 days ago") {
		t.Errorf("Created row = %v", row)
	}

	wantResults := map[string][]string{
		"Pizza":        {"Pizza", "3", "75.00%"},
		"Sushi, rolls": {"Sushi, rolls", "1", "25.00%"},
		"Tacos":        {"Tacos", "0", "0.00%"},
	}
	for name, want := range wantResults {
		row := findRow(rows, name)
		if len(row) != 3 || row[1] != want[1] || row[2] != want[2] {
			t.Errorf("result row for %s = %v, want %v", name, row, want)
		}
	}

	// Audit rows follow the header, newest first, other surveys excluded.
	var audit [][]string
	for i, row := range rows {
		if row[0] == "Time" {
			audit = rows[i+1:]
			break
		}
	}
	if len(audit) != 2 {
		t.Fatalf("expected 2 audit rows, got %d: %v", len(audit), audit)
	}
	if audit[0][1] != "10.0.0.2" || audit[0][2] != unknownOption {
		t.Errorf("first audit row = %v", audit[0])
	}
	if audit[1][1] != "10.0.0.1" || audit[1][2] != "Pizza" {
		t.Errorf("second audit row = %v", audit[1])
	}
}

func TestWriteCSV_NoVotes(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	survey := testutil.WithDeadline(testutil.NewTestSurvey("s1", "a", "b"), now.Add(24*time.Hour))
	survey.Active = false

	var buf bytes.Buffer
	if err := WriteCSV(&buf, survey, nil, now); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	rows := readCSV(t, &buf)

	if findRow(rows, noVotesNote) == nil {
		t.Error("missing note for an empty ledger")
	}
	if row := findRow(rows, "a"); row == nil || row[2] != "0%" {
		t.Errorf("zero-vote option row = %v", row)
	}
	if row := findRow(rows, "Status"); row == nil || row[1] != "Inactive" {
		t.Errorf("Status row = %v", row)
	}
	if row := findRow(rows, "Deadline"); row == nil || !strings.Contains(row[1], "from now") {
		t.Errorf("Deadline row = %v", row)
	}
}

func TestFilename(t *testing.T) {
	if got := Filename(models.Survey{ID: "abc"}); got != "survey_abc.csv" {
		t.Errorf("Filename() = %q", got)
	}
}
