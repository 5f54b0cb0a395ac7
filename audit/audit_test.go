// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package audit

import (
	"testing"
	"time"

	"github.com/danielhkuo/securevote/models"
	"github.com/danielhkuo/securevote/testutil"
)

func entryAt(id, survey, voter string, ms int64) models.SecurityLogEntry {
	return models.SecurityLogEntry{ID: id, SurveyID: survey, VoterIP: voter, Reason: ReasonDuplicateVote, Timestamp: ms}
}

func TestRecordDeduplicatesWithinWindow(t *testing.T) {
	st, _ := testutil.SetupTestStore(t)
	log := New(st, 5*time.Second)

	tests := []struct {
		name      string
		entry     models.SecurityLogEntry
		wantAdded bool
	}{
		{"first attempt", entryAt("e1", "s1", "10.0.0.1", 10_000), true},
		{"repeat inside window", entryAt("e2", "s1", "10.0.0.1", 14_999), false},
		{"other voter", entryAt("e3", "s1", "10.0.0.2", 11_000), true},
		{"other survey", entryAt("e4", "s2", "10.0.0.1", 11_000), true},
		{"outside window", entryAt("e5", "s1", "10.0.0.1", 15_000), true},
		{"redelivered id", entryAt("e1", "s9", "10.9.9.9", 99_000), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			added, err := log.Record(tt.entry)
			if err != nil {
				t.Fatalf("Record() error = %v", err)
			}
			if added != tt.wantAdded {
				t.Errorf("Record() added = %v, want %v", added, tt.wantAdded)
			}
		})
	}

	entries, err := log.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].ID != "e5" {
		t.Errorf("expected newest entry first, got %s", entries[0].ID)
	}
}

func TestNoTwoEntriesInsideWindow(t *testing.T) {
	st, _ := testutil.SetupTestStore(t)
	window := 5 * time.Second
	log := New(st, window)

	// Out of order timestamps, one pair
	for i, ms := range []int64{20_000, 12_000, 18_000, 30_000, 26_000, 7_000, 24_999} {
		if _, err := log.Record(entryAt(string(rune('a'+i)), "s1", "10.0.0.1", ms)); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := log.Entries()
	if err != nil {
		t.Fatal(err)
	}
	for i := range entries {
		for j := i + 1; j < len(entries); j++ {
			delta := entries[i].Timestamp - entries[j].Timestamp
			if delta < 0 {
				delta = -delta
			}
			if delta < window.Milliseconds() {
				t.Errorf("entries %s and %s are %dms apart", entries[i].ID, entries[j].ID, delta)
			}
		}
	}
}

func TestNewEntry(t *testing.T) {
	now := time.UnixMilli(123_456)
	e := NewEntry("s1", "10.0.0.1", ReasonDuplicateVote, now)
	if e.ID == "" {
		t.Error("expected generated id")
	}
	if e.Timestamp != 123_456 || e.SurveyID != "s1" || e.VoterIP != "10.0.0.1" {
		t.Errorf("unexpected entry %+v", e)
	}
	if err := models.ValidateAlert(e); err != nil {
		t.Errorf("NewEntry() does not pass alert validation: %v", err)
	}
}

func TestZeroWindowUsesDefault(t *testing.T) {
	st, _ := testutil.SetupTestStore(t)
	log := New(st, 0)
	if log.window != DefaultWindow {
		t.Errorf("window = %v, want %v", log.window, DefaultWindow)
	}
}
