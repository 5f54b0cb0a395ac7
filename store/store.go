// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielhkuo/securevote/models"
)

// ErrStorage wraps every serialization or storage-medium failure.
var ErrStorage = errors.New("storage error")

// Collection names
const (
	CollectionSurveys        = "surveys"
	CollectionVotes          = "votes"
	CollectionSecurityLogs   = "security_logs"
	CollectionClientIdentity = "client_identity"
)

const upsertCollection = `
	INSERT INTO collection (name, payload, updated_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
`

// Store is the node's durable key-value state. Every operation touches a
// single collection row, so readers never see a partial write.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get decodes the collection into dst, which must be a pointer to a slice.
// A collection that was never written leaves dst untouched.
func (s *Store) Get(collection string, dst any) error {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM collection WHERE name = $1`, collection).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrStorage, collection, err)
	}

	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrStorage, collection, err)
	}
	return nil
}

// Put replaces the whole collection.
func (s *Store) Put(collection string, records any) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrStorage, collection, err)
	}
	if string(payload) == "null" {
		payload = []byte("[]")
	}

	if _, err := s.db.Exec(upsertCollection, collection, string(payload), time.Now()); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStorage, collection, err)
	}
	return nil
}

// Append adds one record to the end of the collection.
func (s *Store) Append(collection string, record any) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: encode %s record: %v", ErrStorage, collection, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin %s: %v", ErrStorage, collection, err)
	}
	defer tx.Rollback()

	var records []json.RawMessage
	var payload string
	err = tx.QueryRow(`SELECT payload FROM collection WHERE name = $1`, collection).Scan(&payload)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("%w: read %s: %v", ErrStorage, collection, err)
	default:
		if err := json.Unmarshal([]byte(payload), &records); err != nil {
			return fmt.Errorf("%w: decode %s: %v", ErrStorage, collection, err)
		}
	}

	records = append(records, encoded)
	updated, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrStorage, collection, err)
	}

	if _, err := tx.Exec(upsertCollection, collection, string(updated), time.Now()); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStorage, collection, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit %s: %v", ErrStorage, collection, err)
	}
	return nil
}

// Surveys returns the survey catalog, never nil.
func (s *Store) Surveys() ([]models.Survey, error) {
	surveys := []models.Survey{}
	if err := s.Get(CollectionSurveys, &surveys); err != nil {
		return nil, err
	}
	return surveys, nil
}

func (s *Store) PutSurveys(surveys []models.Survey) error {
	return s.Put(CollectionSurveys, surveys)
}

// Votes returns the local vote ledger, never nil.
func (s *Store) Votes() ([]models.VoteRecord, error) {
	votes := []models.VoteRecord{}
	if err := s.Get(CollectionVotes, &votes); err != nil {
		return nil, err
	}
	return votes, nil
}

func (s *Store) AppendVote(vote models.VoteRecord) error {
	return s.Append(CollectionVotes, vote)
}

// SecurityLog returns the audit entries, newest first, never nil.
func (s *Store) SecurityLog() ([]models.SecurityLogEntry, error) {
	entries := []models.SecurityLogEntry{}
	if err := s.Get(CollectionSecurityLogs, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) PutSecurityLog(entries []models.SecurityLogEntry) error {
	return s.Put(CollectionSecurityLogs, entries)
}

// Identity returns the persisted client identity, if any.
func (s *Store) Identity() (string, bool, error) {
	var ids []string
	if err := s.Get(CollectionClientIdentity, &ids); err != nil {
		return "", false, err
	}
	if len(ids) == 0 || ids[0] == "" {
		return "", false, nil
	}
	return ids[0], true, nil
}

func (s *Store) PutIdentity(id string) error {
	return s.Put(CollectionClientIdentity, []string{id})
}
