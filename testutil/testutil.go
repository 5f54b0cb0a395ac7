// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielhkuo/securevote/cliparse"
	"github.com/danielhkuo/securevote/db"
	"github.com/danielhkuo/securevote/models"
	"github.com/danielhkuo/securevote/store"
)

// SetupTestDB creates a fresh SQLite database with the full schema in the
// test's temp dir. It is closed when the test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.Open(db.TypeSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return conn
}

// SetupTestStore returns a store over a fresh test database, plus the
// database so tests can break it.
func SetupTestStore(t *testing.T) (*store.Store, *sql.DB) {
	t.Helper()
	conn := SetupTestDB(t)
	return store.New(conn), conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Role:           models.RoleAdmin,
		Port:           3318,
		DatabaseType:   db.TypeSQLite,
		DatabaseURL:    "test.db",
		BrokerURL:      "memory://",
		ClientPrefix:   "encuestas_test_",
		CleanSession:   true,
		ConnectTimeout: time.Second,
		LoadTimeout:    200 * time.Millisecond,
		DedupWindow:    5 * time.Second,
		PublicBaseURL:  "http://vote.test",
		LogLevel:       "debug",
		LogFormat:      "text",
	}
}

// NewTestSurvey builds a survey whose option ids equal their texts.
func NewTestSurvey(id string, options ...string) models.Survey {
	s := models.Survey{
		ID:          id,
		Title:       "Survey " + id,
		Description: "A test survey",
		Active:      true,
		CreatedAt:   time.Now().UnixMilli(),
	}
	for _, o := range options {
		s.Options = append(s.Options, models.Option{ID: o, Text: o})
	}
	return s
}

// WithDeadline returns a copy of s closing at t.
func WithDeadline(s models.Survey, t time.Time) models.Survey {
	d := t.UnixMilli()
	s.Deadline = &d
	return s
}

// SeedSurveys writes the catalog directly to the store.
func SeedSurveys(t *testing.T, st *store.Store, surveys ...models.Survey) {
	t.Helper()
	if err := st.PutSurveys(surveys); err != nil {
		t.Fatalf("Failed to seed surveys: %v", err)
	}
}

// MustMarshal encodes v or fails the test.
func MustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	return b
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
