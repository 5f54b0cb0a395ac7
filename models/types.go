package models

import "time"

// Topics on the broker. Payloads are UTF-8 JSON.
const (
	TopicVote        = "encuestas/voto"
	TopicAlert       = "encuestas/alerta"
	TopicSyncRequest = "encuestas/sync/request"
	TopicSyncData    = "encuestas/sync/data"
)

// Node roles
const (
	RoleAdmin = "admin"
	RoleVoter = "voter"
)

// Domain types
//
// Timestamps are Unix milliseconds so payloads stay compatible with
// browser clients.

type Option struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

type Survey struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Options     []Option `json:"options"`
	Active      bool     `json:"active"`
	CreatedAt   int64    `json:"createdAt"`
	Deadline    *int64   `json:"deadline,omitempty"`
}

// Expired reports whether the deadline is strictly before now.
func (s Survey) Expired(now time.Time) bool {
	return s.Deadline != nil && now.UnixMilli() > *s.Deadline
}

// Option returns the option with the given id.
func (s Survey) Option(id string) (Option, bool) {
	for _, o := range s.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// TotalVotes sums the option counts.
func (s Survey) TotalVotes() int {
	total := 0
	for _, o := range s.Options {
		total += o.Votes
	}
	return total
}

type VoteRecord struct {
	SurveyID  string `json:"surveyId"`
	OptionID  string `json:"optionId"`
	VoterIP   string `json:"voterIp"`
	Timestamp int64  `json:"timestamp"`
}

type SecurityLogEntry struct {
	ID        string `json:"id"`
	SurveyID  string `json:"surveyId"`
	VoterIP   string `json:"voterIp"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

// FindSurvey returns the survey with the given id from a catalog.
func FindSurvey(catalog []Survey, id string) (Survey, bool) {
	for _, s := range catalog {
		if s.ID == id {
			return s, true
		}
	}
	return Survey{}, false
}

// Request types (admin HTTP API)

type SurveyRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Options     []OptionRequest `json:"options"`
	Active      *bool           `json:"active,omitempty"`
	Deadline    *int64          `json:"deadline,omitempty"`
}

// ID is empty for options that should be allocated.
type OptionRequest struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

// Response types

type SurveyLinkResponse struct {
	SurveyID string `json:"survey_id"`
	URL      string `json:"url"`
}

type StatusResponse struct {
	Role      string `json:"role"`
	Connected bool   `json:"connected"`
	Surveys   int    `json:"surveys"`
	Alerts    int    `json:"alerts"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
