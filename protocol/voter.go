// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package protocol

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/danielhkuo/securevote/audit"
	"github.com/danielhkuo/securevote/guard"
	"github.com/danielhkuo/securevote/identity"
	"github.com/danielhkuo/securevote/models"
	"github.com/danielhkuo/securevote/store"
	"github.com/danielhkuo/securevote/transport"
)

// Update says what a transport event changed on a voter.
type Update int

const (
	UpdateNone Update = iota
	UpdateSnapshot
	UpdateConnected
	UpdateDisconnected
)

// Outcome of a vote attempt.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeDuplicate
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeExpired:
		return "expired"
	default:
		return "unknown"
	}
}

type VoterOptions struct {
	DedupWindow time.Duration
	// Strict adds the voter identity to published votes.
	Strict bool
	Now    func() time.Time
}

// Voter keeps a read replica of the catalog, enforces the local guard and
// reports votes and blocked attempts to the admin.
type Voter struct {
	pub    Publisher
	store  *store.Store
	ids    *identity.Provider
	guard  *guard.Guard
	audit  *audit.Log
	strict bool
	now    func() time.Time
}

func NewVoter(pub Publisher, st *store.Store, ids *identity.Provider, opts VoterOptions) *Voter {
	return &Voter{
		pub:    pub,
		store:  st,
		ids:    ids,
		guard:  guard.New(st),
		audit:  audit.New(st, opts.DedupWindow),
		strict: opts.Strict,
		now:    nowFunc(opts.Now),
	}
}

func (v *Voter) Identity() (string, error) {
	return v.ids.Identity()
}

// Resolve looks the survey up in the local replica.
func (v *Voter) Resolve(surveyID string) (models.Survey, bool, error) {
	surveys, err := v.store.Surveys()
	if err != nil {
		return models.Survey{}, false, err
	}
	s, ok := models.FindSurvey(surveys, surveyID)
	return s, ok, nil
}

// HasVoted checks the local ledger for this device.
func (v *Voter) HasVoted(surveyID string) (bool, error) {
	id, err := v.ids.Identity()
	if err != nil {
		return false, err
	}
	return v.guard.HasVoted(surveyID, id)
}

func (v *Voter) RequestSync(ctx context.Context) error {
	return v.pub.PublishSyncRequest(ctx)
}

// HandleEvent applies snapshots to the replica. Votes, alerts and sync
// requests are the admin's business and are ignored here.
func (v *Voter) HandleEvent(ctx context.Context, ev transport.Event) Update {
	switch ev.Kind {
	case transport.EventConnected:
		return UpdateConnected
	case transport.EventDisconnected:
		return UpdateDisconnected
	}

	if ev.Topic != models.TopicSyncData {
		return UpdateNone
	}
	msg, ok := decode(ev)
	if !ok {
		return UpdateNone
	}
	if err := v.ApplySnapshot(msg.Catalog); err != nil {
		slog.Error("failed to apply snapshot", "error", err)
		return UpdateNone
	}
	return UpdateSnapshot
}

// ApplySnapshot replaces the replica. The last snapshot wins; there is no
// merge and no version check.
func (v *Voter) ApplySnapshot(catalog []models.Survey) error {
	if err := v.store.PutSurveys(catalog); err != nil {
		return err
	}
	slog.Debug("snapshot applied", "surveys", len(catalog))
	return nil
}

// CastVote submits a vote for optionID on survey. The guard runs against
// the ledger at the moment of the call, so a vote accepted in another
// session after the survey was loaded is still caught.
//
// A storage failure while recording the vote is returned; the increment
// and publish steps after it only log failures.
func (v *Voter) CastVote(ctx context.Context, survey models.Survey, optionID string) (Outcome, error) {
	now := v.now()
	if survey.Expired(now) {
		return OutcomeExpired, nil
	}
	if _, ok := survey.Option(optionID); !ok {
		return 0, ErrUnknownOption
	}

	voter, err := v.ids.Identity()
	if err != nil {
		return 0, err
	}

	voted, err := v.guard.HasVoted(survey.ID, voter)
	if err != nil {
		return 0, err
	}
	if voted {
		v.reportDuplicate(ctx, survey.ID, voter, now)
		return OutcomeDuplicate, nil
	}

	err = v.guard.Record(models.VoteRecord{
		SurveyID:  survey.ID,
		OptionID:  optionID,
		VoterIP:   voter,
		Timestamp: now.UnixMilli(),
	})
	if errors.Is(err, guard.ErrAlreadyVoted) {
		v.reportDuplicate(ctx, survey.ID, voter, now)
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return 0, err
	}

	if err := v.incrementLocal(survey.ID, optionID); err != nil {
		slog.Warn("optimistic increment failed", "survey_id", survey.ID, "error", err)
	}

	vote := models.VotePayload{SurveyID: survey.ID, OptionID: optionID, Count: 1}
	if v.strict {
		vote.VoterIP = voter
	}
	if err := v.pub.PublishVote(ctx, vote); err != nil {
		slog.Warn("failed to publish vote", "survey_id", survey.ID, "error", err)
	}

	slog.Info("vote cast", "survey_id", survey.ID, "option_id", optionID)
	return OutcomeAccepted, nil
}

// reportDuplicate logs the blocked attempt and always sends the alert; the
// admin applies its own de-duplication.
func (v *Voter) reportDuplicate(ctx context.Context, surveyID, voter string, now time.Time) {
	entry := audit.NewEntry(surveyID, voter, audit.ReasonDuplicateVote, now)
	if _, err := v.audit.Record(entry); err != nil {
		slog.Warn("failed to log duplicate attempt", "survey_id", surveyID, "error", err)
	}
	if err := v.pub.PublishAlert(ctx, entry); err != nil {
		slog.Warn("failed to publish alert", "survey_id", surveyID, "error", err)
	}
}

// incrementLocal bumps the replica so the result shows before the next
// snapshot. The snapshot overwrites it either way.
func (v *Voter) incrementLocal(surveyID, optionID string) error {
	surveys, err := v.store.Surveys()
	if err != nil {
		return err
	}
	si, oi := indexOf(surveys, surveyID, optionID)
	if si < 0 || oi < 0 {
		return nil
	}
	surveys[si].Options[oi].Votes++
	return v.store.PutSurveys(surveys)
}
