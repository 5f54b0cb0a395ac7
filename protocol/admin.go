// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/danielhkuo/securevote/audit"
	"github.com/danielhkuo/securevote/guard"
	"github.com/danielhkuo/securevote/identity"
	"github.com/danielhkuo/securevote/models"
	"github.com/danielhkuo/securevote/store"
	"github.com/danielhkuo/securevote/transport"
)

// ReasonAdminDuplicate is logged when strict mode refuses a vote.
const ReasonAdminDuplicate = "blocked by admin: identity already counted"

type AdminOptions struct {
	DedupWindow time.Duration
	// Strict de-duplicates incoming votes by (survey, identity) on the
	// admin's own ledger instead of trusting each voter's guard.
	Strict bool
	Now    func() time.Time
}

// Admin is the single writer. It owns the catalog, broadcasts full
// snapshots and sums vote increments reported by voters.
//
// In the default mode the admin trusts every voter's local guard: two tabs
// on one device racing each other can over-count. Strict mode trades that
// for requiring voters to send their identity.
type Admin struct {
	mu        sync.Mutex
	pub       Publisher
	store     *store.Store
	guard     *guard.Guard
	audit     *audit.Log
	strict    bool
	now       func() time.Time
	observers []func(models.SecurityLogEntry)
	connected bool
}

func NewAdmin(pub Publisher, st *store.Store, opts AdminOptions) *Admin {
	return &Admin{
		pub:    pub,
		store:  st,
		guard:  guard.New(st),
		audit:  audit.New(st, opts.DedupWindow),
		strict: opts.Strict,
		now:    nowFunc(opts.Now),
	}
}

// OnAlert registers an observer for newly logged security entries.
func (a *Admin) OnAlert(fn func(models.SecurityLogEntry)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, fn)
}

// Run handles transport events until ctx is done.
func (a *Admin) Run(ctx context.Context, events <-chan transport.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			a.HandleEvent(ctx, ev)
		}
	}
}

func (a *Admin) HandleEvent(ctx context.Context, ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnected:
		a.setConnected(true)
		if err := a.Broadcast(ctx); err != nil {
			slog.Error("failed to broadcast catalog on connect", "error", err)
		}
		return
	case transport.EventDisconnected:
		a.setConnected(false)
		return
	}

	msg, ok := decode(ev)
	if !ok {
		return
	}

	switch msg.Kind {
	case models.KindVote:
		if err := a.applyVote(*msg.Vote); err != nil {
			slog.Error("failed to apply vote", "survey_id", msg.Vote.SurveyID, "error", err)
		}
	case models.KindAlert:
		if err := a.applyAlert(*msg.Alert); err != nil {
			slog.Error("failed to log alert", "survey_id", msg.Alert.SurveyID, "error", err)
		}
	case models.KindSyncRequest:
		if err := a.Broadcast(ctx); err != nil {
			slog.Error("failed to answer sync request", "error", err)
		}
	case models.KindSyncData:
		// Our own retained snapshot coming back
	}
}

func (a *Admin) setConnected(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = v
}

// Connected is the broker connectivity indicator as last reported by the
// transport.
func (a *Admin) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// Broadcast publishes the whole catalog as the retained snapshot.
func (a *Admin) Broadcast(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	surveys, err := a.store.Surveys()
	if err != nil {
		return err
	}
	return a.broadcast(ctx, surveys)
}

// broadcast publishes under a.mu so an older catalog can never be
// retained after a newer one.
func (a *Admin) broadcast(ctx context.Context, surveys []models.Survey) error {
	if err := a.pub.PublishSyncData(ctx, surveys); err != nil {
		return err
	}
	slog.Info("catalog broadcast", "surveys", len(surveys))
	return nil
}

func (a *Admin) applyVote(v models.VotePayload) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	surveys, err := a.store.Surveys()
	if err != nil {
		return err
	}

	si, oi := indexOf(surveys, v.SurveyID, v.OptionID)
	if si < 0 || oi < 0 {
		slog.Warn("vote for unknown survey or option ignored", "survey_id", v.SurveyID, "option_id", v.OptionID)
		return nil
	}

	if a.strict {
		counted, err := a.admitStrict(v)
		if err != nil || !counted {
			return err
		}
	}

	surveys[si].Options[oi].Votes += v.Count
	if err := a.store.PutSurveys(surveys); err != nil {
		return err
	}

	slog.Info("vote applied",
		"survey_id", v.SurveyID,
		"option_id", v.OptionID,
		"count", v.Count,
		"total", surveys[si].Options[oi].Votes,
	)
	return nil
}

// admitStrict records the vote on the admin ledger. It reports false for
// votes that must not be counted. Caller holds a.mu.
func (a *Admin) admitStrict(v models.VotePayload) (bool, error) {
	if v.VoterIP == "" {
		slog.Warn("strict mode: vote without identity dropped", "survey_id", v.SurveyID)
		return false, nil
	}

	err := a.guard.Record(models.VoteRecord{
		SurveyID:  v.SurveyID,
		OptionID:  v.OptionID,
		VoterIP:   v.VoterIP,
		Timestamp: a.now().UnixMilli(),
	})
	if errors.Is(err, guard.ErrAlreadyVoted) {
		entry := audit.NewEntry(v.SurveyID, v.VoterIP, ReasonAdminDuplicate, a.now())
		added, err := a.audit.Record(entry)
		if err != nil {
			return false, err
		}
		if added {
			a.notify(entry)
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *Admin) applyAlert(entry models.SecurityLogEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	added, err := a.audit.Record(entry)
	if err != nil {
		return err
	}
	if added {
		a.notify(entry)
	}
	return nil
}

// notify runs observers. Caller holds a.mu.
func (a *Admin) notify(entry models.SecurityLogEntry) {
	for _, fn := range a.observers {
		fn(entry)
	}
}

// Surveys returns the catalog.
func (a *Admin) Surveys() ([]models.Survey, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.Surveys()
}

func (a *Admin) Survey(id string) (models.Survey, error) {
	surveys, err := a.Surveys()
	if err != nil {
		return models.Survey{}, err
	}
	s, ok := models.FindSurvey(surveys, id)
	if !ok {
		return models.Survey{}, ErrSurveyNotFound
	}
	return s, nil
}

// SecurityLog returns the audit entries, newest first.
func (a *Admin) SecurityLog() ([]models.SecurityLogEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.audit.Entries()
}

// Votes returns the admin's own ledger (only filled in strict mode).
func (a *Admin) Votes() ([]models.VoteRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.Votes()
}

// CreateSurvey allocates ids, stores the survey and broadcasts the catalog.
func (a *Admin) CreateSurvey(ctx context.Context, req models.SurveyRequest) (models.Survey, error) {
	if err := validateRequest(req); err != nil {
		return models.Survey{}, err
	}

	survey := models.Survey{
		ID:          identity.NewID(),
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Active:      true,
		CreatedAt:   a.now().UnixMilli(),
		Deadline:    req.Deadline,
	}
	if req.Active != nil {
		survey.Active = *req.Active
	}
	for _, o := range req.Options {
		survey.Options = append(survey.Options, models.Option{
			ID:   identity.NewID(),
			Text: strings.TrimSpace(o.Text),
		})
	}

	return survey, a.mutate(ctx, func(surveys []models.Survey) ([]models.Survey, error) {
		return append(surveys, survey), nil
	})
}

// UpdateSurvey edits a survey in place. The id, creation time and the
// vote counts of options that keep their id are preserved.
func (a *Admin) UpdateSurvey(ctx context.Context, id string, req models.SurveyRequest) (models.Survey, error) {
	if err := validateRequest(req); err != nil {
		return models.Survey{}, err
	}

	var updated models.Survey
	err := a.mutate(ctx, func(surveys []models.Survey) ([]models.Survey, error) {
		i := surveyIndex(surveys, id)
		if i < 0 {
			return nil, ErrSurveyNotFound
		}
		current := surveys[i]

		updated = models.Survey{
			ID:          current.ID,
			Title:       strings.TrimSpace(req.Title),
			Description: strings.TrimSpace(req.Description),
			Active:      current.Active,
			CreatedAt:   current.CreatedAt,
			Deadline:    req.Deadline,
		}
		if req.Active != nil {
			updated.Active = *req.Active
		}
		for _, o := range req.Options {
			opt := models.Option{ID: identity.NewID(), Text: strings.TrimSpace(o.Text)}
			if existing, ok := current.Option(o.ID); ok && o.ID != "" {
				opt.ID = existing.ID
				opt.Votes = existing.Votes
			}
			updated.Options = append(updated.Options, opt)
		}

		surveys[i] = updated
		return surveys, nil
	})
	return updated, err
}

// DeleteSurvey removes a survey; voters learn about it from the next
// snapshot.
func (a *Admin) DeleteSurvey(ctx context.Context, id string) error {
	return a.mutate(ctx, func(surveys []models.Survey) ([]models.Survey, error) {
		i := surveyIndex(surveys, id)
		if i < 0 {
			return nil, ErrSurveyNotFound
		}
		return append(surveys[:i], surveys[i+1:]...), nil
	})
}

// mutate applies fn to the catalog, persists it and broadcasts the result.
// A failed broadcast is logged; the mutation stands.
func (a *Admin) mutate(ctx context.Context, fn func([]models.Survey) ([]models.Survey, error)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	surveys, err := a.store.Surveys()
	if err != nil {
		return err
	}
	surveys, err = fn(surveys)
	if err != nil {
		return err
	}
	// Voters drop a snapshot that fails validation, so never store one.
	if err := models.ValidateCatalog(surveys); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSurvey, err)
	}
	if err := a.store.PutSurveys(surveys); err != nil {
		return err
	}

	if err := a.broadcast(ctx, surveys); err != nil {
		slog.Error("failed to broadcast catalog", "error", err)
	}
	return nil
}

func validateRequest(req models.SurveyRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidSurvey)
	}
	if len(req.Options) < 2 {
		return fmt.Errorf("%w: at least two options are required", ErrInvalidSurvey)
	}
	ids := make(map[string]bool, len(req.Options))
	for i, o := range req.Options {
		if strings.TrimSpace(o.Text) == "" {
			return fmt.Errorf("%w: option %d has no text", ErrInvalidSurvey, i+1)
		}
		if o.ID == "" {
			continue
		}
		if ids[o.ID] {
			return fmt.Errorf("%w: option id %q is repeated", ErrInvalidSurvey, o.ID)
		}
		ids[o.ID] = true
	}
	if req.Deadline != nil && *req.Deadline <= 0 {
		return fmt.Errorf("%w: deadline must be a Unix millisecond timestamp", ErrInvalidSurvey)
	}
	return nil
}

func surveyIndex(surveys []models.Survey, id string) int {
	for i, s := range surveys {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func indexOf(surveys []models.Survey, surveyID, optionID string) (int, int) {
	si := surveyIndex(surveys, surveyID)
	if si < 0 {
		return -1, -1
	}
	for oi, o := range surveys[si].Options {
		if o.ID == optionID {
			return si, oi
		}
	}
	return si, -1
}
