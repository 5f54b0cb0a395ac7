// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielhkuo/securevote/models"
	"github.com/danielhkuo/securevote/protocol"
	"github.com/danielhkuo/securevote/transport"
)

// DefaultLoadTimeout bounds the wait for a first snapshot.
const DefaultLoadTimeout = 5 * time.Second

var (
	ErrNotIdle       = errors.New("session is not accepting votes")
	ErrUnknownOption = protocol.ErrUnknownOption
)

type State string

const (
	StateLoading  State = "loading"
	StateIdle     State = "idle"
	StateBlocked  State = "blocked"
	StateExpired  State = "expired"
	StateNotFound State = "not_found"
	StateSuccess  State = "success"
	StateError    State = "error"
)

// Terminal states never change again.
func (s State) Terminal() bool {
	switch s {
	case StateBlocked, StateExpired, StateNotFound, StateSuccess, StateError:
		return true
	}
	return false
}

var transitions = map[State][]State{
	StateLoading: {StateIdle, StateBlocked, StateExpired, StateNotFound, StateError},
	StateIdle:    {StateSuccess, StateBlocked, StateExpired, StateError},
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Options struct {
	LoadTimeout time.Duration
	Now         func() time.Time
	// OnChange is called after every state change.
	OnChange func(State)
}

// Session drives one attempt to vote on one survey. It is not safe for
// concurrent use; Run owns it.
type Session struct {
	voter    *protocol.Voter
	surveyID string
	opts     Options

	state     State
	survey    *models.Survey
	connected bool
	err       error
}

func New(v *protocol.Voter, surveyID string, opts Options) *Session {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{voter: v, surveyID: surveyID, opts: opts, state: StateLoading}
}

func (s *Session) State() State { return s.state }

// Survey is the local copy the session is showing, once resolved.
func (s *Session) Survey() (models.Survey, bool) {
	if s.survey == nil {
		return models.Survey{}, false
	}
	return *s.survey, true
}

// Err is the failure behind StateError.
func (s *Session) Err() error { return s.err }

// Connected is the connectivity indicator.
func (s *Session) Connected() bool { return s.connected }

// Load resolves the survey from the replica, asking the admin for a
// snapshot when it is missing.
func (s *Session) Load(ctx context.Context) State {
	if s.state != StateLoading {
		return s.state
	}
	if s.resolve() {
		return s.state
	}
	if err := s.voter.RequestSync(ctx); err != nil {
		slog.Warn("failed to request snapshot", "survey_id", s.surveyID, "error", err)
	}
	return s.state
}

// HandleEvent feeds one transport event through the voter and re-evaluates.
func (s *Session) HandleEvent(ctx context.Context, ev transport.Event) State {
	switch s.voter.HandleEvent(ctx, ev) {
	case protocol.UpdateConnected:
		s.connected = true
		if s.state == StateLoading {
			if err := s.voter.RequestSync(ctx); err != nil {
				slog.Warn("failed to request snapshot", "survey_id", s.surveyID, "error", err)
			}
		}
	case protocol.UpdateDisconnected:
		s.connected = false
	case protocol.UpdateSnapshot:
		switch s.state {
		case StateLoading:
			s.resolve()
		case StateIdle:
			s.refresh()
		}
	}
	return s.state
}

// Timeout ends the wait for a snapshot.
func (s *Session) Timeout() State {
	if s.state == StateLoading && s.survey == nil {
		slog.Info("survey not found before timeout", "survey_id", s.surveyID, "timeout", s.opts.LoadTimeout)
		s.transition(StateNotFound)
	}
	return s.state
}

// Submit casts a vote for optionID. Errors for a session that is not idle or
// an option the survey does not have leave the state unchanged.
func (s *Session) Submit(ctx context.Context, optionID string) (State, error) {
	if s.state != StateIdle {
		return s.state, ErrNotIdle
	}
	if _, ok := s.survey.Option(optionID); !ok {
		return s.state, ErrUnknownOption
	}

	outcome, err := s.voter.CastVote(ctx, *s.survey, optionID)
	if errors.Is(err, protocol.ErrUnknownOption) {
		return s.state, ErrUnknownOption
	}
	if err != nil {
		s.fail(fmt.Errorf("failed to record vote: %w", err))
		return s.state, s.err
	}

	switch outcome {
	case protocol.OutcomeAccepted:
		s.transition(StateSuccess)
	case protocol.OutcomeDuplicate:
		s.transition(StateBlocked)
	case protocol.OutcomeExpired:
		s.transition(StateExpired)
	}
	return s.state, nil
}

// Run loads the survey and processes events and choices until the session
// reaches a terminal state or ctx is done. Choices are only read while the
// session is idle. Leaving Run stops the load timer.
func (s *Session) Run(ctx context.Context, events <-chan transport.Event, choices <-chan string) (State, error) {
	s.Load(ctx)

	var timeout <-chan time.Time
	if s.state == StateLoading {
		timer := time.NewTimer(s.opts.LoadTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for !s.state.Terminal() {
		var pending <-chan string
		if s.state == StateIdle {
			pending = choices
		}

		select {
		case <-ctx.Done():
			return s.state, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return s.state, errors.New("transport closed")
			}
			s.HandleEvent(ctx, ev)
		case <-timeout:
			timeout = nil
			s.Timeout()
		case optionID := <-pending:
			if _, err := s.Submit(ctx, optionID); errors.Is(err, ErrUnknownOption) {
				slog.Warn("vote rejected", "survey_id", s.surveyID, "option_id", optionID, "error", err)
			}
		}
	}
	return s.state, s.err
}

// resolve looks the survey up and leaves loading if it is there.
func (s *Session) resolve() bool {
	survey, ok, err := s.voter.Resolve(s.surveyID)
	if err != nil {
		s.fail(fmt.Errorf("failed to read local catalog: %w", err))
		return true
	}
	if !ok {
		return false
	}
	s.survey = &survey
	s.evaluate()
	return true
}

// refresh keeps an idle session's copy current. A survey deleted from the
// catalog keeps its last known copy.
func (s *Session) refresh() {
	survey, ok, err := s.voter.Resolve(s.surveyID)
	if err != nil || !ok {
		return
	}
	s.survey = &survey
	s.evaluate()
}

func (s *Session) evaluate() {
	if s.survey.Expired(s.opts.Now()) {
		s.transition(StateExpired)
		return
	}
	voted, err := s.voter.HasVoted(s.surveyID)
	if err != nil {
		s.fail(fmt.Errorf("failed to read vote ledger: %w", err))
		return
	}
	if voted {
		s.transition(StateBlocked)
		return
	}
	if s.state == StateLoading {
		s.transition(StateIdle)
	}
}

func (s *Session) fail(err error) {
	s.err = err
	s.transition(StateError)
}

func (s *Session) transition(to State) {
	if s.state == to {
		return
	}
	if !allowed(s.state, to) {
		slog.Error("invalid session transition ignored", "from", s.state, "to", to)
		return
	}

	slog.Info("session state changed", "survey_id", s.surveyID, "from", s.state, "to", to)
	s.state = to
	if s.opts.OnChange != nil {
		s.opts.OnChange(to)
	}
}
