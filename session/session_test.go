// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/securevote/identity"
	"github.com/danielhkuo/securevote/models"
	"github.com/danielhkuo/securevote/protocol"
	"github.com/danielhkuo/securevote/store"
	"github.com/danielhkuo/securevote/testutil"
	"github.com/danielhkuo/securevote/transport"
)

type fixture struct {
	hub    *transport.MemoryHub
	client *transport.Client
	voter  *protocol.Voter
	store  *store.Store
	conn   *sql.DB
	now    time.Time
}

func setup(t *testing.T, seed ...models.Survey) *fixture {
	t.Helper()
	st, conn := testutil.SetupTestStore(t)
	if len(seed) > 0 {
		testutil.SeedSurveys(t, st, seed...)
	}

	hub := transport.NewMemoryHub()
	client := transport.NewClient(hub.NewBroker())
	require.NoError(t, client.Start(context.Background()))
	t.Cleanup(func() { client.Close() })

	f := &fixture{hub: hub, client: client, store: st, conn: conn, now: time.UnixMilli(1_700_000_000_000)}
	f.voter = protocol.NewVoter(client, st, identity.NewProvider(st), protocol.VoterOptions{Now: f.clock})
	return f
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) session(surveyID string) *Session {
	return New(f.voter, surveyID, Options{LoadTimeout: 50 * time.Millisecond, Now: f.clock})
}

func snapshotEvent(t *testing.T, catalog ...models.Survey) transport.Event {
	t.Helper()
	if catalog == nil {
		catalog = []models.Survey{}
	}
	return transport.Event{Kind: transport.EventMessage, Topic: models.TopicSyncData, Payload: testutil.MustMarshal(t, catalog)}
}

func publishedVotes(t *testing.T, hub *transport.MemoryHub) []models.VotePayload {
	t.Helper()
	var votes []models.VotePayload
	for _, p := range hub.Published(models.TopicVote) {
		var v models.VotePayload
		require.NoError(t, json.Unmarshal(p.Payload, &v))
		votes = append(votes, v)
	}
	return votes
}

func TestSession_NotFoundAfterTimeout(t *testing.T) {
	f := setup(t)
	s := f.session("missing")

	state, err := s.Run(context.Background(), f.client.Events(), nil)
	require.NoError(t, err)
	assert.Equal(t, StateNotFound, state)
	assert.NotEmpty(t, f.hub.Published(models.TopicSyncRequest))
	_, ok := s.Survey()
	assert.False(t, ok)
}

func TestSession_SnapshotThenVote(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	s := f.session("s1")

	require.Equal(t, StateLoading, s.Load(ctx))
	require.Len(t, f.hub.Published(models.TopicSyncRequest), 1)

	// A snapshot without our survey keeps us waiting.
	assert.Equal(t, StateLoading, s.HandleEvent(ctx, snapshotEvent(t, testutil.NewTestSurvey("other", "a", "b"))))

	assert.Equal(t, StateIdle, s.HandleEvent(ctx, snapshotEvent(t, testutil.NewTestSurvey("s1", "a", "b"))))
	survey, ok := s.Survey()
	require.True(t, ok)
	assert.Equal(t, "s1", survey.ID)

	state, err := s.Submit(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, state)
	assert.Equal(t, []models.VotePayload{{SurveyID: "s1", OptionID: "a", Count: 1}}, publishedVotes(t, f.hub))

	// Timeout after success changes nothing.
	assert.Equal(t, StateSuccess, s.Timeout())
}

func TestSession_ReconnectResendsSyncRequest(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	s := f.session("s1")

	s.Load(ctx)
	s.HandleEvent(ctx, transport.Event{Kind: transport.EventDisconnected})
	assert.False(t, s.Connected())
	s.HandleEvent(ctx, transport.Event{Kind: transport.EventConnected})
	assert.True(t, s.Connected())

	assert.Len(t, f.hub.Published(models.TopicSyncRequest), 2)
}

func TestSession_PriorVoteBlocksAtLoad(t *testing.T) {
	f := setup(t, testutil.NewTestSurvey("s1", "a", "b"))
	ctx := context.Background()

	first := f.session("s1")
	require.Equal(t, StateIdle, first.Load(ctx))
	_, err := first.Submit(ctx, "a")
	require.NoError(t, err)

	second := f.session("s1")
	assert.Equal(t, StateBlocked, second.Load(ctx))

	_, err = second.Submit(ctx, "b")
	assert.ErrorIs(t, err, ErrNotIdle)
	assert.Len(t, publishedVotes(t, f.hub), 1)
}

func TestSession_PriorVoteBlocksWhenSnapshotArrives(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	me, err := f.voter.Identity()
	require.NoError(t, err)
	require.NoError(t, f.store.AppendVote(models.VoteRecord{
		SurveyID:  "s1",
		OptionID:  "a",
		VoterIP:   me,
		Timestamp: f.now.Add(-time.Hour).UnixMilli(),
	}))

	s := f.session("s1")
	require.Equal(t, StateLoading, s.Load(ctx))

	assert.Equal(t, StateBlocked, s.HandleEvent(ctx, snapshotEvent(t, testutil.NewTestSurvey("s1", "a", "b"))))
	assert.Equal(t, StateBlocked, s.Timeout())

	_, err = s.Submit(ctx, "b")
	assert.ErrorIs(t, err, ErrNotIdle)
	assert.Empty(t, publishedVotes(t, f.hub))
}

func TestSession_RaceBetweenLoadAndSubmitIsBlocked(t *testing.T) {
	f := setup(t, testutil.NewTestSurvey("s1", "a", "b"))
	ctx := context.Background()

	tabA := f.session("s1")
	tabB := f.session("s1")
	require.Equal(t, StateIdle, tabA.Load(ctx))
	require.Equal(t, StateIdle, tabB.Load(ctx))

	state, err := tabA.Submit(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, StateSuccess, state)

	state, err = tabB.Submit(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, StateBlocked, state)

	assert.Len(t, publishedVotes(t, f.hub), 1)
	require.Len(t, f.hub.Published(models.TopicAlert), 1)

	entries, err := f.store.SecurityLog()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "s1", entries[0].SurveyID)
}

func TestSession_Expired(t *testing.T) {
	t.Run("deadline passed before load", func(t *testing.T) {
		f := setup(t)
		testutil.SeedSurveys(t, f.store, testutil.WithDeadline(testutil.NewTestSurvey("s1", "a", "b"), f.now.Add(-time.Minute)))

		assert.Equal(t, StateExpired, f.session("s1").Load(context.Background()))
	})

	t.Run("snapshot arrives already expired", func(t *testing.T) {
		f := setup(t)
		ctx := context.Background()
		s := f.session("s1")
		s.Load(ctx)

		expired := testutil.WithDeadline(testutil.NewTestSurvey("s1", "a", "b"), f.now.Add(-time.Second))
		assert.Equal(t, StateExpired, s.HandleEvent(ctx, snapshotEvent(t, expired)))
	})

	t.Run("stale idle session submits after deadline", func(t *testing.T) {
		f := setup(t)
		ctx := context.Background()
		testutil.SeedSurveys(t, f.store, testutil.WithDeadline(testutil.NewTestSurvey("s1", "a", "b"), f.now.Add(time.Minute)))

		s := f.session("s1")
		require.Equal(t, StateIdle, s.Load(ctx))

		f.now = f.now.Add(2 * time.Minute)
		state, err := s.Submit(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, StateExpired, state)
		assert.Empty(t, publishedVotes(t, f.hub))

		votes, err := f.store.Votes()
		require.NoError(t, err)
		assert.Empty(t, votes)
	})

	t.Run("deadline exactly now is still open", func(t *testing.T) {
		f := setup(t)
		testutil.SeedSurveys(t, f.store, testutil.WithDeadline(testutil.NewTestSurvey("s1", "a", "b"), f.now))

		assert.Equal(t, StateIdle, f.session("s1").Load(context.Background()))
	})
}

func TestSession_IdleFollowsEdits(t *testing.T) {
	f := setup(t, testutil.NewTestSurvey("s1", "a", "b"))
	ctx := context.Background()
	s := f.session("s1")
	require.Equal(t, StateIdle, s.Load(ctx))

	edited := testutil.NewTestSurvey("s1", "a", "b", "c")
	assert.Equal(t, StateIdle, s.HandleEvent(ctx, snapshotEvent(t, edited)))
	survey, _ := s.Survey()
	assert.Len(t, survey.Options, 3)

	// Deleted upstream: the session keeps what it has.
	assert.Equal(t, StateIdle, s.HandleEvent(ctx, snapshotEvent(t)))
	survey, ok := s.Survey()
	require.True(t, ok)
	assert.Len(t, survey.Options, 3)

	closed := testutil.WithDeadline(edited, f.now.Add(-time.Second))
	assert.Equal(t, StateExpired, s.HandleEvent(ctx, snapshotEvent(t, closed)))
}

func TestSession_SubmitErrorsKeepState(t *testing.T) {
	f := setup(t, testutil.NewTestSurvey("s1", "a", "b"))
	ctx := context.Background()
	s := f.session("s1")

	_, err := s.Submit(ctx, "a")
	assert.ErrorIs(t, err, ErrNotIdle, "still loading")

	require.Equal(t, StateIdle, s.Load(ctx))
	state, err := s.Submit(ctx, "zzz")
	assert.ErrorIs(t, err, ErrUnknownOption)
	assert.Equal(t, StateIdle, state)
	assert.Empty(t, publishedVotes(t, f.hub))
}

func TestSession_StorageFailureIsError(t *testing.T) {
	f := setup(t, testutil.NewTestSurvey("s1", "a", "b"))
	ctx := context.Background()
	s := f.session("s1")
	require.Equal(t, StateIdle, s.Load(ctx))

	f.conn.Close()

	state, err := s.Submit(ctx, "a")
	assert.Error(t, err)
	assert.Equal(t, StateError, state)
	assert.Error(t, s.Err())
	assert.Empty(t, publishedVotes(t, f.hub))
}

func TestSession_StorageFailureWhileLoading(t *testing.T) {
	f := setup(t)
	f.conn.Close()

	s := f.session("s1")
	assert.Equal(t, StateError, s.Load(context.Background()))
	assert.Error(t, s.Err())
}

func TestSession_TerminalStatesDoNotRevert(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	s := f.session("s1")
	s.Load(ctx)
	require.Equal(t, StateNotFound, s.Timeout())

	// The survey showing up late does not bring the session back.
	assert.Equal(t, StateNotFound, s.HandleEvent(ctx, snapshotEvent(t, testutil.NewTestSurvey("s1", "a", "b"))))
}

func TestSession_RunSubmitsChoiceOnceIdle(t *testing.T) {
	f := setup(t, testutil.NewTestSurvey("s1", "a", "b"))

	var seen []State
	s := New(f.voter, "s1", Options{LoadTimeout: time.Second, Now: f.clock, OnChange: func(st State) { seen = append(seen, st) }})

	choices := make(chan string, 1)
	choices <- "b"

	state, err := s.Run(context.Background(), f.client.Events(), choices)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, state)
	assert.Equal(t, []State{StateIdle, StateSuccess}, seen)
	assert.Equal(t, []models.VotePayload{{SurveyID: "s1", OptionID: "b", Count: 1}}, publishedVotes(t, f.hub))
}

func TestSession_RunStopsOnCancel(t *testing.T) {
	f := setup(t, testutil.NewTestSurvey("s1", "a", "b"))
	ctx, cancel := context.WithCancel(context.Background())

	s := New(f.voter, "s1", Options{OnChange: func(st State) {
		if st == StateIdle {
			cancel()
		}
	}})

	state, err := s.Run(ctx, f.client.Events(), make(chan string))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateIdle, state)
}

func TestStateTerminal(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{StateLoading, false},
		{StateIdle, false},
		{StateBlocked, true},
		{StateExpired, true},
		{StateNotFound, true},
		{StateSuccess, true},
		{StateError, true},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}
