// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/securevote/identity"
	"github.com/danielhkuo/securevote/models"
	"github.com/danielhkuo/securevote/testutil"
	"github.com/danielhkuo/securevote/transport"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func startNode(t *testing.T, ctx context.Context, hub *transport.MemoryHub) *transport.Client {
	t.Helper()
	c := transport.NewClient(hub.NewBroker())
	require.NoError(t, c.Start(ctx))
	t.Cleanup(func() { c.Close() })
	return c
}

func startVoter(t *testing.T, ctx context.Context, hub *transport.MemoryHub) *Voter {
	t.Helper()
	st, _ := testutil.SetupTestStore(t)
	c := startNode(t, ctx, hub)
	v := NewVoter(c, st, identity.NewProvider(st), VoterOptions{})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-c.Events():
				v.HandleEvent(ctx, ev)
			}
		}
	}()
	return v
}

func TestEndToEnd_VotesConvergeAtAdmin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := transport.NewMemoryHub()

	adminStore, _ := testutil.SetupTestStore(t)
	adminClient := startNode(t, ctx, hub)
	admin := NewAdmin(adminClient, adminStore, AdminOptions{})
	go admin.Run(ctx, adminClient.Events())

	survey, err := admin.CreateSurvey(ctx, models.SurveyRequest{
		Title:   "Lunch",
		Options: []models.OptionRequest{{Text: "Pizza"}, {Text: "Sushi"}},
	})
	require.NoError(t, err)
	pizza := survey.Options[0].ID

	// Voters that join late get the retained snapshot.
	alice := startVoter(t, ctx, hub)
	bob := startVoter(t, ctx, hub)

	resolved := func(v *Voter) func() bool {
		return func() bool {
			_, ok, err := v.Resolve(survey.ID)
			return err == nil && ok
		}
	}
	require.Eventually(t, resolved(alice), waitFor, tick)
	require.Eventually(t, resolved(bob), waitFor, tick)

	for _, v := range []*Voter{alice, bob} {
		local, _, err := v.Resolve(survey.ID)
		require.NoError(t, err)
		outcome, err := v.CastVote(ctx, local, pizza)
		require.NoError(t, err)
		require.Equal(t, OutcomeAccepted, outcome)
	}

	require.Eventually(t, func() bool {
		s, err := admin.Survey(survey.ID)
		return err == nil && s.Options[0].Votes == 2
	}, waitFor, tick)

	// A repeat from alice shows up in the admin's log, not in the count.
	local, _, err := alice.Resolve(survey.ID)
	require.NoError(t, err)
	outcome, err := alice.CastVote(ctx, local, pizza)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	require.Eventually(t, func() bool {
		entries, err := admin.SecurityLog()
		return err == nil && len(entries) == 1
	}, waitFor, tick)

	s, err := admin.Survey(survey.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalVotes())

	// A sync request brings the admin's totals back to the voters.
	require.NoError(t, bob.RequestSync(ctx))
	require.Eventually(t, func() bool {
		s, ok, err := bob.Resolve(survey.ID)
		return err == nil && ok && s.Options[0].Votes == 2
	}, waitFor, tick)
}
