// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package guard

import (
	"errors"

	"github.com/danielhkuo/securevote/models"
	"github.com/danielhkuo/securevote/store"
)

var ErrAlreadyVoted = errors.New("identity already voted on this survey")

// HasVoted reports whether the ledger holds a vote for the pair.
func HasVoted(votes []models.VoteRecord, surveyID, identity string) bool {
	for _, v := range votes {
		if v.SurveyID == surveyID && v.VoterIP == identity {
			return true
		}
	}
	return false
}

// Guard checks the node's own ledger. It only knows about votes this node
// recorded; it is advisory, not globally authoritative.
type Guard struct {
	store *store.Store
}

func New(st *store.Store) *Guard {
	return &Guard{store: st}
}

func (g *Guard) HasVoted(surveyID, identity string) (bool, error) {
	votes, err := g.store.Votes()
	if err != nil {
		return false, err
	}
	return HasVoted(votes, surveyID, identity), nil
}

// Record re-checks the ledger and appends the vote. The check and the append
// are separate statements; another process sharing the store can still race
// between them.
func (g *Guard) Record(vote models.VoteRecord) error {
	voted, err := g.HasVoted(vote.SurveyID, vote.VoterIP)
	if err != nil {
		return err
	}
	if voted {
		return ErrAlreadyVoted
	}
	return g.store.AppendVote(vote)
}
