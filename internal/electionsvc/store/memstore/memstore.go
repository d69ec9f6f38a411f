// Package memstore keeps votes and elections in memory. It backs the
// service and handler tests and stores copies, so callers never share
// state with it.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/avvvet/electionday-services/internal/electionsvc/models"
	"github.com/avvvet/electionday-services/internal/electionsvc/store"
)

type Store struct {
	mu        sync.Mutex
	votes     map[string]*models.Vote
	elections map[string]*models.ProporzElection
	owners    map[string]string

	// FailReplace makes ReplaceResults fail with the given error.
	FailReplace error
}

func New() *Store {
	return &Store{
		votes:     map[string]*models.Vote{},
		elections: map[string]*models.ProporzElection{},
		owners:    map[string]string{},
	}
}

func clone[T any](v *T) *T {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		panic(err)
	}
	return out
}

func now() *time.Time {
	t := time.Now().UTC()
	return &t
}

// Votes returns the vote store view.
func (s *Store) Votes() *VoteStore { return &VoteStore{s} }

// Elections returns the election store view.
func (s *Store) Elections() *ElectionStore { return &ElectionStore{s} }

type VoteStore struct{ s *Store }

func (v *VoteStore) CreateVote(_ context.Context, principalID string, vote *models.Vote) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	vote.LastModified = now()
	v.s.votes[vote.ID] = clone(vote)
	v.s.owners[vote.ID] = principalID
	return nil
}

func (v *VoteStore) GetVote(_ context.Context, principalID, id string) (*models.Vote, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	vote, ok := v.s.votes[id]
	if !ok || v.s.owners[id] != principalID {
		return nil, store.ErrNotFound
	}
	return clone(vote), nil
}

func (v *VoteStore) ListVotes(_ context.Context, principalID string) ([]*models.Vote, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*models.Vote
	for id, vote := range v.s.votes {
		if v.s.owners[id] == principalID {
			c := clone(vote)
			c.Ballots = nil
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (v *VoteStore) ReplaceResults(_ context.Context, vote *models.Vote) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.FailReplace != nil {
		return v.s.FailReplace
	}
	if _, ok := v.s.votes[vote.ID]; !ok {
		return store.ErrNotFound
	}
	vote.LastModified = now()
	v.s.votes[vote.ID] = clone(vote)
	return nil
}

type ElectionStore struct{ s *Store }

func (e *ElectionStore) CreateElection(_ context.Context, principalID string, election *models.Election) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	election.LastModified = now()
	e.s.elections[election.ID] = &models.ProporzElection{Election: *clone(election)}
	e.s.owners[election.ID] = principalID
	return nil
}

func (e *ElectionStore) GetElection(_ context.Context, principalID, id string) (*models.ProporzElection, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	election, ok := e.s.elections[id]
	if !ok || e.s.owners[id] != principalID {
		return nil, store.ErrNotFound
	}
	return clone(election), nil
}

func (e *ElectionStore) ListElections(_ context.Context, principalID string) ([]*models.Election, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	var out []*models.Election
	for id, election := range e.s.elections {
		if e.s.owners[id] == principalID {
			c := clone(&election.Election)
			c.Candidates, c.Results = nil, nil
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (e *ElectionStore) ReplaceResults(_ context.Context, election *models.ProporzElection) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if e.s.FailReplace != nil {
		return e.s.FailReplace
	}
	if _, ok := e.s.elections[election.ID]; !ok {
		return store.ErrNotFound
	}
	election.LastModified = now()
	e.s.elections[election.ID] = clone(election)
	return nil
}
