package service

import (
	"context"

	"github.com/avvvet/electionday-services/internal/electionsvc/models"
)

type VoteStore interface {
	CreateVote(ctx context.Context, principalID string, vote *models.Vote) error
	GetVote(ctx context.Context, principalID, id string) (*models.Vote, error)
	ListVotes(ctx context.Context, principalID string) ([]*models.Vote, error)
	ReplaceResults(ctx context.Context, vote *models.Vote) error
}

type ElectionStore interface {
	CreateElection(ctx context.Context, principalID string, election *models.Election) error
	GetElection(ctx context.Context, principalID, id string) (*models.ProporzElection, error)
	ListElections(ctx context.Context, principalID string) ([]*models.Election, error)
	ReplaceResults(ctx context.Context, election *models.ProporzElection) error
}

// Notifier announces replaced results to the other services.
type Notifier interface {
	PublishChanged(changed models.Changed) error
}
