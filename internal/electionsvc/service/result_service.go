package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/avvvet/electionday-services/internal/electionsvc/models"
)

var ErrInvalid = errors.New("invalid")

// ResultService serves vote and election definitions, summaries and
// exports.
type ResultService struct {
	votes     VoteStore
	elections ElectionStore
	locales   []string
}

func NewResultService(votes VoteStore, elections ElectionStore, locales []string) *ResultService {
	return &ResultService{votes: votes, elections: elections, locales: locales}
}

// VoteDefinition is the payload creating a vote.
type VoteDefinition struct {
	Title     map[string]string `json:"title"`
	Domain    string            `json:"domain"`
	Segment   string            `json:"domain_segment"`
	Date      string            `json:"date"`
	Type      string            `json:"type"`
	HasExpats bool              `json:"has_expats"`
}

// ElectionDefinition is the payload creating an election.
type ElectionDefinition struct {
	Title            map[string]string `json:"title"`
	Type             string            `json:"type"`
	Domain           string            `json:"domain"`
	Segment          string            `json:"domain_segment"`
	Supersegment     string            `json:"domain_supersegment"`
	Date             string            `json:"date"`
	NumberOfMandates int               `json:"number_of_mandates"`
	MajorityType     string            `json:"majority_type"`
	HasExpats        bool              `json:"has_expats"`
}

func parseDate(value string) (time.Time, error) {
	date, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalid, value)
	}
	return date, nil
}

func (s *ResultService) CreateVote(ctx context.Context, principalID string, def VoteDefinition) (*models.Vote, error) {
	date, err := parseDate(def.Date)
	if err != nil {
		return nil, err
	}
	if def.Domain == "" {
		return nil, fmt.Errorf("%w: missing domain", ErrInvalid)
	}
	if def.Type == "" {
		def.Type = models.VoteSimple
	}
	if def.Type != models.VoteSimple && def.Type != models.VoteComplex {
		return nil, fmt.Errorf("%w: vote type %q", ErrInvalid, def.Type)
	}

	vote := &models.Vote{
		ID:                uuid.NewString(),
		TitleTranslations: def.Title,
		Domain:            def.Domain,
		DomainSegment:     def.Segment,
		Date:              date,
		Type:              def.Type,
		HasExpats:         def.HasExpats,
	}
	if vote.TitleTranslations == nil {
		vote.TitleTranslations = map[string]string{}
	}
	vote.EnsureBallot(models.BallotProposal)
	if vote.Type == models.VoteComplex {
		vote.EnsureBallot(models.BallotCounterProposal)
		vote.EnsureBallot(models.BallotTieBreaker)
	}

	if err := s.votes.CreateVote(ctx, principalID, vote); err != nil {
		return nil, err
	}
	return vote, nil
}

func (s *ResultService) CreateElection(ctx context.Context, principalID string, def ElectionDefinition) (*models.Election, error) {
	date, err := parseDate(def.Date)
	if err != nil {
		return nil, err
	}
	if def.Domain == "" {
		return nil, fmt.Errorf("%w: missing domain", ErrInvalid)
	}
	if !slices.Contains([]string{models.ElectionMajorz, models.ElectionProporz}, def.Type) {
		return nil, fmt.Errorf("%w: election type %q", ErrInvalid, def.Type)
	}
	if def.NumberOfMandates < 1 {
		return nil, fmt.Errorf("%w: number_of_mandates must be positive", ErrInvalid)
	}

	e := &models.Election{
		ID:                 uuid.NewString(),
		TitleTranslations:  def.Title,
		Type:               def.Type,
		Domain:             def.Domain,
		DomainSegment:      def.Segment,
		DomainSupersegment: def.Supersegment,
		Date:               date,
		NumberOfMandates:   def.NumberOfMandates,
		MajorityType:       def.MajorityType,
		HasExpats:          def.HasExpats,
		Colors:             map[string]string{},
	}
	if e.TitleTranslations == nil {
		e.TitleTranslations = map[string]string{}
	}
	if err := s.elections.CreateElection(ctx, principalID, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Summaries lists the summaries of all votes and elections of the
// principal, newest first. Results are not loaded, so progress is only
// available from the single summaries.
func (s *ResultService) Summaries(ctx context.Context, principalID string) ([]models.Summary, error) {
	votes, err := s.votes.ListVotes(ctx, principalID)
	if err != nil {
		return nil, err
	}
	elections, err := s.elections.ListElections(ctx, principalID)
	if err != nil {
		return nil, err
	}

	out := make([]models.Summary, 0, len(votes)+len(elections))
	for _, e := range elections {
		out = append(out, e.Summary())
	}
	for _, v := range votes {
		out = append(out, v.Summary())
	}
	slices.SortStableFunc(out, func(a, b models.Summary) int {
		if a.Date != b.Date {
			if a.Date > b.Date {
				return -1
			}
			return 1
		}
		return 0
	})
	return out, nil
}

func (s *ResultService) VoteSummary(ctx context.Context, principalID, id string) (models.Summary, error) {
	vote, err := s.votes.GetVote(ctx, principalID, id)
	if err != nil {
		return models.Summary{}, err
	}
	return vote.Summary(), nil
}

func (s *ResultService) ElectionSummary(ctx context.Context, principalID, id string) (models.Summary, error) {
	election, err := s.elections.GetElection(ctx, principalID, id)
	if err != nil {
		return models.Summary{}, err
	}
	return election.Summary(), nil
}

// Summary loads the summary of a vote or an election by kind.
func (s *ResultService) Summary(ctx context.Context, principalID, kind, id string) (models.Summary, error) {
	if kind == models.KindElection {
		return s.ElectionSummary(ctx, principalID, id)
	}
	return s.VoteSummary(ctx, principalID, id)
}

func (s *ResultService) VoteExport(ctx context.Context, principalID, id string) ([]models.Row, error) {
	vote, err := s.votes.GetVote(ctx, principalID, id)
	if err != nil {
		return nil, err
	}
	return vote.Export(s.locales), nil
}

func (s *ResultService) ElectionExport(ctx context.Context, principalID, id string) ([]models.Row, error) {
	election, err := s.elections.GetElection(ctx, principalID, id)
	if err != nil {
		return nil, err
	}
	if election.IsProporz() {
		return election.Export(s.locales), nil
	}
	return election.Election.Export(s.locales), nil
}
