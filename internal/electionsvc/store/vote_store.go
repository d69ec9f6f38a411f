package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avvvet/electionday-services/internal/electionsvc/models"
)

type VoteStore struct {
	db *pgxpool.Pool
}

func NewVoteStore(db *pgxpool.Pool) *VoteStore {
	return &VoteStore{db: db}
}

const voteColumns = `id, title_translations, domain, domain_segment, date, type, status,
	has_expats, last_result_change, last_modified`

func scanVote(row pgx.Row) (*models.Vote, error) {
	vote := &models.Vote{}
	err := row.Scan(
		&vote.ID,
		&vote.TitleTranslations,
		&vote.Domain,
		&vote.DomainSegment,
		&vote.Date,
		&vote.Type,
		&vote.Status,
		&vote.HasExpats,
		&vote.LastResultChange,
		&vote.LastModified,
	)
	return vote, err
}

// CreateVote inserts a vote of the principal with one empty ballot per
// ballot type.
func (s *VoteStore) CreateVote(ctx context.Context, principalID string, vote *models.Vote) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO votes (id, principal, title_translations, domain, domain_segment, date, type, has_expats)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING last_modified`
	err = tx.QueryRow(ctx, query,
		vote.ID, principalID, vote.TitleTranslations, vote.Domain, vote.DomainSegment,
		vote.Date, vote.Type, vote.HasExpats,
	).Scan(&vote.LastModified)
	if err != nil {
		return fmt.Errorf("failed to insert vote: %w", err)
	}

	for _, b := range vote.Ballots {
		b.VoteID = vote.ID
	}
	if err := copyBallots(ctx, tx, vote.Ballots); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetVote loads the vote with its ballots and results.
func (s *VoteStore) GetVote(ctx context.Context, principalID, id string) (*models.Vote, error) {
	query := `SELECT ` + voteColumns + ` FROM votes WHERE principal = $1 AND id = $2`

	vote, err := scanVote(s.db.QueryRow(ctx, query, principalID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get vote by ID: %w", err)
	}

	rows, err := s.db.Query(ctx, `SELECT id, vote_id, type FROM ballots WHERE vote_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get ballots: %w", err)
	}
	ballots, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Ballot, error) {
		b := &models.Ballot{}
		return b, row.Scan(&b.ID, &b.VoteID, &b.Type)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan ballots: %w", err)
	}

	byID := map[string]*models.Ballot{}
	for _, b := range ballots {
		byID[b.ID] = b
	}

	query = `
		SELECT r.id, r.ballot_id, r.entity_id, r.name, r.district, r.counted, r.yeas, r.nays,
			r.empty, r.invalid, r.eligible_voters, r.expats
		FROM ballot_results r
		JOIN ballots b ON b.id = r.ballot_id
		WHERE b.vote_id = $1
		ORDER BY r.entity_id`
	rows, err = s.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get ballot results: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.BallotResult, error) {
		r := &models.BallotResult{}
		err := row.Scan(&r.ID, &r.BallotID, &r.EntityID, &r.Name, &r.District, &r.Counted,
			&r.Yeas, &r.Nays, &r.Empty, &r.Invalid, &r.EligibleVoters, &r.Expats)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan ballot results: %w", err)
	}
	for _, r := range results {
		if b := byID[r.BallotID]; b != nil {
			b.Results = append(b.Results, r)
		}
	}

	// keep proposal, counter-proposal, tie-breaker order
	for _, t := range models.BallotTypes {
		for _, b := range ballots {
			if b.Type == t {
				vote.Ballots = append(vote.Ballots, b)
			}
		}
	}
	return vote, nil
}

// ListVotes returns the votes of the principal, newest first, without
// their results.
func (s *VoteStore) ListVotes(ctx context.Context, principalID string) ([]*models.Vote, error) {
	query := `SELECT ` + voteColumns + ` FROM votes WHERE principal = $1 ORDER BY date DESC, id`

	rows, err := s.db.Query(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	votes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Vote, error) {
		return scanVote(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan votes: %w", err)
	}
	return votes, nil
}

// ReplaceResults replaces the ballots and results of the vote in one
// transaction and updates its status. The new last_modified is written
// back to the vote.
func (s *VoteStore) ReplaceResults(ctx context.Context, vote *models.Vote) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM ballots WHERE vote_id = $1`, vote.ID); err != nil {
		return fmt.Errorf("failed to delete ballots: %w", err)
	}

	var results []*models.BallotResult
	for _, b := range vote.Ballots {
		b.VoteID = vote.ID
		for _, r := range b.Results {
			r.BallotID = b.ID
			results = append(results, r)
		}
	}
	if err := copyBallots(ctx, tx, vote.Ballots); err != nil {
		return err
	}
	err = copyRows(ctx, tx, "ballot_results",
		[]string{"id", "ballot_id", "entity_id", "name", "district", "counted", "yeas", "nays",
			"empty", "invalid", "eligible_voters", "expats"},
		len(results), func(i int) []any {
			r := results[i]
			return []any{r.ID, r.BallotID, r.EntityID, r.Name, r.District, r.Counted, r.Yeas, r.Nays,
				r.Empty, r.Invalid, r.EligibleVoters, r.Expats}
		})
	if err != nil {
		return err
	}

	query := `
		UPDATE votes
		SET status = $2, last_result_change = $3, last_modified = NOW()
		WHERE id = $1
		RETURNING last_modified`
	err = tx.QueryRow(ctx, query, vote.ID, vote.Status, vote.LastResultChange).Scan(&vote.LastModified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update vote: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func copyBallots(ctx context.Context, tx pgx.Tx, ballots []*models.Ballot) error {
	return copyRows(ctx, tx, "ballots", []string{"id", "vote_id", "type"}, len(ballots), func(i int) []any {
		b := ballots[i]
		return []any{b.ID, b.VoteID, b.Type}
	})
}
