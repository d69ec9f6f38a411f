package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avvvet/electionday-services/internal/electionsvc/models"
)

type ElectionStore struct {
	db *pgxpool.Pool
}

func NewElectionStore(db *pgxpool.Pool) *ElectionStore {
	return &ElectionStore{db: db}
}

const electionColumns = `id, title_translations, type, domain, domain_segment, domain_supersegment,
	date, number_of_mandates, absolute_majority, majority_type, has_expats, status, colors,
	last_result_change, last_modified`

func scanElection(row pgx.Row) (*models.ProporzElection, error) {
	e := &models.ProporzElection{}
	err := row.Scan(
		&e.ID,
		&e.TitleTranslations,
		&e.Type,
		&e.Domain,
		&e.DomainSegment,
		&e.DomainSupersegment,
		&e.Date,
		&e.NumberOfMandates,
		&e.AbsoluteMajority,
		&e.MajorityType,
		&e.HasExpats,
		&e.Status,
		&e.Colors,
		&e.LastResultChange,
		&e.LastModified,
	)
	return e, err
}

func (s *ElectionStore) CreateElection(ctx context.Context, principalID string, e *models.Election) error {
	if e.Colors == nil {
		e.Colors = map[string]string{}
	}
	query := `
		INSERT INTO elections (id, principal, title_translations, type, domain, domain_segment,
			domain_supersegment, date, number_of_mandates, majority_type, has_expats, colors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING last_modified`
	err := s.db.QueryRow(ctx, query,
		e.ID, principalID, e.TitleTranslations, e.Type, e.Domain, e.DomainSegment,
		e.DomainSupersegment, e.Date, e.NumberOfMandates, e.MajorityType, e.HasExpats, e.Colors,
	).Scan(&e.LastModified)
	if err != nil {
		return fmt.Errorf("failed to insert election: %w", err)
	}
	return nil
}

// GetElection loads the election with its whole result graph. Majorz
// elections are returned with empty proporz parts.
func (s *ElectionStore) GetElection(ctx context.Context, principalID, id string) (*models.ProporzElection, error) {
	query := `SELECT ` + electionColumns + ` FROM elections WHERE principal = $1 AND id = $2`

	e, err := scanElection(s.db.QueryRow(ctx, query, principalID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get election by ID: %w", err)
	}

	if err := s.loadCandidates(ctx, e); err != nil {
		return nil, err
	}
	if err := s.loadResults(ctx, e); err != nil {
		return nil, err
	}
	if err := s.loadLists(ctx, e); err != nil {
		return nil, err
	}
	if err := s.loadParties(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *ElectionStore) ListElections(ctx context.Context, principalID string) ([]*models.Election, error) {
	query := `SELECT ` + electionColumns + ` FROM elections WHERE principal = $1 ORDER BY date DESC, id`

	rows, err := s.db.Query(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list elections: %w", err)
	}
	elections, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Election, error) {
		e, err := scanElection(row)
		if err != nil {
			return nil, err
		}
		return &e.Election, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan elections: %w", err)
	}
	return elections, nil
}

func (s *ElectionStore) loadCandidates(ctx context.Context, e *models.ProporzElection) error {
	query := `
		SELECT id, election_id, candidate_id, family_name, first_name, elected, party, gender,
			year_of_birth, list_id
		FROM candidates
		WHERE election_id = $1
		ORDER BY family_name, first_name, candidate_id`
	rows, err := s.db.Query(ctx, query, e.ID)
	if err != nil {
		return fmt.Errorf("failed to get candidates: %w", err)
	}
	e.Candidates, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Candidate, error) {
		c := &models.Candidate{}
		var listID *string
		err := row.Scan(&c.ID, &c.ElectionID, &c.CandidateID, &c.FamilyName, &c.FirstName,
			&c.Elected, &c.Party, &c.Gender, &c.YearOfBirth, &listID)
		c.ListID = derefString(listID)
		return c, err
	})
	if err != nil {
		return fmt.Errorf("failed to scan candidates: %w", err)
	}
	return nil
}

func (s *ElectionStore) loadResults(ctx context.Context, e *models.ProporzElection) error {
	query := `
		SELECT id, election_id, entity_id, name, district, superregion, counted, eligible_voters,
			expats, received_ballots, blank_ballots, invalid_ballots, blank_votes, invalid_votes
		FROM election_results
		WHERE election_id = $1
		ORDER BY entity_id`
	rows, err := s.db.Query(ctx, query, e.ID)
	if err != nil {
		return fmt.Errorf("failed to get election results: %w", err)
	}
	e.Results, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.ElectionResult, error) {
		r := &models.ElectionResult{}
		err := row.Scan(&r.ID, &r.ElectionID, &r.EntityID, &r.Name, &r.District, &r.Superregion,
			&r.Counted, &r.EligibleVoters, &r.Expats, &r.ReceivedBallots, &r.BlankBallots,
			&r.InvalidBallots, &r.BlankVotes, &r.InvalidVotes)
		return r, err
	})
	if err != nil {
		return fmt.Errorf("failed to scan election results: %w", err)
	}

	byID := map[string]*models.ElectionResult{}
	for _, r := range e.Results {
		byID[r.ID] = r
	}

	query = `
		SELECT cr.id, cr.election_result_id, cr.candidate_id, cr.votes
		FROM candidate_results cr
		JOIN election_results r ON r.id = cr.election_result_id
		WHERE r.election_id = $1`
	err = s.forEach(ctx, query, e.ID, func(row pgx.CollectableRow) error {
		cr := &models.CandidateResult{}
		if err := row.Scan(&cr.ID, &cr.ElectionResultID, &cr.CandidateID, &cr.Votes); err != nil {
			return err
		}
		if r := byID[cr.ElectionResultID]; r != nil {
			r.CandidateResults = append(r.CandidateResults, cr)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to get candidate results: %w", err)
	}

	query = `
		SELECT lr.id, lr.election_result_id, lr.list_id, lr.votes
		FROM list_results lr
		JOIN election_results r ON r.id = lr.election_result_id
		WHERE r.election_id = $1`
	err = s.forEach(ctx, query, e.ID, func(row pgx.CollectableRow) error {
		lr := &models.ListResult{}
		if err := row.Scan(&lr.ID, &lr.ElectionResultID, &lr.ListID, &lr.Votes); err != nil {
			return err
		}
		if r := byID[lr.ElectionResultID]; r != nil {
			r.ListResults = append(r.ListResults, lr)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to get list results: %w", err)
	}

	query = `
		SELECT cp.id, cp.election_result_id, cp.target_id, cp.source, cp.votes
		FROM candidate_panachage_results cp
		JOIN election_results r ON r.id = cp.election_result_id
		WHERE r.election_id = $1`
	err = s.forEach(ctx, query, e.ID, func(row pgx.CollectableRow) error {
		cp := &models.CandidatePanachageResult{}
		if err := row.Scan(&cp.ID, &cp.ElectionResultID, &cp.TargetID, &cp.Source, &cp.Votes); err != nil {
			return err
		}
		if r := byID[cp.ElectionResultID]; r != nil {
			r.CandidatePanachageResults = append(r.CandidatePanachageResults, cp)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to get candidate panachage results: %w", err)
	}
	return nil
}

func (s *ElectionStore) loadLists(ctx context.Context, e *models.ProporzElection) error {
	query := `
		SELECT id, election_id, connection_id, parent_id
		FROM list_connections
		WHERE election_id = $1
		ORDER BY parent_id NULLS FIRST, connection_id`
	rows, err := s.db.Query(ctx, query, e.ID)
	if err != nil {
		return fmt.Errorf("failed to get list connections: %w", err)
	}
	e.ListConnections, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.ListConnection, error) {
		c := &models.ListConnection{}
		var parentID *string
		err := row.Scan(&c.ID, &c.ElectionID, &c.ConnectionID, &parentID)
		c.ParentID = derefString(parentID)
		return c, err
	})
	if err != nil {
		return fmt.Errorf("failed to scan list connections: %w", err)
	}

	query = `
		SELECT id, election_id, list_id, name, number_of_mandates, connection_id
		FROM lists
		WHERE election_id = $1
		ORDER BY list_id`
	rows, err = s.db.Query(ctx, query, e.ID)
	if err != nil {
		return fmt.Errorf("failed to get lists: %w", err)
	}
	e.Lists, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.List, error) {
		l := &models.List{}
		var connectionID *string
		err := row.Scan(&l.ID, &l.ElectionID, &l.ListID, &l.Name, &l.NumberOfMandates, &connectionID)
		l.ConnectionID = derefString(connectionID)
		return l, err
	})
	if err != nil {
		return fmt.Errorf("failed to scan lists: %w", err)
	}

	byID := map[string]*models.List{}
	for _, l := range e.Lists {
		byID[l.ID] = l
	}
	query = `
		SELECT p.id, p.target_id, p.source, p.votes
		FROM list_panachage_results p
		JOIN lists l ON l.id = p.target_id
		WHERE l.election_id = $1
		ORDER BY p.source`
	err = s.forEach(ctx, query, e.ID, func(row pgx.CollectableRow) error {
		p := &models.ListPanachageResult{}
		if err := row.Scan(&p.ID, &p.TargetID, &p.Source, &p.Votes); err != nil {
			return err
		}
		if l := byID[p.TargetID]; l != nil {
			l.PanachageResults = append(l.PanachageResults, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to get list panachage results: %w", err)
	}
	return nil
}

func (s *ElectionStore) loadParties(ctx context.Context, e *models.ProporzElection) error {
	query := `
		SELECT id, election_id, domain, domain_segment, year, party_id, name_translations,
			total_votes, number_of_mandates, votes, voters_count, voters_count_percentage
		FROM party_results
		WHERE election_id = $1
		ORDER BY year DESC, party_id`
	rows, err := s.db.Query(ctx, query, e.ID)
	if err != nil {
		return fmt.Errorf("failed to get party results: %w", err)
	}
	e.PartyResults, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.PartyResult, error) {
		p := &models.PartyResult{}
		var count, percentage pgtype.Numeric
		err := row.Scan(&p.ID, &p.ElectionID, &p.Domain, &p.DomainSegment, &p.Year, &p.PartyID,
			&p.NameTranslations, &p.TotalVotes, &p.NumberOfMandates, &p.Votes, &count, &percentage)
		p.VotersCount = fromNumeric(count)
		p.VotersCountPercentage = fromNumeric(percentage)
		return p, err
	})
	if err != nil {
		return fmt.Errorf("failed to scan party results: %w", err)
	}

	query = `
		SELECT id, election_id, target, source, votes
		FROM party_panachage_results
		WHERE election_id = $1
		ORDER BY target, source`
	rows, err = s.db.Query(ctx, query, e.ID)
	if err != nil {
		return fmt.Errorf("failed to get party panachage results: %w", err)
	}
	e.PartyPanachageResults, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.PartyPanachageResult, error) {
		p := &models.PartyPanachageResult{}
		return p, row.Scan(&p.ID, &p.ElectionID, &p.Target, &p.Source, &p.Votes)
	})
	if err != nil {
		return fmt.Errorf("failed to scan party panachage results: %w", err)
	}
	return nil
}

func (s *ElectionStore) forEach(ctx context.Context, query string, arg any, fn func(pgx.CollectableRow) error) error {
	rows, err := s.db.Query(ctx, query, arg)
	if err != nil {
		return err
	}
	_, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (struct{}, error) {
		return struct{}{}, fn(row)
	})
	return err
}

// ReplaceResults replaces the whole result graph of the election in one
// transaction: candidates, results, lists, connections, panachage and
// party results. The new last_modified is written back to the election.
func (s *ElectionStore) ReplaceResults(ctx context.Context, e *models.ProporzElection) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{
		"election_results", "candidates", "lists", "list_connections",
		"party_results", "party_panachage_results",
	} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE election_id = $1`, e.ID); err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}

	if err := insertElectionGraph(ctx, tx, e); err != nil {
		return err
	}

	if e.Colors == nil {
		e.Colors = map[string]string{}
	}
	query := `
		UPDATE elections
		SET status = $2, absolute_majority = $3, colors = $4, last_result_change = $5,
			last_modified = NOW()
		WHERE id = $1
		RETURNING last_modified`
	err = tx.QueryRow(ctx, query, e.ID, e.Status, e.AbsoluteMajority, e.Colors, e.LastResultChange).
		Scan(&e.LastModified)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update election: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertElectionGraph(ctx context.Context, tx pgx.Tx, e *models.ProporzElection) error {
	connections := e.ListConnections
	err := copyRows(ctx, tx, "list_connections", []string{"id", "election_id", "connection_id", "parent_id"},
		len(connections), func(i int) []any {
			c := connections[i]
			return []any{c.ID, e.ID, c.ConnectionID, nullString(c.ParentID)}
		})
	if err != nil {
		return err
	}

	lists := e.Lists
	err = copyRows(ctx, tx, "lists", []string{"id", "election_id", "list_id", "name", "number_of_mandates", "connection_id"},
		len(lists), func(i int) []any {
			l := lists[i]
			return []any{l.ID, e.ID, l.ListID, l.Name, l.NumberOfMandates, nullString(l.ConnectionID)}
		})
	if err != nil {
		return err
	}

	var listPanachage []*models.ListPanachageResult
	for _, l := range lists {
		listPanachage = append(listPanachage, l.PanachageResults...)
	}
	err = copyRows(ctx, tx, "list_panachage_results", []string{"id", "target_id", "source", "votes"},
		len(listPanachage), func(i int) []any {
			p := listPanachage[i]
			return []any{p.ID, p.TargetID, p.Source, p.Votes}
		})
	if err != nil {
		return err
	}

	candidates := e.Candidates
	err = copyRows(ctx, tx, "candidates",
		[]string{"id", "election_id", "candidate_id", "family_name", "first_name", "elected", "party",
			"gender", "year_of_birth", "list_id"},
		len(candidates), func(i int) []any {
			c := candidates[i]
			return []any{c.ID, e.ID, c.CandidateID, c.FamilyName, c.FirstName, c.Elected, c.Party,
				c.Gender, c.YearOfBirth, nullString(c.ListID)}
		})
	if err != nil {
		return err
	}

	results := e.Results
	err = copyRows(ctx, tx, "election_results",
		[]string{"id", "election_id", "entity_id", "name", "district", "superregion", "counted",
			"eligible_voters", "expats", "received_ballots", "blank_ballots", "invalid_ballots",
			"blank_votes", "invalid_votes"},
		len(results), func(i int) []any {
			r := results[i]
			return []any{r.ID, e.ID, r.EntityID, r.Name, r.District, r.Superregion, r.Counted,
				r.EligibleVoters, r.Expats, r.ReceivedBallots, r.BlankBallots, r.InvalidBallots,
				r.BlankVotes, r.InvalidVotes}
		})
	if err != nil {
		return err
	}

	var candidateResults []*models.CandidateResult
	var listResults []*models.ListResult
	var candidatePanachage []*models.CandidatePanachageResult
	for _, r := range results {
		candidateResults = append(candidateResults, r.CandidateResults...)
		listResults = append(listResults, r.ListResults...)
		candidatePanachage = append(candidatePanachage, r.CandidatePanachageResults...)
	}

	err = copyRows(ctx, tx, "candidate_results", []string{"id", "election_result_id", "candidate_id", "votes"},
		len(candidateResults), func(i int) []any {
			r := candidateResults[i]
			return []any{r.ID, r.ElectionResultID, r.CandidateID, r.Votes}
		})
	if err != nil {
		return err
	}
	err = copyRows(ctx, tx, "list_results", []string{"id", "election_result_id", "list_id", "votes"},
		len(listResults), func(i int) []any {
			r := listResults[i]
			return []any{r.ID, r.ElectionResultID, r.ListID, r.Votes}
		})
	if err != nil {
		return err
	}
	err = copyRows(ctx, tx, "candidate_panachage_results",
		[]string{"id", "election_result_id", "target_id", "source", "votes"},
		len(candidatePanachage), func(i int) []any {
			p := candidatePanachage[i]
			return []any{p.ID, p.ElectionResultID, p.TargetID, p.Source, p.Votes}
		})
	if err != nil {
		return err
	}

	parties := e.PartyResults
	err = copyRows(ctx, tx, "party_results",
		[]string{"id", "election_id", "domain", "domain_segment", "year", "party_id", "name_translations",
			"total_votes", "number_of_mandates", "votes", "voters_count", "voters_count_percentage"},
		len(parties), func(i int) []any {
			p := parties[i]
			return []any{p.ID, e.ID, p.Domain, p.DomainSegment, p.Year, p.PartyID, p.NameTranslations,
				p.TotalVotes, p.NumberOfMandates, p.Votes, toNumeric(p.VotersCount),
				toNumeric(p.VotersCountPercentage)}
		})
	if err != nil {
		return err
	}

	partyPanachage := e.PartyPanachageResults
	return copyRows(ctx, tx, "party_panachage_results", []string{"id", "election_id", "target", "source", "votes"},
		len(partyPanachage), func(i int) []any {
			p := partyPanachage[i]
			return []any{p.ID, e.ID, p.Target, p.Source, p.Votes}
		})
}
