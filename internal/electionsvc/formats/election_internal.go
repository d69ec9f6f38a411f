package formats

import (
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avvvet/electionday-services/internal/electionsvc/models"
	"github.com/avvvet/electionday-services/internal/electionsvc/principal"
)

var internalMajorzHeaders = []string{
	"election_absolute_majority",
	"election_status",
	"entity_id",
	"entity_counted",
	"entity_eligible_voters",
	"entity_received_ballots",
	"entity_blank_ballots",
	"entity_invalid_ballots",
	"entity_blank_votes",
	"entity_invalid_votes",
	"candidate_family_name",
	"candidate_first_name",
	"candidate_id",
	"candidate_elected",
	"candidate_votes",
	"candidate_party",
}

// parseStatus returns the election status of the line, unknown if empty.
func parseStatus(line Row, msgs *[]string) string {
	status := line.Get("election_status")
	if status == "" {
		status = models.StatusUnknown
	}
	if !slices.Contains(models.Stati, status) {
		*msgs = append(*msgs, msgInvalidState)
	}
	return status
}

// parseElectionResult reads the entity columns. The first invalid value
// stops the parsing of the entity. The second return value is true if
// the line belongs to another business and ignoreExtra is set.
func parseElectionResult(line Row, msgs *[]string, entities map[int]principal.Entity, b Business, p *principal.Principal, ignoreExtra bool) (*models.ElectionResult, bool) {
	fail := func(err error) (*models.ElectionResult, bool) {
		*msgs = append(*msgs, err.Error())
		return nil, false
	}

	entityID, err := ValidateInteger(line, "entity_id")
	if err != nil {
		return fail(err)
	}
	counted := strings.ToLower(line.Get("entity_counted")) == "true"
	r := &models.ElectionResult{ID: uuid.NewString(), Counted: counted}
	if r.EligibleVoters, err = ValidateInteger(line, "entity_eligible_voters"); err != nil {
		return fail(err)
	}
	expats, err := ValidateNullableInteger(line, "entity_expats", true)
	if err != nil {
		return fail(err)
	}
	for _, f := range []struct {
		col   string
		value *int
	}{
		{"entity_received_ballots", &r.ReceivedBallots},
		{"entity_blank_ballots", &r.BlankBallots},
		{"entity_invalid_ballots", &r.InvalidBallots},
		{"entity_blank_votes", &r.BlankVotes},
		{"entity_invalid_votes", &r.InvalidVotes},
	} {
		if *f.value, err = ValidateInteger(line, f.col); err != nil {
			return fail(err)
		}
	}

	if _, known := entities[entityID]; !known && IsExpats(entityID) {
		entityID = 0
	}
	if _, known := entities[entityID]; entityID != 0 && !known {
		*msgs = append(*msgs, msgUnknown(entityID))
		return nil, false
	}

	info, entityMsgs := EntityAndDistrict(entityID, entities, b, p)
	if ignoreExtra && len(entityMsgs) > 0 {
		return nil, true
	}
	*msgs = append(*msgs, entityMsgs...)

	r.EntityID = entityID
	r.Name = info.Name
	r.District = info.District
	r.Superregion = info.Superregion
	if counted {
		r.Expats = expats
	} else {
		r.Expats = new(int)
		r.EligibleVoters = 0
		r.ReceivedBallots = 0
		r.BlankBallots = 0
		r.InvalidBallots = 0
		r.BlankVotes = 0
		r.InvalidVotes = 0
	}
	return r, false
}

// parseCandidate reads the candidate columns and collects the party color.
func parseCandidate(line Row, msgs *[]string, numericID bool, colors map[string]string) *models.Candidate {
	fail := func(err error) *models.Candidate {
		*msgs = append(*msgs, err.Error())
		return nil
	}

	candidateID := line.Get("candidate_id")
	if numericID {
		id, err := ValidateInteger(line, "candidate_id")
		if err != nil {
			return fail(err)
		}
		candidateID = strconv.Itoa(id)
	}
	c := &models.Candidate{
		ID:          uuid.NewString(),
		CandidateID: candidateID,
		FamilyName:  line.Get("candidate_family_name"),
		FirstName:   line.Get("candidate_first_name"),
		Elected:     strings.ToLower(line.Get("candidate_elected")) == "true",
		Party:       line.Get("candidate_party"),
	}
	color, err := ValidateColor(line, "candidate_party_color")
	if err != nil {
		return fail(err)
	}
	if c.Gender, err = ValidateGender(line); err != nil {
		return fail(err)
	}
	if c.YearOfBirth, err = ValidateNullableInteger(line, "candidate_year_of_birth", true); err != nil {
		return fail(err)
	}
	if c.Party != "" && color != "" {
		colors[c.Party] = color
	}
	return c
}

// parseVotes reads a vote count, which is zero for uncounted entities.
func parseVotes(line Row, msgs *[]string, col string, counted bool) int {
	votes, err := ValidateInteger(line, col)
	if err != nil {
		*msgs = append(*msgs, err.Error())
		return 0
	}
	if !counted {
		return 0
	}
	return votes
}

func copyColors(colors map[string]string) map[string]string {
	out := make(map[string]string, len(colors))
	for k, v := range colors {
		out[k] = v
	}
	return out
}

// missingElectionResults adds uncounted results for the entities without
// a result.
func missingElectionResults(results *ordered[int, *models.ElectionResult], entities map[int]principal.Entity, b Business, p *principal.Principal) {
	present := map[int]bool{}
	for _, id := range results.keys {
		present[id] = true
	}
	for _, info := range MissingEntities(entities, b, p, present) {
		results.setDefault(info.ID, &models.ElectionResult{
			ID:          uuid.NewString(),
			EntityID:    info.ID,
			Name:        info.Name,
			District:    info.District,
			Superregion: info.Superregion,
		})
	}
}

// ImportElectionInternalMajorz imports the internal majorz format, one line
// per candidate and entity.
func ImportElectionInternalMajorz(election *models.Election, p *principal.Principal, r io.Reader, mimetype string) []FileImportError {
	file, ferr := LoadCSV(r, mimetype, internalMajorzHeaders, "")
	if ferr != nil {
		return []FileImportError{*ferr}
	}

	entities := p.EntitiesOf(election.Year())
	business := Business{Domain: election.Domain, Segment: election.DomainSegment, HasExpats: election.HasExpats}
	colors := copyColors(election.Colors)

	var errs []FileImportError
	results := newOrdered[int, *models.ElectionResult]()
	candidates := newOrdered[string, *models.Candidate]()
	var absoluteMajority *int
	status := models.StatusUnknown

	for _, line := range file.Lines {
		var msgs []string

		majority, err := ValidateNullableInteger(line, "election_absolute_majority", false)
		if err != nil {
			msgs = append(msgs, err.Error())
		}
		lineStatus := parseStatus(line, &msgs)
		result, _ := parseElectionResult(line, &msgs, entities, business, p, false)
		counted := result != nil && result.Counted
		candidate := parseCandidate(line, &msgs, true, colors)
		votes := parseVotes(line, &msgs, "candidate_votes", counted)

		if result != nil && result.EntityID == 0 && !election.HasExpats {
			continue
		}
		if len(msgs) > 0 {
			errs = append(errs, lineErrors(msgs, line.Number, "")...)
			continue
		}

		absoluteMajority = majority
		status = lineStatus
		result = results.setDefault(result.EntityID, result)
		candidate = candidates.setDefault(candidate.CandidateID, candidate)
		result.CandidateResults = append(result.CandidateResults, &models.CandidateResult{
			ID:               uuid.NewString(),
			ElectionResultID: result.ID,
			CandidateID:      candidate.ID,
			Votes:            votes,
		})
	}

	if len(errs) == 0 && results.len() == 0 {
		errs = append(errs, FileImportError{Error: msgNoData})
	}
	if len(errs) > 0 {
		return errs
	}

	missingElectionResults(results, entities, business, p)

	now := time.Now().UTC()
	election.ClearResults(true)
	election.AbsoluteMajority = absoluteMajority
	election.Status = status
	election.Colors = colors
	election.LastResultChange = &now
	election.Candidates = candidates.values()
	election.Results = results.values()
	attachElection(election)
	return nil
}

// attachElection sets the election id on the candidates and results.
func attachElection(e *models.Election) {
	for _, c := range e.Candidates {
		c.ElectionID = e.ID
	}
	for _, r := range e.Results {
		r.ElectionID = e.ID
	}
}

func attachProporz(e *models.ProporzElection) {
	attachElection(&e.Election)
	for _, l := range e.Lists {
		l.ElectionID = e.ID
	}
	for _, c := range e.ListConnections {
		c.ElectionID = e.ID
	}
}
