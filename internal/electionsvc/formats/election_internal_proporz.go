package formats

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avvvet/electionday-services/internal/electionsvc/models"
	"github.com/avvvet/electionday-services/internal/electionsvc/principal"
)

var internalProporzHeaders = []string{
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
	"list_name",
	"list_id",
	"list_number_of_mandates",
	"list_votes",
	"list_connection",
	"list_connection_parent",
}

const (
	listPanachagePrefix       = "list_panachage_votes_from_list_"
	legacyListPanachagePrefix = "panachage_votes_from_list_"
	candidatePanachagePrefix  = "candidate_panachage_votes_from_list_"
)

// panachageHeader is a panachage column with the list id votes come from.
type panachageHeader struct {
	col    string
	source string
}

func listPanachageHeaders(file *CSVFile) []panachageHeader {
	prefix := listPanachagePrefix
	var out []panachageHeader
	for _, h := range file.Headers {
		if strings.HasPrefix(h, legacyListPanachagePrefix) {
			prefix = legacyListPanachagePrefix
		}
		if source, ok := strings.CutPrefix(h, prefix); ok && source != "" {
			out = append(out, panachageHeader{col: AsValidIdentifier(h), source: source})
		}
	}
	return out
}

func candidatePanachageHeaders(file *CSVFile) []panachageHeader {
	var out []panachageHeader
	for _, h := range file.Headers {
		if source, ok := strings.CutPrefix(h, candidatePanachagePrefix); ok && source != "" {
			out = append(out, panachageHeader{col: AsValidIdentifier(h), source: source})
		}
	}
	return out
}

func panachageSourceError(listID string) FileImportError {
	return FileImportError{Error: fmt.Sprintf("Panachage results id %s not in list_id's", listID)}
}

type candidatePanachage struct {
	entityID    int
	candidateID string
	source      string
	votes       int
}

// ImportElectionInternalProporz imports the internal proporz format, one
// line per candidate and entity. With ignoreExtra, lines of entities
// outside of the election are skipped instead of reported.
func ImportElectionInternalProporz(election *models.ProporzElection, p *principal.Principal, r io.Reader, mimetype string, ignoreExtra bool) []FileImportError {
	file, ferr := LoadCSV(r, mimetype, internalProporzHeaders, "")
	if ferr != nil {
		return []FileImportError{*ferr}
	}

	entities := p.EntitiesOf(election.Year())
	business := Business{Domain: election.Domain, Segment: election.DomainSegment, HasExpats: election.HasExpats}
	colors := copyColors(election.Colors)
	listHeaders := listPanachageHeaders(file)
	candidateHeaders := candidatePanachageHeaders(file)

	var errs []FileImportError
	results := newOrdered[int, *models.ElectionResult]()
	candidates := newOrdered[string, *models.Candidate]()
	lists := newOrdered[string, *models.List]()
	connections := newOrdered[string, *models.ListConnection]()
	subconnections := newOrdered[string, *models.ListConnection]()
	listResults := map[int]*ordered[string, *models.ListResult]{}
	listPanachage := newOrdered[string, *ordered[string, int]]()
	var candidatePanachages []candidatePanachage
	status := models.StatusUnknown

	for _, line := range file.Lines {
		var msgs []string

		result, ignored := parseElectionResult(line, &msgs, entities, business, p, ignoreExtra)
		if ignored {
			continue
		}
		counted := result != nil && result.Counted
		lineStatus := parseStatus(line, &msgs)
		candidate := parseCandidate(line, &msgs, false, colors)
		candidateVotes := parseVotes(line, &msgs, "candidate_votes", counted)
		list := parseList(line, &msgs, colors)
		listVotes := parseVotes(line, &msgs, "list_votes", counted)
		connection, subconnection := parseConnection(line)
		parseListPanachage(line, &msgs, listPanachage, listHeaders)
		linePanachage := parseCandidatePanachage(line, &msgs, candidateHeaders)

		if result != nil && result.EntityID == 0 && !election.HasExpats {
			continue
		}
		if len(msgs) > 0 {
			errs = append(errs, lineErrors(msgs, line.Number, "")...)
			continue
		}

		status = lineStatus
		result = results.setDefault(result.EntityID, result)
		list = lists.setDefault(list.ListID, list)
		if connection != nil {
			connection = connections.setDefault(connection.ConnectionID, connection)
			list.ConnectionID = connection.ID
			if subconnection != nil {
				subconnection = subconnections.setDefault(subconnection.ConnectionID, subconnection)
				subconnection.ParentID = connection.ID
				list.ConnectionID = subconnection.ID
			}
		}

		if listResults[result.EntityID] == nil {
			listResults[result.EntityID] = newOrdered[string, *models.ListResult]()
		}
		listResult := listResults[result.EntityID].setDefault(list.ListID, &models.ListResult{
			ID:    uuid.NewString(),
			Votes: listVotes,
		})
		listResult.ListID = list.ID

		candidate = candidates.setDefault(candidate.CandidateID, candidate)
		candidate.ListID = list.ID
		result.CandidateResults = append(result.CandidateResults, &models.CandidateResult{
			ID:               uuid.NewString(),
			ElectionResultID: result.ID,
			CandidateID:      candidate.ID,
			Votes:            candidateVotes,
		})
		for _, cp := range linePanachage {
			cp.entityID = result.EntityID
			candidatePanachages = append(candidatePanachages, cp)
		}
	}

	if len(errs) == 0 && results.len() == 0 {
		errs = append(errs, FileImportError{Error: msgNoData})
	}
	for _, sources := range listPanachage.values() {
		for _, source := range sources.keys {
			if _, ok := lists.get(source); source != models.BlankListID && !ok {
				errs = append(errs, panachageSourceError(source))
			}
		}
	}
	for _, cp := range candidatePanachages {
		if _, ok := lists.get(cp.source); cp.source != models.BlankListID && !ok {
			errs = append(errs, panachageSourceError(cp.source))
		}
	}
	if len(errs) > 0 {
		return errs
	}

	missingElectionResults(results, entities, business, p)

	hasListPanachage := false
	for _, sources := range listPanachage.values() {
		if sources.len() > 0 {
			hasListPanachage = true
		}
	}
	if len(candidatePanachages) > 0 && !hasListPanachage {
		listIDs := map[string]string{}
		for _, l := range lists.values() {
			listIDs[l.ID] = l.ListID
		}
		for _, cp := range candidatePanachages {
			c, _ := candidates.get(cp.candidateID)
			target := listIDs[c.ListID]
			if cp.source == target {
				continue
			}
			sources := listPanachage.setDefault(target, newOrdered[string, int]())
			sources.m[cp.source] = sources.setDefault(cp.source, 0) + cp.votes
		}
	}

	for entityID, byList := range listResults {
		r, _ := results.get(entityID)
		r.ListResults = byList.values()
		for _, lr := range r.ListResults {
			lr.ElectionResultID = r.ID
		}
	}
	for _, cp := range candidatePanachages {
		r, _ := results.get(cp.entityID)
		c, _ := candidates.get(cp.candidateID)
		r.CandidatePanachageResults = append(r.CandidatePanachageResults, &models.CandidatePanachageResult{
			ID:               uuid.NewString(),
			ElectionResultID: r.ID,
			TargetID:         c.ID,
			Source:           panachageSource(cp.source),
			Votes:            cp.votes,
		})
	}
	for _, l := range lists.values() {
		sources, ok := listPanachage.get(l.ListID)
		if !ok {
			continue
		}
		for _, source := range sources.keys {
			l.PanachageResults = append(l.PanachageResults, &models.ListPanachageResult{
				ID:       uuid.NewString(),
				TargetID: l.ID,
				Source:   panachageSource(source),
				Votes:    sources.m[source],
			})
		}
	}

	now := time.Now().UTC()
	election.ClearResults(true)
	election.Status = status
	election.Colors = colors
	election.LastResultChange = &now
	election.ListConnections = append(connections.values(), subconnections.values()...)
	election.Lists = lists.values()
	election.Candidates = candidates.values()
	election.Results = results.values()
	attachProporz(election)
	return nil
}

// panachageSource stores votes from the blank list with an empty source.
func panachageSource(listID string) string {
	if listID == models.BlankListID {
		return ""
	}
	return listID
}

func parseList(line Row, msgs *[]string, colors map[string]string) *models.List {
	listID, err := ValidateListID(line, "list_id", true)
	if err != nil {
		*msgs = append(*msgs, err.Error())
		return nil
	}
	name := line.Get("list_name")
	color, err := ValidateColor(line, "list_color")
	if err != nil {
		*msgs = append(*msgs, err.Error())
		return nil
	}
	mandates, err := ValidateInteger(line, "list_number_of_mandates")
	if err != nil {
		*msgs = append(*msgs, err.Error())
		return nil
	}
	if name != "" && color != "" {
		colors[name] = color
	}
	return &models.List{
		ID:               uuid.NewString(),
		ListID:           listID,
		Name:             name,
		NumberOfMandates: mandates,
	}
}

// parseConnection returns the connection of the line and its
// subconnection, if the list is part of one.
func parseConnection(line Row) (*models.ListConnection, *models.ListConnection) {
	connectionID := line.Get("list_connection")
	parentID := line.Get("list_connection_parent")
	subconnectionID := ""
	if parentID != "" {
		subconnectionID = PrefixConnectionID(connectionID, parentID)
		connectionID = parentID
	}

	var connection, subconnection *models.ListConnection
	if connectionID != "" {
		connection = &models.ListConnection{ID: uuid.NewString(), ConnectionID: connectionID}
	}
	if subconnectionID != "" {
		subconnection = &models.ListConnection{ID: uuid.NewString(), ConnectionID: subconnectionID}
	}
	return connection, subconnection
}

// parseListPanachage reads the list panachage of the first line of every
// list. Invalid list ids are reported by parseList.
func parseListPanachage(line Row, msgs *[]string, values *ordered[string, *ordered[string, int]], headers []panachageHeader) {
	target, err := ValidateListID(line, "list_id", true)
	if err != nil {
		return
	}
	if _, ok := values.get(target); ok {
		return
	}
	sources := values.setDefault(target, newOrdered[string, int]())
	for _, h := range headers {
		if h.source == target {
			continue
		}
		votes, err := ValidateNullableInteger(line, h.col, false)
		if err != nil {
			*msgs = append(*msgs, err.Error())
			return
		}
		if votes != nil {
			sources.setDefault(h.source, *votes)
		}
	}
}

func parseCandidatePanachage(line Row, msgs *[]string, headers []panachageHeader) []candidatePanachage {
	candidateID := line.Get("candidate_id")
	var out []candidatePanachage
	for _, h := range headers {
		votes, err := ValidateInteger(line, h.col)
		if err != nil {
			*msgs = append(*msgs, err.Error())
			return nil
		}
		if votes != 0 {
			out = append(out, candidatePanachage{candidateID: candidateID, source: h.source, votes: votes})
		}
	}
	return out
}
