package formats

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avvvet/electionday-services/internal/electionsvc/models"
	"github.com/avvvet/electionday-services/internal/electionsvc/principal"
)

// WabstiC proporz export files.
const (
	WPWahl               = "wp_wahl"
	WPStaticGemeinden    = "wpstatic_gemeinden"
	WPGemeinden          = "wp_gemeinden"
	WPListen             = "wp_listen"
	WPListenGemeinde     = "wp_listengde"
	WPStaticKandidaten   = "wpstatic_kandidaten"
	WPKandidaten         = "wp_kandidaten"
	WPKandidatenGemeinde = "wp_kandidatengde"
)

var wabsticProporzFiles = []string{
	WPWahl, WPStaticGemeinden, WPGemeinden, WPListen,
	WPListenGemeinde, WPStaticKandidaten, WPKandidaten, WPKandidatenGemeinde,
}

var wabsticProporzHeaders = map[string][]string{
	WPWahl:            {"sortgeschaeft", "anzpendentgde"},
	WPStaticGemeinden: {"sortwahlkreis", "sortgeschaeft", "bfsnrgemeinde", "stimmberechtigte"},
	WPGemeinden: {
		"bfsnrgemeinde", "stimmberechtigte", "sperrung", "stmabgegeben",
		"stmleer", "stmungueltig", "anzwzamtleer",
	},
	WPListen:             {"sortgeschaeft", "listnr", "listcode", "sitze", "listverb", "listuntverb"},
	WPListenGemeinde:     {"bfsnrgemeinde", "listnr", "stimmentotal"},
	WPStaticKandidaten:   {"sortgeschaeft", "knr", "nachname", "vorname"},
	WPKandidaten:         {"sortgeschaeft", "knr", "gewaehlt"},
	WPKandidatenGemeinde: {"bfsnrgemeinde", "knr", "stimmen"},
}

// wabsticListID returns the list number, with 99 being the blank list.
func wabsticListID(line Row) string {
	id := line.Get("listnr")
	switch id {
	case "":
		return "0"
	case "99":
		return models.BlankListID
	}
	return id
}

// listIDFromKnr derives the list number from a candidate number. Newer
// exports separate them with a dot, older ones append two digits.
func listIDFromKnr(knr string) string {
	if before, _, found := strings.Cut(knr, "."); found {
		return before
	}
	if len(knr) < 2 {
		return ""
	}
	return knr[:len(knr)-2]
}

type connectionKey struct {
	connection    string
	subconnection string
}

// ImportElectionWabstiCProporz imports the eight files of a WabstiC proporz
// export for the business with the given number and district.
func ImportElectionWabstiCProporz(election *models.ProporzElection, p *principal.Principal, number, district string, uploads map[string]Upload) []FileImportError {
	files, errs := loadUploads(wabsticProporzFiles, uploads, wabsticProporzHeaders)
	if len(errs) > 0 {
		return errs
	}

	entities := p.EntitiesOf(election.Year())
	business := Business{Domain: election.Domain, Segment: election.DomainSegment, HasExpats: election.HasExpats}

	var remaining *int
	for _, line := range files[WPWahl].Lines {
		if !LineIsRelevant(line, number, "") {
			continue
		}
		pending, err := ValidateNullableInteger(line, "anzpendentgde", false)
		if err != nil {
			errs = append(errs, lineErrors([]string{fmt.Sprintf("Error in anzpendentgde: %s", err)}, line.Number, WPWahl)...)
			continue
		}
		remaining = pending
	}

	added := map[int]*models.ElectionResult{}
	for _, line := range files[WPStaticGemeinden].Lines {
		if !LineIsRelevant(line, number, district) {
			continue
		}
		entityID, err := ValidateInteger(line, "bfsnrgemeinde")
		if err != nil {
			errs = append(errs, lineErrors([]string{err.Error()}, line.Number, WPStaticGemeinden)...)
			continue
		}
		info, msgs := ResolveEntity(entityID, entities, business, p)
		entityID = info.ID
		if _, seen := added[entityID]; seen {
			msgs = append(msgs, msgFoundTwice(entityID))
		}
		eligibleVoters, err := ValidateInteger(line, "stimmberechtigte")
		if err != nil {
			msgs = append(msgs, err.Error())
		}
		if entityID == 0 && !election.HasExpats {
			continue
		}
		if len(msgs) > 0 {
			errs = append(errs, lineErrors(msgs, line.Number, WPStaticGemeinden)...)
			continue
		}
		added[entityID] = &models.ElectionResult{
			ID:             uuid.NewString(),
			EntityID:       entityID,
			Name:           info.Name,
			District:       info.District,
			Superregion:    info.Superregion,
			EligibleVoters: eligibleVoters,
		}
	}

	for _, line := range files[WPGemeinden].Lines {
		entityID, err := ValidateInteger(line, "bfsnrgemeinde")
		if err != nil {
			errs = append(errs, lineErrors([]string{err.Error()}, line.Number, WPGemeinden)...)
			continue
		}
		if _, known := entities[entityID]; !known && IsExpats(entityID) {
			entityID = 0
		}
		result, ok := added[entityID]
		if !ok {
			continue
		}

		var msgs []string
		integer := func(col string) int {
			v, err := ValidateInteger(line, col)
			if err != nil {
				msgs = append(msgs, err.Error())
			}
			return v
		}
		locked := integer("sperrung")
		eligibleVoters := integer("stimmberechtigte")
		received := integer("stmabgegeben")
		blankBallots := integer("stmleer")
		invalidBallots := integer("stmungueltig")
		if len(msgs) > 0 {
			errs = append(errs, lineErrors(msgs, line.Number, WPGemeinden)...)
			continue
		}

		result.Counted = locked != 0
		if !result.Counted {
			result.EligibleVoters = 0
			continue
		}
		if eligibleVoters != 0 {
			result.EligibleVoters = eligibleVoters
		}
		result.ReceivedBallots = received
		result.BlankBallots = blankBallots
		result.InvalidBallots = invalidBallots
	}

	lists := newOrdered[string, *models.List]()
	connections := newOrdered[connectionKey, *models.ListConnection]()
	for _, line := range files[WPListen].Lines {
		if !LineIsRelevant(line, number, "") {
			continue
		}
		var msgs []string
		listID := wabsticListID(line)
		mandates, err := ValidateInteger(line, "sitze")
		if err != nil {
			msgs = append(msgs, err.Error())
		}
		connection := line.Get("listverb")
		subconnection := line.Get("listuntverb")
		if subconnection != "" && connection == "" {
			msgs = append(msgs, "connection is missing.")
		}
		if _, seen := lists.get(listID); seen {
			msgs = append(msgs, msgFoundTwice(listID))
		}
		if len(msgs) > 0 {
			errs = append(errs, lineErrors(msgs, line.Number, WPListen)...)
			continue
		}

		l := lists.setDefault(listID, &models.List{
			ID:               uuid.NewString(),
			ListID:           listID,
			Name:             line.Get("listcode"),
			NumberOfMandates: mandates,
		})
		if connection == "" {
			continue
		}
		parentID := ""
		if subconnection != "" {
			parentID = connections.setDefault(connectionKey{connection: connection}, &models.ListConnection{
				ID:           uuid.NewString(),
				ConnectionID: connection,
			}).ID
		}
		connectionID := connection
		if subconnection != "" {
			connectionID = subconnection
		}
		l.ConnectionID = connections.setDefault(connectionKey{connection, subconnection}, &models.ListConnection{
			ID:           uuid.NewString(),
			ConnectionID: connectionID,
			ParentID:     parentID,
		}).ID
	}

	listResults := map[int]*ordered[string, int]{}
	for _, line := range files[WPListenGemeinde].Lines {
		entityID, err := ValidateInteger(line, "bfsnrgemeinde")
		listID := wabsticListID(line)
		votes, votesErr := ValidateInteger(line, "stimmentotal")
		if err == nil {
			err = votesErr
		}
		if err != nil {
			errs = append(errs, lineErrors([]string{err.Error()}, line.Number, WPListenGemeinde)...)
			continue
		}
		if _, known := entities[entityID]; !known && IsExpats(entityID) {
			entityID = 0
		}
		result, ok := added[entityID]
		if !ok {
			continue
		}
		if listResults[entityID] == nil {
			listResults[entityID] = newOrdered[string, int]()
		}
		if _, seen := listResults[entityID].get(listID); seen {
			errs = append(errs, lineErrors([]string{msgFoundTwice(fmt.Sprintf("%d/%s", entityID, listID))}, line.Number, WPListenGemeinde)...)
			continue
		}
		if !result.Counted {
			votes = 0
		}
		if listID == models.BlankListID {
			result.BlankVotes = votes
		}
		listResults[entityID].setDefault(listID, votes)
	}

	candidates := newOrdered[string, *models.Candidate]()
	for _, line := range files[WPStaticKandidaten].Lines {
		if !LineIsRelevant(line, number, "") {
			continue
		}
		var msgs []string
		candidateID := line.Get("knr")
		listID := listIDFromKnr(candidateID)
		if _, seen := candidates.get(candidateID); seen {
			msgs = append(msgs, msgFoundTwice(candidateID))
		}
		l, ok := lists.get(listID)
		if !ok {
			msgs = append(msgs, fmt.Sprintf("List_id %s has not been found in list numbers", listID))
		}
		if len(msgs) > 0 {
			errs = append(errs, lineErrors(msgs, line.Number, WPStaticKandidaten)...)
			continue
		}
		candidates.setDefault(candidateID, &models.Candidate{
			ID:          uuid.NewString(),
			CandidateID: candidateID,
			FamilyName:  line.Get("nachname"),
			FirstName:   line.Get("vorname"),
			ListID:      l.ID,
		})
	}

	for _, line := range files[WPKandidaten].Lines {
		if !LineIsRelevant(line, number, "") {
			continue
		}
		candidateID := line.Get("knr")
		elected, err := ValidateInteger(line, "gewaehlt")
		if err != nil {
			errs = append(errs, lineErrors([]string{err.Error()}, line.Number, WPKandidaten)...)
			continue
		}
		c, ok := candidates.get(candidateID)
		if !ok {
			msg := fmt.Sprintf("Candidate with id %s not in %s", candidateID, WPStaticKandidaten)
			errs = append(errs, lineErrors([]string{msg}, line.Number, WPKandidaten)...)
			continue
		}
		c.Elected = elected == 1
	}

	results := newOrdered[int, *models.ElectionResult]()
	seen := map[int]map[string]bool{}
	for _, line := range files[WPKandidatenGemeinde].Lines {
		entityID, err := ValidateInteger(line, "bfsnrgemeinde")
		candidateID := line.Get("knr")
		votes, votesErr := ValidateInteger(line, "stimmen")
		if err == nil {
			err = votesErr
		}
		if err != nil {
			errs = append(errs, lineErrors([]string{err.Error()}, line.Number, WPKandidatenGemeinde)...)
			continue
		}
		if _, known := entities[entityID]; !known && IsExpats(entityID) {
			entityID = 0
		}
		result, ok := added[entityID]
		candidate, known := candidates.get(candidateID)
		if !ok || !known {
			continue
		}
		if seen[entityID][candidateID] {
			msg := msgFoundTwice(fmt.Sprintf("%d/%s", entityID, candidateID))
			errs = append(errs, lineErrors([]string{msg}, line.Number, WPKandidatenGemeinde)...)
			continue
		}
		if seen[entityID] == nil {
			seen[entityID] = map[string]bool{}
		}
		seen[entityID][candidateID] = true
		if !result.Counted {
			votes = 0
		}
		result = results.setDefault(entityID, result)
		result.CandidateResults = append(result.CandidateResults, &models.CandidateResult{
			ID:               uuid.NewString(),
			ElectionResultID: result.ID,
			CandidateID:      candidate.ID,
			Votes:            votes,
		})
	}

	if len(errs) > 0 {
		return errs
	}

	for _, entityID := range results.keys {
		result, _ := results.get(entityID)
		byList, ok := listResults[entityID]
		if !ok {
			continue
		}
		for _, listID := range byList.keys {
			l, ok := lists.get(listID)
			if !ok || listID == models.BlankListID {
				continue
			}
			result.ListResults = append(result.ListResults, &models.ListResult{
				ID:               uuid.NewString(),
				ElectionResultID: result.ID,
				ListID:           l.ID,
				Votes:            byList.m[listID],
			})
		}
	}
	missingElectionResults(results, entities, business, p)

	keys := slices.Clone(connections.keys)
	slices.SortStableFunc(keys, func(a, b connectionKey) int {
		return strings.Compare(a.subconnection, b.subconnection)
	})
	var listConnections []*models.ListConnection
	for _, k := range keys {
		c, _ := connections.get(k)
		listConnections = append(listConnections, c)
	}
	var electionLists []*models.List
	for _, l := range lists.values() {
		if l.ListID != models.BlankListID {
			electionLists = append(electionLists, l)
		}
	}

	now := time.Now().UTC()
	election.ClearResults(true)
	election.Status = models.StatusUnknown
	if remaining != nil && *remaining == 0 {
		election.Status = models.StatusFinal
	}
	election.LastResultChange = &now
	election.ListConnections = listConnections
	election.Lists = electionLists
	election.Candidates = candidates.values()
	election.Results = results.values()
	attachProporz(election)
	return nil
}
