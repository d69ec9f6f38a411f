package formats

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avvvet/electionday-services/internal/electionsvc/models"
	"github.com/avvvet/electionday-services/internal/electionsvc/principal"
)

// WabstiC majorz export files.
const (
	WMWahl               = "wm_wahl"
	WMStaticGemeinden    = "wmstatic_gemeinden"
	WMGemeinden          = "wm_gemeinden"
	WMKandidaten         = "wm_kandidaten"
	WMKandidatenGemeinde = "wm_kandidatengde"
)

var wabsticMajorzFiles = []string{WMWahl, WMStaticGemeinden, WMGemeinden, WMKandidaten, WMKandidatenGemeinde}

var wabsticMajorzHeaders = map[string][]string{
	WMWahl: {"sortgeschaeft", "absolutesmehr", "anzpendentgde"},
	WMStaticGemeinden: {
		"sortwahlkreis", "sortgeschaeft", "bfsnrgemeinde", "stimmberechtigte",
	},
	WMGemeinden: {
		"bfsnrgemeinde", "stimmberechtigte", "sperrung", "stmabgegeben",
		"stmleer", "stmungueltig", "stimmenleer", "stimmenungueltig",
	},
	WMKandidaten: {
		"sortgeschaeft", "knr", "nachname", "vorname", "gewaehlt", "partei",
	},
	WMKandidatenGemeinde: {"sortgeschaeft", "bfsnrgemeinde", "knr", "stimmen"},
}

// wabsticStatus derives the status from the ausmittlungsstand and the
// number of pending entities.
func wabsticStatus(complete int, remaining *int) string {
	status := models.StatusUnknown
	if complete == 1 {
		status = models.StatusInterim
	}
	if remaining != nil && *remaining == 0 {
		status = models.StatusFinal
	}
	return status
}

// ImportElectionWabstiCMajorz imports the five files of a WabstiC majorz
// export for the business with the given number and district.
func ImportElectionWabstiCMajorz(election *models.Election, p *principal.Principal, number, district string, uploads map[string]Upload) []FileImportError {
	files, errs := loadUploads(wabsticMajorzFiles, uploads, wabsticMajorzHeaders)
	if len(errs) > 0 {
		return errs
	}

	entities := p.EntitiesOf(election.Year())
	business := Business{Domain: election.Domain, Segment: election.DomainSegment, HasExpats: election.HasExpats}

	var absoluteMajority *int
	complete := 0
	var remaining *int
	for _, line := range files[WMWahl].Lines {
		if !LineIsRelevant(line, number, "") {
			continue
		}
		var msgs []string
		majority, err := ValidateInteger(line, "absolutesmehr")
		if err != nil {
			msgs = append(msgs, err.Error())
		}
		state, err := ValidateInteger(line, "ausmittlungsstand", IntegerOptions{Optional: true})
		if err != nil {
			msgs = append(msgs, err.Error())
		}
		pending, err := ValidateInteger(line, "anzpendentgde")
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("Error in anzpendentgde: %s", err))
		}
		if len(msgs) > 0 {
			errs = append(errs, lineErrors(msgs, line.Number, WMWahl)...)
			continue
		}
		absoluteMajority = &majority
		if majority == -1 {
			absoluteMajority = nil
		}
		complete = state
		remaining = &pending
	}

	added := map[int]*models.ElectionResult{}
	for _, line := range files[WMStaticGemeinden].Lines {
		if !LineIsRelevant(line, number, district) {
			continue
		}
		var msgs []string
		entityID, err := ValidateInteger(line, "bfsnrgemeinde")
		if err != nil {
			errs = append(errs, lineErrors([]string{err.Error()}, line.Number, WMStaticGemeinden)...)
			continue
		}
		info, entityMsgs := ResolveEntity(entityID, entities, business, p)
		msgs = append(msgs, entityMsgs...)
		entityID = info.ID
		if _, seen := added[entityID]; seen {
			msgs = append(msgs, msgFoundTwice(entityID))
		}
		if entityID == 0 && !election.HasExpats {
			continue
		}
		eligibleVoters, err := ValidateInteger(line, "stimmberechtigte")
		if err != nil {
			msgs = append(msgs, err.Error())
		}
		if len(msgs) > 0 {
			errs = append(errs, lineErrors(msgs, line.Number, WMStaticGemeinden)...)
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

	for _, line := range files[WMGemeinden].Lines {
		entityID, err := ValidateInteger(line, "bfsnrgemeinde")
		if err != nil {
			errs = append(errs, lineErrors([]string{err.Error()}, line.Number, WMGemeinden)...)
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
		blankVotes := integer("stimmenleer")
		invalidVotes := integer("stimmenungueltig")
		if len(msgs) > 0 {
			errs = append(errs, lineErrors(msgs, line.Number, WMGemeinden)...)
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
		result.BlankVotes = blankVotes
		result.InvalidVotes = invalidVotes
	}

	candidates := newOrdered[string, *models.Candidate]()
	for _, line := range files[WMKandidaten].Lines {
		if !LineIsRelevant(line, number, "") {
			continue
		}
		candidateID := line.Get("knr")
		candidates.setDefault(candidateID, &models.Candidate{
			ID:          uuid.NewString(),
			CandidateID: candidateID,
			FamilyName:  line.Get("nachname"),
			FirstName:   line.Get("vorname"),
			Elected:     line.Get("gewaehlt") == "1",
			Party:       line.Get("partei"),
		})
	}

	results := newOrdered[int, *models.ElectionResult]()
	for _, line := range files[WMKandidatenGemeinde].Lines {
		if !LineIsRelevant(line, number, "") {
			continue
		}
		entityID, err := ValidateInteger(line, "bfsnrgemeinde")
		candidateID := line.Get("knr")
		votes, votesErr := ValidateInteger(line, "stimmen")
		if err != nil || votesErr != nil {
			errs = append(errs, lineErrors([]string{"Invalid candidate results"}, line.Number, WMKandidatenGemeinde)...)
			continue
		}

		var msgs []string
		candidate, ok := candidates.get(candidateID)
		if !ok && candidates.len() > 0 {
			msgs = append(msgs, fmt.Sprintf("Candidate with id %s not in %s", candidateID, WMKandidaten))
		}
		if _, known := entities[entityID]; !known && IsExpats(entityID) {
			entityID = 0
		}
		if entityID == 0 && !election.HasExpats {
			continue
		}
		result, found := added[entityID]
		if !found {
			msgs = append(msgs, fmt.Sprintf("Entity with id %d not in %s", entityID, WMStaticGemeinden))
		}
		if len(msgs) > 0 {
			errs = append(errs, lineErrors(msgs, line.Number, WMKandidatenGemeinde)...)
			continue
		}
		if candidate == nil {
			continue
		}
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

	if complete == 2 && remaining != nil && *remaining != 0 {
		errs = append(errs, FileImportError{Error: "Ausmittlungsstand set to final but AnzPendentGde is not 0"})
	}
	if len(errs) > 0 {
		return errs
	}

	missingElectionResults(results, entities, business, p)

	now := time.Now().UTC()
	election.ClearResults(true)
	election.AbsoluteMajority = absoluteMajority
	election.Status = wabsticStatus(complete, remaining)
	election.LastResultChange = &now
	election.Candidates = candidates.values()
	election.Results = results.values()
	attachElection(election)
	return nil
}
