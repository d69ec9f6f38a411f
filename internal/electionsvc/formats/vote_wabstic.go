package formats

import (
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/avvvet/electionday-services/internal/electionsvc/models"
	"github.com/avvvet/electionday-services/internal/electionsvc/principal"
)

var wabsticVoteHeadersGeschaefte = []string{
	"art",
	"sortwahlkreis",
	"sortgeschaeft",
	"ausmittlungsstand",
	"anzgdependent",
}

var wabsticVoteHeadersGemeinden = []string{
	"art",
	"sortwahlkreis",
	"sortgeschaeft",
	"bfsnrgemeinde",
	"sperrung",
	"stimmberechtigte",
	"stmungueltig",
	"stmleer",
	"stmhgja",
	"stmhgnein",
	"stmhgohneaw",
	"stmn1ja",
	"stmn1nein",
	"stmn1ohneaw",
	"stmn2ja",
	"stmn2nein",
	"stmn2ohneaw",
}

// wabsticBallots maps the ballot types to their column prefix.
var wabsticBallots = []struct {
	ballotType string
	prefix     string
}{
	{models.BallotProposal, "hg"},
	{models.BallotCounterProposal, "n1"},
	{models.BallotTieBreaker, "n2"},
}

// ImportVoteWabstiC imports the sg_geschaefte and sg_gemeinden files of a
// WabstiC export for the business with the given number and district.
func ImportVoteWabstiC(vote *models.Vote, p *principal.Principal, number, district string, geschaefte io.Reader, geschaefteMimetype string, gemeinden io.Reader, gemeindenMimetype string) []FileImportError {
	var errs []FileImportError

	sgGeschaefte, ferr := LoadCSV(geschaefte, geschaefteMimetype, wabsticVoteHeadersGeschaefte, "sg_geschaefte")
	if ferr != nil {
		errs = append(errs, *ferr)
	}
	sgGemeinden, ferr := LoadCSV(gemeinden, gemeindenMimetype, wabsticVoteHeadersGemeinden, "sg_gemeinden")
	if ferr != nil {
		errs = append(errs, *ferr)
	}
	if len(errs) > 0 {
		return errs
	}

	ballots := wabsticBallots[:1]
	if vote.IsComplex() {
		ballots = wabsticBallots
	}
	entities := p.EntitiesOf(vote.Date.Year())
	business := Business{Domain: vote.Domain, Segment: vote.DomainSegment, HasExpats: vote.HasExpats}

	status := models.StatusUnknown
	art := ""
	for _, line := range sgGeschaefte.Lines {
		if !LineIsRelevant(line, number, district) {
			continue
		}
		var msgs []string
		complete, err := ValidateInteger(line, "ausmittlungsstand")
		if err != nil {
			msgs = append(msgs, err.Error())
		}
		pending, err := ValidateInteger(line, "anzgdependent")
		if err != nil {
			msgs = append(msgs, err.Error())
		}
		if len(msgs) > 0 {
			errs = append(errs, lineErrors(msgs, line.Number, "sg_geschaefte")...)
			continue
		}
		art = line.Get("art")
		status = models.StatusUnknown
		if complete == 3 && pending == 0 {
			status = models.StatusFinal
		}
	}

	results := map[string]map[int]*models.BallotResult{}
	for _, b := range ballots {
		results[b.ballotType] = map[int]*models.BallotResult{}
	}

	for _, line := range sgGemeinden.Lines {
		if !LineIsRelevant(line, number, district) {
			continue
		}
		if art != "" && line.Get("art") != art {
			continue
		}

		var msgs []string
		var info EntityInfo
		entityID, entityErr := ValidateInteger(line, "bfsnrgemeinde")
		if entityErr != nil {
			msgs = append(msgs, entityErr.Error())
		} else {
			var entityMsgs []string
			info, entityMsgs = ResolveEntity(entityID, entities, business, p)
			entityID = info.ID
			msgs = append(msgs, entityMsgs...)
			if _, seen := results[models.BallotProposal][entityID]; seen {
				msgs = append(msgs, msgFoundTwice(entityID))
			}
			if entityID == 0 && !vote.HasExpats {
				continue
			}
		}

		counted := false
		if locked, err := ValidateInteger(line, "sperrung"); err != nil {
			msgs = append(msgs, msgInvalidValue)
		} else {
			counted = locked != 0
		}

		eligibleVoters, err := ValidateInteger(line, "stimmberechtigte")
		if err != nil {
			msgs = append(msgs, err.Error())
		}
		invalid, err := ValidateInteger(line, "stmungueltig")
		if err != nil {
			msgs = append(msgs, err.Error())
		}

		type values struct{ yeas, nays, empty int }
		parsed := map[string]values{}
		emptyFailed := false
		for _, b := range ballots {
			var v values
			if v.yeas, err = ValidateInteger(line, "stm"+b.prefix+"ja"); err != nil {
				msgs = append(msgs, err.Error())
			}
			if v.nays, err = ValidateInteger(line, "stm"+b.prefix+"nein"); err != nil {
				msgs = append(msgs, err.Error())
			}
			blank, err := ValidateInteger(line, "stmleer")
			if err == nil {
				var withoutAnswer int
				withoutAnswer, err = ValidateInteger(line, "stm"+b.prefix+"ohneaw")
				v.empty = blank + withoutAnswer
			}
			if err != nil && !emptyFailed {
				msgs = append(msgs, "Could not read the empty votes")
				emptyFailed = true
			}
			parsed[b.ballotType] = v
		}

		if len(msgs) > 0 {
			errs = append(errs, lineErrors(msgs, line.Number, "sg_gemeinden")...)
			continue
		}

		for _, b := range ballots {
			result := &models.BallotResult{
				ID:       uuid.NewString(),
				EntityID: entityID,
				Name:     info.Name,
				District: info.District,
				Counted:  counted,
			}
			if counted {
				v := parsed[b.ballotType]
				result.EligibleVoters = eligibleVoters
				result.Invalid = invalid
				result.Yeas = v.yeas
				result.Nays = v.nays
				result.Empty = v.empty
			}
			results[b.ballotType][entityID] = result
		}
	}

	if len(errs) > 0 {
		return errs
	}

	for _, byEntity := range results {
		present := map[int]bool{}
		for id := range byEntity {
			present[id] = true
		}
		for _, info := range MissingEntities(entities, business, p, present) {
			byEntity[info.ID] = &models.BallotResult{
				ID:       uuid.NewString(),
				EntityID: info.ID,
				Name:     info.Name,
				District: info.District,
			}
		}
	}

	now := time.Now().UTC()
	vote.ClearResults()
	vote.Status = status
	vote.LastResultChange = &now
	for _, b := range ballots {
		vote.EnsureBallot(b.ballotType).Results = sortedBallotResults(results[b.ballotType])
	}
	return nil
}
