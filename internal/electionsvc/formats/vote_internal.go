package formats

import (
	"io"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avvvet/electionday-services/internal/electionsvc/models"
	"github.com/avvvet/electionday-services/internal/electionsvc/principal"
)

var voteInternalHeaders = []string{
	"status",
	"type",
	"entity_id",
	"counted",
	"yeas",
	"nays",
	"invalid",
	"empty",
	"eligible_voters",
}

// ImportVoteInternal imports the internal vote format, one line per entity
// and ballot type. The vote is only changed if there are no errors.
func ImportVoteInternal(vote *models.Vote, p *principal.Principal, r io.Reader, mimetype string) []FileImportError {
	file, ferr := LoadCSV(r, mimetype, voteInternalHeaders, "")
	if ferr != nil {
		return []FileImportError{*ferr}
	}

	entities := p.EntitiesOf(vote.Date.Year())
	business := Business{Domain: vote.Domain, Segment: vote.DomainSegment, HasExpats: vote.HasExpats}

	var errs []FileImportError
	results := map[string]map[int]*models.BallotResult{}
	status := models.StatusUnknown

	for _, line := range file.Lines {
		var msgs []string

		lineStatus := line.Get("status")
		if lineStatus == "" {
			lineStatus = models.StatusUnknown
		}
		if !slices.Contains(models.Stati, lineStatus) {
			msgs = append(msgs, msgInvalidState)
		}

		ballotType := line.Get("type")
		if !slices.Contains(models.BallotTypes, ballotType) {
			msgs = append(msgs, "Invalid ballot type")
		}

		counted := strings.ToLower(line.Get("counted")) == "true"

		integer := func(col string) int {
			v, err := ValidateInteger(line, col)
			if err != nil {
				msgs = append(msgs, err.Error())
			}
			return v
		}
		entityID, entityErr := ValidateInteger(line, "entity_id")
		if entityErr != nil {
			msgs = append(msgs, entityErr.Error())
		}
		yeas := integer("yeas")
		nays := integer("nays")
		invalid := integer("invalid")
		empty := integer("empty")
		eligibleVoters := integer("eligible_voters")
		expats, err := ValidateNullableInteger(line, "expats", true)
		if err != nil {
			msgs = append(msgs, err.Error())
		}

		var info EntityInfo
		if entityErr == nil {
			var entityMsgs []string
			info, entityMsgs = ResolveEntity(entityID, entities, business, p)
			entityID = info.ID
			msgs = append(msgs, entityMsgs...)
			if _, seen := results[ballotType][entityID]; seen {
				msgs = append(msgs, msgFoundTwice(entityID))
			}
		}

		if counted {
			if eligibleVoters == 0 {
				msgs = append(msgs, "No eligible voters")
			}
			if yeas+nays+empty+invalid > eligibleVoters {
				msgs = append(msgs, "More cast votes than eligible voters")
			}
		}

		if entityErr == nil && entityID == 0 && !vote.HasExpats {
			continue
		}

		if len(msgs) > 0 {
			errs = append(errs, lineErrors(msgs, line.Number, "")...)
			continue
		}

		status = lineStatus
		result := &models.BallotResult{
			ID:       uuid.NewString(),
			EntityID: entityID,
			Name:     info.Name,
			District: info.District,
			Counted:  counted,
		}
		if counted {
			result.Yeas = yeas
			result.Nays = nays
			result.Invalid = invalid
			result.Empty = empty
			result.EligibleVoters = eligibleVoters
			result.Expats = expats
		}
		if results[ballotType] == nil {
			results[ballotType] = map[int]*models.BallotResult{}
		}
		results[ballotType][entityID] = result
	}

	if len(errs) == 0 && len(results) == 0 {
		errs = append(errs, FileImportError{Error: msgNoData})
	}
	if len(errs) > 0 {
		return errs
	}

	for ballotType, byEntity := range results {
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
		results[ballotType] = byEntity
	}

	now := time.Now().UTC()
	vote.ClearResults()
	vote.Status = status
	vote.LastResultChange = &now
	for _, ballotType := range models.BallotTypes {
		byEntity, ok := results[ballotType]
		if !ok {
			continue
		}
		ballot := vote.EnsureBallot(ballotType)
		ballot.Results = sortedBallotResults(byEntity)
	}
	return nil
}

func sortedBallotResults(byEntity map[int]*models.BallotResult) []*models.BallotResult {
	out := make([]*models.BallotResult, 0, len(byEntity))
	for _, r := range byEntity {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *models.BallotResult) int { return a.EntityID - b.EntityID })
	return out
}
