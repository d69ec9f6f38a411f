package formats

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/avvvet/electionday-services/internal/electionsvc/models"
	"github.com/avvvet/electionday-services/internal/electionsvc/principal"
)

var (
	wabstiProporzHeaders = []string{
		"einheit_bfs",
		"liste_kandid",
		"kand_nachname",
		"kand_vorname",
		"liste_id",
		"liste_code",
		"kand_stimmentotal",
		"liste_parteistimmentotal",
	}
	wabstiProporzHeadersConnections = []string{"liste", "lv", "luv"}
	wabstiProporzHeadersCandidates  = []string{"liste_kandid"}
	wabstiProporzHeadersStats       = []string{
		"einheit_bfs",
		"einheit_name",
		"stimbertotal",
		"wzeingegangen",
		"wzleer",
		"wzungueltig",
		"stmwzveraendertleeramtlleer",
	}
)

// WabstiProporzUploads are the files of a Wabsti proporz export. Only the
// results are required.
type WabstiProporzUploads struct {
	Results     Upload
	Connections Upload
	Elected     Upload
	Statistics  Upload
}

// loadWabsti loads a Wabsti export, which is sometimes UTF-16 encoded. The
// error of the first attempt is returned if both fail.
func loadWabsti(u Upload, expected []string, filename string) (*CSVFile, *FileImportError) {
	if u.Body == nil {
		return nil, &FileImportError{Filename: filename, Error: msgEmptyFile}
	}
	data, err := io.ReadAll(u.Body)
	if err != nil {
		log.WithError(err).WithField("filename", filename).Warn("reading upload failed")
		return nil, &FileImportError{Filename: filename, Error: msgInvalidFile}
	}
	file, ferr := LoadCSV(bytes.NewReader(data), u.Mimetype, expected, filename)
	if ferr == nil {
		return file, nil
	}
	file, utf16Err := LoadCSV(bytes.NewReader(data), u.Mimetype, expected, filename, WithEncoding("utf-16-le"))
	if utf16Err != nil {
		return nil, ferr
	}
	return file, nil
}

// wabstiPanachageHeaders maps the panachage columns, named after the
// source list as in "01.FDP", to the source list id.
func wabstiPanachageHeaders(file *CSVFile) []panachageHeader {
	var out []panachageHeader
	for _, h := range file.Headers {
		listID, _, found := strings.Cut(h, ".")
		if !found {
			continue
		}
		if listID == "99" {
			listID = models.BlankListID
		}
		out = append(out, panachageHeader{col: AsValidIdentifier(h), source: listID})
	}
	return out
}

// parseWabstiResult reads the entity of a results line. Entities are
// always counted in this format.
func parseWabstiResult(line Row, msgs *[]string, entities map[int]principal.Entity, b Business, p *principal.Principal) *models.ElectionResult {
	entityID, err := ValidateInteger(line, "einheit_bfs")
	if err != nil {
		*msgs = append(*msgs, err.Error())
		return nil
	}
	info, entityMsgs := ResolveEntity(entityID, entities, b, p)
	if len(entityMsgs) > 0 {
		*msgs = append(*msgs, entityMsgs...)
		return nil
	}
	return &models.ElectionResult{
		ID:          uuid.NewString(),
		EntityID:    info.ID,
		Name:        info.Name,
		District:    info.District,
		Superregion: info.Superregion,
		Counted:     true,
	}
}

// ImportElectionWabstiProporz imports the legacy Wabsti proporz export:
// the results with the list panachage, and optionally the list
// connections, the elected candidates and the entity statistics.
func ImportElectionWabstiProporz(election *models.ProporzElection, p *principal.Principal, uploads WabstiProporzUploads) []FileImportError {
	entities := p.EntitiesOf(election.Year())
	business := Business{Domain: election.Domain, Segment: election.DomainSegment, HasExpats: election.HasExpats}

	var errs []FileImportError
	results := newOrdered[int, *models.ElectionResult]()
	candidates := newOrdered[string, *models.Candidate]()
	lists := newOrdered[string, *models.List]()
	connections := newOrdered[string, *models.ListConnection]()
	subconnections := newOrdered[string, *models.ListConnection]()
	listResults := map[int]*ordered[string, *models.ListResult]{}
	panachage := newOrdered[string, *ordered[string, int]]()
	var panachageHeaders []panachageHeader

	const resultsFile = "Results"
	file, ferr := loadWabsti(uploads.Results, wabstiProporzHeaders, resultsFile)
	if ferr != nil {
		errs = append(errs, *ferr)
	} else {
		panachageHeaders = wabstiPanachageHeaders(file)
		for _, line := range file.Lines {
			var msgs []string

			result := parseWabstiResult(line, &msgs, entities, business, p)

			candidateID, err := ValidateInteger(line, "liste_kandid")
			if err != nil {
				msgs = append(msgs, err.Error())
			}
			candidateVotes, err := ValidateInteger(line, "kand_stimmentotal")
			if err != nil {
				msgs = append(msgs, err.Error())
			}
			listID, err := ValidateListID(line, "liste_id", false)
			if err != nil {
				msgs = append(msgs, err.Error())
			}
			listVotes, err := ValidateInteger(line, "liste_parteistimmentotal")
			if err != nil {
				msgs = append(msgs, err.Error())
			}
			if err := parseWabstiPanachage(line, panachage, panachageHeaders); err != nil {
				msgs = append(msgs, err.Error())
			}

			if result != nil && result.EntityID == 0 && !election.HasExpats {
				continue
			}
			if len(msgs) > 0 {
				errs = append(errs, lineErrors(msgs, line.Number, resultsFile)...)
				continue
			}

			result = results.setDefault(result.EntityID, result)
			list := lists.setDefault(listID, &models.List{
				ID:     uuid.NewString(),
				ListID: listID,
				Name:   line.Get("liste_code"),
			})
			if listResults[result.EntityID] == nil {
				listResults[result.EntityID] = newOrdered[string, *models.ListResult]()
			}
			listResults[result.EntityID].setDefault(listID, &models.ListResult{
				ID:               uuid.NewString(),
				ElectionResultID: result.ID,
				ListID:           list.ID,
				Votes:            listVotes,
			})
			candidate := candidates.setDefault(strconv.Itoa(candidateID), &models.Candidate{
				ID:          uuid.NewString(),
				CandidateID: strconv.Itoa(candidateID),
				FamilyName:  line.Get("kand_nachname"),
				FirstName:   line.Get("kand_vorname"),
			})
			candidate.ListID = list.ID
			result.CandidateResults = append(result.CandidateResults, &models.CandidateResult{
				ID:               uuid.NewString(),
				ElectionResultID: result.ID,
				CandidateID:      candidate.ID,
				Votes:            candidateVotes,
			})
		}
	}

	if uploads.Connections.Body != nil {
		const filename = "List connections"
		file, ferr := loadWabsti(uploads.Connections, wabstiProporzHeadersConnections, filename)
		if ferr != nil {
			errs = append(errs, *ferr)
		} else {
			for _, line := range file.Lines {
				listID, err := ValidateListID(line, "liste", false)
				if err != nil {
					errs = append(errs, lineErrors([]string{err.Error()}, line.Number, filename)...)
					continue
				}
				list, ok := lists.get(listID)
				if !ok {
					continue
				}
				connectionID := line.Get("lv")
				if connectionID == "" {
					continue
				}
				connection := connections.setDefault(connectionID, &models.ListConnection{
					ID:           uuid.NewString(),
					ConnectionID: connectionID,
				})
				list.ConnectionID = connection.ID
				if subconnectionID := line.Get("luv"); subconnectionID != "" {
					subconnection := subconnections.setDefault(subconnectionID, &models.ListConnection{
						ID:           uuid.NewString(),
						ConnectionID: subconnectionID,
					})
					subconnection.ParentID = connection.ID
					list.ConnectionID = subconnection.ID
				}
			}
		}
	}

	if uploads.Elected.Body != nil {
		const filename = "Elected Candidates"
		file, ferr := loadWabsti(uploads.Elected, wabstiProporzHeadersCandidates, filename)
		if ferr != nil {
			errs = append(errs, *ferr)
		} else {
			byID := map[string]*models.List{}
			for _, l := range lists.values() {
				byID[l.ID] = l
			}
			for _, line := range file.Lines {
				candidateID, err := ValidateInteger(line, "liste_kandid")
				if err != nil {
					errs = append(errs, lineErrors([]string{err.Error()}, line.Number, filename)...)
					continue
				}
				candidate, ok := candidates.get(strconv.Itoa(candidateID))
				if !ok {
					errs = append(errs, lineErrors([]string{"Unknown candidate"}, line.Number, filename)...)
					continue
				}
				candidate.Elected = true
				byID[candidate.ListID].NumberOfMandates++
			}
		}
	}

	if uploads.Statistics.Body != nil {
		const filename = "Election statistics"
		file, ferr := loadWabsti(uploads.Statistics, wabstiProporzHeadersStats, filename)
		if ferr != nil {
			errs = append(errs, *ferr)
		} else {
			for _, line := range file.Lines {
				var values [6]int
				var err error
				for i, col := range []string{
					"einheit_bfs", "stimbertotal", "wzeingegangen",
					"wzleer", "wzungueltig", "stmwzveraendertleeramtlleer",
				} {
					if values[i], err = ValidateInteger(line, col); err != nil {
						break
					}
				}
				if err != nil {
					errs = append(errs, lineErrors([]string{err.Error()}, line.Number, filename)...)
					continue
				}
				entityID := values[0]
				_, known := entities[entityID]
				if !known && strings.EqualFold(line.Get("einheit_name"), "auslandschweizer") {
					entityID = 0
				}
				result, ok := results.get(entityID)
				if !ok {
					continue
				}
				result.EligibleVoters = values[1]
				result.ReceivedBallots = values[2]
				result.BlankBallots = values[3]
				result.InvalidBallots = values[4]
				result.BlankVotes = values[5]
			}
		}
	}

	if len(errs) == 0 && results.len() == 0 {
		errs = append(errs, FileImportError{Error: msgNoData})
	}
	for _, h := range panachageHeaders {
		if _, ok := lists.get(h.source); h.source != models.BlankListID && !ok {
			errs = append(errs, panachageSourceError(h.source))
			break
		}
	}
	if len(errs) > 0 {
		return errs
	}

	missingElectionResults(results, entities, business, p)

	for entityID, byList := range listResults {
		r, _ := results.get(entityID)
		r.ListResults = byList.values()
	}
	for _, l := range lists.values() {
		sources, ok := panachage.get(l.ListID)
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
	election.Status = models.StatusUnknown
	election.LastResultChange = &now
	election.ListConnections = append(connections.values(), subconnections.values()...)
	election.Lists = lists.values()
	election.Candidates = candidates.values()
	election.Results = results.values()
	attachProporz(election)
	return nil
}

// parseWabstiPanachage sums the panachage votes of a line to its list.
func parseWabstiPanachage(line Row, panachage *ordered[string, *ordered[string, int]], headers []panachageHeader) error {
	target, err := ValidateListID(line, "liste_id", false)
	if err != nil {
		return err
	}
	sources := panachage.setDefault(target, newOrdered[string, int]())
	for _, h := range headers {
		if h.source == target {
			continue
		}
		votes, err := ValidateInteger(line, h.col)
		if err != nil {
			return err
		}
		sources.m[h.source] = sources.setDefault(h.source, 0) + votes
	}
	return nil
}
