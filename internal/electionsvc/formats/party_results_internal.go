package formats

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/avvvet/electionday-services/internal/electionsvc/models"
	"github.com/avvvet/electionday-services/internal/electionsvc/principal"
)

var partyResultsHeaders = []string{
	"year",
	"total_votes",
	"id",
	"name",
	"color",
	"mandates",
	"votes",
}

const partyPanachagePrefix = "panachage_votes_from_"

type partyKey struct {
	domain  string
	segment string
	year    int
	partyID string
}

func (k partyKey) String() string {
	return fmt.Sprintf("%s/%s/%d/%s", k.domain, k.segment, k.year, k.partyID)
}

// partyNames reads the translated names from the name_<locale> columns.
// The plain name column is used for the default locale as a fallback.
func partyNames(line Row, locales []string, defaultLocale string) map[string]string {
	names := map[string]string{}
	for _, locale := range locales {
		if name := line.Get("name_" + strings.ToLower(locale)); name != "" {
			names[locale] = name
		}
	}
	if _, ok := names[defaultLocale]; !ok {
		if name := line.Get("name"); name != "" {
			names[defaultLocale] = name
		}
	}
	return names
}

func isEmptyLine(line Row) bool {
	for _, v := range line.values {
		if v != "" {
			return false
		}
	}
	return true
}

// ImportPartyResultsInternal imports the party results and the party
// panachage of a proporz election. Rows of other domains are ignored.
func ImportPartyResultsInternal(election *models.ProporzElection, p *principal.Principal, r io.Reader, mimetype string, locales []string, defaultLocale string) []FileImportError {
	var errs []FileImportError
	var lines []Row
	var panachageHeaders []panachageHeader

	file, ferr := LoadCSV(r, mimetype, partyResultsHeaders, "")
	if ferr != nil {
		errs = append(errs, *ferr)
	} else {
		lines = file.Lines
		for _, h := range file.Headers {
			if source, ok := strings.CutPrefix(h, partyPanachagePrefix); ok && source != "" {
				panachageHeaders = append(panachageHeaders, panachageHeader{col: AsValidIdentifier(h), source: source})
			}
		}
	}

	year := election.Year()
	colors := copyColors(election.Colors)
	parties := newOrdered[partyKey, *models.PartyResult]()
	partyIDs := map[string]bool{}
	var panachage []*models.PartyPanachageResult

	for _, line := range lines {
		if isEmptyLine(line) {
			errs = append(errs, lineErrors([]string{msgInvalidValue}, line.Number, "")...)
			continue
		}

		var msgs []string
		result := &models.PartyResult{ID: uuid.NewString()}
		var color string
		lineYear, err := func() (int, error) {
			lineYear, err := ValidateInteger(line, "year")
			if err != nil {
				return 0, err
			}
			if result.TotalVotes, err = ValidateInteger(line, "total_votes"); err != nil {
				return lineYear, err
			}
			result.NameTranslations = partyNames(line, locales, defaultLocale)
			if color, err = ValidateColor(line, "color"); err != nil {
				return lineYear, err
			}
			if result.NumberOfMandates, err = ValidateInteger(line, "mandates"); err != nil {
				return lineYear, err
			}
			if result.Votes, err = ValidateInteger(line, "votes"); err != nil {
				return lineYear, err
			}
			if result.VotersCount, err = ValidateNumeric(line, "voters_count", 12, 2, true); err != nil {
				return lineYear, err
			}
			result.VotersCountPercentage, err = ValidateNumeric(line, "voters_count_percentage", 12, 2, true)
			return lineYear, err
		}()
		if err != nil {
			msgs = append(msgs, err.Error())
		}
		result.Year = lineYear

		partyID, err := ValidateListID(line, "id", true)
		if err != nil {
			msgs = append(msgs, err.Error())
		}

		domain := line.Get("domain")
		if domain == "" {
			domain = election.Domain
		}
		segment := line.Get("domain_segment")
		if segment == "" || domain == "canton" {
			segment = election.DomainSegment
		}
		if domain != election.Domain || segment != election.DomainSegment {
			continue
		}

		var linePanachage []*models.PartyPanachageResult
		if lineYear == year {
			for _, h := range panachageHeaders {
				votes, err := ValidateNullableInteger(line, h.col, false)
				if err != nil {
					msgs = append(msgs, err.Error())
					break
				}
				if votes == nil || h.source == partyID {
					continue
				}
				linePanachage = append(linePanachage, &models.PartyPanachageResult{
					ID:     uuid.NewString(),
					Target: partyID,
					Source: panachageSource(h.source),
					Votes:  *votes,
				})
			}
		}

		key := partyKey{domain: domain, segment: segment, year: lineYear, partyID: partyID}
		if len(msgs) == 0 {
			if _, seen := parties.get(key); seen {
				msgs = append(msgs, msgFoundTwice(key))
			}
		}
		if len(msgs) > 0 {
			errs = append(errs, lineErrors(msgs, line.Number, "")...)
			continue
		}

		result.Domain = domain
		result.DomainSegment = segment
		result.PartyID = partyID
		parties.setDefault(key, result)
		partyIDs[partyID] = true
		panachage = append(panachage, linePanachage...)
		if color != "" {
			for _, name := range result.NameTranslations {
				colors[name] = color
			}
		}
	}

	if len(panachageHeaders) > 0 && len(errs) == 0 {
		sources := map[string]bool{}
		for _, h := range panachageHeaders {
			if h.source != models.BlankListID {
				sources[h.source] = true
			}
		}
		if !sameKeys(sources, partyIDs) {
			errs = append(errs, FileImportError{Error: "Panachage results ids and id not consistent"})
		}
	}

	hasYear := slices.ContainsFunc(parties.values(), func(r *models.PartyResult) bool { return r.Year == year })
	if !hasYear {
		errs = append(errs, FileImportError{Error: "No party results for year " + strconv.Itoa(year)})
	}
	if len(errs) > 0 {
		return errs
	}

	for _, r := range parties.values() {
		r.ElectionID = election.ID
	}
	for _, r := range panachage {
		r.ElectionID = election.ID
	}
	election.PartyResults = parties.values()
	election.PartyPanachageResults = panachage
	election.Colors = colors
	return nil
}

func sameKeys(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
