package models

import (
	"sort"

	"github.com/shopspring/decimal"
)

type PartyResult struct {
	ID                    string              `json:"id"`
	ElectionID            string              `json:"election_id"`
	Domain                string              `json:"domain"`
	DomainSegment         string              `json:"domain_segment"`
	Year                  int                 `json:"year"`
	PartyID               string              `json:"party_id"`
	NameTranslations      map[string]string   `json:"name_translations"`
	TotalVotes            int                 `json:"total_votes"`
	NumberOfMandates      int                 `json:"number_of_mandates"`
	Votes                 int                 `json:"votes"`
	VotersCount           decimal.NullDecimal `json:"voters_count"`
	VotersCountPercentage decimal.NullDecimal `json:"voters_count_percentage"`
}

// PartyPanachageResult holds the votes a party got from another party in
// the election year. An empty source is the blank list.
type PartyPanachageResult struct {
	ID         string `json:"id"`
	ElectionID string `json:"election_id"`
	Target     string `json:"target"`
	Source     string `json:"source"`
	Votes      int    `json:"votes"`
}

func (r *PartyResult) Name(locale string) string {
	if name, ok := r.NameTranslations[locale]; ok {
		return name
	}
	for _, name := range r.NameTranslations {
		return name
	}
	return ""
}

// PartyStrength is the share of a party in a year.
type PartyStrength struct {
	PartyID          string          `json:"party_id"`
	Name             string          `json:"name"`
	Votes            int             `json:"votes"`
	NumberOfMandates int             `json:"number_of_mandates"`
	Percentage       decimal.Decimal `json:"percentage"`
}

// PartyStrengths returns the party results of the election's domain for
// the given year, with the vote share rounded to two digits.
func (e *ProporzElection) PartyStrengths(year int, locale string) []PartyStrength {
	out := []PartyStrength{}
	for _, r := range e.PartyResults {
		if r.Year != year || r.Domain != e.Domain {
			continue
		}
		percentage := decimal.Zero
		if r.TotalVotes > 0 {
			percentage = decimal.NewFromInt(int64(r.Votes)).
				Div(decimal.NewFromInt(int64(r.TotalVotes))).
				Mul(decimal.NewFromInt(100)).
				Round(2)
		}
		out = append(out, PartyStrength{
			PartyID:          r.PartyID,
			Name:             r.Name(locale),
			Votes:            r.Votes,
			NumberOfMandates: r.NumberOfMandates,
			Percentage:       percentage,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartyID < out[j].PartyID })
	return out
}

// PartyYears returns the years with party results, sorted.
func (e *ProporzElection) PartyYears() []int {
	seen := map[int]struct{}{}
	for _, r := range e.PartyResults {
		seen[r.Year] = struct{}{}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
