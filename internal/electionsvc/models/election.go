package models

import (
	"sort"
	"strings"
	"time"
)

const (
	ElectionMajorz  = "majorz"
	ElectionProporz = "proporz"
)

// Election is a majorz election. Proporz elections embed it.
type Election struct {
	ID                 string            `json:"id"`
	TitleTranslations  map[string]string `json:"title_translations"`
	Type               string            `json:"type"`
	Domain             string            `json:"domain"`
	DomainSegment      string            `json:"domain_segment"`
	DomainSupersegment string            `json:"domain_supersegment"`
	Date               time.Time         `json:"date"`
	NumberOfMandates   int               `json:"number_of_mandates"`
	AbsoluteMajority   *int              `json:"absolute_majority"`
	MajorityType       string            `json:"majority_type"`
	HasExpats          bool              `json:"has_expats"`
	Status             string            `json:"status"`
	Colors             map[string]string `json:"colors"`
	LastResultChange   *time.Time        `json:"last_result_change"`
	LastModified       *time.Time        `json:"last_modified"`

	Candidates []*Candidate      `json:"candidates"`
	Results    []*ElectionResult `json:"results"`
}

type Candidate struct {
	ID          string `json:"id"`
	ElectionID  string `json:"election_id"`
	CandidateID string `json:"candidate_id"`
	FamilyName  string `json:"family_name"`
	FirstName   string `json:"first_name"`
	Elected     bool   `json:"elected"`
	Party       string `json:"party"`
	Gender      string `json:"gender"`
	YearOfBirth *int   `json:"year_of_birth"`
	ListID      string `json:"list_id"`
}

type ElectionResult struct {
	ID              string `json:"id"`
	ElectionID      string `json:"election_id"`
	EntityID        int    `json:"entity_id"`
	Name            string `json:"name"`
	District        string `json:"district"`
	Superregion     string `json:"superregion"`
	Counted         bool   `json:"counted"`
	EligibleVoters  int    `json:"eligible_voters"`
	Expats          *int   `json:"expats"`
	ReceivedBallots int    `json:"received_ballots"`
	BlankBallots    int    `json:"blank_ballots"`
	InvalidBallots  int    `json:"invalid_ballots"`
	BlankVotes      int    `json:"blank_votes"`
	InvalidVotes    int    `json:"invalid_votes"`

	CandidateResults []*CandidateResult `json:"candidate_results"`
	ListResults      []*ListResult      `json:"list_results,omitempty"`

	CandidatePanachageResults []*CandidatePanachageResult `json:"candidate_panachage_results,omitempty"`
}

type CandidateResult struct {
	ID               string `json:"id"`
	ElectionResultID string `json:"election_result_id"`
	CandidateID      string `json:"candidate_id"`
	Votes            int    `json:"votes"`
}

func (r *ElectionResult) AccountedBallots() int {
	return r.ReceivedBallots - r.BlankBallots - r.InvalidBallots
}

func (r *ElectionResult) UnaccountedBallots() int {
	return r.BlankBallots + r.InvalidBallots
}

// AccountedVotes needs the number of mandates of the election.
func (r *ElectionResult) AccountedVotes(mandates int) int {
	return mandates*r.AccountedBallots() - r.BlankVotes - r.InvalidVotes
}

func (r *ElectionResult) Turnout() float64 {
	return turnout(r.ReceivedBallots, r.EligibleVoters)
}

// CandidateVotes returns the votes of the candidate in this entity.
func (r *ElectionResult) CandidateVotes(candidateID string) int {
	if cr := r.candidateResult(candidateID); cr != nil {
		return cr.Votes
	}
	return 0
}

func (r *ElectionResult) candidateResult(candidateID string) *CandidateResult {
	for _, cr := range r.CandidateResults {
		if cr.CandidateID == candidateID {
			return cr
		}
	}
	return nil
}

func (e *Election) IsProporz() bool {
	return e.Type == ElectionProporz
}

func (e *Election) Year() int {
	return e.Date.Year()
}

// Counted is true if there are results and all of them are counted.
func (e *Election) Counted() bool {
	if len(e.Results) == 0 {
		return false
	}
	for _, r := range e.Results {
		if !r.Counted {
			return false
		}
	}
	return true
}

func (e *Election) Completed() bool {
	return Completed(e.Status, e.Counted())
}

func (e *Election) Progress() Progress {
	p := Progress{Total: len(e.Results)}
	for _, r := range e.Results {
		if r.Counted {
			p.Counted++
		}
	}
	return p
}

// CountedEntities may contain an empty name for the expats.
func (e *Election) CountedEntities() []string {
	names := []string{}
	for _, r := range e.Results {
		if r.Counted {
			names = append(names, r.Name)
		}
	}
	sort.Strings(names)
	return names
}

func (e *Election) HasResults() bool {
	for _, r := range e.Results {
		if r.Counted {
			return true
		}
	}
	return false
}

// AllocatedMandates is the number of elected candidates once the election
// is completed.
func (e *Election) AllocatedMandates() int {
	if !e.Completed() {
		return 0
	}
	n := 0
	for _, c := range e.Candidates {
		if c.Elected {
			n++
		}
	}
	return n
}

// ElectedCandidates returns (first name, family name) pairs sorted by
// family name.
func (e *Election) ElectedCandidates() [][2]string {
	elected := [][2]string{}
	for _, c := range e.Candidates {
		if c.Elected {
			elected = append(elected, [2]string{c.FirstName, c.FamilyName})
		}
	}
	sort.SliceStable(elected, func(i, j int) bool {
		if elected[i][1] != elected[j][1] {
			return elected[i][1] < elected[j][1]
		}
		return elected[i][0] < elected[j][0]
	})
	return elected
}

func (e *Election) sum(value func(*ElectionResult) int) int {
	total := 0
	for _, r := range e.Results {
		total += value(r)
	}
	return total
}

func (e *Election) EligibleVoters() int {
	return e.sum(func(r *ElectionResult) int { return r.EligibleVoters })
}

func (e *Election) Expats() int {
	return e.sum(func(r *ElectionResult) int {
		if r.Expats == nil {
			return 0
		}
		return *r.Expats
	})
}

func (e *Election) ReceivedBallots() int {
	return e.sum(func(r *ElectionResult) int { return r.ReceivedBallots })
}

func (e *Election) AccountedBallots() int {
	return e.sum(func(r *ElectionResult) int { return r.AccountedBallots() })
}

func (e *Election) BlankBallots() int {
	return e.sum(func(r *ElectionResult) int { return r.BlankBallots })
}

func (e *Election) InvalidBallots() int {
	return e.sum(func(r *ElectionResult) int { return r.InvalidBallots })
}

func (e *Election) AccountedVotes() int {
	return e.sum(func(r *ElectionResult) int { return r.AccountedVotes(e.NumberOfMandates) })
}

func (e *Election) Turnout() float64 {
	return turnout(e.ReceivedBallots(), e.EligibleVoters())
}

// CandidateVotes sums the votes of a candidate over all entities.
func (e *Election) CandidateVotes(candidateID string) int {
	return e.sum(func(r *ElectionResult) int { return r.CandidateVotes(candidateID) })
}

func (e *Election) Candidate(id string) *Candidate {
	for _, c := range e.Candidates {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// DistrictVotes aggregates results per district.
type DistrictVotes struct {
	District string `json:"district"`
	Entities []int  `json:"entities"`
	Counted  bool   `json:"counted"`
	Votes    int    `json:"votes"`
}

// VotesByDistrict sums the accounted ballots per district.
func (e *Election) VotesByDistrict() []DistrictVotes {
	return votesByDistrict(e.Results, func(r *ElectionResult) int { return r.AccountedBallots() })
}

func votesByDistrict(results []*ElectionResult, votes func(*ElectionResult) int) []DistrictVotes {
	groups := map[string]*DistrictVotes{}
	for _, r := range results {
		g, ok := groups[r.District]
		if !ok {
			g = &DistrictVotes{District: r.District, Counted: true}
			groups[r.District] = g
		}
		g.Entities = append(g.Entities, r.EntityID)
		g.Counted = g.Counted && r.Counted
		g.Votes += votes(r)
	}

	out := make([]DistrictVotes, 0, len(groups))
	for _, g := range groups {
		sort.Ints(g.Entities)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].District < out[j].District })
	return out
}

// ClearResults drops all results, and the candidates too if clearAll is
// set.
func (e *Election) ClearResults(clearAll bool) {
	e.AbsoluteMajority = nil
	e.Status = ""
	e.LastResultChange = nil
	e.Results = nil
	if clearAll {
		e.Candidates = nil
	}
}

func (e *Election) Title(locale string) string {
	if t, ok := e.TitleTranslations[locale]; ok {
		return t
	}
	for _, t := range e.TitleTranslations {
		return t
	}
	return ""
}

func (e *Election) Summary() Summary {
	return Summary{
		Type:         "election",
		ID:           e.ID,
		Title:        e.TitleTranslations,
		Date:         e.Date.Format(time.DateOnly),
		Domain:       e.Domain,
		Completed:    e.Completed(),
		LastModified: e.LastModified,
		Progress:     e.Progress(),
		Elected:      e.ElectedCandidates(),
	}
}

// sortedResults orders the results by district and name.
func (e *Election) sortedResults() []*ElectionResult {
	results := append([]*ElectionResult(nil), e.Results...)
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].District != results[j].District {
			return results[i].District < results[j].District
		}
		return results[i].Name < results[j].Name
	})
	return results
}

func (e *Election) electionColumns(row *Row, locales []string) {
	for _, locale := range locales {
		row.Set("election_title_"+locale, strings.TrimSpace(e.TitleTranslations[locale]))
	}
	row.Set("election_date", e.Date.Format(time.DateOnly))
	row.Set("election_domain", e.Domain)
	row.Set("election_type", e.Type)
	row.Set("election_mandates", e.NumberOfMandates)
	row.Set("election_absolute_majority", e.AbsoluteMajority)
	row.Set("election_status", exportStatus(e.Status))
}

func (e *Election) entityColumns(row *Row, r *ElectionResult) {
	row.Set("entity_superregion", r.Superregion)
	row.Set("entity_district", r.District)
	row.Set("entity_name", r.Name)
	row.Set("entity_id", r.EntityID)
	row.Set("entity_counted", r.Counted)
	row.Set("entity_eligible_voters", r.EligibleVoters)
	row.Set("entity_expats", r.Expats)
	row.Set("entity_received_ballots", r.ReceivedBallots)
	row.Set("entity_blank_ballots", r.BlankBallots)
	row.Set("entity_invalid_ballots", r.InvalidBallots)
	row.Set("entity_unaccounted_ballots", r.UnaccountedBallots())
	row.Set("entity_accounted_ballots", r.AccountedBallots())
	row.Set("entity_blank_votes", r.BlankVotes)
	row.Set("entity_invalid_votes", r.InvalidVotes)
	row.Set("entity_accounted_votes", r.AccountedVotes(e.NumberOfMandates))
}

func (e *Election) candidateColumns(row *Row, c *Candidate, votes int) {
	row.Set("candidate_family_name", c.FamilyName)
	row.Set("candidate_first_name", c.FirstName)
	row.Set("candidate_id", c.CandidateID)
	row.Set("candidate_elected", c.Elected)
	row.Set("candidate_party", c.Party)
	row.Set("candidate_party_color", e.Colors[c.Party])
	row.Set("candidate_gender", c.Gender)
	row.Set("candidate_year_of_birth", c.YearOfBirth)
	row.Set("candidate_votes", votes)
}

// Export returns one row per candidate result. The columns are a superset
// of the internal import format.
func (e *Election) Export(locales []string) []Row {
	rows := []Row{}
	for _, r := range e.sortedResults() {
		for _, c := range sortedCandidates(e.Candidates) {
			cr := r.candidateResult(c.ID)
			if cr == nil {
				continue
			}
			row := Row{}
			e.electionColumns(&row, locales)
			e.entityColumns(&row, r)
			e.candidateColumns(&row, c, cr.Votes)
			rows = append(rows, row)
		}
	}
	return rows
}

func sortedCandidates(candidates []*Candidate) []*Candidate {
	out := append([]*Candidate(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FamilyName != out[j].FamilyName {
			return out[i].FamilyName < out[j].FamilyName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out
}
