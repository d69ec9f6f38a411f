package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	BallotProposal        = "proposal"
	BallotCounterProposal = "counter-proposal"
	BallotTieBreaker      = "tie-breaker"
)

// BallotTypes lists the ballot types in display order.
var BallotTypes = []string{BallotProposal, BallotCounterProposal, BallotTieBreaker}

const (
	VoteSimple  = "simple"
	VoteComplex = "complex"
)

const (
	AnswerAccepted = "accepted"
	AnswerRejected = "rejected"
)

type Vote struct {
	ID                string            `json:"id"`
	TitleTranslations map[string]string `json:"title_translations"`
	Domain            string            `json:"domain"`
	DomainSegment     string            `json:"domain_segment"`
	Date              time.Time         `json:"date"`
	Type              string            `json:"type"`
	Status            string            `json:"status"`
	HasExpats         bool              `json:"has_expats"`
	LastResultChange  *time.Time        `json:"last_result_change"`
	LastModified      *time.Time        `json:"last_modified"`
	Ballots           []*Ballot         `json:"ballots"`
}

type Ballot struct {
	ID      string          `json:"id"`
	VoteID  string          `json:"vote_id"`
	Type    string          `json:"type"`
	Results []*BallotResult `json:"results"`
}

type BallotResult struct {
	ID             string `json:"id"`
	BallotID       string `json:"ballot_id"`
	EntityID       int    `json:"entity_id"`
	Name           string `json:"name"`
	District       string `json:"district"`
	Counted        bool   `json:"counted"`
	Yeas           int    `json:"yeas"`
	Nays           int    `json:"nays"`
	Empty          int    `json:"empty"`
	Invalid        int    `json:"invalid"`
	EligibleVoters int    `json:"eligible_voters"`
	Expats         *int   `json:"expats"`
}

func (r *BallotResult) CastBallots() int {
	return r.Yeas + r.Nays + r.Empty + r.Invalid
}

func (r *BallotResult) Turnout() float64 {
	return turnout(r.CastBallots(), r.EligibleVoters)
}

func (r *BallotResult) YeasPercentage() float64 {
	return yeasPercentage(r.Yeas, r.Nays)
}

func (r *BallotResult) NaysPercentage() float64 {
	return 100 - r.YeasPercentage()
}

// Accepted is nil as long as the result is not counted.
func (r *BallotResult) Accepted() *bool {
	if !r.Counted {
		return nil
	}
	accepted := r.Yeas > r.Nays
	return &accepted
}

func turnout(cast, eligible int) float64 {
	if eligible == 0 {
		return 0
	}
	return float64(cast) / float64(eligible) * 100
}

func yeasPercentage(yeas, nays int) float64 {
	total := yeas + nays
	if total == 0 {
		total = 1
	}
	return float64(yeas) / float64(total) * 100
}

// Counted is true if all results are counted.
func (b *Ballot) Counted() bool {
	for _, r := range b.Results {
		if !r.Counted {
			return false
		}
	}
	return true
}

func (b *Ballot) Progress() Progress {
	p := Progress{Total: len(b.Results)}
	for _, r := range b.Results {
		if r.Counted {
			p.Counted++
		}
	}
	return p
}

func (b *Ballot) Yeas() int {
	return b.sum(func(r *BallotResult) int { return r.Yeas })
}

func (b *Ballot) Nays() int {
	return b.sum(func(r *BallotResult) int { return r.Nays })
}

func (b *Ballot) Empty() int {
	return b.sum(func(r *BallotResult) int { return r.Empty })
}

func (b *Ballot) Invalid() int {
	return b.sum(func(r *BallotResult) int { return r.Invalid })
}

func (b *Ballot) EligibleVoters() int {
	return b.sum(func(r *BallotResult) int { return r.EligibleVoters })
}

func (b *Ballot) Expats() int {
	return b.sum(func(r *BallotResult) int {
		if r.Expats == nil {
			return 0
		}
		return *r.Expats
	})
}

func (b *Ballot) CastBallots() int {
	return b.Yeas() + b.Nays() + b.Empty() + b.Invalid()
}

func (b *Ballot) Turnout() float64 {
	return turnout(b.CastBallots(), b.EligibleVoters())
}

func (b *Ballot) YeasPercentage() float64 {
	return yeasPercentage(b.Yeas(), b.Nays())
}

func (b *Ballot) NaysPercentage() float64 {
	return 100 - b.YeasPercentage()
}

func (b *Ballot) sum(value func(*BallotResult) int) int {
	total := 0
	for _, r := range b.Results {
		total += value(r)
	}
	return total
}

// Answer is accepted/rejected, or proposal/counter-proposal for a tie
// breaker. It is nil until all results are counted.
func (b *Ballot) Answer() *string {
	if len(b.Results) == 0 || !b.Counted() {
		return nil
	}

	var answer string
	if b.Type == BallotTieBreaker {
		answer = BallotCounterProposal
		if b.Yeas() > b.Nays() {
			answer = BallotProposal
		}
	} else {
		answer = AnswerRejected
		if b.Yeas() > b.Nays() {
			answer = AnswerAccepted
		}
	}
	return &answer
}

// DistrictResult aggregates the results of a ballot per district.
type DistrictResult struct {
	District       string  `json:"district"`
	Counted        bool    `json:"counted"`
	Accepted       *bool   `json:"accepted"`
	Yeas           int     `json:"yeas"`
	Nays           int     `json:"nays"`
	YeasPercentage float64 `json:"yeas_percentage"`
	NaysPercentage float64 `json:"nays_percentage"`
	Empty          int     `json:"empty"`
	Invalid        int     `json:"invalid"`
	EligibleVoters int     `json:"eligible_voters"`
	EntityIDs      []int   `json:"entity_ids"`
}

// ResultsByDistrict groups the results by district. Results without a
// district come last.
func (b *Ballot) ResultsByDistrict() []DistrictResult {
	groups := map[string]*DistrictResult{}
	for _, r := range b.Results {
		g, ok := groups[r.District]
		if !ok {
			g = &DistrictResult{District: r.District, Counted: true}
			groups[r.District] = g
		}
		g.Counted = g.Counted && r.Counted
		g.Yeas += r.Yeas
		g.Nays += r.Nays
		g.Empty += r.Empty
		g.Invalid += r.Invalid
		g.EligibleVoters += r.EligibleVoters
		g.EntityIDs = append(g.EntityIDs, r.EntityID)
	}

	result := make([]DistrictResult, 0, len(groups))
	for _, g := range groups {
		g.YeasPercentage = yeasPercentage(g.Yeas, g.Nays)
		g.NaysPercentage = 100 - g.YeasPercentage
		if g.Counted {
			accepted := g.Yeas > g.Nays
			g.Accepted = &accepted
		}
		sort.Ints(g.EntityIDs)
		result = append(result, *g)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].District, result[j].District
		if a == "" || b == "" {
			return b == "" && a != ""
		}
		return a < b
	})
	return result
}

// Ballot returns the ballot of the given type, or nil.
func (v *Vote) Ballot(ballotType string) *Ballot {
	for _, b := range v.Ballots {
		if b.Type == ballotType {
			return b
		}
	}
	return nil
}

// EnsureBallot returns the ballot of the given type, adding it if missing.
func (v *Vote) EnsureBallot(ballotType string) *Ballot {
	if b := v.Ballot(ballotType); b != nil {
		return b
	}
	b := &Ballot{ID: uuid.NewString(), VoteID: v.ID, Type: ballotType}
	v.Ballots = append(v.Ballots, b)
	return b
}

// IsComplex reports the declared vote type. Answers and percentages
// follow the ballots actually present.
func (v *Vote) IsComplex() bool {
	return v.Type == VoteComplex
}

func (v *Vote) Title(locale string) string {
	if t, ok := v.TitleTranslations[locale]; ok {
		return t
	}
	for _, t := range v.TitleTranslations {
		return t
	}
	return ""
}

// Counted is true if there are ballots and all of them are counted.
func (v *Vote) Counted() bool {
	if len(v.Ballots) == 0 {
		return false
	}
	for _, b := range v.Ballots {
		if !b.Counted() {
			return false
		}
	}
	return true
}

func (v *Vote) Completed() bool {
	return Completed(v.Status, v.Counted())
}

func (v *Vote) HasResults() bool {
	for _, b := range v.Ballots {
		for _, r := range b.Results {
			if r.Counted {
				return true
			}
		}
	}
	return false
}

// Progress returns the counted and total entities, averaged over the
// ballots.
func (v *Vote) Progress() Progress {
	if len(v.Ballots) == 0 {
		return Progress{}
	}
	var p Progress
	for _, b := range v.Ballots {
		bp := b.Progress()
		p.Counted += bp.Counted
		p.Total += bp.Total
	}
	p.Counted /= len(v.Ballots)
	p.Total /= len(v.Ballots)
	return p
}

// CountedEntities returns the sorted names of the counted entities of the
// proposal.
func (v *Vote) CountedEntities() []string {
	names := []string{}
	if b := v.Ballot(BallotProposal); b != nil {
		for _, r := range b.Results {
			if r.Counted {
				names = append(names, r.Name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Answer is nil until the vote is counted.
func (v *Vote) Answer() *string {
	proposal := v.Ballot(BallotProposal)
	if proposal == nil || !v.Counted() {
		return nil
	}

	counter := v.Ballot(BallotCounterProposal)
	if counter == nil {
		return proposal.Answer()
	}

	tie := v.Ballot(BallotTieBreaker)
	proposalAccepted := isAccepted(proposal)
	counterAccepted := isAccepted(counter)

	answer := AnswerRejected
	switch {
	case proposalAccepted && counterAccepted:
		answer = BallotCounterProposal
		if tie != nil && tie.Yeas() > tie.Nays() {
			answer = BallotProposal
		}
	case proposalAccepted:
		answer = BallotProposal
	case counterAccepted:
		answer = BallotCounterProposal
	}
	return &answer
}

func isAccepted(b *Ballot) bool {
	a := b.Answer()
	return a != nil && *a == AnswerAccepted
}

// decisive returns the ballot whose percentages represent the vote. With a
// counter-proposal this is the proposal only if it won or both were
// rejected.
func (v *Vote) decisive() *Ballot {
	counter := v.Ballot(BallotCounterProposal)
	if counter == nil {
		return v.Ballot(BallotProposal)
	}
	if a := v.Answer(); a != nil && (*a == BallotProposal || *a == AnswerRejected) {
		return v.Ballot(BallotProposal)
	}
	return counter
}

func (v *Vote) YeasPercentage() float64 {
	b := v.decisive()
	if b == nil {
		return 0
	}
	return b.YeasPercentage()
}

func (v *Vote) NaysPercentage() float64 {
	return 100 - v.YeasPercentage()
}

// ClearResults drops every ballot result and resets the status.
func (v *Vote) ClearResults() {
	for _, b := range v.Ballots {
		b.Results = nil
	}
	v.Status = ""
	v.LastResultChange = nil
}

func (v *Vote) Summary() Summary {
	s := Summary{
		Type:         "vote",
		ID:           v.ID,
		Title:        v.TitleTranslations,
		Date:         v.Date.Format(time.DateOnly),
		Domain:       v.Domain,
		Completed:    v.Completed(),
		LastModified: v.LastModified,
		Progress:     v.Progress(),
	}
	if answer := v.Answer(); answer != nil {
		yeas, nays := v.YeasPercentage(), v.NaysPercentage()
		s.Answer = answer
		s.YeasPercentage = &yeas
		s.NaysPercentage = &nays
	}
	return s
}

// Export returns one row per ballot result.
func (v *Vote) Export(locales []string) []Row {
	rows := []Row{}
	for _, ballotType := range BallotTypes {
		b := v.Ballot(ballotType)
		if b == nil {
			continue
		}

		results := append([]*BallotResult(nil), b.Results...)
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].District != results[j].District {
				return results[i].District < results[j].District
			}
			return results[i].Name < results[j].Name
		})

		for _, r := range results {
			row := Row{}
			for _, locale := range locales {
				row.Set("title_"+locale, strings.TrimSpace(v.TitleTranslations[locale]))
			}
			row.Set("date", v.Date.Format(time.DateOnly))
			row.Set("shortcode", v.ID)
			row.Set("domain", v.Domain)
			row.Set("status", exportStatus(v.Status))
			row.Set("answer", deref(v.Answer()))
			row.Set("type", b.Type)
			row.Set("district", r.District)
			row.Set("name", r.Name)
			row.Set("entity_id", r.EntityID)
			row.Set("counted", r.Counted)
			row.Set("yeas", r.Yeas)
			row.Set("nays", r.Nays)
			row.Set("invalid", r.Invalid)
			row.Set("empty", r.Empty)
			row.Set("eligible_voters", r.EligibleVoters)
			row.Set("expats", r.Expats)
			rows = append(rows, row)
		}
	}
	return rows
}

func exportStatus(status string) string {
	if status == "" {
		return StatusUnknown
	}
	return status
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
