package models

import (
	"sort"
)

// BlankListID is the list id used for votes without a list.
const BlankListID = "999"

// ProporzElection adds lists, list connections, panachage and party
// results to an election.
type ProporzElection struct {
	Election

	Lists                 []*List                 `json:"lists"`
	ListConnections       []*ListConnection       `json:"list_connections"`
	PartyResults          []*PartyResult          `json:"party_results"`
	PartyPanachageResults []*PartyPanachageResult `json:"party_panachage_results"`
}

type List struct {
	ID               string `json:"id"`
	ElectionID       string `json:"election_id"`
	ListID           string `json:"list_id"`
	Name             string `json:"name"`
	NumberOfMandates int    `json:"number_of_mandates"`
	ConnectionID     string `json:"connection_id"`

	PanachageResults []*ListPanachageResult `json:"panachage_results,omitempty"`
}

type ListConnection struct {
	ID           string `json:"id"`
	ElectionID   string `json:"election_id"`
	ConnectionID string `json:"connection_id"`
	ParentID     string `json:"parent_id"`
}

type ListResult struct {
	ID               string `json:"id"`
	ElectionResultID string `json:"election_result_id"`
	ListID           string `json:"list_id"`
	Votes            int    `json:"votes"`
}

// ListPanachageResult holds the votes a list got from another list. An
// empty source is the blank list.
type ListPanachageResult struct {
	ID       string `json:"id"`
	TargetID string `json:"target_id"`
	Source   string `json:"source"`
	Votes    int    `json:"votes"`
}

// CandidatePanachageResult holds the votes a candidate got in an entity
// from another list. An empty source is the blank list.
type CandidatePanachageResult struct {
	ID               string `json:"id"`
	ElectionResultID string `json:"election_result_id"`
	TargetID         string `json:"target_id"`
	Source           string `json:"source"`
	Votes            int    `json:"votes"`
}

func NewProporzElection(e Election) *ProporzElection {
	e.Type = ElectionProporz
	return &ProporzElection{Election: e}
}

func (e *ProporzElection) List(id string) *List {
	for _, l := range e.Lists {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (e *ProporzElection) ListByListID(listID string) *List {
	for _, l := range e.Lists {
		if l.ListID == listID {
			return l
		}
	}
	return nil
}

func (e *ProporzElection) Connection(id string) *ListConnection {
	for _, c := range e.ListConnections {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// ListVotes sums the votes of a list over all entities.
func (e *ProporzElection) ListVotes(listID string) int {
	return e.sum(func(r *ElectionResult) int {
		total := 0
		for _, lr := range r.ListResults {
			if lr.ListID == listID {
				total += lr.Votes
			}
		}
		return total
	})
}

// ConnectionVotes sums the votes of the lists of a connection and of its
// subconnections.
func (e *ProporzElection) ConnectionVotes(connectionID string) int {
	total := 0
	for _, l := range e.Lists {
		if l.ConnectionID == connectionID {
			total += e.ListVotes(l.ID)
		}
	}
	for _, c := range e.ListConnections {
		if c.ParentID == connectionID {
			total += e.ConnectionVotes(c.ID)
		}
	}
	return total
}

// EntityVotes aggregates the list votes of an entity.
type EntityVotes struct {
	EntityID int  `json:"entity_id"`
	Counted  bool `json:"counted"`
	Votes    int  `json:"votes"`
}

func listVotes(r *ElectionResult) int {
	total := 0
	for _, lr := range r.ListResults {
		total += lr.Votes
	}
	return total
}

func (e *ProporzElection) VotesByEntity() []EntityVotes {
	out := make([]EntityVotes, 0, len(e.Results))
	for _, r := range e.Results {
		out = append(out, EntityVotes{EntityID: r.EntityID, Counted: r.Counted, Votes: listVotes(r)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// VotesByDistrict sums the list votes per district.
func (e *ProporzElection) VotesByDistrict() []DistrictVotes {
	return votesByDistrict(e.Results, listVotes)
}

func (e *ProporzElection) HasListsPanachageData() bool {
	for _, l := range e.Lists {
		if len(l.PanachageResults) > 0 {
			return true
		}
	}
	return false
}

func (e *ProporzElection) HasCandidatePanachageData() bool {
	for _, r := range e.Results {
		if len(r.CandidatePanachageResults) > 0 {
			return true
		}
	}
	return false
}

// ClearResults additionally drops the lists, connections and party
// results if clearAll is set.
func (e *ProporzElection) ClearResults(clearAll bool) {
	e.Election.ClearResults(clearAll)
	if clearAll {
		e.Lists = nil
		e.ListConnections = nil
		e.PartyResults = nil
		e.PartyPanachageResults = nil
	}
}

// panachageSources returns the sorted list ids used as panachage columns.
func (e *ProporzElection) panachageSources() []string {
	ids := map[string]struct{}{}
	for _, l := range e.Lists {
		ids[l.ListID] = struct{}{}
		for _, p := range l.PanachageResults {
			if p.Source != "" {
				ids[p.Source] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(ids)+1)
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return append(out, BlankListID)
}

// Export returns one row per candidate result with the list columns and
// the panachage columns.
func (e *ProporzElection) Export(locales []string) []Row {
	withListPanachage := e.HasListsPanachageData()
	withCandidatePanachage := e.HasCandidatePanachageData()
	var sources []string
	if withListPanachage || withCandidatePanachage {
		sources = e.panachageSources()
	}

	rows := []Row{}
	for _, r := range e.sortedResults() {
		for _, c := range e.sortedCandidatesByList() {
			cr := r.candidateResult(c.ID)
			if cr == nil {
				continue
			}

			row := Row{}
			e.electionColumns(&row, locales)
			e.entityColumns(&row, r)

			l := e.List(c.ListID)
			if l != nil {
				row.Set("list_name", l.Name)
				row.Set("list_id", l.ListID)
				row.Set("list_color", e.Colors[l.Name])
				row.Set("list_number_of_mandates", l.NumberOfMandates)
				row.Set("list_votes", listResultVotes(r, l.ID))
				conn, parent := e.connectionIDs(l)
				row.Set("list_connection", conn)
				row.Set("list_connection_parent", parent)
			}

			e.candidateColumns(&row, c, cr.Votes)

			if withListPanachage && l != nil {
				for _, source := range sources {
					row.Set("list_panachage_votes_from_list_"+source, listPanachageVotes(l, source))
				}
			}
			if withCandidatePanachage {
				for _, source := range sources {
					row.Set("candidate_panachage_votes_from_list_"+source, candidatePanachageVotes(r, c.ID, source))
				}
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func (e *ProporzElection) sortedCandidatesByList() []*Candidate {
	name := func(c *Candidate) string {
		if l := e.List(c.ListID); l != nil {
			return l.Name
		}
		return ""
	}
	out := sortedCandidates(e.Candidates)
	sort.SliceStable(out, func(i, j int) bool { return name(out[i]) < name(out[j]) })
	return out
}

// connectionIDs returns the business ids of the list's connection. A list
// in a subconnection reports the subconnection and its parent.
func (e *ProporzElection) connectionIDs(l *List) (any, any) {
	conn := e.Connection(l.ConnectionID)
	if conn == nil {
		return nil, nil
	}
	if parent := e.Connection(conn.ParentID); parent != nil {
		return conn.ConnectionID, parent.ConnectionID
	}
	return conn.ConnectionID, nil
}

func listResultVotes(r *ElectionResult, listID string) int {
	for _, lr := range r.ListResults {
		if lr.ListID == listID {
			return lr.Votes
		}
	}
	return 0
}

func listPanachageVotes(l *List, source string) any {
	if source == BlankListID {
		source = ""
	}
	for _, p := range l.PanachageResults {
		if p.Source == source {
			return p.Votes
		}
	}
	return nil
}

func candidatePanachageVotes(r *ElectionResult, candidateID, source string) any {
	if source == BlankListID {
		source = ""
	}
	for _, p := range r.CandidatePanachageResults {
		if p.TargetID == candidateID && p.Source == source {
			return p.Votes
		}
	}
	return nil
}
