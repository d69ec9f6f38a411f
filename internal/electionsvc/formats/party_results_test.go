package formats

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avvvet/electionday-services/internal/electionsvc/models"
)

const partyHeader = "year,total_votes,id,name,color,mandates,votes"

var partyLocales = []string{"de_CH", "fr_CH"}

func importParties(t *testing.T, election *models.ProporzElection, lines ...string) []string {
	t.Helper()
	errs := ImportPartyResultsInternal(election, testPrincipal(t), csvReader(lines...), "text/plain", partyLocales, "de_CH")
	return errorMessages(errs)
}

func TestImportPartyResultsInternal(t *testing.T) {
	election := testProporzElection()
	election.Colors = map[string]string{"Other": "#000000"}

	errs := importParties(t, election,
		partyHeader,
		"2015,10000,1,FDP,#0000ff,1,3000",
		"2011,9000,1,FDP,#0000ff,2,3500",
		"2015,10000,03B.04,SP,#ff0000,0,2000",
	)
	require.Empty(t, errs)

	require.Len(t, election.PartyResults, 3)
	fdp := election.PartyResults[0]
	assert.Equal(t, 2015, fdp.Year)
	assert.Equal(t, "1", fdp.PartyID)
	assert.Equal(t, "canton", fdp.Domain)
	assert.Equal(t, 10000, fdp.TotalVotes)
	assert.Equal(t, 1, fdp.NumberOfMandates)
	assert.Equal(t, 3000, fdp.Votes)
	assert.Equal(t, map[string]string{"de_CH": "FDP"}, fdp.NameTranslations)
	assert.Equal(t, "proporz", fdp.ElectionID)
	assert.False(t, fdp.VotersCount.Valid)

	assert.Equal(t, 2011, election.PartyResults[1].Year)
	assert.Equal(t, "03B.04", election.PartyResults[2].PartyID)
	assert.Empty(t, election.PartyPanachageResults)
	assert.Equal(t, map[string]string{"Other": "#000000", "FDP": "#0000ff", "SP": "#ff0000"}, election.Colors)
}

func TestImportPartyResultsInternalPanachage(t *testing.T) {
	election := testProporzElection()

	errs := importParties(t, election,
		partyHeader+",panachage_votes_from_1,panachage_votes_from_2,panachage_votes_from_999",
		"2015,10000,1,FDP,#0000ff,1,3000,,10,11",
		"2015,10000,2,SP,#ff0000,0,2000,12,,13",
		"2011,9000,1,FDP,#0000ff,2,3500,1,1,1",
	)
	require.Empty(t, errs)

	type row struct {
		Target, Source string
		Votes          int
	}
	got := []row{}
	for _, r := range election.PartyPanachageResults {
		assert.Equal(t, "proporz", r.ElectionID)
		got = append(got, row{r.Target, r.Source, r.Votes})
	}
	want := []row{
		{"1", "2", 10},
		{"1", "", 11},
		{"2", "1", 12},
		{"2", "", 13},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("panachage mismatch (-want +got):\n%s", diff)
	}
}

func TestImportPartyResultsInternalOptionalColumns(t *testing.T) {
	election := testProporzElection()

	errs := importParties(t, election,
		"year,total_votes,id,name,name_fr_ch,name_de_ch,color,mandates,votes,voters_count,voters_count_percentage",
		"2015,10000,1,FDP,PLR,FDP.Die Liberalen,#0000ff,1,3000,1.01,10.10",
	)
	require.Empty(t, errs)

	require.Len(t, election.PartyResults, 1)
	r := election.PartyResults[0]
	assert.Equal(t, map[string]string{"de_CH": "FDP.Die Liberalen", "fr_CH": "PLR"}, r.NameTranslations)
	require.True(t, r.VotersCount.Valid)
	assert.True(t, decimal.RequireFromString("1.01").Equal(r.VotersCount.Decimal))
	require.True(t, r.VotersCountPercentage.Valid)
	assert.True(t, decimal.RequireFromString("10.1").Equal(r.VotersCountPercentage.Decimal))
	assert.Equal(t, "#0000ff", election.Colors["PLR"])
	assert.Equal(t, "#0000ff", election.Colors["FDP.Die Liberalen"])
}

func TestImportPartyResultsInternalDomains(t *testing.T) {
	election := testProporzElection()

	errs := importParties(t, election,
		partyHeader+",domain,domain_segment",
		"2015,10000,1,FDP,#0000ff,1,3000,canton,",
		"2015,10000,2,SP,#ff0000,0,2000,municipality,Baar",
		"2015,10000,3,GLP,#00ff00,0,1000,,",
	)
	require.Empty(t, errs)

	ids := []string{}
	for _, r := range election.PartyResults {
		ids = append(ids, r.PartyID)
	}
	assert.Equal(t, []string{"1", "3"}, ids)
	assert.NotContains(t, election.Colors, "SP")
}

func TestImportPartyResultsInternalErrors(t *testing.T) {
	for name, tc := range map[string]struct {
		lines []string
		want  []string
	}{
		"invalid values": {
			lines: []string{
				partyHeader,
				"2015,x,1,FDP,#0000ff,1,3000",
				"2015,10000,,FDP,#0000ff,1,3000",
				",,,,,,",
				"2015,10000,2,SP,red,0,2000",
				"2015,10000,3,GLP,#00ff00,0,2000",
				"2015,10000,3,GLP,#00ff00,0,2000",
			},
			want: []string{
				"2: Invalid integer: total_votes",
				"3: Empty value: id",
				"4: Invalid values",
				"5: Invalid color: color",
				"7: canton//2015/3 was found twice",
			},
		},
		"inconsistent panachage": {
			lines: []string{
				partyHeader + ",panachage_votes_from_1,panachage_votes_from_3",
				"2015,10000,1,FDP,#0000ff,1,3000,,5",
				"2015,10000,2,SP,#ff0000,0,2000,5,5",
			},
			want: []string{"Panachage results ids and id not consistent"},
		},
		"no results for the election year": {
			lines: []string{partyHeader, "2011,9000,1,FDP,#0000ff,2,3500"},
			want:  []string{"No party results for year 2015"},
		},
		"missing columns": {
			lines: []string{"a,b", "1,2"},
			want: []string{
				"Missing columns: 'year, total_votes, id, name, color, mandates, votes'",
				"No party results for year 2015",
			},
		},
	} {
		t.Run(name, func(t *testing.T) {
			election := testProporzElection()
			errs := importParties(t, election, tc.lines...)
			if diff := cmp.Diff(tc.want, errs); diff != "" {
				t.Errorf("errors mismatch (-want +got):\n%s", diff)
			}
			assert.Empty(t, election.PartyResults)
		})
	}
}
