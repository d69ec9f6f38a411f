package formats

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xunicode "golang.org/x/text/encoding/unicode"

	"github.com/avvvet/electionday-services/internal/electionsvc/models"
)

func upload(lines ...string) Upload {
	return Upload{Body: csvReader(lines...), Mimetype: "text/plain"}
}

func listByID(lists []*models.List, listID string) *models.List {
	for _, l := range lists {
		if l.ListID == listID {
			return l
		}
	}
	return nil
}

type panachage struct {
	Source string
	Votes  int
}

func listPanachage(l *models.List) []panachage {
	out := []panachage{}
	for _, r := range l.PanachageResults {
		out = append(out, panachage{Source: r.Source, Votes: r.Votes})
	}
	return out
}

var majorzHeader = strings.Join(internalMajorzHeaders, ",")

func TestImportElectionInternalMajorz(t *testing.T) {
	p := testPrincipal(t)
	election := testElection()

	errs := ImportElectionInternalMajorz(election, p, csvReader(
		majorzHeader+",candidate_party_color",
		"100,final,1701,True,1000,800,10,5,20,3,Muster,Hans,1,true,400,FDP,#0000ff",
		"100,final,1701,True,1000,800,10,5,20,3,Meier,Anna,2,false,300,SP,#ff0000",
		"100,final,1702,false,900,500,0,0,0,0,Muster,Hans,1,true,200,FDP,#0000ff",
		"100,final,1702,false,900,500,0,0,0,0,Meier,Anna,2,false,100,SP,#ff0000",
	), "text/plain")
	require.Empty(t, errs)

	require.NotNil(t, election.AbsoluteMajority)
	assert.Equal(t, 100, *election.AbsoluteMajority)
	assert.Equal(t, models.StatusFinal, election.Status)
	assert.NotNil(t, election.LastResultChange)
	assert.Equal(t, map[string]string{"FDP": "#0000ff", "SP": "#ff0000"}, election.Colors)

	require.Len(t, election.Candidates, 2)
	hans := election.Candidates[0]
	assert.Equal(t, "1", hans.CandidateID)
	assert.True(t, hans.Elected)
	assert.Equal(t, "election", hans.ElectionID)
	assert.False(t, election.Candidates[1].Elected)

	require.Len(t, election.Results, 3)
	baar := resultByEntity(election.Results, 1701)
	require.NotNil(t, baar)
	assert.True(t, baar.Counted)
	assert.Equal(t, 800, baar.ReceivedBallots)
	assert.Equal(t, 20, baar.BlankVotes)
	assert.Equal(t, 400, baar.CandidateVotes(hans.ID))
	assert.Equal(t, "election", baar.ElectionID)

	cham := resultByEntity(election.Results, 1702)
	require.NotNil(t, cham)
	assert.False(t, cham.Counted)
	assert.Zero(t, cham.EligibleVoters)
	assert.Zero(t, cham.CandidateVotes(hans.ID))

	zug := resultByEntity(election.Results, 1711)
	require.NotNil(t, zug)
	assert.Equal(t, "Zug", zug.Name)
	assert.Empty(t, zug.CandidateResults)
}

func TestImportElectionInternalUncountedExpats(t *testing.T) {
	p := testPrincipal(t)
	election := testElection()

	errs := ImportElectionInternalMajorz(election, p, csvReader(
		majorzHeader+",entity_expats",
		"100,interim,1701,true,1000,800,10,5,20,3,Muster,Hans,1,true,400,FDP,7",
		"100,interim,1702,false,900,500,0,0,0,0,Muster,Hans,1,true,200,FDP,9",
	), "text/plain")
	require.Empty(t, errs)

	baar := resultByEntity(election.Results, 1701)
	require.NotNil(t, baar)
	require.NotNil(t, baar.Expats)
	assert.Equal(t, 7, *baar.Expats)

	cham := resultByEntity(election.Results, 1702)
	require.NotNil(t, cham)
	require.NotNil(t, cham.Expats)
	assert.Zero(t, *cham.Expats)
}

func TestImportElectionInternalMajorzErrors(t *testing.T) {
	p := testPrincipal(t)
	election := testElection()
	election.Status = models.StatusUnknown
	header := majorzHeader + ",candidate_party_color,candidate_gender,candidate_year_of_birth"

	errs := ImportElectionInternalMajorz(election, p, csvReader(
		header,
		"x,final,1701,True,1000,800,10,5,20,3,Muster,Hans,1,true,400,FDP,,,",
		"100,xxx,1701,True,1000,800,10,5,20,3,Muster,Hans,1,true,400,FDP,,,",
		"100,final,1234,True,1000,800,10,5,20,3,Muster,Hans,1,true,400,FDP,,,",
		"100,final,1701,True,x,800,10,5,20,3,Muster,Hans,1,true,400,FDP,,,",
		"100,final,1701,True,1000,800,10,5,20,3,Muster,Hans,x,true,400,FDP,,,",
		"100,final,1701,True,1000,800,10,5,20,3,Muster,Hans,1,true,x,FDP,,,",
		"100,final,1701,True,1000,800,10,5,20,3,Muster,Hans,1,true,400,FDP,blue,,",
		"100,final,1701,True,1000,800,10,5,20,3,Muster,Hans,1,true,400,FDP,,xxx,",
		"100,final,1701,True,1000,800,10,5,20,3,Muster,Hans,1,true,400,FDP,,,19x",
	), "text/plain")

	want := []string{
		"2: Invalid integer: election_absolute_majority",
		"3: Invalid status",
		"4: 1234 is unknown",
		"5: Invalid integer: entity_eligible_voters",
		"6: Invalid integer: candidate_id",
		"7: Invalid integer: candidate_votes",
		"8: Invalid color: candidate_party_color",
		"9: Invalid gender: xxx",
		"10: Invalid integer: candidate_year_of_birth",
	}
	if diff := cmp.Diff(want, errorMessages(errs)); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, models.StatusUnknown, election.Status)
	assert.Empty(t, election.Results)

	errs = ImportElectionInternalMajorz(election, p, csvReader(majorzHeader), "text/plain")
	assert.Equal(t, []string{msgNoData}, errorMessages(errs))
}

var proporzHeader = strings.Join(internalProporzHeaders, ",")

func TestImportElectionInternalProporz(t *testing.T) {
	p := testPrincipal(t)
	election := testProporzElection()

	errs := ImportElectionInternalProporz(election, p, csvReader(
		proporzHeader+",list_panachage_votes_from_list_1,list_panachage_votes_from_list_2,list_panachage_votes_from_list_999",
		"interim,1701,true,1000,800,10,5,20,3,Muster,Hans,101,true,400,FDP,FDP,1,1,1000,A,,,50,10",
		"interim,1701,true,1000,800,10,5,20,3,Meier,Anna,201,false,300,SP,SP,2,0,900,A,,40,,5",
		"interim,1702,true,500,400,0,0,0,0,Muster,Hans,101,true,200,FDP,FDP,1,1,500,A,,,99,99",
		"interim,1702,true,500,400,0,0,0,0,Meier,Anna,201,false,100,SP,SP,2,0,400,A,,99,,99",
	), "text/plain", false)
	require.Empty(t, errs)

	assert.Equal(t, models.StatusInterim, election.Status)
	require.Len(t, election.ListConnections, 1)
	connection := election.ListConnections[0]
	assert.Equal(t, "A", connection.ConnectionID)
	assert.Equal(t, "proporz", connection.ElectionID)

	require.Len(t, election.Lists, 2)
	fdp := listByID(election.Lists, "1")
	sp := listByID(election.Lists, "2")
	require.NotNil(t, fdp)
	require.NotNil(t, sp)
	assert.Equal(t, 1, fdp.NumberOfMandates)
	assert.Equal(t, connection.ID, fdp.ConnectionID)
	assert.Equal(t, connection.ID, sp.ConnectionID)
	assert.Equal(t, "proporz", fdp.ElectionID)

	assert.Equal(t, []panachage{{"2", 50}, {"", 10}}, listPanachage(fdp))
	assert.Equal(t, []panachage{{"1", 40}, {"", 5}}, listPanachage(sp))

	require.Len(t, election.Candidates, 2)
	assert.Equal(t, fdp.ID, election.Candidates[0].ListID)
	assert.Equal(t, sp.ID, election.Candidates[1].ListID)

	require.Len(t, election.Results, 3)
	baar := resultByEntity(election.Results, 1701)
	require.Len(t, baar.ListResults, 2)
	assert.Equal(t, fdp.ID, baar.ListResults[0].ListID)
	assert.Equal(t, 1000, baar.ListResults[0].Votes)
	assert.Equal(t, 900, baar.ListResults[1].Votes)
	assert.Equal(t, baar.ID, baar.ListResults[0].ElectionResultID)
	assert.Equal(t, 300, baar.CandidateVotes(election.Candidates[1].ID))

	zug := resultByEntity(election.Results, 1711)
	require.NotNil(t, zug)
	assert.False(t, zug.Counted)
	assert.Empty(t, zug.ListResults)
}

func TestImportElectionInternalProporzCandidatePanachage(t *testing.T) {
	p := testPrincipal(t)
	election := testProporzElection()

	errs := ImportElectionInternalProporz(election, p, csvReader(
		proporzHeader+",candidate_panachage_votes_from_list_1,candidate_panachage_votes_from_list_2,candidate_panachage_votes_from_list_999",
		"final,1701,true,1000,800,10,5,20,3,Muster,Hans,101,true,400,FDP,FDP,1,1,1000,1,1,0,7,3",
		"final,1701,true,1000,800,10,5,20,3,Meier,Anna,201,false,300,SP,SP,2,0,900,2,1,4,0,2",
		"final,1702,true,500,400,0,0,0,0,Muster,Hans,101,true,200,FDP,FDP,1,1,500,1,1,0,1,0",
	), "text/plain", false)
	require.Empty(t, errs)
	assert.Equal(t, models.StatusFinal, election.Status)

	require.Len(t, election.ListConnections, 3)
	parent, sub1, sub2 := election.ListConnections[0], election.ListConnections[1], election.ListConnections[2]
	assert.Equal(t, "1", parent.ConnectionID)
	assert.Empty(t, parent.ParentID)
	assert.Equal(t, "11", sub1.ConnectionID)
	assert.Equal(t, parent.ID, sub1.ParentID)
	assert.Equal(t, "12", sub2.ConnectionID)
	assert.Equal(t, parent.ID, sub2.ParentID)

	fdp := listByID(election.Lists, "1")
	sp := listByID(election.Lists, "2")
	assert.Equal(t, sub1.ID, fdp.ConnectionID)
	assert.Equal(t, sub2.ID, sp.ConnectionID)

	assert.Equal(t, []panachage{{"2", 8}, {"", 3}}, listPanachage(fdp))
	assert.Equal(t, []panachage{{"1", 4}, {"", 2}}, listPanachage(sp))

	baar := resultByEntity(election.Results, 1701)
	require.Len(t, baar.CandidatePanachageResults, 4)
	first := baar.CandidatePanachageResults[0]
	assert.Equal(t, election.Candidates[0].ID, first.TargetID)
	assert.Equal(t, "2", first.Source)
	assert.Equal(t, 7, first.Votes)
	assert.Equal(t, "", baar.CandidatePanachageResults[1].Source)
	assert.Len(t, resultByEntity(election.Results, 1702).CandidatePanachageResults, 1)
}

func TestImportElectionInternalProporzErrors(t *testing.T) {
	p := testPrincipal(t)
	election := testProporzElection()

	errs := ImportElectionInternalProporz(election, p, csvReader(
		proporzHeader+",list_panachage_votes_from_list_1,list_panachage_votes_from_list_3",
		"interim,1701,true,1000,800,10,5,20,3,Muster,Hans,101,true,400,FDP,FDP,1,1,1000,,,,x",
		"interim,1701,true,1000,800,10,5,20,3,Meier,Anna,201,false,300,SP,SP,,0,900,,,,",
		"xxx,1701,true,1000,800,10,5,20,3,Meier,Anna,202,false,300,SP,SP,2,0,900,,,5,7",
	), "text/plain", false)

	want := []string{
		"2: Invalid integer: list_panachage_votes_from_list_3",
		"3: Empty value: list_id",
		"4: Invalid status",
		"Panachage results id 1 not in list_id's",
		"Panachage results id 3 not in list_id's",
	}
	if diff := cmp.Diff(want, errorMessages(errs)); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, election.Lists)
}

func TestImportElectionInternalProporzIgnoreExtra(t *testing.T) {
	p := testPrincipal(t)
	lines := []string{
		proporzHeader,
		"final,1701,true,1000,800,10,5,20,3,Muster,Hans,101,true,400,FDP,FDP,1,1,1000,,",
		"final,1702,true,500,400,0,0,0,0,Muster,Hans,101,true,200,FDP,FDP,1,1,500,,",
	}

	election := testProporzElection()
	election.Domain = "district"
	election.DomainSegment = "Baar"
	errs := ImportElectionInternalProporz(election, p, csvReader(lines...), "text/plain", false)
	assert.Equal(t, []string{"3: 1702 is not part of Baar"}, errorMessages(errs))

	errs = ImportElectionInternalProporz(election, p, csvReader(lines...), "text/plain", true)
	require.Empty(t, errs)
	require.Len(t, election.Results, 1)
	assert.Equal(t, 1701, election.Results[0].EntityID)
}

func wabsticMajorzUploads() map[string]Upload {
	return map[string]Upload{
		WMWahl: upload(
			"sortgeschaeft,absolutesmehr,ausmittlungsstand,anzpendentgde",
			"1,150,1,0",
			"2,-1,0,3",
		),
		WMStaticGemeinden: upload(
			"sortwahlkreis,sortgeschaeft,bfsnrgemeinde,stimmberechtigte",
			"0,1,1701,1000",
			"0,1,1702,800",
			"0,2,1711,900",
		),
		WMGemeinden: upload(
			"bfsnrgemeinde,stimmberechtigte,sperrung,stmabgegeben,stmleer,stmungueltig,stimmenleer,stimmenungueltig",
			"1701,1010,1200,600,10,5,20,3",
			"1702,0,0,0,0,0,0,0",
		),
		WMKandidaten: upload(
			"sortgeschaeft,knr,nachname,vorname,gewaehlt,partei",
			"1,1,Muster,Hans,1,FDP",
			"1,2,Meier,Anna,0,SP",
		),
		WMKandidatenGemeinde: upload(
			"sortgeschaeft,bfsnrgemeinde,knr,stimmen",
			"1,1701,1,400",
			"1,1701,2,300",
			"1,1702,1,50",
		),
	}
}

func TestImportElectionWabstiCMajorz(t *testing.T) {
	p := testPrincipal(t)
	election := testElection()

	errs := ImportElectionWabstiCMajorz(election, p, "1", "", wabsticMajorzUploads())
	require.Empty(t, errs)

	require.NotNil(t, election.AbsoluteMajority)
	assert.Equal(t, 150, *election.AbsoluteMajority)
	assert.Equal(t, models.StatusFinal, election.Status)

	require.Len(t, election.Candidates, 2)
	hans := election.Candidates[0]
	assert.True(t, hans.Elected)
	assert.Equal(t, "FDP", hans.Party)
	assert.False(t, election.Candidates[1].Elected)

	require.Len(t, election.Results, 3)
	baar := resultByEntity(election.Results, 1701)
	assert.True(t, baar.Counted)
	assert.Equal(t, 1010, baar.EligibleVoters)
	assert.Equal(t, 600, baar.ReceivedBallots)
	assert.Equal(t, 3, baar.InvalidVotes)
	assert.Equal(t, 400, baar.CandidateVotes(hans.ID))
	assert.Equal(t, 300, baar.CandidateVotes(election.Candidates[1].ID))

	cham := resultByEntity(election.Results, 1702)
	assert.False(t, cham.Counted)
	assert.Zero(t, cham.EligibleVoters)
	assert.Zero(t, cham.CandidateVotes(hans.ID))

	assert.NotNil(t, resultByEntity(election.Results, 1711))
}

func TestImportElectionWabstiCMajorzErrors(t *testing.T) {
	p := testPrincipal(t)
	election := testElection()

	uploads := wabsticMajorzUploads()
	uploads[WMWahl] = upload(
		"sortgeschaeft,absolutesmehr,ausmittlungsstand,anzpendentgde",
		"1,x,0,0",
		"1,100,2,3",
	)
	uploads[WMStaticGemeinden] = upload(
		"sortwahlkreis,sortgeschaeft,bfsnrgemeinde,stimmberechtigte",
		"0,1,1234,100",
		"0,1,1701,100",
		"0,1,1701,100",
	)
	uploads[WMGemeinden] = upload(
		"bfsnrgemeinde,stimmberechtigte,sperrung,stmabgegeben,stmleer,stmungueltig,stimmenleer,stimmenungueltig",
		"1701,x,1200,600,10,5,20,3",
	)
	uploads[WMKandidatenGemeinde] = upload(
		"sortgeschaeft,bfsnrgemeinde,knr,stimmen",
		"1,1701,1,x",
		"1,1701,3,10",
		"1,1702,1,10",
	)

	errs := ImportElectionWabstiCMajorz(election, p, "1", "", uploads)
	want := []string{
		"wm_wahl:2: Invalid integer: absolutesmehr",
		"wmstatic_gemeinden:2: 1234 is unknown",
		"wmstatic_gemeinden:4: 1701 was found twice",
		"wm_gemeinden:2: Invalid integer: stimmberechtigte",
		"wm_kandidatengde:2: Invalid candidate results",
		"wm_kandidatengde:3: Candidate with id 3 not in wm_kandidaten",
		"wm_kandidatengde:4: Entity with id 1702 not in wmstatic_gemeinden",
		"Ausmittlungsstand set to final but AnzPendentGde is not 0",
	}
	if diff := cmp.Diff(want, errorMessages(errs)); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, election.Results)

	uploads = wabsticMajorzUploads()
	delete(uploads, WMKandidaten)
	errs = ImportElectionWabstiCMajorz(election, p, "1", "", uploads)
	assert.Equal(t, []string{"wm_kandidaten: " + msgEmptyFile}, errorMessages(errs))
}

func wabsticProporzUploads() map[string]Upload {
	return map[string]Upload{
		WPWahl: upload("sortgeschaeft,anzpendentgde", "1,0"),
		WPStaticGemeinden: upload(
			"sortwahlkreis,sortgeschaeft,bfsnrgemeinde,stimmberechtigte",
			"0,1,1701,1000",
			"0,1,1702,800",
		),
		WPGemeinden: upload(
			"bfsnrgemeinde,stimmberechtigte,sperrung,stmabgegeben,stmleer,stmungueltig,anzwzamtleer",
			"1701,1000,1200,600,10,5,0",
			"1702,800,0,0,0,0,0",
		),
		WPListen: upload(
			"sortgeschaeft,listnr,listcode,sitze,listverb,listuntverb",
			"1,01,FDP,1,1,",
			"1,02,SP,0,1,2",
			"1,99,WoP,0,,",
		),
		WPListenGemeinde: upload(
			"bfsnrgemeinde,listnr,stimmentotal",
			"1701,01,1000",
			"1701,02,900",
			"1701,99,50",
			"1702,01,100",
		),
		WPStaticKandidaten: upload(
			"sortgeschaeft,knr,nachname,vorname",
			"1,01.01,Muster,Hans",
			"1,02.01,Meier,Anna",
		),
		WPKandidaten: upload(
			"sortgeschaeft,knr,gewaehlt",
			"1,01.01,1",
			"1,02.01,0",
		),
		WPKandidatenGemeinde: upload(
			"bfsnrgemeinde,knr,stimmen",
			"1701,01.01,400",
			"1701,02.01,300",
			"1702,01.01,50",
		),
	}
}

func TestImportElectionWabstiCProporz(t *testing.T) {
	p := testPrincipal(t)
	election := testProporzElection()

	errs := ImportElectionWabstiCProporz(election, p, "1", "", wabsticProporzUploads())
	require.Empty(t, errs)
	assert.Equal(t, models.StatusFinal, election.Status)

	require.Len(t, election.Lists, 2)
	fdp := listByID(election.Lists, "01")
	sp := listByID(election.Lists, "02")
	require.NotNil(t, fdp)
	require.NotNil(t, sp)
	assert.Nil(t, listByID(election.Lists, models.BlankListID))
	assert.Equal(t, 1, fdp.NumberOfMandates)

	require.Len(t, election.ListConnections, 2)
	parent, sub := election.ListConnections[0], election.ListConnections[1]
	assert.Equal(t, "1", parent.ConnectionID)
	assert.Equal(t, "2", sub.ConnectionID)
	assert.Equal(t, parent.ID, sub.ParentID)
	assert.Equal(t, parent.ID, fdp.ConnectionID)
	assert.Equal(t, sub.ID, sp.ConnectionID)

	require.Len(t, election.Candidates, 2)
	hans := election.Candidates[0]
	assert.True(t, hans.Elected)
	assert.Equal(t, fdp.ID, hans.ListID)

	require.Len(t, election.Results, 3)
	baar := resultByEntity(election.Results, 1701)
	assert.True(t, baar.Counted)
	assert.Equal(t, 50, baar.BlankVotes)
	require.Len(t, baar.ListResults, 2)
	assert.Equal(t, fdp.ID, baar.ListResults[0].ListID)
	assert.Equal(t, 1000, baar.ListResults[0].Votes)
	assert.Equal(t, 400, baar.CandidateVotes(hans.ID))

	cham := resultByEntity(election.Results, 1702)
	assert.False(t, cham.Counted)
	require.Len(t, cham.ListResults, 1)
	assert.Zero(t, cham.ListResults[0].Votes)
	assert.Zero(t, cham.CandidateVotes(hans.ID))

	zug := resultByEntity(election.Results, 1711)
	require.NotNil(t, zug)
	assert.Empty(t, zug.CandidateResults)
}

func TestImportElectionWabstiCProporzErrors(t *testing.T) {
	p := testPrincipal(t)
	election := testProporzElection()

	uploads := wabsticProporzUploads()
	uploads[WPWahl] = upload("sortgeschaeft,anzpendentgde", "1,x")
	uploads[WPListen] = upload(
		"sortgeschaeft,listnr,listcode,sitze,listverb,listuntverb",
		"1,01,FDP,1,,",
		"1,02,SP,0,,",
		"1,03,GLP,x,,",
		"1,04,EVP,0,,1",
		"1,01,FDP,1,,",
	)
	uploads[WPStaticKandidaten] = upload(
		"sortgeschaeft,knr,nachname,vorname",
		"1,01.01,Muster,Hans",
		"1,02.01,Meier,Anna",
		"1,05.01,Keller,Eva",
	)
	uploads[WPKandidaten] = upload(
		"sortgeschaeft,knr,gewaehlt",
		"1,01.01,1",
		"1,06.01,0",
	)

	errs := ImportElectionWabstiCProporz(election, p, "1", "", uploads)
	want := []string{
		"wp_wahl:2: Error in anzpendentgde: Invalid integer: anzpendentgde",
		"wp_listen:4: Invalid integer: sitze",
		"wp_listen:5: connection is missing.",
		"wp_listen:6: 01 was found twice",
		"wpstatic_kandidaten:4: List_id 05 has not been found in list numbers",
		"wp_kandidaten:3: Candidate with id 06.01 not in wpstatic_kandidaten",
	}
	if diff := cmp.Diff(want, errorMessages(errs)); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, election.Lists)

	errs = ImportElectionWabstiCProporz(election, p, "1", "", nil)
	require.Len(t, errs, len(wabsticProporzFiles))
	assert.Equal(t, "wp_wahl: "+msgEmptyFile, errs[0].String())
}

const wabstiResultsHeader = "einheit_bfs,liste_kandid,kand_nachname,kand_vorname,liste_id,liste_code,kand_stimmentotal,liste_parteistimmentotal"

func wabstiProporzUploads(results Upload) WabstiProporzUploads {
	return WabstiProporzUploads{
		Results:     results,
		Connections: upload("liste,lv,luv", "01,1,", "02,1,2"),
		Elected:     upload("liste_kandid", "101"),
		Statistics: upload(
			"einheit_bfs,einheit_name,stimbertotal,wzeingegangen,wzleer,wzungueltig,stmwzveraendertleeramtlleer",
			"1701,Baar,1000,800,10,5,20",
			"1702,Cham,600,500,0,0,0",
		),
	}
}

var wabstiResults = []string{
	wabstiResultsHeader + ",01.FDP,02.SP,99.WoP",
	"1701,101,Muster,Hans,01,FDP,400,1000,0,30,5",
	"1701,201,Meier,Anna,02,SP,300,900,20,0,4",
	"1702,101,Muster,Hans,01,FDP,200,500,0,10,1",
	"1702,201,Meier,Anna,02,SP,100,400,5,0,1",
}

func TestImportElectionWabstiProporz(t *testing.T) {
	p := testPrincipal(t)
	election := testProporzElection()

	errs := ImportElectionWabstiProporz(election, p, wabstiProporzUploads(upload(wabstiResults...)))
	require.Empty(t, errs)
	assert.Equal(t, models.StatusUnknown, election.Status)

	require.Len(t, election.Lists, 2)
	fdp := listByID(election.Lists, "01")
	sp := listByID(election.Lists, "02")
	assert.Equal(t, 1, fdp.NumberOfMandates)
	assert.Zero(t, sp.NumberOfMandates)
	assert.Equal(t, []panachage{{"02", 40}, {"", 6}}, listPanachage(fdp))
	assert.Equal(t, []panachage{{"01", 25}, {"", 5}}, listPanachage(sp))

	require.Len(t, election.ListConnections, 2)
	parent, sub := election.ListConnections[0], election.ListConnections[1]
	assert.Equal(t, parent.ID, fdp.ConnectionID)
	assert.Equal(t, sub.ID, sp.ConnectionID)
	assert.Equal(t, parent.ID, sub.ParentID)

	require.Len(t, election.Candidates, 2)
	assert.True(t, election.Candidates[0].Elected)
	assert.False(t, election.Candidates[1].Elected)

	require.Len(t, election.Results, 3)
	baar := resultByEntity(election.Results, 1701)
	assert.True(t, baar.Counted)
	assert.Equal(t, 1000, baar.EligibleVoters)
	assert.Equal(t, 800, baar.ReceivedBallots)
	assert.Equal(t, 10, baar.BlankBallots)
	assert.Equal(t, 5, baar.InvalidBallots)
	assert.Equal(t, 20, baar.BlankVotes)
	require.Len(t, baar.ListResults, 2)
	assert.Equal(t, 1000, baar.ListResults[0].Votes)
	assert.Equal(t, 400, baar.CandidateVotes(election.Candidates[0].ID))

	zug := resultByEntity(election.Results, 1711)
	require.NotNil(t, zug)
	assert.False(t, zug.Counted)
}

func TestImportElectionWabstiProporzUTF16(t *testing.T) {
	text, err := xunicode.UTF16(xunicode.LittleEndian, xunicode.IgnoreBOM).NewEncoder().String(strings.Join(wabstiResults, "\n"))
	require.NoError(t, err)

	election := testProporzElection()
	errs := ImportElectionWabstiProporz(election, testPrincipal(t), WabstiProporzUploads{
		Results: Upload{Body: strings.NewReader(text), Mimetype: "text/plain"},
	})
	require.Empty(t, errs)
	assert.Len(t, election.Candidates, 2)
	assert.Len(t, election.Results, 3)
}

func TestImportElectionWabstiProporzErrors(t *testing.T) {
	p := testPrincipal(t)
	election := testProporzElection()

	uploads := wabstiProporzUploads(upload(
		wabstiResultsHeader+",01.FDP,03.GLP",
		"1701,101,Muster,Hans,01,FDP,400,1000,0,5",
		"1234,101,Muster,Hans,01,FDP,400,1000,0,5",
	))
	uploads.Elected = upload("liste_kandid", "999")
	uploads.Statistics = Upload{}

	errs := ImportElectionWabstiProporz(election, p, uploads)
	want := []string{
		"Results:3: 1234 is unknown",
		"Elected Candidates:2: Unknown candidate",
		"Panachage results id 03 not in list_id's",
	}
	if diff := cmp.Diff(want, errorMessages(errs)); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, election.Results)

	errs = ImportElectionWabstiProporz(election, p, WabstiProporzUploads{})
	assert.Equal(t, []string{"Results: " + msgEmptyFile}, errorMessages(errs))
}
