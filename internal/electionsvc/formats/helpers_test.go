package formats

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avvvet/electionday-services/internal/electionsvc/models"
	"github.com/avvvet/electionday-services/internal/electionsvc/principal"
)

func testPrincipal(t *testing.T) *principal.Principal {
	t.Helper()
	entities := map[int]principal.Entity{
		1701: {Name: "Baar", District: "Baar", Region: "Baar"},
		1702: {Name: "Cham", District: "Cham", Region: "Cham"},
		1711: {Name: "Zug", District: "Zug", Region: "Zug"},
	}
	p, err := principal.NewCanton("zg", principal.Entities{2015: entities, 2022: entities})
	require.NoError(t, err)
	return p
}

func csvReader(lines ...string) *strings.Reader {
	return strings.NewReader(strings.Join(lines, "\n"))
}

func errorMessages(errs []FileImportError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.String())
	}
	return out
}

func testVote(complex bool) *models.Vote {
	v := &models.Vote{
		ID:     "vote",
		Domain: "canton",
		Date:   time.Date(2015, 6, 14, 0, 0, 0, 0, time.UTC),
		Type:   models.VoteSimple,
	}
	if complex {
		v.Type = models.VoteComplex
	}
	return v
}

func testElection() *models.Election {
	return &models.Election{
		ID:               "election",
		Type:             models.ElectionMajorz,
		Domain:           "canton",
		Date:             time.Date(2015, 10, 18, 0, 0, 0, 0, time.UTC),
		NumberOfMandates: 2,
	}
}

func testProporzElection() *models.ProporzElection {
	e := testElection()
	e.ID = "proporz"
	return models.NewProporzElection(*e)
}

func resultByEntity(results []*models.ElectionResult, entityID int) *models.ElectionResult {
	for _, r := range results {
		if r.EntityID == entityID {
			return r
		}
	}
	return nil
}
