package formats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveEntity(t *testing.T) {
	p := testPrincipal(t)
	entities := p.EntitiesOf(2015)
	canton := Business{Domain: "canton"}

	info, msgs := ResolveEntity(1701, entities, canton, p)
	assert.Empty(t, msgs)
	assert.Equal(t, EntityInfo{ID: 1701, Name: "Baar", District: "Baar"}, info)

	info, msgs = ResolveEntity(9170, entities, canton, p)
	assert.Empty(t, msgs)
	assert.Equal(t, 0, info.ID)

	_, msgs = ResolveEntity(1234, entities, canton, p)
	assert.Equal(t, []string{"1234 is unknown"}, msgs)

	_, msgs = ResolveEntity(1702, entities, Business{Domain: "district", Segment: "Baar"}, p)
	assert.Equal(t, []string{"1702 is not part of Baar"}, msgs)

	_, msgs = ResolveEntity(1702, entities, Business{Domain: "municipality", Segment: "Baar"}, p)
	assert.Equal(t, []string{"1702 is not part of this business"}, msgs)
}

func TestMissingEntities(t *testing.T) {
	p := testPrincipal(t)
	entities := p.EntitiesOf(2015)

	missing := MissingEntities(entities, Business{Domain: "canton", HasExpats: true}, p, map[int]bool{1702: true})
	ids := make([]int, 0, len(missing))
	for _, m := range missing {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []int{0, 1701, 1711}, ids)

	missing = MissingEntities(entities, Business{Domain: "region", Segment: "Zug"}, p, nil)
	assert.Equal(t, []EntityInfo{{ID: 1711, Name: "Zug", District: "Zug"}}, missing)

	assert.Empty(t, MissingEntities(entities, Business{Domain: "none"}, p, nil))
}

func TestLineIsRelevant(t *testing.T) {
	row := NewRow(2, map[string]string{"sortgeschaeft": "1", "sortwahlkreis": "5"})
	assert.True(t, LineIsRelevant(row, "1", ""))
	assert.True(t, LineIsRelevant(row, "1", "5"))
	assert.False(t, LineIsRelevant(row, "1", "6"))
	assert.False(t, LineIsRelevant(row, "2", ""))
}

func TestPrefixConnectionID(t *testing.T) {
	assert.Equal(t, "11", PrefixConnectionID("1", "1"))
	assert.Equal(t, "21", PrefixConnectionID("1", "2"))
	assert.Equal(t, "1.1", PrefixConnectionID("1.1", "1"))
}
