package formats

import (
	"fmt"
	"sort"

	"github.com/avvvet/electionday-services/internal/electionsvc/principal"
)

// Expats are the BFS numbers used for swiss abroad. They map to entity 0
// unless the principal knows them.
var Expats = func() map[int]struct{} {
	ids := map[int]struct{}{9170: {}}
	for id := 19010; id <= 19260; id += 10 {
		ids[id] = struct{}{}
	}
	return ids
}()

func IsExpats(entityID int) bool {
	_, ok := Expats[entityID]
	return ok
}

// Business is the scope of the vote or election being imported.
type Business struct {
	Domain    string
	Segment   string
	HasExpats bool
}

// EntityInfo is the static data of an entity as used for a result.
type EntityInfo struct {
	ID          int
	Name        string
	District    string
	Superregion string
}

// EntityAndDistrict returns the name and district of the entity. For the
// region domain the district is the region. The returned messages report
// entities outside of the business segment.
func EntityAndDistrict(entityID int, entities map[int]principal.Entity, b Business, p *principal.Principal) (EntityInfo, []string) {
	info := EntityInfo{ID: entityID}
	if entityID == 0 {
		return info, nil
	}

	entity := entities[entityID]
	info.Name = entity.Name
	info.District = entity.District
	if b.Domain == "region" {
		info.District = entity.Region
	}
	info.Superregion = entity.Superregion

	var errs []string
	if b.Domain == "municipality" && b.Segment != info.Name && p.Domain != "municipality" {
		errs = append(errs, fmt.Sprintf("%d is not part of this business", entityID))
	}
	if (b.Domain == "region" || b.Domain == "district") && b.Segment != info.District {
		errs = append(errs, fmt.Sprintf("%d is not part of %s", entityID, b.Segment))
	}
	return info, errs
}

// ResolveEntity maps unknown expats ids to 0 and reports unknown entities
// and entities outside of the business.
func ResolveEntity(entityID int, entities map[int]principal.Entity, b Business, p *principal.Principal) (EntityInfo, []string) {
	if _, known := entities[entityID]; !known && IsExpats(entityID) {
		entityID = 0
	}
	if _, known := entities[entityID]; entityID != 0 && !known {
		return EntityInfo{ID: entityID}, []string{msgUnknown(entityID)}
	}
	return EntityAndDistrict(entityID, entities, b, p)
}

// MissingEntities returns the entities of the principal (and the expats,
// if enabled) which have no result yet and belong to the business
// segment, sorted by id.
func MissingEntities(entities map[int]principal.Entity, b Business, p *principal.Principal, present map[int]bool) []EntityInfo {
	if b.Domain == "none" {
		return nil
	}

	ids := make([]int, 0, len(entities)+1)
	for id := range entities {
		ids = append(ids, id)
	}
	if b.HasExpats {
		if _, ok := entities[0]; !ok {
			ids = append(ids, 0)
		}
	}
	sort.Ints(ids)

	var out []EntityInfo
	for _, id := range ids {
		if present[id] {
			continue
		}
		info, _ := EntityAndDistrict(id, entities, b, p)
		if b.Domain == "municipality" && p.Domain != "municipality" && info.Name != b.Segment {
			continue
		}
		if (b.Domain == "region" || b.Domain == "district") && info.District != b.Segment {
			continue
		}
		out = append(out, info)
	}
	return out
}

// LineIsRelevant reports whether a WabstiC line belongs to the business
// with the given number, and district if not empty.
func LineIsRelevant(row Row, number, district string) bool {
	if district != "" {
		return row.Get("sortwahlkreis") == district && row.Get("sortgeschaeft") == number
	}
	return row.Get("sortgeschaeft") == number
}

// PrefixConnectionID distinguishes a subconnection from its parent when
// the subconnection id is not longer than the parent id.
func PrefixConnectionID(connectionID, parentID string) string {
	if len(connectionID) <= len(parentID) {
		return parentID + connectionID
	}
	return connectionID
}
