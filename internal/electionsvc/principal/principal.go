package principal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownCanton = errors.New("unknown canton")
	ErrMissingKey    = errors.New("missing required key")
)

// Cantons maps the canton codes to their official numbers.
var Cantons = map[string]int{
	"zh": 1, "be": 2, "lu": 3, "ur": 4, "sz": 5, "ow": 6, "nw": 7,
	"gl": 8, "zg": 9, "fr": 10, "so": 11, "bs": 12, "bl": 13, "sh": 14,
	"ar": 15, "ai": 16, "sg": 17, "gr": 18, "ag": 19, "tg": 20, "ti": 21,
	"vd": 22, "vs": 23, "ne": 24, "ge": 25, "ju": 26,
}

// firstMunicipalityYear is the first year a municipality without quarters
// has entities for.
const firstMunicipalityYear = 2002

type Entity struct {
	Name        string `json:"name" yaml:"name"`
	District    string `json:"district,omitempty" yaml:"district,omitempty"`
	Region      string `json:"region,omitempty" yaml:"region,omitempty"`
	Superregion string `json:"superregion,omitempty" yaml:"superregion,omitempty"`
}

// Entities maps a year to the entities (by BFS number) of that year.
type Entities map[int]map[int]Entity

// Principal is the political entity running the election day services,
// either a canton (entities are municipalities) or a municipality
// (entities are quarters).
type Principal struct {
	ID           string
	Domain       string
	Canton       string
	CantonName   string
	Municipality string

	Name         string
	Base         string
	Webhooks     map[string]map[string]string
	WabstiImport bool
	Fetch        map[string]any

	HasDistricts    bool
	HasRegions      bool
	HasSuperregions bool
	HasQuarters     bool

	Entities Entities
}

type fileConfig struct {
	Canton       string                       `yaml:"canton"`
	Municipality string                       `yaml:"municipality"`
	CantonName   string                       `yaml:"canton_name"`
	Name         string                       `yaml:"name"`
	Base         string                       `yaml:"base"`
	Webhooks     map[string]map[string]string `yaml:"webhooks"`
	WabstiImport bool                         `yaml:"wabsti_import"`
	Fetch        map[string]any               `yaml:"fetch"`
	Entities     Entities                     `yaml:"entities"`
}

// LoadFile reads the principal from a YAML file. Entities are merged from
// entitiesDir/<year>/<id>.json when entitiesDir is not empty.
func LoadFile(path, entitiesDir string) (*Principal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open principal: %w", err)
	}
	defer f.Close()

	return Load(f, entitiesDir)
}

func Load(r io.Reader, entitiesDir string) (*Principal, error) {
	var cfg fileConfig
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode principal: %w", err)
	}

	id := cfg.Canton
	if cfg.Municipality != "" {
		id = cfg.Municipality
	}
	if id == "" {
		return nil, fmt.Errorf("%w: canton or municipality", ErrMissingKey)
	}

	entities := cfg.Entities
	if entities == nil {
		entities = Entities{}
	}
	if entitiesDir != "" {
		loaded, err := loadEntities(entitiesDir, id)
		if err != nil {
			return nil, err
		}
		for year, items := range loaded {
			entities[year] = items
		}
	}

	var p *Principal
	var err error
	if cfg.Municipality != "" {
		if cfg.Canton == "" || cfg.CantonName == "" {
			return nil, fmt.Errorf("%w: canton and canton_name", ErrMissingKey)
		}
		p, err = NewMunicipality(cfg.Municipality, cfg.Canton, cfg.CantonName, cfg.Name, entities)
	} else {
		p, err = NewCanton(cfg.Canton, entities)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Name != "" {
		p.Name = cfg.Name
	}
	p.Base = cfg.Base
	p.Webhooks = cfg.Webhooks
	p.WabstiImport = cfg.WabstiImport
	p.Fetch = cfg.Fetch
	if p.Webhooks == nil {
		p.Webhooks = map[string]map[string]string{}
	}

	if _, ok := p.Entities[time.Now().Year()]; !ok {
		log.Warnf("no entities for year %d found for %s", time.Now().Year(), p.ID)
	}

	return p, nil
}

// LoadDir loads every *.yml principal in dir, keyed by principal id.
func LoadDir(dir, entitiesDir string) (map[string]*Principal, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}

	principals := map[string]*Principal{}
	for _, path := range paths {
		p, err := LoadFile(path, entitiesDir)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if _, ok := principals[p.ID]; ok {
			return nil, fmt.Errorf("%s: principal %s defined twice", filepath.Base(path), p.ID)
		}
		principals[p.ID] = p
	}
	if len(principals) == 0 {
		return nil, fmt.Errorf("no principals found in %s", dir)
	}
	return principals, nil
}

func loadEntities(dir, id string) (Entities, error) {
	years, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read entities dir: %w", err)
	}

	result := Entities{}
	for _, y := range years {
		if !y.IsDir() {
			continue
		}
		year, err := strconv.Atoi(y.Name())
		if err != nil {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, y.Name(), id+".json"))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read entities %d: %w", year, err)
		}

		var items map[string]Entity
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode entities %d: %w", year, err)
		}

		result[year] = map[int]Entity{}
		for k, v := range items {
			number, err := strconv.Atoi(k)
			if err != nil {
				return nil, fmt.Errorf("invalid entity id %q in %d: %w", k, year, err)
			}
			result[year][number] = v
		}
	}

	return result, nil
}

// NewCanton creates a cantonal principal. The district, region and
// superregion flags are derived from the entities.
func NewCanton(canton string, entities Entities) (*Principal, error) {
	if _, ok := Cantons[canton]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCanton, canton)
	}

	p := &Principal{
		ID:       canton,
		Domain:   "canton",
		Canton:   canton,
		Name:     canton,
		Webhooks: map[string]map[string]string{},
		Entities: entities,
	}

	p.HasDistricts = true
	for _, year := range entities {
		for _, e := range year {
			if e.District == "" {
				p.HasDistricts = false
			}
			if e.Region != "" {
				p.HasRegions = true
			}
			if e.Superregion != "" {
				p.HasSuperregions = true
			}
		}
	}

	return p, nil
}

// NewMunicipality creates a communal principal. Without quarters the
// municipality itself is the only entity of every year.
func NewMunicipality(municipality, canton, cantonName, name string, quarters Entities) (*Principal, error) {
	if municipality == "" || canton == "" || cantonName == "" {
		return nil, fmt.Errorf("%w: municipality, canton and canton_name", ErrMissingKey)
	}

	p := &Principal{
		ID:           municipality,
		Domain:       "municipality",
		Canton:       canton,
		CantonName:   cantonName,
		Municipality: municipality,
		Name:         municipality,
		Webhooks:     map[string]map[string]string{},
	}
	if name != "" {
		p.Name = name
	}

	if len(quarters) > 0 {
		p.HasQuarters = true
		p.HasDistricts = true
		for _, year := range quarters {
			for _, e := range year {
				if e.District == "" {
					p.HasDistricts = false
				}
			}
		}
		p.Entities = quarters
		return p, nil
	}

	number, err := strconv.Atoi(municipality)
	if err != nil {
		return nil, fmt.Errorf("invalid municipality %q: %w", municipality, err)
	}
	p.Entities = Entities{}
	for year := firstMunicipalityYear; year <= time.Now().Year(); year++ {
		p.Entities[year] = map[int]Entity{number: {Name: name}}
	}

	return p, nil
}

// EntitiesOf returns the entities of the given year, which may be empty.
func (p *Principal) EntitiesOf(year int) map[int]Entity {
	entities, ok := p.Entities[year]
	if !ok {
		return map[int]Entity{}
	}
	return entities
}

func (p *Principal) IsYearAvailable(year int) bool {
	if len(p.Entities) == 0 {
		return true
	}
	_, ok := p.Entities[year]
	return ok
}

func (p *Principal) EntityNames(year int) []string {
	return collect(p.EntitiesOf(year), func(e Entity) string { return e.Name })
}

func (p *Principal) Districts(year int) []string {
	if !p.HasDistricts {
		return nil
	}
	return collect(p.EntitiesOf(year), func(e Entity) string { return e.District })
}

func (p *Principal) Regions(year int) []string {
	if !p.HasRegions {
		return nil
	}
	return collect(p.EntitiesOf(year), func(e Entity) string { return e.Region })
}

func (p *Principal) Superregion(region string, year int) string {
	if !p.HasSuperregions {
		return ""
	}
	for _, e := range p.EntitiesOf(year) {
		if e.Region == region {
			return e.Superregion
		}
	}
	return ""
}

func (p *Principal) Superregions(year int) []string {
	if !p.HasSuperregions {
		return nil
	}
	return collect(p.EntitiesOf(year), func(e Entity) string { return e.Superregion })
}

// DomainsElection lists the election domains in display order.
func (p *Principal) DomainsElection() []string {
	if p.Domain == "municipality" {
		return []string{"federation", "canton", "municipality"}
	}

	domains := []string{"federation", "canton"}
	if p.HasRegions {
		domains = append(domains, "region")
	}
	if p.HasDistricts {
		domains = append(domains, "district")
	}
	return append(domains, "none", "municipality")
}

func (p *Principal) DomainsVote() []string {
	return []string{"federation", "canton", "municipality"}
}

func (p *Principal) HasDomainElection(domain string) bool {
	for _, d := range p.DomainsElection() {
		if d == domain {
			return true
		}
	}
	return false
}

// CantonNumber returns the official number of the principal's canton.
func (p *Principal) CantonNumber() int {
	return Cantons[p.Canton]
}

// collect returns the sorted distinct non-empty values.
func collect(entities map[int]Entity, value func(Entity) string) []string {
	seen := map[string]struct{}{}
	for _, e := range entities {
		if v := value(e); v != "" {
			seen[v] = struct{}{}
		}
	}

	result := make([]string, 0, len(seen))
	for v := range seen {
		result = append(result, v)
	}
	sort.Strings(result)
	return result
}
