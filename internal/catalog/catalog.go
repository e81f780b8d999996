// Package catalog holds the canonical store reference data for a reconciliation run.
package catalog

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/supervision-reconciler/internal/geo"
	"github.com/sells-group/supervision-reconciler/internal/model"
)

// ErrInvalidCatalog is the root of every catalog validation failure.
var ErrInvalidCatalog = eris.New("catalog: invalid")

// nameEntry is one normalized string a store can be recognized by.
type nameEntry struct {
	idx  int
	norm string
}

// Catalog is an immutable, indexed set of stores. Safe for concurrent reads.
type Catalog struct {
	stores []model.Store
	byID   map[int]int
	byKey  map[string]int
	names  []nameEntry
	sites  []geo.Site
}

// New validates stores and builds the lookup indexes.
// Stores without a key get the "<id> - <name>" default.
func New(stores []model.Store) (*Catalog, error) {
	c := &Catalog{
		stores: make([]model.Store, len(stores)),
		byID:   make(map[int]int, len(stores)),
		byKey:  make(map[string]int, len(stores)),
	}
	copy(c.stores, stores)
	sort.Slice(c.stores, func(i, j int) bool { return c.stores[i].ID < c.stores[j].ID })

	for i := range c.stores {
		s := &c.stores[i]
		if err := validateStore(s); err != nil {
			return nil, err
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, eris.Wrapf(ErrInvalidCatalog, "store %d: duplicate id", s.ID)
		}
		c.byID[s.ID] = i

		s.Key = strings.TrimSpace(s.Key)
		if s.Key == "" {
			s.Key = model.DefaultKey(s.ID, s.Name)
		}
		if other, dup := c.byKey[s.Key]; dup {
			return nil, eris.Wrapf(ErrInvalidCatalog, "store %d: key %q already used by store %d", s.ID, s.Key, c.stores[other].ID)
		}
		c.byKey[s.Key] = i

		seen := make(map[string]bool)
		for _, raw := range append([]string{s.Name, s.Key}, s.Aliases...) {
			n := NormalizeName(raw)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			c.names = append(c.names, nameEntry{idx: i, norm: n})
		}

		if s.Active {
			c.sites = append(c.sites, geo.Site{ID: s.ID, Location: s.Location})
		}
	}

	return c, nil
}

func validateStore(s *model.Store) error {
	if s.ID <= 0 {
		return eris.Wrapf(ErrInvalidCatalog, "store %q: id must be positive, got %d", s.Name, s.ID)
	}
	if strings.TrimSpace(s.Name) == "" {
		return eris.Wrapf(ErrInvalidCatalog, "store %d: name is required", s.ID)
	}
	if _, ok := model.ParseClassification(string(s.Classification)); !ok {
		return eris.Wrapf(ErrInvalidCatalog, "store %d: unknown classification %q", s.ID, s.Classification)
	}
	if !s.Location.Valid() {
		return eris.Wrapf(ErrInvalidCatalog, "store %d: invalid coordinates (%f, %f)", s.ID, s.Location.Lat, s.Location.Lon)
	}
	if q := s.QuotaOverride; q != nil && (q.Operational < 0 || q.Safety < 0) {
		return eris.Wrapf(ErrInvalidCatalog, "store %d: negative quota override %s", s.ID, q)
	}
	return nil
}

// Len returns the number of stores.
func (c *Catalog) Len() int {
	return len(c.stores)
}

// Stores returns every store ordered by ID. The slice is a copy.
func (c *Catalog) Stores() []model.Store {
	out := make([]model.Store, len(c.stores))
	copy(out, c.stores)
	return out
}

// Active returns the active stores ordered by ID.
func (c *Catalog) Active() []model.Store {
	var out []model.Store
	for _, s := range c.stores {
		if s.Active {
			out = append(out, s)
		}
	}
	return out
}

// ByID looks up a store by its numeric id.
func (c *Catalog) ByID(id int) (model.Store, bool) {
	i, ok := c.byID[id]
	if !ok {
		return model.Store{}, false
	}
	return c.stores[i], true
}

// ByKey looks up a store by its external location key.
func (c *Catalog) ByKey(key string) (model.Store, bool) {
	i, ok := c.byKey[strings.TrimSpace(key)]
	if !ok {
		return model.Store{}, false
	}
	return c.stores[i], true
}

// MatchText finds the store whose normalized name, key or alias best matches
// text (see TextScore). Scores below minScore are rejected, and so is a best
// score shared by two different stores.
func (c *Catalog) MatchText(text string, minScore float64) (model.Store, float64, bool) {
	needle := NormalizeName(text)
	if needle == "" {
		return model.Store{}, 0, false
	}

	bestIdx, bestScore, ambiguous := -1, 0.0, false
	for _, e := range c.names {
		score := TextScore(needle, e.norm)
		if score == 0 || score < minScore {
			continue
		}
		switch {
		case score > bestScore:
			bestIdx, bestScore, ambiguous = e.idx, score, false
		case score == bestScore && e.idx != bestIdx:
			ambiguous = true
		}
	}

	if bestIdx < 0 || ambiguous {
		return model.Store{}, 0, false
	}
	return c.stores[bestIdx], bestScore, true
}

// Nearest returns the active store closest to p and the distance in kilometers.
func (c *Catalog) Nearest(p geo.Point) (model.Store, float64, bool) {
	site, d, ok := geo.Nearest(p, c.sites)
	if !ok {
		return model.Store{}, 0, false
	}
	s, _ := c.ByID(site.ID)
	return s, d, true
}
