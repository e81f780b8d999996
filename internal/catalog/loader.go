package catalog

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/supervision-reconciler/internal/geo"
	"github.com/sells-group/supervision-reconciler/internal/ingest"
	"github.com/sells-group/supervision-reconciler/internal/model"
)

// Record is one catalog entry as it appears in a reference file.
type Record struct {
	ID             int          `yaml:"id"`
	Key            string       `yaml:"key"`
	Name           string       `yaml:"name"`
	Aliases        []string     `yaml:"aliases"`
	Classification string       `yaml:"classification"`
	Group          string       `yaml:"group"`
	Lat            float64      `yaml:"lat"`
	Lon            float64      `yaml:"lon"`
	QuotaOverride  *model.Quota `yaml:"quota_override"`
	Active         *bool        `yaml:"active"`
}

// Store converts r into a model.Store. Active defaults to true.
func (r Record) Store() model.Store {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	class, ok := model.ParseClassification(r.Classification)
	if !ok {
		// Keep the raw value so New reports it.
		class = model.Classification(r.Classification)
	}
	return model.Store{
		ID:             r.ID,
		Key:            r.Key,
		Name:           strings.TrimSpace(r.Name),
		Aliases:        r.Aliases,
		Classification: class,
		Group:          r.Group,
		Location:       geo.Point{Lat: r.Lat, Lon: r.Lon},
		QuotaOverride:  r.QuotaOverride,
		Active:         active,
	}
}

type yamlFile struct {
	Stores []Record `yaml:"stores"`
}

// LoadFile reads a catalog from a .yaml/.yml or .csv file.
func LoadFile(ctx context.Context, path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var c *Catalog
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		c, err = LoadYAML(f)
	case ".csv":
		c, err = LoadCSV(ctx, f)
	default:
		return nil, eris.Errorf("catalog: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("catalog loaded",
		zap.String("path", path),
		zap.Int("stores", c.Len()),
		zap.Int("active", len(c.Active())),
	)
	return c, nil
}

// LoadYAML reads a catalog document of the form `stores: [...]`.
func LoadYAML(r io.Reader) (*Catalog, error) {
	var doc yamlFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "catalog: decode yaml")
	}
	if len(doc.Stores) == 0 {
		return nil, eris.Wrap(ErrInvalidCatalog, "catalog: no stores defined")
	}

	stores := make([]model.Store, 0, len(doc.Stores))
	for _, rec := range doc.Stores {
		stores = append(stores, rec.Store())
	}
	return New(stores)
}

// LoadCSV reads a catalog CSV with a header row. Recognized columns are
// id, key, name, aliases ('|' separated), classification, group, lat, lon,
// quota_operational, quota_safety and active. Only id, name,
// classification, lat and lon are required.
func LoadCSV(ctx context.Context, r io.Reader) (*Catalog, error) {
	rows, err := ingest.ReadCSV(ctx, r, ingest.CSVOptions{TrimSpace: true})
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read csv")
	}
	if len(rows) < 2 {
		return nil, eris.Wrap(ErrInvalidCatalog, "catalog: csv has no store rows")
	}

	idx := ingest.HeaderIndex(rows[0])
	for _, col := range []string{"id", "name", "classification", "lat", "lon"} {
		if _, ok := idx[col]; !ok {
			return nil, eris.Wrapf(ErrInvalidCatalog, "catalog: csv missing column %q", col)
		}
	}

	stores := make([]model.Store, 0, len(rows)-1)
	for n, row := range rows[1:] {
		get := func(col string) string { return ingest.Cell(row, idx, col) }
		line := n + 2

		rec := Record{
			Key:            get("key"),
			Name:           get("name"),
			Classification: get("classification"),
			Group:          get("group"),
		}
		if rec.ID, err = strconv.Atoi(get("id")); err != nil {
			return nil, eris.Wrapf(ErrInvalidCatalog, "catalog: line %d: invalid id %q", line, get("id"))
		}
		if rec.Lat, err = strconv.ParseFloat(get("lat"), 64); err != nil {
			return nil, eris.Wrapf(ErrInvalidCatalog, "catalog: line %d: invalid lat %q", line, get("lat"))
		}
		if rec.Lon, err = strconv.ParseFloat(get("lon"), 64); err != nil {
			return nil, eris.Wrapf(ErrInvalidCatalog, "catalog: line %d: invalid lon %q", line, get("lon"))
		}
		if a := get("aliases"); a != "" {
			for _, alias := range strings.Split(a, "|") {
				if alias = strings.TrimSpace(alias); alias != "" {
					rec.Aliases = append(rec.Aliases, alias)
				}
			}
		}
		if ops, safety := get("quota_operational"), get("quota_safety"); ops != "" || safety != "" {
			q, qerr := parseQuota(ops, safety)
			if qerr != nil {
				return nil, eris.Wrapf(ErrInvalidCatalog, "catalog: line %d: %v", line, qerr)
			}
			rec.QuotaOverride = &q
		}
		if a := get("active"); a != "" {
			active, perr := strconv.ParseBool(a)
			if perr != nil {
				return nil, eris.Wrapf(ErrInvalidCatalog, "catalog: line %d: invalid active %q", line, a)
			}
			rec.Active = &active
		}
		stores = append(stores, rec.Store())
	}

	return New(stores)
}

func parseQuota(ops, safety string) (model.Quota, error) {
	o, err := strconv.Atoi(ops)
	if err != nil {
		return model.Quota{}, eris.Errorf("invalid quota_operational %q", ops)
	}
	s, err := strconv.Atoi(safety)
	if err != nil {
		return model.Quota{}, eris.Errorf("invalid quota_safety %q", safety)
	}
	return model.Quota{Operational: o, Safety: s}, nil
}
