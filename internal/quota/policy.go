// Package quota computes expected inspection counts and per-period compliance.
package quota

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/supervision-reconciler/internal/model"
)

// ErrInvalidPolicy is returned for a policy with negative quotas.
var ErrInvalidPolicy = eris.New("quota: invalid policy")

// Policy holds the expected counts per classification and per-store exceptions.
type Policy struct {
	Local     model.Quota
	Foranea   model.Quota
	Overrides map[int]model.Quota
}

// DefaultPolicy is 4+4 per quarter for LOCAL stores and 2+2 per half-year for FORANEA stores.
func DefaultPolicy() Policy {
	return Policy{
		Local:   model.Quota{Operational: 4, Safety: 4},
		Foranea: model.Quota{Operational: 2, Safety: 2},
	}
}

// Validate rejects negative quotas.
func (p Policy) Validate() error {
	check := func(name string, q model.Quota) error {
		if q.Operational < 0 || q.Safety < 0 {
			return eris.Wrapf(ErrInvalidPolicy, "%s quota %s is negative", name, q)
		}
		return nil
	}
	if err := check("local", p.Local); err != nil {
		return err
	}
	if err := check("foranea", p.Foranea); err != nil {
		return err
	}
	for id, q := range p.Overrides {
		if err := check(fmt.Sprintf("store %d", id), q); err != nil {
			return err
		}
	}
	return nil
}

// Expected returns the quota that applies to s. A configured override wins
// over the catalog's own override, which wins over the classification default.
func (p Policy) Expected(s model.Store) model.Quota {
	if q, ok := p.Overrides[s.ID]; ok {
		return q
	}
	if s.QuotaOverride != nil {
		return *s.QuotaOverride
	}
	if s.Classification == model.ClassForanea {
		return p.Foranea
	}
	return p.Local
}
