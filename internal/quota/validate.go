package quota

import (
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/supervision-reconciler/internal/catalog"
	"github.com/sells-group/supervision-reconciler/internal/model"
)

// Validator compares resolved submissions against the quota policy.
// It is stateless and safe for concurrent use.
type Validator struct {
	catalog  *catalog.Catalog
	calendar *Calendar
	policy   Policy
}

// NewValidator returns a Validator over an immutable catalog and calendar.
func NewValidator(cat *catalog.Catalog, cal *Calendar, pol Policy) *Validator {
	return &Validator{catalog: cat, calendar: cal, policy: pol}
}

// Calendar returns the period calendar.
func (v *Validator) Calendar() *Calendar {
	return v.calendar
}

// Bucket returns the quota bucket a submission of typ made at the given time
// counts toward at storeID. Inactive or unknown stores and dates outside every
// period have no bucket.
func (v *Validator) Bucket(storeID int, typ model.InspectionType, at time.Time) (Key, bool) {
	s, ok := v.catalog.ByID(storeID)
	if !ok || !s.Active {
		return Key{}, false
	}
	p, ok := v.calendar.PeriodFor(s.Classification, at)
	if !ok {
		return Key{}, false
	}
	return Key{StoreID: storeID, Period: p.Name, Type: typ}, true
}

// Expected returns the expected count for the bucket's store and type.
func (v *Validator) Expected(k Key) int {
	s, ok := v.catalog.ByID(k.StoreID)
	if !ok {
		return 0
	}
	return v.policy.Expected(s).For(k.Type)
}

// Count tallies resolved submissions per bucket. Each inspection type is
// accumulated by its own goroutine.
func (v *Validator) Count(resolved []model.ResolvedSubmission) *Tally {
	t := NewTally()
	var g errgroup.Group
	for _, typ := range model.InspectionTypes {
		g.Go(func() error {
			for _, rs := range resolved {
				if rs.Type != typ || !rs.Resolution.Resolved() {
					continue
				}
				if k, ok := v.Bucket(rs.Resolution.StoreID, rs.Type, rs.SubmittedAt); ok {
					t.Add(k, 1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return t
}

// Validate emits one record per active store, per period of its
// classification in the years the submissions span, per inspection type.
// Records are ordered by store ID, period start and type.
func (v *Validator) Validate(resolved []model.ResolvedSubmission) []model.ComplianceRecord {
	tally := v.Count(resolved)
	years := v.calendar.Years(resolved)

	var out []model.ComplianceRecord
	for _, s := range v.catalog.Active() {
		quota := v.policy.Expected(s)
		for _, p := range v.calendar.Periods(s.Classification, years) {
			for _, typ := range model.InspectionTypes {
				actual := tally.Count(Key{StoreID: s.ID, Period: p.Name, Type: typ})
				expected := quota.For(typ)
				out = append(out, model.ComplianceRecord{
					StoreID:        s.ID,
					Period:         p.Name,
					InspectionType: typ,
					Actual:         actual,
					Expected:       expected,
					Status:         model.StatusFor(actual, expected),
				})
			}
		}
	}
	return out
}

// Validate is shorthand for NewValidator(cat, cal, pol).Validate(resolved).
func Validate(resolved []model.ResolvedSubmission, cat *catalog.Catalog, cal *Calendar, pol Policy) []model.ComplianceRecord {
	return NewValidator(cat, cal, pol).Validate(resolved)
}

// Index keys records by bucket.
func Index(records []model.ComplianceRecord) map[Key]model.ComplianceRecord {
	out := make(map[Key]model.ComplianceRecord, len(records))
	for _, r := range records {
		out[Key{StoreID: r.StoreID, Period: r.Period, Type: r.InspectionType}] = r
	}
	return out
}
