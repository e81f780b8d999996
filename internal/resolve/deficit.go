package resolve

import (
	"github.com/sells-group/supervision-reconciler/internal/catalog"
	"github.com/sells-group/supervision-reconciler/internal/model"
	"github.com/sells-group/supervision-reconciler/internal/quota"
)

// DeficitDefault assigns an evidence-free submission to the eligible store with
// the largest unmet quota for its type and period. Every assignment is added
// to the tally, so it must be driven sequentially in a stable order.
//
// Eligible stores are active stores with a period covering the submission
// date. When the submission has coordinates, only stores sharing the nearest
// store's classification are eligible.
type DeficitDefault struct {
	catalog    *catalog.Catalog
	validator  *quota.Validator
	tally      *quota.Tally
	confidence float64
}

// NewDeficitDefault returns a strategy that updates tally as it assigns.
func NewDeficitDefault(cat *catalog.Catalog, v *quota.Validator, tally *quota.Tally, confidence float64) *DeficitDefault {
	return &DeficitDefault{catalog: cat, validator: v, tally: tally, confidence: confidence}
}

// Method implements Strategy.
func (*DeficitDefault) Method() model.Method { return model.MethodDeficitDefault }

// Resolve implements Strategy.
func (d *DeficitDefault) Resolve(sub model.Submission) (model.Resolution, bool) {
	var class model.Classification
	if sub.HasCoordinates() {
		if nearest, _, ok := d.catalog.Nearest(*sub.Reported); ok {
			class = nearest.Classification
		}
	}

	var (
		best      quota.Key
		bestUnmet int
	)
	for _, s := range d.catalog.Active() {
		if class != "" && s.Classification != class {
			continue
		}
		k, ok := d.validator.Bucket(s.ID, sub.Type, sub.SubmittedAt)
		if !ok {
			continue
		}
		// Active() is ordered by ID, so a strict comparison keeps the lowest ID on ties.
		if unmet := d.validator.Expected(k) - d.tally.Count(k); unmet > bestUnmet {
			best, bestUnmet = k, unmet
		}
	}
	if bestUnmet <= 0 {
		return model.Resolution{}, false
	}

	d.tally.Add(best, 1)
	r := resolution(d.catalog, sub, best.StoreID, model.MethodDeficitDefault, d.confidence)
	r.NeedsReview = true
	return r, true
}
