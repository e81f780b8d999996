// Package redistribute moves submissions between configured pairs of
// confusable stores to cancel an excess at one against a deficit at the other.
package redistribute

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/supervision-reconciler/internal/catalog"
	"github.com/sells-group/supervision-reconciler/internal/geo"
	"github.com/sells-group/supervision-reconciler/internal/model"
	"github.com/sells-group/supervision-reconciler/internal/quota"
)

// ErrInvalidPair is returned for a pair that cannot be redistributed.
var ErrInvalidPair = eris.New("redistribute: invalid pair")

// Pair routes surplus submissions from Source to Target.
type Pair struct {
	Source int `json:"source" mapstructure:"source"`
	Target int `json:"target" mapstructure:"target"`
}

// Move records one reassigned submission.
type Move struct {
	SubmissionID string               `json:"submission_id"`
	From         int                  `json:"from_store_id"`
	To           int                  `json:"to_store_id"`
	Period       string               `json:"period"`
	Type         model.InspectionType `json:"inspection_type"`
	Method       model.Method         `json:"method"`
	Confidence   float64              `json:"confidence"`
	TargetKM     *float64             `json:"distance_to_target_km,omitempty"`
}

// Engine applies the configured pairs once each, in order.
type Engine struct {
	catalog   *catalog.Catalog
	validator *quota.Validator
	pairs     []Pair
	log       *zap.Logger
}

// NewEngine checks that every pair names two distinct known stores of the
// same classification.
func NewEngine(cat *catalog.Catalog, v *quota.Validator, pairs []Pair) (*Engine, error) {
	for _, p := range pairs {
		if err := ValidatePair(cat, p); err != nil {
			return nil, err
		}
	}
	return &Engine{
		catalog:   cat,
		validator: v,
		pairs:     pairs,
		log:       zap.L().With(zap.String("component", "redistribute")),
	}, nil
}

// ValidatePair checks a single pair against the catalog.
func ValidatePair(cat *catalog.Catalog, p Pair) error {
	if p.Source == p.Target {
		return eris.Wrapf(ErrInvalidPair, "pair %d->%d: source and target are the same store", p.Source, p.Target)
	}
	src, ok := cat.ByID(p.Source)
	if !ok {
		return eris.Wrapf(ErrInvalidPair, "pair %d->%d: unknown source store", p.Source, p.Target)
	}
	tgt, ok := cat.ByID(p.Target)
	if !ok {
		return eris.Wrapf(ErrInvalidPair, "pair %d->%d: unknown target store", p.Source, p.Target)
	}
	if src.Classification != tgt.Classification {
		return eris.Wrapf(ErrInvalidPair, "pair %d->%d: classifications differ (%s, %s)", p.Source, p.Target, src.Classification, tgt.Classification)
	}
	return nil
}

// Apply returns a copy of resolved with the redistributions applied, and the
// moves made. The input slice is not modified.
func (e *Engine) Apply(resolved []model.ResolvedSubmission) ([]model.ResolvedSubmission, []Move) {
	out := make([]model.ResolvedSubmission, len(resolved))
	copy(out, resolved)

	var moves []Move
	for _, p := range e.pairs {
		pm := e.applyPair(out, p)
		if len(pm) > 0 {
			e.log.Info("redistribute: pair applied",
				zap.Int("source", p.Source),
				zap.Int("target", p.Target),
				zap.Int("moved", len(pm)),
			)
		}
		moves = append(moves, pm...)
	}
	return out, moves
}

func (e *Engine) applyPair(out []model.ResolvedSubmission, p Pair) []Move {
	src, _ := e.catalog.ByID(p.Source)
	tgt, _ := e.catalog.ByID(p.Target)
	cal := e.validator.Calendar()
	idx := quota.Index(e.validator.Validate(out))

	var moves []Move
	for _, period := range cal.Periods(src.Classification, cal.Years(out)) {
		for _, typ := range model.InspectionTypes {
			s := idx[quota.Key{StoreID: p.Source, Period: period.Name, Type: typ}]
			t := idx[quota.Key{StoreID: p.Target, Period: period.Name, Type: typ}]
			if s.Status != model.StatusExcess || t.Status != model.StatusDeficit {
				continue
			}
			n := min(s.Actual-s.Expected, t.Expected-t.Actual)

			candidates := e.candidates(out, p.Source, period.Name, typ)
			sortCandidates(out, candidates, tgt.Location)
			if len(candidates) > n {
				candidates = candidates[:n]
			}
			for _, i := range candidates {
				rs := &out[i]
				m := Move{
					SubmissionID: rs.ID,
					From:         p.Source,
					To:           p.Target,
					Period:       period.Name,
					Type:         typ,
					Method:       rs.Resolution.Method.Redistributed(),
					Confidence:   rs.Resolution.Confidence,
				}
				if d, ok := distanceTo(*rs, tgt.Location); ok {
					m.TargetKM = &d
				}
				rs.Resolution.StoreID = p.Target
				rs.Resolution.Method = m.Method
				moves = append(moves, m)
			}
		}
	}
	return moves
}

// candidates returns the indexes of submissions counted at storeID in the
// bucket that have not been moved before.
func (e *Engine) candidates(out []model.ResolvedSubmission, storeID int, period string, typ model.InspectionType) []int {
	var idx []int
	for i, rs := range out {
		if rs.Type != typ || rs.Resolution.StoreID != storeID || !rs.Resolution.Resolved() {
			continue
		}
		if rs.Resolution.Method.IsRedistributed() {
			continue
		}
		k, ok := e.validator.Bucket(storeID, typ, rs.SubmittedAt)
		if !ok || k.Period != period {
			continue
		}
		idx = append(idx, i)
	}
	return idx
}

// sortCandidates orders by ascending confidence, then descending distance to
// the target (unknown distance first), then submission ID.
func sortCandidates(out []model.ResolvedSubmission, idx []int, target geo.Point) {
	dist := make(map[int]float64, len(idx))
	for _, i := range idx {
		if d, ok := distanceTo(out[i], target); ok {
			dist[i] = d
		} else {
			dist[i] = math.Inf(1)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := out[idx[a]], out[idx[b]]
		if ra.Resolution.Confidence != rb.Resolution.Confidence {
			return ra.Resolution.Confidence < rb.Resolution.Confidence
		}
		if da, db := dist[idx[a]], dist[idx[b]]; da != db {
			return da > db
		}
		return ra.ID < rb.ID
	})
}

func distanceTo(rs model.ResolvedSubmission, target geo.Point) (float64, bool) {
	if !rs.HasCoordinates() {
		return 0, false
	}
	return geo.DistanceKM(*rs.Reported, target), true
}
