package resolve

import (
	"strings"
	"time"

	"github.com/sells-group/supervision-reconciler/internal/catalog"
	"github.com/sells-group/supervision-reconciler/internal/model"
)

type pairKey struct {
	submitter string
	date      time.Time
	typ       model.InspectionType
}

// TemporalPairing reuses the store of the submitter's other inspection on the
// same calendar date. Only resolutions backed by direct evidence are used as
// anchors, and the anchor set must name exactly one store.
type TemporalPairing struct {
	catalog    *catalog.Catalog
	date       func(time.Time) time.Time
	confidence float64
	anchors    map[pairKey]map[int]bool
}

// NewTemporalPairing indexes snapshot. date maps a timestamp to its calendar
// date in the run's time zone.
func NewTemporalPairing(cat *catalog.Catalog, snapshot []model.ResolvedSubmission, date func(time.Time) time.Time, confidence float64) *TemporalPairing {
	tp := &TemporalPairing{
		catalog:    cat,
		date:       date,
		confidence: confidence,
		anchors:    make(map[pairKey]map[int]bool),
	}
	for _, rs := range snapshot {
		if !rs.Resolution.Resolved() || !rs.Resolution.Method.DirectEvidence() {
			continue
		}
		k := tp.key(rs.Submitter, rs.SubmittedAt, rs.Type)
		if tp.anchors[k] == nil {
			tp.anchors[k] = make(map[int]bool)
		}
		tp.anchors[k][rs.Resolution.StoreID] = true
	}
	return tp
}

func (tp *TemporalPairing) key(submitter string, at time.Time, typ model.InspectionType) pairKey {
	return pairKey{
		submitter: strings.ToLower(strings.TrimSpace(submitter)),
		date:      tp.date(at),
		typ:       typ,
	}
}

// Method implements Strategy.
func (*TemporalPairing) Method() model.Method { return model.MethodTemporalPairing }

// Resolve implements Strategy.
func (tp *TemporalPairing) Resolve(sub model.Submission) (model.Resolution, bool) {
	if strings.TrimSpace(sub.Submitter) == "" {
		return model.Resolution{}, false
	}
	stores := tp.anchors[tp.key(sub.Submitter, sub.SubmittedAt, sub.Type.Other())]
	if len(stores) != 1 {
		return model.Resolution{}, false
	}
	for id := range stores {
		return resolution(tp.catalog, sub, id, model.MethodTemporalPairing, tp.confidence), true
	}
	return model.Resolution{}, false
}
