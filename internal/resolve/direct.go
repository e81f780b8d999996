package resolve

import (
	"github.com/sells-group/supervision-reconciler/internal/catalog"
	"github.com/sells-group/supervision-reconciler/internal/model"
)

// ExactKey matches the reported location key against catalog keys.
type ExactKey struct {
	Catalog *catalog.Catalog
}

// Method implements Strategy.
func (ExactKey) Method() model.Method { return model.MethodExact }

// Resolve implements Strategy.
func (s ExactKey) Resolve(sub model.Submission) (model.Resolution, bool) {
	if sub.LocationKey == "" {
		return model.Resolution{}, false
	}
	st, ok := s.Catalog.ByKey(sub.LocationKey)
	if !ok {
		return model.Resolution{}, false
	}
	return resolution(s.Catalog, sub, st.ID, model.MethodExact, 1.0), true
}

// ManualText scores the manual location text, or the reported location name
// when there is no manual text, against normalized store names and aliases.
type ManualText struct {
	Catalog    *catalog.Catalog
	MinScore   float64
	Confidence float64
}

// Method implements Strategy.
func (ManualText) Method() model.Method { return model.MethodManualText }

// Resolve implements Strategy.
func (s ManualText) Resolve(sub model.Submission) (model.Resolution, bool) {
	text := sub.ManualText
	if text == "" {
		text = sub.LocationName
	}
	if text == "" {
		return model.Resolution{}, false
	}
	st, _, ok := s.Catalog.MatchText(text, s.MinScore)
	if !ok {
		return model.Resolution{}, false
	}
	return resolution(s.Catalog, sub, st.ID, model.MethodManualText, s.Confidence), true
}

// GeoProximity assigns the nearest active store within the tolerance, with a
// confidence taken from the distance tiers.
type GeoProximity struct {
	Catalog        *catalog.Catalog
	MaxToleranceKM float64
	Tiers          []ConfidenceTier
}

// Method implements Strategy.
func (GeoProximity) Method() model.Method { return model.MethodGeoProximity }

// Resolve implements Strategy.
func (s GeoProximity) Resolve(sub model.Submission) (model.Resolution, bool) {
	if !sub.HasCoordinates() {
		return model.Resolution{}, false
	}
	st, d, ok := s.Catalog.Nearest(*sub.Reported)
	if !ok || d > s.MaxToleranceKM {
		return model.Resolution{}, false
	}
	conf, ok := tierConfidence(s.Tiers, d)
	if !ok {
		return model.Resolution{}, false
	}
	return model.Resolution{StoreID: st.ID, Method: model.MethodGeoProximity, Confidence: conf, DistanceKM: &d}, true
}
