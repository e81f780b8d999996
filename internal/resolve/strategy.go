// Package resolve assigns submissions to catalog stores through a fixed
// priority chain of strategies.
package resolve

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/supervision-reconciler/internal/catalog"
	"github.com/sells-group/supervision-reconciler/internal/geo"
	"github.com/sells-group/supervision-reconciler/internal/model"
)

// ErrInvalidOptions is returned by New for unusable resolver options.
var ErrInvalidOptions = eris.New("resolve: invalid options")

// Strategy tries to place a single submission. It returns ok=false when it
// has no result at or above its own acceptance threshold.
type Strategy interface {
	Method() model.Method
	Resolve(sub model.Submission) (model.Resolution, bool)
}

// ConfidenceTier maps a distance ceiling to the confidence of a geo match.
type ConfidenceTier struct {
	RadiusKM   float64 `json:"radius_km" mapstructure:"radius_km"`
	Confidence float64 `json:"confidence" mapstructure:"confidence"`
}

// Options tunes the strategy chain.
type Options struct {
	MaxToleranceKM            float64
	Tiers                     []ConfidenceTier
	ManualTextConfidence      float64
	ManualTextMinScore        float64
	TemporalPairingConfidence float64
	DeficitDefaultConfidence  float64
	Workers                   int
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxToleranceKM: 2.0,
		Tiers: []ConfidenceTier{
			{RadiusKM: 0.5, Confidence: 0.9},
			{RadiusKM: 1.0, Confidence: 0.8},
			{RadiusKM: 2.0, Confidence: 0.7},
		},
		ManualTextConfidence:      0.8,
		ManualTextMinScore:        0.3,
		TemporalPairingConfidence: 0.6,
		DeficitDefaultConfidence:  0.6,
		Workers:                   8,
	}
}

// Validate checks ranges and tier ordering. Every distance within the
// tolerance must be covered by a tier.
func (o Options) Validate() error {
	if o.MaxToleranceKM <= 0 || math.IsNaN(o.MaxToleranceKM) {
		return eris.Wrapf(ErrInvalidOptions, "max tolerance must be positive, got %v", o.MaxToleranceKM)
	}
	if len(o.Tiers) == 0 {
		return eris.Wrap(ErrInvalidOptions, "at least one confidence tier is required")
	}
	for i, t := range o.Tiers {
		if t.RadiusKM <= 0 {
			return eris.Wrapf(ErrInvalidOptions, "tier %d: radius must be positive", i)
		}
		if !validConfidence(t.Confidence) {
			return eris.Wrapf(ErrInvalidOptions, "tier %d: confidence %v out of (0,1]", i, t.Confidence)
		}
		if i > 0 && t.RadiusKM <= o.Tiers[i-1].RadiusKM {
			return eris.Wrapf(ErrInvalidOptions, "tier %d: radii must be strictly ascending", i)
		}
	}
	if last := o.Tiers[len(o.Tiers)-1]; o.MaxToleranceKM > last.RadiusKM {
		return eris.Wrapf(ErrInvalidOptions, "max tolerance %v exceeds the widest tier %v", o.MaxToleranceKM, last.RadiusKM)
	}
	for name, c := range map[string]float64{
		"manual text":      o.ManualTextConfidence,
		"temporal pairing": o.TemporalPairingConfidence,
		"deficit default":  o.DeficitDefaultConfidence,
	} {
		if !validConfidence(c) {
			return eris.Wrapf(ErrInvalidOptions, "%s confidence %v out of (0,1]", name, c)
		}
	}
	if o.ManualTextMinScore <= 0 || o.ManualTextMinScore > 1 {
		return eris.Wrapf(ErrInvalidOptions, "manual text min score %v out of (0,1]", o.ManualTextMinScore)
	}
	if o.Workers < 1 {
		return eris.Wrapf(ErrInvalidOptions, "workers must be at least 1, got %d", o.Workers)
	}
	return nil
}

func validConfidence(c float64) bool {
	return c > 0 && c <= 1
}

// tierConfidence returns the confidence of the first tier whose radius covers d.
func tierConfidence(tiers []ConfidenceTier, d float64) (float64, bool) {
	for _, t := range tiers {
		if d <= t.RadiusKM {
			return t.Confidence, true
		}
	}
	return 0, false
}

// resolution builds a result for storeID, attaching the distance from the
// reported point when the submission has one. Inactive stores are outside
// quota validation, so a match to one is flagged for review.
func resolution(cat *catalog.Catalog, sub model.Submission, storeID int, method model.Method, confidence float64) model.Resolution {
	r := model.Resolution{StoreID: storeID, Method: method, Confidence: confidence}
	s, ok := cat.ByID(storeID)
	if !ok {
		return r
	}
	if !s.Active {
		r.NeedsReview = true
	}
	if sub.HasCoordinates() {
		d := geo.DistanceKM(*sub.Reported, s.Location)
		r.DistanceKM = &d
	}
	return r
}
