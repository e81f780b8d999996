package model

import "strings"

// Method tags how a submission was assigned to a store.
type Method string

// Resolution methods, in strategy priority order.
const (
	MethodExact           Method = "EXACT"
	MethodManualText      Method = "MANUAL_TEXT_MATCH"
	MethodGeoProximity    Method = "GEO_PROXIMITY"
	MethodTemporalPairing Method = "TEMPORAL_PAIRING"
	MethodDeficitDefault  Method = "DEFICIT_DEFAULT"
	MethodUnresolved      Method = "UNRESOLVED_FINAL"
)

// RedistributedSuffix is appended to a method when the redistribution engine moves a submission.
const RedistributedSuffix = "_REDISTRIBUTED"

// Redistributed returns m tagged with the redistribution suffix.
func (m Method) Redistributed() Method {
	if m.IsRedistributed() {
		return m
	}
	return m + RedistributedSuffix
}

// IsRedistributed reports whether m carries the redistribution suffix.
func (m Method) IsRedistributed() bool {
	return strings.HasSuffix(string(m), RedistributedSuffix)
}

// Base strips the redistribution suffix.
func (m Method) Base() Method {
	return Method(strings.TrimSuffix(string(m), RedistributedSuffix))
}

// DirectEvidence reports whether m was derived from the submission's own
// location signals rather than from other submissions or quota state.
func (m Method) DirectEvidence() bool {
	switch m.Base() {
	case MethodExact, MethodManualText, MethodGeoProximity:
		return true
	default:
		return false
	}
}

// Resolution is the outcome of resolving one submission.
// StoreID is zero when the submission is unresolved.
type Resolution struct {
	StoreID     int      `json:"resolved_store_id,omitempty"`
	Method      Method   `json:"method"`
	Confidence  float64  `json:"confidence"`
	DistanceKM  *float64 `json:"distance_km,omitempty"`
	NeedsReview bool     `json:"needs_review"`
}

// Resolved reports whether the resolution assigned a store.
func (r Resolution) Resolved() bool {
	return r.StoreID != 0 && r.Method != MethodUnresolved
}

// Unresolved returns the terminal resolution for a submission no strategy could place.
func Unresolved() Resolution {
	return Resolution{Method: MethodUnresolved, NeedsReview: true}
}

// ResolvedSubmission pairs an input submission with its resolution.
type ResolvedSubmission struct {
	Submission
	Resolution Resolution `json:"resolution"`
}
