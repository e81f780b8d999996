// Package model defines the entities shared by the reconciliation stages.
package model

import (
	"strings"
	"time"

	"github.com/sells-group/supervision-reconciler/internal/geo"
)

// InspectionType identifies the supervision form a submission came from.
type InspectionType string

// Inspection types.
const (
	InspectionOperational InspectionType = "OPERATIONAL"
	InspectionSafety      InspectionType = "SAFETY"
)

// InspectionTypes lists every inspection type in a stable order.
var InspectionTypes = []InspectionType{InspectionOperational, InspectionSafety}

// ParseInspectionType accepts the canonical names and the source's Spanish labels.
func ParseInspectionType(s string) (InspectionType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OPERATIONAL", "OPERATIVA", "OPERATIVAS":
		return InspectionOperational, true
	case "SAFETY", "SEGURIDAD":
		return InspectionSafety, true
	default:
		return "", false
	}
}

// Other returns the paired inspection type.
func (t InspectionType) Other() InspectionType {
	if t == InspectionSafety {
		return InspectionOperational
	}
	return InspectionSafety
}

// RawSubmission is a record as delivered by a submission source, before validation.
// Optional values are empty strings when absent.
type RawSubmission struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Timestamp            string `json:"timestamp"`
	Submitter            string `json:"submitter"`
	ReportedLat          string `json:"reported_lat,omitempty"`
	ReportedLon          string `json:"reported_lon,omitempty"`
	ReportedLocationKey  string `json:"reported_location_key,omitempty"`
	ReportedLocationName string `json:"reported_location_name,omitempty"`
	ManualLocationText   string `json:"manual_location_text,omitempty"`
	LocationMap          string `json:"location_map,omitempty"`
}

// Submission is one completed field inspection. It is immutable once parsed;
// resolution results travel separately in ResolvedSubmission.
type Submission struct {
	ID           string         `json:"id"`
	Type         InspectionType `json:"type"`
	SubmittedAt  time.Time      `json:"submitted_at"`
	Submitter    string         `json:"submitter"`
	Reported     *geo.Point     `json:"reported,omitempty"`
	LocationKey  string         `json:"location_key,omitempty"`
	LocationName string         `json:"location_name,omitempty"`
	ManualText   string         `json:"manual_text,omitempty"`
}

// HasCoordinates reports whether the submission carries a usable reported point.
func (s Submission) HasCoordinates() bool {
	return s.Reported != nil && s.Reported.Valid()
}
