package model

import "time"

// Period is a date range over which a classification's quota applies.
// Start and End are calendar dates; End is inclusive.
type Period struct {
	Name           string         `json:"name"`
	Classification Classification `json:"classification"`
	Start          time.Time      `json:"start"`
	End            time.Time      `json:"end"`
}

// Contains reports whether the calendar date of t (in t's location) falls inside p.
func (p Period) Contains(t time.Time) bool {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return !d.Before(dateOnly(p.Start)) && !d.After(dateOnly(p.End))
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ComplianceStatus compares the actual count with the expected count.
type ComplianceStatus string

// Compliance statuses.
const (
	StatusCompliant ComplianceStatus = "COMPLIANT"
	StatusDeficit   ComplianceStatus = "DEFICIT"
	StatusExcess    ComplianceStatus = "EXCESS"
)

// StatusFor derives the status for an actual/expected pair.
func StatusFor(actual, expected int) ComplianceStatus {
	switch {
	case actual < expected:
		return StatusDeficit
	case actual > expected:
		return StatusExcess
	default:
		return StatusCompliant
	}
}

// ComplianceRecord is the quota status of one store for one period and inspection type.
type ComplianceRecord struct {
	StoreID        int              `json:"store_id"`
	Period         string           `json:"period"`
	InspectionType InspectionType   `json:"inspection_type"`
	Actual         int              `json:"actual"`
	Expected       int              `json:"expected"`
	Status         ComplianceStatus `json:"status"`
}

// Gap returns expected minus actual (positive for a deficit, negative for an excess).
func (r ComplianceRecord) Gap() int {
	return r.Expected - r.Actual
}
