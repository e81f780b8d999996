package model

import "time"

// RunStatus represents the current state of a reconciliation run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one execution of the reconciliation over a batch of submissions.
type Run struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Source     string     `json:"source"`
	Summary    RunSummary `json:"summary"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunSummary accounts for every input submission. Total equals
// Resolved + Unresolved + Excluded; Redistributed and NeedsReview are subsets.
type RunSummary struct {
	Total         int                      `json:"total"`
	Resolved      int                      `json:"resolved"`
	Unresolved    int                      `json:"unresolved"`
	Redistributed int                      `json:"redistributed"`
	Excluded      int                      `json:"excluded"`
	NeedsReview   int                      `json:"needs_review"`
	ByMethod      map[Method]int           `json:"by_method"`
	ByStatus      map[ComplianceStatus]int `json:"by_status"`
	FetchFailures []FetchFailure           `json:"fetch_failures,omitempty"`
}

// FetchFailure is an inspection form the source could not fully deliver.
// Records counts what it returned before failing.
type FetchFailure struct {
	Type    InspectionType `json:"type"`
	Records int            `json:"records"`
	Error   string         `json:"error"`
}

// Assignment is the flat, persisted form of a resolved submission.
type Assignment struct {
	SubmissionID string         `json:"submission_id"`
	Type         InspectionType `json:"inspection_type"`
	SubmittedAt  time.Time      `json:"submitted_at"`
	Submitter    string         `json:"submitter"`
	StoreID      int            `json:"resolved_store_id,omitempty"`
	Method       Method         `json:"method"`
	Confidence   float64        `json:"confidence"`
	DistanceKM   *float64       `json:"distance_km,omitempty"`
	NeedsReview  bool           `json:"needs_review"`
}

// Assignment flattens rs.
func (rs ResolvedSubmission) Assignment() Assignment {
	return Assignment{
		SubmissionID: rs.ID,
		Type:         rs.Type,
		SubmittedAt:  rs.SubmittedAt,
		Submitter:    rs.Submitter,
		StoreID:      rs.Resolution.StoreID,
		Method:       rs.Resolution.Method,
		Confidence:   rs.Resolution.Confidence,
		DistanceKM:   rs.Resolution.DistanceKM,
		NeedsReview:  rs.Resolution.NeedsReview,
	}
}
