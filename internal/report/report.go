// Package report assembles the outcome of a reconciliation run and writes it
// as JSON or as a multi-sheet workbook.
package report

import (
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/supervision-reconciler/internal/catalog"
	"github.com/sells-group/supervision-reconciler/internal/ingest"
	"github.com/sells-group/supervision-reconciler/internal/model"
	"github.com/sells-group/supervision-reconciler/internal/redistribute"
)

// Input is everything a run produced.
type Input struct {
	RunID       string
	GeneratedAt time.Time
	Catalog     *catalog.Catalog
	Resolved    []model.ResolvedSubmission
	Compliance  []model.ComplianceRecord
	Moves       []redistribute.Move
	Excluded    []*ingest.ParseError
	Failed      []model.FetchFailure
}

// ComplianceRow is a compliance record annotated with the store it concerns.
type ComplianceRow struct {
	model.ComplianceRecord
	StoreName      string               `json:"store_name"`
	Classification model.Classification `json:"classification"`
}

// ReviewItem is an assignment a person should look at, with the reason.
type ReviewItem struct {
	model.Assignment
	Rationale string `json:"rationale"`
}

// Report is the full reconciliation outcome.
type Report struct {
	RunID       string               `json:"run_id"`
	GeneratedAt time.Time            `json:"generated_at"`
	Summary     model.RunSummary     `json:"summary"`
	Compliance  []ComplianceRow      `json:"compliance"`
	Assignments []model.Assignment   `json:"assignments"`
	Review      []ReviewItem         `json:"review"`
	Moves       []redistribute.Move  `json:"redistributed"`
	Excluded    []*ingest.ParseError `json:"excluded"`
}

// Build derives the report. Every input submission lands in exactly one of
// assignments or excluded.
func Build(in Input) *Report {
	r := &Report{
		RunID:       in.RunID,
		GeneratedAt: in.GeneratedAt,
		Summary:     Summarize(in.Resolved, in.Compliance, len(in.Excluded)),
		Compliance:  make([]ComplianceRow, 0, len(in.Compliance)),
		Assignments: make([]model.Assignment, 0, len(in.Resolved)),
		Moves:       in.Moves,
		Excluded:    in.Excluded,
	}
	r.Summary.FetchFailures = in.Failed
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now().UTC()
	}

	for _, rec := range in.Compliance {
		row := ComplianceRow{ComplianceRecord: rec}
		if in.Catalog != nil {
			if s, ok := in.Catalog.ByID(rec.StoreID); ok {
				row.StoreName = s.Name
				row.Classification = s.Classification
			}
		}
		r.Compliance = append(r.Compliance, row)
	}

	for _, rs := range in.Resolved {
		a := rs.Assignment()
		r.Assignments = append(r.Assignments, a)
		if a.NeedsReview {
			r.Review = append(r.Review, ReviewItem{Assignment: a, Rationale: Rationale(rs)})
		}
	}
	sort.SliceStable(r.Assignments, func(i, j int) bool {
		return lessAssignment(r.Assignments[i], r.Assignments[j])
	})
	sort.SliceStable(r.Review, func(i, j int) bool {
		return lessAssignment(r.Review[i].Assignment, r.Review[j].Assignment)
	})
	return r
}

func lessAssignment(a, b model.Assignment) bool {
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.SubmissionID < b.SubmissionID
}

// Summarize counts the run. Total is resolved + unresolved + excluded.
func Summarize(resolved []model.ResolvedSubmission, records []model.ComplianceRecord, excluded int) model.RunSummary {
	s := model.RunSummary{
		Total:    len(resolved) + excluded,
		Excluded: excluded,
		ByMethod: make(map[model.Method]int),
		ByStatus: make(map[model.ComplianceStatus]int),
	}
	for _, rs := range resolved {
		res := rs.Resolution
		s.ByMethod[res.Method]++
		if res.Resolved() {
			s.Resolved++
		} else {
			s.Unresolved++
		}
		if res.Method.IsRedistributed() {
			s.Redistributed++
		}
		if res.NeedsReview {
			s.NeedsReview++
		}
	}
	for _, rec := range records {
		s.ByStatus[rec.Status]++
	}
	return s
}

// Rationale explains in one line how a submission was placed, or why it was not.
func Rationale(rs model.ResolvedSubmission) string {
	res := rs.Resolution
	var why string
	switch res.Method.Base() {
	case model.MethodExact:
		why = "location key matched the catalog"
	case model.MethodManualText:
		why = "manual location text matched a store name"
	case model.MethodGeoProximity:
		why = "nearest store within tolerance of the reported coordinates"
	case model.MethodTemporalPairing:
		why = "same submitter inspected this store the same day"
	case model.MethodDeficitDefault:
		why = "no location evidence; assigned to the store with the largest unmet quota"
	default:
		why = "no strategy matched (" + evidence(rs.Submission) + ")"
	}
	if res.NeedsReview && res.Resolved() && res.Method.Base() != model.MethodDeficitDefault {
		why += "; store is inactive and not quota-validated"
	}
	if res.Method.IsRedistributed() {
		why += "; moved by redistribution"
	}
	return why
}

func evidence(s model.Submission) string {
	var have []string
	if s.HasCoordinates() {
		have = append(have, "coordinates beyond tolerance")
	}
	if s.LocationKey != "" {
		have = append(have, "unknown location key")
	}
	if s.ManualText != "" || s.LocationName != "" {
		have = append(have, "unmatched location text")
	}
	if len(have) == 0 {
		return "no location evidence and no quota gap"
	}
	return strings.Join(have, ", ")
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(r), "report: encode json")
}
