package report

import (
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/supervision-reconciler/internal/model"
)

// Sheet names written by WriteXLSX.
const (
	SheetSummary       = "Summary"
	SheetCompliance    = "Compliance"
	SheetAssignments   = "Assignments"
	SheetReview        = "Review"
	SheetRedistributed = "Redistributed"
	SheetExcluded      = "Excluded"
)

// WriteXLSX saves r as a workbook with one sheet per section.
func WriteXLSX(path string, r *Report) error {
	f := xlsx.NewFile()

	sheets := []struct {
		name string
		fill func(*xlsx.Sheet)
	}{
		{SheetSummary, r.fillSummary},
		{SheetCompliance, r.fillCompliance},
		{SheetAssignments, r.fillAssignments},
		{SheetReview, r.fillReview},
		{SheetRedistributed, r.fillMoves},
		{SheetExcluded, r.fillExcluded},
	}
	for _, s := range sheets {
		sheet, err := f.AddSheet(s.name)
		if err != nil {
			return eris.Wrapf(err, "report: add sheet %s", s.name)
		}
		s.fill(sheet)
	}
	return eris.Wrapf(f.Save(path), "report: save %s", path)
}

func header(sheet *xlsx.Sheet, cols ...string) {
	row := sheet.AddRow()
	for _, c := range cols {
		row.AddCell().SetString(c)
	}
}

func (r *Report) fillSummary(sheet *xlsx.Sheet) {
	header(sheet, "metric", "value")
	add := func(k string, v int) {
		row := sheet.AddRow()
		row.AddCell().SetString(k)
		row.AddCell().SetInt(v)
	}
	s := r.Summary
	add("total", s.Total)
	add("resolved", s.Resolved)
	add("unresolved", s.Unresolved)
	add("redistributed", s.Redistributed)
	add("excluded", s.Excluded)
	add("needs_review", s.NeedsReview)

	methods := make([]string, 0, len(s.ByMethod))
	for m := range s.ByMethod {
		methods = append(methods, string(m))
	}
	sort.Strings(methods)
	for _, m := range methods {
		add("method "+m, s.ByMethod[model.Method(m)])
	}
	for _, st := range []model.ComplianceStatus{model.StatusCompliant, model.StatusDeficit, model.StatusExcess} {
		add("status "+string(st), s.ByStatus[st])
	}
	for _, f := range s.FetchFailures {
		row := sheet.AddRow()
		row.AddCell().SetString("failed form " + string(f.Type))
		row.AddCell().SetInt(f.Records)
		row.AddCell().SetString(f.Error)
	}
}

func (r *Report) fillCompliance(sheet *xlsx.Sheet) {
	header(sheet, "store_id", "store_name", "classification", "period", "inspection_type", "actual", "expected", "status")
	for _, c := range r.Compliance {
		row := sheet.AddRow()
		row.AddCell().SetInt(c.StoreID)
		row.AddCell().SetString(c.StoreName)
		row.AddCell().SetString(string(c.Classification))
		row.AddCell().SetString(c.Period)
		row.AddCell().SetString(string(c.InspectionType))
		row.AddCell().SetInt(c.Actual)
		row.AddCell().SetInt(c.Expected)
		row.AddCell().SetString(string(c.Status))
	}
}

var assignmentHeader = []string{
	"submission_id", "inspection_type", "submitted_at", "submitter",
	"resolved_store_id", "method", "confidence", "distance_km", "needs_review",
}

func assignmentRow(sheet *xlsx.Sheet, a model.Assignment) *xlsx.Row {
	row := sheet.AddRow()
	row.AddCell().SetString(a.SubmissionID)
	row.AddCell().SetString(string(a.Type))
	row.AddCell().SetString(a.SubmittedAt.Format("2006-01-02 15:04:05"))
	row.AddCell().SetString(a.Submitter)
	if a.StoreID != 0 {
		row.AddCell().SetInt(a.StoreID)
	} else {
		row.AddCell().SetString("")
	}
	row.AddCell().SetString(string(a.Method))
	row.AddCell().SetString(strconv.FormatFloat(a.Confidence, 'f', 2, 64))
	if a.DistanceKM != nil {
		row.AddCell().SetString(strconv.FormatFloat(*a.DistanceKM, 'f', 3, 64))
	} else {
		row.AddCell().SetString("")
	}
	row.AddCell().SetString(strconv.FormatBool(a.NeedsReview))
	return row
}

func (r *Report) fillAssignments(sheet *xlsx.Sheet) {
	header(sheet, assignmentHeader...)
	for _, a := range r.Assignments {
		assignmentRow(sheet, a)
	}
}

func (r *Report) fillReview(sheet *xlsx.Sheet) {
	header(sheet, append(assignmentHeader[:len(assignmentHeader):len(assignmentHeader)], "rationale")...)
	for _, item := range r.Review {
		assignmentRow(sheet, item.Assignment).AddCell().SetString(item.Rationale)
	}
}

func (r *Report) fillMoves(sheet *xlsx.Sheet) {
	header(sheet, "submission_id", "from_store_id", "to_store_id", "period", "inspection_type", "method", "confidence", "distance_to_target_km")
	for _, m := range r.Moves {
		row := sheet.AddRow()
		row.AddCell().SetString(m.SubmissionID)
		row.AddCell().SetInt(m.From)
		row.AddCell().SetInt(m.To)
		row.AddCell().SetString(m.Period)
		row.AddCell().SetString(string(m.Type))
		row.AddCell().SetString(string(m.Method))
		row.AddCell().SetString(strconv.FormatFloat(m.Confidence, 'f', 2, 64))
		if m.TargetKM != nil {
			row.AddCell().SetString(strconv.FormatFloat(*m.TargetKM, 'f', 3, 64))
		} else {
			row.AddCell().SetString("")
		}
	}
}

func (r *Report) fillExcluded(sheet *xlsx.Sheet) {
	header(sheet, "submission_id", "field", "reason", "value")
	for _, e := range r.Excluded {
		row := sheet.AddRow()
		row.AddCell().SetString(e.SubmissionID)
		row.AddCell().SetString(e.Field)
		row.AddCell().SetString(string(e.Reason))
		row.AddCell().SetString(e.Value)
	}
}
