package ingest

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/supervision-reconciler/internal/geo"
	"github.com/sells-group/supervision-reconciler/internal/model"
)

// ParseReason classifies why a raw field was rejected.
type ParseReason string

// Parse reasons.
const (
	ReasonMissing ParseReason = "missing"
	ReasonInvalid ParseReason = "invalid"
)

// Field names reported by ParseError.
const (
	FieldID          = "id"
	FieldType        = "type"
	FieldTimestamp   = "timestamp"
	FieldSubmitter   = "submitter"
	FieldReportedLat = "reported_lat"
	FieldReportedLon = "reported_lon"
)

// ParseError records why a raw submission was excluded from the run.
type ParseError struct {
	SubmissionID string      `json:"submission_id,omitempty"`
	Field        string      `json:"field"`
	Reason       ParseReason `json:"reason"`
	Value        string      `json:"value,omitempty"`
}

func (e *ParseError) Error() string {
	id := e.SubmissionID
	if id == "" {
		id = "<no id>"
	}
	if e.Value != "" {
		return fmt.Sprintf("submission %s: %s %s (%q)", id, e.Field, e.Reason, e.Value)
	}
	return fmt.Sprintf("submission %s: %s %s", id, e.Field, e.Reason)
}

// columnAliases maps RawSubmission fields to the header names seen in the
// platform's spreadsheet exports and flattened API dumps. Lookup is
// case-insensitive; earlier aliases win.
var columnAliases = map[string][]string{
	FieldID:                  {"submission id", "id", "submission_id"},
	FieldType:                {"type", "inspection type", "tipo"},
	FieldTimestamp:           {"date submitted", "smetadata.date_submitted", "date_submitted", "timestamp"},
	FieldSubmitter:           {"submitted by", "smetadata.created_by.display_name", "created_by", "submitter"},
	FieldReportedLat:         {"latitude", "smetadata.lat", "lat", "reported_lat"},
	FieldReportedLon:         {"longitude", "smetadata.lon", "lon", "reported_lon"},
	"reported_location_key":  {"location", "smetadata.location.name", "reported_location_key"},
	"reported_location_name": {"location name", "reported_location_name"},
	"manual_location_text":   {"sucursal", "sucursal manual", "manual_location_text"},
	"location_map":           {"location map", "location_map"},
}

func resolveColumns(header []string) map[string]int {
	idx := HeaderIndex(header)
	out := make(map[string]int, len(columnAliases))
	for field, aliases := range columnAliases {
		for _, a := range aliases {
			if i, ok := idx[a]; ok {
				out[field] = i
				break
			}
		}
	}
	return out
}

// RowsToRaw maps export rows onto RawSubmissions using header names.
// When the export has no type column, or a row leaves it blank, inspectionType is used.
func RowsToRaw(header []string, rows [][]string, inspectionType model.InspectionType) []model.RawSubmission {
	cols := resolveColumns(header)
	out := make([]model.RawSubmission, 0, len(rows))
	for _, row := range rows {
		get := func(field string) string { return Cell(row, cols, field) }
		raw := model.RawSubmission{
			ID:                   get(FieldID),
			Type:                 get(FieldType),
			Timestamp:            get(FieldTimestamp),
			Submitter:            get(FieldSubmitter),
			ReportedLat:          get(FieldReportedLat),
			ReportedLon:          get(FieldReportedLon),
			ReportedLocationKey:  get("reported_location_key"),
			ReportedLocationName: get("reported_location_name"),
			ManualLocationText:   get("manual_location_text"),
			LocationMap:          get("location_map"),
		}
		if raw.Type == "" {
			raw.Type = string(inspectionType)
		}
		out = append(out, raw)
	}
	return out
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"01/02/2006",
}

// ParseTimestamp accepts RFC 3339, the common export layouts and Excel date
// serials. Values without a zone are read as wall-clock time in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	// Excel serials between 1954 and 2119.
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 20000 && f < 80000 {
		u := xlsx.TimeFromExcelTime(f, false)
		return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), 0, loc), true
	}
	return time.Time{}, false
}

var locationMapPatterns = []*regexp.Regexp{
	regexp.MustCompile(`@(-?\d+\.\d+),\s*(-?\d+\.\d+)`),
	regexp.MustCompile(`(-?\d+\.\d+),\s*(-?\d+\.\d+)`),
	regexp.MustCompile(`(?i)lat[=:]?\s*(-?\d+\.\d+).*?lon[=:]?\s*(-?\d+\.\d+)`),
}

// ParseLocationMap extracts a coordinate pair from the free-form "Location Map"
// column (map links, "lat,lon" pairs or "lat=.. lon=.." text).
func ParseLocationMap(s string) (geo.Point, bool) {
	for _, re := range locationMapPatterns {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		lat, err1 := strconv.ParseFloat(m[1], 64)
		lon, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		p := geo.Point{Lat: lat, Lon: lon}
		if p.Valid() {
			return p, true
		}
	}
	return geo.Point{}, false
}

// Parse validates raw and builds a Submission. Timestamps without a zone are
// read in loc. Reported coordinates are optional, but when present they must
// be numeric and in range; a 0,0 pair is treated as absent. Without reported
// coordinates the Location Map column is consulted.
func Parse(raw model.RawSubmission, loc *time.Location) (model.Submission, *ParseError) {
	id := strings.TrimSpace(raw.ID)
	fail := func(field string, reason ParseReason, value string) (model.Submission, *ParseError) {
		return model.Submission{}, &ParseError{SubmissionID: id, Field: field, Reason: reason, Value: value}
	}

	if id == "" {
		return fail(FieldID, ReasonMissing, "")
	}
	if strings.TrimSpace(raw.Type) == "" {
		return fail(FieldType, ReasonMissing, "")
	}
	typ, ok := model.ParseInspectionType(raw.Type)
	if !ok {
		return fail(FieldType, ReasonInvalid, raw.Type)
	}
	if strings.TrimSpace(raw.Timestamp) == "" {
		return fail(FieldTimestamp, ReasonMissing, "")
	}
	ts, ok := ParseTimestamp(raw.Timestamp, loc)
	if !ok {
		return fail(FieldTimestamp, ReasonInvalid, raw.Timestamp)
	}
	submitter := strings.TrimSpace(raw.Submitter)
	if submitter == "" {
		return fail(FieldSubmitter, ReasonMissing, "")
	}

	sub := model.Submission{
		ID:           id,
		Type:         typ,
		SubmittedAt:  ts,
		Submitter:    submitter,
		LocationKey:  strings.TrimSpace(raw.ReportedLocationKey),
		LocationName: strings.TrimSpace(raw.ReportedLocationName),
		ManualText:   strings.TrimSpace(raw.ManualLocationText),
	}

	latS, lonS := strings.TrimSpace(raw.ReportedLat), strings.TrimSpace(raw.ReportedLon)
	switch {
	case latS == "" && lonS == "":
	case latS == "":
		return fail(FieldReportedLat, ReasonMissing, "")
	case lonS == "":
		return fail(FieldReportedLon, ReasonMissing, "")
	default:
		lat, err := strconv.ParseFloat(latS, 64)
		if err != nil || !inRange(lat, 90) {
			return fail(FieldReportedLat, ReasonInvalid, latS)
		}
		lon, err := strconv.ParseFloat(lonS, 64)
		if err != nil || !inRange(lon, 180) {
			return fail(FieldReportedLon, ReasonInvalid, lonS)
		}
		if p := (geo.Point{Lat: lat, Lon: lon}); p.Valid() {
			sub.Reported = &p
		}
	}

	if sub.Reported == nil && raw.LocationMap != "" {
		if p, ok := ParseLocationMap(raw.LocationMap); ok {
			sub.Reported = &p
		}
	}
	return sub, nil
}

// inRange rejects NaN, which ParseFloat accepts and every comparison lets through.
func inRange(v, limit float64) bool {
	return !math.IsNaN(v) && v >= -limit && v <= limit
}

// ParseAll parses every raw record. Records that fail are returned as
// exclusions; the first occurrence of a duplicate ID wins and later copies
// are excluded as invalid ids.
func ParseAll(raws []model.RawSubmission, loc *time.Location) ([]model.Submission, []*ParseError) {
	var (
		subs     = make([]model.Submission, 0, len(raws))
		excluded []*ParseError
		seen     = make(map[string]bool, len(raws))
	)
	for _, raw := range raws {
		sub, perr := Parse(raw, loc)
		if perr != nil {
			excluded = append(excluded, perr)
			continue
		}
		if seen[sub.ID] {
			excluded = append(excluded, &ParseError{SubmissionID: sub.ID, Field: FieldID, Reason: ReasonInvalid, Value: "duplicate"})
			continue
		}
		seen[sub.ID] = true
		subs = append(subs, sub)
	}
	return subs, excluded
}
