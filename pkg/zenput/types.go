package zenput

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/sells-group/supervision-reconciler/internal/model"
)

// page is the envelope of GET /submissions.
type page struct {
	Data []Submission `json:"data"`
}

// Submission is the subset of a Zenput v3 submission the reconciler reads.
type Submission struct {
	ID          flexString `json:"id"`
	SubmittedAt string     `json:"submitted_at"`
	Metadata    Metadata   `json:"smetadata"`
	Location    *Location  `json:"location"`
	SubmittedBy *User      `json:"submitted_by"`
	Responses   []Response `json:"responses"`
}

// Metadata is the smetadata block: where and when the form was sent.
type Metadata struct {
	DateSubmitted string     `json:"date_submitted"`
	Lat           flexString `json:"lat"`
	Lon           flexString `json:"lon"`
	Location      *Location  `json:"location"`
	CreatedBy     *User      `json:"created_by"`
}

// Location is the store the supervisor picked in the app. Name carries the
// platform's "<id> - <name>" key.
type Location struct {
	ID   flexString `json:"id"`
	Name string     `json:"name"`
}

// User identifies a supervisor.
type User struct {
	DisplayName string `json:"display_name"`
	Name        string `json:"name"`
}

func (u *User) label() string {
	if u == nil {
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Name
}

// Response is one answered question.
type Response struct {
	Question struct {
		Name string `json:"name"`
	} `json:"question"`
	Answer flexString `json:"answer"`
}

// flexString decodes a JSON string, number or null into its text form.
// Zenput is not consistent about ids and coordinates.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	// Numbers, objects and lists are kept as their JSON text.
	*f = flexString(b)
	return nil
}

// Raw maps s onto the source-neutral raw record.
func (s Submission) Raw(typ model.InspectionType) model.RawSubmission {
	raw := model.RawSubmission{
		ID:          string(s.ID),
		Type:        string(typ),
		Timestamp:   s.Metadata.DateSubmitted,
		Submitter:   s.Metadata.CreatedBy.label(),
		ReportedLat: string(s.Metadata.Lat),
		ReportedLon: string(s.Metadata.Lon),
	}
	if raw.Timestamp == "" {
		raw.Timestamp = s.SubmittedAt
	}
	if raw.Submitter == "" {
		raw.Submitter = s.SubmittedBy.label()
	}

	loc := s.Metadata.Location
	if loc == nil {
		loc = s.Location
	}
	if loc != nil {
		raw.ReportedLocationKey = strings.TrimSpace(loc.Name)
		raw.ReportedLocationName = strings.TrimSpace(loc.Name)
	}

	for _, r := range s.Responses {
		q := strings.ToLower(r.Question.Name)
		switch {
		case strings.Contains(q, "sucursal") && raw.ManualLocationText == "":
			raw.ManualLocationText = strings.TrimSpace(string(r.Answer))
		case strings.Contains(q, "location") && strings.Contains(q, "map") && raw.LocationMap == "":
			raw.LocationMap = strings.TrimSpace(string(r.Answer))
		}
	}
	return raw
}
