package model

import (
	"fmt"
	"strings"

	"github.com/sells-group/supervision-reconciler/internal/geo"
)

// Classification determines a store's validation cadence.
type Classification string

// Store classifications.
const (
	// ClassLocal stores sit in the core metropolitan region and are validated quarterly.
	ClassLocal Classification = "LOCAL"
	// ClassForanea stores sit outside the core region and are validated half-yearly.
	ClassForanea Classification = "FORANEA"
)

// Classifications lists every known classification in a stable order.
var Classifications = []Classification{ClassLocal, ClassForanea}

// ParseClassification normalizes s into a Classification.
// Accepts the accented spelling used by the source spreadsheets.
func ParseClassification(s string) (Classification, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOCAL":
		return ClassLocal, true
	case "FORANEA", "FORÁNEA":
		return ClassForanea, true
	default:
		return "", false
	}
}

// Quota is an expected submission count per inspection type for one period.
type Quota struct {
	Operational int `json:"operational" yaml:"operational" mapstructure:"operational"`
	Safety      int `json:"safety" yaml:"safety" mapstructure:"safety"`
}

// For returns the expected count for the given inspection type.
func (q Quota) For(t InspectionType) int {
	if t == InspectionSafety {
		return q.Safety
	}
	return q.Operational
}

// String renders the quota as "ops+safety", the notation used in field reports.
func (q Quota) String() string {
	return fmt.Sprintf("%d+%d", q.Operational, q.Safety)
}

// Store is a canonical catalog entry.
type Store struct {
	ID             int            `json:"id"`
	Key            string         `json:"key"`
	Name           string         `json:"name"`
	Aliases        []string       `json:"aliases,omitempty"`
	Classification Classification `json:"classification"`
	Group          string         `json:"group,omitempty"`
	Location       geo.Point      `json:"location"`
	QuotaOverride  *Quota         `json:"quota_override,omitempty"`
	Active         bool           `json:"active"`
}

// DefaultKey builds the "<id> - <name>" location key used by the inspection platform.
func DefaultKey(id int, name string) string {
	return fmt.Sprintf("%d - %s", id, strings.TrimSpace(name))
}
