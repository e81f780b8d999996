package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/supervision-reconciler/internal/geo"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		in   string
		want Classification
		ok   bool
	}{
		{"LOCAL", ClassLocal, true},
		{" local ", ClassLocal, true},
		{"Foránea", ClassForanea, true},
		{"FORANEA", ClassForanea, true},
		{"regional", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseClassification(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInspectionType(t *testing.T) {
	got, ok := ParseInspectionType("seguridad")
	assert.True(t, ok)
	assert.Equal(t, InspectionSafety, got)

	got, ok = ParseInspectionType("Operativa")
	assert.True(t, ok)
	assert.Equal(t, InspectionOperational, got)

	_, ok = ParseInspectionType("apertura")
	assert.False(t, ok)

	assert.Equal(t, InspectionSafety, InspectionOperational.Other())
	assert.Equal(t, InspectionOperational, InspectionSafety.Other())
}

func TestMethodRedistributed(t *testing.T) {
	m := MethodGeoProximity.Redistributed()
	assert.Equal(t, Method("GEO_PROXIMITY_REDISTRIBUTED"), m)
	assert.True(t, m.IsRedistributed())
	assert.Equal(t, MethodGeoProximity, m.Base())
	assert.Equal(t, m, m.Redistributed(), "suffix is applied once")
	assert.True(t, m.DirectEvidence())
	assert.False(t, MethodTemporalPairing.DirectEvidence())
	assert.False(t, MethodDeficitDefault.DirectEvidence())
}

func TestResolutionResolved(t *testing.T) {
	assert.False(t, Unresolved().Resolved())
	assert.True(t, Unresolved().NeedsReview)
	assert.True(t, Resolution{StoreID: 4, Method: MethodExact, Confidence: 1}.Resolved())
}

func TestQuota(t *testing.T) {
	q := Quota{Operational: 3, Safety: 4}
	assert.Equal(t, 3, q.For(InspectionOperational))
	assert.Equal(t, 4, q.For(InspectionSafety))
	assert.Equal(t, "3+4", q.String())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusDeficit, StatusFor(3, 4))
	assert.Equal(t, StatusCompliant, StatusFor(4, 4))
	assert.Equal(t, StatusExcess, StatusFor(5, 4))
	assert.Equal(t, -1, ComplianceRecord{Actual: 5, Expected: 4}.Gap())
}

func TestPeriodContains(t *testing.T) {
	p := Period{
		Name:  "NL-T1-2025",
		Start: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 4, 16, 0, 0, 0, 0, time.UTC),
	}
	mty := time.FixedZone("CST", -6*3600)

	assert.True(t, p.Contains(time.Date(2025, 3, 12, 0, 5, 0, 0, mty)))
	assert.True(t, p.Contains(time.Date(2025, 4, 16, 23, 59, 0, 0, mty)), "end date is inclusive")
	assert.False(t, p.Contains(time.Date(2025, 4, 17, 0, 0, 0, 0, mty)))
	assert.False(t, p.Contains(time.Date(2025, 3, 11, 23, 0, 0, 0, mty)))
}

func TestSubmissionHasCoordinates(t *testing.T) {
	assert.False(t, Submission{}.HasCoordinates())
	assert.False(t, Submission{Reported: &geo.Point{}}.HasCoordinates())
	assert.True(t, Submission{Reported: &geo.Point{Lat: 25.6, Lon: -100.3}}.HasCoordinates())
	assert.Equal(t, "4 - Santa Catarina", DefaultKey(4, " Santa Catarina "))
}
