package quota

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/supervision-reconciler/internal/catalog"
	"github.com/sells-group/supervision-reconciler/internal/geo"
	"github.com/sells-group/supervision-reconciler/internal/model"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]model.Store{
		{ID: 1, Name: "Pino Suarez", Classification: model.ClassLocal, Location: geo.Point{Lat: 25.672, Lon: -100.309}, QuotaOverride: &model.Quota{Operational: 3, Safety: 3}, Active: true},
		{ID: 38, Name: "Gomez Morin", Classification: model.ClassLocal, Location: geo.Point{Lat: 25.651, Lon: -100.362}, Active: true},
		{ID: 80, Name: "Reynosa", Classification: model.ClassForanea, Location: geo.Point{Lat: 26.092, Lon: -98.277}, Active: true},
		{ID: 81, Name: "Nueva Apertura", Classification: model.ClassLocal, Location: geo.Point{Lat: 25.7, Lon: -100.2}, Active: false},
	})
	require.NoError(t, err)
	return c
}

func resolvedAt(id string, store int, typ model.InspectionType, at time.Time) model.ResolvedSubmission {
	return model.ResolvedSubmission{
		Submission: model.Submission{ID: id, Type: typ, SubmittedAt: at, Submitter: "ana"},
		Resolution: model.Resolution{StoreID: store, Method: model.MethodExact, Confidence: 1},
	}
}

func TestPolicy_Expected(t *testing.T) {
	c := testCatalog(t)
	pol := DefaultPolicy()

	s1, _ := c.ByID(1)
	s38, _ := c.ByID(38)
	s80, _ := c.ByID(80)
	assert.Equal(t, model.Quota{Operational: 3, Safety: 3}, pol.Expected(s1), "catalog override")
	assert.Equal(t, model.Quota{Operational: 4, Safety: 4}, pol.Expected(s38))
	assert.Equal(t, model.Quota{Operational: 2, Safety: 2}, pol.Expected(s80))

	pol.Overrides = map[int]model.Quota{1: {Operational: 5, Safety: 5}}
	assert.Equal(t, model.Quota{Operational: 5, Safety: 5}, pol.Expected(s1), "configured override wins")
}

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	pol := DefaultPolicy()
	pol.Overrides = map[int]model.Quota{9: {Operational: -1}}
	err := pol.Validate()
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidPolicy))

	pol = DefaultPolicy()
	pol.Foranea.Safety = -2
	assert.Error(t, pol.Validate())
}

func TestValidate_Records(t *testing.T) {
	c := testCatalog(t)
	cal, err := NewCalendar(nil, mty)
	require.NoError(t, err)

	q1 := time.Date(2026, 2, 10, 10, 0, 0, 0, mty)
	var resolved []model.ResolvedSubmission
	for i := range 5 {
		resolved = append(resolved, resolvedAt(fmt.Sprintf("s%d", i), 38, model.InspectionSafety, q1))
	}
	resolved = append(resolved,
		resolvedAt("o1", 1, model.InspectionOperational, q1),
		resolvedAt("f1", 80, model.InspectionOperational, q1),
		resolvedAt("in1", 81, model.InspectionOperational, q1),
		model.ResolvedSubmission{
			Submission: model.Submission{ID: "u1", Type: model.InspectionSafety, SubmittedAt: q1},
			Resolution: model.Unresolved(),
		},
	)

	records := Validate(resolved, c, cal, DefaultPolicy())

	// 2 local active stores x 4 quarters x 2 types + 1 foranea x 2 halves x 2 types.
	require.Len(t, records, 2*4*2+2*2)
	for _, r := range records {
		assert.NotEqual(t, 81, r.StoreID, "inactive stores are not validated")
	}

	idx := Index(records)
	r := idx[Key{StoreID: 38, Period: "2026-Q1", Type: model.InspectionSafety}]
	assert.Equal(t, 5, r.Actual)
	assert.Equal(t, 4, r.Expected)
	assert.Equal(t, model.StatusExcess, r.Status)

	r = idx[Key{StoreID: 1, Period: "2026-Q1", Type: model.InspectionOperational}]
	assert.Equal(t, 1, r.Actual)
	assert.Equal(t, 3, r.Expected)
	assert.Equal(t, model.StatusDeficit, r.Status)

	r = idx[Key{StoreID: 80, Period: "2026-H1", Type: model.InspectionSafety}]
	assert.Equal(t, 0, r.Actual)
	assert.Equal(t, model.StatusDeficit, r.Status, "zero-count period is a deficit")

	// Ordered by store, period start, type.
	assert.Equal(t, 1, records[0].StoreID)
	assert.Equal(t, "2026-Q1", records[0].Period)
	assert.Equal(t, model.InspectionOperational, records[0].InspectionType)
	assert.Equal(t, model.InspectionSafety, records[1].InspectionType)
	assert.Equal(t, "2026-Q2", records[2].Period)
	assert.Equal(t, 80, records[len(records)-1].StoreID)
}

func TestValidate_Idempotent(t *testing.T) {
	c := testCatalog(t)
	cal, err := NewCalendar(nil, mty)
	require.NoError(t, err)

	at := time.Date(2026, 8, 1, 10, 0, 0, 0, mty)
	resolved := []model.ResolvedSubmission{
		resolvedAt("a", 38, model.InspectionOperational, at),
		resolvedAt("b", 38, model.InspectionSafety, at),
		resolvedAt("c", 80, model.InspectionSafety, at),
	}
	first := Validate(resolved, c, cal, DefaultPolicy())
	second := Validate(resolved, c, cal, DefaultPolicy())
	assert.Equal(t, first, second)
}

func TestValidate_OutOfPeriodNotCounted(t *testing.T) {
	c := testCatalog(t)
	cal, err := NewCalendar(periods2025(), mty)
	require.NoError(t, err)

	resolved := []model.ResolvedSubmission{
		resolvedAt("gap", 38, model.InspectionSafety, time.Date(2025, 5, 1, 10, 0, 0, 0, mty)),
		resolvedAt("in", 38, model.InspectionSafety, time.Date(2025, 3, 20, 10, 0, 0, 0, mty)),
	}
	idx := Index(Validate(resolved, c, cal, DefaultPolicy()))
	assert.Equal(t, 1, idx[Key{StoreID: 38, Period: "NL-T1-2025", Type: model.InspectionSafety}].Actual)
	assert.Equal(t, 0, idx[Key{StoreID: 38, Period: "NL-T2-2025", Type: model.InspectionSafety}].Actual)
}

func TestValidator_Bucket(t *testing.T) {
	c := testCatalog(t)
	cal, err := NewCalendar(nil, mty)
	require.NoError(t, err)
	v := NewValidator(c, cal, DefaultPolicy())
	at := time.Date(2026, 8, 1, 10, 0, 0, 0, mty)

	k, ok := v.Bucket(80, model.InspectionSafety, at)
	require.True(t, ok)
	assert.Equal(t, Key{StoreID: 80, Period: "2026-H2", Type: model.InspectionSafety}, k)
	assert.Equal(t, 2, v.Expected(k))

	_, ok = v.Bucket(81, model.InspectionSafety, at)
	assert.False(t, ok, "inactive")
	_, ok = v.Bucket(999, model.InspectionSafety, at)
	assert.False(t, ok, "unknown")
}

func TestTally_Concurrent(t *testing.T) {
	tally := NewTally()
	k := Key{StoreID: 1, Period: "2026-Q1", Type: model.InspectionSafety}

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tally.Add(k, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, tally.Count(k))
	tally.Add(Key{StoreID: 2}, 0)
	assert.Len(t, tally.Snapshot(), 1)
}
