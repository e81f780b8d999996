package redistribute

import (
	"fmt"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/supervision-reconciler/internal/catalog"
	"github.com/sells-group/supervision-reconciler/internal/geo"
	"github.com/sells-group/supervision-reconciler/internal/model"
	"github.com/sells-group/supervision-reconciler/internal/quota"
)

var (
	mty      = time.FixedZone("CST", -6*3600)
	at       = time.Date(2026, 2, 10, 10, 0, 0, 0, mty)
	locValle = geo.Point{Lat: 25.6490, Lon: -100.3560}
	locGomez = geo.Point{Lat: 25.6510, Lon: -100.3620}
)

func setup(t *testing.T) (*catalog.Catalog, *quota.Validator) {
	t.Helper()
	cat, err := catalog.New([]model.Store{
		{ID: 38, Name: "Gomez Morin", Classification: model.ClassLocal, Location: locGomez, Active: true},
		{ID: 71, Name: "Centrito Valle", Classification: model.ClassLocal, Location: locValle, Active: true},
		{ID: 80, Name: "Reynosa", Classification: model.ClassForanea, Location: geo.Point{Lat: 26.09, Lon: -98.28}, Active: true},
	})
	require.NoError(t, err)
	cal, err := quota.NewCalendar(nil, mty)
	require.NoError(t, err)
	return cat, quota.NewValidator(cat, cal, quota.DefaultPolicy())
}

func assigned(id string, store int, typ model.InspectionType, method model.Method, conf float64, p *geo.Point) model.ResolvedSubmission {
	return model.ResolvedSubmission{
		Submission: model.Submission{ID: id, Type: typ, SubmittedAt: at, Submitter: "ana", Reported: p},
		Resolution: model.Resolution{StoreID: store, Method: method, Confidence: conf},
	}
}

func safetyAt(store, n int, prefix string) []model.ResolvedSubmission {
	var out []model.ResolvedSubmission
	for i := range n {
		out = append(out, assigned(fmt.Sprintf("%s%d", prefix, i), store, model.InspectionSafety, model.MethodGeoProximity, 0.9, nil))
	}
	return out
}

func countAt(resolved []model.ResolvedSubmission, store int, typ model.InspectionType) int {
	n := 0
	for _, rs := range resolved {
		if rs.Resolution.StoreID == store && rs.Type == typ {
			n++
		}
	}
	return n
}

func TestApply_ScenarioA(t *testing.T) {
	cat, v := setup(t)
	e, err := NewEngine(cat, v, []Pair{{Source: 71, Target: 38}})
	require.NoError(t, err)

	in := append(safetyAt(71, 5, "x"), safetyAt(38, 3, "y")...)
	out, moves := e.Apply(in)

	require.Len(t, moves, 1)
	assert.Equal(t, 71, moves[0].From)
	assert.Equal(t, 38, moves[0].To)
	assert.Equal(t, "2026-Q1", moves[0].Period)
	assert.Equal(t, model.Method("GEO_PROXIMITY_REDISTRIBUTED"), moves[0].Method)

	idx := quota.Index(v.Validate(out))
	x := idx[quota.Key{StoreID: 71, Period: "2026-Q1", Type: model.InspectionSafety}]
	y := idx[quota.Key{StoreID: 38, Period: "2026-Q1", Type: model.InspectionSafety}]
	assert.Equal(t, 4, x.Actual)
	assert.Equal(t, model.StatusCompliant, x.Status)
	assert.Equal(t, 4, y.Actual)
	assert.Equal(t, model.StatusCompliant, y.Status)

	// Conservation: same submissions, same pair total.
	require.Len(t, out, len(in))
	assert.Equal(t, countAt(in, 71, model.InspectionSafety)+countAt(in, 38, model.InspectionSafety),
		countAt(out, 71, model.InspectionSafety)+countAt(out, 38, model.InspectionSafety))

	// The input is untouched.
	assert.Equal(t, 5, countAt(in, 71, model.InspectionSafety))
	for _, rs := range in {
		assert.False(t, rs.Resolution.Method.IsRedistributed())
	}
}

func TestApply_MovesAtMostTheSmallerGap(t *testing.T) {
	cat, v := setup(t)
	e, err := NewEngine(cat, v, []Pair{{Source: 71, Target: 38}})
	require.NoError(t, err)

	// Excess 3 at the source, deficit 1 at the target.
	in := append(safetyAt(71, 7, "x"), safetyAt(38, 3, "y")...)
	out, moves := e.Apply(in)
	assert.Len(t, moves, 1)
	assert.Equal(t, 6, countAt(out, 71, model.InspectionSafety))
	assert.Equal(t, 4, countAt(out, 38, model.InspectionSafety))
}

func TestApply_NoMoveWithoutExcessAndDeficit(t *testing.T) {
	cat, v := setup(t)
	e, err := NewEngine(cat, v, []Pair{{Source: 71, Target: 38}})
	require.NoError(t, err)

	tests := []struct {
		name     string
		src, tgt int
	}{
		{"source compliant", 4, 2},
		{"target compliant", 6, 4},
		{"target excess", 6, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append(safetyAt(71, tt.src, "x"), safetyAt(38, tt.tgt, "y")...)
			out, moves := e.Apply(in)
			assert.Empty(t, moves)
			assert.Equal(t, in, out)
		})
	}
}

func TestApply_PerInspectionType(t *testing.T) {
	cat, v := setup(t)
	e, err := NewEngine(cat, v, []Pair{{Source: 71, Target: 38}})
	require.NoError(t, err)

	in := safetyAt(71, 5, "s")
	for i := range 3 {
		in = append(in, assigned(fmt.Sprintf("o%d", i), 38, model.InspectionOperational, model.MethodExact, 1, nil))
	}
	// Operational at 71 is a deficit, not an excess, so only safety moves.
	_, moves := e.Apply(in)
	require.Len(t, moves, 1)
	assert.Equal(t, model.InspectionSafety, moves[0].Type)
}

func TestApply_CandidateOrder(t *testing.T) {
	cat, v := setup(t)
	e, err := NewEngine(cat, v, []Pair{{Source: 71, Target: 38}})
	require.NoError(t, err)

	far := &geo.Point{Lat: locGomez.Lat + 0.02, Lon: locGomez.Lon}
	near := &geo.Point{Lat: locGomez.Lat + 0.001, Lon: locGomez.Lon}

	in := []model.ResolvedSubmission{
		assigned("a-exact", 71, model.InspectionSafety, model.MethodExact, 1.0, nil),
		assigned("b-geo-near", 71, model.InspectionSafety, model.MethodGeoProximity, 0.7, near),
		assigned("c-geo-far", 71, model.InspectionSafety, model.MethodGeoProximity, 0.7, far),
		assigned("d-geo-unknown", 71, model.InspectionSafety, model.MethodTemporalPairing, 0.7, nil),
		assigned("e-deficit", 71, model.InspectionSafety, model.MethodDeficitDefault, 0.6, nil),
		assigned("f-deficit", 71, model.InspectionSafety, model.MethodDeficitDefault, 0.6, nil),
		assigned("g-text", 71, model.InspectionSafety, model.MethodManualText, 0.8, nil),
	}
	// Excess 3 at 71, deficit 4 at 38: three moves.
	_, moves := e.Apply(in)
	require.Len(t, moves, 3)
	assert.Equal(t, "e-deficit", moves[0].SubmissionID)
	assert.Equal(t, "f-deficit", moves[1].SubmissionID)
	assert.Equal(t, "d-geo-unknown", moves[2].SubmissionID, "unknown distance sorts before the far one")

	in[3].Reported = near
	in[4].Resolution.Confidence = 0.9
	in[5].Resolution.Confidence = 0.9
	_, moves = e.Apply(in)
	require.Len(t, moves, 3)
	assert.Equal(t, "c-geo-far", moves[0].SubmissionID)
	require.NotNil(t, moves[0].TargetKM)
	assert.Equal(t, "b-geo-near", moves[1].SubmissionID, "tie on distance falls back to id")
	assert.Equal(t, "d-geo-unknown", moves[2].SubmissionID)
}

func TestApply_AlreadyRedistributedNotMovedAgain(t *testing.T) {
	cat, v := setup(t)
	e, err := NewEngine(cat, v, []Pair{{Source: 71, Target: 38}})
	require.NoError(t, err)

	var in []model.ResolvedSubmission
	for i := range 5 {
		in = append(in, assigned(fmt.Sprintf("r%d", i), 71, model.InspectionSafety, model.MethodGeoProximity.Redistributed(), 0.5, nil))
	}
	in = append(in, assigned("plain", 71, model.InspectionSafety, model.MethodGeoProximity, 0.9, nil))
	in = append(in, safetyAt(38, 2, "y")...)

	_, moves := e.Apply(in)
	require.Len(t, moves, 1)
	assert.Equal(t, "plain", moves[0].SubmissionID)
}

func TestApply_PairsRunOnceInOrder(t *testing.T) {
	cat, v := setup(t)
	e, err := NewEngine(cat, v, []Pair{{Source: 71, Target: 38}, {Source: 38, Target: 71}})
	require.NoError(t, err)

	in := append(safetyAt(71, 6, "x"), safetyAt(38, 3, "y")...)
	out, moves := e.Apply(in)
	require.Len(t, moves, 1)
	assert.Equal(t, 5, countAt(out, 71, model.InspectionSafety))
	assert.Equal(t, 4, countAt(out, 38, model.InspectionSafety))
}

func TestApply_UnresolvedIgnored(t *testing.T) {
	cat, v := setup(t)
	e, err := NewEngine(cat, v, []Pair{{Source: 71, Target: 38}})
	require.NoError(t, err)

	in := append(safetyAt(71, 5, "x"), model.ResolvedSubmission{
		Submission: model.Submission{ID: "u", Type: model.InspectionSafety, SubmittedAt: at},
		Resolution: model.Unresolved(),
	})
	out, moves := e.Apply(in)
	require.Len(t, moves, 1)
	assert.Equal(t, model.MethodUnresolved, out[len(out)-1].Resolution.Method)
}

func TestNewEngine_InvalidPairs(t *testing.T) {
	cat, v := setup(t)
	tests := []struct {
		name string
		pair Pair
	}{
		{"same store", Pair{Source: 71, Target: 71}},
		{"unknown source", Pair{Source: 1, Target: 38}},
		{"unknown target", Pair{Source: 71, Target: 2}},
		{"classification mismatch", Pair{Source: 71, Target: 80}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(cat, v, []Pair{tt.pair})
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrInvalidPair))
		})
	}
}
