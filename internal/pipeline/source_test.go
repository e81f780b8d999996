package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/supervision-reconciler/internal/model"
)

type fakeZenput struct {
	records map[int][]model.RawSubmission
	errs    map[int]error
}

func (f *fakeZenput) Submissions(_ context.Context, formID int, typ model.InspectionType, _, _ time.Time) ([]model.RawSubmission, error) {
	out := make([]model.RawSubmission, len(f.records[formID]))
	for i, r := range f.records[formID] {
		r.Type = string(typ)
		out[i] = r
	}
	return out, f.errs[formID]
}

func TestZenputSource_BothForms(t *testing.T) {
	z := &fakeZenput{records: map[int][]model.RawSubmission{
		1: {{ID: "o1"}, {ID: "o2"}},
		2: {{ID: "s1"}},
	}}
	src := ZenputSource{Client: z, OperationalFormID: 1, SafetyFormID: 2}

	batch, err := src.Fetch(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, batch.Records, 3)
	assert.Equal(t, "OPERATIONAL", batch.Records[0].Type)
	assert.Equal(t, "SAFETY", batch.Records[2].Type)
	assert.Empty(t, batch.Failed)
	assert.Equal(t, "zenput", src.Name())
}

func TestZenputSource_PartialStreamContinues(t *testing.T) {
	z := &fakeZenput{
		records: map[int][]model.RawSubmission{1: {{ID: "o1"}}, 2: {{ID: "s1"}, {ID: "s2"}}},
		errs:    map[int]error{2: errors.New("zenput: HTTP 503")},
	}
	batch, err := ZenputSource{Client: z, OperationalFormID: 1, SafetyFormID: 2}.Fetch(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, batch.Records, 3)
	require.Len(t, batch.Failed, 1)
	assert.Equal(t, model.FetchFailure{Type: model.InspectionSafety, Records: 2, Error: "zenput: HTTP 503"}, batch.Failed[0])
}

func TestZenputSource_FailedFormKeepsOtherForm(t *testing.T) {
	z := &fakeZenput{
		records: map[int][]model.RawSubmission{1: {{ID: "o1"}, {ID: "o2"}}},
		errs:    map[int]error{2: errors.New("zenput: HTTP 503 after retries")},
	}
	batch, err := ZenputSource{Client: z, OperationalFormID: 1, SafetyFormID: 2}.Fetch(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)
	assert.Equal(t, "o1", batch.Records[0].ID)
	require.Len(t, batch.Failed, 1)
	assert.Equal(t, model.InspectionSafety, batch.Failed[0].Type)
	assert.Zero(t, batch.Failed[0].Records)
	assert.Contains(t, batch.Failed[0].Error, "HTTP 503")
}

func TestZenputSource_AllFormsFail(t *testing.T) {
	z := &fakeZenput{errs: map[int]error{
		1: errors.New("zenput: HTTP 401"),
		2: errors.New("zenput: HTTP 401"),
	}}
	_, err := ZenputSource{Client: z, OperationalFormID: 1, SafetyFormID: 2}.Fetch(context.Background(), time.Time{}, time.Time{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDataFetch))
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestZenputSource_NoForms(t *testing.T) {
	_, err := ZenputSource{Client: &fakeZenput{}}.Fetch(context.Background(), time.Time{}, time.Time{})
	assert.True(t, eris.Is(err, ErrDataFetch))
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	ops := filepath.Join(dir, "ops.csv")
	require.NoError(t, os.WriteFile(ops, []byte(
		"Submission ID,Date Submitted,Submitted By,Location\n"+
			"a1,2026-02-10 09:00:00,ana,15 - Centro\n"+
			"a2,2026-02-10 11:00:00,luis,4 - Santa Catarina\n"), 0o644))

	batch, err := FileSource{OperationalPath: ops}.Fetch(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)
	assert.Equal(t, "OPERATIONAL", batch.Records[0].Type)
	assert.Equal(t, "15 - Centro", batch.Records[0].ReportedLocationKey)

	batch, err = FileSource{OperationalPath: ops, SafetyPath: filepath.Join(dir, "missing.csv")}.Fetch(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, batch.Records, 2)
	require.Len(t, batch.Failed, 1)
	assert.Equal(t, model.InspectionSafety, batch.Failed[0].Type)

	_, err = FileSource{SafetyPath: filepath.Join(dir, "missing.csv")}.Fetch(context.Background(), time.Time{}, time.Time{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDataFetch))

	_, err = FileSource{}.Fetch(context.Background(), time.Time{}, time.Time{})
	assert.True(t, eris.Is(err, ErrDataFetch))
}
