package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/supervision-reconciler/internal/ingest"
	"github.com/sells-group/supervision-reconciler/internal/model"
	"github.com/sells-group/supervision-reconciler/pkg/zenput"
)

// ErrDataFetch is returned when a source yields nothing usable.
var ErrDataFetch = eris.New("pipeline: data fetch failed")

// Batch is what a source delivered. Failed lists the forms that errored;
// their partial records, if any, are still in Records.
type Batch struct {
	Records []model.RawSubmission
	Failed  []model.FetchFailure
}

// Source yields the raw submissions of both inspection forms.
type Source interface {
	Name() string
	Fetch(ctx context.Context, from, to time.Time) (*Batch, error)
}

// form is one inspection form of a source.
type form struct {
	typ   model.InspectionType
	fetch func(ctx context.Context) ([]model.RawSubmission, error)
}

// fetchForms loads every form concurrently and concatenates the results in
// form order. A failing form is logged and recorded in the batch; the fetch
// fails only when every form failed and nothing came back.
func fetchForms(ctx context.Context, source string, forms []form) (*Batch, error) {
	results := make([][]model.RawSubmission, len(forms))
	errs := make([]error, len(forms))

	g, gCtx := errgroup.WithContext(ctx)
	for i, f := range forms {
		g.Go(func() error {
			results[i], errs[i] = f.fetch(gCtx)
			return nil
		})
	}
	_ = g.Wait()

	batch := &Batch{}
	var firstErr error
	for i, f := range forms {
		batch.Records = append(batch.Records, results[i]...)
		if errs[i] == nil {
			continue
		}
		zap.L().Warn("pipeline: form fetch failed, continuing with what arrived",
			zap.String("source", source),
			zap.String("type", string(f.typ)),
			zap.Int("records", len(results[i])),
			zap.Error(errs[i]),
		)
		batch.Failed = append(batch.Failed, model.FetchFailure{
			Type:    f.typ,
			Records: len(results[i]),
			Error:   errs[i].Error(),
		})
		if firstErr == nil {
			firstErr = eris.Wrapf(errs[i], "%s %s", source, f.typ)
		}
	}

	if len(batch.Failed) == len(forms) && len(batch.Records) == 0 {
		return nil, eris.Wrap(ErrDataFetch, firstErr.Error())
	}
	return batch, nil
}

// FileSource reads spreadsheet or CSV exports of the two forms. An empty
// path skips that form.
type FileSource struct {
	OperationalPath string
	SafetyPath      string
}

// Name implements Source.
func (FileSource) Name() string { return "files" }

// Fetch implements Source. Exports are already scoped to a date range, so
// from and to are ignored.
func (s FileSource) Fetch(ctx context.Context, _, _ time.Time) (*Batch, error) {
	var forms []form
	add := func(path string, typ model.InspectionType) {
		if path == "" {
			return
		}
		forms = append(forms, form{typ: typ, fetch: func(ctx context.Context) ([]model.RawSubmission, error) {
			return ingest.LoadFile(ctx, path, typ)
		}})
	}
	add(s.OperationalPath, model.InspectionOperational)
	add(s.SafetyPath, model.InspectionSafety)
	if len(forms) == 0 {
		return nil, eris.Wrap(ErrDataFetch, "no export paths configured")
	}
	return fetchForms(ctx, s.Name(), forms)
}

// ZenputSource pulls both supervision forms from the Zenput API.
type ZenputSource struct {
	Client            zenput.Client
	OperationalFormID int
	SafetyFormID      int
}

// Name implements Source.
func (ZenputSource) Name() string { return "zenput" }

// Fetch implements Source.
func (s ZenputSource) Fetch(ctx context.Context, from, to time.Time) (*Batch, error) {
	var forms []form
	add := func(formID int, typ model.InspectionType) {
		if formID == 0 {
			return
		}
		forms = append(forms, form{typ: typ, fetch: func(ctx context.Context) ([]model.RawSubmission, error) {
			return s.Client.Submissions(ctx, formID, typ, from, to)
		}})
	}
	add(s.OperationalFormID, model.InspectionOperational)
	add(s.SafetyFormID, model.InspectionSafety)
	if len(forms) == 0 {
		return nil, eris.Wrap(ErrDataFetch, "no zenput form ids configured")
	}
	return fetchForms(ctx, s.Name(), forms)
}

// StaticSource serves records already in memory.
type StaticSource struct {
	Label   string
	Records []model.RawSubmission
}

// Name implements Source.
func (s StaticSource) Name() string {
	if s.Label == "" {
		return "static"
	}
	return s.Label
}

// Fetch implements Source.
func (s StaticSource) Fetch(context.Context, time.Time, time.Time) (*Batch, error) {
	return &Batch{Records: s.Records}, nil
}
