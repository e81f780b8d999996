// Package pipeline wires the catalog, resolver, quota validator and
// redistribution engine into a single reconciliation run.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/supervision-reconciler/internal/catalog"
	"github.com/sells-group/supervision-reconciler/internal/config"
	"github.com/sells-group/supervision-reconciler/internal/ingest"
	"github.com/sells-group/supervision-reconciler/internal/model"
	"github.com/sells-group/supervision-reconciler/internal/quota"
	"github.com/sells-group/supervision-reconciler/internal/redistribute"
	"github.com/sells-group/supervision-reconciler/internal/report"
	"github.com/sells-group/supervision-reconciler/internal/resolve"
	"github.com/sells-group/supervision-reconciler/internal/store"
)

// Outcome is the in-memory result of reconciling one batch.
type Outcome struct {
	Resolved   []model.ResolvedSubmission
	Compliance []model.ComplianceRecord
	Moves      []redistribute.Move
	Excluded   []*ingest.ParseError
}

// Pipeline reconciles batches of submissions against one catalog.
type Pipeline struct {
	catalog   *catalog.Catalog
	validator *quota.Validator
	resolver  *resolve.Resolver
	engine    *redistribute.Engine
	loc       *time.Location
	store     store.Store
}

// New builds the pipeline components from cfg. st may be nil, in which case
// runs are not persisted.
func New(cfg config.ReconcileConfig, cat *catalog.Catalog, st store.Store) (*Pipeline, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	periods, err := cfg.PeriodDefs()
	if err != nil {
		return nil, err
	}
	cal, err := quota.NewCalendar(periods, loc)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: calendar")
	}

	pol, err := Policy(cfg)
	if err != nil {
		return nil, err
	}
	v := quota.NewValidator(cat, cal, pol)

	r, err := resolve.New(cat, v, ResolveOptions(cfg))
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: resolver")
	}
	e, err := redistribute.NewEngine(cat, v, Pairs(cfg))
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: redistribution")
	}

	return &Pipeline{
		catalog:   cat,
		validator: v,
		resolver:  r,
		engine:    e,
		loc:       loc,
		store:     st,
	}, nil
}

// ResolveOptions maps the reconcile config onto resolver options.
func ResolveOptions(cfg config.ReconcileConfig) resolve.Options {
	tiers := make([]resolve.ConfidenceTier, len(cfg.ConfidenceTiers))
	for i, t := range cfg.ConfidenceTiers {
		tiers[i] = resolve.ConfidenceTier{RadiusKM: t.RadiusKM, Confidence: t.Confidence}
	}
	return resolve.Options{
		MaxToleranceKM:            cfg.MaxToleranceKM,
		Tiers:                     tiers,
		ManualTextConfidence:      cfg.ManualTextConfidence,
		ManualTextMinScore:        cfg.ManualTextMinScore,
		TemporalPairingConfidence: cfg.TemporalPairingConfidence,
		DeficitDefaultConfidence:  cfg.DeficitDefaultConfidence,
		Workers:                   cfg.Workers,
	}
}

// Policy maps the reconcile config onto a quota policy.
func Policy(cfg config.ReconcileConfig) (quota.Policy, error) {
	overrides, err := cfg.Overrides()
	if err != nil {
		return quota.Policy{}, err
	}
	pol := quota.Policy{
		Local:     cfg.QuotaLocal.Quota(),
		Foranea:   cfg.QuotaForanea.Quota(),
		Overrides: overrides,
	}
	if err := pol.Validate(); err != nil {
		return quota.Policy{}, err
	}
	return pol, nil
}

// Pairs maps the configured redistribution pairs.
func Pairs(cfg config.ReconcileConfig) []redistribute.Pair {
	pairs := make([]redistribute.Pair, len(cfg.RedistributionPairs))
	for i, p := range cfg.RedistributionPairs {
		pairs[i] = redistribute.Pair{Source: p.Source, Target: p.Target}
	}
	return pairs
}

// Reconcile parses, resolves, validates and redistributes raws. Records that
// fail to parse are excluded with a reason; nothing else is dropped.
func (p *Pipeline) Reconcile(ctx context.Context, raws []model.RawSubmission) (*Outcome, error) {
	log := zap.L().With(zap.String("component", "pipeline"))

	subs, excluded := ingest.ParseAll(raws, p.loc)
	for _, e := range excluded {
		log.Debug("pipeline: submission excluded", zap.String("reason", e.Error()))
	}

	resolved, err := p.resolver.Resolve(ctx, subs)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: resolve")
	}

	before := p.validator.Validate(resolved)
	adjusted, moves := p.engine.Apply(resolved)
	after := p.validator.Validate(adjusted)

	log.Info("pipeline: reconciled",
		zap.Int("raw", len(raws)),
		zap.Int("excluded", len(excluded)),
		zap.Int("moves", len(moves)),
		zap.Int("deficits_before", countStatus(before, model.StatusDeficit)),
		zap.Int("deficits_after", countStatus(after, model.StatusDeficit)),
	)

	return &Outcome{
		Resolved:   adjusted,
		Compliance: after,
		Moves:      moves,
		Excluded:   excluded,
	}, nil
}

func countStatus(records []model.ComplianceRecord, status model.ComplianceStatus) int {
	n := 0
	for _, r := range records {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Result is a finished run.
type Result struct {
	Run    model.Run
	Report *report.Report
}

// Run fetches from src, reconciles and records the run. A failed run is
// still persisted with its error.
func (p *Pipeline) Run(ctx context.Context, src Source, from, to time.Time) (*Result, error) {
	run, err := p.startRun(ctx, src.Name())
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("source", src.Name()))
	log.Info("pipeline: run started")

	fail := func(cause error) (*Result, error) {
		run.Status = model.RunStatusFailed
		run.Error = cause.Error()
		now := time.Now().UTC()
		run.FinishedAt = &now
		if p.store != nil {
			if err := p.store.SaveRun(ctx, *run, nil, nil); err != nil {
				log.Warn("pipeline: failed to record failed run", zap.Error(err))
			}
		}
		log.Error("pipeline: run failed", zap.Error(cause))
		return &Result{Run: *run}, cause
	}

	batch, err := src.Fetch(ctx, from, to)
	if err != nil {
		return fail(err)
	}
	out, err := p.Reconcile(ctx, batch.Records)
	if err != nil {
		return fail(err)
	}

	now := time.Now().UTC()
	rep := report.Build(report.Input{
		RunID:       run.ID,
		GeneratedAt: now,
		Catalog:     p.catalog,
		Resolved:    out.Resolved,
		Compliance:  out.Compliance,
		Moves:       out.Moves,
		Excluded:    out.Excluded,
		Failed:      batch.Failed,
	})
	run.Status = model.RunStatusComplete
	run.Summary = rep.Summary
	run.FinishedAt = &now

	if p.store != nil {
		if err := p.store.SaveRun(ctx, *run, rep.Assignments, out.Compliance); err != nil {
			return &Result{Run: *run, Report: rep}, eris.Wrap(err, "pipeline: save run")
		}
	}

	log.Info("pipeline: run complete",
		zap.Int("total", rep.Summary.Total),
		zap.Int("resolved", rep.Summary.Resolved),
		zap.Int("unresolved", rep.Summary.Unresolved),
		zap.Int("redistributed", rep.Summary.Redistributed),
		zap.Int("needs_review", rep.Summary.NeedsReview),
		zap.Int("failed_forms", len(batch.Failed)),
		zap.Duration("elapsed", now.Sub(run.StartedAt)),
	)
	return &Result{Run: *run, Report: rep}, nil
}

func (p *Pipeline) startRun(ctx context.Context, source string) (*model.Run, error) {
	if p.store == nil {
		return &model.Run{
			ID:        uuid.New().String(),
			Status:    model.RunStatusRunning,
			Source:    source,
			StartedAt: time.Now().UTC(),
		}, nil
	}
	run, err := p.store.CreateRun(ctx, source)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	return run, nil
}
