package resolve

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/supervision-reconciler/internal/catalog"
	"github.com/sells-group/supervision-reconciler/internal/model"
	"github.com/sells-group/supervision-reconciler/internal/quota"
)

// Resolver runs the strategy chain over a batch in three passes:
//
//	A. exact key, manual text, geo proximity (parallel, per submission)
//	B. temporal pairing against the pass A snapshot (parallel)
//	C. deficit default in (timestamp, id) order against a running tally
//
// Whatever is left after pass C is UNRESOLVED_FINAL.
type Resolver struct {
	catalog   *catalog.Catalog
	validator *quota.Validator
	opts      Options
	direct    []Strategy
	log       *zap.Logger
}

// New validates opts and returns a Resolver.
func New(cat *catalog.Catalog, v *quota.Validator, opts Options) (*Resolver, error) {
	if cat == nil || v == nil {
		return nil, eris.Wrap(ErrInvalidOptions, "catalog and validator are required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{
		catalog:   cat,
		validator: v,
		opts:      opts,
		direct: []Strategy{
			ExactKey{Catalog: cat},
			ManualText{Catalog: cat, MinScore: opts.ManualTextMinScore, Confidence: opts.ManualTextConfidence},
			GeoProximity{Catalog: cat, MaxToleranceKM: opts.MaxToleranceKM, Tiers: opts.Tiers},
		},
		log: zap.L().With(zap.String("component", "resolver")),
	}, nil
}

// Resolve places every submission. The result is index-aligned with subs.
// It only fails when ctx is cancelled.
func (r *Resolver) Resolve(ctx context.Context, subs []model.Submission) ([]model.ResolvedSubmission, error) {
	out := make([]model.ResolvedSubmission, len(subs))
	for i, s := range subs {
		out[i] = model.ResolvedSubmission{Submission: s, Resolution: model.Unresolved()}
	}

	if err := r.parallel(ctx, out, r.direct); err != nil {
		return nil, eris.Wrap(err, "resolve: direct pass")
	}
	r.logPass("direct", out)

	snapshot := make([]model.ResolvedSubmission, len(out))
	copy(snapshot, out)
	pairing := NewTemporalPairing(r.catalog, snapshot, r.validator.Calendar().Date, r.opts.TemporalPairingConfidence)
	if err := r.parallel(ctx, out, []Strategy{pairing}); err != nil {
		return nil, eris.Wrap(err, "resolve: temporal pass")
	}
	r.logPass("temporal", out)

	if err := r.deficitPass(ctx, out); err != nil {
		return nil, eris.Wrap(err, "resolve: deficit pass")
	}
	r.logPass("deficit", out)

	return out, nil
}

// parallel applies chain to every still-unresolved slot. Each goroutine
// writes only its own slot.
func (r *Resolver) parallel(ctx context.Context, out []model.ResolvedSubmission, chain []Strategy) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for i := range out {
		if out[i].Resolution.Resolved() {
			continue
		}
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			if res, ok := apply(chain, out[i].Submission); ok {
				out[i].Resolution = res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (r *Resolver) deficitPass(ctx context.Context, out []model.ResolvedSubmission) error {
	var pending []int
	for i := range out {
		if !out[i].Resolution.Resolved() {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	sort.SliceStable(pending, func(a, b int) bool {
		sa, sb := out[pending[a]].Submission, out[pending[b]].Submission
		if !sa.SubmittedAt.Equal(sb.SubmittedAt) {
			return sa.SubmittedAt.Before(sb.SubmittedAt)
		}
		return sa.ID < sb.ID
	})

	dd := NewDeficitDefault(r.catalog, r.validator, r.validator.Count(out), r.opts.DeficitDefaultConfidence)
	for _, i := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if res, ok := dd.Resolve(out[i].Submission); ok {
			out[i].Resolution = res
			continue
		}
		r.log.Debug("submission unresolved",
			zap.String("submission_id", out[i].ID),
			zap.String("type", string(out[i].Type)),
		)
	}
	return nil
}

func apply(chain []Strategy, sub model.Submission) (model.Resolution, bool) {
	for _, s := range chain {
		if res, ok := s.Resolve(sub); ok {
			return res, true
		}
	}
	return model.Resolution{}, false
}

func (r *Resolver) logPass(pass string, out []model.ResolvedSubmission) {
	resolved := 0
	for _, rs := range out {
		if rs.Resolution.Resolved() {
			resolved++
		}
	}
	r.log.Info("resolve: pass complete",
		zap.String("pass", pass),
		zap.Int("resolved", resolved),
		zap.Int("pending", len(out)-resolved),
	)
}
