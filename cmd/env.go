package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/supervision-reconciler/internal/catalog"
	"github.com/sells-group/supervision-reconciler/internal/config"
	"github.com/sells-group/supervision-reconciler/internal/pipeline"
	"github.com/sells-group/supervision-reconciler/internal/resilience"
	"github.com/sells-group/supervision-reconciler/internal/store"
	"github.com/sells-group/supervision-reconciler/pkg/zenput"
)

// initStore opens and migrates the configured run store. It returns nil for
// the "none" driver.
func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch sc.Driver {
	case "none":
		return nil, nil
	case "sqlite", "":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "reconciler.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, sc.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// requireStore is initStore for commands that only make sense with history.
func requireStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	st, err := initStore(ctx, sc)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("no run store configured (store.driver is none)")
	}
	return st, nil
}

func initCatalog(ctx context.Context, path string) (*catalog.Catalog, error) {
	if path == "" {
		return nil, eris.New("catalog path is required (catalog.path or --catalog)")
	}
	return catalog.LoadFile(ctx, path)
}

func initZenput(zc config.ZenputConfig) (zenput.Client, error) {
	if zc.Token == "" {
		return nil, eris.New("zenput token is required (RECONCILER_SOURCE_ZENPUT_TOKEN)")
	}
	r := zc.Retry
	return zenput.NewClient(zc.Token,
		zenput.WithBaseURL(zc.BaseURL),
		zenput.WithPageSize(zc.PageSize),
		zenput.WithRateLimit(zc.RPS),
		zenput.WithHTTPClient(&http.Client{Timeout: time.Duration(zc.TimeoutSecs) * time.Second}),
		zenput.WithBackoff(resilience.BackoffFromMillis(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction)),
	), nil
}

// initSource picks the submission source. Explicit export paths win over
// the API.
func initSource(sc config.SourceConfig, opsPath, safetyPath string, useZenput bool) (pipeline.Source, error) {
	if opsPath == "" {
		opsPath = sc.OperationalPath
	}
	if safetyPath == "" {
		safetyPath = sc.SafetyPath
	}
	if !useZenput && (opsPath != "" || safetyPath != "") {
		return pipeline.FileSource{OperationalPath: opsPath, SafetyPath: safetyPath}, nil
	}
	client, err := initZenput(sc.Zenput)
	if err != nil {
		return nil, err
	}
	return pipeline.ZenputSource{
		Client:            client,
		OperationalFormID: sc.Zenput.OperationalFormID,
		SafetyFormID:      sc.Zenput.SafetyFormID,
	}, nil
}

// parseRange reads --from/--to dates (YYYY-MM-DD, inclusive) in the
// reconcile timezone. Empty values leave that side open.
func parseRange(from, to string, loc *time.Location) (time.Time, time.Time, error) {
	var f, t time.Time
	var err error
	if from != "" {
		if f, err = time.ParseInLocation(config.DateLayout, from, loc); err != nil {
			return f, t, eris.Wrapf(err, "invalid --from %q", from)
		}
	}
	if to != "" {
		if t, err = time.ParseInLocation(config.DateLayout, to, loc); err != nil {
			return f, t, eris.Wrapf(err, "invalid --to %q", to)
		}
	}
	if !f.IsZero() && !t.IsZero() && t.Before(f) {
		return f, t, eris.Errorf("--to %s is before --from %s", to, from)
	}
	return f, t, nil
}
