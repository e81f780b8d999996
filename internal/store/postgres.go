package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/supervision-reconciler/internal/db"
	"github.com/sells-group/supervision-reconciler/internal/geo"
	"github.com/sells-group/supervision-reconciler/internal/model"
)

// PostgresStore implements Store using pgxpool. Store locations are kept as
// PostGIS points so they can be joined against other spatial data.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	source      TEXT NOT NULL,
	summary     JSONB,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS stores (
	id             INTEGER PRIMARY KEY,
	key            TEXT NOT NULL,
	name           TEXT NOT NULL,
	classification TEXT NOT NULL,
	grp            TEXT,
	location       geometry(Point, 4326) NOT NULL,
	active         BOOLEAN NOT NULL DEFAULT true,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS assignments (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	submission_id   TEXT NOT NULL,
	inspection_type TEXT NOT NULL,
	submitted_at    TIMESTAMPTZ NOT NULL,
	submitter       TEXT NOT NULL,
	store_id        INTEGER,
	method          TEXT NOT NULL,
	confidence      DOUBLE PRECISION NOT NULL,
	distance_km     DOUBLE PRECISION,
	needs_review    BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (run_id, inspection_type, submission_id)
);

CREATE TABLE IF NOT EXISTS compliance (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	seq             INTEGER NOT NULL,
	store_id        INTEGER NOT NULL,
	period          TEXT NOT NULL,
	inspection_type TEXT NOT NULL,
	actual          INTEGER NOT NULL,
	expected        INTEGER NOT NULL,
	status          TEXT NOT NULL,
	PRIMARY KEY (run_id, store_id, period, inspection_type)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_stores_location ON stores USING GIST (location);
CREATE INDEX IF NOT EXISTS idx_assignments_review ON assignments(run_id) WHERE needs_review;
CREATE INDEX IF NOT EXISTS idx_compliance_status ON compliance(run_id, status);
`

var (
	assignmentCopyColumns = []string{
		"run_id", "submission_id", "inspection_type", "submitted_at", "submitter",
		"store_id", "method", "confidence", "distance_km", "needs_review",
	}
	complianceCopyColumns = []string{
		"run_id", "seq", "store_id", "period", "inspection_type", "actual", "expected", "status",
	}
	storeUpsert = db.UpsertConfig{
		Table:        "stores",
		Columns:      []string{"id", "key", "name", "classification", "grp", "location", "active", "updated_at"},
		ConflictKeys: []string{"id"},
	}
)

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, source string) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Status:    model.RunStatusRunning,
		Source:    source,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, source, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Status), run.Source, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run model.Run, assignments []model.Assignment, records []model.ComplianceRecord) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE runs SET status = $1, summary = $2, error = $3, finished_at = $4 WHERE id = $5`,
		string(run.Status), summary, nullString(run.Error), run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", run.ID)
	}

	aRows := make([][]any, len(assignments))
	for i, a := range assignments {
		aRows[i] = []any{
			run.ID, a.SubmissionID, string(a.Type), a.SubmittedAt.UTC(), a.Submitter,
			nullInt(a.StoreID), string(a.Method), a.Confidence, a.DistanceKM, a.NeedsReview,
		}
	}
	if _, err := db.CopyFrom(ctx, tx, "assignments", assignmentCopyColumns, aRows); err != nil {
		return eris.Wrap(err, "postgres: save assignments")
	}

	cRows := make([][]any, len(records))
	for i, r := range records {
		cRows[i] = []any{
			run.ID, i, r.StoreID, r.Period, string(r.InspectionType), r.Actual, r.Expected, string(r.Status),
		}
	}
	if _, err := db.CopyFrom(ctx, tx, "compliance", complianceCopyColumns, cRows); err != nil {
		return eris.Wrap(err, "postgres: save compliance")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit run")
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, runID)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, listLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs")
}

func (s *PostgresStore) ListAssignments(ctx context.Context, runID string) ([]model.Assignment, error) {
	return s.queryAssignments(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE run_id = $1 ORDER BY submitted_at, submission_id`, runID)
}

func (s *PostgresStore) ListReview(ctx context.Context, runID string) ([]model.Assignment, error) {
	return s.queryAssignments(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE run_id = $1 AND needs_review ORDER BY submitted_at, submission_id`, runID)
}

func (s *PostgresStore) queryAssignments(ctx context.Context, query, runID string) ([]model.Assignment, error) {
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list assignments %s", runID)
	}
	defer rows.Close()

	var out []model.Assignment
	for rows.Next() {
		var (
			a       model.Assignment
			typ     string
			method  string
			storeID *int
		)
		if err := rows.Scan(&a.SubmissionID, &typ, &a.SubmittedAt, &a.Submitter, &storeID, &method, &a.Confidence, &a.DistanceKM, &a.NeedsReview); err != nil {
			return nil, eris.Wrap(err, "postgres: scan assignment")
		}
		a.Type = model.InspectionType(typ)
		a.Method = model.Method(method)
		if storeID != nil {
			a.StoreID = *storeID
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list assignments")
}

func (s *PostgresStore) ListCompliance(ctx context.Context, runID string, status model.ComplianceStatus) ([]model.ComplianceRecord, error) {
	query := `SELECT store_id, period, inspection_type, actual, expected, status FROM compliance WHERE run_id = $1`
	args := []any{runID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY seq`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list compliance %s", runID)
	}
	defer rows.Close()

	var out []model.ComplianceRecord
	for rows.Next() {
		var r model.ComplianceRecord
		var typ, st string
		if err := rows.Scan(&r.StoreID, &r.Period, &typ, &r.Actual, &r.Expected, &st); err != nil {
			return nil, eris.Wrap(err, "postgres: scan compliance")
		}
		r.InspectionType = model.InspectionType(typ)
		r.Status = model.ComplianceStatus(st)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list compliance")
}

// UpsertStores mirrors the catalog into the stores table. Locations are
// written as EWKB points.
func (s *PostgresStore) UpsertStores(ctx context.Context, stores []model.Store) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(stores))
	for _, st := range stores {
		loc, err := geo.EncodeEWKB(st.Location)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: store %d location", st.ID)
		}
		rows = append(rows, []any{st.ID, st.Key, st.Name, string(st.Classification), nullString(st.Group), loc, st.Active, now})
	}
	n, err := db.BulkUpsert(ctx, s.pool, storeUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert stores")
	}
	return n, nil
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var (
		r       model.Run
		status  string
		summary []byte
		errMsg  *string
	)
	if err := row.Scan(&r.ID, &status, &r.Source, &summary, &errMsg, &r.StartedAt, &r.FinishedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if errMsg != nil {
		r.Error = *errMsg
	}
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &r, nil
}
