package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/supervision-reconciler/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	source      TEXT NOT NULL,
	summary     TEXT,
	error       TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS stores (
	id             INTEGER PRIMARY KEY,
	key            TEXT NOT NULL,
	name           TEXT NOT NULL,
	classification TEXT NOT NULL,
	grp            TEXT,
	lat            REAL NOT NULL,
	lon            REAL NOT NULL,
	active         INTEGER NOT NULL DEFAULT 1,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS assignments (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	submission_id   TEXT NOT NULL,
	inspection_type TEXT NOT NULL,
	submitted_at    DATETIME NOT NULL,
	submitter       TEXT NOT NULL,
	store_id        INTEGER,
	method          TEXT NOT NULL,
	confidence      REAL NOT NULL,
	distance_km     REAL,
	needs_review    INTEGER NOT NULL DEFAULT 0,
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
CREATE INDEX IF NOT EXISTS idx_assignments_review ON assignments(run_id, needs_review);
CREATE INDEX IF NOT EXISTS idx_compliance_status ON compliance(run_id, status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, source string) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Status:    model.RunStatusRunning,
		Source:    source,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, source, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Status), run.Source, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.Run, assignments []model.Assignment, records []model.ComplianceRecord) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), string(summary), nullString(run.Error), run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run %s", run.ID)
	}
	if err := checkRowsAffected(res, run.ID); err != nil {
		return err
	}

	if err := insertAssignments(ctx, tx, run.ID, assignments); err != nil {
		return err
	}
	if err := insertCompliance(ctx, tx, run.ID, records); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit run")
}

func insertAssignments(ctx context.Context, tx *sql.Tx, runID string, assignments []model.Assignment) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO assignments
		(run_id, submission_id, inspection_type, submitted_at, submitter, store_id, method, confidence, distance_km, needs_review)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare assignments")
	}
	defer stmt.Close()

	for _, a := range assignments {
		if _, err := stmt.ExecContext(ctx,
			runID, a.SubmissionID, string(a.Type), a.SubmittedAt.UTC(), a.Submitter,
			nullInt(a.StoreID), string(a.Method), a.Confidence, a.DistanceKM, a.NeedsReview,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert assignment %s", a.SubmissionID)
		}
	}
	return nil
}

func insertCompliance(ctx context.Context, tx *sql.Tx, runID string, records []model.ComplianceRecord) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO compliance
		(run_id, seq, store_id, period, inspection_type, actual, expected, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare compliance")
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx,
			runID, i, r.StoreID, r.Period, string(r.InspectionType), r.Actual, r.Expected, string(r.Status),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert compliance %d/%s", r.StoreID, r.Period)
		}
	}
	return nil
}

const runColumns = `id, status, source, summary, error, started_at, finished_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, listLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs")
}

const assignmentColumns = `submission_id, inspection_type, submitted_at, submitter, store_id, method, confidence, distance_km, needs_review`

func (s *SQLiteStore) ListAssignments(ctx context.Context, runID string) ([]model.Assignment, error) {
	return s.queryAssignments(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE run_id = ? ORDER BY submitted_at, submission_id`, runID)
}

func (s *SQLiteStore) ListReview(ctx context.Context, runID string) ([]model.Assignment, error) {
	return s.queryAssignments(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE run_id = ? AND needs_review = 1 ORDER BY submitted_at, submission_id`, runID)
}

func (s *SQLiteStore) queryAssignments(ctx context.Context, query, runID string) ([]model.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list assignments %s", runID)
	}
	defer rows.Close()

	var out []model.Assignment
	for rows.Next() {
		var (
			a        model.Assignment
			typ      string
			method   string
			storeID  sql.NullInt64
			distance sql.NullFloat64
		)
		if err := rows.Scan(&a.SubmissionID, &typ, &a.SubmittedAt, &a.Submitter, &storeID, &method, &a.Confidence, &distance, &a.NeedsReview); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan assignment")
		}
		a.Type = model.InspectionType(typ)
		a.Method = model.Method(method)
		a.StoreID = int(storeID.Int64)
		if distance.Valid {
			d := distance.Float64
			a.DistanceKM = &d
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list assignments")
}

func (s *SQLiteStore) ListCompliance(ctx context.Context, runID string, status model.ComplianceStatus) ([]model.ComplianceRecord, error) {
	query := `SELECT store_id, period, inspection_type, actual, expected, status FROM compliance WHERE run_id = ?`
	args := []any{runID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list compliance %s", runID)
	}
	defer rows.Close()

	var out []model.ComplianceRecord
	for rows.Next() {
		var r model.ComplianceRecord
		var typ, st string
		if err := rows.Scan(&r.StoreID, &r.Period, &typ, &r.Actual, &r.Expected, &st); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan compliance")
		}
		r.InspectionType = model.InspectionType(typ)
		r.Status = model.ComplianceStatus(st)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list compliance")
}

func (s *SQLiteStore) UpsertStores(ctx context.Context, stores []model.Store) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	var n int64
	for _, st := range stores {
		res, err := tx.ExecContext(ctx, `INSERT INTO stores (id, key, name, classification, grp, lat, lon, active, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				key = excluded.key,
				name = excluded.name,
				classification = excluded.classification,
				grp = excluded.grp,
				lat = excluded.lat,
				lon = excluded.lon,
				active = excluded.active,
				updated_at = excluded.updated_at`,
			st.ID, st.Key, st.Name, string(st.Classification), st.Group, st.Location.Lat, st.Location.Lon, st.Active, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert store %d", st.ID)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit stores")
	}
	return n, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var (
		r        model.Run
		status   string
		summary  sql.NullString
		errMsg   sql.NullString
		finished sql.NullTime
	)
	err := row.Scan(&r.ID, &status, &r.Source, &summary, &errMsg, &r.StartedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.Status = model.RunStatus(status)
	r.Error = errMsg.String
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	if summary.Valid && summary.String != "" {
		if err := json.Unmarshal([]byte(summary.String), &r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &r, nil
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
