package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storeUpsert = UpsertConfig{
	Table:        "stores",
	Columns:      []string{"id", "name", "classification"},
	ConflictKeys: []string{"id"},
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, storeUpsert, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{Table: "stores", ConflictKeys: []string{"id"}}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{Table: "stores", Columns: []string{"id"}}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_stores" \(LIKE "stores" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_stores"}, storeUpsert.Columns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "stores" .* ON CONFLICT \("id"\) DO UPDATE SET "name" = EXCLUDED."name", "classification" = EXCLUDED."classification"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, storeUpsert, [][]any{{15, "Centro", "LOCAL"}, {4, "Santa Catarina", "LOCAL"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_RollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, storeUpsert, [][]any{{15, "Centro", "LOCAL"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create temp table for stores")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL_DoNothingWhenAllColumnsAreKeys(t *testing.T) {
	sql := upsertSQL(UpsertConfig{Table: "stores", Columns: []string{"id"}, ConflictKeys: []string{"id"}}, `"tmp"`)
	assert.Equal(t, `INSERT INTO "stores" ("id") SELECT "id" FROM "tmp" ON CONFLICT ("id") DO NOTHING`, sql)
}
