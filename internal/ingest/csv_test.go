package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV_Basic(t *testing.T) {
	input := "a,b,c\n1,2,3\n4,5,6\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"a", "b", "c"}, rows[0])
	assert.Equal(t, []string{"4", "5", "6"}, rows[2])
}

func TestReadCSV_PipeDelimitedTrimmed(t *testing.T) {
	input := " a | b \n1|2\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: '|', TrimSpace: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"a", "b"}, rows[0])
}

func TestReadCSV_StripsBOM(t *testing.T) {
	input := "\xEF\xBB\xBFid,name\n1,Madero\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, "id", rows[0][0])
}

func TestReadCSV_ShortInput(t *testing.T) {
	rows, err := ReadCSV(context.Background(), strings.NewReader("a"), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}}, rows)

	rows, err = ReadCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadCSV_MalformedQuote(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader("a,\"b\n"), CSVOptions{})
	assert.Error(t, err)
}

func TestStreamCSV_ContextCancellation(t *testing.T) {
	var sb strings.Builder
	for range 10000 {
		sb.WriteString("a,b,c\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader(sb.String()), CSVOptions{})
	for range rowCh {
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestHeaderIndexAndCell(t *testing.T) {
	idx := HeaderIndex([]string{" Date Submitted ", "ID", "", "id"})
	assert.Equal(t, 0, idx["date submitted"])
	assert.Equal(t, 1, idx["id"], "first occurrence wins")

	row := []string{"2025-03-12", " 77 "}
	assert.Equal(t, "77", Cell(row, idx, "id"))
	assert.Equal(t, "", Cell(row, idx, "missing"))
	assert.Equal(t, "", Cell([]string{"x"}, idx, "id"), "short row")
}
