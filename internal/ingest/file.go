package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/supervision-reconciler/internal/model"
)

// ReadRows reads a .csv or .xlsx export into rows, header first.
func ReadRows(ctx context.Context, path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(ctx, f, CSVOptions{TrimSpace: true, LazyQuotes: true})
	case ".xlsx":
		return ReadXLSX(path, XLSXOptions{})
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}
}

// LoadFile reads an export of a single inspection form and maps it onto raw
// submissions. Rows without a type column take inspectionType.
func LoadFile(ctx context.Context, path string, inspectionType model.InspectionType) ([]model.RawSubmission, error) {
	rows, err := ReadRows(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("ingest: %s is empty", path)
	}

	raws := RowsToRaw(rows[0], rows[1:], inspectionType)
	zap.L().Info("ingest: export loaded",
		zap.String("path", path),
		zap.String("type", string(inspectionType)),
		zap.Int("rows", len(raws)),
	)
	return raws, nil
}
