// Package store persists reconciliation runs and their results.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/supervision-reconciler/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for reconciliation runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, source string) (*model.Run, error)
	SaveRun(ctx context.Context, run model.Run, assignments []model.Assignment, records []model.ComplianceRecord) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Results
	ListAssignments(ctx context.Context, runID string) ([]model.Assignment, error)
	ListReview(ctx context.Context, runID string) ([]model.Assignment, error)
	ListCompliance(ctx context.Context, runID string, status model.ComplianceStatus) ([]model.ComplianceRecord, error)

	// Catalog
	UpsertStores(ctx context.Context, stores []model.Store) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
