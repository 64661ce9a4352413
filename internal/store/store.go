// Package store persists generation runs and their simulated records.
package store

import (
	"context"

	"github.com/sells-group/dealgen/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Store defines the persistence interface for generation runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, seed uint64, input string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, summary model.BatchSummary) error
	FailRun(ctx context.Context, runID, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Results
	SaveResults(ctx context.Context, runID string, results []model.CompanyResult) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100
