// Package publish delivers submitted batches to the external BI dataset
// without blocking the request that triggered submission.
package publish

import (
	"context"

	"github.com/apacbi/budgetportal/internal/services/portal/domain"
)

// Publisher is the external BI system that receives submitted snapshots.
type Publisher interface {
	// Push replaces the submission table rows in the external dataset.
	Push(ctx context.Context, rows []domain.PublishRow) error
	// Refresh triggers a dataset refresh after a successful push.
	Refresh(ctx context.Context) error
}

// Validator reports whether the external BI connection is usable.
// Backs the health endpoint; failures are never fatal there.
type Validator interface {
	Validate(ctx context.Context) bool
}

// Reader fetches a partition's rows from the external dataset, used to
// hydrate an empty local partition on demand.
type Reader interface {
	Query(ctx context.Context, userID, businessUnit string) ([]domain.HydrationRow, error)
}
