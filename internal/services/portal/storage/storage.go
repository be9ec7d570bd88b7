// Package storage defines the persistence contracts for the budget portal.
package storage

import (
	"context"
	"time"

	"github.com/apacbi/budgetportal/internal/platform/errors"
	"github.com/apacbi/budgetportal/internal/services/portal/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// ErrNothingToSubmit indicates a submit call found zero draft records.
var ErrNothingToSubmit = errors.New(errors.CodeNothingToSubmit, "no records to submit")

// RecordStore persists budget records and owns all field-level mutation.
type RecordStore interface {
	// FetchPartition returns all records for a partition. An empty slice and
	// nil error means the partition has no records.
	FetchPartition(ctx context.Context, p domain.Partition) ([]domain.BudgetRecord, error)

	// FetchAll returns every record. Debug surface only.
	FetchAll(ctx context.Context) ([]domain.BudgetRecord, error)

	// ApplyFieldUpdates applies patches to draft records inside one
	// transaction and returns the ids actually updated. Patches that miss
	// the partition, name a submitted record, or carry no editable fields
	// are skipped without error. Patches naming the same record merge into
	// one write, so a record's version bumps at most once per call.
	ApplyFieldUpdates(ctx context.Context, p domain.Partition, patches []domain.FieldPatch) ([]int64, error)

	// MarkSubmitted flips every draft record in the partition to submitted
	// and returns the post-state snapshot batch. Zero draft records fails
	// with ErrNothingToSubmit and leaves no side effects.
	MarkSubmitted(ctx context.Context, p domain.Partition) (domain.SubmissionBatch, error)

	// CountPartition and CountSubmitted back the status endpoint.
	CountPartition(ctx context.Context, p domain.Partition) (int64, error)
	CountSubmitted(ctx context.Context, p domain.Partition) (int64, error)

	// LatestSubmission returns the most recent submitted_at in the
	// partition, or nil when nothing was ever submitted.
	LatestSubmission(ctx context.Context, p domain.Partition) (*time.Time, error)

	// InsertRecords seeds a partition from BI hydration rows.
	InsertRecords(ctx context.Context, p domain.Partition, rows []domain.HydrationRow) error
}

// Session is one issued login session. One active session per user.
type Session struct {
	UserID       string
	BusinessUnit string
	Token        string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	IsActive     bool
}

// SessionStore persists login sessions.
type SessionStore interface {
	// GetSession returns the session row for a user, or ErrNotFound.
	GetSession(ctx context.Context, userID string) (Session, error)

	// UpsertSession replaces the user's session row, creating it if absent.
	UpsertSession(ctx context.Context, session Session) error
}
