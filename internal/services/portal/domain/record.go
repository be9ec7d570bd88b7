// Package domain defines budget records, field patches, and the
// Draft -> Submitted lifecycle shared by storage, handlers, and publishing.
package domain

import (
	"strings"
	"time"

	apperrors "github.com/apacbi/budgetportal/internal/platform/errors"
)

// Status is the lifecycle state of a budget record.
type Status string

const (
	// StatusDraft marks a record that still accepts field edits.
	StatusDraft Status = "draft"
	// StatusSubmitted marks a record frozen by submission. Terminal.
	StatusSubmitted Status = "submitted"
)

// Partition identifies the unit of locking and batch submission.
type Partition struct {
	UserID       string
	BusinessUnit string
}

// Validate checks both partition key components are present.
func (p Partition) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return apperrors.New(apperrors.CodePartitionKeyMissing, "user id is required")
	}
	if strings.TrimSpace(p.BusinessUnit) == "" {
		return apperrors.New(apperrors.CodeBusinessUnitRequired, "business unit is required")
	}
	return nil
}

// String renders the partition for log lines.
func (p Partition) String() string {
	return p.UserID + "/" + p.BusinessUnit
}

// BudgetRecord is one editable forecast line item.
//
// Dimension and historical fields are set at ingestion and never change.
// Only the forecast-year values and the sales remark are editable, and only
// while the record is in Draft.
type BudgetRecord struct {
	ID           int64
	UserID       string
	BusinessUnit string

	// Dimension fields, immutable after creation.
	SalesRegion    string
	CustomerGroup  string
	BizType        string
	VendorCategory string
	ProductNature  string

	// Historical actuals, immutable after creation. Nil means no value.
	Y2019A *float64
	Y2020A *float64
	Y2021A *float64
	Y2022A *float64
	Y2023A *float64
	Y2024B *float64

	// Editable forecast fields. Nil means no value, distinct from zero.
	Y2025B      *float64
	Y2026P      *float64
	Y2027P      *float64
	Y2028P      *float64
	Y2029P      *float64
	SalesRemark *string

	Version     int64
	IsSubmitted bool
	SubmittedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Status reports the record's lifecycle state.
func (r BudgetRecord) Status() Status {
	if r.IsSubmitted {
		return StatusSubmitted
	}
	return StatusDraft
}

// CanEdit reports whether field patches may still be applied.
func (r BudgetRecord) CanEdit() bool {
	return !r.IsSubmitted
}
