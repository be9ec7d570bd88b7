package domain

import "time"

// PublishRow is one submitted record snapshot in the shape the BI dataset
// expects.
type PublishRow struct {
	UserID       string   `json:"user_id"`
	BusinessUnit string   `json:"business_unit"`
	Y2025B       *float64 `json:"Y2025B"`
	Y2026P       *float64 `json:"Y2026P"`
	Y2027P       *float64 `json:"Y2027P"`
	Y2028P       *float64 `json:"Y2028P"`
	Y2029P       *float64 `json:"Y2029P"`
	SalesRemark  *string  `json:"Sales_Remark"`
	SubmittedAt  string   `json:"SubmittedAt"`
	Version      int64    `json:"Version"`
}

// SubmissionBatch is the immutable post-state snapshot of one submit call,
// handed to the publish coordinator. It is never persisted.
type SubmissionBatch struct {
	Partition      Partition
	SubmissionTime time.Time
	Rows           []PublishRow
}

// NewSubmissionBatch snapshots freshly submitted records into publish rows.
func NewSubmissionBatch(p Partition, submissionTime time.Time, records []BudgetRecord) SubmissionBatch {
	rows := make([]PublishRow, 0, len(records))
	for _, record := range records {
		rows = append(rows, PublishRow{
			UserID:       record.UserID,
			BusinessUnit: record.BusinessUnit,
			Y2025B:       record.Y2025B,
			Y2026P:       record.Y2026P,
			Y2027P:       record.Y2027P,
			Y2028P:       record.Y2028P,
			Y2029P:       record.Y2029P,
			SalesRemark:  record.SalesRemark,
			SubmittedAt:  submissionTime.UTC().Format(time.RFC3339),
			Version:      record.Version,
		})
	}
	return SubmissionBatch{
		Partition:      p,
		SubmissionTime: submissionTime.UTC(),
		Rows:           rows,
	}
}

// HydrationRow is one record fetched from the BI dataset's read API when a
// partition is hydrated on a local miss.
type HydrationRow struct {
	SalesRegion    string
	CustomerGroup  string
	BizType        string
	VendorCategory string
	ProductNature  string
	Y2019A         *float64
	Y2020A         *float64
	Y2021A         *float64
	Y2022A         *float64
	Y2023A         *float64
	Y2024B         *float64
	Y2025B         *float64
	Y2026P         *float64
	Y2027P         *float64
	Y2028P         *float64
	Y2029P         *float64
	SalesRemark    *string
}
